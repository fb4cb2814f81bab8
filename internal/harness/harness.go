package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/gradient/gradetrack/internal/entity"
	"github.com/gradient/gradetrack/internal/reconcile"
	"github.com/gradient/gradetrack/internal/remote"
	"github.com/gradient/gradetrack/internal/repo"
	"github.com/gradient/gradetrack/internal/store"
	"github.com/gradient/gradetrack/internal/syncer"
	"github.com/gradient/gradetrack/internal/testutil"
)

// startEpochMs is where every scenario's clock begins.
const startEpochMs = 1000

// Harness wires the full stack for scenario execution.
type Harness struct {
	store  *store.Store
	client *remote.MemoryClient
	engine *syncer.Engine
	recon  *reconcile.Reconciler
	repo   *repo.Repo
	clock  *testutil.Clock

	// users that signed in during the run, in first-seen order; the dump
	// lists their remote collections.
	users []string
}

// New wires a harness over a database at dbPath.
func New(dbPath string) (*Harness, error) {
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("harness: open store: %w", err)
	}

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := testutil.NewClock(startEpochMs)
	client := remote.NewMemoryClient(remote.WithClock(clock.Now))

	h := &Harness{
		store:  st,
		client: client,
		clock:  clock,
		engine: syncer.NewEngine(st, client, syncer.Options{
			// One push at a time keeps remote id assignment stable.
			Parallelism: 1,
			Now:         clock.Now,
			Logger:      quiet,
		}),
		recon: reconcile.New(st, client,
			reconcile.WithNow(clock.Now),
			reconcile.WithLogger(quiet)),
	}
	h.repo = repo.New(st, nil,
		repo.WithIDs(testutil.NewSequenceIDs("local")),
		repo.WithNow(clock.Now),
		repo.WithLogger(quiet))
	return h, nil
}

// Close releases the store.
func (h *Harness) Close() error {
	return h.store.Close()
}

// Run executes the scenario's steps and returns the final state dump.
func (h *Harness) Run(ctx context.Context, scenario *Scenario) (*Snapshot, error) {
	for i, step := range scenario.Steps {
		if err := h.apply(ctx, &step); err != nil {
			return nil, fmt.Errorf("steps[%d] %s: %w", i, step.Op, err)
		}
	}
	return h.snapshot(ctx, scenario.Name)
}

func (h *Harness) apply(ctx context.Context, step *Step) error {
	switch step.Op {
	case OpAddSubject:
		_, err := h.repo.AddSubject(ctx, step.Name, step.Icon)
		return err

	case OpAddAssessment:
		_, err := h.repo.AddAssessment(ctx, entity.Assessment{
			SubjectID: step.Subject,
			Period:    entity.Period(step.Period),
			Type:      step.Type,
			Score:     *step.Score,
			Total:     *step.Total,
			Weight:    *step.Weight,
		})
		return err

	case OpUpdateAssessment:
		existing, err := h.store.Assessment(ctx, step.ID)
		if err != nil {
			return err
		}
		if step.Score != nil {
			existing.Score = *step.Score
		}
		if step.Total != nil {
			existing.Total = *step.Total
		}
		if step.Weight != nil {
			existing.Weight = *step.Weight
		}
		if step.Period != "" {
			existing.Period = entity.Period(step.Period)
		}
		if step.Type != "" {
			existing.Type = step.Type
		}
		_, err = h.repo.UpdateAssessment(ctx, existing)
		return err

	case OpDeleteAssessment:
		return h.repo.DeleteAssessment(ctx, step.ID)

	case OpSignIn:
		if err := h.repo.SignIn(ctx, step.User); err != nil {
			return err
		}
		if !slices.Contains(h.users, step.User) {
			h.users = append(h.users, step.User)
		}
		// The initial pull a live subscription would deliver.
		return h.pull(ctx, step.User)

	case OpSignOut:
		h.repo.SignOut()
		return nil

	case OpSync:
		_, err := h.engine.RunOnce(ctx, h.repo.User())
		return err

	case OpRemoteSnapshot:
		user := h.repo.User()
		if user == "" && len(h.users) > 0 {
			// Signed out: the change lands remotely but is not pulled.
			user = h.users[len(h.users)-1]
		}
		docs := make([]remote.Document, 0, len(step.Docs))
		for _, d := range step.Docs {
			docs = append(docs, remote.Document{ID: d.ID, Fields: remote.Doc(d.Fields)})
		}
		h.client.SetDocs(user, remote.Kind(step.Kind), docs)
		if h.repo.User() == "" {
			return nil
		}
		return h.recon.Apply(ctx, user, remote.Snapshot{
			Kind: remote.Kind(step.Kind),
			Docs: docs,
		})

	case OpAdvanceMs:
		h.clock.Advance(step.Ms)
		return nil

	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
}

// pull applies the current remote state of both collections, the way the
// reconciler's subscriptions would on start.
func (h *Harness) pull(ctx context.Context, user string) error {
	for _, kind := range []remote.Kind{remote.KindSubjects, remote.KindAssessments} {
		snap := remote.Snapshot{Kind: kind, Docs: h.client.Docs(user, kind)}
		if err := h.recon.Apply(ctx, user, snap); err != nil {
			return err
		}
	}
	return nil
}
