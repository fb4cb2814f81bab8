package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gradient/gradetrack/internal/entity"
	"github.com/gradient/gradetrack/internal/remote"
	"github.com/gradient/gradetrack/internal/store"
)

const (
	defaultCallTimeout = 10 * time.Second
	defaultParallelism = 4
	defaultMaxAttempts = 5
)

// Options tune an Engine. Zero values pick the defaults above.
type Options struct {
	// CallTimeout bounds each individual remote call.
	CallTimeout time.Duration

	// Parallelism caps concurrent remote calls within one run.
	Parallelism int

	// MaxAttempts is the attempt budget for permanently rejected rows.
	// Rows at or above the budget are left out of the drain.
	MaxAttempts int

	// Now supplies timestamps for synced-marking. Defaults to time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// Engine performs one-shot push runs against the remote store.
type Engine struct {
	store  *store.Store
	client remote.Client
	opts   Options
}

// NewEngine wires a push engine over the local store and remote client.
func NewEngine(st *store.Store, client remote.Client, opts Options) *Engine {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = defaultCallTimeout
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = defaultParallelism
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{store: st, client: client, opts: opts}
}

// Result summarizes one run.
type Result struct {
	// Pushed counts rows resolved by a remote call (created, merged or
	// deleted remotely).
	Pushed int

	// Failed counts rows whose push failed and which remain pending.
	Failed int

	// Skipped counts rows resolved without a remote call (deletes of rows
	// that never reached the remote).
	Skipped int
}

// RunOnce drains the current pending set for the given user. An empty userID
// means signed out: nothing is pushed and the pending rows are retained.
//
// Per-row failures are counted in the result, not returned; the error is
// non-nil only when the run as a whole could not proceed (listing failed or
// the context was cancelled).
func (e *Engine) RunOnce(ctx context.Context, userID string) (Result, error) {
	if userID == "" {
		return Result{}, nil
	}

	assessments, err := e.store.PendingAssessments(ctx, e.opts.MaxAttempts)
	if err != nil {
		return Result{}, fmt.Errorf("sync: list pending assessments: %w", err)
	}
	subjects, err := e.store.SubjectsNeedingSync(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("sync: list subjects needing sync: %w", err)
	}

	log := e.opts.Logger.With("user", userID)
	log.Info("sync: run start", "assessments", len(assessments), "subjects", len(subjects))

	var pushed, failed, skipped atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Parallelism)

	// Subjects first: an assessment create referencing a subject the remote
	// has never seen is valid (documents are schemaless), but pushing
	// subjects first keeps snapshots coherent for other devices.
	for _, sub := range subjects {
		g.Go(func() error {
			if err := e.pushSubject(gctx, userID, sub); err != nil {
				failed.Add(1)
				e.noteFailure(gctx, log, "subject", sub.ID, err)
				return nil
			}
			pushed.Add(1)
			return nil
		})
	}
	for _, a := range assessments {
		g.Go(func() error {
			remoteCall, err := e.pushAssessment(gctx, userID, a)
			switch {
			case err != nil:
				failed.Add(1)
				e.noteAssessmentFailure(gctx, log, a, err)
			case remoteCall:
				pushed.Add(1)
			default:
				skipped.Add(1)
			}
			return nil
		})
	}

	// Workers never return errors, so Wait only reflects gctx cancellation
	// propagated from the parent.
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	res := Result{
		Pushed:  int(pushed.Load()),
		Failed:  int(failed.Load()),
		Skipped: int(skipped.Load()),
	}
	log.Info("sync: run done", "pushed", res.Pushed, "failed", res.Failed, "skipped", res.Skipped)
	return res, nil
}

// pushSubject merges the subject document under its local id and clears the
// pending state on success.
func (e *Engine) pushSubject(ctx context.Context, userID string, sub entity.Subject) error {
	callCtx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
	defer cancel()

	doc := remote.Doc{
		"name":  sub.Name,
		"icon":  sub.Icon,
		"owner": userID,
	}
	if err := e.client.Merge(callCtx, userID, remote.KindSubjects, sub.ID, doc); err != nil {
		return err
	}
	return e.store.MarkSubjectSynced(ctx, sub.ID, userID, e.opts.Now().UnixMilli())
}

// pushAssessment resolves one pending assessment row. Reports whether a
// remote call was made (deletes of rows without a remote id resolve locally).
func (e *Engine) pushAssessment(ctx context.Context, userID string, a entity.Assessment) (bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
	defer cancel()

	switch {
	case a.Pending == entity.OpDelete:
		if a.RemoteID == "" {
			// Never reached the remote: purge locally, no call needed.
			return false, e.store.DeleteAssessment(ctx, a.LocalID)
		}
		if err := e.client.Delete(callCtx, userID, remote.KindAssessments, a.RemoteID); err != nil {
			return false, err
		}
		return true, e.store.DeleteAssessment(ctx, a.LocalID)

	case a.RemoteID == "":
		id, err := e.client.Create(callCtx, userID, remote.KindAssessments, assessmentDoc(a))
		if err != nil {
			return false, err
		}
		return true, e.store.MarkAssessmentSynced(ctx, a.LocalID, id, e.opts.Now().UnixMilli())

	default:
		// Known remotely: merge regardless of insert vs update so a crash
		// between create and synced-marking cannot duplicate the document.
		if err := e.client.Merge(callCtx, userID, remote.KindAssessments, a.RemoteID, assessmentDoc(a)); err != nil {
			return false, err
		}
		return true, e.store.MarkAssessmentSynced(ctx, a.LocalID, a.RemoteID, e.opts.Now().UnixMilli())
	}
}

// assessmentDoc builds the wire document for an assessment. The server stamps
// updatedAt; the local timestamp is carried separately for conflict checks.
func assessmentDoc(a entity.Assessment) remote.Doc {
	return remote.Doc{
		"localId":   a.LocalID,
		"subjectId": a.SubjectID,
		"period":    string(a.Period),
		"type":      a.Type,
		"score":     a.Score,
		"total":     a.Total,
		"weight":    a.Weight,
		"date":      a.Date,
	}
}

func (e *Engine) noteFailure(ctx context.Context, log *slog.Logger, kind, id string, err error) {
	if ctx.Err() != nil {
		return
	}
	log.Warn("sync: push failed", "kind", kind, "id", id, "error", err)
}

// noteAssessmentFailure logs a failed push and, for permanent rejections,
// bumps the row's attempt counter so the drain query eventually excludes it.
func (e *Engine) noteAssessmentFailure(ctx context.Context, log *slog.Logger, a entity.Assessment, err error) {
	if ctx.Err() != nil {
		return
	}
	if remote.IsPermanent(err) {
		log.Error("sync: push rejected permanently", "id", a.LocalID, "attempts", a.Attempts+1, "error", err)
		if berr := e.store.BumpAttempts(ctx, a.LocalID); berr != nil {
			log.Error("sync: bump attempts", "id", a.LocalID, "error", berr)
		}
		return
	}
	log.Warn("sync: push failed", "kind", "assessment", "id", a.LocalID, "error", err)
}
