package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gradient/gradetrack/internal/entity"
	"github.com/gradient/gradetrack/internal/remote"
	"github.com/gradient/gradetrack/internal/store"
)

// OnApply is invoked after every applied snapshot, typically to trigger a
// sync run picking up rows the snapshot could not overwrite.
type OnApply func(remote.Kind)

// Reconciler pulls remote snapshots into the local store for the signed-in
// user. At most one user is active at a time; Start for a new user implies
// Stop for the previous one.
type Reconciler struct {
	store  *store.Store
	client remote.Client
	log    *slog.Logger
	now    func() time.Time
	onAppl OnApply

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithNow overrides the fallback timestamp source.
func WithNow(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// WithLogger overrides the logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *Reconciler) { r.log = log }
}

// WithOnApply registers a hook called after every applied snapshot.
func WithOnApply(fn OnApply) Option {
	return func(r *Reconciler) { r.onAppl = fn }
}

// New wires a reconciler over the local store and remote client.
func New(st *store.Store, client remote.Client, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:  st,
		client: client,
		log:    slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start subscribes to the user's collections and applies snapshots until
// Stop. Calling Start while running restarts under the new user.
func (r *Reconciler) Start(userID string) {
	r.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	for _, kind := range []remote.Kind{remote.KindSubjects, remote.KindAssessments} {
		r.wg.Add(1)
		go r.pump(ctx, userID, kind)
	}
	r.log.Info("reconcile: started", "user", userID)
}

// Stop cancels the subscriptions and waits for the pumps to drain.
// A no-op when not running.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	r.wg.Wait()
	r.log.Info("reconcile: stopped")
}

func (r *Reconciler) pump(ctx context.Context, userID string, kind remote.Kind) {
	defer r.wg.Done()

	sub := r.client.Subscribe(userID, kind)
	defer sub.Cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-sub.C:
			if !ok {
				return
			}
			if err := r.Apply(ctx, userID, snap); err != nil {
				if ctx.Err() != nil {
					return
				}
				r.log.Error("reconcile: apply snapshot", "kind", kind, "error", err)
				continue
			}
			if r.onAppl != nil {
				r.onAppl(kind)
			}
		}
	}
}

// Apply upserts every document of a snapshot into the local store. Malformed
// documents and rows shadowed by a newer local mutation are skipped. The
// returned error reflects store failures only.
func (r *Reconciler) Apply(ctx context.Context, userID string, snap remote.Snapshot) error {
	switch snap.Kind {
	case remote.KindSubjects:
		return r.applySubjects(ctx, userID, snap.Docs)
	case remote.KindAssessments:
		return r.applyAssessments(ctx, snap.Docs)
	default:
		return fmt.Errorf("reconcile: unknown collection %q", snap.Kind)
	}
}

func (r *Reconciler) applySubjects(ctx context.Context, userID string, docs []remote.Document) error {
	now := r.now().UnixMilli()
	for _, doc := range docs {
		sub, err := mapSubject(doc, userID, now)
		if err != nil {
			r.log.Warn("reconcile: skipping document", "kind", remote.KindSubjects, "error", err)
			continue
		}

		shadowed, err := r.localSubjectShadows(ctx, sub)
		if err != nil {
			return err
		}
		if shadowed {
			continue
		}
		if err := r.store.UpsertSubject(ctx, sub); err != nil {
			return fmt.Errorf("reconcile: upsert subject %s: %w", sub.ID, err)
		}
	}
	return nil
}

func (r *Reconciler) applyAssessments(ctx context.Context, docs []remote.Document) error {
	now := r.now().UnixMilli()

	var rows []entity.Assessment
	for _, doc := range docs {
		a, err := mapAssessment(doc, now)
		if err != nil {
			r.log.Warn("reconcile: skipping document", "kind", remote.KindAssessments, "error", err)
			continue
		}

		shadowed, err := r.localAssessmentShadows(ctx, a)
		if err != nil {
			return err
		}
		if shadowed {
			continue
		}
		rows = append(rows, a)
	}

	if len(rows) == 0 {
		return nil
	}
	if err := r.store.UpsertAssessments(ctx, rows); err != nil {
		return fmt.Errorf("reconcile: upsert assessments: %w", err)
	}
	return nil
}

// localSubjectShadows reports whether the local row has an unsynced mutation
// strictly newer than the remote document. Last-writer-wins otherwise.
func (r *Reconciler) localSubjectShadows(ctx context.Context, incoming entity.Subject) (bool, error) {
	local, err := r.store.Subject(ctx, incoming.ID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reconcile: load subject %s: %w", incoming.ID, err)
	}
	return local.Pending != entity.OpNone && local.UpdatedAt > incoming.UpdatedAt, nil
}

func (r *Reconciler) localAssessmentShadows(ctx context.Context, incoming entity.Assessment) (bool, error) {
	local, err := r.store.Assessment(ctx, incoming.LocalID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reconcile: load assessment %s: %w", incoming.LocalID, err)
	}
	return local.Pending != entity.OpNone && local.UpdatedAt > incoming.UpdatedAt, nil
}
