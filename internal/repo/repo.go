package repo

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gradient/gradetrack/internal/entity"
	"github.com/gradient/gradetrack/internal/grade"
	"github.com/gradient/gradetrack/internal/reconcile"
	"github.com/gradient/gradetrack/internal/store"
)

// IDSource supplies local primary keys.
type IDSource interface {
	NewID() string
}

type uuidIDs struct{}

func (uuidIDs) NewID() string { return uuid.Must(uuid.NewV7()).String() }

// Repo coordinates local writes, sync scheduling and the reconciler.
type Repo struct {
	store    *store.Store
	recon    *reconcile.Reconciler
	ids      IDSource
	now      func() time.Time
	schedule func()
	log      *slog.Logger

	mu   sync.Mutex
	user string
}

// Option configures a Repo.
type Option func(*Repo)

// WithIDs overrides the local id source. UUIDv7 by default.
func WithIDs(ids IDSource) Option {
	return func(r *Repo) { r.ids = ids }
}

// WithNow overrides the timestamp source.
func WithNow(now func() time.Time) Option {
	return func(r *Repo) { r.now = now }
}

// WithScheduler overrides how a sync run is requested after a local write.
// The default is a no-op; production wires the sync runner's Trigger here.
func WithScheduler(schedule func()) Option {
	return func(r *Repo) { r.schedule = schedule }
}

// WithLogger overrides the logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *Repo) { r.log = log }
}

// New wires the facade. recon may be nil when running without a remote.
func New(st *store.Store, recon *reconcile.Reconciler, opts ...Option) *Repo {
	r := &Repo{
		store:    st,
		recon:    recon,
		ids:      uuidIDs{},
		now:      time.Now,
		schedule: func() {},
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// User returns the signed-in user id, or "" when signed out.
func (r *Repo) User() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.user
}

// SignIn binds the session to a user: locally created subjects are adopted
// under the account, the reconciler starts pulling the user's collections,
// and a sync run drains whatever accumulated while signed out.
func (r *Repo) SignIn(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("repo: sign in requires a user id")
	}

	r.mu.Lock()
	r.user = userID
	r.mu.Unlock()

	adopted, err := r.store.AdoptSubjects(ctx, userID, r.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("repo: adopt subjects: %w", err)
	}
	r.log.Info("repo: signed in", "user", userID, "adopted_subjects", adopted)

	if r.recon != nil {
		r.recon.Start(userID)
	}
	r.schedule()
	return nil
}

// SignOut detaches the session. Local data and pending rows stay put; only
// remote pull and push stop.
func (r *Repo) SignOut() {
	r.mu.Lock()
	r.user = ""
	r.mu.Unlock()

	if r.recon != nil {
		r.recon.Stop()
	}
	r.log.Info("repo: signed out")
}

// AddSubject creates a subject and schedules a push.
func (r *Repo) AddSubject(ctx context.Context, name, icon string) (entity.Subject, error) {
	if name == "" {
		return entity.Subject{}, fmt.Errorf("repo: subject name is required")
	}
	if icon == "" {
		icon = entity.DefaultIcon
	}

	sub := entity.Subject{
		ID:        r.ids.NewID(),
		Name:      name,
		Icon:      icon,
		OwnerID:   r.User(),
		UpdatedAt: r.now().UnixMilli(),
		Pending:   entity.OpInsert,
	}
	if err := r.store.UpsertSubject(ctx, sub); err != nil {
		return entity.Subject{}, fmt.Errorf("repo: add subject: %w", err)
	}
	r.schedule()
	return sub, nil
}

// AddAssessment creates an assessment and schedules a push. The caller fills
// the domain fields; identity, timestamps and pending state are assigned
// here.
func (r *Repo) AddAssessment(ctx context.Context, a entity.Assessment) (entity.Assessment, error) {
	a.LocalID = r.ids.NewID()
	a.RemoteID = ""
	a.UpdatedAt = r.now().UnixMilli()
	a.Pending = entity.OpInsert
	a.Attempts = 0
	if a.Date == "" {
		a.Date = r.now().UTC().Format("2006-01-02")
	}

	if err := a.Validate(); err != nil {
		return entity.Assessment{}, fmt.Errorf("repo: add assessment: %w", err)
	}
	if err := r.store.UpsertAssessment(ctx, a); err != nil {
		return entity.Assessment{}, fmt.Errorf("repo: add assessment: %w", err)
	}
	r.schedule()
	return a, nil
}

// UpdateAssessment applies an edit to an existing assessment. A row that has
// never reached the remote stays an insert so the eventual push creates it;
// otherwise the edit becomes a pending update.
func (r *Repo) UpdateAssessment(ctx context.Context, a entity.Assessment) (entity.Assessment, error) {
	existing, err := r.store.Assessment(ctx, a.LocalID)
	if err != nil {
		return entity.Assessment{}, fmt.Errorf("repo: update assessment %s: %w", a.LocalID, err)
	}

	a.RemoteID = existing.RemoteID
	a.Attempts = existing.Attempts
	a.UpdatedAt = r.now().UnixMilli()
	if existing.RemoteID == "" {
		a.Pending = entity.OpInsert
	} else {
		a.Pending = entity.OpUpdate
	}

	if err := a.Validate(); err != nil {
		return entity.Assessment{}, fmt.Errorf("repo: update assessment %s: %w", a.LocalID, err)
	}
	if err := r.store.UpsertAssessment(ctx, a); err != nil {
		return entity.Assessment{}, fmt.Errorf("repo: update assessment %s: %w", a.LocalID, err)
	}
	r.schedule()
	return a, nil
}

// DeleteAssessment tombstones an assessment. The row disappears from reads
// that filter deletions and is purged once the push confirms the remote
// delete (immediately, for rows the remote never saw).
func (r *Repo) DeleteAssessment(ctx context.Context, localID string) error {
	existing, err := r.store.Assessment(ctx, localID)
	if err != nil {
		return fmt.Errorf("repo: delete assessment %s: %w", localID, err)
	}

	existing.Pending = entity.OpDelete
	existing.UpdatedAt = r.now().UnixMilli()
	if err := r.store.UpsertAssessment(ctx, existing); err != nil {
		return fmt.Errorf("repo: delete assessment %s: %w", localID, err)
	}
	r.schedule()
	return nil
}

// Subjects lists all subjects ordered by name.
func (r *Repo) Subjects(ctx context.Context) ([]entity.Subject, error) {
	return r.store.Subjects(ctx)
}

// Assessments lists a subject's assessments, newest first.
func (r *Repo) Assessments(ctx context.Context, subjectID string) ([]entity.Assessment, error) {
	return r.store.Assessments(ctx, subjectID)
}

// ObserveSubjects returns a live stream of the subject list.
func (r *Repo) ObserveSubjects(ctx context.Context) *store.SubjectStream {
	return r.store.ObserveSubjects(ctx)
}

// ObserveAssessments returns a live stream of one subject's assessments.
func (r *Repo) ObserveAssessments(ctx context.Context, subjectID string) *store.AssessmentStream {
	return r.store.ObserveAssessments(ctx, subjectID)
}

// SubjectOverview computes the subject's per-period grades and alert status
// against the given target. Rows tombstoned for deletion do not count.
func (r *Repo) SubjectOverview(ctx context.Context, subjectID string, target float64) (grade.Overview, error) {
	assessments, err := r.store.Assessments(ctx, subjectID)
	if err != nil {
		return grade.Overview{}, fmt.Errorf("repo: overview for %s: %w", subjectID, err)
	}
	return grade.BuildOverview(assessments, target), nil
}
