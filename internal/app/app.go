package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gradient/gradetrack/internal/config"
	"github.com/gradient/gradetrack/internal/grade"
	"github.com/gradient/gradetrack/internal/reconcile"
	"github.com/gradient/gradetrack/internal/remote"
	"github.com/gradient/gradetrack/internal/repo"
	"github.com/gradient/gradetrack/internal/store"
	"github.com/gradient/gradetrack/internal/syncer"
)

// App holds the assembled components. Fields are exported so callers reach
// each surface directly; Repo is the one most code talks to.
type App struct {
	Config config.Config
	Store  *store.Store
	Client remote.Client
	Engine *syncer.Engine
	Runner *syncer.Runner
	Recon  *reconcile.Reconciler
	Repo   *repo.Repo
}

// Option configures the assembly.
type Option func(*settings)

type settings struct {
	log    *slog.Logger
	client remote.Client
}

// WithLogger sets the logger every component logs through.
func WithLogger(log *slog.Logger) Option {
	return func(s *settings) { s.log = log }
}

// WithClient overrides the remote client the configuration would pick.
func WithClient(client remote.Client) Option {
	return func(s *settings) { s.client = client }
}

// New builds the full engine from cfg. The caller owns the result and must
// Close it; Start launches the background runner.
func New(cfg config.Config, opts ...Option) (*App, error) {
	s := settings{log: slog.Default()}
	for _, opt := range opts {
		opt(&s)
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("app: open store: %w", err)
	}

	client := s.client
	if client == nil {
		client = newClient(cfg.Remote, s.log)
	}

	engine := syncer.NewEngine(st, client, syncer.Options{
		CallTimeout: cfg.Remote.CallTimeout.Std(),
		Parallelism: cfg.Sync.Parallelism,
		MaxAttempts: cfg.Sync.MaxAttempts,
		Logger:      s.log,
	})

	a := &App{Config: cfg, Store: st, Client: client, Engine: engine}
	a.Runner = syncer.NewRunner(engine,
		func() string { return a.Repo.User() },
		syncer.WithRetryDelay(cfg.Sync.RetryDelay.Std()),
		syncer.WithRunnerLogger(s.log))
	a.Recon = reconcile.New(st, client,
		reconcile.WithLogger(s.log),
		reconcile.WithOnApply(func(remote.Kind) { a.Runner.Trigger() }))
	a.Repo = repo.New(st, a.Recon,
		repo.WithScheduler(a.Runner.Trigger),
		repo.WithLogger(s.log))
	return a, nil
}

// newClient picks the remote implementation for the configuration. An empty
// URL means fully offline: the in-process store, nothing leaves the device.
func newClient(rc config.Remote, log *slog.Logger) remote.Client {
	if rc.URL == "" {
		return remote.NewMemoryClient()
	}
	return remote.NewHTTPClient(rc.URL,
		remote.WithTimeout(rc.CallTimeout.Std()),
		remote.WithPollInterval(rc.PollInterval.Std()),
		remote.WithLogger(log))
}

// Start launches the background sync runner. Cancelling ctx stops it.
func (a *App) Start(ctx context.Context) {
	a.Runner.Start(ctx)
}

// Close stops the reconciler and closes the local store. The sync runner
// stops when the context passed to Start is cancelled.
func (a *App) Close() error {
	a.Recon.Stop()
	return a.Store.Close()
}

// SubjectOverview computes a subject's per-period grades against the
// configured target grade.
func (a *App) SubjectOverview(ctx context.Context, subjectID string) (grade.Overview, error) {
	return a.Repo.SubjectOverview(ctx, subjectID, a.Config.TargetGrade)
}
