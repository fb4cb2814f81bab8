package syncer

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// taskName identifies the runner's work in log output. There is one sync
// queue per process, so the name is fixed.
const taskName = "grades_sync"

// Runner serializes Engine runs behind a named trigger. At most one run is in
// flight at any time; triggers arriving mid-run coalesce into a single
// follow-up run. This mirrors an append-only unique work queue: enqueueing
// while busy means "run once more afterwards", never "run N more times".
type Runner struct {
	engine *Engine
	user   func() string
	log    *slog.Logger

	// retryDelay re-arms the trigger after a run with failures. Zero
	// disables automatic retry.
	retryDelay time.Duration

	trigger chan struct{}

	mu      sync.Mutex
	started bool
	done    chan struct{}
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRetryDelay re-triggers a run after the given delay whenever a run
// leaves failed rows behind.
func WithRetryDelay(d time.Duration) RunnerOption {
	return func(r *Runner) { r.retryDelay = d }
}

// WithRunnerLogger overrides the runner's logger.
func WithRunnerLogger(log *slog.Logger) RunnerOption {
	return func(r *Runner) { r.log = log }
}

// NewRunner creates a runner draining through engine. The user function is
// consulted at the start of every run; returning "" (signed out) makes the
// run a no-op that retains pending rows.
func NewRunner(engine *Engine, user func() string, opts ...RunnerOption) *Runner {
	r := &Runner{
		engine:  engine,
		user:    user,
		log:     slog.Default(),
		trigger: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Trigger requests a sync run. Never blocks; triggers during an in-flight run
// coalesce into one follow-up run.
func (r *Runner) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Start launches the run loop. Subsequent calls are no-ops.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true
	r.done = make(chan struct{})
	go r.loop(ctx)
}

// Wait blocks until the run loop has exited after its context was cancelled.
func (r *Runner) Wait() {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (r *Runner) loop(ctx context.Context) {
	defer close(r.done)

	var retry *time.Timer
	defer func() {
		if retry != nil {
			retry.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.trigger:
		}

		res, err := r.engine.RunOnce(ctx, r.user())
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.log.Error("sync: run aborted", "task", taskName, "error", err)
		}

		if r.retryDelay > 0 && (err != nil || res.Failed > 0) {
			if retry != nil {
				retry.Stop()
			}
			retry = time.AfterFunc(r.retryDelay, r.Trigger)
		}
	}
}
