package reconcile

import (
	"context"
	"log/slog"
	"time"
)

// Runner drives the engine on a fixed interval. Start blocks until the
// context is canceled, making it a natural fit for an errgroup or a
// dedicated goroutine in main.
type Runner struct {
	engine   *Engine
	interval time.Duration
	log      *slog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRunnerLogger sets the logger.
func WithRunnerLogger(log *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if log != nil {
			r.log = log
		}
	}
}

// NewRunner wraps the engine with a periodic schedule; zero or negative
// interval defaults to one hour.
func NewRunner(engine *Engine, interval time.Duration, opts ...RunnerOption) *Runner {
	if engine == nil {
		panic("reconcile: engine is required")
	}
	if interval <= 0 {
		interval = time.Hour
	}
	r := &Runner{
		engine:   engine,
		interval: interval,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start runs one sweep immediately, then one per interval, until ctx is
// canceled. Sweep errors are logged and do not stop the runner.
func (r *Runner) Start(ctx context.Context) error {
	r.sweep(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Runner) sweep(ctx context.Context) {
	if _, err := r.engine.Run(ctx); err != nil {
		r.log.ErrorContext(ctx, "reconciliation sweep failed", "error", err)
	}
}
