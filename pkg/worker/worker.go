package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mhersta/conveyor/internal/persistence"
	"github.com/mhersta/conveyor/pkg/api"
)

// DefaultPollInterval is used by Run when the configured interval is zero.
const DefaultPollInterval = 5 * time.Second

// DefaultBatchSize bounds how many due retries one poll claims.
const DefaultBatchSize = 50

// Worker drives executions forward: it submits newly triggered executions
// and re-invokes the engine for executions whose retry time has elapsed.
//
// The worker assumes it is the only scheduler polling its store; there is no
// lease or lock between competing workers.
type Worker struct {
	engine api.Engine
	store  persistence.ExecutionStore

	pollInterval time.Duration
	batchSize    int
	logger       *slog.Logger
}

// Option configures a Worker.
type Option func(*Worker)

// WithPollInterval sets how often Run scans for due retries.
func WithPollInterval(d time.Duration) Option {
	return func(w *Worker) { w.pollInterval = d }
}

// WithBatchSize caps how many due retries one scan processes.
func WithBatchSize(n int) Option {
	return func(w *Worker) { w.batchSize = n }
}

// WithLogger sets the logger used for per-execution failures.
func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) { w.logger = l }
}

// New creates a Worker over the given engine and execution store.
func New(engine api.Engine, store persistence.ExecutionStore, opts ...Option) *Worker {
	w := &Worker{
		engine:       engine,
		store:        store,
		pollInterval: DefaultPollInterval,
		batchSize:    DefaultBatchSize,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Submit creates a pending execution for the workflow and runs it
// immediately. This is the trigger-subsystem entry point.
func (w *Worker) Submit(ctx context.Context, workflowID, tenantID string, trigger map[string]any) (*api.RunResult, error) {
	exec, err := w.engine.CreateExecution(ctx, workflowID, tenantID, trigger)
	if err != nil {
		return nil, err
	}
	return w.engine.Execute(ctx, exec.ID)
}

// RunOnce scans for executions whose NextRetryAt has elapsed and re-invokes
// the engine for each, in due order. It returns the number of executions
// processed. A failure on one execution is logged and does not stop the
// rest of the batch; only store/scan errors are returned.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	due, err := w.store.ListDueRetries(ctx, time.Now(), w.batchSize)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, exec := range due {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		res, err := w.engine.Execute(ctx, exec.ID)
		if err != nil {
			w.logger.ErrorContext(ctx, "retry invocation failed",
				slog.String("execution_id", exec.ID),
				slog.Any("error", err),
			)
			continue
		}
		processed++

		if res.Outcome == api.OutcomeAlreadyTerminal {
			// Raced with another invocation; nothing to do.
			continue
		}
	}
	return processed, nil
}

// Run polls for due retries until the context is cancelled. Cancellation is
// a clean shutdown: Run returns nil for context.Canceled.
func (w *Worker) Run(ctx context.Context) error {
	interval := w.pollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			// A scan failure shouldn't kill the loop; log and keep polling.
			w.logger.ErrorContext(ctx, "retry scan failed", slog.Any("error", err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
