package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the engine for logging and metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay execution.
type Observer interface {
	// OnExecutionStart is called after the execution transitions to
	// running, before the first action is dispatched.
	OnExecutionStart(ctx context.Context, exec *Execution)

	// OnExecutionCompleted is called when an execution reaches
	// StatusCompleted.
	OnExecutionCompleted(ctx context.Context, exec *Execution)

	// OnRetryScheduled is called when a transient failure parks the
	// execution in StatusFailedPendingRetry. delay is the computed backoff.
	OnRetryScheduled(ctx context.Context, exec *Execution, delay time.Duration)

	// OnDeadLettered is called when an execution is handed to the
	// dead-letter sink.
	OnDeadLettered(ctx context.Context, exec *Execution, err error)

	// OnActionStart is called before an action is dispatched.
	// actionIndex is the 0-based index into WorkflowDefinition.Actions.
	OnActionStart(ctx context.Context, exec *Execution, action Action, actionIndex int)

	// OnActionCompleted is called after a dispatch returns, for both
	// successes and failures (err != nil).
	OnActionCompleted(ctx context.Context, exec *Execution, action Action, actionIndex int, err error, duration time.Duration)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnExecutionStart(ctx context.Context, exec *Execution)     {}
func (NoopObserver) OnExecutionCompleted(ctx context.Context, exec *Execution) {}
func (NoopObserver) OnRetryScheduled(ctx context.Context, exec *Execution, delay time.Duration) {
}
func (NoopObserver) OnDeadLettered(ctx context.Context, exec *Execution, err error) {}
func (NoopObserver) OnActionStart(ctx context.Context, exec *Execution, action Action, idx int) {
}
func (NoopObserver) OnActionCompleted(ctx context.Context, exec *Execution, action Action, idx int, err error, d time.Duration) {
}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnExecutionStart(ctx context.Context, exec *Execution) {
	for _, o := range c.observers {
		o.OnExecutionStart(ctx, exec)
	}
}

func (c *CompositeObserver) OnExecutionCompleted(ctx context.Context, exec *Execution) {
	for _, o := range c.observers {
		o.OnExecutionCompleted(ctx, exec)
	}
}

func (c *CompositeObserver) OnRetryScheduled(ctx context.Context, exec *Execution, delay time.Duration) {
	for _, o := range c.observers {
		o.OnRetryScheduled(ctx, exec, delay)
	}
}

func (c *CompositeObserver) OnDeadLettered(ctx context.Context, exec *Execution, err error) {
	for _, o := range c.observers {
		o.OnDeadLettered(ctx, exec, err)
	}
}

func (c *CompositeObserver) OnActionStart(ctx context.Context, exec *Execution, action Action, idx int) {
	for _, o := range c.observers {
		o.OnActionStart(ctx, exec, action, idx)
	}
}

func (c *CompositeObserver) OnActionCompleted(ctx context.Context, exec *Execution, action Action, idx int, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnActionCompleted(ctx, exec, action, idx, err, d)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs execution / action
// lifecycle events using the provided slog.Logger. If logger is nil,
// slog.Default() is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnExecutionStart(ctx context.Context, exec *Execution) {
	o.Logger.InfoContext(ctx, "execution_start",
		slog.String("workflow_id", exec.WorkflowID),
		slog.String("execution_id", exec.ID),
		slog.Int("retry_count", exec.RetryCount),
	)
}

func (o *LoggingObserver) OnExecutionCompleted(ctx context.Context, exec *Execution) {
	o.Logger.InfoContext(ctx, "execution_completed",
		slog.String("workflow_id", exec.WorkflowID),
		slog.String("execution_id", exec.ID),
		slog.Int64("duration_ms", exec.DurationMS),
	)
}

func (o *LoggingObserver) OnRetryScheduled(ctx context.Context, exec *Execution, delay time.Duration) {
	o.Logger.WarnContext(ctx, "retry_scheduled",
		slog.String("workflow_id", exec.WorkflowID),
		slog.String("execution_id", exec.ID),
		slog.Int("retry_count", exec.RetryCount),
		slog.Duration("delay", delay),
		slog.String("last_error", exec.LastError),
	)
}

func (o *LoggingObserver) OnDeadLettered(ctx context.Context, exec *Execution, err error) {
	o.Logger.ErrorContext(ctx, "execution_dead_lettered",
		slog.String("workflow_id", exec.WorkflowID),
		slog.String("execution_id", exec.ID),
		slog.Int("retry_count", exec.RetryCount),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnActionStart(ctx context.Context, exec *Execution, action Action, idx int) {
	o.Logger.DebugContext(ctx, "action_start",
		slog.String("execution_id", exec.ID),
		slog.String("action_id", action.ID),
		slog.String("action_type", string(action.Type)),
		slog.Int("action_index", idx),
	)
}

func (o *LoggingObserver) OnActionCompleted(ctx context.Context, exec *Execution, action Action, idx int, err error, d time.Duration) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "action_completed",
		slog.String("execution_id", exec.ID),
		slog.String("action_id", action.ID),
		slog.String("action_type", string(action.Type)),
		slog.Int("action_index", idx),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

// BasicMetrics collects simple counters and aggregate action durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	executionsStarted   atomic.Int64
	executionsCompleted atomic.Int64
	retriesScheduled    atomic.Int64
	deadLettered        atomic.Int64
	actionsSucceeded    atomic.Int64
	actionsFailed       atomic.Int64
	totalActionDuration atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	ExecutionsStarted   int64
	ExecutionsCompleted int64
	RetriesScheduled    int64
	DeadLettered        int64

	ActionsSucceeded  int64
	ActionsFailed     int64
	AvgActionDuration time.Duration
}

func (m *BasicMetrics) OnExecutionStart(ctx context.Context, exec *Execution) {
	m.executionsStarted.Add(1)
}

func (m *BasicMetrics) OnExecutionCompleted(ctx context.Context, exec *Execution) {
	m.executionsCompleted.Add(1)
}

func (m *BasicMetrics) OnRetryScheduled(ctx context.Context, exec *Execution, delay time.Duration) {
	m.retriesScheduled.Add(1)
}

func (m *BasicMetrics) OnDeadLettered(ctx context.Context, exec *Execution, err error) {
	m.deadLettered.Add(1)
}

func (m *BasicMetrics) OnActionCompleted(ctx context.Context, exec *Execution, action Action, idx int, err error, d time.Duration) {
	if err != nil {
		m.actionsFailed.Add(1)
		return
	}
	// Only successful actions contribute to the average duration.
	m.actionsSucceeded.Add(1)
	m.totalActionDuration.Add(d.Nanoseconds())
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	succeeded := m.actionsSucceeded.Load()
	totalNs := m.totalActionDuration.Load()

	var avg time.Duration
	if succeeded > 0 {
		avg = time.Duration(totalNs / succeeded)
	}

	return BasicMetricsSnapshot{
		ExecutionsStarted:   m.executionsStarted.Load(),
		ExecutionsCompleted: m.executionsCompleted.Load(),
		RetriesScheduled:    m.retriesScheduled.Load(),
		DeadLettered:        m.deadLettered.Load(),
		ActionsSucceeded:    succeeded,
		ActionsFailed:       m.actionsFailed.Load(),
		AvgActionDuration:   avg,
	}
}
