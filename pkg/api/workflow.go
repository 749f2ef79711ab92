package api

import (
	"context"
	"time"
)

// Status represents the lifecycle state of an execution.
type Status string

const (
	// StatusPending is set by the trigger subsystem when the execution row
	// is created. The engine never creates executions in any other state.
	StatusPending Status = "pending"

	// StatusRunning is set by the engine before the first action is
	// dispatched, so a crash mid-run leaves visible evidence of the attempt.
	StatusRunning Status = "running"

	// StatusCompleted is terminal: every action in the workflow succeeded.
	StatusCompleted Status = "completed"

	// StatusFailedPendingRetry marks a transient failure. The execution
	// carries a NextRetryAt timestamp and waits for a scheduler to
	// re-invoke the engine.
	StatusFailedPendingRetry Status = "failed_pending_retry"

	// StatusDeadLettered is terminal: retries are exhausted or the failure
	// is not retryable. Dead-lettered executions require manual attention.
	StatusDeadLettered Status = "dead_lettered"
)

// IsTerminal reports whether no further engine mutation may occur.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusDeadLettered
}

// ActionType identifies which handler an action is dispatched to.
type ActionType string

const (
	ActionSendEmail       ActionType = "send_email"
	ActionSendSMS         ActionType = "send_sms"
	ActionUpdateInventory ActionType = "update_inventory"
	ActionAssignCourier   ActionType = "assign_courier"
	ActionCallWebhook     ActionType = "call_webhook"
	ActionDatabaseQuery   ActionType = "database_query"
)

// Action is one step in a workflow definition.
//
// Config is free-form and interpreted by the handler for the action's type.
// EdgeFunction optionally names an externally registered handler; it is only
// consulted when Type does not match a registered handler.
type Action struct {
	ID           string         `json:"id"`
	Type         ActionType     `json:"type"`
	Config       map[string]any `json:"config"`
	EdgeFunction string         `json:"edge_function,omitempty"`
}

// RetryPolicy controls how a failed execution is retried.
//
// MaxAttempts counts the initial attempt plus retries: MaxAttempts = 3 means
// the engine gives up after the third failed attempt. Delays grow
// exponentially from InitialDelaySeconds by BackoffMultiplier, capped at
// MaxDelaySeconds. Only failures classified into RetryOnErrors are retried.
type RetryPolicy struct {
	MaxAttempts         int         `json:"max_attempts"`
	InitialDelaySeconds int         `json:"initial_delay_seconds"`
	MaxDelaySeconds     int         `json:"max_delay_seconds"`
	BackoffMultiplier   float64     `json:"backoff_multiplier"`
	RetryOnErrors       []ErrorKind `json:"retry_on_errors"`
}

// DefaultRetryPolicy is applied when a workflow definition carries no policy:
// 3 attempts, 5s initial delay, 300s cap, multiplier 2, retrying the four
// transient kinds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:         3,
		InitialDelaySeconds: 5,
		MaxDelaySeconds:     300,
		BackoffMultiplier:   2.0,
		RetryOnErrors: []ErrorKind{
			ErrTimeout,
			ErrNetwork,
			ErrRateLimit,
			ErrServer,
		},
	}
}

// Normalized fills zero-valued fields from the default policy so the backoff
// calculator is total over whatever a caller supplies.
func (p RetryPolicy) Normalized() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.InitialDelaySeconds <= 0 {
		p.InitialDelaySeconds = def.InitialDelaySeconds
	}
	if p.MaxDelaySeconds <= 0 {
		p.MaxDelaySeconds = def.MaxDelaySeconds
	}
	if p.BackoffMultiplier <= 0 {
		p.BackoffMultiplier = def.BackoffMultiplier
	}
	if p.RetryOnErrors == nil {
		p.RetryOnErrors = def.RetryOnErrors
	}
	return p
}

// Retries reports whether failures of the given kind are retryable under
// this policy.
func (p RetryPolicy) Retries(kind ErrorKind) bool {
	for _, k := range p.RetryOnErrors {
		if k == kind {
			return true
		}
	}
	return false
}

// WorkflowDefinition describes an automation as an ordered action sequence.
// It is immutable per run; the engine only ever reads it.
type WorkflowDefinition struct {
	ID       string       `json:"id"`
	TenantID string       `json:"tenant_id,omitempty"`
	Name     string       `json:"name,omitempty"`
	Actions  []Action     `json:"actions"`
	Retry    *RetryPolicy `json:"retry_config,omitempty"`
}

// StepResult is one entry in an execution's append-only log: the outcome of
// dispatching a single action during a single attempt.
type StepResult struct {
	ActionID   string     `json:"action_id"`
	ActionType ActionType `json:"action_type"`
	Status     string     `json:"status"` // "success" or "failed"
	Result     any        `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
	DurationMS int64      `json:"duration_ms"`
	Timestamp  time.Time  `json:"timestamp"`
}

const (
	StepSuccess = "success"
	StepFailed  = "failed"
)

// ErrorDetails records the classified failure that drove the most recent
// retry or dead-letter decision.
type ErrorDetails struct {
	ErrorType ErrorKind `json:"error_type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Execution is one attempt-tracked run of a workflow definition against one
// trigger payload.
//
// ExecutionLog accumulates across attempts: a retried execution appends the
// later attempt's step results after the earlier attempt's. The log is an
// audit trail, not just the latest attempt's trace.
type Execution struct {
	ID          string         `json:"id"`
	WorkflowID  string         `json:"workflow_id"`
	TenantID    string         `json:"tenant_id,omitempty"`
	TriggerData map[string]any `json:"trigger_data,omitempty"`

	Status       Status        `json:"status"`
	ExecutionLog []StepResult  `json:"execution_log,omitempty"`
	RetryCount   int           `json:"retry_count"`
	LastError    string        `json:"last_error,omitempty"`
	ErrorDetails *ErrorDetails `json:"error_details,omitempty"`
	NextRetryAt  *time.Time    `json:"next_retry_at,omitempty"`
	IsRetryable  bool          `json:"is_retryable"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMS  int64      `json:"duration_ms,omitempty"`
}

// RunOutcome is the engine's verdict for one Execute invocation.
//
// Retry scheduling and dead-lettering are expected outcomes, not errors:
// Execute returns a non-nil error only when the execution itself cannot be
// loaded or persisted.
type RunOutcome string

const (
	OutcomeCompleted       RunOutcome = "completed"
	OutcomeRetryScheduled  RunOutcome = "retry_scheduled"
	OutcomeDeadLettered    RunOutcome = "dead_lettered"
	OutcomeAlreadyTerminal RunOutcome = "already_terminal"
)

// RunResult is returned by Engine.Execute.
type RunResult struct {
	Outcome   RunOutcome
	Execution *Execution
}

// ExecutionListOptions controls how executions are listed.
// Zero values mean "no filter" for that field.
type ExecutionListOptions struct {
	WorkflowID string
	TenantID   string
	Status     Status
}

// Dispatcher invokes the handler for a single action with the execution's
// trigger payload. It propagates whatever the handler raises, unclassified;
// turning failures into retry decisions is the engine's job.
type Dispatcher interface {
	Dispatch(ctx context.Context, action Action, trigger map[string]any) (any, error)
}

// Engine runs executions against registered workflow definitions.
type Engine interface {
	// RegisterWorkflow registers a definition by ID.
	RegisterWorkflow(def WorkflowDefinition) error

	// CreateExecution creates a pending execution for the given workflow
	// and trigger payload. It does not run any action.
	CreateExecution(ctx context.Context, workflowID, tenantID string, trigger map[string]any) (*Execution, error)

	// Execute loads the execution and drives it through one attempt:
	// completed, retry scheduled, or dead-lettered. Re-invoking a
	// failed_pending_retry execution re-runs all actions from the start and
	// appends to the log; re-invoking a terminal execution is a no-op
	// reported as OutcomeAlreadyTerminal.
	//
	// A missing execution is a caller bug and surfaces as an error wrapping
	// ErrExecutionNotFound; nothing is mutated in that case.
	Execute(ctx context.Context, executionID string) (*RunResult, error)

	// GetExecution looks up an execution by ID.
	GetExecution(ctx context.Context, id string) (*Execution, error)

	// ListExecutions returns executions matching the given options.
	ListExecutions(ctx context.Context, opts ExecutionListOptions) ([]*Execution, error)
}
