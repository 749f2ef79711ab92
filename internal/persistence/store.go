package persistence

import (
	"context"
	"time"

	"github.com/mhersta/conveyor/pkg/api"
)

// WorkflowStore handles storage of workflow definitions.
// Definitions are read-only to the engine once registered.
type WorkflowStore interface {
	SaveWorkflow(def api.WorkflowDefinition) error
	// GetWorkflow returns the workflow definition for an ID.
	GetWorkflow(id string) (api.WorkflowDefinition, error)
}

// ExecutionFilter is used to select executions from the store.
// Empty string / zero status mean "no filter" for that field.
type ExecutionFilter struct {
	WorkflowID string
	TenantID   string
	Status     api.Status
}

// ExecutionStore handles storage of executions.
//
// The engine reads an execution and fully rewrites it on every transition;
// stores do not need to merge partial updates.
type ExecutionStore interface {
	CreateExecution(ctx context.Context, exec *api.Execution) error
	UpdateExecution(ctx context.Context, exec *api.Execution) error
	GetExecution(ctx context.Context, id string) (*api.Execution, error)
	ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*api.Execution, error)

	// ListDueRetries returns up to limit executions in
	// failed_pending_retry whose NextRetryAt is at or before now, ordered
	// by NextRetryAt. limit <= 0 means no limit.
	ListDueRetries(ctx context.Context, now time.Time, limit int) ([]*api.Execution, error)
}

// DeadLetterSink records executions that cannot succeed for manual operator
// review. The engine invokes it exactly once per dead-lettered run, after
// the terminal state has been persisted.
type DeadLetterSink interface {
	DeadLetter(ctx context.Context, executionID string) error
}

// Persistence bundles the store interfaces so the engine can depend on a
// single abstraction.
type Persistence struct {
	Workflows   WorkflowStore
	Executions  ExecutionStore
	DeadLetters DeadLetterSink
}
