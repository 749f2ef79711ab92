package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/mhersta/conveyor/internal/backoff"
	"github.com/mhersta/conveyor/internal/classify"
	"github.com/mhersta/conveyor/internal/persistence"
	"github.com/mhersta/conveyor/pkg/api"
)

// engineImpl is a synchronous, in-process execution runner.
//
// One Execute invocation is one attempt: actions run strictly in order, the
// runner waits for each dispatch before starting the next, and the first
// failure stops the sequence. Nothing here schedules the next attempt; a
// scheduler re-invokes Execute for executions whose retry time has elapsed.
type engineImpl struct {
	workflows   persistence.WorkflowStore
	executions  persistence.ExecutionStore
	deadLetters persistence.DeadLetterSink

	dispatcher api.Dispatcher
	observer   api.Observer
}

// Config describes how to construct an engineImpl.
// Only used inside this package; external callers use the helper functions.
type Config struct {
	Persistence persistence.Persistence
	Dispatcher  api.Dispatcher
	Observer    api.Observer
}

// NewEngineWithConfig creates a new Engine using the given configuration.
func NewEngineWithConfig(cfg Config) api.Engine {
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	return &engineImpl{
		workflows:   cfg.Persistence.Workflows,
		executions:  cfg.Persistence.Executions,
		deadLetters: cfg.Persistence.DeadLetters,
		dispatcher:  cfg.Dispatcher,
		observer:    obs,
	}
}

// NewEngine returns an Engine backed by the given persistence bundle.
func NewEngine(p persistence.Persistence, d api.Dispatcher) api.Engine {
	return NewEngineWithConfig(Config{
		Persistence: p,
		Dispatcher:  d,
	})
}

func NewInMemoryEngine(d api.Dispatcher) api.Engine {
	return NewInMemoryEngineWithObserver(d, nil)
}

func NewInMemoryEngineWithObserver(d api.Dispatcher, obs api.Observer) api.Engine {
	mem := persistence.NewInMemoryStore()
	return NewEngineWithConfig(Config{
		Persistence: persistence.Persistence{
			Workflows:   mem,
			Executions:  mem,
			DeadLetters: mem,
		},
		Dispatcher: d,
		Observer:   obs,
	})
}

func NewSQLiteEngine(db *sql.DB, d api.Dispatcher) (api.Engine, error) {
	return NewSQLiteEngineWithObserver(db, d, nil)
}

func NewSQLiteEngineWithObserver(db *sql.DB, d api.Dispatcher, obs api.Observer) (api.Engine, error) {
	store, err := persistence.NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}
	// Workflow definitions remain in-memory; executions and the dead-letter
	// table are durable.
	memWF := persistence.NewInMemoryStore()

	return NewEngineWithConfig(Config{
		Persistence: persistence.Persistence{
			Workflows:   memWF,
			Executions:  store,
			DeadLetters: store,
		},
		Dispatcher: d,
		Observer:   obs,
	}), nil
}

func NewPostgresEngine(db *sql.DB, d api.Dispatcher) (api.Engine, error) {
	return NewPostgresEngineWithObserver(db, d, nil)
}

func NewPostgresEngineWithObserver(db *sql.DB, d api.Dispatcher, obs api.Observer) (api.Engine, error) {
	store, err := persistence.NewPostgresStore(db)
	if err != nil {
		return nil, err
	}
	memWF := persistence.NewInMemoryStore()

	return NewEngineWithConfig(Config{
		Persistence: persistence.Persistence{
			Workflows:   memWF,
			Executions:  store,
			DeadLetters: store,
		},
		Dispatcher: d,
		Observer:   obs,
	}), nil
}

func NewRedisEngine(client *redis.Client, d api.Dispatcher) api.Engine {
	return NewRedisEngineWithObserver(client, d, nil)
}

func NewRedisEngineWithObserver(client *redis.Client, d api.Dispatcher, obs api.Observer) api.Engine {
	store := persistence.NewRedisStore(client, "conveyor:")
	memWF := persistence.NewInMemoryStore()

	return NewEngineWithConfig(Config{
		Persistence: persistence.Persistence{
			Workflows:   memWF,
			Executions:  store,
			DeadLetters: store,
		},
		Dispatcher: d,
		Observer:   obs,
	})
}

func NewMongoEngine(db *mongo.Database, d api.Dispatcher) api.Engine {
	return NewMongoEngineWithObserver(db, d, nil)
}

func NewMongoEngineWithObserver(db *mongo.Database, d api.Dispatcher, obs api.Observer) api.Engine {
	store := persistence.NewMongoStore(db)
	memWF := persistence.NewInMemoryStore()

	return NewEngineWithConfig(Config{
		Persistence: persistence.Persistence{
			Workflows:   memWF,
			Executions:  store,
			DeadLetters: store,
		},
		Dispatcher: d,
		Observer:   obs,
	})
}

func (e *engineImpl) RegisterWorkflow(def api.WorkflowDefinition) error {
	if def.ID == "" {
		return errors.New("workflow ID is required")
	}
	if len(def.Actions) == 0 {
		return errors.New("workflow must have at least one action")
	}
	for i, a := range def.Actions {
		if a.ID == "" {
			return fmt.Errorf("action %d has no ID", i)
		}
		if a.Type == "" && a.EdgeFunction == "" {
			return fmt.Errorf("action %q has neither a type nor a handler reference", a.ID)
		}
	}

	// Check for duplicates via the store.
	if existing, err := e.workflows.GetWorkflow(def.ID); err == nil && existing.ID != "" {
		return fmt.Errorf("workflow already registered: %s", def.ID)
	} else if err != nil && !errors.Is(err, api.ErrWorkflowNotFound) {
		// Unexpected store error.
		return err
	}

	return e.workflows.SaveWorkflow(def)
}

func (e *engineImpl) CreateExecution(ctx context.Context, workflowID, tenantID string, trigger map[string]any) (*api.Execution, error) {
	if _, err := e.workflows.GetWorkflow(workflowID); err != nil {
		if errors.Is(err, api.ErrWorkflowNotFound) {
			return nil, fmt.Errorf("unknown workflow: %s", workflowID)
		}
		return nil, err
	}

	exec := &api.Execution{
		ID:          uuid.NewString(),
		WorkflowID:  workflowID,
		TenantID:    tenantID,
		TriggerData: trigger,
		Status:      api.StatusPending,
	}
	if err := e.executions.CreateExecution(ctx, exec); err != nil {
		return nil, err
	}
	return exec, nil
}

func (e *engineImpl) GetExecution(ctx context.Context, id string) (*api.Execution, error) {
	exec, err := e.executions.GetExecution(ctx, id)
	if err != nil {
		if errors.Is(err, api.ErrExecutionNotFound) {
			return nil, fmt.Errorf("execution %s: %w", id, api.ErrExecutionNotFound)
		}
		return nil, err
	}
	return exec, nil
}

func (e *engineImpl) ListExecutions(ctx context.Context, opts api.ExecutionListOptions) ([]*api.Execution, error) {
	filter := persistence.ExecutionFilter{
		WorkflowID: opts.WorkflowID,
		TenantID:   opts.TenantID,
		Status:     opts.Status,
	}
	return e.executions.ListExecutions(ctx, filter)
}

// Execute drives one attempt of the execution state machine.
func (e *engineImpl) Execute(ctx context.Context, executionID string) (*api.RunResult, error) {
	exec, err := e.executions.GetExecution(ctx, executionID)
	if err != nil {
		// A missing execution is a caller bug, not a workflow failure.
		if errors.Is(err, api.ErrExecutionNotFound) {
			return nil, fmt.Errorf("execution %s: %w", executionID, api.ErrExecutionNotFound)
		}
		return nil, err
	}

	// Terminal executions are never re-run and never mutated.
	if exec.Status.IsTerminal() {
		return &api.RunResult{Outcome: api.OutcomeAlreadyTerminal, Execution: exec}, nil
	}

	def, err := e.workflows.GetWorkflow(exec.WorkflowID)
	if err != nil {
		if errors.Is(err, api.ErrWorkflowNotFound) {
			return nil, fmt.Errorf("workflow definition %s for execution %s: %w",
				exec.WorkflowID, executionID, api.ErrWorkflowNotFound)
		}
		return nil, err
	}

	// Mark the attempt before any action executes, so a crash mid-run
	// leaves visible evidence instead of stale pending state.
	started := time.Now()
	exec.Status = api.StatusRunning
	exec.StartedAt = &started
	exec.NextRetryAt = nil
	if err := e.executions.UpdateExecution(ctx, exec); err != nil {
		return nil, err
	}
	e.observer.OnExecutionStart(ctx, exec)

	actionErr := e.runActions(ctx, def, exec)

	if actionErr == nil {
		return e.complete(ctx, exec, started)
	}
	return e.handleFailure(ctx, def, exec, started, actionErr)
}

// runActions dispatches the definition's actions strictly in order,
// appending one StepResult per dispatched action. It returns the first
// failure and dispatches nothing after it.
func (e *engineImpl) runActions(ctx context.Context, def api.WorkflowDefinition, exec *api.Execution) error {
	for i, action := range def.Actions {
		e.observer.OnActionStart(ctx, exec, action, i)

		start := time.Now()
		result, err := e.dispatcher.Dispatch(ctx, action, exec.TriggerData)
		duration := time.Since(start)

		e.observer.OnActionCompleted(ctx, exec, action, i, err, duration)

		step := api.StepResult{
			ActionID:   action.ID,
			ActionType: action.Type,
			DurationMS: duration.Milliseconds(),
			Timestamp:  time.Now(),
		}
		if err != nil {
			step.Status = api.StepFailed
			step.Error = err.Error()
			exec.ExecutionLog = append(exec.ExecutionLog, step)
			return err
		}
		step.Status = api.StepSuccess
		step.Result = result
		exec.ExecutionLog = append(exec.ExecutionLog, step)
	}
	return nil
}

func (e *engineImpl) complete(ctx context.Context, exec *api.Execution, started time.Time) (*api.RunResult, error) {
	completed := time.Now()
	exec.Status = api.StatusCompleted
	exec.CompletedAt = &completed
	exec.DurationMS = completed.Sub(started).Milliseconds()
	exec.NextRetryAt = nil

	if err := e.executions.UpdateExecution(ctx, exec); err != nil {
		return nil, err
	}
	e.observer.OnExecutionCompleted(ctx, exec)

	return &api.RunResult{Outcome: api.OutcomeCompleted, Execution: exec}, nil
}

func (e *engineImpl) handleFailure(ctx context.Context, def api.WorkflowDefinition, exec *api.Execution, started time.Time, actionErr error) (*api.RunResult, error) {
	kind := classify.Classify(actionErr)

	policy := api.DefaultRetryPolicy()
	if def.Retry != nil {
		policy = def.Retry.Normalized()
	}

	now := time.Now()
	exec.RetryCount++
	exec.LastError = actionErr.Error()
	exec.ErrorDetails = &api.ErrorDetails{
		ErrorType: kind,
		Message:   actionErr.Error(),
		Timestamp: now,
	}
	exec.IsRetryable = policy.Retries(kind)

	if exec.IsRetryable && exec.RetryCount < policy.MaxAttempts {
		delay := backoff.NextDelay(exec.RetryCount, policy)
		next := now.Add(delay)
		exec.Status = api.StatusFailedPendingRetry
		exec.NextRetryAt = &next

		if err := e.executions.UpdateExecution(ctx, exec); err != nil {
			return nil, err
		}
		e.observer.OnRetryScheduled(ctx, exec, delay)

		return &api.RunResult{Outcome: api.OutcomeRetryScheduled, Execution: exec}, nil
	}

	// Non-retryable kind, or attempts exhausted.
	exec.Status = api.StatusDeadLettered
	exec.IsRetryable = false
	exec.NextRetryAt = nil
	exec.CompletedAt = &now
	exec.DurationMS = now.Sub(started).Milliseconds()

	if err := e.executions.UpdateExecution(ctx, exec); err != nil {
		return nil, err
	}
	if e.deadLetters != nil {
		if err := e.deadLetters.DeadLetter(ctx, exec.ID); err != nil {
			return nil, fmt.Errorf("dead-letter hand-off for execution %s: %w", exec.ID, err)
		}
	}
	e.observer.OnDeadLettered(ctx, exec, actionErr)

	return &api.RunResult{Outcome: api.OutcomeDeadLettered, Execution: exec}, nil
}
