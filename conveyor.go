package conveyor

import (
	"context"
	"database/sql"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/mhersta/conveyor/internal/engine"
	"github.com/mhersta/conveyor/internal/persistence"
	"github.com/mhersta/conveyor/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Engine               = api.Engine
	Dispatcher           = api.Dispatcher
	WorkflowDefinition   = api.WorkflowDefinition
	Action               = api.Action
	ActionType           = api.ActionType
	RetryPolicy          = api.RetryPolicy
	Execution            = api.Execution
	StepResult           = api.StepResult
	ErrorDetails         = api.ErrorDetails
	ErrorKind            = api.ErrorKind
	Status               = api.Status
	RunOutcome           = api.RunOutcome
	RunResult            = api.RunResult
	ExecutionListOptions = api.ExecutionListOptions
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
	HTTPError            = api.HTTPError
)

// Re-export common observer helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
)

// Re-export status values for convenience.

const (
	StatusPending            = api.StatusPending
	StatusRunning            = api.StatusRunning
	StatusCompleted          = api.StatusCompleted
	StatusFailedPendingRetry = api.StatusFailedPendingRetry
	StatusDeadLettered       = api.StatusDeadLettered
)

// Re-export the run outcomes.

const (
	OutcomeCompleted       = api.OutcomeCompleted
	OutcomeRetryScheduled  = api.OutcomeRetryScheduled
	OutcomeDeadLettered    = api.OutcomeDeadLettered
	OutcomeAlreadyTerminal = api.OutcomeAlreadyTerminal
)

// Re-export the error kinds, mainly for RetryBuilder.RetryOn.

const (
	ErrTimeout    = api.ErrTimeout
	ErrNetwork    = api.ErrNetwork
	ErrRateLimit  = api.ErrRateLimit
	ErrServer     = api.ErrServer
	ErrAuth       = api.ErrAuth
	ErrValidation = api.ErrValidation
	ErrNotFound   = api.ErrNotFound
	ErrUnknown    = api.ErrUnknown
)

// Re-export the sentinel errors.

var (
	ErrWorkflowNotFound  = api.ErrWorkflowNotFound
	ErrExecutionNotFound = api.ErrExecutionNotFound
)

// Engine constructors
// These wrap the internal/engine package so external callers
// never need to import internal packages.

// NewInMemoryEngine returns an Engine backed entirely by in-memory stores.
// Actions are dispatched through d, typically a handlers.Registry.
func NewInMemoryEngine(d Dispatcher) Engine {
	return engine.NewInMemoryEngine(d)
}

// NewInMemoryEngineWithObserver returns an in-memory Engine with the given Observer.
func NewInMemoryEngineWithObserver(d Dispatcher, obs Observer) Engine {
	return engine.NewInMemoryEngineWithObserver(d, obs)
}

// NewSQLiteEngine returns an Engine that persists executions and the
// dead-letter table in a SQLite database. Workflow definitions are kept
// in-memory.
func NewSQLiteEngine(db *sql.DB, d Dispatcher) (Engine, error) {
	return engine.NewSQLiteEngine(db, d)
}

// NewSQLiteEngineWithObserver returns a SQLite-backed Engine with the given Observer.
func NewSQLiteEngineWithObserver(db *sql.DB, d Dispatcher, obs Observer) (Engine, error) {
	return engine.NewSQLiteEngineWithObserver(db, d, obs)
}

// NewPostgresEngine returns an Engine that persists executions in PostgreSQL.
func NewPostgresEngine(db *sql.DB, d Dispatcher) (Engine, error) {
	return engine.NewPostgresEngine(db, d)
}

// NewPostgresEngineWithObserver returns a Postgres-backed Engine with the given Observer.
func NewPostgresEngineWithObserver(db *sql.DB, d Dispatcher, obs Observer) (Engine, error) {
	return engine.NewPostgresEngineWithObserver(db, d, obs)
}

// NewRedisEngine returns an Engine that persists executions in Redis.
func NewRedisEngine(client *redis.Client, d Dispatcher) Engine {
	return engine.NewRedisEngine(client, d)
}

// NewRedisEngineWithObserver returns a Redis-backed Engine with the given Observer.
func NewRedisEngineWithObserver(client *redis.Client, d Dispatcher, obs Observer) Engine {
	return engine.NewRedisEngineWithObserver(client, d, obs)
}

// NewMongoEngine returns an Engine that persists executions in MongoDB.
func NewMongoEngine(db *mongo.Database, d Dispatcher) Engine {
	return engine.NewMongoEngine(db, d)
}

// NewMongoEngineWithObserver returns a Mongo-backed Engine with the given Observer.
func NewMongoEngineWithObserver(db *mongo.Database, d Dispatcher, obs Observer) Engine {
	return engine.NewMongoEngineWithObserver(db, d, obs)
}

// Convenience helpers that just forward to the underlying Engine.

// Execute runs one attempt of the given execution.
func Execute(ctx context.Context, eng Engine, executionID string) (*RunResult, error) {
	return eng.Execute(ctx, executionID)
}

// CreateExecution creates a pending execution for a registered workflow.
func CreateExecution(ctx context.Context, eng Engine, workflowID, tenantID string, trigger map[string]any) (*Execution, error) {
	return eng.CreateExecution(ctx, workflowID, tenantID, trigger)
}

// GetExecution fetches an execution by ID.
func GetExecution(ctx context.Context, eng Engine, id string) (*Execution, error) {
	return eng.GetExecution(ctx, id)
}

// ListExecutions lists executions according to the given options.
func ListExecutions(ctx context.Context, eng Engine, opts ExecutionListOptions) ([]*Execution, error) {
	return eng.ListExecutions(ctx, opts)
}

// persistence stores, re-exported for callers that wire workers themselves.

// ExecutionStore is the persistence interface the worker polls.
type ExecutionStore = persistence.ExecutionStore

// NewSQLiteStore returns a SQLite-backed execution store and dead-letter
// sink over the given database.
func NewSQLiteStore(db *sql.DB) (*persistence.SQLiteStore, error) {
	return persistence.NewSQLiteStore(db)
}

// NewPostgresStore returns a Postgres-backed execution store and dead-letter
// sink over the given database.
func NewPostgresStore(db *sql.DB) (*persistence.PostgresStore, error) {
	return persistence.NewPostgresStore(db)
}

// NewRedisStore returns a Redis-backed execution store and dead-letter sink.
func NewRedisStore(client *redis.Client, prefix string) *persistence.RedisStore {
	return persistence.NewRedisStore(client, prefix)
}

// NewMongoStore returns a Mongo-backed execution store and dead-letter sink.
func NewMongoStore(db *mongo.Database) *persistence.MongoStore {
	return persistence.NewMongoStore(db)
}

// NewInMemoryStore returns the in-memory store used by NewInMemoryEngine.
func NewInMemoryStore() *persistence.InMemoryStore {
	return persistence.NewInMemoryStore()
}
