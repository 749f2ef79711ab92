// Package api contains the core building blocks used by the conveyor
// workflow execution engine. It defines the data model for workflow
// definitions, executions, and the append-only execution log, along with the
// error taxonomy and the interfaces the engine is assembled from.
//
// Most users interact with the higher-level conveyor package, which
// re-exports selected types and helpers from this package. The api package is
// intended for custom integrations or contributors extending the engine
// itself.
//
// # Concepts
//
// The api package centers around a small set of concepts:
//
//   - Workflow definitions and actions
//   - Executions and step results
//   - Retry policies and the error taxonomy
//   - Observability
//
// # Workflow Definitions
//
// A workflow definition describes an automation as an ordered sequence of
// actions plus an optional retry policy. Definitions are immutable per run
// and are registered with an engine before executions can reference them.
//
// # Executions
//
// An execution is one attempt-tracked run of a workflow definition against a
// trigger payload. The engine mutates executions exclusively; each persisted
// transition carries the full accumulated execution log so the audit trail is
// never lost, even on permanent failure. Terminal executions (completed or
// dead-lettered) are retained and never mutated again.
//
// # Retry Policies and Error Kinds
//
// Failures are classified into a closed set of ErrorKind values. A workflow's
// RetryPolicy names which kinds are worth retrying and shapes the exponential
// backoff between attempts. A retried execution re-runs all of its actions
// from the start, so action handlers are expected to be idempotent.
//
// # Observability
//
// The Observer interface receives execution and action lifecycle events.
// Ready-made implementations are provided for structured logging (slog) and
// basic in-memory metrics, along with a helper to combine observers.
package api
