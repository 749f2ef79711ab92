// Package conveyor provides a lightweight, embeddable workflow execution
// engine for commerce and delivery automation.
//
// Conveyor runs ordered sequences of automation actions (notifications,
// inventory updates, courier assignment, webhooks, generic external
// handlers) in response to business triggers, and survives partial failure
// without losing the audit trail. It runs fully in Go, supports multiple
// persistence backends, and integrates cleanly into existing codebases.
//
// # Core Concepts
//
// The programming model is intentionally small:
//
//  1. WorkflowDefinition — an ordered action sequence plus a retry policy.
//  2. Execution — one attempt-tracked run of a workflow against a trigger
//     payload, with an append-only step log.
//  3. Engine — loads an execution, dispatches its actions in order, and
//     persists the outcome: completed, scheduled for retry, or dead-lettered.
//  4. handlers.Registry — maps action types to handlers backed by injected
//     collaborators (email, SMS, inventory, courier, HTTP, database).
//  5. worker.Worker — polls for due retries and re-invokes the engine.
//
// # Failure model
//
// The first failing action stops the sequence. The failure is classified
// into a closed set of error kinds; transient kinds (timeouts, network
// errors, rate limits, server errors) are retried with capped exponential
// backoff, everything else goes straight to the dead-letter sink for
// operator review. Retries re-run the whole action sequence from the start
// and append to the execution log, so action handlers should be idempotent.
//
// # Quick start
//
//	reg := handlers.NewDefaultRegistry(handlers.Collaborators{
//	    Email:   mailer,
//	    Webhook: &http.Client{Timeout: 10 * time.Second},
//	})
//	eng := conveyor.NewInMemoryEngine(reg)
//
//	conveyor.New("order-confirmation").
//	    SendEmail("confirm", map[string]any{
//	        "to": "customer@example.com", "subject": "Order received", "body": "Thanks!",
//	    }).
//	    MustRegister(eng)
//
//	exec, _ := eng.CreateExecution(ctx, "order-confirmation", "tenant-1",
//	    map[string]any{"order_id": "ord_123"})
//	res, err := eng.Execute(ctx, exec.ID)
//
// Durable setups swap the in-memory engine for a SQLite, Postgres, Redis,
// or MongoDB backed one and run a worker.Worker for retries; see the
// examples directory.
package conveyor
