// Package worker provides the retry scheduler that drives conveyor
// executions forward.
//
// The engine itself never schedules anything: a failed execution is parked
// in failed_pending_retry with a NextRetryAt timestamp, and something has to
// re-invoke the engine once that time has elapsed. The Worker is that
// something. It polls the execution store for due retries and calls
// Engine.Execute for each, in due order.
//
// A Worker also exposes Submit, the trigger-subsystem entry point that
// creates a pending execution and runs its first attempt.
//
// # Scheduling model
//
// Each poll claims a bounded batch of due executions and processes them
// sequentially. A failure on one execution is logged and does not stop the
// batch. The worker assumes at most one scheduler polls a given store;
// there is no lease or distributed lock between competing workers, so two
// workers racing on the same execution can double-invoke it.
//
// # Usage
//
//	w := worker.New(engine, store, worker.WithPollInterval(2*time.Second))
//	go w.Run(ctx)
//
// Run polls until the context is cancelled, treating cancellation as a
// clean shutdown. RunOnce is exposed separately for callers that want to
// drive the scan loop themselves (tests, cron-style invocations).
package worker
