package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mhersta/conveyor/pkg/api"
)

func TestTransientFailureSchedulesRetry(t *testing.T) {
	ctx := context.Background()
	d := newScriptedDispatcher()
	d.failNext("reserve-stock", errors.New("request timeout after 10s"))
	eng, _ := newMemEngine(d, nil)

	if err := eng.RegisterWorkflow(orderWorkflow(nil)); err != nil {
		t.Fatalf("RegisterWorkflow failed: %v", err)
	}
	exec, err := eng.CreateExecution(ctx, "order-flow", "tenant-1", nil)
	if err != nil {
		t.Fatalf("CreateExecution failed: %v", err)
	}

	before := time.Now()
	res, err := eng.Execute(ctx, exec.ID)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Outcome != api.OutcomeRetryScheduled {
		t.Fatalf("outcome = %v, want retry_scheduled", res.Outcome)
	}

	got := res.Execution
	if got.Status != api.StatusFailedPendingRetry {
		t.Fatalf("status = %v, want failed_pending_retry", got.Status)
	}
	if got.RetryCount != 1 {
		t.Fatalf("retry count = %d, want 1", got.RetryCount)
	}
	if !got.IsRetryable {
		t.Fatal("is_retryable = false, want true")
	}
	if got.LastError == "" || got.ErrorDetails == nil {
		t.Fatalf("error fields missing: %+v", got)
	}
	if got.ErrorDetails.ErrorType != api.ErrTimeout {
		t.Fatalf("classified as %v, want timeout", got.ErrorDetails.ErrorType)
	}

	// First retry of the default policy is 5 seconds out.
	if got.NextRetryAt == nil {
		t.Fatal("next_retry_at not set")
	}
	wantAt := before.Add(5 * time.Second)
	if got.NextRetryAt.Before(wantAt.Add(-time.Second)) || got.NextRetryAt.After(wantAt.Add(2*time.Second)) {
		t.Fatalf("next_retry_at = %v, want ~%v", got.NextRetryAt, wantAt)
	}
	if got.CompletedAt != nil {
		t.Fatalf("completed_at set on non-terminal execution: %v", got.CompletedAt)
	}
}

func TestRetryEventuallySucceedsAndLogAccumulates(t *testing.T) {
	ctx := context.Background()
	d := newScriptedDispatcher()
	// First attempt fails on the second action; the retry succeeds.
	d.failNext("reserve-stock", errors.New("inventory service: connection refused"))
	eng, mem := newMemEngine(d, nil)

	if err := eng.RegisterWorkflow(orderWorkflow(nil)); err != nil {
		t.Fatalf("RegisterWorkflow failed: %v", err)
	}
	exec, err := eng.CreateExecution(ctx, "order-flow", "tenant-1", nil)
	if err != nil {
		t.Fatalf("CreateExecution failed: %v", err)
	}

	res, err := eng.Execute(ctx, exec.ID)
	if err != nil {
		t.Fatalf("first Execute failed: %v", err)
	}
	if res.Outcome != api.OutcomeRetryScheduled {
		t.Fatalf("first outcome = %v, want retry_scheduled", res.Outcome)
	}

	// The scheduler would wait for NextRetryAt; re-invoking directly
	// exercises the same path.
	res, err = eng.Execute(ctx, exec.ID)
	if err != nil {
		t.Fatalf("second Execute failed: %v", err)
	}
	if res.Outcome != api.OutcomeCompleted {
		t.Fatalf("second outcome = %v, want completed", res.Outcome)
	}

	got := res.Execution
	if got.Status != api.StatusCompleted {
		t.Fatalf("status = %v, want completed", got.Status)
	}
	// Retry count records past failures; completion does not reset it.
	if got.RetryCount != 1 {
		t.Fatalf("retry count = %d, want 1", got.RetryCount)
	}
	if got.NextRetryAt != nil {
		t.Fatalf("next_retry_at = %v, want nil on completion", got.NextRetryAt)
	}

	// Attempt 1 logged two entries (success + failure); attempt 2 re-ran all
	// three actions from the start and appended three more.
	log := got.ExecutionLog
	if len(log) != 5 {
		t.Fatalf("execution log has %d entries, want 5", len(log))
	}
	wantIDs := []string{"confirm-email", "reserve-stock", "confirm-email", "reserve-stock", "notify-partner"}
	for i, id := range wantIDs {
		if log[i].ActionID != id {
			t.Fatalf("log[%d].ActionID = %s, want %s (full log: %+v)", i, log[i].ActionID, id, log)
		}
	}
	if log[1].Status != api.StepFailed || log[3].Status != api.StepSuccess {
		t.Fatalf("log statuses wrong: %+v", log)
	}

	// Nothing was dead-lettered.
	if ids := mem.DeadLetteredIDs(); len(ids) != 0 {
		t.Fatalf("dead letters = %v, want none", ids)
	}
}

func TestRetriesExhaustedDeadLetters(t *testing.T) {
	ctx := context.Background()
	d := newScriptedDispatcher()
	d.failNext("confirm-email",
		errors.New("smtp: network unreachable"),
		errors.New("smtp: network unreachable"),
		errors.New("smtp: network unreachable"),
	)
	eng, mem := newMemEngine(d, nil)

	if err := eng.RegisterWorkflow(orderWorkflow(nil)); err != nil {
		t.Fatalf("RegisterWorkflow failed: %v", err)
	}
	exec, err := eng.CreateExecution(ctx, "order-flow", "tenant-1", nil)
	if err != nil {
		t.Fatalf("CreateExecution failed: %v", err)
	}

	// Default policy allows 3 attempts. Attempts 1 and 2 schedule retries,
	// attempt 3 dead-letters.
	for attempt := 1; attempt <= 2; attempt++ {
		res, err := eng.Execute(ctx, exec.ID)
		if err != nil {
			t.Fatalf("attempt %d failed: %v", attempt, err)
		}
		if res.Outcome != api.OutcomeRetryScheduled {
			t.Fatalf("attempt %d outcome = %v, want retry_scheduled", attempt, res.Outcome)
		}
		if res.Execution.RetryCount != attempt {
			t.Fatalf("attempt %d retry count = %d", attempt, res.Execution.RetryCount)
		}
	}

	res, err := eng.Execute(ctx, exec.ID)
	if err != nil {
		t.Fatalf("final attempt failed: %v", err)
	}
	if res.Outcome != api.OutcomeDeadLettered {
		t.Fatalf("final outcome = %v, want dead_lettered", res.Outcome)
	}

	got := res.Execution
	if got.Status != api.StatusDeadLettered {
		t.Fatalf("status = %v, want dead_lettered", got.Status)
	}
	if got.RetryCount != 3 {
		t.Fatalf("retry count = %d, want 3", got.RetryCount)
	}
	if got.IsRetryable {
		t.Fatal("is_retryable = true on dead-lettered execution")
	}
	if got.NextRetryAt != nil {
		t.Fatalf("next_retry_at = %v, want nil", got.NextRetryAt)
	}
	if got.CompletedAt == nil {
		t.Fatal("completed_at not set on dead-lettered execution")
	}

	// Handed to the sink exactly once.
	ids := mem.DeadLetteredIDs()
	if len(ids) != 1 || ids[0] != exec.ID {
		t.Fatalf("dead letters = %v, want [%s]", ids, exec.ID)
	}
}

func TestNonRetryableFailureDeadLettersImmediately(t *testing.T) {
	ctx := context.Background()
	d := newScriptedDispatcher()
	d.failNext("confirm-email", errors.New("unauthorized: api key revoked"))
	eng, mem := newMemEngine(d, nil)

	if err := eng.RegisterWorkflow(orderWorkflow(nil)); err != nil {
		t.Fatalf("RegisterWorkflow failed: %v", err)
	}
	exec, err := eng.CreateExecution(ctx, "order-flow", "tenant-1", nil)
	if err != nil {
		t.Fatalf("CreateExecution failed: %v", err)
	}

	res, err := eng.Execute(ctx, exec.ID)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	// Auth errors are not in the default retry set: no retry, even though
	// two attempts remain.
	if res.Outcome != api.OutcomeDeadLettered {
		t.Fatalf("outcome = %v, want dead_lettered", res.Outcome)
	}

	got := res.Execution
	if got.RetryCount != 1 {
		t.Fatalf("retry count = %d, want 1", got.RetryCount)
	}
	if got.ErrorDetails == nil || got.ErrorDetails.ErrorType != api.ErrAuth {
		t.Fatalf("error details = %+v, want auth_error", got.ErrorDetails)
	}
	if len(mem.DeadLetteredIDs()) != 1 {
		t.Fatalf("dead letters = %v", mem.DeadLetteredIDs())
	}
}

func TestCustomRetryPolicyNarrowsRetryableKinds(t *testing.T) {
	ctx := context.Background()
	d := newScriptedDispatcher()
	d.failNext("confirm-email", errors.New("rate limit exceeded"))
	eng, mem := newMemEngine(d, nil)

	// Only timeouts retry under this policy; a rate limit goes straight to
	// the dead-letter sink.
	wf := orderWorkflow(&api.RetryPolicy{
		MaxAttempts:         5,
		InitialDelaySeconds: 1,
		MaxDelaySeconds:     10,
		BackoffMultiplier:   2,
		RetryOnErrors:       []api.ErrorKind{api.ErrTimeout},
	})
	if err := eng.RegisterWorkflow(wf); err != nil {
		t.Fatalf("RegisterWorkflow failed: %v", err)
	}
	exec, err := eng.CreateExecution(ctx, "order-flow", "tenant-1", nil)
	if err != nil {
		t.Fatalf("CreateExecution failed: %v", err)
	}

	res, err := eng.Execute(ctx, exec.ID)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Outcome != api.OutcomeDeadLettered {
		t.Fatalf("outcome = %v, want dead_lettered", res.Outcome)
	}
	if len(mem.DeadLetteredIDs()) != 1 {
		t.Fatalf("dead letters = %v", mem.DeadLetteredIDs())
	}
}

func TestCustomRetryPolicyBackoffSchedule(t *testing.T) {
	ctx := context.Background()
	d := newScriptedDispatcher()
	d.failNext("confirm-email",
		errors.New("request timed out"),
		errors.New("request timed out"),
	)
	eng, _ := newMemEngine(d, nil)

	wf := orderWorkflow(&api.RetryPolicy{
		MaxAttempts:         4,
		InitialDelaySeconds: 10,
		MaxDelaySeconds:     60,
		BackoffMultiplier:   3,
	})
	if err := eng.RegisterWorkflow(wf); err != nil {
		t.Fatalf("RegisterWorkflow failed: %v", err)
	}
	exec, err := eng.CreateExecution(ctx, "order-flow", "tenant-1", nil)
	if err != nil {
		t.Fatalf("CreateExecution failed: %v", err)
	}

	// Retry 1: 10s out. Retry 2: 30s out.
	wantDelays := []time.Duration{10 * time.Second, 30 * time.Second}
	for i, wantDelay := range wantDelays {
		before := time.Now()
		res, err := eng.Execute(ctx, exec.ID)
		if err != nil {
			t.Fatalf("attempt %d failed: %v", i+1, err)
		}
		if res.Outcome != api.OutcomeRetryScheduled {
			t.Fatalf("attempt %d outcome = %v", i+1, res.Outcome)
		}
		at := res.Execution.NextRetryAt
		if at == nil {
			t.Fatalf("attempt %d: next_retry_at not set", i+1)
		}
		want := before.Add(wantDelay)
		if at.Before(want.Add(-time.Second)) || at.After(want.Add(2*time.Second)) {
			t.Fatalf("attempt %d next_retry_at = %v, want ~%v", i+1, at, want)
		}
	}
}

func TestTerminalExecutionIsNotReRun(t *testing.T) {
	ctx := context.Background()
	d := newScriptedDispatcher()
	eng, _ := newMemEngine(d, nil)

	if err := eng.RegisterWorkflow(orderWorkflow(nil)); err != nil {
		t.Fatalf("RegisterWorkflow failed: %v", err)
	}
	exec, err := eng.CreateExecution(ctx, "order-flow", "tenant-1", nil)
	if err != nil {
		t.Fatalf("CreateExecution failed: %v", err)
	}

	if _, err := eng.Execute(ctx, exec.ID); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	dispatchedOnce := len(d.calls)

	res, err := eng.Execute(ctx, exec.ID)
	if err != nil {
		t.Fatalf("re-Execute failed: %v", err)
	}
	if res.Outcome != api.OutcomeAlreadyTerminal {
		t.Fatalf("outcome = %v, want already_terminal", res.Outcome)
	}
	if len(d.calls) != dispatchedOnce {
		t.Fatalf("terminal re-run dispatched actions: %v", d.calls)
	}

	// State is untouched.
	got, err := eng.GetExecution(ctx, exec.ID)
	if err != nil {
		t.Fatalf("GetExecution failed: %v", err)
	}
	if got.Status != api.StatusCompleted || len(got.ExecutionLog) != 3 {
		t.Fatalf("terminal state mutated: %+v", got)
	}
}
