package persistence

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/mhersta/conveyor/pkg/api"
)

// deadLetterStore is what the backend conformance suite needs: every durable
// store implements the execution store, the sink, and an ID listing for
// assertions.
type deadLetterStore interface {
	ExecutionStore
	DeadLetterSink
	DeadLetteredIDs(ctx context.Context) ([]string, error)
}

// runExecutionStoreSuite exercises the ExecutionStore and DeadLetterSink
// contracts against a live backend. Backend tests call it after provisioning
// their store.
func runExecutionStoreSuite(t *testing.T, store deadLetterStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		retryAt := time.Now().Add(30 * time.Second).Truncate(time.Millisecond)
		exec := &api.Execution{
			ID:          "suite-rt",
			WorkflowID:  "wf-suite",
			TenantID:    "tenant-suite",
			Status:      api.StatusFailedPendingRetry,
			TriggerData: map[string]any{"order_id": "ord_7"},
			ExecutionLog: []api.StepResult{
				{ActionID: "a1", ActionType: api.ActionSendSMS, Status: api.StepFailed, Error: "timeout after 5s"},
			},
			RetryCount:  2,
			LastError:   "timeout after 5s",
			NextRetryAt: &retryAt,
			IsRetryable: true,
			ErrorDetails: &api.ErrorDetails{
				ErrorType: api.ErrTimeout,
				Message:   "timeout after 5s",
			},
		}

		if err := store.CreateExecution(ctx, exec); err != nil {
			t.Fatalf("CreateExecution failed: %v", err)
		}

		got, err := store.GetExecution(ctx, "suite-rt")
		if err != nil {
			t.Fatalf("GetExecution failed: %v", err)
		}
		if got.Status != api.StatusFailedPendingRetry || got.RetryCount != 2 || !got.IsRetryable {
			t.Fatalf("round trip lost state: %+v", got)
		}
		if got.TriggerData["order_id"] != "ord_7" {
			t.Fatalf("trigger data = %v", got.TriggerData)
		}
		if len(got.ExecutionLog) != 1 || got.ExecutionLog[0].Error != "timeout after 5s" {
			t.Fatalf("execution log = %+v", got.ExecutionLog)
		}
		if got.ErrorDetails == nil || got.ErrorDetails.ErrorType != api.ErrTimeout {
			t.Fatalf("error details = %+v", got.ErrorDetails)
		}
		if got.NextRetryAt == nil || !got.NextRetryAt.Equal(retryAt) {
			t.Fatalf("next retry at = %v, want %v", got.NextRetryAt, retryAt)
		}
	})

	t.Run("update transitions", func(t *testing.T) {
		exec, err := store.GetExecution(ctx, "suite-rt")
		if err != nil {
			t.Fatalf("GetExecution failed: %v", err)
		}

		exec.Status = api.StatusCompleted
		exec.NextRetryAt = nil
		exec.IsRetryable = false
		done := time.Now().Truncate(time.Millisecond)
		exec.CompletedAt = &done
		if err := store.UpdateExecution(ctx, exec); err != nil {
			t.Fatalf("UpdateExecution failed: %v", err)
		}

		got, err := store.GetExecution(ctx, "suite-rt")
		if err != nil {
			t.Fatalf("GetExecution failed: %v", err)
		}
		if got.Status != api.StatusCompleted || got.NextRetryAt != nil {
			t.Fatalf("transition not persisted: %+v", got)
		}
	})

	t.Run("not found", func(t *testing.T) {
		if _, err := store.GetExecution(ctx, "suite-missing"); !errors.Is(err, api.ErrExecutionNotFound) {
			t.Fatalf("GetExecution(missing) = %v, want ErrExecutionNotFound", err)
		}
		err := store.UpdateExecution(ctx, &api.Execution{ID: "suite-missing"})
		if !errors.Is(err, api.ErrExecutionNotFound) {
			t.Fatalf("UpdateExecution(missing) = %v, want ErrExecutionNotFound", err)
		}
	})

	t.Run("list filters", func(t *testing.T) {
		seed := []*api.Execution{
			{ID: "suite-l1", WorkflowID: "wf-list", TenantID: "t1", Status: api.StatusPending},
			{ID: "suite-l2", WorkflowID: "wf-list", TenantID: "t2", Status: api.StatusCompleted},
			{ID: "suite-l3", WorkflowID: "wf-other", TenantID: "t1", Status: api.StatusPending},
		}
		for _, e := range seed {
			if err := store.CreateExecution(ctx, e); err != nil {
				t.Fatalf("CreateExecution(%s) failed: %v", e.ID, err)
			}
		}

		got, err := store.ListExecutions(ctx, ExecutionFilter{WorkflowID: "wf-list"})
		if err != nil {
			t.Fatalf("ListExecutions failed: %v", err)
		}
		if ids := executionIDs(got); len(ids) != 2 || ids[0] != "suite-l1" || ids[1] != "suite-l2" {
			t.Fatalf("wf-list filter = %v", ids)
		}

		got, err = store.ListExecutions(ctx, ExecutionFilter{WorkflowID: "wf-list", TenantID: "t1", Status: api.StatusPending})
		if err != nil {
			t.Fatalf("ListExecutions failed: %v", err)
		}
		if ids := executionIDs(got); len(ids) != 1 || ids[0] != "suite-l1" {
			t.Fatalf("combined filter = %v", ids)
		}
	})

	t.Run("due retries", func(t *testing.T) {
		now := time.Now()
		past := now.Add(-time.Minute)
		future := now.Add(time.Hour)

		seed := []*api.Execution{
			{ID: "suite-due", WorkflowID: "wf-due", Status: api.StatusFailedPendingRetry, NextRetryAt: &past},
			{ID: "suite-later", WorkflowID: "wf-due", Status: api.StatusFailedPendingRetry, NextRetryAt: &future},
		}
		for _, e := range seed {
			if err := store.CreateExecution(ctx, e); err != nil {
				t.Fatalf("CreateExecution(%s) failed: %v", e.ID, err)
			}
		}

		due, err := store.ListDueRetries(ctx, now, 10)
		if err != nil {
			t.Fatalf("ListDueRetries failed: %v", err)
		}
		ids := executionIDs(due)
		if len(ids) != 1 || ids[0] != "suite-due" {
			t.Fatalf("due retries = %v, want [suite-due]", ids)
		}

		// Completing the execution removes it from the due set.
		exec, _ := store.GetExecution(ctx, "suite-due")
		exec.Status = api.StatusCompleted
		exec.NextRetryAt = nil
		if err := store.UpdateExecution(ctx, exec); err != nil {
			t.Fatalf("UpdateExecution failed: %v", err)
		}
		due, err = store.ListDueRetries(ctx, now, 10)
		if err != nil {
			t.Fatalf("ListDueRetries failed: %v", err)
		}
		if len(due) != 0 {
			t.Fatalf("due retries after completion = %v", executionIDs(due))
		}
	})

	t.Run("dead letter idempotent", func(t *testing.T) {
		if err := store.DeadLetter(ctx, "suite-dlq"); err != nil {
			t.Fatalf("DeadLetter failed: %v", err)
		}
		if err := store.DeadLetter(ctx, "suite-dlq"); err != nil {
			t.Fatalf("second DeadLetter failed: %v", err)
		}

		ids, err := store.DeadLetteredIDs(ctx)
		if err != nil {
			t.Fatalf("DeadLetteredIDs failed: %v", err)
		}
		count := 0
		for _, id := range ids {
			if id == "suite-dlq" {
				count++
			}
		}
		if count != 1 {
			t.Fatalf("suite-dlq recorded %d times, want 1", count)
		}
	})
}

func executionIDs(execs []*api.Execution) []string {
	ids := make([]string, 0, len(execs))
	for _, e := range execs {
		ids = append(ids, e.ID)
	}
	sort.Strings(ids)
	return ids
}
