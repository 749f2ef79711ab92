package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mhersta/conveyor/pkg/api"
)

// recordingObserver captures the event sequence for assertions.
type recordingObserver struct {
	api.NoopObserver
	events []string
}

func (o *recordingObserver) OnExecutionStart(ctx context.Context, exec *api.Execution) {
	o.events = append(o.events, "start")
}

func (o *recordingObserver) OnExecutionCompleted(ctx context.Context, exec *api.Execution) {
	o.events = append(o.events, "completed")
}

func (o *recordingObserver) OnRetryScheduled(ctx context.Context, exec *api.Execution, delay time.Duration) {
	o.events = append(o.events, fmt.Sprintf("retry(%s)", delay))
}

func (o *recordingObserver) OnDeadLettered(ctx context.Context, exec *api.Execution, err error) {
	o.events = append(o.events, "dead_lettered")
}

func (o *recordingObserver) OnActionStart(ctx context.Context, exec *api.Execution, action api.Action, idx int) {
	o.events = append(o.events, fmt.Sprintf("action_start[%d]", idx))
}

func (o *recordingObserver) OnActionCompleted(ctx context.Context, exec *api.Execution, action api.Action, idx int, err error, d time.Duration) {
	status := "ok"
	if err != nil {
		status = "err"
	}
	o.events = append(o.events, fmt.Sprintf("action_done[%d]=%s", idx, status))
}

func TestObserverSeesCompletedLifecycle(t *testing.T) {
	ctx := context.Background()
	obs := &recordingObserver{}
	eng, _ := newMemEngine(newScriptedDispatcher(), obs)

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

	want := []string{
		"start",
		"action_start[0]", "action_done[0]=ok",
		"action_start[1]", "action_done[1]=ok",
		"action_start[2]", "action_done[2]=ok",
		"completed",
	}
	if len(obs.events) != len(want) {
		t.Fatalf("events = %v, want %v", obs.events, want)
	}
	for i := range want {
		if obs.events[i] != want[i] {
			t.Fatalf("events = %v, want %v", obs.events, want)
		}
	}
}

func TestObserverSeesRetryAndDeadLetter(t *testing.T) {
	ctx := context.Background()
	obs := &recordingObserver{}
	d := newScriptedDispatcher()
	d.failNext("confirm-email", errors.New("unauthorized"))
	eng, _ := newMemEngine(d, obs)

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

	want := []string{"start", "action_start[0]", "action_done[0]=err", "dead_lettered"}
	if len(obs.events) != len(want) {
		t.Fatalf("events = %v, want %v", obs.events, want)
	}
	for i := range want {
		if obs.events[i] != want[i] {
			t.Fatalf("events = %v, want %v", obs.events, want)
		}
	}
}

func TestBasicMetricsCountLifecycle(t *testing.T) {
	ctx := context.Background()
	metrics := &api.BasicMetrics{}
	d := newScriptedDispatcher()
	d.failNext("reserve-stock", errors.New("connection refused"))
	eng, _ := newMemEngine(d, metrics)

	if err := eng.RegisterWorkflow(orderWorkflow(nil)); err != nil {
		t.Fatalf("RegisterWorkflow failed: %v", err)
	}
	exec, err := eng.CreateExecution(ctx, "order-flow", "tenant-1", nil)
	if err != nil {
		t.Fatalf("CreateExecution failed: %v", err)
	}

	// Attempt 1 fails on the second action; attempt 2 completes.
	if _, err := eng.Execute(ctx, exec.ID); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if _, err := eng.Execute(ctx, exec.ID); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	snap := metrics.Snapshot()
	if snap.ExecutionsStarted != 2 {
		t.Fatalf("executions started = %d, want 2", snap.ExecutionsStarted)
	}
	if snap.ExecutionsCompleted != 1 {
		t.Fatalf("executions completed = %d, want 1", snap.ExecutionsCompleted)
	}
	if snap.RetriesScheduled != 1 {
		t.Fatalf("retries scheduled = %d, want 1", snap.RetriesScheduled)
	}
	if snap.DeadLettered != 0 {
		t.Fatalf("dead lettered = %d, want 0", snap.DeadLettered)
	}
	// Attempt 1: one success, one failure. Attempt 2: three successes.
	if snap.ActionsSucceeded != 4 || snap.ActionsFailed != 1 {
		t.Fatalf("actions = %d ok / %d failed, want 4/1", snap.ActionsSucceeded, snap.ActionsFailed)
	}
}

func TestCompositeObserverFansOut(t *testing.T) {
	ctx := context.Background()
	a := &recordingObserver{}
	b := &recordingObserver{}
	eng, _ := newMemEngine(newScriptedDispatcher(), api.NewCompositeObserver(a, nil, b))

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

	if len(a.events) == 0 || len(a.events) != len(b.events) {
		t.Fatalf("observers diverged: %v vs %v", a.events, b.events)
	}
}
