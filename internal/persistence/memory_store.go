package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mhersta/conveyor/pkg/api"
)

// InMemoryStore is a simple, goroutine-safe implementation of WorkflowStore,
// ExecutionStore, and DeadLetterSink backed by maps.
type InMemoryStore struct {
	mu          sync.RWMutex
	workflows   map[string]api.WorkflowDefinition
	executions  map[string]*api.Execution
	deadLetters []string
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		workflows:  make(map[string]api.WorkflowDefinition),
		executions: make(map[string]*api.Execution),
	}
}

// Ensure InMemoryStore implements the interfaces.
var _ WorkflowStore = (*InMemoryStore)(nil)

var _ ExecutionStore = (*InMemoryStore)(nil)

var _ DeadLetterSink = (*InMemoryStore)(nil)

func (s *InMemoryStore) SaveWorkflow(def api.WorkflowDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.workflows[def.ID] = def
	return nil
}

func (s *InMemoryStore) GetWorkflow(id string) (api.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	def, ok := s.workflows[id]
	if !ok {
		return api.WorkflowDefinition{}, api.ErrWorkflowNotFound
	}

	return def, nil
}

func (s *InMemoryStore) CreateExecution(ctx context.Context, exec *api.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.executions[exec.ID] = cloneExecution(exec)
	return nil
}

func (s *InMemoryStore) UpdateExecution(ctx context.Context, exec *api.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.executions[exec.ID]; !ok {
		return api.ErrExecutionNotFound
	}
	s.executions[exec.ID] = cloneExecution(exec)
	return nil
}

func (s *InMemoryStore) GetExecution(ctx context.Context, id string) (*api.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exec, ok := s.executions[id]
	if !ok {
		return nil, api.ErrExecutionNotFound
	}
	return cloneExecution(exec), nil
}

func (s *InMemoryStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*api.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*api.Execution
	for _, exec := range s.executions {
		if filter.WorkflowID != "" && exec.WorkflowID != filter.WorkflowID {
			continue
		}
		if filter.TenantID != "" && exec.TenantID != filter.TenantID {
			continue
		}
		if filter.Status != "" && exec.Status != filter.Status {
			continue
		}
		out = append(out, cloneExecution(exec))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryStore) ListDueRetries(ctx context.Context, now time.Time, limit int) ([]*api.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []*api.Execution
	for _, exec := range s.executions {
		if exec.Status != api.StatusFailedPendingRetry || exec.NextRetryAt == nil {
			continue
		}
		if exec.NextRetryAt.After(now) {
			continue
		}
		due = append(due, cloneExecution(exec))
	}

	sort.Slice(due, func(i, j int) bool { return due[i].NextRetryAt.Before(*due[j].NextRetryAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *InMemoryStore) DeadLetter(ctx context.Context, executionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deadLetters = append(s.deadLetters, executionID)
	return nil
}

// DeadLetteredIDs returns the execution IDs handed to the sink, in order.
// Primarily useful in tests and local setups.
func (s *InMemoryStore) DeadLetteredIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.deadLetters))
	copy(out, s.deadLetters)
	return out
}

// cloneExecution copies an execution so callers cannot mutate stored state
// (or vice versa) without going through the store.
func cloneExecution(exec *api.Execution) *api.Execution {
	c := *exec
	if exec.ExecutionLog != nil {
		c.ExecutionLog = make([]api.StepResult, len(exec.ExecutionLog))
		copy(c.ExecutionLog, exec.ExecutionLog)
	}
	if exec.TriggerData != nil {
		c.TriggerData = make(map[string]any, len(exec.TriggerData))
		for k, v := range exec.TriggerData {
			c.TriggerData[k] = v
		}
	}
	if exec.ErrorDetails != nil {
		d := *exec.ErrorDetails
		c.ErrorDetails = &d
	}
	if exec.NextRetryAt != nil {
		t := *exec.NextRetryAt
		c.NextRetryAt = &t
	}
	if exec.StartedAt != nil {
		t := *exec.StartedAt
		c.StartedAt = &t
	}
	if exec.CompletedAt != nil {
		t := *exec.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
