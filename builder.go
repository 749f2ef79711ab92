package conveyor

import (
	"fmt"

	"github.com/mhersta/conveyor/pkg/api"
)

// WorkflowBuilder provides a fluent API for defining workflows:
//
//	wf := conveyor.New("order-confirmation").
//	    SendEmail("confirm", map[string]any{
//	        "to":      "customer@example.com",
//	        "subject": "Order received",
//	        "body":    "Thanks!",
//	    }).
//	    CallWebhook("notify-erp", map[string]any{
//	        "url": "https://erp.internal/hooks/orders",
//	    }).
//	    WithRetry(conveyor.Retry(5).WithExponentialBackoff(10, 2.0, 600).Policy())
//
//	if err := wf.Register(engine); err != nil {
//	    log.Fatal(err)
//	}
type WorkflowBuilder struct {
	def api.WorkflowDefinition
}

// New creates a new workflow builder with the given workflow ID.
func New(id string) *WorkflowBuilder {
	return &WorkflowBuilder{
		def: api.WorkflowDefinition{
			ID:      id,
			Actions: make([]api.Action, 0),
		},
	}
}

// ID returns the workflow ID.
func (b *WorkflowBuilder) ID() string {
	return b.def.ID
}

// Tenant sets the owning tenant.
func (b *WorkflowBuilder) Tenant(tenantID string) *WorkflowBuilder {
	b.def.TenantID = tenantID
	return b
}

// Named sets a human-readable workflow name.
func (b *WorkflowBuilder) Named(name string) *WorkflowBuilder {
	b.def.Name = name
	return b
}

// Definition returns the underlying WorkflowDefinition.
// Typically used when interacting with lower-level APIs.
func (b *WorkflowBuilder) Definition() WorkflowDefinition {
	return b.def
}

// Action appends an action of the given type.
func (b *WorkflowBuilder) Action(id string, t ActionType, config map[string]any) *WorkflowBuilder {
	if id == "" {
		panic("conveyor: action ID must not be empty")
	}
	if t == "" {
		panic(fmt.Sprintf("conveyor: action %q has no type", id))
	}

	b.def.Actions = append(b.def.Actions, api.Action{
		ID:     id,
		Type:   t,
		Config: config,
	})
	return b
}

// External appends an action dispatched to a named external handler.
func (b *WorkflowBuilder) External(id string, handlerRef string, config map[string]any) *WorkflowBuilder {
	if id == "" {
		panic("conveyor: action ID must not be empty")
	}
	if handlerRef == "" {
		panic(fmt.Sprintf("conveyor: action %q has no handler reference", id))
	}

	b.def.Actions = append(b.def.Actions, api.Action{
		ID:           id,
		Type:         api.ActionType("external:" + handlerRef),
		Config:       config,
		EdgeFunction: handlerRef,
	})
	return b
}

// Shorthands for the built-in action types.

func (b *WorkflowBuilder) SendEmail(id string, config map[string]any) *WorkflowBuilder {
	return b.Action(id, api.ActionSendEmail, config)
}

func (b *WorkflowBuilder) SendSMS(id string, config map[string]any) *WorkflowBuilder {
	return b.Action(id, api.ActionSendSMS, config)
}

func (b *WorkflowBuilder) UpdateInventory(id string, config map[string]any) *WorkflowBuilder {
	return b.Action(id, api.ActionUpdateInventory, config)
}

func (b *WorkflowBuilder) AssignCourier(id string, config map[string]any) *WorkflowBuilder {
	return b.Action(id, api.ActionAssignCourier, config)
}

func (b *WorkflowBuilder) CallWebhook(id string, config map[string]any) *WorkflowBuilder {
	return b.Action(id, api.ActionCallWebhook, config)
}

func (b *WorkflowBuilder) DatabaseQuery(id string, config map[string]any) *WorkflowBuilder {
	return b.Action(id, api.ActionDatabaseQuery, config)
}

// WithRetry sets the workflow's retry policy.
func (b *WorkflowBuilder) WithRetry(policy RetryPolicy) *WorkflowBuilder {
	// Make a copy so callers can mutate their RetryPolicy after the call
	// without affecting the stored definition.
	p := policy
	b.def.Retry = &p
	return b
}

// Register registers the built workflow with the given engine.
func (b *WorkflowBuilder) Register(eng Engine) error {
	return eng.RegisterWorkflow(b.def)
}

// MustRegister is like Register but panics on error.
// Useful for initialization in main().
func (b *WorkflowBuilder) MustRegister(eng Engine) {
	if err := b.Register(eng); err != nil {
		panic(err)
	}
}
