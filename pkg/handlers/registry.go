package handlers

import (
	"context"
	"fmt"
	"sync"

	"dario.cat/mergo"

	"github.com/mhersta/conveyor/pkg/api"
)

// Handler executes one action type against its collaborator.
//
// Handlers receive the action's free-form config and the execution's trigger
// payload, and return an opaque result recorded in the execution log. A
// failed handler returns an error whose message or attached status code is
// informative enough for classification (HTTP failures must preserve the
// status code, see api.HTTPError).
type Handler interface {
	Execute(ctx context.Context, config map[string]any, trigger map[string]any) (any, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, config map[string]any, trigger map[string]any) (any, error)

func (f HandlerFunc) Execute(ctx context.Context, config map[string]any, trigger map[string]any) (any, error) {
	return f(ctx, config, trigger)
}

// ExternalInvoker calls an externally registered handler by name. It backs
// the escape hatch for action types the engine does not ship a handler for.
type ExternalInvoker interface {
	Invoke(ctx context.Context, name string, payload map[string]any) (any, error)
}

// ExternalInvokerFunc adapts a function to the ExternalInvoker interface.
type ExternalInvokerFunc func(ctx context.Context, name string, payload map[string]any) (any, error)

func (f ExternalInvokerFunc) Invoke(ctx context.Context, name string, payload map[string]any) (any, error) {
	return f(ctx, name, payload)
}

// Registry maps action types to handlers and implements api.Dispatcher.
// It is resolved once at engine construction and injected, rather than
// looked up through ambient state.
type Registry struct {
	mu       sync.RWMutex
	handlers map[api.ActionType]Handler
	external ExternalInvoker
}

var _ api.Dispatcher = (*Registry)(nil)

// NewRegistry creates an empty Registry. Use Register / SetExternalInvoker
// to populate it, or NewDefaultRegistry to get the built-in handlers wired
// to a set of collaborators.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[api.ActionType]Handler)}
}

// Register installs (or replaces) the handler for an action type.
func (r *Registry) Register(t api.ActionType, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[t] = h
}

// SetExternalInvoker installs the invoker used for actions whose type has no
// registered handler but which name an external handler reference.
func (r *Registry) SetExternalInvoker(inv ExternalInvoker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.external = inv
}

// Dispatch invokes the handler registered for action.Type.
//
// When no handler matches and the action names an external handler
// reference, the invoker is called with the trigger payload merged with the
// action's config (config wins on conflicts). Otherwise dispatch fails with
// an unknown-action-type error.
//
// Dispatch does not classify or swallow handler errors; they propagate to
// the engine as-is.
func (r *Registry) Dispatch(ctx context.Context, action api.Action, trigger map[string]any) (any, error) {
	r.mu.RLock()
	h, ok := r.handlers[action.Type]
	external := r.external
	r.mu.RUnlock()

	if ok {
		return h.Execute(ctx, action.Config, trigger)
	}

	if action.EdgeFunction != "" && external != nil {
		payload, err := mergeConfig(action.Config, trigger)
		if err != nil {
			return nil, err
		}
		return external.Invoke(ctx, action.EdgeFunction, payload)
	}

	return nil, fmt.Errorf("unknown action type: %s", action.Type)
}

// mergeConfig overlays the action config on top of the trigger payload.
func mergeConfig(config, trigger map[string]any) (map[string]any, error) {
	merged := make(map[string]any, len(trigger)+len(config))
	if err := mergo.Merge(&merged, trigger); err != nil {
		return nil, err
	}
	if err := mergo.Merge(&merged, config, mergo.WithOverride); err != nil {
		return nil, err
	}
	return merged, nil
}

// Collaborators bundles the external services the built-in handlers call.
// Nil entries leave the corresponding action type unregistered.
type Collaborators struct {
	Email     EmailSender
	SMS       SMSSender
	Inventory InventoryStore
	Courier   CourierService
	Webhook   HTTPDoer
	Database  TableStore
	External  ExternalInvoker
}

// NewDefaultRegistry wires the built-in handlers for every non-nil
// collaborator.
func NewDefaultRegistry(c Collaborators) *Registry {
	r := NewRegistry()
	if c.Email != nil {
		r.Register(api.ActionSendEmail, NewEmailHandler(c.Email))
	}
	if c.SMS != nil {
		r.Register(api.ActionSendSMS, NewSMSHandler(c.SMS))
	}
	if c.Inventory != nil {
		r.Register(api.ActionUpdateInventory, NewInventoryHandler(c.Inventory))
	}
	if c.Courier != nil {
		r.Register(api.ActionAssignCourier, NewCourierHandler(c.Courier))
	}
	if c.Webhook != nil {
		r.Register(api.ActionCallWebhook, NewWebhookHandler(c.Webhook))
	}
	if c.Database != nil {
		r.Register(api.ActionDatabaseQuery, NewDatabaseHandler(c.Database))
	}
	if c.External != nil {
		r.SetExternalInvoker(c.External)
	}
	return r
}
