// Package handlers provides the action handler registry and the built-in
// handlers the conveyor engine dispatches workflow actions to.
//
// A Registry maps action types to Handler implementations and is injected
// into the engine at construction. The built-in handlers cover the common
// commerce automation actions (email, SMS, inventory, courier assignment,
// webhooks, generic table mutations); each one calls out to a small
// collaborator interface so the actual delivery mechanism stays outside the
// engine, which treats handlers as black boxes.
//
// Handlers do not classify their own failures. They fail with errors whose
// message or attached HTTP status code carries enough signal for the
// engine's classifier: webhook failures preserve the status code via
// api.HTTPError, and config validation failures mention "invalid" so they
// land on the validation_error kind.
//
// For action types the engine does not ship, an ExternalInvoker can be
// installed: actions with an unrecognized type and a handler reference are
// invoked generically with their config merged over the trigger payload.
package handlers
