package job

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Handler defines the interface for executing a specific job kind.
// Domain packages implement this interface to handle their job kinds,
// allowing the job infrastructure to remain decoupled from domain logic.
//
// Design: Dependency Inversion
// - job package defines this abstraction
// - domain packages provide implementations
// - worker pool executes jobs through handlers without knowing domain details
type Handler interface {
	// Execute runs the job and returns a result document or an error.
	// The handler should:
	// - Decode job.Payload into a handler-specific struct
	// - Return a result to record on the job (may be nil)
	// - Return nil error on success
	//
	// Context cancellation: Handlers MUST respect ctx.Done() and exit
	// promptly when the deadline passes or the pool shuts down.
	Execute(ctx context.Context, job *Job) (json.RawMessage, error)

	// Kind returns the job kind this handler serves
	// (e.g., "invoice.reminder"). Used for registration and routing.
	Kind() string
}

// PayloadValidator is implemented by handlers that can reject malformed
// payloads at enqueue time, before any job row is written.
type PayloadValidator interface {
	ValidatePayload(payload json.RawMessage) error
}

// Registry manages job handlers by kind.
// Thread-safe for concurrent handler registration and lookup.
type Registry struct {
	handlers map[string]Handler
	mu       sync.RWMutex
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register adds a handler using its kind.
// Panics if a handler is already registered for that kind.
func (r *Registry) Register(handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kind := handler.Kind()
	if _, exists := r.handlers[kind]; exists {
		panic(fmt.Sprintf("handler already registered for kind: %s", kind))
	}
	r.handlers[kind] = handler
}

// Get retrieves the handler for a job kind.
// Returns nil if no handler is registered.
func (r *Registry) Get(kind string) Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[kind]
}

// Has checks if a handler is registered for a kind.
func (r *Registry) Has(kind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.handlers[kind]
	return exists
}

// Kinds returns all registered job kinds.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.handlers))
	for kind := range r.handlers {
		kinds = append(kinds, kind)
	}
	return kinds
}
