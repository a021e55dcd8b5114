package queue

import (
	"context"
	"sync"
)

// Handler processes one work item delivery. It must complete or return an
// error within the engine's handler timeout; the context is cancelled when
// the timeout elapses. Engine shutdown does not cancel in-flight handlers.
type Handler interface {
	Handle(ctx context.Context, recipient string, payload map[string]any) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, recipient string, payload map[string]any) error

func (f HandlerFunc) Handle(ctx context.Context, recipient string, payload map[string]any) error {
	return f(ctx, recipient, payload)
}

// Registry maps work item type tags to handlers. Re-registering a tag
// overwrites silently: last writer wins.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register associates a type tag with a handler.
func (r *Registry) Register(itemType string, handler Handler) {
	r.mu.Lock()
	r.handlers[itemType] = handler
	r.mu.Unlock()
}

// Get returns the handler for a type tag. The second return is false when
// no handler is registered for the tag.
func (r *Registry) Get(itemType string) (Handler, bool) {
	r.mu.RLock()
	handler, ok := r.handlers[itemType]
	r.mu.RUnlock()
	return handler, ok
}

// Types returns the registered type tags.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.handlers))
	for itemType := range r.handlers {
		types = append(types, itemType)
	}
	return types
}
