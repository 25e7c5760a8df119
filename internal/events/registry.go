package events

import (
	"context"
	"strings"
	"sync"
)

// Handler is the contract every event consumer implements, per spec.md
// §4.2.
type Handler interface {
	Name() string
	CanHandle(eventName string) bool
	Handle(ctx context.Context, evt Event) error
}

// Registry is a process-wide, read-mostly event_name -> []Handler map.
// Registration happens once at boot (spec.md §5); lookups afterward never
// mutate it and take only the shared read lock.
type Registry struct {
	mu       sync.RWMutex
	byEvent  map[string][]Handler
	byName   map[string]Handler
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byEvent: make(map[string][]Handler),
		byName:  make(map[string]Handler),
	}
}

// Register adds handler for every event name it claims to handle via
// CanHandle, scanning the supplied candidate event names. Registering a
// handler name that is already listed for an event adds no second entry,
// so each endpoint appears at most once per event name.
func (r *Registry) Register(handler Handler, candidateEventNames []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[handler.Name()] = handler
	for _, name := range candidateEventNames {
		if !handler.CanHandle(name) {
			continue
		}
		already := false
		for _, h := range r.byEvent[name] {
			if h.Name() == handler.Name() {
				already = true
				break
			}
		}
		if !already {
			r.byEvent[name] = append(r.byEvent[name], handler)
		}
	}
}

// EndpointsFor returns the consumer endpoints ("HandlerName") to fan out
// to for eventName, used by Store.Append's consumerEndpoints argument.
func (r *Registry) EndpointsFor(eventName string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handlers := r.byEvent[eventName]
	endpoints := make([]string, 0, len(handlers))
	for _, h := range handlers {
		endpoints = append(endpoints, h.Name())
	}
	return endpoints
}

// Resolve parses a consumer's endpoint as "name" or "name::detail" and
// returns the registered handler for it, intersected with eventName's
// claimed handlers. A miss is reported via ok=false so callers can mark
// the consumer Skipped with "Handler not found" (spec.md §4.2).
func (r *Registry) Resolve(endpoint, eventName string) (Handler, bool) {
	name := endpoint
	if idx := strings.Index(endpoint, "::"); idx >= 0 {
		name = endpoint[:idx]
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	if !handler.CanHandle(eventName) {
		return nil, false
	}
	return handler, true
}
