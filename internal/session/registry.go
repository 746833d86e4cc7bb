package session

import (
	"context"
	"fmt"
	"sort"
)

// Handler processes one client frame type.
type Handler interface {
	Type() string
	Handle(ctx context.Context, out Sender, st State, msg ClientMessage) State
}

// Flusher sends a partial window through the coach.
type Flusher interface {
	Flush(ctx context.Context, out Sender, st State, trigger string) State
}

// Registry maps frame types to handlers. It is filled at startup and only
// read afterwards.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry registers handlers in order. It panics on a duplicate type,
// like http.ServeMux does for duplicate patterns.
func NewRegistry(handlers ...Handler) *Registry {
	r := &Registry{handlers: make(map[string]Handler, len(handlers))}
	for _, h := range handlers {
		r.Register(h)
	}
	return r
}

// Register adds h. Call only during construction.
func (r *Registry) Register(h Handler) {
	if _, dup := r.handlers[h.Type()]; dup {
		panic(fmt.Sprintf("session: duplicate handler for %q", h.Type()))
	}
	r.handlers[h.Type()] = h
}

// Lookup returns the handler for a frame type.
func (r *Registry) Lookup(msgType string) (Handler, bool) {
	h, ok := r.handlers[msgType]
	return h, ok
}

// Types returns the registered frame types, sorted.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Default builds the auth, metrics and audio handlers over d. The metrics
// handler is also returned as the idle Flusher.
func Default(d Deps) (*Registry, Flusher) {
	m := NewMetricsHandler(d)
	return NewRegistry(NewAuthHandler(d), m, NewAudioHandler(d)), m
}
