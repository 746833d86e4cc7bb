package backend

import (
	"fmt"
	"sort"
)

// Router maps engine names to backend implementations with a fallback engine
// used when the requested name is empty or unknown.
type Router[T any] struct {
	backends map[string]T
	fallback string
}

// NewRouter creates a router over backends. The map is copied so later
// changes by the caller do not leak into the router.
func NewRouter[T any](backends map[string]T, fallback string) *Router[T] {
	owned := make(map[string]T, len(backends))
	for k, v := range backends {
		owned[k] = v
	}
	return &Router[T]{backends: owned, fallback: fallback}
}

// Route returns the backend for engine, falling back to the default engine.
// The resolved engine name is returned alongside the backend.
func (r *Router[T]) Route(engine string) (T, string, error) {
	if backend, ok := r.backends[engine]; ok {
		return backend, engine, nil
	}
	if backend, ok := r.backends[r.fallback]; ok {
		return backend, r.fallback, nil
	}
	var zero T
	return zero, "", fmt.Errorf("no backend for engine %q", engine)
}

// Has reports whether the router has a backend for the given engine name.
func (r *Router[T]) Has(engine string) bool {
	_, ok := r.backends[engine]
	return ok
}

// Fallback returns the default engine name.
func (r *Router[T]) Fallback() string {
	return r.fallback
}

// Engines returns the registered engine names in sorted order.
func (r *Router[T]) Engines() []string {
	names := make([]string, 0, len(r.backends))
	for k := range r.backends {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
