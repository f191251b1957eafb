// Package engine executes jobs: it resolves operation names through a
// registry populated at startup and drives the commit/backoff state machine
// against the queue store.
package engine

import (
	"context"
	"sort"
	"sync"
)

// Operation is an invocable registered under a dotted name. Args arrive in
// order; kwargs additionally carry "priority" and "fairness" injected by the
// executor.
type Operation func(ctx context.Context, args []any, kwargs map[string]any) (any, error)

// Registry maps operation names to invocables. It is safe for concurrent use;
// registration normally happens once at startup.
type Registry struct {
	mu  sync.RWMutex
	ops map[string]Operation
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]Operation)}
}

// Register binds name to op, replacing any previous binding.
func (r *Registry) Register(name string, op Operation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[name] = op
}

// Resolve returns the operation bound to name. Returns false if none is.
func (r *Registry) Resolve(name string) (Operation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.ops[name]
	return op, ok
}

// Names returns all registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
