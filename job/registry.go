package job

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Performer executes one job. Args are the job's decoded JSON arguments.
type Performer interface {
	Perform(ctx context.Context, args ...any) error
}

// PerformerFunc adapts a function to Performer.
type PerformerFunc func(ctx context.Context, args ...any) error

// Perform calls f.
func (f PerformerFunc) Perform(ctx context.Context, args ...any) error {
	return f(ctx, args...)
}

// Factory returns a fresh Performer for one execution.
type Factory func() Performer

// Identifiable is implemented by Performers that want to know which job
// and batch they are running for.
type Identifiable interface {
	SetIdentity(jid, bid string)
}

// UnknownTypeError reports a fetched jobtype with no registered factory.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("job: unknown job type %q", e.Type)
}

type entry struct {
	factory  Factory
	defaults Options
}

// Registry maps jobtype names to factories and default options.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewRegistry creates an empty job registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]entry),
	}
}

// Register binds jobtype to factory. A later registration of the same
// name replaces the earlier one.
func (r *Registry) Register(jobtype string, factory Factory, opts ...Option) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[jobtype] = entry{factory: factory, defaults: NewOptions(opts...)}
}

// RegisterFunc binds jobtype to a stateless function.
func (r *Registry) RegisterFunc(jobtype string, fn PerformerFunc, opts ...Option) {
	r.Register(jobtype, func() Performer { return fn }, opts...)
}

// Lookup returns the factory for jobtype, or an *UnknownTypeError.
func (r *Registry) Lookup(jobtype string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[jobtype]
	if !ok {
		return nil, &UnknownTypeError{Type: jobtype}
	}
	return e.factory, nil
}

// Defaults returns the options registered for jobtype. Unregistered
// types have empty defaults, so producers may push jobs for workers in
// other processes.
func (r *Registry) Defaults(jobtype string) Options {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[jobtype].defaults
}

// Names returns all registered jobtypes in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
