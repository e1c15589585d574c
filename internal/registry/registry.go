// Package registry is the explicit, statically-typed substitute for
// reflection-based dynamic import: a remote interpreter dispatches
// (module, func) call requests through a Registry instead of
// getattr(__import__(module), func).
package registry

import "fmt"

// Func is a callable a Registry can dispatch to. args/results are whatever
// the caller and callee agree to marshal; Registry does not interpret them.
type Func func(args []interface{}) (interface{}, error)

// Registry is a (module, function) -> Func dispatch table.
type Registry struct {
	funcs map[string]map[string]Func
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{funcs: map[string]map[string]Func{}}
}

// Register installs fn under module.name, overwriting any previous
// registration at that key.
func (r *Registry) Register(module, name string, fn Func) {
	m, ok := r.funcs[module]
	if !ok {
		m = map[string]Func{}
		r.funcs[module] = m
	}
	m[name] = fn
}

// ErrNotFound is returned by Lookup when (module, name) has no registration.
type ErrNotFound struct {
	Module, Name string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("registry: no function registered for %s.%s", e.Module, e.Name)
}

// Lookup returns the Func registered for module.name, or ErrNotFound.
func (r *Registry) Lookup(module, name string) (Func, error) {
	m, ok := r.funcs[module]
	if !ok {
		return nil, &ErrNotFound{Module: module, Name: name}
	}
	fn, ok := m[name]
	if !ok {
		return nil, &ErrNotFound{Module: module, Name: name}
	}
	return fn, nil
}

// Names lists every module this registry has at least one registration in,
// in no particular order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.funcs))
	for m := range r.funcs {
		names = append(names, m)
	}
	return names
}
