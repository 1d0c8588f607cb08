package runtime

import (
	"sort"
)

// Environment provides lexical scoping for eva runtime values.
type Environment struct {
	values map[string]Value
	parent *Environment
}

// NewEnvironment creates a new environment, optionally nested under a parent.
func NewEnvironment(parent *Environment) *Environment {
	return &Environment{
		values: make(map[string]Value),
		parent: parent,
	}
}

// Parent exposes the lexical parent (nil when global).
func (e *Environment) Parent() *Environment {
	return e.parent
}

// Depth counts the parents between this scope and the root.
func (e *Environment) Depth() int {
	depth := 0
	for p := e.parent; p != nil; p = p.parent {
		depth++
	}
	return depth
}

// Snapshot returns a copy of the bindings held directly in this scope.
func (e *Environment) Snapshot() map[string]Value {
	out := make(map[string]Value, len(e.values))
	for k, v := range e.values {
		out[k] = v
	}
	return out
}

// Define inserts or overwrites a binding in the current scope.
func (e *Environment) Define(name string, value Value) Value {
	e.values[name] = value
	return value
}

// Assign updates an existing binding in the first scope where it appears.
func (e *Environment) Assign(name string, value Value) (Value, error) {
	scope, err := e.Resolve(name)
	if err != nil {
		return nil, err
	}
	scope.values[name] = value
	return value, nil
}

// Get retrieves a binding, searching outward through the scope chain.
func (e *Environment) Get(name string) (Value, error) {
	scope, err := e.Resolve(name)
	if err != nil {
		return nil, err
	}
	return scope.values[name], nil
}

// Resolve finds the innermost scope that defines name.
func (e *Environment) Resolve(name string) (*Environment, error) {
	for scope := e; scope != nil; scope = scope.parent {
		if _, ok := scope.values[name]; ok {
			return scope, nil
		}
	}
	return nil, &UnresolvedVariableError{Name: name}
}

// Has reports whether name resolves anywhere in the chain.
func (e *Environment) Has(name string) bool {
	_, err := e.Resolve(name)
	return err == nil
}

// Keys returns the bindings in sorted order (useful for determinism in tests).
func (e *Environment) Keys() []string {
	keys := make([]string, 0, len(e.values))
	for k := range e.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Extend creates a new child scope.
func (e *Environment) Extend() *Environment {
	return NewEnvironment(e)
}
