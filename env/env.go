// Package env implements NAAb's lexical environment chain (§3, §4.5):
// name->value bindings with a parent pointer, closure capture by reference.
package env

import (
	"fmt"

	"github.com/naab-lang/naab/value"
)

// Environment is one frame in the lexical chain. Created on function entry,
// block entry, and module load (§3); reclaimed when its last reference drops
// or by the GC if part of a cycle.
type Environment struct {
	parent *Environment
	vars   map[string]*value.Value

	// IsModuleRoot marks an environment that hangs directly off a module's
	// root frame, exposed through member access on the module value (§4.5).
	IsModuleRoot bool
	ModuleName   string
}

// New creates a root environment with no parent (e.g. a module's root frame).
func New() *Environment {
	return &Environment{vars: map[string]*value.Value{}}
}

// Child creates a new environment chained to parent (function/block entry).
func Child(parent *Environment) *Environment {
	return &Environment{parent: parent, vars: map[string]*value.Value{}}
}

// Define binds name in the innermost (this) frame, shadowing any outer
// binding of the same name (§4.5).
func (e *Environment) Define(name string, v *value.Value) {
	e.vars[name] = v
}

// Get resolves name by walking toward the root.
func (e *Environment) Get(name string) (*value.Value, bool) {
	for cur := e; cur != nil; cur = cur.parent {
		if v, ok := cur.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Assign mutates the innermost frame that already binds name; it is an
// error if the name is undefined anywhere in the chain (§4.5).
func (e *Environment) Assign(name string, v *value.Value) error {
	for cur := e; cur != nil; cur = cur.parent {
		if _, ok := cur.vars[name]; ok {
			cur.vars[name] = v
			return nil
		}
	}
	return fmt.Errorf("undefined name %q", name)
}

// Parent returns the enclosing environment, or nil at the root.
func (e *Environment) Parent() *Environment { return e.parent }

// Names returns the names bound directly in this frame (not ancestors),
// used by "Did you mean?" suggestions (§4.3) and module member listing.
func (e *Environment) Names() []string {
	names := make([]string, 0, len(e.vars))
	for n := range e.vars {
		names = append(names, n)
	}
	return names
}

// AllNames returns every name visible from e, innermost frame's bindings
// shadowing outer ones in the result (used for "Did you mean?" over
// identifiers in scope, §4.3).
func (e *Environment) AllNames() []string {
	seen := map[string]bool{}
	var out []string
	for cur := e; cur != nil; cur = cur.parent {
		for n := range cur.vars {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	return out
}

// Roots returns every value bound anywhere in the chain, used by the GC to
// seed its mark phase from a live environment (§4.7).
func (e *Environment) Roots() []*value.Value {
	var out []*value.Value
	for cur := e; cur != nil; cur = cur.parent {
		for _, v := range cur.vars {
			out = append(out, v)
		}
	}
	return out
}
