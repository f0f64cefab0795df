package transform

import (
	"slices"

	"github.com/chazu/scour/flow"
	"github.com/chazu/scour/pkg/bytecode"
)

// Scope is the immutable set of classes a run may read and modify.
type Scope struct {
	classes []*bytecode.Class
}

// NewScope creates a scope over the given classes.
func NewScope(classes ...*bytecode.Class) Scope {
	return Scope{classes: slices.Clone(classes)}
}

// ScopeOf creates a scope over every class in pool.
func ScopeOf(pool *bytecode.ClassPool) Scope {
	return Scope{classes: pool.Classes()}
}

// Classes returns the classes in scope order. The caller may modify the
// returned slice.
func (s Scope) Classes() []*bytecode.Class {
	return slices.Clone(s.classes)
}

// Len returns the number of classes in scope.
func (s Scope) Len() int {
	return len(s.classes)
}

// Contains reports whether class is in scope.
func (s Scope) Contains(class *bytecode.Class) bool {
	return slices.Contains(s.classes, class)
}

// Filter returns the narrower scope of classes for which keep returns true.
func (s Scope) Filter(keep func(*bytecode.Class) bool) Scope {
	var out []*bytecode.Class
	for _, c := range s.classes {
		if keep(c) {
			out = append(out, c)
		}
	}
	return Scope{classes: out}
}

// Context is shared by every transformer of one pipeline run.
type Context struct {
	Classes *bytecode.ClassPool
	Methods *flow.Cache
	Workers int
	Stats   *Stats
}

// NewContext creates a context over pool. Workers bounds the number of
// methods processed concurrently; values below one mean one.
func NewContext(pool *bytecode.ClassPool, workers int) *Context {
	return &Context{
		Classes: pool,
		Methods: flow.NewCache(),
		Workers: max(workers, 1),
		Stats:   NewStats(),
	}
}

// MethodContext returns the current dataflow facts for method.
func (c *Context) MethodContext(class *bytecode.Class, method *bytecode.Method) *flow.MethodContext {
	if c.Methods == nil {
		return flow.NewMethodContext(class, method)
	}
	return c.Methods.Of(class, method)
}
