// Package transform runs units of work over a scope of classes.
//
// A transformer embeds Base and implements Transform. It is always executed
// through Run, which gives it its scope and the shared pipeline Context,
// runs its declared dependencies first and records its change count:
//
//	type Cleaner struct{ transform.Base }
//
//	func (c *Cleaner) Name() string { return "cleaner" }
//
//	func (c *Cleaner) Transform() error {
//		return c.ForEachMethod(func(class *bytecode.Class, m *bytecode.Method) error {
//			...
//			c.MarkChange()
//			return nil
//		})
//	}
//
//	changes, err := transform.Run(func() transform.Transformer { return &Cleaner{} }, scope, ctx)
package transform

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/tliron/commonlog"

	"github.com/chazu/scour/pkg/bytecode"
)

// Transformer is a unit of work. Implementations embed Base.
type Transformer interface {
	Name() string
	Transform() error

	state() *Base
}

// Factory creates a fresh transformer for each run.
type Factory func() Transformer

// Dependent is implemented by transformers that need other transformers to
// run over the same scope before them.
type Dependent interface {
	Dependencies() []Factory
}

// Base carries the run state of a transformer: its scope, the shared
// context and the number of changes made so far.
type Base struct {
	name    string
	scope   Scope
	ctx     *Context
	changes atomic.Int64
	log     commonlog.Logger
}

func (b *Base) state() *Base { return b }

// MarkChange records one meaningful edit.
func (b *Base) MarkChange() {
	b.changes.Add(1)
}

// Changes returns the number of edits recorded so far, including those of
// sub-transformers started with Run.
func (b *Base) Changes() int {
	return int(b.changes.Load())
}

// Scope returns the classes this run may read and modify.
func (b *Base) Scope() Scope { return b.scope }

// Context returns the shared pipeline context.
func (b *Base) Context() *Context { return b.ctx }

// Classes is shorthand for Scope().Classes().
func (b *Base) Classes() []*bytecode.Class { return b.scope.Classes() }

// Log returns the transformer's logger.
func (b *Base) Log() commonlog.Logger { return b.log }

// Run executes a sub-transformer over the same scope and context and adds
// its changes to this transformer's count.
func (b *Base) Run(factory Factory) (int, error) {
	n, err := Run(factory, b.scope, b.ctx)
	b.changes.Add(int64(n))
	return n, err
}

// Run executes the transformer made by factory over scope. Dependencies are
// run first, in order, and their changes are included in the returned count.
// The first failure is returned as is.
func Run(factory Factory, scope Scope, ctx *Context) (int, error) {
	if ctx == nil {
		return 0, errors.New("transform: nil context")
	}
	t := factory()
	b := t.state()
	b.name = t.Name()
	b.scope = scope
	b.ctx = ctx
	b.log = commonlog.GetLogger("scour.transform." + b.name)

	start := time.Now()
	err := runDependencies(t, b)
	if err == nil {
		err = t.Transform()
	}
	elapsed := time.Since(start)

	changes := b.Changes()
	ctx.Stats.record(b.name, changes, elapsed, err)
	if err != nil {
		b.log.Errorf("failed after %d changes: %s", changes, err)
		return changes, err
	}
	b.log.Debugf("%d changes over %d classes in %s", changes, scope.Len(), elapsed)
	return changes, nil
}

func runDependencies(t Transformer, b *Base) error {
	d, ok := t.(Dependent)
	if !ok {
		return nil
	}
	for _, dep := range d.Dependencies() {
		if _, err := b.Run(dep); err != nil {
			return err
		}
	}
	return nil
}

// funcTransformer adapts a function to the Transformer interface.
type funcTransformer struct {
	Base
	name string
	fn   func(*Base) error
}

func (f *funcTransformer) Name() string     { return f.name }
func (f *funcTransformer) Transform() error { return f.fn(&f.Base) }

// New returns a factory for a transformer whose work is fn.
func New(name string, fn func(*Base) error) Factory {
	return func() Transformer {
		return &funcTransformer{name: name, fn: fn}
	}
}

// protect runs fn and converts a panic into an error naming the unit.
func protect(name, unit string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic in %s: %v", name, unit, r)
		}
	}()
	return fn()
}
