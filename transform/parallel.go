package transform

import (
	"golang.org/x/sync/errgroup"

	"github.com/chazu/scour/pkg/bytecode"
)

type unit struct {
	class  *bytecode.Class
	method *bytecode.Method
}

// ForEachClass calls fn for every class in scope, at most Context().Workers
// at a time. All started calls finish before the first error is returned.
func (b *Base) ForEachClass(fn func(*bytecode.Class) error) error {
	var g errgroup.Group
	g.SetLimit(b.workers())
	for _, class := range b.scope.classes {
		g.Go(func() error {
			return protect(b.name, class.Name, func() error { return fn(class) })
		})
	}
	return g.Wait()
}

// ForEachMethod calls fn for every method of every class in scope, at most
// Context().Workers at a time. A method is only ever handled by one call,
// so fn may edit it freely. A panic in fn is returned as an error naming
// the method.
func (b *Base) ForEachMethod(fn func(*bytecode.Class, *bytecode.Method) error) error {
	var units []unit
	for _, class := range b.scope.classes {
		for _, m := range class.Methods {
			units = append(units, unit{class, m})
		}
	}

	var g errgroup.Group
	g.SetLimit(b.workers())
	for _, u := range units {
		g.Go(func() error {
			return protect(b.name, u.class.Name+"."+u.method.String(), func() error { return fn(u.class, u.method) })
		})
	}
	return g.Wait()
}

func (b *Base) workers() int {
	if b.ctx == nil {
		return 1
	}
	return max(b.ctx.Workers, 1)
}
