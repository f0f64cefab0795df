package clean

import (
	"github.com/chazu/scour/match"
	"github.com/chazu/scour/pkg/bytecode"
	"github.com/chazu/scour/transform"
)

var nopPattern = match.Opcode(bytecode.OpNop)

// Nop removes NOP instructions.
type Nop struct {
	transform.Base
}

// NewNop is the factory for Nop.
func NewNop() transform.Transformer { return &Nop{} }

func (t *Nop) Name() string { return "nop" }

func (t *Nop) Transform() error {
	return t.ForEachMethod(func(class *bytecode.Class, m *bytecode.Method) error {
		mc := t.Context().MethodContext(class, m)
		for res := range nopPattern.FindAllMatches(mc) {
			res.RemoveAll()
			t.MarkChange()
		}
		return nil
	})
}
