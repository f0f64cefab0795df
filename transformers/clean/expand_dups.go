package clean

import (
	"github.com/chazu/scour/flow"
	"github.com/chazu/scour/pkg/bytecode"
	"github.com/chazu/scour/transform"
)

// ExpandDups replaces a DUP of a constant or local load by a second copy of
// that push, so each copy gets a producer of its own. Pops of either copy
// can then be removed independently.
type ExpandDups struct {
	transform.Base
}

// NewExpandDups is the factory for ExpandDups.
func NewExpandDups() transform.Transformer { return &ExpandDups{} }

func (t *ExpandDups) Name() string { return "expand-dups" }

func (t *ExpandDups) Transform() error {
	return t.ForEachMethod(func(class *bytecode.Class, m *bytecode.Method) error {
		for _, insn := range m.Instructions.Slice() {
			if insn.Op != bytecode.OpDup {
				continue
			}
			mc := t.Context().MethodContext(class, m)
			if t.expand(mc.At(insn)) {
				t.MarkChange()
			}
		}
		return nil
	})
}

func (t *ExpandDups) expand(ctx flow.InsnContext) bool {
	f := ctx.Frame()
	if f == nil {
		return false
	}
	v := f.Peek(0)
	if !v.Known() || len(v.Producers) != 1 || v.Size != 1 {
		return false
	}
	src := v.Producers[0]
	if src != ctx.Insn().Prev() || !(src.Op.IsConstant() || src.Op.IsVarLoad()) {
		return false
	}

	consumers := ctx.Consumers()
	if len(consumers) == 0 {
		return false
	}
	for _, c := range consumers {
		if c.Op.IsPop() {
			return false
		}
	}

	ctx.Method().Instructions.Set(ctx.Insn(), src.Clone())
	return true
}
