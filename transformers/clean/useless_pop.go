package clean

import (
	"github.com/tliron/commonlog"

	"github.com/chazu/scour/flow"
	"github.com/chazu/scour/pkg/analysis"
	"github.com/chazu/scour/pkg/bytecode"
	"github.com/chazu/scour/transform"
)

// UselessPop removes values that are pushed only to be popped again,
// together with the POP or POP2 that discards them.
//
// A value is removable when every instruction that may have produced it is
// a constant push, a local load or a DUP/DUP2, and every consumer of those
// producers is itself removed. Removing a DUP also tries to remove the
// duplicated value when nothing else reads it.
type UselessPop struct {
	transform.Base

	popped *transform.Set[*bytecode.Instruction]
}

// NewUselessPop is the factory for UselessPop.
func NewUselessPop() transform.Transformer {
	return &UselessPop{popped: transform.NewSet[*bytecode.Instruction]()}
}

func (t *UselessPop) Name() string { return "useless-pop" }

func (t *UselessPop) Dependencies() []transform.Factory {
	return []transform.Factory{NewExpandDups}
}

func (t *UselessPop) Transform() error {
	return t.ForEachMethod(func(class *bytecode.Class, m *bytecode.Method) error {
		for _, insn := range m.Instructions.Slice() {
			if !insn.Op.IsPop() || !m.Instructions.Contains(insn) {
				continue
			}
			mc := t.Context().MethodContext(class, m)
			if t.tryRemove(mc.At(insn)) {
				t.MarkChange()
			}
		}
		return nil
	})
}

// tryRemove plans and applies the removal of one pop and the values it
// discards. A POP2 over two narrow values of which only one is removable
// becomes a POP.
func (t *UselessPop) tryRemove(ctx flow.InsnContext) bool {
	f := ctx.Frame()
	if f == nil {
		return false
	}
	pop := ctx.Insn()
	r := newRemoval(ctx.MethodContext(), t.popped, t.Log())
	r.add(pop)

	if analysis.ConsumedValues(pop, f) == 1 {
		if !r.kill(f.Peek(0)) {
			return false
		}
		r.apply(nil)
		return true
	}

	first, second := f.Peek(0), f.Peek(1)
	if !r.consistent(pop, first, second) {
		return false
	}

	mark := r.mark()
	okFirst := r.kill(first)
	if !okFirst {
		r.rollback(mark)
	}
	mark = r.mark()
	okSecond := r.kill(second)
	if !okSecond {
		r.rollback(mark)
	}

	switch {
	case okFirst && okSecond:
		r.apply(nil)
		return true
	case okFirst && !r.touches(second), okSecond && !r.touches(first):
		r.apply(pop)
		return true
	}
	return false
}

// removal is the set of instructions planned for deletion from one method.
// Each producer in it has all of its consumers in it too, and each pop in it
// has the producers of all the values it discards in it, so deleting the
// set leaves the stack balanced on every path.
type removal struct {
	mc     *flow.MethodContext
	popped *transform.Set[*bytecode.Instruction]
	log    commonlog.Logger

	planned map[*bytecode.Instruction]bool
	order   []*bytecode.Instruction
}

func newRemoval(mc *flow.MethodContext, popped *transform.Set[*bytecode.Instruction], log commonlog.Logger) *removal {
	return &removal{
		mc:      mc,
		popped:  popped,
		log:     log,
		planned: make(map[*bytecode.Instruction]bool),
	}
}

func (r *removal) add(insn *bytecode.Instruction) {
	r.planned[insn] = true
	r.order = append(r.order, insn)
}

func (r *removal) mark() int { return len(r.order) }

func (r *removal) rollback(mark int) {
	for _, insn := range r.order[mark:] {
		delete(r.planned, insn)
	}
	r.order = r.order[:mark]
}

// touches reports whether any producer of v is planned.
func (r *removal) touches(v *analysis.SourceValue) bool {
	if v == nil {
		return false
	}
	for _, p := range v.Producers {
		if r.planned[p] {
			return true
		}
	}
	return false
}

func removableProducer(insn *bytecode.Instruction) bool {
	switch {
	case insn.Op.IsConstant(), insn.Op.IsVarLoad():
		return true
	case insn.Op == bytecode.OpDup, insn.Op == bytecode.OpDup2:
		return true
	}
	return false
}

// kill plans the removal of every producer of v. On failure the plan may
// hold partial additions; callers roll back to a mark.
func (r *removal) kill(v *analysis.SourceValue) bool {
	if !v.Known() {
		return false
	}
	for _, p := range v.Producers {
		if r.planned[p] {
			continue
		}
		if r.popped.Contains(p) || !removableProducer(p) {
			return false
		}
		r.add(p)

		if p.Op.IsDup() {
			r.cascade(p, v)
		}

		for _, c := range r.mc.Consumers(p) {
			if r.planned[c] {
				continue
			}
			if !c.Op.IsPop() || !r.addPop(c) {
				return false
			}
		}
	}
	return true
}

// addPop plans the removal of another pop reading a planned value, along
// with everything it discards.
func (r *removal) addPop(pop *bytecode.Instruction) bool {
	r.add(pop)
	f := r.mc.Frame(pop)
	if f == nil {
		return false
	}
	for k := range analysis.ConsumedValues(pop, f) {
		if !r.kill(f.Peek(k)) {
			return false
		}
	}
	return true
}

// cascade tries to also remove the values a planned DUP copied. Whether it
// succeeds or not, the DUP alone stays removable.
func (r *removal) cascade(dup *bytecode.Instruction, copied *analysis.SourceValue) {
	f := r.mc.Frame(dup)
	if f == nil {
		return
	}
	n := analysis.ConsumedValues(dup, f)
	if n == 1 && copied.CopiedFrom != nil && copied.CopiedFrom != f.Peek(0) {
		r.log.Warningf("%s.%s: %s copies %s but its frame holds %s, keeping the source",
			r.mc.Class().Name, r.mc.Method(), dup, copied.CopiedFrom, f.Peek(0))
		return
	}

	mark := r.mark()
	for k := range n {
		if !r.kill(f.Peek(k)) {
			r.rollback(mark)
			return
		}
	}
}

// consistent checks the two narrow values under a POP2. When the top one is
// a DUP copy, its recorded source must be the value beneath it.
func (r *removal) consistent(pop *bytecode.Instruction, first, second *analysis.SourceValue) bool {
	if first == nil || second == nil {
		return false
	}
	if len(first.Producers) != 1 || first.Producers[0].Op != bytecode.OpDup || first.CopiedFrom == nil {
		return true
	}
	if first.CopiedFrom != second {
		r.log.Warningf("%s.%s: %s pops a copy of %s over %s, skipping",
			r.mc.Class().Name, r.mc.Method(), pop, first.CopiedFrom, second)
		return false
	}
	return true
}

// apply deletes the plan as one list edit. When keep is set it is replaced
// by a POP instead of being deleted.
func (r *removal) apply(keep *bytecode.Instruction) {
	list := r.mc.Method().Instructions
	insns := make([]*bytecode.Instruction, 0, len(r.order))
	for _, insn := range r.order {
		if insn != keep {
			insns = append(insns, insn)
		}
	}
	if keep != nil {
		list.Set(keep, bytecode.NewInsn(bytecode.OpPop))
	}
	list.RemoveAll(insns)

	for _, insn := range insns {
		if !insn.Op.IsPop() {
			r.popped.Add(insn)
		}
	}
}
