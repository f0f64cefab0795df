package flow

import (
	"github.com/chazu/scour/pkg/analysis"
	"github.com/chazu/scour/pkg/bytecode"
)

// InsnContext pairs an instruction with the MethodContext it was looked up
// in. It is a small value meant to be created and dropped freely.
type InsnContext struct {
	insn *bytecode.Instruction
	mc   *MethodContext
}

// Insn returns the instruction.
func (c InsnContext) Insn() *bytecode.Instruction { return c.insn }

// MethodContext returns the owning method context.
func (c InsnContext) MethodContext() *MethodContext { return c.mc }

// Method returns the method containing the instruction.
func (c InsnContext) Method() *bytecode.Method { return c.mc.method }

// Class returns the class containing the method.
func (c InsnContext) Class() *bytecode.Class { return c.mc.class }

// Frame returns the frame before the instruction, or nil.
func (c InsnContext) Frame() *analysis.Frame { return c.mc.Frame(c.insn) }

// Consumers returns the instructions that read values this one produces.
func (c InsnContext) Consumers() []*bytecode.Instruction { return c.mc.Consumers(c.insn) }

// Of returns a cursor for another instruction of the same method.
func (c InsnContext) Of(insn *bytecode.Instruction) InsnContext {
	return InsnContext{insn: insn, mc: c.mc}
}

// ConsumedValues returns the number of stack values the instruction pops.
func (c InsnContext) ConsumedValues() int {
	return analysis.ConsumedValues(c.insn, c.Frame())
}

// PlacePops inserts, immediately before the instruction, one POP or POP2 for
// each stack value it consumes, from the top of the stack down. It returns
// the inserted instructions, or nil when the frame is unavailable.
//
// The instruction list changes, so contexts derived from the current
// MethodContext are stale afterwards.
func (c InsnContext) PlacePops() []*bytecode.Instruction {
	f := c.Frame()
	if f == nil {
		return nil
	}
	n := c.ConsumedValues()
	pops := make([]*bytecode.Instruction, 0, n)
	list := c.mc.method.Instructions
	for i := range n {
		pop := bytecode.NewInsn(bytecode.OpPop)
		if v := f.Peek(i); v != nil && v.Size == 2 {
			pop.Op = bytecode.OpPop2
		}
		list.InsertBefore(c.insn, pop)
		pops = append(pops, pop)
	}
	return pops
}

func (c InsnContext) String() string {
	return c.insn.String()
}
