// Package analysis computes per-instruction stack frames whose slots record
// which instructions produced each value.
package analysis

import (
	"errors"
	"fmt"

	"github.com/chazu/scour/pkg/bytecode"
)

var (
	ErrStackUnderflow = errors.New("stack underflow")
	ErrStackHeight    = errors.New("inconsistent stack height at merge")
	ErrValueWidth     = errors.New("value width mismatch")
	ErrFallOff        = errors.New("execution falls off the end of the code")
	ErrBadTarget      = errors.New("jump target outside method")
)

// Analyze runs a forward dataflow analysis over m and returns one frame per
// instruction, aligned with m.Instructions.Slice(). Frames of unreachable
// instructions are nil. Any error makes the whole result unusable.
func Analyze(m *bytecode.Method) ([]*Frame, error) {
	insns := m.Instructions.Slice()
	if len(insns) == 0 {
		return nil, nil
	}

	a := &analyzer{
		method: m,
		insns:  insns,
		index:  make(map[*bytecode.Instruction]int, len(insns)),
		frames: make([]*Frame, len(insns)),
		queued: make([]bool, len(insns)),
	}
	for i, insn := range insns {
		a.index[insn] = i
	}
	if err := a.collectHandlers(); err != nil {
		return nil, err
	}
	if err := a.run(); err != nil {
		return nil, err
	}
	return a.frames, nil
}

// handlerRange is an exception handler resolved to instruction indexes.
type handlerRange struct {
	start, end, target int
	exception          *SourceValue
}

type analyzer struct {
	method   *bytecode.Method
	insns    []*bytecode.Instruction
	index    map[*bytecode.Instruction]int
	frames   []*Frame
	handlers []handlerRange
	work     []int
	queued   []bool
}

func (a *analyzer) collectHandlers() error {
	for _, h := range a.method.Handlers {
		start, ok1 := a.index[h.Start]
		end, ok2 := a.index[h.End]
		target, ok3 := a.index[h.Handler]
		if !ok1 || !ok2 || !ok3 {
			return fmt.Errorf("%w: exception handler", ErrBadTarget)
		}
		a.handlers = append(a.handlers, handlerRange{
			start:     start,
			end:       end,
			target:    target,
			exception: NewValue(1),
		})
	}
	return nil
}

// entryFrame holds the receiver and parameters, none of which has a
// producer inside the method.
func (a *analyzer) entryFrame() *Frame {
	m := a.method
	nlocals := max(m.MaxLocals, m.ParamSlots())
	for _, insn := range a.insns {
		switch bytecode.GetOpcodeInfo(insn.Op).Operand {
		case bytecode.OperandVar, bytecode.OperandIInc:
			nlocals = max(nlocals, insn.Var+2)
		}
	}

	f := newFrame(nlocals)
	slot := 0
	if !m.Static {
		f.Locals[slot] = NewValue(1)
		slot++
	}
	for _, p := range m.Params {
		f.Locals[slot] = NewValue(p.Size())
		slot += p.Size()
	}
	return f
}

func (a *analyzer) run() error {
	a.frames[0] = a.entryFrame()
	a.enqueue(0)

	for len(a.work) > 0 {
		i := a.work[len(a.work)-1]
		a.work = a.work[:len(a.work)-1]
		a.queued[i] = false

		insn := a.insns[i]
		before := a.frames[i]
		after, err := execute(insn, before)
		if err != nil {
			return fmt.Errorf("%s at %d: %w", insn, i, err)
		}

		if !insn.Op.IsTerminal() {
			if i+1 >= len(a.insns) {
				return fmt.Errorf("%s at %d: %w", insn, i, ErrFallOff)
			}
			if err := a.mergeInto(i+1, after); err != nil {
				return err
			}
		}
		if insn.Op.IsJump() {
			target, ok := a.index[insn.Target]
			if !ok {
				return fmt.Errorf("%s at %d: %w", insn, i, ErrBadTarget)
			}
			if err := a.mergeInto(target, after); err != nil {
				return err
			}
		}

		for _, h := range a.handlers {
			if i < h.start || i >= h.end {
				continue
			}
			for _, locals := range [][]*SourceValue{before.Locals, after.Locals} {
				caught := &Frame{Locals: locals, Stack: []*SourceValue{h.exception}}
				if err := a.mergeInto(h.target, caught); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// mergeInto joins in into the frame at index j and queues j if it changed.
func (a *analyzer) mergeInto(j int, in *Frame) error {
	if a.frames[j] == nil {
		a.frames[j] = in.Clone()
		a.enqueue(j)
		return nil
	}
	changed, err := a.frames[j].merge(in)
	if err != nil {
		return fmt.Errorf("%s at %d: %w", a.insns[j], j, err)
	}
	if changed {
		a.enqueue(j)
	}
	return nil
}

func (a *analyzer) enqueue(i int) {
	if !a.queued[i] {
		a.queued[i] = true
		a.work = append(a.work, i)
	}
}

// execute returns the frame after insn runs in f. f is not modified.
func execute(insn *bytecode.Instruction, f *Frame) (*Frame, error) {
	out := f.Clone()

	switch op := insn.Op; {
	case op == bytecode.OpPop:
		if _, err := out.popSized(1); err != nil {
			return nil, err
		}

	case op == bytecode.OpPop2:
		v, err := out.pop()
		if err != nil {
			return nil, err
		}
		if v.Size == 1 {
			if _, err := out.popSized(1); err != nil {
				return nil, err
			}
		}

	case op.IsDup() || op == bytecode.OpSwap:
		if err := shuffle(insn, out); err != nil {
			return nil, err
		}

	case op.IsVarLoad():
		out.push(NewValue(insn.ResultKind().Size(), insn))

	case op.IsVarStore():
		kind := bytecode.GetOpcodeInfo(op).Result
		v, err := out.popSized(kind.Size())
		if err != nil {
			return nil, err
		}
		out.setLocal(insn.Var, NewValue(v.Size, insn))

	case op == bytecode.OpIInc:
		out.setLocal(insn.Var, NewValue(1, insn))

	default:
		for range ConsumedValues(insn, f) {
			if _, err := out.pop(); err != nil {
				return nil, err
			}
		}
		if k := insn.ResultKind(); k != bytecode.KindVoid {
			out.push(NewValue(k.Size(), insn))
		}
	}
	return out, nil
}

// shuffle applies a DUP-family or SWAP instruction. Every value it adds to
// the stack is a copy produced by insn.
func shuffle(insn *bytecode.Instruction, f *Frame) error {
	n := ConsumedValues(insn, f)
	if f.StackSize() < n {
		return ErrStackUnderflow
	}
	// v[0] is the top of the stack
	v := make([]*SourceValue, n)
	for i := range v {
		v[i], _ = f.pop()
	}
	c := func(x *SourceValue) *SourceValue { return copyOf(insn, x) }

	switch insn.Op {
	case bytecode.OpDup:
		if v[0].Size != 1 {
			return ErrValueWidth
		}
		f.push(v[0], c(v[0]))
	case bytecode.OpDupX1:
		if v[0].Size != 1 || v[1].Size != 1 {
			return ErrValueWidth
		}
		f.push(c(v[0]), v[1], v[0])
	case bytecode.OpDupX2:
		if v[0].Size != 1 {
			return ErrValueWidth
		}
		if n == 2 {
			f.push(c(v[0]), v[1], v[0])
		} else {
			f.push(c(v[0]), v[2], v[1], v[0])
		}
	case bytecode.OpDup2:
		if n == 1 {
			f.push(v[0], c(v[0]))
		} else {
			f.push(v[1], v[0], c(v[1]), c(v[0]))
		}
	case bytecode.OpDup2X1:
		if n == 2 {
			f.push(c(v[0]), v[1], v[0])
		} else {
			f.push(c(v[1]), c(v[0]), v[2], v[1], v[0])
		}
	case bytecode.OpDup2X2:
		switch {
		case n == 2:
			f.push(c(v[0]), v[1], v[0])
		case n == 3 && v[0].Size == 2:
			f.push(c(v[0]), v[2], v[1], v[0])
		case n == 3:
			f.push(c(v[1]), c(v[0]), v[2], v[1], v[0])
		default:
			f.push(c(v[1]), c(v[0]), v[3], v[2], v[1], v[0])
		}
	case bytecode.OpSwap:
		if v[0].Size != 1 || v[1].Size != 1 {
			return ErrValueWidth
		}
		f.push(c(v[0]), c(v[1]))
	}
	return nil
}
