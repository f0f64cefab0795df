package analysis

import (
	"fmt"
	"slices"
	"strings"
)

// Frame is the state of the locals and the operand stack immediately before
// an instruction executes.
//
// Stack holds one entry per value, so a long occupies a single entry of size
// 2. Locals holds one entry per slot; the slot above a wide local is nil, as
// is any slot whose contents are unknown.
type Frame struct {
	Locals []*SourceValue
	Stack  []*SourceValue
}

// newFrame creates a frame with nlocals undefined locals and an empty stack.
func newFrame(nlocals int) *Frame {
	return &Frame{Locals: make([]*SourceValue, nlocals)}
}

// Clone returns a copy whose slices can be modified independently. The
// values themselves are shared.
func (f *Frame) Clone() *Frame {
	return &Frame{
		Locals: slices.Clone(f.Locals),
		Stack:  slices.Clone(f.Stack),
	}
}

// StackSize returns the number of values on the stack.
func (f *Frame) StackSize() int {
	return len(f.Stack)
}

// Peek returns the value n entries below the top of the stack, where 0 is the
// top, or nil if the stack is not that deep.
func (f *Frame) Peek(n int) *SourceValue {
	if f == nil || n < 0 || n >= len(f.Stack) {
		return nil
	}
	return f.Stack[len(f.Stack)-1-n]
}

// Local returns the value in slot i, or nil.
func (f *Frame) Local(i int) *SourceValue {
	if f == nil || i < 0 || i >= len(f.Locals) {
		return nil
	}
	return f.Locals[i]
}

func (f *Frame) push(vs ...*SourceValue) {
	f.Stack = append(f.Stack, vs...)
}

func (f *Frame) pop() (*SourceValue, error) {
	if len(f.Stack) == 0 {
		return nil, ErrStackUnderflow
	}
	v := f.Stack[len(f.Stack)-1]
	f.Stack = f.Stack[:len(f.Stack)-1]
	return v, nil
}

// popSized pops one value and checks its width.
func (f *Frame) popSized(size int) (*SourceValue, error) {
	v, err := f.pop()
	if err != nil {
		return nil, err
	}
	if v.Size != size {
		return nil, fmt.Errorf("%w: want size %d, got %d", ErrValueWidth, size, v.Size)
	}
	return v, nil
}

// setLocal stores v in slot i, clearing the upper half of a wide value and
// any wide value whose upper half is overwritten.
func (f *Frame) setLocal(i int, v *SourceValue) {
	f.Locals[i] = v
	if v != nil && v.Size == 2 {
		f.Locals[i+1] = nil
	}
	if i > 0 && f.Locals[i-1] != nil && f.Locals[i-1].Size == 2 {
		f.Locals[i-1] = nil
	}
}

// merge joins in into f. It reports whether f changed.
func (f *Frame) merge(in *Frame) (bool, error) {
	if len(f.Stack) != len(in.Stack) {
		return false, fmt.Errorf("%w: %d vs %d", ErrStackHeight, len(f.Stack), len(in.Stack))
	}
	changed := false
	for i := range f.Stack {
		old, cur := f.Stack[i], in.Stack[i]
		if old.Size != cur.Size {
			return false, fmt.Errorf("%w: stack slot %d", ErrValueWidth, i)
		}
		v, ch := mergeValue(old, cur)
		f.Stack[i] = v
		changed = changed || ch
	}
	for i := range f.Locals {
		v, ch := mergeValue(f.Locals[i], in.Locals[i])
		f.Locals[i] = v
		changed = changed || ch
	}
	return changed, nil
}

func (f *Frame) String() string {
	var sb strings.Builder
	sb.WriteString("locals[")
	for i, v := range f.Locals {
		if i > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(v.String())
	}
	sb.WriteString("] stack[")
	for i, v := range f.Stack {
		if i > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(v.String())
	}
	sb.WriteString("]")
	return sb.String()
}
