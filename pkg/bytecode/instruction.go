package bytecode

import "fmt"

// Instruction is one node of a method's instruction list.
// Operands live in the field named by the opcode's OperandType; the rest are zero.
type Instruction struct {
	Op     Opcode
	Int    int64
	Float  float64
	Str    string
	Var    int
	Field  *FieldRef
	Method *MethodRef
	Target *Instruction // Jump target, always an OpLabel

	prev, next *Instruction
	list       *InstructionList
}

// NewInsn creates a detached instruction with no operand.
func NewInsn(op Opcode) *Instruction {
	return &Instruction{Op: op}
}

// NewLabel creates a detached label with the given name.
func NewLabel(name string) *Instruction {
	return &Instruction{Op: OpLabel, Str: name}
}

// Next returns the following instruction, or nil at the end of the list.
func (i *Instruction) Next() *Instruction { return i.next }

// Prev returns the preceding instruction, or nil at the start of the list.
func (i *Instruction) Prev() *Instruction { return i.prev }

// List returns the list that owns the instruction, or nil when detached.
func (i *Instruction) List() *InstructionList { return i.list }

// Clone returns a detached copy sharing operand references.
func (i *Instruction) Clone() *Instruction {
	return &Instruction{
		Op:     i.Op,
		Int:    i.Int,
		Float:  i.Float,
		Str:    i.Str,
		Var:    i.Var,
		Field:  i.Field,
		Method: i.Method,
		Target: i.Target,
	}
}

// ResultKind returns the kind of the value this instruction pushes,
// or KindVoid if it pushes nothing or the result depends on the frame.
func (i *Instruction) ResultKind() Kind {
	switch {
	case i.Op == OpGetStatic || i.Op == OpGetField:
		if i.Field != nil {
			return i.Field.Kind
		}
		return KindVoid
	case i.Op.IsInvoke():
		if i.Method != nil {
			return i.Method.Return
		}
		return KindVoid
	}
	info := GetOpcodeInfo(i.Op)
	if info.StackPush != 1 {
		return KindVoid
	}
	return info.Result
}

// String returns the instruction in assembler syntax.
func (i *Instruction) String() string {
	return formatInsn(i, nil)
}

// InstructionList is a mutable doubly-linked instruction sequence.
// Every structural change increments Version, which analysis caches use to
// detect stale results.
type InstructionList struct {
	first, last *Instruction
	size        int
	version     uint64
}

// NewInstructionList creates a list holding the given detached instructions.
func NewInstructionList(insns ...*Instruction) *InstructionList {
	l := &InstructionList{}
	for _, insn := range insns {
		l.Append(insn)
	}
	return l
}

// First returns the first instruction or nil.
func (l *InstructionList) First() *Instruction { return l.first }

// Last returns the last instruction or nil.
func (l *InstructionList) Last() *Instruction { return l.last }

// Len returns the number of instructions, labels included.
func (l *InstructionList) Len() int { return l.size }

// Version returns the structural modification counter.
func (l *InstructionList) Version() uint64 { return l.version }

// Contains reports whether insn currently belongs to this list.
func (l *InstructionList) Contains(insn *Instruction) bool {
	return insn != nil && insn.list == l
}

// Slice returns a snapshot of the instructions in order.
func (l *InstructionList) Slice() []*Instruction {
	out := make([]*Instruction, 0, l.size)
	for insn := l.first; insn != nil; insn = insn.next {
		out = append(out, insn)
	}
	return out
}

// IndexOf returns the position of insn, or -1 if it is not a member.
func (l *InstructionList) IndexOf(insn *Instruction) int {
	if !l.Contains(insn) {
		return -1
	}
	idx := 0
	for cur := l.first; cur != nil; cur = cur.next {
		if cur == insn {
			return idx
		}
		idx++
	}
	return -1
}

// Append adds insn at the end of the list.
func (l *InstructionList) Append(insn *Instruction) {
	l.mustDetached(insn)
	insn.list = l
	insn.prev = l.last
	if l.last != nil {
		l.last.next = insn
	} else {
		l.first = insn
	}
	l.last = insn
	l.size++
	l.version++
}

// InsertBefore places insn immediately before at.
func (l *InstructionList) InsertBefore(at, insn *Instruction) {
	l.mustMember(at)
	l.mustDetached(insn)
	insn.list = l
	insn.next = at
	insn.prev = at.prev
	if at.prev != nil {
		at.prev.next = insn
	} else {
		l.first = insn
	}
	at.prev = insn
	l.size++
	l.version++
}

// InsertAfter places insn immediately after at.
func (l *InstructionList) InsertAfter(at, insn *Instruction) {
	l.mustMember(at)
	l.mustDetached(insn)
	insn.list = l
	insn.prev = at
	insn.next = at.next
	if at.next != nil {
		at.next.prev = insn
	} else {
		l.last = insn
	}
	at.next = insn
	l.size++
	l.version++
}

// Remove unlinks insn from the list.
func (l *InstructionList) Remove(insn *Instruction) {
	l.mustMember(insn)
	l.unlink(insn)
	l.version++
}

// RemoveAll unlinks every listed instruction that is still a member, as one
// structural change. Returns the number of instructions removed.
func (l *InstructionList) RemoveAll(insns []*Instruction) int {
	removed := 0
	for _, insn := range insns {
		if l.Contains(insn) {
			l.unlink(insn)
			removed++
		}
	}
	if removed > 0 {
		l.version++
	}
	return removed
}

// Set replaces old with insn at the same position.
func (l *InstructionList) Set(old, insn *Instruction) {
	l.mustMember(old)
	l.mustDetached(insn)
	insn.list = l
	insn.prev = old.prev
	insn.next = old.next
	if old.prev != nil {
		old.prev.next = insn
	} else {
		l.first = insn
	}
	if old.next != nil {
		old.next.prev = insn
	} else {
		l.last = insn
	}
	old.prev, old.next, old.list = nil, nil, nil
	l.version++
}

func (l *InstructionList) unlink(insn *Instruction) {
	if insn.prev != nil {
		insn.prev.next = insn.next
	} else {
		l.first = insn.next
	}
	if insn.next != nil {
		insn.next.prev = insn.prev
	} else {
		l.last = insn.prev
	}
	insn.prev, insn.next, insn.list = nil, nil, nil
	l.size--
}

func (l *InstructionList) mustMember(insn *Instruction) {
	if !l.Contains(insn) {
		panic(fmt.Sprintf("bytecode: %v is not a member of this list", insn))
	}
}

func (l *InstructionList) mustDetached(insn *Instruction) {
	if insn.list != nil {
		panic(fmt.Sprintf("bytecode: %v already belongs to a list", insn))
	}
}
