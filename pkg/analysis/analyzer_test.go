package analysis

import (
	"errors"
	"testing"

	"github.com/chazu/scour/pkg/bytecode"
)

func analyzeSource(t *testing.T, desc string, static bool, src string) (*bytecode.Method, []*bytecode.Instruction, []*Frame) {
	t.Helper()
	m, err := bytecode.NewMethod("test", desc, static, bytecode.MustAssemble(src))
	if err != nil {
		t.Fatalf("NewMethod: %v", err)
	}
	frames, err := Analyze(m)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	return m, m.Instructions.Slice(), frames
}

func TestAnalyzeStraightLine(t *testing.T) {
	_, insns, frames := analyzeSource(t, "()I", true, `
  ICONST 2
  ICONST 3
  IADD
  IRETURN
`)
	if len(frames) != 4 {
		t.Fatalf("frames = %d, want 4", len(frames))
	}
	if frames[0].StackSize() != 0 {
		t.Errorf("entry stack size = %d, want 0", frames[0].StackSize())
	}

	add := frames[2]
	if add.StackSize() != 2 {
		t.Fatalf("stack before IADD = %d, want 2", add.StackSize())
	}
	if !add.Peek(1).ProducedBy(insns[0]) || !add.Peek(0).ProducedBy(insns[1]) {
		t.Errorf("IADD operands = %v, want ICONST 2 then ICONST 3", add)
	}
	if !frames[3].Peek(0).ProducedBy(insns[2]) {
		t.Errorf("IRETURN operand = %v, want IADD", frames[3].Peek(0))
	}
}

func TestAnalyzeDupCopiedFrom(t *testing.T) {
	_, insns, frames := analyzeSource(t, "()V", true, `
  ICONST 5
  DUP
  POP
  POP
  RETURN
`)
	pop1 := frames[2]
	if pop1.StackSize() != 2 {
		t.Fatalf("stack before first POP = %d, want 2", pop1.StackSize())
	}
	orig, dup := pop1.Peek(1), pop1.Peek(0)
	if !orig.ProducedBy(insns[0]) {
		t.Errorf("bottom value produced by %v, want ICONST", orig)
	}
	if !dup.ProducedBy(insns[1]) || len(dup.Producers) != 1 {
		t.Errorf("top value produced by %v, want DUP", dup)
	}
	if dup.CopiedFrom != orig {
		t.Error("DUP copy does not link back to the original value")
	}
	if dup.Original() != orig {
		t.Error("Original() did not resolve to the duplicated value")
	}

	// The original survives the first POP untouched
	if frames[3].Peek(0) != orig {
		t.Error("second POP does not see the original value")
	}
}

func TestAnalyzeMergeAtJoin(t *testing.T) {
	_, insns, frames := analyzeSource(t, "(I)I", true, `
  ILOAD 0
  IFEQ other
  ICONST 1
  GOTO join
other:
  ICONST 2
join:
  IRETURN
`)
	ret := frames[7]
	v := ret.Peek(0)
	if len(v.Producers) != 2 {
		t.Fatalf("producers at join = %v, want two", v)
	}
	if !v.ProducedBy(insns[2]) || !v.ProducedBy(insns[5]) {
		t.Errorf("producers at join = %v, want both ICONSTs", v)
	}
}

func TestAnalyzeLoopConverges(t *testing.T) {
	_, insns, frames := analyzeSource(t, "(I)I", true, `
  ICONST 0
  ISTORE 1
top:
  ILOAD 0
  IFLE done
  IINC 1 1
  IINC 0 -1
  GOTO top
done:
  ILOAD 1
  IRETURN
`)
	// At the loop head local 1 comes from either the initial store or the increment
	head := frames[2]
	v := head.Local(1)
	if v == nil || !v.ProducedBy(insns[1]) || !v.ProducedBy(insns[5]) {
		t.Errorf("local 1 at loop head = %v, want ISTORE and IINC", v)
	}
	// Local 0 is the parameter on entry and the IINC inside the loop
	if l0 := head.Local(0); l0 == nil || !l0.ProducedBy(insns[6]) {
		t.Errorf("local 0 at loop head = %v, want IINC among producers", l0)
	}
}

func TestAnalyzeUnreachableHasNoFrame(t *testing.T) {
	_, _, frames := analyzeSource(t, "()V", true, `
  RETURN
  ICONST 1
  POP
  RETURN
`)
	for i := 1; i < 4; i++ {
		if frames[i] != nil {
			t.Errorf("frame %d = %v, want nil", i, frames[i])
		}
	}
}

func TestAnalyzeParametersHaveNoProducers(t *testing.T) {
	_, _, frames := analyzeSource(t, "(JI)V", false, "RETURN")
	entry := frames[0]
	for _, slot := range []int{0, 1, 3} {
		v := entry.Local(slot)
		if v == nil || v.Known() {
			t.Errorf("local %d = %v, want external value", slot, v)
		}
	}
	if entry.Local(1).Size != 2 || entry.Local(2) != nil {
		t.Error("long parameter does not occupy slots 1-2")
	}
}

func TestAnalyzeWideValues(t *testing.T) {
	_, insns, frames := analyzeSource(t, "()V", true, `
  LCONST 1
  DUP2
  POP2
  POP2
  ICONST 1
  ICONST 2
  POP2
  RETURN
`)
	if frames[2].StackSize() != 2 {
		t.Fatalf("stack before POP2 = %d values, want 2", frames[2].StackSize())
	}
	if top := frames[2].Peek(0); top.Size != 2 || !top.ProducedBy(insns[1]) {
		t.Errorf("DUP2 result = %v (size %d), want wide copy", top, top.Size)
	}
	if got := ConsumedValues(insns[2], frames[2]); got != 1 {
		t.Errorf("POP2 on wide consumes %d values, want 1", got)
	}
	if got := ConsumedValues(insns[6], frames[6]); got != 2 {
		t.Errorf("POP2 on narrow consumes %d values, want 2", got)
	}
	if frames[7].StackSize() != 0 {
		t.Errorf("stack before RETURN = %d, want 0", frames[7].StackSize())
	}
}

func TestAnalyzeExceptionHandler(t *testing.T) {
	asm, err := bytecode.Assemble(`
start:
  ICONST 1
  ISTORE 0
  NEW a/Err
  ATHROW
end:
handler:
  ASTORE 1
  RETURN
`)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	m, _ := bytecode.NewMethod("test", "()V", true, asm.Instructions)
	m.Handlers = []*bytecode.ExceptionHandler{{
		Start: asm.Labels["start"], End: asm.Labels["end"], Handler: asm.Labels["handler"],
	}}

	frames, err := Analyze(m)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	h := frames[6]
	if h == nil {
		t.Fatal("handler is unreachable")
	}
	if h.StackSize() != 1 || h.Peek(0).Known() {
		t.Errorf("handler stack = %v, want one external value", h)
	}
	// Local 0 is undefined before ISTORE and defined after, so it merges to unknown
	if h.Local(0) != nil {
		t.Errorf("local 0 in handler = %v, want nil", h.Local(0))
	}
}

func TestAnalyzeErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want error
	}{
		{"underflow", "POP\nRETURN", ErrStackUnderflow},
		{"falls off", "ICONST 1\nPOP", ErrFallOff},
		{"height mismatch", "ILOAD 0\nIFEQ l\nICONST 1\nl:\nRETURN", ErrStackHeight},
		{"pop wide", "LCONST 1\nPOP\nRETURN", ErrValueWidth},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := bytecode.NewMethod("test", "(I)V", true, bytecode.MustAssemble(tt.src))
			if err != nil {
				t.Fatalf("NewMethod: %v", err)
			}
			_, err = Analyze(m)
			if !errors.Is(err, tt.want) {
				t.Errorf("Analyze error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestConsumedValuesWithoutFrame(t *testing.T) {
	tests := []struct {
		insn *bytecode.Instruction
		want int
	}{
		{bytecode.NewInsn(bytecode.OpPop), 1},
		{bytecode.NewInsn(bytecode.OpPop2), 2},
		{bytecode.NewInsn(bytecode.OpDup2X2), 4},
		{bytecode.NewInsn(bytecode.OpIfICmpEq), 2},
		{bytecode.NewInsn(bytecode.OpReturn), 0},
		{&bytecode.Instruction{Op: bytecode.OpInvokeVirtual, Method: &bytecode.MethodRef{
			Owner: "a", Name: "m", Params: []bytecode.Kind{bytecode.KindInt, bytecode.KindLong},
		}}, 3},
	}
	for _, tt := range tests {
		if got := ConsumedValues(tt.insn, nil); got != tt.want {
			t.Errorf("ConsumedValues(%s) = %d, want %d", tt.insn, got, tt.want)
		}
	}
}

func TestMergeValue(t *testing.T) {
	a := bytecode.NewInsn(bytecode.OpIConst)
	b := bytecode.NewInsn(bytecode.OpIConst)
	va, vb := NewValue(1, a), NewValue(1, b)

	merged, changed := mergeValue(va, vb)
	if !changed || len(merged.Producers) != 2 {
		t.Errorf("merge of distinct producers = %v, %v", merged, changed)
	}
	if len(va.Producers) != 1 {
		t.Error("merge mutated its input")
	}
	if again, changed := mergeValue(merged, vb); changed || again != merged {
		t.Error("merging a subset reported a change")
	}
	if v, changed := mergeValue(va, NewValue(2, a)); v != nil || !changed {
		t.Error("width mismatch should merge to undefined")
	}
}
