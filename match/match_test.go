package match

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/chazu/scour/flow"
	"github.com/chazu/scour/pkg/bytecode"
)

func contextFor(t *testing.T, src string) *flow.MethodContext {
	t.Helper()
	m, err := bytecode.NewMethod("test", "()V", true, bytecode.MustAssemble(src))
	if err != nil {
		t.Fatalf("NewMethod: %v", err)
	}
	class := &bytecode.Class{Name: "a/Test", Methods: []*bytecode.Method{m}}
	return flow.NewMethodContext(class, m)
}

// spans renders each match as the list indexes it covers.
func spans(mc *flow.MethodContext, m *Match) [][]int {
	var out [][]int
	for res := range m.FindAllMatches(mc) {
		var idx []int
		for _, insn := range res.Instructions() {
			idx = append(idx, mc.Method().Instructions.IndexOf(insn))
		}
		out = append(out, idx)
	}
	return out
}

func isCompare(c flow.InsnContext) bool { return c.Insn().Op.IsCompare() }

func TestPrimitives(t *testing.T) {
	mc := contextFor(t, "ICONST 1\nSCONST \"x\"\nPOP2\nRETURN")
	insns := mc.Instructions()

	tests := []struct {
		name string
		m    *Match
		at   int
		want bool
	}{
		{"opcode hit", Opcode(bytecode.OpIConst), 0, true},
		{"opcode miss", Opcode(bytecode.OpLConst), 0, false},
		{"number hit", Number(), 0, true},
		{"number rejects string", Number(), 1, false},
		{"predicate", Predicate(func(c flow.InsnContext) bool { return c.Insn().Op.IsPop() }), 2, true},
		{"sequence", Sequence(Number(), Opcode(bytecode.OpSConst)), 0, true},
		{"sequence fails midway", Sequence(Number(), Number()), 0, false},
		{"sequence past end", Sequence(Opcode(bytecode.OpReturn), Opcode(bytecode.OpNop)), 3, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.m.MatchAt(mc.At(insns[tt.at])) != nil
			if got != tt.want {
				t.Errorf("MatchAt(%s) = %v, want %v", insns[tt.at], got, tt.want)
			}
		})
	}
}

func TestCaptures(t *testing.T) {
	mc := contextFor(t, `
  ICONST 3
  PUTSTATIC a/B.F I
  ICONST 4
  GETSTATIC a/B.F I
  IF_ICMPEQ l
l:
  RETURN
`)
	pattern := Sequence(
		Number(),
		Opcode(bytecode.OpPutStatic).Capture("store"),
		Sequence(Number(), Opcode(bytecode.OpGetStatic)).Capture("load"),
		Predicate(isCompare),
	)

	res := pattern.MatchAt(mc.At(mc.Method().Instructions.First()))
	if res == nil {
		t.Fatal("pattern did not match")
	}
	if len(res.Instructions()) != 5 {
		t.Errorf("matched %d instructions, want 5", len(res.Instructions()))
	}

	store, ok := res.Capture("store")
	if !ok || store.Insn().Op != bytecode.OpPutStatic {
		t.Errorf("store capture = %v, %v", store, ok)
	}
	if load := res.Captures("load"); len(load) != 2 || load[1].Insn().Op != bytecode.OpGetStatic {
		t.Errorf("load captures = %v, want ICONST and GETSTATIC", load)
	}
	if _, ok := res.Capture("missing"); ok {
		t.Error("missing capture reported present")
	}
	if res.Start().Insn().Op != bytecode.OpIConst || res.End().Insn().Op != bytecode.OpIfICmpEq {
		t.Errorf("span = %s..%s", res.Start(), res.End())
	}
}

func TestFailedCaptureLeavesNoTrace(t *testing.T) {
	mc := contextFor(t, "ICONST 1\nPOP\nRETURN")
	pattern := Sequence(Number().Capture("n"), Opcode(bytecode.OpPop2))
	if res := pattern.MatchAt(mc.At(mc.Method().Instructions.First())); res != nil {
		t.Errorf("unexpected match %v", res.Instructions())
	}
}

func TestFindAllMatchesNonOverlapping(t *testing.T) {
	mc := contextFor(t, `
  ICONST 1
  ICONST 2
  ICONST 3
  POP
  POP
  POP
  RETURN
`)
	// Pairs of numbers: positions 0-1 match, 1-2 overlaps and is skipped
	got := spans(mc, Sequence(Number(), Number()))
	want := [][]int{{0, 1}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("spans mismatch (-want +got):\n%s", diff)
	}

	got = spans(mc, Opcode(bytecode.OpPop))
	want = [][]int{{3}, {4}, {5}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("spans mismatch (-want +got):\n%s", diff)
	}
}

func TestFindAllMatchesIdempotent(t *testing.T) {
	mc := contextFor(t, `
  ICONST 1
  POP
  ICONST 2
  POP
  RETURN
`)
	pattern := Sequence(Number(), Opcode(bytecode.OpPop))
	first := spans(mc, pattern)
	second := spans(mc, pattern)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeated scan differs (-first +second):\n%s", diff)
	}
	if len(first) != 2 {
		t.Errorf("found %d matches, want 2", len(first))
	}
}

func TestLabelsBreakSequences(t *testing.T) {
	mc := contextFor(t, `
  ICONST 1
here:
  POP
  RETURN
`)
	if got := spans(mc, Sequence(Number(), Opcode(bytecode.OpPop))); len(got) != 0 {
		t.Errorf("matched across a label: %v", got)
	}
}

func TestFindAllMatchesWithRemoval(t *testing.T) {
	mc := contextFor(t, `
  ICONST 1
  POP
  ICONST 2
  POP
  NOP
  ICONST 3
  POP
  RETURN
`)
	list := mc.Method().Instructions
	removed := 0
	for res := range Sequence(Number(), Opcode(bytecode.OpPop)).FindAllMatches(mc) {
		removed += res.RemoveAll()
	}
	if removed != 6 {
		t.Errorf("removed %d instructions, want 6", removed)
	}
	if got := bytecode.Disassemble(list); got != "  NOP\n  RETURN\n" {
		t.Errorf("remaining body =\n%s", got)
	}
}

func TestFindAllMatchesStopsEarly(t *testing.T) {
	mc := contextFor(t, "NOP\nNOP\nNOP\nRETURN")
	n := 0
	for range Opcode(bytecode.OpNop).FindAllMatches(mc) {
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Errorf("iterated %d times, want 2", n)
	}
}

func TestEmptySequenceNeverMatches(t *testing.T) {
	mc := contextFor(t, "NOP\nRETURN")
	if got := spans(mc, Sequence()); len(got) != 0 {
		t.Errorf("empty pattern yielded %v", got)
	}
}

func TestPatternString(t *testing.T) {
	p := Sequence(Number(), Opcode(bytecode.OpPutStatic).Capture("store"), Predicate(isCompare))
	if got, want := p.String(), "(NUMBER PUTSTATIC@store PREDICATE)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
