package clean

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/chazu/scour/pkg/analysis"
	"github.com/chazu/scour/pkg/bytecode"
	"github.com/chazu/scour/transform"
)

type program struct {
	desc string
	src  string
	args []bytecode.Value
}

func load(t *testing.T, p program) (*bytecode.ClassPool, *bytecode.Method) {
	t.Helper()
	m, err := bytecode.NewMethod("test", p.desc, true, bytecode.MustAssemble(p.src))
	if err != nil {
		t.Fatalf("NewMethod: %v", err)
	}
	pool, err := bytecode.NewClassPool(&bytecode.Class{Name: "a/Test", Methods: []*bytecode.Method{m}})
	if err != nil {
		t.Fatalf("NewClassPool: %v", err)
	}
	return pool, m
}

func runTransformer(t *testing.T, f transform.Factory, pool *bytecode.ClassPool) int {
	t.Helper()
	changes, err := transform.Run(f, transform.ScopeOf(pool), transform.NewContext(pool, 2))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return changes
}

// outcome is everything observable from one execution.
type outcome struct {
	Result  bytecode.Value
	Err     string
	Statics map[string]bytecode.Value
	Calls   []string
}

func execute(m *bytecode.Method, args []bytecode.Value) outcome {
	var out outcome
	vm := bytecode.NewVM()
	vm.Invoke = func(ref *bytecode.MethodRef, _ []bytecode.Value) (bytecode.Value, error) {
		out.Calls = append(out.Calls, ref.String())
		switch ref.Return {
		case bytecode.KindLong:
			return int64(9), nil
		case bytecode.KindVoid:
			return nil, nil
		}
		return int64(4), nil
	}
	v, err := vm.Exec(m, args...)
	out.Result = v
	if err != nil {
		out.Err = err.Error()
	}
	out.Statics = vm.Statics
	return out
}

// checkPreserved runs f over p and verifies that the method still analyzes
// and behaves the same. It returns the change count and the new body.
func checkPreserved(t *testing.T, f transform.Factory, p program) (int, string) {
	t.Helper()
	pool, m := load(t, p)
	before := execute(m, p.args)

	changes := runTransformer(t, f, pool)

	if _, err := analysis.Analyze(m); err != nil {
		t.Fatalf("transformed method no longer analyzes: %v\n%s", err, bytecode.Disassemble(m.Instructions))
	}
	after := execute(m, p.args)
	if diff := cmp.Diff(before, after); diff != "" {
		t.Errorf("behavior changed (-before +after):\n%s\nbody:\n%s", diff, bytecode.Disassemble(m.Instructions))
	}
	return changes, bytecode.Disassemble(m.Instructions)
}

func TestUselessPop(t *testing.T) {
	tests := []struct {
		name    string
		prog    program
		changes int
		want    string
	}{
		{
			name:    "dup of constant popped twice",
			prog:    program{desc: "()V", src: "ICONST 5\nDUP\nPOP\nPOP\nRETURN"},
			changes: 1,
			want:    "  RETURN\n",
		},
		{
			name:    "pop2 of two narrow constants",
			prog:    program{desc: "()V", src: "ICONST 1\nSCONST \"x\"\nPOP2\nRETURN"},
			changes: 1,
			want:    "  RETURN\n",
		},
		{
			name:    "pop2 of wide constant",
			prog:    program{desc: "()V", src: "LCONST 5\nPOP2\nRETURN"},
			changes: 1,
			want:    "  RETURN\n",
		},
		{
			name:    "local load",
			prog:    program{desc: "(I)V", src: "ILOAD 0\nPOP\nRETURN", args: []bytecode.Value{int64(3)}},
			changes: 1,
			want:    "  RETURN\n",
		},
		{
			name: "pop2 half removable becomes pop",
			prog: program{desc: "()V", src: `
  ICONST 1
  INVOKESTATIC a/B.f ()I
  POP2
  RETURN
`},
			changes: 1,
			want:    "  INVOKESTATIC a/B.f ()I\n  POP\n  RETURN\n",
		},
		{
			name:    "dup source still used",
			prog:    program{desc: "()I", src: "ICONST 1\nDUP\nPOP\nIRETURN"},
			changes: 1,
			want:    "  ICONST 1\n  IRETURN\n",
		},
		{
			name:    "dup of call result",
			prog:    program{desc: "()V", src: "INVOKESTATIC a/B.f ()I\nDUP\nPOP2\nRETURN"},
			changes: 1,
			want:    "  INVOKESTATIC a/B.f ()I\n  POP\n  RETURN\n",
		},
		{
			name:    "call result is kept",
			prog:    program{desc: "()V", src: "INVOKESTATIC a/B.f ()I\nPOP\nRETURN"},
			changes: 0,
			want:    "  INVOKESTATIC a/B.f ()I\n  POP\n  RETURN\n",
		},
		{
			name: "constants merged at a join",
			prog: program{desc: "(I)V", args: []bytecode.Value{int64(0)}, src: `
  ILOAD 0
  IFEQ other
  ICONST 1
  GOTO join
other:
  ICONST 2
join:
  POP
  RETURN
`},
			changes: 1,
			want:    "  ILOAD 0\n  IFEQ other\n  GOTO join\nother:\njoin:\n  RETURN\n",
		},
		{
			name: "join with a non-constant branch",
			prog: program{desc: "(I)V", args: []bytecode.Value{int64(1)}, src: `
  ILOAD 0
  IFEQ other
  ICONST 1
  GOTO join
other:
  INVOKESTATIC a/B.f ()I
join:
  POP
  RETURN
`},
			changes: 0,
			want:    "  ILOAD 0\n  IFEQ other\n  ICONST 1\n  GOTO join\nother:\n  INVOKESTATIC a/B.f ()I\njoin:\n  POP\n  RETURN\n",
		},
		{
			name:    "unreachable pop",
			prog:    program{desc: "()V", src: "RETURN\nICONST 1\nPOP\nRETURN"},
			changes: 0,
			want:    "  RETURN\n  ICONST 1\n  POP\n  RETURN\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changes, got := checkPreserved(t, NewUselessPop, tt.prog)
			if changes != tt.changes {
				t.Errorf("changes = %d, want %d", changes, tt.changes)
			}
			if got != tt.want {
				t.Errorf("body =\n%s\nwant\n%s", got, tt.want)
			}
		})
	}
}

func TestUselessPopIdempotent(t *testing.T) {
	pool, m := load(t, program{desc: "()V", src: "ICONST 5\nDUP\nPOP\nPOP\nICONST 1\nPOP\nRETURN"})
	if changes := runTransformer(t, NewUselessPop, pool); changes != 2 {
		t.Errorf("first run changes = %d, want 2", changes)
	}
	body := bytecode.Disassemble(m.Instructions)
	if changes := runTransformer(t, NewUselessPop, pool); changes != 0 {
		t.Errorf("second run changes = %d, want 0", changes)
	}
	if got := bytecode.Disassemble(m.Instructions); got != body {
		t.Errorf("second run changed the body:\n%s", got)
	}
}

func TestUselessPopNoDoubleRemoval(t *testing.T) {
	pool, _ := load(t, program{desc: "()V", src: "ICONST 5\nDUP\nPOP\nPOP\nRETURN"})
	up := NewUselessPop().(*UselessPop)
	ctx := transform.NewContext(pool, 1)

	if _, err := transform.Run(func() transform.Transformer { return up }, transform.ScopeOf(pool), ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if up.popped.Len() != 2 {
		t.Errorf("popped set holds %d producers, want 2 (ICONST and DUP)", up.popped.Len())
	}

	// A producer already removed is never planned again, even if it were
	// to reappear in a later candidate's chain.
	insns := bytecode.MustAssemble("ICONST 1\nPOP\nRETURN")
	push := insns.First()
	up.popped.Add(push)
	m2, _ := bytecode.NewMethod("again", "()V", true, insns)
	class := pool.Lookup("a/Test")
	class.Methods = append(class.Methods, m2)

	mc := ctx.MethodContext(class, m2)
	if up.tryRemove(mc.At(push.Next())) {
		t.Error("producer in the popped set was removed again")
	}
	if m2.Instructions.Len() != 3 {
		t.Errorf("method changed: %s", bytecode.Disassemble(m2.Instructions))
	}
}

func TestExpandDups(t *testing.T) {
	tests := []struct {
		name    string
		prog    program
		changes int
		want    string
	}{
		{
			name:    "constant feeding arithmetic",
			prog:    program{desc: "()I", src: "ICONST 7\nDUP\nIADD\nIRETURN"},
			changes: 1,
			want:    "  ICONST 7\n  ICONST 7\n  IADD\n  IRETURN\n",
		},
		{
			name:    "local load",
			prog:    program{desc: "(I)I", src: "ILOAD 0\nDUP\nIMUL\nIRETURN", args: []bytecode.Value{int64(6)}},
			changes: 1,
			want:    "  ILOAD 0\n  ILOAD 0\n  IMUL\n  IRETURN\n",
		},
		{
			name:    "copy is popped",
			prog:    program{desc: "()V", src: "ICONST 7\nDUP\nPOP\nPOP\nRETURN"},
			changes: 0,
			want:    "  ICONST 7\n  DUP\n  POP\n  POP\n  RETURN\n",
		},
		{
			name:    "source not adjacent",
			prog:    program{desc: "()I", src: "ICONST 7\nNOP\nDUP\nIADD\nIRETURN"},
			changes: 0,
			want:    "  ICONST 7\n  NOP\n  DUP\n  IADD\n  IRETURN\n",
		},
		{
			name:    "call result",
			prog:    program{desc: "()I", src: "INVOKESTATIC a/B.f ()I\nDUP\nIADD\nIRETURN"},
			changes: 0,
			want:    "  INVOKESTATIC a/B.f ()I\n  DUP\n  IADD\n  IRETURN\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changes, got := checkPreserved(t, NewExpandDups, tt.prog)
			if changes != tt.changes {
				t.Errorf("changes = %d, want %d", changes, tt.changes)
			}
			if got != tt.want {
				t.Errorf("body =\n%s\nwant\n%s", got, tt.want)
			}
		})
	}
}

func TestNop(t *testing.T) {
	changes, got := checkPreserved(t, NewNop, program{desc: "()I", src: "NOP\nICONST 1\nNOP\nNOP\nIRETURN"})
	if changes != 3 {
		t.Errorf("changes = %d, want 3", changes)
	}
	if want := "  ICONST 1\n  IRETURN\n"; got != want {
		t.Errorf("body =\n%s\nwant\n%s", got, want)
	}
}

func TestUselessPopAfterNop(t *testing.T) {
	pool, m := load(t, program{desc: "()V", src: "ICONST 1\nNOP\nDUP\nPOP\nPOP\nRETURN"})
	changes, err := transform.Run(
		transform.Compose("cleanup", NewNop, NewUselessPop),
		transform.ScopeOf(pool), transform.NewContext(pool, 1))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if changes != 2 {
		t.Errorf("changes = %d, want 2", changes)
	}
	if got := bytecode.Disassemble(m.Instructions); got != "  RETURN\n" {
		t.Errorf("body =\n%s", got)
	}
}
