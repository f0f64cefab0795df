// Package qprotect undoes the control-flow obfuscation emitted by qProtect.
package qprotect

import (
	"sync"

	"github.com/chazu/scour/flow"
	"github.com/chazu/scour/match"
	"github.com/chazu/scour/pkg/bytecode"
	"github.com/chazu/scour/transform"
)

// fieldFlowPattern matches an opaque predicate routed through a static
// field: a constant is stored, reloaded and compared with a second constant.
var fieldFlowPattern = match.Sequence(
	match.Number(),
	staticField(bytecode.OpPutStatic).Capture("store"),
	match.Number().Capture("operand"),
	staticField(bytecode.OpGetStatic).Capture("load"),
	match.Predicate(func(c flow.InsnContext) bool { return c.Insn().Op.IsCompare() }).Capture("compare"),
)

// staticField matches op with a field operand.
func staticField(op bytecode.Opcode) *match.Match {
	return match.Predicate(func(c flow.InsnContext) bool {
		return c.Insn().Op == op && c.Insn().Field != nil
	})
}

// FieldFlow removes opaque predicates that store a constant in a static
// field and immediately compare the reloaded value against another constant.
// The span is deleted when the branch is never taken and replaced by a GOTO
// when it always is.
//
// Only fields that are read nowhere else in scope are rewritten, since
// dropping the store would change what other readers observe.
type FieldFlow struct {
	transform.Base

	mu    sync.Mutex
	reads map[bytecode.FieldRef]int
}

// NewFieldFlow is the factory for FieldFlow.
func NewFieldFlow() transform.Transformer { return &FieldFlow{} }

func (t *FieldFlow) Name() string { return "qprotect-field-flow" }

func (t *FieldFlow) Transform() error {
	if err := t.countReads(); err != nil {
		return err
	}
	return t.ForEachMethod(func(class *bytecode.Class, m *bytecode.Method) error {
		mc := t.Context().MethodContext(class, m)
		for res := range fieldFlowPattern.FindAllMatches(mc) {
			if t.rewrite(res) {
				t.MarkChange()
			}
		}
		return nil
	})
}

// countReads records the number of GETSTATIC instructions per field and
// subtracts the loads of spans that rewritable accepts. Loads of rejected
// spans stay in place and keep counting as reads.
func (t *FieldFlow) countReads() error {
	t.reads = make(map[bytecode.FieldRef]int)
	return t.ForEachMethod(func(class *bytecode.Class, m *bytecode.Method) error {
		local := make(map[bytecode.FieldRef]int)
		for insn := m.Instructions.First(); insn != nil; insn = insn.Next() {
			if insn.Op == bytecode.OpGetStatic && insn.Field != nil {
				local[*insn.Field]++
			}
		}
		mc := t.Context().MethodContext(class, m)
		for res := range fieldFlowPattern.FindAllMatches(mc) {
			if p, ok := rewritable(res); ok {
				local[*p.field]--
			}
		}

		t.mu.Lock()
		defer t.mu.Unlock()
		for f, n := range local {
			t.reads[f] += n
		}
		return nil
	})
}

// predicate is a decided field-flow span.
type predicate struct {
	field *bytecode.FieldRef
	jump  *bytecode.Instruction
	taken bool
}

// rewritable decides a matched span: the store and load must name the same
// field, both constants must be ints and the compare must be an int compare.
func rewritable(res *match.Result) (predicate, bool) {
	store, _ := res.Capture("store")
	load, _ := res.Capture("load")
	operand, _ := res.Capture("operand")
	compare, _ := res.Capture("compare")

	field := store.Insn().Field
	if field == nil || !field.Equal(load.Insn().Field) {
		return predicate{}, false
	}
	stored := res.Start().Insn()
	if stored.Op != bytecode.OpIConst || operand.Insn().Op != bytecode.OpIConst {
		return predicate{}, false
	}
	jump := compare.Insn()
	taken, ok := bytecode.CompareInts(jump.Op, operand.Insn().Int, stored.Int)
	if !ok {
		return predicate{}, false
	}
	return predicate{field: field, jump: jump, taken: taken}, true
}

func (t *FieldFlow) rewrite(res *match.Result) bool {
	p, ok := rewritable(res)
	if !ok {
		return false
	}
	method := res.MethodContext().Method()

	t.mu.Lock()
	outside := t.reads[*p.field]
	t.mu.Unlock()
	if outside > 0 {
		t.Log().Debugf("%s: %s is read %d more times, keeping", method, p.field, outside)
		return false
	}

	if p.taken {
		method.Instructions.InsertBefore(res.Start().Insn(), &bytecode.Instruction{Op: bytecode.OpGoto, Target: p.jump.Target})
	}
	res.RemoveAll()
	t.Log().Debugf("%s: removed field flow through %s (taken=%t)", method, p.field, p.taken)
	return true
}
