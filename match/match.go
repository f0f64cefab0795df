// Package match finds instruction sequences of a given shape.
//
// Patterns are built from a few primitives and combined with Sequence:
//
//	pattern := match.Sequence(
//		match.Number(),
//		match.Opcode(bytecode.OpPutStatic).Capture("store"),
//		match.Predicate(func(c flow.InsnContext) bool { return c.Insn().Op.IsCompare() }),
//	)
//	for res := range pattern.FindAllMatches(mc) {
//		res.RemoveAll()
//	}
//
// Matching is linear and greedy. A sequence element either matches at the
// current position or the whole sequence fails; nothing is retried.
package match

import (
	"fmt"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/scour/flow"
	"github.com/chazu/scour/pkg/bytecode"
)

var log = commonlog.GetLogger("scour.match")

type kind uint8

const (
	kindPredicate kind = iota
	kindOpcode
	kindNumber
	kindSequence
	kindCapture
)

// Match is an immutable pattern.
type Match struct {
	kind  kind
	op    bytecode.Opcode
	pred  func(flow.InsnContext) bool
	elems []*Match
	inner *Match
	name  string
}

// Opcode matches one instruction with the given opcode.
func Opcode(op bytecode.Opcode) *Match {
	return &Match{kind: kindOpcode, op: op}
}

// Number matches one instruction that pushes a numeric constant.
func Number() *Match {
	return &Match{kind: kindNumber}
}

// Predicate matches one instruction for which fn returns true.
func Predicate(fn func(flow.InsnContext) bool) *Match {
	return &Match{kind: kindPredicate, pred: fn}
}

// Sequence matches each element in turn at consecutive positions.
func Sequence(elems ...*Match) *Match {
	return &Match{kind: kindSequence, elems: elems}
}

// Capture returns a pattern matching the same instructions as m whose
// matched instructions are recorded under name.
func (m *Match) Capture(name string) *Match {
	return &Match{kind: kindCapture, inner: m, name: name}
}

// state accumulates one match attempt.
type state struct {
	mc       *flow.MethodContext
	matched  []*bytecode.Instruction
	captures map[string][]flow.InsnContext
}

// eval matches m starting at insn and returns the instruction following the
// matched span.
func (m *Match) eval(insn *bytecode.Instruction, st *state) (*bytecode.Instruction, bool) {
	switch m.kind {
	case kindSequence:
		cur := insn
		for _, e := range m.elems {
			next, ok := e.eval(cur, st)
			if !ok {
				return nil, false
			}
			cur = next
		}
		return cur, true

	case kindCapture:
		start := len(st.matched)
		next, ok := m.inner.eval(insn, st)
		if !ok {
			return nil, false
		}
		for _, matched := range st.matched[start:] {
			st.captures[m.name] = append(st.captures[m.name], st.mc.At(matched))
		}
		return next, true
	}

	if insn == nil {
		return nil, false
	}
	var ok bool
	switch m.kind {
	case kindOpcode:
		ok = insn.Op == m.op
	case kindNumber:
		ok = insn.Op.IsNumber()
	case kindPredicate:
		ok = m.pred(st.mc.At(insn))
	}
	if !ok {
		return nil, false
	}
	st.matched = append(st.matched, insn)
	return insn.Next(), true
}

// MatchAt tries the pattern anchored at ctx's instruction. It returns nil
// when the pattern does not match there.
func (m *Match) MatchAt(ctx flow.InsnContext) *Result {
	st := &state{mc: ctx.MethodContext(), captures: make(map[string][]flow.InsnContext)}
	if _, ok := m.eval(ctx.Insn(), st); !ok {
		return nil
	}
	return &Result{mc: st.mc, insns: st.matched, captures: st.captures}
}

func (m *Match) String() string {
	switch m.kind {
	case kindOpcode:
		return m.op.String()
	case kindNumber:
		return "NUMBER"
	case kindPredicate:
		return "PREDICATE"
	case kindCapture:
		return fmt.Sprintf("%s@%s", m.inner, m.name)
	}
	parts := make([]string, len(m.elems))
	for i, e := range m.elems {
		parts[i] = e.String()
	}
	return "(" + strings.Join(parts, " ") + ")"
}
