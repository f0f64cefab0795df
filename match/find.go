package match

import (
	"iter"

	"github.com/chazu/scour/flow"
	"github.com/chazu/scour/pkg/bytecode"
)

// FindAllMatches scans the method from its first instruction and yields
// every non-overlapping match, resuming after the end of each one. Matches
// that span no instructions are skipped.
//
// The consumer may edit the method between yields, typically with
// Result.RemoveAll; scanning then continues on a recomputed MethodContext
// from the instruction after the yielded span.
func (m *Match) FindAllMatches(mc *flow.MethodContext) iter.Seq[*Result] {
	return func(yield func(*Result) bool) {
		list := mc.Method().Instructions
		insn := list.First()

		for insn != nil {
			mc = mc.Fresh()
			res := m.MatchAt(mc.At(insn))
			if res == nil || len(res.insns) == 0 {
				insn = insn.Next()
				continue
			}

			// Resume points must be captured before the consumer edits the list
			before := res.insns[0].Prev()
			next := res.insns[len(res.insns)-1].Next()

			if !yield(res) {
				return
			}

			switch {
			case next == nil || list.Contains(next):
				insn = next
			case before == nil:
				insn = list.First()
			case list.Contains(before):
				insn = before.Next()
			default:
				log.Debugf("%s: scan position lost after edit, stopping", mc.Method())
				return
			}
		}
	}
}

// Result is one successful match.
type Result struct {
	mc       *flow.MethodContext
	insns    []*bytecode.Instruction
	captures map[string][]flow.InsnContext
}

// MethodContext returns the context the match was made against.
func (r *Result) MethodContext() *flow.MethodContext { return r.mc }

// Instructions returns the matched instructions in order.
func (r *Result) Instructions() []*bytecode.Instruction { return r.insns }

// Start returns the first matched instruction.
func (r *Result) Start() flow.InsnContext { return r.mc.At(r.insns[0]) }

// End returns the last matched instruction.
func (r *Result) End() flow.InsnContext { return r.mc.At(r.insns[len(r.insns)-1]) }

// Capture returns the first instruction captured under name.
func (r *Result) Capture(name string) (flow.InsnContext, bool) {
	c := r.captures[name]
	if len(c) == 0 {
		return flow.InsnContext{}, false
	}
	return c[0], true
}

// Captures returns every instruction captured under name.
func (r *Result) Captures(name string) []flow.InsnContext {
	return r.captures[name]
}

// RemoveAll deletes every matched instruction from the method as a single
// list edit and returns how many were removed.
func (r *Result) RemoveAll() int {
	return r.mc.Method().Instructions.RemoveAll(r.insns)
}
