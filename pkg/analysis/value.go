package analysis

import (
	"slices"
	"strings"

	"github.com/chazu/scour/pkg/bytecode"
)

// SourceValue describes where the value in one stack or local slot came from.
//
// Producers holds every instruction that may have pushed the value; more than
// one only where control flow merges. An empty producer set marks a value
// whose origin is outside the method body (parameters, the receiver, caught
// exceptions) and must never be treated as removable.
type SourceValue struct {
	Producers  []*bytecode.Instruction
	Size       int          // 1 or 2
	CopiedFrom *SourceValue // Value this one duplicates, set by DUP and SWAP
}

// NewValue creates a value of the given width produced by the given
// instructions.
func NewValue(size int, producers ...*bytecode.Instruction) *SourceValue {
	return &SourceValue{Producers: producers, Size: size}
}

// copyOf creates the duplicate pushed by a stack shuffling instruction.
func copyOf(insn *bytecode.Instruction, v *SourceValue) *SourceValue {
	return &SourceValue{
		Producers:  []*bytecode.Instruction{insn},
		Size:       v.Size,
		CopiedFrom: v,
	}
}

// Known reports whether the value has at least one producer in the method.
func (v *SourceValue) Known() bool {
	return v != nil && len(v.Producers) > 0
}

// ProducedBy reports whether insn is one of the value's producers.
func (v *SourceValue) ProducedBy(insn *bytecode.Instruction) bool {
	return v != nil && slices.Contains(v.Producers, insn)
}

// Original follows CopiedFrom links back to the value that was first
// duplicated.
func (v *SourceValue) Original() *SourceValue {
	for v != nil && v.CopiedFrom != nil {
		v = v.CopiedFrom
	}
	return v
}

func (v *SourceValue) String() string {
	if v == nil {
		return "<undefined>"
	}
	if len(v.Producers) == 0 {
		return "<external>"
	}
	parts := make([]string, len(v.Producers))
	for i, p := range v.Producers {
		parts[i] = p.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// mergeValue joins the value already recorded for a slot with an incoming
// one. It returns the joined value and whether it differs from old. Values
// are never mutated in place since frames share them.
func mergeValue(old, in *SourceValue) (*SourceValue, bool) {
	switch {
	case old == in:
		return old, false
	case old == nil:
		return nil, false
	case in == nil || old.Size != in.Size:
		return nil, true
	}

	subset := true
	for _, p := range in.Producers {
		if !slices.Contains(old.Producers, p) {
			subset = false
			break
		}
	}
	if subset && (old.CopiedFrom == nil || old.CopiedFrom == in.CopiedFrom) {
		return old, false
	}

	merged := &SourceValue{
		Producers: slices.Clone(old.Producers),
		Size:      old.Size,
	}
	for _, p := range in.Producers {
		if !slices.Contains(merged.Producers, p) {
			merged.Producers = append(merged.Producers, p)
		}
	}
	if old.CopiedFrom == in.CopiedFrom {
		merged.CopiedFrom = old.CopiedFrom
	}
	return merged, true
}
