// Package flow exposes per-method dataflow facts to transformers: frames,
// the producer to consumer map, and per-instruction cursors.
package flow

import (
	"slices"

	"github.com/tliron/commonlog"

	"github.com/chazu/scour/pkg/analysis"
	"github.com/chazu/scour/pkg/bytecode"
)

var log = commonlog.GetLogger("scour.flow")

// MethodContext holds the frames and consumer map of one method, computed
// for the instruction list version current at creation. It must not be
// shared between goroutines that mutate the method.
type MethodContext struct {
	class     *bytecode.Class
	method    *bytecode.Method
	cache     *Cache
	version   uint64
	frames    map[*bytecode.Instruction]*analysis.Frame
	consumers map[*bytecode.Instruction][]*bytecode.Instruction
	err       error
}

// NewMethodContext analyzes method and builds its consumer map. Analysis
// failure is not returned as an error: the context reports no frames and
// every safety check built on it declines.
func NewMethodContext(class *bytecode.Class, method *bytecode.Method) *MethodContext {
	mc := &MethodContext{
		class:     class,
		method:    method,
		version:   method.Instructions.Version(),
		frames:    make(map[*bytecode.Instruction]*analysis.Frame),
		consumers: make(map[*bytecode.Instruction][]*bytecode.Instruction),
	}

	insns := method.Instructions.Slice()
	for _, insn := range insns {
		mc.consumers[insn] = []*bytecode.Instruction{}
	}

	frames, err := analysis.Analyze(method)
	if err != nil {
		mc.err = err
		log.Debugf("%s.%s: analysis unavailable: %s", className(class), method, err)
		return mc
	}

	for i, insn := range insns {
		f := frames[i]
		if f == nil {
			continue
		}
		mc.frames[insn] = f

		for k := range analysis.ConsumedValues(insn, f) {
			v := f.Peek(k)
			if v == nil {
				continue
			}
			for _, p := range v.Producers {
				if !slices.Contains(mc.consumers[p], insn) {
					mc.consumers[p] = append(mc.consumers[p], insn)
				}
			}
		}
	}
	return mc
}

func className(c *bytecode.Class) string {
	if c == nil {
		return "?"
	}
	return c.Name
}

// Class returns the class owning the method.
func (mc *MethodContext) Class() *bytecode.Class { return mc.class }

// Method returns the analyzed method.
func (mc *MethodContext) Method() *bytecode.Method { return mc.method }

// Frames returns the frame of every reachable instruction. The map must not
// be modified.
func (mc *MethodContext) Frames() map[*bytecode.Instruction]*analysis.Frame {
	return mc.frames
}

// Frame returns the frame before insn, or nil when no analysis is available
// for it.
func (mc *MethodContext) Frame(insn *bytecode.Instruction) *analysis.Frame {
	return mc.frames[insn]
}

// Consumers returns the instructions that read a value produced by insn, in
// list order. The result is empty, never nil, for every instruction that was
// in the method when the context was computed.
func (mc *MethodContext) Consumers(insn *bytecode.Instruction) []*bytecode.Instruction {
	return mc.consumers[insn]
}

// Err returns the analysis failure, if any.
func (mc *MethodContext) Err() error { return mc.err }

// Version returns the instruction list version the context was computed for.
func (mc *MethodContext) Version() uint64 { return mc.version }

// Stale reports whether the method changed since the context was computed.
func (mc *MethodContext) Stale() bool {
	return mc.method.Instructions.Version() != mc.version
}

// Fresh returns mc if it is current, otherwise a recomputed context.
func (mc *MethodContext) Fresh() *MethodContext {
	if !mc.Stale() {
		return mc
	}
	if mc.cache != nil {
		return mc.cache.Of(mc.class, mc.method)
	}
	return NewMethodContext(mc.class, mc.method)
}

// At returns the cursor for insn.
func (mc *MethodContext) At(insn *bytecode.Instruction) InsnContext {
	return InsnContext{insn: insn, mc: mc}
}

// Instructions returns a snapshot of the method's current instructions.
func (mc *MethodContext) Instructions() []*bytecode.Instruction {
	return mc.method.Instructions.Slice()
}
