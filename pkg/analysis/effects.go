package analysis

import "github.com/chazu/scour/pkg/bytecode"

// ConsumedValues returns the number of stack values insn pops, resolved
// against the frame before it. POP2 and the DUP2 family pop one value or two
// depending on widths; with a nil frame every value is assumed narrow.
func ConsumedValues(insn *bytecode.Instruction, f *Frame) int {
	wide := func(n int) bool {
		v := f.Peek(n)
		return v != nil && v.Size == 2
	}

	switch op := insn.Op; op {
	case bytecode.OpPop2, bytecode.OpDup2:
		if wide(0) {
			return 1
		}
		return 2
	case bytecode.OpDupX2:
		if wide(1) {
			return 2
		}
		return 3
	case bytecode.OpDup2X1:
		if wide(0) {
			return 2
		}
		return 3
	case bytecode.OpDup2X2:
		switch {
		case wide(0) && wide(1):
			return 2
		case wide(0) || wide(2):
			return 3
		}
		return 4
	case bytecode.OpInvokeStatic, bytecode.OpInvokeVirtual:
		n := 0
		if insn.Method != nil {
			n = len(insn.Method.Params)
		}
		if op == bytecode.OpInvokeVirtual {
			n++
		}
		return n
	}
	return max(bytecode.GetOpcodeInfo(insn.Op).StackPop, 0)
}
