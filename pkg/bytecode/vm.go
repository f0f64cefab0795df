package bytecode

import (
	"errors"
	"fmt"
	"math"
)

// ErrStepLimit is returned when execution exceeds VM.StepLimit instructions.
var ErrStepLimit = errors.New("step limit exceeded")

// DefaultStepLimit bounds execution when VM.StepLimit is zero.
const DefaultStepLimit = 1_000_000

// Value is a runtime value. Ints and longs are int64, floats and doubles are
// float64, references are nil, string, or *Object.
type Value any

// Object is an instance created by NEW.
type Object struct {
	Class  string
	Fields map[string]Value
}

// ThrownError carries a value thrown by ATHROW that no handler caught.
type ThrownError struct {
	Value Value
}

func (e *ThrownError) Error() string {
	if obj, ok := e.Value.(*Object); ok {
		return "uncaught " + obj.Class
	}
	return fmt.Sprintf("uncaught %v", e.Value)
}

// InvokeFunc resolves a call made by an invoke instruction. For
// INVOKEVIRTUAL the receiver is args[0].
type InvokeFunc func(ref *MethodRef, args []Value) (Value, error)

// wideHalf occupies the upper slot of a long or double.
type wideHalf struct{}

// VM is a reference interpreter for methods. It exists to check that
// rewrites preserve behavior; it is not tuned for speed.
type VM struct {
	Statics   map[string]Value // Static fields keyed by "owner.name"
	Invoke    InvokeFunc       // Nil makes every invoke an error
	StepLimit int
	Trace     bool
	Steps     int // Instructions executed by the last Exec

	stack  []Value
	locals []Value
}

// NewVM creates a VM with empty static storage.
func NewVM() *VM {
	return &VM{Statics: make(map[string]Value)}
}

// Exec runs m with the given arguments. For instance methods args[0] is the
// receiver. Long and double arguments are passed as single values.
func (vm *VM) Exec(m *Method, args ...Value) (Value, error) {
	want := len(m.Params)
	if !m.Static {
		want++
	}
	if len(args) != want {
		return nil, fmt.Errorf("exec %s: got %d arguments, want %d", m, len(args), want)
	}

	vm.stack = vm.stack[:0]
	vm.locals = make([]Value, localsSize(m))
	slot := 0
	kinds := m.Params
	if !m.Static {
		kinds = append([]Kind{KindRef}, kinds...)
	}
	for i, k := range kinds {
		vm.locals[slot] = args[i]
		if k.Size() == 2 {
			vm.locals[slot+1] = wideHalf{}
		}
		slot += k.Size()
	}

	limit := vm.StepLimit
	if limit <= 0 {
		limit = DefaultStepLimit
	}
	vm.Steps = 0

	v, err := vm.run(m, limit)
	if err != nil {
		return nil, fmt.Errorf("exec %s: %w", m, err)
	}
	return v, nil
}

// localsSize returns the number of local slots needed to run m.
func localsSize(m *Method) int {
	n := max(m.MaxLocals, m.ParamSlots())
	for insn := m.Instructions.First(); insn != nil; insn = insn.Next() {
		switch info := GetOpcodeInfo(insn.Op); info.Operand {
		case OperandVar, OperandIInc:
			n = max(n, insn.Var+2)
		}
	}
	return n
}

// run is the main execution loop.
func (vm *VM) run(m *Method, limit int) (Value, error) {
	insn := m.Instructions.First()
	for {
		if insn == nil {
			return nil, errors.New("fell off the end of the code")
		}
		if insn.Op == OpLabel {
			insn = insn.Next()
			continue
		}
		if vm.Steps >= limit {
			return nil, ErrStepLimit
		}
		vm.Steps++

		if vm.Trace {
			fmt.Printf("[%4d] %-24s sp=%d\n", vm.Steps, insn, len(vm.stack))
		}

		next, ret, done, err := vm.step(insn)
		if err != nil {
			var thrown *ThrownError
			if errors.As(err, &thrown) {
				if h := findHandler(m, insn, thrown.Value); h != nil {
					vm.stack = append(vm.stack[:0], thrown.Value)
					insn = h
					continue
				}
			}
			return nil, fmt.Errorf("%s: %w", insn, err)
		}
		if done {
			return ret, nil
		}
		insn = next
	}
}

// findHandler returns the handler label covering insn that catches v.
func findHandler(m *Method, insn *Instruction, v Value) *Instruction {
	pos := m.Instructions.IndexOf(insn)
	for _, h := range m.Handlers {
		start := m.Instructions.IndexOf(h.Start)
		end := m.Instructions.IndexOf(h.End)
		if pos <= start || pos >= end {
			continue
		}
		if h.Type == "" {
			return h.Handler
		}
		if obj, ok := v.(*Object); ok && obj.Class == h.Type {
			return h.Handler
		}
	}
	return nil
}

// step executes one instruction and returns the instruction to run next.
func (vm *VM) step(insn *Instruction) (next *Instruction, ret Value, done bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(vmError); ok {
				err = e
				return
			}
			panic(r)
		}
	}()

	next = insn.Next()

	switch op := insn.Op; op {
	// ============ Stack Operations ============
	case OpNop:
		// Do nothing

	case OpPop:
		vm.popSlots(1)

	case OpPop2:
		vm.popSlots(2)

	case OpDup:
		s := vm.popSlots(1)
		vm.pushSlots(s, s)

	case OpDupX1:
		s := vm.popSlots(2)
		vm.pushSlots(s[1:], s)

	case OpDupX2:
		s := vm.popSlots(3)
		vm.pushSlots(s[2:], s)

	case OpDup2:
		s := vm.popSlots(2)
		vm.pushSlots(s, s)

	case OpDup2X1:
		s := vm.popSlots(3)
		vm.pushSlots(s[1:], s)

	case OpDup2X2:
		s := vm.popSlots(4)
		vm.pushSlots(s[2:], s)

	case OpSwap:
		s := vm.popSlots(2)
		vm.pushSlots(s[1:], s[:1])

	// ============ Constants ============
	case OpConstNull:
		vm.push(nil, KindRef)

	case OpIConst:
		vm.push(int64(int32(insn.Int)), KindInt)

	case OpLConst:
		vm.push(insn.Int, KindLong)

	case OpFConst:
		vm.push(float64(float32(insn.Float)), KindFloat)

	case OpDConst:
		vm.push(insn.Float, KindDouble)

	case OpSConst:
		vm.push(insn.Str, KindRef)

	// ============ Local Variables ============
	case OpILoad, OpLLoad, OpFLoad, OpDLoad, OpALoad:
		k := GetOpcodeInfo(op).Result
		vm.push(vm.locals[insn.Var], k)

	case OpIStore, OpLStore, OpFStore, OpDStore, OpAStore:
		k := GetOpcodeInfo(op).Result
		vm.locals[insn.Var] = vm.pop(k)
		if k.Size() == 2 {
			vm.locals[insn.Var+1] = wideHalf{}
		}

	case OpIInc:
		vm.locals[insn.Var] = int64(int32(asInt(vm.locals[insn.Var]) + insn.Int))

	// ============ Fields ============
	case OpGetStatic:
		v, ok := vm.Statics[staticKey(insn.Field)]
		if !ok {
			v = zeroValue(insn.Field.Kind)
		}
		vm.push(v, insn.Field.Kind)

	case OpPutStatic:
		vm.Statics[staticKey(insn.Field)] = vm.pop(insn.Field.Kind)

	case OpGetField:
		obj := vm.popObject()
		v, ok := obj.Fields[insn.Field.Name]
		if !ok {
			v = zeroValue(insn.Field.Kind)
		}
		vm.push(v, insn.Field.Kind)

	case OpPutField:
		v := vm.pop(insn.Field.Kind)
		obj := vm.popObject()
		obj.Fields[insn.Field.Name] = v

	// ============ Int Arithmetic ============
	case OpIAdd, OpISub, OpIMul, OpIDiv, OpIRem, OpIAnd, OpIOr, OpIXor, OpIShl, OpIShr:
		b := asInt(vm.pop(KindInt))
		a := asInt(vm.pop(KindInt))
		r, err := intBinary(op, a, b)
		if err != nil {
			return nil, nil, false, err
		}
		vm.push(int64(int32(r)), KindInt)

	case OpINeg:
		vm.push(int64(-int32(asInt(vm.pop(KindInt)))), KindInt)

	// ============ Long Arithmetic ============
	case OpLAdd, OpLSub, OpLMul, OpLDiv, OpLRem, OpLAnd, OpLOr, OpLXor:
		b := asInt(vm.pop(KindLong))
		a := asInt(vm.pop(KindLong))
		r, err := intBinary(op, a, b)
		if err != nil {
			return nil, nil, false, err
		}
		vm.push(r, KindLong)

	case OpLNeg:
		vm.push(-asInt(vm.pop(KindLong)), KindLong)

	case OpI2L:
		vm.push(asInt(vm.pop(KindInt)), KindLong)

	case OpL2I:
		vm.push(int64(int32(asInt(vm.pop(KindLong)))), KindInt)

	// ============ Value Comparison ============
	case OpLCmp:
		b := asInt(vm.pop(KindLong))
		a := asInt(vm.pop(KindLong))
		vm.push(int64(cmp3(a < b, a > b)), KindInt)

	case OpFCmpL, OpFCmpG, OpDCmpL, OpDCmpG:
		k := KindFloat
		if op == OpDCmpL || op == OpDCmpG {
			k = KindDouble
		}
		b := asFloat(vm.pop(k))
		a := asFloat(vm.pop(k))
		r := cmp3(a < b, a > b)
		if math.IsNaN(a) || math.IsNaN(b) {
			r = -1
			if op == OpFCmpG || op == OpDCmpG {
				r = 1
			}
		}
		vm.push(int64(r), KindInt)

	// ============ Control Flow ============
	case OpGoto:
		next = insn.Target

	case OpIfEq, OpIfNe, OpIfLt, OpIfGe, OpIfGt, OpIfLe:
		if intCond(op-OpIfEq, asInt(vm.pop(KindInt)), 0) {
			next = insn.Target
		}

	case OpIfICmpEq, OpIfICmpNe, OpIfICmpLt, OpIfICmpGe, OpIfICmpGt, OpIfICmpLe:
		b := asInt(vm.pop(KindInt))
		a := asInt(vm.pop(KindInt))
		if intCond(op-OpIfICmpEq, a, b) {
			next = insn.Target
		}

	case OpIfACmpEq, OpIfACmpNe:
		b := vm.pop(KindRef)
		a := vm.pop(KindRef)
		if (a == b) == (op == OpIfACmpEq) {
			next = insn.Target
		}

	case OpIfNull, OpIfNonNull:
		v := vm.pop(KindRef)
		if (v == nil) == (op == OpIfNull) {
			next = insn.Target
		}

	// ============ Invocation ============
	case OpInvokeStatic, OpInvokeVirtual:
		if vm.Invoke == nil {
			return nil, nil, false, fmt.Errorf("no invoke handler for %s", insn.Method)
		}
		n := len(insn.Method.Params)
		if op == OpInvokeVirtual {
			n++
		}
		args := make([]Value, n)
		for i := len(insn.Method.Params) - 1; i >= 0; i-- {
			args[n-len(insn.Method.Params)+i] = vm.pop(insn.Method.Params[i])
		}
		if op == OpInvokeVirtual {
			args[0] = vm.pop(KindRef)
		}
		v, err := vm.Invoke(insn.Method, args)
		if err != nil {
			return nil, nil, false, err
		}
		if insn.Method.Return != KindVoid {
			vm.push(v, insn.Method.Return)
		}

	// ============ Objects ============
	case OpNew:
		vm.push(&Object{Class: insn.Str, Fields: make(map[string]Value)}, KindRef)

	case OpAThrow:
		v := vm.pop(KindRef)
		if v == nil {
			return nil, nil, false, errors.New("throw of null")
		}
		return nil, nil, false, &ThrownError{Value: v}

	// ============ Return ============
	case OpReturn:
		return nil, nil, true, nil

	case OpIReturn, OpLReturn, OpFReturn, OpDReturn, OpAReturn:
		k := [...]Kind{KindInt, KindLong, KindFloat, KindDouble, KindRef}[op-OpIReturn]
		return nil, vm.pop(k), true, nil

	default:
		return nil, nil, false, fmt.Errorf("unknown opcode: %s", op)
	}
	return next, nil, false, nil
}

// vmError aborts a step from deep inside a stack helper.
type vmError string

func (e vmError) Error() string { return string(e) }

func (vm *VM) push(v Value, k Kind) {
	vm.stack = append(vm.stack, v)
	if k.Size() == 2 {
		vm.stack = append(vm.stack, wideHalf{})
	}
}

func (vm *VM) pop(k Kind) Value {
	s := vm.popSlots(k.Size())
	return s[0]
}

func (vm *VM) popObject() *Object {
	v := vm.pop(KindRef)
	obj, ok := v.(*Object)
	if !ok {
		panic(vmError(fmt.Sprintf("field access on %T", v)))
	}
	return obj
}

// popSlots removes the top n slots and returns them bottom first.
func (vm *VM) popSlots(n int) []Value {
	if len(vm.stack) < n {
		panic(vmError("stack underflow"))
	}
	top := len(vm.stack) - n
	out := make([]Value, n)
	copy(out, vm.stack[top:])
	vm.stack = vm.stack[:top]
	return out
}

// pushSlots pushes each group of slots in order.
func (vm *VM) pushSlots(groups ...[]Value) {
	for _, g := range groups {
		vm.stack = append(vm.stack, g...)
	}
}

func staticKey(f *FieldRef) string {
	return f.Owner + "." + f.Name
}

func zeroValue(k Kind) Value {
	switch k {
	case KindInt, KindLong:
		return int64(0)
	case KindFloat, KindDouble:
		return float64(0)
	}
	return nil
}

func asInt(v Value) int64 {
	i, ok := v.(int64)
	if !ok {
		panic(vmError(fmt.Sprintf("expected integer, got %T", v)))
	}
	return i
}

func asFloat(v Value) float64 {
	f, ok := v.(float64)
	if !ok {
		panic(vmError(fmt.Sprintf("expected float, got %T", v)))
	}
	return f
}

func intBinary(op Opcode, a, b int64) (int64, error) {
	switch op {
	case OpIAdd, OpLAdd:
		return a + b, nil
	case OpISub, OpLSub:
		return a - b, nil
	case OpIMul, OpLMul:
		return a * b, nil
	case OpIDiv, OpLDiv:
		if b == 0 {
			return 0, errors.New("division by zero")
		}
		return a / b, nil
	case OpIRem, OpLRem:
		if b == 0 {
			return 0, errors.New("division by zero")
		}
		return a % b, nil
	case OpIAnd, OpLAnd:
		return a & b, nil
	case OpIOr, OpLOr:
		return a | b, nil
	case OpIXor, OpLXor:
		return a ^ b, nil
	case OpIShl:
		return a << (b & 31), nil
	case OpIShr:
		return a >> (b & 31), nil
	}
	return 0, fmt.Errorf("not an integer operation: %s", op)
}

// CompareInts reports whether the int compare-and-branch op jumps for the
// operands a (pushed first) and b. ok is false for any other opcode.
func CompareInts(op Opcode, a, b int64) (taken, ok bool) {
	if op < OpIfICmpEq || op > OpIfICmpLe {
		return false, false
	}
	return intCond(op-OpIfICmpEq, int64(int32(a)), int64(int32(b))), true
}

// intCond evaluates the nth condition of the eq/ne/lt/ge/gt/le family.
func intCond(n Opcode, a, b int64) bool {
	switch n {
	case 0:
		return a == b
	case 1:
		return a != b
	case 2:
		return a < b
	case 3:
		return a >= b
	case 4:
		return a > b
	default:
		return a <= b
	}
}

func cmp3(lt, gt bool) int {
	switch {
	case lt:
		return -1
	case gt:
		return 1
	}
	return 0
}
