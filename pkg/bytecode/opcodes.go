package bytecode

import "fmt"

// Opcode represents a bytecode instruction.
// Opcodes are organized into ranges by category for easy identification.
type Opcode byte

const (
	// ========================================================================
	// Stack manipulation (0x00-0x0F)
	// ========================================================================

	OpNop    Opcode = 0x00 // No operation
	OpPop    Opcode = 0x01 // Pop one category-1 value
	OpPop2   Opcode = 0x02 // Pop one category-2 value or two category-1 values
	OpDup    Opcode = 0x03 // Duplicate top of stack
	OpDupX1  Opcode = 0x04 // Duplicate top, insert beneath second value
	OpDupX2  Opcode = 0x05 // Duplicate top, insert beneath third slot
	OpDup2   Opcode = 0x06 // Duplicate top two slots
	OpDup2X1 Opcode = 0x07 // Duplicate top two slots, insert beneath third slot
	OpDup2X2 Opcode = 0x08 // Duplicate top two slots, insert beneath fourth slot
	OpSwap   Opcode = 0x09 // Swap top two category-1 values

	// ========================================================================
	// Constants (0x10-0x1F)
	// ========================================================================

	OpConstNull Opcode = 0x10 // Push null reference
	OpIConst    Opcode = 0x11 // Push int: OpIConst <int>
	OpLConst    Opcode = 0x12 // Push long: OpLConst <int>
	OpFConst    Opcode = 0x13 // Push float: OpFConst <float>
	OpDConst    Opcode = 0x14 // Push double: OpDConst <float>
	OpSConst    Opcode = 0x15 // Push string reference: OpSConst <string>

	// ========================================================================
	// Local variables (0x20-0x2F)
	// ========================================================================

	OpILoad  Opcode = 0x20 // Push int local: OpILoad <slot>
	OpLLoad  Opcode = 0x21 // Push long local
	OpFLoad  Opcode = 0x22 // Push float local
	OpDLoad  Opcode = 0x23 // Push double local
	OpALoad  Opcode = 0x24 // Push reference local
	OpIStore Opcode = 0x25 // Pop int into local: OpIStore <slot>
	OpLStore Opcode = 0x26 // Pop long into local
	OpFStore Opcode = 0x27 // Pop float into local
	OpDStore Opcode = 0x28 // Pop double into local
	OpAStore Opcode = 0x29 // Pop reference into local
	OpIInc   Opcode = 0x2A // Increment int local: OpIInc <slot> <delta>

	// ========================================================================
	// Fields (0x30-0x3F)
	// ========================================================================

	OpGetStatic Opcode = 0x30 // Push static field: OpGetStatic <owner.name kind>
	OpPutStatic Opcode = 0x31 // Pop into static field
	OpGetField  Opcode = 0x32 // Pop object, push its field
	OpPutField  Opcode = 0x33 // Pop object and value, store field

	// ========================================================================
	// Int arithmetic (0x40-0x4F)
	// ========================================================================

	OpIAdd Opcode = 0x40 // Pop two ints, push sum
	OpISub Opcode = 0x41 // Pop two ints, push difference (a - b where b is TOS)
	OpIMul Opcode = 0x42 // Pop two ints, push product
	OpIDiv Opcode = 0x43 // Pop two ints, push quotient
	OpIRem Opcode = 0x44 // Pop two ints, push remainder
	OpINeg Opcode = 0x45 // Negate int on top of stack
	OpIAnd Opcode = 0x46 // Bitwise AND
	OpIOr  Opcode = 0x47 // Bitwise OR
	OpIXor Opcode = 0x48 // Bitwise XOR
	OpIShl Opcode = 0x49 // Shift left
	OpIShr Opcode = 0x4A // Arithmetic shift right

	// ========================================================================
	// Long arithmetic and conversions (0x50-0x5F)
	// ========================================================================

	OpLAdd Opcode = 0x50 // Pop two longs, push sum
	OpLSub Opcode = 0x51 // Pop two longs, push difference
	OpLMul Opcode = 0x52 // Pop two longs, push product
	OpLDiv Opcode = 0x53 // Pop two longs, push quotient
	OpLRem Opcode = 0x54 // Pop two longs, push remainder
	OpLNeg Opcode = 0x55 // Negate long
	OpLAnd Opcode = 0x56 // Bitwise AND
	OpLOr  Opcode = 0x57 // Bitwise OR
	OpLXor Opcode = 0x58 // Bitwise XOR
	OpI2L  Opcode = 0x59 // Widen int to long
	OpL2I  Opcode = 0x5A // Narrow long to int

	// ========================================================================
	// Value comparison (0x60-0x6F)
	// ========================================================================

	OpLCmp  Opcode = 0x60 // Pop two longs, push -1/0/1
	OpFCmpL Opcode = 0x61 // Pop two floats, push -1/0/1 (-1 on NaN)
	OpFCmpG Opcode = 0x62 // Pop two floats, push -1/0/1 (1 on NaN)
	OpDCmpL Opcode = 0x63 // Pop two doubles, push -1/0/1 (-1 on NaN)
	OpDCmpG Opcode = 0x64 // Pop two doubles, push -1/0/1 (1 on NaN)

	// ========================================================================
	// Control flow (0x70-0x8F)
	// ========================================================================

	OpGoto      Opcode = 0x70 // Unconditional jump: OpGoto <label>
	OpIfEq      Opcode = 0x71 // Pop int, jump if == 0
	OpIfNe      Opcode = 0x72 // Pop int, jump if != 0
	OpIfLt      Opcode = 0x73 // Pop int, jump if < 0
	OpIfGe      Opcode = 0x74 // Pop int, jump if >= 0
	OpIfGt      Opcode = 0x75 // Pop int, jump if > 0
	OpIfLe      Opcode = 0x76 // Pop int, jump if <= 0
	OpIfICmpEq  Opcode = 0x77 // Pop two ints, jump if a == b
	OpIfICmpNe  Opcode = 0x78 // Pop two ints, jump if a != b
	OpIfICmpLt  Opcode = 0x79 // Pop two ints, jump if a < b
	OpIfICmpGe  Opcode = 0x7A // Pop two ints, jump if a >= b
	OpIfICmpGt  Opcode = 0x7B // Pop two ints, jump if a > b
	OpIfICmpLe  Opcode = 0x7C // Pop two ints, jump if a <= b
	OpIfACmpEq  Opcode = 0x7D // Pop two references, jump if identical
	OpIfACmpNe  Opcode = 0x7E // Pop two references, jump if not identical
	OpIfNull    Opcode = 0x7F // Pop reference, jump if null
	OpIfNonNull Opcode = 0x80 // Pop reference, jump if not null

	// ========================================================================
	// Invocation (0x90-0x9F)
	// ========================================================================

	OpInvokeStatic  Opcode = 0x90 // Call static method: OpInvokeStatic <owner.name (desc)>
	OpInvokeVirtual Opcode = 0x91 // Call instance method: pops receiver + args

	// ========================================================================
	// Objects (0xA0-0xAF)
	// ========================================================================

	OpNew    Opcode = 0xA0 // Push new instance: OpNew <class>
	OpAThrow Opcode = 0xA1 // Pop reference and throw it

	// ========================================================================
	// Return (0xF0-0xFE)
	// ========================================================================

	OpReturn  Opcode = 0xF0 // Return void
	OpIReturn Opcode = 0xF1 // Return int
	OpLReturn Opcode = 0xF2 // Return long
	OpFReturn Opcode = 0xF3 // Return float
	OpDReturn Opcode = 0xF4 // Return double
	OpAReturn Opcode = 0xF5 // Return reference

	// ========================================================================
	// Pseudo instructions (0xFF)
	// ========================================================================

	OpLabel Opcode = 0xFF // Jump target / handler boundary, never executed
)

// OperandType describes which Instruction fields carry an opcode's operand.
type OperandType uint8

const (
	OperandNone   OperandType = iota
	OperandInt                // Instruction.Int
	OperandFloat              // Instruction.Float
	OperandString             // Instruction.Str
	OperandVar                // Instruction.Var
	OperandIInc               // Instruction.Var and Instruction.Int
	OperandField              // Instruction.Field
	OperandMethod             // Instruction.Method
	OperandJump               // Instruction.Target
	OperandClass              // Instruction.Str holds a class name
	OperandLabel              // Instruction.Str holds the label name
)

// OpcodeInfo provides metadata about each opcode for analysis and validation.
type OpcodeInfo struct {
	Name      string      // Human-readable name
	StackPop  int         // How many values popped from stack (-1 = depends on frame or operand)
	StackPush int         // How many values pushed to stack (-1 = depends on frame or operand)
	Result    Kind        // Kind of the pushed value when StackPush == 1
	Operand   OperandType // Operand carried by the instruction
}

// opcodeInfoTable maps opcodes to their metadata.
var opcodeInfoTable = map[Opcode]OpcodeInfo{
	// Stack manipulation
	OpNop:    {"NOP", 0, 0, KindVoid, OperandNone},
	OpPop:    {"POP", 1, 0, KindVoid, OperandNone},
	OpPop2:   {"POP2", -1, 0, KindVoid, OperandNone}, // One wide or two narrow
	OpDup:    {"DUP", 1, 2, KindVoid, OperandNone},
	OpDupX1:  {"DUP_X1", 2, 3, KindVoid, OperandNone},
	OpDupX2:  {"DUP_X2", -1, -1, KindVoid, OperandNone},
	OpDup2:   {"DUP2", -1, -1, KindVoid, OperandNone},
	OpDup2X1: {"DUP2_X1", -1, -1, KindVoid, OperandNone},
	OpDup2X2: {"DUP2_X2", -1, -1, KindVoid, OperandNone},
	OpSwap:   {"SWAP", 2, 2, KindVoid, OperandNone},

	// Constants
	OpConstNull: {"CONST_NULL", 0, 1, KindRef, OperandNone},
	OpIConst:    {"ICONST", 0, 1, KindInt, OperandInt},
	OpLConst:    {"LCONST", 0, 1, KindLong, OperandInt},
	OpFConst:    {"FCONST", 0, 1, KindFloat, OperandFloat},
	OpDConst:    {"DCONST", 0, 1, KindDouble, OperandFloat},
	OpSConst:    {"SCONST", 0, 1, KindRef, OperandString},

	// Local variables
	OpILoad:  {"ILOAD", 0, 1, KindInt, OperandVar},
	OpLLoad:  {"LLOAD", 0, 1, KindLong, OperandVar},
	OpFLoad:  {"FLOAD", 0, 1, KindFloat, OperandVar},
	OpDLoad:  {"DLOAD", 0, 1, KindDouble, OperandVar},
	OpALoad:  {"ALOAD", 0, 1, KindRef, OperandVar},
	OpIStore: {"ISTORE", 1, 0, KindInt, OperandVar},
	OpLStore: {"LSTORE", 1, 0, KindLong, OperandVar},
	OpFStore: {"FSTORE", 1, 0, KindFloat, OperandVar},
	OpDStore: {"DSTORE", 1, 0, KindDouble, OperandVar},
	OpAStore: {"ASTORE", 1, 0, KindRef, OperandVar},
	OpIInc:   {"IINC", 0, 0, KindVoid, OperandIInc},

	// Fields
	OpGetStatic: {"GETSTATIC", 0, 1, KindVoid, OperandField}, // Result from field kind
	OpPutStatic: {"PUTSTATIC", 1, 0, KindVoid, OperandField},
	OpGetField:  {"GETFIELD", 1, 1, KindVoid, OperandField},
	OpPutField:  {"PUTFIELD", 2, 0, KindVoid, OperandField},

	// Int arithmetic
	OpIAdd: {"IADD", 2, 1, KindInt, OperandNone},
	OpISub: {"ISUB", 2, 1, KindInt, OperandNone},
	OpIMul: {"IMUL", 2, 1, KindInt, OperandNone},
	OpIDiv: {"IDIV", 2, 1, KindInt, OperandNone},
	OpIRem: {"IREM", 2, 1, KindInt, OperandNone},
	OpINeg: {"INEG", 1, 1, KindInt, OperandNone},
	OpIAnd: {"IAND", 2, 1, KindInt, OperandNone},
	OpIOr:  {"IOR", 2, 1, KindInt, OperandNone},
	OpIXor: {"IXOR", 2, 1, KindInt, OperandNone},
	OpIShl: {"ISHL", 2, 1, KindInt, OperandNone},
	OpIShr: {"ISHR", 2, 1, KindInt, OperandNone},

	// Long arithmetic and conversions
	OpLAdd: {"LADD", 2, 1, KindLong, OperandNone},
	OpLSub: {"LSUB", 2, 1, KindLong, OperandNone},
	OpLMul: {"LMUL", 2, 1, KindLong, OperandNone},
	OpLDiv: {"LDIV", 2, 1, KindLong, OperandNone},
	OpLRem: {"LREM", 2, 1, KindLong, OperandNone},
	OpLNeg: {"LNEG", 1, 1, KindLong, OperandNone},
	OpLAnd: {"LAND", 2, 1, KindLong, OperandNone},
	OpLOr:  {"LOR", 2, 1, KindLong, OperandNone},
	OpLXor: {"LXOR", 2, 1, KindLong, OperandNone},
	OpI2L:  {"I2L", 1, 1, KindLong, OperandNone},
	OpL2I:  {"L2I", 1, 1, KindInt, OperandNone},

	// Value comparison
	OpLCmp:  {"LCMP", 2, 1, KindInt, OperandNone},
	OpFCmpL: {"FCMPL", 2, 1, KindInt, OperandNone},
	OpFCmpG: {"FCMPG", 2, 1, KindInt, OperandNone},
	OpDCmpL: {"DCMPL", 2, 1, KindInt, OperandNone},
	OpDCmpG: {"DCMPG", 2, 1, KindInt, OperandNone},

	// Control flow
	OpGoto:      {"GOTO", 0, 0, KindVoid, OperandJump},
	OpIfEq:      {"IFEQ", 1, 0, KindVoid, OperandJump},
	OpIfNe:      {"IFNE", 1, 0, KindVoid, OperandJump},
	OpIfLt:      {"IFLT", 1, 0, KindVoid, OperandJump},
	OpIfGe:      {"IFGE", 1, 0, KindVoid, OperandJump},
	OpIfGt:      {"IFGT", 1, 0, KindVoid, OperandJump},
	OpIfLe:      {"IFLE", 1, 0, KindVoid, OperandJump},
	OpIfICmpEq:  {"IF_ICMPEQ", 2, 0, KindVoid, OperandJump},
	OpIfICmpNe:  {"IF_ICMPNE", 2, 0, KindVoid, OperandJump},
	OpIfICmpLt:  {"IF_ICMPLT", 2, 0, KindVoid, OperandJump},
	OpIfICmpGe:  {"IF_ICMPGE", 2, 0, KindVoid, OperandJump},
	OpIfICmpGt:  {"IF_ICMPGT", 2, 0, KindVoid, OperandJump},
	OpIfICmpLe:  {"IF_ICMPLE", 2, 0, KindVoid, OperandJump},
	OpIfACmpEq:  {"IF_ACMPEQ", 2, 0, KindVoid, OperandJump},
	OpIfACmpNe:  {"IF_ACMPNE", 2, 0, KindVoid, OperandJump},
	OpIfNull:    {"IFNULL", 1, 0, KindVoid, OperandJump},
	OpIfNonNull: {"IFNONNULL", 1, 0, KindVoid, OperandJump},

	// Invocation
	OpInvokeStatic:  {"INVOKESTATIC", -1, -1, KindVoid, OperandMethod},  // Pops params
	OpInvokeVirtual: {"INVOKEVIRTUAL", -1, -1, KindVoid, OperandMethod}, // Pops receiver + params

	// Objects
	OpNew:    {"NEW", 0, 1, KindRef, OperandClass},
	OpAThrow: {"ATHROW", 1, 0, KindVoid, OperandNone},

	// Return
	OpReturn:  {"RETURN", 0, 0, KindVoid, OperandNone},
	OpIReturn: {"IRETURN", 1, 0, KindVoid, OperandNone},
	OpLReturn: {"LRETURN", 1, 0, KindVoid, OperandNone},
	OpFReturn: {"FRETURN", 1, 0, KindVoid, OperandNone},
	OpDReturn: {"DRETURN", 1, 0, KindVoid, OperandNone},
	OpAReturn: {"ARETURN", 1, 0, KindVoid, OperandNone},

	// Pseudo
	OpLabel: {"LABEL", 0, 0, KindVoid, OperandLabel},
}

// opcodesByName is the reverse of opcodeInfoTable, used by the assembler.
var opcodesByName = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeInfoTable))
	for op, info := range opcodeInfoTable {
		m[info.Name] = op
	}
	return m
}()

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with name "UNKNOWN" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// LookupOpcode resolves a mnemonic such as "ICONST" to its opcode.
func LookupOpcode(name string) (Opcode, bool) {
	op, ok := opcodesByName[name]
	return op, ok
}

// String returns the human-readable name of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// Valid reports whether op is a defined opcode.
func (op Opcode) Valid() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

// IsConstant returns true if this opcode pushes a compile-time constant.
func (op Opcode) IsConstant() bool {
	return op >= OpConstNull && op <= OpSConst
}

// IsNumber returns true if this opcode pushes a numeric constant.
func (op Opcode) IsNumber() bool {
	return op >= OpIConst && op <= OpDConst
}

// IsVarLoad returns true if this opcode pushes a local variable.
func (op Opcode) IsVarLoad() bool {
	return op >= OpILoad && op <= OpALoad
}

// IsVarStore returns true if this opcode pops into a local variable.
func (op Opcode) IsVarStore() bool {
	return op >= OpIStore && op <= OpAStore
}

// IsPop returns true for POP and POP2.
func (op Opcode) IsPop() bool {
	return op == OpPop || op == OpPop2
}

// IsDup returns true for the stack duplication family.
func (op Opcode) IsDup() bool {
	return op >= OpDup && op <= OpDup2X2
}

// IsJump returns true if this opcode is a jump instruction.
func (op Opcode) IsJump() bool {
	return op >= OpGoto && op <= OpIfNonNull
}

// IsConditionalJump returns true if this opcode may fall through or jump.
func (op Opcode) IsConditionalJump() bool {
	return op > OpGoto && op <= OpIfNonNull
}

// IsCompare returns true for the two-operand compare-and-branch opcodes.
func (op Opcode) IsCompare() bool {
	return op >= OpIfICmpEq && op <= OpIfACmpNe
}

// IsValueCompare returns true for opcodes that push the result of a comparison.
func (op Opcode) IsValueCompare() bool {
	return op >= OpLCmp && op <= OpDCmpG
}

// IsReturn returns true if this opcode terminates execution.
func (op Opcode) IsReturn() bool {
	return op >= OpReturn && op <= OpAReturn
}

// IsInvoke returns true if this opcode calls a method.
func (op Opcode) IsInvoke() bool {
	return op == OpInvokeStatic || op == OpInvokeVirtual
}

// IsFieldAccess returns true for field loads and stores.
func (op Opcode) IsFieldAccess() bool {
	return op >= OpGetStatic && op <= OpPutField
}

// IsTerminal returns true if control never falls through to the next instruction.
func (op Opcode) IsTerminal() bool {
	return op == OpGoto || op == OpAThrow || op.IsReturn()
}

// IsPseudo returns true for list members that are never executed.
func (op Opcode) IsPseudo() bool {
	return op == OpLabel
}

// AllOpcodes returns a slice of all defined opcodes.
// Useful for testing that all opcodes have metadata.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}
