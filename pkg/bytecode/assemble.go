package bytecode

import (
	"fmt"
	"strconv"
	"strings"
)

// Assembly is the result of assembling source text.
type Assembly struct {
	Instructions *InstructionList
	Labels       map[string]*Instruction
}

// Assemble parses assembler syntax, one instruction per line:
//
//	  ICONST 5
//	  PUTSTATIC a/B.f I
//	  IF_ICMPEQ done      ; comments run to end of line
//	done:
//	  RETURN
//
// Labels may be referenced before they are defined.
func Assemble(src string) (*Assembly, error) {
	lines := strings.Split(src, "\n")
	asm := &Assembly{
		Instructions: NewInstructionList(),
		Labels:       make(map[string]*Instruction),
	}

	// Collect label definitions first so forward jumps resolve
	for n, raw := range lines {
		line := strings.TrimSpace(stripComment(raw))
		name, ok := labelDef(line)
		if !ok {
			continue
		}
		if _, dup := asm.Labels[name]; dup {
			return nil, fmt.Errorf("line %d: duplicate label %q", n+1, name)
		}
		asm.Labels[name] = NewLabel(name)
	}

	for n, raw := range lines {
		line := strings.TrimSpace(stripComment(raw))
		if line == "" {
			continue
		}
		if name, ok := labelDef(line); ok {
			asm.Instructions.Append(asm.Labels[name])
			continue
		}
		insn, err := parseInsn(line, asm.Labels)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n+1, err)
		}
		asm.Instructions.Append(insn)
	}
	return asm, nil
}

// MustAssemble is like Assemble but panics on error. Intended for tests and
// package-level fixtures.
func MustAssemble(src string) *InstructionList {
	asm, err := Assemble(src)
	if err != nil {
		panic(err)
	}
	return asm.Instructions
}

func parseInsn(line string, labels map[string]*Instruction) (*Instruction, error) {
	mnemonic, rest, _ := strings.Cut(line, " ")
	if i := strings.IndexByte(mnemonic, '\t'); i >= 0 {
		mnemonic, rest = mnemonic[:i], mnemonic[i+1:]+" "+rest
	}
	rest = strings.TrimSpace(rest)

	op, ok := LookupOpcode(strings.ToUpper(mnemonic))
	if !ok || op == OpLabel {
		return nil, fmt.Errorf("unknown opcode %q", mnemonic)
	}
	insn := &Instruction{Op: op}
	fields := strings.Fields(rest)

	switch GetOpcodeInfo(op).Operand {
	case OperandNone:
		if rest != "" {
			return nil, fmt.Errorf("%s takes no operand, got %q", op, rest)
		}
	case OperandInt:
		v, err := strconv.ParseInt(rest, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid integer %q", op, rest)
		}
		insn.Int = v
	case OperandFloat:
		v, err := strconv.ParseFloat(rest, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid float %q", op, rest)
		}
		insn.Float = v
	case OperandString:
		s, err := strconv.Unquote(rest)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid string literal %s", op, rest)
		}
		insn.Str = s
	case OperandVar:
		if len(fields) != 1 {
			return nil, fmt.Errorf("%s expects a slot index", op)
		}
		v, err := strconv.Atoi(fields[0])
		if err != nil || v < 0 {
			return nil, fmt.Errorf("%s: invalid slot %q", op, fields[0])
		}
		insn.Var = v
	case OperandIInc:
		if len(fields) != 2 {
			return nil, fmt.Errorf("%s expects a slot and a delta", op)
		}
		v, err := strconv.Atoi(fields[0])
		if err != nil || v < 0 {
			return nil, fmt.Errorf("%s: invalid slot %q", op, fields[0])
		}
		d, err := strconv.ParseInt(fields[1], 0, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid delta %q", op, fields[1])
		}
		insn.Var, insn.Int = v, d
	case OperandField:
		if len(fields) != 2 || len(fields[1]) != 1 {
			return nil, fmt.Errorf("%s expects owner.name and a kind", op)
		}
		owner, name, ok := splitMember(fields[0])
		if !ok {
			return nil, fmt.Errorf("%s: invalid field %q", op, fields[0])
		}
		kind, ok := KindOf(fields[1][0])
		if !ok || kind == KindVoid {
			return nil, fmt.Errorf("%s: invalid field kind %q", op, fields[1])
		}
		insn.Field = &FieldRef{Owner: owner, Name: name, Kind: kind}
	case OperandMethod:
		if len(fields) != 2 {
			return nil, fmt.Errorf("%s expects owner.name and a descriptor", op)
		}
		owner, name, ok := splitMember(fields[0])
		if !ok {
			return nil, fmt.Errorf("%s: invalid method %q", op, fields[0])
		}
		params, ret, err := ParseDescriptor(fields[1])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		insn.Method = &MethodRef{Owner: owner, Name: name, Params: params, Return: ret}
	case OperandJump:
		if len(fields) != 1 {
			return nil, fmt.Errorf("%s expects a label", op)
		}
		target, ok := labels[fields[0]]
		if !ok {
			return nil, fmt.Errorf("%s: undefined label %q", op, fields[0])
		}
		insn.Target = target
	case OperandClass:
		if len(fields) != 1 {
			return nil, fmt.Errorf("%s expects a class name", op)
		}
		insn.Str = fields[0]
	}
	return insn, nil
}

// labelDef reports whether line defines a label ("name:").
func labelDef(line string) (string, bool) {
	if len(line) < 2 || !strings.HasSuffix(line, ":") {
		return "", false
	}
	name := line[:len(line)-1]
	if strings.ContainsAny(name, " \t\"") {
		return "", false
	}
	return name, true
}

// stripComment removes a trailing ';' comment, ignoring semicolons inside
// string literals.
func stripComment(line string) string {
	inQuote, escaped := false, false
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inQuote:
			escaped = true
		case c == '"':
			inQuote = !inQuote
		case c == ';' && !inQuote:
			return line[:i]
		}
	}
	return line
}
