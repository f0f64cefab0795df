package bytecode

import (
	"fmt"
	"strconv"
	"strings"
)

// Disassemble returns the instruction list in assembler syntax.
// Labels without a name are shown as L<n>; the list is not modified.
func Disassemble(l *InstructionList) string {
	names := labelNames(l)
	var sb strings.Builder
	for insn := l.First(); insn != nil; insn = insn.Next() {
		if insn.Op == OpLabel {
			sb.WriteString(names[insn])
			sb.WriteString(":\n")
			continue
		}
		sb.WriteString("  ")
		sb.WriteString(formatInsn(insn, names))
		sb.WriteString("\n")
	}
	return sb.String()
}

// DisassembleMethod returns a human-readable listing with a header describing
// the method and its exception handlers.
func DisassembleMethod(owner string, m *Method) string {
	names := labelNames(m.Instructions)
	var sb strings.Builder

	// Header
	sb.WriteString(fmt.Sprintf("; === %s.%s%s ===\n", owner, m.Name, m.Descriptor()))
	if m.Static {
		sb.WriteString("; static")
	} else {
		sb.WriteString("; instance")
	}
	if m.MaxLocals > 0 {
		sb.WriteString(fmt.Sprintf(", locals: %d", m.MaxLocals))
	}
	sb.WriteString(fmt.Sprintf(", instructions: %d\n", m.Instructions.Len()))

	// Handlers
	for _, h := range m.Handlers {
		catch := h.Type
		if catch == "" {
			catch = "*"
		}
		sb.WriteString(fmt.Sprintf("; handler %s..%s -> %s %s\n",
			names[h.Start], names[h.End], names[h.Handler], catch))
	}

	sb.WriteString(Disassemble(m.Instructions))
	return sb.String()
}

// NameLabels gives every unnamed label in the list a unique L<n> name.
func NameLabels(l *InstructionList) {
	for insn, name := range labelNames(l) {
		insn.Str = name
	}
}

// labelNames maps every label to its display name, generating L<n> names for
// unnamed labels that do not collide with existing ones.
func labelNames(l *InstructionList) map[*Instruction]string {
	names := make(map[*Instruction]string)
	taken := make(map[string]bool)
	for insn := l.First(); insn != nil; insn = insn.Next() {
		if insn.Op == OpLabel && insn.Str != "" {
			names[insn] = insn.Str
			taken[insn.Str] = true
		}
	}
	next := 0
	for insn := l.First(); insn != nil; insn = insn.Next() {
		if insn.Op != OpLabel || insn.Str != "" {
			continue
		}
		for {
			name := "L" + strconv.Itoa(next)
			next++
			if !taken[name] {
				names[insn] = name
				taken[name] = true
				break
			}
		}
	}
	return names
}

// formatInsn renders a single instruction. names supplies label names; when
// nil, labels are shown by their own name.
func formatInsn(insn *Instruction, names map[*Instruction]string) string {
	info := GetOpcodeInfo(insn.Op)

	switch info.Operand {
	case OperandInt:
		return fmt.Sprintf("%s %d", info.Name, insn.Int)
	case OperandFloat:
		return fmt.Sprintf("%s %s", info.Name, strconv.FormatFloat(insn.Float, 'g', -1, 64))
	case OperandString:
		return fmt.Sprintf("%s %s", info.Name, strconv.Quote(insn.Str))
	case OperandVar:
		return fmt.Sprintf("%s %d", info.Name, insn.Var)
	case OperandIInc:
		return fmt.Sprintf("%s %d %d", info.Name, insn.Var, insn.Int)
	case OperandField:
		if insn.Field == nil {
			return info.Name + " <nil>"
		}
		return fmt.Sprintf("%s %s", info.Name, insn.Field)
	case OperandMethod:
		if insn.Method == nil {
			return info.Name + " <nil>"
		}
		return fmt.Sprintf("%s %s", info.Name, insn.Method)
	case OperandJump:
		return fmt.Sprintf("%s %s", info.Name, labelName(insn.Target, names))
	case OperandClass:
		return fmt.Sprintf("%s %s", info.Name, insn.Str)
	case OperandLabel:
		return labelName(insn, names) + ":"
	default:
		return info.Name
	}
}

func labelName(label *Instruction, names map[*Instruction]string) string {
	if label == nil {
		return "<nil>"
	}
	if name, ok := names[label]; ok {
		return name
	}
	if label.Str != "" {
		return label.Str
	}
	return "<label>"
}
