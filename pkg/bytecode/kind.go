package bytecode

import (
	"fmt"
	"strings"
)

// Kind is the category of a value held in a stack or local slot.
type Kind uint8

const (
	KindVoid Kind = iota
	KindInt
	KindLong
	KindFloat
	KindDouble
	KindRef
)

// Size returns the number of slots a value of this kind occupies.
// Long and double values are category-2 and take two slots.
func (k Kind) Size() int {
	switch k {
	case KindVoid:
		return 0
	case KindLong, KindDouble:
		return 2
	default:
		return 1
	}
}

// Descriptor returns the single-letter descriptor for the kind.
func (k Kind) Descriptor() byte {
	switch k {
	case KindInt:
		return 'I'
	case KindLong:
		return 'J'
	case KindFloat:
		return 'F'
	case KindDouble:
		return 'D'
	case KindRef:
		return 'A'
	default:
		return 'V'
	}
}

// String returns the descriptor letter as a string.
func (k Kind) String() string {
	return string(k.Descriptor())
}

// KindOf parses a single-letter descriptor.
func KindOf(c byte) (Kind, bool) {
	switch c {
	case 'V':
		return KindVoid, true
	case 'I':
		return KindInt, true
	case 'J':
		return KindLong, true
	case 'F':
		return KindFloat, true
	case 'D':
		return KindDouble, true
	case 'A':
		return KindRef, true
	}
	return KindVoid, false
}

// FieldRef identifies a field accessed by a field instruction.
type FieldRef struct {
	Owner string
	Name  string
	Kind  Kind
}

// String renders the reference as "owner.name kind".
func (f *FieldRef) String() string {
	return fmt.Sprintf("%s.%s %s", f.Owner, f.Name, f.Kind)
}

// Equal reports whether both references name the same field.
func (f *FieldRef) Equal(other *FieldRef) bool {
	if f == nil || other == nil {
		return f == other
	}
	return *f == *other
}

// MethodRef identifies the target of an invoke instruction.
type MethodRef struct {
	Owner  string
	Name   string
	Params []Kind
	Return Kind
}

// Descriptor returns the "(params)return" form of the signature.
func (m *MethodRef) Descriptor() string {
	return Descriptor(m.Params, m.Return)
}

// String renders the reference as "owner.name(params)return".
func (m *MethodRef) String() string {
	return fmt.Sprintf("%s.%s %s", m.Owner, m.Name, m.Descriptor())
}

// Descriptor builds a method descriptor such as "(IJ)V".
func Descriptor(params []Kind, ret Kind) string {
	var sb strings.Builder
	sb.WriteByte('(')
	for _, p := range params {
		sb.WriteByte(p.Descriptor())
	}
	sb.WriteByte(')')
	sb.WriteByte(ret.Descriptor())
	return sb.String()
}

// ParseDescriptor parses a method descriptor such as "(IJ)V".
func ParseDescriptor(desc string) ([]Kind, Kind, error) {
	if len(desc) < 3 || desc[0] != '(' {
		return nil, KindVoid, fmt.Errorf("invalid method descriptor %q", desc)
	}
	end := strings.IndexByte(desc, ')')
	if end < 0 || end != len(desc)-2 {
		return nil, KindVoid, fmt.Errorf("invalid method descriptor %q", desc)
	}
	var params []Kind
	for i := 1; i < end; i++ {
		k, ok := KindOf(desc[i])
		if !ok || k == KindVoid {
			return nil, KindVoid, fmt.Errorf("invalid parameter type %q in descriptor %q", desc[i], desc)
		}
		params = append(params, k)
	}
	ret, ok := KindOf(desc[end+1])
	if !ok {
		return nil, KindVoid, fmt.Errorf("invalid return type %q in descriptor %q", desc[end+1], desc)
	}
	return params, ret, nil
}

// splitMember splits "owner.name" at the last dot.
func splitMember(s string) (owner, name string, ok bool) {
	i := strings.LastIndexByte(s, '.')
	if i <= 0 || i == len(s)-1 {
		return "", "", false
	}
	return s[:i], s[i+1:], true
}
