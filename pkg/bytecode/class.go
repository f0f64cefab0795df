package bytecode

import (
	"fmt"
	"slices"
)

// Field is a field declared by a class.
type Field struct {
	Name   string
	Kind   Kind
	Static bool
}

// ExceptionHandler covers the instructions from Start (inclusive) to End
// (exclusive) and transfers control to Handler. All three are labels.
type ExceptionHandler struct {
	Start   *Instruction
	End     *Instruction
	Handler *Instruction
	Type    string // Caught class name, empty for catch-all
}

// Method is a named instruction list with its signature.
type Method struct {
	Name         string
	Params       []Kind
	Return       Kind
	Static       bool
	MaxLocals    int
	Instructions *InstructionList
	Handlers     []*ExceptionHandler
}

// NewMethod creates a method around an instruction list.
func NewMethod(name string, desc string, static bool, insns *InstructionList) (*Method, error) {
	params, ret, err := ParseDescriptor(desc)
	if err != nil {
		return nil, err
	}
	if insns == nil {
		insns = NewInstructionList()
	}
	return &Method{
		Name:         name,
		Params:       params,
		Return:       ret,
		Static:       static,
		Instructions: insns,
	}, nil
}

// Descriptor returns the "(params)return" signature.
func (m *Method) Descriptor() string {
	return Descriptor(m.Params, m.Return)
}

// ParamSlots returns the number of local slots taken by the receiver and
// parameters on entry.
func (m *Method) ParamSlots() int {
	n := 0
	if !m.Static {
		n++
	}
	for _, p := range m.Params {
		n += p.Size()
	}
	return n
}

// String returns "name(desc)".
func (m *Method) String() string {
	return m.Name + m.Descriptor()
}

// Class is a named collection of fields and methods.
type Class struct {
	Name    string
	Super   string
	Fields  []*Field
	Methods []*Method
}

// Method returns the method with the given name and descriptor, or nil.
func (c *Class) Method(name, desc string) *Method {
	for _, m := range c.Methods {
		if m.Name == name && m.Descriptor() == desc {
			return m
		}
	}
	return nil
}

// Field returns the field with the given name, or nil.
func (c *Class) Field(name string) *Field {
	for _, f := range c.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// ClassPool resolves classes by name. It is populated before a pipeline runs
// and only read afterwards, so concurrent lookups need no locking.
type ClassPool struct {
	classes map[string]*Class
	order   []string
}

// NewClassPool creates a pool holding the given classes.
func NewClassPool(classes ...*Class) (*ClassPool, error) {
	p := &ClassPool{classes: make(map[string]*Class, len(classes))}
	for _, c := range classes {
		if err := p.Add(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Add registers a class. Names must be unique.
func (p *ClassPool) Add(c *Class) error {
	if _, exists := p.classes[c.Name]; exists {
		return fmt.Errorf("duplicate class %q", c.Name)
	}
	p.classes[c.Name] = c
	p.order = append(p.order, c.Name)
	return nil
}

// Lookup returns the class with the given name, or nil.
func (p *ClassPool) Lookup(name string) *Class {
	return p.classes[name]
}

// Classes returns the classes in insertion order.
func (p *ClassPool) Classes() []*Class {
	out := make([]*Class, 0, len(p.order))
	for _, name := range p.order {
		out = append(out, p.classes[name])
	}
	return out
}

// Names returns the class names sorted alphabetically.
func (p *ClassPool) Names() []string {
	names := slices.Clone(p.order)
	slices.Sort(names)
	return names
}

// Len returns the number of classes.
func (p *ClassPool) Len() int {
	return len(p.order)
}
