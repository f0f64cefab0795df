// Package corpus reads and writes classes as bundles, either CBOR for
// compact storage or YAML for review and hand editing. Method bodies are
// stored as assembler text.
package corpus

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"

	"github.com/chazu/scour/pkg/bytecode"
)

// BundleVersion is the bundle layout written by Encode.
const BundleVersion = 1

// Format selects the bundle encoding.
type Format string

const (
	FormatCBOR Format = "cbor"
	FormatYAML Format = "yaml"
)

// ErrUnknownFormat is returned for a format other than cbor or yaml.
var ErrUnknownFormat = errors.New("unknown bundle format")

// Bundle is the serialized form of a set of classes.
type Bundle struct {
	Version int        `cbor:"version" yaml:"version"`
	Classes []ClassDoc `cbor:"classes" yaml:"classes"`
}

type ClassDoc struct {
	Name    string      `cbor:"name" yaml:"name"`
	Super   string      `cbor:"super,omitempty" yaml:"super,omitempty"`
	Fields  []FieldDoc  `cbor:"fields,omitempty" yaml:"fields,omitempty"`
	Methods []MethodDoc `cbor:"methods,omitempty" yaml:"methods,omitempty"`
}

type FieldDoc struct {
	Name   string `cbor:"name" yaml:"name"`
	Kind   string `cbor:"kind" yaml:"kind"`
	Static bool   `cbor:"static,omitempty" yaml:"static,omitempty"`
}

type MethodDoc struct {
	Name       string       `cbor:"name" yaml:"name"`
	Descriptor string       `cbor:"desc" yaml:"desc"`
	Static     bool         `cbor:"static,omitempty" yaml:"static,omitempty"`
	MaxLocals  int          `cbor:"max-locals,omitempty" yaml:"max-locals,omitempty"`
	Handlers   []HandlerDoc `cbor:"handlers,omitempty" yaml:"handlers,omitempty"`
	Code       string       `cbor:"code" yaml:"code"`
}

// HandlerDoc names the labels of an exception handler.
type HandlerDoc struct {
	Start   string `cbor:"start" yaml:"start"`
	End     string `cbor:"end" yaml:"end"`
	Handler string `cbor:"handler" yaml:"handler"`
	Type    string `cbor:"type,omitempty" yaml:"type,omitempty"`
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("corpus: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Encode serializes classes in the given format. Unnamed labels in the
// method bodies are given names so that handlers can refer to them.
func Encode(classes []*bytecode.Class, format Format) ([]byte, error) {
	b := Bundle{Version: BundleVersion}
	for _, c := range classes {
		b.Classes = append(b.Classes, classDoc(c))
	}

	switch format {
	case FormatCBOR:
		return cborEncMode.Marshal(&b)
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(&b); err != nil {
			return nil, fmt.Errorf("corpus: encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("corpus: encode yaml: %w", err)
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// Decode parses a bundle and rebuilds its classes.
func Decode(data []byte, format Format) ([]*bytecode.Class, error) {
	var b Bundle
	switch format {
	case FormatCBOR:
		if err := cbor.Unmarshal(data, &b); err != nil {
			return nil, fmt.Errorf("corpus: decode cbor: %w", err)
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&b); err != nil {
			return nil, fmt.Errorf("corpus: decode yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	if b.Version != BundleVersion {
		return nil, fmt.Errorf("corpus: unsupported bundle version %d", b.Version)
	}
	classes := make([]*bytecode.Class, 0, len(b.Classes))
	for _, doc := range b.Classes {
		c, err := doc.class()
		if err != nil {
			return nil, err
		}
		classes = append(classes, c)
	}
	return classes, nil
}

func classDoc(c *bytecode.Class) ClassDoc {
	doc := ClassDoc{Name: c.Name, Super: c.Super}
	for _, f := range c.Fields {
		doc.Fields = append(doc.Fields, FieldDoc{
			Name:   f.Name,
			Kind:   string(f.Kind.Descriptor()),
			Static: f.Static,
		})
	}
	for _, m := range c.Methods {
		bytecode.NameLabels(m.Instructions)
		md := MethodDoc{
			Name:       m.Name,
			Descriptor: m.Descriptor(),
			Static:     m.Static,
			MaxLocals:  m.MaxLocals,
			Code:       bytecode.Disassemble(m.Instructions),
		}
		for _, h := range m.Handlers {
			md.Handlers = append(md.Handlers, HandlerDoc{
				Start:   h.Start.Str,
				End:     h.End.Str,
				Handler: h.Handler.Str,
				Type:    h.Type,
			})
		}
		doc.Methods = append(doc.Methods, md)
	}
	return doc
}

func (doc ClassDoc) class() (*bytecode.Class, error) {
	c := &bytecode.Class{Name: doc.Name, Super: doc.Super}
	for _, fd := range doc.Fields {
		if len(fd.Kind) != 1 {
			return nil, fmt.Errorf("corpus: %s.%s: invalid field kind %q", doc.Name, fd.Name, fd.Kind)
		}
		k, ok := bytecode.KindOf(fd.Kind[0])
		if !ok || k == bytecode.KindVoid {
			return nil, fmt.Errorf("corpus: %s.%s: invalid field kind %q", doc.Name, fd.Name, fd.Kind)
		}
		c.Fields = append(c.Fields, &bytecode.Field{Name: fd.Name, Kind: k, Static: fd.Static})
	}

	for _, md := range doc.Methods {
		m, err := md.method()
		if err != nil {
			return nil, fmt.Errorf("corpus: %s.%s%s: %w", doc.Name, md.Name, md.Descriptor, err)
		}
		c.Methods = append(c.Methods, m)
	}
	return c, nil
}

func (md MethodDoc) method() (*bytecode.Method, error) {
	asm, err := bytecode.Assemble(md.Code)
	if err != nil {
		return nil, err
	}
	m, err := bytecode.NewMethod(md.Name, md.Descriptor, md.Static, asm.Instructions)
	if err != nil {
		return nil, err
	}
	m.MaxLocals = md.MaxLocals

	label := func(name string) (*bytecode.Instruction, error) {
		l, ok := asm.Labels[name]
		if !ok {
			return nil, fmt.Errorf("handler refers to undefined label %q", name)
		}
		return l, nil
	}
	for _, hd := range md.Handlers {
		h := &bytecode.ExceptionHandler{Type: hd.Type}
		if h.Start, err = label(hd.Start); err != nil {
			return nil, err
		}
		if h.End, err = label(hd.End); err != nil {
			return nil, err
		}
		if h.Handler, err = label(hd.Handler); err != nil {
			return nil, err
		}
		m.Handlers = append(m.Handlers, h)
	}
	return m, nil
}
