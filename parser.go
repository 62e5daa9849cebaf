// Package asnfuzz_go loads schema descriptors: the compiled form of ASN.1
// type declarations, written as YAML.
//
//	root: Message
//	types:
//	  Message:
//	    kind: SEQUENCE
//	    extensible: true
//	    components:
//	      - {name: id, type: Id}
//	      - name: label
//	        optional: true
//	        type: {kind: PrintableString, size: {min: 1, max: 150}}
//	      - name: value
//	        table:
//	          key: id
//	          rows:
//	            - {id: 1, name: Flag, type: {kind: BOOLEAN}}
//	            - {id: 2, name: Count, type: Id}
//	  Id:
//	    kind: INTEGER
//	    range: {lb: 0, ub: 65535}
//
// A member type is either the name of a declared type or an inline
// declaration. Names may refer to each other in any order, recursion
// included. Character strings are declared by their type name (IA5String,
// VisibleString, PrintableString, UTF8String); CHARACTER STRING stands for
// IA5String. A member with a table instead of a type is an open field whose
// row is selected by the INTEGER member named by key.
package asnfuzz_go

import (
	"bytes"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/thebagchi/asnfuzz-go/lib/asn"
	"github.com/thebagchi/asnfuzz-go/lib/constraint"
	"github.com/thebagchi/asnfuzz-go/lib/errors"
)

type document struct {
	Root  string                  `yaml:"root"`
	Types map[string]*declaration `yaml:"types"`
}

type declaration struct {
	Kind         string     `yaml:"kind"`
	Range        *bounds    `yaml:"range"`
	Size         *sizes     `yaml:"size"`
	Values       []string   `yaml:"values"`
	Additions    []string   `yaml:"additions"`
	Extensible   bool       `yaml:"extensible"`
	Components   []member   `yaml:"components"`
	Alternatives []member   `yaml:"alternatives"`
	Extensions   []member   `yaml:"extensions"`
	Element      *yaml.Node `yaml:"element"`
}

type bounds struct {
	LB         *int64 `yaml:"lb"`
	UB         *int64 `yaml:"ub"`
	Extensible bool   `yaml:"extensible"`
}

type sizes struct {
	Min        uint64  `yaml:"min"`
	Max        *uint64 `yaml:"max"`
	Extensible bool    `yaml:"extensible"`
}

type member struct {
	Name     string    `yaml:"name"`
	Type     yaml.Node `yaml:"type"`
	Optional bool      `yaml:"optional"`
	Open     bool      `yaml:"open"`
	Table    *table    `yaml:"table"`
}

type table struct {
	Key  string `yaml:"key"`
	Rows []row  `yaml:"rows"`
}

type row struct {
	ID   int64     `yaml:"id"`
	Name string    `yaml:"name"`
	Type yaml.Node `yaml:"type"`
}

// Schema is a set of named types with a designated root.
type Schema struct {
	Root  *asn.Type
	Types map[string]*asn.Type
}

// Lookup returns the declared type called name.
func (s *Schema) Lookup(name string) (*asn.Type, bool) {
	t, ok := s.Types[name]
	return t, ok
}

// Parse reads and compiles the schema descriptor in filename.
func Parse(filename string) (*Schema, error) {
	data, err := os.ReadFile(filename)
	if nil != err {
		return nil, errors.New(errors.PhaseSchema, errors.KindArgs).
			Detail("read %s", filename).
			Cause(err).
			Build()
	}
	return ParseBytes(data)
}

// ParseBytes compiles a schema descriptor.
func ParseBytes(data []byte) (*Schema, error) {
	var doc document
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); nil != err {
		return nil, errors.New(errors.PhaseSchema, errors.KindArgs).
			Detail("malformed descriptor").
			Cause(err).
			Build()
	}

	c := &compiler{
		declared: doc.Types,
		types:    make(map[string]*asn.Type, len(doc.Types)),
	}
	for name := range doc.Types {
		c.types[name] = &asn.Type{Name: name}
	}
	for name, decl := range doc.Types {
		t, err := c.declaration(name, decl, []string{name})
		if nil != err {
			return nil, err
		}
		*c.types[name] = *t
	}

	root, ok := c.types[doc.Root]
	if !ok {
		return nil, schemaError(nil, "root type %q is not declared", doc.Root)
	}
	for _, t := range c.types {
		if err := asn.Validate(t); nil != err {
			return nil, err
		}
	}
	return &Schema{Root: root, Types: c.types}, nil
}

func schemaError(path []string, format string, args ...any) error {
	return errors.New(errors.PhaseSchema, errors.KindArgs).
		Path(path...).
		Detail(format, args...).
		Build()
}

func below(path []string, segment string) []string {
	return append(append([]string(nil), path...), segment)
}

type compiler struct {
	declared map[string]*declaration
	types    map[string]*asn.Type
}

// reference resolves a member type: a scalar names a declared type, a
// mapping is an inline declaration.
func (c *compiler) reference(node *yaml.Node, path []string) (*asn.Type, error) {
	switch {
	case nil == node || node.Kind == 0:
		return nil, schemaError(path, "missing type")
	case node.Kind == yaml.ScalarNode:
		t, ok := c.types[node.Value]
		if !ok {
			return nil, schemaError(path, "unknown type %q", node.Value)
		}
		return t, nil
	case node.Kind == yaml.MappingNode:
		var decl declaration
		if err := node.Decode(&decl); nil != err {
			return nil, schemaError(path, "malformed inline type: %v", err)
		}
		return c.declaration("", &decl, path)
	}
	return nil, schemaError(path, "type must be a name or a declaration")
}

func (c *compiler) declaration(name string, decl *declaration, path []string) (*asn.Type, error) {
	if nil == decl {
		return nil, schemaError(path, "empty declaration")
	}
	kind, ok := asn.ParseKind(decl.Kind)
	alphabet, named := constraint.ParseAlphabet(decl.Kind)
	if named {
		kind, ok = asn.CharacterString, true
	}
	if !ok {
		return nil, schemaError(path, "unknown kind %q", decl.Kind)
	}

	switch kind {
	case asn.Null:
		return asn.NullType(name), nil
	case asn.Boolean:
		return asn.BooleanType(name), nil
	case asn.ObjectIdentifier:
		return asn.ObjectIdentifierType(name), nil
	case asn.Integer:
		i, err := integer(decl.Range, path)
		if nil != err {
			return nil, err
		}
		return asn.IntegerType(name, i), nil
	case asn.Enumerated:
		e, err := constraint.NewEnumeration(decl.Values, decl.Extensible || len(decl.Additions) > 0, decl.Additions...)
		if nil != err {
			return nil, errors.Wrap(errors.PhaseSchema, errors.KindArgs, err, path)
		}
		return asn.EnumeratedType(name, e), nil
	case asn.BitString, asn.OctetString, asn.CharacterString:
		s, err := size(decl.Size, path)
		if nil != err {
			return nil, err
		}
		return &asn.Type{Name: name, Kind: kind, Size: s, Alphabet: alphabet}, nil
	case asn.SequenceOf:
		s, err := size(decl.Size, path)
		if nil != err {
			return nil, err
		}
		element, err := c.reference(decl.Element, below(path, "element"))
		if nil != err {
			return nil, err
		}
		return asn.SequenceOfType(name, s, element), nil
	case asn.Sequence:
		components, err := c.members(decl.Components, path)
		if nil != err {
			return nil, err
		}
		return asn.SequenceType(name, decl.Extensible, components...), nil
	case asn.Choice:
		alternatives, err := c.members(decl.Alternatives, path)
		if nil != err {
			return nil, err
		}
		extensions, err := c.members(decl.Extensions, path)
		if nil != err {
			return nil, err
		}
		return asn.ChoiceType(name, decl.Extensible, alternatives, extensions...), nil
	}
	return nil, schemaError(path, "unsupported kind %s", kind)
}

func (c *compiler) members(list []member, path []string) ([]asn.Component, error) {
	components := make([]asn.Component, 0, len(list))
	for _, m := range list {
		if nil != m.Table {
			if m.Type.Kind != 0 {
				return nil, schemaError(below(path, m.Name), "member has both a type and a table")
			}
			rows := make([]asn.Row, 0, len(m.Table.Rows))
			for _, r := range m.Table.Rows {
				t, err := c.reference(&r.Type, below(below(path, m.Name), r.Name))
				if nil != err {
					return nil, err
				}
				rows = append(rows, asn.Row{ID: r.ID, Name: r.Name, Type: t})
			}
			component := asn.TableField(m.Name, m.Table.Key, rows...)
			component.Optional = m.Optional
			components = append(components, component)
			continue
		}
		t, err := c.reference(&m.Type, below(path, m.Name))
		if nil != err {
			return nil, err
		}
		components = append(components, asn.Component{
			Name:     m.Name,
			Type:     t,
			Optional: m.Optional,
			Open:     m.Open,
		})
	}
	return components, nil
}

func integer(b *bounds, path []string) (constraint.Integer, error) {
	if nil == b {
		return constraint.Unbounded(), nil
	}
	var i constraint.Integer
	switch {
	case nil != b.LB && nil != b.UB:
		r, err := constraint.Range(*b.LB, *b.UB)
		if nil != err {
			return i, errors.Wrap(errors.PhaseSchema, errors.KindArgs, err, path)
		}
		i = r
	case nil != b.LB:
		i = constraint.AtLeast(*b.LB)
	case nil != b.UB:
		i = constraint.AtMost(*b.UB)
	default:
		i = constraint.Unbounded()
	}
	if b.Extensible {
		i = i.Extensible()
	}
	return i, nil
}

func size(s *sizes, path []string) (constraint.Size, error) {
	if nil == s {
		return constraint.AnySize(), nil
	}
	result := constraint.SizeAtLeast(s.Min)
	if nil != s.Max {
		r, err := constraint.SizeRange(s.Min, *s.Max)
		if nil != err {
			return result, errors.Wrap(errors.PhaseSchema, errors.KindArgs, err, path)
		}
		result = r
	}
	if s.Extensible {
		result = result.Extensible()
	}
	return result, nil
}
