// Package asn describes schema types and value trees.
//
// A Type is the compiled form of one ASN.1 type declaration together with
// its constraint descriptors. Types are built once (by hand, from a schema
// descriptor or by an external parser) and then shared read-only by every
// codec call. Types may refer to themselves through pointers; values never
// do.
package asn

import (
	"fmt"

	"github.com/thebagchi/asnfuzz-go/lib/constraint"
	"github.com/thebagchi/asnfuzz-go/lib/errors"
)

// MaxDepth bounds the nesting of value trees. Generators and decoders refuse
// to descend further, which keeps recursive types finite.
const MaxDepth = 64

// Kind identifies the ASN.1 type of a Type or Value.
type Kind uint8

const (
	Null Kind = iota + 1
	Boolean
	Integer
	Enumerated
	BitString
	OctetString
	CharacterString
	ObjectIdentifier
	Sequence
	SequenceOf
	Choice
)

var kindNames = map[Kind]string{
	Null:             "NULL",
	Boolean:          "BOOLEAN",
	Integer:          "INTEGER",
	Enumerated:       "ENUMERATED",
	BitString:        "BIT STRING",
	OctetString:      "OCTET STRING",
	CharacterString:  "CHARACTER STRING",
	ObjectIdentifier: "OBJECT IDENTIFIER",
	Sequence:         "SEQUENCE",
	SequenceOf:       "SEQUENCE OF",
	Choice:           "CHOICE",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ParseKind returns the Kind with the given ASN.1 name.
func ParseKind(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name {
			return k, true
		}
	}
	return 0, false
}

// Type is a compiled type declaration. Which fields are meaningful depends
// on Kind:
//
//	Integer                          Integer
//	Enumerated                       Enum
//	BitString, OctetString           Size
//	CharacterString                  Size, Alphabet
//	SequenceOf                       Size, Element
//	Sequence                         Components, Extensible
//	Choice                           Alternatives, Extensions, Extensible
type Type struct {
	Name    string
	Kind    Kind
	Integer constraint.Integer
	Size    constraint.Size
	Enum    constraint.Enumeration

	Alphabet constraint.Alphabet

	Components   []Component
	Alternatives []Component
	Extensions   []Component
	Extensible   bool

	Element *Type
}

// Component is a named member of a SEQUENCE or an alternative of a CHOICE.
// Open marks a SEQUENCE member whose value travels as an open type, the
// way class fields such as a protocol IE value are carried. A tabled
// component has no Type of its own: Table picks it from the value of an
// earlier sibling.
type Component struct {
	Name     string
	Type     *Type
	Optional bool
	Open     bool
	Table    *Table
}

// Table constrains an open component to the rows of an information object
// set. The INTEGER sibling named Key holds the row ID and nothing else
// identifies the row on the wire.
type Table struct {
	Key  string
	Rows []Row
}

// Row is one object of a Table: the ID its key carries and the type of the
// value that goes with it.
type Row struct {
	ID   int64
	Name string
	Type *Type
}

// Lookup returns the position of the row with the given ID.
func (tb *Table) Lookup(id int64) (int, bool) {
	for i, r := range tb.Rows {
		if r.ID == id {
			return i, true
		}
	}
	return 0, false
}

// Find returns the row called name.
func (tb *Table) Find(name string) (Row, bool) {
	for _, r := range tb.Rows {
		if r.Name == name {
			return r, true
		}
	}
	return Row{}, false
}

// Field returns a mandatory component.
func Field(name string, t *Type) Component {
	return Component{Name: name, Type: t}
}

// Optional returns an OPTIONAL component.
func Optional(name string, t *Type) Component {
	return Component{Name: name, Type: t, Optional: true}
}

// OpenField returns a mandatory component carried as an open type.
func OpenField(name string, t *Type) Component {
	return Component{Name: name, Type: t, Open: true}
}

// TableField returns a mandatory open component whose type is the row of
// rows selected by the sibling key.
func TableField(name, key string, rows ...Row) Component {
	return Component{Name: name, Open: true, Table: &Table{Key: key, Rows: rows}}
}

func NullType(name string) *Type {
	return &Type{Name: name, Kind: Null}
}

func BooleanType(name string) *Type {
	return &Type{Name: name, Kind: Boolean}
}

func IntegerType(name string, c constraint.Integer) *Type {
	return &Type{Name: name, Kind: Integer, Integer: c}
}

func EnumeratedType(name string, e constraint.Enumeration) *Type {
	return &Type{Name: name, Kind: Enumerated, Enum: e}
}

func BitStringType(name string, s constraint.Size) *Type {
	return &Type{Name: name, Kind: BitString, Size: s}
}

func OctetStringType(name string, s constraint.Size) *Type {
	return &Type{Name: name, Kind: OctetString, Size: s}
}

// CharacterStringType declares a restricted character string over a.
func CharacterStringType(name string, a constraint.Alphabet, s constraint.Size) *Type {
	return &Type{Name: name, Kind: CharacterString, Size: s, Alphabet: a}
}

// EffectiveSize is the SIZE constraint PER sees. UTF8String sizes count
// characters, not octets, so they are not PER-visible.
func (t *Type) EffectiveSize() constraint.Size {
	if t.Kind == CharacterString && !t.Alphabet.KnownMultiplier() {
		return constraint.AnySize()
	}
	return t.Size
}

func ObjectIdentifierType(name string) *Type {
	return &Type{Name: name, Kind: ObjectIdentifier}
}

// SequenceType declares a SEQUENCE. ext records the extension marker.
func SequenceType(name string, ext bool, components ...Component) *Type {
	return &Type{Name: name, Kind: Sequence, Extensible: ext, Components: components}
}

func SequenceOfType(name string, s constraint.Size, element *Type) *Type {
	return &Type{Name: name, Kind: SequenceOf, Size: s, Element: element}
}

// ChoiceType declares a CHOICE. Extension alternatives imply the marker.
func ChoiceType(name string, ext bool, alternatives []Component, extensions ...Component) *Type {
	return &Type{
		Name:         name,
		Kind:         Choice,
		Alternatives: alternatives,
		Extensions:   extensions,
		Extensible:   ext || len(extensions) > 0,
	}
}

// NumAlternatives returns the number of root and extension alternatives.
func (t *Type) NumAlternatives() int {
	return len(t.Alternatives) + len(t.Extensions)
}

// Alternative returns the alternative at combined index i (root
// alternatives first, then extensions).
func (t *Type) Alternative(i uint64) (Component, bool) {
	switch {
	case i < uint64(len(t.Alternatives)):
		return t.Alternatives[i], true
	case i < uint64(t.NumAlternatives()):
		return t.Extensions[i-uint64(len(t.Alternatives))], true
	}
	return Component{}, false
}

// AlternativeIndex returns the combined index of the alternative called name.
func (t *Type) AlternativeIndex(name string) (uint64, bool) {
	for i := range uint64(t.NumAlternatives()) {
		if alt, _ := t.Alternative(i); alt.Name == name {
			return i, true
		}
	}
	return 0, false
}

// ComponentIndex returns the position of the component called name.
func (t *Type) ComponentIndex(name string) (int, bool) {
	for i, c := range t.Components {
		if c.Name == name {
			return i, true
		}
	}
	return 0, false
}

// KeyedBy returns the table whose key is component i, if any.
func (t *Type) KeyedBy(i int) *Table {
	for _, c := range t.Components {
		if nil != c.Table && c.Table.Key == t.Components[i].Name {
			return c.Table
		}
	}
	return nil
}

// Row returns the row that the key value among siblings picks for the
// tabled component i.
func (t *Type) Row(i int, siblings []*Value) (Row, bool) {
	tb := t.Components[i].Table
	if nil == tb {
		return Row{}, false
	}
	k, ok := t.ComponentIndex(tb.Key)
	if !ok || k >= len(siblings) || nil == siblings[k] || siblings[k].Kind != Integer {
		return Row{}, false
	}
	r, ok := tb.Lookup(siblings[k].Int)
	if !ok {
		return Row{}, false
	}
	return tb.Rows[r], true
}

// Select returns the type of component i given the values of its
// siblings: the declared type, or the row its key picks for a tabled
// component.
func (t *Type) Select(i int, siblings []*Value) (*Type, bool) {
	if nil == t.Components[i].Table {
		return t.Components[i].Type, true
	}
	r, ok := t.Row(i, siblings)
	return r.Type, ok
}

// Label returns the type name, or its kind when anonymous.
func (t *Type) Label() string {
	if t.Name != "" {
		return t.Name
	}
	return t.Kind.String()
}

// Validate checks the structure of t and every type reachable from it.
// It does not look at value-range conflicts between constraints.
func Validate(t *Type) error {
	return validate(t, nil, make(map[*Type]bool))
}

func validate(t *Type, path []string, seen map[*Type]bool) error {
	fail := func(format string, args ...any) error {
		return errors.New(errors.PhaseSchema, errors.KindArgs).
			Path(path...).
			Detail(format, args...).
			Build()
	}
	if nil == t {
		return fail("missing type")
	}
	if seen[t] {
		return nil
	}
	seen[t] = true

	switch t.Kind {
	case Null, Boolean, Integer, BitString, OctetString, ObjectIdentifier:
	case CharacterString:
		if t.Alphabet > constraint.UTF8 {
			return fail("character string %s has unknown %s", t.Label(), t.Alphabet)
		}
	case Enumerated:
		if t.Enum.RootLen() == 0 {
			return fail("enumerated type %s has no root values", t.Label())
		}
	case SequenceOf:
		sub := append(append([]string(nil), path...), t.Label()+"[]")
		return validate(t.Element, sub, seen)
	case Sequence:
		if err := validateTables(t, path); nil != err {
			return err
		}
		return validateComponents(t.Components, path, seen)
	case Choice:
		if len(t.Alternatives) == 0 {
			return fail("choice %s has no root alternatives", t.Label())
		}
		if len(t.Extensions) > 0 && !t.Extensible {
			return fail("choice %s has extension alternatives without marker", t.Label())
		}
		all := append(append([]Component(nil), t.Alternatives...), t.Extensions...)
		for _, c := range all {
			if nil != c.Table {
				return fail("choice %s alternative %s is tabled", t.Label(), c.Name)
			}
		}
		return validateComponents(all, path, seen)
	default:
		return fail("unknown kind %s", t.Kind)
	}
	return nil
}

func validateComponents(components []Component, path []string, seen map[*Type]bool) error {
	names := make(map[string]struct{}, len(components))
	for _, c := range components {
		if _, dup := names[c.Name]; dup || c.Name == "" {
			return errors.New(errors.PhaseSchema, errors.KindArgs).
				Path(path...).
				Detail("invalid or duplicate component name %q", c.Name).
				Build()
		}
		names[c.Name] = struct{}{}
		sub := append(append([]string(nil), path...), c.Name)
		if nil != c.Table {
			for _, r := range c.Table.Rows {
				if err := validate(r.Type, append(sub, r.Name), seen); nil != err {
					return err
				}
			}
			continue
		}
		if err := validate(c.Type, sub, seen); nil != err {
			return err
		}
	}
	return nil
}

// validateTables checks that every table of t is keyed by an earlier
// mandatory INTEGER sibling whose range holds every row ID, that each key
// drives one table and that rows are told apart by ID and by name.
func validateTables(t *Type, path []string) error {
	keys := make(map[string]string)
	for i, c := range t.Components {
		if nil == c.Table {
			continue
		}
		sub := append(append([]string(nil), path...), c.Name)
		fail := func(format string, args ...any) error {
			return errors.New(errors.PhaseSchema, errors.KindArgs).
				Path(sub...).
				Detail(format, args...).
				Build()
		}
		if nil != c.Type {
			return fail("tabled component %s also declares type %s", c.Name, c.Type.Label())
		}
		if len(c.Table.Rows) == 0 {
			return fail("table of %s has no rows", c.Name)
		}
		k, ok := t.ComponentIndex(c.Table.Key)
		if !ok || k >= i {
			return fail("table key %q is not an earlier component", c.Table.Key)
		}
		key := t.Components[k]
		if key.Optional || nil != key.Table || nil == key.Type || key.Type.Kind != Integer {
			return fail("table key %q is not a mandatory INTEGER", c.Table.Key)
		}
		if other, dup := keys[c.Table.Key]; dup {
			return fail("table key %q already drives %s", c.Table.Key, other)
		}
		keys[c.Table.Key] = c.Name
		ids := make(map[int64]struct{}, len(c.Table.Rows))
		rows := make(map[string]struct{}, len(c.Table.Rows))
		for _, r := range c.Table.Rows {
			if _, dup := ids[r.ID]; dup {
				return fail("duplicate row id %d", r.ID)
			}
			if _, dup := rows[r.Name]; dup || r.Name == "" {
				return fail("invalid or duplicate row name %q", r.Name)
			}
			if !key.Type.Integer.Contains(r.ID) {
				return fail("row %s id %d outside %s", r.Name, r.ID, key.Type.Label())
			}
			ids[r.ID] = struct{}{}
			rows[r.Name] = struct{}{}
		}
	}
	return nil
}
