package asn

import (
	"bytes"
	"encoding/asn1"
	"fmt"
	"slices"
	"strings"
)

// Value is one node of a value tree. Which fields are set depends on Kind:
//
//	Boolean           Bool
//	Integer           Int
//	Enumerated        Index (root 0..N-1, extension N..N+M-1)
//	OctetString,
//	CharacterString   Bytes
//	BitString         Bits (padding bits zero)
//	ObjectIdentifier  OID
//	Sequence          Components, one slot per declared component; nil = absent
//	SequenceOf        Items
//	Choice            Index (root alternatives first) and Alt
//
// Slices are never nil for the kinds that use them, so a decoded value and a
// generated value compare equal with reflect.DeepEqual.
type Value struct {
	Kind       Kind
	Bool       bool
	Int        int64
	Index      uint64
	Bytes      []byte
	Bits       asn1.BitString
	OID        asn1.ObjectIdentifier
	Components []*Value
	Items      []*Value
	Alt        *Value
}

func NewNull() *Value {
	return &Value{Kind: Null}
}

func NewBoolean(b bool) *Value {
	return &Value{Kind: Boolean, Bool: b}
}

func NewInteger(i int64) *Value {
	return &Value{Kind: Integer, Int: i}
}

func NewEnumerated(index uint64) *Value {
	return &Value{Kind: Enumerated, Index: index}
}

// NewOctetString copies data.
func NewOctetString(data []byte) *Value {
	return &Value{Kind: OctetString, Bytes: clip(data)}
}

// NewCharacterString stores s as octets.
func NewCharacterString(s string) *Value {
	return &Value{Kind: CharacterString, Bytes: []byte(s)}
}

// NewBitString copies the first length bits of data and clears the padding
// bits of the last octet.
func NewBitString(data []byte, length int) *Value {
	length = max(length, 0)
	n := (length + 7) / 8
	buf := make([]byte, n)
	copy(buf, data)
	if pad := n*8 - length; pad > 0 {
		buf[n-1] &= 0xFF << pad
	}
	return &Value{Kind: BitString, Bits: asn1.BitString{Bytes: buf, BitLength: length}}
}

func NewObjectIdentifier(oid asn1.ObjectIdentifier) *Value {
	return &Value{Kind: ObjectIdentifier, OID: slices.Clone(oid)}
}

// NewSequence takes one slot per declared component, nil for absent
// optional components.
func NewSequence(components ...*Value) *Value {
	if nil == components {
		components = []*Value{}
	}
	return &Value{Kind: Sequence, Components: components}
}

func NewSequenceOf(items ...*Value) *Value {
	if nil == items {
		items = []*Value{}
	}
	return &Value{Kind: SequenceOf, Items: items}
}

func NewChoice(index uint64, alt *Value) *Value {
	return &Value{Kind: Choice, Index: index, Alt: alt}
}

func clip(data []byte) []byte {
	out := make([]byte, len(data))
	copy(out, data)
	return out
}

// Equal reports whether two trees hold the same value. Nil and empty slices
// are treated alike.
func (v *Value) Equal(o *Value) bool {
	if nil == v || nil == o {
		return v == o
	}
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case Null:
		return true
	case Boolean:
		return v.Bool == o.Bool
	case Integer:
		return v.Int == o.Int
	case Enumerated:
		return v.Index == o.Index
	case OctetString, CharacterString:
		return bytes.Equal(v.Bytes, o.Bytes)
	case BitString:
		return v.Bits.BitLength == o.Bits.BitLength && bytes.Equal(v.Bits.Bytes, o.Bits.Bytes)
	case ObjectIdentifier:
		return v.OID.Equal(o.OID)
	case Sequence:
		return equalAll(v.Components, o.Components)
	case SequenceOf:
		return equalAll(v.Items, o.Items)
	case Choice:
		return v.Index == o.Index && v.Alt.Equal(o.Alt)
	}
	return false
}

func equalAll(a, b []*Value) bool {
	return slices.EqualFunc(a, b, func(x, y *Value) bool { return x.Equal(y) })
}

// String renders the value in a compact ASN.1-like notation.
func (v *Value) String() string {
	var b strings.Builder
	v.format(&b, nil)
	return b.String()
}

// Format renders v using the component and value names of t.
func (v *Value) Format(t *Type) string {
	var b strings.Builder
	v.format(&b, t)
	return b.String()
}

func (v *Value) format(b *strings.Builder, t *Type) {
	if nil == v {
		b.WriteString("<absent>")
		return
	}
	switch v.Kind {
	case Null:
		b.WriteString("NULL")
	case Boolean:
		if v.Bool {
			b.WriteString("TRUE")
		} else {
			b.WriteString("FALSE")
		}
	case Integer:
		fmt.Fprintf(b, "%d", v.Int)
	case Enumerated:
		if nil != t {
			if name, ok := t.Enum.Name(v.Index); ok {
				b.WriteString(name)
				return
			}
		}
		fmt.Fprintf(b, "#%d", v.Index)
	case OctetString:
		fmt.Fprintf(b, "'%X'H", v.Bytes)
	case CharacterString:
		fmt.Fprintf(b, "%q", v.Bytes)
	case BitString:
		b.WriteByte('\'')
		for i := range v.Bits.BitLength {
			b.WriteByte('0' + byte(v.Bits.At(i)))
		}
		b.WriteString("'B")
	case ObjectIdentifier:
		fmt.Fprintf(b, "{%s}", strings.ReplaceAll(v.OID.String(), ".", " "))
	case Sequence:
		b.WriteString("{ ")
		first := true
		for i, c := range v.Components {
			if nil == c {
				continue
			}
			if !first {
				b.WriteString(", ")
			}
			first = false
			var sub *Type
			if nil != t && i < len(t.Components) {
				b.WriteString(t.Components[i].Name)
				b.WriteByte(' ')
				sub, _ = t.Select(i, v.Components)
				if r, ok := t.Row(i, v.Components); ok {
					b.WriteString(r.Name)
					b.WriteString(" : ")
				}
			}
			c.format(b, sub)
		}
		b.WriteString(" }")
	case SequenceOf:
		b.WriteString("{ ")
		var sub *Type
		if nil != t {
			sub = t.Element
		}
		for i, item := range v.Items {
			if i > 0 {
				b.WriteString(", ")
			}
			item.format(b, sub)
		}
		b.WriteString(" }")
	case Choice:
		var sub *Type
		if nil != t {
			if alt, ok := t.Alternative(v.Index); ok {
				b.WriteString(alt.Name)
				sub = alt.Type
			}
		}
		if nil == sub {
			fmt.Fprintf(b, "#%d", v.Index)
		}
		b.WriteString(" : ")
		v.Alt.format(b, sub)
	default:
		fmt.Fprintf(b, "<%s>", v.Kind)
	}
}
