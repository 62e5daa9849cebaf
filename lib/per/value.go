package per

import (
	"strconv"

	"github.com/thebagchi/asnfuzz-go/lib/asn"
	"github.com/thebagchi/asnfuzz-go/lib/errors"
)

// Marshal returns the complete PER encoding of v as a value of t. An empty
// encoding is returned as a single zero octet (X.691 11.1).
func Marshal(t *asn.Type, v *asn.Value, aligned bool) ([]byte, error) {
	if err := Supported(t); nil != err {
		return nil, err
	}
	e := NewEncoder(aligned)
	if err := e.EncodeValue(t, v); nil != err {
		return nil, err
	}
	data := e.Bytes()
	if len(data) == 0 {
		return []byte{0x00}, nil
	}
	return data, nil
}

// Unmarshal decodes a complete PER encoding of a value of t. Trailing
// padding is ignored.
func Unmarshal(t *asn.Type, data []byte, aligned bool) (*asn.Value, error) {
	if err := Supported(t); nil != err {
		return nil, errors.Wrap(errors.PhaseDecode, errors.KindEncoding, err, nil)
	}
	return NewDecoder(data, aligned).DecodeValue(t)
}

// Supported fails with an Encoding error when a type the codec refuses
// (OBJECT IDENTIFIER) is reachable from t, present or not.
func Supported(t *asn.Type) error {
	return supported(t, make(map[*asn.Type]bool))
}

func supported(t *asn.Type, seen map[*asn.Type]bool) error {
	if nil == t || seen[t] {
		return nil
	}
	seen[t] = true
	switch t.Kind {
	case asn.ObjectIdentifier:
		return errors.New(errors.PhaseEncode, errors.KindEncoding).
			Path(t.Label()).
			Detail("OBJECT IDENTIFIER is not supported").
			Build()
	case asn.SequenceOf:
		return supported(t.Element, seen)
	}
	for _, list := range [][]asn.Component{t.Components, t.Alternatives, t.Extensions} {
		for _, c := range list {
			types := []*asn.Type{c.Type}
			if nil != c.Table {
				types = types[:0]
				for _, r := range c.Table.Rows {
					types = append(types, r.Type)
				}
			}
			for _, sub := range types {
				if err := supported(sub, seen); nil != err {
					return errors.Within(errors.PhaseEncode, errors.KindEncoding, err, c.Name)
				}
			}
		}
	}
	return nil
}

// EncodeValue encodes v as a value of t. Failures are Encoding errors that
// carry the component path.
func (e *Encoder) EncodeValue(t *asn.Type, v *asn.Value) error {
	return errors.Wrap(errors.PhaseEncode, errors.KindEncoding, e.encodeValue(t, v, 0), nil)
}

func (e *Encoder) encodeValue(t *asn.Type, v *asn.Value, depth int) error {
	if depth > asn.MaxDepth {
		return encodeError("nesting deeper than %d", asn.MaxDepth)
	}
	if nil == t {
		return encodeError("missing type")
	}
	if nil == v {
		return encodeError("missing value for %s", t.Label())
	}
	if v.Kind != t.Kind {
		return encodeError("%s value for %s type %s", v.Kind, t.Kind, t.Label())
	}

	switch t.Kind {
	case asn.Null:
		return e.EncodeNull()
	case asn.Boolean:
		return e.EncodeBoolean(v.Bool)
	case asn.Integer:
		lb, ub := t.Integer.Bounds()
		return e.EncodeInteger(v.Int, lb, ub, t.Integer.IsExtensible())
	case asn.Enumerated:
		if !t.Enum.Valid(v.Index) || (v.Index >= uint64(t.Enum.RootLen()) && !t.Enum.IsExtensible()) {
			return encodeError("enumerated index %d outside %s", v.Index, t.Label())
		}
		return e.EncodeEnumerated(v.Index, uint64(t.Enum.RootLen()), t.Enum.IsExtensible())
	case asn.BitString:
		lb, ub := t.Size.Bounds()
		return e.EncodeBitString(&v.Bits, lb, ub, t.Size.IsExtensible())
	case asn.OctetString:
		lb, ub := t.Size.Bounds()
		return e.EncodeOctetString(v.Bytes, lb, ub, t.Size.IsExtensible())
	case asn.CharacterString:
		lb, ub := t.Size.Bounds()
		return e.EncodeString(string(v.Bytes), t.Alphabet, lb, ub, t.Size.IsExtensible())
	case asn.ObjectIdentifier:
		return e.EncodeObjectIdentifier(v.OID)
	case asn.Sequence:
		return e.encodeSequence(t, v, depth)
	case asn.SequenceOf:
		return e.encodeSequenceOf(t, v, depth)
	case asn.Choice:
		return e.encodeChoice(t, v, depth)
	}
	return encodeError("unknown kind %s", t.Kind)
}

func (e *Encoder) encodeSequence(t *asn.Type, v *asn.Value, depth int) error {
	if len(v.Components) != len(t.Components) {
		return encodeError("%d components for %s with %d", len(v.Components), t.Label(), len(t.Components))
	}
	present := make([]bool, 0, len(t.Components))
	for i, c := range t.Components {
		switch {
		case c.Optional:
			present = append(present, nil != v.Components[i])
		case nil == v.Components[i]:
			return errors.Within(errors.PhaseEncode, errors.KindEncoding,
				encodeError("mandatory component absent"), c.Name)
		}
	}
	if err := e.EncodeSequencePreamble(t.Extensible, present); nil != err {
		return err
	}
	for i, c := range t.Components {
		if nil == v.Components[i] {
			continue
		}
		sub, ok := t.Select(i, v.Components)
		if !ok {
			return errors.Within(errors.PhaseEncode, errors.KindEncoding,
				encodeError("%s value selects no row", c.Table.Key), c.Name)
		}
		encode := e.encodeValue
		if c.Open {
			encode = e.encodeOpen
		}
		if err := encode(sub, v.Components[i], depth+1); nil != err {
			return errors.Within(errors.PhaseEncode, errors.KindEncoding, err, c.Name)
		}
	}
	return nil
}

// encodeOpen encodes v with a fresh encoder of the same variant and writes
// the result as an open type.
func (e *Encoder) encodeOpen(t *asn.Type, v *asn.Value, depth int) error {
	sub := NewEncoder(e.aligned)
	if err := sub.encodeValue(t, v, depth); nil != err {
		return err
	}
	return e.EncodeOpenType(sub.Bytes())
}

func (e *Encoder) encodeSequenceOf(t *asn.Type, v *asn.Value, depth int) error {
	lb, ub := t.Size.Bounds()
	return e.EncodeSequenceOf(uint64(len(v.Items)), lb, ub, t.Size.IsExtensible(), func(offset, count uint64) error {
		for i := offset; i < offset+count; i++ {
			if err := e.encodeValue(t.Element, v.Items[i], depth+1); nil != err {
				return errors.Within(errors.PhaseEncode, errors.KindEncoding, err, index(i))
			}
		}
		return nil
	})
}

func (e *Encoder) encodeChoice(t *asn.Type, v *asn.Value, depth int) error {
	alt, ok := t.Alternative(v.Index)
	if !ok {
		return encodeError("alternative %d outside %s", v.Index, t.Label())
	}
	root := uint64(len(t.Alternatives))
	if err := e.EncodeChoiceIndex(v.Index, root, t.Extensible); nil != err {
		return err
	}
	encode := e.encodeValue
	if v.Index >= root {
		encode = e.encodeOpen
	}
	if err := encode(alt.Type, v.Alt, depth+1); nil != err {
		return errors.Within(errors.PhaseEncode, errors.KindEncoding, err, alt.Name)
	}
	return nil
}

func index(i uint64) string {
	return "[" + strconv.FormatUint(i, 10) + "]"
}

// DecodeValue decodes a value of t. Failures are Encoding errors that carry
// the component path.
func (d *Decoder) DecodeValue(t *asn.Type) (*asn.Value, error) {
	return d.decodeValue(t, 0)
}

func (d *Decoder) decodeValue(t *asn.Type, depth int) (*asn.Value, error) {
	if depth > asn.MaxDepth {
		return nil, decodeError("nesting deeper than %d", asn.MaxDepth)
	}
	if nil == t {
		return nil, decodeError("missing type")
	}

	value, err := d.decodeNode(t, depth)
	if nil != err {
		return nil, errors.Wrap(errors.PhaseDecode, errors.KindEncoding, err, nil)
	}
	return value, nil
}

func (d *Decoder) decodeNode(t *asn.Type, depth int) (*asn.Value, error) {
	switch t.Kind {
	case asn.Null:
		return asn.NewNull(), d.DecodeNull()
	case asn.Boolean:
		b, err := d.DecodeBoolean()
		if nil != err {
			return nil, err
		}
		return asn.NewBoolean(b), nil
	case asn.Integer:
		lb, ub := t.Integer.Bounds()
		i, err := d.DecodeInteger(lb, ub, t.Integer.IsExtensible())
		if nil != err {
			return nil, err
		}
		return asn.NewInteger(i), nil
	case asn.Enumerated:
		idx, err := d.DecodeEnumerated(uint64(t.Enum.RootLen()), t.Enum.IsExtensible())
		if nil != err {
			return nil, err
		}
		if !t.Enum.Valid(idx) {
			return nil, decodeError("unknown enumerated index %d for %s", idx, t.Label())
		}
		return asn.NewEnumerated(idx), nil
	case asn.BitString:
		lb, ub := t.Size.Bounds()
		bs, err := d.DecodeBitString(lb, ub, t.Size.IsExtensible())
		if nil != err {
			return nil, err
		}
		return &asn.Value{Kind: asn.BitString, Bits: *bs}, nil
	case asn.OctetString:
		lb, ub := t.Size.Bounds()
		data, err := d.DecodeOctetString(lb, ub, t.Size.IsExtensible())
		if nil != err {
			return nil, err
		}
		return &asn.Value{Kind: asn.OctetString, Bytes: data}, nil
	case asn.CharacterString:
		lb, ub := t.Size.Bounds()
		s, err := d.DecodeString(t.Alphabet, lb, ub, t.Size.IsExtensible())
		if nil != err {
			return nil, err
		}
		return asn.NewCharacterString(s), nil
	case asn.ObjectIdentifier:
		_, err := d.DecodeObjectIdentifier()
		return nil, err
	case asn.Sequence:
		return d.decodeSequence(t, depth)
	case asn.SequenceOf:
		return d.decodeSequenceOf(t, depth)
	case asn.Choice:
		return d.decodeChoice(t, depth)
	}
	return nil, decodeError("unknown kind %s", t.Kind)
}

func (d *Decoder) decodeSequence(t *asn.Type, depth int) (*asn.Value, error) {
	optional := 0
	for _, c := range t.Components {
		if c.Optional {
			optional++
		}
	}
	extended, present, err := d.DecodeSequencePreamble(t.Extensible, optional)
	if nil != err {
		return nil, err
	}

	components := make([]*asn.Value, len(t.Components))
	next := 0
	for i, c := range t.Components {
		if c.Optional {
			next++
			if !present[next-1] {
				continue
			}
		}
		sub, ok := t.Select(i, components)
		if !ok {
			return nil, errors.Within(errors.PhaseDecode, errors.KindEncoding,
				decodeError("%s value selects no row", c.Table.Key), c.Name)
		}
		decode := d.decodeValue
		if c.Open {
			decode = d.decodeOpen
		}
		value, err := decode(sub, depth+1)
		if nil != err {
			return nil, errors.Within(errors.PhaseDecode, errors.KindEncoding, err, c.Name)
		}
		components[i] = value
	}
	if extended {
		if err := d.SkipExtensionAdditions(); nil != err {
			return nil, err
		}
	}
	return asn.NewSequence(components...), nil
}

func (d *Decoder) decodeSequenceOf(t *asn.Type, depth int) (*asn.Value, error) {
	lb, ub := t.Size.Bounds()
	items := []*asn.Value{}
	_, err := d.DecodeSequenceOf(lb, ub, t.Size.IsExtensible(), func(count uint64) error {
		for range count {
			item, err := d.decodeValue(t.Element, depth+1)
			if nil != err {
				return errors.Within(errors.PhaseDecode, errors.KindEncoding, err, index(uint64(len(items))))
			}
			items = append(items, item)
		}
		return nil
	})
	if nil != err {
		return nil, err
	}
	return asn.NewSequenceOf(items...), nil
}

func (d *Decoder) decodeChoice(t *asn.Type, depth int) (*asn.Value, error) {
	root := uint64(len(t.Alternatives))
	idx, err := d.DecodeChoiceIndex(root, t.Extensible)
	if nil != err {
		return nil, err
	}
	alt, ok := t.Alternative(idx)
	if !ok {
		return nil, decodeError("unknown alternative %d for %s", idx, t.Label())
	}

	decode := d.decodeValue
	if idx >= root {
		decode = d.decodeOpen
	}
	value, err := decode(alt.Type, depth+1)
	if nil != err {
		return nil, errors.Within(errors.PhaseDecode, errors.KindEncoding, err, alt.Name)
	}
	return asn.NewChoice(idx, value), nil
}

// decodeOpen reads an open type field and decodes a value of t from its
// octets. The element budget carries over to the inner decoder.
func (d *Decoder) decodeOpen(t *asn.Type, depth int) (*asn.Value, error) {
	data, err := d.DecodeOpenType()
	if nil != err {
		return nil, err
	}
	inner := NewDecoder(data, d.aligned)
	inner.elements = d.elements
	value, err := inner.decodeValue(t, depth)
	d.elements = inner.elements
	return value, err
}
