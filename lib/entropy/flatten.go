package entropy

import (
	"github.com/thebagchi/asnfuzz-go/lib/asn"
	"github.com/thebagchi/asnfuzz-go/lib/constraint"
	"github.com/thebagchi/asnfuzz-go/lib/errors"
)

func inconsistent(format string, args ...any) error {
	return errors.New(errors.PhaseFlatten, errors.KindEntropic).Detail(format, args...).Build()
}

func beneath(err error, segment string) error {
	return errors.Within(errors.PhaseFlatten, errors.KindEntropic, err, segment)
}

// Flatten writes the entropy Generate consumes to rebuild v into sink. It
// fails with Truncated when sink is full and with Entropic when v does not
// fit t.
func Flatten(t *asn.Type, v *asn.Value, sink *Sink) error {
	if nil == sink {
		return errors.Args("nil entropy sink")
	}
	return flatten(t, v, sink, 0)
}

// FlattenBytes flattens v into a staging sink and returns its bytes.
func FlattenBytes(t *asn.Type, v *asn.Value) ([]byte, error) {
	sink := NewStagingSink()
	if err := Flatten(t, v, sink); nil != err {
		return nil, err
	}
	return sink.Bytes(), nil
}

func flatten(t *asn.Type, v *asn.Value, sink *Sink, depth int) error {
	switch {
	case nil == t:
		return inconsistent("missing type")
	case nil == v:
		return inconsistent("missing value for %s", t.Label())
	case v.Kind != t.Kind:
		return inconsistent("%s value for %s type %s", v.Kind, t.Kind, t.Label())
	case depth > asn.MaxDepth:
		return inconsistent("nesting deeper than %d", asn.MaxDepth)
	}

	switch t.Kind {
	case asn.Null:
		return nil
	case asn.Boolean:
		var b byte
		if v.Bool {
			b = 1
		}
		return sink.Byte(b)
	case asn.Integer:
		return flattenInteger(t.Integer, v.Int, sink)
	case asn.Enumerated:
		return flattenEnumerated(t.Enum, v.Index, sink)
	case asn.BitString:
		n := v.Bits.BitLength
		if n < 0 || len(v.Bits.Bytes) != (n+7)/8 {
			return inconsistent("bit string of %d bits over %d octets", n, len(v.Bits.Bytes))
		}
		if err := flattenSize(t.Size, uint64(n), sink); nil != err {
			return err
		}
		if rem := n % 8; rem != 0 && v.Bits.Bytes[len(v.Bits.Bytes)-1]&(0xFF>>rem) != 0 {
			return inconsistent("bit string padding is not zero")
		}
		return sink.Write(v.Bits.Bytes)
	case asn.OctetString:
		if err := flattenSize(t.Size, uint64(len(v.Bytes)), sink); nil != err {
			return err
		}
		return sink.Write(v.Bytes)
	case asn.CharacterString:
		if err := flattenSize(t.EffectiveSize(), uint64(len(v.Bytes)), sink); nil != err {
			return err
		}
		data := make([]byte, len(v.Bytes))
		for i, c := range v.Bytes {
			idx, ok := t.Alphabet.Index(c)
			if !ok {
				return inconsistent("character %#x at %d outside %s", c, i, t.Alphabet)
			}
			data[i] = idx
		}
		return sink.Write(data)
	case asn.ObjectIdentifier:
		return flattenObjectIdentifier(v, sink)
	case asn.Sequence:
		return flattenSequence(t, v, sink, depth)
	case asn.SequenceOf:
		if err := flattenSize(t.Size, uint64(len(v.Items)), sink); nil != err {
			return err
		}
		for i, item := range v.Items {
			if err := flatten(t.Element, item, sink, depth+1); nil != err {
				return beneath(err, index(i))
			}
		}
		return nil
	case asn.Choice:
		total := uint64(t.NumAlternatives())
		alt, ok := t.Alternative(v.Index)
		if !ok {
			return inconsistent("alternative %d outside %s", v.Index, t.Label())
		}
		if err := sink.Uint(constraint.WidthBytes(total-1), v.Index); nil != err {
			return err
		}
		if err := flatten(alt.Type, v.Alt, sink, depth+1); nil != err {
			return beneath(err, alt.Name)
		}
		return nil
	}
	return inconsistent("unknown kind %s", t.Kind)
}

func flattenSelector(extensible, extension bool, sink *Sink) error {
	switch {
	case !extensible:
		return nil
	case extension:
		return sink.Byte(1)
	}
	return sink.Byte(0)
}

func flattenInteger(c constraint.Integer, v int64, sink *Sink) error {
	inRoot := c.Contains(v)
	if !inRoot && !c.IsExtensible() {
		return inconsistent("value %d outside the root", v)
	}
	if err := flattenSelector(c.IsExtensible(), !inRoot, sink); nil != err {
		return err
	}
	if !inRoot {
		return sink.Uint(8, uint64(v))
	}

	lb, hasLower := c.Lower()
	ub, hasUpper := c.Upper()
	switch {
	case hasLower && hasUpper:
		return sink.Uint(constraint.WidthBytes(uint64(ub)-uint64(lb)), uint64(v)-uint64(lb))
	case hasLower:
		return sink.Uint(8, uint64(v)-uint64(lb))
	case hasUpper:
		return sink.Uint(8, uint64(ub)-uint64(v))
	}
	return sink.Uint(8, uint64(v))
}

func flattenEnumerated(e constraint.Enumeration, idx uint64, sink *Sink) error {
	root, extension := uint64(e.RootLen()), uint64(e.ExtensionLen())
	inRoot := idx < root
	if !e.Valid(idx) || (!inRoot && !e.IsExtensible()) {
		return inconsistent("enumerated index %d outside %d+%d values", idx, root, extension)
	}
	if err := flattenSelector(e.IsExtensible(), !inRoot, sink); nil != err {
		return err
	}
	if !inRoot {
		return sink.Uint(constraint.WidthBytes(extension-1), idx-root)
	}
	return sink.Uint(constraint.WidthBytes(root-1), idx)
}

func flattenSize(s constraint.Size, n uint64, sink *Sink) error {
	inRoot := s.Contains(n)
	if !inRoot && !s.IsExtensible() {
		return inconsistent("size %d outside the root", n)
	}
	if err := flattenSelector(s.IsExtensible(), !inRoot, sink); nil != err {
		return err
	}
	if !inRoot {
		return flattenUnbounded(0, n, sink)
	}
	lo := s.Min()
	hi, bounded := s.Max()
	if !bounded {
		return flattenUnbounded(lo, n, sink)
	}
	return sink.Uint(constraint.WidthBytes(hi-lo), n-lo)
}

func flattenUnbounded(lo, n uint64, sink *Sink) error {
	offset := n - lo
	switch {
	case offset < escape:
		return sink.Byte(byte(offset))
	case offset > MaxUnboundedSize:
		return inconsistent("size %d beyond %d", n, lo+MaxUnboundedSize)
	}
	if err := sink.Byte(escape); nil != err {
		return err
	}
	return sink.Uint(2, offset-escape)
}

func flattenObjectIdentifier(v *asn.Value, sink *Sink) error {
	n := len(v.OID)
	if n < 2 || n > 5 {
		return inconsistent("object identifier of %d arcs", n)
	}
	if err := sink.Byte(byte(n - 2)); nil != err {
		return err
	}
	for _, arc := range v.OID {
		if arc < 0 || arc > 0xFF {
			return inconsistent("object identifier arc %d", arc)
		}
		if err := sink.Byte(byte(arc)); nil != err {
			return err
		}
	}
	return nil
}

func flattenSequence(t *asn.Type, v *asn.Value, sink *Sink, depth int) error {
	if len(v.Components) != len(t.Components) {
		return inconsistent("%d components for %s with %d", len(v.Components), t.Label(), len(t.Components))
	}
	for i, c := range t.Components {
		present := nil != v.Components[i]
		switch {
		case c.Optional && present:
			if err := sink.Byte(1); nil != err {
				return err
			}
		case c.Optional:
			if err := sink.Byte(0); nil != err {
				return err
			}
		case !present:
			return beneath(inconsistent("mandatory component absent"), c.Name)
		}
	}
	for i, c := range t.Components {
		if nil == v.Components[i] {
			continue
		}
		if tb := t.KeyedBy(i); nil != tb {
			if err := flattenRow(tb, v.Components[i], sink); nil != err {
				return beneath(err, c.Name)
			}
			continue
		}
		sub, ok := t.Select(i, v.Components)
		if !ok {
			return beneath(inconsistent("%s value selects no row", c.Table.Key), c.Name)
		}
		if err := flatten(sub, v.Components[i], sink, depth+1); nil != err {
			return beneath(err, c.Name)
		}
	}
	return nil
}

func flattenRow(tb *asn.Table, v *asn.Value, sink *Sink) error {
	if v.Kind != asn.Integer {
		return inconsistent("%s value for table key %s", v.Kind, tb.Key)
	}
	r, ok := tb.Lookup(v.Int)
	if !ok {
		return inconsistent("%s %d names no row", tb.Key, v.Int)
	}
	return sink.Uint(constraint.WidthBytes(uint64(len(tb.Rows)-1)), uint64(r))
}
