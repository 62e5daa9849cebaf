package entropy

import (
	"math"
	"strconv"

	"github.com/thebagchi/asnfuzz-go/lib/asn"
	"github.com/thebagchi/asnfuzz-go/lib/constraint"
	"github.com/thebagchi/asnfuzz-go/lib/errors"
)

// offset of v from math.MinInt64, as an unsigned value.
const minOffset = uint64(1) << 63

func entropic(format string, args ...any) error {
	return errors.New(errors.PhaseGenerate, errors.KindEntropic).Detail(format, args...).Build()
}

func within(err error, segment string) error {
	return errors.Within(errors.PhaseGenerate, errors.KindEntropic, err, segment)
}

func index(i int) string {
	return "[" + strconv.Itoa(i) + "]"
}

// Generate builds a value of t from src. It fails with an Entropic error
// when src runs dry, nesting exceeds asn.MaxDepth, or the value grows past
// MaxNodes.
func Generate(t *asn.Type, src *Source) (*asn.Value, error) {
	if nil == src {
		return nil, errors.Args("nil entropy source")
	}
	g := &generator{src: src}
	return g.value(t, 0)
}

type generator struct {
	src   *Source
	nodes int
}

func (g *generator) value(t *asn.Type, depth int) (*asn.Value, error) {
	if nil == t {
		return nil, entropic("missing type")
	}
	if depth > asn.MaxDepth {
		return nil, entropic("nesting deeper than %d at %s", asn.MaxDepth, t.Label())
	}
	if g.nodes++; g.nodes > MaxNodes {
		return nil, entropic("more than %d values", MaxNodes)
	}

	switch t.Kind {
	case asn.Null:
		return asn.NewNull(), nil
	case asn.Boolean:
		b, err := g.src.Byte()
		if nil != err {
			return nil, err
		}
		return asn.NewBoolean(b&1 == 1), nil
	case asn.Integer:
		i, err := g.integer(t.Integer)
		if nil != err {
			return nil, err
		}
		return asn.NewInteger(i), nil
	case asn.Enumerated:
		idx, err := g.enumerated(t.Enum)
		if nil != err {
			return nil, err
		}
		return asn.NewEnumerated(idx), nil
	case asn.BitString:
		n, err := g.size(t.Size)
		if nil != err {
			return nil, err
		}
		data, err := g.src.Bytes((n + 7) / 8)
		if nil != err {
			return nil, err
		}
		return asn.NewBitString(data, int(n)), nil
	case asn.OctetString, asn.CharacterString:
		n, err := g.size(t.EffectiveSize())
		if nil != err {
			return nil, err
		}
		data, err := g.src.Bytes(n)
		if nil != err {
			return nil, err
		}
		if t.Kind == asn.CharacterString {
			for i, b := range data {
				data[i] = t.Alphabet.Char(b)
			}
			return &asn.Value{Kind: asn.CharacterString, Bytes: data}, nil
		}
		return &asn.Value{Kind: asn.OctetString, Bytes: data}, nil
	case asn.ObjectIdentifier:
		return g.objectIdentifier()
	case asn.Sequence:
		return g.sequence(t, depth)
	case asn.SequenceOf:
		return g.sequenceOf(t, depth)
	case asn.Choice:
		return g.choice(t, depth)
	}
	return nil, entropic("unknown kind %s", t.Kind)
}

func (g *generator) selector(extensible bool) (bool, error) {
	if !extensible {
		return false, nil
	}
	b, err := g.src.Byte()
	return b&1 == 1, err
}

func (g *generator) integer(c constraint.Integer) (int64, error) {
	extension, err := g.selector(c.IsExtensible())
	if nil != err {
		return 0, err
	}
	if extension {
		raw, err := g.src.Uint(8)
		return int64(raw), err
	}

	lb, hasLower := c.Lower()
	ub, hasUpper := c.Upper()
	switch {
	case hasLower && hasUpper:
		span := uint64(ub) - uint64(lb)
		raw, err := g.src.Uint(constraint.WidthBytes(span))
		if nil != err {
			return 0, err
		}
		return int64(uint64(lb) + constraint.Reduce(raw, span)), nil
	case hasLower:
		raw, err := g.src.Uint(8)
		if nil != err {
			return 0, err
		}
		return int64(uint64(lb) + constraint.Reduce(raw, uint64(math.MaxInt64)-uint64(lb))), nil
	case hasUpper:
		raw, err := g.src.Uint(8)
		if nil != err {
			return 0, err
		}
		return int64(uint64(ub) - constraint.Reduce(raw, uint64(ub)+minOffset)), nil
	}
	raw, err := g.src.Uint(8)
	return int64(raw), err
}

func (g *generator) enumerated(e constraint.Enumeration) (uint64, error) {
	root, extension := uint64(e.RootLen()), uint64(e.ExtensionLen())
	if root == 0 {
		return 0, entropic("enumeration without root values")
	}
	selected, err := g.selector(e.IsExtensible())
	if nil != err {
		return 0, err
	}
	if selected && extension > 0 {
		raw, err := g.src.Uint(constraint.WidthBytes(extension - 1))
		if nil != err {
			return 0, err
		}
		return root + constraint.Reduce(raw, extension-1), nil
	}
	raw, err := g.src.Uint(constraint.WidthBytes(root - 1))
	if nil != err {
		return 0, err
	}
	return constraint.Reduce(raw, root-1), nil
}

func (g *generator) size(s constraint.Size) (uint64, error) {
	extension, err := g.selector(s.IsExtensible())
	if nil != err {
		return 0, err
	}
	if extension {
		return g.unbounded(0)
	}
	lo := s.Min()
	hi, bounded := s.Max()
	if !bounded {
		return g.unbounded(lo)
	}
	span := hi - lo
	raw, err := g.src.Uint(constraint.WidthBytes(span))
	if nil != err {
		return 0, err
	}
	return lo + constraint.Reduce(raw, span), nil
}

func (g *generator) unbounded(lo uint64) (uint64, error) {
	b, err := g.src.Byte()
	if nil != err {
		return 0, err
	}
	if b < escape {
		return lo + uint64(b), nil
	}
	raw, err := g.src.Uint(2)
	if nil != err {
		return 0, err
	}
	return lo + escape + raw, nil
}

func (g *generator) objectIdentifier() (*asn.Value, error) {
	b, err := g.src.Byte()
	if nil != err {
		return nil, err
	}
	arcs := make([]int, int(b)%4+2)
	for i := range arcs {
		arc, err := g.src.Byte()
		if nil != err {
			return nil, err
		}
		arcs[i] = int(arc)
	}
	return asn.NewObjectIdentifier(arcs), nil
}

func (g *generator) sequence(t *asn.Type, depth int) (*asn.Value, error) {
	present := make([]bool, len(t.Components))
	for i, c := range t.Components {
		if !c.Optional {
			present[i] = true
			continue
		}
		b, err := g.src.Byte()
		if nil != err {
			return nil, within(err, c.Name)
		}
		present[i] = b&1 == 1
	}

	components := make([]*asn.Value, len(t.Components))
	for i, c := range t.Components {
		if !present[i] {
			continue
		}
		if tb := t.KeyedBy(i); nil != tb {
			v, err := g.row(tb)
			if nil != err {
				return nil, within(err, c.Name)
			}
			components[i] = v
			continue
		}
		sub, ok := t.Select(i, components)
		if !ok {
			return nil, within(entropic("%s value selects no row", c.Table.Key), c.Name)
		}
		v, err := g.value(sub, depth+1)
		if nil != err {
			return nil, within(err, c.Name)
		}
		components[i] = v
	}
	return asn.NewSequence(components...), nil
}

// row picks a table row and returns its ID as the key value, so the
// tabled component that follows always has a type.
func (g *generator) row(tb *asn.Table) (*asn.Value, error) {
	if len(tb.Rows) == 0 {
		return nil, entropic("table keyed by %s has no rows", tb.Key)
	}
	last := uint64(len(tb.Rows) - 1)
	raw, err := g.src.Uint(constraint.WidthBytes(last))
	if nil != err {
		return nil, err
	}
	return asn.NewInteger(tb.Rows[constraint.Reduce(raw, last)].ID), nil
}

func (g *generator) sequenceOf(t *asn.Type, depth int) (*asn.Value, error) {
	n, err := g.size(t.Size)
	if nil != err {
		return nil, err
	}
	if n > MaxNodes {
		return nil, entropic("%d elements exceed %d", n, MaxNodes)
	}
	items := make([]*asn.Value, 0, min(n, MaxUnboundedSize))
	for i := range int(n) {
		v, err := g.value(t.Element, depth+1)
		if nil != err {
			return nil, within(err, index(i))
		}
		items = append(items, v)
	}
	return asn.NewSequenceOf(items...), nil
}

func (g *generator) choice(t *asn.Type, depth int) (*asn.Value, error) {
	total := uint64(t.NumAlternatives())
	if total == 0 {
		return nil, entropic("choice %s without alternatives", t.Label())
	}
	raw, err := g.src.Uint(constraint.WidthBytes(total - 1))
	if nil != err {
		return nil, err
	}
	idx := constraint.Reduce(raw, total-1)
	alt, _ := t.Alternative(idx)
	v, err := g.value(alt.Type, depth+1)
	if nil != err {
		return nil, within(err, alt.Name)
	}
	return asn.NewChoice(idx, v), nil
}
