package entropy

import (
	"bytes"
	"encoding/asn1"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebagchi/asnfuzz-go/lib/asn"
	"github.com/thebagchi/asnfuzz-go/lib/constraint"
	"github.com/thebagchi/asnfuzz-go/lib/errors"
	"github.com/thebagchi/asnfuzz-go/lib/per"
)

func tabled() *asn.Type {
	return asn.SequenceType("IE", false,
		asn.Field("id", asn.IntegerType("", constraint.MustRange(0, 65535))),
		asn.TableField("value", "id",
			asn.Row{ID: 10, Name: "A", Type: asn.BooleanType("")},
			asn.Row{ID: 38, Name: "B", Type: asn.IntegerType("", constraint.MustRange(0, 255))},
			asn.Row{ID: 85, Name: "C", Type: asn.NullType("")},
		),
	)
}

func schema() *asn.Type {
	item := asn.SequenceType("Item", true,
		asn.Field("id", asn.IntegerType("", constraint.MustRange(0, 65535))),
		asn.Optional("label", asn.CharacterStringType("", constraint.IA5, constraint.MustSizeRange(1, 150))),
		asn.Optional("flags", asn.BitStringType("", constraint.AnySize())),
		asn.Optional("name", asn.CharacterStringType("", constraint.Printable, constraint.MustSizeRange(1, 150).Extensible())),
		asn.Optional("note", asn.CharacterStringType("", constraint.UTF8, constraint.MustSizeRange(1, 8))),
	)
	return asn.SequenceType("Message", true,
		asn.Field("null", asn.NullType("")),
		asn.Field("flag", asn.BooleanType("")),
		asn.Field("signed", asn.IntegerType("", constraint.Unbounded())),
		asn.Field("semi", asn.IntegerType("", constraint.AtLeast(-5))),
		asn.Field("upper", asn.IntegerType("", constraint.AtMost(100))),
		asn.Optional("huge", asn.IntegerType("", constraint.MustRange(0, 4294967295))),
		asn.Field("ext", asn.IntegerType("", constraint.MustRange(-3, 3).Extensible())),
		asn.Field("cause", asn.EnumeratedType("", constraint.MustEnumeration([]string{"a", "b", "c"}, true, "d", "e"))),
		asn.Field("cell", asn.BitStringType("", constraint.FixedSize(36))),
		asn.Optional("mask", asn.BitStringType("", constraint.MustSizeRange(1, 160).Extensible())),
		asn.Field("plmn", asn.OctetStringType("", constraint.FixedSize(3))),
		asn.Optional("blob", asn.OctetStringType("", constraint.SizeAtLeast(1))),
		asn.Field("items", asn.SequenceOfType("", constraint.MustSizeRange(1, 16), item)),
		asn.Field("pick", asn.ChoiceType("Pick", true, []asn.Component{
			asn.Field("none", asn.NullType("")),
			asn.Field("small", asn.IntegerType("", constraint.MustRange(0, 255))),
		}, asn.Field("later", asn.OctetStringType("", constraint.MustSizeRange(0, 8))))),
		asn.Field("ies", asn.SequenceOfType("", constraint.MustSizeRange(0, 4), tabled())),
	)
}

func random(seed uint64, n int) []byte {
	r := rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15))
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(r.Uint32())
	}
	return data
}

func TestGenerateFlattenRoundTrip(t *testing.T) {
	typ := schema()
	require.NoError(t, asn.Validate(typ))

	for seed := range uint64(64) {
		t.Run(fmt.Sprintf("SEED_%d", seed), func(t *testing.T) {
			v, err := Generate(typ, NewSource(random(seed, 512)))
			require.NoError(t, err)

			flat, err := FlattenBytes(typ, v)
			require.NoError(t, err)

			again, err := Generate(typ, NewSource(flat))
			require.NoError(t, err)
			assert.True(t, v.Equal(again), "want %s\ngot  %s", v.Format(typ), again.Format(typ))
		})
	}
}

func TestGeneratedValuesEncode(t *testing.T) {
	typ := schema()
	for seed := range uint64(32) {
		v, err := Generate(typ, NewSource(random(seed, 256)))
		require.NoError(t, err)
		for _, aligned := range []bool{false, true} {
			data, err := per.Marshal(typ, v, aligned)
			require.NoError(t, err)
			decoded, err := per.Unmarshal(typ, data, aligned)
			require.NoError(t, err)
			assert.True(t, v.Equal(decoded), "seed %d aligned %v", seed, aligned)
		}
	}
}

func TestGenerateDeterministic(t *testing.T) {
	typ := schema()
	input := random(7, 100)
	first, err := Generate(typ, NewSource(input))
	require.NoError(t, err)
	for range 8 {
		again, err := Generate(typ, NewSource(bytes.Clone(input)))
		require.NoError(t, err)
		assert.True(t, first.Equal(again))
	}
}

func TestEmptyInput(t *testing.T) {
	_, err := Generate(asn.BooleanType(""), NewSource(nil))
	require.Error(t, err)
	assert.Equal(t, errors.CodeEntropic, errors.Code(err))

	_, err = Generate(schema(), NewSource([]byte{}))
	assert.ErrorIs(t, err, errors.ErrEntropic)

	// NULL reads nothing
	v, err := Generate(asn.NullType(""), NewSource(nil))
	require.NoError(t, err)
	assert.Equal(t, asn.Null, v.Kind)
}

func TestShortInputIsPadded(t *testing.T) {
	v, err := Generate(asn.IntegerType("", constraint.MustRange(0, 65535)), NewSource([]byte{0x12}))
	require.NoError(t, err)
	assert.Equal(t, int64(0x1200), v.Int)

	// a single byte is enough for the whole message
	_, err = Generate(schema(), NewSource([]byte{0x01}))
	assert.NoError(t, err)
}

func TestSourceCap(t *testing.T) {
	src := NewSource(make([]byte, MaxEntropy+10))
	assert.Equal(t, MaxEntropy, src.Remaining())

	src = NewSourceCap([]byte{1, 2, 3}, 5)
	data, err := src.Bytes(5)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 0, 0}, data)
	assert.Equal(t, 5, src.Consumed())

	_, err = src.Byte()
	assert.ErrorIs(t, err, errors.ErrEntropic)

	_, err = NewSourceCap([]byte{1}, 4).Bytes(5)
	assert.ErrorIs(t, err, errors.ErrEntropic)
}

func TestLeafSchemes(t *testing.T) {
	tests := []struct {
		name     string
		typ      *asn.Type
		input    []byte
		expected *asn.Value
	}{
		{
			name:     "BOOLEAN_LOW_BIT",
			typ:      asn.BooleanType(""),
			input:    []byte{0xFE},
			expected: asn.NewBoolean(false),
		},
		{
			name:     "INTEGER_REDUCED",
			typ:      asn.IntegerType("", constraint.MustRange(0, 2)),
			input:    []byte{0x05},
			expected: asn.NewInteger(2),
		},
		{
			name:     "INTEGER_OFFSET",
			typ:      asn.IntegerType("", constraint.MustRange(-128, 127)),
			input:    []byte{0x7F},
			expected: asn.NewInteger(-1),
		},
		{
			name:     "INTEGER_FIXED",
			typ:      asn.IntegerType("", constraint.MustRange(5, 5)),
			input:    []byte{},
			expected: asn.NewInteger(5),
		},
		{
			name:     "INTEGER_EXTENSION",
			typ:      asn.IntegerType("", constraint.MustRange(0, 7).Extensible()),
			input:    []byte{0x01, 0, 0, 0, 0, 0, 0, 0x01, 0x00},
			expected: asn.NewInteger(256),
		},
		{
			name:     "INTEGER_UPPER_ONLY",
			typ:      asn.IntegerType("", constraint.AtMost(10)),
			input:    []byte{0, 0, 0, 0, 0, 0, 0, 0x0B},
			expected: asn.NewInteger(-1),
		},
		{
			name:     "INTEGER_UNCONSTRAINED",
			typ:      asn.IntegerType("", constraint.Unbounded()),
			input:    []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFE},
			expected: asn.NewInteger(-2),
		},
		{
			name:     "ENUMERATED_ROOT",
			typ:      asn.EnumeratedType("", constraint.MustEnumeration([]string{"a", "b", "c"}, false)),
			input:    []byte{0x04},
			expected: asn.NewEnumerated(1),
		},
		{
			name:     "ENUMERATED_EXTENSION",
			typ:      asn.EnumeratedType("", constraint.MustEnumeration([]string{"a", "b", "c"}, true, "d", "e")),
			input:    []byte{0x01, 0x03},
			expected: asn.NewEnumerated(4),
		},
		{
			name:     "OCTET_STRING_BOUNDED",
			typ:      asn.OctetStringType("", constraint.MustSizeRange(1, 4)),
			input:    []byte{0x05, 0xAA, 0xBB},
			expected: asn.NewOctetString([]byte{0xAA, 0xBB}),
		},
		{
			name:     "BIT_STRING_MASKED",
			typ:      asn.BitStringType("", constraint.FixedSize(4)),
			input:    []byte{0xFF},
			expected: asn.NewBitString([]byte{0xF0}, 4),
		},
		{
			name:     "SEQUENCE_PRESENCE",
			typ:      asn.SequenceType("", false, asn.Optional("a", asn.BooleanType("")), asn.Field("b", asn.BooleanType(""))),
			input:    []byte{0x00, 0x01},
			expected: asn.NewSequence(nil, asn.NewBoolean(true)),
		},
		{
			name: "CHOICE_OVER_ALL_ALTERNATIVES",
			typ: asn.ChoiceType("", true, []asn.Component{asn.Field("a", asn.NullType(""))},
				asn.Field("b", asn.BooleanType(""))),
			input:    []byte{0x03, 0x01},
			expected: asn.NewChoice(1, asn.NewBoolean(true)),
		},
		{
			name:     "PRINTABLE_STRING_MAPPED",
			typ:      asn.CharacterStringType("", constraint.Printable, constraint.FixedSize(2)),
			input:    []byte{0x0A, 0x4B},
			expected: asn.NewCharacterString("1'"),
		},
		{
			name:     "IA5_STRING_MASKED",
			typ:      asn.CharacterStringType("", constraint.IA5, constraint.FixedSize(1)),
			input:    []byte{0xC1},
			expected: asn.NewCharacterString("A"),
		},
		{
			name:     "UTF8_STRING_SIZE_NOT_VISIBLE",
			typ:      asn.CharacterStringType("", constraint.UTF8, constraint.FixedSize(2)),
			input:    []byte{0x03, 'a', 'b', 'c'},
			expected: asn.NewCharacterString("abc"),
		},
		{
			name:     "TABLE_ROW_SELECTS_ID",
			typ:      tabled(),
			input:    []byte{0x04, 0x07},
			expected: asn.NewSequence(asn.NewInteger(38), asn.NewInteger(7)),
		},
		{
			name:     "OBJECT_IDENTIFIER",
			typ:      asn.ObjectIdentifierType(""),
			input:    []byte{0x01, 1, 3, 6},
			expected: asn.NewObjectIdentifier([]int{1, 3, 6}),
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			src := NewSourceCap(tc.input, len(tc.input))
			v, err := Generate(tc.typ, src)
			require.NoError(t, err)
			assert.True(t, tc.expected.Equal(v), "got %s", v)
			assert.Zero(t, src.Remaining())

			flat, err := FlattenBytes(tc.typ, v)
			require.NoError(t, err)
			again, err := Generate(tc.typ, NewSource(flat))
			require.NoError(t, err)
			assert.True(t, v.Equal(again))
		})
	}
}

func TestUnboundedSize(t *testing.T) {
	typ := asn.OctetStringType("", constraint.AnySize())
	tests := []struct {
		header []byte
		size   int
	}{
		{header: []byte{0x00}, size: 0},
		{header: []byte{0xFE}, size: 254},
		{header: []byte{0xFF, 0x00, 0x00}, size: 255},
		{header: []byte{0xFF, 0xFF, 0xFF}, size: MaxUnboundedSize},
	}
	for _, tc := range tests {
		t.Run(strings.ToUpper(fmt.Sprintf("SIZE_%d", tc.size)), func(t *testing.T) {
			v, err := Generate(typ, NewSource(tc.header))
			require.NoError(t, err)
			assert.Len(t, v.Bytes, tc.size)

			flat, err := FlattenBytes(typ, v)
			require.NoError(t, err)
			assert.Equal(t, tc.header, flat[:len(tc.header)])
			assert.Len(t, flat, len(tc.header)+tc.size)
		})
	}

	_, err := FlattenBytes(typ, asn.NewOctetString(make([]byte, MaxUnboundedSize+1)))
	assert.ErrorIs(t, err, errors.ErrEntropic)
}

func TestExtensibleSizeOutsideRoot(t *testing.T) {
	typ := asn.OctetStringType("", constraint.MustSizeRange(1, 2).Extensible())
	v := asn.NewOctetString([]byte{1, 2, 3})
	flat, err := FlattenBytes(typ, v)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x03, 1, 2, 3}, flat)

	again, err := Generate(typ, NewSource(flat))
	require.NoError(t, err)
	assert.True(t, v.Equal(again))
}

func TestFlattenTruncated(t *testing.T) {
	typ := asn.IntegerType("", constraint.MustRange(0, 65535))
	err := Flatten(typ, asn.NewInteger(1000), NewSink(1))
	require.Error(t, err)
	assert.Equal(t, errors.CodeTruncated, errors.Code(err))

	sink := NewSink(2)
	require.NoError(t, Flatten(typ, asn.NewInteger(1000), sink))
	assert.Equal(t, []byte{0x03, 0xE8}, sink.Bytes())
}

func TestFlattenInconsistent(t *testing.T) {
	record := asn.SequenceType("Record", false,
		asn.Field("flag", asn.BooleanType("")),
		asn.Field("level", asn.IntegerType("", constraint.MustRange(0, 7))),
	)
	tests := map[string]struct {
		typ   *asn.Type
		value *asn.Value
	}{
		"KIND_MISMATCH":      {asn.BooleanType(""), asn.NewInteger(1)},
		"OUT_OF_RANGE":       {asn.IntegerType("", constraint.MustRange(0, 7)), asn.NewInteger(8)},
		"SIZE_OUT_OF_RANGE":  {asn.OctetStringType("", constraint.FixedSize(2)), asn.NewOctetString([]byte{1})},
		"ENUM_OUTSIDE":       {asn.EnumeratedType("", constraint.MustEnumeration([]string{"a"}, false)), asn.NewEnumerated(1)},
		"MISSING_COMPONENT":  {record, asn.NewSequence(asn.NewBoolean(true), nil)},
		"COMPONENT_COUNT":    {record, asn.NewSequence(asn.NewBoolean(true))},
		"NESTED_VIOLATION":   {record, asn.NewSequence(asn.NewBoolean(true), asn.NewInteger(-1))},
		"OID_ARC":            {asn.ObjectIdentifierType(""), asn.NewObjectIdentifier([]int{1, 300})},
		"BIT_STRING_SIZE":    {asn.BitStringType("", constraint.FixedSize(4)), &asn.Value{Kind: asn.BitString}},
		"BIT_STRING_PADDING": {asn.BitStringType("", constraint.FixedSize(4)), &asn.Value{Kind: asn.BitString, Bits: asn1.BitString{Bytes: []byte{0xFF}, BitLength: 4}}},
		"OUTSIDE_ALPHABET":   {asn.CharacterStringType("", constraint.Printable, constraint.AnySize()), asn.NewCharacterString("a_b")},
		"TABLE_UNKNOWN_ID":   {tabled(), asn.NewSequence(asn.NewInteger(11), asn.NewBoolean(true))},
		"TABLE_ROW_MISMATCH": {tabled(), asn.NewSequence(asn.NewInteger(10), asn.NewInteger(7))},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := FlattenBytes(tc.typ, tc.value)
			require.Error(t, err)
			assert.Equal(t, errors.CodeEntropic, errors.Code(err), err.Error())
		})
	}

	_, err := FlattenBytes(record, asn.NewSequence(asn.NewBoolean(true), asn.NewInteger(9)))
	assert.Contains(t, err.Error(), "at level")
}

func TestExtremeIntegers(t *testing.T) {
	tests := []*asn.Type{
		asn.IntegerType("", constraint.Unbounded()),
		asn.IntegerType("", constraint.AtLeast(math.MinInt64)),
		asn.IntegerType("", constraint.AtMost(math.MaxInt64)),
		asn.IntegerType("", constraint.MustRange(math.MinInt64, math.MaxInt64)),
	}
	for _, typ := range tests {
		for _, i := range []int64{math.MinInt64, -1, 0, 1, math.MaxInt64} {
			flat, err := FlattenBytes(typ, asn.NewInteger(i))
			require.NoError(t, err)
			v, err := Generate(typ, NewSource(flat))
			require.NoError(t, err)
			assert.Equal(t, i, v.Int)
		}
	}
}

func TestRecursionDepth(t *testing.T) {
	node := &asn.Type{Name: "Node", Kind: asn.Sequence}
	node.Components = []asn.Component{asn.Field("next", node)}
	_, err := Generate(node, NewSource([]byte{0x01}))
	assert.ErrorIs(t, err, errors.ErrEntropic)

	// an optional link ends on the zero padding
	list := &asn.Type{Name: "List", Kind: asn.Sequence}
	list.Components = []asn.Component{asn.Field("value", asn.BooleanType("")), asn.Optional("next", list)}
	v, err := Generate(list, NewSource([]byte{0x01, 0x01, 0x01, 0x01}))
	require.NoError(t, err)
	assert.NotNil(t, v.Components[1])
}

func FuzzGenerateFlatten(f *testing.F) {
	typ := schema()
	f.Add([]byte{0x01})
	f.Add(random(1, 64))
	f.Add(bytes.Repeat([]byte{0xFF}, 32))
	f.Fuzz(func(t *testing.T, data []byte) {
		v, err := Generate(typ, NewSource(data))
		if nil != err {
			return
		}
		flat, err := FlattenBytes(typ, v)
		require.NoError(t, err)
		again, err := Generate(typ, NewSource(flat))
		require.NoError(t, err)
		assert.True(t, v.Equal(again))
	})
}
