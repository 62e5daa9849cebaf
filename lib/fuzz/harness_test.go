package fuzz

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sync/errgroup"

	"github.com/thebagchi/asnfuzz-go/lib/asn"
	"github.com/thebagchi/asnfuzz-go/lib/constraint"
	"github.com/thebagchi/asnfuzz-go/lib/errors"
)

func message() *asn.Type {
	entry := asn.SequenceType("Entry", true,
		asn.Field("id", asn.IntegerType("", constraint.MustRange(0, 65535))),
		asn.Optional("name", asn.CharacterStringType("", constraint.Visible, constraint.MustSizeRange(1, 32))),
		asn.Optional("mask", asn.BitStringType("", constraint.MustSizeRange(1, 64).Extensible())),
	)
	return asn.SequenceType("Message", true,
		asn.Field("flag", asn.BooleanType("")),
		asn.Field("ueId", asn.IntegerType("", constraint.MustRange(0, 4294967295))),
		asn.Field("delta", asn.IntegerType("", constraint.MustRange(-8, 7).Extensible())),
		asn.Field("cause", asn.EnumeratedType("", constraint.MustEnumeration([]string{"a", "b", "c"}, true, "d"))),
		asn.Field("plmn", asn.OctetStringType("", constraint.FixedSize(3))),
		asn.Optional("nas", asn.OctetStringType("", constraint.AnySize())),
		asn.Field("entries", asn.SequenceOfType("", constraint.MustSizeRange(0, 8), entry)),
		asn.Field("body", asn.ChoiceType("Body", true, []asn.Component{
			asn.Field("none", asn.NullType("")),
			asn.Field("count", asn.IntegerType("", constraint.AtLeast(0))),
		}, asn.Field("extra", asn.OctetStringType("", constraint.MustSizeRange(0, 4))))),
	)
}

func harness(t testing.TB, root *asn.Type, codec Codec) *Harness {
	t.Helper()
	h, err := New(root, codec, DefaultOptions())
	require.NoError(t, err)
	return h
}

func random(seed uint64, n int) []byte {
	r := rand.New(rand.NewPCG(seed, ^seed))
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(r.Uint32())
	}
	return data
}

func TestScenarios(t *testing.T) {
	tests := []struct {
		name   string
		root   *asn.Type
		codec  Codec
		input  string
		output string
	}{
		{"INTEGER_0_255_APER", asn.IntegerType("", constraint.MustRange(0, 255)), APER, "c8", "c8"},
		{"INTEGER_0_255_UPER", asn.IntegerType("", constraint.MustRange(0, 255)), UPER, "c8", "c8"},
		{"ENUMERATED_B", asn.EnumeratedType("", constraint.MustEnumeration([]string{"a", "b", "c"}, false)), UPER, "01", "40"},
		{"ENUMERATED_WRAPS", asn.EnumeratedType("", constraint.MustEnumeration([]string{"a", "b", "c"}, false)), UPER, "04", "40"},
		{"INTEGER_0_65535_APER", asn.IntegerType("", constraint.MustRange(0, 65535)), APER, "03e8", "03e8"},
		{"NULL", asn.NullType(""), APER, "", "00"},
		{"BOOLEAN_PADDED", asn.BooleanType(""), UPER, "ff", "80"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := harness(t, tc.root, tc.codec)
			in, err := hex.DecodeString(tc.input)
			require.NoError(t, err)
			out := make([]byte, 16)
			n := h.Structure(in, out)
			require.GreaterOrEqual(t, n, 0)
			assert.Equal(t, tc.output, hex.EncodeToString(out[:n]))
		})
	}
}

func TestBoundaryCodes(t *testing.T) {
	integer := harness(t, asn.IntegerType("", constraint.MustRange(0, 255)), APER)
	wide := harness(t, asn.IntegerType("", constraint.MustRange(0, 65535)), APER)
	oid := harness(t, asn.SequenceType("WithOID", false,
		asn.Optional("oid", asn.ObjectIdentifierType("")),
	), UPER)
	in := []byte{0x01, 0x02}
	out := make([]byte, 8)

	tests := []struct {
		name     string
		code     int
		callable func() int
	}{
		{"EMPTY_INPUT_EMPTY_OUTPUT", errors.CodeEntropic, func() int { return integer.StructureN(in, 0, out, 0) }},
		{"EMPTY_INPUT", errors.CodeEntropic, func() int { return integer.Structure(nil, out) }},
		{"IN_LEN_EXCEEDS", errors.CodeArgs, func() int { return integer.StructureN(in, 3, out, 8) }},
		{"IN_LEN_NEGATIVE", errors.CodeArgs, func() int { return integer.StructureN(in, -1, out, 8) }},
		{"OUT_MAX_EXCEEDS", errors.CodeArgs, func() int { return integer.DestructureN(in, 1, out, 9) }},
		{"OUTPUT_TOO_SMALL", errors.CodeTruncated, func() int { return wide.StructureN(in, 2, out, 1) }},
		{"NO_OUTPUT", errors.CodeTruncated, func() int { return integer.Structure(in, nil) }},
		{"OID_STRUCTURE", errors.CodeEncoding, func() int { return oid.Structure(in, out) }},
		{"OID_DESTRUCTURE", errors.CodeEncoding, func() int { return oid.Destructure(in, out) }},
		{"DECODE_EMPTY", errors.CodeEncoding, func() int { return integer.Destructure(nil, out) }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.code, tc.callable())
		})
	}
}

func TestDestructure(t *testing.T) {
	h := harness(t, asn.IntegerType("", constraint.MustRange(0, 255)), UPER)
	out := make([]byte, 4)
	n := h.Destructure([]byte{0xC8}, out)
	require.Equal(t, 1, n)
	assert.Equal(t, byte(0xC8), out[0])

	small := harness(t, asn.IntegerType("", constraint.MustRange(0, 199)), UPER)
	assert.Equal(t, errors.CodeEncoding, small.Destructure([]byte{0xFF}, out))
}

func TestStagingCap(t *testing.T) {
	root := asn.OctetStringType("", constraint.MustSizeRange(0, 255))
	h, err := New(root, APER, Options{StagingCap: 3})
	require.NoError(t, err)

	_, err = h.DestructureBytes([]byte{0x03, 0xAA, 0xBB, 0xCC})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrTruncated)

	out := make([]byte, 16)
	assert.Equal(t, errors.CodeTruncated, h.Destructure([]byte{0x03, 0xAA, 0xBB, 0xCC}, out))
	assert.Equal(t, 3, h.Destructure([]byte{0x02, 0xAA, 0xBB}, out))
}

func TestEntropyCap(t *testing.T) {
	root := asn.OctetStringType("", constraint.FixedSize(8))
	capped, err := New(root, UPER, Options{EntropyCap: 4})
	require.NoError(t, err)
	out := make([]byte, 16)
	assert.Equal(t, errors.CodeEntropic, capped.Structure([]byte{1, 2}, out))

	padded := harness(t, root, UPER)
	n := padded.Structure([]byte{1, 2}, out)
	require.Equal(t, 8, n)
	assert.Equal(t, "0102000000000000", hex.EncodeToString(out[:n]))
}

func TestNewRejects(t *testing.T) {
	root := asn.BooleanType("")
	_, err := New(nil, APER, DefaultOptions())
	assert.ErrorIs(t, err, errors.ErrArgs)
	_, err = New(root, Codec(9), DefaultOptions())
	assert.ErrorIs(t, err, errors.ErrArgs)
	_, err = New(root, APER, Options{EntropyCap: -1})
	assert.ErrorIs(t, err, errors.ErrArgs)
}

func TestStructureDestructureRoundTrip(t *testing.T) {
	root := message()
	for _, codec := range Codecs {
		h := harness(t, root, codec)
		t.Run(fmt.Sprintf("CODEC_%s", codec), func(t *testing.T) {
			for seed := range uint64(64) {
				in := random(seed, 512)
				encoded, err := h.StructureBytes(in)
				require.NoError(t, err)

				recovered, err := h.DestructureBytes(encoded)
				require.NoError(t, err)

				again, err := h.StructureBytes(recovered)
				require.NoError(t, err)
				assert.Equal(t, hex.EncodeToString(encoded), hex.EncodeToString(again), "seed %d", seed)
			}
		})
	}
}

func TestDeterministic(t *testing.T) {
	h := harness(t, message(), APER)
	in := random(7, 300)
	a, err := h.StructureBytes(in)
	require.NoError(t, err)
	b, err := h.StructureBytes(bytes.Clone(in))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestConcurrentUse(t *testing.T) {
	h := harness(t, message(), UPER)
	inputs := make([][]byte, 32)
	expected := make([][]byte, len(inputs))
	for i := range inputs {
		inputs[i] = random(uint64(i), 256)
		data, err := h.StructureBytes(inputs[i])
		require.NoError(t, err)
		expected[i] = data
	}

	var g errgroup.Group
	for worker := range 16 {
		g.Go(func() error {
			out := make([]byte, 1<<18)
			for round := range 20 {
				i := (worker + round) % len(inputs)
				n := h.Structure(inputs[i], out)
				if n < 0 || !bytes.Equal(out[:n], expected[i]) {
					return fmt.Errorf("worker %d input %d: code %d", worker, i, n)
				}
				if code := h.Destructure(out[:n], make([]byte, 1<<18)); code < 0 {
					return fmt.Errorf("worker %d input %d: destructure code %d", worker, i, code)
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestPanicBecomesEncoding(t *testing.T) {
	h := harness(t, asn.BooleanType(""), APER)
	boom := func([]byte) ([]byte, error) { panic("boom") }
	assert.Equal(t, errors.CodeEncoding, h.call("structure", boom, nil, 0, nil, 0))
}

func TestFailuresAreLogged(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	h, err := New(asn.IntegerType("", constraint.MustRange(0, 255)), UPER, Options{Logger: zap.New(core)})
	require.NoError(t, err)

	assert.Equal(t, errors.CodeEntropic, h.Structure(nil, make([]byte, 1)))
	entries := logs.FilterMessage("structure failed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, int64(errors.CodeEntropic), fields["code"])
	assert.Equal(t, int64(0), fields["in_len"])
	assert.Equal(t, "uper", fields["codec"])
}

func FuzzStructure(f *testing.F) {
	f.Add([]byte{})
	f.Add([]byte{0x00})
	f.Add([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	f.Add(random(1, 64))
	f.Add(random(2, 1024))

	h := harness(f, message(), APER)
	f.Fuzz(func(t *testing.T, in []byte) {
		out := make([]byte, 1<<18)
		n := h.Structure(in, out)
		if n < 0 {
			require.GreaterOrEqual(t, n, errors.CodeTruncated)
			return
		}
		recovered := make([]byte, staged(t, h, out[:n]))
		require.Equal(t, len(recovered), h.Destructure(out[:n], recovered))

		again := make([]byte, 1<<18)
		m := h.Structure(recovered, again)
		require.GreaterOrEqual(t, m, 0)
		require.Equal(t, out[:n], again[:m])
	})
}

// FuzzDestructure feeds arbitrary encodings. The invariant is that no input
// panics and every result is a length or a known code.
func FuzzDestructure(f *testing.F) {
	f.Add([]byte{})
	f.Add([]byte{0x80, 0x00})
	f.Add(random(3, 128))

	h := harness(f, message(), UPER)
	f.Fuzz(func(t *testing.T, in []byte) {
		n := h.Destructure(in, make([]byte, 1<<12))
		require.GreaterOrEqual(t, n, errors.CodeTruncated)
	})
}

func staged(t *testing.T, h *Harness, encoded []byte) int {
	data, err := h.DestructureBytes(encoded)
	require.NoError(t, err)
	return len(data)
}
