package per

import (
	"encoding/asn1"
	"fmt"
	"math"
	"math/bits"

	"github.com/thebagchi/asnfuzz-go/lib/bitbuffer"
	"github.com/thebagchi/asnfuzz-go/lib/constraint"
	"github.com/thebagchi/asnfuzz-go/lib/errors"
)

// Encoder represents a PER encoder for bit-level encoding
type Encoder struct {
	codec   *bitbuffer.Codec
	aligned bool
}

// NewEncoder creates a new PER encoder
// aligned: true for APER (Aligned PER), false for UPER (Unaligned PER)
func NewEncoder(aligned bool) *Encoder {
	return &Encoder{
		codec:   bitbuffer.CreateWriter(),
		aligned: aligned,
	}
}

// Bytes returns the encoded bytes. The final octet is zero padded. Returns
// nil when nothing was written.
func (e *Encoder) Bytes() []byte {
	return e.codec.Bytes()
}

// Aligned reports whether this is the ALIGNED variant.
func (e *Encoder) Aligned() bool {
	return e.aligned
}

// align pads to an octet boundary in the ALIGNED variant only.
func (e *Encoder) align() error {
	if !e.aligned {
		return nil
	}
	return e.codec.Align()
}

func encodeError(format string, args ...any) error {
	return errors.New(errors.PhaseEncode, errors.KindEncoding).Detail(format, args...).Build()
}

func bound[T int64 | uint64](p *T) string {
	if nil == p {
		return "MAX"
	}
	return fmt.Sprint(*p)
}

func lower(lb *uint64) uint64 {
	if nil == lb {
		return 0
	}
	return *lb
}

func bit(set bool) uint64 {
	if set {
		return 1
	}
	return 0
}

// constrainedLength reports whether lengths under ub use the constrained
// whole number form.
func constrainedLength(ub *uint64) bool {
	return nil != ub && *ub < MAX_CONSTRAINED_LENGTH
}

// 11.3 Encoding as a non-negative-binary-integer
// |- 11.3.6 A minimum octet encoding has a multiple of eight bits and its
// |  |  leading eight bits are not all zero unless the field is eight bits long.

func BitsNonNegativeBinaryInteger(value uint64) int {
	if value == 0 {
		return 1
	}
	return bits.Len64(value)
}

func OctetsNonNegativeBinaryIntegerLength(value uint64) int {
	return (BitsNonNegativeBinaryInteger(value) + 7) >> 3
}

// 11.4 Encoding as a 2's-complement-binary-integer
// |- 11.4.6 A minimum octet encoding has a multiple of eight bits and its
// |  |  leading nine bits are neither all zero nor all one.

func BitsTwosComplementBinaryInteger(value int64) int {
	if value == 0 {
		return 1
	}
	if value > 0 {
		return bits.Len64(uint64(value)) + 1
	}
	return bits.Len64(uint64(^value)) + 1
}

func OctetsTwosComplementBinaryInteger(value int64) int {
	return (BitsTwosComplementBinaryInteger(value) + 7) >> 3
}

// 11.5 Encoding of a constrained whole number
// |- 11.5.4 If "range" is 1 the encoding is empty.
// |- 11.5.6 UNALIGNED: ("n" - "lb") in the minimum number of bits for the range.
// |- 11.5.7 ALIGNED:
// |  |- a) range <= 255: bit-field of the minimum size, not aligned
// |  |- b) range == 256: one octet, octet-aligned
// |  |- c) 256 < range <= 64K: two octets, octet-aligned
// |  |- d) range > 64K: minimum octets, octet-aligned, preceded by the
// |  |  |  octet count as a constrained whole number in [1, octets(ub - lb)]

func (e *Encoder) EncodeConstrainedWholeNumber(lb, ub, n int64) error {
	if n < lb || n > ub {
		return encodeError("value %d outside [%d, %d]", n, lb, ub)
	}
	var (
		span  = uint64(ub) - uint64(lb)
		value = uint64(n) - uint64(lb)
	)
	if span == 0 {
		return nil
	}

	if !e.aligned {
		return e.codec.Write(uint8(bits.Len64(span)), value)
	}

	switch {
	case span < 0xFF:
		return e.codec.Write(uint8(bits.Len64(span)), value)
	case span == 0xFF:
		if err := e.codec.Align(); nil != err {
			return err
		}
		return e.codec.Write(8, value)
	case span <= 0xFFFF:
		if err := e.codec.Align(); nil != err {
			return err
		}
		return e.codec.Write(16, value)
	}

	var (
		octets    = OctetsNonNegativeBinaryIntegerLength(value)
		maxOctets = OctetsNonNegativeBinaryIntegerLength(span)
	)
	if err := e.EncodeConstrainedWholeNumber(1, int64(maxOctets), int64(octets)); nil != err {
		return err
	}
	if err := e.codec.Align(); nil != err {
		return err
	}
	return e.codec.Write(uint8(octets*8), value)
}

// 11.6 Encoding of a normally small non-negative whole number
// |- 11.6.1 n <= 63: a single bit 0 followed by n in a 6-bit field.
// |- 11.6.2 Otherwise: a single bit 1 followed by n as a semi-constrained
// |  |  whole number with "lb" equal to 0.

func (e *Encoder) EncodeNormallySmallNonNegativeWholeNumber(n uint64) error {
	if n <= 63 {
		if err := e.codec.Write(1, 0); nil != err {
			return err
		}
		return e.codec.Write(6, n)
	}
	if err := e.codec.Write(1, 1); nil != err {
		return err
	}
	return e.encodeNonNegative(n)
}

// 11.7 Encoding of a semi-constrained whole number
// |- 11.7.3 ("n" - "lb") as a minimum octet non-negative-binary-integer,
// |  |  preceded by an unconstrained length determinant giving the octet count.

func (e *Encoder) EncodeSemiConstrainedWholeNumber(lb, n int64) error {
	if n < lb {
		return encodeError("value %d below lower bound %d", n, lb)
	}
	return e.encodeNonNegative(uint64(n) - uint64(lb))
}

func (e *Encoder) encodeNonNegative(value uint64) error {
	octets := OctetsNonNegativeBinaryIntegerLength(value)
	if _, err := e.EncodeUnconstrainedLength(uint64(octets)); nil != err {
		return err
	}
	if err := e.align(); nil != err {
		return err
	}
	return e.codec.Write(uint8(octets*8), value)
}

// 11.8 Encoding of an unconstrained whole number
// |- 11.8.3 n as a minimum octet 2's-complement-binary-integer, preceded by
// |  |  an unconstrained length determinant giving the octet count.

func (e *Encoder) EncodeUnconstrainedWholeNumber(n int64) error {
	octets := OctetsTwosComplementBinaryInteger(n)
	if _, err := e.EncodeUnconstrainedLength(uint64(octets)); nil != err {
		return err
	}
	if err := e.align(); nil != err {
		return err
	}
	return e.codec.Write(uint8(octets*8), uint64(n))
}

// 11.9 General rules for encoding a length determinant
// |- 11.9.3.3 / 11.9.4.1 "ub" < 64K: constrained whole number in [lb, ub].
// |- 11.9.3.6 n < 128: one octet 0xxxxxxx (octet-aligned in ALIGNED).
// |- 11.9.3.7 n < 16K: two octets 10xxxxxx xxxxxxxx.
// |- 11.9.3.8 Otherwise a fragment header 11000kkk announces k * 16K items
// |  |  (k = 1..4) followed by another length determinant for the rest. An
// |  |  exact multiple of 16K ends with a zero length octet.

// EncodeLengthDeterminant encodes the determinant for n remaining items and
// returns how many of them it covers. Fewer than n are covered only when a
// fragment header was written.
func (e *Encoder) EncodeLengthDeterminant(n uint64, lb *uint64, ub *uint64) (uint64, error) {
	if constrainedLength(ub) {
		lo := lower(lb)
		if n < lo || n > *ub {
			return 0, encodeError("length %d outside [%d, %d]", n, lo, *ub)
		}
		return n, e.EncodeConstrainedWholeNumber(int64(lo), int64(*ub), int64(n))
	}
	return e.EncodeUnconstrainedLength(n)
}

// EncodeUnconstrainedLength encodes a general length determinant for n
// remaining items and returns how many of them it covers.
func (e *Encoder) EncodeUnconstrainedLength(n uint64) (uint64, error) {
	if err := e.align(); nil != err {
		return 0, err
	}
	switch {
	case n < 0x80:
		return n, e.codec.Write(8, n)
	case n < FRAGMENT_SIZE:
		return n, e.codec.Write(16, 0x8000|n)
	}
	size := CalculateFragmentSize(n)
	return size, e.codec.Write(8, 0xC0|size/FRAGMENT_SIZE)
}

// 11.9.3.4 Normally small length (n >= 1)
// |- n <= 64: a single bit 0 followed by (n - 1) in a 6-bit field.
// |- Otherwise: a single bit 1 followed by a general length determinant.

func (e *Encoder) EncodeNormallySmallLength(n uint64) (uint64, error) {
	if n == 0 {
		return 0, encodeError("normally small length must be positive")
	}
	if n <= 64 {
		if err := e.codec.Write(1, 0); nil != err {
			return 0, err
		}
		return n, e.codec.Write(6, n-1)
	}
	if err := e.codec.Write(1, 1); nil != err {
		return 0, err
	}
	return e.EncodeUnconstrainedLength(n)
}

// CalculateFragmentSize returns the item count of the largest fragment
// (16K, 32K, 48K or 64K) that n items can fill, 0 below 16K.
func CalculateFragmentSize(n uint64) uint64 {
	return min(n/FRAGMENT_SIZE, MAX_FRAGMENT_UNITS) * FRAGMENT_SIZE
}

// layout describes how a sized list lays out its content.
type layout struct {
	short   uint64 // fixed sizes up to this are written without alignment
	aligned bool   // content after a length determinant starts on an octet
}

var (
	octetLayout   = layout{short: 2, aligned: true}
	bitLayout     = layout{short: 16, aligned: true}
	elementLayout = layout{short: math.MaxUint64}
)

// encodeFragments writes the length determinants for n items and calls emit
// for the run of items following each one.
func (e *Encoder) encodeFragments(n uint64, lb, ub *uint64, l layout, emit func(offset, count uint64) error) error {
	var offset uint64
	for {
		count, err := e.EncodeLengthDeterminant(n-offset, lb, ub)
		if nil != err {
			return err
		}
		if count > 0 && l.aligned {
			if err := e.align(); nil != err {
				return err
			}
		}
		if err := emit(offset, count); nil != err {
			return err
		}
		offset += count
		if constrainedLength(ub) || count < FRAGMENT_SIZE {
			return nil
		}
	}
}

// encodeSized writes the extension bit and length of a sized list of n
// items and emits its content.
// |- ub == 0: nothing.
// |- fixed size up to l.short: content only, not aligned.
// |- fixed size below 64K: content only, aligned per layout.
// |- otherwise: length determinant(s) then content.
// |- extensible and n outside the root: bit 1 then the unconstrained form.
func (e *Encoder) encodeSized(n uint64, lb, ub *uint64, extensible bool, l layout, emit func(offset, count uint64) error) error {
	lo := lower(lb)
	inRoot := n >= lo && (nil == ub || n <= *ub)
	if extensible {
		if err := e.codec.Write(1, bit(!inRoot)); nil != err {
			return err
		}
		if !inRoot {
			return e.encodeFragments(n, nil, nil, l, emit)
		}
	} else if !inRoot {
		return encodeError("size %d outside [%d, %s]", n, lo, bound(ub))
	}

	if nil != ub && *ub == lo && n < MAX_CONSTRAINED_LENGTH {
		if n > l.short && l.aligned {
			if err := e.align(); nil != err {
				return err
			}
		}
		return emit(0, n)
	}
	return e.encodeFragments(n, lb, ub, l, emit)
}

// 12 Encoding the boolean type

func (e *Encoder) EncodeBoolean(value bool) error {
	return e.codec.Write(1, bit(value))
}

// 13 Encoding the integer type
// |- 13.1 Extensible: a bit, 0 when the value is in the root, 1 otherwise.
// |  |  Values outside the root are unconstrained whole numbers.
// |- 13.2.2 Both bounds: constrained whole number.
// |- 13.2.3 Lower bound only: semi-constrained whole number.
// |- 13.2.4 Otherwise: unconstrained whole number.

func (e *Encoder) EncodeInteger(value int64, lb *int64, ub *int64, extensible bool) error {
	inRoot := (nil == lb || value >= *lb) && (nil == ub || value <= *ub)
	if extensible {
		if err := e.codec.Write(1, bit(!inRoot)); nil != err {
			return err
		}
		if !inRoot {
			return e.EncodeUnconstrainedWholeNumber(value)
		}
	} else if !inRoot {
		return encodeError("value %d outside [%s, %s]", value, minBound(lb), bound(ub))
	}

	switch {
	case nil != lb && nil != ub:
		return e.EncodeConstrainedWholeNumber(*lb, *ub, value)
	case nil != lb:
		return e.EncodeSemiConstrainedWholeNumber(*lb, value)
	}
	return e.EncodeUnconstrainedWholeNumber(value)
}

func minBound(p *int64) string {
	if nil == p {
		return "MIN"
	}
	return bound(p)
}

// 14 Encoding the enumerated type
// |- 14.2 Root index as a constrained whole number in [0, count - 1],
// |  |  preceded by a 0 bit when extensible.
// |- 14.3 Extension index (value - count) as a normally small non-negative
// |  |  whole number, preceded by a 1 bit.

func (e *Encoder) EncodeEnumerated(value uint64, count uint64, extensible bool) error {
	return e.encodeIndex(value, count, extensible)
}

// 23 Encoding the choice type
// |- 23.6 / 23.7 Root alternative index as for the enumerated root, nothing
// |  |  when there is a single root alternative.
// |- 23.8 Extension alternative index as a normally small number; the
// |  |  alternative follows as an open type, written by the caller.

func (e *Encoder) EncodeChoiceIndex(index uint64, count uint64, extensible bool) error {
	return e.encodeIndex(index, count, extensible)
}

func (e *Encoder) encodeIndex(value uint64, count uint64, extensible bool) error {
	if count == 0 {
		return encodeError("index over an empty root")
	}
	if value < count {
		if extensible {
			if err := e.codec.Write(1, 0); nil != err {
				return err
			}
		}
		return e.EncodeConstrainedWholeNumber(0, int64(count-1), int64(value))
	}
	if !extensible {
		return encodeError("index %d outside root of %d", value, count)
	}
	if err := e.codec.Write(1, 1); nil != err {
		return err
	}
	return e.EncodeNormallySmallNonNegativeWholeNumber(value - count)
}

// 19 Encoding the sequence type
// |- 19.1 Extensible: a bit, 1 when extension additions are present. No
// |  |  additions are ever written.
// |- 19.2 One presence bit per OPTIONAL component, in declaration order.

func (e *Encoder) EncodeSequencePreamble(extensible bool, present []bool) error {
	if extensible {
		if err := e.codec.Write(1, 0); nil != err {
			return err
		}
	}
	for _, p := range present {
		if err := e.codec.Write(1, bit(p)); nil != err {
			return err
		}
	}
	return nil
}

// 20 Encoding the sequence-of type
// |- Length determinant for the element count (none when fixed below 64K),
// |  |  then the elements, not aligned.

// EncodeSequenceOf writes the count of n elements and calls emit for each
// run of elements that follows a determinant.
func (e *Encoder) EncodeSequenceOf(n uint64, lb, ub *uint64, extensible bool, emit func(offset, count uint64) error) error {
	return e.encodeSized(n, lb, ub, extensible, elementLayout, emit)
}

// WriteBits writes the first count bits of data.
func (e *Encoder) WriteBits(data []byte, count uint) error {
	full := count / 8
	if uint(len(data))*8 < count {
		return encodeError("%d bits requested from %d octets", count, len(data))
	}
	if err := e.codec.WriteBytes(data[:full]); nil != err {
		return err
	}
	if rem := count % 8; rem > 0 {
		return e.codec.Write(uint8(rem), uint64(data[full]>>(8-rem)))
	}
	return nil
}

// 16 Encoding the bitstring type
// |- 16.8 ub == 0: nothing.
// |- 16.9 Fixed length up to 16 bits: the bits, not aligned.
// |- 16.10 Fixed length below 64K: the bits, octet-aligned in ALIGNED.
// |- 16.11 Otherwise a length determinant (in bits) and the bits.

func (e *Encoder) EncodeBitString(value *asn1.BitString, lb *uint64, ub *uint64, extensible bool) error {
	if value.BitLength < 0 || len(value.Bytes)*8 < value.BitLength {
		return encodeError("bit string of %d bits over %d octets", value.BitLength, len(value.Bytes))
	}
	return e.encodeSized(uint64(value.BitLength), lb, ub, extensible, bitLayout, func(offset, count uint64) error {
		if count == 0 {
			return nil
		}
		return e.WriteBits(value.Bytes[offset/8:], uint(count))
	})
}

// 17 Encoding the octetstring type
// |- 17.5 ub == 0: nothing.
// |- 17.6 Fixed length up to two octets: the octets, not aligned.
// |- 17.7 Fixed length below 64K: the octets, octet-aligned in ALIGNED.
// |- 17.8 Otherwise a length determinant and the octets.

func (e *Encoder) EncodeOctetString(value []byte, lb *uint64, ub *uint64, extensible bool) error {
	return e.encodeSized(uint64(len(value)), lb, ub, extensible, octetLayout, func(offset, count uint64) error {
		return e.codec.WriteBytes(value[offset : offset+count])
	})
}

// 30 Encoding the restricted character string types
// |- 30.5 Known-multiplier strings (IA5String, VisibleString,
// |  |  PrintableString): b = 7 and every character fits, so each one is
// |  |  carried as its own value in B bits, B = 7 in UNALIGNED and 8 in
// |  |  ALIGNED.
// |- 30.5.6 Fixed length with ub * B up to 16 bits: not aligned.
// |- 30.5.7 Otherwise the length in characters; the characters are
// |  |  octet-aligned in ALIGNED only when ub * B exceeds 16 bits.
// |- 30.6 UTF8String: SIZE is not PER-visible, so an unconstrained length in
// |  |  octets followed by the octets.

// charLayout returns the layout of a known-multiplier string of width-bit
// characters.
func charLayout(width uint8, ub *uint64) layout {
	short := 16 / uint64(width)
	return layout{short: short, aligned: nil == ub || *ub > short}
}

func (e *Encoder) EncodeString(value string, alphabet constraint.Alphabet, lb *uint64, ub *uint64, extensible bool) error {
	if !alphabet.KnownMultiplier() {
		return e.EncodeUTF8String(value)
	}
	for i := 0; i < len(value); i++ {
		if !alphabet.Permits(value[i]) {
			return encodeError("character %#x at %d outside %s", value[i], i, alphabet)
		}
	}
	width := alphabet.CharBits(e.aligned)
	return e.encodeSized(uint64(len(value)), lb, ub, extensible, charLayout(width, ub), func(offset, count uint64) error {
		if width == 8 {
			return e.codec.WriteBytes([]byte(value[offset : offset+count]))
		}
		for i := offset; i < offset+count; i++ {
			if err := e.codec.Write(width, uint64(value[i])); nil != err {
				return err
			}
		}
		return nil
	})
}

func (e *Encoder) EncodeUTF8String(value string) error {
	return e.encodeFragments(uint64(len(value)), nil, nil, octetLayout, func(offset, count uint64) error {
		return e.codec.WriteBytes([]byte(value[offset : offset+count]))
	})
}

// 18 Encoding the null type

func (e *Encoder) EncodeNull() error {
	return nil
}

// 24 Encoding the object identifier type
// Not supported.

func (e *Encoder) EncodeObjectIdentifier(oid asn1.ObjectIdentifier) error {
	return errors.New(errors.PhaseEncode, errors.KindEncoding).
		Detail("OBJECT IDENTIFIER %s is not supported", oid).
		Build()
}

// 11.2 Open type fields
// |- 11.2.1 The value is encoded as a complete encoding, then written as an
// |  |  octet string with an unconstrained length. An empty encoding becomes a
// |  |  single zero octet.

func (e *Encoder) EncodeOpenType(data []byte) error {
	if len(data) == 0 {
		data = []byte{0x00}
	}
	return e.encodeFragments(uint64(len(data)), nil, nil, octetLayout, func(offset, count uint64) error {
		return e.codec.WriteBytes(data[offset : offset+count])
	})
}
