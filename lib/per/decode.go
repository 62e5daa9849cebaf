package per

import (
	"encoding/asn1"
	"math"
	"math/bits"

	"github.com/thebagchi/asnfuzz-go/lib/bitbuffer"
	"github.com/thebagchi/asnfuzz-go/lib/constraint"
	"github.com/thebagchi/asnfuzz-go/lib/errors"
)

// Decoder represents a PER decoder
type Decoder struct {
	codec    *bitbuffer.Codec
	aligned  bool
	elements uint64 // sequence-of elements announced so far, all lists
}

// NewDecoder creates a new PER decoder from encoded data
// aligned: true for APER, false for UPER
func NewDecoder(data []byte, aligned bool) *Decoder {
	return &Decoder{
		codec:   bitbuffer.CreateReader(data),
		aligned: aligned,
	}
}

// Aligned reports whether this is the ALIGNED variant.
func (d *Decoder) Aligned() bool {
	return d.aligned
}

// NumRead returns the number of bits consumed so far.
func (d *Decoder) NumRead() uint64 {
	return d.codec.NumRead()
}

func (d *Decoder) advance() error {
	if !d.aligned {
		return nil
	}
	return d.codec.Advance()
}

func decodeError(format string, args ...any) error {
	return errors.New(errors.PhaseDecode, errors.KindEncoding).Detail(format, args...).Build()
}

// DecodeConstrainedWholeNumber decodes a constrained whole number with lower
// bound lb and upper bound ub. Encodings of offsets beyond the range fail.
func (d *Decoder) DecodeConstrainedWholeNumber(lb, ub int64) (int64, error) {
	if lb > ub {
		return 0, decodeError("empty range [%d, %d]", lb, ub)
	}
	span := uint64(ub) - uint64(lb)
	if span == 0 {
		return lb, nil
	}

	var (
		value uint64
		err   error
	)
	switch {
	case !d.aligned || span < 0xFF:
		value, err = d.codec.Read(uint8(bits.Len64(span)))
	case span == 0xFF:
		if err = d.codec.Advance(); nil == err {
			value, err = d.codec.Read(8)
		}
	case span <= 0xFFFF:
		if err = d.codec.Advance(); nil == err {
			value, err = d.codec.Read(16)
		}
	default:
		maxOctets := OctetsNonNegativeBinaryIntegerLength(span)
		var octets int64
		if octets, err = d.DecodeConstrainedWholeNumber(1, int64(maxOctets)); nil != err {
			return 0, err
		}
		if err = d.codec.Advance(); nil == err {
			value, err = d.codec.Read(uint8(octets * 8))
		}
	}
	if nil != err {
		return 0, err
	}
	if value > span {
		return 0, decodeError("offset %d outside range [%d, %d]", value, lb, ub)
	}
	return int64(uint64(lb) + value), nil
}

// DecodeNormallySmallNonNegativeWholeNumber mirrors the 11.6 encoding.
func (d *Decoder) DecodeNormallySmallNonNegativeWholeNumber() (uint64, error) {
	large, err := d.codec.Read(1)
	if nil != err {
		return 0, err
	}
	if large == 0 {
		return d.codec.Read(6)
	}
	return d.decodeNonNegative()
}

// DecodeSemiConstrainedWholeNumber mirrors the 11.7 encoding.
func (d *Decoder) DecodeSemiConstrainedWholeNumber(lb int64) (int64, error) {
	offset, err := d.decodeNonNegative()
	if nil != err {
		return 0, err
	}
	if offset > uint64(math.MaxInt64)-uint64(lb) {
		return 0, decodeError("offset %d above lower bound %d overflows", offset, lb)
	}
	return int64(uint64(lb) + offset), nil
}

// decodeIntegerOctets reads the octet count and content of a length
// prefixed integer.
func (d *Decoder) decodeIntegerOctets() (uint64, int, error) {
	octets, more, err := d.DecodeUnconstrainedLength()
	if nil != err {
		return 0, 0, err
	}
	if more || octets == 0 || octets > MAX_INTEGER_OCTETS {
		return 0, 0, decodeError("integer of %d octets", octets)
	}
	if err := d.advance(); nil != err {
		return 0, 0, err
	}
	value, err := d.codec.Read(uint8(octets * 8))
	return value, int(octets), err
}

func (d *Decoder) decodeNonNegative() (uint64, error) {
	value, _, err := d.decodeIntegerOctets()
	return value, err
}

// DecodeUnconstrainedWholeNumber mirrors the 11.8 encoding.
func (d *Decoder) DecodeUnconstrainedWholeNumber() (int64, error) {
	value, octets, err := d.decodeIntegerOctets()
	if nil != err {
		return 0, err
	}
	shift := uint(64 - octets*8)
	return int64(value<<shift) >> shift, nil
}

// DecodeLengthDeterminant decodes one length determinant. more reports a
// fragment header: another determinant follows the announced items.
func (d *Decoder) DecodeLengthDeterminant(lb, ub *uint64) (uint64, bool, error) {
	if constrainedLength(ub) {
		lo := lower(lb)
		if lo > *ub {
			return 0, false, decodeError("empty length range [%d, %d]", lo, *ub)
		}
		n, err := d.DecodeConstrainedWholeNumber(int64(lo), int64(*ub))
		return uint64(n), false, err
	}
	return d.DecodeUnconstrainedLength()
}

// DecodeUnconstrainedLength decodes a general length determinant.
func (d *Decoder) DecodeUnconstrainedLength() (uint64, bool, error) {
	if err := d.advance(); nil != err {
		return 0, false, err
	}
	first, err := d.codec.Read(8)
	if nil != err {
		return 0, false, err
	}
	switch {
	case first&0x80 == 0:
		return first, false, nil
	case first&0xC0 == 0x80:
		second, err := d.codec.Read(8)
		if nil != err {
			return 0, false, err
		}
		return (first&0x3F)<<8 | second, false, nil
	}
	units := first & 0x3F
	if units < 1 || units > MAX_FRAGMENT_UNITS {
		return 0, false, decodeError("invalid fragment header 0x%02X", first)
	}
	return units * FRAGMENT_SIZE, true, nil
}

// DecodeNormallySmallLength mirrors the 11.9.3.4 encoding.
func (d *Decoder) DecodeNormallySmallLength() (uint64, bool, error) {
	large, err := d.codec.Read(1)
	if nil != err {
		return 0, false, err
	}
	if large == 0 {
		n, err := d.codec.Read(6)
		return n + 1, false, err
	}
	return d.DecodeUnconstrainedLength()
}

func (d *Decoder) decodeFragments(lb, ub *uint64, l layout, each func(count uint64) error) (uint64, error) {
	var total uint64
	for {
		count, more, err := d.DecodeLengthDeterminant(lb, ub)
		if nil != err {
			return 0, err
		}
		if total+count > MAX_DECODE_COUNT {
			return 0, decodeError("count %d exceeds %d", total+count, MAX_DECODE_COUNT)
		}
		if count > 0 && l.aligned {
			if err := d.advance(); nil != err {
				return 0, err
			}
		}
		if err := each(count); nil != err {
			return 0, err
		}
		total += count
		if !more {
			return total, nil
		}
	}
}

// decodeSized mirrors encodeSized and returns the total item count.
func (d *Decoder) decodeSized(lb, ub *uint64, extensible bool, l layout, each func(count uint64) error) (uint64, error) {
	if extensible {
		outside, err := d.codec.Read(1)
		if nil != err {
			return 0, err
		}
		if outside == 1 {
			return d.decodeFragments(nil, nil, l, each)
		}
	}

	lo := lower(lb)
	if nil != ub && *ub == lo && lo < MAX_CONSTRAINED_LENGTH {
		if lo > l.short && l.aligned {
			if err := d.advance(); nil != err {
				return 0, err
			}
		}
		return lo, each(lo)
	}

	total, err := d.decodeFragments(lb, ub, l, each)
	if nil != err {
		return 0, err
	}
	if total < lo || (nil != ub && total > *ub) {
		return 0, decodeError("size %d outside [%d, %s]", total, lo, bound(ub))
	}
	return total, nil
}

func (d *Decoder) DecodeBoolean() (bool, error) {
	value, err := d.codec.Read(1)
	return value == 1, err
}

func (d *Decoder) DecodeInteger(lb *int64, ub *int64, extensible bool) (int64, error) {
	if extensible {
		outside, err := d.codec.Read(1)
		if nil != err {
			return 0, err
		}
		if outside == 1 {
			return d.DecodeUnconstrainedWholeNumber()
		}
	}

	var (
		value int64
		err   error
	)
	switch {
	case nil != lb && nil != ub:
		return d.DecodeConstrainedWholeNumber(*lb, *ub)
	case nil != lb:
		return d.DecodeSemiConstrainedWholeNumber(*lb)
	}
	if value, err = d.DecodeUnconstrainedWholeNumber(); nil != err {
		return 0, err
	}
	if nil != ub && value > *ub {
		return 0, decodeError("value %d above upper bound %d", value, *ub)
	}
	return value, nil
}

// DecodeEnumerated returns the combined index: root values first, then
// extension values.
func (d *Decoder) DecodeEnumerated(count uint64, extensible bool) (uint64, error) {
	return d.decodeIndex(count, extensible)
}

// DecodeChoiceIndex returns the combined alternative index. The caller reads
// the open type that follows an extension alternative.
func (d *Decoder) DecodeChoiceIndex(count uint64, extensible bool) (uint64, error) {
	return d.decodeIndex(count, extensible)
}

func (d *Decoder) decodeIndex(count uint64, extensible bool) (uint64, error) {
	if count == 0 {
		return 0, decodeError("index over an empty root")
	}
	if extensible {
		outside, err := d.codec.Read(1)
		if nil != err {
			return 0, err
		}
		if outside == 1 {
			k, err := d.DecodeNormallySmallNonNegativeWholeNumber()
			if nil != err {
				return 0, err
			}
			if k > math.MaxUint64-count {
				return 0, decodeError("extension index %d overflows", k)
			}
			return count + k, nil
		}
	}
	value, err := d.DecodeConstrainedWholeNumber(0, int64(count-1))
	return uint64(value), err
}

// DecodeSequencePreamble reads the extension bit (when extensible) and one
// presence bit per OPTIONAL component.
func (d *Decoder) DecodeSequencePreamble(extensible bool, optional int) (bool, []bool, error) {
	var extended bool
	if extensible {
		value, err := d.codec.Read(1)
		if nil != err {
			return false, nil, err
		}
		extended = value == 1
	}
	present := make([]bool, optional)
	for i := range present {
		value, err := d.codec.Read(1)
		if nil != err {
			return false, nil, err
		}
		present[i] = value == 1
	}
	return extended, present, nil
}

// SkipExtensionAdditions consumes the extension addition bitmap and every
// present addition, which are open type fields.
func (d *Decoder) SkipExtensionAdditions() error {
	n, more, err := d.DecodeNormallySmallLength()
	if nil != err {
		return err
	}
	if more || n > MAX_DECODE_COUNT {
		return decodeError("extension bitmap of %d bits", n)
	}
	var present uint64
	for range n {
		value, err := d.codec.Read(1)
		if nil != err {
			return err
		}
		present += value
	}
	for range present {
		if _, err := d.DecodeOpenType(); nil != err {
			return err
		}
	}
	return nil
}

// DecodeSequenceOf reads the element count and calls each with the number
// of elements following each determinant. It never reads past the announced
// count. Elements of nested lists share one MAX_DECODE_COUNT budget.
func (d *Decoder) DecodeSequenceOf(lb, ub *uint64, extensible bool, each func(count uint64) error) (uint64, error) {
	return d.decodeSized(lb, ub, extensible, elementLayout, func(count uint64) error {
		d.elements += count
		if d.elements > MAX_DECODE_COUNT {
			return decodeError("%d sequence-of elements exceed %d", d.elements, MAX_DECODE_COUNT)
		}
		return each(count)
	})
}

// ReadBits reads count bits into a fresh slice, zero padded to the octet.
func (d *Decoder) ReadBits(count uint) ([]byte, error) {
	data, err := d.codec.ReadBytes(int(count / 8))
	if nil != err {
		return nil, err
	}
	if rem := count % 8; rem > 0 {
		value, err := d.codec.Read(uint8(rem))
		if nil != err {
			return nil, err
		}
		data = append(data, byte(value<<(8-rem)))
	}
	return data, nil
}

func (d *Decoder) DecodeBitString(lb *uint64, ub *uint64, extensible bool) (*asn1.BitString, error) {
	data := []byte{}
	total, err := d.decodeSized(lb, ub, extensible, bitLayout, func(count uint64) error {
		chunk, err := d.ReadBits(uint(count))
		if nil != err {
			return err
		}
		data = append(data, chunk...)
		return nil
	})
	if nil != err {
		return nil, err
	}
	return &asn1.BitString{Bytes: data, BitLength: int(total)}, nil
}

func (d *Decoder) DecodeOctetString(lb *uint64, ub *uint64, extensible bool) ([]byte, error) {
	data := []byte{}
	_, err := d.decodeSized(lb, ub, extensible, octetLayout, func(count uint64) error {
		chunk, err := d.codec.ReadBytes(int(count))
		if nil != err {
			return err
		}
		data = append(data, chunk...)
		return nil
	})
	if nil != err {
		return nil, err
	}
	return data, nil
}

func (d *Decoder) DecodeString(alphabet constraint.Alphabet, lb *uint64, ub *uint64, extensible bool) (string, error) {
	if !alphabet.KnownMultiplier() {
		return d.DecodeUTF8String()
	}
	width := alphabet.CharBits(d.aligned)
	data := []byte{}
	_, err := d.decodeSized(lb, ub, extensible, charLayout(width, ub), func(count uint64) error {
		if width == 8 {
			chunk, err := d.codec.ReadBytes(int(count))
			if nil != err {
				return err
			}
			data = append(data, chunk...)
			return nil
		}
		if d.codec.Remaining() < count*uint64(width) {
			return bitbuffer.ErrInsufficientData
		}
		for range count {
			c, err := d.codec.Read(width)
			if nil != err {
				return err
			}
			data = append(data, byte(c))
		}
		return nil
	})
	if nil != err {
		return "", err
	}
	for i, c := range data {
		if !alphabet.Permits(c) {
			return "", decodeError("character %#x at %d outside %s", c, i, alphabet)
		}
	}
	return string(data), nil
}

func (d *Decoder) DecodeUTF8String() (string, error) {
	data, err := d.DecodeOpenType()
	return string(data), err
}

func (d *Decoder) DecodeNull() error {
	return nil
}

func (d *Decoder) DecodeObjectIdentifier() (asn1.ObjectIdentifier, error) {
	return nil, decodeError("OBJECT IDENTIFIER is not supported")
}

// DecodeOpenType returns the octets of an open type field.
func (d *Decoder) DecodeOpenType() ([]byte, error) {
	data := []byte{}
	_, err := d.decodeFragments(nil, nil, octetLayout, func(count uint64) error {
		chunk, err := d.codec.ReadBytes(int(count))
		if nil != err {
			return err
		}
		data = append(data, chunk...)
		return nil
	})
	if nil != err {
		return nil, err
	}
	return data, nil
}
