// Package bitbuffer is the MSB-first bit cursor underneath the PER codec.
//
// The Codec type is the wire buffer used by one PER encode or decode call. It
// owns a growable byte slice plus a cursor made of a byte index and a bit
// offset (0-7) inside that byte. Bits are written and read MSB first.
//
// # Cursor disciplines
//
//   - Writers append: Write, WriteBytes and Align only ever extend the buffer
//     at the cursor. Align pads the current octet with zero bits.
//   - Readers never pass the end of the buffer: Read and ReadBytes fail with
//     ErrInsufficientData when fewer bits remain than requested. Advance skips
//     the unused bits of the current octet.
//
// Only the ALIGNED variant of PER calls Align/Advance; the UNALIGNED variant
// never pads.
//
// A Codec belongs to a single encode or decode call and is not safe for
// concurrent use.
package bitbuffer

import (
	"encoding/binary"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

const (
	// ENABLE_TRACE turns on per-call debug records through Logger.
	ENABLE_TRACE = false

	BITS_PER_BYTE = 8

	// WORD_BYTES is the width of the scratch word used by the fast paths.
	WORD_BYTES = 8
)

var (
	// ErrInsufficientData is returned when a read asks for more bits than remain.
	ErrInsufficientData = errors.New("bitbuffer: insufficient data")

	// ErrBitCount is returned for a bit count outside 1..64.
	ErrBitCount = errors.New("bitbuffer: bit count must be between 1 and 64")

	// ErrNegativeCount is returned for a negative byte count.
	ErrNegativeCount = errors.New("bitbuffer: negative byte count")
)

// WriterCapacity is the capacity CreateWriter reserves up front.
var WriterCapacity = 64

// Codec is a bit cursor over buf. pos indexes the byte holding the cursor
// and offset counts the bits of buf[pos] already consumed (0-7). written and
// read include alignment padding.
type Codec struct {
	buf     []byte
	pos     int
	offset  uint8
	written uint64
	read    uint64
}

// trace records one call and the cursor it left behind. Callers guard it
// with ENABLE_TRACE so the fields are never built in normal builds.
func (c *Codec) trace(op string, fields ...zap.Field) {
	Logger().Debug(op, append(fields,
		zap.Int("len", len(c.buf)),
		zap.Int("pos", c.pos),
		zap.Uint8("offset", c.offset),
		zap.Uint64("written", c.written),
		zap.Uint64("read", c.read),
	)...)
}

// CreateWriter returns an empty Codec for writing.
func CreateWriter() *Codec {
	return &Codec{buf: make([]byte, 0, WriterCapacity)}
}

// CreateReader returns a Codec reading data from its first bit. data is not
// copied and must not change while the Codec is in use.
func CreateReader(data []byte) *Codec {
	return &Codec{buf: data}
}

// NumWritten is the number of bits written.
func (c *Codec) NumWritten() uint64 { return c.written }

// NumRead is the number of bits read.
func (c *Codec) NumRead() uint64 { return c.read }

// Remaining returns the number of unread bits.
func (c *Codec) Remaining() uint64 {
	if c.pos >= len(c.buf) {
		return 0
	}
	return uint64(len(c.buf)-c.pos)*BITS_PER_BYTE - uint64(c.offset)
}

// Aligned reports whether the cursor sits on an octet boundary.
func (c *Codec) Aligned() bool {
	return c.offset == 0
}

// Bytes returns the encoded data. The unused bits of a partial final byte are
// zero. Returns nil if nothing was written.
func (c *Codec) Bytes() []byte {
	if c.written == 0 {
		return nil
	}
	return c.buf
}

func (c *Codec) String() string {
	return fmt.Sprintf("bitbuffer(%d octets, cursor %d.%d, %d bits out, %d bits in)",
		len(c.buf), c.pos, c.offset, c.written, c.read)
}

// Write writes the least significant num bits of value (1 <= num <= 64),
// most significant bit first.
//
// Fast path: cursor on an octet boundary, whole bytes appended through
// binary.BigEndian. Slow path: mid-byte, the value is packed chunk by chunk.
func (c *Codec) Write(num uint8, value uint64) error {
	if ENABLE_TRACE {
		defer c.trace("write", zap.Uint8("bits", num), zap.Uint64("value", value))
	}
	if num == 0 || num > 64 {
		return ErrBitCount
	}

	if num < 64 {
		value = value & ((uint64(1) << num) - 1)
	}

	if c.offset == 0 {
		var word [WORD_BYTES]byte
		binary.BigEndian.PutUint64(word[:], value<<(64-uint(num)))
		full, partial := int(num>>3), num&7
		if partial == 0 {
			c.buf = append(c.buf, word[:full]...)
		} else {
			c.buf = append(c.buf, word[:full+1]...)
		}
		c.pos += full
		c.offset = partial
		c.written += uint64(num)
		return nil
	}

	for pending := num; pending > 0; {
		if c.offset == 0 {
			c.buf = append(c.buf, 0x00)
		}
		var (
			available = BITS_PER_BYTE - c.offset
			nbits     = min(pending, available)
			remaining = pending - nbits
			chunk     = uint8(value>>remaining) & (0xFF >> (BITS_PER_BYTE - nbits))
		)
		c.buf[c.pos] |= chunk << (available - nbits)
		c.offset += nbits
		pending -= nbits
		if c.offset == BITS_PER_BYTE {
			c.offset = 0
			c.pos++
		}
	}

	c.written += uint64(num)
	return nil
}

// Read reads the next num bits from the bit stream (num <= 64).
// num=0 returns 0 without error. Returns ErrInsufficientData if fewer than
// num bits remain; the cursor is not moved in that case.
func (c *Codec) Read(num uint8) (uint64, error) {
	if ENABLE_TRACE {
		defer c.trace("read", zap.Uint8("bits", num))
	}
	if num == 0 {
		return 0, nil
	}
	if num > 64 {
		return 0, ErrBitCount
	}
	if c.Remaining() < uint64(num) {
		return 0, ErrInsufficientData
	}

	if c.offset == 0 && num&7 == 0 {
		var word [WORD_BYTES]byte
		n := copy(word[:], c.buf[c.pos:c.pos+int(num>>3)])
		c.pos += n
		c.read += uint64(num)
		return binary.BigEndian.Uint64(word[:]) >> (64 - uint(num)), nil
	}

	var result uint64
	for pending := num; pending > 0; {
		var (
			available = BITS_PER_BYTE - c.offset
			nbits     = min(pending, available)
			bits      = (c.buf[c.pos] >> (available - nbits)) & (0xFF >> (BITS_PER_BYTE - nbits))
		)
		result = result<<nbits | uint64(bits)
		c.offset += nbits
		pending -= nbits
		if c.offset == BITS_PER_BYTE {
			c.offset = 0
			c.pos++
		}
	}

	c.read += uint64(num)
	return result, nil
}

// WriteBytes writes full octets continuing from the current bit offset.
// Does NOT force alignment; the caller must Align() if required.
func (c *Codec) WriteBytes(data []byte) error {
	if ENABLE_TRACE {
		defer c.trace("write octets", zap.Int("count", len(data)))
	}
	if len(data) == 0 {
		return nil
	}

	if c.offset != 0 {
		for i := range data {
			if err := c.Write(BITS_PER_BYTE, uint64(data[i])); nil != err {
				return err
			}
		}
		return nil
	}
	c.buf = append(c.buf, data...)
	c.pos += len(data)
	c.written += uint64(len(data)) * BITS_PER_BYTE
	return nil
}

// ReadBytes reads exactly n octets continuing from the current bit offset.
// The returned slice is a copy and never nil.
func (c *Codec) ReadBytes(n int) ([]byte, error) {
	if ENABLE_TRACE {
		defer c.trace("read octets", zap.Int("count", n))
	}
	if n < 0 {
		return nil, ErrNegativeCount
	}
	if n == 0 {
		return []byte{}, nil
	}
	if c.Remaining() < uint64(n)*BITS_PER_BYTE {
		return nil, ErrInsufficientData
	}

	out := make([]byte, n)
	if c.offset != 0 {
		for i := range out {
			v, err := c.Read(BITS_PER_BYTE)
			if nil != err {
				return nil, err
			}
			out[i] = byte(v)
		}
		return out, nil
	}
	c.pos += copy(out, c.buf[c.pos:c.pos+n])
	c.read += uint64(n) * BITS_PER_BYTE
	return out, nil
}

// Align pads the current octet with zero bits so the next write starts on an
// octet boundary. Idempotent when already aligned.
func (c *Codec) Align() error {
	if ENABLE_TRACE {
		defer c.trace("align")
	}
	if c.offset == 0 {
		return nil
	}
	// padding bits of a fresh octet are already zero
	c.written += uint64(BITS_PER_BYTE - c.offset)
	c.pos, c.offset = c.pos+1, 0
	return nil
}

// Advance skips the unread bits of the current octet (the read counterpart to
// Align). Idempotent when already aligned.
func (c *Codec) Advance() error {
	if ENABLE_TRACE {
		defer c.trace("advance")
	}
	if c.offset == 0 {
		return nil
	}
	c.read += uint64(BITS_PER_BYTE - c.offset)
	c.pos, c.offset = c.pos+1, 0
	return nil
}
