// Package entropy maps raw fuzzer bytes to constraint-satisfying values and
// back.
//
// Generate reads a Source and builds a value of a type; Flatten writes the
// exact bytes Generate would have consumed for a value into a Sink. For every
// value Flatten accepts:
//
//	v2, _ := entropy.Generate(t, entropy.NewSource(sink.Bytes()))
//	v2.Equal(v) == true
//
// # Layout
//
// Every field consumes whole bytes, big-endian:
//
//   - BOOLEAN: one byte, low bit.
//   - INTEGER: a selector byte when extensible (low bit 1 selects an 8-byte
//     extension value), then ceil(bits(ub-lb)/8) bytes reduced modulo the
//     range, or 8 bytes when a bound is missing.
//   - ENUMERATED: a selector byte when extensible, then index bytes sized to
//     the root or extension list.
//   - Sizes: a selector byte when extensible, then range-sized bytes, or for
//     unbounded sizes one byte below 0xFF or 0xFF and two more bytes.
//   - Strings: the content bytes; bit strings have their padding cleared.
//   - SEQUENCE: one presence byte per OPTIONAL component, then the present
//     components. CHOICE: index bytes over all alternatives, then the value.
//   - OBJECT IDENTIFIER: a count byte (2..5 arcs) then one byte per arc.
//
// A Source is truncated to its cap and zero padded up to it, so short inputs
// still produce values. An empty input is not padded and fails at the first
// read.
package entropy

import (
	"github.com/thebagchi/asnfuzz-go/lib/bitbuffer"
	"github.com/thebagchi/asnfuzz-go/lib/errors"
)

const (
	// MaxEntropy caps the input accepted by a Source.
	MaxEntropy = 200_000

	// MaxStaging caps the output of a Sink created with NewStagingSink.
	MaxStaging = 2_000_000

	// MaxNodes caps the number of values built by one Generate call.
	MaxNodes = 2_000_000

	// escape announces a two byte unbounded size.
	escape = 0xFF

	// MaxUnboundedSize is the largest offset an unbounded size can carry.
	MaxUnboundedSize = escape + 0xFFFF
)

// Source is a bounded entropy stream. Not safe for concurrent use.
type Source struct {
	codec    *bitbuffer.Codec
	padding  int
	consumed int
}

// NewSource returns a Source over data capped at MaxEntropy.
func NewSource(data []byte) *Source {
	return NewSourceCap(data, MaxEntropy)
}

// NewSourceCap returns a Source over at most limit bytes of data, zero padded
// to limit when data is not empty.
func NewSourceCap(data []byte, limit int) *Source {
	limit = max(limit, 0)
	if len(data) > limit {
		data = data[:limit]
	}
	var padding int
	if len(data) > 0 {
		padding = limit - len(data)
	}
	return &Source{
		codec:   bitbuffer.CreateReader(data),
		padding: padding,
	}
}

// Consumed returns the number of bytes read so far, padding included.
func (s *Source) Consumed() int {
	return s.consumed
}

// Remaining returns the number of bytes left, padding included.
func (s *Source) Remaining() int {
	return int(s.codec.Remaining()/bitbuffer.BITS_PER_BYTE) + s.padding
}

func (s *Source) exhausted(need int) error {
	return errors.New(errors.PhaseGenerate, errors.KindEntropic).
		Detail("entropy exhausted: need %d bytes after %d, %d left", need, s.consumed, s.Remaining()).
		Build()
}

// Byte reads one byte.
func (s *Source) Byte() (byte, error) {
	if s.codec.Remaining() >= bitbuffer.BITS_PER_BYTE {
		value, err := s.codec.Read(bitbuffer.BITS_PER_BYTE)
		if nil != err {
			return 0, errors.Wrap(errors.PhaseGenerate, errors.KindEntropic, err, nil)
		}
		s.consumed++
		return byte(value), nil
	}
	if s.padding > 0 {
		s.padding--
		s.consumed++
		return 0, nil
	}
	return 0, s.exhausted(1)
}

// Uint reads a big-endian unsigned integer of width bytes (0..8). A zero
// width reads nothing and returns 0.
func (s *Source) Uint(width int) (uint64, error) {
	if width < 0 || width > 8 {
		return 0, errors.New(errors.PhaseGenerate, errors.KindEntropic).
			Detail("integer width %d", width).
			Build()
	}
	if s.Remaining() < width {
		return 0, s.exhausted(width)
	}
	var value uint64
	for range width {
		b, err := s.Byte()
		if nil != err {
			return 0, err
		}
		value = value<<8 | uint64(b)
	}
	return value, nil
}

// Bytes reads n bytes into a fresh slice.
func (s *Source) Bytes(n uint64) ([]byte, error) {
	if n > uint64(s.Remaining()) {
		return nil, s.exhausted(int(min(n, MaxEntropy+1)))
	}
	backed := min(int(n), int(s.codec.Remaining()/bitbuffer.BITS_PER_BYTE))
	data, err := s.codec.ReadBytes(backed)
	if nil != err {
		return nil, errors.Wrap(errors.PhaseGenerate, errors.KindEntropic, err, nil)
	}
	if pad := int(n) - backed; pad > 0 {
		data = append(data, make([]byte, pad)...)
		s.padding -= pad
	}
	s.consumed += int(n)
	return data, nil
}

// Sink collects flattened entropy up to a byte limit. Not safe for
// concurrent use.
type Sink struct {
	codec *bitbuffer.Codec
	limit int
}

// NewSink returns a Sink that accepts at most limit bytes.
func NewSink(limit int) *Sink {
	return &Sink{
		codec: bitbuffer.CreateWriter(),
		limit: max(limit, 0),
	}
}

// NewStagingSink returns a Sink capped at MaxStaging.
func NewStagingSink() *Sink {
	return NewSink(MaxStaging)
}

// Len returns the number of bytes written.
func (s *Sink) Len() int {
	return int(s.codec.NumWritten() / bitbuffer.BITS_PER_BYTE)
}

// Bytes returns the bytes written, never nil.
func (s *Sink) Bytes() []byte {
	if data := s.codec.Bytes(); nil != data {
		return data
	}
	return []byte{}
}

func (s *Sink) reserve(n uint64) error {
	if need := uint64(s.Len()) + n; need > uint64(s.limit) {
		return errors.Truncated(errors.PhaseFlatten, int(min(need, MaxStaging+1)), s.limit)
	}
	return nil
}

// Byte writes one byte.
func (s *Sink) Byte(b byte) error {
	if err := s.reserve(1); nil != err {
		return err
	}
	return s.codec.Write(bitbuffer.BITS_PER_BYTE, uint64(b))
}

// Uint writes the low width bytes (0..8) of value big-endian.
func (s *Sink) Uint(width int, value uint64) error {
	if width < 0 || width > 8 {
		return inconsistent("integer width %d", width)
	}
	if width == 0 {
		return nil
	}
	if err := s.reserve(uint64(width)); nil != err {
		return err
	}
	return s.codec.Write(uint8(width*bitbuffer.BITS_PER_BYTE), value)
}

// Write writes data as is.
func (s *Sink) Write(data []byte) error {
	if err := s.reserve(uint64(len(data))); nil != err {
		return err
	}
	return s.codec.WriteBytes(data)
}
