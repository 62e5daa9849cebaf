// Package fuzz turns raw fuzzer input into PER encodings of a root type and
// PER encodings back into the input that reproduces them.
//
// Structure reads entropy, builds a value and encodes it. Destructure decodes
// an encoding and writes the entropy Structure would need to rebuild it. The
// int-returning forms report a length or one of the frozen negative codes
// from lib/errors and never panic.
package fuzz

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/thebagchi/asnfuzz-go/lib/asn"
	"github.com/thebagchi/asnfuzz-go/lib/entropy"
	"github.com/thebagchi/asnfuzz-go/lib/errors"
	"github.com/thebagchi/asnfuzz-go/lib/per"
)

// Options configures a Harness.
type Options struct {
	// Logger receives failures at debug level. Nil means Logger().
	Logger *zap.Logger

	// EntropyCap bounds the input Structure consumes; shorter inputs are
	// zero padded up to it.
	EntropyCap int

	// StagingCap bounds the entropy Destructure may produce before it is
	// copied to the caller.
	StagingCap int
}

// DefaultOptions returns the default harness configuration.
func DefaultOptions() Options {
	return Options{
		EntropyCap: entropy.MaxEntropy,
		StagingCap: entropy.MaxStaging,
	}
}

// Harness binds a root type to a codec. Immutable and safe for concurrent
// use.
type Harness struct {
	root      *asn.Type
	codec     Codec
	options   Options
	logger    *zap.Logger
	supported error
}

// New validates root and returns a Harness for it. A root that reaches an
// OBJECT IDENTIFIER is accepted, but every call on it fails with Encoding.
func New(root *asn.Type, codec Codec, options Options) (*Harness, error) {
	if err := asn.Validate(root); nil != err {
		return nil, err
	}
	if !codec.valid() {
		return nil, errors.Args("invalid codec %s", codec)
	}
	if options.EntropyCap < 0 || options.StagingCap < 0 {
		return nil, errors.Args("negative capacity: entropy %d, staging %d", options.EntropyCap, options.StagingCap)
	}
	defaults := DefaultOptions()
	if options.EntropyCap == 0 {
		options.EntropyCap = defaults.EntropyCap
	}
	if options.StagingCap == 0 {
		options.StagingCap = defaults.StagingCap
	}
	l := options.Logger
	if nil == l {
		l = Logger()
	}
	return &Harness{
		root:      root,
		codec:     codec,
		options:   options,
		logger:    l.With(zap.String("root", root.Label()), zap.Stringer("codec", codec)),
		supported: per.Supported(root),
	}, nil
}

// Root returns the bound root type.
func (h *Harness) Root() *asn.Type {
	return h.root
}

// Codec returns the bound codec.
func (h *Harness) Codec() Codec {
	return h.codec
}

// StructureBytes builds a value of the root type from in and returns its
// encoding.
func (h *Harness) StructureBytes(in []byte) ([]byte, error) {
	if nil != h.supported {
		return nil, h.supported
	}
	v, err := entropy.Generate(h.root, entropy.NewSourceCap(in, h.options.EntropyCap))
	if nil != err {
		return nil, errors.Wrap(errors.PhaseGenerate, errors.KindEntropic, err, nil)
	}
	data, err := per.Marshal(h.root, v, h.codec.Aligned())
	if nil != err {
		return nil, errors.Wrap(errors.PhaseEncode, errors.KindEncoding, err, nil)
	}
	return data, nil
}

// DestructureBytes decodes in and returns the entropy that structures to
// the same value.
func (h *Harness) DestructureBytes(in []byte) ([]byte, error) {
	if nil != h.supported {
		return nil, h.supported
	}
	v, err := per.Unmarshal(h.root, in, h.codec.Aligned())
	if nil != err {
		return nil, errors.Wrap(errors.PhaseDecode, errors.KindEncoding, err, nil)
	}
	sink := entropy.NewSink(h.options.StagingCap)
	if err := entropy.Flatten(h.root, v, sink); nil != err {
		return nil, errors.Wrap(errors.PhaseFlatten, errors.KindEntropic, err, nil)
	}
	return sink.Bytes(), nil
}

// Structure writes the encoding built from in to out and returns its
// length, or a negative code.
func (h *Harness) Structure(in, out []byte) int {
	return h.StructureN(in, len(in), out, len(out))
}

// StructureN is Structure over in[:inLen] and out[:outMax]. Lengths that do
// not fit the slices fail with CodeArgs.
func (h *Harness) StructureN(in []byte, inLen int, out []byte, outMax int) int {
	return h.call("structure", h.StructureBytes, in, inLen, out, outMax)
}

// Destructure writes the entropy recovered from the encoding in to out and
// returns its length, or a negative code.
func (h *Harness) Destructure(in, out []byte) int {
	return h.DestructureN(in, len(in), out, len(out))
}

// DestructureN is Destructure over in[:inLen] and out[:outMax].
func (h *Harness) DestructureN(in []byte, inLen int, out []byte, outMax int) int {
	return h.call("destructure", h.DestructureBytes, in, inLen, out, outMax)
}

func (h *Harness) call(op string, fn func([]byte) ([]byte, error), in []byte, inLen int, out []byte, outMax int) (n int) {
	defer func() {
		if r := recover(); nil != r {
			err := errors.New(errors.PhaseBoundary, errors.KindEncoding).
				Detail("panic: %v", r).
				Build()
			n = h.fail(op, inLen, err)
		}
	}()

	if inLen < 0 || inLen > len(in) || outMax < 0 || outMax > len(out) {
		err := errors.Args("in_len %d of %d, out_max %d of %d", inLen, len(in), outMax, len(out))
		return h.fail(op, inLen, err)
	}
	data, err := fn(in[:inLen])
	if nil != err {
		return h.fail(op, inLen, err)
	}
	if len(data) > outMax {
		return h.fail(op, inLen, errors.Truncated(errors.PhaseBoundary, len(data), outMax))
	}
	return copy(out, data)
}

func (h *Harness) fail(op string, inLen int, err error) int {
	code := errors.Code(err)
	if ce := h.logger.Check(zap.DebugLevel, op+" failed"); nil != ce {
		ce.Write(
			zap.Int("in_len", inLen),
			zap.Int("code", code),
			zap.Error(err),
		)
	}
	return code
}

func (h *Harness) String() string {
	return fmt.Sprintf("%s/%s", h.codec, h.root.Label())
}
