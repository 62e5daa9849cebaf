// Package errors provides the error taxonomy shared by the codec, entropy and
// pipeline layers.
//
// Every failure is classified by Kind (what went wrong, which also fixes the
// numeric code reported at the boundary) and Phase (where it happened):
//
//	err := errors.New(errors.PhaseEncode, errors.KindEncoding).
//		Path("initiatingMessage", "value").
//		Detail("value %d outside [%d, %d]", v, lb, ub).
//		Build()
//
// The numeric codes are frozen: Args=-1, Entropic=-2, Encoding=-3,
// Truncated=-4. They never overlap a valid (non-negative) length.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Kind categorizes the error and determines the boundary code.
type Kind uint8

const (
	KindArgs      Kind = iota + 1 // invalid caller-supplied size or buffer
	KindEntropic                  // entropy stream insufficient or inconsistent
	KindEncoding                  // PER encode/decode failure, including unsupported kinds
	KindTruncated                 // result does not fit the caller's buffer
)

// Boundary codes. Frozen: do not renumber.
const (
	CodeArgs      = -1
	CodeEntropic  = -2
	CodeEncoding  = -3
	CodeTruncated = -4
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindArgs:
		return "args"
	case KindEntropic:
		return "entropic"
	case KindEncoding:
		return "encoding"
	case KindTruncated:
		return "truncated"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Code returns the frozen negative boundary code for the kind.
func (k Kind) Code() int {
	switch k {
	case KindArgs:
		return CodeArgs
	case KindEntropic:
		return CodeEntropic
	case KindTruncated:
		return CodeTruncated
	}
	return CodeEncoding
}

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseGenerate Phase = "generate" // entropy to value
	PhaseFlatten  Phase = "flatten"  // value to entropy
	PhaseEncode   Phase = "encode"   // value to wire
	PhaseDecode   Phase = "decode"   // wire to value
	PhaseBoundary Phase = "boundary" // argument and capacity checks
	PhaseSchema   Phase = "schema"   // type declaration checks
)

// Error is the structured error type used throughout the module.
type Error struct {
	Cause  error
	Kind   Kind
	Phase  Phase
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(e.Kind.String())

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if nil != e.Cause {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind. A zero Phase in
// target matches any phase.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase != "" && t.Phase != e.Phase {
		return false
	}
	return e.Kind == t.Kind
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the component path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Sentinels usable with errors.Is regardless of phase.
var (
	ErrArgs      = &Error{Kind: KindArgs}
	ErrEntropic  = &Error{Kind: KindEntropic}
	ErrEncoding  = &Error{Kind: KindEncoding}
	ErrTruncated = &Error{Kind: KindTruncated}
)

// Args creates an argument error.
func Args(detail string, args ...any) *Error {
	return New(PhaseBoundary, KindArgs).Detail(detail, args...).Build()
}

// Truncated creates a capacity error.
func Truncated(phase Phase, need, have int) *Error {
	return New(phase, KindTruncated).
		Detail("need %d bytes, capacity %d", need, have).
		Build()
}

// Wrap classifies err under kind unless it already carries a Kind, in which
// case the existing classification is kept and only a missing path is filled.
func Wrap(phase Phase, kind Kind, err error, path []string) error {
	if nil == err {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		if len(e.Path) > 0 || len(path) == 0 {
			return e
		}
		out := *e
		out.Path = append([]string(nil), path...)
		return &out
	}
	return New(phase, kind).Path(append([]string(nil), path...)...).Cause(err).Build()
}

// Within classifies err like Wrap and prepends segment to its path. Recursive
// walkers call it on the way out so the path reads root first.
func Within(phase Phase, kind Kind, err error, segment string) error {
	if nil == err {
		return nil
	}
	var e *Error
	if !stderrors.As(err, &e) {
		return New(phase, kind).Path(segment).Cause(err).Build()
	}
	out := *e
	out.Path = append([]string{segment}, e.Path...)
	return &out
}

// KindOf returns the Kind of err, or false if err is not classified.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// Code maps err to its frozen boundary code. Unclassified errors are reported
// as encoding failures.
func Code(err error) int {
	if kind, ok := KindOf(err); ok {
		return kind.Code()
	}
	return CodeEncoding
}
