// Package constraint holds the declarative bounds attached to schema types:
// value ranges for INTEGER, size ranges for strings and SEQUENCE OF, and the
// root/extension lists of ENUMERATED.
//
// Descriptors are immutable. Constructors validate their inputs once, at
// schema build time; codecs only read them.
package constraint

import (
	"math/bits"

	"golang.org/x/exp/constraints"

	"github.com/thebagchi/asnfuzz-go/lib/errors"
)

// Integer is a value-range constraint. Either bound may be absent.
type Integer struct {
	lb, ub *int64
	ext    bool
}

// Unbounded returns the constraint of a plain INTEGER.
func Unbounded() Integer {
	return Integer{}
}

// Range returns INTEGER (lb..ub).
func Range(lb, ub int64) (Integer, error) {
	if lb > ub {
		return Integer{}, errors.New(errors.PhaseSchema, errors.KindArgs).
			Detail("integer range lower bound %d above upper bound %d", lb, ub).
			Build()
	}
	return Integer{lb: &lb, ub: &ub}, nil
}

// MustRange is like Range but panics on an inverted range. For use in
// hand-declared schemas.
func MustRange(lb, ub int64) Integer {
	c, err := Range(lb, ub)
	if nil != err {
		panic(err)
	}
	return c
}

// AtLeast returns INTEGER (lb..MAX).
func AtLeast(lb int64) Integer {
	return Integer{lb: &lb}
}

// AtMost returns INTEGER (MIN..ub).
func AtMost(ub int64) Integer {
	return Integer{ub: &ub}
}

// Extensible returns a copy of c with the extension marker set.
func (c Integer) Extensible() Integer {
	c.ext = true
	return c
}

func (c Integer) IsExtensible() bool { return c.ext }

// Lower returns the lower bound, if any.
func (c Integer) Lower() (int64, bool) {
	if nil == c.lb {
		return 0, false
	}
	return *c.lb, true
}

// Upper returns the upper bound, if any.
func (c Integer) Upper() (int64, bool) {
	if nil == c.ub {
		return 0, false
	}
	return *c.ub, true
}

// Bounds returns fresh copies of the bounds in the nil-means-absent form the
// PER primitives take.
func (c Integer) Bounds() (lb, ub *int64) {
	return clone(c.lb), clone(c.ub)
}

// Constrained reports whether both bounds are present.
func (c Integer) Constrained() bool {
	return nil != c.lb && nil != c.ub
}

// SemiConstrained reports whether only the lower bound is present.
func (c Integer) SemiConstrained() bool {
	return nil != c.lb && nil == c.ub
}

// Span returns ub-lb for a constrained range. The difference always fits in
// a uint64.
func (c Integer) Span() (uint64, bool) {
	if !c.Constrained() {
		return 0, false
	}
	return uint64(*c.ub) - uint64(*c.lb), true
}

// Contains reports whether v lies in the root range.
func (c Integer) Contains(v int64) bool {
	if nil != c.lb && v < *c.lb {
		return false
	}
	if nil != c.ub && v > *c.ub {
		return false
	}
	return true
}

// Size is a SIZE constraint. The lower bound is always present (0 when not
// declared); the upper bound may be absent.
type Size struct {
	min uint64
	max *uint64
	ext bool
}

// AnySize returns the constraint of an unconstrained string or list.
func AnySize() Size {
	return Size{}
}

// SizeRange returns SIZE (min..max).
func SizeRange(min, max uint64) (Size, error) {
	if min > max {
		return Size{}, errors.New(errors.PhaseSchema, errors.KindArgs).
			Detail("size range lower bound %d above upper bound %d", min, max).
			Build()
	}
	return Size{min: min, max: &max}, nil
}

// MustSizeRange is like SizeRange but panics on an inverted range.
func MustSizeRange(min, max uint64) Size {
	s, err := SizeRange(min, max)
	if nil != err {
		panic(err)
	}
	return s
}

// SizeAtLeast returns SIZE (min..MAX).
func SizeAtLeast(min uint64) Size {
	return Size{min: min}
}

// FixedSize returns SIZE (n).
func FixedSize(n uint64) Size {
	return Size{min: n, max: &n}
}

// Extensible returns a copy of s with the extension marker set.
func (s Size) Extensible() Size {
	s.ext = true
	return s
}

func (s Size) IsExtensible() bool { return s.ext }
func (s Size) Min() uint64        { return s.min }

// Max returns the upper bound, if any.
func (s Size) Max() (uint64, bool) {
	if nil == s.max {
		return 0, false
	}
	return *s.max, true
}

// Fixed returns n when the constraint is SIZE (n).
func (s Size) Fixed() (uint64, bool) {
	if nil != s.max && *s.max == s.min {
		return s.min, true
	}
	return 0, false
}

// Bounds returns fresh copies of the bounds for the PER length primitives.
func (s Size) Bounds() (lb, ub *uint64) {
	min := s.min
	return &min, clone(s.max)
}

// Contains reports whether n lies in the root size range.
func (s Size) Contains(n uint64) bool {
	if n < s.min {
		return false
	}
	return nil == s.max || n <= *s.max
}

// Enumeration is the ordered value list of an ENUMERATED type. Root values
// are indexed 0..N-1 and extension values N..N+M-1, so one index space covers
// both lists.
type Enumeration struct {
	root       []string
	extension  []string
	extensible bool
}

// NewEnumeration validates and builds an enumeration. The root list must be
// non-empty, names must be unique and extension values require the marker.
func NewEnumeration(root []string, extensible bool, extension ...string) (Enumeration, error) {
	fail := func(format string, args ...any) (Enumeration, error) {
		return Enumeration{}, errors.New(errors.PhaseSchema, errors.KindArgs).
			Detail(format, args...).
			Build()
	}
	if len(root) == 0 {
		return fail("enumeration needs at least one root value")
	}
	if len(extension) > 0 && !extensible {
		return fail("extension values %v without extension marker", extension)
	}
	seen := make(map[string]struct{}, len(root)+len(extension))
	for _, name := range append(append([]string(nil), root...), extension...) {
		if _, dup := seen[name]; dup {
			return fail("duplicate enumeration value %q", name)
		}
		seen[name] = struct{}{}
	}
	return Enumeration{
		root:       append([]string(nil), root...),
		extension:  append([]string(nil), extension...),
		extensible: extensible,
	}, nil
}

// MustEnumeration is like NewEnumeration but panics on invalid input.
func MustEnumeration(root []string, extensible bool, extension ...string) Enumeration {
	e, err := NewEnumeration(root, extensible, extension...)
	if nil != err {
		panic(err)
	}
	return e
}

func (e Enumeration) RootLen() int       { return len(e.root) }
func (e Enumeration) ExtensionLen() int  { return len(e.extension) }
func (e Enumeration) Len() int           { return len(e.root) + len(e.extension) }
func (e Enumeration) IsExtensible() bool { return e.extensible }

// Marker returns the index at which extension values start.
func (e Enumeration) Marker() int { return len(e.root) }

// Valid reports whether i addresses a root or extension value.
func (e Enumeration) Valid(i uint64) bool {
	return i < uint64(e.Len())
}

// Name returns the value name at combined index i.
func (e Enumeration) Name(i uint64) (string, bool) {
	switch {
	case i < uint64(len(e.root)):
		return e.root[i], true
	case i < uint64(e.Len()):
		return e.extension[i-uint64(len(e.root))], true
	}
	return "", false
}

// Index returns the combined index of name.
func (e Enumeration) Index(name string) (uint64, bool) {
	for i, n := range e.root {
		if n == name {
			return uint64(i), true
		}
	}
	for i, n := range e.extension {
		if n == name {
			return uint64(len(e.root) + i), true
		}
	}
	return 0, false
}

// WidthBits returns the number of bits needed to hold any value in
// [0, span]; 0 when span is 0.
func WidthBits[T constraints.Unsigned](span T) int {
	return bits.Len64(uint64(span))
}

// WidthBytes returns the number of octets needed to hold any value in
// [0, span].
func WidthBytes[T constraints.Unsigned](span T) int {
	return (WidthBits(span) + 7) / 8
}

// Reduce maps raw into [0, span].
func Reduce[T constraints.Unsigned](raw, span T) T {
	if span+1 == 0 {
		return raw
	}
	return raw % (span + 1)
}

func clone[T constraints.Integer](p *T) *T {
	if nil == p {
		return nil
	}
	v := *p
	return &v
}
