package fuzz

import (
	"fmt"
	"strings"

	"github.com/thebagchi/asnfuzz-go/lib/errors"
)

// Codec selects the PER variant used on the wire.
type Codec uint8

const (
	APER Codec = iota + 1 // ALIGNED
	UPER                  // UNALIGNED
)

// Codecs lists every supported variant.
var Codecs = []Codec{APER, UPER}

func (c Codec) String() string {
	switch c {
	case APER:
		return "aper"
	case UPER:
		return "uper"
	}
	return fmt.Sprintf("Codec(%d)", uint8(c))
}

// Aligned reports whether c is the ALIGNED variant.
func (c Codec) Aligned() bool {
	return c == APER
}

func (c Codec) valid() bool {
	return c == APER || c == UPER
}

// ParseCodec accepts "aper" or "uper" in any case.
func ParseCodec(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "aper":
		return APER, nil
	case "uper":
		return UPER, nil
	}
	return 0, errors.Args("unknown codec %q, want aper or uper", name)
}
