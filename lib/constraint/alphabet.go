package constraint

import (
	"fmt"
	"strings"
)

// Alphabet is the character repertoire of a restricted character string.
// The zero value is IA5.
type Alphabet uint8

const (
	IA5 Alphabet = iota
	Visible
	Printable
	UTF8
)

var alphabetNames = [...]string{
	IA5:       "IA5String",
	Visible:   "VisibleString",
	Printable: "PrintableString",
	UTF8:      "UTF8String",
}

// repertoire lists the permitted characters of each known-multiplier
// alphabet in ascending order.
var repertoire = [...]string{
	IA5:       span(0x00, 0x7F),
	Visible:   span(' ', '~'),
	Printable: " '()+,-./" + span('0', '9') + ":=?" + span('A', 'Z') + span('a', 'z'),
}

func span(lo, hi byte) string {
	var sb strings.Builder
	for c := int(lo); c <= int(hi); c++ {
		sb.WriteByte(byte(c))
	}
	return sb.String()
}

func (a Alphabet) String() string {
	if int(a) < len(alphabetNames) {
		return alphabetNames[a]
	}
	return fmt.Sprintf("Alphabet(%d)", uint8(a))
}

// ParseAlphabet returns the Alphabet of the string type called name.
func ParseAlphabet(name string) (Alphabet, bool) {
	for a, n := range alphabetNames {
		if n == name {
			return Alphabet(a), true
		}
	}
	return 0, false
}

// KnownMultiplier reports whether every character takes the same number of
// bits. UTF8String does not, so its SIZE is not visible to PER.
func (a Alphabet) KnownMultiplier() bool {
	return a != UTF8
}

// CharBits is the width of one character: seven bits in UNALIGNED, rounded
// up to eight in ALIGNED. UTF8String characters are carried as octets.
func (a Alphabet) CharBits(aligned bool) uint8 {
	if aligned || !a.KnownMultiplier() {
		return 8
	}
	return 7
}

// Len returns the number of permitted characters, 256 for UTF8String octets.
func (a Alphabet) Len() int {
	if !a.KnownMultiplier() {
		return 256
	}
	return len(repertoire[a])
}

// Permits reports whether c belongs to the alphabet.
func (a Alphabet) Permits(c byte) bool {
	_, ok := a.Index(c)
	return ok
}

// Char maps any octet onto a permitted character.
func (a Alphabet) Char(b byte) byte {
	if !a.KnownMultiplier() {
		return b
	}
	chars := repertoire[a]
	return chars[int(b)%len(chars)]
}

// Index is the inverse of Char: the position of c in the alphabet.
func (a Alphabet) Index(c byte) (byte, bool) {
	if !a.KnownMultiplier() {
		return c, true
	}
	i := strings.IndexByte(repertoire[a], c)
	if i < 0 {
		return 0, false
	}
	return byte(i), true
}
