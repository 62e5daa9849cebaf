package per

const (
	// MAX_CONSTRAINED_LENGTH is the bound below which a length determinant
	// is encoded as a constrained whole number. At or above it the length
	// uses the general form.
	// ITU-T X.691 Section 11.9.3.3 / 11.9.4.1
	MAX_CONSTRAINED_LENGTH = 65536 // 64K

	// FRAGMENT_SIZE is the unit of the fragmented length form.
	// ITU-T X.691 Section 11.9.3.8
	FRAGMENT_SIZE = 16384 // 16K = 16 * 1024

	// MAX_FRAGMENT_UNITS is the largest multiplier a fragment header carries.
	MAX_FRAGMENT_UNITS = 4

	// MAX_DECODE_COUNT caps every decoded count (octets, bits, elements).
	MAX_DECODE_COUNT = 2_000_000

	// MAX_INTEGER_OCTETS is the widest integer content accepted on decode.
	MAX_INTEGER_OCTETS = 8
)
