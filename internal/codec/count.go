// Package codec implements the compact primitives of the object state wire
// format: byte-count-coded integers, property flag sets, a budgeted
// transactional packet buffer and a bounds-checked reader.
package codec

import (
	"errors"
	"math/bits"
)

// ErrTruncated is returned whenever fewer bytes are available than an
// encoding requires.
var ErrTruncated = errors.New("codec: truncated data")

// maxCountBytes is the longest coding a 64-bit value can need.
const maxCountBytes = 10

// EncodeCount returns the byte-count coding of v. The coding is N bytes
// long, where the first N bits hold N-1 ones followed by a zero and the
// value bits follow least significant first. Bits are packed most
// significant first within each byte.
func EncodeCount(v uint64) []byte {
	n := bits.Len64(v)/7 + 1
	return pack(v, n)
}

// DecodeCount reads a byte-count-coded value from the start of b and
// reports how many bytes it used.
func DecodeCount(b []byte) (uint64, int, error) {
	return unpack(b)
}

// CountLen returns the encoded size of v without allocating.
func CountLen(v uint64) int {
	return bits.Len64(v)/7 + 1
}

func pack(v uint64, n int) []byte {
	out := make([]byte, n)
	for i := 0; i < n-1; i++ {
		setBit(out, i)
	}
	valueBits := n*8 - n
	for i := 0; i < valueBits && i < 64; i++ {
		if v&(1<<uint(i)) != 0 {
			setBit(out, n+i)
		}
	}
	return out
}

func unpack(b []byte) (uint64, int, error) {
	n := 0
	for {
		if n >= len(b)*8 {
			return 0, 0, ErrTruncated
		}
		if !getBit(b, n) {
			break
		}
		n++
		if n >= maxCountBytes {
			return 0, 0, ErrTruncated
		}
	}
	n++
	if len(b) < n {
		return 0, 0, ErrTruncated
	}

	var v uint64
	valueBits := n*8 - n
	for i := 0; i < valueBits && i < 64; i++ {
		if getBit(b, n+i) {
			v |= 1 << uint(i)
		}
	}
	return v, n, nil
}

func setBit(b []byte, pos int) {
	b[pos/8] |= 0x80 >> uint(pos%8)
}

func getBit(b []byte, pos int) bool {
	return b[pos/8]&(0x80>>uint(pos%8)) != 0
}
