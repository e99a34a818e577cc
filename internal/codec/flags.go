package codec

import (
	"math/bits"
	"strconv"
	"strings"
)

// PropertyFlags is a set of property indices, one bit per known property.
type PropertyFlags uint64

// NewPropertyFlags builds a set from the given indices.
func NewPropertyFlags(props ...int) PropertyFlags {
	var f PropertyFlags
	for _, p := range props {
		f = f.With(p)
	}
	return f
}

// AllProperties returns the set holding every index below last.
func AllProperties(last int) PropertyFlags {
	if last >= 64 {
		return ^PropertyFlags(0)
	}
	return PropertyFlags(1)<<uint(last) - 1
}

func (f PropertyFlags) Has(prop int) bool {
	return prop >= 0 && prop < 64 && f&(1<<uint(prop)) != 0
}

func (f PropertyFlags) With(prop int) PropertyFlags {
	if prop < 0 || prop >= 64 {
		return f
	}
	return f | 1<<uint(prop)
}

func (f PropertyFlags) Without(prop int) PropertyFlags {
	if prop < 0 || prop >= 64 {
		return f
	}
	return f &^ (1 << uint(prop))
}

func (f PropertyFlags) Union(o PropertyFlags) PropertyFlags { return f | o }

func (f PropertyFlags) Minus(o PropertyFlags) PropertyFlags { return f &^ o }

func (f PropertyFlags) Intersect(o PropertyFlags) PropertyFlags { return f & o }

func (f PropertyFlags) IsEmpty() bool { return f == 0 }

// Count returns the number of properties in the set.
func (f PropertyFlags) Count() int { return bits.OnesCount64(uint64(f)) }

// Max returns the highest index in the set, or -1 when empty.
func (f PropertyFlags) Max() int { return bits.Len64(uint64(f)) - 1 }

// Encode returns the wire form: a single zero byte for the empty set,
// otherwise N = max/7+1 bytes using the byte-count header with property i
// stored at bit N+i.
func (f PropertyFlags) Encode() []byte {
	if f == 0 {
		return []byte{0}
	}
	n := f.Max()/7 + 1
	return pack(uint64(f), n)
}

// EncodedLen is len(f.Encode()).
func (f PropertyFlags) EncodedLen() int {
	if f == 0 {
		return 1
	}
	return f.Max()/7 + 1
}

// DecodeFlags reads a property set from the start of b.
func DecodeFlags(b []byte) (PropertyFlags, int, error) {
	v, n, err := unpack(b)
	if err != nil {
		return 0, 0, err
	}
	return PropertyFlags(v), n, nil
}

func (f PropertyFlags) String() string {
	var parts []string
	for i := 0; i < 64; i++ {
		if f.Has(i) {
			parts = append(parts, strconv.Itoa(i))
		}
	}
	return "{" + strings.Join(parts, ",") + "}"
}
