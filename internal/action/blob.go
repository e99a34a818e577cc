package action

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// encodeBlob packs serialized actions as a big-endian count followed by
// length-prefixed entries. No actions encode to an empty blob.
func encodeBlob(entries [][]byte) []byte {
	if len(entries) == 0 {
		return nil
	}
	size := 4
	for _, e := range entries {
		size += 4 + len(e)
	}
	out := make([]byte, 0, size)
	out = binary.BigEndian.AppendUint32(out, uint32(len(entries)))
	for _, e := range entries {
		out = binary.BigEndian.AppendUint32(out, uint32(len(e)))
		out = append(out, e...)
	}
	return out
}

// decodeBlob is the inverse of encodeBlob. The whole blob must be consumed.
func decodeBlob(blob []byte) ([][]byte, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	if len(blob) < 4 {
		return nil, fmt.Errorf("%w: missing count", ErrMalformedBlob)
	}
	count := binary.BigEndian.Uint32(blob)
	rest := blob[4:]
	if uint64(count)*4 > uint64(len(rest)) {
		return nil, fmt.Errorf("%w: count %d too large", ErrMalformedBlob, count)
	}

	entries := make([][]byte, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(rest) < 4 {
			return nil, fmt.Errorf("%w: entry %d truncated", ErrMalformedBlob, i)
		}
		n := binary.BigEndian.Uint32(rest)
		rest = rest[4:]
		if uint64(n) > uint64(len(rest)) {
			return nil, fmt.Errorf("%w: entry %d truncated", ErrMalformedBlob, i)
		}
		if n < headerSize {
			return nil, fmt.Errorf("%w: entry %d shorter than header", ErrMalformedBlob, i)
		}
		entries = append(entries, bytes.Clone(rest[:n]))
		rest = rest[n:]
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedBlob, len(rest))
	}
	return entries, nil
}
