package codec

import (
	"encoding/binary"
	"math"

	"github.com/google/uuid"
)

// Reader consumes little-endian primitives from a byte slice. Every method
// fails with ErrTruncated rather than reading past the end.
type Reader struct {
	data []byte
	off  int
}

func NewReader(b []byte) *Reader {
	return &Reader{data: b}
}

// Offset is the number of bytes consumed so far.
func (r *Reader) Offset() int { return r.off }

func (r *Reader) Remaining() int { return len(r.data) - r.off }

func (r *Reader) Bytes(n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, ErrTruncated
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *Reader) Uint8() (uint8, error) {
	b, err := r.Bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) Bool() (bool, error) {
	v, err := r.Uint8()
	return v != 0, err
}

func (r *Reader) Uint16() (uint16, error) {
	b, err := r.Bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *Reader) Uint32() (uint32, error) {
	b, err := r.Bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) Uint64() (uint64, error) {
	b, err := r.Bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *Reader) Float32() (float32, error) {
	v, err := r.Uint32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func (r *Reader) UUID() (uuid.UUID, error) {
	b, err := r.Bytes(16)
	if err != nil {
		return uuid.Nil, err
	}
	var id uuid.UUID
	copy(id[:], b)
	return id, nil
}

// Count reads a byte-count-coded integer.
func (r *Reader) Count() (uint64, error) {
	v, n, err := DecodeCount(r.data[r.off:])
	if err != nil {
		return 0, err
	}
	r.off += n
	return v, nil
}

// Flags reads a property flag set.
func (r *Reader) Flags() (PropertyFlags, error) {
	f, n, err := DecodeFlags(r.data[r.off:])
	if err != nil {
		return 0, err
	}
	r.off += n
	return f, nil
}

// LengthPrefixed reads a uint16 length followed by that many bytes.
func (r *Reader) LengthPrefixed() ([]byte, error) {
	n, err := r.Uint16()
	if err != nil {
		return nil, err
	}
	return r.Bytes(int(n))
}

// Writer helpers mirror the Reader so payloads can be built before they are
// handed to a Sink.

func AppendUint16(dst []byte, v uint16) []byte {
	return binary.LittleEndian.AppendUint16(dst, v)
}

func AppendUint32(dst []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(dst, v)
}

func AppendUint64(dst []byte, v uint64) []byte {
	return binary.LittleEndian.AppendUint64(dst, v)
}

func AppendFloat32(dst []byte, v float32) []byte {
	return binary.LittleEndian.AppendUint32(dst, math.Float32bits(v))
}

func AppendBool(dst []byte, v bool) []byte {
	if v {
		return append(dst, 1)
	}
	return append(dst, 0)
}

// AppendLengthPrefixed writes a uint16 length and b. Input longer than
// 65535 bytes is cut to fit.
func AppendLengthPrefixed(dst []byte, b []byte) []byte {
	if len(b) > math.MaxUint16 {
		b = b[:math.MaxUint16]
	}
	dst = AppendUint16(dst, uint16(len(b)))
	return append(dst, b...)
}
