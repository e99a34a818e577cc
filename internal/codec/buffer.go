package codec

import "encoding/binary"

// Level marks a rollback point inside a Sink.
type Level struct {
	offset int
}

// Offset is the byte offset at which the level started.
func (l Level) Offset() int { return l.offset }

// Sink is the transactional byte writer objects encode into. Appends that
// would exceed the sink's budget fail without writing anything.
type Sink interface {
	StartLevel() Level
	EndLevel(Level) bool
	DiscardLevel(Level)
	AppendRaw(b []byte) bool
	AppendValue(v uint64) bool
	UpdatePriorBytes(offset int, b []byte) bool
	ShiftLeft(offset, delta int) bool
	Truncate(size int)
	Offset() int
	Remaining() int
}

// PacketBuffer is a Sink backed by a byte slice with a fixed budget.
type PacketBuffer struct {
	data   []byte
	budget int
	levels int
}

// NewPacketBuffer creates an empty buffer holding at most budget bytes.
func NewPacketBuffer(budget int) *PacketBuffer {
	return &PacketBuffer{
		data:   make([]byte, 0, budget),
		budget: budget,
	}
}

func (p *PacketBuffer) StartLevel() Level {
	p.levels++
	return Level{offset: len(p.data)}
}

// EndLevel commits everything written since l.
func (p *PacketBuffer) EndLevel(l Level) bool {
	if p.levels == 0 || l.offset > len(p.data) {
		return false
	}
	p.levels--
	return true
}

// DiscardLevel drops everything written since l.
func (p *PacketBuffer) DiscardLevel(l Level) {
	if l.offset <= len(p.data) {
		p.data = p.data[:l.offset]
	}
	if p.levels > 0 {
		p.levels--
	}
}

func (p *PacketBuffer) AppendRaw(b []byte) bool {
	if len(p.data)+len(b) > p.budget {
		return false
	}
	p.data = append(p.data, b...)
	return true
}

// AppendValue writes v as 8 little-endian bytes.
func (p *PacketBuffer) AppendValue(v uint64) bool {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return p.AppendRaw(b[:])
}

// UpdatePriorBytes overwrites already written bytes starting at offset.
func (p *PacketBuffer) UpdatePriorBytes(offset int, b []byte) bool {
	if offset < 0 || offset+len(b) > len(p.data) {
		return false
	}
	copy(p.data[offset:], b)
	return true
}

// ShiftLeft moves every byte from offset onwards delta bytes towards the
// start of the buffer, shrinking it by delta. It is how a field that was
// rewritten in a shorter form closes the gap it left behind.
func (p *PacketBuffer) ShiftLeft(offset, delta int) bool {
	if delta < 0 || offset-delta < 0 || offset > len(p.data) {
		return false
	}
	if delta == 0 {
		return true
	}
	n := copy(p.data[offset-delta:], p.data[offset:])
	p.data = p.data[:offset-delta+n]
	return true
}

// Truncate shrinks the written region to size bytes.
func (p *PacketBuffer) Truncate(size int) {
	if size >= 0 && size < len(p.data) {
		p.data = p.data[:size]
	}
}

func (p *PacketBuffer) Offset() int { return len(p.data) }

func (p *PacketBuffer) Remaining() int { return p.budget - len(p.data) }

// Bytes returns a copy of the committed data.
func (p *PacketBuffer) Bytes() []byte {
	out := make([]byte, len(p.data))
	copy(out, p.data)
	return out
}

// Reset empties the buffer while keeping its budget.
func (p *PacketBuffer) Reset() {
	p.data = p.data[:0]
	p.levels = 0
}
