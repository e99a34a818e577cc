package entity

import (
	"github.com/google/uuid"

	"github.com/OCAP2/replicator/internal/codec"
)

// AppendState is the outcome of appending an object to a packet.
type AppendState int

const (
	// None means nothing was written.
	None AppendState = iota
	// Partial means some requested properties did not fit.
	Partial
	// Completed means every requested property was written.
	Completed
)

func (s AppendState) String() string {
	switch s {
	case Partial:
		return "partial"
	case Completed:
		return "completed"
	default:
		return "none"
	}
}

// EncodeParams carries per-batch encoder state.
type EncodeParams struct {
	// Requested limits the properties written. Zero means all.
	Requested codec.PropertyFlags

	// Extra holds, per object, the properties that did not fit in an
	// earlier packet of the same batch. An entry overrides Requested and is
	// removed once the object is written completely.
	Extra map[uuid.UUID]codec.PropertyFlags

	// TrackSend is called with the object's lastEdited whenever something
	// was written.
	TrackSend func(id uuid.UUID, lastEdited uint64)
}

// AppendTo writes the object into sink. Properties are written in wire
// order; the first one that does not fit and every requested property after
// it are left out and remembered in params.Extra.
func (it *Item) AppendTo(sink codec.Sink, params *EncodeParams) AppendState {
	if params == nil {
		params = &EncodeParams{}
	}

	it.mu.RLock()
	defer it.mu.RUnlock()

	requested := params.Requested
	if requested.IsEmpty() {
		requested = AllProperties
	}
	if extra, ok := params.Extra[it.id]; ok {
		requested = extra
	}

	start := sink.Offset()
	level := sink.StartLevel()

	var header []byte
	header = append(header, it.id[:]...)
	header = append(header, codec.EncodeCount(uint64(it.typ))...)
	header = codec.AppendUint64(header, it.created)
	header = codec.AppendUint64(header, it.lastEdited)
	header = append(header, codec.EncodeCount(delta(it.lastUpdated, it.lastEdited))...)
	header = append(header, codec.EncodeCount(delta(it.lastSimulated, it.lastEdited))...)

	// Reserve room for the longest flag set, then shrink it once we know
	// what fit.
	placeholder := AllProperties.Encode()
	if !sink.AppendRaw(header) || !sink.AppendRaw(placeholder) {
		sink.DiscardLevel(level)
		it.rememberDidntFit(params, requested)
		return None
	}
	flagsOffset := start + len(header)

	props := it.propertiesLocked(requested)
	var written, didntFit codec.PropertyFlags
	dropping := false
	var payload []byte
	for i := range descriptors {
		d := &descriptors[i]
		if !requested.Has(d.prop) {
			continue
		}
		if !dropping {
			payload = d.write(payload[:0], &props)
			if sink.AppendRaw(payload) {
				written = written.With(d.prop)
				continue
			}
			dropping = true
		}
		didntFit = didntFit.With(d.prop)
	}

	if written.IsEmpty() {
		sink.DiscardLevel(level)
		it.rememberDidntFit(params, requested)
		return None
	}

	flags := written.Encode()
	sink.UpdatePriorBytes(flagsOffset, flags)
	sink.ShiftLeft(flagsOffset+len(placeholder), len(placeholder)-len(flags))
	sink.EndLevel(level)
	recordEncoded(sink.Offset() - start)

	state := Completed
	if !didntFit.IsEmpty() {
		state = Partial
		it.rememberDidntFit(params, didntFit)
	} else if params.Extra != nil {
		delete(params.Extra, it.id)
	}

	if params.TrackSend != nil {
		params.TrackSend(it.id, it.lastEdited)
	}
	return state
}

func (it *Item) rememberDidntFit(params *EncodeParams, flags codec.PropertyFlags) {
	if params.Extra == nil {
		params.Extra = make(map[uuid.UUID]codec.PropertyFlags)
	}
	params.Extra[it.id] = flags
}

// Encode writes the object into a fresh packet of at most budget bytes and
// returns the packet, the outcome and the properties that did not fit.
func (it *Item) Encode(budget int) ([]byte, AppendState, codec.PropertyFlags) {
	buf := codec.NewPacketBuffer(budget)
	params := &EncodeParams{}
	state := it.AppendTo(buf, params)
	return buf.Bytes(), state, params.Extra[it.id]
}

func delta(later, earlier uint64) uint64 {
	if later <= earlier {
		return 0
	}
	return later - earlier
}
