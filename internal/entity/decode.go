package entity

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	"github.com/OCAP2/replicator/internal/clock"
	"github.com/OCAP2/replicator/internal/codec"
	"github.com/OCAP2/replicator/pkg/core"
)

// MinPacketSize is the shortest input ReadFrom will look at.
const MinPacketSize = 27

// Packet is a state packet parsed without reference to any object.
type Packet struct {
	ID             uuid.UUID
	Type           core.ObjectType
	Created        uint64
	LastEdited     uint64
	UpdateDelta    uint64
	SimulatedDelta uint64
	Properties     Properties
	Size           int
}

// ParsePacket decodes one object from the start of data. Nothing is applied
// anywhere, so a truncated packet has no side effects.
func ParsePacket(data []byte) (*Packet, error) {
	if len(data) < MinPacketSize {
		return nil, fmt.Errorf("object header: %w", codec.ErrTruncated)
	}

	r := codec.NewReader(data)
	var pkt Packet
	var err error
	if pkt.ID, err = r.UUID(); err != nil {
		return nil, fmt.Errorf("object id: %w", err)
	}
	typ, err := r.Count()
	if err != nil {
		return nil, fmt.Errorf("object type: %w", err)
	}
	pkt.Type = core.ObjectType(typ)
	if pkt.Created, err = r.Uint64(); err != nil {
		return nil, fmt.Errorf("created: %w", err)
	}
	if pkt.LastEdited, err = r.Uint64(); err != nil {
		return nil, fmt.Errorf("last edited: %w", err)
	}
	if pkt.UpdateDelta, err = r.Count(); err != nil {
		return nil, fmt.Errorf("update delta: %w", err)
	}
	if pkt.SimulatedDelta, err = r.Count(); err != nil {
		return nil, fmt.Errorf("simulated delta: %w", err)
	}
	flags, err := r.Flags()
	if err != nil {
		return nil, fmt.Errorf("property flags: %w", err)
	}

	pkt.Properties = Properties{ID: pkt.ID, Type: pkt.Type, Created: pkt.Created}
	for i := range descriptors {
		d := &descriptors[i]
		if !flags.Has(d.prop) {
			continue
		}
		if err := d.read(r, &pkt.Properties); err != nil {
			return nil, fmt.Errorf("property %s: %w", d.name, err)
		}
	}
	pkt.Size = r.Offset()
	return &pkt, nil
}

// ReadArgs carries what the decoder needs to know about the sender and the
// local peer.
type ReadArgs struct {
	// ClockSkew is the sender's clock minus ours, in microseconds.
	ClockSkew int64
	// LocalID is the local participant's session id.
	LocalID uuid.UUID
	// IsDeleted reports whether the object was already deleted locally.
	IsDeleted func(id uuid.UUID) bool
}

// Reasons a packet's contents can be ignored.
const (
	IgnoreStale   = "stale"
	IgnoreDeleted = "deleted"
)

// ReadResult describes what a decode did.
type ReadResult struct {
	Consumed int
	// Ignored is set when the packet was older than local state, or the
	// object is deleted. Ownership is applied even then.
	Ignored      bool
	IgnoreReason string
	// Applied is the set of properties written to the object.
	Applied codec.PropertyFlags
	Dirty   core.DirtyFlags
}

// ReadFrom decodes a state packet for this object and returns the number of
// bytes consumed.
func (it *Item) ReadFrom(data []byte, args ReadArgs) (int, error) {
	res, err := it.Decode(data, args)
	return res.Consumed, err
}

// Decode is ReadFrom with a full account of what was applied.
//
// The packet is parsed completely before the object is touched. Ownership is
// always applied. Transform and velocity are applied only if the packet is
// accepted and the local peer did not simulate the object before the
// packet arrived. Everything else is applied if the packet is accepted.
func (it *Item) Decode(data []byte, args ReadArgs) (ReadResult, error) {
	pkt, err := ParsePacket(data)
	if err != nil {
		return ReadResult{}, err
	}
	if pkt.ID != it.id {
		return ReadResult{}, fmt.Errorf("%w: got %s", ErrObjectMismatch, pkt.ID)
	}

	it.mu.Lock()
	defer it.mu.Unlock()

	now := it.clock.Now()
	res := ReadResult{Consumed: pkt.Size}

	if it.created == 0 && pkt.Created != 0 {
		created := clock.Adjust(pkt.Created, args.ClockSkew, now)
		if created == 0 {
			created = now
		}
		it.created = created
	}

	adjusted := clock.Adjust(pkt.LastEdited, args.ClockSkew, now)
	sameEdit := clock.SameEdit(pkt.LastEdited, it.lastEditedFromRemoteInRemoteTime)
	st := clock.EditState{LastEdited: it.lastEdited, LastEditedFromRemote: it.lastEditedFromRemote}
	switch {
	case args.IsDeleted != nil && args.IsDeleted(it.id):
		res.Ignored, res.IgnoreReason = true, IgnoreDeleted
	case clock.ShouldIgnore(st, sameEdit, adjusted):
		res.Ignored, res.IgnoreReason = true, IgnoreStale
	}
	overwrite := !res.Ignored

	lastSimulatedAdjusted := now
	if overwrite {
		it.lastEdited = adjusted
		it.lastEditedFromRemote = now
		it.lastEditedFromRemoteInRemoteTime = pkt.LastEdited
		it.lastUpdated = adjusted + pkt.UpdateDelta
		lastSimulatedAdjusted = min(adjusted+pkt.SimulatedDelta, now)
	} else {
		it.logger.Debug("ignoring state packet",
			"reason", res.IgnoreReason,
			"lastEdited", it.lastEdited,
			"remoteLastEdited", pkt.LastEdited,
			"adjusted", adjusted,
			"sameEdit", sameEdit)
		recordIgnored(res.IgnoreReason)
	}

	weOwned := it.owner.IsSelfOwned(args.LocalID)
	var dirty core.DirtyFlags
	for i := range descriptors {
		d := &descriptors[i]
		if !pkt.Properties.Has(d.prop) {
			continue
		}
		switch d.group {
		case groupMotion:
			if !overwrite || weOwned {
				continue
			}
		case groupGeneral:
			if !overwrite {
				continue
			}
		}
		dirty |= d.apply(it, &pkt.Properties)
		res.Applied = res.Applied.With(d.prop)
	}

	if overwrite {
		if dirty.Has(core.DirtyTransform|core.DirtyVelocities) && now > lastSimulatedAdjusted {
			it.simulateKinematicMotionLocked(clock.Seconds(now-lastSimulatedAdjusted), false)
		}
		if !it.owner.IsSelfOwned(args.LocalID) {
			it.lastSimulated = now
		}
		recordDecoded()
	}

	it.dirty |= dirty
	res.Dirty = dirty
	return res, nil
}

// lastEditedOffset finds the lastEdited field of a state packet.
func lastEditedOffset(buf []byte) (int, error) {
	if len(buf) < 16 {
		return 0, fmt.Errorf("object id: %w", codec.ErrTruncated)
	}
	_, n, err := codec.DecodeCount(buf[16:])
	if err != nil {
		return 0, fmt.Errorf("object type: %w", err)
	}
	off := 16 + n + 8
	if len(buf) < off+8 {
		return 0, fmt.Errorf("last edited: %w", codec.ErrTruncated)
	}
	return off, nil
}

// AdjustEditPacketForClockSkew rewrites the lastEdited field of an outgoing
// edit packet from local time into the receiver's time base. Zero stays
// zero.
func AdjustEditPacketForClockSkew(buf []byte, skew int64) error {
	off, err := lastEditedOffset(buf)
	if err != nil {
		return err
	}
	local := binary.LittleEndian.Uint64(buf[off:])
	binary.LittleEndian.PutUint64(buf[off:], clock.Unadjust(local, skew))
	return nil
}

// PeekID returns the object id a state packet is for.
func PeekID(buf []byte) (uuid.UUID, error) {
	if len(buf) < 16 {
		return uuid.Nil, fmt.Errorf("object id: %w", codec.ErrTruncated)
	}
	return uuid.FromBytes(buf[:16])
}
