package worker

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/OCAP2/replicator/internal/dispatcher"
	"github.com/OCAP2/replicator/internal/entity"
	"github.com/OCAP2/replicator/internal/ownership"
	"github.com/OCAP2/replicator/internal/parser"
)

// RegisterHandlers registers all event handlers with the dispatcher.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	// Network state - sync, results feed straight into the next tick
	d.Register("object:data", m.handleObjectData, dispatcher.Logged())

	// Local edits
	d.Register("object:edit", m.handleObjectEdit, dispatcher.Logged())
	d.Register("object:action", m.handleObjectAction, dispatcher.Logged())
	d.Register("object:erase", m.handleObjectErase, dispatcher.Logged())

	// Peer bookkeeping - buffered
	d.Register("peer:clock", m.handlePeerClock, dispatcher.Buffered(100), dispatcher.Logged())
	d.Register("peer:leave", m.handlePeerLeave, dispatcher.Buffered(100), dispatcher.Logged())
}

// DataResult describes one object:data payload.
type DataResult struct {
	Decoded int
	Ignored int
	Created int
}

// handleObjectData applies a payload of back to back state packets sent by
// e.Source. Parsing stops at the first malformed packet; everything before
// it stays applied.
func (m *Manager) handleObjectData(e dispatcher.Event) (any, error) {
	args := entity.ReadArgs{
		ClockSkew: m.deps.Peers.ClockSkew(e.Source),
		LocalID:   m.deps.Peers.SessionID(),
		IsDeleted: m.deps.Objects.IsDeleted,
	}

	var res DataResult
	data := e.Payload
	for len(data) > 0 {
		pkt, err := entity.ParsePacket(data)
		if err != nil {
			return res, fmt.Errorf("failed to parse object data: %w", err)
		}

		it, created := m.deps.Objects.GetOrCreate(pkt.ID, func() *entity.Item {
			return m.newItem(pkt.ID, pkt.Type)
		})
		if it == nil {
			res.Ignored++
			data = data[pkt.Size:]
			continue
		}
		if created {
			res.Created++
		}

		rr, err := it.Decode(data, args)
		if err != nil {
			return res, fmt.Errorf("failed to decode object %s: %w", pkt.ID, err)
		}
		if rr.Ignored {
			res.Ignored++
		} else {
			res.Decoded++
		}
		data = data[rr.Consumed:]
	}
	return res, nil
}

// handleObjectEdit applies a local property edit. A new id creates the
// object.
func (m *Manager) handleObjectEdit(e dispatcher.Event) (any, error) {
	edit, err := m.deps.Parser.ParseEdit(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to parse object edit: %w", err)
	}

	it, created := m.deps.Objects.GetOrCreate(edit.ID, func() *entity.Item {
		it := m.newItem(edit.ID, edit.Type)
		it.RecordCreationTime()
		return it
	})
	if it == nil {
		return nil, fmt.Errorf("%w: %s was deleted", ErrUnknownObject, edit.ID)
	}
	if created {
		m.deps.Logger.Debug("Created object", "object", edit.ID, "type", edit.Type)
	}

	claimed := false
	if edit.Properties.Has(entity.PropSimulationOwner) {
		edit.Properties.Changed = edit.Properties.Changed.Without(entity.PropSimulationOwner)
		claimed = m.claim(it, edit.Properties.SimulationOwner)
	}
	return it.SetProperties(edit.Properties) || claimed, nil
}

// claim applies a local ownership request. An empty request releases the
// object; a request without an id claims it for the local session.
func (m *Manager) claim(it *entity.Item, o ownership.Owner) bool {
	switch {
	case o.ID == uuid.Nil && o.Priority == ownership.PriorityNone:
		if it.Owner().IsNull() {
			return false
		}
		it.ClearOwnership()
		it.MarkEdited()
		return true
	case o.ID == uuid.Nil:
		o.ID = m.deps.Peers.SessionID()
	}
	if !it.ContestOwnership(o) {
		return false
	}
	it.MarkEdited()
	return true
}

func (m *Manager) handleObjectAction(e dispatcher.Event) (any, error) {
	edit, err := m.deps.Parser.ParseActionEdit(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to parse action edit: %w", err)
	}

	it, ok := m.deps.Objects.Get(edit.ObjectID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownObject, edit.ObjectID)
	}

	switch edit.Op {
	case parser.ActionAdd:
		a, err := m.deps.Factory.New(edit.Type, edit.ActionID, edit.ObjectID, edit.Arguments)
		if err != nil {
			return nil, err
		}
		if err := it.AddAction(a); err != nil {
			return nil, err
		}
		it.MarkEdited()
		return edit.ActionID, nil
	case parser.ActionUpdate:
		ok, err := it.UpdateAction(edit.ActionID, edit.Arguments)
		if ok {
			it.MarkEdited()
		}
		return ok, err
	default:
		ok := it.RemoveAction(edit.ActionID)
		if ok {
			it.MarkEdited()
		}
		return ok, nil
	}
}

func (m *Manager) handleObjectErase(e dispatcher.Event) (any, error) {
	ids, err := m.deps.Parser.ParseErase(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to parse erase: %w", err)
	}
	now := m.deps.Clock.Now()
	for _, id := range ids {
		if err := m.erase(id, now); err != nil {
			return nil, err
		}
	}
	return len(ids), nil
}

// handlePeerClock records e.Source's clock skew from {"skew": usec}.
func (m *Manager) handlePeerClock(e dispatcher.Event) (any, error) {
	var msg struct {
		Skew int64 `json:"skew"`
	}
	if err := json.Unmarshal(e.Payload, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse clock skew: %w", err)
	}
	m.deps.Peers.SetClockSkew(e.Source, msg.Skew)
	return nil, nil
}

// handlePeerLeave forgets e.Source and releases every object it was
// simulating.
func (m *Manager) handlePeerLeave(e dispatcher.Event) (any, error) {
	m.deps.Peers.Forget(e.Source)
	released := 0
	for _, it := range m.deps.Objects.Items() {
		if it.Owner().ID == e.Source {
			it.ClearOwnership()
			released++
		}
	}
	return released, nil
}
