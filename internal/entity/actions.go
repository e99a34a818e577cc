package entity

import (
	"github.com/google/uuid"

	"github.com/OCAP2/replicator/internal/action"
	"github.com/OCAP2/replicator/pkg/core"
)

// AddAction attaches a locally created action.
func (it *Item) AddAction(a action.Action) error {
	it.mu.Lock()
	defer it.mu.Unlock()

	if err := it.actions.Add(a); err != nil {
		recordActionRejected(err)
		return err
	}
	it.dirty |= core.DirtyPhysicsActivation
	return nil
}

// UpdateAction changes the arguments of an attached action.
func (it *Item) UpdateAction(id uuid.UUID, args action.Arguments) (bool, error) {
	it.mu.Lock()
	defer it.mu.Unlock()

	ok, err := it.actions.Update(id, args)
	if err != nil {
		recordActionRejected(err)
		return false, err
	}
	if ok {
		it.dirty |= core.DirtyPhysicsActivation
	}
	return ok, nil
}

// RemoveAction detaches an action and keeps it from being revived by stale
// network data for a while.
func (it *Item) RemoveAction(id uuid.UUID) bool {
	it.mu.Lock()
	defer it.mu.Unlock()

	if !it.actions.Remove(id) {
		return false
	}
	it.dirty |= core.DirtyPhysicsActivation
	return true
}

// ClearActions detaches every action.
func (it *Item) ClearActions() {
	it.mu.Lock()
	defer it.mu.Unlock()

	it.actions.Clear()
	it.dirty |= core.DirtyPhysicsActivation
}

// SetActionData replaces the attached actions with those in blob.
func (it *Item) SetActionData(blob []byte) error {
	it.mu.Lock()
	defer it.mu.Unlock()

	changed, err := it.actions.SetData(blob)
	if err != nil {
		recordActionRejected(err)
		return err
	}
	if changed {
		it.dirty |= core.DirtyPhysicsActivation
	}
	return nil
}

// ActionData returns the serialized attached actions.
func (it *Item) ActionData() []byte {
	it.mu.RLock()
	defer it.mu.RUnlock()
	return it.actions.Data()
}

// ActionIDs lists the attached actions.
func (it *Item) ActionIDs() []uuid.UUID {
	it.mu.RLock()
	defer it.mu.RUnlock()
	return it.actions.IDs()
}

func (it *Item) HasActions() bool {
	it.mu.RLock()
	defer it.mu.RUnlock()
	return it.actions.Len() > 0
}

// ActionArguments returns an action's arguments, or nil if it is not
// attached.
func (it *Item) ActionArguments(id uuid.UUID) action.Arguments {
	it.mu.RLock()
	defer it.mu.RUnlock()
	return it.actions.Arguments(id)
}

// ActionsOfType returns the active attached actions of type t.
func (it *Item) ActionsOfType(t action.Type) []action.Action {
	it.mu.RLock()
	defer it.mu.RUnlock()
	return it.actions.OfType(t)
}

// IsActionDeleted reports whether id was recently removed.
func (it *Item) IsActionDeleted(id uuid.UUID) bool {
	it.mu.RLock()
	defer it.mu.RUnlock()
	return it.actions.IsDeleted(id)
}
