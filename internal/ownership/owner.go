// Package ownership tracks which participant is allowed to run physics for
// an object, and with what claim priority.
package ownership

import (
	"fmt"

	"github.com/google/uuid"
)

// EncodedSize is the length of the binary form: a 16 byte id and a priority.
const EncodedSize = 17

// Well-known claim priorities.
const (
	PriorityNone      uint8 = 0x00
	PriorityVolunteer uint8 = 0x01
	PriorityRecruit   uint8 = 0x40
	PriorityScript    uint8 = 0x80
	PriorityMax       uint8 = 0xff
)

// Owner is the current simulation claim on an object. The zero value is
// the empty claim.
type Owner struct {
	ID       uuid.UUID
	Priority uint8
}

// New builds a claim, forcing the priority to zero for a null id.
func New(id uuid.UUID, priority uint8) Owner {
	if id == uuid.Nil {
		priority = PriorityNone
	}
	return Owner{ID: id, Priority: priority}
}

// IsNull reports whether nobody holds the claim.
func (o Owner) IsNull() bool {
	return o.ID == uuid.Nil
}

// IsSelfOwned reports whether localID holds the claim. A null local id never
// owns anything.
func (o Owner) IsSelfOwned(localID uuid.UUID) bool {
	return localID != uuid.Nil && o.ID == localID
}

// Bytes returns the binary form of the claim.
func (o Owner) Bytes() []byte {
	out := make([]byte, EncodedSize)
	copy(out, o.ID[:])
	out[16] = o.Priority
	return out
}

// FromBytes decodes a claim. Any input that is not exactly EncodedSize bytes
// long decodes to the empty claim.
func FromBytes(b []byte) Owner {
	if len(b) != EncodedSize {
		return Owner{}
	}
	var id uuid.UUID
	copy(id[:], b[:16])
	return New(id, b[16])
}

func (o Owner) String() string {
	if o.IsNull() {
		return "{none}"
	}
	return fmt.Sprintf("{%s:%d}", o.ID, o.Priority)
}

// Arbiter holds an object's claim. It is not safe for concurrent use; the
// owning object's lock guards it.
type Arbiter struct {
	owner Owner
}

// Owner returns the current claim.
func (a *Arbiter) Owner() Owner {
	return a.owner
}

// Set installs a claim received from the network. The network is
// authoritative, so the claim always replaces the current one. It reports
// whether anything changed.
func (a *Arbiter) Set(o Owner) bool {
	o = New(o.ID, o.Priority)
	if o == a.owner {
		return false
	}
	a.owner = o
	return true
}

// Contest applies a locally originated claim. An empty slot or a claim by
// the current owner is accepted; otherwise the challenger needs strictly
// higher priority, so on a tie the incumbent keeps the object.
func (a *Arbiter) Contest(o Owner) bool {
	o = New(o.ID, o.Priority)
	if o.IsNull() {
		return false
	}
	if a.owner.IsNull() || a.owner.ID == o.ID || o.Priority > a.owner.Priority {
		changed := a.owner != o
		a.owner = o
		return changed
	}
	return false
}

// UpdatePriority changes the priority of the current claim without changing
// the owner. It does nothing for an empty claim.
func (a *Arbiter) UpdatePriority(priority uint8) bool {
	if a.owner.IsNull() || a.owner.Priority == priority {
		return false
	}
	a.owner.Priority = priority
	return true
}

// Clear releases the claim.
func (a *Arbiter) Clear() {
	a.owner = Owner{}
}

// IsSelfOwned reports whether localID holds the claim.
func (a *Arbiter) IsSelfOwned(localID uuid.UUID) bool {
	return a.owner.IsSelfOwned(localID)
}
