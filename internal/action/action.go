// Package action implements the constraint records attached to an object
// and the ledger that keeps them consistent across peers.
package action

import (
	"errors"

	"github.com/google/uuid"
)

var (
	ErrBlobOverflow       = errors.New("action data exceeds maximum size")
	ErrOwnerMismatch      = errors.New("action belongs to a different object")
	ErrDuplicateAction    = errors.New("action already attached")
	ErrMalformedBlob      = errors.New("malformed action data")
	ErrActionConstruction = errors.New("action construction failed")
	ErrUnknownType        = errors.New("unknown action type")
	ErrInvalidArguments   = errors.New("invalid action arguments")
)

// Type tags the kind of constraint an action applies.
type Type uint16

const (
	TypeNone   Type = 0
	TypeOffset Type = 1000
	TypeSpring Type = 2000
	TypeHold   Type = 3000
)

func (t Type) String() string {
	switch t {
	case TypeOffset:
		return "offset"
	case TypeSpring:
		return "spring"
	case TypeHold:
		return "hold"
	default:
		return "none"
	}
}

// ParseType maps a type name to its tag, TypeNone if unknown.
func ParseType(s string) Type {
	switch s {
	case "offset":
		return TypeOffset
	case "spring":
		return TypeSpring
	case "hold":
		return TypeHold
	default:
		return TypeNone
	}
}

// Arguments are the parameters of an action as seen by scripts.
type Arguments map[string]any

// Action is one constraint attached to an object.
type Action interface {
	ID() uuid.UUID
	Type() Type

	// Owner is the object the action is attached to, uuid.Nil once detached.
	Owner() uuid.UUID
	SetOwner(uuid.UUID)

	Arguments() Arguments
	UpdateArguments(Arguments) bool

	Serialize() []byte
	Deserialize([]byte) error

	// ShouldSuppressLocationEdits is true for actions that drive the
	// object's transform themselves.
	ShouldSuppressLocationEdits() bool
	IsActive() bool
}

// Simulation is the physics registry actions are handed to while attached.
type Simulation interface {
	AddAction(Action)
	RemoveFromSimulation(Action)
}
