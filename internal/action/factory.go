package action

import (
	"fmt"

	"github.com/google/uuid"
)

// Factory builds actions, either from script arguments or from their
// serialized form received over the network.
type Factory interface {
	New(typ Type, id, owner uuid.UUID, args Arguments) (Action, error)
	FromBytes(owner uuid.UUID, data []byte) (Action, error)
}

// ConstraintFactory builds Constraint actions.
type ConstraintFactory struct{}

func (ConstraintFactory) New(typ Type, id, owner uuid.UUID, args Arguments) (Action, error) {
	c, err := NewConstraint(typ, id, owner, args)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrActionConstruction, err)
	}
	return c, nil
}

func (ConstraintFactory) FromBytes(owner uuid.UUID, data []byte) (Action, error) {
	typ, id, err := peekHeader(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrActionConstruction, err)
	}
	c, err := NewConstraint(typ, id, owner, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrActionConstruction, err)
	}
	if err := c.Deserialize(data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrActionConstruction, err)
	}
	return c, nil
}
