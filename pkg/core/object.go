// pkg/core/object.go
package core

import (
	"time"

	"github.com/google/uuid"
)

// ObjectType is the numeric type code carried in every state packet.
type ObjectType uint32

const (
	ObjectTypeUnknown ObjectType = iota
	ObjectTypeBox
	ObjectTypeSphere
	ObjectTypeModel
	ObjectTypeLight
	ObjectTypeZone
)

func (t ObjectType) String() string {
	switch t {
	case ObjectTypeBox:
		return "Box"
	case ObjectTypeSphere:
		return "Sphere"
	case ObjectTypeModel:
		return "Model"
	case ObjectTypeLight:
		return "Light"
	case ObjectTypeZone:
		return "Zone"
	default:
		return "Unknown"
	}
}

// ParseObjectType converts a type name back to its code.
func ParseObjectType(s string) ObjectType {
	for t := ObjectTypeBox; t <= ObjectTypeZone; t++ {
		if t.String() == s {
			return t
		}
	}
	return ObjectTypeUnknown
}

// ObjectSnapshot is the persisted form of an object: the full wire encoding
// plus a few columns that are useful to query without decoding.
type ObjectSnapshot struct {
	ID         uuid.UUID
	Type       ObjectType
	Name       string
	Owner      uuid.UUID
	Priority   uint8
	Position   [3]float32
	UserData   string
	LastEdited uint64
	Payload    []byte
	RecordedAt time.Time
}

// PoseSample is one published pose, tagged with the owning object and time.
type PoseSample struct {
	ObjectID uuid.UUID
	Time     time.Time
	Pose     PoseSet
}
