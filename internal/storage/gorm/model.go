package gormstorage

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/OCAP2/replicator/pkg/core"
)

// ObjectRecord is the stored form of an object snapshot.
type ObjectRecord struct {
	ID         string `gorm:"primaryKey;size:36"`
	Type       string `gorm:"size:16;index"`
	Name       string `gorm:"index"`
	OwnerID    string `gorm:"size:36;index"`
	Priority   uint8
	PosX       float32
	PosY       float32
	PosZ       float32
	UserData   string
	// UserDataJSON holds UserData when it is a JSON document, so it can be
	// queried with datatypes.JSONQuery.
	UserDataJSON datatypes.JSON
	LastEdited   int64
	Payload      []byte
	RecordedAt   time.Time `gorm:"index"`
	UpdatedAt    time.Time
}

func (ObjectRecord) TableName() string {
	return "objects"
}

// Models lists the tables to migrate.
var Models = []any{&ObjectRecord{}}

func recordFromSnapshot(s *core.ObjectSnapshot) ObjectRecord {
	r := ObjectRecord{
		ID:         s.ID.String(),
		Type:       s.Type.String(),
		Name:       s.Name,
		Priority:   s.Priority,
		PosX:       s.Position[0],
		PosY:       s.Position[1],
		PosZ:       s.Position[2],
		UserData:   s.UserData,
		LastEdited: int64(s.LastEdited),
		Payload:    s.Payload,
		RecordedAt: s.RecordedAt,
	}
	if s.Owner != uuid.Nil {
		r.OwnerID = s.Owner.String()
	}
	if r.RecordedAt.IsZero() {
		r.RecordedAt = time.Now()
	}
	if s.UserData != "" && json.Valid([]byte(s.UserData)) {
		r.UserDataJSON = datatypes.JSON(s.UserData)
	}
	return r
}

func (r ObjectRecord) snapshot() (core.ObjectSnapshot, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return core.ObjectSnapshot{}, err
	}
	var owner uuid.UUID
	if r.OwnerID != "" {
		if owner, err = uuid.Parse(r.OwnerID); err != nil {
			return core.ObjectSnapshot{}, err
		}
	}
	return core.ObjectSnapshot{
		ID:         id,
		Type:       core.ParseObjectType(r.Type),
		Name:       r.Name,
		Owner:      owner,
		Priority:   r.Priority,
		Position:   [3]float32{r.PosX, r.PosY, r.PosZ},
		UserData:   r.UserData,
		LastEdited: uint64(r.LastEdited),
		Payload:    r.Payload,
		RecordedAt: r.RecordedAt,
	}, nil
}
