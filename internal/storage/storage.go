package storage

import (
	"github.com/google/uuid"

	"github.com/OCAP2/replicator/pkg/core"
)

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// SaveObject stores the latest snapshot of an object, replacing any
	// earlier one.
	SaveObject(s *core.ObjectSnapshot) error
	// DeleteObject forgets an object. Unknown ids are not an error.
	DeleteObject(id uuid.UUID) error
	// LoadObjects returns every stored snapshot ordered by id.
	LoadObjects() ([]core.ObjectSnapshot, error)
}

// Exporter is an optional interface for backends that write their
// contents to a file on request.
type Exporter interface {
	Export() (string, error)
	GetExportedFilePath() string
}

// Querier is an optional interface for backends that can look objects up
// by their queryable columns.
type Querier interface {
	// FindByUserDataKey returns the objects whose user data is a JSON object
	// with the given top level key.
	FindByUserDataKey(key string) ([]core.ObjectSnapshot, error)
	// FindByOwner returns the objects simulated by owner.
	FindByOwner(owner uuid.UUID) ([]core.ObjectSnapshot, error)
}
