package memory

import (
	"bytes"
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/OCAP2/replicator/internal/config"
	"github.com/OCAP2/replicator/pkg/core"
)

// Backend keeps object snapshots in memory and exports them to JSON.
type Backend struct {
	cfg     config.MemoryConfig
	objects map[uuid.UUID]core.ObjectSnapshot
	// saves counts snapshots written per object since Init.
	saves map[uuid.UUID]int

	startedAt      time.Time
	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:     cfg,
		objects: make(map[uuid.UUID]core.ObjectSnapshot),
		saves:   make(map[uuid.UUID]int),
	}
}

// Init resets the backend.
func (b *Backend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects = make(map[uuid.UUID]core.ObjectSnapshot)
	b.saves = make(map[uuid.UUID]int)
	b.startedAt = time.Now()
	return nil
}

// Close exports the stored objects when an output directory is configured.
func (b *Backend) Close() error {
	if b.cfg.OutputDir == "" {
		return nil
	}
	_, err := b.Export()
	return err
}

func (b *Backend) SaveObject(s *core.ObjectSnapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := *s
	snap.Payload = bytes.Clone(s.Payload)
	if snap.RecordedAt.IsZero() {
		snap.RecordedAt = time.Now()
	}
	b.objects[s.ID] = snap
	b.saves[s.ID]++
	return nil
}

func (b *Backend) DeleteObject(id uuid.UUID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, id)
	delete(b.saves, id)
	return nil
}

func (b *Backend) LoadObjects() ([]core.ObjectSnapshot, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sortedLocked(), nil
}

// Saves returns how many snapshots were written for id.
func (b *Backend) Saves(id uuid.UUID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.saves[id]
}

func (b *Backend) FindByUserDataKey(key string) ([]core.ObjectSnapshot, error) {
	return b.filter(func(s core.ObjectSnapshot) bool {
		var fields map[string]json.RawMessage
		if json.Unmarshal([]byte(s.UserData), &fields) != nil {
			return false
		}
		_, ok := fields[key]
		return ok
	}), nil
}

func (b *Backend) FindByOwner(owner uuid.UUID) ([]core.ObjectSnapshot, error) {
	return b.filter(func(s core.ObjectSnapshot) bool { return s.Owner == owner }), nil
}

func (b *Backend) filter(keep func(core.ObjectSnapshot) bool) []core.ObjectSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := []core.ObjectSnapshot{}
	for _, s := range b.sortedLocked() {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}

func (b *Backend) sortedLocked() []core.ObjectSnapshot {
	out := make([]core.ObjectSnapshot, 0, len(b.objects))
	for _, s := range b.objects {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, c core.ObjectSnapshot) int {
		return bytes.Compare(a.ID[:], c.ID[:])
	})
	return out
}
