// Package gormstorage implements the storage.Backend interface on GORM.
// Writes are queued and drained into the database by a background writer;
// reads flush the queue first so they observe every earlier write.
package gormstorage

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/OCAP2/replicator/internal/queue"
	"github.com/OCAP2/replicator/pkg/core"
)

// DefaultFlushInterval is how often the writer drains the queue.
const DefaultFlushInterval = 2 * time.Second

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB            *gorm.DB
	Logger        *slog.Logger
	FlushInterval time.Duration
}

// op is one queued write: a snapshot to upsert, or a delete when record is
// nil.
type op struct {
	id     string
	record *ObjectRecord
}

// Backend implements storage.Backend with queue-based batch writes.
type Backend struct {
	deps    Dependencies
	pending *queue.Queue[op]

	flushMu  sync.Mutex
	stopChan chan struct{}
	done     chan struct{}
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = DefaultFlushInterval
	}
	return &Backend{
		deps:    deps,
		pending: queue.New[op](),
	}
}

// Init migrates the schema and starts the writer goroutine.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return fmt.Errorf("gorm backend: no database")
	}
	if err := b.deps.DB.AutoMigrate(Models...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})
	go b.writeLoop()
	return nil
}

// Close stops the writer and flushes what is left.
func (b *Backend) Close() error {
	if b.stopChan != nil {
		close(b.stopChan)
		<-b.done
		b.stopChan = nil
	}
	return b.Flush()
}

func (b *Backend) writeLoop() {
	defer close(b.done)
	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			if err := b.Flush(); err != nil {
				b.deps.Logger.Error("failed to write objects", "error", err)
			}
		}
	}
}

func (b *Backend) SaveObject(s *core.ObjectSnapshot) error {
	r := recordFromSnapshot(s)
	b.pending.Push(op{id: r.ID, record: &r})
	return nil
}

func (b *Backend) DeleteObject(id uuid.UUID) error {
	b.pending.Push(op{id: id.String()})
	return nil
}

// Pending returns the number of queued writes.
func (b *Backend) Pending() int {
	return b.pending.Len()
}

// Flush writes every queued operation in one transaction. Only the last
// operation per object is applied.
func (b *Backend) Flush() error {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	ops := b.pending.GetAndEmpty()
	if len(ops) == 0 || b.deps.DB == nil {
		return nil
	}

	last := make(map[string]op, len(ops))
	var order []string
	for _, o := range ops {
		if _, seen := last[o.id]; !seen {
			order = append(order, o.id)
		}
		last[o.id] = o
	}

	var upserts []ObjectRecord
	var deletes []string
	for _, id := range order {
		if o := last[id]; o.record != nil {
			upserts = append(upserts, *o.record)
		} else {
			deletes = append(deletes, id)
		}
	}

	start := time.Now()
	err := b.deps.DB.Transaction(func(tx *gorm.DB) error {
		if len(upserts) > 0 {
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				UpdateAll: true,
			}).Create(&upserts).Error
			if err != nil {
				return fmt.Errorf("upsert objects: %w", err)
			}
		}
		if len(deletes) > 0 {
			if err := tx.Where("id IN ?", deletes).Delete(&ObjectRecord{}).Error; err != nil {
				return fmt.Errorf("delete objects: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		b.pending.Requeue(ops...)
		return err
	}

	b.deps.Logger.Debug("wrote objects",
		"upserted", len(upserts),
		"deleted", len(deletes),
		"duration", time.Since(start))
	return nil
}

func (b *Backend) LoadObjects() ([]core.ObjectSnapshot, error) {
	if err := b.Flush(); err != nil {
		return nil, err
	}
	var records []ObjectRecord
	if err := b.deps.DB.Order("id").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("load objects: %w", err)
	}
	return toSnapshots(records)
}

// FindByUserDataKey returns the objects whose user data is a JSON object
// with the given top level key.
func (b *Backend) FindByUserDataKey(key string) ([]core.ObjectSnapshot, error) {
	if err := b.Flush(); err != nil {
		return nil, err
	}
	var records []ObjectRecord
	err := b.deps.DB.
		Where(datatypes.JSONQuery("user_data_json").HasKey(key)).
		Order("id").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("query user data: %w", err)
	}
	return toSnapshots(records)
}

// FindByOwner returns the objects simulated by owner.
func (b *Backend) FindByOwner(owner uuid.UUID) ([]core.ObjectSnapshot, error) {
	if err := b.Flush(); err != nil {
		return nil, err
	}
	var records []ObjectRecord
	if err := b.deps.DB.Where("owner_id = ?", owner.String()).Order("id").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("query owner: %w", err)
	}
	return toSnapshots(records)
}

func toSnapshots(records []ObjectRecord) ([]core.ObjectSnapshot, error) {
	out := make([]core.ObjectSnapshot, 0, len(records))
	for _, r := range records {
		s, err := r.snapshot()
		if err != nil {
			return nil, fmt.Errorf("object %s: %w", r.ID, err)
		}
		out = append(out, s)
	}
	return out, nil
}
