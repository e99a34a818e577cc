package cache

import (
	"bytes"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/OCAP2/replicator/internal/entity"
)

// ObjectCache holds every live object known to this peer plus the ids of
// objects deleted recently, so late packets for them can be ignored.
// Packet handling goes through it on every message, so lookups stay cheap.
type ObjectCache struct {
	mu      sync.RWMutex
	items   map[uuid.UUID]*entity.Item
	deleted map[uuid.UUID]uint64
}

func NewObjectCache() *ObjectCache {
	return &ObjectCache{
		items:   make(map[uuid.UUID]*entity.Item),
		deleted: make(map[uuid.UUID]uint64),
	}
}

func (c *ObjectCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[uuid.UUID]*entity.Item)
	c.deleted = make(map[uuid.UUID]uint64)
}

func (c *ObjectCache) Get(id uuid.UUID) (*entity.Item, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	it, ok := c.items[id]
	return it, ok
}

// Add stores it, replacing any object with the same id. Adding an object
// clears a deletion record for its id.
func (c *ObjectCache) Add(it *entity.Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[it.ID()] = it
	delete(c.deleted, it.ID())
}

// GetOrCreate returns the object with the given id, calling create to make
// it if it is not cached. It reports whether the object was created.
// Deleted ids are not recreated.
func (c *ObjectCache) GetOrCreate(id uuid.UUID, create func() *entity.Item) (*entity.Item, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if it, ok := c.items[id]; ok {
		return it, false
	}
	if _, gone := c.deleted[id]; gone {
		return nil, false
	}
	it := create()
	c.items[id] = it
	return it, true
}

// Remove drops the object and records that it was deleted at usec.
func (c *ObjectCache) Remove(id uuid.UUID, at uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[id]
	delete(c.items, id)
	c.deleted[id] = at
	return ok
}

func (c *ObjectCache) IsDeleted(id uuid.UUID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.deleted[id]
	return ok
}

// PurgeDeleted forgets deletions recorded before cutoff and returns how
// many were dropped.
func (c *ObjectCache) PurgeDeleted(cutoff uint64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for id, at := range c.deleted {
		if at < cutoff {
			delete(c.deleted, id)
			n++
		}
	}
	return n
}

// Items returns the cached objects ordered by id.
func (c *ObjectCache) Items() []*entity.Item {
	c.mu.RLock()
	out := make([]*entity.Item, 0, len(c.items))
	for _, it := range c.items {
		out = append(out, it)
	}
	c.mu.RUnlock()

	slices.SortFunc(out, func(a, b *entity.Item) int {
		ida, idb := a.ID(), b.ID()
		return bytes.Compare(ida[:], idb[:])
	})
	return out
}

func (c *ObjectCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// SafeCounter is a thread-safe counter
type SafeCounter struct {
	mu sync.Mutex
	v  int
}

func (c *SafeCounter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

func (c *SafeCounter) Set(v int) {
	c.mu.Lock()
	c.v = v
	c.mu.Unlock()
}

func (c *SafeCounter) Inc() {
	c.mu.Lock()
	c.v++
	c.mu.Unlock()
}
