package cache

import (
	"sync"

	"github.com/google/uuid"
)

// SentTracker remembers, per object, the lastEdited value of the most
// recent state packet sent for it.
type SentTracker struct {
	mu   sync.RWMutex
	sent map[uuid.UUID]uint64
}

func NewSentTracker() *SentTracker {
	return &SentTracker{
		sent: make(map[uuid.UUID]uint64),
	}
}

// Track records that a packet stamped lastEdited was sent for id.
func (t *SentTracker) Track(id uuid.UUID, lastEdited uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent[id] = lastEdited
}

func (t *SentTracker) LastSent(id uuid.UUID) (uint64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.sent[id]
	return v, ok
}

// NeedsSend reports whether an object edited at lastEdited has changes
// that were not sent yet.
func (t *SentTracker) NeedsSend(id uuid.UUID, lastEdited uint64) bool {
	sent, ok := t.LastSent(id)
	return !ok || lastEdited > sent
}

func (t *SentTracker) Delete(id uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sent, id)
}

func (t *SentTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = make(map[uuid.UUID]uint64)
}
