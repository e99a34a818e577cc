package peer

import (
	"sync"

	"github.com/google/uuid"
)

// Context holds the local session id and the clock skew measured for each
// remote peer.
type Context struct {
	mu        sync.RWMutex
	sessionID uuid.UUID
	skews     map[uuid.UUID]int64
}

// NewContext creates a Context for the given local session. A nil id
// makes a fresh random one.
func NewContext(sessionID uuid.UUID) *Context {
	if sessionID == uuid.Nil {
		sessionID = uuid.New()
	}
	return &Context{
		sessionID: sessionID,
		skews:     make(map[uuid.UUID]int64),
	}
}

func (c *Context) SessionID() uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// SetSessionID changes the local session, for instance after reconnecting.
func (c *Context) SetSessionID(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = id
}

// ClockSkew returns the remote peer's clock minus ours, in microseconds.
// Unknown peers have zero skew.
func (c *Context) ClockSkew(peer uuid.UUID) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.skews[peer]
}

func (c *Context) SetClockSkew(peer uuid.UUID, skew int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.skews[peer] = skew
}

// Forget drops what is known about a peer.
func (c *Context) Forget(peer uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.skews, peer)
}

// Peers returns how many remote peers have a recorded skew.
func (c *Context) Peers() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.skews)
}
