// Package clock provides the microsecond time base objects are stamped with
// and the rules for bringing a remote peer's timestamps into it.
package clock

import (
	"sync"
	"time"
)

// Clock returns the current time in microseconds since the Unix epoch.
type Clock interface {
	Now() uint64
}

// System reads the wall clock.
type System struct{}

func (System) Now() uint64 {
	return uint64(time.Now().UnixMicro())
}

// Manual is a clock that only moves when told to. It is safe for
// concurrent use.
type Manual struct {
	mu  sync.Mutex
	now uint64
}

func NewManual(start uint64) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Set(usec uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = usec
}

func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now += uint64(d.Microseconds())
}

// Usec converts a duration to microseconds.
func Usec(d time.Duration) uint64 {
	if d < 0 {
		return 0
	}
	return uint64(d.Microseconds())
}

// Seconds converts a microsecond span to seconds.
func Seconds(usec uint64) float32 {
	return float32(float64(usec) / float64(time.Second/time.Microsecond))
}
