package entity

import (
	"github.com/OCAP2/replicator/internal/clock"
	"github.com/OCAP2/replicator/internal/kinematics"
)

// Simulate advances the object to now and publishes the resulting pose.
func (it *Item) Simulate(now uint64) {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.lastSimulated == 0 {
		it.lastSimulated = now
	}
	var elapsed float32
	if now > it.lastSimulated {
		elapsed = clock.Seconds(now - it.lastSimulated)
	}
	it.simulateKinematicMotionLocked(elapsed, true)
	it.lastSimulated = now
	it.publishLocked()
}

// SimulateKinematicMotion extrapolates the object by elapsed seconds. It
// does nothing while actions are attached, since the physics engine drives
// the object then.
func (it *Item) SimulateKinematicMotion(elapsed float32, setFlags bool) {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.simulateKinematicMotionLocked(elapsed, setFlags)
}

func (it *Item) simulateKinematicMotionLocked(elapsed float32, setFlags bool) {
	if it.actions.Len() > 0 {
		return
	}
	it.dirty |= kinematics.Advance(&it.motion, elapsed, setFlags)
}
