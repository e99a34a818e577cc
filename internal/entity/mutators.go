package entity

import (
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"github.com/OCAP2/replicator/internal/clock"
	"github.com/OCAP2/replicator/internal/ownership"
	"github.com/OCAP2/replicator/internal/simulation"
	"github.com/OCAP2/replicator/pkg/core"
)

// The mutators below run with the write lock held. Each returns the dirty
// bits it caused; the caller accumulates them.

func (it *Item) setSimulationOwner(o ownership.Owner) core.DirtyFlags {
	if it.owner.Set(o) {
		return core.DirtySimulatorID
	}
	return 0
}

func (it *Item) setPosition(v mgl32.Vec3) core.DirtyFlags {
	if it.actions.ShouldSuppressLocationEdits() || it.motion.Position == v {
		return 0
	}
	it.motion.Position = v
	return core.DirtyPosition
}

func (it *Item) setRotation(q mgl32.Quat) core.DirtyFlags {
	if it.actions.ShouldSuppressLocationEdits() || it.motion.Rotation == q {
		return 0
	}
	it.motion.Rotation = q
	return core.DirtyRotation
}

func (it *Item) setVelocity(v mgl32.Vec3) core.DirtyFlags {
	if it.actions.ShouldSuppressLocationEdits() || it.motion.Velocity == v {
		return 0
	}
	if v.Len() < minLinearSpeed {
		v = mgl32.Vec3{}
	}
	it.motion.Velocity = v
	return core.DirtyLinearVelocity
}

func (it *Item) setAngularVelocity(v mgl32.Vec3) core.DirtyFlags {
	if it.actions.ShouldSuppressLocationEdits() || it.motion.AngularVelocity == v {
		return 0
	}
	if v.Len() < minAngularSpeed {
		v = mgl32.Vec3{}
	}
	it.motion.AngularVelocity = v
	return core.DirtyAngularVelocity
}

func (it *Item) setAcceleration(v mgl32.Vec3) core.DirtyFlags {
	it.motion.Acceleration = v
	return 0
}

func (it *Item) setDimensions(v mgl32.Vec3) core.DirtyFlags {
	if it.dimensions == v || v[0] <= 0 || v[1] <= 0 || v[2] <= 0 {
		return 0
	}
	it.dimensions = v
	return core.DirtyShape | core.DirtyMass
}

func (it *Item) setDensity(v float32) core.DirtyFlags {
	v = clampf(v, MinDensity, MaxDensity)
	if it.density == v {
		return 0
	}
	it.density = v
	return core.DirtyMass
}

func (it *Item) setGravity(v mgl32.Vec3) core.DirtyFlags {
	if it.gravity == v {
		return 0
	}
	it.gravity = v
	return core.DirtyLinearVelocity
}

func (it *Item) setDamping(v float32) core.DirtyFlags {
	v = clampf(v, 0, 1)
	if it.motion.Damping == v {
		return 0
	}
	it.motion.Damping = v
	return core.DirtyMaterial
}

func (it *Item) setAngularDamping(v float32) core.DirtyFlags {
	v = clampf(v, 0, 1)
	if it.motion.AngularDamping == v {
		return 0
	}
	it.motion.AngularDamping = v
	return core.DirtyMaterial
}

func (it *Item) setRestitution(v float32) core.DirtyFlags {
	v = clampf(v, MinRestitution, MaxRestitution)
	if it.restitution == v {
		return 0
	}
	it.restitution = v
	return core.DirtyMaterial
}

func (it *Item) setFriction(v float32) core.DirtyFlags {
	v = clampf(v, MinFriction, MaxFriction)
	if it.friction == v {
		return 0
	}
	it.friction = v
	return core.DirtyMaterial
}

func (it *Item) setLifetime(v float32) core.DirtyFlags {
	if it.lifetime == v {
		return 0
	}
	it.lifetime = v
	return core.DirtyLifetime
}

func (it *Item) setRegistrationPoint(v mgl32.Vec3) core.DirtyFlags {
	for i := range v {
		v[i] = clampf(v[i], 0, 1)
	}
	it.registrationPoint = v
	return 0
}

func (it *Item) setCollisionless(v bool) core.DirtyFlags {
	if it.collisionless == v {
		return 0
	}
	it.collisionless = v
	return core.DirtyCollisionGroup
}

// setCollisionMask keeps only the bits of known user groups.
func (it *Item) setCollisionMask(v uint8) core.DirtyFlags {
	v &= simulation.UserMaskDefault
	if it.collisionMask&simulation.UserMaskDefault == v {
		return 0
	}
	it.collisionMask = v
	return core.DirtyCollisionGroup
}

func (it *Item) setDynamic(v bool) core.DirtyFlags {
	if it.dynamic == v {
		return 0
	}
	it.dynamic = v
	return core.DirtyMotionType
}

// setHref ignores anything that is not a HrefScheme address.
func (it *Item) setHref(v string) core.DirtyFlags {
	if !strings.HasPrefix(strings.ToLower(v), HrefScheme) {
		return 0
	}
	it.href = v
	return 0
}

func (it *Item) setActionData(blob []byte) core.DirtyFlags {
	changed, err := it.actions.SetData(blob)
	if err != nil {
		it.logger.Warn("rejected action data", "size", len(blob), "error", err)
		recordActionRejected(err)
		return 0
	}
	if changed {
		return core.DirtyPhysicsActivation
	}
	return 0
}

func (it *Item) setCreated(v uint64) core.DirtyFlags {
	if it.created == v {
		return 0
	}
	it.created = v
	return core.DirtyLifetime
}

// UpdateCreated overwrites the creation time.
func (it *Item) UpdateCreated(usec uint64) {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.dirty |= it.setCreated(usec)
}

// ComputeMass is density times volume.
func (it *Item) ComputeMass() float32 {
	it.mu.RLock()
	defer it.mu.RUnlock()
	return it.density * it.volumeLocked()
}

func (it *Item) volumeLocked() float32 {
	d := it.dimensions
	return it.volumeMultiplier * d[0] * d[1] * d[2]
}

// SetMass changes density so that the object has the given mass at its
// current volume. Density stays within [MinDensity, MaxDensity], so the
// resulting mass may differ from the one asked for.
func (it *Item) SetMass(mass float32) {
	it.mu.Lock()
	defer it.mu.Unlock()

	var density float32
	if volume := it.volumeLocked(); volume < minVolume {
		density = min(mass/minVolume, MaxDensity)
	} else {
		density = clampf(mass/volume, MinDensity, MaxDensity)
	}
	if it.density != density {
		it.density = density
		it.dirty |= core.DirtyMass
	}
}

// IsMortal reports whether the object has a finite lifetime.
func (it *Item) IsMortal() bool {
	it.mu.RLock()
	defer it.mu.RUnlock()
	return it.lifetime != Immortal
}

// Age is the time since creation in seconds.
func (it *Item) Age() float32 {
	it.mu.RLock()
	defer it.mu.RUnlock()
	return it.ageLocked(it.clock.Now())
}

func (it *Item) ageLocked(now uint64) float32 {
	if now <= it.created {
		return 0
	}
	return clock.Seconds(now - it.created)
}

// LifetimeHasExpired reports whether a mortal object outlived its lifetime.
func (it *Item) LifetimeHasExpired() bool {
	it.mu.RLock()
	defer it.mu.RUnlock()
	return it.lifetime != Immortal && it.ageLocked(it.clock.Now()) > it.lifetime
}

// Expiry is the time at which a mortal object expires, or zero for an
// immortal one.
func (it *Item) Expiry() uint64 {
	it.mu.RLock()
	defer it.mu.RUnlock()
	if it.lifetime < 0 {
		return 0
	}
	return it.created + uint64(it.lifetime*1e6)
}

// CollisionGroupAndMask derives the physics collision group and mask.
// sessionID is the local participant.
func (it *Item) CollisionGroupAndMask(sessionID uuid.UUID) (group, mask int16) {
	it.mu.RLock()
	defer it.mu.RUnlock()

	return simulation.CollisionGroupAndMask(simulation.CollisionParams{
		Collisionless: it.collisionless,
		Dynamic:       it.dynamic,
		Moving:        it.isMovingLocked(),
		HasActions:    it.actions.Len() > 0,
		UserMask:      it.collisionMask,
		SimulatorID:   it.owner.Owner().ID,
		SessionID:     sessionID,
	})
}

func (it *Item) isMovingLocked() bool {
	return it.motion.Velocity != (mgl32.Vec3{}) || it.motion.AngularVelocity != (mgl32.Vec3{})
}

// IsMoving reports whether the object has any linear or angular velocity.
func (it *Item) IsMoving() bool {
	it.mu.RLock()
	defer it.mu.RUnlock()
	return it.isMovingLocked()
}

func clampf(v, lo, hi float32) float32 {
	return max(lo, min(v, hi))
}
