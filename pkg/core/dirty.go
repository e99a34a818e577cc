// pkg/core/dirty.go
package core

import "strings"

// DirtyFlags records which aspects of an object changed since the simulation
// driver last consumed them. Mutators return the bits they touched and the
// owning object ORs them into its accumulated set.
type DirtyFlags uint32

const (
	DirtyPosition DirtyFlags = 1 << iota
	DirtyRotation
	DirtyLinearVelocity
	DirtyAngularVelocity
	DirtyMass
	DirtyCollisionGroup
	DirtyMotionType
	DirtyShape
	DirtyLifetime
	DirtyUpdateable
	DirtyMaterial
	DirtyPhysicsActivation
	DirtySimulatorID
	DirtySimulatorOwnership
)

const (
	DirtyTransform  = DirtyPosition | DirtyRotation
	DirtyVelocities = DirtyLinearVelocity | DirtyAngularVelocity
)

var dirtyNames = []struct {
	flag DirtyFlags
	name string
}{
	{DirtyPosition, "position"},
	{DirtyRotation, "rotation"},
	{DirtyLinearVelocity, "linearVelocity"},
	{DirtyAngularVelocity, "angularVelocity"},
	{DirtyMass, "mass"},
	{DirtyCollisionGroup, "collisionGroup"},
	{DirtyMotionType, "motionType"},
	{DirtyShape, "shape"},
	{DirtyLifetime, "lifetime"},
	{DirtyUpdateable, "updateable"},
	{DirtyMaterial, "material"},
	{DirtyPhysicsActivation, "physicsActivation"},
	{DirtySimulatorID, "simulatorId"},
	{DirtySimulatorOwnership, "simulatorOwnership"},
}

// Has reports whether any bit of mask is set.
func (f DirtyFlags) Has(mask DirtyFlags) bool {
	return f&mask != 0
}

func (f DirtyFlags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	for _, n := range dirtyNames {
		if f&n.flag != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}
