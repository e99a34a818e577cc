// pkg/core/pose.go
package core

import "github.com/go-gl/mathgl/mgl32"

// PoseSet is the kinematic snapshot of an object. Each object keeps an
// internal copy mutated by the physics step and a published copy that
// readers observe between ticks.
type PoseSet struct {
	Position        mgl32.Vec3
	Rotation        mgl32.Quat
	Velocity        mgl32.Vec3
	AngularVelocity mgl32.Vec3
	Acceleration    mgl32.Vec3
}

// NewPoseSet returns a pose at the origin with identity rotation.
func NewPoseSet() PoseSet {
	return PoseSet{Rotation: mgl32.QuatIdent()}
}
