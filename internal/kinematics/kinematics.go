// Package kinematics rolls an un-actuated body forward in time the same way
// the rigid-body solver does, so that extrapolated state agrees with what a
// simulating peer will later report.
package kinematics

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/OCAP2/replicator/pkg/core"
)

const (
	// FixedSubstep matches the physics engine's integration step.
	FixedSubstep float32 = 1.0 / 90.0

	// MaxElapsed bounds a single extrapolation.
	MaxElapsed float32 = 1.0

	// EpsilonAngularSpeed is 0.1 degrees per second.
	EpsilonAngularSpeed float32 = 0.0017453

	// EpsilonLinearSpeed is 1 mm per second.
	EpsilonLinearSpeed float32 = 0.001

	// angularMotionThreshold caps rotation per step at a quarter turn of pi.
	angularMotionThreshold float32 = 0.5 * math.Pi / 2
)

// Motion is the state the extrapolator reads and writes.
type Motion struct {
	core.PoseSet
	Damping        float32
	AngularDamping float32
}

// Advance integrates m forward by elapsed seconds, clamped to [0, 1].
// Angular motion is damped then integrated in fixed substeps. Linear motion
// is damped first, then position is integrated with the damped velocity,
// then acceleration is applied to velocity. Speeds that fall below the
// epsilons are zeroed; when setFlags is true and a non-zero speed was
// zeroed the motion type bit is returned.
func Advance(m *Motion, elapsed float32, setFlags bool) core.DirtyFlags {
	elapsed = clamp(elapsed, 0, MaxElapsed)
	var flags core.DirtyFlags

	if m.AngularVelocity != (mgl32.Vec3{}) {
		if m.AngularDamping > 0 {
			m.AngularVelocity = m.AngularVelocity.Mul(pow(1-m.AngularDamping, elapsed))
		}

		speed := m.AngularVelocity.Len()
		if speed < EpsilonAngularSpeed {
			if setFlags && speed > 0 {
				flags |= core.DirtyMotionType
			}
			m.AngularVelocity = mgl32.Vec3{}
		} else {
			rotation := m.Rotation
			dt := elapsed
			for dt > FixedSubstep {
				dq := RotationStep(m.AngularVelocity, FixedSubstep)
				rotation = dq.Mul(rotation).Normalize()
				dt -= FixedSubstep
			}
			dq := RotationStep(m.AngularVelocity, dt)
			m.Rotation = dq.Mul(rotation).Normalize()
		}
	}

	if m.Velocity != (mgl32.Vec3{}) {
		velocity := m.Velocity
		if m.Damping > 0 {
			velocity = velocity.Mul(pow(1-m.Damping, elapsed))
		}

		position := m.Position.Add(velocity.Mul(elapsed))

		if m.Acceleration != (mgl32.Vec3{}) {
			velocity = velocity.Add(m.Acceleration.Mul(elapsed))
		}

		speed := velocity.Len()
		if speed < EpsilonLinearSpeed {
			m.Velocity = mgl32.Vec3{}
			if setFlags && speed > 0 {
				flags |= core.DirtyMotionType
			}
		} else {
			m.Position = position
			m.Velocity = velocity
		}
	}

	return flags
}

// RotationStep returns the incremental rotation produced by spinning at
// omega for dt seconds, using the exponential map approximation of the
// physics engine. Tiny angles use a Taylor expansion of sin(x)/x.
func RotationStep(omega mgl32.Vec3, dt float32) mgl32.Quat {
	angle := omega.Len()
	if angle*dt > angularMotionThreshold {
		angle = angularMotionThreshold / dt
	}

	var axis mgl32.Vec3
	if angle < 0.001 {
		axis = omega.Mul(0.5*dt - (dt*dt*dt)*(0.020833333333*angle*angle))
	} else {
		axis = omega.Mul(float32(math.Sin(float64(0.5*angle*dt))) / angle)
	}
	return mgl32.Quat{W: float32(math.Cos(float64(0.5 * angle * dt))), V: axis}
}

func pow(base, exp float32) float32 {
	return float32(math.Pow(float64(base), float64(exp)))
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
