// Package simulation holds the physics-side collaborators of an object:
// the registry attached actions are handed to, and the derivation of
// collision group and mask from an object's physical parameters.
package simulation

import "github.com/google/uuid"

// Collision groups as seen by the physics engine.
const (
	GroupStatic        int16 = 1 << 0
	GroupDynamic       int16 = 1 << 1
	GroupKinematic     int16 = 1 << 2
	GroupMyAvatar      int16 = 1 << 3
	GroupOtherAvatar   int16 = 1 << 4
	GroupCollisionless int16 = 1 << 14
)

// Collision groups as exposed to users in an object's collision mask.
const (
	UserGroupDynamic     uint8 = 1 << 0
	UserGroupStatic      uint8 = 1 << 1
	UserGroupKinematic   uint8 = 1 << 2
	UserGroupMyAvatar    uint8 = 1 << 3
	UserGroupOtherAvatar uint8 = 1 << 4

	UserMaskAvatars = UserGroupMyAvatar | UserGroupOtherAvatar
	UserMaskDefault = UserGroupDynamic | UserGroupStatic | UserGroupKinematic | UserMaskAvatars
)

// DefaultMask returns the groups a body in group collides with.
func DefaultMask(group int16) int16 {
	switch group {
	case GroupStatic, GroupKinematic:
		return ^(GroupStatic | GroupKinematic)
	case GroupCollisionless:
		return 0
	default:
		return ^int16(0)
	}
}

// CollisionParams are the object properties that decide its collision
// group and mask.
type CollisionParams struct {
	Collisionless bool
	Dynamic       bool
	Moving        bool
	HasActions    bool
	UserMask      uint8
	SimulatorID   uuid.UUID
	SessionID     uuid.UUID
}

// CollisionGroupAndMask derives the physics group and final mask.
//
// When exactly one avatar bit is set in the user mask and another peer
// simulates the object, the mask is rewritten with
// userMask ^= avatars | ^userMask. That expression sets every bit except
// the avatar bits that were already set, which looks unintended; it is kept
// as is until the intended swap semantics are confirmed.
func CollisionGroupAndMask(p CollisionParams) (group, mask int16) {
	if p.Collisionless {
		return GroupCollisionless, 0
	}

	switch {
	case p.Dynamic:
		group = GroupDynamic
	case p.Moving || p.HasActions:
		group = GroupKinematic
	default:
		group = GroupStatic
	}

	userMask := p.UserMask
	myAvatar := userMask&UserGroupMyAvatar != 0
	otherAvatar := userMask&UserGroupOtherAvatar != 0
	if myAvatar != otherAvatar {
		if p.SimulatorID != uuid.Nil && p.SimulatorID != p.SessionID {
			userMask ^= UserMaskAvatars | ^userMask
		}
	}

	return group, DefaultMask(group) & int16(userMask)
}
