package simulation

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/replicator/internal/action"
)

func TestCollisionGroupAndMask_Groups(t *testing.T) {
	tests := []struct {
		name      string
		params    CollisionParams
		wantGroup int16
		wantMask  int16
	}{
		{"collisionless", CollisionParams{Collisionless: true, Dynamic: true, UserMask: UserMaskDefault}, GroupCollisionless, 0},
		{"dynamic", CollisionParams{Dynamic: true, UserMask: UserMaskDefault}, GroupDynamic, int16(UserMaskDefault)},
		{"moving is kinematic", CollisionParams{Moving: true, UserMask: UserMaskDefault}, GroupKinematic, int16(UserMaskDefault) &^ (GroupStatic | GroupKinematic)},
		{"actions are kinematic", CollisionParams{HasActions: true, UserMask: UserMaskDefault}, GroupKinematic, int16(UserMaskDefault) &^ (GroupStatic | GroupKinematic)},
		{"static", CollisionParams{UserMask: UserMaskDefault}, GroupStatic, int16(UserMaskDefault) &^ (GroupStatic | GroupKinematic)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			group, mask := CollisionGroupAndMask(tt.params)
			assert.Equal(t, tt.wantGroup, group)
			assert.Equal(t, tt.wantMask, mask)
		})
	}
}

func TestCollisionGroupAndMask_AsymmetricAvatarBits(t *testing.T) {
	session := uuid.New()
	userMask := UserGroupDynamic | UserGroupMyAvatar

	// simulated locally: mask is used as given
	_, mask := CollisionGroupAndMask(CollisionParams{Dynamic: true, UserMask: userMask, SimulatorID: session, SessionID: session})
	assert.Equal(t, int16(userMask), mask)

	// nobody simulates: mask is used as given
	_, mask = CollisionGroupAndMask(CollisionParams{Dynamic: true, UserMask: userMask, SessionID: session})
	assert.Equal(t, int16(userMask), mask)

	// another peer simulates: the literal rewrite keeps every bit except the
	// avatar bit that was set
	_, mask = CollisionGroupAndMask(CollisionParams{Dynamic: true, UserMask: userMask, SimulatorID: uuid.New(), SessionID: session})
	assert.Equal(t, int16(0xff&^uint8(UserGroupMyAvatar)), mask)
}

func TestDefaultMask(t *testing.T) {
	assert.Equal(t, ^int16(0), DefaultMask(GroupDynamic))
	assert.Equal(t, int16(0), DefaultMask(GroupCollisionless))
	assert.Equal(t, DefaultMask(GroupStatic), DefaultMask(GroupKinematic))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	owner := uuid.New()
	a, err := action.NewConstraint(action.TypeSpring, uuid.New(), owner, nil)
	require.NoError(t, err)
	b, err := action.NewConstraint(action.TypeOffset, uuid.New(), owner, nil)
	require.NoError(t, err)

	r.AddAction(a)
	r.AddAction(b)
	r.AddAction(a)

	assert.Equal(t, 2, r.Len())
	assert.ElementsMatch(t, []uuid.UUID{a.ID(), b.ID()}, r.ActionsFor(owner))

	got, ok := r.Get(a.ID())
	assert.True(t, ok)
	assert.Equal(t, a.ID(), got.ID())

	r.RemoveFromSimulation(a)
	r.RemoveFromSimulation(a)
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, []uuid.UUID{b.ID()}, r.ActionsFor(owner))

	r.RemoveFromSimulation(b)
	assert.Empty(t, r.ActionsFor(owner))
}
