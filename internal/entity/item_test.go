package entity

import (
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/replicator/internal/action"
	"github.com/OCAP2/replicator/internal/clock"
	"github.com/OCAP2/replicator/internal/codec"
	"github.com/OCAP2/replicator/internal/ownership"
	"github.com/OCAP2/replicator/internal/simulation"
	"github.com/OCAP2/replicator/pkg/core"
)

const t0 = uint64(1_700_000_000_000_000)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestItem(id uuid.UUID, clk clock.Clock, opts ...Option) *Item {
	opts = append([]Option{WithClock(clk), WithLogger(discardLogger())}, opts...)
	return New(id, core.ObjectTypeBox, opts...)
}

// fullProperties sets every property to a non-default value.
func fullProperties(owner uuid.UUID) Properties {
	p := Properties{
		SimulationOwner:   ownership.New(owner, ownership.PriorityScript),
		Position:          mgl32.Vec3{1, 2, 3},
		Rotation:          mgl32.QuatRotate(0.5, mgl32.Vec3{0, 1, 0}),
		Velocity:          mgl32.Vec3{0.5, 0, -0.25},
		AngularVelocity:   mgl32.Vec3{0, 0.3, 0},
		Acceleration:      mgl32.Vec3{0, -1, 0},
		Dimensions:        mgl32.Vec3{1, 2, 3},
		Density:           500,
		Gravity:           mgl32.Vec3{0, -9.8, 0},
		Damping:           0.2,
		Restitution:       0.3,
		Friction:          0.8,
		Lifetime:          30,
		Script:            "print('hi')",
		ScriptTimestamp:   42,
		RegistrationPoint: mgl32.Vec3{0.5, 0, 0.5},
		AngularDamping:    0.1,
		Visible:           false,
		Collisionless:     true,
		CollisionMask:     simulation.UserGroupDynamic | simulation.UserGroupStatic,
		Dynamic:           true,
		Locked:            true,
		UserData:          `{"grabbable":true}`,
		MarketplaceID:     "mp-1",
		Name:              "crate",
		CollisionSoundURL: "https://example.com/thud.wav",
		Href:              "hifi://sandbox/1,2,3",
		Description:       "a wooden crate",
		ParentID:          uuid.New(),
		ParentJointIndex:  3,
		QueryAACube:       AACube{Corner: mgl32.Vec3{-1, -1, -1}, Scale: 2},
	}
	p.Changed = AllProperties.Without(PropActionData)
	return p
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	clk := clock.NewManual(t0)
	id := uuid.New()

	src := newTestItem(id, clk)
	src.RecordCreationTime()
	require.True(t, src.SetProperties(fullProperties(uuid.New())))

	data, state, didntFit := src.Encode(1400)
	require.Equal(t, Completed, state)
	assert.True(t, didntFit.IsEmpty())

	dst := newTestItem(id, clk)
	n, err := dst.ReadFrom(data, ReadArgs{})
	require.NoError(t, err)
	assert.Equal(t, len(data), n)

	assert.Equal(t, src.GetProperties(), dst.GetProperties())
	assert.Equal(t, src.LastEdited(), dst.LastEdited())
	assert.Equal(t, src.Created(), dst.Created())
}

func TestDecode_UnflaggedPropertiesUntouched(t *testing.T) {
	clk := clock.NewManual(t0)
	id := uuid.New()

	src := newTestItem(id, clk)
	src.SetProperties(fullProperties(uuid.Nil))

	buf := codec.NewPacketBuffer(1400)
	state := src.AppendTo(buf, &EncodeParams{Requested: codec.NewPropertyFlags(PropName, PropDensity)})
	require.Equal(t, Completed, state)

	dst := newTestItem(id, clk)
	before := dst.GetProperties()

	res, err := dst.Decode(buf.Bytes(), ReadArgs{})
	require.NoError(t, err)
	assert.Equal(t, codec.NewPropertyFlags(PropName, PropDensity), res.Applied)

	after := dst.GetProperties()
	assert.Equal(t, "crate", after.Name)
	assert.Equal(t, float32(500), after.Density)

	after.Name, after.Density = before.Name, before.Density
	assert.Equal(t, before, after)
}

func TestDecode_ClampsFutureEditAndRemovesSkew(t *testing.T) {
	id := uuid.New()
	remote := clock.NewManual(t0 + 5_000_000)
	src := newTestItem(id, remote)
	src.SetProperties(Properties{Name: "x", Changed: codec.NewPropertyFlags(PropName)})
	data, _, _ := src.Encode(1400)

	t.Run("skew removed", func(t *testing.T) {
		dst := newTestItem(id, clock.NewManual(t0+1_000))
		_, err := dst.ReadFrom(data, ReadArgs{ClockSkew: 5_000_000})
		require.NoError(t, err)
		assert.Equal(t, t0, dst.LastEdited())
	})

	t.Run("future clamped to now", func(t *testing.T) {
		dst := newTestItem(id, clock.NewManual(t0))
		_, err := dst.ReadFrom(data, ReadArgs{})
		require.NoError(t, err)
		assert.Equal(t, t0, dst.LastEdited())
	})
}

func TestDecode_IgnoresStalePacketButAppliesOwnership(t *testing.T) {
	clk := clock.NewManual(t0)
	id := uuid.New()
	remoteOwner := uuid.New()

	src := newTestItem(id, clk)
	p := fullProperties(remoteOwner)
	src.SetProperties(p)
	data, _, _ := src.Encode(1400)

	dst := newTestItem(id, clk)
	clk.Advance(time.Second)
	dst.SetProperties(Properties{Name: "local", Changed: codec.NewPropertyFlags(PropName)})
	localEdit := dst.LastEdited()

	res, err := dst.Decode(data, ReadArgs{})
	require.NoError(t, err)
	assert.True(t, res.Ignored)
	assert.Equal(t, IgnoreStale, res.IgnoreReason)
	assert.Equal(t, codec.NewPropertyFlags(PropSimulationOwner), res.Applied)

	assert.Equal(t, "local", dst.GetProperties(PropName).Name)
	assert.Equal(t, localEdit, dst.LastEdited())
	assert.Equal(t, remoteOwner, dst.Owner().ID)
	assert.True(t, dst.DirtyFlags().Has(core.DirtySimulatorID))
}

func TestDecode_SameEditDedup(t *testing.T) {
	clk := clock.NewManual(t0)
	id := uuid.New()

	src := newTestItem(id, clk)
	src.SetProperties(Properties{Name: "remote", Changed: codec.NewPropertyFlags(PropName)})
	data, _, _ := src.Encode(1400)

	dst := newTestItem(id, clk)
	res, err := dst.Decode(data, ReadArgs{})
	require.NoError(t, err)
	require.False(t, res.Ignored)

	// A repeat with no local edit in between is applied again.
	clk.Advance(100 * time.Millisecond)
	res, err = dst.Decode(data, ReadArgs{})
	require.NoError(t, err)
	assert.False(t, res.Ignored)

	// After a local edit the repeat is dropped.
	clk.Advance(100 * time.Millisecond)
	dst.SetProperties(Properties{Name: "local", Changed: codec.NewPropertyFlags(PropName)})
	res, err = dst.Decode(data, ReadArgs{})
	require.NoError(t, err)
	assert.True(t, res.Ignored)
	assert.Equal(t, "local", dst.GetProperties(PropName).Name)
}

func TestDecode_IgnoresDeletedObject(t *testing.T) {
	clk := clock.NewManual(t0)
	id := uuid.New()
	src := newTestItem(id, clk)
	src.SetProperties(Properties{Name: "ghost", Changed: codec.NewPropertyFlags(PropName)})
	data, _, _ := src.Encode(1400)

	dst := newTestItem(id, clk)
	res, err := dst.Decode(data, ReadArgs{IsDeleted: func(uuid.UUID) bool { return true }})
	require.NoError(t, err)
	assert.True(t, res.Ignored)
	assert.Equal(t, IgnoreDeleted, res.IgnoreReason)
	assert.Empty(t, dst.GetProperties(PropName).Name)
	assert.Zero(t, dst.LastEdited())
}

func TestDecode_SelfOwnedObjectKeepsItsMotion(t *testing.T) {
	clk := clock.NewManual(t0)
	id := uuid.New()
	local := uuid.New()
	other := uuid.New()

	tests := []struct {
		name          string
		packetOwner   uuid.UUID
		wantSimulated uint64
	}{
		{"still ours after packet", local, 0},
		{"handed to another peer", other, t0 + 1_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk.Set(t0)
			src := newTestItem(id, clk)
			src.SetProperties(Properties{
				SimulationOwner: ownership.New(tt.packetOwner, ownership.PriorityScript),
				Position:        mgl32.Vec3{10, 0, 0},
				Name:            "moved",
				Changed:         codec.NewPropertyFlags(PropSimulationOwner, PropPosition, PropName),
			})
			data, _, _ := src.Encode(1400)

			dst := newTestItem(id, clk)
			require.True(t, dst.ContestOwnership(ownership.New(local, ownership.PriorityVolunteer)))

			clk.Set(t0 + 1_000)
			res, err := dst.Decode(data, ReadArgs{LocalID: local})
			require.NoError(t, err)
			require.False(t, res.Ignored)

			assert.False(t, res.Applied.Has(PropPosition))
			assert.Equal(t, mgl32.Vec3{}, dst.GetProperties(PropPosition).Position)
			assert.Equal(t, "moved", dst.GetProperties(PropName).Name)
			assert.Equal(t, tt.packetOwner, dst.Owner().ID)
			assert.Equal(t, tt.wantSimulated, dst.LastSimulated())
		})
	}
}

func TestDecode_ExtrapolatesOverTransitDelay(t *testing.T) {
	id := uuid.New()
	remote := clock.NewManual(t0)
	src := newTestItem(id, remote)
	src.SetProperties(Properties{
		Velocity: mgl32.Vec3{1, 0, 0},
		Changed:  codec.NewPropertyFlags(PropVelocity),
	})
	data, _, _ := src.Encode(1400)

	dst := newTestItem(id, clock.NewManual(t0+500_000))
	res, err := dst.Decode(data, ReadArgs{})
	require.NoError(t, err)
	require.True(t, res.Dirty.Has(core.DirtyLinearVelocity))

	damped := float32(math.Pow(1-float64(DefaultDamping), 0.5))
	got := dst.GetProperties(PropPosition, PropVelocity)
	assert.InDelta(t, 0.5*damped, got.Position.X(), 1e-5)
	assert.InDelta(t, damped, got.Velocity.X(), 1e-5)
	assert.False(t, res.Dirty.Has(core.DirtyMotionType))
	assert.Equal(t, t0+500_000, dst.LastSimulated())
}

func TestDecode_NoTransitExtrapolationWhileActionsAttached(t *testing.T) {
	id := uuid.New()
	src := newTestItem(id, clock.NewManual(t0))
	src.SetProperties(Properties{
		Position: mgl32.Vec3{10, 0, 0},
		Velocity: mgl32.Vec3{1, 0, 0},
		Changed:  codec.NewPropertyFlags(PropPosition, PropVelocity),
	})
	data, _, _ := src.Encode(1400)

	dst := newTestItem(id, clock.NewManual(t0+500_000))
	spring, err := action.NewConstraint(action.TypeSpring, uuid.New(), id, nil)
	require.NoError(t, err)
	require.NoError(t, dst.AddAction(spring))

	res, err := dst.Decode(data, ReadArgs{})
	require.NoError(t, err)
	require.False(t, res.Ignored)

	got := dst.GetProperties(PropPosition, PropVelocity)
	assert.Equal(t, mgl32.Vec3{10, 0, 0}, got.Position)
	assert.Equal(t, mgl32.Vec3{1, 0, 0}, got.Velocity)
}

func TestDecode_TruncatedPacketMutatesNothing(t *testing.T) {
	clk := clock.NewManual(t0)
	id := uuid.New()
	src := newTestItem(id, clk)
	src.RecordCreationTime()
	src.SetProperties(fullProperties(uuid.New()))
	data, _, _ := src.Encode(1400)

	for _, cut := range []int{0, 16, MinPacketSize - 1, MinPacketSize, 40, len(data) / 2, len(data) - 1} {
		dst := newTestItem(id, clk)
		before := dst.GetProperties()

		n, err := dst.ReadFrom(data[:cut], ReadArgs{})
		assert.ErrorIs(t, err, codec.ErrTruncated, "cut at %d", cut)
		assert.Zero(t, n)
		assert.Equal(t, before, dst.GetProperties(), "cut at %d", cut)
		assert.Zero(t, dst.LastEdited())
		assert.Zero(t, dst.Created())
		assert.Zero(t, dst.DirtyFlags())
	}
}

func TestDecode_RejectsOtherObject(t *testing.T) {
	clk := clock.NewManual(t0)
	src := newTestItem(uuid.New(), clk)
	data, _, _ := src.Encode(1400)

	dst := newTestItem(uuid.New(), clk)
	n, err := dst.ReadFrom(data, ReadArgs{})
	assert.ErrorIs(t, err, ErrObjectMismatch)
	assert.Zero(t, n)
}

func TestDecode_CreatedOnlyWhenUnknown(t *testing.T) {
	clk := clock.NewManual(t0)
	id := uuid.New()
	src := newTestItem(id, clk)
	src.UpdateCreated(t0 - 1_000)
	data, _, _ := src.Encode(1400)

	dst := newTestItem(id, clk)
	_, err := dst.ReadFrom(data, ReadArgs{})
	require.NoError(t, err)
	assert.Equal(t, t0-1_000, dst.Created())

	dst.UpdateCreated(t0 - 5)
	_, err = dst.ReadFrom(data, ReadArgs{})
	require.NoError(t, err)
	assert.Equal(t, t0-5, dst.Created())
}

func TestEncode_PartialThenRetry(t *testing.T) {
	clk := clock.NewManual(t0)
	id := uuid.New()
	src := newTestItem(id, clk)
	src.SetProperties(fullProperties(uuid.New()))

	// header 35, flag placeholder 5, owner 19, position 12; rotation needs 16
	buf := codec.NewPacketBuffer(35 + 5 + 19 + 12 + 5)
	var sent []uint64
	params := &EncodeParams{
		TrackSend: func(got uuid.UUID, lastEdited uint64) {
			assert.Equal(t, id, got)
			sent = append(sent, lastEdited)
		},
	}

	state := src.AppendTo(buf, params)
	require.Equal(t, Partial, state)
	assert.Len(t, buf.Bytes(), 35+1+19+12)
	assert.Equal(t, AllProperties.Without(PropSimulationOwner).Without(PropPosition), params.Extra[id])
	assert.Equal(t, []uint64{t0}, sent)

	dst := newTestItem(id, clk)
	res, err := dst.Decode(buf.Bytes(), ReadArgs{})
	require.NoError(t, err)
	assert.Equal(t, codec.NewPropertyFlags(PropSimulationOwner, PropPosition), res.Applied)

	retry := codec.NewPacketBuffer(1400)
	state = src.AppendTo(retry, params)
	require.Equal(t, Completed, state)
	assert.NotContains(t, params.Extra, id)

	res, err = dst.Decode(retry.Bytes(), ReadArgs{})
	require.NoError(t, err)
	assert.False(t, res.Applied.Has(PropPosition))
	assert.True(t, res.Applied.Has(PropQueryAACube))
	assert.Equal(t, src.GetProperties(), dst.GetProperties())
}

func TestEncode_NothingFits(t *testing.T) {
	clk := clock.NewManual(t0)
	src := newTestItem(uuid.New(), clk)

	called := false
	buf := codec.NewPacketBuffer(30)
	params := &EncodeParams{TrackSend: func(uuid.UUID, uint64) { called = true }}

	assert.Equal(t, None, src.AppendTo(buf, params))
	assert.Zero(t, buf.Offset())
	assert.Equal(t, AllProperties, params.Extra[src.ID()])
	assert.False(t, called)

	// room for the header but not for the first property
	buf = codec.NewPacketBuffer(35 + 5 + 10)
	assert.Equal(t, None, src.AppendTo(buf, params))
	assert.Zero(t, buf.Offset())
}

func TestEncode_AppendsAfterExistingData(t *testing.T) {
	clk := clock.NewManual(t0)
	a := newTestItem(uuid.New(), clk)
	b := newTestItem(uuid.New(), clk)
	a.SetProperties(Properties{Name: "a", Changed: codec.NewPropertyFlags(PropName)})
	b.SetProperties(Properties{Name: "b", Changed: codec.NewPropertyFlags(PropName)})

	buf := codec.NewPacketBuffer(1400)
	require.Equal(t, Completed, a.AppendTo(buf, nil))
	require.Equal(t, Completed, b.AppendTo(buf, nil))

	data := buf.Bytes()
	pa, err := ParsePacket(data)
	require.NoError(t, err)
	pb, err := ParsePacket(data[pa.Size:])
	require.NoError(t, err)

	assert.Equal(t, a.ID(), pa.ID)
	assert.Equal(t, "a", pa.Properties.Name)
	assert.Equal(t, b.ID(), pb.ID)
	assert.Equal(t, "b", pb.Properties.Name)
	assert.Equal(t, len(data), pa.Size+pb.Size)
}

func TestAdjustEditPacketForClockSkew(t *testing.T) {
	clk := clock.NewManual(t0)
	src := newTestItem(uuid.New(), clk)
	src.SetProperties(Properties{Name: "x", Changed: codec.NewPropertyFlags(PropName)})
	data, _, _ := src.Encode(1400)

	require.NoError(t, AdjustEditPacketForClockSkew(data, 2_500))
	pkt, err := ParsePacket(data)
	require.NoError(t, err)
	assert.Equal(t, t0+2_500, pkt.LastEdited)

	assert.ErrorIs(t, AdjustEditPacketForClockSkew(data[:20], 1), codec.ErrTruncated)

	id, err := PeekID(data)
	require.NoError(t, err)
	assert.Equal(t, src.ID(), id)
}

func TestSetProperties_Mutators(t *testing.T) {
	clk := clock.NewManual(t0)
	it := newTestItem(uuid.New(), clk)

	it.SetProperties(Properties{
		Velocity:        mgl32.Vec3{0.0001, 0, 0},
		AngularVelocity: mgl32.Vec3{0, 0.0001, 0},
		Density:         1,
		Damping:         2,
		Restitution:     5,
		Friction:        -1,
		CollisionMask:   0xff,
		Dimensions:      mgl32.Vec3{1, 0, 1},
		Href:            "https://not-a-place",
		Changed: codec.NewPropertyFlags(PropVelocity, PropAngularVelocity, PropDensity, PropDamping,
			PropRestitution, PropFriction, PropCollisionMask, PropDimensions, PropHref),
	})

	got := it.GetProperties()
	assert.Equal(t, mgl32.Vec3{}, got.Velocity)
	assert.Equal(t, mgl32.Vec3{}, got.AngularVelocity)
	assert.Equal(t, MinDensity, got.Density)
	assert.Equal(t, float32(1), got.Damping)
	assert.Equal(t, MaxRestitution, got.Restitution)
	assert.Equal(t, MinFriction, got.Friction)
	assert.Equal(t, simulation.UserMaskDefault, got.CollisionMask)
	assert.Equal(t, mgl32.Vec3{DefaultDimension, DefaultDimension, DefaultDimension}, got.Dimensions)
	assert.Empty(t, got.Href)

	flags := it.ConsumeDirtyFlags()
	assert.True(t, flags.Has(core.DirtyMass))
	assert.True(t, flags.Has(core.DirtyMaterial))
	assert.False(t, flags.Has(core.DirtyShape))
	assert.Zero(t, it.DirtyFlags())
}

func TestSetProperties_StampsEditAndSimulation(t *testing.T) {
	clk := clock.NewManual(t0)
	it := newTestItem(uuid.New(), clk)

	assert.False(t, it.SetProperties(Properties{}))
	assert.Zero(t, it.LastEdited())

	clk.Advance(time.Second)
	assert.True(t, it.SetProperties(Properties{Name: "n", Changed: codec.NewPropertyFlags(PropName)}))
	assert.Equal(t, t0+1_000_000, it.LastEdited())
	assert.Zero(t, it.LastSimulated())

	clk.Advance(time.Second)
	it.SetProperties(Properties{Position: mgl32.Vec3{1, 0, 0}, Changed: codec.NewPropertyFlags(PropPosition)})
	assert.Equal(t, t0+2_000_000, it.LastSimulated())

	it.SetProperties(Properties{Created: t0 + 9_000_000})
	assert.Equal(t, t0+2_000_000, it.Created(), "future created clamps to now")
}

func TestGetProperties_Subsets(t *testing.T) {
	it := newTestItem(uuid.New(), clock.NewManual(t0))

	p := it.GetProperties(PropName, PropDensity)
	assert.Equal(t, codec.NewPropertyFlags(PropName, PropDensity), p.Changed)
	assert.Equal(t, DefaultDensity, p.Density)

	assert.Equal(t, TerseUpdateProperties, it.TerseUpdate().Changed)
	assert.Equal(t, "queryAACube", PropertyName(PropQueryAACube))
	prop, ok := PropertyByName("angularDamping")
	assert.True(t, ok)
	assert.Equal(t, PropAngularDamping, prop)
}

func TestItem_ActionsReplicate(t *testing.T) {
	clk := clock.NewManual(t0)
	id := uuid.New()
	src := newTestItem(id, clk)

	spring, err := action.NewConstraint(action.TypeSpring, uuid.New(), id, action.Arguments{
		"targetPosition":  []any{1.0, 2.0, 3.0},
		"linearTimeScale": 0.5,
	})
	require.NoError(t, err)
	require.NoError(t, src.AddAction(spring))
	assert.True(t, src.ConsumeDirtyFlags().Has(core.DirtyPhysicsActivation))

	data, state, _ := src.Encode(1400)
	require.Equal(t, Completed, state)

	registry := simulation.NewRegistry()
	dst := newTestItem(id, clk, WithSimulation(registry))
	_, err = dst.ReadFrom(data, ReadArgs{})
	require.NoError(t, err)

	assert.Equal(t, []uuid.UUID{spring.ID()}, dst.ActionIDs())
	assert.Equal(t, 1, registry.Len())
	assert.Equal(t, src.ActionData(), dst.ActionData())
	assert.Equal(t, "spring", dst.ActionArguments(spring.ID())["type"])
	assert.Len(t, dst.ActionsOfType(action.TypeSpring), 1)
	assert.True(t, dst.DirtyFlags().Has(core.DirtyPhysicsActivation))

	assert.True(t, dst.RemoveAction(spring.ID()))
	assert.True(t, dst.IsActionDeleted(spring.ID()))
	assert.False(t, dst.HasActions())
	assert.Zero(t, registry.Len())
}

func TestItem_HoldSuppressesLocationEdits(t *testing.T) {
	clk := clock.NewManual(t0)
	it := newTestItem(uuid.New(), clk)

	hold, err := action.NewConstraint(action.TypeHold, uuid.New(), it.ID(), nil)
	require.NoError(t, err)
	require.NoError(t, it.AddAction(hold))

	it.SetProperties(Properties{
		Position: mgl32.Vec3{5, 5, 5},
		Velocity: mgl32.Vec3{1, 0, 0},
		Changed:  codec.NewPropertyFlags(PropPosition, PropVelocity),
	})
	got := it.GetProperties(PropPosition, PropVelocity)
	assert.Equal(t, mgl32.Vec3{}, got.Position)
	assert.Equal(t, mgl32.Vec3{}, got.Velocity)

	it.ClearActions()
	it.SetProperties(Properties{Position: mgl32.Vec3{5, 5, 5}, Changed: codec.NewPropertyFlags(PropPosition)})
	assert.Equal(t, mgl32.Vec3{5, 5, 5}, it.GetProperties(PropPosition).Position)
}

func TestItem_UpdateActionOverflow(t *testing.T) {
	clk := clock.NewManual(t0)
	it := newTestItem(uuid.New(), clk, WithMaxActionsDataSize(120))

	spring, err := action.NewConstraint(action.TypeSpring, uuid.New(), it.ID(), nil)
	require.NoError(t, err)
	require.NoError(t, it.AddAction(spring))
	before := it.ActionData()

	ok, err := it.UpdateAction(spring.ID(), action.Arguments{"tag": string(make([]byte, 200))})
	assert.ErrorIs(t, err, action.ErrBlobOverflow)
	assert.False(t, ok)
	assert.Equal(t, before, it.ActionData())

	ok, err = it.UpdateAction(spring.ID(), action.Arguments{"linearTimeScale": 2.0})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2.0, it.ActionArguments(spring.ID())["linearTimeScale"])

	assert.Error(t, it.SetActionData([]byte{1, 2, 3}))
}

func TestSimulate_ExtrapolatesAndPublishes(t *testing.T) {
	clk := clock.NewManual(t0)
	it := newTestItem(uuid.New(), clk)
	it.SetProperties(Properties{
		Velocity: mgl32.Vec3{2, 0, 0},
		Damping:  0,
		Changed:  codec.NewPropertyFlags(PropVelocity, PropDamping),
	})
	assert.Equal(t, mgl32.Vec3{}, it.Pose().Velocity, "nothing published yet")

	it.Simulate(t0 + 250_000)
	pose := it.Pose()
	assert.InDelta(t, 0.5, pose.Position.X(), 1e-6)
	assert.Equal(t, mgl32.Vec3{2, 0, 0}, pose.Velocity)
	assert.Equal(t, t0+250_000, it.LastSimulated())
}

func TestSimulate_SkippedWhileActionsAttached(t *testing.T) {
	clk := clock.NewManual(t0)
	it := newTestItem(uuid.New(), clk)
	it.SetProperties(Properties{Velocity: mgl32.Vec3{2, 0, 0}, Changed: codec.NewPropertyFlags(PropVelocity)})

	spring, err := action.NewConstraint(action.TypeSpring, uuid.New(), it.ID(), nil)
	require.NoError(t, err)
	require.NoError(t, it.AddAction(spring))

	it.SimulateKinematicMotion(0.5, true)
	assert.Equal(t, mgl32.Vec3{}, it.GetProperties(PropPosition).Position)
}

func TestSimulate_ZeroingSlowMotionFlagsMotionType(t *testing.T) {
	it := newTestItem(uuid.New(), clock.NewManual(t0))
	it.SetProperties(Properties{
		Velocity: mgl32.Vec3{0.0015, 0, 0},
		Damping:  0.9,
		Changed:  codec.NewPropertyFlags(PropVelocity, PropDamping),
	})
	it.ConsumeDirtyFlags()

	it.SimulateKinematicMotion(1, true)
	assert.True(t, it.ConsumeDirtyFlags().Has(core.DirtyMotionType))
	assert.Equal(t, mgl32.Vec3{}, it.GetProperties(PropVelocity).Velocity)
}

func TestItem_MassAndLifetime(t *testing.T) {
	clk := clock.NewManual(t0)
	it := newTestItem(uuid.New(), clk)
	it.RecordCreationTime()

	it.SetMass(0.5)
	assert.InDelta(t, 0.5, it.ComputeMass(), 1e-4)
	it.SetMass(100)
	assert.Equal(t, MaxDensity, it.GetProperties(PropDensity).Density)

	assert.False(t, it.IsMortal())
	assert.Zero(t, it.Expiry())

	it.SetProperties(Properties{Lifetime: 2, Changed: codec.NewPropertyFlags(PropLifetime)})
	assert.True(t, it.IsMortal())
	assert.Equal(t, t0+2_000_000, it.Expiry())
	assert.False(t, it.LifetimeHasExpired())

	clk.Advance(3 * time.Second)
	assert.True(t, it.LifetimeHasExpired())
	assert.InDelta(t, 3, it.Age(), 1e-3)

	sphere := New(uuid.New(), core.ObjectTypeSphere, WithClock(clk), WithLogger(discardLogger()))
	sphere.SetProperties(Properties{Dimensions: mgl32.Vec3{1, 1, 1}, Changed: codec.NewPropertyFlags(PropDimensions)})
	assert.InDelta(t, DefaultDensity*math.Pi/6, sphere.ComputeMass(), 1e-2)
}

func TestItem_CollisionGroupAndMask(t *testing.T) {
	clk := clock.NewManual(t0)
	session := uuid.New()
	it := newTestItem(uuid.New(), clk)

	group, mask := it.CollisionGroupAndMask(session)
	assert.Equal(t, simulation.GroupStatic, group)
	assert.Equal(t, int16(0b11010), mask)

	it.SetProperties(Properties{Dynamic: true, Changed: codec.NewPropertyFlags(PropDynamic)})
	group, mask = it.CollisionGroupAndMask(session)
	assert.Equal(t, simulation.GroupDynamic, group)
	assert.Equal(t, int16(simulation.UserMaskDefault), mask)

	it.SetProperties(Properties{Collisionless: true, Changed: codec.NewPropertyFlags(PropCollisionless)})
	group, mask = it.CollisionGroupAndMask(session)
	assert.Equal(t, simulation.GroupCollisionless, group)
	assert.Zero(t, mask)
}

func TestItem_Ownership(t *testing.T) {
	it := newTestItem(uuid.New(), clock.NewManual(t0))
	a, b := uuid.New(), uuid.New()

	assert.True(t, it.ContestOwnership(ownership.New(a, ownership.PriorityVolunteer)))
	assert.False(t, it.ContestOwnership(ownership.New(b, ownership.PriorityVolunteer)))
	assert.True(t, it.IsSelfOwned(a))

	assert.True(t, it.PromoteOwnershipPriority(ownership.PriorityScript))
	assert.True(t, it.ConsumeDirtyFlags().Has(core.DirtySimulatorOwnership))

	it.ClearOwnership()
	assert.True(t, it.Owner().IsNull())
	assert.Zero(t, it.DirtyFlags())
}

func TestItem_ConcurrentAccess(t *testing.T) {
	clk := clock.NewManual(t0)
	id := uuid.New()
	src := newTestItem(id, clk)
	src.SetProperties(fullProperties(uuid.New()))
	data, _, _ := src.Encode(1400)

	it := newTestItem(id, clk)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = it.Pose()
			}
		}()
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				it.Simulate(t0 + uint64(i*1000+j))
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = it.ReadFrom(data, ReadArgs{})
				_, _, _ = it.Encode(1400)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, "crate", it.GetProperties(PropName).Name)
}
