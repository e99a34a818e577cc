// Package entity holds the replicated state of one object in the shared
// world: its properties, timestamps, simulation claim and attached actions,
// together with the binary encoder and decoder for that state.
package entity

import (
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"github.com/OCAP2/replicator/internal/action"
	"github.com/OCAP2/replicator/internal/clock"
	"github.com/OCAP2/replicator/internal/codec"
	"github.com/OCAP2/replicator/internal/kinematics"
	"github.com/OCAP2/replicator/internal/ownership"
	"github.com/OCAP2/replicator/internal/simulation"
	"github.com/OCAP2/replicator/pkg/core"
)

// ErrObjectMismatch is returned when a packet describes a different object.
var ErrObjectMismatch = errors.New("packet is for a different object")

// Lifetime of an object that never expires.
const Immortal float32 = -1

const (
	MinDensity     float32 = 100
	MaxDensity     float32 = 10000
	DefaultDensity float32 = 1000

	MinRestitution float32 = 0
	MaxRestitution float32 = 0.99
	MinFriction    float32 = 0
	MaxFriction    float32 = 10

	DefaultDamping     float32 = 0.39
	DefaultRestitution float32 = 0.5
	DefaultFriction    float32 = 0.5
	DefaultDimension   float32 = 0.1

	minLinearSpeed  float32 = 0.001
	minAngularSpeed float32 = 0.0002
	minVolume       float32 = 1.0e-6
)

// HrefScheme is the only scheme accepted for an object's href.
const HrefScheme = "hifi://"

// Item is one replicated object. All methods are safe for concurrent use.
//
// Two locks guard it. mu covers every scalar, the timestamps, the internal
// pose and the action ledger. poseMu covers only the published pose, which
// readers can fetch without waiting for a decode or a tick to finish. When
// both are needed mu is taken first.
type Item struct {
	id  uuid.UUID
	typ core.ObjectType

	mu sync.RWMutex

	created                          uint64
	lastEdited                       uint64
	lastUpdated                      uint64
	lastSimulated                    uint64
	lastEditedFromRemote             uint64
	lastEditedFromRemoteInRemoteTime uint64

	dirty  core.DirtyFlags
	owner  ownership.Arbiter
	motion kinematics.Motion

	gravity           mgl32.Vec3
	dimensions        mgl32.Vec3
	registrationPoint mgl32.Vec3
	density           float32
	volumeMultiplier  float32
	restitution       float32
	friction          float32
	lifetime          float32

	visible       bool
	collisionless bool
	collisionMask uint8
	dynamic       bool
	locked        bool

	script            string
	scriptTimestamp   uint64
	userData          string
	marketplaceID     string
	name              string
	collisionSoundURL string
	href              string
	description       string
	parentID          uuid.UUID
	parentJointIndex  uint16
	queryAACube       AACube

	actions *action.Ledger

	poseMu sync.RWMutex
	pose   core.PoseSet

	clock  clock.Clock
	logger *slog.Logger
}

// Option configures an Item.
type Option func(*options)

type options struct {
	clock          clock.Clock
	logger         *slog.Logger
	sim            action.Simulation
	factory        action.Factory
	maxActionsSize int
	rememberFor    time.Duration
}

func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithSimulation attaches the registry that actions are handed to.
func WithSimulation(sim action.Simulation) Option {
	return func(o *options) { o.sim = sim }
}

func WithActionFactory(f action.Factory) Option {
	return func(o *options) { o.factory = f }
}

func WithMaxActionsDataSize(n int) Option {
	return func(o *options) { o.maxActionsSize = n }
}

func WithRememberDeletedActionTime(d time.Duration) Option {
	return func(o *options) { o.rememberFor = d }
}

// New creates an object with default properties and an unknown creation
// time.
func New(id uuid.UUID, typ core.ObjectType, opts ...Option) *Item {
	cfg := options{
		clock:          clock.System{},
		logger:         slog.Default(),
		factory:        action.ConstraintFactory{},
		maxActionsSize: action.DefaultMaxDataSize,
		rememberFor:    action.DefaultRememberDeletedFor,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := cfg.logger.With("object", id)
	it := &Item{
		id:  id,
		typ: typ,
		motion: kinematics.Motion{
			PoseSet:        core.NewPoseSet(),
			Damping:        DefaultDamping,
			AngularDamping: DefaultDamping,
		},
		dimensions:        mgl32.Vec3{DefaultDimension, DefaultDimension, DefaultDimension},
		registrationPoint: mgl32.Vec3{0.5, 0.5, 0.5},
		density:           DefaultDensity,
		volumeMultiplier:  volumeMultiplier(typ),
		restitution:       DefaultRestitution,
		friction:          DefaultFriction,
		lifetime:          Immortal,
		visible:           true,
		collisionMask:     simulation.UserMaskDefault,
		pose:              core.NewPoseSet(),
		clock:             cfg.clock,
		logger:            logger,
	}
	it.actions = action.NewLedger(id,
		action.WithMaxDataSize(cfg.maxActionsSize),
		action.WithRememberDeleted(cfg.rememberFor),
		action.WithSimulation(cfg.sim),
		action.WithFactory(cfg.factory),
		action.WithClock(cfg.clock),
		action.WithLogger(logger),
	)
	return it
}

func volumeMultiplier(typ core.ObjectType) float32 {
	if typ == core.ObjectTypeSphere {
		return math.Pi / 6
	}
	return 1
}

func (it *Item) ID() uuid.UUID { return it.id }

func (it *Item) Type() core.ObjectType { return it.typ }

// RecordCreationTime stamps a locally created object.
func (it *Item) RecordCreationTime() {
	it.mu.Lock()
	defer it.mu.Unlock()

	now := it.clock.Now()
	if it.created == 0 {
		it.created = now
	}
	it.lastEdited = it.created
	it.lastUpdated = now
	it.lastSimulated = now
}

func (it *Item) Created() uint64 {
	it.mu.RLock()
	defer it.mu.RUnlock()
	return it.created
}

func (it *Item) LastEdited() uint64 {
	it.mu.RLock()
	defer it.mu.RUnlock()
	return it.lastEdited
}

func (it *Item) LastUpdated() uint64 {
	it.mu.RLock()
	defer it.mu.RUnlock()
	return it.lastUpdated
}

func (it *Item) LastSimulated() uint64 {
	it.mu.RLock()
	defer it.mu.RUnlock()
	return it.lastSimulated
}

// LastEditedFromRemote is the local time at which the last accepted network
// edit arrived.
func (it *Item) LastEditedFromRemote() uint64 {
	it.mu.RLock()
	defer it.mu.RUnlock()
	return it.lastEditedFromRemote
}

// MarkEdited stamps a local edit at the current time.
func (it *Item) MarkEdited() {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.lastEdited = it.clock.Now()
}

// Owner returns the current simulation claim.
func (it *Item) Owner() ownership.Owner {
	it.mu.RLock()
	defer it.mu.RUnlock()
	return it.owner.Owner()
}

// IsSelfOwned reports whether localID currently simulates the object.
func (it *Item) IsSelfOwned(localID uuid.UUID) bool {
	it.mu.RLock()
	defer it.mu.RUnlock()
	return it.owner.IsSelfOwned(localID)
}

// ContestOwnership applies a locally originated claim using the priority
// rules of ownership.Arbiter.Contest.
func (it *Item) ContestOwnership(o ownership.Owner) bool {
	it.mu.Lock()
	defer it.mu.Unlock()
	if !it.owner.Contest(o) {
		return false
	}
	it.dirty |= core.DirtySimulatorID
	return true
}

// PromoteOwnershipPriority raises or lowers the priority of the current
// claim.
func (it *Item) PromoteOwnershipPriority(priority uint8) bool {
	it.mu.Lock()
	defer it.mu.Unlock()
	if !it.owner.UpdatePriority(priority) {
		return false
	}
	it.dirty |= core.DirtySimulatorOwnership
	return true
}

// ClearOwnership drops the claim without marking anything dirty.
func (it *Item) ClearOwnership() {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.owner.Clear()
}

// DirtyFlags returns the accumulated change set without consuming it.
func (it *Item) DirtyFlags() core.DirtyFlags {
	it.mu.RLock()
	defer it.mu.RUnlock()
	return it.dirty
}

// ConsumeDirtyFlags returns the accumulated change set and resets it.
func (it *Item) ConsumeDirtyFlags() core.DirtyFlags {
	it.mu.Lock()
	defer it.mu.Unlock()
	flags := it.dirty
	it.dirty = 0
	return flags
}

// Pose returns the last published pose.
func (it *Item) Pose() core.PoseSet {
	it.poseMu.RLock()
	defer it.poseMu.RUnlock()
	return it.pose
}

// Publish copies the internal pose to the published one.
func (it *Item) Publish() {
	it.mu.RLock()
	defer it.mu.RUnlock()
	it.publishLocked()
}

func (it *Item) publishLocked() {
	it.poseMu.Lock()
	defer it.poseMu.Unlock()
	it.pose = it.motion.PoseSet
}

// GetProperties returns the requested properties. An empty set returns all
// of them.
func (it *Item) GetProperties(desired ...int) Properties {
	it.mu.RLock()
	defer it.mu.RUnlock()

	want := AllProperties
	if len(desired) > 0 {
		want = 0
		for _, prop := range desired {
			want = want.With(prop)
		}
	}
	return it.propertiesLocked(want)
}

// TerseUpdate returns the transform and its derivatives.
func (it *Item) TerseUpdate() Properties {
	it.mu.RLock()
	defer it.mu.RUnlock()
	return it.propertiesLocked(TerseUpdateProperties)
}

func (it *Item) propertiesLocked(want codec.PropertyFlags) Properties {
	p := Properties{ID: it.id, Type: it.typ, Created: it.created}
	for i := range descriptors {
		d := &descriptors[i]
		if want.Has(d.prop) {
			d.get(it, &p)
		}
	}
	return p
}

// SetProperties applies every property flagged in p through the same
// mutators the decoder uses. Any flagged property counts as an edit and
// stamps lastEdited; a transform or velocity change also restarts
// extrapolation from now.
func (it *Item) SetProperties(p Properties) bool {
	it.mu.Lock()
	defer it.mu.Unlock()

	now := it.clock.Now()
	var dirty core.DirtyFlags
	for i := range descriptors {
		d := &descriptors[i]
		if p.Changed.Has(d.prop) {
			dirty |= d.apply(it, &p)
		}
	}
	it.dirty |= dirty

	changed := !p.Changed.IsEmpty()
	if changed {
		it.lastEdited = now
		if dirty.Has(core.DirtyTransform | core.DirtyVelocities) {
			it.lastSimulated = now
		}
	}

	if it.created == 0 && p.Created != 0 {
		it.created = min(p.Created, now)
	}
	return changed
}
