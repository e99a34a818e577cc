package entity

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"github.com/OCAP2/replicator/internal/codec"
	"github.com/OCAP2/replicator/internal/ownership"
	"github.com/OCAP2/replicator/pkg/core"
)

// Property indices. The index is the bit position in the flags field and
// the order in which payloads appear on the wire; it must never change.
const (
	PropSimulationOwner = iota
	PropPosition
	PropRotation
	PropVelocity
	PropAngularVelocity
	PropAcceleration
	PropDimensions
	PropDensity
	PropGravity
	PropDamping
	PropRestitution
	PropFriction
	PropLifetime
	PropScript
	PropScriptTimestamp
	PropRegistrationPoint
	PropAngularDamping
	PropVisible
	PropCollisionless
	PropCollisionMask
	PropDynamic
	PropLocked
	PropUserData
	PropMarketplaceID
	PropName
	PropCollisionSoundURL
	PropHref
	PropDescription
	PropActionData
	PropParentID
	PropParentJointIndex
	PropQueryAACube

	PropLastItem
)

// AllProperties is the full property set.
var AllProperties = codec.AllProperties(PropLastItem)

// TerseUpdateProperties is the transform and its derivatives, the subset
// sent more often than everything else.
var TerseUpdateProperties = codec.NewPropertyFlags(
	PropPosition,
	PropRotation,
	PropVelocity,
	PropAngularVelocity,
	PropAcceleration,
)

// AACube is an axis aligned cube given by its minimum corner and edge length.
type AACube struct {
	Corner mgl32.Vec3
	Scale  float32
}

// Properties is a bag of object properties. Changed says which fields carry
// a value; everything else is ignored by SetProperties and by the encoder.
type Properties struct {
	Changed codec.PropertyFlags

	ID      uuid.UUID
	Type    core.ObjectType
	Created uint64

	SimulationOwner   ownership.Owner
	Position          mgl32.Vec3
	Rotation          mgl32.Quat
	Velocity          mgl32.Vec3
	AngularVelocity   mgl32.Vec3
	Acceleration      mgl32.Vec3
	Dimensions        mgl32.Vec3
	Density           float32
	Gravity           mgl32.Vec3
	Damping           float32
	Restitution       float32
	Friction          float32
	Lifetime          float32
	Script            string
	ScriptTimestamp   uint64
	RegistrationPoint mgl32.Vec3
	AngularDamping    float32
	Visible           bool
	Collisionless     bool
	CollisionMask     uint8
	Dynamic           bool
	Locked            bool
	UserData          string
	MarketplaceID     string
	Name              string
	CollisionSoundURL string
	Href              string
	Description       string
	ActionData        []byte
	ParentID          uuid.UUID
	ParentJointIndex  uint16
	QueryAACube       AACube
}

// Mark flags props as carrying a value.
func (p *Properties) Mark(props ...int) {
	for _, prop := range props {
		p.Changed = p.Changed.With(prop)
	}
}

// Has reports whether prop carries a value.
func (p *Properties) Has(prop int) bool {
	return p.Changed.Has(prop)
}

// PropertyName returns the name used in logs and JSON edits.
func PropertyName(prop int) string {
	if prop < 0 || prop >= len(descriptors) {
		return "unknown"
	}
	return descriptors[prop].name
}

// PropertyByName looks up a property index by its JSON name.
func PropertyByName(name string) (int, bool) {
	for _, d := range descriptors {
		if d.name == name {
			return d.prop, true
		}
	}
	return 0, false
}

// group decides under which condition a decoded property is applied.
type group int

const (
	// groupOwnership is always applied.
	groupOwnership group = iota
	// groupMotion is applied when the packet is accepted and the local peer
	// does not simulate the object.
	groupMotion
	// groupGeneral is applied when the packet is accepted.
	groupGeneral
)

// descriptor binds a property to its wire form, its slot in Properties and
// the Item accessors. Every function except apply runs with the item lock
// held by the caller; apply runs under the write lock.
type descriptor struct {
	prop  int
	name  string
	group group

	write func(dst []byte, p *Properties) []byte
	read  func(r *codec.Reader, p *Properties) error
	get   func(it *Item, p *Properties)
	apply func(it *Item, p *Properties) core.DirtyFlags
}

type wire[T any] struct {
	put  func(dst []byte, v T) []byte
	take func(r *codec.Reader) (T, error)
}

func field[T any](prop int, name string, g group, w wire[T],
	slot func(*Properties) *T,
	get func(*Item) T,
	set func(*Item, T) core.DirtyFlags,
) descriptor {
	return descriptor{
		prop:  prop,
		name:  name,
		group: g,
		write: func(dst []byte, p *Properties) []byte {
			return w.put(dst, *slot(p))
		},
		read: func(r *codec.Reader, p *Properties) error {
			v, err := w.take(r)
			if err != nil {
				return err
			}
			*slot(p) = v
			p.Changed = p.Changed.With(prop)
			return nil
		},
		get: func(it *Item, p *Properties) {
			*slot(p) = get(it)
			p.Changed = p.Changed.With(prop)
		},
		apply: func(it *Item, p *Properties) core.DirtyFlags {
			return set(it, *slot(p))
		},
	}
}

var (
	vec3Wire = wire[mgl32.Vec3]{
		put: func(dst []byte, v mgl32.Vec3) []byte {
			dst = codec.AppendFloat32(dst, v[0])
			dst = codec.AppendFloat32(dst, v[1])
			return codec.AppendFloat32(dst, v[2])
		},
		take: readVec3,
	}
	quatWire = wire[mgl32.Quat]{
		put: func(dst []byte, q mgl32.Quat) []byte {
			dst = codec.AppendFloat32(dst, q.W)
			dst = codec.AppendFloat32(dst, q.V[0])
			dst = codec.AppendFloat32(dst, q.V[1])
			return codec.AppendFloat32(dst, q.V[2])
		},
		take: func(r *codec.Reader) (mgl32.Quat, error) {
			w, err := r.Float32()
			if err != nil {
				return mgl32.Quat{}, err
			}
			v, err := readVec3(r)
			if err != nil {
				return mgl32.Quat{}, err
			}
			return mgl32.Quat{W: w, V: v}, nil
		},
	}
	float32Wire = wire[float32]{put: codec.AppendFloat32, take: (*codec.Reader).Float32}
	boolWire    = wire[bool]{put: codec.AppendBool, take: (*codec.Reader).Bool}
	uint8Wire   = wire[uint8]{
		put:  func(dst []byte, v uint8) []byte { return append(dst, v) },
		take: (*codec.Reader).Uint8,
	}
	uint16Wire = wire[uint16]{put: codec.AppendUint16, take: (*codec.Reader).Uint16}
	uint64Wire = wire[uint64]{put: codec.AppendUint64, take: (*codec.Reader).Uint64}
	stringWire = wire[string]{
		put: func(dst []byte, s string) []byte {
			return codec.AppendLengthPrefixed(dst, []byte(s))
		},
		take: func(r *codec.Reader) (string, error) {
			b, err := r.LengthPrefixed()
			return string(b), err
		},
	}
	bytesWire = wire[[]byte]{
		put: codec.AppendLengthPrefixed,
		take: func(r *codec.Reader) ([]byte, error) {
			b, err := r.LengthPrefixed()
			if err != nil {
				return nil, err
			}
			return append([]byte(nil), b...), nil
		},
	}
	uuidWire = wire[uuid.UUID]{
		put:  func(dst []byte, id uuid.UUID) []byte { return append(dst, id[:]...) },
		take: (*codec.Reader).UUID,
	}
	cubeWire = wire[AACube]{
		put: func(dst []byte, c AACube) []byte {
			dst = vec3Wire.put(dst, c.Corner)
			return codec.AppendFloat32(dst, c.Scale)
		},
		take: func(r *codec.Reader) (AACube, error) {
			corner, err := readVec3(r)
			if err != nil {
				return AACube{}, err
			}
			scale, err := r.Float32()
			return AACube{Corner: corner, Scale: scale}, err
		},
	}
	ownerWire = wire[ownership.Owner]{
		put: func(dst []byte, o ownership.Owner) []byte {
			return codec.AppendLengthPrefixed(dst, o.Bytes())
		},
		take: func(r *codec.Reader) (ownership.Owner, error) {
			b, err := r.LengthPrefixed()
			if err != nil {
				return ownership.Owner{}, err
			}
			return ownership.FromBytes(b), nil
		},
	}
)

func readVec3(r *codec.Reader) (mgl32.Vec3, error) {
	var v mgl32.Vec3
	for i := range v {
		f, err := r.Float32()
		if err != nil {
			return mgl32.Vec3{}, err
		}
		v[i] = f
	}
	return v, nil
}

// descriptors is indexed by property; the slice order is the wire order.
var descriptors = []descriptor{
	field(PropSimulationOwner, "simulationOwner", groupOwnership, ownerWire,
		func(p *Properties) *ownership.Owner { return &p.SimulationOwner },
		func(it *Item) ownership.Owner { return it.owner.Owner() },
		(*Item).setSimulationOwner),
	field(PropPosition, "position", groupMotion, vec3Wire,
		func(p *Properties) *mgl32.Vec3 { return &p.Position },
		func(it *Item) mgl32.Vec3 { return it.motion.Position },
		(*Item).setPosition),
	field(PropRotation, "rotation", groupMotion, quatWire,
		func(p *Properties) *mgl32.Quat { return &p.Rotation },
		func(it *Item) mgl32.Quat { return it.motion.Rotation },
		(*Item).setRotation),
	field(PropVelocity, "velocity", groupMotion, vec3Wire,
		func(p *Properties) *mgl32.Vec3 { return &p.Velocity },
		func(it *Item) mgl32.Vec3 { return it.motion.Velocity },
		(*Item).setVelocity),
	field(PropAngularVelocity, "angularVelocity", groupMotion, vec3Wire,
		func(p *Properties) *mgl32.Vec3 { return &p.AngularVelocity },
		func(it *Item) mgl32.Vec3 { return it.motion.AngularVelocity },
		(*Item).setAngularVelocity),
	field(PropAcceleration, "acceleration", groupMotion, vec3Wire,
		func(p *Properties) *mgl32.Vec3 { return &p.Acceleration },
		func(it *Item) mgl32.Vec3 { return it.motion.Acceleration },
		(*Item).setAcceleration),
	field(PropDimensions, "dimensions", groupGeneral, vec3Wire,
		func(p *Properties) *mgl32.Vec3 { return &p.Dimensions },
		func(it *Item) mgl32.Vec3 { return it.dimensions },
		(*Item).setDimensions),
	field(PropDensity, "density", groupGeneral, float32Wire,
		func(p *Properties) *float32 { return &p.Density },
		func(it *Item) float32 { return it.density },
		(*Item).setDensity),
	field(PropGravity, "gravity", groupGeneral, vec3Wire,
		func(p *Properties) *mgl32.Vec3 { return &p.Gravity },
		func(it *Item) mgl32.Vec3 { return it.gravity },
		(*Item).setGravity),
	field(PropDamping, "damping", groupGeneral, float32Wire,
		func(p *Properties) *float32 { return &p.Damping },
		func(it *Item) float32 { return it.motion.Damping },
		(*Item).setDamping),
	field(PropRestitution, "restitution", groupGeneral, float32Wire,
		func(p *Properties) *float32 { return &p.Restitution },
		func(it *Item) float32 { return it.restitution },
		(*Item).setRestitution),
	field(PropFriction, "friction", groupGeneral, float32Wire,
		func(p *Properties) *float32 { return &p.Friction },
		func(it *Item) float32 { return it.friction },
		(*Item).setFriction),
	field(PropLifetime, "lifetime", groupGeneral, float32Wire,
		func(p *Properties) *float32 { return &p.Lifetime },
		func(it *Item) float32 { return it.lifetime },
		(*Item).setLifetime),
	field(PropScript, "script", groupGeneral, stringWire,
		func(p *Properties) *string { return &p.Script },
		func(it *Item) string { return it.script },
		func(it *Item, v string) core.DirtyFlags { it.script = v; return 0 }),
	field(PropScriptTimestamp, "scriptTimestamp", groupGeneral, uint64Wire,
		func(p *Properties) *uint64 { return &p.ScriptTimestamp },
		func(it *Item) uint64 { return it.scriptTimestamp },
		func(it *Item, v uint64) core.DirtyFlags { it.scriptTimestamp = v; return 0 }),
	field(PropRegistrationPoint, "registrationPoint", groupGeneral, vec3Wire,
		func(p *Properties) *mgl32.Vec3 { return &p.RegistrationPoint },
		func(it *Item) mgl32.Vec3 { return it.registrationPoint },
		(*Item).setRegistrationPoint),
	field(PropAngularDamping, "angularDamping", groupGeneral, float32Wire,
		func(p *Properties) *float32 { return &p.AngularDamping },
		func(it *Item) float32 { return it.motion.AngularDamping },
		(*Item).setAngularDamping),
	field(PropVisible, "visible", groupGeneral, boolWire,
		func(p *Properties) *bool { return &p.Visible },
		func(it *Item) bool { return it.visible },
		func(it *Item, v bool) core.DirtyFlags { it.visible = v; return 0 }),
	field(PropCollisionless, "collisionless", groupGeneral, boolWire,
		func(p *Properties) *bool { return &p.Collisionless },
		func(it *Item) bool { return it.collisionless },
		(*Item).setCollisionless),
	field(PropCollisionMask, "collisionMask", groupGeneral, uint8Wire,
		func(p *Properties) *uint8 { return &p.CollisionMask },
		func(it *Item) uint8 { return it.collisionMask },
		(*Item).setCollisionMask),
	field(PropDynamic, "dynamic", groupGeneral, boolWire,
		func(p *Properties) *bool { return &p.Dynamic },
		func(it *Item) bool { return it.dynamic },
		(*Item).setDynamic),
	field(PropLocked, "locked", groupGeneral, boolWire,
		func(p *Properties) *bool { return &p.Locked },
		func(it *Item) bool { return it.locked },
		func(it *Item, v bool) core.DirtyFlags { it.locked = v; return 0 }),
	field(PropUserData, "userData", groupGeneral, stringWire,
		func(p *Properties) *string { return &p.UserData },
		func(it *Item) string { return it.userData },
		func(it *Item, v string) core.DirtyFlags { it.userData = v; return 0 }),
	field(PropMarketplaceID, "marketplaceID", groupGeneral, stringWire,
		func(p *Properties) *string { return &p.MarketplaceID },
		func(it *Item) string { return it.marketplaceID },
		func(it *Item, v string) core.DirtyFlags { it.marketplaceID = v; return 0 }),
	field(PropName, "name", groupGeneral, stringWire,
		func(p *Properties) *string { return &p.Name },
		func(it *Item) string { return it.name },
		func(it *Item, v string) core.DirtyFlags { it.name = v; return 0 }),
	field(PropCollisionSoundURL, "collisionSoundURL", groupGeneral, stringWire,
		func(p *Properties) *string { return &p.CollisionSoundURL },
		func(it *Item) string { return it.collisionSoundURL },
		func(it *Item, v string) core.DirtyFlags { it.collisionSoundURL = v; return 0 }),
	field(PropHref, "href", groupGeneral, stringWire,
		func(p *Properties) *string { return &p.Href },
		func(it *Item) string { return it.href },
		(*Item).setHref),
	field(PropDescription, "description", groupGeneral, stringWire,
		func(p *Properties) *string { return &p.Description },
		func(it *Item) string { return it.description },
		func(it *Item, v string) core.DirtyFlags { it.description = v; return 0 }),
	field(PropActionData, "actionData", groupGeneral, bytesWire,
		func(p *Properties) *[]byte { return &p.ActionData },
		func(it *Item) []byte { return it.actions.Data() },
		(*Item).setActionData),
	field(PropParentID, "parentID", groupGeneral, uuidWire,
		func(p *Properties) *uuid.UUID { return &p.ParentID },
		func(it *Item) uuid.UUID { return it.parentID },
		func(it *Item, v uuid.UUID) core.DirtyFlags { it.parentID = v; return 0 }),
	field(PropParentJointIndex, "parentJointIndex", groupGeneral, uint16Wire,
		func(p *Properties) *uint16 { return &p.ParentJointIndex },
		func(it *Item) uint16 { return it.parentJointIndex },
		func(it *Item, v uint16) core.DirtyFlags { it.parentJointIndex = v; return 0 }),
	field(PropQueryAACube, "queryAACube", groupGeneral, cubeWire,
		func(p *Properties) *AACube { return &p.QueryAACube },
		func(it *Item) AACube { return it.queryAACube },
		func(it *Item, v AACube) core.DirtyFlags { it.queryAACube = v; return 0 }),
}
