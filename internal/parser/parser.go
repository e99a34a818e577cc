package parser

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"github.com/OCAP2/replicator/internal/action"
	"github.com/OCAP2/replicator/internal/entity"
	"github.com/OCAP2/replicator/internal/ownership"
	"github.com/OCAP2/replicator/pkg/core"
)

var (
	ErrMissingID    = errors.New("missing object id")
	ErrInvalidValue = errors.New("invalid property value")
)

// parseUintFromFloat parses a string that may be an integer ("32") or float ("32.00") into uint64.
// Script hosts often have no integer type, so numbers may arrive as floats.
func parseUintFromFloat(s string) (uint64, error) {
	if v, err := strconv.ParseUint(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f < 0 || f != float64(uint64(f)) {
		return 0, fmt.Errorf("parseUintFromFloat: %q is not a valid uint64", s)
	}
	return uint64(f), nil
}

// Edit is a parsed setProperties call.
type Edit struct {
	ID         uuid.UUID
	Type       core.ObjectType
	Properties entity.Properties
	// Unknown lists property names that were ignored.
	Unknown []string
}

// ActionOp is what an ActionEdit does.
type ActionOp string

const (
	ActionAdd    ActionOp = "add"
	ActionUpdate ActionOp = "update"
	ActionRemove ActionOp = "remove"
)

// ActionEdit is a parsed addAction, updateAction or deleteAction call.
type ActionEdit struct {
	Op        ActionOp
	ObjectID  uuid.UUID
	ActionID  uuid.UUID
	Type      action.Type
	Arguments action.Arguments
}

// Parser converts JSON edit payloads into engine types.
// It has zero external dependencies beyond a logger.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a new parser with only a logger dependency
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

type editJSON struct {
	ID         string                     `json:"id"`
	Type       string                     `json:"type"`
	Properties map[string]json.RawMessage `json:"properties"`
}

// ParseEdit parses
//
//	{"id": "...", "type": "Box", "properties": {"position": [1, 2, 3], ...}}
//
// Properties are named as in PropertyName. Unknown names are skipped; a
// known name with a value of the wrong shape fails the whole edit.
func (p *Parser) ParseEdit(data []byte) (Edit, error) {
	var raw editJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return Edit{}, fmt.Errorf("error unmarshalling edit: %w", err)
	}
	if raw.ID == "" {
		return Edit{}, ErrMissingID
	}
	id, err := uuid.Parse(raw.ID)
	if err != nil {
		return Edit{}, fmt.Errorf("object id %q: %w", raw.ID, err)
	}

	edit := Edit{
		ID:   id,
		Type: core.ParseObjectType(raw.Type),
	}
	edit.Properties.ID = id
	edit.Properties.Type = edit.Type

	names := make([]string, 0, len(raw.Properties))
	for name := range raw.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		prop, ok := entity.PropertyByName(name)
		if !ok {
			edit.Unknown = append(edit.Unknown, name)
			continue
		}
		if err := setProperty(&edit.Properties, prop, raw.Properties[name]); err != nil {
			return Edit{}, fmt.Errorf("%w: %s: %w", ErrInvalidValue, name, err)
		}
		edit.Properties.Mark(prop)
	}

	if len(edit.Unknown) > 0 {
		p.logger.Warn("Ignoring unknown properties", "object", id, "names", edit.Unknown)
	}
	p.logger.Debug("Parsed edit", "object", id, "properties", edit.Properties.Changed)
	return edit, nil
}

type actionJSON struct {
	Op        string           `json:"op"`
	ObjectID  string           `json:"objectId"`
	ActionID  string           `json:"actionId"`
	Type      string           `json:"type"`
	Arguments action.Arguments `json:"arguments"`
}

// ParseActionEdit parses
//
//	{"op": "add", "objectId": "...", "actionId": "...", "type": "hold", "arguments": {...}}
//
// A missing actionId on add makes a new one.
func (p *Parser) ParseActionEdit(data []byte) (ActionEdit, error) {
	var raw actionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return ActionEdit{}, fmt.Errorf("error unmarshalling action edit: %w", err)
	}

	edit := ActionEdit{Op: ActionOp(raw.Op), Arguments: raw.Arguments}
	if raw.ObjectID == "" {
		return ActionEdit{}, ErrMissingID
	}
	var err error
	if edit.ObjectID, err = uuid.Parse(raw.ObjectID); err != nil {
		return ActionEdit{}, fmt.Errorf("object id %q: %w", raw.ObjectID, err)
	}

	switch edit.Op {
	case ActionAdd:
		edit.Type = action.ParseType(raw.Type)
		if edit.Type == action.TypeNone {
			return ActionEdit{}, fmt.Errorf("%w: %q", action.ErrUnknownType, raw.Type)
		}
		if raw.ActionID == "" {
			edit.ActionID = uuid.New()
			return edit, nil
		}
	case ActionUpdate, ActionRemove:
		if raw.ActionID == "" {
			return ActionEdit{}, fmt.Errorf("%s: missing action id", edit.Op)
		}
	default:
		return ActionEdit{}, fmt.Errorf("unknown action op %q", raw.Op)
	}

	if edit.ActionID, err = uuid.Parse(raw.ActionID); err != nil {
		return ActionEdit{}, fmt.Errorf("action id %q: %w", raw.ActionID, err)
	}
	return edit, nil
}

// ParseErase parses {"ids": ["...", ...]}.
func (p *Parser) ParseErase(data []byte) ([]uuid.UUID, error) {
	var raw struct {
		IDs []string `json:"ids"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("error unmarshalling erase: %w", err)
	}
	ids := make([]uuid.UUID, 0, len(raw.IDs))
	for _, s := range raw.IDs {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("object id %q: %w", s, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func setProperty(p *entity.Properties, prop int, raw json.RawMessage) error {
	var err error
	switch prop {
	case entity.PropSimulationOwner:
		p.SimulationOwner, err = decodeOwner(raw)
	case entity.PropPosition:
		p.Position, err = decodeVec3(raw)
	case entity.PropRotation:
		p.Rotation, err = decodeQuat(raw)
	case entity.PropVelocity:
		p.Velocity, err = decodeVec3(raw)
	case entity.PropAngularVelocity:
		p.AngularVelocity, err = decodeVec3(raw)
	case entity.PropAcceleration:
		p.Acceleration, err = decodeVec3(raw)
	case entity.PropDimensions:
		p.Dimensions, err = decodeVec3(raw)
	case entity.PropDensity:
		p.Density, err = decodeFloat(raw)
	case entity.PropGravity:
		p.Gravity, err = decodeVec3(raw)
	case entity.PropDamping:
		p.Damping, err = decodeFloat(raw)
	case entity.PropRestitution:
		p.Restitution, err = decodeFloat(raw)
	case entity.PropFriction:
		p.Friction, err = decodeFloat(raw)
	case entity.PropLifetime:
		p.Lifetime, err = decodeFloat(raw)
	case entity.PropScript:
		err = json.Unmarshal(raw, &p.Script)
	case entity.PropScriptTimestamp:
		p.ScriptTimestamp, err = decodeUint(raw, 64)
	case entity.PropRegistrationPoint:
		p.RegistrationPoint, err = decodeVec3(raw)
	case entity.PropAngularDamping:
		p.AngularDamping, err = decodeFloat(raw)
	case entity.PropVisible:
		err = json.Unmarshal(raw, &p.Visible)
	case entity.PropCollisionless:
		err = json.Unmarshal(raw, &p.Collisionless)
	case entity.PropCollisionMask:
		var v uint64
		v, err = decodeUint(raw, 8)
		p.CollisionMask = uint8(v)
	case entity.PropDynamic:
		err = json.Unmarshal(raw, &p.Dynamic)
	case entity.PropLocked:
		err = json.Unmarshal(raw, &p.Locked)
	case entity.PropUserData:
		p.UserData, err = decodeUserData(raw)
	case entity.PropMarketplaceID:
		err = json.Unmarshal(raw, &p.MarketplaceID)
	case entity.PropName:
		err = json.Unmarshal(raw, &p.Name)
	case entity.PropCollisionSoundURL:
		err = json.Unmarshal(raw, &p.CollisionSoundURL)
	case entity.PropHref:
		err = json.Unmarshal(raw, &p.Href)
	case entity.PropDescription:
		err = json.Unmarshal(raw, &p.Description)
	case entity.PropActionData:
		var s string
		if err = json.Unmarshal(raw, &s); err == nil {
			p.ActionData, err = base64.StdEncoding.DecodeString(s)
		}
	case entity.PropParentID:
		p.ParentID, err = decodeUUID(raw)
	case entity.PropParentJointIndex:
		var v uint64
		v, err = decodeUint(raw, 16)
		p.ParentJointIndex = uint16(v)
	case entity.PropQueryAACube:
		p.QueryAACube, err = decodeCube(raw)
	default:
		err = fmt.Errorf("property %d has no JSON form", prop)
	}
	return err
}

func decodeFloat(raw json.RawMessage) (float32, error) {
	var f float32
	err := json.Unmarshal(raw, &f)
	return f, err
}

func decodeUint(raw json.RawMessage, bits int) (uint64, error) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, err
	}
	v, err := parseUintFromFloat(n.String())
	if err != nil {
		return 0, err
	}
	if bits < 64 && v >= 1<<bits {
		return 0, fmt.Errorf("%d does not fit in %d bits", v, bits)
	}
	return v, nil
}

// decodeVec3 accepts [x, y, z] or {"x": .., "y": .., "z": ..}.
func decodeVec3(raw json.RawMessage) (mgl32.Vec3, error) {
	var arr []float32
	if err := json.Unmarshal(raw, &arr); err == nil {
		if len(arr) != 3 {
			return mgl32.Vec3{}, fmt.Errorf("want 3 components, got %d", len(arr))
		}
		return mgl32.Vec3{arr[0], arr[1], arr[2]}, nil
	}
	var obj struct{ X, Y, Z float32 }
	if err := json.Unmarshal(raw, &obj); err != nil {
		return mgl32.Vec3{}, err
	}
	return mgl32.Vec3{obj.X, obj.Y, obj.Z}, nil
}

// decodeQuat accepts [w, x, y, z] or {"w": .., "x": .., "y": .., "z": ..}.
func decodeQuat(raw json.RawMessage) (mgl32.Quat, error) {
	var arr []float32
	if err := json.Unmarshal(raw, &arr); err == nil {
		if len(arr) != 4 {
			return mgl32.Quat{}, fmt.Errorf("want 4 components, got %d", len(arr))
		}
		return mgl32.Quat{W: arr[0], V: mgl32.Vec3{arr[1], arr[2], arr[3]}}, nil
	}
	var obj struct{ W, X, Y, Z float32 }
	if err := json.Unmarshal(raw, &obj); err != nil {
		return mgl32.Quat{}, err
	}
	return mgl32.Quat{W: obj.W, V: mgl32.Vec3{obj.X, obj.Y, obj.Z}}, nil
}

func decodeUUID(raw json.RawMessage) (uuid.UUID, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return uuid.Nil, err
	}
	if s == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(s)
}

func decodeOwner(raw json.RawMessage) (ownership.Owner, error) {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return ownership.Owner{}, nil
	}
	var obj struct {
		ID       string          `json:"id"`
		Priority json.RawMessage `json:"priority"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ownership.Owner{}, err
	}
	var id uuid.UUID
	if obj.ID != "" {
		var err error
		if id, err = uuid.Parse(obj.ID); err != nil {
			return ownership.Owner{}, err
		}
	}
	var priority uint64
	if len(obj.Priority) > 0 {
		var err error
		if priority, err = decodeUint(obj.Priority, 8); err != nil {
			return ownership.Owner{}, err
		}
	}
	return ownership.Owner{ID: id, Priority: uint8(priority)}, nil
}

func decodeCube(raw json.RawMessage) (entity.AACube, error) {
	var obj struct {
		Corner json.RawMessage `json:"corner"`
		Scale  float32         `json:"scale"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return entity.AACube{}, err
	}
	cube := entity.AACube{Scale: obj.Scale}
	if len(obj.Corner) > 0 {
		corner, err := decodeVec3(obj.Corner)
		if err != nil {
			return entity.AACube{}, err
		}
		cube.Corner = corner
	}
	return cube, nil
}

// decodeUserData keeps strings as they are and stores any other JSON value
// in its compact text form.
func decodeUserData(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", err
	}
	return buf.String(), nil
}
