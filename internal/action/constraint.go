package action

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"maps"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

type argKind int

const (
	kindNumber argKind = iota
	kindBool
	kindString
	kindVec3
	kindQuat
)

var commonArgs = map[string]argKind{
	"tag": kindString,
	"ttl": kindNumber,
}

var argSchemas = map[Type]map[string]argKind{
	TypeOffset: {
		"pointToOffsetFrom": kindVec3,
		"linearDistance":    kindNumber,
		"linearTimeScale":   kindNumber,
	},
	TypeSpring: {
		"targetPosition":   kindVec3,
		"linearTimeScale":  kindNumber,
		"targetRotation":   kindQuat,
		"angularTimeScale": kindNumber,
	},
	TypeHold: {
		"holderID":             kindString,
		"hand":                 kindString,
		"relativePosition":     kindVec3,
		"relativeRotation":     kindQuat,
		"timeScale":            kindNumber,
		"kinematic":            kindBool,
		"kinematicSetVelocity": kindBool,
		"ignoreIK":             kindBool,
	},
}

// headerSize is the type tag plus the action id.
const headerSize = 2 + 16

// Constraint is the stock Action implementation. Its serialized form is a
// big-endian type tag, the 16 byte id and the arguments as JSON.
type Constraint struct {
	id    uuid.UUID
	typ   Type
	owner uuid.UUID
	args  Arguments
}

// NewConstraint validates args against the type's schema.
func NewConstraint(typ Type, id, owner uuid.UUID, args Arguments) (*Constraint, error) {
	if _, ok := argSchemas[typ]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, typ)
	}
	c := &Constraint{id: id, typ: typ, owner: owner, args: Arguments{}}
	if !c.UpdateArguments(args) {
		return nil, fmt.Errorf("%w for %s action", ErrInvalidArguments, typ)
	}
	return c, nil
}

func (c *Constraint) ID() uuid.UUID { return c.id }

func (c *Constraint) Type() Type { return c.typ }

func (c *Constraint) Owner() uuid.UUID { return c.owner }

func (c *Constraint) SetOwner(id uuid.UUID) { c.owner = id }

func (c *Constraint) IsActive() bool { return c.owner != uuid.Nil }

func (c *Constraint) ShouldSuppressLocationEdits() bool {
	return c.typ == TypeHold && c.IsActive()
}

// Arguments returns a copy of the current arguments.
func (c *Constraint) Arguments() Arguments {
	return maps.Clone(c.args)
}

// UpdateArguments merges args into the current set. Nothing changes if any
// key is unknown for the type or any value has the wrong shape.
func (c *Constraint) UpdateArguments(args Arguments) bool {
	normalized, ok := normalizeArguments(c.typ, args)
	if !ok {
		return false
	}
	maps.Copy(c.args, normalized)
	return true
}

func (c *Constraint) Serialize() []byte {
	body, err := json.Marshal(c.args)
	if err != nil {
		body = []byte("{}")
	}
	out := make([]byte, headerSize, headerSize+len(body))
	binary.BigEndian.PutUint16(out, uint16(c.typ))
	copy(out[2:], c.id[:])
	return append(out, body...)
}

// Deserialize replaces the arguments with those in data. The type and id in
// data must match this action.
func (c *Constraint) Deserialize(data []byte) error {
	typ, id, err := peekHeader(data)
	if err != nil {
		return err
	}
	if typ != c.typ || id != c.id {
		return fmt.Errorf("%w: header %s/%s does not match %s/%s", ErrMalformedBlob, typ, id, c.typ, c.id)
	}
	args, err := decodeArguments(c.typ, data[headerSize:])
	if err != nil {
		return err
	}
	c.args = args
	return nil
}

func peekHeader(data []byte) (Type, uuid.UUID, error) {
	if len(data) < headerSize {
		return TypeNone, uuid.Nil, fmt.Errorf("%w: action shorter than header", ErrMalformedBlob)
	}
	var id uuid.UUID
	copy(id[:], data[2:headerSize])
	return Type(binary.BigEndian.Uint16(data)), id, nil
}

func decodeArguments(typ Type, body []byte) (Arguments, error) {
	raw := Arguments{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedBlob, err)
		}
	}
	args, ok := normalizeArguments(typ, raw)
	if !ok {
		return nil, fmt.Errorf("%w for %s action", ErrInvalidArguments, typ)
	}
	return args, nil
}

func normalizeArguments(typ Type, args Arguments) (Arguments, bool) {
	schema, ok := argSchemas[typ]
	if !ok {
		return nil, false
	}
	out := make(Arguments, len(args))
	for k, v := range args {
		kind, known := schema[k]
		if !known {
			kind, known = commonArgs[k]
		}
		if !known {
			return nil, false
		}
		nv, ok := normalizeValue(kind, v)
		if !ok {
			return nil, false
		}
		out[k] = nv
	}
	return out, true
}

func normalizeValue(kind argKind, v any) (any, bool) {
	switch kind {
	case kindNumber:
		return toFloat(v)
	case kindBool:
		b, ok := v.(bool)
		return b, ok
	case kindString:
		s, ok := v.(string)
		return s, ok
	case kindVec3:
		switch vv := v.(type) {
		case mgl32.Vec3:
			return []float64{float64(vv[0]), float64(vv[1]), float64(vv[2])}, true
		case map[string]any:
			return floatsFromMap(vv, "x", "y", "z")
		default:
			return floatsFromSlice(v, 3)
		}
	case kindQuat:
		switch vv := v.(type) {
		case mgl32.Quat:
			return []float64{float64(vv.W), float64(vv.V[0]), float64(vv.V[1]), float64(vv.V[2])}, true
		case map[string]any:
			return floatsFromMap(vv, "w", "x", "y", "z")
		default:
			return floatsFromSlice(v, 4)
		}
	}
	return nil, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func floatsFromSlice(v any, n int) ([]float64, bool) {
	switch s := v.(type) {
	case []float64:
		if len(s) != n {
			return nil, false
		}
		return append([]float64(nil), s...), true
	case []any:
		if len(s) != n {
			return nil, false
		}
		out := make([]float64, n)
		for i, e := range s {
			f, ok := toFloat(e)
			if !ok {
				return nil, false
			}
			out[i] = f
		}
		return out, true
	default:
		return nil, false
	}
}

func floatsFromMap(m map[string]any, keys ...string) ([]float64, bool) {
	out := make([]float64, len(keys))
	for i, k := range keys {
		f, ok := toFloat(m[k])
		if !ok {
			return nil, false
		}
		out[i] = f
	}
	return out, true
}
