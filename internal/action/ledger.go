package action

import (
	"bytes"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/OCAP2/replicator/internal/clock"
)

const (
	DefaultMaxDataSize        = 800
	DefaultRememberDeletedFor = 20 * time.Second
)

type entry struct {
	action Action
	// locallyAdded is set until the action shows up in data received from
	// the network, which protects it from reconciliation.
	locallyAdded bool
}

// Ledger holds the actions attached to one object together with their
// serialized form and the tombstones of recently removed actions. It is not
// safe for concurrent use; the owning object's lock guards it.
type Ledger struct {
	owner    uuid.UUID
	entries  map[uuid.UUID]*entry
	deleted  map[uuid.UUID]uint64
	toRemove []uuid.UUID
	data     []byte

	maxDataSize int
	remember    uint64

	sim     Simulation
	factory Factory
	clock   clock.Clock
	logger  *slog.Logger
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

func WithMaxDataSize(n int) LedgerOption {
	return func(l *Ledger) { l.maxDataSize = n }
}

func WithRememberDeleted(d time.Duration) LedgerOption {
	return func(l *Ledger) { l.remember = clock.Usec(d) }
}

func WithSimulation(s Simulation) LedgerOption {
	return func(l *Ledger) { l.sim = s }
}

func WithFactory(f Factory) LedgerOption {
	return func(l *Ledger) { l.factory = f }
}

func WithClock(c clock.Clock) LedgerOption {
	return func(l *Ledger) { l.clock = c }
}

func WithLogger(logger *slog.Logger) LedgerOption {
	return func(l *Ledger) { l.logger = logger }
}

// NewLedger creates an empty ledger for the object owner.
func NewLedger(owner uuid.UUID, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		owner:       owner,
		entries:     make(map[uuid.UUID]*entry),
		deleted:     make(map[uuid.UUID]uint64),
		maxDataSize: DefaultMaxDataSize,
		remember:    clock.Usec(DefaultRememberDeletedFor),
		factory:     ConstraintFactory{},
		clock:       clock.System{},
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Add attaches a locally created action.
func (l *Ledger) Add(a Action) error {
	l.applyPendingRemovals()
	l.purgeExpired(l.clock.Now())

	if a.Owner() != l.owner {
		return fmt.Errorf("%w: action %s owned by %s", ErrOwnerMismatch, a.ID(), a.Owner())
	}
	if _, exists := l.entries[a.ID()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateAction, a.ID())
	}

	l.insert(a)
	data, err := l.serialize()
	if err != nil {
		delete(l.entries, a.ID())
		if l.sim != nil {
			l.sim.RemoveFromSimulation(a)
		}
		l.logger.Debug("action rejected", "action", a.ID(), "type", a.Type(), "error", err)
		return err
	}
	l.data = data
	l.entries[a.ID()].locallyAdded = true
	return nil
}

// Update changes the arguments of an attached action. It reports false for
// an unknown id or arguments the action rejects, and reverts the change if
// the new serialized form would be too large.
func (l *Ledger) Update(id uuid.UUID, args Arguments) (bool, error) {
	l.applyPendingRemovals()
	l.purgeExpired(l.clock.Now())

	e, ok := l.entries[id]
	if !ok {
		return false, nil
	}

	snapshot := e.action.Serialize()
	if !e.action.UpdateArguments(args) {
		return false, nil
	}

	data, err := l.serialize()
	if err != nil {
		if rerr := e.action.Deserialize(snapshot); rerr != nil {
			l.logger.Error("failed to restore action", "action", id, "error", rerr)
		}
		return false, err
	}
	l.data = data
	return true, nil
}

// Remove detaches an action and remembers its id so that stale network
// data cannot bring it back. The id is remembered even if it was unknown.
func (l *Ledger) Remove(id uuid.UUID) bool {
	l.applyPendingRemovals()
	now := l.clock.Now()
	l.purgeExpired(now)
	return l.remove(id, now)
}

// Clear detaches every action without remembering them and drops any
// removals still pending from reconciliation.
func (l *Ledger) Clear() {
	for id := range l.entries {
		l.detach(id)
	}
	l.toRemove = nil
	l.data = nil
}

// SetData reconciles the ledger with serialized action data received from
// the network and reports whether the set of actions or their arguments
// may have changed. Malformed data leaves the ledger untouched.
func (l *Ledger) SetData(blob []byte) (bool, error) {
	if bytes.Equal(blob, l.data) {
		return l.applyPendingRemovals(), nil
	}

	serialized, err := decodeBlob(blob)
	if err != nil {
		return false, err
	}

	l.data = bytes.Clone(blob)
	l.reconcile(serialized)
	l.applyPendingRemovals()
	if data, err := l.serialize(); err == nil {
		l.data = data
	}
	return true, nil
}

func (l *Ledger) reconcile(serialized [][]byte) {
	now := l.clock.Now()
	l.purgeExpired(now)

	updated := make(map[uuid.UUID]bool, len(serialized))
	for _, raw := range serialized {
		_, id, err := peekHeader(raw)
		if err != nil {
			continue
		}
		if _, gone := l.deleted[id]; gone {
			continue
		}
		updated[id] = true

		if e, ok := l.entries[id]; ok {
			if err := e.action.Deserialize(raw); err != nil {
				l.logger.Warn("failed to apply action data", "action", id, "error", err)
			}
			e.locallyAdded = false
			continue
		}

		a, err := l.factory.FromBytes(l.owner, raw)
		if err != nil {
			l.logger.Warn("dropping action from network data", "action", id, "error", err)
			continue
		}
		l.insert(a)
	}

	for id, e := range l.entries {
		if !updated[id] && !e.locallyAdded {
			l.toRemove = append(l.toRemove, id)
			l.deleted[id] = now
		}
	}

	l.purgeExpired(now)
}

func (l *Ledger) applyPendingRemovals() bool {
	if len(l.toRemove) == 0 {
		return false
	}
	now := l.clock.Now()
	for _, id := range l.toRemove {
		l.remove(id, now)
	}
	l.toRemove = nil
	return true
}

func (l *Ledger) remove(id uuid.UUID, now uint64) bool {
	l.deleted[id] = now
	if _, ok := l.entries[id]; !ok {
		return false
	}
	l.detach(id)
	if data, err := l.serialize(); err == nil {
		l.data = data
	}
	return true
}

func (l *Ledger) insert(a Action) {
	l.entries[a.ID()] = &entry{action: a}
	if l.sim != nil {
		l.sim.AddAction(a)
	}
}

func (l *Ledger) detach(id uuid.UUID) {
	e, ok := l.entries[id]
	if !ok {
		return
	}
	delete(l.entries, id)
	e.action.SetOwner(uuid.Nil)
	if l.sim != nil {
		l.sim.RemoveFromSimulation(e.action)
	}
}

func (l *Ledger) purgeExpired(now uint64) {
	for id, at := range l.deleted {
		if now > at && now-at > l.remember {
			delete(l.deleted, id)
		}
	}
}

// serialize packs the attached actions in id order.
func (l *Ledger) serialize() ([]byte, error) {
	ids := l.sortedIDs()
	parts := make([][]byte, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, l.entries[id].action.Serialize())
	}
	blob := encodeBlob(parts)
	if len(blob) >= l.maxDataSize {
		return nil, fmt.Errorf("%w: %d >= %d", ErrBlobOverflow, len(blob), l.maxDataSize)
	}
	return blob, nil
}

func (l *Ledger) sortedIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(l.entries))
	for id := range l.entries {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b uuid.UUID) int {
		return bytes.Compare(a[:], b[:])
	})
	return ids
}

// Data returns the serialized form of the attached actions.
func (l *Ledger) Data() []byte {
	return bytes.Clone(l.data)
}

func (l *Ledger) Len() int { return len(l.entries) }

func (l *Ledger) IDs() []uuid.UUID { return l.sortedIDs() }

func (l *Ledger) Get(id uuid.UUID) (Action, bool) {
	e, ok := l.entries[id]
	if !ok {
		return nil, false
	}
	return e.action, true
}

// IsLocallyAdded reports whether id was added here and has not yet been
// seen in network data.
func (l *Ledger) IsLocallyAdded(id uuid.UUID) bool {
	e, ok := l.entries[id]
	return ok && e.locallyAdded
}

// IsDeleted reports whether id is currently tombstoned.
func (l *Ledger) IsDeleted(id uuid.UUID) bool {
	_, ok := l.deleted[id]
	return ok
}

// Arguments returns the arguments of an action with its type name under
// the "type" key, or nil for an unknown id.
func (l *Ledger) Arguments(id uuid.UUID) Arguments {
	e, ok := l.entries[id]
	if !ok {
		return nil
	}
	args := e.action.Arguments()
	if args == nil {
		args = Arguments{}
	}
	args["type"] = e.action.Type().String()
	return args
}

// OfType returns the active actions of the given type.
func (l *Ledger) OfType(t Type) []Action {
	var out []Action
	for _, id := range l.sortedIDs() {
		a := l.entries[id].action
		if a.Type() == t && a.IsActive() {
			out = append(out, a)
		}
	}
	return out
}

// ShouldSuppressLocationEdits is true if any attached action drives the
// object's transform.
func (l *Ledger) ShouldSuppressLocationEdits() bool {
	for _, e := range l.entries {
		if e.action.ShouldSuppressLocationEdits() {
			return true
		}
	}
	return false
}
