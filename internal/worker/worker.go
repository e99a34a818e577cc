package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/OCAP2/replicator/internal/action"
	"github.com/OCAP2/replicator/internal/cache"
	"github.com/OCAP2/replicator/internal/clock"
	"github.com/OCAP2/replicator/internal/codec"
	"github.com/OCAP2/replicator/internal/config"
	"github.com/OCAP2/replicator/internal/entity"
	"github.com/OCAP2/replicator/internal/parser"
	"github.com/OCAP2/replicator/internal/peer"
	"github.com/OCAP2/replicator/internal/simulation"
	"github.com/OCAP2/replicator/internal/storage"
	"github.com/OCAP2/replicator/pkg/core"
)

// snapshotBudget bounds the encoding of one persisted object. It is large
// enough for every property at its maximum size.
const snapshotBudget = 64 * 1024

// ErrUnknownObject is returned for edits to an object that does not exist.
var ErrUnknownObject = errors.New("unknown object")

// PoseRecorder receives the poses of moving objects once per tick.
type PoseRecorder interface {
	RecordPoses(ctx context.Context, samples []core.PoseSample) error
}

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	Objects    *cache.ObjectCache
	Sent       *cache.SentTracker
	Peers      *peer.Context
	Simulation *simulation.Registry
	Parser     *parser.Parser
	Factory    action.Factory
	Clock      clock.Clock
	Logger     *slog.Logger
	// Poses is optional.
	Poses  PoseRecorder
	Config config.ReplicationConfig
}

// Manager owns the object set and drives it: it applies network and local
// edits, advances the simulation and produces outgoing packets.
type Manager struct {
	deps    Dependencies
	backend storage.Backend

	// tickMu serializes Tick and EncodeBatch.
	tickMu sync.Mutex

	lastTick         TickStats
	lastTickDuration time.Duration
}

// NewManager creates a new worker manager. Missing dependencies get
// defaults; backend may be nil.
func NewManager(deps Dependencies, backend storage.Backend) *Manager {
	if deps.Objects == nil {
		deps.Objects = cache.NewObjectCache()
	}
	if deps.Sent == nil {
		deps.Sent = cache.NewSentTracker()
	}
	if deps.Peers == nil {
		deps.Peers = peer.NewContext(uuid.Nil)
	}
	if deps.Simulation == nil {
		deps.Simulation = simulation.NewRegistry()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Parser == nil {
		deps.Parser = parser.NewParser(deps.Logger)
	}
	if deps.Factory == nil {
		deps.Factory = action.ConstraintFactory{}
	}
	if deps.Clock == nil {
		deps.Clock = clock.System{}
	}
	if deps.Config.PacketBudget <= 0 {
		deps.Config.PacketBudget = 1400
	}
	return &Manager{
		deps:    deps,
		backend: backend,
	}
}

func (m *Manager) hasBackend() bool {
	return m.backend != nil
}

// Objects returns the object set.
func (m *Manager) Objects() *cache.ObjectCache {
	return m.deps.Objects
}

// Peers returns the session context.
func (m *Manager) Peers() *peer.Context {
	return m.deps.Peers
}

func (m *Manager) newItem(id uuid.UUID, typ core.ObjectType) *entity.Item {
	opts := []entity.Option{
		entity.WithClock(m.deps.Clock),
		entity.WithLogger(m.deps.Logger),
		entity.WithSimulation(m.deps.Simulation),
		entity.WithActionFactory(m.deps.Factory),
	}
	if n := m.deps.Config.MaxActionsDataSize; n > 0 {
		opts = append(opts, entity.WithMaxActionsDataSize(n))
	}
	if d := m.deps.Config.RememberDeletedAction; d > 0 {
		opts = append(opts, entity.WithRememberDeletedActionTime(d))
	}
	return entity.New(id, typ, opts...)
}

// Restore rebuilds objects from persisted snapshots and returns how many
// were loaded.
func (m *Manager) Restore() (int, error) {
	if !m.hasBackend() {
		return 0, nil
	}
	snapshots, err := m.backend.LoadObjects()
	if err != nil {
		return 0, fmt.Errorf("failed to load objects: %w", err)
	}
	n := 0
	for _, s := range snapshots {
		if len(s.Payload) == 0 {
			continue
		}
		it := m.newItem(s.ID, s.Type)
		if _, err := it.Decode(s.Payload, entity.ReadArgs{}); err != nil {
			m.deps.Logger.Warn("Skipping unreadable snapshot", "object", s.ID, "error", err)
			continue
		}
		it.ConsumeDirtyFlags()
		m.deps.Objects.Add(it)
		n++
	}
	return n, nil
}

// TickStats summarizes one Tick.
type TickStats struct {
	Simulated int
	Persisted int
	Expired   int
	Poses     int
	Purged    int
}

// Tick advances every object to now, publishes its pose, persists objects
// whose state changed and records the poses of moving objects.
func (m *Manager) Tick(ctx context.Context) (TickStats, error) {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()

	start := time.Now()
	now := m.deps.Clock.Now()
	at := time.UnixMicro(int64(now))
	var stats TickStats
	var samples []core.PoseSample
	var errs []error

	for _, it := range m.deps.Objects.Items() {
		if it.LifetimeHasExpired() {
			if err := m.erase(it.ID(), now); err != nil {
				errs = append(errs, err)
			}
			stats.Expired++
			continue
		}

		it.Simulate(now)
		stats.Simulated++

		if it.IsMoving() {
			samples = append(samples, core.PoseSample{ObjectID: it.ID(), Time: at, Pose: it.Pose()})
		}

		if dirty := it.ConsumeDirtyFlags(); dirty != 0 && m.hasBackend() {
			snap := snapshot(it, at)
			if err := m.backend.SaveObject(snap); err != nil {
				errs = append(errs, fmt.Errorf("failed to save object %s: %w", it.ID(), err))
				continue
			}
			stats.Persisted++
		}
	}

	if len(samples) > 0 && m.deps.Poses != nil {
		if err := m.deps.Poses.RecordPoses(ctx, samples); err != nil {
			errs = append(errs, fmt.Errorf("failed to record poses: %w", err))
		} else {
			stats.Poses = len(samples)
		}
	}

	if keep := m.deps.Config.DeletedRetention; keep > 0 {
		if cutoff := clock.Usec(keep); now > cutoff {
			stats.Purged = m.deps.Objects.PurgeDeleted(now - cutoff)
		}
	}

	m.lastTick, m.lastTickDuration = stats, time.Since(start)
	return stats, errors.Join(errs...)
}

// LastTick returns the stats and wall time of the most recent Tick.
func (m *Manager) LastTick() (TickStats, time.Duration) {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()
	return m.lastTick, m.lastTickDuration
}

// PendingWritesProvider is an optional interface that backends can
// implement to expose how many writes are queued.
type PendingWritesProvider interface {
	Pending() int
}

// PendingWrites returns the number of queued storage writes, or 0 if the
// backend does not queue.
func (m *Manager) PendingWrites() int {
	if p, ok := m.backend.(PendingWritesProvider); ok {
		return p.Pending()
	}
	return 0
}

// Run calls Tick every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = m.deps.Config.TickInterval
	}
	if interval <= 0 {
		interval = 16 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Tick(ctx); err != nil {
				m.deps.Logger.Error("Tick failed", "error", err)
			}
		}
	}
}

// EncodeBatch packs every object edited since it was last sent into
// packets of at most budget bytes. An object that only partly fits
// continues in the next packet with the properties that were left out.
func (m *Manager) EncodeBatch(budget int) [][]byte {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()

	if budget <= 0 {
		budget = m.deps.Config.PacketBudget
	}

	var queue []*entity.Item
	for _, it := range m.deps.Objects.Items() {
		if m.deps.Sent.NeedsSend(it.ID(), it.LastEdited()) {
			queue = append(queue, it)
		}
	}

	params := &entity.EncodeParams{TrackSend: m.deps.Sent.Track}
	var packets [][]byte
	for len(queue) > 0 {
		buf := codec.NewPacketBuffer(budget)
		var rest []*entity.Item
		full := false
		for _, it := range queue {
			if full {
				rest = append(rest, it)
				continue
			}
			switch it.AppendTo(buf, params) {
			case entity.Completed:
			case entity.Partial:
				rest = append(rest, it)
				full = true
			case entity.None:
				if buf.Offset() == 0 {
					m.deps.Logger.Warn("Object does not fit in an empty packet", "object", it.ID(), "budget", budget)
					continue
				}
				rest = append(rest, it)
				full = true
			}
		}
		if buf.Offset() > 0 {
			packets = append(packets, buf.Bytes())
		}
		queue = rest
	}
	return packets
}

func (m *Manager) erase(id uuid.UUID, now uint64) error {
	it, ok := m.deps.Objects.Get(id)
	if ok {
		it.ClearActions()
	}
	if !m.deps.Objects.Remove(id, now) {
		return nil
	}
	m.deps.Sent.Delete(id)
	if m.hasBackend() {
		if err := m.backend.DeleteObject(id); err != nil {
			return fmt.Errorf("failed to delete object %s: %w", id, err)
		}
	}
	return nil
}

func snapshot(it *entity.Item, at time.Time) *core.ObjectSnapshot {
	props := it.GetProperties(entity.PropSimulationOwner, entity.PropName, entity.PropUserData, entity.PropPosition)
	payload, _, _ := it.Encode(snapshotBudget)
	return &core.ObjectSnapshot{
		ID:         it.ID(),
		Type:       it.Type(),
		Name:       props.Name,
		Owner:      props.SimulationOwner.ID,
		Priority:   props.SimulationOwner.Priority,
		Position:   [3]float32{props.Position.X(), props.Position.Y(), props.Position.Z()},
		UserData:   props.UserData,
		LastEdited: it.LastEdited(),
		Payload:    payload,
		RecordedAt: at,
	}
}
