package simulation

import (
	"sync"

	"github.com/google/uuid"

	"github.com/OCAP2/replicator/internal/action"
)

// Registry tracks the actions currently handed to the physics engine,
// grouped by the object they act on. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	actions map[uuid.UUID]action.Action
	byOwner map[uuid.UUID]map[uuid.UUID]struct{}
	owners  map[uuid.UUID]uuid.UUID
}

func NewRegistry() *Registry {
	return &Registry{
		actions: make(map[uuid.UUID]action.Action),
		byOwner: make(map[uuid.UUID]map[uuid.UUID]struct{}),
		owners:  make(map[uuid.UUID]uuid.UUID),
	}
}

// AddAction registers a.
func (r *Registry) AddAction(a action.Action) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := a.ID()
	r.unlink(id)
	owner := a.Owner()
	r.actions[id] = a
	r.owners[id] = owner
	set, ok := r.byOwner[owner]
	if !ok {
		set = make(map[uuid.UUID]struct{})
		r.byOwner[owner] = set
	}
	set[id] = struct{}{}
}

// RemoveFromSimulation unregisters a. Unknown actions are ignored.
func (r *Registry) RemoveFromSimulation(a action.Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unlink(a.ID())
}

func (r *Registry) unlink(id uuid.UUID) {
	owner, ok := r.owners[id]
	if !ok {
		return
	}
	delete(r.actions, id)
	delete(r.owners, id)
	if set := r.byOwner[owner]; set != nil {
		delete(set, id)
		if len(set) == 0 {
			delete(r.byOwner, owner)
		}
	}
}

// Get returns a registered action.
func (r *Registry) Get(id uuid.UUID) (action.Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actions[id]
	return a, ok
}

// ActionsFor returns the ids of the actions registered for owner.
func (r *Registry) ActionsFor(owner uuid.UUID) []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]uuid.UUID, 0, len(r.byOwner[owner]))
	for id := range r.byOwner[owner] {
		out = append(out, id)
	}
	return out
}

// Len returns the number of registered actions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.actions)
}
