package fork

import (
	"errors"
	"fmt"
	"sync"

	"github.com/quark-network/go-forkdb/log"
	"github.com/quark-network/go-forkdb/overlay"
	"github.com/quark-network/go-forkdb/remote"
	"github.com/quark-network/go-forkdb/types"
)

var (
	// ErrUnknownFork marks a handle that does not refer to a live fork.
	ErrUnknownFork = errors.New("unknown fork")

	// ErrActiveFork marks an operation that is invalid on the active fork.
	ErrActiveFork = errors.New("fork is active")
)

// Registry owns the set of live forks and the active handle. Switching the
// active fork never mutates fork state; it only repoints subsequent reads
// and writes.
type Registry struct {
	mu     sync.Mutex
	forks  map[types.ForkID]*Fork
	active types.ForkID
	nextID types.ForkID
	logger *log.Logger
}

func NewRegistry() *Registry {
	return &Registry{
		forks:  make(map[types.ForkID]*Fork),
		nextID: 1,
		logger: log.NewLogger("fork"),
	}
}

// Create registers a new fork with an empty overlay. The first fork created
// becomes active. cache may be nil for purely local forks.
func (r *Registry) Create(endpoint string, cache *remote.Cache, blockCtx *types.BlockContext) *Fork {
	r.mu.Lock()
	defer r.mu.Unlock()

	f := &Fork{
		ID:       r.nextID,
		Endpoint: endpoint,
		Context:  blockCtx,
		Overlay:  overlay.NewStore(),
		Cache:    cache,
	}
	r.nextID++
	r.forks[f.ID] = f
	if r.active == 0 {
		r.active = f.ID
	}
	r.logger.Info().Uint64("fork", uint64(f.ID)).Str("endpoint", endpoint).Uint64("block", blockCtx.Number).Msg("Created fork")
	return f
}

// Duplicate registers a new fork whose overlay and block context are deep
// copies of the source fork's current state. The remote cache is shared:
// it is append-only memoization of the same remote view.
func (r *Registry) Duplicate(id types.ForkID) (*Fork, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	src, ok := r.forks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownFork, id)
	}
	f := &Fork{
		ID:       r.nextID,
		Endpoint: src.Endpoint,
		Context:  src.Context.Copy(),
		Overlay:  src.Overlay.Copy(),
		Cache:    src.Cache,
	}
	r.nextID++
	r.forks[f.ID] = f
	r.logger.Info().Uint64("fork", uint64(f.ID)).Uint64("source", uint64(id)).Msg("Duplicated fork")
	return f, nil
}

// SwitchActive repoints the active fork. O(1), touches no fork state.
func (r *Registry) SwitchActive(id types.ForkID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.forks[id]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownFork, id)
	}
	r.active = id
	return nil
}

// Active returns the currently active fork.
func (r *Registry) Active() *Fork {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.forks[r.active]
}

// ActiveID returns the active fork handle.
func (r *Registry) ActiveID() types.ForkID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Get resolves a handle.
func (r *Registry) Get(id types.ForkID) (*Fork, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.forks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownFork, id)
	}
	return f, nil
}

// Remove drops a fork. The active fork cannot be removed; switch away first.
// The caller is responsible for invalidating snapshots that reference it.
func (r *Registry) Remove(id types.ForkID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.forks[id]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownFork, id)
	}
	if id == r.active {
		return fmt.Errorf("%w: %d", ErrActiveFork, id)
	}
	delete(r.forks, id)
	r.logger.Info().Uint64("fork", uint64(id)).Msg("Removed fork")
	return nil
}

// IDs returns the live fork handles.
func (r *Registry) IDs() []types.ForkID {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]types.ForkID, 0, len(r.forks))
	for id := range r.forks {
		ids = append(ids, id)
	}
	return ids
}
