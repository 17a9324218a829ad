// Package snapshot implements the snapshot journal: point-in-time restore
// points over fork state. Snapshots follow a stack discipline per fork
// lineage; reverting to an older snapshot discards all newer ones on that
// lineage while snapshots on other forks stay untouched.
package snapshot

import (
	"errors"
	"fmt"
	"sync"

	"github.com/quark-network/go-forkdb/fork"
	"github.com/quark-network/go-forkdb/log"
	"github.com/quark-network/go-forkdb/overlay"
	"github.com/quark-network/go-forkdb/types"
)

var (
	// ErrUnknownSnapshot marks an id that was never issued.
	ErrUnknownSnapshot = errors.New("unknown snapshot")

	// ErrSnapshotInvalidated marks an id discarded by an earlier revert or
	// by removal of the fork it was taken on.
	ErrSnapshotInvalidated = errors.New("snapshot invalidated")
)

// Record is one captured restore point. Overlay and Context are private
// deep copies taken at capture time.
type Record struct {
	ID      types.SnapshotID
	Fork    types.ForkID
	Block   uint64
	overlay *overlay.Store
	context *types.BlockContext
}

// Overlay returns a fresh copy of the captured overlay, so a record can be
// reverted to more than once.
func (r *Record) Overlay() *overlay.Store {
	return r.overlay.Copy()
}

// Context returns a fresh copy of the captured block context.
func (r *Record) Context() *types.BlockContext {
	return r.context.Copy()
}

// Info describes a live snapshot for listing.
type Info struct {
	ID    types.SnapshotID
	Fork  types.ForkID
	Block uint64
}

// Journal issues snapshot ids and keeps one record stack per fork lineage.
// Modeling lineages separately (instead of one global stack) is what keeps
// a revert on one fork from invalidating snapshots on another.
type Journal struct {
	mu      sync.Mutex
	nextID  types.SnapshotID
	live    map[types.SnapshotID]*Record
	lineage map[types.ForkID][]types.SnapshotID
	logger  *log.Logger
}

func NewJournal() *Journal {
	return &Journal{
		nextID:  1,
		live:    make(map[types.SnapshotID]*Record),
		lineage: make(map[types.ForkID][]types.SnapshotID),
		logger:  log.NewLogger("snapshot"),
	}
}

// Take captures the fork's handle, overlay and block context.
func (j *Journal) Take(f *fork.Fork) types.SnapshotID {
	j.mu.Lock()
	defer j.mu.Unlock()

	record := &Record{
		ID:      j.nextID,
		Fork:    f.ID,
		Block:   f.Context.Number,
		overlay: f.Overlay.Copy(),
		context: f.Context.Copy(),
	}
	j.nextID++
	j.live[record.ID] = record
	j.lineage[f.ID] = append(j.lineage[f.ID], record.ID)
	j.logger.Debug().Uint64("snapshot", uint64(record.ID)).Uint64("fork", uint64(f.ID)).Uint64("block", record.Block).Msg("Took snapshot")
	return record.ID
}

// Revert resolves id and invalidates every snapshot issued after it on the
// same fork lineage. The record itself stays live and can be reverted to
// again. The caller applies the returned record to its fork.
func (j *Journal) Revert(id types.SnapshotID) (*Record, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if id == 0 || id >= j.nextID {
		return nil, fmt.Errorf("%w: %d", ErrUnknownSnapshot, id)
	}
	record, ok := j.live[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrSnapshotInvalidated, id)
	}

	ids := j.lineage[record.Fork]
	keep := ids[:0]
	for _, lineageID := range ids {
		if lineageID <= id {
			keep = append(keep, lineageID)
			continue
		}
		delete(j.live, lineageID)
		j.logger.Debug().Uint64("snapshot", uint64(lineageID)).Msg("Invalidated snapshot")
	}
	j.lineage[record.Fork] = keep
	return record, nil
}

// DropFork invalidates every snapshot captured on the given fork.
func (j *Journal) DropFork(id types.ForkID) {
	j.mu.Lock()
	defer j.mu.Unlock()

	for _, snapshotID := range j.lineage[id] {
		delete(j.live, snapshotID)
	}
	delete(j.lineage, id)
}

// List returns the live snapshots ordered by id.
func (j *Journal) List() []Info {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]Info, 0, len(j.live))
	for id := types.SnapshotID(1); id < j.nextID; id++ {
		if record, ok := j.live[id]; ok {
			out = append(out, Info{ID: record.ID, Fork: record.Fork, Block: record.Block})
		}
	}
	return out
}
