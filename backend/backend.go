// Package backend implements the database facade: the single read/write
// surface the interpreter executes against. Reads resolve through the active
// fork's overlay, then the always-local account set, then the fork's remote
// state cache; writes always land in the active fork's overlay.
package backend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	forkdb "github.com/quark-network/go-forkdb/db"
	"github.com/quark-network/go-forkdb/db/badgerdb"
	"github.com/quark-network/go-forkdb/fork"
	"github.com/quark-network/go-forkdb/log"
	"github.com/quark-network/go-forkdb/remote"
	"github.com/quark-network/go-forkdb/snapshot"
	"github.com/quark-network/go-forkdb/types"
)

// Backend owns a fork registry, a snapshot journal and the resolution
// pipeline between them. Each instance is independent; transaction execution
// against one fork is serialized by the caller, only remote fetches overlap.
type Backend struct {
	cfg    Config
	logger *log.Logger

	registry *fork.Registry
	journal  *snapshot.Journal

	local      map[common.Address]types.Account
	localCodes map[common.Hash][]byte

	store forkdb.DB

	readers []reader

	dialMu    sync.Mutex
	providers map[string]remote.Provider

	rootCtx context.Context
	cancel  context.CancelFunc
}

// New builds a backend and creates its initial fork, remote-backed when
// cfg.Endpoint is set.
func New(cfg Config) (*Backend, error) {
	cfg = cfg.withDefaults()

	rootCtx, cancel := context.WithCancel(context.Background())
	b := &Backend{
		cfg:        cfg,
		logger:     log.NewLogger("backend"),
		registry:   fork.NewRegistry(),
		journal:    snapshot.NewJournal(),
		local:      make(map[common.Address]types.Account),
		localCodes: make(map[common.Hash][]byte),
		providers:  make(map[string]remote.Provider),
		rootCtx:    rootCtx,
		cancel:     cancel,
	}
	b.readers = []reader{overlayReader{b}, localReader{b}, remoteReader{b}}

	if cfg.CacheDir != "" {
		store, err := badgerdb.NewDB(cfg.CacheDir)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("open cache store: %w", err)
		}
		b.store = store
	}

	if cfg.GenesisPath != "" {
		accounts, err := loadGenesis(cfg.GenesisPath)
		if err != nil {
			b.closeQuiet()
			return nil, fmt.Errorf("load genesis: %w", err)
		}
		for addr, account := range accounts {
			b.local[addr] = account
			if len(account.Code) > 0 {
				b.localCodes[account.CodeHash] = account.Code
			}
		}
		b.logger.Info().Int("accounts", len(accounts)).Str("path", cfg.GenesisPath).Msg("Loaded genesis accounts")
	}

	if _, err := b.createFork(cfg.Endpoint, cfg.BlockNumber); err != nil {
		b.closeQuiet()
		return nil, err
	}
	return b, nil
}

// Close releases the provider connections and the on-disk cache store.
func (b *Backend) Close() error {
	b.cancel()

	b.dialMu.Lock()
	for _, provider := range b.providers {
		if client, ok := provider.(*remote.Client); ok {
			client.Close()
		}
	}
	b.dialMu.Unlock()

	if b.store != nil {
		return b.store.Close()
	}
	return nil
}

func (b *Backend) closeQuiet() {
	if err := b.Close(); err != nil {
		b.logger.Warn().Err(err).Msg("Fail to close backend")
	}
}

func (b *Backend) fetchCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(b.rootCtx, b.cfg.FetchTimeout)
}

func (b *Backend) dial(endpoint string) (remote.Provider, error) {
	b.dialMu.Lock()
	defer b.dialMu.Unlock()

	if provider, ok := b.providers[endpoint]; ok {
		return provider, nil
	}
	provider, err := b.cfg.Dialer(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", remote.ErrFetchFailed, endpoint, err)
	}
	b.providers[endpoint] = provider
	return provider, nil
}

func (b *Backend) createFork(endpoint string, blockNumber uint64) (types.ForkID, error) {
	if endpoint == "" {
		blockCtx := types.NewBlockContext(b.cfg.ChainID, blockNumber, uint64(time.Now().Unix()))
		f := b.registry.Create("", nil, blockCtx)
		return f.ID, nil
	}

	provider, err := b.dial(endpoint)
	if err != nil {
		return 0, err
	}

	ctx, cancel := b.fetchCtx()
	defer cancel()

	chainID, err := provider.ChainID(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: chain id of %s: %v", remote.ErrFetchFailed, endpoint, err)
	}
	pin := blockNumber
	if pin == 0 {
		pin = remote.LatestBlock
	}
	header, err := provider.HeaderByNumber(ctx, pin)
	if err != nil {
		return 0, fmt.Errorf("%w: header of %s: %v", remote.ErrFetchFailed, endpoint, err)
	}

	blockCtx := types.NewBlockContext(chainID, header.Number, header.Timestamp)
	blockCtx.BaseFee = header.BaseFee
	blockCtx.PrevRandao = header.PrevRandao
	blockCtx.KnownHashes[header.Number] = header.Hash

	cache := remote.NewCache(provider, endpoint, header.Number, remote.Config{
		HashWindow: b.cfg.HashWindow,
		Store:      b.store,
	})
	f := b.registry.Create(endpoint, cache, blockCtx)
	return f.ID, nil
}

// --- Fork operations ---

// CreateFork registers a new fork rooted at the given endpoint and block.
// An empty endpoint creates a purely local fork at the given number.
func (b *Backend) CreateFork(endpoint string, blockNumber uint64) (types.ForkID, error) {
	return b.createFork(endpoint, blockNumber)
}

// DuplicateFork forks a fork at its current state: deep-copied overlay and
// block context, shared remote cache.
func (b *Backend) DuplicateFork(id types.ForkID) (types.ForkID, error) {
	f, err := b.registry.Duplicate(id)
	if err != nil {
		return 0, err
	}
	return f.ID, nil
}

// SwitchFork repoints all subsequent facade calls at the given fork.
func (b *Backend) SwitchFork(id types.ForkID) error {
	return b.registry.SwitchActive(id)
}

// ActiveFork returns the handle reads and writes currently target.
func (b *Backend) ActiveFork() types.ForkID {
	return b.registry.ActiveID()
}

// RemoveFork drops a fork and invalidates every snapshot captured on it.
func (b *Backend) RemoveFork(id types.ForkID) error {
	if err := b.registry.Remove(id); err != nil {
		return err
	}
	b.journal.DropFork(id)
	return nil
}

// Forks lists the live fork handles.
func (b *Backend) Forks() []types.ForkID {
	return b.registry.IDs()
}

// BlockContext returns a copy of the active fork's block context.
func (b *Backend) BlockContext() *types.BlockContext {
	return b.registry.Active().Context.Copy()
}

// --- Snapshot operations ---

// TakeSnapshot captures the active fork's handle, overlay and block context.
func (b *Backend) TakeSnapshot() types.SnapshotID {
	return b.journal.Take(b.registry.Active())
}

// RevertTo restores the captured fork to its captured state, makes it the
// active fork again and invalidates every later snapshot on its lineage.
func (b *Backend) RevertTo(id types.SnapshotID) error {
	record, err := b.journal.Revert(id)
	if err != nil {
		return err
	}
	f, err := b.registry.Get(record.Fork)
	if err != nil {
		return err
	}
	f.Overlay = record.Overlay()
	f.Context = record.Context()
	b.logger.Debug().Uint64("snapshot", uint64(id)).Uint64("fork", uint64(f.ID)).Msg("Reverted to snapshot")
	return b.registry.SwitchActive(record.Fork)
}

// Snapshots lists the live snapshots.
func (b *Backend) Snapshots() []snapshot.Info {
	return b.journal.List()
}

// --- Facade reads ---

// ReadAccount resolves an account on the active fork. A never-seen account
// on a local fork resolves to the empty default; a remote outage surfaces
// as remote.ErrFetchFailed, never as a silent default.
func (b *Backend) ReadAccount(addr common.Address) (types.Account, error) {
	f := b.registry.Active()
	for _, r := range b.readers {
		account, ok, err := r.readAccount(f, addr)
		if err != nil {
			return types.Account{}, err
		}
		if ok {
			return account, nil
		}
	}
	return types.EmptyAccount(), nil
}

// ReadStorage resolves a storage slot on the active fork. Zero from the
// remote is a confirmed value, distinguishable from a failed fetch.
func (b *Backend) ReadStorage(addr common.Address, key common.Hash) (common.Hash, error) {
	f := b.registry.Active()
	for _, r := range b.readers {
		value, ok, err := r.readStorage(f, addr, key)
		if err != nil {
			return common.Hash{}, err
		}
		if ok {
			return value, nil
		}
	}
	return common.Hash{}, nil
}

// ReadCode resolves contract code by its content address.
func (b *Backend) ReadCode(hash common.Hash) ([]byte, bool) {
	return b.codeByHash(b.registry.Active(), hash)
}

// ReadBlockHash resolves a block hash: locally registered hashes first,
// then the remote cache within its recency window.
func (b *Backend) ReadBlockHash(number uint64) (common.Hash, error) {
	f := b.registry.Active()
	if hash, ok := f.Context.KnownHashes[number]; ok {
		return hash, nil
	}
	if f.HasRemote() {
		ctx, cancel := b.fetchCtx()
		defer cancel()
		return f.Cache.BlockHash(ctx, number)
	}
	return common.Hash{}, fmt.Errorf("%w: block %d has no locally known hash", remote.ErrBlockHashUnavailable, number)
}

// --- Facade writes ---

// WriteAccount applies a partial account update on the active fork. The
// current account is resolved first, so a remote outage aborts the write
// instead of committing a half-resolved entry.
func (b *Backend) WriteAccount(addr common.Address, delta types.AccountDelta) error {
	return b.writeAccount(addr, delta, types.OriginExecution)
}

// WriteStorage records a storage write on the active fork's overlay.
func (b *Backend) WriteStorage(addr common.Address, key common.Hash, value common.Hash) error {
	b.registry.Active().Overlay.SetStorage(addr, key, value, types.OriginExecution)
	return nil
}

// ClearAccount marks an account destroyed: balance, nonce, code and all
// storage read as defaults afterwards, without deferring to the remote.
func (b *Backend) ClearAccount(addr common.Address) error {
	b.registry.Active().Overlay.DeleteAccount(addr, types.OriginExecution)
	return nil
}

func (b *Backend) writeAccount(addr common.Address, delta types.AccountDelta, origin types.WriteOrigin) error {
	current, err := b.ReadAccount(addr)
	if err != nil {
		return err
	}
	updated := delta.Apply(current)
	b.registry.Active().Overlay.SetAccount(addr, updated, origin)
	return nil
}
