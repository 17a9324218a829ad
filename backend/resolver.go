package backend

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/quark-network/go-forkdb/fork"
	"github.com/quark-network/go-forkdb/overlay"
	"github.com/quark-network/go-forkdb/types"
)

// reader is one stage of the ordered read-resolution chain. A stage answers
// (value, true, nil) when it owns the key, (zero, false, nil) to defer to
// the next stage, and an error to abort the read.
type reader interface {
	readAccount(f *fork.Fork, addr common.Address) (types.Account, bool, error)
	readStorage(f *fork.Fork, addr common.Address, key common.Hash) (common.Hash, bool, error)
}

// overlayReader resolves against the active fork's local writes.
type overlayReader struct {
	b *Backend
}

func (r overlayReader) readAccount(f *fork.Fork, addr common.Address) (types.Account, bool, error) {
	entry, ok := f.Overlay.Account(addr)
	if !ok {
		return types.Account{}, false, nil
	}
	if entry.State == overlay.Deleted {
		return types.EmptyAccount(), true, nil
	}
	account := types.Account{
		Balance:  new(uint256.Int).Set(entry.Balance),
		Nonce:    entry.Nonce,
		CodeHash: entry.CodeHash,
		Exists:   true,
	}
	if code, ok := r.b.codeByHash(f, entry.CodeHash); ok {
		account.Code = code
	}
	return account, true, nil
}

func (r overlayReader) readStorage(f *fork.Fork, addr common.Address, key common.Hash) (common.Hash, bool, error) {
	entry, ok := f.Overlay.Storage(addr, key)
	if !ok {
		return common.Hash{}, false, nil
	}
	return entry.Value, true, nil
}

// localReader resolves the always-local account set. These accounts never
// reach the remote: unknown fields read as defaults.
type localReader struct {
	b *Backend
}

func (r localReader) readAccount(f *fork.Fork, addr common.Address) (types.Account, bool, error) {
	account, ok := r.b.local[addr]
	if !ok {
		return types.Account{}, false, nil
	}
	return account.Copy(), true, nil
}

func (r localReader) readStorage(f *fork.Fork, addr common.Address, key common.Hash) (common.Hash, bool, error) {
	if _, ok := r.b.local[addr]; !ok {
		return common.Hash{}, false, nil
	}
	return common.Hash{}, true, nil
}

// remoteReader resolves through the fork's remote state cache. Fetch
// failures propagate; they must stay distinguishable from confirmed-absent.
type remoteReader struct {
	b *Backend
}

func (r remoteReader) readAccount(f *fork.Fork, addr common.Address) (types.Account, bool, error) {
	if !f.HasRemote() {
		return types.Account{}, false, nil
	}
	ctx, cancel := r.b.fetchCtx()
	defer cancel()
	account, err := f.Cache.GetAccount(ctx, addr)
	if err != nil {
		return types.Account{}, false, err
	}
	return account, true, nil
}

func (r remoteReader) readStorage(f *fork.Fork, addr common.Address, key common.Hash) (common.Hash, bool, error) {
	if !f.HasRemote() {
		return common.Hash{}, false, nil
	}
	ctx, cancel := r.b.fetchCtx()
	defer cancel()
	value, err := f.Cache.GetStorage(ctx, addr, key)
	if err != nil {
		return common.Hash{}, false, err
	}
	return value, true, nil
}

func (b *Backend) codeByHash(f *fork.Fork, hash common.Hash) ([]byte, bool) {
	if hash == types.EmptyCodeHash || hash == (common.Hash{}) {
		return nil, true
	}
	if code, ok := f.Overlay.CodeByHash(hash); ok {
		return code, true
	}
	if code, ok := b.localCodes[hash]; ok {
		return append([]byte(nil), code...), true
	}
	if f.HasRemote() {
		return f.Cache.CodeByHash(hash)
	}
	return nil, false
}
