package backend

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/quark-network/go-forkdb/types"
)

// Cheat operations are the privileged mutation channel granted to the test
// harness. They bypass transaction semantics but land in the same overlay as
// execution writes, tagged types.OriginCheat so tracing can tell the two
// apart. All of them target the active fork.

// CheatSetBalance forces an account balance.
func (b *Backend) CheatSetBalance(addr common.Address, balance *uint256.Int) error {
	b.logger.Debug().Str("addr", addr.Hex()).Str("balance", balance.Hex()).Msg("Cheat set balance")
	return b.writeAccount(addr, types.AccountDelta{Balance: balance}, types.OriginCheat)
}

// CheatSetNonce forces an account nonce.
func (b *Backend) CheatSetNonce(addr common.Address, nonce uint64) error {
	b.logger.Debug().Str("addr", addr.Hex()).Uint64("nonce", nonce).Msg("Cheat set nonce")
	return b.writeAccount(addr, types.AccountDelta{Nonce: &nonce}, types.OriginCheat)
}

// CheatEtchCode replaces an account's code. An empty slice clears it.
func (b *Backend) CheatEtchCode(addr common.Address, code []byte) error {
	if code == nil {
		code = []byte{}
	}
	b.logger.Debug().Str("addr", addr.Hex()).Int("size", len(code)).Msg("Cheat etch code")
	return b.writeAccount(addr, types.AccountDelta{Code: code}, types.OriginCheat)
}

// CheatSetStorage forces a storage slot.
func (b *Backend) CheatSetStorage(addr common.Address, key common.Hash, value common.Hash) error {
	b.registry.Active().Overlay.SetStorage(addr, key, value, types.OriginCheat)
	return nil
}

// CheatClearAccount destroys an account the way a self-destruct would.
func (b *Backend) CheatClearAccount(addr common.Address) error {
	b.registry.Active().Overlay.DeleteAccount(addr, types.OriginCheat)
	return nil
}

// CheatRollBlock sets the active fork's block number.
func (b *Backend) CheatRollBlock(number uint64) {
	b.registry.Active().Context.Number = number
}

// CheatWarpTime sets the active fork's block timestamp.
func (b *Backend) CheatWarpTime(timestamp uint64) {
	b.registry.Active().Context.Timestamp = timestamp
}

// CheatAdvanceTime moves the timestamp forward and returns the new value.
func (b *Backend) CheatAdvanceTime(seconds uint64) uint64 {
	ctx := b.registry.Active().Context
	ctx.Timestamp += seconds
	return ctx.Timestamp
}

// CheatSetBaseFee sets the active fork's base fee.
func (b *Backend) CheatSetBaseFee(baseFee *uint256.Int) {
	b.registry.Active().Context.BaseFee = new(uint256.Int).Set(baseFee)
}

// CheatSetChainID sets the active fork's chain id.
func (b *Backend) CheatSetChainID(chainID uint64) {
	b.registry.Active().Context.ChainID = chainID
}

// CheatSetPrevRandao sets the active fork's prevrandao value.
func (b *Backend) CheatSetPrevRandao(value common.Hash) {
	b.registry.Active().Context.PrevRandao = value
}

// CheatSetBlockHash registers a block hash locally; it shadows the remote
// for that number.
func (b *Backend) CheatSetBlockHash(number uint64, hash common.Hash) {
	b.registry.Active().Context.KnownHashes[number] = hash
}

// AccountWriteOrigin reports who last wrote the account on the active fork,
// if anyone did.
func (b *Backend) AccountWriteOrigin(addr common.Address) (types.WriteOrigin, bool) {
	entry, ok := b.registry.Active().Overlay.Account(addr)
	if !ok {
		return 0, false
	}
	return entry.Origin, true
}

// StorageWriteOrigin reports who last wrote the slot on the active fork.
func (b *Backend) StorageWriteOrigin(addr common.Address, key common.Hash) (types.WriteOrigin, bool) {
	entry, ok := b.registry.Active().Overlay.Storage(addr, key)
	if !ok {
		return 0, false
	}
	return entry.Origin, true
}
