// Package overlay implements the local overlay store: the set of state
// writes produced by local execution, layered on top of remotely fetched
// defaults. The overlay is the sole source of truth for anything written
// locally; it never leaks writes into the remote cache.
package overlay

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/quark-network/go-forkdb/types"
)

// EntryState is the tri-state lifecycle of an overlay account entry. An
// account that was never written stays Untouched (absent from the store);
// Deleted marks a cleared account, which is distinct from never-fetched.
type EntryState uint8

const (
	Untouched EntryState = iota
	Modified
	Deleted
)

// AccountEntry is a locally written account record.
type AccountEntry struct {
	State    EntryState
	Balance  *uint256.Int
	Nonce    uint64
	CodeHash common.Hash
	Origin   types.WriteOrigin
}

func (e AccountEntry) copy() AccountEntry {
	cpy := e
	if e.Balance != nil {
		cpy.Balance = new(uint256.Int).Set(e.Balance)
	}
	return cpy
}

// SlotEntry is a locally written storage slot. Presence of the entry means
// "set"; absence means "defer to the lower layer", never "zero".
type SlotEntry struct {
	Value  common.Hash
	Origin types.WriteOrigin
}

// Store holds all local writes of one fork. It is not safe for concurrent
// use; execution against a fork is serialized by the caller.
type Store struct {
	accounts map[common.Address]AccountEntry
	storage  map[common.Address]map[common.Hash]SlotEntry
	codes    map[common.Hash][]byte

	// cleared marks accounts whose storage was wiped by deletion. Reads of
	// unset slots on a cleared account resolve to zero locally instead of
	// falling through to the remote layer.
	cleared map[common.Address]bool
}

func NewStore() *Store {
	return &Store{
		accounts: make(map[common.Address]AccountEntry),
		storage:  make(map[common.Address]map[common.Hash]SlotEntry),
		codes:    make(map[common.Hash][]byte),
		cleared:  make(map[common.Address]bool),
	}
}

// Account returns the overlay entry for addr. The second return value is
// false when the account was never written locally.
func (s *Store) Account(addr common.Address) (AccountEntry, bool) {
	entry, ok := s.accounts[addr]
	if !ok {
		return AccountEntry{}, false
	}
	return entry.copy(), true
}

// SetAccount records a full account write. Code, when non-nil, is stored
// content-addressed; the entry keeps only the hash. Re-creating a cleared
// account keeps its cleared-storage marker: unset slots still read zero
// instead of resurrecting pre-destruction remote state.
func (s *Store) SetAccount(addr common.Address, account types.Account, origin types.WriteOrigin) {
	entry := AccountEntry{
		State:    Modified,
		Nonce:    account.Nonce,
		CodeHash: account.CodeHash,
		Origin:   origin,
	}
	if account.Balance != nil {
		entry.Balance = new(uint256.Int).Set(account.Balance)
	} else {
		entry.Balance = uint256.NewInt(0)
	}
	if account.Code != nil {
		hash := types.HashCode(account.Code)
		entry.CodeHash = hash
		s.codes[hash] = append([]byte(nil), account.Code...)
	}
	if entry.CodeHash == (common.Hash{}) {
		entry.CodeHash = types.EmptyCodeHash
	}
	s.accounts[addr] = entry
}

// DeleteAccount marks addr as cleared and wipes its locally written storage.
// Subsequent reads see a non-existent account with all-zero storage.
func (s *Store) DeleteAccount(addr common.Address, origin types.WriteOrigin) {
	s.accounts[addr] = AccountEntry{
		State:    Deleted,
		Balance:  uint256.NewInt(0),
		CodeHash: types.EmptyCodeHash,
		Origin:   origin,
	}
	delete(s.storage, addr)
	s.cleared[addr] = true
}

// Storage returns the overlay value of (addr, key). A cleared account
// resolves unset slots to zero locally.
func (s *Store) Storage(addr common.Address, key common.Hash) (SlotEntry, bool) {
	if slots, ok := s.storage[addr]; ok {
		if entry, ok := slots[key]; ok {
			return entry, true
		}
	}
	if s.cleared[addr] {
		return SlotEntry{Origin: s.accounts[addr].Origin}, true
	}
	return SlotEntry{}, false
}

// SetStorage records a storage slot write. Writing zero is a real write:
// it shadows whatever the remote layer holds for the slot.
func (s *Store) SetStorage(addr common.Address, key common.Hash, value common.Hash, origin types.WriteOrigin) {
	slots, ok := s.storage[addr]
	if !ok {
		slots = make(map[common.Hash]SlotEntry)
		s.storage[addr] = slots
	}
	slots[key] = SlotEntry{Value: value, Origin: origin}
}

// CodeByHash returns locally written code by its content address.
func (s *Store) CodeByHash(hash common.Hash) ([]byte, bool) {
	code, ok := s.codes[hash]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), code...), true
}

// Copy returns a deep copy of the store. Snapshots and fork duplication
// rely on the copy sharing nothing mutable with the original.
func (s *Store) Copy() *Store {
	cpy := NewStore()
	for addr, entry := range s.accounts {
		cpy.accounts[addr] = entry.copy()
	}
	for addr, slots := range s.storage {
		slotsCpy := make(map[common.Hash]SlotEntry, len(slots))
		for key, entry := range slots {
			slotsCpy[key] = entry
		}
		cpy.storage[addr] = slotsCpy
	}
	for hash, code := range s.codes {
		cpy.codes[hash] = append([]byte(nil), code...)
	}
	for addr := range s.cleared {
		cpy.cleared[addr] = true
	}
	return cpy
}

// DumpAccount is one account's overlay content in a dump.
type DumpAccount struct {
	Address common.Address
	State   EntryState
	Balance *uint256.Int
	Nonce   uint64
	Code    []byte
	Storage map[common.Hash]common.Hash
}

// Dump returns the full overlay content, one record per touched account.
// Slots written for otherwise untouched accounts get a Modified record with
// default account fields.
func (s *Store) Dump() []DumpAccount {
	touched := make(map[common.Address]bool, len(s.accounts)+len(s.storage))
	for addr := range s.accounts {
		touched[addr] = true
	}
	for addr := range s.storage {
		touched[addr] = true
	}

	out := make([]DumpAccount, 0, len(touched))
	for addr := range touched {
		record := DumpAccount{
			Address: addr,
			State:   Modified,
			Balance: uint256.NewInt(0),
		}
		if entry, ok := s.accounts[addr]; ok {
			record.State = entry.State
			record.Nonce = entry.Nonce
			if entry.Balance != nil {
				record.Balance = new(uint256.Int).Set(entry.Balance)
			}
			if code, ok := s.codes[entry.CodeHash]; ok {
				record.Code = append([]byte(nil), code...)
			}
		}
		if slots, ok := s.storage[addr]; ok && len(slots) > 0 {
			record.Storage = make(map[common.Hash]common.Hash, len(slots))
			for key, entry := range slots {
				record.Storage[key] = entry.Value
			}
		}
		out = append(out, record)
	}
	return out
}
