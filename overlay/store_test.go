package overlay

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quark-network/go-forkdb/types"
)

var (
	addrA = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	addrB = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	slot1 = common.HexToHash("0x01")
	slot2 = common.HexToHash("0x02")
)

func TestUntouchedAccountIsAbsent(t *testing.T) {
	s := NewStore()
	_, ok := s.Account(addrA)
	assert.False(t, ok)

	_, ok = s.Storage(addrA, slot1)
	assert.False(t, ok)
}

func TestSetAccount(t *testing.T) {
	s := NewStore()
	s.SetAccount(addrA, types.Account{
		Balance: uint256.NewInt(5),
		Nonce:   7,
		Code:    []byte{0x60, 0x00},
		Exists:  true,
	}, types.OriginExecution)

	entry, ok := s.Account(addrA)
	require.True(t, ok)
	assert.Equal(t, Modified, entry.State)
	assert.Equal(t, uint64(7), entry.Nonce)
	assert.True(t, entry.Balance.Eq(uint256.NewInt(5)))
	assert.Equal(t, types.OriginExecution, entry.Origin)

	code, ok := s.CodeByHash(entry.CodeHash)
	require.True(t, ok)
	assert.Equal(t, []byte{0x60, 0x00}, code)
}

func TestAccountWithoutCodeGetsEmptyCodeHash(t *testing.T) {
	s := NewStore()
	s.SetAccount(addrA, types.Account{Balance: uint256.NewInt(1), Exists: true}, types.OriginExecution)

	entry, ok := s.Account(addrA)
	require.True(t, ok)
	assert.Equal(t, types.EmptyCodeHash, entry.CodeHash)
}

func TestZeroWriteShadowsLowerLayer(t *testing.T) {
	s := NewStore()
	s.SetStorage(addrA, slot1, common.Hash{}, types.OriginExecution)

	entry, ok := s.Storage(addrA, slot1)
	require.True(t, ok)
	assert.Equal(t, common.Hash{}, entry.Value)
}

func TestDeleteAccountClearsStorage(t *testing.T) {
	s := NewStore()
	s.SetStorage(addrA, slot1, common.HexToHash("0xff"), types.OriginExecution)
	s.DeleteAccount(addrA, types.OriginExecution)

	entry, ok := s.Account(addrA)
	require.True(t, ok)
	assert.Equal(t, Deleted, entry.State)

	// a cleared account's slots resolve to zero locally, they must not
	// defer to the remote layer
	slotEntry, ok := s.Storage(addrA, slot1)
	require.True(t, ok)
	assert.Equal(t, common.Hash{}, slotEntry.Value)

	slotEntry, ok = s.Storage(addrA, slot2)
	require.True(t, ok)
	assert.Equal(t, common.Hash{}, slotEntry.Value)
}

func TestWriteAfterDeleteRevives(t *testing.T) {
	s := NewStore()
	s.DeleteAccount(addrA, types.OriginExecution)
	s.SetAccount(addrA, types.Account{Balance: uint256.NewInt(3), Exists: true}, types.OriginExecution)

	entry, ok := s.Account(addrA)
	require.True(t, ok)
	assert.Equal(t, Modified, entry.State)

	// the revived account starts with empty storage; unset slots stay
	// locally zero rather than re-exposing pre-destruction state
	slot, ok := s.Storage(addrA, slot1)
	require.True(t, ok)
	assert.Equal(t, common.Hash{}, slot.Value)

	// explicit writes after revival behave normally
	s.SetStorage(addrA, slot1, common.HexToHash("0x77"), types.OriginExecution)
	slot, ok = s.Storage(addrA, slot1)
	require.True(t, ok)
	assert.Equal(t, common.HexToHash("0x77"), slot.Value)
}

func TestCopyIsDeep(t *testing.T) {
	s := NewStore()
	s.SetAccount(addrA, types.Account{Balance: uint256.NewInt(5), Exists: true}, types.OriginExecution)
	s.SetStorage(addrA, slot1, common.HexToHash("0x11"), types.OriginExecution)

	cpy := s.Copy()
	s.SetAccount(addrA, types.Account{Balance: uint256.NewInt(9), Exists: true}, types.OriginExecution)
	s.SetStorage(addrA, slot1, common.HexToHash("0x22"), types.OriginExecution)
	s.SetStorage(addrB, slot2, common.HexToHash("0x33"), types.OriginExecution)

	entry, ok := cpy.Account(addrA)
	require.True(t, ok)
	assert.True(t, entry.Balance.Eq(uint256.NewInt(5)))

	slotEntry, ok := cpy.Storage(addrA, slot1)
	require.True(t, ok)
	assert.Equal(t, common.HexToHash("0x11"), slotEntry.Value)

	_, ok = cpy.Storage(addrB, slot2)
	assert.False(t, ok)
}

func TestOriginTagging(t *testing.T) {
	s := NewStore()
	s.SetAccount(addrA, types.Account{Balance: uint256.NewInt(1), Exists: true}, types.OriginCheat)
	s.SetStorage(addrA, slot1, common.HexToHash("0x01"), types.OriginExecution)
	s.SetStorage(addrA, slot2, common.HexToHash("0x02"), types.OriginCheat)

	entry, _ := s.Account(addrA)
	assert.Equal(t, types.OriginCheat, entry.Origin)

	slotEntry, _ := s.Storage(addrA, slot1)
	assert.Equal(t, types.OriginExecution, slotEntry.Origin)

	slotEntry, _ = s.Storage(addrA, slot2)
	assert.Equal(t, types.OriginCheat, slotEntry.Origin)
}

func TestDump(t *testing.T) {
	s := NewStore()
	s.SetAccount(addrA, types.Account{Balance: uint256.NewInt(5), Nonce: 1, Exists: true}, types.OriginExecution)
	s.SetStorage(addrA, slot1, common.HexToHash("0x11"), types.OriginExecution)
	s.SetStorage(addrB, slot2, common.HexToHash("0x22"), types.OriginExecution)

	dump := s.Dump()
	require.Len(t, dump, 2)

	byAddr := make(map[common.Address]DumpAccount)
	for _, record := range dump {
		byAddr[record.Address] = record
	}
	require.Contains(t, byAddr, addrA)
	require.Contains(t, byAddr, addrB)
	assert.True(t, byAddr[addrA].Balance.Eq(uint256.NewInt(5)))
	assert.Equal(t, common.HexToHash("0x11"), byAddr[addrA].Storage[slot1])
	assert.Equal(t, common.HexToHash("0x22"), byAddr[addrB].Storage[slot2])
}
