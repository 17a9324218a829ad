package remote

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quark-network/go-forkdb/db/memorydb"
	"github.com/quark-network/go-forkdb/types"
)

var (
	addrA = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	addrB = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	slot1 = common.HexToHash("0x01")
)

type fakeProvider struct {
	mu       sync.Mutex
	chainID  uint64
	balances map[common.Address]*uint256.Int
	nonces   map[common.Address]uint64
	codes    map[common.Address][]byte
	slots    map[common.Address]map[common.Hash]common.Hash
	hashes   map[uint64]common.Hash

	failing bool
	delay   time.Duration

	accountFetches int
	storageFetches int
	headerFetches  int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		chainID:  1,
		balances: make(map[common.Address]*uint256.Int),
		nonces:   make(map[common.Address]uint64),
		codes:    make(map[common.Address][]byte),
		slots:    make(map[common.Address]map[common.Hash]common.Hash),
		hashes:   make(map[uint64]common.Hash),
	}
}

var errProviderDown = errors.New("connection refused")

func (p *fakeProvider) stall() error {
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	if p.failing {
		return errProviderDown
	}
	return nil
}

func (p *fakeProvider) ChainID(ctx context.Context) (uint64, error) {
	if err := p.stall(); err != nil {
		return 0, err
	}
	return p.chainID, nil
}

func (p *fakeProvider) BalanceAt(ctx context.Context, addr common.Address, block uint64) (*uint256.Int, error) {
	p.mu.Lock()
	p.accountFetches++
	p.mu.Unlock()
	if err := p.stall(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if balance, ok := p.balances[addr]; ok {
		return new(uint256.Int).Set(balance), nil
	}
	return uint256.NewInt(0), nil
}

func (p *fakeProvider) NonceAt(ctx context.Context, addr common.Address, block uint64) (uint64, error) {
	if err := p.stall(); err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nonces[addr], nil
}

func (p *fakeProvider) CodeAt(ctx context.Context, addr common.Address, block uint64) ([]byte, error) {
	if err := p.stall(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.codes[addr], nil
}

func (p *fakeProvider) StorageAt(ctx context.Context, addr common.Address, key common.Hash, block uint64) (common.Hash, error) {
	p.mu.Lock()
	p.storageFetches++
	p.mu.Unlock()
	if err := p.stall(); err != nil {
		return common.Hash{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.slots[addr][key], nil
}

func (p *fakeProvider) HeaderByNumber(ctx context.Context, block uint64) (*Header, error) {
	p.mu.Lock()
	p.headerFetches++
	p.mu.Unlock()
	if err := p.stall(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return &Header{
		Number:  block,
		Hash:    p.hashes[block],
		BaseFee: uint256.NewInt(0),
	}, nil
}

func TestAccountIsMemoized(t *testing.T) {
	provider := newFakeProvider()
	provider.balances[addrA] = uint256.NewInt(100)
	provider.nonces[addrA] = 3
	cache := NewCache(provider, "test", 100, Config{})

	for i := 0; i < 5; i++ {
		account, err := cache.GetAccount(context.Background(), addrA)
		require.NoError(t, err)
		assert.True(t, account.Balance.Eq(uint256.NewInt(100)))
		assert.Equal(t, uint64(3), account.Nonce)
		assert.True(t, account.Exists)
	}
	assert.Equal(t, 1, provider.accountFetches)
}

func TestConfirmedAbsentIsMemoized(t *testing.T) {
	provider := newFakeProvider()
	cache := NewCache(provider, "test", 100, Config{})

	account, err := cache.GetAccount(context.Background(), addrA)
	require.NoError(t, err)
	assert.False(t, account.Exists)

	_, err = cache.GetAccount(context.Background(), addrA)
	require.NoError(t, err)
	assert.Equal(t, 1, provider.accountFetches)
}

func TestConcurrentFetchesAreCoalesced(t *testing.T) {
	provider := newFakeProvider()
	provider.balances[addrA] = uint256.NewInt(42)
	provider.delay = 20 * time.Millisecond
	cache := NewCache(provider, "test", 100, Config{})

	const callers = 16
	var wg sync.WaitGroup
	results := make([]types.Account, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = cache.GetAccount(context.Background(), addrA)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.True(t, results[i].Balance.Eq(uint256.NewInt(42)))
	}
	assert.Equal(t, 1, provider.accountFetches)
}

func TestFetchFailureIsNotMemoized(t *testing.T) {
	provider := newFakeProvider()
	provider.balances[addrA] = uint256.NewInt(7)
	provider.failing = true
	cache := NewCache(provider, "test", 100, Config{})

	_, err := cache.GetAccount(context.Background(), addrA)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFetchFailed))

	// recovery: the next access retries and succeeds
	provider.failing = false
	account, err := cache.GetAccount(context.Background(), addrA)
	require.NoError(t, err)
	assert.True(t, account.Balance.Eq(uint256.NewInt(7)))
}

func TestStorageZeroIsConfirmedNotError(t *testing.T) {
	provider := newFakeProvider()
	cache := NewCache(provider, "test", 100, Config{})

	value, err := cache.GetStorage(context.Background(), addrA, slot1)
	require.NoError(t, err)
	assert.Equal(t, common.Hash{}, value)

	_, err = cache.GetStorage(context.Background(), addrA, slot1)
	require.NoError(t, err)
	assert.Equal(t, 1, provider.storageFetches)
}

func TestStorageOutageIsDistinguishable(t *testing.T) {
	provider := newFakeProvider()
	provider.failing = true
	cache := NewCache(provider, "test", 100, Config{})

	_, err := cache.GetStorage(context.Background(), addrA, slot1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFetchFailed))
	assert.False(t, errors.Is(err, ErrBlockHashUnavailable))
}

func TestBlockHashWindow(t *testing.T) {
	provider := newFakeProvider()
	provider.hashes[95] = common.HexToHash("0x95")
	cache := NewCache(provider, "test", 100, Config{HashWindow: 10})

	hash, err := cache.BlockHash(context.Background(), 95)
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash("0x95"), hash)

	// memoized
	_, err = cache.BlockHash(context.Background(), 95)
	require.NoError(t, err)
	assert.Equal(t, 1, provider.headerFetches)

	// future block
	_, err = cache.BlockHash(context.Background(), 101)
	assert.True(t, errors.Is(err, ErrBlockHashUnavailable))

	// beyond the window
	_, err = cache.BlockHash(context.Background(), 80)
	assert.True(t, errors.Is(err, ErrBlockHashUnavailable))
	assert.Equal(t, 1, provider.headerFetches)
}

func TestBlockHashWindowHoldsEveryAdmissibleNumber(t *testing.T) {
	provider := newFakeProvider()
	provider.hashes[98] = common.HexToHash("0x98")
	provider.hashes[99] = common.HexToHash("0x99")
	provider.hashes[100] = common.HexToHash("0x0100")
	cache := NewCache(provider, "test", 100, Config{HashWindow: 2})

	// Fill the whole window: [98, 100] is three numbers for a window of 2.
	for _, number := range []uint64{98, 99, 100} {
		_, err := cache.BlockHash(context.Background(), number)
		require.NoError(t, err)
	}
	require.Equal(t, 3, provider.headerFetches)

	// Every in-window hash stays memoized; re-reads never refetch.
	for _, number := range []uint64{98, 99, 100} {
		hash, err := cache.BlockHash(context.Background(), number)
		require.NoError(t, err)
		assert.Equal(t, provider.hashes[number], hash)
	}
	assert.Equal(t, 3, provider.headerFetches)
}

func TestPersistentStoreAnswersAcrossInstances(t *testing.T) {
	store := memorydb.NewDB()
	provider := newFakeProvider()
	provider.balances[addrA] = uint256.NewInt(11)
	provider.nonces[addrA] = 2
	provider.codes[addrA] = []byte{0x60, 0x60}
	provider.slots[addrA] = map[common.Hash]common.Hash{slot1: common.HexToHash("0xbeef")}

	cache := NewCache(provider, "test", 100, Config{Store: store})
	account, err := cache.GetAccount(context.Background(), addrA)
	require.NoError(t, err)
	require.True(t, account.Exists)
	_, err = cache.GetStorage(context.Background(), addrA, slot1)
	require.NoError(t, err)

	// a second cache over a dead provider answers from the store
	down := newFakeProvider()
	down.failing = true
	reloaded := NewCache(down, "test", 100, Config{Store: store})

	account, err = reloaded.GetAccount(context.Background(), addrA)
	require.NoError(t, err)
	assert.True(t, account.Balance.Eq(uint256.NewInt(11)))
	assert.Equal(t, uint64(2), account.Nonce)
	assert.Equal(t, []byte{0x60, 0x60}, account.Code)

	code, ok := reloaded.CodeByHash(types.HashCode([]byte{0x60, 0x60}))
	require.True(t, ok)
	assert.Equal(t, []byte{0x60, 0x60}, code)

	value, err := reloaded.GetStorage(context.Background(), addrA, slot1)
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash("0xbeef"), value)

	// a different endpoint must not see the persisted entries
	other := NewCache(down, "other", 100, Config{Store: store})
	_, err = other.GetAccount(context.Background(), addrA)
	assert.True(t, errors.Is(err, ErrFetchFailed))
}
