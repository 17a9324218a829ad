package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	forkdb "github.com/quark-network/go-forkdb/db"
	"github.com/quark-network/go-forkdb/log"
	"github.com/quark-network/go-forkdb/types"
)

var (
	// ErrFetchFailed marks a network or provider error. Failures are never
	// memoized; the next access for the same key retries from scratch.
	ErrFetchFailed = errors.New("remote fetch failed")

	// ErrBlockHashUnavailable marks a block hash request outside the
	// supported recency window.
	ErrBlockHashUnavailable = errors.New("block hash unavailable")
)

// DefaultHashWindow is how far behind the pinned block the cache will still
// answer block hash queries, matching the BLOCKHASH opcode reach.
const DefaultHashWindow = 256

// Config tunes a cache instance.
type Config struct {
	// HashWindow bounds historical block hash queries; 0 means default.
	HashWindow uint64
	// Store, when set, persists fetched entries across process runs.
	Store forkdb.DB
}

// Cache memoizes remote chain data for one (endpoint, block) view. Entries
// are never evicted: repeated queries for the same key always return the
// same answer without a second network round trip. Concurrent fetches of
// the same key are coalesced so exactly one remote query is issued.
type Cache struct {
	provider Provider
	endpoint string
	block    uint64

	hashWindow uint64
	store      forkdb.DB
	logger     *log.Logger

	mu       sync.RWMutex
	accounts map[common.Address]types.Account
	slots    map[slotKey]common.Hash
	codes    map[common.Hash][]byte
	hashes   *lru.Cache[uint64, common.Hash]

	group singleflight.Group
}

type slotKey struct {
	addr common.Address
	key  common.Hash
}

// persistedAccount is the on-disk encoding of a fetched account. Code is
// stored separately under its content address.
type persistedAccount struct {
	Balance  *hexutil.Big `json:"balance"`
	Nonce    uint64       `json:"nonce"`
	CodeHash common.Hash  `json:"codeHash"`
	Exists   bool         `json:"exists"`
}

// NewCache builds a cache over provider pinned at block. block must be a
// concrete number, resolved by the caller from its block tag.
func NewCache(provider Provider, endpoint string, block uint64, cfg Config) *Cache {
	window := cfg.HashWindow
	if window == 0 {
		window = DefaultHashWindow
	}
	// The window admits block numbers [block-window, block], window+1 in
	// total; the cache must hold all of them so an in-window hash is
	// never evicted and re-fetched.
	hashes, _ := lru.New[uint64, common.Hash](int(window) + 1)
	return &Cache{
		provider:   provider,
		endpoint:   endpoint,
		block:      block,
		hashWindow: window,
		store:      cfg.Store,
		logger:     log.NewLogger("remote"),
		accounts:   make(map[common.Address]types.Account),
		slots:      make(map[slotKey]common.Hash),
		codes:      make(map[common.Hash][]byte),
		hashes:     hashes,
	}
}

// Block returns the pinned block number.
func (c *Cache) Block() uint64 {
	return c.block
}

// Endpoint returns the remote endpoint descriptor.
func (c *Cache) Endpoint() string {
	return c.endpoint
}

func (c *Cache) persistKey(parts ...string) []byte {
	key := c.endpoint + "|" + strconv.FormatUint(c.block, 10)
	for _, part := range parts {
		key += "|" + part
	}
	return []byte(key)
}

// GetAccount returns the memoized account or fetches it. A confirmed-absent
// account is memoized with Exists == false; that is not an error.
func (c *Cache) GetAccount(ctx context.Context, addr common.Address) (types.Account, error) {
	c.mu.RLock()
	account, ok := c.accounts[addr]
	c.mu.RUnlock()
	if ok {
		return account.Copy(), nil
	}

	v, err, _ := c.group.Do("a|"+addr.Hex(), func() (interface{}, error) {
		c.mu.RLock()
		account, ok := c.accounts[addr]
		c.mu.RUnlock()
		if ok {
			return account, nil
		}
		if account, ok := c.loadAccount(addr); ok {
			c.mu.Lock()
			c.accounts[addr] = account
			c.mu.Unlock()
			return account, nil
		}
		account, fetchErr := c.fetchAccount(ctx, addr)
		if fetchErr != nil {
			return types.Account{}, fetchErr
		}
		c.mu.Lock()
		c.accounts[addr] = account
		if len(account.Code) > 0 {
			c.codes[account.CodeHash] = account.Code
		}
		c.mu.Unlock()
		c.persistAccount(addr, account)
		return account, nil
	})
	if err != nil {
		return types.Account{}, err
	}
	return v.(types.Account).Copy(), nil
}

func (c *Cache) fetchAccount(ctx context.Context, addr common.Address) (types.Account, error) {
	balance, err := c.provider.BalanceAt(ctx, addr, c.block)
	if err != nil {
		return types.Account{}, fmt.Errorf("%w: balance of %s at block %d: %v", ErrFetchFailed, addr.Hex(), c.block, err)
	}
	nonce, err := c.provider.NonceAt(ctx, addr, c.block)
	if err != nil {
		return types.Account{}, fmt.Errorf("%w: nonce of %s at block %d: %v", ErrFetchFailed, addr.Hex(), c.block, err)
	}
	code, err := c.provider.CodeAt(ctx, addr, c.block)
	if err != nil {
		return types.Account{}, fmt.Errorf("%w: code of %s at block %d: %v", ErrFetchFailed, addr.Hex(), c.block, err)
	}

	account := types.Account{
		Balance:  balance,
		Nonce:    nonce,
		Code:     code,
		CodeHash: types.HashCode(code),
	}
	// the provider cannot answer existence directly; a fully default
	// account is reported as confirmed absent
	account.Exists = !account.IsEmpty()
	c.logger.Debug().Str("addr", addr.Hex()).Uint64("block", c.block).Bool("exists", account.Exists).Msg("Fetched remote account")
	return account, nil
}

// GetStorage returns the memoized slot value or fetches it. Zero is a valid
// fetched value and is memoized like any other.
func (c *Cache) GetStorage(ctx context.Context, addr common.Address, key common.Hash) (common.Hash, error) {
	sk := slotKey{addr: addr, key: key}
	c.mu.RLock()
	value, ok := c.slots[sk]
	c.mu.RUnlock()
	if ok {
		return value, nil
	}

	v, err, _ := c.group.Do("s|"+addr.Hex()+"|"+key.Hex(), func() (interface{}, error) {
		c.mu.RLock()
		value, ok := c.slots[sk]
		c.mu.RUnlock()
		if ok {
			return value, nil
		}
		if c.store != nil {
			raw, found, err := c.store.Get(forkdb.NamespaceRemoteStorage, c.persistKey(addr.Hex(), key.Hex()))
			if err == nil && found {
				value := common.BytesToHash(raw)
				c.mu.Lock()
				c.slots[sk] = value
				c.mu.Unlock()
				return value, nil
			}
		}
		value, fetchErr := c.provider.StorageAt(ctx, addr, key, c.block)
		if fetchErr != nil {
			return common.Hash{}, fmt.Errorf("%w: slot %s of %s at block %d: %v", ErrFetchFailed, key.Hex(), addr.Hex(), c.block, fetchErr)
		}
		c.mu.Lock()
		c.slots[sk] = value
		c.mu.Unlock()
		if c.store != nil {
			if err := c.store.Set(forkdb.NamespaceRemoteStorage, c.persistKey(addr.Hex(), key.Hex()), value.Bytes()); err != nil {
				c.logger.Warn().Err(err).Msg("Fail to persist storage slot")
			}
		}
		return value, nil
	})
	if err != nil {
		return common.Hash{}, err
	}
	return v.(common.Hash), nil
}

// BlockHash returns the hash of a historical block. Numbers above the pinned
// block or further back than the recency window fail with
// ErrBlockHashUnavailable instead of issuing unbounded remote queries.
func (c *Cache) BlockHash(ctx context.Context, number uint64) (common.Hash, error) {
	if number > c.block || number+c.hashWindow < c.block {
		return common.Hash{}, fmt.Errorf("%w: block %d outside recency window ending at %d", ErrBlockHashUnavailable, number, c.block)
	}
	if hash, ok := c.hashes.Get(number); ok {
		return hash, nil
	}

	v, err, _ := c.group.Do("h|"+strconv.FormatUint(number, 10), func() (interface{}, error) {
		if hash, ok := c.hashes.Get(number); ok {
			return hash, nil
		}
		if c.store != nil {
			raw, found, err := c.store.Get(forkdb.NamespaceRemoteBlockHash, c.persistKey(strconv.FormatUint(number, 10)))
			if err == nil && found {
				hash := common.BytesToHash(raw)
				c.hashes.Add(number, hash)
				return hash, nil
			}
		}
		header, fetchErr := c.provider.HeaderByNumber(ctx, number)
		if fetchErr != nil {
			return common.Hash{}, fmt.Errorf("%w: header %d: %v", ErrFetchFailed, number, fetchErr)
		}
		c.hashes.Add(number, header.Hash)
		if c.store != nil {
			if err := c.store.Set(forkdb.NamespaceRemoteBlockHash, c.persistKey(strconv.FormatUint(number, 10)), header.Hash.Bytes()); err != nil {
				c.logger.Warn().Err(err).Msg("Fail to persist block hash")
			}
		}
		return header.Hash, nil
	})
	if err != nil {
		return common.Hash{}, err
	}
	return v.(common.Hash), nil
}

// CodeByHash returns fetched code by its content address.
func (c *Cache) CodeByHash(hash common.Hash) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	code, ok := c.codes[hash]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), code...), true
}

func (c *Cache) persistAccount(addr common.Address, account types.Account) {
	if c.store == nil {
		return
	}
	record := persistedAccount{
		Balance:  (*hexutil.Big)(account.Balance.ToBig()),
		Nonce:    account.Nonce,
		CodeHash: account.CodeHash,
		Exists:   account.Exists,
	}
	raw, err := json.Marshal(&record)
	if err != nil {
		return
	}
	if err := c.store.Set(forkdb.NamespaceRemoteAccount, c.persistKey(addr.Hex()), raw); err != nil {
		c.logger.Warn().Err(err).Msg("Fail to persist account")
		return
	}
	if len(account.Code) > 0 {
		if err := c.store.Set(forkdb.NamespaceRemoteCode, account.CodeHash.Bytes(), account.Code); err != nil {
			c.logger.Warn().Err(err).Msg("Fail to persist code")
		}
	}
}

func (c *Cache) loadAccount(addr common.Address) (types.Account, bool) {
	if c.store == nil {
		return types.Account{}, false
	}
	raw, found, err := c.store.Get(forkdb.NamespaceRemoteAccount, c.persistKey(addr.Hex()))
	if err != nil || !found {
		return types.Account{}, false
	}
	var record persistedAccount
	if err := json.Unmarshal(raw, &record); err != nil {
		return types.Account{}, false
	}
	account := types.Account{
		Nonce:    record.Nonce,
		CodeHash: record.CodeHash,
		Exists:   record.Exists,
	}
	account.Balance = types.EmptyAccount().Balance
	if record.Balance != nil {
		balance, overflow := uint256FromBig(record.Balance)
		if overflow {
			return types.Account{}, false
		}
		account.Balance = balance
	}
	if record.CodeHash != (common.Hash{}) && record.CodeHash != types.EmptyCodeHash {
		code, found, err := c.store.Get(forkdb.NamespaceRemoteCode, record.CodeHash.Bytes())
		if err != nil || !found {
			// code blob missing, treat the whole record as a miss
			return types.Account{}, false
		}
		account.Code = code
		c.mu.Lock()
		c.codes[record.CodeHash] = code
		c.mu.Unlock()
	}
	return account, true
}
