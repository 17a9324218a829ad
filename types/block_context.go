package types

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// BlockContext holds the block-level parameters visible to executing code.
// Each fork owns exactly one; it changes only through cheat-driven time or
// number advances and through fork creation.
type BlockContext struct {
	ChainID    uint64
	Number     uint64
	Timestamp  uint64
	BaseFee    *uint256.Int
	PrevRandao common.Hash

	// KnownHashes caches block hashes registered locally, keyed by number.
	// Historical hashes outside this map resolve through the remote cache.
	KnownHashes map[uint64]common.Hash
}

// NewBlockContext returns a context with an allocated hash cache.
func NewBlockContext(chainID, number, timestamp uint64) *BlockContext {
	return &BlockContext{
		ChainID:     chainID,
		Number:      number,
		Timestamp:   timestamp,
		BaseFee:     uint256.NewInt(0),
		KnownHashes: make(map[uint64]common.Hash),
	}
}

// Copy returns a deep copy of the block context.
func (c *BlockContext) Copy() *BlockContext {
	cpy := &BlockContext{
		ChainID:     c.ChainID,
		Number:      c.Number,
		Timestamp:   c.Timestamp,
		PrevRandao:  c.PrevRandao,
		KnownHashes: make(map[uint64]common.Hash, len(c.KnownHashes)),
	}
	if c.BaseFee != nil {
		cpy.BaseFee = new(uint256.Int).Set(c.BaseFee)
	}
	for number, hash := range c.KnownHashes {
		cpy.KnownHashes[number] = hash
	}
	return cpy
}
