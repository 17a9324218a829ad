// Package remote implements the remote state cache: lazy, memoizing access
// to account, storage and block data of a remote chain through a JSON-RPC
// provider.
package remote

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/holiman/uint256"
)

// LatestBlock selects the provider's latest block instead of a pinned number.
const LatestBlock = ^uint64(0)

// Header is the slice of a block header the backend cares about.
type Header struct {
	Number     uint64
	Timestamp  uint64
	BaseFee    *uint256.Int
	PrevRandao common.Hash
	Hash       common.Hash
}

// Provider is the remote chain data boundary. Latency and availability are
// outside our control; every call must tolerate arbitrary delay and surface
// transient failure as an error.
type Provider interface {
	ChainID(ctx context.Context) (uint64, error)
	BalanceAt(ctx context.Context, addr common.Address, block uint64) (*uint256.Int, error)
	NonceAt(ctx context.Context, addr common.Address, block uint64) (uint64, error)
	CodeAt(ctx context.Context, addr common.Address, block uint64) ([]byte, error)
	StorageAt(ctx context.Context, addr common.Address, key common.Hash, block uint64) (common.Hash, error)
	HeaderByNumber(ctx context.Context, block uint64) (*Header, error)
}

// Client is the ethclient-backed Provider.
type Client struct {
	endpoint string
	ec       *ethclient.Client
}

var _ Provider = (*Client)(nil)

func Dial(endpoint string) (*Client, error) {
	ec, err := ethclient.Dial(endpoint)
	if err != nil {
		return nil, err
	}
	return &Client{endpoint: endpoint, ec: ec}, nil
}

func (c *Client) Endpoint() string {
	return c.endpoint
}

func (c *Client) Close() {
	c.ec.Close()
}

func blockArg(block uint64) *big.Int {
	if block == LatestBlock {
		return nil
	}
	return new(big.Int).SetUint64(block)
}

func (c *Client) ChainID(ctx context.Context) (uint64, error) {
	id, err := c.ec.ChainID(ctx)
	if err != nil {
		return 0, err
	}
	return id.Uint64(), nil
}

func (c *Client) BalanceAt(ctx context.Context, addr common.Address, block uint64) (*uint256.Int, error) {
	balance, err := c.ec.BalanceAt(ctx, addr, blockArg(block))
	if err != nil {
		return nil, err
	}
	value, overflow := uint256.FromBig(balance)
	if overflow {
		value = new(uint256.Int).SetAllOne()
	}
	return value, nil
}

func (c *Client) NonceAt(ctx context.Context, addr common.Address, block uint64) (uint64, error) {
	return c.ec.NonceAt(ctx, addr, blockArg(block))
}

func (c *Client) CodeAt(ctx context.Context, addr common.Address, block uint64) ([]byte, error) {
	return c.ec.CodeAt(ctx, addr, blockArg(block))
}

func (c *Client) StorageAt(ctx context.Context, addr common.Address, key common.Hash, block uint64) (common.Hash, error) {
	value, err := c.ec.StorageAt(ctx, addr, key, blockArg(block))
	if err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(value), nil
}

func (c *Client) HeaderByNumber(ctx context.Context, block uint64) (*Header, error) {
	header, err := c.ec.HeaderByNumber(ctx, blockArg(block))
	if err != nil {
		return nil, err
	}
	out := &Header{
		Number:     header.Number.Uint64(),
		Timestamp:  header.Time,
		PrevRandao: header.MixDigest,
		Hash:       header.Hash(),
		BaseFee:    uint256.NewInt(0),
	}
	if header.BaseFee != nil {
		if baseFee, overflow := uint256.FromBig(header.BaseFee); !overflow {
			out.BaseFee = baseFee
		}
	}
	return out, nil
}
