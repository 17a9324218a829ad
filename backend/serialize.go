package backend

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/quark-network/go-forkdb/overlay"
	"github.com/quark-network/go-forkdb/types"
)

type serializedAccount struct {
	Balance *hexutil.Big                `json:"balance"`
	Nonce   uint64                      `json:"nonce"`
	Code    hexutil.Bytes               `json:"code,omitempty"`
	Storage map[common.Hash]common.Hash `json:"storage,omitempty"`
	Deleted bool                        `json:"deleted,omitempty"`
}

type serializedBlock struct {
	Number     uint64       `json:"number"`
	Timestamp  uint64       `json:"timestamp"`
	ChainID    uint64       `json:"chainId"`
	BaseFee    *hexutil.Big `json:"baseFee,omitempty"`
	PrevRandao common.Hash  `json:"prevRandao,omitempty"`
}

type serializedState struct {
	Block    serializedBlock                       `json:"block"`
	Accounts map[common.Address]serializedAccount `json:"accounts"`
}

// DumpState serializes the active fork's overlay and block context as
// gzip-compressed json. Remote-cached state is not included; a loaded dump
// reproduces the local modifications, not the upstream chain.
func (b *Backend) DumpState(w io.Writer) error {
	f := b.registry.Active()

	state := serializedState{
		Block: serializedBlock{
			Number:     f.Context.Number,
			Timestamp:  f.Context.Timestamp,
			ChainID:    f.Context.ChainID,
			PrevRandao: f.Context.PrevRandao,
		},
		Accounts: make(map[common.Address]serializedAccount),
	}
	if f.Context.BaseFee != nil {
		state.Block.BaseFee = (*hexutil.Big)(f.Context.BaseFee.ToBig())
	}
	for _, record := range f.Overlay.Dump() {
		entry := serializedAccount{
			Balance: (*hexutil.Big)(record.Balance.ToBig()),
			Nonce:   record.Nonce,
			Code:    record.Code,
			Storage: record.Storage,
			Deleted: record.State == overlay.Deleted,
		}
		state.Accounts[record.Address] = entry
	}

	gz := gzip.NewWriter(w)
	if err := json.NewEncoder(gz).Encode(&state); err != nil {
		gz.Close()
		return fmt.Errorf("failed to encode state dump: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("failed to flush state dump: %w", err)
	}
	return nil
}

// LoadState applies a previously dumped state to the active fork. Both
// gzip-compressed and plain json payloads are accepted. Entries are applied
// as cheat writes on top of whatever the fork currently holds.
func (b *Backend) LoadState(r io.Reader) error {
	buffered := bufio.NewReader(r)
	magic, err := buffered.Peek(2)
	if err != nil {
		return fmt.Errorf("failed to read state payload: %w", err)
	}

	var payload io.Reader = buffered
	if magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(buffered)
		if err != nil {
			return fmt.Errorf("failed to open gzip state payload: %w", err)
		}
		defer gz.Close()
		payload = gz
	}

	var state serializedState
	if err := json.NewDecoder(payload).Decode(&state); err != nil {
		return fmt.Errorf("failed to decode state payload: %w", err)
	}

	f := b.registry.Active()
	f.Context.Number = state.Block.Number
	f.Context.Timestamp = state.Block.Timestamp
	if state.Block.ChainID != 0 {
		f.Context.ChainID = state.Block.ChainID
	}
	if state.Block.BaseFee != nil {
		baseFee, err := uint256FromHexBig(state.Block.BaseFee)
		if err != nil {
			return fmt.Errorf("invalid base fee in state payload: %w", err)
		}
		f.Context.BaseFee = baseFee
	}
	f.Context.PrevRandao = state.Block.PrevRandao

	for addr, entry := range state.Accounts {
		if entry.Deleted {
			f.Overlay.DeleteAccount(addr, types.OriginCheat)
			continue
		}
		account := types.EmptyAccount()
		account.Exists = true
		if entry.Balance != nil {
			balance, err := uint256FromHexBig(entry.Balance)
			if err != nil {
				return fmt.Errorf("invalid balance for %s in state payload: %w", addr.Hex(), err)
			}
			account.Balance = balance
		}
		account.Nonce = entry.Nonce
		if len(entry.Code) > 0 {
			account.Code = entry.Code
			account.CodeHash = types.HashCode(entry.Code)
		}
		f.Overlay.SetAccount(addr, account, types.OriginCheat)
		for key, value := range entry.Storage {
			f.Overlay.SetStorage(addr, key, value, types.OriginCheat)
		}
	}
	b.logger.Info().Int("accounts", len(state.Accounts)).Uint64("block", state.Block.Number).Msg("Loaded state dump")
	return nil
}
