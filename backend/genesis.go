package backend

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"gopkg.in/yaml.v2"

	"github.com/quark-network/go-forkdb/types"
)

type genesisFile struct {
	Accounts map[string]genesisAccount `yaml:"accounts"`
}

type genesisAccount struct {
	Balance string `yaml:"balance"`
	Nonce   uint64 `yaml:"nonce"`
	Code    string `yaml:"code"`
}

// loadGenesis reads the always-local account set from a yaml file. Balances
// accept decimal or 0x-prefixed hex. Code is 0x-prefixed hex bytes.
func loadGenesis(path string) (map[common.Address]types.Account, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read genesis file: %w", err)
	}
	var file genesisFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse genesis file: %w", err)
	}

	accounts := make(map[common.Address]types.Account, len(file.Accounts))
	for key, entry := range file.Accounts {
		if !common.IsHexAddress(key) {
			return nil, fmt.Errorf("invalid genesis address %q", key)
		}
		addr := common.HexToAddress(key)

		account := types.EmptyAccount()
		account.Exists = true
		if entry.Balance != "" {
			balance, err := parseBalance(entry.Balance)
			if err != nil {
				return nil, fmt.Errorf("invalid balance for %s: %w", addr.Hex(), err)
			}
			account.Balance = balance
		}
		account.Nonce = entry.Nonce
		if entry.Code != "" {
			code, err := hexutil.Decode(entry.Code)
			if err != nil {
				return nil, fmt.Errorf("invalid code for %s: %w", addr.Hex(), err)
			}
			account.Code = code
			account.CodeHash = types.HashCode(code)
		}
		accounts[addr] = account
	}
	return accounts, nil
}

func parseBalance(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return uint256.FromHex(strings.ToLower(s))
	}
	value, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, err
	}
	return value, nil
}
