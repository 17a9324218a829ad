package backend

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

func uint256FromHexBig(b *hexutil.Big) (*uint256.Int, error) {
	value, overflow := uint256.FromBig((*big.Int)(b))
	if overflow {
		return nil, errors.New("value overflows 256 bits")
	}
	return value, nil
}
