package remote

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

func uint256FromBig(b *hexutil.Big) (*uint256.Int, bool) {
	return uint256.FromBig((*big.Int)(b))
}
