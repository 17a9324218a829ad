package types

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"
)

// EmptyCodeHash is the keccak-256 hash of empty code.
var EmptyCodeHash = HashCode(nil)

// WriteOrigin records who produced a state write. Transaction-driven writes
// and cheat-driven writes must stay distinguishable for tracing.
type WriteOrigin uint8

const (
	OriginExecution WriteOrigin = iota
	OriginCheat
)

func (o WriteOrigin) String() string {
	switch o {
	case OriginExecution:
		return "execution"
	case OriginCheat:
		return "cheat"
	}
	return "unknown"
}

// Account is the resolved view of an account at a read point. Exists
// distinguishes a confirmed-absent account from a default-initialized one;
// a cleared (self-destructed) account reports Exists == false.
type Account struct {
	Balance  *uint256.Int
	Nonce    uint64
	Code     []byte
	CodeHash common.Hash
	Exists   bool
}

// EmptyAccount returns the well-defined default for never-seen accounts.
func EmptyAccount() Account {
	return Account{
		Balance:  uint256.NewInt(0),
		CodeHash: EmptyCodeHash,
	}
}

// Copy returns a deep copy of the account.
func (a Account) Copy() Account {
	cpy := a
	if a.Balance != nil {
		cpy.Balance = new(uint256.Int).Set(a.Balance)
	}
	if a.Code != nil {
		cpy.Code = append([]byte(nil), a.Code...)
	}
	return cpy
}

// IsEmpty reports whether the account matches the EVM notion of emptiness:
// zero balance, zero nonce and no code.
func (a Account) IsEmpty() bool {
	return (a.Balance == nil || a.Balance.IsZero()) && a.Nonce == 0 && len(a.Code) == 0
}

// AccountDelta is a partial account update. Nil fields are left unchanged;
// a non-nil empty Code clears the account code.
type AccountDelta struct {
	Balance *uint256.Int
	Nonce   *uint64
	Code    []byte
}

// Apply merges the delta into the account and returns the result.
func (d AccountDelta) Apply(base Account) Account {
	out := base.Copy()
	if d.Balance != nil {
		out.Balance = new(uint256.Int).Set(d.Balance)
	}
	if d.Nonce != nil {
		out.Nonce = *d.Nonce
	}
	if d.Code != nil {
		out.Code = append([]byte(nil), d.Code...)
		out.CodeHash = HashCode(d.Code)
	}
	out.Exists = true
	return out
}

// HashCode computes the keccak-256 content address of contract code.
func HashCode(code []byte) common.Hash {
	hasher := sha3.NewLegacyKeccak256()
	hasher.Write(code)
	return common.BytesToHash(hasher.Sum(nil))
}
