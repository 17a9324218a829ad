package backend

import (
	"time"

	"github.com/quark-network/go-forkdb/remote"
)

const (
	// DefaultChainID is used for purely local backends, matching the
	// conventional dev-chain id.
	DefaultChainID = 31337

	DefaultFetchTimeout = 45 * time.Second
)

// Config configures a backend instance.
type Config struct {
	// Endpoint is the remote JSON-RPC endpoint of the initial fork.
	// Empty means a purely local backend: no remote fetches, unknown
	// state resolves to well-defined empty defaults.
	Endpoint string

	// BlockNumber pins the initial fork; 0 resolves to the latest block.
	BlockNumber uint64

	// ChainID applies to local forks only; forked chains report the
	// remote chain id.
	ChainID uint64

	// HashWindow bounds historical block hash queries; 0 means the
	// default window of 256 blocks.
	HashWindow uint64

	// FetchTimeout bounds every single remote query.
	FetchTimeout time.Duration

	// CacheDir, when set, persists fetched remote state on disk so
	// subsequent runs against the same endpoint and block skip the
	// network entirely.
	CacheDir string

	// GenesisPath, when set, loads pre-funded always-local accounts from
	// a yaml file. Reads of these accounts never touch the remote.
	GenesisPath string

	// Dialer overrides how providers are built, used by tests. Nil means
	// remote.Dial.
	Dialer func(endpoint string) (remote.Provider, error)
}

func (cfg Config) withDefaults() Config {
	if cfg.ChainID == 0 {
		cfg.ChainID = DefaultChainID
	}
	if cfg.FetchTimeout == 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.Dialer == nil {
		cfg.Dialer = func(endpoint string) (remote.Provider, error) {
			return remote.Dial(endpoint)
		}
	}
	return cfg
}
