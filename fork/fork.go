// Package fork implements forks and the fork registry. A fork is one
// independent view of chain state: a local overlay, an optional remote state
// cache and a block context, identified by a handle that stays unique for
// the lifetime of the backend.
package fork

import (
	"github.com/quark-network/go-forkdb/overlay"
	"github.com/quark-network/go-forkdb/remote"
	"github.com/quark-network/go-forkdb/types"
)

// Fork bundles one state view. Overlay and Context are owned exclusively by
// this fork; Cache may be shared with other forks pinned to the same remote
// view, since it is append-only and never sees local writes.
type Fork struct {
	ID       types.ForkID
	Endpoint string
	Context  *types.BlockContext
	Overlay  *overlay.Store
	Cache    *remote.Cache
}

// HasRemote reports whether reads may fall through to a remote provider.
func (f *Fork) HasRemote() bool {
	return f.Cache != nil
}
