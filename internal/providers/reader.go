package providers

import (
	"context"

	"github.com/pkg/errors"

	"github.com/bywise-go/envcore/internal/envctx"
	"github.com/bywise-go/envcore/internal/envstore"
	"github.com/bywise-go/envcore/internal/hashutil"
	"github.com/bywise-go/envcore/internal/notify"
)

// Reader is the "read queries" caller façade from spec.md §4.5:
// balances, contract code, and configs open a read-only context at
// MAIN_CONTEXT_HASH for confirmed state, or at a specific block/slice
// hash for speculative state. It additionally blocks until a wanted
// height has been mined, the way get.go blocks on chain.BlockWaiter
// before serving a not-yet-mined block.
type Reader struct {
	store   *envstore.Store
	chain   string
	heights *notify.Heights
}

// NewReader returns a Reader for chain, using heights to satisfy
// AtHeight's blocking wait.
func NewReader(store *envstore.Store, chain string, heights *notify.Heights) *Reader {
	return &Reader{store: store, chain: chain, heights: heights}
}

// AtMain opens a read-only Context at MAIN_CONTEXT_HASH, for confirmed
// state.
func (r *Reader) AtMain() *envctx.Context {
	return envctx.New(r.store, r.chain, 0, hashutil.MainContextHash)
}

// At opens a read-only Context at a specific block or slice hash, for
// speculative state.
func (r *Reader) At(hash string) *envctx.Context {
	return envctx.New(r.store, r.chain, 0, hash)
}

// AtHeight blocks until the mined chain has reached at least want (or
// ctx is done), then returns a read-only Context at MAIN_CONTEXT_HASH.
func (r *Reader) AtHeight(ctx context.Context, want uint64) (*envctx.Context, error) {
	if _, ok := r.heights.Wait(ctx, want); !ok {
		return nil, errors.Errorf("waiting for height %d", want)
	}
	return r.AtMain(), nil
}
