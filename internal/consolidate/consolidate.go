// Package consolidate implements the Consolidation Engine (spec.md
// §4.3): it keeps the MainContextHash bucket equal to the flattened
// view at the tip of the confirmed mined chain, without paying the
// ancestor-walk cost on every read.
package consolidate

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/bywise-go/envcore/internal/envstore"
	"github.com/bywise-go/envcore/internal/hashutil"
	"github.com/bywise-go/envcore/internal/tree"
)

// configLastHashKey is the single environment record that remembers
// the last consolidated context hash (spec.md §4.3).
const configLastHashKey = "config-last_hash"

const pageSize = 10000

// Engine advances a chain's MainContextHash bucket to match a target
// context hash.
type Engine struct {
	store *envstore.Store
	tree  *tree.Tree

	// sf collapses concurrent Consolide calls for the same chain into
	// one in-flight call, implementing spec.md §5's "at most one
	// consolidation in flight" ordering guarantee.
	sf singleflight.Group
}

// New returns a consolidation Engine over store, resolving ancestors
// via tr.
func New(store *envstore.Store, tr *tree.Tree) *Engine {
	return &Engine{store: store, tree: tr}
}

// LastConsolidatedHash returns the chain's recorded
// lastConsolidatedContextHash, or ZeroHash if none has been recorded.
func (e *Engine) LastConsolidatedHash(ctx context.Context, chain string) (string, error) {
	v, found, deleted, err := e.store.Get(ctx, chain, configLastHashKey, hashutil.MainContextHash)
	if err != nil {
		return "", errors.Wrap(err, "reading last consolidated hash")
	}
	if !found || deleted || v == "" {
		return hashutil.ZeroHash, nil
	}
	return v, nil
}

// Consolide advances chain's main context to targetHash. A no-op if
// targetHash is already the last consolidated hash (spec.md C-idem).
func (e *Engine) Consolide(ctx context.Context, chain, targetHash string) error {
	_, err, _ := e.sf.Do(chain, func() (interface{}, error) {
		return nil, e.consolideLocked(ctx, chain, targetHash)
	})
	return err
}

func (e *Engine) consolideLocked(ctx context.Context, chain, targetHash string) error {
	last, err := e.LastConsolidatedHash(ctx, chain)
	if err != nil {
		return err
	}
	if last == targetHash {
		return nil
	}
	if err := e.consolideFromHash(ctx, chain, last, targetHash); err != nil {
		return err
	}
	return errors.Wrap(e.store.Save(ctx, chain, configLastHashKey, hashutil.MainContextHash, targetHash, false), "recording last consolidated hash")
}

// consolideFromHash implements spec.md §4.3's recursive consolidation
// rule: clear-and-replay from genesis on a non-descendant reorg
// (C-reorg), or walk to the target's parent first, then merge
// leaf-last so newer writes win (C-order). Records stored at ZeroHash
// are merged right after the clear, since look-through reads see them.
func (e *Engine) consolideFromHash(ctx context.Context, chain, last, target string) error {
	if target == hashutil.ZeroHash {
		if _, err := e.store.DelMany(ctx, chain, hashutil.MainContextHash, pageSize); err != nil {
			return errors.Wrap(err, "clearing main context")
		}
	} else if last != target {
		parent, err := e.tree.GetLastHash(target)
		if err != nil {
			return errors.Wrapf(err, "resolving parent of %s", target)
		}
		if err := e.consolideFromHash(ctx, chain, last, parent); err != nil {
			return err
		}
	}
	return e.MergeContext(ctx, chain, target, hashutil.MainContextHash)
}

// MergeContext bulk-copies every record with hash=from into hash=to,
// preserving tombstones. Idempotent (spec.md I4).
func (e *Engine) MergeContext(ctx context.Context, chain, from, to string) error {
	recs, err := e.store.FindByChainAndHash(ctx, chain, from)
	if err != nil {
		return errors.Wrapf(err, "reading records at %s", from)
	}
	if len(recs) == 0 {
		return nil
	}
	values := make(map[string]envstore.Write, len(recs))
	for _, rec := range recs {
		values[rec.Key] = envstore.Write{Value: rec.Value, Deleted: rec.Deleted}
	}
	return errors.Wrapf(e.store.SaveMany(ctx, chain, to, values), "merging %s into %s", from, to)
}
