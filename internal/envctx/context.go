// Package envctx implements the Environment Context (spec.md §4.4):
// the per-execution read/write overlay with four staged/committed
// tiers and an explicit create -> get/set/delete/commit/deleteCommit
// -> push? -> dispose lifecycle.
package envctx

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/bywise-go/envcore/internal/envstore"
	"github.com/bywise-go/envcore/internal/hashutil"
)

// ErrContextNotCommitted is raised by Push when setStage is non-empty
// (spec.md §4.4, §7).
var ErrContextNotCommitted = errors.New("context not committed")

type entry struct {
	value   string
	deleted bool
}

// Context is a short-lived transactional overlay used while
// simulating/executing transactions inside one block or slice.
type Context struct {
	store           *envstore.Store
	chain           string
	blockHeight     uint64
	fromContextHash string

	mu sync.Mutex

	setStage map[string]entry
	setMain  map[string]entry
	getStage map[string]entry
	getMain  map[string]entry

	disposed bool
}

// New opens a Context for chain, reading through fromContextHash.
func New(store *envstore.Store, chain string, blockHeight uint64, fromContextHash string) *Context {
	return &Context{
		store:           store,
		chain:           chain,
		blockHeight:     blockHeight,
		fromContextHash: fromContextHash,
		setStage:        make(map[string]entry),
		setMain:         make(map[string]entry),
		getStage:        make(map[string]entry),
		getMain:         make(map[string]entry),
	}
}

// FromContextHash returns the hash this context resolves look-through
// reads against.
func (c *Context) FromContextHash() string { return c.fromContextHash }

// Get resolves key through the four tiers, then the store, caching
// the resolved record into getStage for intra-transaction read
// stability (spec.md §4.4, P1).
func (c *Context) Get(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.setStage[key]; ok {
		return tierValue(e), nil
	}
	if e, ok := c.setMain[key]; ok {
		return tierValue(e), nil
	}
	if e, ok := c.getStage[key]; ok {
		return tierValue(e), nil
	}
	if e, ok := c.getMain[key]; ok {
		return tierValue(e), nil
	}

	e, err := c.resolveFromStoreLocked(ctx, key)
	if err != nil {
		return "", err
	}
	c.getStage[key] = e
	return tierValue(e), nil
}

// Has reports whether key resolves to a present (non-deleted,
// non-absent) value.
func (c *Context) Has(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.setStage[key]; ok {
		return !e.deleted, nil
	}
	if e, ok := c.setMain[key]; ok {
		return !e.deleted, nil
	}
	if e, ok := c.getStage[key]; ok {
		return !e.deleted, nil
	}
	if e, ok := c.getMain[key]; ok {
		return !e.deleted, nil
	}

	e, err := c.resolveFromStoreLocked(ctx, key)
	if err != nil {
		return false, err
	}
	c.getStage[key] = e
	return !e.deleted, nil
}

func (c *Context) resolveFromStoreLocked(ctx context.Context, key string) (entry, error) {
	if c.fromContextHash == hashutil.MainContextHash {
		v, found, deleted, err := c.store.Get(ctx, c.chain, key, hashutil.MainContextHash)
		if err != nil {
			return entry{}, errors.Wrapf(err, "main-context read of %s", key)
		}
		if !found {
			return entry{deleted: true}, nil
		}
		return entry{value: v, deleted: deleted}, nil
	}

	v, found, err := c.store.GetSlow(ctx, c.chain, key, c.fromContextHash)
	if err != nil {
		return entry{}, errors.Wrapf(err, "look-through read of %s from %s", key, c.fromContextHash)
	}
	if !found {
		return entry{deleted: true}, nil
	}
	return entry{value: v}, nil
}

func tierValue(e entry) string {
	if e.deleted {
		return ""
	}
	return e.value
}

// Set records a write into setStage (spec.md §4.4, I3: later set/delete
// on a key within one context supersedes earlier ones in the same tier).
func (c *Context) Set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setStage[key] = entry{value: value}
}

// Delete records a tombstone write into setStage.
func (c *Context) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setStage[key] = entry{deleted: true}
}

// Commit moves setStage into setMain and merges getStage into
// getMain, then clears both stage maps. No I/O. Repeated commits with
// no intervening writes are a no-op (spec.md P3).
func (c *Context) Commit() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, v := range c.setStage {
		c.setMain[k] = v
	}
	for k, v := range c.getStage {
		c.getMain[k] = v
	}
	c.setStage = make(map[string]entry)
	c.getStage = make(map[string]entry)
}

// DeleteCommit drops setStage and getStage, leaving setMain/getMain
// untouched; used to roll back a failed transaction within a still
// live context (spec.md §4.4, P3).
func (c *Context) DeleteCommit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setStage = make(map[string]entry)
	c.getStage = make(map[string]entry)
}

// Push requires setStage to be empty (spec.md I2); persists every
// record in setMain to the store under hash = toContextHash in one
// atomic batch.
func (c *Context) Push(ctx context.Context, toContextHash string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.setStage) > 0 {
		return errors.Wrapf(ErrContextNotCommitted, "push to %s with %d uncommitted keys", toContextHash, len(c.setStage))
	}
	if len(c.setMain) == 0 {
		return nil
	}

	values := make(map[string]envstore.Write, len(c.setMain))
	for k, e := range c.setMain {
		values[k] = envstore.Write{Value: e.value, Deleted: e.deleted}
	}
	return errors.Wrapf(c.store.SaveMany(ctx, c.chain, toContextHash, values), "pushing context to %s", toContextHash)
}

// Dispose releases any held runtime resources. Idempotent; does not
// touch persistence.
func (c *Context) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disposed = true
	c.setStage = nil
	c.setMain = nil
	c.getStage = nil
	c.getMain = nil
}

// Disposed reports whether Dispose has been called.
func (c *Context) Disposed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disposed
}
