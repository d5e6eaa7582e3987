package envctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bywise-go/envcore/internal/envstore"
	"github.com/bywise-go/envcore/internal/hashutil"
	"github.com/bywise-go/envcore/internal/kv"
	"github.com/bywise-go/envcore/internal/tree"
)

func newTestStore(t *testing.T) (*envstore.Store, *tree.Tree) {
	t.Helper()
	backend, err := kv.NewSQLiteBackend(":memory:", "env_test")
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	tr := tree.New()
	return envstore.New(backend, tr), tr
}

func TestReadYourWrites(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	c := New(store, "chain1", 1, hashutil.ZeroHash)

	c.Set("k", "v1")
	v, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v1", v)

	c.Delete("k")
	has, err := c.Has(ctx, "k")
	require.NoError(t, err)
	require.False(t, has)
	v, err = c.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "", v)
}

func TestCommitThenDeleteCommitKeepsCommittedValue(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	c := New(store, "chain1", 1, hashutil.ZeroHash)

	c.Set("x", "1")
	c.Commit()
	c.Set("x", "2")

	v, err := c.Get(ctx, "x")
	require.NoError(t, err)
	require.Equal(t, "2", v)

	c.DeleteCommit()

	v, err = c.Get(ctx, "x")
	require.NoError(t, err)
	require.Equal(t, "1", v)
}

func TestRepeatedCommitIsNoOp(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	c := New(store, "chain1", 1, hashutil.ZeroHash)

	c.Set("x", "1")
	c.Commit()
	c.Commit()

	v, err := c.Get(ctx, "x")
	require.NoError(t, err)
	require.Equal(t, "1", v)
}

func TestPushRequiresCommit(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	c := New(store, "chain1", 1, hashutil.ZeroHash)

	c.Set("k", "v")
	err := c.Push(ctx, "deadbeef")
	require.ErrorIs(t, err, ErrContextNotCommitted)

	_, found, _, err := store.Get(ctx, "chain1", "k", "deadbeef")
	require.NoError(t, err)
	require.False(t, found)
}

func TestPushPersistsCommittedWrites(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	c := New(store, "chain1", 1, hashutil.ZeroHash)

	c.Set("k", "v")
	c.Commit()
	require.NoError(t, c.Push(ctx, "b1"))

	v, found, deleted, err := store.Get(ctx, "chain1", "k", "b1")
	require.NoError(t, err)
	require.True(t, found)
	require.False(t, deleted)
	require.Equal(t, "v", v)
}

func TestLookThroughAcrossContexts(t *testing.T) {
	store, tr := newTestStore(t)
	ctx := context.Background()

	b1 := padHash("b1")
	b2 := padHash("b2")
	require.NoError(t, tr.AddBlock(tree.BlockNode{Hash: b1, Height: 1, LastContextHash: hashutil.ZeroHash}))
	require.NoError(t, tr.AddBlock(tree.BlockNode{Hash: b2, Height: 2, LastContextHash: b1}))

	c1 := New(store, "chain1", 1, hashutil.ZeroHash)
	c1.Set("v1", "A")
	c1.Commit()
	require.NoError(t, c1.Push(ctx, b1))
	c1.Dispose()

	c2 := New(store, "chain1", 2, b1)
	v, err := c2.Get(ctx, "v1")
	require.NoError(t, err)
	require.Equal(t, "A", v)
}

func padHash(prefix string) string {
	for len(prefix) < hashutil.Len {
		prefix += "0"
	}
	return prefix
}
