package consolidate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bywise-go/envcore/internal/envctx"
	"github.com/bywise-go/envcore/internal/envstore"
	"github.com/bywise-go/envcore/internal/hashutil"
	"github.com/bywise-go/envcore/internal/kv"
	"github.com/bywise-go/envcore/internal/tree"
)

func setup(t *testing.T) (*envstore.Store, *tree.Tree, *Engine) {
	t.Helper()
	backend, err := kv.NewSQLiteBackend(":memory:", "env_consolidate")
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	tr := tree.New()
	store := envstore.New(backend, tr)
	return store, tr, New(store, tr)
}

func hashN(n int) string {
	s := "block"
	for len(s) < hashutil.Len {
		s += "0"
	}
	return s[:hashutil.Len-1] + string(rune('0'+n))
}

func chainOfBlocks(t *testing.T, tr *tree.Tree, n int) []string {
	hashes := make([]string, n+1)
	hashes[0] = hashutil.ZeroHash
	for i := 1; i <= n; i++ {
		h := hashN(i)
		require.NoError(t, tr.AddBlock(tree.BlockNode{Hash: h, Height: uint64(i), LastContextHash: hashes[i-1]}))
		hashes[i] = h
	}
	return hashes
}

func pushValue(t *testing.T, store *envstore.Store, chain, hash, key, value string) {
	t.Helper()
	ctx := context.Background()
	c := envctx.New(store, chain, 0, hashutil.ZeroHash)
	c.Set(key, value)
	c.Commit()
	require.NoError(t, c.Push(ctx, hash))
	c.Dispose()
}

func TestConsolidationEquivalence(t *testing.T) {
	store, tr, eng := setup(t)
	ctx := context.Background()
	hashes := chainOfBlocks(t, tr, 5)

	pushValue(t, store, "chain1", hashes[0], "v0", "first")
	pushValue(t, store, "chain1", hashes[2], "v1", "mid")
	pushValue(t, store, "chain1", hashes[5], "v2", "last")

	for _, k := range []string{"v0", "v1", "v2"} {
		_, found, _, err := store.Get(ctx, "chain1", k, hashutil.MainContextHash)
		require.NoError(t, err)
		require.False(t, found)
	}

	require.NoError(t, eng.Consolide(ctx, "chain1", hashes[5]))

	v0, found, _, err := store.Get(ctx, "chain1", "v0", hashutil.MainContextHash)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "first", v0)

	v1, found, _, err := store.Get(ctx, "chain1", "v1", hashutil.MainContextHash)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "mid", v1)

	v2, found, _, err := store.Get(ctx, "chain1", "v2", hashutil.MainContextHash)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "last", v2)
}

func TestConsolidationIdempotent(t *testing.T) {
	store, tr, eng := setup(t)
	ctx := context.Background()
	hashes := chainOfBlocks(t, tr, 2)
	pushValue(t, store, "chain1", hashes[1], "k", "v")

	require.NoError(t, eng.Consolide(ctx, "chain1", hashes[2]))
	recsBefore, err := store.FindByChainAndHash(ctx, "chain1", hashutil.MainContextHash)
	require.NoError(t, err)

	require.NoError(t, eng.Consolide(ctx, "chain1", hashes[2]))
	recsAfter, err := store.FindByChainAndHash(ctx, "chain1", hashutil.MainContextHash)
	require.NoError(t, err)

	require.ElementsMatch(t, recsBefore, recsAfter)
}

func TestReorgClearsAndReplays(t *testing.T) {
	store, tr, eng := setup(t)
	ctx := context.Background()

	// Chain A: genesis -> a1 -> a2
	a1 := hashN(1)
	a2 := hashN(2)
	require.NoError(t, tr.AddBlock(tree.BlockNode{Hash: a1, Height: 1, LastContextHash: hashutil.ZeroHash}))
	require.NoError(t, tr.AddBlock(tree.BlockNode{Hash: a2, Height: 2, LastContextHash: a1}))
	pushValue(t, store, "chain1", a1, "v", "A")

	require.NoError(t, eng.Consolide(ctx, "chain1", a2))
	v, _, _, err := store.Get(ctx, "chain1", "v", hashutil.MainContextHash)
	require.NoError(t, err)
	require.Equal(t, "A", v)

	// Chain B diverges at genesis: genesis -> b1 -> b2
	b1 := "fork1" + hashN(1)[5:]
	b2 := "fork1" + hashN(2)[5:]
	require.NoError(t, tr.AddBlock(tree.BlockNode{Hash: b1, Height: 1, LastContextHash: hashutil.ZeroHash}))
	require.NoError(t, tr.AddBlock(tree.BlockNode{Hash: b2, Height: 2, LastContextHash: b1}))
	pushValue(t, store, "chain1", b1, "v", "B")

	require.NoError(t, eng.Consolide(ctx, "chain1", b2))
	v, _, _, err = store.Get(ctx, "chain1", "v", hashutil.MainContextHash)
	require.NoError(t, err)
	require.Equal(t, "B", v)
}
