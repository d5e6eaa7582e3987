package providers

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bywise-go/envcore/internal/envctx"
	"github.com/bywise-go/envcore/internal/envstore"
	"github.com/bywise-go/envcore/internal/hashutil"
	"github.com/bywise-go/envcore/internal/kv"
	"github.com/bywise-go/envcore/internal/tree"
)

func newTestStore(t *testing.T) *envstore.Store {
	t.Helper()
	backend, err := kv.NewSQLiteBackend(":memory:", "env_providers")
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return envstore.New(backend, tree.New())
}

func TestBalanceTransfer(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	c := envctx.New(store, "chain1", 0, hashutil.ZeroHash)
	defer c.Dispose()

	bal := NewBalanceProvider(c)
	require.NoError(t, bal.Credit(ctx, "alice", "usd", big.NewInt(100)))

	require.NoError(t, bal.Transfer(ctx, "alice", "bob", "usd", big.NewInt(40)))

	aliceBal, err := bal.Balance(ctx, "alice", "usd")
	require.NoError(t, err)
	require.Equal(t, big.NewInt(60), aliceBal)

	bobBal, err := bal.Balance(ctx, "bob", "usd")
	require.NoError(t, err)
	require.Equal(t, big.NewInt(40), bobBal)
}

func TestBalanceTransferInsufficientFunds(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	c := envctx.New(store, "chain1", 0, hashutil.ZeroHash)
	defer c.Dispose()

	bal := NewBalanceProvider(c)
	err := bal.Transfer(ctx, "alice", "bob", "usd", big.NewInt(1))
	require.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestConfigRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	c := envctx.New(store, "chain1", 0, hashutil.ZeroHash)
	defer c.Dispose()

	type params struct {
		MaxBlockSize int `json:"maxBlockSize"`
	}

	cfg := NewConfigProvider(c)
	require.NoError(t, cfg.Set("protocol", params{MaxBlockSize: 4096}))

	var got params
	found, err := cfg.Get(ctx, "protocol", &got)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 4096, got.MaxBlockSize)

	found, err = cfg.Get(ctx, "unset", &got)
	require.NoError(t, err)
	require.False(t, found)
}

func TestVoteTally(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	hash := padHash("b1")

	c := envctx.New(store, "chain1", 0, hash)
	vp := NewVoteProvider(c, store)
	vp.Cast("round1", "v1", "yes")
	vp.Cast("round1", "v2", "yes")
	vp.Cast("round1", "v3", "no")
	c.Commit()
	require.NoError(t, c.Push(ctx, hash))
	c.Dispose()

	c2 := envctx.New(store, "chain1", 0, hash)
	vp2 := NewVoteProvider(c2, store)
	tally, err := vp2.Tally(ctx, "chain1", "round1", hash)
	require.NoError(t, err)
	require.Equal(t, 2, tally["yes"])
	require.Equal(t, 1, tally["no"])
	c2.Dispose()
}

func padHash(prefix string) string {
	for len(prefix) < hashutil.Len {
		prefix += "0"
	}
	return prefix
}
