package providers

import (
	"context"
	"math/big"

	"github.com/pkg/errors"

	"github.com/bywise-go/envcore/internal/envctx"
)

// ErrInsufficientBalance is returned by Transfer when the sender's
// balance can't cover the amount.
var ErrInsufficientBalance = errors.New("insufficient balance")

// balanceKey mirrors the teacher's per-asset account key shape from
// record.go ("acct-<account>-<asset>"), adapted to this core's single
// flat key namespace.
func balanceKey(account, asset string) string {
	return "balance-" + account + "-" + asset
}

// BalanceProvider is the caller façade spec.md §4.5 calls "transaction
// execution": ordinary key-value state writes under a dedicated
// prefix, read and written through a Context exactly like any other
// caller.
type BalanceProvider struct {
	ctx *envctx.Context
}

// NewBalanceProvider wraps an already-open Context.
func NewBalanceProvider(c *envctx.Context) *BalanceProvider {
	return &BalanceProvider{ctx: c}
}

// Balance returns the current balance of asset held by account, or
// zero if never written.
func (p *BalanceProvider) Balance(ctx context.Context, account, asset string) (*big.Int, error) {
	raw, err := p.ctx.Get(ctx, balanceKey(account, asset))
	if err != nil {
		return nil, errors.Wrap(err, "reading balance")
	}
	if raw == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, errors.Errorf("corrupt balance value %q for %s/%s", raw, account, asset)
	}
	return v, nil
}

// Credit adds amount to account's balance of asset.
func (p *BalanceProvider) Credit(ctx context.Context, account, asset string, amount *big.Int) error {
	bal, err := p.Balance(ctx, account, asset)
	if err != nil {
		return err
	}
	bal.Add(bal, amount)
	p.ctx.Set(balanceKey(account, asset), bal.String())
	return nil
}

// Transfer moves amount of asset from one account to another within
// the same Context, failing without effect if from lacks sufficient
// balance.
func (p *BalanceProvider) Transfer(ctx context.Context, from, to, asset string, amount *big.Int) error {
	fromBal, err := p.Balance(ctx, from, asset)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toBal, err := p.Balance(ctx, to, asset)
	if err != nil {
		return err
	}
	fromBal.Sub(fromBal, amount)
	toBal.Add(toBal, amount)
	p.ctx.Set(balanceKey(from, asset), fromBal.String())
	p.ctx.Set(balanceKey(to, asset), toBal.String())
	return nil
}
