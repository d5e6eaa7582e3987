package providers

import (
	"context"

	"github.com/pkg/errors"

	"github.com/bywise-go/envcore/internal/envctx"
)

// MempoolEntry is one transaction a slice-minting façade simulates
// before committing or deleteCommitting it (spec.md §4.5, "slice
// minting").
type MempoolEntry struct {
	Hash string `json:"hash"`
	Body []byte `json:"body"`
}

func sliceMempoolKey() string { return "slice-mempool" }

// SliceProvider is the "slice minting" caller façade: a Context opened
// at the previous slice's hash (or the mined block's hash for the
// first slice of a block interval), into which the pipeline simulates
// mempool transactions one at a time.
type SliceProvider struct {
	ctx *envctx.Context
}

// NewSliceProvider wraps an already-open Context.
func NewSliceProvider(c *envctx.Context) *SliceProvider {
	return &SliceProvider{ctx: c}
}

// Mempool returns the list of transactions staged for this slice.
func (p *SliceProvider) Mempool(ctx context.Context) ([]MempoolEntry, error) {
	var entries []MempoolEntry
	_, err := getJSON(ctx, p.ctx, sliceMempoolKey(), &entries)
	return entries, errors.Wrap(err, "reading slice mempool")
}

// SetMempool stages the transaction list included in this slice.
func (p *SliceProvider) SetMempool(entries []MempoolEntry) error {
	return errors.Wrap(setJSON(p.ctx, sliceMempoolKey(), entries), "writing slice mempool")
}
