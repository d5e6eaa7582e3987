package providers

import (
	"context"

	"github.com/pkg/errors"

	"github.com/bywise-go/envcore/internal/envctx"
)

// BlockHeader is the domain metadata a block execution façade stores
// alongside the bare BlockNode the tree tracks (spec.md §3 names only
// hash/height/lastContextHash as core fields; everything else is a
// caller concern per §4.5).
type BlockHeader struct {
	Producer  string `json:"producer"`
	Timestamp int64  `json:"timestamp"`
	SliceRoot string `json:"sliceRoot"`
}

func blockHeaderKey() string { return "block-header" }

// BlockProvider is the "block execution" caller façade: a typed place
// to stash a block's own metadata inside a Context the pipeline has
// already opened at the parent block's hash and is replaying slices
// into.
type BlockProvider struct {
	ctx *envctx.Context
}

// NewBlockProvider wraps an already-open Context.
func NewBlockProvider(c *envctx.Context) *BlockProvider {
	return &BlockProvider{ctx: c}
}

// Header returns the block header recorded in this context, if any.
func (p *BlockProvider) Header(ctx context.Context) (BlockHeader, bool, error) {
	var h BlockHeader
	found, err := getJSON(ctx, p.ctx, blockHeaderKey(), &h)
	return h, found, errors.Wrap(err, "reading block header")
}

// SetHeader stages h as this context's block header.
func (p *BlockProvider) SetHeader(h BlockHeader) error {
	return errors.Wrap(setJSON(p.ctx, blockHeaderKey(), h), "writing block header")
}
