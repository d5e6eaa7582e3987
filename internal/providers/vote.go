package providers

import (
	"context"

	"github.com/pkg/errors"

	"github.com/bywise-go/envcore/internal/envctx"
	"github.com/bywise-go/envcore/internal/envstore"
)

// voteKey mirrors spec.md §4.5: "Voting is recorded as ordinary state
// writes under a dedicated key prefix; vote counting reads via the
// same context semantics."
func voteKey(round, voter string) string {
	return "vote-" + round + "-" + voter
}

// VoteProvider records and tallies votes for one round as ordinary
// environment records.
type VoteProvider struct {
	ctx   *envctx.Context
	store *envstore.Store
}

// NewVoteProvider wraps an open Context. Tally additionally needs the
// backing Store directly, since a vote tally enumerates every voter's
// key rather than resolving one known key, something a Context's
// single-key staging tiers don't model.
func NewVoteProvider(c *envctx.Context, store *envstore.Store) *VoteProvider {
	return &VoteProvider{ctx: c, store: store}
}

// Cast records voter's choice for round, overwriting any earlier vote
// by the same voter in the same context.
func (p *VoteProvider) Cast(round, voter, choice string) {
	p.ctx.Set(voteKey(round, voter), choice)
}

// Vote returns voter's recorded choice for round, if any.
func (p *VoteProvider) Vote(ctx context.Context, round, voter string) (string, bool, error) {
	v, err := p.ctx.Get(ctx, voteKey(round, voter))
	if err != nil {
		return "", false, errors.Wrapf(err, "reading vote %s/%s", round, voter)
	}
	return v, v != "", nil
}

// Tally counts votes for round as seen from fromHash, returning a map
// of choice to vote count.
func (p *VoteProvider) Tally(ctx context.Context, chain, round, fromHash string) (map[string]int, error) {
	recs, err := p.store.GetSlowList(ctx, chain, "vote-"+round, fromHash)
	if err != nil {
		return nil, errors.Wrapf(err, "tallying round %s", round)
	}
	tally := make(map[string]int)
	for _, rec := range recs {
		if rec.Value == "" {
			continue
		}
		tally[rec.Value]++
	}
	return tally, nil
}

