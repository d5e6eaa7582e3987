// Package notify lets callers block until the chain's mined tip
// reaches a given height, the way the teacher's protocol.Chain
// exposes BlockWaiter over a multichan.W (get.go: "chain.BlockWaiter(want)").
// It backs the read-query façades' blocking reads (SPEC_FULL.md §9).
// The consolidation engine does not publish through it.
package notify

import (
	"context"

	"github.com/bobg/multichan"

	"github.com/bywise-go/envcore/internal/tree"
)

// Heights fans out "mined block reached height H" events to any
// number of concurrent waiters.
type Heights struct {
	w *multichan.W
}

// NewHeights returns a Heights notifier and wires it to tr so that
// every call to tr.SetMinedBlock republishes the new height. Callers
// that also need to react to new mined blocks (e.g. triggering
// consolidation) should not call tr.OnMinedBlock again afterwards, as
// that would replace this registration; instead compose a callback
// that also calls Notify directly.
func NewHeights(tr *tree.Tree) *Heights {
	h := &Heights{w: multichan.New(uint64(0))}
	tr.OnMinedBlock(h.Notify)
	return h
}

// Notify republishes b's height to every waiting reader. Exposed so
// callers composing their own tr.OnMinedBlock callback (e.g. to also
// trigger consolidation) can still drive this notifier.
func (h *Heights) Notify(b tree.BlockNode) {
	h.w.Write(b.Height)
}

// Wait blocks until the mined chain has reached at least want, or ctx
// is done. It returns the first height seen that is >= want.
func (h *Heights) Wait(ctx context.Context, want uint64) (uint64, bool) {
	r := h.w.Reader()
	defer r.Dispose()
	for {
		v, ok := r.Read(ctx)
		if !ok {
			return 0, false
		}
		height := v.(uint64)
		if height >= want {
			return height, true
		}
	}
}
