// Package tree implements the Block/Slice Tree (spec.md §4.1): the
// in-memory DAG of known blocks and slices, their parent links, and
// the ancestor-walk rules the Environment Store and Environment
// Context build their read semantics on.
package tree

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/bywise-go/envcore/internal/hashutil"
)

// BlockNode is a committed, mined unit of state transition.
type BlockNode struct {
	Hash            string
	Height          uint64
	LastContextHash string // parent block hash, or hashutil.ZeroHash for genesis
}

// SliceNode is a pre-block batch of transactions from one producer.
type SliceNode struct {
	Hash              string
	From              string
	Height            uint64 // height inside its block interval
	BlockHeight       uint64 // = parent block height + 1
	TransactionsCount uint64 // monotonically non-decreasing across rewrites
	End               bool   // terminal marker closing a slice sequence
}

// sliceKey addresses the per-(from, blockHeight, height) bucket used
// by the best-predecessor tie-break rule.
type sliceKey struct {
	from        string
	blockHeight uint64
	height      uint64
}

// Tree is the in-memory index of known blocks and slices for one
// chain. All mutation is serialized by mu; readers may overlap
// (spec.md §5, "Shared-resource policy").
type Tree struct {
	mu sync.RWMutex

	blocks map[string]BlockNode
	slices map[string]SliceNode

	// minedByHeight indexes blocks marked current by SetMinedBlock, by
	// height, so a height-0 slice's ancestor resolves to the mined
	// block at that height rather than an arbitrary same-height fork.
	minedByHeight map[uint64]BlockNode

	// slicesByKey indexes slices for the best-predecessor walk:
	// same (from, blockHeight, height) may have several competing
	// slices (re-signs with different transactionsCount); all are
	// kept, tie-broken at read time.
	slicesByKey map[sliceKey][]SliceNode

	// blockHeightList is the per-blockHeight slice list in insertion
	// order, filled by AddSlice. GetBestSlice does not read it; it walks
	// slicesByKey.
	blockHeightList map[uint64][]SliceNode

	currentMinedBlock BlockNode
	haveMinedBlock    bool
	bestSliceReset    bool

	zeroBlockHash string
	haveZeroBlock bool

	onMinedBlock func(BlockNode)
}

// New returns an empty Tree.
func New() *Tree {
	return &Tree{
		blocks:          make(map[string]BlockNode),
		slices:          make(map[string]SliceNode),
		minedByHeight:   make(map[uint64]BlockNode),
		slicesByKey:     make(map[sliceKey][]SliceNode),
		blockHeightList: make(map[uint64][]SliceNode),
	}
}

// OnMinedBlock registers a callback invoked (under no lock) whenever
// SetMinedBlock advances the current mined block. Used by the
// consolidation engine and by internal/notify to wake waiters, the
// way the teacher's custodian.w.Write wakes BlockWaiter callers.
func (t *Tree) OnMinedBlock(f func(BlockNode)) {
	t.mu.Lock()
	t.onMinedBlock = f
	t.mu.Unlock()
}

// AddBlock inserts a block node. Refuses insertion if lastHash is
// neither an existing block/slice hash nor ZeroHash. Duplicate hashes
// are no-ops; parent links are immutable once set.
func (t *Tree) AddBlock(b BlockNode) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.blocks[b.Hash]; ok {
		return nil
	}
	if !t.knownParentLocked(b.LastContextHash) {
		return errors.Wrapf(ErrInvalidParent, "block %s names parent %s", b.Hash, b.LastContextHash)
	}
	t.blocks[b.Hash] = b
	return nil
}

// SetZeroBlock records hash as this chain's genesis identity, once,
// at node startup — before any blocks or slices exist. It has nothing
// to do with BlockNode.LastContextHash == ZeroHash, which many
// competing height-1 blocks may legitimately share while forks are
// live (internal/consolidate's reorg tests rely on exactly that). This
// instead guards against a caller wiring two different chains'
// genesis configuration into the same Tree: a second, different hash
// fails closed with ErrDuplicateGenesis (spec.md §7's DuplicateGenesis
// row — "fatal for this chain identity; refuse to start").
func (t *Tree) SetZeroBlock(hash string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.haveZeroBlock && t.zeroBlockHash != hash {
		return errors.Wrapf(ErrDuplicateGenesis, "zero block already %s, got %s", t.zeroBlockHash, hash)
	}
	t.zeroBlockHash = hash
	t.haveZeroBlock = true
	return nil
}

// AddSlice inserts a slice node, idempotent on hash.
func (t *Tree) AddSlice(s SliceNode) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.slices[s.Hash]; ok {
		return nil
	}
	t.slices[s.Hash] = s
	key := sliceKey{from: s.From, blockHeight: s.BlockHeight, height: s.Height}
	t.slicesByKey[key] = append(t.slicesByKey[key], s)
	t.blockHeightList[s.BlockHeight] = append(t.blockHeightList[s.BlockHeight], s)
	return nil
}

// SetMinedBlock records block as the mined representative at its
// height. currentMinedBlock advances monotonically; if height is
// strictly greater than the previous mined height, bestSlice state is
// reset (the next getBestSlice call starts fresh at height 0).
func (t *Tree) SetMinedBlock(b BlockNode) {
	t.mu.Lock()
	advanced := !t.haveMinedBlock || b.Height > t.currentMinedBlock.Height
	if advanced {
		t.currentMinedBlock = b
		t.haveMinedBlock = true
		t.bestSliceReset = true
	}
	t.minedByHeight[b.Height] = b
	cb := t.onMinedBlock
	t.mu.Unlock()

	if advanced && cb != nil {
		cb(b)
	}
}

// CurrentMinedBlock returns the most recently set mined block.
func (t *Tree) CurrentMinedBlock() (BlockNode, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.currentMinedBlock, t.haveMinedBlock
}

func (t *Tree) knownParentLocked(hash string) bool {
	if hash == hashutil.ZeroHash {
		return true
	}
	if _, ok := t.blocks[hash]; ok {
		return true
	}
	if _, ok := t.slices[hash]; ok {
		return true
	}
	return false
}

// GetLastHash resolves the ancestor of a context hash, per spec.md
// §4.1.
func (t *Tree) GetLastHash(contextHash string) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.getLastHashLocked(contextHash)
}

func (t *Tree) getLastHashLocked(contextHash string) (string, error) {
	if b, ok := t.blocks[contextHash]; ok {
		return b.LastContextHash, nil
	}
	if s, ok := t.slices[contextHash]; ok {
		if s.Height == 0 {
			if s.BlockHeight == 0 {
				return hashutil.ZeroHash, nil
			}
			if b, ok := t.minedByHeight[s.BlockHeight-1]; ok {
				return b.Hash, nil
			}
			return "", errors.Wrapf(ErrContextHashNotFound, "no mined block at height %d", s.BlockHeight-1)
		}
		pred, ok := t.bestPredecessorLocked(s.From, s.BlockHeight, s.Height-1)
		if !ok {
			return "", errors.Wrapf(ErrSliceAncestorMissing, "slice %s has no predecessor at height %d", s.Hash, s.Height-1)
		}
		return pred.Hash, nil
	}
	return "", errors.Wrapf(ErrContextHashNotFound, "hash %s", contextHash)
}

// bestPredecessorLocked picks, among the candidates at
// (from, blockHeight, height), the one with the greatest
// TransactionsCount, ties broken by insertion order (first wins,
// i.e. the producer's earliest sign of that count).
func (t *Tree) bestPredecessorLocked(from string, blockHeight, height uint64) (SliceNode, bool) {
	cands := t.slicesByKey[sliceKey{from: from, blockHeight: blockHeight, height: height}]
	if len(cands) == 0 {
		return SliceNode{}, false
	}
	best := cands[0]
	for _, c := range cands[1:] {
		if c.TransactionsCount > best.TransactionsCount {
			best = c
		}
	}
	return best, true
}

// GetBlockList returns the full ancestor chain ending at hash,
// starting at ZeroHash.
func (t *Tree) GetBlockList(hash string) ([]string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []string
	cur := hash
	for {
		out = append([]string{cur}, out...)
		if cur == hashutil.ZeroHash {
			break
		}
		next, err := t.getLastHashLocked(cur)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return out, nil
}

// GetSliceList returns the unique ancestor sequence s0..s_height for
// slice s, using the same tie-break rule as GetLastHash. Returns an
// empty slice if any step is missing, or truncates at the first
// End=true slice encountered before reaching s.Height.
func (t *Tree) GetSliceList(hash string) ([]SliceNode, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.slices[hash]
	if !ok {
		return nil, errors.Wrapf(ErrContextHashNotFound, "slice %s", hash)
	}

	seq := make([]SliceNode, s.Height+1)
	seq[s.Height] = s
	cur := s
	truncateAt := -1
	for cur.Height > 0 {
		pred, ok := t.bestPredecessorLocked(cur.From, cur.BlockHeight, cur.Height-1)
		if !ok {
			return nil, nil
		}
		seq[pred.Height] = pred
		if pred.End {
			truncateAt = int(pred.Height)
		}
		cur = pred
	}
	if truncateAt >= 0 {
		return seq[:truncateAt+1], nil
	}
	return seq, nil
}

// GetBestSlice walks heights 0, 1, 2, ... picking for each the slice
// of `from` with the greatest TransactionsCount, preferring End=true
// when present (which terminates the walk). Stops when a height has
// no candidate.
func (t *Tree) GetBestSlice(from string, blockHeight uint64) []SliceNode {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []SliceNode
	for height := uint64(0); ; height++ {
		cands := t.slicesByKey[sliceKey{from: from, blockHeight: blockHeight, height: height}]
		if len(cands) == 0 {
			break
		}
		best := bestAtHeight(cands)
		out = append(out, best)
		if best.End {
			break
		}
	}
	return out
}

// bestAtHeight prefers an End=true candidate; among same-End
// candidates, prefers the greatest TransactionsCount, ties broken by
// insertion order.
func bestAtHeight(cands []SliceNode) SliceNode {
	best := cands[0]
	for _, c := range cands[1:] {
		switch {
		case c.End && !best.End:
			best = c
		case c.End == best.End && c.TransactionsCount > best.TransactionsCount:
			best = c
		}
	}
	return best
}
