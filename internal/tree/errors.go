package tree

import "github.com/pkg/errors"

// Sentinel error kinds from spec.md §7. Callers match them with
// errors.Is; the core wraps them with errors.Wrap for call-site
// context before returning, the way the teacher wraps chain/txvm
// errors throughout store/store.go and pin.go.
var (
	// ErrContextHashNotFound is raised when an ancestor walk can't
	// resolve a context hash to any known block or slice.
	ErrContextHashNotFound = errors.New("context hash not found")

	// ErrSliceAncestorMissing is raised when a slice's predecessor
	// slice (same producer, same blockHeight, height-1) doesn't exist.
	ErrSliceAncestorMissing = errors.New("slice ancestor missing")

	// ErrInvalidParent is raised when a block or slice names a parent
	// hash that isn't ZeroHash and isn't a known block/slice hash.
	ErrInvalidParent = errors.New("invalid parent hash")

	// ErrDuplicateGenesis is raised by SetZeroBlock when a Tree's
	// chain identity is already set to a different hash. Fatal for
	// this chain identity: the caller should refuse to start rather
	// than run with a mixed-up genesis.
	ErrDuplicateGenesis = errors.New("duplicate genesis block")
)
