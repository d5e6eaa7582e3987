package pipeline

import (
	"github.com/pkg/errors"

	"github.com/bywise-go/envcore/internal/tree"
)

// Retriable reports whether err is the kind of transient failure
// spec.md §7 tells callers to retry later rather than treat as fatal:
// an ancestor walk that hasn't caught up with a recently-added
// block/slice yet. Unwrapped with errors.Cause rather than
// stdlib errors.Is, matching how the teacher's pkg/errors vintage
// compares sentinel errors throughout store/store.go.
func Retriable(err error) bool {
	switch errors.Cause(err) {
	case tree.ErrContextHashNotFound, tree.ErrSliceAncestorMissing:
		return true
	default:
		return false
	}
}

// SliceError associates a retriable failure with the specific slice
// or block hash it was resolving, so Runner can charge retries against
// that hash's own countTrys budget (spec.md §7) instead of a single
// budget shared by the whole loop. A sync/execute loop that fails to
// resolve hash's ancestors should return &SliceError{Hash: hash, Err:
// tree.ErrSliceAncestorMissing} (or wrap it) rather than the bare
// tree error.
type SliceError struct {
	Hash string
	Err  error
}

func (e *SliceError) Error() string { return e.Err.Error() }

// Cause unwraps to the underlying error, so errors.Cause (and
// Retriable) see past SliceError to the sentinel it wraps.
func (e *SliceError) Cause() error { return e.Err }

// retryKey picks the RetryTracker key for a failed loop iteration:
// per-hash when err identifies one, per-loop-name otherwise.
func retryKey(name string, err error) string {
	if se, ok := err.(*SliceError); ok {
		return name + ":" + se.Hash
	}
	return name
}
