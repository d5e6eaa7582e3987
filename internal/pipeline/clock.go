package pipeline

import "time"

// Clock is a monotonic UNIX-second source (spec.md §6: "Clock"),
// seamed out so the mempool timeout sweep (spec.md §5, ~240s) can be
// tested without sleeping. The teacher has no such seam (submit.go and
// watch.go call time.Now() directly); this is the one ambient concern
// it doesn't already model, added because the sweep needs to be
// driven by a fake clock in tests.
type Clock interface {
	NowUnix() int64
}

// SystemClock is the default Clock, backed by the real wall clock.
type SystemClock struct{}

// NowUnix returns time.Now().Unix().
func (SystemClock) NowUnix() int64 { return time.Now().Unix() }
