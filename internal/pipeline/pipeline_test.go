package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/bywise-go/envcore/internal/tree"
)

// fakeClock is a manually-advanced Clock, so Mempool's timeout sweep
// can be tested without sleeping 240 real seconds.
type fakeClock struct {
	mu  sync.Mutex
	now int64
}

func (c *fakeClock) NowUnix() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += int64(d / time.Second)
}

func TestRunnerRunSucceeds(t *testing.T) {
	r := NewRunner("test", nil)

	var calls int32
	var mu sync.Mutex
	done := make(chan struct{})
	r.Register("noop", func(ctx context.Context) error {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			close(done)
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- r.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop never ran")
	}
	cancel()

	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunnerStopsOnFatalError(t *testing.T) {
	r := NewRunner("test", nil)
	sentinel := errors.New("boom")

	r.Register("fails", func(ctx context.Context) error {
		return sentinel
	})
	// A second loop that would run forever if not canceled by the
	// first loop's fatal error.
	r.Register("spins", func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})

	err := r.Run(context.Background())
	require.Error(t, err)
	require.Equal(t, sentinel, errors.Cause(err))
}

func TestRunnerRetriesRetriableError(t *testing.T) {
	r := NewRunner("test", nil)

	var attempts int32
	var mu sync.Mutex
	ctx, cancel := context.WithCancel(context.Background())
	r.Register("flaky", func(ctx context.Context) error {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n >= 3 {
			cancel()
		}
		return tree.ErrContextHashNotFound
	})

	err := r.Run(ctx)
	require.NoError(t, err)
	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, attempts, int32(3))
}

func TestRunnerGivesUpAfterRetryBudget(t *testing.T) {
	r := NewRunner("test", nil)

	var attempts int32
	var mu sync.Mutex
	r.Register("flaky", func(ctx context.Context) error {
		mu.Lock()
		attempts++
		mu.Unlock()
		return &SliceError{Hash: "slice1", Err: tree.ErrSliceAncestorMissing}
	})

	err := r.Run(context.Background())
	require.Error(t, err)
	require.Equal(t, tree.ErrSliceAncestorMissing, errors.Cause(err))

	mu.Lock()
	defer mu.Unlock()
	// DefaultMaxTrys successful-or-retried attempts, plus the one that
	// tips the tracker past its budget.
	require.Equal(t, int32(DefaultMaxTrys+1), attempts)
}

func TestRetryKeyPerSliceHash(t *testing.T) {
	require.Equal(t, "loop:slice1", retryKey("loop", &SliceError{Hash: "slice1", Err: tree.ErrSliceAncestorMissing}))
	require.Equal(t, "loop", retryKey("loop", tree.ErrContextHashNotFound))
}

func TestRetriable(t *testing.T) {
	require.True(t, Retriable(tree.ErrContextHashNotFound))
	require.True(t, Retriable(errors.Wrap(tree.ErrSliceAncestorMissing, "resolving slice")))
	require.False(t, Retriable(errors.New("some other failure")))
}

func TestMempoolSweepExpiresPastTimeout(t *testing.T) {
	clock := &fakeClock{now: 1000}
	mp := NewMempool(clock, 240*time.Second)

	mp.Submit("tx1")
	mp.Submit("tx2")
	mp.Include("tx2")

	require.Empty(t, mp.Sweep())

	clock.Advance(241 * time.Second)

	expired := mp.Sweep()
	require.Equal(t, []string{"tx1"}, expired)

	status, ok := mp.Status("tx1")
	require.True(t, ok)
	require.Equal(t, TxExpired, status)

	// tx2 was included before it could expire, so Sweep drops it from
	// tracking entirely rather than reporting it as expired.
	_, ok = mp.Status("tx2")
	require.False(t, ok)
}

func TestMempoolSweepLoopInvokesCallback(t *testing.T) {
	clock := &fakeClock{now: 0}
	mp := NewMempool(clock, time.Second)
	mp.Submit("tx1")
	clock.Advance(2 * time.Second)

	var got string
	loop := SweepLoop(mp, time.Millisecond, func(hash string) { got = hash })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, loop(ctx))
	require.Equal(t, "tx1", got)
}

func TestRetryTrackerExhaustsAtMax(t *testing.T) {
	rt := NewRetryTracker(3)

	require.True(t, rt.Attempt("h1"))
	require.True(t, rt.Attempt("h1"))
	require.True(t, rt.Attempt("h1"))
	require.False(t, rt.Attempt("h1"))
	require.Equal(t, 4, rt.Trys("h1"))

	rt.Forget("h1")
	require.Equal(t, 0, rt.Trys("h1"))
	require.True(t, rt.Attempt("h1"))
}

func TestRetryTrackerDefaultMax(t *testing.T) {
	rt := NewRetryTracker(0)
	for i := 0; i < DefaultMaxTrys; i++ {
		require.True(t, rt.Attempt("h1"))
	}
	require.False(t, rt.Attempt("h1"))
}
