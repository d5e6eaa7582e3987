// Package pipeline schedules the per-chain worker loops described in
// spec.md §5 (sync, execute-slices, execute-blocks, mint-slices,
// mint-blocks, vote, consensus, consolidate, timeout sweep). Runner
// runs whatever loops are registered with it; of these, the package
// itself provides only the timeout sweep (SweepLoop).
// Workers are cooperative — they check a run flag between steps
// rather than being preempted mid-operation; here that's expressed as
// a cancelable context.Context instead of spec.md's polled `isRun`
// bool, the idiomatic Go rendition of the same contract.
package pipeline

import (
	"context"
	"time"

	"github.com/davecgh/go-spew/spew"
	starlightnet "github.com/interstellar/starlight/net"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Loop is one named worker loop. It should perform one unit of work
// and return; Runner calls it again in a tight retry/backoff cycle
// until ctx is done or it returns a non-retriable error.
type Loop func(ctx context.Context) error

// Runner owns the named loops for a single chain pipeline and runs
// them concurrently via an errgroup (spec.md §5's "single logical
// timeline per chain", each with its own worker). The first
// non-retriable loop failure cancels every other loop, mirroring the
// teacher's submitter/custodian goroutines, which all log and keep
// running until ctx is canceled.
type Runner struct {
	Chain string
	Log   *logrus.Entry

	loops   map[string]Loop
	retries *RetryTracker
}

// NewRunner returns a Runner for chain, logging under the given
// logrus logger (or logrus.StandardLogger() if nil).
func NewRunner(chain string, log *logrus.Logger) *Runner {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Runner{
		Chain:   chain,
		Log:     log.WithField("chain", chain),
		loops:   make(map[string]Loop),
		retries: NewRetryTracker(DefaultMaxTrys),
	}
}

// Register adds a named loop. Registering the same name twice
// replaces the previous loop.
func (r *Runner) Register(name string, l Loop) {
	if r.loops == nil {
		r.loops = make(map[string]Loop)
	}
	r.loops[name] = l
}

// Run launches every registered loop and blocks until ctx is done or
// one loop returns a non-retriable error, in which case it cancels
// the rest and returns that error.
func (r *Runner) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for name, loop := range r.loops {
		name, loop := name, loop
		g.Go(func() error {
			return r.runLoop(gctx, name, loop)
		})
	}
	return g.Wait()
}

// runLoop repeats loop until ctx is done, applying exponential backoff
// on retriable errors (ContextHashNotFound / SliceAncestorMissing, per
// spec.md §7's caller policy: "propagate; retry later"), and stopping
// the whole pipeline on anything else.
func (r *Runner) runLoop(ctx context.Context, name string, loop Loop) error {
	log := r.Log.WithField("loop", name)
	backoff := &starlightnet.Backoff{Base: 100 * time.Millisecond}

	for {
		if ctx.Err() != nil {
			return nil
		}
		err := loop(ctx)
		if err == nil {
			backoff = &starlightnet.Backoff{Base: 100 * time.Millisecond}
			continue
		}
		if !Retriable(err) {
			log.WithError(err).Error("loop failed, stopping pipeline")
			return errors.Wrapf(err, "loop %s", name)
		}
		key := retryKey(name, err)
		if !r.retries.Attempt(key) {
			debugDump(log, "giving up after exceeding retry budget", err)
			log.WithError(err).Errorf("%s exceeded %d retries, stopping pipeline", key, r.retries.max)
			return errors.Wrapf(err, "loop %s exceeded retry budget", name)
		}
		log.WithError(err).Warn("retriable error, backing off")
		wait := backoff.Next()
		if wait > maxBackoff {
			wait = maxBackoff
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// maxBackoff caps Runner's retry backoff, since starlightnet.Backoff
// grows unbounded on its own (it has no Max field, unlike some of the
// teacher's other retry helpers).
const maxBackoff = 30 * time.Second

// debugDump logs v via spew.Sdump at debug level, for dumping a
// rejected slice/block the way the teacher's watch.go dumps decoded
// peg info with spew.Sdump before discarding it.
func debugDump(log *logrus.Entry, label string, v interface{}) {
	log.Debugf("%s:\n%s", label, spew.Sdump(v))
}
