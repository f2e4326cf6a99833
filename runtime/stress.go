package runtime

import (
	"context"
	"fmt"
	"io"
	goruntime "runtime"

	"golang.org/x/sync/errgroup"

	"github.com/chazu/quark/config"
	"github.com/chazu/quark/heap"
	"github.com/chazu/quark/journal"
	"github.com/chazu/quark/value"
)

// StressOptions shapes a collector stress run.
type StressOptions struct {
	// Runtimes is the number of independent runtimes, one per goroutine.
	Runtimes int
	// Iterations is the number of allocation rounds per runtime.
	Iterations int
	// Live is how many tuples each runtime keeps reachable at once.
	Live int
	// Jobs bounds concurrency; zero means GOMAXPROCS.
	Jobs int
	// Journal, when set, records every collection of every runtime.
	Journal *journal.Journal
}

// StressResult is what one runtime did during a stress run.
type StressResult struct {
	RuntimeID string
	Stats     heap.Stats
	Retries   uint64
	Capacity  uint64
	Checksum  int64
	Census    CensusDump
}

// Stress runs the churn workload on independent runtimes in parallel. The
// first error or fatal condition cancels the rest.
func Stress(ctx context.Context, cfg config.Config, opts StressOptions) ([]StressResult, error) {
	if opts.Runtimes <= 0 || opts.Live <= 0 {
		return nil, fmt.Errorf("stress: need at least one runtime and one live tuple")
	}
	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = goruntime.GOMAXPROCS(0)
	}
	runtimeOpts := []Option{WithOutput(io.Discard)}
	if opts.Journal != nil {
		cfg.Journal.Path = ""
		runtimeOpts = append(runtimeOpts, WithJournal(opts.Journal))
	}

	// Each goroutine owns one slot, so results needs no lock.
	results := make([]StressResult, opts.Runtimes)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, opts.Runtimes))
	for i := range results {
		i := i // per-iteration copy; go.mod targets go1.21 loop semantics
		g.Go(func() (err error) {
			defer heap.CatchFatal(&err)

			rt, err := New(cfg, runtimeOpts...)
			if err != nil {
				return err
			}
			defer rt.Close()

			sum, err := rt.Churn(gctx, opts.Iterations, opts.Live)
			if err != nil {
				return fmt.Errorf("runtime %s: %w", rt.ID, err)
			}
			results[i] = StressResult{
				RuntimeID: rt.ID,
				Stats:     rt.heap.Memory().Stats(),
				Retries:   rt.factory.Retries(),
				Capacity:  rt.heap.Memory().Space().Capacity(),
				Checksum:  sum,
				Census:    rt.Dump(),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	log.Infof("stress: %d runtimes finished", len(results))
	return results, nil
}

// Churn keeps live tuples reachable from a ring while allocating garbage
// around them, then checks that every survivor still holds what was
// written into it. It returns the sum of the surviving payloads.
func (rt *Runtime) Churn(ctx context.Context, iterations, live int) (int64, error) {
	s := rt.refs.NewScope()
	defer s.Close()
	h, f := rt.heap, rt.factory

	ring, err := f.NewTuple(live)
	if err != nil {
		return 0, err
	}
	for i := 0; i < iterations; i++ {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
		inner := rt.refs.NewScope()
		label, err := f.NewString(fmt.Sprintf("item-%d", i))
		if err != nil {
			inner.Close()
			return 0, err
		}
		item, err := f.NewTupleOf(value.FromInt(int64(i)), label.Value())
		if err != nil {
			inner.Close()
			return 0, err
		}
		if _, err := f.NewBlob(make([]byte, 8*(i%16))); err != nil {
			inner.Close()
			return 0, err
		}
		h.TupleSet(ring.Value(), i%live, item.Value())
		inner.Close()
	}

	var sum int64
	for i := 0; i < live; i++ {
		item := h.TupleAt(ring.Value(), i)
		if h.IsNil(item) {
			continue
		}
		n := h.TupleAt(item, 0).Int()
		if got, want := h.StringOf(h.TupleAt(item, 1)), fmt.Sprintf("item-%d", n); got != want {
			return 0, fmt.Errorf("churn: slot %d holds %q, want %q", i, got, want)
		}
		sum += n
	}
	return sum, nil
}
