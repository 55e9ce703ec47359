package pagination

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/kartikbazzad/docfeed/internal/metrics"
)

// PrefetchInParallel runs Prefetch on every prefetcher with at most maxConcurrency
// of them in flight. A new prefetch starts as soon as a running one finishes.
//
// On the first failure no further prefetches are started; the ones already running
// are awaited and their outcomes discarded, then the first failure is returned.
// A maxConcurrency of zero or less does nothing.
func PrefetchInParallel(ctx context.Context, prefetchers []Prefetcher, maxConcurrency int) error {
	if maxConcurrency <= 0 || len(prefetchers) == 0 {
		return nil
	}
	if maxConcurrency == 1 {
		for _, p := range prefetchers {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := runPrefetch(ctx, p); err != nil {
				return err
			}
		}
		return nil
	}

	var (
		wg       sync.WaitGroup
		once     sync.Once
		failed   atomic.Bool
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			failed.Store(true)
		})
	}

	size := min(maxConcurrency, len(prefetchers))
	// A panicking task skips its own wg.Done; the handler records the panic
	// before counting the task down.
	pool, err := ants.NewPool(size, ants.WithPanicHandler(func(v any) {
		fail(fmt.Errorf("prefetch panic: %v", v))
		wg.Done()
	}))
	if err != nil {
		return fmt.Errorf("create prefetch pool: %w", err)
	}
	defer pool.Release()

	for _, p := range prefetchers {
		if failed.Load() {
			break
		}
		if err := ctx.Err(); err != nil {
			fail(err)
			break
		}
		wg.Add(1)
		// Submit blocks while all workers are busy.
		err := pool.Submit(func() {
			if err := runPrefetch(ctx, p); err != nil {
				fail(err)
			}
			wg.Done()
		})
		if err != nil {
			wg.Done()
			fail(fmt.Errorf("submit prefetch: %w", err))
			break
		}
	}

	wg.Wait()
	return firstErr
}

func runPrefetch(ctx context.Context, p Prefetcher) error {
	metrics.PrefetchInFlight.Inc()
	defer metrics.PrefetchInFlight.Dec()
	start := time.Now()
	err := p.Prefetch(ctx)
	metrics.RecordPrefetch(start, err)
	return err
}
