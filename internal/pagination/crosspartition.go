package pagination

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	docerrors "github.com/kartikbazzad/docfeed/internal/errors"
	"github.com/kartikbazzad/docfeed/internal/feedrange"
	"github.com/kartikbazzad/docfeed/internal/logger"
	"github.com/kartikbazzad/docfeed/internal/metrics"
)

// CrossPartitionOptions configures a CrossPartitionEnumerator.
type CrossPartitionOptions[S State] struct {
	// MaxConcurrency bounds the initial parallel prefetch. Values below 2 skip it.
	MaxConcurrency int
	PrefetchPolicy PrefetchPolicy
	// Comparator orders the working set. Nil serves ranges first in, first out.
	Comparator Comparator[S]
	// InitialState resumes a previous enumeration. Nil starts every range from
	// the beginning.
	InitialState *CrossFeedRangeState[S]
	Logger       *slog.Logger
}

// CrossPartitionPage is one page of the merged stream.
type CrossPartitionPage[S State] struct {
	Page Page[S]
	// FeedRange is the range that served Page.
	FeedRange feedrange.FeedRange
	// State resumes the enumeration after Page. Nil once every range is drained.
	State *CrossFeedRangeState[S]
}

type phase int

const (
	phaseUninitialized phase = iota
	phaseDraining
	phaseExhausted
)

// CrossPartitionEnumerator merges the pages of every feed range of a container
// into one stream.
//
// Partition splits are repaired transparently: a range that reports gone is
// replaced by enumerators for its children, each resuming at the parent's state.
// A CrossPartitionEnumerator is not safe for concurrent use.
type CrossPartitionEnumerator[S State] struct {
	provider FeedRangeProvider
	source   PageSource[S]
	opts     CrossPartitionOptions[S]
	log      *slog.Logger

	phase   phase
	queue   workQueue[S]
	current CrossPartitionPage[S]
	err     error
	closed  bool
}

// NewCrossPartitionEnumerator validates opts and returns an enumerator that does
// no I/O until the first Advance.
func NewCrossPartitionEnumerator[S State](provider FeedRangeProvider, source PageSource[S], opts CrossPartitionOptions[S]) (*CrossPartitionEnumerator[S], error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: feed range provider is required", docerrors.ErrInvalidOptions)
	}
	if source == nil {
		return nil, fmt.Errorf("%w: page source is required", docerrors.ErrInvalidOptions)
	}
	if opts.MaxConcurrency < 0 {
		return nil, fmt.Errorf("%w: max concurrency %d", docerrors.ErrInvalidOptions, opts.MaxConcurrency)
	}
	if !opts.PrefetchPolicy.valid() {
		return nil, fmt.Errorf("%w: prefetch policy %s", docerrors.ErrInvalidOptions, opts.PrefetchPolicy)
	}
	if opts.InitialState != nil && opts.InitialState.Len() == 0 {
		return nil, docerrors.ErrEmptyCrossFeedRangeState
	}
	log := opts.Logger
	if log == nil {
		log = logger.Get()
	}
	return &CrossPartitionEnumerator[S]{
		provider: provider,
		source:   source,
		opts:     opts,
		log:      logger.WithComponent(log, "pagination"),
		queue:    newWorkQueue(opts.Comparator),
	}, nil
}

// Advance serves the next page. It returns false once every range is drained.
// Failures are returned as true with the error held in Current; the caller may
// Advance again to retry.
func (e *CrossPartitionEnumerator[S]) Advance(ctx context.Context) bool {
	if e.closed {
		e.fail(docerrors.ErrEnumeratorClosed)
		return false
	}
	if e.phase == phaseExhausted {
		e.current, e.err = CrossPartitionPage[S]{}, nil
		return false
	}
	if e.phase == phaseUninitialized {
		if err := e.initialize(ctx); err != nil {
			e.fail(err)
			return true
		}
		e.phase = phaseDraining
	}

	// Enumerators that resolved to a single child during this call.
	merged := make(map[BufferedEnumerator[S]]struct{})
	for {
		if err := ctx.Err(); err != nil {
			e.fail(err)
			return true
		}
		enum, ok := e.queue.Pop()
		if !ok {
			e.phase = phaseExhausted
			e.current, e.err = CrossPartitionPage[S]{}, nil
			metrics.WorkingSetSize.Set(0)
			return false
		}

		if !enum.Advance(ctx) {
			_ = enum.Close()
			continue
		}
		page, err := enum.Current()
		if err != nil {
			switch {
			case docerrors.IsPartitionGone(err):
				if err := e.repair(ctx, enum, merged); err != nil {
					e.fail(err)
					return true
				}
				continue
			case ctx.Err() != nil:
				// The caller gave up; a source timeout under a live ctx is retried.
				_ = enum.Close()
			default:
				e.queue.Push(enum)
			}
			e.fail(err)
			return true
		}

		position := enum.FeedRangeState()
		if IsAbsent(position.State) {
			_ = enum.Close()
		} else {
			e.requeue(ctx, enum)
		}
		e.current = CrossPartitionPage[S]{
			Page:      page,
			FeedRange: position.FeedRange,
			State:     e.snapshot(),
		}
		e.err = nil
		metrics.RecordPage(nil, page.ItemCount(), page.RequestCharge())
		metrics.WorkingSetSize.Set(float64(e.queue.Len()))
		e.log.Debug("page served",
			"range", position.FeedRange.String(),
			"items", page.ItemCount(),
			"charge", page.RequestCharge(),
			"remaining", e.queue.Len())
		return true
	}
}

// Current returns the result of the last Advance.
func (e *CrossPartitionEnumerator[S]) Current() (CrossPartitionPage[S], error) {
	return e.current, e.err
}

// State returns the continuation of the last served page. It reports false
// before the first page and after the last one.
func (e *CrossPartitionEnumerator[S]) State() (CrossFeedRangeState[S], bool) {
	if e.current.State == nil {
		return CrossFeedRangeState[S]{}, false
	}
	return *e.current.State, true
}

// Peek returns the position of the range that the next Advance will try first.
func (e *CrossPartitionEnumerator[S]) Peek() (FeedRangeState[S], bool) {
	enum, ok := e.queue.Peek()
	if !ok {
		return FeedRangeState[S]{}, false
	}
	return enum.FeedRangeState(), true
}

// All iterates over the remaining pages. Iteration stops when the caller breaks
// out or every range is drained; errors are yielded and the caller decides
// whether to continue.
func (e *CrossPartitionEnumerator[S]) All(ctx context.Context) iter.Seq2[CrossPartitionPage[S], error] {
	return func(yield func(CrossPartitionPage[S], error) bool) {
		for e.Advance(ctx) {
			if !yield(e.Current()) {
				return
			}
		}
		if errors.Is(e.err, docerrors.ErrEnumeratorClosed) {
			yield(CrossPartitionPage[S]{}, e.err)
		}
	}
}

// Close closes every enumerator still in the working set.
func (e *CrossPartitionEnumerator[S]) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	var errs []error
	for {
		enum, ok := e.queue.Pop()
		if !ok {
			break
		}
		if err := enum.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *CrossPartitionEnumerator[S]) fail(err error) {
	e.current, e.err = CrossPartitionPage[S]{}, err
	metrics.RecordPage(err, 0, 0)
}

func (e *CrossPartitionEnumerator[S]) newEnumerator(position FeedRangeState[S]) BufferedEnumerator[S] {
	return newBuffered(NewRangeEnumerator(e.source, position), e.opts.PrefetchPolicy)
}

// initialize fans out over the provider's ranges, or over the ranges of the
// initial state, and prefetches them in parallel.
func (e *CrossPartitionEnumerator[S]) initialize(ctx context.Context) error {
	var positions []FeedRangeState[S]
	if e.opts.InitialState != nil {
		positions = e.opts.InitialState.Ranges()
	} else {
		ranges, err := e.provider.GetFeedRanges(ctx)
		if err != nil {
			return fmt.Errorf("get feed ranges: %w", err)
		}
		if len(ranges) == 0 {
			return docerrors.Internal(docerrors.ErrNoFeedRanges)
		}
		var absent S
		positions = make([]FeedRangeState[S], len(ranges))
		for i, r := range ranges {
			positions[i] = NewFeedRangeState(r, absent)
		}
	}

	enums := make([]BufferedEnumerator[S], len(positions))
	prefetchers := make([]Prefetcher, len(positions))
	for i, p := range positions {
		enums[i] = e.newEnumerator(p)
		prefetchers[i] = enums[i]
	}
	if e.opts.MaxConcurrency > 1 {
		if err := PrefetchInParallel(ctx, prefetchers, e.opts.MaxConcurrency); err != nil {
			for _, enum := range enums {
				_ = enum.Close()
			}
			return err
		}
	}
	// Pushed after prefetching so that comparators see buffered pages.
	for _, enum := range enums {
		e.queue.Push(enum)
	}
	e.log.Debug("enumeration started",
		"ranges", len(enums),
		"resumed", e.opts.InitialState != nil,
		"policy", e.opts.PrefetchPolicy.String())
	return nil
}

// requeue returns enum to the working set. Priority queues order by buffered
// content, so the next page is fetched first.
func (e *CrossPartitionEnumerator[S]) requeue(ctx context.Context, enum BufferedEnumerator[S]) {
	if e.opts.Comparator != nil {
		// Only cancellation fails here and it resurfaces on the next Advance.
		_ = enum.Prefetch(ctx)
	}
	e.queue.Push(enum)
}

// repair handles a gone range. A split replaces enum with its children; a
// merge puts enum back unchanged.
func (e *CrossPartitionEnumerator[S]) repair(ctx context.Context, enum BufferedEnumerator[S], merged map[BufferedEnumerator[S]]struct{}) error {
	position := enum.FeedRangeState()
	children, err := e.provider.GetChildRanges(ctx, position.FeedRange)
	if err != nil {
		e.queue.Push(enum)
		return fmt.Errorf("get child ranges of %s: %w", position.FeedRange, err)
	}
	if len(children) <= 1 {
		// The topology may be stale; look again with fresh routing.
		metrics.TopologyChangesTotal.WithLabelValues(metrics.TopologyRefresh).Inc()
		e.log.Debug("refreshing feed range cache", "range", position.FeedRange.String())
		if err := e.provider.RefreshCache(ctx); err != nil {
			e.queue.Push(enum)
			return fmt.Errorf("refresh feed range cache: %w", err)
		}
		children, err = e.provider.GetChildRanges(ctx, position.FeedRange)
		if err != nil {
			e.queue.Push(enum)
			return fmt.Errorf("get child ranges of %s: %w", position.FeedRange, err)
		}
	}

	switch len(children) {
	case 0:
		_ = enum.Close()
		return docerrors.Internal(fmt.Errorf("%w: %s", docerrors.ErrNoChildRanges, position.FeedRange))
	case 1:
		metrics.TopologyChangesTotal.WithLabelValues(metrics.TopologyMerge).Inc()
		e.queue.Push(enum)
		if _, seen := merged[enum]; seen {
			return docerrors.NotImplemented(fmt.Errorf("%w: %s", docerrors.ErrMergeNotImplemented, position.FeedRange))
		}
		merged[enum] = struct{}{}
		e.log.Info("partition merged", "range", position.FeedRange.String(), "into", children[0].String())
		return nil
	default:
		metrics.TopologyChangesTotal.WithLabelValues(metrics.TopologySplit).Inc()
		for _, child := range children {
			e.queue.Push(e.newEnumerator(NewFeedRangeState(child, position.State)))
		}
		e.log.Info("partition split", "range", position.FeedRange.String(), "children", len(children))
		if err := enum.Close(); err != nil {
			e.log.Warn("failed to release split range", "range", position.FeedRange.String(), "error", err)
		}
		return nil
	}
}

// snapshot captures the position of every range still in the working set.
func (e *CrossPartitionEnumerator[S]) snapshot() *CrossFeedRangeState[S] {
	items := e.queue.Items()
	if len(items) == 0 {
		return nil
	}
	positions := make([]FeedRangeState[S], len(items))
	for i, enum := range items {
		positions[i] = enum.FeedRangeState()
	}
	state := CrossFeedRangeState[S]{ranges: positions}
	return &state
}
