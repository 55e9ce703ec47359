package pagination

import (
	"context"
	"errors"
	"fmt"
	"sync"

	docerrors "github.com/kartikbazzad/docfeed/internal/errors"
)

// PrefetchPolicy selects how far ahead a BufferedEnumerator reads.
type PrefetchPolicy int

const (
	// PrefetchNextPage buffers at most one page.
	PrefetchNextPage PrefetchPolicy = iota
	// PrefetchAll drains the whole range into the buffer.
	PrefetchAll
)

func (p PrefetchPolicy) String() string {
	switch p {
	case PrefetchNextPage:
		return "next_page"
	case PrefetchAll:
		return "all"
	default:
		return fmt.Sprintf("PrefetchPolicy(%d)", int(p))
	}
}

// ParsePrefetchPolicy parses "next_page" or "all".
func ParsePrefetchPolicy(s string) (PrefetchPolicy, error) {
	switch s {
	case "next_page", "":
		return PrefetchNextPage, nil
	case "all":
		return PrefetchAll, nil
	default:
		return 0, fmt.Errorf("%w: unknown prefetch policy %q", docerrors.ErrInvalidOptions, s)
	}
}

func (p PrefetchPolicy) valid() bool {
	return p == PrefetchNextPage || p == PrefetchAll
}

// Prefetcher fills a buffer ahead of demand. Prefetch returns an error only when
// it was cancelled; page failures are buffered and served in order.
type Prefetcher interface {
	Prefetch(ctx context.Context) error
}

// BufferedEnumerator is a RangeEnumerator with a prefetch buffer in front of it.
//
// Its FeedRangeState tracks the last page it served, not the last page it fetched,
// so a snapshot never skips pages that are still in the buffer.
type BufferedEnumerator[S State] interface {
	Prefetcher
	Advance(ctx context.Context) bool
	Current() (Page[S], error)
	FeedRangeState() FeedRangeState[S]
	HasMoreResults() bool
	// Peek returns the next buffered page without consuming it.
	Peek() (Page[S], bool)
	// BufferedItemCount is the number of items fetched but not yet served.
	BufferedItemCount() int
	Close() error
}

// NewBufferedEnumerator wraps inner with the given policy.
func NewBufferedEnumerator[S State](inner *RangeEnumerator[S], policy PrefetchPolicy) (BufferedEnumerator[S], error) {
	if !policy.valid() {
		return nil, fmt.Errorf("%w: unknown prefetch policy %d", docerrors.ErrInvalidOptions, int(policy))
	}
	return newBuffered(inner, policy), nil
}

func newBuffered[S State](inner *RangeEnumerator[S], policy PrefetchPolicy) BufferedEnumerator[S] {
	view := served[S]{position: inner.FeedRangeState(), hasMore: true}
	if policy == PrefetchAll {
		return &fullDrainBuffer[S]{inner: inner, served: view}
	}
	return &singlePageBuffer[S]{inner: inner, served: view}
}

// result is one outcome pulled from the inner enumerator.
type result[S State] struct {
	page      Page[S]
	err       error
	exhausted bool
}

// served is the consumer-facing view shared by both buffer kinds.
type served[S State] struct {
	position FeedRangeState[S]
	hasMore  bool
	current  Page[S]
	err      error
}

func (s *served[S]) serve(r result[S]) {
	s.current, s.err = r.page, r.err
	if r.err == nil {
		s.position = FeedRangeState[S]{FeedRange: s.position.FeedRange, State: r.page.State()}
		s.hasMore = !IsAbsent(r.page.State())
	}
}

func (s *served[S]) fail(err error) {
	s.current, s.err = Page[S]{}, err
}

// pull advances inner once. A failure while ctx is done is returned as an error
// and never buffered. Any other failure, a source's own timeout included, is
// buffered like a page.
func pull[S State](ctx context.Context, inner *RangeEnumerator[S]) (result[S], error) {
	if err := ctx.Err(); err != nil {
		return result[S]{}, err
	}
	if !inner.Advance(ctx) {
		_, err := inner.Current()
		return result[S]{exhausted: err == nil, err: err}, nil
	}
	page, err := inner.Current()
	if err != nil && ctx.Err() != nil {
		return result[S]{}, err
	}
	return result[S]{page: page, err: err}, nil
}

// singlePageBuffer holds at most one prefetched result.
type singlePageBuffer[S State] struct {
	mu       sync.Mutex
	inner    *RangeEnumerator[S]
	buffered *result[S]
	served   served[S]
}

func (b *singlePageBuffer[S]) Prefetch(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fillLocked(ctx)
}

func (b *singlePageBuffer[S]) fillLocked(ctx context.Context) error {
	if b.buffered != nil {
		return nil
	}
	r, err := pull(ctx, b.inner)
	if err != nil {
		return err
	}
	b.buffered = &r
	return nil
}

func (b *singlePageBuffer[S]) Advance(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.fillLocked(ctx); err != nil {
		b.served.fail(err)
		return true
	}
	r := *b.buffered
	b.buffered = nil
	if r.exhausted {
		b.served.fail(nil)
		b.served.hasMore = false
		return false
	}
	b.served.serve(r)
	return !errors.Is(r.err, docerrors.ErrEnumeratorClosed)
}

func (b *singlePageBuffer[S]) Current() (Page[S], error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.served.current, b.served.err
}

func (b *singlePageBuffer[S]) FeedRangeState() FeedRangeState[S] {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.served.position
}

func (b *singlePageBuffer[S]) HasMoreResults() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.served.hasMore
}

func (b *singlePageBuffer[S]) Peek() (Page[S], bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.buffered == nil || b.buffered.exhausted || b.buffered.err != nil {
		return Page[S]{}, false
	}
	return b.buffered.page, true
}

func (b *singlePageBuffer[S]) BufferedItemCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.buffered == nil {
		return 0
	}
	return b.buffered.page.ItemCount()
}

func (b *singlePageBuffer[S]) Close() error {
	return b.inner.Close()
}

// fullDrainBuffer reads every remaining page of the range on the first prefetch.
// A failure ends the drain; it is served after the pages fetched before it.
type fullDrainBuffer[S State] struct {
	mu         sync.Mutex
	inner      *RangeEnumerator[S]
	prefetched bool
	pages      []Page[S]
	tailErr    error
	itemCount  int
	served     served[S]
}

func (b *fullDrainBuffer[S]) Prefetch(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.drainLocked(ctx)
}

// drainLocked keeps pages gathered before a cancellation; a later call resumes
// from the inner enumerator's position.
func (b *fullDrainBuffer[S]) drainLocked(ctx context.Context) error {
	if b.prefetched {
		return nil
	}
	for {
		r, err := pull(ctx, b.inner)
		if err != nil {
			return err
		}
		if r.exhausted {
			break
		}
		if r.err != nil {
			b.tailErr = r.err
			break
		}
		b.pages = append(b.pages, r.page)
		b.itemCount += r.page.ItemCount()
		if IsAbsent(r.page.State()) {
			break
		}
	}
	b.prefetched = true
	return nil
}

func (b *fullDrainBuffer[S]) Advance(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.pages) == 0 && b.tailErr == nil {
		// Everything buffered was served; look for more.
		b.prefetched = false
	}
	if err := b.drainLocked(ctx); err != nil {
		b.served.fail(err)
		return true
	}

	switch {
	case len(b.pages) > 0:
		page := b.pages[0]
		b.pages[0] = Page[S]{}
		b.pages = b.pages[1:]
		b.itemCount -= page.ItemCount()
		b.served.serve(result[S]{page: page})
		return true
	case b.tailErr != nil:
		err := b.tailErr
		b.tailErr = nil
		b.served.fail(err)
		return !errors.Is(err, docerrors.ErrEnumeratorClosed)
	default:
		b.served.fail(nil)
		b.served.hasMore = false
		return false
	}
}

func (b *fullDrainBuffer[S]) Current() (Page[S], error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.served.current, b.served.err
}

func (b *fullDrainBuffer[S]) FeedRangeState() FeedRangeState[S] {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.served.position
}

func (b *fullDrainBuffer[S]) HasMoreResults() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.served.hasMore
}

func (b *fullDrainBuffer[S]) Peek() (Page[S], bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pages) == 0 {
		return Page[S]{}, false
	}
	return b.pages[0], true
}

func (b *fullDrainBuffer[S]) BufferedItemCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.itemCount
}

func (b *fullDrainBuffer[S]) Close() error {
	return b.inner.Close()
}
