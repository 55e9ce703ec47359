package pagination

import (
	"context"
	"sync"

	docerrors "github.com/kartikbazzad/docfeed/internal/errors"
)

// RangeEnumerator pages through a single feed range.
//
// Advance calls are serialized, so the source always sees strictly sequential
// states for its range even when callers race.
type RangeEnumerator[S State] struct {
	mu       sync.Mutex
	source   PageSource[S]
	position FeedRangeState[S]
	hasMore  bool
	current  Page[S]
	err      error
	closed   bool
}

// NewRangeEnumerator starts paging at initial. An absent state starts at the
// beginning of the range.
func NewRangeEnumerator[S State](source PageSource[S], initial FeedRangeState[S]) *RangeEnumerator[S] {
	return &RangeEnumerator[S]{
		source:   source,
		position: initial,
		hasMore:  true,
	}
}

// Advance fetches the next page. It returns false once the range is exhausted
// or the enumerator is closed. A failed fetch returns true with the error held
// in Current and leaves the position unchanged.
func (e *RangeEnumerator[S]) Advance(ctx context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		e.current, e.err = Page[S]{}, docerrors.ErrEnumeratorClosed
		return false
	}
	if !e.hasMore {
		e.current, e.err = Page[S]{}, nil
		return false
	}
	if err := ctx.Err(); err != nil {
		e.current, e.err = Page[S]{}, err
		return true
	}

	page, err := e.source.GetNextPage(ctx, e.position)
	if err != nil {
		e.current, e.err = Page[S]{}, err
		return true
	}

	e.position = FeedRangeState[S]{FeedRange: e.position.FeedRange, State: page.State()}
	e.hasMore = !IsAbsent(page.State())
	e.current, e.err = page, nil
	return true
}

// Current returns the result of the last Advance.
func (e *RangeEnumerator[S]) Current() (Page[S], error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current, e.err
}

// FeedRangeState returns the position after the last successful page.
func (e *RangeEnumerator[S]) FeedRangeState() FeedRangeState[S] {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.position
}

func (e *RangeEnumerator[S]) HasMoreResults() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hasMore && !e.closed
}

// Close releases the range. It is safe to call more than once.
func (e *RangeEnumerator[S]) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if r, ok := e.source.(RangeReleaser); ok {
		return r.ReleaseRange(e.position.FeedRange)
	}
	return nil
}
