package pagination

import (
	"context"

	"github.com/kartikbazzad/docfeed/internal/feedrange"
)

// PageSource fetches the next page of one feed range.
//
// A source answers a 410 StatusError with a gone sub-status when the range no longer
// maps to a single partition. The cross-partition enumerator repairs that case.
type PageSource[S State] interface {
	GetNextPage(ctx context.Context, position FeedRangeState[S]) (Page[S], error)
}

// PageSourceFunc adapts a function to PageSource.
type PageSourceFunc[S State] func(ctx context.Context, position FeedRangeState[S]) (Page[S], error)

func (f PageSourceFunc[S]) GetNextPage(ctx context.Context, position FeedRangeState[S]) (Page[S], error) {
	return f(ctx, position)
}

// RangeReleaser is implemented by sources that hold per-range resources.
// ReleaseRange is called once when the enumerator of a range is closed.
type RangeReleaser interface {
	ReleaseRange(r feedrange.FeedRange) error
}

// FeedRangeProvider describes the current partition topology of a container.
type FeedRangeProvider interface {
	// GetFeedRanges lists the ranges that currently cover the container.
	GetFeedRanges(ctx context.Context) ([]feedrange.FeedRange, error)
	// GetChildRanges lists the ranges that now cover r. A split range has two or
	// more children; a range that is still current, or was merged, has one.
	GetChildRanges(ctx context.Context, r feedrange.FeedRange) ([]feedrange.FeedRange, error)
	// RefreshCache drops cached topology so the next lookup sees the service's view.
	RefreshCache(ctx context.Context) error
}
