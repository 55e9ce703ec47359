package client

import (
	"context"
	"fmt"
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"

	docerrors "github.com/kartikbazzad/docfeed/internal/errors"
	"github.com/kartikbazzad/docfeed/internal/feedrange"
	"github.com/kartikbazzad/docfeed/internal/pagination"
)

const defaultCacheSize = 1024

// CachingProvider remembers child range lookups of an underlying provider
// until the next RefreshCache.
type CachingProvider struct {
	inner    pagination.FeedRangeProvider
	children *lru.Cache[feedrange.FeedRange, []feedrange.FeedRange]
}

var _ pagination.FeedRangeProvider = (*CachingProvider)(nil)

// NewCachingProvider wraps inner with an LRU of the given size.
func NewCachingProvider(inner pagination.FeedRangeProvider, size int) (*CachingProvider, error) {
	cache, err := lru.New[feedrange.FeedRange, []feedrange.FeedRange](size)
	if err != nil {
		return nil, fmt.Errorf("%w: child range cache: %v", docerrors.ErrInvalidOptions, err)
	}
	return &CachingProvider{inner: inner, children: cache}, nil
}

func (p *CachingProvider) GetFeedRanges(ctx context.Context) ([]feedrange.FeedRange, error) {
	return p.inner.GetFeedRanges(ctx)
}

func (p *CachingProvider) GetChildRanges(ctx context.Context, r feedrange.FeedRange) ([]feedrange.FeedRange, error) {
	if kids, ok := p.children.Get(r); ok {
		return slices.Clone(kids), nil
	}
	kids, err := p.inner.GetChildRanges(ctx, r)
	if err != nil {
		return nil, err
	}
	p.children.Add(r, slices.Clone(kids))
	return kids, nil
}

// RefreshCache refreshes the underlying provider and forgets every lookup.
func (p *CachingProvider) RefreshCache(ctx context.Context) error {
	p.children.Purge()
	return p.inner.RefreshCache(ctx)
}

// Len returns the number of cached lookups.
func (p *CachingProvider) Len() int {
	return p.children.Len()
}
