package emulator

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"

	docerrors "github.com/kartikbazzad/docfeed/internal/errors"
	"github.com/kartikbazzad/docfeed/internal/feedrange"
	"github.com/kartikbazzad/docfeed/internal/metrics"
)

// GetFeedRanges lists the cached partition ranges in key order.
func (c *Container) GetFeedRanges(ctx context.Context) ([]feedrange.FeedRange, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := slices.Collect(maps.Values(c.cached))
	slices.SortFunc(out, compareMin)
	metrics.EmulatorRequestsTotal.WithLabelValues("feed_ranges", "ok").Inc()
	return out, nil
}

// GetChildRanges resolves r against the cached topology. EPK ranges yield
// their intersections with cached partitions; partition ids follow recorded
// splits down to their cached descendants.
func (c *Container) GetChildRanges(ctx context.Context, r feedrange.FeedRange) ([]feedrange.FeedRange, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch r.Kind() {
	case feedrange.KindEPK:
		var out []feedrange.FeedRange
		for _, cached := range c.cached {
			if overlap, ok := r.Intersect(cached); ok {
				out = append(out, overlap)
			}
		}
		if len(out) == 0 {
			return nil, notFound(fmt.Errorf("%w: no partition overlaps %s", docerrors.ErrUnknownPartition, r))
		}
		slices.SortFunc(out, compareMin)
		return out, nil
	case feedrange.KindPartitionKeyRange:
		id, err := strconv.Atoi(r.PartitionKeyRangeID())
		if err != nil {
			return nil, badRequest(feedrange.ErrInvalidFeedRange, r.String())
		}
		ids, err := c.descendantsLocked(id)
		if err != nil {
			return nil, err
		}
		out := make([]feedrange.FeedRange, 0, len(ids))
		for _, child := range ids {
			out = append(out, feedrange.FromPartitionKeyRangeID(strconv.Itoa(child)))
		}
		return out, nil
	default:
		return nil, badRequest(feedrange.ErrInvalidFeedRange, "child ranges of "+r.String())
	}
}

// descendantsLocked walks recorded splits and merges from id until it reaches partitions
// known to the cache.
func (c *Container) descendantsLocked(id int) ([]int, error) {
	if _, ok := c.cached[id]; ok {
		return []int{id}, nil
	}
	kids, ok := c.children[id]
	if !ok {
		return nil, notFound(fmt.Errorf("%w: %d", docerrors.ErrUnknownPartition, id))
	}
	var out []int
	for _, kid := range kids {
		sub, err := c.descendantsLocked(kid)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	return out, nil
}

// RefreshCache replaces the cached topology with the live one.
func (c *Container) RefreshCache(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cached = make(map[int]feedrange.FeedRange, len(c.partitions))
	for id, p := range c.partitions {
		c.cached[id] = p.rng
	}
	c.log.Debug("topology cache refreshed", "partitions", len(c.cached))
	metrics.EmulatorRequestsTotal.WithLabelValues("refresh", "ok").Inc()
	return nil
}
