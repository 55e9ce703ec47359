package pagination

import (
	"encoding/json"
	"fmt"

	docerrors "github.com/kartikbazzad/docfeed/internal/errors"
	"github.com/kartikbazzad/docfeed/internal/feedrange"
)

// FeedRangeState is the position of one feed range.
type FeedRangeState[S State] struct {
	FeedRange feedrange.FeedRange `json:"range"`
	State     S                   `json:"state"`
}

// NewFeedRangeState pairs a range with its cursor.
func NewFeedRangeState[S State](r feedrange.FeedRange, state S) FeedRangeState[S] {
	return FeedRangeState[S]{FeedRange: r, State: state}
}

// CrossFeedRangeState is the position of an enumeration across all its feed ranges.
// It is never empty and is immutable once built.
type CrossFeedRangeState[S State] struct {
	ranges []FeedRangeState[S]
}

// NewCrossFeedRangeState copies ranges into a new state.
func NewCrossFeedRangeState[S State](ranges []FeedRangeState[S]) (CrossFeedRangeState[S], error) {
	if len(ranges) == 0 {
		return CrossFeedRangeState[S]{}, docerrors.ErrEmptyCrossFeedRangeState
	}
	out := make([]FeedRangeState[S], len(ranges))
	copy(out, ranges)
	return CrossFeedRangeState[S]{ranges: out}, nil
}

func (c CrossFeedRangeState[S]) Len() int { return len(c.ranges) }

// Ranges returns a copy of the per-range positions in order.
func (c CrossFeedRangeState[S]) Ranges() []FeedRangeState[S] {
	out := make([]FeedRangeState[S], len(c.ranges))
	copy(out, c.ranges)
	return out
}

// Merge concatenates c and o, c first.
func (c CrossFeedRangeState[S]) Merge(o CrossFeedRangeState[S]) CrossFeedRangeState[S] {
	out := make([]FeedRangeState[S], 0, len(c.ranges)+len(o.ranges))
	out = append(out, c.ranges...)
	out = append(out, o.ranges...)
	return CrossFeedRangeState[S]{ranges: out}
}

// Split halves c at its midpoint. It reports false when c holds a single range.
func (c CrossFeedRangeState[S]) Split() (CrossFeedRangeState[S], CrossFeedRangeState[S], bool) {
	if len(c.ranges) < 2 {
		return CrossFeedRangeState[S]{}, CrossFeedRangeState[S]{}, false
	}
	mid := len(c.ranges) / 2
	left, _ := NewCrossFeedRangeState(c.ranges[:mid])
	right, _ := NewCrossFeedRangeState(c.ranges[mid:])
	return left, right, true
}

// SplitN partitions c into n contiguous groups of len/n ranges; the last group
// absorbs the remainder.
func (c CrossFeedRangeState[S]) SplitN(n int) ([]CrossFeedRangeState[S], error) {
	if n < 1 || n > len(c.ranges) {
		return nil, fmt.Errorf("%w: cannot split %d ranges into %d groups", docerrors.ErrInvalidOptions, len(c.ranges), n)
	}
	size := len(c.ranges) / n
	out := make([]CrossFeedRangeState[S], 0, n)
	for i := 0; i < n; i++ {
		end := (i + 1) * size
		if i == n-1 {
			end = len(c.ranges)
		}
		group, _ := NewCrossFeedRangeState(c.ranges[i*size : end])
		out = append(out, group)
	}
	return out, nil
}

func (c CrossFeedRangeState[S]) MarshalJSON() ([]byte, error) {
	if len(c.ranges) == 0 {
		return nil, docerrors.ErrEmptyCrossFeedRangeState
	}
	return json.Marshal(c.ranges)
}

func (c *CrossFeedRangeState[S]) UnmarshalJSON(data []byte) error {
	var ranges []FeedRangeState[S]
	if err := json.Unmarshal(data, &ranges); err != nil {
		return fmt.Errorf("%w: %v", docerrors.ErrInvalidContinuation, err)
	}
	for i, r := range ranges {
		if r.FeedRange.IsZero() {
			return fmt.Errorf("%w: entry %d has no feed range", docerrors.ErrInvalidContinuation, i)
		}
	}
	decoded, err := NewCrossFeedRangeState(ranges)
	if err != nil {
		return fmt.Errorf("%w: %v", docerrors.ErrInvalidContinuation, err)
	}
	*c = decoded
	return nil
}

// Encode returns the opaque continuation token for c.
func (c CrossFeedRangeState[S]) Encode() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeCrossFeedRangeState parses a token produced by Encode.
func DecodeCrossFeedRangeState[S State](token string) (CrossFeedRangeState[S], error) {
	var c CrossFeedRangeState[S]
	if err := c.UnmarshalJSON([]byte(token)); err != nil {
		return CrossFeedRangeState[S]{}, err
	}
	return c, nil
}
