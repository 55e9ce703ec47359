package client

import (
	"fmt"

	docerrors "github.com/kartikbazzad/docfeed/internal/errors"
	"github.com/kartikbazzad/docfeed/internal/pagination"
)

// SplitToken divides a continuation token into n tokens covering disjoint
// sets of ranges, so that n consumers can continue the feed in parallel.
func SplitToken[S pagination.State](token string, n int) ([]string, error) {
	state, err := pagination.DecodeCrossFeedRangeState[S](token)
	if err != nil {
		return nil, err
	}
	parts, err := state.SplitN(n)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(parts))
	for i, part := range parts {
		if out[i], err = part.Encode(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// MergeTokens joins continuation tokens into one.
func MergeTokens[S pagination.State](tokens ...string) (string, error) {
	if len(tokens) == 0 {
		return "", fmt.Errorf("%w: no tokens to merge", docerrors.ErrInvalidOptions)
	}
	merged, err := pagination.DecodeCrossFeedRangeState[S](tokens[0])
	if err != nil {
		return "", err
	}
	for _, token := range tokens[1:] {
		state, err := pagination.DecodeCrossFeedRangeState[S](token)
		if err != nil {
			return "", err
		}
		merged = merged.Merge(state)
	}
	return merged.Encode()
}
