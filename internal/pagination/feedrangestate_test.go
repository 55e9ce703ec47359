package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	docerrors "github.com/kartikbazzad/docfeed/internal/errors"
	"github.com/kartikbazzad/docfeed/internal/feedrange"
)

func crossState(t *testing.T, ids ...string) CrossFeedRangeState[*ReadFeedState] {
	t.Helper()
	positions := make([]FeedRangeState[*ReadFeedState], len(ids))
	for i, id := range ids {
		var state *ReadFeedState
		if i%2 == 0 {
			state = NewReadFeedState(id + ".7")
		}
		positions[i] = NewFeedRangeState(pkr(id), state)
	}
	c, err := NewCrossFeedRangeState(positions)
	require.NoError(t, err)
	return c
}

func TestCrossFeedRangeStateRejectsEmpty(t *testing.T) {
	_, err := NewCrossFeedRangeState[*ReadFeedState](nil)
	assert.ErrorIs(t, err, docerrors.ErrEmptyCrossFeedRangeState)
}

func TestSplitMergeRoundTrip(t *testing.T) {
	for n := 2; n <= 7; n++ {
		ids := make([]string, n)
		for i := range ids {
			ids[i] = string(rune('a' + i))
		}
		c := crossState(t, ids...)

		left, right, ok := c.Split()
		require.True(t, ok)
		assert.Equal(t, n/2, left.Len())
		assert.Equal(t, c, left.Merge(right))
	}
}

func TestSplitSingleRange(t *testing.T) {
	c := crossState(t, "0")
	_, _, ok := c.Split()
	assert.False(t, ok)
}

func TestSplitN(t *testing.T) {
	c := crossState(t, "0", "1", "2", "3", "4")

	groups, err := c.SplitN(2)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, 2, groups[0].Len())
	assert.Equal(t, 3, groups[1].Len())
	assert.Equal(t, c, groups[0].Merge(groups[1]))

	groups, err = c.SplitN(5)
	require.NoError(t, err)
	assert.Len(t, groups, 5)

	_, err = c.SplitN(0)
	assert.ErrorIs(t, err, docerrors.ErrInvalidOptions)
	_, err = c.SplitN(6)
	assert.ErrorIs(t, err, docerrors.ErrInvalidOptions)
}

func TestTokenRoundTripIsByteForByte(t *testing.T) {
	positions := []FeedRangeState[*ReadFeedState]{
		NewFeedRangeState(feedrange.FullRange(), NewReadFeedState("0.12")),
		NewFeedRangeState[*ReadFeedState](pkr("3"), nil),
		NewFeedRangeState(feedrange.FromPartitionKey("tenant"), NewReadFeedState("1.1")),
	}
	c, err := NewCrossFeedRangeState(positions)
	require.NoError(t, err)

	token, err := c.Encode()
	require.NoError(t, err)

	decoded, err := DecodeCrossFeedRangeState[*ReadFeedState](token)
	require.NoError(t, err)
	assert.Equal(t, c, decoded)
	assert.Nil(t, decoded.Ranges()[1].State)

	again, err := decoded.Encode()
	require.NoError(t, err)
	assert.Equal(t, token, again)
}

func TestTokenWireFormat(t *testing.T) {
	c, err := NewCrossFeedRangeState([]FeedRangeState[*QueryState]{
		NewFeedRangeState(pkr("0"), NewQueryState("abc")),
	})
	require.NoError(t, err)
	token, err := c.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `[{"range":{"kind":"pkrange","id":"0"},"state":{"continuation":"abc"}}]`, token)
}

func TestDecodeRejectsBadTokens(t *testing.T) {
	for _, token := range []string{
		"",
		"not json",
		"[]",
		`{"range":{}}`,
		`[{"state":null}]`,
		`[{"range":{"kind":"nope"},"state":null}]`,
	} {
		_, err := DecodeCrossFeedRangeState[*ReadFeedState](token)
		assert.ErrorIs(t, err, docerrors.ErrInvalidContinuation, token)
	}
}
