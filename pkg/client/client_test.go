package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kartikbazzad/docfeed/internal/config"
	docerrors "github.com/kartikbazzad/docfeed/internal/errors"
	"github.com/kartikbazzad/docfeed/internal/emulator"
	"github.com/kartikbazzad/docfeed/internal/feedrange"
	"github.com/kartikbazzad/docfeed/internal/logger"
	"github.com/kartikbazzad/docfeed/internal/pagination"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Pagination.PageSize = 3
	cfg.Pagination.MaxConcurrency = 2
	cfg.Retry.InitialDelay = time.Millisecond
	cfg.Retry.MaxDelay = 5 * time.Millisecond
	return cfg
}

func newEmulator(t *testing.T, n int, opts ...emulator.Option) (*emulator.Container, []string) {
	t.Helper()
	em, err := emulator.New(append([]emulator.Option{emulator.WithPartitions(3), emulator.WithLogger(logger.Discard())}, opts...)...)
	require.NoError(t, err)
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("doc-%02d", i)
		_, err := em.CreateItem(context.Background(), json.RawMessage(fmt.Sprintf(`{"id":%q,"pk":"k%d","n":%d}`, id, i, i)))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return em, ids
}

func newClient(t *testing.T, em *emulator.Container, cfg *config.Config) *Container {
	t.Helper()
	c, err := New(em, em, cfg, WithLogger(logger.Discard()))
	require.NoError(t, err)
	return c
}

func ids(t *testing.T, items []json.RawMessage) []string {
	t.Helper()
	out := make([]string, 0, len(items))
	for _, raw := range items {
		var doc struct {
			ID string `json:"id"`
		}
		require.NoError(t, json.Unmarshal(raw, &doc))
		out = append(out, doc.ID)
	}
	return out
}

func TestNewValidation(t *testing.T) {
	em, _ := newEmulator(t, 0)
	_, err := New(nil, em, nil)
	assert.ErrorIs(t, err, docerrors.ErrInvalidOptions)

	cfg := config.DefaultConfig()
	cfg.Pagination.PrefetchPolicy = "eager"
	_, err = New(em, em, cfg)
	assert.Error(t, err)
}

func TestReadFeedDrain(t *testing.T) {
	em, want := newEmulator(t, 25)
	c := newClient(t, em, testConfig())

	it, err := c.ReadFeed(FeedOptions{})
	require.NoError(t, err)
	defer it.Close()

	var got []string
	var charge float64
	require.NoError(t, it.Drain(context.Background(), func(resp FeedResponse) error {
		got = append(got, ids(t, resp.Items)...)
		charge += resp.RequestCharge
		assert.Equal(t, pagination.SerializationFormatJSON, resp.Headers[pagination.HeaderSerializationFormat])
		return nil
	}))
	assert.ElementsMatch(t, want, got)
	assert.Positive(t, charge)
	assert.False(t, it.HasMoreResults())
	assert.Empty(t, it.ContinuationToken())

	_, err = it.ReadNext(context.Background())
	assert.ErrorIs(t, err, ErrNoMoreResults)
}

func TestReadFeedResumesFromToken(t *testing.T) {
	em, want := newEmulator(t, 20)
	c := newClient(t, em, testConfig())
	ctx := context.Background()

	it, err := c.ReadFeed(FeedOptions{})
	require.NoError(t, err)
	var got []string
	for i := 0; i < 2; i++ {
		resp, err := it.ReadNext(ctx)
		require.NoError(t, err)
		got = append(got, ids(t, resp.Items)...)
		assert.Equal(t, resp.ContinuationToken, it.ContinuationToken())
	}
	token := it.ContinuationToken()
	require.NotEmpty(t, token)
	require.NoError(t, it.Close())

	_, err = em.Split(ctx, 1)
	require.NoError(t, err)

	resumed, err := c.ReadFeed(FeedOptions{ContinuationToken: token})
	require.NoError(t, err)
	defer resumed.Close()
	assert.Equal(t, token, resumed.ContinuationToken())
	require.NoError(t, resumed.Drain(ctx, func(resp FeedResponse) error {
		got = append(got, ids(t, resp.Items)...)
		return nil
	}))
	assert.ElementsMatch(t, want, got)
	assert.Len(t, got, len(want))
}

func TestReadNextCancelledMidFetchResumesFromToken(t *testing.T) {
	cfg := testConfig()
	cfg.Pagination.MaxConcurrency = 0
	var (
		armed  atomic.Bool
		cancel context.CancelFunc
	)
	em, want := newEmulator(t, 20, emulator.WithFaults(emulator.FaultFunc(func(emulator.Request) emulator.Fault {
		if armed.CompareAndSwap(true, false) {
			cancel()
			return emulator.FaultThrottle
		}
		return emulator.FaultNone
	})))
	c := newClient(t, em, cfg)

	it, err := c.ReadFeed(FeedOptions{})
	require.NoError(t, err)
	defer it.Close()
	resp, err := it.ReadNext(context.Background())
	require.NoError(t, err)
	got := ids(t, resp.Items)
	token := it.ContinuationToken()
	require.NotEmpty(t, token)

	var ctx context.Context
	ctx, cancel = context.WithCancel(context.Background())
	defer cancel()
	armed.Store(true)
	_, err = it.ReadNext(ctx)
	require.Error(t, err)
	assert.Equal(t, token, it.ContinuationToken(), "a failed read does not move the token")

	resumed, err := c.ReadFeed(FeedOptions{ContinuationToken: token})
	require.NoError(t, err)
	defer resumed.Close()
	require.NoError(t, resumed.Drain(context.Background(), func(resp FeedResponse) error {
		got = append(got, ids(t, resp.Items)...)
		return nil
	}))
	assert.ElementsMatch(t, want, got)
}

func TestReadFeedRejectsBadToken(t *testing.T) {
	em, _ := newEmulator(t, 0)
	c := newClient(t, em, testConfig())
	_, err := c.ReadFeed(FeedOptions{ContinuationToken: "{"})
	assert.ErrorIs(t, err, docerrors.ErrInvalidContinuation)
}

func TestQueryOrderedByField(t *testing.T) {
	em, _ := newEmulator(t, 30)
	cfg := testConfig()
	cfg.Pagination.PageSize = 1
	c := newClient(t, em, cfg)

	expr, err := emulator.ParseExpression("n lt 12")
	require.NoError(t, err)
	it, err := c.Query(expr, FeedOptions{OrderBy: "n"})
	require.NoError(t, err)
	defer it.Close()

	var got []string
	require.NoError(t, it.Drain(context.Background(), func(resp FeedResponse) error {
		got = append(got, ids(t, resp.Items)...)
		return nil
	}))
	want := make([]string, 12)
	for i := range want {
		want[i] = fmt.Sprintf("doc-%02d", i)
	}
	assert.Equal(t, want, got)
}

func TestDrainRetriesThrottling(t *testing.T) {
	var calls atomic.Int64
	throttleEveryOther := emulator.FaultFunc(func(emulator.Request) emulator.Fault {
		if calls.Add(1)%2 == 0 {
			return emulator.FaultThrottle
		}
		return emulator.FaultNone
	})
	em, want := newEmulator(t, 15, emulator.WithFaults(throttleEveryOther))
	cfg := testConfig()
	cfg.Pagination.MaxConcurrency = 0
	c := newClient(t, em, cfg)

	it, err := c.ReadFeed(FeedOptions{})
	require.NoError(t, err)
	defer it.Close()

	var got []string
	require.NoError(t, it.Drain(context.Background(), func(resp FeedResponse) error {
		got = append(got, ids(t, resp.Items)...)
		return nil
	}))
	assert.ElementsMatch(t, want, got)
}

func TestDrainStopsOnCallbackError(t *testing.T) {
	em, _ := newEmulator(t, 10)
	c := newClient(t, em, testConfig())
	it, err := c.ReadFeed(FeedOptions{})
	require.NoError(t, err)
	defer it.Close()

	stop := errors.New("stop")
	err = it.Drain(context.Background(), func(FeedResponse) error { return stop })
	assert.ErrorIs(t, err, stop)
	assert.True(t, it.HasMoreResults())
}

func TestDrainGivesUpOnPermanentThrottling(t *testing.T) {
	em, _ := newEmulator(t, 3, emulator.WithFaults(emulator.FaultFunc(func(emulator.Request) emulator.Fault {
		return emulator.FaultThrottle
	})))
	cfg := testConfig()
	cfg.Pagination.MaxConcurrency = 0
	cfg.Retry.MaxRetries = 2
	c := newClient(t, em, cfg)
	it, err := c.ReadFeed(FeedOptions{})
	require.NoError(t, err)
	defer it.Close()

	err = it.Drain(context.Background(), func(FeedResponse) error { return nil })
	assert.True(t, docerrors.HasStatus(err, docerrors.StatusTooManyRequests))
}

type countingProvider struct {
	pagination.FeedRangeProvider
	childCalls atomic.Int64
	refreshes  atomic.Int64
}

func (p *countingProvider) GetChildRanges(ctx context.Context, r feedrange.FeedRange) ([]feedrange.FeedRange, error) {
	p.childCalls.Add(1)
	return p.FeedRangeProvider.GetChildRanges(ctx, r)
}

func (p *countingProvider) RefreshCache(ctx context.Context) error {
	p.refreshes.Add(1)
	return p.FeedRangeProvider.RefreshCache(ctx)
}

func TestCachingProvider(t *testing.T) {
	em, _ := newEmulator(t, 0)
	inner := &countingProvider{FeedRangeProvider: em}
	p, err := NewCachingProvider(inner, 8)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		kids, err := p.GetChildRanges(ctx, feedrange.FromPartitionKeyRangeID("0"))
		require.NoError(t, err)
		assert.Equal(t, []feedrange.FeedRange{feedrange.FromPartitionKeyRangeID("0")}, kids)
	}
	assert.EqualValues(t, 1, inner.childCalls.Load())
	assert.Equal(t, 1, p.Len())

	_, err = em.Split(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, p.RefreshCache(ctx))
	assert.Zero(t, p.Len())
	assert.EqualValues(t, 1, inner.refreshes.Load())

	kids, err := p.GetChildRanges(ctx, feedrange.FromPartitionKeyRangeID("0"))
	require.NoError(t, err)
	assert.Len(t, kids, 2)

	_, err = p.GetChildRanges(ctx, feedrange.FromPartitionKeyRangeID("42"))
	assert.Error(t, err)
	assert.Equal(t, 1, p.Len())

	_, err = NewCachingProvider(em, 0)
	assert.ErrorIs(t, err, docerrors.ErrInvalidOptions)
}
