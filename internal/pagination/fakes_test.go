package pagination

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kartikbazzad/docfeed/internal/feedrange"
)

type feedrangeKey = feedrange.FeedRange

// step scripts one page of a range. A non-nil err is returned on the first
// attempt only, unless sticky is set.
type step struct {
	items  int
	err    error
	sticky bool
}

// scriptedSource serves pages from a per-range script. The state of page i is
// the resource id "i"; the last page carries no state.
type scriptedSource struct {
	mu       sync.Mutex
	script   map[feedrange.FeedRange][]step
	attempts map[string]int
	calls    []string
	released []feedrange.FeedRange
	delay    time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newScriptedSource(script map[feedrange.FeedRange][]step) *scriptedSource {
	return &scriptedSource{script: script, attempts: make(map[string]int)}
}

func (s *scriptedSource) GetNextPage(ctx context.Context, position FeedRangeState[*ReadFeedState]) (Page[*ReadFeedState], error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		cur := s.maxInFlight.Load()
		if n <= cur || s.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return Page[*ReadFeedState]{}, ctx.Err()
		}
	}

	idx := 0
	if position.State != nil {
		var err error
		if idx, err = strconv.Atoi(position.State.ResourceID); err != nil {
			return Page[*ReadFeedState]{}, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	steps, ok := s.script[position.FeedRange]
	if !ok || idx >= len(steps) {
		return Page[*ReadFeedState]{}, fmt.Errorf("no page %d scripted for %s", idx, position.FeedRange)
	}
	key := fmt.Sprintf("%s#%d", position.FeedRange, idx)
	s.attempts[key]++
	st := steps[idx]
	if st.err != nil && (st.sticky || s.attempts[key] == 1) {
		return Page[*ReadFeedState]{}, st.err
	}
	s.calls = append(s.calls, key)

	items := make([]json.RawMessage, st.items)
	for i := range items {
		items[i] = json.RawMessage(fmt.Sprintf(`{"id":"%s-%d-%d"}`, position.FeedRange, idx, i))
	}
	var next *ReadFeedState
	if idx+1 < len(steps) {
		next = NewReadFeedState(strconv.Itoa(idx + 1))
	}
	return NewPage(items, 1, key, nil, next)
}

func (s *scriptedSource) ReleaseRange(r feedrange.FeedRange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = append(s.released, r)
	return nil
}

func (s *scriptedSource) callLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// scriptedProvider reports a fixed topology. Ranges without scripted children
// are their own single child.
type scriptedProvider struct {
	mu        sync.Mutex
	ranges    []feedrange.FeedRange
	children  map[feedrange.FeedRange][]feedrange.FeedRange
	refreshed map[feedrange.FeedRange][]feedrange.FeedRange
	refreshes int
}

func (p *scriptedProvider) GetFeedRanges(context.Context) ([]feedrange.FeedRange, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]feedrange.FeedRange(nil), p.ranges...), nil
}

func (p *scriptedProvider) GetChildRanges(_ context.Context, r feedrange.FeedRange) ([]feedrange.FeedRange, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	table := p.children
	if p.refreshes > 0 && p.refreshed != nil {
		table = p.refreshed
	}
	if children, ok := table[r]; ok {
		return append([]feedrange.FeedRange(nil), children...), nil
	}
	return []feedrange.FeedRange{r}, nil
}

func (p *scriptedProvider) RefreshCache(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshes++
	return nil
}

func pages(n, items int) []step {
	out := make([]step, n)
	for i := range out {
		out[i] = step{items: items}
	}
	return out
}

func pkr(id string) feedrange.FeedRange {
	return feedrange.FromPartitionKeyRangeID(id)
}
