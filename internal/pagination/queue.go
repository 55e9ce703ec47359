package pagination

import (
	"container/heap"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/kartikbazzad/docfeed/internal/feedrange"
)

// Comparator orders enumerators in a priority working set. It returns a negative
// number when a should be served before b.
type Comparator[S State] func(a, b BufferedEnumerator[S]) int

// workQueue is the orchestrator's working set.
type workQueue[S State] interface {
	Push(e BufferedEnumerator[S])
	Pop() (BufferedEnumerator[S], bool)
	Peek() (BufferedEnumerator[S], bool)
	Len() int
	// Items lists the queued enumerators in serving order for FIFO queues and in
	// heap order for priority queues.
	Items() []BufferedEnumerator[S]
}

func newWorkQueue[S State](cmp Comparator[S]) workQueue[S] {
	if cmp == nil {
		return &fifoQueue[S]{}
	}
	return &priorityQueue[S]{h: enumHeap[S]{cmp: cmp}}
}

type fifoQueue[S State] struct {
	items []BufferedEnumerator[S]
	head  int
}

func (q *fifoQueue[S]) Push(e BufferedEnumerator[S]) {
	q.items = append(q.items, e)
}

func (q *fifoQueue[S]) Pop() (BufferedEnumerator[S], bool) {
	if q.head >= len(q.items) {
		return nil, false
	}
	e := q.items[q.head]
	q.items[q.head] = nil
	q.head++
	if q.head > len(q.items)/2 {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return e, true
}

func (q *fifoQueue[S]) Peek() (BufferedEnumerator[S], bool) {
	if q.head >= len(q.items) {
		return nil, false
	}
	return q.items[q.head], true
}

func (q *fifoQueue[S]) Len() int { return len(q.items) - q.head }

func (q *fifoQueue[S]) Items() []BufferedEnumerator[S] {
	out := make([]BufferedEnumerator[S], q.Len())
	copy(out, q.items[q.head:])
	return out
}

type heapItem[S State] struct {
	e   BufferedEnumerator[S]
	seq uint64
}

// enumHeap breaks comparator ties by insertion order.
type enumHeap[S State] struct {
	cmp   Comparator[S]
	items []heapItem[S]
	seq   uint64
}

func (h *enumHeap[S]) Len() int { return len(h.items) }
func (h *enumHeap[S]) Less(i, j int) bool {
	if c := h.cmp(h.items[i].e, h.items[j].e); c != 0 {
		return c < 0
	}
	return h.items[i].seq < h.items[j].seq
}
func (h *enumHeap[S]) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *enumHeap[S]) Push(x any)   { h.items = append(h.items, x.(heapItem[S])) }
func (h *enumHeap[S]) Pop() any {
	n := len(h.items)
	item := h.items[n-1]
	h.items[n-1] = heapItem[S]{}
	h.items = h.items[:n-1]
	return item
}

type priorityQueue[S State] struct {
	h enumHeap[S]
}

func (q *priorityQueue[S]) Push(e BufferedEnumerator[S]) {
	q.h.seq++
	heap.Push(&q.h, heapItem[S]{e: e, seq: q.h.seq})
}

func (q *priorityQueue[S]) Pop() (BufferedEnumerator[S], bool) {
	if q.h.Len() == 0 {
		return nil, false
	}
	return heap.Pop(&q.h).(heapItem[S]).e, true
}

func (q *priorityQueue[S]) Peek() (BufferedEnumerator[S], bool) {
	if q.h.Len() == 0 {
		return nil, false
	}
	return q.h.items[0].e, true
}

func (q *priorityQueue[S]) Len() int { return q.h.Len() }

func (q *priorityQueue[S]) Items() []BufferedEnumerator[S] {
	out := make([]BufferedEnumerator[S], len(q.h.items))
	for i, item := range q.h.items {
		out[i] = item.e
	}
	return out
}

// ByFeedRangeMin serves ranges in key-space order: EPK ranges by lower bound,
// partition key range ids numerically, then partition keys.
func ByFeedRangeMin[S State]() Comparator[S] {
	return func(a, b BufferedEnumerator[S]) int {
		return compareFeedRanges(a.FeedRangeState().FeedRange, b.FeedRangeState().FeedRange)
	}
}

func compareFeedRanges(a, b feedrange.FeedRange) int {
	if a.Kind() != b.Kind() {
		return int(a.Kind()) - int(b.Kind())
	}
	switch a.Kind() {
	case feedrange.KindEPK:
		// Bounds are fixed-width upper-case hex, so string order is key order.
		return strings.Compare(a.Min(), b.Min())
	case feedrange.KindPartitionKeyRange:
		ia, erra := strconv.ParseUint(a.PartitionKeyRangeID(), 10, 64)
		ib, errb := strconv.ParseUint(b.PartitionKeyRangeID(), 10, 64)
		if erra == nil && errb == nil {
			return compareOrdered(ia, ib)
		}
		return strings.Compare(a.PartitionKeyRangeID(), b.PartitionKeyRangeID())
	default:
		return strings.Compare(a.String(), b.String())
	}
}

// ByBufferedField serves the enumerator whose next buffered item has the smallest
// (or, when asc is false, largest) value of field. Enumerators with nothing
// buffered come first so that they get fetched and can be compared.
func ByBufferedField[S State](field string, asc bool) Comparator[S] {
	return func(a, b BufferedEnumerator[S]) int {
		va, oka := firstFieldValue(a, field)
		vb, okb := firstFieldValue(b, field)
		switch {
		case !oka && !okb:
			return 0
		case !oka:
			return -1
		case !okb:
			return 1
		}
		cmp := compareValues(va, vb)
		if !asc {
			cmp = -cmp
		}
		return cmp
	}
}

func firstFieldValue[S State](e BufferedEnumerator[S], field string) (any, bool) {
	page, ok := e.Peek()
	if !ok || page.ItemCount() == 0 {
		return nil, false
	}
	return extractField(page.Items()[0], field), true
}

// extractField reads a top-level field of a JSON object. Missing fields and
// non-object payloads yield nil.
func extractField(payload json.RawMessage, field string) any {
	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil
	}
	return doc[field]
}

// compareValues orders numbers before strings before everything else.
func compareValues(a, b any) int {
	fa, oka := a.(float64)
	fb, okb := b.(float64)
	if oka && okb {
		return compareOrdered(fa, fb)
	}
	sa, oka2 := a.(string)
	sb, okb2 := b.(string)
	if oka2 && okb2 {
		return strings.Compare(sa, sb)
	}
	return rank(a) - rank(b)
}

func rank(v any) int {
	switch v.(type) {
	case float64:
		return 0
	case string:
		return 1
	case nil:
		return 3
	default:
		return 2
	}
}

func compareOrdered[T int | uint64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
