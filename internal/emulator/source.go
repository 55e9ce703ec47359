package emulator

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	docerrors "github.com/kartikbazzad/docfeed/internal/errors"
	"github.com/kartikbazzad/docfeed/internal/feedrange"
	"github.com/kartikbazzad/docfeed/internal/metrics"
	"github.com/kartikbazzad/docfeed/internal/pagination"
)

// HeaderPartition names the partition that served a page.
const HeaderPartition = "x-emulator-partition"

const (
	opReadFeed = "read_feed"
	opQuery    = "query"
)

// scanResult is one page worth of records from a single partition.
type scanResult struct {
	items     []json.RawMessage
	last      ResourceID
	more      bool
	partition int
	empty     bool
}

// scan returns up to pageSize records of r created after the given resource id.
func (c *Container) scan(ctx context.Context, op string, r feedrange.FeedRange, after ResourceID, pageSize int, expr Expression) (scanResult, error) {
	if err := ctx.Err(); err != nil {
		return scanResult{}, err
	}
	if pageSize <= 0 {
		pageSize = c.pageSize
	}

	switch c.faults.Inject(Request{Operation: op, FeedRange: r, Sequence: c.requests.Add(1)}) {
	case FaultThrottle:
		metrics.EmulatorRequestsTotal.WithLabelValues(op, "throttled").Inc()
		se := docerrors.Throttled("request rate is too large")
		se.ActivityID = uuid.NewString()
		return scanResult{}, se
	case FaultGone:
		metrics.EmulatorRequestsTotal.WithLabelValues(op, "gone").Inc()
		return scanResult{}, gone("injected: " + r.String())
	case FaultEmptyPage:
		metrics.EmulatorRequestsTotal.WithLabelValues(op, "ok").Inc()
		return scanResult{last: after, more: true, partition: -1, empty: true}, nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	p, err := c.routeLocked(r)
	if err != nil {
		status := "error"
		if docerrors.IsPartitionGone(err) {
			status = "gone"
		}
		metrics.EmulatorRequestsTotal.WithLabelValues(op, status).Inc()
		return scanResult{}, err
	}

	res := scanResult{partition: p.id}
	for _, rec := range p.records {
		if !after.Less(rec.ResourceID) || !inRange(rec, r) || !expr.Matches(rec.Payload) {
			continue
		}
		if len(res.items) == pageSize {
			res.more = true
			break
		}
		res.items = append(res.items, rec.Document())
		res.last = rec.ResourceID
	}
	metrics.EmulatorRequestsTotal.WithLabelValues(op, "ok").Inc()
	return res, nil
}

func (c *Container) headers(res scanResult) map[string]string {
	if res.empty {
		return nil
	}
	return map[string]string{HeaderPartition: strconv.Itoa(res.partition)}
}

// ReadFeed returns a source that pages through records in creation order.
// A pageSize of zero uses the container default.
func (c *Container) ReadFeed(pageSize int) pagination.PageSource[*pagination.ReadFeedState] {
	return pagination.PageSourceFunc[*pagination.ReadFeedState](
		func(ctx context.Context, position pagination.FeedRangeState[*pagination.ReadFeedState]) (pagination.Page[*pagination.ReadFeedState], error) {
			after, err := resumePoint(position.State)
			if err != nil {
				return pagination.Page[*pagination.ReadFeedState]{}, err
			}
			res, err := c.scan(ctx, opReadFeed, position.FeedRange, after, pageSize, Expression{})
			if err != nil {
				return pagination.Page[*pagination.ReadFeedState]{}, err
			}
			var next *pagination.ReadFeedState
			if res.more {
				next = pagination.NewReadFeedState(res.last.String())
			}
			return pagination.NewPage(res.items, c.requestCharge, uuid.NewString(), c.headers(res), next)
		})
}

// Query returns a source that pages through records matching expr. The
// continuation token is the resource id of the last record scanned.
func (c *Container) Query(expr Expression, pageSize int) pagination.PageSource[*pagination.QueryState] {
	return pagination.PageSourceFunc[*pagination.QueryState](
		func(ctx context.Context, position pagination.FeedRangeState[*pagination.QueryState]) (pagination.Page[*pagination.QueryState], error) {
			var token *pagination.ReadFeedState
			if position.State != nil {
				token = pagination.NewReadFeedState(position.State.Continuation)
			}
			after, err := resumePoint(token)
			if err != nil {
				return pagination.Page[*pagination.QueryState]{}, err
			}
			res, err := c.scan(ctx, opQuery, position.FeedRange, after, pageSize, expr)
			if err != nil {
				return pagination.Page[*pagination.QueryState]{}, err
			}
			var next *pagination.QueryState
			if res.more {
				next = pagination.NewQueryState(res.last.String())
			}
			return pagination.NewPage(res.items, c.requestCharge, uuid.NewString(), c.headers(res), next)
		})
}

// resumePoint parses a read feed position. An absent state starts before the
// first record.
func resumePoint(state *pagination.ReadFeedState) (ResourceID, error) {
	if state == nil {
		return ResourceID{}, nil
	}
	rid, err := ParseResourceID(state.ResourceID)
	if err != nil {
		return ResourceID{}, badRequest(docerrors.ErrInvalidContinuation, fmt.Sprintf("resume point: %v", err))
	}
	return rid, nil
}
