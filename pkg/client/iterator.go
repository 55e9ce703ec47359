package client

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	docerrors "github.com/kartikbazzad/docfeed/internal/errors"
	"github.com/kartikbazzad/docfeed/internal/feedrange"
	"github.com/kartikbazzad/docfeed/internal/pagination"
)

// ErrNoMoreResults is returned by ReadNext after the last page.
var ErrNoMoreResults = errors.New("no more results")

// FeedResponse is one page of a feed.
type FeedResponse struct {
	Items         []json.RawMessage
	RequestCharge float64
	ActivityID    string
	Headers       map[string]string
	// FeedRange is the range that served the page.
	FeedRange feedrange.FeedRange
	// ContinuationToken resumes after this page. Empty on the last page.
	ContinuationToken string
}

// FeedIterator pages through a cross-partition feed. It is not safe for
// concurrent use.
type FeedIterator[S pagination.State] struct {
	enum       *pagination.CrossPartitionEnumerator[S]
	retry      *docerrors.RetryController
	classifier *docerrors.Classifier
	log        *slog.Logger

	token string
	done  bool
}

// ReadNext returns the next page. Failures leave the iterator usable; calling
// ReadNext again retries the failed range. The exception is a failure caused by
// ctx being cancelled or expiring: the range that was being read is dropped, so
// resume from ContinuationToken() with a new iterator instead.
func (it *FeedIterator[S]) ReadNext(ctx context.Context) (FeedResponse, error) {
	if it.done {
		return FeedResponse{}, ErrNoMoreResults
	}
	if !it.enum.Advance(ctx) {
		if _, err := it.enum.Current(); err != nil {
			return FeedResponse{}, err
		}
		it.done = true
		it.token = ""
		return FeedResponse{}, ErrNoMoreResults
	}
	page, err := it.enum.Current()
	if err != nil {
		return FeedResponse{}, err
	}

	token := ""
	if page.State != nil {
		token, err = page.State.Encode()
		if err != nil {
			return FeedResponse{}, err
		}
	} else {
		it.done = true
	}
	it.token = token
	return FeedResponse{
		Items:             page.Page.Items(),
		RequestCharge:     page.Page.RequestCharge(),
		ActivityID:        page.Page.ActivityID(),
		Headers:           page.Page.Headers(),
		FeedRange:         page.FeedRange,
		ContinuationToken: token,
	}, nil
}

// HasMoreResults reports whether ReadNext may return another page.
func (it *FeedIterator[S]) HasMoreResults() bool {
	return !it.done
}

// ContinuationToken resumes after the last page returned by ReadNext. It is
// the starting token before the first page and empty once the feed is drained.
func (it *FeedIterator[S]) ContinuationToken() string {
	return it.token
}

// Drain reads every remaining page and passes it to fn. Transient failures are
// retried with backoff; an error from fn stops the drain.
func (it *FeedIterator[S]) Drain(ctx context.Context, fn func(FeedResponse) error) error {
	for {
		var resp FeedResponse
		err := it.retry.Retry(ctx, func() error {
			var err error
			resp, err = it.ReadNext(ctx)
			if err != nil && !errors.Is(err, ErrNoMoreResults) {
				it.log.Debug("read failed",
					"category", it.classifier.Classify(ctx, err).String(),
					"error", err)
			}
			return err
		}, it.classifier)
		if errors.Is(err, ErrNoMoreResults) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(resp); err != nil {
			return err
		}
	}
}

func (it *FeedIterator[S]) Close() error {
	return it.enum.Close()
}
