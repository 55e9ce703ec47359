// Package client exposes cross-partition feeds of a partitioned container as
// resumable iterators.
package client

import (
	"fmt"
	"log/slog"

	"github.com/kartikbazzad/docfeed/internal/config"
	docerrors "github.com/kartikbazzad/docfeed/internal/errors"
	"github.com/kartikbazzad/docfeed/internal/emulator"
	"github.com/kartikbazzad/docfeed/internal/logger"
	"github.com/kartikbazzad/docfeed/internal/pagination"
)

// Sources builds the page sources of a container.
type Sources interface {
	ReadFeed(pageSize int) pagination.PageSource[*pagination.ReadFeedState]
	Query(expr emulator.Expression, pageSize int) pagination.PageSource[*pagination.QueryState]
}

// FeedOptions overrides the configured pagination settings for one iterator.
type FeedOptions struct {
	// ContinuationToken resumes a previous iterator.
	ContinuationToken string
	// OrderBy serves ranges by the first buffered item's field instead of the
	// configured ordering. A leading "-" sorts descending.
	OrderBy string
	// PageSize of zero uses the configured page size.
	PageSize int
}

// Container creates feed iterators over one partitioned container.
type Container struct {
	provider *CachingProvider
	sources  Sources
	cfg      config.PaginationConfig
	retry    *docerrors.RetryController
	log      *slog.Logger
}

// Option configures a Container.
type Option func(*Container)

func WithLogger(l *slog.Logger) Option {
	return func(c *Container) { c.log = l }
}

// WithRetry sets the backoff used by Drain for transient failures.
func WithRetry(rc *docerrors.RetryController) Option {
	return func(c *Container) { c.retry = rc }
}

// New binds a topology provider and page sources. A nil cfg uses the defaults.
func New(provider pagination.FeedRangeProvider, sources Sources, cfg *config.Config, opts ...Option) (*Container, error) {
	if provider == nil || sources == nil {
		return nil, fmt.Errorf("%w: provider and sources are required", docerrors.ErrInvalidOptions)
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cp, err := NewCachingProvider(provider, defaultCacheSize)
	if err != nil {
		return nil, err
	}
	c := &Container{
		provider: cp,
		sources:  sources,
		cfg:      cfg.Pagination,
		retry:    docerrors.NewRetryControllerWith(cfg.Retry.InitialDelay, cfg.Retry.MaxDelay, cfg.Retry.MaxRetries),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = logger.WithComponent(c.log, "client")
	return c, nil
}

// ReadFeed iterates over every record in creation order per partition.
func (c *Container) ReadFeed(opts FeedOptions) (*FeedIterator[*pagination.ReadFeedState], error) {
	return newIterator(c, c.sources.ReadFeed(c.pageSize(opts)), opts)
}

// Query iterates over the records matching expr.
func (c *Container) Query(expr emulator.Expression, opts FeedOptions) (*FeedIterator[*pagination.QueryState], error) {
	return newIterator(c, c.sources.Query(expr, c.pageSize(opts)), opts)
}

func (c *Container) pageSize(opts FeedOptions) int {
	if opts.PageSize > 0 {
		return opts.PageSize
	}
	return c.cfg.PageSize
}

func newIterator[S pagination.State](c *Container, source pagination.PageSource[S], opts FeedOptions) (*FeedIterator[S], error) {
	policy, err := pagination.ParsePrefetchPolicy(c.cfg.PrefetchPolicy)
	if err != nil {
		return nil, err
	}
	enumOpts := pagination.CrossPartitionOptions[S]{
		MaxConcurrency: c.cfg.MaxConcurrency,
		PrefetchPolicy: policy,
		Comparator:     comparator[S](c.cfg.Ordering, opts.OrderBy),
		Logger:         c.log,
	}
	if opts.ContinuationToken != "" {
		state, err := pagination.DecodeCrossFeedRangeState[S](opts.ContinuationToken)
		if err != nil {
			return nil, err
		}
		enumOpts.InitialState = &state
	}
	enum, err := pagination.NewCrossPartitionEnumerator(c.provider, source, enumOpts)
	if err != nil {
		return nil, err
	}
	return &FeedIterator[S]{
		enum:       enum,
		retry:      c.retry,
		classifier: docerrors.NewClassifier(),
		log:        c.log,
		token:      opts.ContinuationToken,
	}, nil
}

func comparator[S pagination.State](ordering, orderBy string) pagination.Comparator[S] {
	if orderBy != "" {
		if orderBy[0] == '-' {
			return pagination.ByBufferedField[S](orderBy[1:], false)
		}
		return pagination.ByBufferedField[S](orderBy, true)
	}
	if ordering == config.OrderingEPK {
		return pagination.ByFeedRangeMin[S]()
	}
	return nil
}
