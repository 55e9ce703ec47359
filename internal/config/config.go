package config

import (
	"fmt"
	"time"

	docerrors "github.com/kartikbazzad/docfeed/internal/errors"
)

type Config struct {
	Pagination PaginationConfig `mapstructure:"pagination"`
	Emulator   EmulatorConfig   `mapstructure:"emulator"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Log        LogConfig        `mapstructure:"log"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Retry      RetryConfig      `mapstructure:"retry"`
}

// Prefetch policies accepted by PaginationConfig.PrefetchPolicy.
const (
	PrefetchNextPage = "next_page"
	PrefetchAll      = "all"
)

// Working set orderings accepted by PaginationConfig.Ordering.
const (
	OrderingFIFO = "fifo"
	OrderingEPK  = "epk"
)

// PaginationConfig configures cross-partition enumeration.
type PaginationConfig struct {
	MaxConcurrency int    `mapstructure:"maxconcurrency"` // Initial prefetch fan-out (0 or 1 = no parallel prefetch)
	PrefetchPolicy string `mapstructure:"prefetchpolicy"` // next_page | all
	PageSize       int    `mapstructure:"pagesize"`       // Page size hint passed to page sources
	Ordering       string `mapstructure:"ordering"`       // fifo | epk
}

// EmulatorConfig configures the in-process partitioned container.
type EmulatorConfig struct {
	PartitionCount   int     `mapstructure:"partitioncount"`
	PageSize         int     `mapstructure:"pagesize"`
	RequestCharge    float64 `mapstructure:"requestcharge"`
	PartitionKeyPath string  `mapstructure:"partitionkeypath"` // Payload path of the partition key, nested with "/" or "."
	ThrottleRPS      float64 `mapstructure:"throttlerps"`      // 0 = never throttle
	ThrottleBurst    int     `mapstructure:"throttleburst"`
	Schema           string  `mapstructure:"schema"` // Optional JSON schema for created items
}

type CheckpointConfig struct {
	Path string `mapstructure:"path"` // sqlite file holding continuation tokens
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"` // Listen address for /metrics ("" = disabled)
}

// RetryConfig bounds how long a drain keeps pulling through transient failures.
type RetryConfig struct {
	InitialDelay time.Duration `mapstructure:"initialdelay"`
	MaxDelay     time.Duration `mapstructure:"maxdelay"`
	MaxRetries   int           `mapstructure:"maxretries"`
}

func DefaultConfig() *Config {
	return &Config{
		Pagination: PaginationConfig{
			MaxConcurrency: 4,
			PrefetchPolicy: PrefetchNextPage,
			PageSize:       100,
			Ordering:       OrderingFIFO,
		},
		Emulator: EmulatorConfig{
			PartitionCount:   4,
			PageSize:         100,
			RequestCharge:    1,
			PartitionKeyPath: "pk",
		},
		Checkpoint: CheckpointConfig{
			Path: "./docfeed-checkpoints.db",
		},
		Log: LogConfig{
			Level:  "INFO",
			Format: "text",
		},
		Retry: RetryConfig{
			InitialDelay: 10 * time.Millisecond,
			MaxDelay:     time.Second,
			MaxRetries:   5,
		},
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	p := c.Pagination
	if p.MaxConcurrency < 0 {
		return invalid("pagination.maxconcurrency must be >= 0, got %d", p.MaxConcurrency)
	}
	if p.PrefetchPolicy != PrefetchNextPage && p.PrefetchPolicy != PrefetchAll {
		return invalid("pagination.prefetchpolicy must be %q or %q, got %q", PrefetchNextPage, PrefetchAll, p.PrefetchPolicy)
	}
	if p.PageSize <= 0 {
		return invalid("pagination.pagesize must be > 0, got %d", p.PageSize)
	}
	if p.Ordering != OrderingFIFO && p.Ordering != OrderingEPK {
		return invalid("pagination.ordering must be %q or %q, got %q", OrderingFIFO, OrderingEPK, p.Ordering)
	}

	e := c.Emulator
	if e.PartitionCount < 1 {
		return invalid("emulator.partitioncount must be >= 1, got %d", e.PartitionCount)
	}
	if e.PageSize <= 0 {
		return invalid("emulator.pagesize must be > 0, got %d", e.PageSize)
	}
	if e.RequestCharge < 0 {
		return invalid("emulator.requestcharge must be >= 0, got %v", e.RequestCharge)
	}
	if e.PartitionKeyPath == "" {
		return invalid("emulator.partitionkeypath must be set")
	}
	if e.ThrottleRPS < 0 || e.ThrottleBurst < 0 {
		return invalid("emulator throttle settings must be >= 0")
	}

	if c.Retry.MaxRetries < 0 {
		return invalid("retry.maxretries must be >= 0, got %d", c.Retry.MaxRetries)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", docerrors.ErrInvalidOptions, fmt.Sprintf(format, args...))
}
