package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	docerrors "github.com/kartikbazzad/docfeed/internal/errors"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative concurrency", func(c *Config) { c.Pagination.MaxConcurrency = -1 }},
		{"unknown policy", func(c *Config) { c.Pagination.PrefetchPolicy = "sometimes" }},
		{"zero page size", func(c *Config) { c.Pagination.PageSize = 0 }},
		{"unknown ordering", func(c *Config) { c.Pagination.Ordering = "random" }},
		{"no partitions", func(c *Config) { c.Emulator.PartitionCount = 0 }},
		{"negative charge", func(c *Config) { c.Emulator.RequestCharge = -1 }},
		{"no partition key path", func(c *Config) { c.Emulator.PartitionKeyPath = "" }},
		{"negative retries", func(c *Config) { c.Retry.MaxRetries = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), docerrors.ErrInvalidOptions)
		})
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "docfeed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
pagination:
  maxconcurrency: 8
  prefetchpolicy: all
emulator:
  partitioncount: 6
retry:
  maxdelay: 250ms
`), 0o600))

	t.Setenv("DOCFEEDTEST_PAGINATION_PAGESIZE", "25")

	cfg, err := Load("DOCFEEDTEST_", path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Pagination.MaxConcurrency)
	assert.Equal(t, PrefetchAll, cfg.Pagination.PrefetchPolicy)
	assert.Equal(t, 25, cfg.Pagination.PageSize)
	assert.Equal(t, 6, cfg.Emulator.PartitionCount)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.MaxDelay)
	// untouched keys keep their defaults
	assert.Equal(t, OrderingFIFO, cfg.Pagination.Ordering)
	assert.Equal(t, "pk", cfg.Emulator.PartitionKeyPath)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("DOCFEEDBAD_PAGINATION_ORDERING", "random")
	_, err := Load("DOCFEEDBAD_", "")
	assert.ErrorIs(t, err, docerrors.ErrInvalidOptions)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("DOCFEEDTEST_", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
