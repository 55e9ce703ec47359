package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the default environment variable prefix.
const EnvPrefix = "DOCFEED_"

// Load builds a Config from defaults, an optional config file and environment variables.
// prefix: Environment variable prefix (e.g. "DOCFEED_")
// path: config file (yaml, json, toml); empty means defaults + environment only
func Load(prefix, path string) (*Config, error) {
	v := viper.New()

	// 1. Load from config file (if given)
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	// 2. Load from environment variables
	// DOCFEED_PAGINATION_MAXCONCURRENCY -> pagination.maxconcurrency
	prefixUpper := strings.ToUpper(prefix)
	for _, envStr := range os.Environ() {
		pair := strings.SplitN(envStr, "=", 2)
		if len(pair) != 2 {
			continue
		}
		key, value := pair[0], pair[1]

		if prefixUpper != "" && strings.HasPrefix(key, prefixUpper) {
			propKey := strings.TrimPrefix(key, prefixUpper)
			propKey = strings.ToLower(strings.ReplaceAll(propKey, "_", "."))
			propKey = strings.TrimPrefix(propKey, ".")

			v.Set(propKey, value)
		}
	}

	// 3. Unmarshal over the defaults
	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
