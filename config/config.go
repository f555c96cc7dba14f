// Package config loads server settings from an optional TOML file with
// environment overrides.
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Config holds the server settings.
type Config struct {
	// Addr is the listen address, e.g. ":3000".
	Addr string `toml:"addr"`
	// DatabaseURL is the postgres connection string. The DATABASE_URL
	// environment variable always wins over the file.
	DatabaseURL string `toml:"database_url"`
	// TaskLimit caps GET /tasks responses when the request names no limit.
	TaskLimit int `toml:"task_limit"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Addr:      ":3000",
		TaskLimit: 100,
	}
}

// Load reads the TOML file at path on top of the defaults, then applies
// environment overrides. A missing file is not an error; an empty path skips
// the file entirely.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// fall through to env
		case err != nil:
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("TASKTREE_ADDR"); v != "" {
		cfg.Addr = v
	}
	return cfg, nil
}
