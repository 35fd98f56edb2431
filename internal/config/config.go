package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/multierr"

	"idbkit/internal/logging"
)

type Config struct {
	Storage StorageConfig `toml:"storage"`
	Paging  PagingConfig  `toml:"paging"`
	Logging LoggingConfig `toml:"logging"`
}

type StorageConfig struct {
	Dir         string        `toml:"dir"`
	OpenTimeout time.Duration `toml:"open_timeout"`
	NoSync      bool          `toml:"no_sync"`
}

type PagingConfig struct {
	DefaultSize int `toml:"default_size"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Defaults returns a Config with sane defaults.
func Defaults() *Config {
	return &Config{
		Storage: StorageConfig{
			Dir:         "~/.idbkit",
			OpenTimeout: 5 * time.Second,
		},
		Paging: PagingConfig{
			DefaultSize: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a TOML config file and returns the parsed Config.
// If path is empty, ~/.idbkit/config.toml is used when present, otherwise
// only defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path == "" {
		path = expandHome("~/.idbkit/config.toml")
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("parsing config: unknown keys %s", strings.Join(keys, ", "))
	}

	return cfg, nil
}

// Validate checks field values. Every problem is reported, prefixed with the
// offending TOML key.
func (c *Config) Validate() error {
	var err error
	if strings.TrimSpace(c.Storage.Dir) == "" {
		err = multierr.Append(err, errors.New("storage.dir: must not be empty"))
	}
	if c.Storage.OpenTimeout < 0 {
		err = multierr.Append(err, fmt.Errorf("storage.open_timeout: must not be negative, got %s", c.Storage.OpenTimeout))
	}
	if c.Paging.DefaultSize < 1 {
		err = multierr.Append(err, fmt.Errorf("paging.default_size: must be at least 1, got %d", c.Paging.DefaultSize))
	}
	if !logging.ValidLevel(c.Logging.Level) {
		err = multierr.Append(err, fmt.Errorf("logging.level: unknown level %q", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		err = multierr.Append(err, fmt.Errorf("logging.format: must be text or json, got %q", c.Logging.Format))
	}
	return err
}

// ExpandHome resolves a leading ~/ to the user's home directory.
func ExpandHome(path string) string {
	return expandHome(path)
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
