// Package config handles configuration loading and validation for the
// opentimestamps client.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/dzatona/opentimestamps-client/internal/calendar"
	"github.com/dzatona/opentimestamps-client/internal/logging"
)

// Backend kinds accepted in [backend].
const (
	BackendEsplora  = "esplora"
	BackendElectrum = "electrum"
	BackendCore     = "core"
)

// Config holds the complete client configuration.
type Config struct {
	// Calendars are the calendar URLs used for stamping and upgrading.
	Calendars []string `toml:"calendars"`

	// Backend selects how Bitcoin block headers are resolved during
	// verification.
	Backend BackendConfig `toml:"backend"`

	// HTTPTimeoutSeconds bounds each calendar and backend HTTP call.
	HTTPTimeoutSeconds int `toml:"http_timeout_seconds"`

	// Logging configures diagnostic output.
	Logging LoggingConfig `toml:"logging"`
}

// BackendConfig holds block header resolution settings.
type BackendConfig struct {
	// Kind is one of "esplora", "electrum", or "core".
	Kind string `toml:"kind"`

	// URL is the Esplora API root or the Core RPC endpoint.
	URL string `toml:"url"`

	// Address is the Electrum server host:port.
	Address string `toml:"address"`

	// RPCUser and RPCPassword authenticate against a Core node.
	RPCUser     string `toml:"rpc_user"`
	RPCPassword string `toml:"rpc_password"`

	// CachePath is the SQLite header cache location. Empty disables
	// caching.
	CachePath string `toml:"cache_path"`
}

// LoggingConfig holds diagnostic output settings.
type LoggingConfig struct {
	// Level is "debug", "info", "warn", or "error".
	Level string `toml:"level"`

	// Format is "text" or "json".
	Format string `toml:"format"`
}

// Default returns the configuration used when no file exists: the
// public calendar pools and the public Esplora instance.
func Default() *Config {
	return &Config{
		Calendars: append([]string(nil), calendar.DefaultCalendars...),
		Backend: BackendConfig{
			Kind:      BackendEsplora,
			URL:       "https://blockstream.info/api",
			CachePath: defaultCachePath(),
		},
		HTTPTimeoutSeconds: 30,
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
		},
	}
}

// Timeout returns the configured HTTP timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// DefaultPath returns the platform configuration file location.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "ots", "ots.toml")
}

func defaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".cache")
	}
	return filepath.Join(dir, "ots", "headers.db")
}

// Load reads the configuration at path, filling unset fields from
// Default. A missing file is not an error: the defaults work out of
// the box.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Decode over a zero value so we can tell absent sections from
	// explicitly empty ones.
	var loaded Config
	if _, err := toml.Decode(string(data), &loaded); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if len(loaded.Calendars) > 0 {
		cfg.Calendars = loaded.Calendars
	}
	// Merge the backend section field by field, so a file that sets
	// only [backend] kind keeps the default url and cache path.
	if loaded.Backend.Kind != "" {
		cfg.Backend.Kind = loaded.Backend.Kind
	}
	if loaded.Backend.URL != "" {
		cfg.Backend.URL = loaded.Backend.URL
	}
	if loaded.Backend.Address != "" {
		cfg.Backend.Address = loaded.Backend.Address
	}
	if loaded.Backend.RPCUser != "" {
		cfg.Backend.RPCUser = loaded.Backend.RPCUser
	}
	if loaded.Backend.RPCPassword != "" {
		cfg.Backend.RPCPassword = loaded.Backend.RPCPassword
	}
	if loaded.Backend.CachePath != "" {
		cfg.Backend.CachePath = loaded.Backend.CachePath
	}
	if loaded.HTTPTimeoutSeconds != 0 {
		cfg.HTTPTimeoutSeconds = loaded.HTTPTimeoutSeconds
	}
	if loaded.Logging.Level != "" {
		cfg.Logging.Level = loaded.Logging.Level
	}
	if loaded.Logging.Format != "" {
		cfg.Logging.Format = loaded.Logging.Format
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	if len(c.Calendars) == 0 {
		return errors.New("config: no calendars configured")
	}
	for _, cal := range c.Calendars {
		u, err := url.Parse(cal)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("config: bad calendar url %q", cal)
		}
	}

	switch c.Backend.Kind {
	case BackendEsplora:
		if c.Backend.URL == "" {
			return errors.New("config: esplora backend needs url")
		}
	case BackendElectrum:
		if c.Backend.Address == "" {
			return errors.New("config: electrum backend needs address")
		}
	case BackendCore:
		if c.Backend.URL == "" {
			return errors.New("config: core backend needs url")
		}
	default:
		return fmt.Errorf("config: unknown backend kind %q", c.Backend.Kind)
	}

	if c.HTTPTimeoutSeconds <= 0 {
		return fmt.Errorf("config: http_timeout_seconds must be positive, got %d", c.HTTPTimeoutSeconds)
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Logging.Format != "" && c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("config: unknown log format %q", c.Logging.Format)
	}
	return nil
}
