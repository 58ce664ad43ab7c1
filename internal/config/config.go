package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
)

// Duration wraps time.Duration so it can be written as "30s" in TOML and in
// RALLY_* environment variables alike.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler so Save round-trips.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the daemon configuration, read from ~/.rally/config.toml with
// RALLY_* environment variables taking precedence over file values.
type Config struct {
	DefaultSession string `toml:"default_session" envconfig:"default_session"`
	LogLevel       string `toml:"log_level" envconfig:"log_level"`

	API APIConfig `toml:"api"`
	Hub HubConfig `toml:"hub"`
	UI  UIConfig  `toml:"ui"`
}

// APIConfig configures the REST collaborator. envconfig prefixes nested
// fields with the parent key, so BaseURL resolves to RALLY_API_BASE_URL.
type APIConfig struct {
	BaseURL string   `toml:"base_url" envconfig:"base_url"`
	Timeout Duration `toml:"timeout" envconfig:"timeout"`
}

// HubConfig configures the persistent hub connection and its retry policy.
type HubConfig struct {
	URL          string   `toml:"url" envconfig:"url"`
	BackoffBase  Duration `toml:"backoff_base" envconfig:"backoff_base"`
	BackoffMax   Duration `toml:"backoff_max" envconfig:"backoff_max"`
	MaxReconnect int      `toml:"max_reconnect" envconfig:"max_reconnect"`
}

// UIConfig holds knobs consumed by frontends through the control API.
type UIConfig struct {
	PageSize int `toml:"page_size" envconfig:"page_size"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DefaultSession: "main",
		LogLevel:       "info",
		API: APIConfig{
			BaseURL: "https://api.rallymatch.app",
			Timeout: Duration(15 * time.Second),
		},
		Hub: HubConfig{
			URL:          "wss://hub.rallymatch.app/ws",
			BackoffBase:  Duration(time.Second),
			BackoffMax:   Duration(30 * time.Second),
			MaxReconnect: 10,
		},
		UI: UIConfig{PageSize: 10},
	}
}

// Load reads configuration with precedence: defaults < file < environment.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if err := envconfig.Process("rally", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("api.base_url must not be empty")
	}
	if c.Hub.URL == "" {
		return errors.New("hub.url must not be empty")
	}
	if c.Hub.BackoffBase.Std() <= 0 || c.Hub.BackoffMax.Std() < c.Hub.BackoffBase.Std() {
		return fmt.Errorf("invalid hub backoff window [%s, %s]", c.Hub.BackoffBase.Std(), c.Hub.BackoffMax.Std())
	}
	if c.Hub.MaxReconnect < 1 {
		return errors.New("hub.max_reconnect must be at least 1")
	}
	if c.UI.PageSize < 1 {
		return errors.New("ui.page_size must be at least 1")
	}
	return nil
}

// Save writes cfg to path, creating parent directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
