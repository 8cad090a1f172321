package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"

	"github.com/GriffinCanCode/deskwidgets/internal/infrastructure/logging"
	"github.com/GriffinCanCode/deskwidgets/internal/shared/utils"
)

// Config holds all host configuration.
// Layers apply in order: Default, then the TOML file, then the environment.
type Config struct {
	Host        HostConfig        `toml:"host"`
	Logging     LogConfig         `toml:"logging"`
	Widgets     WidgetsConfig     `toml:"widgets"`
	Gate        GateConfig        `toml:"gate"`
	Diagnostics DiagnosticsConfig `toml:"diagnostics"`
}

// HostConfig holds process-level settings.
type HostConfig struct {
	DataDir   string `toml:"data_dir" envconfig:"DESKWIDGETS_DATA_DIR"`
	Instance  string `toml:"instance" envconfig:"DESKWIDGETS_INSTANCE"`
	Developer bool   `toml:"developer" envconfig:"DESKWIDGETS_DEV"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `toml:"level" envconfig:"LOG_LEVEL"`
	Development bool   `toml:"development" envconfig:"LOG_DEV"`
}

// WidgetsConfig holds widget defaults and grant policy.
type WidgetsConfig struct {
	DefaultWidth  int `toml:"default_width" envconfig:"DESKWIDGETS_DEFAULT_WIDTH"`
	DefaultHeight int `toml:"default_height" envconfig:"DESKWIDGETS_DEFAULT_HEIGHT"`
	// GlobalScopes are scopes whose process-wide grant also enables widgets.
	GlobalScopes []string `toml:"global_scopes" envconfig:"DESKWIDGETS_GLOBAL_SCOPES"`
	// AutoGrant lists widget identities whose consent prompts are answered
	// Allowed. Development only.
	AutoGrant []string `toml:"autogrant" envconfig:"DESKWIDGETS_CONSENT_AUTOGRANT"`
}

// GateConfig holds gated-operation resilience settings.
type GateConfig struct {
	BreakerMaxFailures uint32   `toml:"breaker_max_failures" envconfig:"GATE_BREAKER_MAX_FAILURES"`
	BreakerTimeout     Duration `toml:"breaker_timeout" envconfig:"GATE_BREAKER_TIMEOUT"`
	NotifyInterval     Duration `toml:"notify_interval" envconfig:"GATE_NOTIFY_INTERVAL"`
	NotifyBurst        int      `toml:"notify_burst" envconfig:"GATE_NOTIFY_BURST"`
}

// DiagnosticsConfig holds the local diagnostics API settings.
type DiagnosticsConfig struct {
	Enabled           bool   `toml:"enabled" envconfig:"DIAG_ENABLED"`
	Addr              string `toml:"addr" envconfig:"DIAG_ADDR"`
	RequestsPerSecond int    `toml:"requests_per_second" envconfig:"DIAG_RPS"`
	Burst             int    `toml:"burst" envconfig:"DIAG_BURST"`
}

// Duration is a time.Duration that decodes from strings like "30s" in both
// TOML and environment values.
type Duration time.Duration

// Std returns the standard library duration
func (d Duration) Std() time.Duration { return time.Duration(d) }

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(bytes.TrimSpace(text)))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Load builds configuration from defaults, the TOML file at path (if any),
// and the environment. An explicit path must exist.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOptional is Load for a default location: a missing file is skipped.
func LoadOptional(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			path = ""
		}
	}
	return Load(path)
}

// LoadOrDefault loads configuration from the environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load("")
	if err != nil {
		return Default()
	}
	return cfg
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	if c.Widgets.DefaultWidth <= 0 || c.Widgets.DefaultHeight <= 0 {
		return fmt.Errorf("default widget size must be positive, got %dx%d",
			c.Widgets.DefaultWidth, c.Widgets.DefaultHeight)
	}
	for _, s := range c.Widgets.GlobalScopes {
		if err := utils.ValidateScope(s); err != nil {
			return fmt.Errorf("global_scopes: %w", err)
		}
	}
	if c.Gate.BreakerMaxFailures == 0 {
		return fmt.Errorf("gate breaker_max_failures must be at least 1")
	}
	if c.Gate.NotifyBurst <= 0 {
		return fmt.Errorf("gate notify_burst must be at least 1")
	}
	if c.Diagnostics.RequestsPerSecond < 0 || c.Diagnostics.Burst < 0 {
		return fmt.Errorf("diagnostics rate limit cannot be negative")
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Host: HostConfig{
			DataDir:   "",
			Instance:  "",
			Developer: false,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		Widgets: WidgetsConfig{
			DefaultWidth:  320,
			DefaultHeight: 240,
		},
		Gate: GateConfig{
			BreakerMaxFailures: 3,
			BreakerTimeout:     Duration(30 * time.Second),
			NotifyInterval:     Duration(time.Minute),
			NotifyBurst:        1,
		},
		Diagnostics: DiagnosticsConfig{
			Enabled:           false,
			Addr:              "127.0.0.1:0",
			RequestsPerSecond: 20,
			Burst:             40,
		},
	}
}
