package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, applies environment
// overrides, validates, and returns the resulting Config. Unknown keys
// are fatal — silently ignoring a typo in a config file leads to
// hard-to-debug behavior.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}

		return nil, fmt.Errorf("unknown config keys in %s: %s", path, strings.Join(keys, ", "))
	}

	applyEnvOverrides(cfg, ReadEnvOverrides())

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config with defaults plus environment overrides. Supports running
// with nothing but INKHAVEN_* variables set.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := DefaultConfig()
		applyEnvOverrides(cfg, ReadEnvOverrides())

		if err := Validate(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}

		return cfg, nil
	}

	return Load(path)
}

func applyEnvOverrides(cfg *Config, env EnvOverrides) {
	if env.ListenAddr != "" {
		cfg.ListenAddr = env.ListenAddr
	}

	if env.ClientID != "" {
		cfg.Drive.ClientID = env.ClientID
	}

	if env.ClientSecret != "" {
		cfg.Drive.ClientSecret = env.ClientSecret
	}
}

// Validate checks the config for required fields and well-formed values.
func Validate(cfg *Config) error {
	if cfg.ListenAddr == "" {
		return errors.New("listen_addr is required")
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q is not one of debug, info, warn, error", cfg.LogLevel)
	}

	for name, raw := range map[string]string{
		"request_timeout":  cfg.RequestTimeout,
		"shutdown_timeout": cfg.ShutdownTimeout,
	} {
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("%s %q is not a valid duration", name, raw)
		}
	}

	d := cfg.Drive

	for name, raw := range map[string]string{
		"drive.base_url":  d.BaseURL,
		"drive.auth_url":  d.AuthURL,
		"drive.token_url": d.TokenURL,
	} {
		if raw == "" {
			return fmt.Errorf("%s is required", name)
		}

		if _, err := url.ParseRequestURI(raw); err != nil {
			return fmt.Errorf("%s %q is not a valid URL", name, raw)
		}
	}

	if d.ClientID == "" {
		return fmt.Errorf("drive.client_id is required (or set %s)", EnvClientID)
	}

	if d.RootFolder == "" {
		return errors.New("drive.root_folder is required")
	}

	if strings.Contains(d.RootFolder, "/") {
		return fmt.Errorf("drive.root_folder %q must be a single folder name", d.RootFolder)
	}

	return nil
}

// RequestTimeoutDuration returns the parsed request timeout. Validate
// guarantees parseability.
func (c *Config) RequestTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.RequestTimeout)
	return d
}

// ShutdownTimeoutDuration returns the parsed shutdown timeout.
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}
