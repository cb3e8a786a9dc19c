// Package config loads and validates server configuration from a TOML
// file with environment-variable overrides, and provides thread-safe
// access to the live config via Holder plus file-watch reloading.
package config

import "os"

// Default values. Layer 0 of the override chain: defaults -> config file
// -> environment variables.
const (
	defaultListenAddr      = ":8080"
	defaultLogLevel        = "info"
	defaultRootFolder      = "Inkhaven"
	defaultRequestTimeout  = "30s"
	defaultShutdownTimeout = "15s"
)

// Environment variable names for overrides.
const (
	EnvConfig       = "INKHAVEN_CONFIG"
	EnvListenAddr   = "INKHAVEN_LISTEN_ADDR"
	EnvClientID     = "INKHAVEN_DRIVE_CLIENT_ID"
	EnvClientSecret = "INKHAVEN_DRIVE_CLIENT_SECRET"
)

// Config is the full server configuration.
type Config struct {
	ListenAddr      string      `toml:"listen_addr"`
	LogLevel        string      `toml:"log_level"`
	RequestTimeout  string      `toml:"request_timeout"`
	ShutdownTimeout string      `toml:"shutdown_timeout"`
	Drive           DriveConfig `toml:"drive"`
}

// DriveConfig describes the remote storage provider: its API base, OAuth
// endpoints, client registration, and the root folder all blobs live under.
type DriveConfig struct {
	BaseURL      string   `toml:"base_url"`
	AuthURL      string   `toml:"auth_url"`
	TokenURL     string   `toml:"token_url"`
	RedirectURL  string   `toml:"redirect_url"`
	ClientID     string   `toml:"client_id"`
	ClientSecret string   `toml:"client_secret"`
	Scopes       []string `toml:"scopes"`
	RootFolder   string   `toml:"root_folder"`
}

// DefaultConfig returns a Config populated with all default values. Used
// as the starting point for TOML decoding so unset fields keep defaults.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:      defaultListenAddr,
		LogLevel:        defaultLogLevel,
		RequestTimeout:  defaultRequestTimeout,
		ShutdownTimeout: defaultShutdownTimeout,
		Drive: DriveConfig{
			RootFolder: defaultRootFolder,
		},
	}
}

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath   string
	ListenAddr   string
	ClientID     string
	ClientSecret string
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. Callers apply the relevant fields on top of the file config.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:   os.Getenv(EnvConfig),
		ListenAddr:   os.Getenv(EnvListenAddr),
		ClientID:     os.Getenv(EnvClientID),
		ClientSecret: os.Getenv(EnvClientSecret),
	}
}
