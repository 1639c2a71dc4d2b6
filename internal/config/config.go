package config

import "time"

// PinMode selects how pin messages referencing unseen targets are handled.
// "deferred" parks them until the target shows up in the active set;
// "strict" drops them unless the target is in the banned-aware active list.
const (
	PinModeDeferred = "deferred"
	PinModeStrict   = "strict"
)

// Config holds server and sync-layer configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`

	JWTSecret   string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string `mapstructure:"jwt_audience" yaml:"jwt_audience"`

	// PinMode is "deferred" or "strict"; see the pin synchronizer.
	PinMode string `mapstructure:"pin_mode" yaml:"pin_mode"`
	// UIDType is the target class honored by pin messages.
	UIDType string `mapstructure:"uid_type" yaml:"uid_type"`

	NATSURL string `mapstructure:"nats_url" yaml:"nats_url"`

	LiveKitAPIKey    string `mapstructure:"livekit_api_key" yaml:"livekit_api_key"`
	LiveKitAPISecret string `mapstructure:"livekit_api_secret" yaml:"livekit_api_secret"`
	LiveKitWSURL     string `mapstructure:"livekit_ws_url" yaml:"livekit_ws_url"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		DatabasePath:      "stagesync.db",
		JWTIssuer:         "stagesync",
		JWTAudience:       "stagesync-bus",
		PinMode:           PinModeDeferred,
		UIDType:           "rtc",
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.PinMode != "" {
		c.PinMode = other.PinMode
	}
	if other.UIDType != "" {
		c.UIDType = other.UIDType
	}
}
