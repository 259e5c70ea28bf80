package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the aircloud daemon.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Cloud     CloudConfig     `yaml:"cloud"`
	Devices   []DeviceConfig  `yaml:"devices"`
	Session   SessionConfig   `yaml:"session"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// CloudConfig contains the vendor cloud access settings.
type CloudConfig struct {
	// CredentialsURL is the token-exchange endpoint that hands out
	// device-scoped presigned broker URLs.
	CredentialsURL string `yaml:"credentials_url"`

	// AuthToken is the bearer token for the credential endpoint.
	// Prefer setting it via AIRCLOUD_CLOUD_AUTH_TOKEN.
	AuthToken string `yaml:"auth_token"`
}

// DeviceConfig identifies one purifier to track.
type DeviceConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// SessionConfig contains shadow session tuning. All durations are seconds
// except where noted; zero values fall back to the session defaults.
type SessionConfig struct {
	ConnectTimeout        int `yaml:"connect_timeout"`
	RequestTimeout        int `yaml:"request_timeout"`
	ReconnectInitialDelay int `yaml:"reconnect_initial_delay"`
	ReconnectMaxDelay     int `yaml:"reconnect_max_delay"`
	BreakerThreshold      int `yaml:"breaker_threshold"`
	BreakerCoolDown       int `yaml:"breaker_cool_down"`

	// CredentialRotationMinutes must stay under the presigned URL's
	// lifetime (about an hour).
	CredentialRotationMinutes int `yaml:"credential_rotation_minutes"`

	// SurfaceGetResponses surfaces polled get responses as state-change
	// events in addition to answering the caller. Default true.
	SurfaceGetResponses *bool `yaml:"surface_get_responses"`

	EventBuffer int `yaml:"event_buffer"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket event-stream settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB telemetry sink settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: AIRCLOUD_SECTION_KEY
// For example: AIRCLOUD_CLOUD_AUTH_TOKEN, AIRCLOUD_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Session: SessionConfig{
			ConnectTimeout:            15,
			RequestTimeout:            10,
			ReconnectInitialDelay:     1,
			ReconnectMaxDelay:         300,
			BreakerThreshold:          10,
			BreakerCoolDown:           300,
			CredentialRotationMinutes: 50,
			EventBuffer:               64,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8700,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/api/v1/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: AIRCLOUD_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Cloud
	if v := os.Getenv("AIRCLOUD_CLOUD_CREDENTIALS_URL"); v != "" {
		cfg.Cloud.CredentialsURL = v
	}
	if v := os.Getenv("AIRCLOUD_CLOUD_AUTH_TOKEN"); v != "" {
		cfg.Cloud.AuthToken = v
	}

	// Single-device shortcut for container deployments.
	if v := os.Getenv("AIRCLOUD_DEVICE_ID"); v != "" {
		cfg.Devices = []DeviceConfig{{ID: v}}
	}

	// API
	if v := os.Getenv("AIRCLOUD_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("AIRCLOUD_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// InfluxDB
	if v := os.Getenv("AIRCLOUD_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Cloud.CredentialsURL == "" {
		errs = append(errs, "cloud.credentials_url is required")
	}

	if len(c.Devices) == 0 {
		errs = append(errs, "at least one device is required (devices or AIRCLOUD_DEVICE_ID)")
	}
	for i, d := range c.Devices {
		if d.ID == "" {
			errs = append(errs, fmt.Sprintf("devices[%d].id is required", i))
		}
	}

	if c.Session.ReconnectInitialDelay > c.Session.ReconnectMaxDelay {
		errs = append(errs, "session.reconnect_initial_delay must not exceed session.reconnect_max_delay")
	}
	if c.Session.CredentialRotationMinutes >= 60 {
		errs = append(errs, "session.credential_rotation_minutes must stay under the 60-minute credential lifetime")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb.enabled")
		}
		if c.InfluxDB.Token == "" {
			errs = append(errs, "influxdb.token is required when influxdb.enabled (set AIRCLOUD_INFLUXDB_TOKEN)")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required when influxdb.enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// SurfaceGetResponsesEnabled resolves the optional flag, defaulting to true.
func (c *SessionConfig) SurfaceGetResponsesEnabled() bool {
	if c.SurfaceGetResponses == nil {
		return true
	}
	return *c.SurfaceGetResponses
}

// GetConnectTimeout returns the session connect timeout as a Duration.
func (c *Config) GetConnectTimeout() time.Duration {
	return time.Duration(c.Session.ConnectTimeout) * time.Second
}

// GetRequestTimeout returns the request timeout as a Duration.
func (c *Config) GetRequestTimeout() time.Duration {
	return time.Duration(c.Session.RequestTimeout) * time.Second
}

// GetReconnectInitialDelay returns the initial backoff delay as a Duration.
func (c *Config) GetReconnectInitialDelay() time.Duration {
	return time.Duration(c.Session.ReconnectInitialDelay) * time.Second
}

// GetReconnectMaxDelay returns the backoff cap as a Duration.
func (c *Config) GetReconnectMaxDelay() time.Duration {
	return time.Duration(c.Session.ReconnectMaxDelay) * time.Second
}

// GetBreakerCoolDown returns the circuit breaker cool-down as a Duration.
func (c *Config) GetBreakerCoolDown() time.Duration {
	return time.Duration(c.Session.BreakerCoolDown) * time.Second
}

// GetCredentialRotation returns the credential rotation interval as a Duration.
func (c *Config) GetCredentialRotation() time.Duration {
	return time.Duration(c.Session.CredentialRotationMinutes) * time.Minute
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
