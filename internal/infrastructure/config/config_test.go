package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
cloud:
  credentials_url: "https://tokens.example/v1/credentials"
devices:
  - id: "dev-1"
    name: "Bedroom purifier"
session:
  request_timeout: 5
api:
  host: "0.0.0.0"
  port: 8086
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Cloud.CredentialsURL != "https://tokens.example/v1/credentials" {
		t.Errorf("Cloud.CredentialsURL = %q", cfg.Cloud.CredentialsURL)
	}
	if len(cfg.Devices) != 1 || cfg.Devices[0].ID != "dev-1" {
		t.Errorf("Devices = %+v, want one entry dev-1", cfg.Devices)
	}
	if cfg.Session.RequestTimeout != 5 {
		t.Errorf("Session.RequestTimeout = %d, want 5", cfg.Session.RequestTimeout)
	}
	if cfg.API.Host != "0.0.0.0" {
		t.Errorf("API.Host = %q, want 0.0.0.0", cfg.API.Host)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	content := `
cloud:
  credentials_url: "https://tokens.example/v1/credentials"
devices:
  - id: "dev-1"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got := cfg.GetConnectTimeout(); got != 15*time.Second {
		t.Errorf("connect timeout = %v, want 15s", got)
	}
	if got := cfg.GetRequestTimeout(); got != 10*time.Second {
		t.Errorf("request timeout = %v, want 10s", got)
	}
	if got := cfg.GetReconnectMaxDelay(); got != 300*time.Second {
		t.Errorf("reconnect max delay = %v, want 300s", got)
	}
	if cfg.Session.BreakerThreshold != 10 {
		t.Errorf("breaker threshold = %d, want 10", cfg.Session.BreakerThreshold)
	}
	if got := cfg.GetBreakerCoolDown(); got != 5*time.Minute {
		t.Errorf("breaker cool-down = %v, want 5m", got)
	}
	if got := cfg.GetCredentialRotation(); got != 50*time.Minute {
		t.Errorf("credential rotation = %v, want 50m", got)
	}
	if !cfg.Session.SurfaceGetResponsesEnabled() {
		t.Error("surface_get_responses should default to true")
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("logging defaults = %q/%q, want info/json", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoad_SurfaceGetResponsesExplicitFalse(t *testing.T) {
	content := `
cloud:
  credentials_url: "https://tokens.example/v1/credentials"
devices:
  - id: "dev-1"
session:
  surface_get_responses: false
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Session.SurfaceGetResponsesEnabled() {
		t.Error("explicit false was ignored")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing credentials url",
			content: `
devices:
  - id: "dev-1"
`,
			wantErr: "cloud.credentials_url",
		},
		{
			name: "no devices",
			content: `
cloud:
  credentials_url: "https://tokens.example/v1/credentials"
`,
			wantErr: "at least one device",
		},
		{
			name: "rotation exceeds credential lifetime",
			content: `
cloud:
  credentials_url: "https://tokens.example/v1/credentials"
devices:
  - id: "dev-1"
session:
  credential_rotation_minutes: 90
`,
			wantErr: "credential_rotation_minutes",
		},
		{
			name: "influx enabled without url",
			content: `
cloud:
  credentials_url: "https://tokens.example/v1/credentials"
devices:
  - id: "dev-1"
influxdb:
  enabled: true
  token: "t"
  org: "o"
  bucket: "b"
`,
			wantErr: "influxdb.url",
		},
		{
			name: "invalid api port",
			content: `
cloud:
  credentials_url: "https://tokens.example/v1/credentials"
devices:
  - id: "dev-1"
api:
  port: 99999
`,
			wantErr: "api.port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("Load() expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	content := `
cloud:
  credentials_url: "https://tokens.example/v1/credentials"
devices:
  - id: "from-file"
`
	t.Setenv("AIRCLOUD_CLOUD_AUTH_TOKEN", "env-token")
	t.Setenv("AIRCLOUD_DEVICE_ID", "from-env")
	t.Setenv("AIRCLOUD_API_PORT", "9090")

	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Cloud.AuthToken != "env-token" {
		t.Errorf("AuthToken = %q, want env-token", cfg.Cloud.AuthToken)
	}
	if len(cfg.Devices) != 1 || cfg.Devices[0].ID != "from-env" {
		t.Errorf("Devices = %+v, want AIRCLOUD_DEVICE_ID to win", cfg.Devices)
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d, want 9090", cfg.API.Port)
	}
}
