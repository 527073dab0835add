package internal

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pkgconfig "github.com/starford/bc2as/pkg/config"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should pass: %v", err)
	}
	if cfg.Sandbox.HTTP.Address() != ":8089" {
		t.Errorf("address = %q, want %q", cfg.Sandbox.HTTP.Address(), ":8089")
	}
}

func TestConfig_InvalidFallback(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Prompt.Fallback = "maybe"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("unknown fallback policy should fail")
	}
	if !strings.Contains(err.Error(), "prompt") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestConfig_InvalidLogFormat(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.App.LogFormat = "xml"
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown log format should fail")
	}
}

func TestBackendConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     BackendConfig
		wantErr bool
	}{
		{"empty url is prompted later", BackendConfig{Timeout: time.Second}, false},
		{"http url", BackendConfig{URL: "http://localhost:8089", Timeout: time.Second}, false},
		{"garbage url", BackendConfig{URL: "not a url", Timeout: time.Second}, true},
		{"zero timeout", BackendConfig{URL: "http://localhost:8089"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSandboxConfig_RequiresCredentials(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Sandbox.Password = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("sandbox without password should fail")
	}
}

func TestLoadConfigFile(t *testing.T) {
	t.Setenv("BC2AS_TEST_PASSWORD", "s3cret")
	p := filepath.Join(t.TempDir(), "config.yaml")
	content := `app:
  log_level: debug
  log_format: json
backend:
  url: http://localhost:8089
  username: archivist
  password: ${BC2AS_TEST_PASSWORD}
  timeout: 5s
prompt:
  fallback: skip
watch:
  settle: 500ms
`
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(p, cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.App.LogLevel != slog.LevelDebug {
		t.Errorf("log level = %v, want debug", cfg.App.LogLevel)
	}
	if cfg.Backend.Password != "s3cret" {
		t.Errorf("password = %q, want expanded env", cfg.Backend.Password)
	}
	if cfg.Backend.Timeout != 5*time.Second || cfg.Watch.Settle != 500*time.Millisecond {
		t.Errorf("durations = %v, %v", cfg.Backend.Timeout, cfg.Watch.Settle)
	}
	if cfg.Prompt.Fallback != "skip" {
		t.Errorf("fallback = %q", cfg.Prompt.Fallback)
	}
	if cfg.Sandbox.SQLite.Path != "./sandbox.db" {
		t.Errorf("unset sections should keep defaults, sqlite = %q", cfg.Sandbox.SQLite.Path)
	}
}
