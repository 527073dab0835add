package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/bc2as/internal/prompt"
	"github.com/starford/bc2as/internal/storage"
)

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Backend BackendConfig     `yaml:"backend"`
	Scan    ScanConfig        `yaml:"scan"`
	Prompt  PromptConfig      `yaml:"prompt"`
	Sandbox SandboxConfig     `yaml:"sandbox"`
	Watch   WatchConfig       `yaml:"watch"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Backend.Validate(); err != nil {
		return fmt.Errorf("backend: %w", err)
	}
	if err := c.Prompt.Validate(); err != nil {
		return fmt.Errorf("prompt: %w", err)
	}
	if err := c.Sandbox.Validate(); err != nil {
		return fmt.Errorf("sandbox: %w", err)
	}
	return c.Watch.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel  slog.Level `yaml:"log_level"`
	LogFormat string     `yaml:"log_format"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.LogFormat, validation.Required, validation.In(LogFormatText, LogFormatJSON)),
	)
}

// BackendConfig identifies the ArchivesSpace backend. Empty fields are
// prompted for at startup.
type BackendConfig struct {
	URL       string        `yaml:"url"`
	Username  string        `yaml:"username"`
	Password  string        `yaml:"password"`
	CreatedBy string        `yaml:"created_by"`
	Timeout   time.Duration `yaml:"timeout"`
}

// Validate validates the backend configuration.
func (c *BackendConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.URL, is.URL),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Second)),
	)
}

// ScanConfig controls which directories are considered.
type ScanConfig struct {
	Exclude []string `yaml:"exclude"`
}

// PromptConfig selects how the fallback question is answered.
type PromptConfig struct {
	Fallback string `yaml:"fallback"`
}

// Validate validates the prompt configuration.
func (c *PromptConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Fallback, validation.Required,
			validation.In(prompt.PolicyAsk, prompt.PolicyAccept, prompt.PolicySkip)),
	)
}

// SandboxConfig configures the local stand-in backend.
type SandboxConfig struct {
	HTTP     HTTPConfig   `yaml:"http"`
	SQLite   SQLiteConfig `yaml:"sqlite"`
	Username string       `yaml:"username"`
	Password string       `yaml:"password"`
}

// Validate validates the sandbox configuration.
func (c *SandboxConfig) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Username, validation.Required),
		validation.Field(&c.Password, validation.Required),
	)
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// WatchConfig tunes watch mode.
type WatchConfig struct {
	Settle time.Duration `yaml:"settle"`
}

// Validate validates the watch configuration.
func (c *WatchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Settle, validation.Required, validation.Min(10*time.Millisecond)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel:  slog.LevelInfo,
			LogFormat: LogFormatText,
		},
		Backend: BackendConfig{
			Timeout: 30 * time.Second,
		},
		Scan: ScanConfig{
			Exclude: storage.DefaultExclude,
		},
		Prompt: PromptConfig{
			Fallback: prompt.PolicyAsk,
		},
		Sandbox: SandboxConfig{
			HTTP:     HTTPConfig{Port: 8089},
			SQLite:   SQLiteConfig{Path: "./sandbox.db"},
			Username: "admin",
			Password: "admin",
		},
		Watch: WatchConfig{
			Settle: 2 * time.Second,
		},
	}
}
