package config

import (
	"fmt"
	"sort"
)

// Config represents the main toolwire configuration
type Config struct {
	// Tool endpoint URLs keyed by tool name
	Endpoints map[string]string `json:"endpoints" mapstructure:"endpoints"`

	// AI provider profiles
	AI AIConfig `json:"ai" mapstructure:"ai"`

	// Exec sandbox settings
	Exec ExecConfig `json:"exec" mapstructure:"exec"`

	// HTTP dispatch settings
	HTTP HTTPConfig `json:"http" mapstructure:"http"`

	// Server settings for the built-in system tool server
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Audit trail settings
	Audit AuditConfig `json:"audit" mapstructure:"audit"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// AIConfig holds AI provider configuration
type AIConfig struct {
	Profiles []ProfileConfig `json:"profiles" mapstructure:"profiles"`
}

// ProfileConfig represents one provider profile
type ProfileConfig struct {
	Provider string `json:"provider" mapstructure:"provider"` // anthropic, openai
	Model    string `json:"model" mapstructure:"model"`
	APIKey   string `json:"api_key" mapstructure:"api_key"`
	Priority int    `json:"priority" mapstructure:"priority"`
}

// ExecConfig defines sandbox settings for the system exec tool
type ExecConfig struct {
	DefaultTimeoutSec int    `json:"default_timeout_sec" mapstructure:"default_timeout_sec"`
	WorkDir           string `json:"workdir" mapstructure:"workdir"`
	PolicyPath        string `json:"policy_path" mapstructure:"policy_path"`
}

// HTTPConfig holds dispatch client settings
type HTTPConfig struct {
	TimeoutSec int `json:"timeout_sec" mapstructure:"timeout_sec"`
}

// ServerConfig holds the system tool server configuration
type ServerConfig struct {
	Host           string `json:"host" mapstructure:"host"`
	Port           int    `json:"port" mapstructure:"port"`
	MetricsEnabled bool   `json:"metrics_enabled" mapstructure:"metrics_enabled"`
}

// AuditConfig holds audit trail configuration
type AuditConfig struct {
	Enabled       bool   `json:"enabled" mapstructure:"enabled"`
	Path          string `json:"path" mapstructure:"path"`
	RetentionDays int    `json:"retention_days" mapstructure:"retention_days"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Endpoints: map[string]string{
			"filesystem": "http://127.0.0.1:4801",
			"system":     "http://127.0.0.1:4810",
			"browser":    "http://127.0.0.1:4803",
		},
		AI: AIConfig{},
		Exec: ExecConfig{
			DefaultTimeoutSec: 15,
		},
		HTTP: HTTPConfig{
			TimeoutSec: 15,
		},
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           4810,
			MetricsEnabled: true,
		},
		Audit: AuditConfig{
			Enabled:       true,
			RetentionDays: 30,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Redaction: true,
		},
	}
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	if len(c.Endpoints) == 0 {
		return fmt.Errorf("at least one tool endpoint is required")
	}
	for tool, url := range c.Endpoints {
		if url == "" {
			return fmt.Errorf("endpoint for tool %q is empty", tool)
		}
	}

	for i, p := range c.AI.Profiles {
		switch p.Provider {
		case "anthropic", "openai":
		default:
			return fmt.Errorf("profile %d: unsupported provider %q", i, p.Provider)
		}
	}

	if c.Exec.DefaultTimeoutSec <= 0 {
		return fmt.Errorf("exec.default_timeout_sec must be positive")
	}
	if c.HTTP.TimeoutSec <= 0 {
		return fmt.Errorf("http.timeout_sec must be positive")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535")
	}
	if c.Audit.RetentionDays < 0 {
		return fmt.Errorf("audit.retention_days must not be negative")
	}

	switch c.Logging.Level {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log level %q", c.Logging.Level)
	}

	return nil
}

// OrderedProfiles returns AI profiles sorted by ascending priority.
// Profiles with equal priority keep their configured order.
func (c *Config) OrderedProfiles() []ProfileConfig {
	out := make([]ProfileConfig, len(c.AI.Profiles))
	copy(out, c.AI.Profiles)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority < out[j].Priority
	})
	return out
}
