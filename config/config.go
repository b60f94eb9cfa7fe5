// Package config loads the warden runtime configuration: where intent
// records accumulate, which policy file governs the run, how to reach the
// platform, and the optional server, audit, and telemetry settings.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for one warden run.
type Config struct {
	Repo      string          `mapstructure:"repo"`
	Store     StoreConfig     `mapstructure:"store"`
	Policy    PolicyConfig    `mapstructure:"policy"`
	Trigger   TriggerConfig   `mapstructure:"trigger"`
	Platform  PlatformConfig  `mapstructure:"platform"`
	Server    ServerConfig    `mapstructure:"server"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Run       RunConfig       `mapstructure:"run"`
}

// StoreConfig selects where intent records accumulate during the agent
// phase. Backend "file" appends newline-delimited JSON; "redis" pushes to a
// list so several agent processes can share one store.
type StoreConfig struct {
	Backend string      `mapstructure:"backend"`
	Path    string      `mapstructure:"path"`
	Redis   RedisConfig `mapstructure:"redis"`
}

// RedisConfig carries the redis backend settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
}

func (s StoreConfig) Validate() error {
	switch s.Backend {
	case "file":
		if strings.TrimSpace(s.Path) == "" {
			return fmt.Errorf("store.path is required for the file backend")
		}
	case "redis":
		if strings.TrimSpace(s.Redis.Addr) == "" {
			return fmt.Errorf("store.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("store.backend must be file or redis, got %q", s.Backend)
	}
	return nil
}

// PolicyConfig points at the safe-outputs policy document.
type PolicyConfig struct {
	Path string `mapstructure:"path"`
}

// TriggerConfig describes the event that started the run.
type TriggerConfig struct {
	Kind   string `mapstructure:"kind"` // issue, pull_request, other
	Number int    `mapstructure:"number"`
}

func (t TriggerConfig) Validate() error {
	switch t.Kind {
	case "issue", "pull_request", "other", "":
		return nil
	}
	return fmt.Errorf("trigger.kind must be issue, pull_request, or other, got %q", t.Kind)
}

// PlatformConfig carries the apply-phase platform credentials.
type PlatformConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Token   string `mapstructure:"token"`
}

// ServerConfig contains the optional HTTP transport settings. The stdio
// transport needs none of them.
type ServerConfig struct {
	Addr      string `mapstructure:"addr"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// AuditConfig enables the Postgres audit trail.
type AuditConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	DSN           string `mapstructure:"dsn"`
	MigrationsDir string `mapstructure:"migrations_dir"`
}

func (a AuditConfig) Validate() error {
	if a.Enabled && strings.TrimSpace(a.DSN) == "" {
		return fmt.Errorf("audit.dsn is required when audit is enabled")
	}
	return nil
}

// TelemetryConfig controls the Prometheus endpoint on the HTTP transport.
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// RunConfig carries per-run plumbing paths.
type RunConfig struct {
	ID          string `mapstructure:"id"`
	OutputsPath string `mapstructure:"outputs_path"`
	SummaryPath string `mapstructure:"summary_path"`
}

// Load reads the config file at path, or searches the usual locations when
// path is empty. WARDEN_* environment variables override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("warden")
	v.SetConfigType("yaml")
	v.SetDefault("store.backend", "file")
	v.SetDefault("store.redis.key", "warden:records")
	v.SetDefault("platform.base_url", "https://api.github.com")
	v.SetDefault("audit.migrations_dir", "file://migrations")
	v.SetDefault("trigger.kind", "other")

	if path == "" {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("WARDEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Config may come entirely from environment variables.
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound || path != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the cross-field constraints.
func (c *Config) Validate() error {
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if err := c.Trigger.Validate(); err != nil {
		return err
	}
	return c.Audit.Validate()
}
