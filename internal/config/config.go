// Package config loads ui-morn settings from defaults, an optional YAML file and UIMORN_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. UIMORN_LOG_LEVEL.
const EnvPrefix = "UIMORN"

// Config is the effective server configuration.
type Config struct {
	Addr            string          `mapstructure:"addr" yaml:"addr"`
	PublicURL       string          `mapstructure:"public_url" yaml:"public_url"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	Log             LogConfig       `mapstructure:"log" yaml:"log"`
	Stream          StreamConfig    `mapstructure:"stream" yaml:"stream"`
	Retention       RetentionConfig `mapstructure:"retention" yaml:"retention"`
	Redis           RedisConfig     `mapstructure:"redis" yaml:"redis"`
	Audit           AuditConfig     `mapstructure:"audit" yaml:"audit"`
	Tools           ToolsConfig     `mapstructure:"tools" yaml:"tools"`
	Scenario        ScenarioConfig  `mapstructure:"scenario" yaml:"scenario"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// StreamConfig controls per-subscriber buffering and keep-alive comments.
type StreamConfig struct {
	Buffer    int           `mapstructure:"buffer" yaml:"buffer"`
	Heartbeat time.Duration `mapstructure:"heartbeat" yaml:"heartbeat"`
}

// RetentionConfig bounds memory. Zero values mean unbounded.
type RetentionConfig struct {
	MaxEvents int           `mapstructure:"max_events" yaml:"max_events"`
	TTL       time.Duration `mapstructure:"ttl" yaml:"ttl"`
	MaxOwners int           `mapstructure:"max_owners" yaml:"max_owners"`
}

// RedisConfig enables the Redis stream mirror when Addr is set.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr" yaml:"addr"`
	Password string        `mapstructure:"password" yaml:"password,omitempty"`
	DB       int           `mapstructure:"db" yaml:"db"`
	Stream   string        `mapstructure:"stream" yaml:"stream"`
	MaxLen   int64         `mapstructure:"max_len" yaml:"max_len"`
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// AuditConfig sizes the in-memory mirror used when Redis is not configured.
// Redact lists regular expressions; data part keys matching any of them are
// masked before events are mirrored.
type AuditConfig struct {
	MaxLen int      `mapstructure:"max_len" yaml:"max_len"`
	Redact []string `mapstructure:"redact" yaml:"redact"`
}

type ToolsConfig struct {
	Allowlist []string `mapstructure:"allowlist" yaml:"allowlist"`
}

type ScenarioConfig struct {
	ChunkDelay time.Duration `mapstructure:"chunk_delay" yaml:"chunk_delay"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Addr:            ":8080",
		ShutdownTimeout: 10 * time.Second,
		Log:             LogConfig{Level: "info", Format: "text"},
		Stream:          StreamConfig{Buffer: 256, Heartbeat: 15 * time.Second},
		Redis:           RedisConfig{Stream: "uimorn:events:", MaxLen: 10000},
		Audit:           AuditConfig{MaxLen: 1000, Redact: []string{"(?i)password", "(?i)secret", "(?i)token"}},
		Tools:           ToolsConfig{Allowlist: []string{"https://example.com", "https://httpbin.org/get"}},
		Scenario:        ScenarioConfig{ChunkDelay: 120 * time.Millisecond},
	}
}

// New returns a viper instance with defaults and environment binding applied.
func New() *viper.Viper {
	v := viper.New()
	d := Default()
	v.SetDefault("addr", d.Addr)
	v.SetDefault("public_url", d.PublicURL)
	v.SetDefault("shutdown_timeout", d.ShutdownTimeout)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("stream.buffer", d.Stream.Buffer)
	v.SetDefault("stream.heartbeat", d.Stream.Heartbeat)
	v.SetDefault("retention.max_events", d.Retention.MaxEvents)
	v.SetDefault("retention.ttl", d.Retention.TTL)
	v.SetDefault("retention.max_owners", d.Retention.MaxOwners)
	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.stream", d.Redis.Stream)
	v.SetDefault("redis.max_len", d.Redis.MaxLen)
	v.SetDefault("redis.ttl", d.Redis.TTL)
	v.SetDefault("audit.max_len", d.Audit.MaxLen)
	v.SetDefault("audit.redact", d.Audit.Redact)
	v.SetDefault("tools.allowlist", d.Tools.Allowlist)
	v.SetDefault("scenario.chunk_delay", d.Scenario.ChunkDelay)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional file at path and decodes the merged settings.
func Load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Addr) == "" {
		errs = append(errs, errors.New("addr must not be empty"))
	}
	if c.Stream.Buffer <= 0 {
		errs = append(errs, fmt.Errorf("stream.buffer must be positive, got %d", c.Stream.Buffer))
	}
	if c.Stream.Heartbeat < 0 {
		errs = append(errs, errors.New("stream.heartbeat must not be negative"))
	}
	if c.Retention.MaxEvents < 0 || c.Retention.MaxOwners < 0 || c.Retention.TTL < 0 {
		errs = append(errs, errors.New("retention values must not be negative"))
	}
	if c.Redis.MaxLen < 0 {
		errs = append(errs, errors.New("redis.max_len must not be negative"))
	}
	return errors.Join(errs...)
}
