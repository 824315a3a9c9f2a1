// Package config loads engine configuration from config.yaml with
// environment variable overrides. Secrets (passwords, API keys) must only
// come from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the catalog engine.
// Environment variables always override YAML values for fields that support
// both; yaml:"-" fields are env-only secrets.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Catalog store (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Data source to extract metadata from
	Source SourceConfig `yaml:"source"`

	// Remote LLM endpoint
	LLM LLMConfig `yaml:"llm"`

	// Redis progress-event transport (optional: empty host disables publishing)
	Redis RedisConfig `yaml:"redis"`

	// Enrichment orchestration settings
	Enrichment EnrichmentConfig `yaml:"enrichment"`

	// Circuit breaker guarding the LLM endpoint
	Breaker BreakerConfig `yaml:"breaker"`

	// Terminal-job retention sweep
	Retention RetentionConfig `yaml:"retention"`
}

// DatabaseConfig holds PostgreSQL catalog-store configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"catalog"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"catalog_engine"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	MigrationsPath string `yaml:"migrations_path" env:"PGMIGRATIONS_PATH" env-default:"migrations"`
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// SourceConfig holds the data-source connection used for extraction.
// Each extraction job opens its own connection from these settings; worker
// connections are never shared with request-serving code.
type SourceConfig struct {
	Driver   string `yaml:"driver" env:"SOURCE_DRIVER" env-default:"postgres"`
	Host     string `yaml:"host" env:"SOURCE_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"SOURCE_PORT" env-default:"5432"`
	User     string `yaml:"user" env:"SOURCE_USER" env-default:""`
	Password string `yaml:"-" env:"SOURCE_PASSWORD"` // Secret - not in YAML
	Database string `yaml:"database" env:"SOURCE_DATABASE" env-default:""`
	SSLMode  string `yaml:"ssl_mode" env:"SOURCE_SSLMODE" env-default:"disable"`

	// MaxConcurrent bounds per-job table extraction parallelism to the
	// source's safe concurrent-connection budget.
	MaxConcurrent int `yaml:"max_concurrent" env:"SOURCE_MAX_CONCURRENT" env-default:"4"`
}

// LLMConfig holds the remote LLM endpoint configuration.
type LLMConfig struct {
	// Provider selects the client: "openai" (any OpenAI-compatible endpoint)
	// or "anthropic".
	Provider string `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`
	Endpoint string `yaml:"endpoint" env:"LLM_ENDPOINT" env-default:"https://api.openai.com/v1"`
	Model    string `yaml:"model" env:"LLM_MODEL" env-default:""`
	APIKey   string `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML

	Temperature float64 `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0.3"`

	// RequestsPerSecond paces outbound calls; 0 disables pacing.
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"LLM_REQUESTS_PER_SECOND" env-default:"0"`
}

// RedisConfig holds the progress-event pub/sub transport configuration.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// EnrichmentConfig holds batching and context-size settings for the
// enrichment orchestrator.
type EnrichmentConfig struct {
	// MaxTablesPerBatch caps how many tables share one LLM call.
	MaxTablesPerBatch int `yaml:"max_tables_per_batch" env:"ENRICH_MAX_TABLES_PER_BATCH" env-default:"15"`

	// MaxInputTokens is the estimated-token ceiling for one batch prompt.
	// Also bounds the truncated context of a table too large for any batch.
	MaxInputTokens int `yaml:"max_input_tokens" env:"ENRICH_MAX_INPUT_TOKENS" env-default:"8000"`
}

// BreakerConfig holds circuit breaker thresholds for the LLM endpoint.
type BreakerConfig struct {
	FailureThreshold   int `yaml:"failure_threshold" env:"BREAKER_FAILURE_THRESHOLD" env-default:"5"`
	TransientThreshold int `yaml:"transient_threshold" env:"BREAKER_TRANSIENT_THRESHOLD" env-default:"3"`
	TransientWindowMin int `yaml:"transient_window_minutes" env:"BREAKER_TRANSIENT_WINDOW_MINUTES" env-default:"5"`
	CooldownSeconds    int `yaml:"cooldown_seconds" env:"BREAKER_COOLDOWN_SECONDS" env-default:"60"`
}

// TransientWindow returns the sliding-window duration for transient failures.
func (c *BreakerConfig) TransientWindow() time.Duration {
	return time.Duration(c.TransientWindowMin) * time.Minute
}

// Cooldown returns the open-state cooldown duration.
func (c *BreakerConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

// RetentionConfig controls deletion of terminal job rows.
type RetentionConfig struct {
	JobTTLHours          int `yaml:"job_ttl_hours" env:"RETENTION_JOB_TTL_HOURS" env-default:"72"`
	SweepIntervalMinutes int `yaml:"sweep_interval_minutes" env:"RETENTION_SWEEP_INTERVAL_MINUTES" env-default:"60"`
}

// JobTTL returns the retention window for terminal jobs.
func (c *RetentionConfig) JobTTL() time.Duration {
	return time.Duration(c.JobTTLHours) * time.Hour
}

// SweepInterval returns how often the retention sweep runs.
func (c *RetentionConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMinutes) * time.Minute
}

// Load reads configuration from config.yaml with environment variable
// overrides. The version parameter is injected at build time.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.LLM.Provider != "openai" && c.LLM.Provider != "anthropic" {
		return fmt.Errorf("unsupported llm provider %q", c.LLM.Provider)
	}
	if c.Enrichment.MaxTablesPerBatch < 1 {
		return fmt.Errorf("max_tables_per_batch must be at least 1")
	}
	if c.Enrichment.MaxInputTokens < 1 {
		return fmt.Errorf("max_input_tokens must be at least 1")
	}
	if c.Source.MaxConcurrent < 1 {
		return fmt.Errorf("source max_concurrent must be at least 1")
	}
	return nil
}
