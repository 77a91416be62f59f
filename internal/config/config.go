package config

import (
	"time"

	"opportunity-engine/pkg/api"
	"opportunity-engine/pkg/export"
	"opportunity-engine/pkg/logger"
	"opportunity-engine/pkg/provider"
)

type Config struct {
	Provider ProviderConfig `mapstructure:"provider"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Server   ServerConfig   `mapstructure:"server"`
	Export   export.Config  `mapstructure:"export"`
	Database DatabaseConfig `mapstructure:"database"`
	Logger   logger.Config  `mapstructure:"logger"`
}

type ProviderConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	Region            string        `mapstructure:"region"`
	APIKey            string        `mapstructure:"api_key"`
	AuthScheme        string        `mapstructure:"auth_scheme"`
	Strategy          string        `mapstructure:"strategy"`
	CallsPerSecond    float64       `mapstructure:"calls_per_second"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	RetryBaseDelay    time.Duration `mapstructure:"retry_base_delay"`
	RetryAfterDefault time.Duration `mapstructure:"retry_after_default"`
	MaxRateLimitWaits int           `mapstructure:"max_rate_limit_waits"`
	PageSize          int           `mapstructure:"page_size"`
	MaxPages          int           `mapstructure:"max_pages"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	MaxPolls          int           `mapstructure:"max_polls"`
}

type AnalysisConfig struct {
	HighOpportunityThreshold float64  `mapstructure:"high_opportunity_threshold"`
	TopN                     int      `mapstructure:"top_n"`
	BrandedTerms             []string `mapstructure:"branded_terms"`
	ScoringPolicy            string   `mapstructure:"scoring_policy"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	MaxJobs         int           `mapstructure:"max_jobs"`
	JobTTL          time.Duration `mapstructure:"job_ttl"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL            string `mapstructure:"url"`
	MaxConns       int32  `mapstructure:"max_conns"`
	MigrateOnStart bool   `mapstructure:"migrate_on_start"`
}

type Manager interface {
	Load(configPath string) (*Config, error)
	Reload() error
	GetConfig() *Config
}

// ClientConfig maps provider settings onto the HTTP client wrapper.
func (c ProviderConfig) ClientConfig() api.Config {
	cfg := api.DefaultConfig()
	cfg.Timeout = c.Timeout
	cfg.MaxAttempts = c.MaxAttempts
	cfg.RetryBaseDelay = c.RetryBaseDelay
	cfg.RetryAfterDefault = c.RetryAfterDefault
	cfg.MaxRateLimitWaits = c.MaxRateLimitWaits
	return cfg
}

// FetcherConfig maps provider settings onto the keyword fetcher.
func (c ProviderConfig) FetcherConfig() provider.Config {
	return provider.Config{
		BaseURL:      c.BaseURL,
		Region:       c.Region,
		APIKey:       c.APIKey,
		AuthScheme:   c.AuthScheme,
		Strategy:     c.Strategy,
		PageSize:     c.PageSize,
		MaxPages:     c.MaxPages,
		PollInterval: c.PollInterval,
		MaxPolls:     c.MaxPolls,
	}
}
