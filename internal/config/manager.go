package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"opportunity-engine/pkg/export"
	"opportunity-engine/pkg/provider"
	"opportunity-engine/pkg/scoring"
)

// EnvPrefix prefixes every environment override, e.g. MOE_SERVER_PORT.
const EnvPrefix = "MOE"

type manager struct {
	mu         sync.RWMutex
	config     *Config
	viper      *viper.Viper
	configPath string
}

func NewManager() Manager {
	return &manager{
		viper: viper.New(),
	}
}

// Load reads defaults, the optional config file and the environment, in
// increasing precedence. An empty configPath means environment only.
func (m *manager) Load(configPath string) (*Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.configPath = configPath
	if err := m.setupViper(); err != nil {
		return nil, fmt.Errorf("failed to setup viper: %w", err)
	}

	config, err := m.read()
	if err != nil {
		return nil, err
	}
	m.config = config
	return config, nil
}

func (m *manager) Reload() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.config == nil {
		return fmt.Errorf("config not loaded")
	}

	config, err := m.read()
	if err != nil {
		return fmt.Errorf("failed to reload config: %w", err)
	}
	m.config = config
	return nil
}

func (m *manager) GetConfig() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

func (m *manager) read() (*Config, error) {
	if m.configPath != "" {
		if err := m.viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := m.viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := m.validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

func (m *manager) setupViper() error {
	setDefaults(m.viper)

	if m.configPath != "" {
		m.viper.SetConfigFile(m.configPath)
	}

	m.viper.SetEnvPrefix(EnvPrefix)
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	m.viper.AutomaticEnv()

	// The credential is also accepted under the provider's conventional names.
	return m.viper.BindEnv("provider.api_key", "MOE_PROVIDER_API_KEY", "SE_RANKING_API_KEY", "SERANKING_API_KEY")
}

func setDefaults(v *viper.Viper) {
	p := provider.DefaultConfig()
	v.SetDefault("provider.base_url", p.BaseURL)
	v.SetDefault("provider.region", p.Region)
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.auth_scheme", p.AuthScheme)
	v.SetDefault("provider.strategy", p.Strategy)
	v.SetDefault("provider.calls_per_second", 1.0)
	v.SetDefault("provider.timeout", "10s")
	v.SetDefault("provider.max_attempts", 3)
	v.SetDefault("provider.retry_base_delay", "1s")
	v.SetDefault("provider.retry_after_default", "60s")
	v.SetDefault("provider.max_rate_limit_waits", 10)
	v.SetDefault("provider.page_size", p.PageSize)
	v.SetDefault("provider.max_pages", p.MaxPages)
	v.SetDefault("provider.poll_interval", p.PollInterval.String())
	v.SetDefault("provider.max_polls", p.MaxPolls)

	v.SetDefault("analysis.high_opportunity_threshold", 0.7)
	v.SetDefault("analysis.top_n", 10)
	v.SetDefault("analysis.branded_terms", []string{})
	v.SetDefault("analysis.scoring_policy", scoring.PolicyV1.Version)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.max_jobs", 100)
	v.SetDefault("server.job_ttl", "1h")
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("export.backend", string(export.SinkTypeFS))
	v.SetDefault("export.output_dir", "output")
	v.SetDefault("export.bucket", "")
	v.SetDefault("export.prefix", "")

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.migrate_on_start", true)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.output", "stderr")
	v.SetDefault("logger.time_format", "")
}

func (m *manager) validateConfig(config *Config) error {
	p := config.Provider
	if p.BaseURL == "" {
		return fmt.Errorf("provider.base_url cannot be empty")
	}
	if p.CallsPerSecond <= 0 {
		return fmt.Errorf("provider.calls_per_second must be positive")
	}
	if p.MaxAttempts <= 0 {
		return fmt.Errorf("provider.max_attempts must be positive")
	}
	if p.MaxPages <= 0 || p.PageSize <= 0 {
		return fmt.Errorf("provider.max_pages and provider.page_size must be positive")
	}
	switch p.Strategy {
	case provider.StrategyDirect, provider.StrategyProject:
	default:
		return fmt.Errorf("invalid provider.strategy: %q", p.Strategy)
	}
	switch p.AuthScheme {
	case provider.AuthBearer, provider.AuthPlain:
	default:
		return fmt.Errorf("invalid provider.auth_scheme: %q", p.AuthScheme)
	}

	if config.Analysis.TopN <= 0 {
		return fmt.Errorf("analysis.top_n must be positive")
	}
	if _, err := scoring.Lookup(config.Analysis.ScoringPolicy); err != nil {
		return err
	}

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}
	if config.Server.MaxJobs <= 0 {
		return fmt.Errorf("server.max_jobs must be positive")
	}

	switch export.SinkType(config.Export.Backend) {
	case export.SinkTypeFS:
		if config.Export.OutputDir == "" {
			return fmt.Errorf("export.output_dir cannot be empty")
		}
	case export.SinkTypeGCS:
		if config.Export.Bucket == "" {
			return fmt.Errorf("export.bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("invalid export.backend: %q", config.Export.Backend)
	}

	return nil
}
