package api

import (
	"time"

	"github.com/valyala/fasthttp"

	"opportunity-engine/pkg/logger"
)

// ConnectionConfig holds configuration for outbound provider connections
type ConnectionConfig struct {
	MaxConnsPerHost     int           `json:"max_conns_per_host"`
	MaxIdleConnDuration time.Duration `json:"max_idle_conn_duration"`
	ReadTimeout         time.Duration `json:"read_timeout"`
	WriteTimeout        time.Duration `json:"write_timeout"`
	MaxResponseBodySize int           `json:"max_response_body_size"`
}

// DefaultConnectionConfig suits a single sequential analysis: few connections,
// large JSON pages (1000 rows per page).
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		MaxConnsPerHost:     8,
		MaxIdleConnDuration: 90 * time.Second,
		ReadTimeout:         30 * time.Second,
		WriteTimeout:        10 * time.Second,
		MaxResponseBodySize: 64 << 20,
	}
}

// ConnectionManager owns the pooled fasthttp client used for provider calls
type ConnectionManager struct {
	config ConnectionConfig
	client *fasthttp.Client
	log    *logger.Logger
}

// NewConnectionManager creates a new connection manager with specified config
func NewConnectionManager(config ConnectionConfig, userAgent string) *ConnectionManager {
	client := &fasthttp.Client{
		Name:                          userAgent,
		MaxConnsPerHost:               config.MaxConnsPerHost,
		MaxIdleConnDuration:           config.MaxIdleConnDuration,
		ReadTimeout:                   config.ReadTimeout,
		WriteTimeout:                  config.WriteTimeout,
		MaxResponseBodySize:           config.MaxResponseBodySize,
		NoDefaultUserAgentHeader:      userAgent == "",
		DisableHeaderNamesNormalizing: false,
	}

	return &ConnectionManager{
		config: config,
		client: client,
		log:    logger.GetLogger().WithField("component", "connection_manager"),
	}
}

// GetFastHTTPClient returns the managed client
func (cm *ConnectionManager) GetFastHTTPClient() *fasthttp.Client {
	return cm.client
}

// Close closes all idle connections
func (cm *ConnectionManager) Close() {
	cm.log.Debug("Closing idle provider connections")
	cm.client.CloseIdleConnections()
}
