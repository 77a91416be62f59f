// Package provider retrieves ranked keywords for a domain from the SE Ranking
// research API.
package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"opportunity-engine/pkg/api"
	"opportunity-engine/pkg/keyword"
)

const (
	StrategyDirect  = "direct"
	StrategyProject = "project"

	AuthBearer = "bearer"
	AuthPlain  = "plain"
)

// Fetcher returns every keyword the provider ranks domain for, up to the page
// ceiling. Records come back tagged with domain.
type Fetcher interface {
	Fetch(ctx context.Context, domain string) ([]keyword.Record, error)
}

// Config describes how to reach the provider.
type Config struct {
	BaseURL      string
	Region       string
	APIKey       string
	AuthScheme   string
	Strategy     string
	PageSize     int
	MaxPages     int
	PollInterval time.Duration
	MaxPolls     int
}

func DefaultConfig() Config {
	return Config{
		BaseURL:      "https://api4.seranking.com/research",
		Region:       "us",
		AuthScheme:   AuthBearer,
		Strategy:     StrategyDirect,
		PageSize:     1000,
		MaxPages:     10,
		PollInterval: 2 * time.Second,
		MaxPolls:     30,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BaseURL == "" {
		c.BaseURL = d.BaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Region == "" {
		c.Region = d.Region
	}
	if c.AuthScheme == "" {
		c.AuthScheme = d.AuthScheme
	}
	if c.Strategy == "" {
		c.Strategy = d.Strategy
	}
	if c.PageSize <= 0 {
		c.PageSize = d.PageSize
	}
	if c.MaxPages <= 0 {
		c.MaxPages = d.MaxPages
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.MaxPolls <= 0 {
		c.MaxPolls = d.MaxPolls
	}
	return c
}

// New builds the fetcher selected by config.Strategy.
func New(config Config, requester api.Requester, opts ...Option) (Fetcher, error) {
	config = config.withDefaults()
	switch config.AuthScheme {
	case AuthBearer, AuthPlain:
	default:
		return nil, fmt.Errorf("unknown auth scheme %q", config.AuthScheme)
	}

	switch config.Strategy {
	case StrategyDirect:
		return NewDirectFetcher(config, requester), nil
	case StrategyProject:
		return NewProjectFetcher(config, requester, opts...), nil
	default:
		return nil, fmt.Errorf("unknown fetch strategy %q", config.Strategy)
	}
}

func authHeaders(config Config) map[string]string {
	value := config.APIKey
	if config.AuthScheme == AuthBearer {
		value = "Bearer " + config.APIKey
	}
	return map[string]string{"Authorization": value}
}
