package provider

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"opportunity-engine/pkg/api"
	"opportunity-engine/pkg/keyword"
	"opportunity-engine/pkg/logger"
	"opportunity-engine/pkg/metrics"
)

// DirectFetcher queries the per-region keyword listing directly.
type DirectFetcher struct {
	config Config
	pager  *pager
	log    *logger.Logger
}

func NewDirectFetcher(config Config, requester api.Requester) *DirectFetcher {
	config = config.withDefaults()
	log := logger.GetLogger().WithField("component", "direct_fetcher")
	return &DirectFetcher{
		config: config,
		pager: &pager{
			requester: requester,
			headers:   authHeaders(config),
			pageSize:  config.PageSize,
			maxPages:  config.MaxPages,
			log:       log,
		},
		log: log,
	}
}

func (f *DirectFetcher) Fetch(ctx context.Context, domain string) ([]keyword.Record, error) {
	if f.config.APIKey == "" {
		return nil, api.ErrMissingCredential
	}

	start := time.Now()
	endpoint := fmt.Sprintf("%s/%s/keywords/", f.config.BaseURL, url.PathEscape(f.config.Region))
	params := url.Values{
		"domain": {domain},
		"type":   {"organic"},
	}

	records, err := f.pager.collect(ctx, endpoint, params, domain)
	if err != nil {
		return nil, err
	}

	metrics.RecordKeywordsFetched(StrategyDirect, len(records))
	f.log.WithFields(map[string]interface{}{
		"domain":      domain,
		"keywords":    len(records),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Fetched domain keywords")
	return records, nil
}
