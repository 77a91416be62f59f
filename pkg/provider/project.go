package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cast"

	"opportunity-engine/pkg/api"
	"opportunity-engine/pkg/keyword"
	"opportunity-engine/pkg/logger"
	"opportunity-engine/pkg/metrics"
)

// ErrProjectNotReady is returned when a project does not become ready within
// the configured number of polls.
var ErrProjectNotReady = errors.New("provider project did not become ready")

// ErrProjectFailed is returned when the provider reports the project failed.
var ErrProjectFailed = errors.New("provider project failed")

const deleteTimeout = 10 * time.Second

type Option func(*ProjectFetcher)

// WithPollSleep replaces the sleeper used between status polls.
func WithPollSleep(sleep api.SleepFunc) Option {
	return func(f *ProjectFetcher) {
		if sleep != nil {
			f.sleep = sleep
		}
	}
}

// ProjectFetcher retrieves keywords through a temporary provider project:
// create, poll until ready, page through its keywords, delete.
type ProjectFetcher struct {
	config    Config
	requester api.Requester
	headers   map[string]string
	pager     *pager
	sleep     api.SleepFunc
	log       *logger.Logger
}

func NewProjectFetcher(config Config, requester api.Requester, opts ...Option) *ProjectFetcher {
	config = config.withDefaults()
	log := logger.GetLogger().WithField("component", "project_fetcher")
	headers := authHeaders(config)
	f := &ProjectFetcher{
		config:    config,
		requester: requester,
		headers:   headers,
		pager: &pager{
			requester: requester,
			headers:   headers,
			pageSize:  config.PageSize,
			maxPages:  config.MaxPages,
			log:       log,
		},
		sleep: sleepContext,
		log:   log,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *ProjectFetcher) Fetch(ctx context.Context, domain string) (records []keyword.Record, err error) {
	if f.config.APIKey == "" {
		return nil, api.ErrMissingCredential
	}
	start := time.Now()

	projectID, err := f.create(ctx, domain)
	if err != nil {
		return nil, err
	}
	log := f.log.WithFields(map[string]interface{}{
		"domain":     domain,
		"project_id": projectID,
	})
	defer f.delete(ctx, projectID, log)

	if err := f.waitReady(ctx, projectID); err != nil {
		return nil, err
	}

	records, err = f.pager.collect(ctx, f.projectURL(projectID)+"/keywords", url.Values{}, domain)
	if err != nil {
		return nil, err
	}

	metrics.RecordKeywordsFetched(StrategyProject, len(records))
	log.WithFields(map[string]interface{}{
		"keywords":    len(records),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Fetched domain keywords via project")
	return records, nil
}

func (f *ProjectFetcher) projectURL(id string) string {
	return fmt.Sprintf("%s/projects/%s", f.config.BaseURL, url.PathEscape(id))
}

func (f *ProjectFetcher) create(ctx context.Context, domain string) (string, error) {
	payload, err := f.requester.Do(ctx, api.Request{
		Method:  http.MethodPost,
		URL:     f.config.BaseURL + "/projects",
		Headers: f.headers,
		Body: map[string]interface{}{
			"name":   "moe-" + uuid.NewString(),
			"domain": domain,
			"region": f.config.Region,
			"type":   "organic",
		},
	})
	if err != nil {
		return "", fmt.Errorf("create project for %s: %w", domain, err)
	}

	obj, _ := payload.(map[string]interface{})
	for _, key := range []string{"id", "project_id"} {
		if id := strings.TrimSpace(cast.ToString(obj[key])); id != "" {
			return id, nil
		}
	}
	return "", &api.MalformedResponseError{
		URL: f.config.BaseURL + "/projects",
		Err: errors.New("project id missing from create response"),
	}
}

func (f *ProjectFetcher) waitReady(ctx context.Context, id string) error {
	for poll := 1; poll <= f.config.MaxPolls; poll++ {
		payload, err := f.requester.Do(ctx, api.Request{
			URL:     f.projectURL(id),
			Headers: f.headers,
		})
		if err != nil {
			return fmt.Errorf("poll project %s: %w", id, err)
		}

		obj, _ := payload.(map[string]interface{})
		status := strings.ToLower(strings.TrimSpace(cast.ToString(obj["status"])))
		switch status {
		case "ready", "done", "completed", "finished":
			return nil
		case "failed", "error":
			return fmt.Errorf("%w: project %s status %q", ErrProjectFailed, id, status)
		}

		f.log.WithFields(map[string]interface{}{
			"project_id": id,
			"status":     status,
			"poll":       poll,
		}).Debug("Project not ready yet")

		if poll < f.config.MaxPolls {
			if err := f.sleep(ctx, f.config.PollInterval); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("%w: project %s after %d polls", ErrProjectNotReady, id, f.config.MaxPolls)
}

// delete removes the project even when ctx is already cancelled.
func (f *ProjectFetcher) delete(ctx context.Context, id string, log *logger.Logger) {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deleteTimeout)
	defer cancel()

	if _, err := f.requester.Do(dctx, api.Request{
		Method:  http.MethodDelete,
		URL:     f.projectURL(id),
		Headers: f.headers,
	}); err != nil {
		log.WithError(err).Warn("Failed to delete provider project")
		return
	}
	log.Debug("Deleted provider project")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
