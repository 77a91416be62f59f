package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opportunity-engine/pkg/api"
)

func projectConfig() Config {
	cfg := testConfig()
	cfg.Strategy = StrategyProject
	cfg.MaxPolls = 3
	return cfg
}

type projectScript struct {
	statuses  []string
	pages     []interface{}
	createErr error
	pageErr   error
}

func (s *projectScript) respond(t *testing.T) func(api.Request, int) (interface{}, error) {
	polls, pages := 0, 0
	return func(r api.Request, n int) (interface{}, error) {
		switch {
		case r.Method == http.MethodPost:
			if s.createErr != nil {
				return nil, s.createErr
			}
			body, _ := r.Body.(map[string]interface{})
			assert.True(t, strings.HasPrefix(body["name"].(string), "moe-"))
			assert.Equal(t, "d.com", body["domain"])
			return map[string]interface{}{"id": "p-42"}, nil
		case r.Method == http.MethodDelete:
			return nil, nil
		case strings.HasSuffix(r.URL, "/keywords"):
			if s.pageErr != nil {
				return nil, s.pageErr
			}
			pages++
			if pages > len(s.pages) {
				return map[string]interface{}{"rows": []interface{}{}}, nil
			}
			return s.pages[pages-1], nil
		default:
			polls++
			status := s.statuses[len(s.statuses)-1]
			if polls <= len(s.statuses) {
				status = s.statuses[polls-1]
			}
			return map[string]interface{}{"id": "p-42", "status": status}, nil
		}
	}
}

func deleteCalls(calls []api.Request) int {
	n := 0
	for _, c := range calls {
		if c.Method == http.MethodDelete {
			n++
			if !strings.HasSuffix(c.URL, "/projects/p-42") {
				n = -100
			}
		}
	}
	return n
}

func TestProjectFetcher_Lifecycle(t *testing.T) {
	script := &projectScript{
		statuses: []string{"processing", "Ready"},
		pages:    []interface{}{rowsPage("a", 2), rowsPage("b", 1)},
	}
	req := &fakeRequester{respond: script.respond(t)}

	records, err := NewProjectFetcher(projectConfig(), req, WithPollSleep(noSleep)).
		Fetch(context.Background(), "d.com")
	require.NoError(t, err)
	assert.Len(t, records, 3)

	calls := req.Calls()
	assert.Equal(t, http.MethodPost, calls[0].Method)
	assert.Equal(t, "https://provider.test/research/projects", calls[0].URL)
	assert.Equal(t, "https://provider.test/research/projects/p-42", calls[1].URL)
	assert.Equal(t, "https://provider.test/research/projects/p-42/keywords", calls[3].URL)
	assert.Equal(t, http.MethodDelete, calls[len(calls)-1].Method)
	assert.Equal(t, 1, deleteCalls(calls))
}

func TestProjectFetcher_DeletesOnFailure(t *testing.T) {
	tests := []struct {
		name    string
		script  *projectScript
		wantErr error
	}{
		{
			name:    "never ready",
			script:  &projectScript{statuses: []string{"queued"}},
			wantErr: ErrProjectNotReady,
		},
		{
			name:    "provider failed",
			script:  &projectScript{statuses: []string{"failed"}},
			wantErr: ErrProjectFailed,
		},
		{
			name: "page request failed",
			script: &projectScript{
				statuses: []string{"done"},
				pageErr:  &api.RequestFailedError{StatusCode: 500, Attempts: 3},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &fakeRequester{respond: tt.script.respond(t)}

			_, err := NewProjectFetcher(projectConfig(), req, WithPollSleep(noSleep)).
				Fetch(context.Background(), "d.com")
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Equal(t, 1, deleteCalls(req.Calls()))
		})
	}
}

func TestProjectFetcher_DeletesWhenCancelled(t *testing.T) {
	script := &projectScript{statuses: []string{"processing"}}
	req := &fakeRequester{respond: script.respond(t)}

	ctx, cancel := context.WithCancel(context.Background())
	sleep := func(c context.Context, _ time.Duration) error {
		cancel()
		return c.Err()
	}

	_, err := NewProjectFetcher(projectConfig(), req, WithPollSleep(sleep)).Fetch(ctx, "d.com")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, deleteCalls(req.Calls()))
}

func TestProjectFetcher_CreateFailure(t *testing.T) {
	script := &projectScript{createErr: errors.New("boom")}
	req := &fakeRequester{respond: script.respond(t)}

	_, err := NewProjectFetcher(projectConfig(), req).Fetch(context.Background(), "d.com")
	require.Error(t, err)
	assert.Len(t, req.Calls(), 1, "nothing to delete when creation failed")
}

func TestProjectFetcher_MissingProjectID(t *testing.T) {
	req := &fakeRequester{respond: func(r api.Request, n int) (interface{}, error) {
		return map[string]interface{}{"status": "ok"}, nil
	}}

	_, err := NewProjectFetcher(projectConfig(), req).Fetch(context.Background(), "d.com")
	var malformed *api.MalformedResponseError
	assert.True(t, errors.As(err, &malformed))
}

func TestProjectFetcher_MissingCredential(t *testing.T) {
	req := &fakeRequester{}
	cfg := projectConfig()
	cfg.APIKey = ""

	_, err := NewProjectFetcher(cfg, req).Fetch(context.Background(), "d.com")
	assert.ErrorIs(t, err, api.ErrMissingCredential)
	assert.Empty(t, req.Calls())
}
