package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cast"

	"opportunity-engine/pkg/api"
	"opportunity-engine/pkg/keyword"
	"opportunity-engine/pkg/logger"
)

// pager walks a paginated keyword listing. It stops on an empty page, the
// page ceiling, an unrecognized payload, or once the reported total is reached.
type pager struct {
	requester api.Requester
	headers   map[string]string
	pageSize  int
	maxPages  int
	log       *logger.Logger
}

func (p *pager) collect(ctx context.Context, endpoint string, params url.Values, domain string) ([]keyword.Record, error) {
	var records []keyword.Record
	seen := 0

	for page := 1; page <= p.maxPages; page++ {
		q := url.Values{}
		for k, v := range params {
			q[k] = append([]string(nil), v...)
		}
		q.Set("limit", strconv.Itoa(p.pageSize))
		q.Set("page", strconv.Itoa(page))
		q.Set("cols", strings.Join(keyword.Columns, ","))

		payload, err := p.requester.Do(ctx, api.Request{
			URL:     endpoint,
			Headers: p.headers,
			Params:  q,
		})
		if err != nil {
			var malformed *api.MalformedResponseError
			if errors.As(err, &malformed) {
				p.log.WithError(err).WithField("page", page).Warn("Malformed keyword page, keeping rows fetched so far")
				break
			}
			return nil, fmt.Errorf("keywords page %d for %s: %w", page, domain, err)
		}

		rows, total, ok := extractRows(payload)
		if !ok {
			p.log.WithFields(map[string]interface{}{
				"page":    page,
				"payload": describe(payload),
			}).Warn("Unexpected keyword response format, keeping rows fetched so far")
			break
		}
		if len(rows) == 0 {
			break
		}

		records = append(records, keyword.FromRows(rows, domain)...)
		seen += len(rows)

		if total > 0 && seen >= total {
			break
		}
		if page == p.maxPages {
			p.log.WithFields(map[string]interface{}{
				"pages": page,
				"rows":  seen,
			}).Info("Page ceiling reached")
		}
	}

	return records, nil
}

// extractRows finds the row array in a keyword page. total is 0 when the
// provider did not report one.
func extractRows(payload interface{}) (rows []interface{}, total int, ok bool) {
	obj, isObj := payload.(map[string]interface{})
	if !isObj {
		return nil, 0, false
	}
	for _, key := range []string{"rows", "keywords"} {
		if arr, found := obj[key].([]interface{}); found {
			rows = arr
			ok = true
			break
		}
	}
	if !ok {
		return nil, 0, false
	}
	raw := obj["total"]
	if n, isNum := raw.(json.Number); isNum {
		raw = n.String()
	}
	if t, err := cast.ToIntE(raw); err == nil && t > 0 {
		total = t
	}
	return rows, total, true
}

func describe(payload interface{}) string {
	switch v := payload.(type) {
	case nil:
		return "empty"
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		return "object keys: " + strings.Join(keys, ",")
	case []interface{}:
		return fmt.Sprintf("array of %d", len(v))
	default:
		return fmt.Sprintf("%T", v)
	}
}
