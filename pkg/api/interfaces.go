package api

import (
	"context"
	"net/url"
)

// Request describes one logical call to the ranking API. Params are encoded
// into the query string; Body, when set, is sent as JSON.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Params  url.Values
	Body    interface{}
}

// Requester issues a request and returns the decoded JSON payload
// (objects as map[string]interface{}, numbers as json.Number).
type Requester interface {
	Do(ctx context.Context, req Request) (interface{}, error)
}

// Waiter gates every outbound attempt; see pkg/ratelimit.
type Waiter interface {
	Wait(ctx context.Context) error
}
