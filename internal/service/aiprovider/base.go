package aiprovider

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// httpBase centralizes client construction and JSON POST handling for
// opinion endpoints.
type httpBase struct {
	baseURL string
	client  *resty.Client
}

func newHTTPBase(baseURL, apiKey string, timeout time.Duration) *httpBase {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		c.SetAuthToken(apiKey)
	}
	return &httpBase{baseURL: baseURL, client: c}
}

// postJSON posts payload to path under baseURL and decodes JSON into dest.
func (b *httpBase) postJSON(ctx context.Context, path string, payload, dest interface{}) error {
	if b.client == nil || b.baseURL == "" {
		return fmt.Errorf("opinion http client not initialized")
	}
	resp, err := b.client.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(dest).
		Post(path)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	if resp.IsError() {
		return fmt.Errorf("post %s: status %d", path, resp.StatusCode())
	}
	return nil
}

// postJSONWithRetry posts JSON with up to attempts tries for transient errors.
func (b *httpBase) postJSONWithRetry(ctx context.Context, path string, payload, dest interface{}, attempts int) error {
	if attempts <= 1 {
		return b.postJSON(ctx, path, payload, dest)
	}
	var err error
	for i := 1; i <= attempts; i++ {
		err = b.postJSON(ctx, path, payload, dest)
		if err == nil {
			return nil
		}
		if i == attempts {
			break
		}
		select {
		case <-time.After(time.Duration(i) * 50 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
