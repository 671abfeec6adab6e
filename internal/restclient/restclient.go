// Package restclient is the direct-protocol tier of the remote call layer: a
// small JSON client with bearer auth, a fixed per-call timeout and
// exponential backoff on transient failures.
package restclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Client issues authenticated JSON requests against a single Atlassian base
// URL. Transient failures (network errors and 5xx responses) are retried
// with exponential backoff; 4xx responses are returned immediately.
type Client struct {
	base    string
	token   string
	hc      *http.Client
	logger  *zap.Logger
	timeout time.Duration
}

// StatusError is returned for non-2xx responses that survive retries.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// New creates a Client for the given base URL and bearer token.
func New(base, token string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		base:    base,
		token:   token,
		hc:      &http.Client{Timeout: timeout},
		logger:  logger,
		timeout: timeout,
	}
}

// GetJSON fetches path with the given query parameters and decodes the JSON
// response into out.
func (c *Client) GetJSON(ctx context.Context, path string, params url.Values, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, params, nil, out)
}

// PostJSON posts payload as JSON to path and decodes the response into out
// (out may be nil for 204-style responses).
func (c *Client) PostJSON(ctx context.Context, path string, payload, out any) error {
	return c.doJSON(ctx, http.MethodPost, path, nil, payload, out)
}

// PutJSON puts payload as JSON to path and decodes the response into out.
func (c *Client) PutJSON(ctx context.Context, path string, payload, out any) error {
	return c.doJSON(ctx, http.MethodPut, path, nil, payload, out)
}

// Head issues a HEAD request against an absolute URL without following
// redirects and returns the response status and Location header.
func (c *Client) Head(ctx context.Context, absURL string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, absURL, nil)
	if err != nil {
		return 0, "", err
	}
	c.setHeaders(req)

	hc := &http.Client{
		Timeout: c.timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	resp, err := hc.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	return resp.StatusCode, resp.Header.Get("Location"), nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, params url.Values, payload, out any) error {
	u := c.base + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
	}

	operation := func() error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, reader)
		if err != nil {
			return backoff.Permanent(err)
		}
		c.setHeaders(req)

		resp, err := c.hc.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 500 {
			return &StatusError{Code: resp.StatusCode, Body: truncate(data)}
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(&StatusError{Code: resp.StatusCode, Body: truncate(data)})
		}
		if out != nil && len(data) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return backoff.Permanent(fmt.Errorf("decode response: %w", err))
			}
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.MaxInterval = 10 * time.Second
	policy.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		c.logger.Debug("rest call failed",
			zap.String("method", method),
			zap.String("url", u),
			zap.Error(err),
		)
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}

func truncate(b []byte) string {
	const max = 512
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
