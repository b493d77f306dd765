// Package ctl implements the crowsnestctl operator commands against the
// service HTTP API.
package ctl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"frameworks/crowsnest/pkg/clients"
)

// APIError is a non-2xx reply from the service.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// APIClient is a thin JSON client for /api.
type APIClient struct {
	base    string
	token   string
	fetcher *clients.Fetcher
}

func NewAPIClient(base, token string, httpClient *http.Client) *APIClient {
	return &APIClient{
		base:  strings.TrimRight(base, "/"),
		token: token,
		fetcher: clients.NewFetcher(clients.FetcherConfig{
			Timeout:   30 * time.Second,
			UserAgent: "crowsnestctl",
			Client:    httpClient,
			// control calls are not idempotent
			Executor: clients.HTTPExecutorConfig{MaxRetries: 0},
		}),
	}
}

// Call sends body (marshalled when non-nil) and decodes the JSON reply into
// out. Non-2xx replies come back as *APIError.
func (c *APIClient) Call(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = raw
	}

	url := c.base + path
	resp, err := c.fetcher.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		return req, nil
	})
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
