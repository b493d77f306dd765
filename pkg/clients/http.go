package clients

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
)

// DefaultUserAgent mimics a desktop browser; several news sites reject bare Go clients.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("GET %s: status %d: %s", e.URL, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("GET %s: status %d", e.URL, e.StatusCode)
}

// IsStatus reports whether err is a StatusError carrying code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// FetcherConfig configures a Fetcher.
type FetcherConfig struct {
	Timeout   time.Duration
	UserAgent string
	Executor  HTTPExecutorConfig
	// Client overrides the default pooled client, mostly for tests
	Client *http.Client
}

// Fetcher performs GET/HEAD requests through a retrying executor.
type Fetcher struct {
	client    *http.Client
	executor  failsafe.Executor[*http.Response]
	userAgent string
}

// NewFetcher creates a Fetcher with defaults applied.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout, Transport: DefaultTransport()}
	}
	return &Fetcher{
		client:    client,
		executor:  NewHTTPExecutor(cfg.Executor),
		userAgent: cfg.UserAgent,
	}
}

// Do runs one request through the executor. newReq is invoked per attempt
// so request bodies can be replayed.
func (f *Fetcher) Do(ctx context.Context, newReq func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	return ExecuteHTTP(ctx, f.executor, func() (*http.Response, error) {
		req, err := newReq(ctx)
		if err != nil {
			return nil, err
		}
		if req.Header.Get("User-Agent") == "" {
			req.Header.Set("User-Agent", f.userAgent)
		}
		return f.client.Do(req)
	})
}

// Get fetches url and returns up to maxBytes of the body. maxBytes <= 0 means unlimited.
func (f *Fetcher) Get(ctx context.Context, url string, maxBytes int64) ([]byte, http.Header, error) {
	resp, err := f.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, resp.Header, &StatusError{URL: url, StatusCode: resp.StatusCode, Body: string(snippet)}
	}

	var body io.Reader = resp.Body
	if maxBytes > 0 {
		body = io.LimitReader(resp.Body, maxBytes)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, resp.Header, fmt.Errorf("read %s: %w", url, err)
	}
	return data, resp.Header, nil
}

// Head issues a HEAD request and returns the response headers and status.
func (f *Fetcher) Head(ctx context.Context, url string) (int, http.Header, error) {
	resp, err := f.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	})
	if err != nil {
		return 0, nil, fmt.Errorf("HEAD %s: %w", url, err)
	}
	_ = resp.Body.Close()
	return resp.StatusCode, resp.Header, nil
}
