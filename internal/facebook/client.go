// Package facebook is a small Graph API client for page publishing.
package facebook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"frameworks/crowsnest/internal/config"
	"frameworks/crowsnest/pkg/clients"
	"frameworks/crowsnest/pkg/logging"
)

const DefaultBaseURL = "https://graph.facebook.com"

var (
	// ErrNoPostID means Graph accepted the call but returned no object id.
	ErrNoPostID = errors.New("graph api returned no post id")
	// ErrMissingCredentials means the page id or token is not configured.
	ErrMissingCredentials = errors.New("missing FB_PAGE_ID or FB_PAGE_TOKEN")
)

// Error is a Graph API error payload.
type Error struct {
	Status  int
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("graph api: status %d", e.Status)
	}
	return fmt.Sprintf("graph api: status %d code %d: %s", e.Status, e.Code, e.Message)
}

// Credentials select the page and API version for a call.
type Credentials struct {
	PageID  string
	Token   string
	Version string
}

// CredentialsFrom reads the page credentials from runtime settings.
func CredentialsFrom(s config.Settings) Credentials {
	return Credentials{PageID: s.FBPageID, Token: s.FBPageToken, Version: s.FBGraphAPIVersion}
}

func (c Credentials) valid() error {
	if c.PageID == "" || c.Token == "" {
		return ErrMissingCredentials
	}
	return nil
}

type Config struct {
	BaseURL string
	Timeout time.Duration
	// Executor defaults to a single attempt behind a circuit breaker;
	// publishing calls are not idempotent.
	Executor *clients.HTTPExecutorConfig
	Logger   logging.Logger
	Client   *http.Client
}

// Client talks to the Graph API.
type Client struct {
	baseURL string
	fetcher *clients.Fetcher
	logger  logging.Logger
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewDiscardLogger()
	}
	exec := clients.HTTPExecutorConfig{
		MaxRetries: 0,
		Breaker: &clients.BreakerConfig{
			Name:   "facebook",
			Logger: cfg.Logger,
		},
	}
	if cfg.Executor != nil {
		exec = *cfg.Executor
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		fetcher: clients.NewFetcher(clients.FetcherConfig{Timeout: cfg.Timeout, Executor: exec, Client: cfg.Client}),
		logger:  cfg.Logger,
	}
}

func (c *Client) endpoint(creds Credentials, parts ...string) string {
	version := creds.Version
	if version == "" {
		version = config.DefaultSettings().FBGraphAPIVersion
	}
	segs := make([]string, 0, len(parts))
	for _, p := range parts {
		segs = append(segs, url.PathEscape(p))
	}
	return c.baseURL + "/" + version + "/" + strings.Join(segs, "/")
}

// PostURL is the public permalink of a page post.
func PostURL(pageID, postID string) string {
	return "https://www.facebook.com/" + pageID + "/posts/" + postID
}

type idResponse struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
}

// postForm sends form fields and decodes the response into out.
func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values, out any) error {
	encoded := form.Encode()
	return c.send(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	}, out)
}

// postMultipart sends a prebuilt multipart body.
func (c *Client) postMultipart(ctx context.Context, endpoint string, body []byte, contentType string, out any) error {
	return c.send(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		return req, nil
	}, out)
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out any) error {
	full := endpoint + "?" + query.Encode()
	return c.send(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
	}, out)
}

func (c *Client) send(ctx context.Context, newReq func(ctx context.Context) (*http.Request, error), out any) error {
	resp, err := c.fetcher.Do(ctx, newReq)
	if err != nil {
		return fmt.Errorf("graph request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read graph response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var payload struct {
			Error *Error `json:"error"`
		}
		if json.Unmarshal(data, &payload) == nil && payload.Error != nil {
			payload.Error.Status = resp.StatusCode
			return payload.Error
		}
		return &Error{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode graph response: %w", err)
	}
	return nil
}
