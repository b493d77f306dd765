package clients

import (
	"net"
	"net/http"
	"time"
)

// TransportOptions tunes the pooled transport shared by crawler fetches.
// Zero values fall back to the defaults below.
type TransportOptions struct {
	// MaxConnsPerHost caps parallel connections to one news site.
	MaxConnsPerHost int
	// ResponseHeaderTimeout bounds slow origins that accept but never answer.
	ResponseHeaderTimeout time.Duration
	DialTimeout           time.Duration
	// NoProxy ignores HTTP_PROXY/HTTPS_PROXY from the environment.
	NoProxy bool
}

const (
	defaultMaxConnsPerHost       = 8
	defaultResponseHeaderTimeout = 20 * time.Second
	defaultDialTimeout           = 10 * time.Second
)

// DefaultTransport returns the transport used when a Fetcher is built
// without its own client.
func DefaultTransport() *http.Transport {
	return NewTransport(TransportOptions{})
}

// NewTransport builds a transport that stays polite to a single origin:
// a small per-host cap, warm idle connections for repeat article fetches,
// and a header timeout so one stalled site cannot pin a crawl worker.
func NewTransport(opts TransportOptions) *http.Transport {
	if opts.MaxConnsPerHost <= 0 {
		opts.MaxConnsPerHost = defaultMaxConnsPerHost
	}
	if opts.ResponseHeaderTimeout <= 0 {
		opts.ResponseHeaderTimeout = defaultResponseHeaderTimeout
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}

	t := &http.Transport{
		MaxConnsPerHost:       opts.MaxConnsPerHost,
		MaxIdleConnsPerHost:   opts.MaxConnsPerHost,
		MaxIdleConns:          64,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: opts.ResponseHeaderTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		ForceAttemptHTTP2:     true,
		DialContext: (&net.Dialer{
			Timeout:   opts.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}
	if !opts.NoProxy {
		t.Proxy = http.ProxyFromEnvironment
	}
	return t
}
