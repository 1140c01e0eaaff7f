// Package proxy fetches feed documents through an allorigins-compatible CORS proxy.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"rssreader/internal/domain"
	"rssreader/internal/metrics"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

const (
	DefaultTimeout       = 20 * time.Second
	defaultRetryInterval = 500 * time.Millisecond
	maxEnvelopeBytes     = 16 << 20
)

type Client struct {
	baseURL       *url.URL
	httpClient    *http.Client
	limiter       *rate.Limiter
	retries       uint64
	retryInterval time.Duration
	log           *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithRateLimit caps outbound requests per second, zero or less disables the limit.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}

		c.limiter = rate.NewLimiter(rate.Limit(perSecond), max(1, int(perSecond)))
	}
}

func WithRetries(retries uint64) Option {
	return func(c *Client) {
		c.retries = retries
	}
}

func WithRetryInterval(interval time.Duration) Option {
	return func(c *Client) {
		c.retryInterval = interval
	}
}

func New(baseURL string, log *slog.Logger, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse proxy URL: %w", err)
	}

	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("proxy URL must be absolute (URL = %s)", baseURL)
	}

	c := &Client{
		baseURL:       u,
		httpClient:    &http.Client{Timeout: DefaultTimeout},
		retryInterval: defaultRetryInterval,
		log:           log,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// With returns a copy of the client with extra options applied. The rate limiter is
// shared with the original unless an option replaces it.
func (c *Client) With(opts ...Option) *Client {
	cp := *c
	for _, opt := range opts {
		opt(&cp)
	}

	return &cp
}

func (c *Client) URLFor(target string) string {
	u := c.baseURL.JoinPath("get")

	q := url.Values{}
	q.Set("url", target)
	q.Set("disableCache", "true")
	u.RawQuery = q.Encode()

	return u.String()
}

// Fetch returns the raw document behind target. Every failure is a domain.ErrorNetwork.
func (c *Client) Fetch(ctx context.Context, target string) (string, error) {
	proxyURL := c.URLFor(target)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInterval

	var contents string
	op := func() error {
		var err error
		contents, err = c.fetchOnce(ctx, proxyURL)
		return err
	}

	notify := func(err error, next time.Duration) {
		c.log.WarnContext(ctx, "Failed to fetch through proxy, retrying",
			"error", err,
			"targetURL", target,
			"retryIn", next)
	}

	err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(b, c.retries), ctx), notify)
	if err != nil {
		var domainErr *domain.Error
		if errors.As(err, &domainErr) {
			return "", err
		}

		return "", domain.NewError(domain.ErrorNetwork, fmt.Errorf("fetch %s: %w", target, err))
	}

	return contents, nil
}

func (c *Client) fetchOnce(ctx context.Context, proxyURL string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", backoff.Permanent(domain.NewError(domain.ErrorNetwork, fmt.Errorf("wait rate limit: %w", err)))
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, proxyURL, nil)
	if err != nil {
		return "", backoff.Permanent(domain.NewError(domain.ErrorNetwork, fmt.Errorf("create request: %w", err)))
	}

	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.ProxyRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ProxyRequests.WithLabelValues("transport").Inc()

		if ctx.Err() != nil {
			return "", backoff.Permanent(domain.NewError(domain.ErrorNetwork, fmt.Errorf("do request: %w", err)))
		}

		return "", domain.NewError(domain.ErrorNetwork, fmt.Errorf("do request: %w", err))
	}
	defer func() {
		if err = resp.Body.Close(); err != nil {
			c.log.ErrorContext(ctx, "Failed to close response body",
				"error", err,
				"proxyURL", proxyURL)
		}
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		metrics.ProxyRequests.WithLabelValues("status").Inc()

		statusErr := domain.NewError(domain.ErrorNetwork, fmt.Errorf("do request: unexpected status: %d", resp.StatusCode))
		if resp.StatusCode < http.StatusInternalServerError {
			return "", backoff.Permanent(statusErr)
		}

		return "", statusErr
	}

	var payload struct {
		Contents *string `json:"contents"`
	}

	if err = json.NewDecoder(io.LimitReader(resp.Body, maxEnvelopeBytes)).Decode(&payload); err != nil {
		metrics.ProxyRequests.WithLabelValues("decode").Inc()

		return "", backoff.Permanent(domain.NewError(domain.ErrorNetwork, fmt.Errorf("decode envelope: %w", err)))
	}

	metrics.ProxyRequests.WithLabelValues("ok").Inc()

	if payload.Contents == nil {
		return "", nil
	}

	return *payload.Contents, nil
}
