// Package wiki is a small client for the MediaWiki endpoints the ingester
// needs: category listings, raw page bodies and batched file URL lookups.
package wiki

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/MrWong99/herald/internal/resilience"
)

// ErrHTTPStatus is wrapped by every [StatusError].
var ErrHTTPStatus = errors.New("wiki: unexpected http status")

// StatusError reports a non-200 answer from the wiki.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("wiki: GET %s: status %d", e.URL, e.Code)
}

// Unwrap lets callers match with errors.Is(err, ErrHTTPStatus).
func (e *StatusError) Unwrap() error { return ErrHTTPStatus }

const (
	DefaultUserAgent    = "Mozilla/5.0 (compatible; WebScraper/1.0)"
	DefaultTimeout      = 20 * time.Second
	DefaultMaxURLLength = 1960
	DefaultMaxTitles    = 50

	connectTimeout = 5 * time.Second
	maxBodyBytes   = 32 << 20
)

// Client talks to one wiki. Create it with [New].
type Client struct {
	apiURL  string
	baseURL string

	httpClient   *http.Client
	userAgent    string
	retry        resilience.RetryPolicy
	breaker      *resilience.Breaker
	maxURLLength int
	maxTitles    int
	extension    string
	onBatch      func(ctx context.Context, files int, err error)
}

// Option configures a [Client].
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithRetryPolicy sets the retry policy for transient failures.
func WithRetryPolicy(p resilience.RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// WithBreaker guards every request with b.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

// WithMaxURLLength bounds the length of batched lookup URLs.
func WithMaxURLLength(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxURLLength = n
		}
	}
}

// WithMaxTitles bounds the number of titles per batched lookup.
func WithMaxTitles(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxTitles = n
		}
	}
}

// WithExtension makes resolved URLs end at the first occurrence of ext,
// dropping any revision suffix the wiki appends. Empty keeps URLs as
// reported.
func WithExtension(ext string) Option {
	return func(c *Client) { c.extension = ext }
}

// WithBatchObserver registers fn to be called once per imageinfo batch
// with the batch size and its outcome. fn may be called concurrently.
func WithBatchObserver(fn func(ctx context.Context, files int, err error)) Option {
	return func(c *Client) { c.onBatch = fn }
}

// New creates a client for the wiki whose api.php lives at apiURL and whose
// pages are served below baseURL.
func New(apiURL, baseURL string, opts ...Option) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: connectTimeout}).DialContext

	c := &Client{
		apiURL:       apiURL,
		baseURL:      baseURL,
		httpClient:   &http.Client{Timeout: DefaultTimeout, Transport: transport},
		userAgent:    DefaultUserAgent,
		retry:        resilience.RetryPolicy{Name: apiURL},
		breaker:      resilience.NewBreaker(resilience.BreakerConfig{Name: apiURL}),
		maxURLLength: DefaultMaxURLLength,
		maxTitles:    DefaultMaxTitles,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// get fetches u and returns the body. Transport errors, 429 and 5xx answers
// are retried; other non-200 answers fail at once. The breaker sees one
// outcome per call, after retries.
func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	var body []byte
	// Permanent failures and cancellation say nothing about the host's health.
	var notHost error
	err := c.breaker.Do(func() error {
		err := resilience.Retry(ctx, c.retry, func(ctx context.Context) error {
			b, err := c.getOnce(ctx, u)
			if resilience.IsPermanent(err) {
				notHost = errors.Unwrap(err)
				return nil
			}
			if err != nil {
				return err
			}
			body = b
			return nil
		})
		if err != nil && ctx.Err() != nil {
			notHost = err
			return nil
		}
		return err
	})
	if notHost != nil {
		return nil, notHost
	}
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) getOnce(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, resilience.Permanent(fmt.Errorf("wiki: create request: %w", err))
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, resilience.Permanent(fmt.Errorf("wiki: GET %s: %w", u, err))
		}
		return nil, fmt.Errorf("wiki: GET %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		serr := &StatusError{Code: resp.StatusCode, URL: u}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, serr
		}
		return nil, resilience.Permanent(serr)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("wiki: read body of %s: %w", u, err)
	}
	slog.Debug("wiki: fetched", "url", u, "bytes", len(body))
	return body, nil
}

// apiQuery returns the api.php URL for params.
func (c *Client) apiQuery(params url.Values) string {
	return c.apiURL + "?" + params.Encode()
}
