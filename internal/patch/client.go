package patch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MrWong99/herald/internal/resilience"
)

// ErrNoVersions is returned when the notes feed lists no versions.
var ErrNoVersions = errors.New("patch: no versions in notes feed")

const maxNotesBytes = 16 << 20

// Client fetches the patch notes feed: a JSON object keyed by patch
// identifier.
type Client struct {
	url        string
	httpClient *http.Client
	retry      resilience.RetryPolicy
}

// Option configures a [Client].
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetryPolicy sets the retry policy for transient failures.
func WithRetryPolicy(p resilience.RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// NewClient returns a client for the feed at url.
func NewClient(url string, opts ...Option) *Client {
	c := &Client{
		url:        url,
		httpClient: &http.Client{Timeout: 20 * time.Second},
		retry:      resilience.RetryPolicy{Name: "patch notes", Attempts: 3},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Latest returns the highest patch identifier in the feed.
func (c *Client) Latest(ctx context.Context) (string, error) {
	var notes map[string]json.RawMessage
	err := resilience.Retry(ctx, c.retry, func(ctx context.Context) error {
		var err error
		notes, err = c.fetch(ctx)
		return err
	})
	if err != nil {
		return "", err
	}
	if len(notes) == 0 {
		return "", ErrNoVersions
	}
	versions := make([]string, 0, len(notes))
	for v := range notes {
		versions = append(versions, v)
	}
	return Latest(versions), nil
}

func (c *Client) fetch(ctx context.Context) (map[string]json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, resilience.Permanent(fmt.Errorf("patch: create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("patch: GET %s: %w", c.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("patch: GET %s: status %d", c.url, resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, err
		}
		return nil, resilience.Permanent(err)
	}

	var notes map[string]json.RawMessage
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxNotesBytes)).Decode(&notes); err != nil {
		return nil, resilience.Permanent(fmt.Errorf("patch: decode notes: %w", err))
	}
	return notes, nil
}
