package wiki

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// PageURL returns the URL serving the raw wikitext of title.
func (c *Client) PageURL(title string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("wiki: parse base url: %w", err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + title
	u.RawPath = ""
	u.RawQuery = url.Values{"action": {"raw"}}.Encode()
	return u.String(), nil
}

// RawPage fetches the raw wikitext of title.
func (c *Client) RawPage(ctx context.Context, title string) (string, error) {
	u, err := c.PageURL(title)
	if err != nil {
		return "", err
	}
	body, err := c.get(ctx, u)
	if err != nil {
		return "", fmt.Errorf("wiki: fetch page %q: %w", title, err)
	}
	return string(body), nil
}
