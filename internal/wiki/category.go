package wiki

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

type categoryResponse struct {
	Continue struct {
		CMContinue string `json:"cmcontinue"`
	} `json:"continue"`
	Query struct {
		CategoryMembers []struct {
			Title string `json:"title"`
		} `json:"categorymembers"`
	} `json:"query"`
}

// CategoryMembers lists the titles of every page in category, following
// continuation tokens until the listing is complete.
func (c *Client) CategoryMembers(ctx context.Context, category string) ([]string, error) {
	params := url.Values{
		"action":  {"query"},
		"list":    {"categorymembers"},
		"cmlimit": {"max"},
		"cmprop":  {"title"},
		"format":  {"json"},
		"cmtitle": {category},
	}

	var titles []string
	for {
		body, err := c.get(ctx, c.apiQuery(params))
		if err != nil {
			return nil, fmt.Errorf("wiki: list %q: %w", category, err)
		}
		var resp categoryResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("wiki: decode listing of %q: %w", category, err)
		}
		for _, m := range resp.Query.CategoryMembers {
			titles = append(titles, m.Title)
		}
		if resp.Continue.CMContinue == "" {
			return titles, nil
		}
		params.Set("cmcontinue", resp.Continue.CMContinue)
	}
}

// NestedCategoryMembers lists category and then, for every member that is
// itself a category, lists that sub-category. Only the sub-categories'
// members are returned; plain pages of the top-level category are not.
func (c *Client) NestedCategoryMembers(ctx context.Context, category string) ([]string, error) {
	subs, err := c.CategoryMembers(ctx, category)
	if err != nil {
		return nil, err
	}

	var titles []string
	for _, sub := range subs {
		if !strings.HasPrefix(sub, "Category") {
			continue
		}
		slog.Info("wiki: listing sub-category", "category", sub)
		members, err := c.CategoryMembers(ctx, sub)
		if err != nil {
			return nil, err
		}
		titles = append(titles, members...)
	}
	return titles, nil
}
