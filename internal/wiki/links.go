package wiki

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// titleOverhead is the encoded length a title adds to a batch besides its
// own characters: the "|File:" separator in query-escaped form.
var titleOverhead = len(url.QueryEscape("|File:"))

// PlanBatches groups files into batches for the imageinfo query. Duplicates
// are dropped, first occurrence wins. Each file costs titleOverhead plus its
// length; a batch is closed before a file whose cost would bring it to budget
// or beyond, or once it holds maxItems files. A file that alone exceeds the
// budget still gets a batch of its own.
func PlanBatches(files []string, budget, maxItems int) [][]string {
	seen := make(map[string]struct{}, len(files))
	var (
		batches [][]string
		batch   []string
		size    int
	)
	for _, f := range files {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}

		cost := titleOverhead + len(f)
		if len(batch) > 0 && (cost+size >= budget || len(batch) >= maxItems) {
			batches = append(batches, batch)
			batch, size = nil, 0
		}
		batch = append(batch, f)
		size += cost
	}
	if len(batch) > 0 {
		batches = append(batches, batch)
	}
	return batches
}

func imageInfoParams(files []string) url.Values {
	titles := ""
	if len(files) > 0 {
		titles = "File:" + strings.Join(files, "|File:")
	}
	return url.Values{
		"action": {"query"},
		"titles": {titles},
		"prop":   {"imageinfo"},
		"iiprop": {"url"},
		"format": {"json"},
	}
}

// batchBudget is the encoded length left for titles once the fixed part of
// the request URL is paid for.
func (c *Client) batchBudget() int {
	return c.maxURLLength - len(c.apiQuery(imageInfoParams(nil)))
}

type imageInfoResponse struct {
	Query struct {
		Pages map[string]struct {
			Title     string `json:"title"`
			ImageInfo []struct {
				URL string `json:"url"`
			} `json:"imageinfo"`
		} `json:"pages"`
	} `json:"query"`
}

// ResolveLinks maps file titles (without the "File:" namespace) to their
// download URLs. Batches are requested concurrently. A failed batch is
// logged and its files are missing from the result, as are files the wiki
// has no image info for.
func (c *Client) ResolveLinks(ctx context.Context, files []string) map[string]string {
	batches := PlanBatches(files, c.batchBudget(), c.maxTitles)

	var (
		mu    sync.Mutex
		links = make(map[string]string, len(files))
		g     errgroup.Group
	)
	for _, batch := range batches {
		g.Go(func() error {
			found, err := c.resolveBatch(ctx, batch)
			if c.onBatch != nil {
				c.onBatch(ctx, len(batch), err)
			}
			if err != nil {
				slog.WarnContext(ctx, "wiki: link batch failed",
					"files", len(batch),
					"first", batch[0],
					"err", err,
				)
				return nil
			}
			mu.Lock()
			for k, v := range found {
				links[k] = v
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return links
}

func (c *Client) resolveBatch(ctx context.Context, files []string) (map[string]string, error) {
	body, err := c.get(ctx, c.apiQuery(imageInfoParams(files)))
	if err != nil {
		return nil, err
	}
	var resp imageInfoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("wiki: decode imageinfo: %w", err)
	}

	found := make(map[string]string, len(resp.Query.Pages))
	for _, page := range resp.Query.Pages {
		if len(page.ImageInfo) == 0 || page.ImageInfo[0].URL == "" {
			continue
		}
		name := strings.TrimPrefix(page.Title, "File:")
		found[name] = c.trimExtension(page.ImageInfo[0].URL)
	}
	return found, nil
}

// trimExtension cuts u right after the first occurrence of the configured
// extension. URLs without it are returned unchanged.
func (c *Client) trimExtension(u string) string {
	if c.extension == "" {
		return u
	}
	i := strings.Index(u, c.extension)
	if i < 0 {
		return u
	}
	return u[:i+len(c.extension)]
}
