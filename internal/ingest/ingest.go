// Package ingest builds a response store from one or more wikis.
//
// For every source the ingester lists the response pages of a category,
// fetches the pages concurrently, splits them into records, resolves the
// audio file of every record to a download URL and inserts one owner with
// its responses per page. Single pages, link batches and records may fail
// without affecting the rest; a failed category listing aborts only its
// source.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/herald/internal/observe"
	"github.com/MrWong99/herald/internal/voiceline"
	"github.com/MrWong99/herald/internal/wikitext"
	"github.com/MrWong99/herald/pkg/canon"
)

// ErrNoSources is returned by [Ingester.Ingest] when it has nothing to crawl.
var ErrNoSources = errors.New("ingest: no sources configured")

// DefaultConcurrency bounds page fetches per source when no option is given.
const DefaultConcurrency = 8

// Wiki is the subset of [wiki.Client] the ingester needs.
type Wiki interface {
	CategoryMembers(ctx context.Context, category string) ([]string, error)
	NestedCategoryMembers(ctx context.Context, category string) ([]string, error)
	RawPage(ctx context.Context, title string) (string, error)
	ResolveLinks(ctx context.Context, files []string) map[string]string
}

// Source is one wiki category to harvest.
type Source struct {
	Name     string
	Wiki     Wiki
	Category string

	// Nested lists the sub-categories of Category instead of its pages.
	Nested bool

	// ImageDir prefixes owner image paths. Empty leaves them blank.
	ImageDir string
}

// Stats summarises one source's ingestion.
type Stats struct {
	Source       string
	Pages        int
	PagesFailed  int
	Owners       int
	Stored       int
	SkippedParse int
	SkippedLink  int
	SkippedEmpty int
}

func (s *Stats) add(o Stats) {
	s.Pages += o.Pages
	s.PagesFailed += o.PagesFailed
	s.Owners += o.Owners
	s.Stored += o.Stored
	s.SkippedParse += o.SkippedParse
	s.SkippedLink += o.SkippedLink
	s.SkippedEmpty += o.SkippedEmpty
}

// Ingester crawls its sources into a fresh [voiceline.Store].
type Ingester struct {
	sources     []Source
	concurrency int
	alloc       *voiceline.Allocator
	metrics     *observe.Metrics
}

// Option configures an [Ingester].
type Option func(*Ingester)

// WithConcurrency bounds the number of page fetches in flight per source.
func WithConcurrency(n int) Option {
	return func(i *Ingester) {
		if n > 0 {
			i.concurrency = n
		}
	}
}

// WithAllocator makes every store built by the ingester draw ids from a.
// Sharing the live store's allocator keeps ids unique across rebuilds.
func WithAllocator(a *voiceline.Allocator) Option {
	return func(i *Ingester) { i.alloc = a }
}

// WithMetrics records to m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(i *Ingester) { i.metrics = m }
}

// New returns an ingester for sources.
func New(sources []Source, opts ...Option) *Ingester {
	i := &Ingester{
		sources:     sources,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.metrics == nil {
		i.metrics = observe.DefaultMetrics()
	}
	if i.alloc == nil {
		i.alloc = voiceline.NewAllocator()
	}
	return i
}

// Ingest builds a new store from every source. Sources whose category
// listing fails are skipped; their errors are joined into the returned
// error while the store still holds what the other sources produced.
func (i *Ingester) Ingest(ctx context.Context) (*voiceline.Store, error) {
	if len(i.sources) == 0 {
		return nil, ErrNoSources
	}

	store := voiceline.NewStore(i.alloc)
	var (
		errs  []error
		total Stats
	)
	for _, src := range i.sources {
		if err := ctx.Err(); err != nil {
			return store, errors.Join(append(errs, err)...)
		}
		st, err := i.IngestSource(ctx, src, store)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		total.add(st)
	}

	observe.Logger(ctx).Info("ingest: finished",
		"sources", len(i.sources),
		"failed_sources", len(errs),
		"owners", total.Owners,
		"responses", store.Len(),
	)
	return store, errors.Join(errs...)
}

// IngestSource crawls src into store and reports what happened. The only
// error is a failed category listing; everything below that is counted in
// the returned [Stats].
func (i *Ingester) IngestSource(ctx context.Context, src Source, store *voiceline.Store) (Stats, error) {
	ctx, span := observe.StartSpan(ctx, "ingest.source",
		trace.WithAttributes(attribute.String("source", src.Name)))
	defer span.End()

	start := time.Now()
	log := observe.Logger(ctx).With("source", src.Name)
	stats := Stats{Source: src.Name}

	titles, err := i.list(ctx, src)
	if err != nil {
		observe.FailSpan(span, err, "category listing failed")
		log.Error("ingest: category listing failed", "category", src.Category, "err", err)
		return stats, fmt.Errorf("ingest: source %s: list %s: %w", src.Name, src.Category, err)
	}
	log.Info("ingest: listed pages", "category", src.Category, "pages", len(titles))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.concurrency)
	for _, title := range titles {
		g.Go(func() error {
			ps := i.page(gctx, src, title, store)
			mu.Lock()
			stats.add(ps)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	i.metrics.RecordStored(ctx, src.Name, stats.Stored)
	i.metrics.RecordSkipped(ctx, src.Name, observe.SkipParse, stats.SkippedParse)
	i.metrics.RecordSkipped(ctx, src.Name, observe.SkipLink, stats.SkippedLink)
	i.metrics.RecordSkipped(ctx, src.Name, observe.SkipEmpty, stats.SkippedEmpty)
	i.metrics.IngestDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("source", src.Name)))

	span.SetAttributes(
		attribute.Int("pages", stats.Pages),
		attribute.Int("responses", stats.Stored),
	)
	log.Info("ingest: source done",
		"pages", stats.Pages,
		"pages_failed", stats.PagesFailed,
		"owners", stats.Owners,
		"stored", stats.Stored,
		"skipped_parse", stats.SkippedParse,
		"skipped_link", stats.SkippedLink,
		"skipped_empty", stats.SkippedEmpty,
		"duration", time.Since(start),
	)
	return stats, nil
}

func (i *Ingester) list(ctx context.Context, src Source) ([]string, error) {
	if src.Nested {
		return src.Wiki.NestedCategoryMembers(ctx, src.Category)
	}
	return src.Wiki.CategoryMembers(ctx, src.Category)
}

// page ingests one response page. Failures are logged and counted.
func (i *Ingester) page(ctx context.Context, src Source, title string, store *voiceline.Store) Stats {
	stats := Stats{Pages: 1}
	log := observe.Logger(ctx).With("source", src.Name, "page", title)

	start := time.Now()
	raw, err := src.Wiki.RawPage(ctx, title)
	i.metrics.PageFetchDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("source", src.Name)))
	if err != nil {
		i.metrics.RecordPage(ctx, src.Name, observe.StatusError)
		log.Warn("ingest: page fetch failed", "err", err)
		stats.PagesFailed = 1
		return stats
	}
	i.metrics.RecordPage(ctx, src.Name, observe.StatusOK)

	records, skipped := wikitext.SplitPage(raw)
	stats.SkippedParse = skipped

	files := make([]string, 0, len(records))
	for _, rec := range records {
		files = append(files, wikitext.FileTitle(rec.File))
	}
	links := src.Wiki.ResolveLinks(ctx, files)

	items := make([]voiceline.Item, 0, len(records))
	for _, rec := range records {
		canonical := canon.Canonicalize(rec.Text)
		if canonical == "" {
			stats.SkippedEmpty++
			continue
		}
		file := wikitext.FileTitle(rec.File)
		url, ok := links[file]
		if !ok {
			log.Warn("no link found for file", "file", file)
			stats.SkippedLink++
			continue
		}
		items = append(items, voiceline.Item{
			OriginalText:  rec.Text,
			CanonicalText: canonical,
			AudioURL:      url,
		})
	}

	name := OwnerName(title)
	if _, err := store.InsertOwnerAndResponses(name, ImagePath(src.ImageDir, name), items); err != nil {
		// Items were filtered for empty canonicals above.
		log.Error("ingest: insert failed", "owner", name, "err", err)
		return stats
	}
	stats.Owners = 1
	stats.Stored = len(items)
	log.Debug("ingest: page stored", "owner", name, "responses", len(items))
	return stats
}

// OwnerName derives the speaking character from a page title: titles of
// the form "<Name>/Responses" yield the part before the first slash, all
// other titles are used as is.
func OwnerName(title string) string {
	if strings.HasSuffix(title, "/Responses") {
		name, _, _ := strings.Cut(title, "/")
		return name
	}
	return title
}

// ImagePath returns "<dir>/<name>.png", or "" when dir is empty.
func ImagePath(dir, name string) string {
	if dir == "" {
		return ""
	}
	return path.Join(dir, name+".png")
}
