// Package app wires all herald subsystems into a running application.
//
// The App struct owns the full lifecycle: New builds the voice line store,
// the wiki ingester and the optional Postgres snapshot store and Discord bot,
// Run serves until the context ends, and Shutdown tears everything down in
// order.
//
// For testing, inject fakes via functional options (WithIngester,
// WithSnapshotStore, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/herald/internal/config"
	"github.com/MrWong99/herald/internal/discord"
	"github.com/MrWong99/herald/internal/discord/commands"
	"github.com/MrWong99/herald/internal/health"
	"github.com/MrWong99/herald/internal/ingest"
	"github.com/MrWong99/herald/internal/observe"
	"github.com/MrWong99/herald/internal/patch"
	"github.com/MrWong99/herald/internal/resilience"
	"github.com/MrWong99/herald/internal/voiceline"
	"github.com/MrWong99/herald/internal/voiceline/postgres"
	"github.com/MrWong99/herald/internal/wiki"
)

// ErrEmptyIngest is returned by [App.Rebuild] when ingestion produced no
// responses. The live store is left untouched.
var ErrEmptyIngest = errors.New("app: ingestion produced no responses")

const shutdownTimeout = 10 * time.Second

// Ingester produces a freshly built staging store. [ingest.Ingester]
// satisfies it.
type Ingester interface {
	Ingest(ctx context.Context) (*voiceline.Store, error)
}

// SnapshotStore persists the store content and the reply opt-out list.
// [postgres.Store] satisfies it.
type SnapshotStore interface {
	Save(ctx context.Context, snap voiceline.Snapshot) error
	Load(ctx context.Context) (voiceline.Snapshot, bool, error)
	OptOuts(ctx context.Context) ([]string, error)
	SetOptOut(ctx context.Context, userID string, out bool) error
}

// Bot is the chat front end. [discord.Bot] satisfies it.
type Bot interface {
	Run(ctx context.Context) error
	Close() error
}

// App owns all subsystem lifetimes.
type App struct {
	cfg     *config.Config
	metrics *observe.Metrics
	level   *slog.LevelVar

	store     *voiceline.Store
	snapshots SnapshotStore
	optOuts   *discord.OptOuts
	replier   *discord.Replier
	patch     *patch.Watcher
	patchSrc  patch.Source
	bot       Bot
	server    *http.Server

	// ingestMu guards ingester; ownIngester is false when it was injected
	// and must survive source changes.
	ingestMu    sync.Mutex
	ingester    Ingester
	ownIngester bool

	// rebuildMu serializes rebuilds from the patch watcher, /refresh and
	// config reloads.
	rebuildMu sync.Mutex

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithIngester injects an ingester instead of building wiki clients from
// the configured sources.
func WithIngester(i Ingester) Option {
	return func(a *App) { a.ingester = i }
}

// WithSnapshotStore injects a snapshot store instead of connecting to
// Postgres.
func WithSnapshotStore(s SnapshotStore) Option {
	return func(a *App) { a.snapshots = s }
}

// WithPatchSource injects the patch notes source instead of an HTTP client.
func WithPatchSource(src patch.Source) Option {
	return func(a *App) { a.patchSrc = src }
}

// WithBot injects the chat bot instead of connecting to Discord.
func WithBot(b Bot) Option {
	return func(a *App) { a.bot = b }
}

// WithMetrics sets the metric instruments. Default: observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar lets config reloads change the log level at runtime.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. It restores the last
// snapshot when one exists but does not ingest; the first build happens in
// Run.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Snapshot store ────────────────────────────────────────────────
	if err := a.initSnapshots(ctx); err != nil {
		return nil, fmt.Errorf("app: init snapshots: %w", err)
	}

	// ── 2. Voice line store ──────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 3. Ingester ──────────────────────────────────────────────────────
	if a.ingester == nil {
		a.ingester = buildIngester(cfg, a.store.Allocator(), a.metrics)
		a.ownIngester = true
	}

	// ── 4. Replies and opt-outs ──────────────────────────────────────────
	if err := a.initReplies(ctx); err != nil {
		return nil, fmt.Errorf("app: init replies: %w", err)
	}

	// ── 5. Patch watcher ─────────────────────────────────────────────────
	if !cfg.Patch.Disabled {
		if a.patchSrc == nil {
			a.patchSrc = patch.NewClient(cfg.Patch.NotesURL)
		}
		a.patch = patch.NewWatcher(a.patchSrc, a.store.Version(), cfg.Patch.Interval, func(ctx context.Context, version string) error {
			_, err := a.Rebuild(ctx, version)
			return err
		})
	}

	// ── 6. Health and metrics server ─────────────────────────────────────
	h := health.New(health.StoreChecker(a.store.Len))
	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           health.NewMux(h, a.metrics),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// ── 7. Discord bot ───────────────────────────────────────────────────
	if err := a.initBot(ctx); err != nil {
		return nil, fmt.Errorf("app: init discord: %w", err)
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initSnapshots(ctx context.Context) error {
	if a.snapshots != nil {
		return nil
	}
	dsn := a.cfg.Storage.PostgresDSN
	if dsn == "" {
		return nil
	}
	pg, err := postgres.Open(ctx, dsn)
	if err != nil {
		return err
	}
	a.snapshots = pg
	a.closers = append(a.closers, func() error {
		pg.Close()
		return nil
	})
	return nil
}

// initStore restores the last snapshot or starts empty. A broken snapshot
// is logged and ignored.
func (a *App) initStore(ctx context.Context) error {
	alloc := voiceline.NewAllocator()
	a.store = voiceline.NewStore(alloc)

	if a.snapshots != nil {
		snap, ok, err := a.snapshots.Load(ctx)
		switch {
		case err != nil:
			slog.Warn("app: failed to load snapshot, starting empty", "err", err)
		case ok:
			restored, err := voiceline.Restore(snap, alloc)
			if err != nil {
				slog.Warn("app: discarding invalid snapshot", "err", err)
				break
			}
			a.store = restored
			slog.Info("app: restored snapshot", "version", snap.Version, "responses", restored.Len())
		}
	}

	if err := a.loadIcons(); err != nil {
		return err
	}
	a.metrics.StoredResponses.Record(ctx, int64(a.store.Len()))
	return nil
}

func (a *App) loadIcons() error {
	path := a.cfg.IconsPath
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open icons %q: %w", path, err)
	}
	defer f.Close()
	return a.store.LoadIcons(f)
}

func (a *App) initReplies(ctx context.Context) error {
	var (
		users   []string
		persist discord.OptOutStore
	)
	if a.snapshots != nil {
		var err error
		if users, err = a.snapshots.OptOuts(ctx); err != nil {
			return fmt.Errorf("load opt-outs: %w", err)
		}
		persist = a.snapshots
	}
	a.optOuts = discord.NewOptOuts(users, persist)
	a.replier = discord.NewReplier(a.store, a.optOuts, a.cfg.Discord.IgnoredAuthors, a.metrics)
	return nil
}

func (a *App) initBot(ctx context.Context) error {
	if a.bot != nil || a.cfg.Discord.Token == "" {
		return nil
	}
	bot, err := discord.New(ctx, discord.Config{
		Token:       a.cfg.Discord.Token,
		GuildID:     a.cfg.Discord.GuildID,
		AdminRoleID: a.cfg.Discord.AdminRoleID,
	}, a.replier)
	if err != nil {
		return err
	}
	a.RegisterCommands(bot.Router(), bot.Permissions())
	a.bot = bot
	slog.Info("discord bot connected", "guild_id", a.cfg.Discord.GuildID)
	return nil
}

// RegisterCommands adds herald's slash commands to router.
func (a *App) RegisterCommands(router *discord.CommandRouter, perms *discord.PermissionChecker) {
	commands.NewResponseCommands(a.store, a.metrics).Register(router)
	commands.NewOptOutCommands(a.optOuts).Register(router)
	commands.NewRefreshCommands(perms, func(ctx context.Context) (int, error) {
		return a.Rebuild(ctx, "")
	}).Register(router)
}

// buildIngester creates one wiki client per configured source. Every
// client gets its own circuit breaker so a failing wiki does not trip the
// others.
func buildIngester(cfg *config.Config, alloc *voiceline.Allocator, m *observe.Metrics) *ingest.Ingester {
	sources := make([]ingest.Source, 0, len(cfg.Sources))
	for _, sc := range cfg.Sources {
		name := sc.Name
		client := wiki.New(sc.APIURL, sc.BaseURL,
			wiki.WithTimeout(cfg.Ingest.Timeout),
			wiki.WithUserAgent(cfg.Ingest.UserAgent),
			wiki.WithRetryPolicy(resilience.RetryPolicy{Name: name, Attempts: cfg.Ingest.Retries}),
			wiki.WithBreaker(resilience.NewBreaker(resilience.BreakerConfig{Name: name})),
			wiki.WithMaxTitles(cfg.Ingest.MaxTitles),
			wiki.WithMaxURLLength(cfg.Ingest.MaxURLLength),
			wiki.WithExtension(sc.AudioExt),
			wiki.WithBatchObserver(func(ctx context.Context, _ int, err error) {
				status := "ok"
				if err != nil {
					status = "error"
				}
				m.RecordLinkBatches(ctx, name, status, 1)
			}),
		)
		sources = append(sources, ingest.Source{
			Name:     name,
			Wiki:     client,
			Category: sc.Category,
			Nested:   sc.Nested,
			ImageDir: sc.ImageDir,
		})
	}
	return ingest.New(sources,
		ingest.WithConcurrency(cfg.Ingest.Concurrency),
		ingest.WithAllocator(alloc),
		ingest.WithMetrics(m),
	)
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Store returns the live voice line store.
func (a *App) Store() *voiceline.Store { return a.store }

// Replier returns the automatic message replier.
func (a *App) Replier() *discord.Replier { return a.replier }

// OptOuts returns the reply opt-out list.
func (a *App) OptOuts() *discord.OptOuts { return a.optOuts }

func (a *App) currentIngester() Ingester {
	a.ingestMu.Lock()
	defer a.ingestMu.Unlock()
	return a.ingester
}

// ─── Rebuild ─────────────────────────────────────────────────────────────────

// Rebuild ingests every source into a staging store and swaps it into the
// live store. An empty version keeps the current one. It returns the number
// of live responses afterwards.
//
// When ingestion yields no responses the live store is kept and the error
// is returned. When only some sources failed the partial result is swapped
// in and their errors are still returned, so the patch watcher retries.
func (a *App) Rebuild(ctx context.Context, version string) (int, error) {
	a.rebuildMu.Lock()
	defer a.rebuildMu.Unlock()

	log := observe.Logger(ctx)
	start := time.Now()

	staging, ingestErr := a.currentIngester().Ingest(ctx)
	if staging == nil || staging.Len() == 0 {
		err := ErrEmptyIngest
		if ingestErr != nil {
			err = errors.Join(ErrEmptyIngest, ingestErr)
		}
		log.Warn("app: rebuild kept the previous store", "err", err)
		return a.store.Len(), err
	}

	if version == "" {
		version = a.store.Version()
	}
	staging.SetVersion(version)
	a.store.ReplaceWith(staging)
	n := a.store.Len()
	a.metrics.StoredResponses.Record(ctx, int64(n))

	if a.snapshots != nil {
		if err := a.snapshots.Save(ctx, a.store.Snapshot()); err != nil {
			log.Warn("app: failed to save snapshot", "err", err)
		}
	}

	log.Info("app: rebuild complete",
		"version", version,
		"responses", n,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	if ingestErr != nil {
		return n, fmt.Errorf("app: partial rebuild: %w", ingestErr)
	}
	return n, nil
}

// ─── Config reload ───────────────────────────────────────────────────────────

// ApplyConfig applies a reloaded config. Log level, ignored authors and
// icons change in place. Changed sources rebuild the ingester and the store.
// It matches [config.ChangeFunc] once ctx is bound.
func (a *App) ApplyConfig(ctx context.Context, cfg *config.Config, d config.ConfigDiff) {
	a.cfg = cfg

	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.Level())
		slog.Info("app: log level changed", "level", d.NewLogLevel)
	}
	if d.IgnoredAuthorsChanged {
		a.replier.SetIgnoredAuthors(cfg.Discord.IgnoredAuthors)
	}
	if d.IconsChanged {
		if err := a.loadIcons(); err != nil {
			slog.Warn("app: failed to reload icons", "err", err)
		}
	}
	if !d.NeedsRebuild() {
		return
	}

	for _, sc := range d.SourceChanges {
		slog.Info("app: source changed", "source", sc.Name, "added", sc.Added, "removed", sc.Removed, "modified", sc.Modified)
	}
	a.ingestMu.Lock()
	if a.ownIngester {
		a.ingester = buildIngester(cfg, a.store.Allocator(), a.metrics)
	}
	a.ingestMu.Unlock()

	if _, err := a.Rebuild(ctx, ""); err != nil {
		slog.Warn("app: rebuild after config change failed", "err", err)
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves until ctx is cancelled. It builds the store first when no
// snapshot was restored, then runs the patch watcher, the health server and
// the bot side by side.
func (a *App) Run(ctx context.Context) error {
	if a.store.Len() == 0 {
		a.initialBuild(ctx)
	}

	g, ctx := errgroup.WithContext(ctx)

	if a.patch != nil {
		g.Go(func() error { return a.patch.Run(ctx) })
	}

	g.Go(func() error {
		slog.Info("app: serving health and metrics", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: health server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	if a.bot != nil {
		g.Go(func() error {
			if err := a.bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("app: discord bot: %w", err)
			}
			return nil
		})
	}

	return g.Wait()
}

// initialBuild fills an empty store. The patch watcher is asked first so the
// store carries a version; without one, or if the feed is unreachable, a
// plain rebuild runs.
func (a *App) initialBuild(ctx context.Context) {
	if a.patch != nil {
		_, err := a.patch.Check(ctx)
		switch {
		case a.store.Len() > 0:
			if err != nil {
				slog.Warn("app: initial ingestion incomplete", "err", err)
			}
			return
		case errors.Is(err, ErrEmptyIngest):
			slog.Error("app: initial ingestion failed", "err", err)
			return
		case err != nil:
			slog.Warn("app: patch check failed, ingesting without a version", "err", err)
		}
	}
	if _, err := a.Rebuild(ctx, ""); err != nil {
		slog.Error("app: initial ingestion failed", "err", err)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems. It respects the context deadline: if
// ctx expires before all closers finish, remaining closers are skipped and
// the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		// Close the bot first (unregister commands, disconnect).
		if a.bot != nil {
			if err := a.bot.Close(); err != nil {
				slog.Warn("discord bot close error", "err", err)
			}
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
