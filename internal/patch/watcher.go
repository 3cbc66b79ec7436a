package patch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Source reports the newest patch identifier. [*Client] implements it.
type Source interface {
	Latest(ctx context.Context) (string, error)
}

// RebuildFunc is invoked with the new version when the patch changed. The
// watcher only records the version once RebuildFunc returned nil.
type RebuildFunc func(ctx context.Context, version string) error

// Watcher polls a [Source] and triggers a rebuild whenever the reported
// version differs from the one the store was built for.
type Watcher struct {
	src      Source
	interval time.Duration
	rebuild  RebuildFunc

	mu      sync.Mutex
	current string
}

// NewWatcher returns a watcher that considers current the version the store
// was last built for. An empty current forces a rebuild on the first check.
func NewWatcher(src Source, current string, interval time.Duration, rebuild RebuildFunc) *Watcher {
	return &Watcher{
		src:      src,
		interval: interval,
		rebuild:  rebuild,
		current:  current,
	}
}

// Current returns the version of the last successful rebuild.
func (w *Watcher) Current() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Check fetches the latest version once and rebuilds if it changed.
func (w *Watcher) Check(ctx context.Context) (changed bool, err error) {
	latest, err := w.src.Latest(ctx)
	if err != nil {
		return false, fmt.Errorf("patch: check latest version: %w", err)
	}

	w.mu.Lock()
	current := w.current
	w.mu.Unlock()

	if latest == current {
		return false, nil
	}

	slog.Info("patch: new version detected", "current", current, "latest", latest)
	if err := w.rebuild(ctx, latest); err != nil {
		return false, fmt.Errorf("patch: rebuild for %s: %w", latest, err)
	}

	w.mu.Lock()
	w.current = latest
	w.mu.Unlock()
	return true, nil
}

// Run checks immediately and then once per interval until ctx is cancelled.
// Failed checks are logged and retried on the next tick. It always returns
// nil.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.Check(ctx); err != nil && ctx.Err() == nil {
			slog.Error("patch: version check failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
