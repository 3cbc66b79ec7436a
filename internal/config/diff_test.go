package config_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/MrWong99/herald/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server:  config.ServerConfig{LogLevel: config.LogInfo},
		Sources: config.DefaultSources(),
	}
	d := config.Diff(cfg, cfg)
	if d.LogLevelChanged || d.SourcesChanged || d.IgnoredAuthorsChanged || d.IconsChanged {
		t.Errorf("expected empty diff, got %+v", d)
	}
	if d.NeedsRebuild() {
		t.Error("identical configs should not need a rebuild")
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogInfo}}
	new := &config.Config{Server: config.ServerConfig{LogLevel: config.LogDebug}}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if d.NeedsRebuild() {
		t.Error("a log level change should not need a rebuild")
	}
}

func TestDiff_Sources(t *testing.T) {
	t.Parallel()
	old := &config.Config{Sources: []config.SourceConfig{
		{Name: "dota", Category: "Category:Responses"},
		{Name: "smite", Category: "Category:Voicelines", Nested: true},
	}}
	new := &config.Config{Sources: []config.SourceConfig{
		{Name: "dota", Category: "Category:Lines"},
		{Name: "paladins", Category: "Category:Voicelines"},
	}}

	d := config.Diff(old, new)
	want := []config.SourceDiff{
		{Name: "dota", Modified: true},
		{Name: "smite", Removed: true},
		{Name: "paladins", Added: true},
	}
	if diff := cmp.Diff(want, d.SourceChanges); diff != "" {
		t.Errorf("source changes mismatch (-want +got):\n%s", diff)
	}
	if !d.NeedsRebuild() {
		t.Error("source changes should need a rebuild")
	}
}

func TestDiff_DiscordAndIcons(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		Discord:   config.DiscordConfig{IgnoredAuthors: []string{"a"}},
		IconsPath: "old.json",
	}
	new := &config.Config{
		Discord:   config.DiscordConfig{IgnoredAuthors: []string{"a", "b"}},
		IconsPath: "new.json",
	}
	d := config.Diff(old, new)
	if !d.IgnoredAuthorsChanged {
		t.Error("expected IgnoredAuthorsChanged=true")
	}
	if !d.IconsChanged {
		t.Error("expected IconsChanged=true")
	}
	if d.SourcesChanged {
		t.Error("expected SourcesChanged=false")
	}
}
