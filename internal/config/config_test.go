package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/MrWong99/herald/internal/config"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":9090"
  log_level: debug

discord:
  token: bot-token
  guild_id: "1234"
  admin_role_id: "5678"
  ignored_authors:
    - Other Bot
    - Announcer

sources:
  - name: dota
    api_url: https://dota2.example.com/api.php
    base_url: https://dota2.example.com
    category: "Category:Responses"
    audio_ext: .mp3
    image_dir: /media/dota2/images
  - name: smite
    api_url: https://smite.example.com/api.php
    base_url: https://smite.example.com/wiki
    category: "Category:Voicelines"
    nested: true

ingest:
  concurrency: 4
  max_titles: 25
  max_url_length: 1800
  timeout: 10s
  retries: 3
  user_agent: herald-test

icons_path: /etc/herald/icons.json

storage:
  postgres_dsn: "postgres://localhost/herald"

patch:
  notes_url: https://patches.example.com/notes.json
  interval: 30m
`

func mustLoad(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	return cfg
}

// ── tests ────────────────────────────────────────────────────────────────────

func TestLoadFromReader_FullConfig(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, sampleYAML)

	want := &config.Config{
		Server: config.ServerConfig{ListenAddr: ":9090", LogLevel: config.LogDebug},
		Discord: config.DiscordConfig{
			Token:          "bot-token",
			GuildID:        "1234",
			AdminRoleID:    "5678",
			IgnoredAuthors: []string{"Other Bot", "Announcer"},
		},
		Sources: []config.SourceConfig{
			{
				Name:     "dota",
				APIURL:   "https://dota2.example.com/api.php",
				BaseURL:  "https://dota2.example.com",
				Category: "Category:Responses",
				AudioExt: ".mp3",
				ImageDir: "/media/dota2/images",
			},
			{
				Name:     "smite",
				APIURL:   "https://smite.example.com/api.php",
				BaseURL:  "https://smite.example.com/wiki",
				Category: "Category:Voicelines",
				Nested:   true,
			},
		},
		Ingest: config.IngestConfig{
			Concurrency:  4,
			MaxTitles:    25,
			MaxURLLength: 1800,
			Timeout:      10 * time.Second,
			Retries:      3,
			UserAgent:    "herald-test",
		},
		Storage:   config.StorageConfig{PostgresDSN: "postgres://localhost/herald"},
		Patch:     config.PatchConfig{NotesURL: "https://patches.example.com/notes.json", Interval: 30 * time.Minute},
		IconsPath: "/etc/herald/icons.json",
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, "")

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr: got %q, want %q", cfg.Server.ListenAddr, ":8080")
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level: got %q, want %q", cfg.Server.LogLevel, config.LogInfo)
	}
	if diff := cmp.Diff(config.DefaultSources(), cfg.Sources); diff != "" {
		t.Errorf("sources mismatch (-want +got):\n%s", diff)
	}
	wantIngest := config.IngestConfig{
		Concurrency:  8,
		MaxTitles:    50,
		MaxURLLength: 1960,
		Timeout:      20 * time.Second,
		Retries:      5,
		UserAgent:    "Mozilla/5.0 (compatible; WebScraper/1.0)",
	}
	if diff := cmp.Diff(wantIngest, cfg.Ingest); diff != "" {
		t.Errorf("ingest mismatch (-want +got):\n%s", diff)
	}
	if cfg.Patch.Interval != time.Hour {
		t.Errorf("patch.interval: got %s, want 1h", cfg.Patch.Interval)
	}
	if !strings.Contains(cfg.Patch.NotesURL, "patchnotes.json") {
		t.Errorf("patch.notes_url: got %q", cfg.Patch.NotesURL)
	}
}

func TestDefaultSources_DotaAndNestedSmite(t *testing.T) {
	t.Parallel()
	srcs := config.DefaultSources()
	if len(srcs) != 2 {
		t.Fatalf("got %d default sources, want 2", len(srcs))
	}
	if srcs[0].Name != "dota" || srcs[0].Nested {
		t.Errorf("first source = %+v, want flat dota", srcs[0])
	}
	smite := srcs[1]
	if smite.Name != "smite" || !smite.Nested || smite.Category != "Category:Voicelines" {
		t.Errorf("second source = %+v, want nested smite Category:Voicelines", smite)
	}
	if smite.APIURL != "https://smite.fandom.com/api.php" || smite.BaseURL != "https://smite.fandom.com" {
		t.Errorf("smite urls = %q, %q", smite.APIURL, smite.BaseURL)
	}
}

func TestLoadFromReader_SourceDefaults(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, `
sources:
  - name: wiki
    api_url: https://wiki.example.com/api.php
`)
	src := cfg.Sources[0]
	if src.BaseURL != "https://wiki.example.com" {
		t.Errorf("base_url: got %q", src.BaseURL)
	}
	if src.Category != "Category:Responses" {
		t.Errorf("category: got %q", src.Category)
	}
}

// Not parallel: t.Setenv mutates the process environment.
func TestLoadFromReader_EnvOverrides(t *testing.T) {
	t.Setenv("HERALD_DISCORD_TOKEN", "env-token")
	t.Setenv("HERALD_INGEST_CONCURRENCY", "2")
	t.Setenv("HERALD_DISCORD_IGNORED_AUTHORS", "a,b")
	t.Setenv("HERALD_PATCH_INTERVAL", "5m")

	cfg := mustLoad(t, sampleYAML)

	if cfg.Discord.Token != "env-token" {
		t.Errorf("discord.token: got %q, want env-token", cfg.Discord.Token)
	}
	if cfg.Ingest.Concurrency != 2 {
		t.Errorf("ingest.concurrency: got %d, want 2", cfg.Ingest.Concurrency)
	}
	if diff := cmp.Diff([]string{"a", "b"}, cfg.Discord.IgnoredAuthors); diff != "" {
		t.Errorf("ignored_authors mismatch (-want +got):\n%s", diff)
	}
	if cfg.Patch.Interval != 5*time.Minute {
		t.Errorf("patch.interval: got %s, want 5m", cfg.Patch.Interval)
	}
	// Untouched values still come from YAML.
	if cfg.Ingest.MaxTitles != 25 {
		t.Errorf("ingest.max_titles: got %d, want 25", cfg.Ingest.MaxTitles)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("server:\n  colour: blue\n"))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "herald.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Sources) != 2 {
		t.Errorf("sources: got %d, want 2", len(cfg.Sources))
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
	if !strings.Contains(err.Error(), "config: open") {
		t.Errorf("error should be wrapped with config: open, got: %v", err)
	}
}

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()
	for _, l := range []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError} {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	if config.LogLevel("verbose").IsValid() {
		t.Error(`"verbose" should be invalid`)
	}
}

func TestLogLevel_Level(t *testing.T) {
	t.Parallel()
	tests := map[config.LogLevel]slog.Level{
		config.LogDebug: slog.LevelDebug,
		config.LogInfo:  slog.LevelInfo,
		config.LogWarn:  slog.LevelWarn,
		config.LogError: slog.LevelError,
		"verbose":       slog.LevelInfo,
	}
	for in, want := range tests {
		if got := in.Level(); got != want {
			t.Errorf("%q.Level() = %v, want %v", in, got, want)
		}
	}
}
