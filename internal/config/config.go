// Package config provides the configuration schema and loader for the herald
// voice-line service.
//
// Configuration is read from YAML, overlaid with HERALD_* environment
// variables and then validated. Fields left empty in both places receive the
// defaults declared in their env-default tags.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity for the herald process.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level maps l to a [slog.Level]. Unknown levels map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration structure for herald.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server  ServerConfig   `yaml:"server"`
	Discord DiscordConfig  `yaml:"discord"`
	Sources []SourceConfig `yaml:"sources"`
	Ingest  IngestConfig   `yaml:"ingest"`
	Storage StorageConfig  `yaml:"storage"`
	Patch   PatchConfig    `yaml:"patch"`

	// IconsPath points at a JSON object mapping normalized owner names to
	// icon URLs. Empty disables embed icons.
	IconsPath string `yaml:"icons_path" env:"HERALD_ICONS_PATH"`
}

// ServerConfig holds the health/metrics listener and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the health and metrics server.
	ListenAddr string `yaml:"listen_addr" env:"HERALD_LISTEN_ADDR" env-default:":8080"`

	LogLevel LogLevel `yaml:"log_level" env:"HERALD_LOG_LEVEL" env-default:"info"`
}

// DiscordConfig configures the chat bot. An empty Token disables the bot.
type DiscordConfig struct {
	Token string `yaml:"token" env:"HERALD_DISCORD_TOKEN"`

	// GuildID scopes slash command registration. Empty registers globally.
	GuildID string `yaml:"guild_id" env:"HERALD_DISCORD_GUILD_ID"`

	// AdminRoleID is the role allowed to run /refresh. Empty allows only
	// members with the Administrator permission.
	AdminRoleID string `yaml:"admin_role_id" env:"HERALD_DISCORD_ADMIN_ROLE_ID"`

	// IgnoredAuthors lists usernames whose messages never get a reply
	// (typically other bots).
	IgnoredAuthors []string `yaml:"ignored_authors" env:"HERALD_DISCORD_IGNORED_AUTHORS" env-separator:","`
}

// SourceConfig describes one wiki to harvest voice lines from.
type SourceConfig struct {
	// Name identifies the source in logs and metrics (e.g. "dota").
	Name string `yaml:"name"`

	// APIURL is the wiki's api.php endpoint.
	APIURL string `yaml:"api_url"`

	// BaseURL is the prefix under which page titles are served.
	BaseURL string `yaml:"base_url"`

	// Category lists the response pages, e.g. "Category:Responses".
	Category string `yaml:"category"`

	// Nested treats Category as a category of categories. Only members
	// whose title starts with "Category" are expanded.
	Nested bool `yaml:"nested"`

	// AudioExt cuts resolved audio URLs after the first occurrence of the
	// extension. Empty keeps URLs as reported by the wiki.
	AudioExt string `yaml:"audio_ext"`

	// ImageDir is the path prefix for owner images.
	ImageDir string `yaml:"image_dir"`
}

// IngestConfig tunes how aggressively the wikis are crawled.
type IngestConfig struct {
	// Concurrency bounds the number of page fetches in flight per source.
	Concurrency int `yaml:"concurrency" env:"HERALD_INGEST_CONCURRENCY" env-default:"8"`

	// MaxTitles caps the number of files per imageinfo request.
	MaxTitles int `yaml:"max_titles" env:"HERALD_INGEST_MAX_TITLES" env-default:"50"`

	// MaxURLLength caps the encoded length of one imageinfo request.
	MaxURLLength int `yaml:"max_url_length" env:"HERALD_INGEST_MAX_URL_LENGTH" env-default:"1960"`

	Timeout   time.Duration `yaml:"timeout" env:"HERALD_INGEST_TIMEOUT" env-default:"20s"`
	Retries   int           `yaml:"retries" env:"HERALD_INGEST_RETRIES" env-default:"5"`
	UserAgent string        `yaml:"user_agent" env:"HERALD_INGEST_USER_AGENT" env-default:"Mozilla/5.0 (compatible; WebScraper/1.0)"`
}

// StorageConfig configures persistence. An empty DSN keeps everything in
// memory and rebuilds from the wikis on every start.
type StorageConfig struct {
	PostgresDSN string `yaml:"postgres_dsn" env:"HERALD_POSTGRES_DSN"`
}

// PatchConfig configures the game version watch that triggers rebuilds.
type PatchConfig struct {
	NotesURL string        `yaml:"notes_url" env:"HERALD_PATCH_NOTES_URL" env-default:"https://raw.githubusercontent.com/odota/dotaconstants/master/build/patchnotes.json"`
	Interval time.Duration `yaml:"interval" env:"HERALD_PATCH_INTERVAL" env-default:"1h"`
	Disabled bool          `yaml:"disabled" env:"HERALD_PATCH_DISABLED"`
}

// DefaultSources returns the wikis harvested when the configuration names
// none.
func DefaultSources() []SourceConfig {
	return []SourceConfig{
		{
			Name:     "dota",
			APIURL:   "https://dota2.gamepedia.com/api.php",
			BaseURL:  "https://dota2.gamepedia.com",
			Category: "Category:Responses",
			AudioExt: ".mp3",
			ImageDir: "/media/dota2/images",
		},
		{
			// The Smite category lists one sub-category per god.
			Name:     "smite",
			APIURL:   "https://smite.fandom.com/api.php",
			BaseURL:  "https://smite.fandom.com",
			Category: "Category:Voicelines",
			Nested:   true,
		},
	}
}
