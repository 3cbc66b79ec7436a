package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

// maxTitlesLimit is the largest titles= list the MediaWiki API accepts for
// anonymous clients.
const maxTitlesLimit = 50

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies HERALD_* environment
// overrides and defaults, and validates the result. An empty document yields
// the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}
	applySourceDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applySourceDefaults fills in the per-source fields that cannot carry
// env-default tags because sources live in a list.
func applySourceDefaults(cfg *Config) {
	if len(cfg.Sources) == 0 {
		cfg.Sources = DefaultSources()
		return
	}
	for i := range cfg.Sources {
		src := &cfg.Sources[i]
		if src.Category == "" {
			src.Category = "Category:Responses"
		}
		if src.BaseURL == "" && src.APIURL != "" {
			src.BaseURL = strings.TrimSuffix(src.APIURL, "/api.php")
		}
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Sources
	if len(cfg.Sources) == 0 {
		errs = append(errs, errors.New("sources: at least one source is required"))
	}
	seen := make(map[string]int, len(cfg.Sources))
	for i, src := range cfg.Sources {
		prefix := fmt.Sprintf("sources[%d]", i)
		if src.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := seen[src.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of sources[%d]", prefix, src.Name, prev))
			}
			seen[src.Name] = i
		}
		if err := validateURL(src.APIURL); err != nil {
			errs = append(errs, fmt.Errorf("%s.api_url: %w", prefix, err))
		}
		if err := validateURL(src.BaseURL); err != nil {
			errs = append(errs, fmt.Errorf("%s.base_url: %w", prefix, err))
		}
	}

	// Ingest
	if cfg.Ingest.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("ingest.concurrency %d must be at least 1", cfg.Ingest.Concurrency))
	}
	if cfg.Ingest.MaxTitles < 1 || cfg.Ingest.MaxTitles > maxTitlesLimit {
		errs = append(errs, fmt.Errorf("ingest.max_titles %d is out of range [1, %d]", cfg.Ingest.MaxTitles, maxTitlesLimit))
	}
	if cfg.Ingest.MaxURLLength < 256 {
		errs = append(errs, fmt.Errorf("ingest.max_url_length %d must be at least 256", cfg.Ingest.MaxURLLength))
	}
	if cfg.Ingest.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("ingest.timeout %s must be positive", cfg.Ingest.Timeout))
	}
	if cfg.Ingest.Retries < 1 {
		errs = append(errs, fmt.Errorf("ingest.retries %d must be at least 1", cfg.Ingest.Retries))
	}

	// Patch watch
	if !cfg.Patch.Disabled {
		if err := validateURL(cfg.Patch.NotesURL); err != nil {
			errs = append(errs, fmt.Errorf("patch.notes_url: %w", err))
		}
		if cfg.Patch.Interval <= 0 {
			errs = append(errs, fmt.Errorf("patch.interval %s must be positive", cfg.Patch.Interval))
		}
	}

	// Availability warnings
	if cfg.Discord.Token == "" {
		slog.Warn("discord.token is empty; the chat bot will not be started")
	}
	if cfg.Storage.PostgresDSN == "" {
		slog.Warn("storage.postgres_dsn is empty; responses are kept in memory and rebuilt on every start")
	}

	return errors.Join(errs...)
}

func validateURL(raw string) error {
	if raw == "" {
		return errors.New("is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%q must be an absolute http(s) URL", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%q has no host", raw)
	}
	return nil
}
