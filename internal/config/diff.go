package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be applied without a restart are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// SourcesChanged is true when a source was added, removed or edited.
	// Applying it requires a full rebuild of the response store.
	SourcesChanged bool
	SourceChanges  []SourceDiff

	IgnoredAuthorsChanged bool
	IconsChanged          bool
}

// SourceDiff describes what changed for a single source between two configs.
type SourceDiff struct {
	Name     string
	Added    bool
	Removed  bool
	Modified bool
}

// NeedsRebuild reports whether the diff invalidates the ingested store.
func (d ConfigDiff) NeedsRebuild() bool {
	return d.SourcesChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	d.IgnoredAuthorsChanged = !slices.Equal(old.Discord.IgnoredAuthors, new.Discord.IgnoredAuthors)
	d.IconsChanged = old.IconsPath != new.IconsPath

	oldSources := make(map[string]SourceConfig, len(old.Sources))
	for _, s := range old.Sources {
		oldSources[s.Name] = s
	}
	newSources := make(map[string]SourceConfig, len(new.Sources))
	for _, s := range new.Sources {
		newSources[s.Name] = s
	}

	for _, s := range old.Sources {
		n, ok := newSources[s.Name]
		switch {
		case !ok:
			d.SourceChanges = append(d.SourceChanges, SourceDiff{Name: s.Name, Removed: true})
		case n != s:
			d.SourceChanges = append(d.SourceChanges, SourceDiff{Name: s.Name, Modified: true})
		}
	}
	for _, s := range new.Sources {
		if _, ok := oldSources[s.Name]; !ok {
			d.SourceChanges = append(d.SourceChanges, SourceDiff{Name: s.Name, Added: true})
		}
	}
	d.SourcesChanged = len(d.SourceChanges) > 0

	return d
}
