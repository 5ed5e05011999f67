package config

import "slices"

// Diff describes what changed between two configs. Only fields that can be
// safely hot-reloaded are tracked; everything else needs a restart.
type Diff struct {
	LogLevelChanged   bool
	NewLogLevel       LogLevel
	PlatformsChanged  bool
	NewPlatforms      []string
	MaxResultsChanged bool
	NewMaxResults     int
}

// Any reports whether the diff contains at least one change.
func (d Diff) Any() bool {
	return d.LogLevelChanged || d.PlatformsChanged || d.MaxResultsChanged
}

// Compare returns the hot-reloadable differences between old and new.
func Compare(old, new *Config) Diff {
	d := Diff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if !slices.Equal(old.Search.Platforms, new.Search.Platforms) {
		d.PlatformsChanged = true
		d.NewPlatforms = slices.Clone(new.Search.Platforms)
	}
	if old.Search.MaxResults != new.Search.MaxResults {
		d.MaxResultsChanged = true
		d.NewMaxResults = new.Search.MaxResults
	}

	return d
}
