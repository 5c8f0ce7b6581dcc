package config

import "reflect"

// ConfigDiff describes what changed between two configs. The kernel uses it
// to decide which cached pipelines to invalidate on a hot reload.
type ConfigDiff struct {
	// PluginsChanged is true when any plugin slot (backend, textref,
	// comparator, preprocessor, llm) or strict_mode changed. Cached
	// pipelines must be invalidated.
	PluginsChanged bool

	// PacksChanged is true when packs_dir changed; inventories must be
	// reloaded.
	PacksChanged bool

	LogLevelChanged bool
	NewLogLevel     LogLevel
}

// Any reports whether the diff contains something the kernel or logger can
// act on. The watcher suppresses callbacks for diffs where it is false.
func (d ConfigDiff) Any() bool {
	return d.PluginsChanged || d.PacksChanged || d.LogLevelChanged
}

// Diff compares old and new configs and returns what changed. Only tracks
// changes that are safe to apply without restart — the listen address, for
// one, is fixed for the process lifetime.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.StrictMode != new.StrictMode ||
		!reflect.DeepEqual(old.Backend, new.Backend) ||
		!reflect.DeepEqual(old.TextRef, new.TextRef) ||
		!reflect.DeepEqual(old.Comparator, new.Comparator) ||
		!reflect.DeepEqual(old.Preprocessor, new.Preprocessor) ||
		!reflect.DeepEqual(old.LLM, new.LLM) {
		d.PluginsChanged = true
	}

	if old.PacksDir != new.PacksDir {
		d.PacksChanged = true
	}

	return d
}
