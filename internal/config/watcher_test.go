package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pronunciapa/pronunciapa/internal/config"
)

func writeConfig(t *testing.T, path, yaml string, mtime time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	// Filesystem mtime granularity can be coarser than the poll interval;
	// pin it explicitly so every rewrite is observable.
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func TestWatcher_FiresOnlyOnActionableChange(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	base := time.Now().Add(-time.Hour)
	writeConfig(t, path, validYAML, base)

	var mu sync.Mutex
	var diffs []config.ConfigDiff
	w, err := config.NewWatcher(path, func(_ *config.Config, d config.ConfigDiff) {
		mu.Lock()
		diffs = append(diffs, d)
		mu.Unlock()
	}, config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	// Touching the file without an actionable change must not fire.
	writeConfig(t, path, validYAML, base.Add(time.Minute))

	// A backend swap must fire with PluginsChanged set.
	changed := strings.Replace(validYAML, "name: stub", "name: whisper-native", 1)
	writeConfig(t, path, changed, base.Add(2*time.Minute))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(diffs)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(diffs) != 1 {
		t.Fatalf("callbacks = %d (%+v), want exactly 1", len(diffs), diffs)
	}
	if !diffs[0].PluginsChanged {
		t.Errorf("diff = %+v, want PluginsChanged", diffs[0])
	}
	if got := w.Current().Backend.Name; got != "whisper-native" {
		t.Errorf("Current().Backend.Name = %q, want whisper-native", got)
	}
}

func TestWatcher_KeepsPreviousConfigOnInvalidReload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	base := time.Now().Add(-time.Hour)
	writeConfig(t, path, validYAML, base)

	w, err := config.NewWatcher(path, func(*config.Config, config.ConfigDiff) {
		t.Error("callback fired for an invalid config")
	}, config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	writeConfig(t, path, "version: 99", base.Add(time.Minute))
	time.Sleep(100 * time.Millisecond)

	if got := w.Current().Backend.Name; got != "stub" {
		t.Errorf("Current().Backend.Name = %q, want previous config retained", got)
	}
}
