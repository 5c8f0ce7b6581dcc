package config_test

import (
	"strings"
	"testing"

	"github.com/pronunciapa/pronunciapa/internal/config"
)

const validYAML = `
version: 1
strict_mode: false
server:
  listen_addr: ":8080"
  log_level: info
backend:
  name: stub
  require_ipa: true
textref:
  name: grapheme
comparator:
  name: feature
`

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Backend.Name != "stub" {
		t.Errorf("Backend.Name = %q, want stub", cfg.Backend.Name)
	}
	if !cfg.Backend.RequiresIPA() {
		t.Error("RequiresIPA() = false, want true")
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want :8080", cfg.Server.ListenAddr)
	}
}

func TestLoadFromReader_RequireIPADefault(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(`
version: 1
backend:
  name: stub
`))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if !cfg.Backend.RequiresIPA() {
		t.Error("RequiresIPA() default = false, want true")
	}
}

func TestLoadFromReader_BadVersion(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader(`version: 2`))
	if err == nil {
		t.Error("LoadFromReader: err = nil, want version error")
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader(`
version: 1
no_such_key: true
`))
	if err == nil {
		t.Error("LoadFromReader: err = nil, want unknown-field error")
	}
}

func TestLoadFromReader_StrictModeNeedsBackend(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader(`
version: 1
strict_mode: true
`))
	if err == nil {
		t.Error("LoadFromReader: err = nil, want strict-mode backend error")
	}
}

func TestDiff_PluginChange(t *testing.T) {
	t.Parallel()

	oldCfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	newCfg, err := config.LoadFromReader(strings.NewReader(strings.Replace(validYAML, "name: stub", "name: whisper-native", 1)))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	d := config.Diff(oldCfg, newCfg)
	if !d.PluginsChanged {
		t.Error("PluginsChanged = false, want true after backend swap")
	}
	if d.LogLevelChanged {
		t.Error("LogLevelChanged = true, want false")
	}

	same := config.Diff(oldCfg, oldCfg)
	if same.PluginsChanged || same.LogLevelChanged || same.PacksChanged {
		t.Errorf("Diff(x, x) = %+v, want all false", same)
	}
}
