package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidPluginNames lists known plugin names per slot. Used by [Validate] to
// warn about unrecognized names — third-party plugins are legal, typos are
// common.
var ValidPluginNames = map[string][]string{
	"backend":      {"stub", "whisper-native"},
	"textref":      {"grapheme"},
	"comparator":   {"feature"},
	"preprocessor": {},
	"llm":          {"openai", "anyllm-openai", "anyllm-anthropic", "anyllm-gemini", "anyllm-ollama", "anyllm-deepseek", "anyllm-mistral", "anyllm-groq"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
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

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version != SchemaVersion {
		errs = append(errs, fmt.Errorf("version %d is unsupported; this build understands version %d", cfg.Version, SchemaVersion))
	}

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	validatePluginName("backend", cfg.Backend.Name)
	validatePluginName("textref", cfg.TextRef.Name)
	validatePluginName("comparator", cfg.Comparator.Name)
	validatePluginName("preprocessor", cfg.Preprocessor.Name)
	validatePluginName("llm", cfg.LLM.Name)

	if cfg.Backend.Name == "" && cfg.StrictMode {
		errs = append(errs, errors.New("backend.name is required when strict_mode is on"))
	}
	if cfg.Backend.Name == "" && !cfg.StrictMode {
		slog.Warn("no ASR backend configured; the stub backend will be substituted")
	}

	for _, c := range []struct {
		name  string
		value float64
	}{
		{"comparator.costs.sub", cfg.Comparator.Costs.Sub},
		{"comparator.costs.ins", cfg.Comparator.Costs.Ins},
		{"comparator.costs.del", cfg.Comparator.Costs.Del},
	} {
		if c.value < 0 {
			errs = append(errs, fmt.Errorf("%s %.2f must not be negative", c.name, c.value))
		}
	}

	if cfg.PacksDir != "" {
		if info, err := os.Stat(cfg.PacksDir); err != nil || !info.IsDir() {
			errs = append(errs, fmt.Errorf("packs_dir %q is not a readable directory", cfg.PacksDir))
		}
	}

	return errors.Join(errs...)
}

// validatePluginName logs a warning if name is non-empty and not found in
// the [ValidPluginNames] list for the given slot.
func validatePluginName(slot, name string) {
	if name == "" {
		return
	}
	known, ok := ValidPluginNames[slot]
	if !ok || len(known) == 0 {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown plugin name — may be a typo or third-party plugin",
		"slot", slot,
		"name", name,
		"known", known,
	)
}
