package main

import (
	"fmt"
	"strings"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/pronunciapa/pronunciapa/internal/config"
	"github.com/pronunciapa/pronunciapa/pkg/plugin"
	"github.com/pronunciapa/pronunciapa/pkg/plugin/asr/stub"
	"github.com/pronunciapa/pronunciapa/pkg/plugin/asr/whispernative"
	"github.com/pronunciapa/pronunciapa/pkg/plugin/comparator/feature"
	"github.com/pronunciapa/pronunciapa/pkg/plugin/llm/anyllm"
	"github.com/pronunciapa/pronunciapa/pkg/plugin/llm/openai"
	"github.com/pronunciapa/pronunciapa/pkg/plugin/textref/grapheme"
	"github.com/pronunciapa/pronunciapa/pkg/types"
)

// version is stamped by the build (-ldflags "-X main.version=...").
var version = "dev"

// llmTimeout bounds feedback-synthesis completions.
const llmTimeout = 20 * time.Second

// registerBuiltinPlugins wires the factory for every plugin that ships in
// this binary. External plugins register the same way from their own main.
func registerBuiltinPlugins(reg *config.Registry) {
	// ── ASR backends ──────────────────────────────────────────────────────────
	reg.RegisterASR("stub", func(entry config.BackendEntry) (plugin.ASR, error) {
		tokens := types.NewTokenSequence(nil)
		if s := entry.StringParam("tokens", ""); s != "" {
			tokens = types.NewTokenSequence(strings.Fields(s))
		}
		return stub.New(tokens), nil
	})
	reg.RegisterASR("whisper-native", func(entry config.BackendEntry) (plugin.ASR, error) {
		modelPath := entry.StringParam("model_path", "")
		var opts []whispernative.Option
		if lang := entry.StringParam("language", ""); lang != "" {
			opts = append(opts, whispernative.WithLanguage(lang))
		}
		return whispernative.New(modelPath, opts...)
	})

	// ── TextRef providers ─────────────────────────────────────────────────────
	reg.RegisterTextRef("grapheme", func(config.Entry) (plugin.TextRef, error) {
		return grapheme.New(), nil
	})

	// ── Comparators ───────────────────────────────────────────────────────────
	reg.RegisterComparator("feature", func(config.ComparatorEntry) (plugin.Comparator, error) {
		return feature.New(), nil
	})

	// ── LLM providers ─────────────────────────────────────────────────────────
	reg.RegisterLLM("openai", func(entry config.Entry) (plugin.LLM, error) {
		return openai.New(
			entry.StringParam("api_key", ""),
			entry.StringParam("model", "gpt-4o-mini"),
			openai.WithTimeout(llmTimeout),
		)
	})
	for _, backend := range []string{"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq"} {
		backend := backend
		reg.RegisterLLM("anyllm-"+backend, func(entry config.Entry) (plugin.LLM, error) {
			model := entry.StringParam("model", "")
			if model == "" {
				return nil, fmt.Errorf("anyllm-%s: params.model is required", backend)
			}
			var opts []anyllmlib.Option
			if key := entry.StringParam("api_key", ""); key != "" {
				opts = append(opts, anyllmlib.WithAPIKey(key))
			}
			if base := entry.StringParam("base_url", ""); base != "" {
				opts = append(opts, anyllmlib.WithBaseURL(base))
			}
			return anyllm.New(backend, model, opts...)
		})
	}
}
