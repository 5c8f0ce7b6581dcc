// Package anyllm provides an LLM feedback plugin backed by
// github.com/mozilla-ai/any-llm-go, a unified multi-provider interface that
// supports OpenAI, Anthropic, Gemini, Ollama, DeepSeek, Mistral, Groq, and
// more.
//
// Usage:
//
//	p, err := anyllm.New("anthropic", "claude-sonnet-4-5", anyllmlib.WithAPIKey("sk-ant-..."))
package anyllm

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/pronunciapa/pronunciapa/pkg/plugin"
)

// LLM implements plugin.LLM by wrapping github.com/mozilla-ai/any-llm-go.
type LLM struct {
	backend     anyllmlib.Provider
	backendName string
	model       string
}

// Compile-time assertion that LLM satisfies plugin.LLM.
var _ plugin.LLM = (*LLM)(nil)

// New creates the plugin for the given backend name and model.
//
// backendName is one of: "openai", "anthropic", "gemini", "ollama",
// "deepseek", "mistral", "groq", "llamacpp", "llamafile". Without an API
// key option the backend reads its usual environment variable.
func New(backendName, model string, opts ...anyllmlib.Option) (*LLM, error) {
	if backendName == "" {
		return nil, fmt.Errorf("anyllm: %w: backend name is empty", plugin.ErrUnavailable)
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: %w: model is empty", plugin.ErrUnavailable)
	}
	backend, err := createBackend(backendName, opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: %w: create %q backend: %v", plugin.ErrUnavailable, backendName, err)
	}
	return &LLM{backend: backend, backendName: backendName, model: model}, nil
}

// Info implements plugin.LLM.
func (l *LLM) Info() plugin.Info {
	return plugin.Info{Name: "anyllm-" + l.backendName, Version: "1.0.0", Category: plugin.CategoryLLM}
}

// Generate implements plugin.LLM. Backend failures wrap
// [plugin.ErrTransient] so the pipeline retries once.
func (l *LLM) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := l.backend.Completion(ctx, anyllmlib.CompletionParams{
		Model: l.model,
		Messages: []anyllmlib.Message{
			{Role: anyllmlib.RoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("anyllm: %w: completion: %v", plugin.ErrTransient, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("anyllm: empty choices in response")
	}
	return resp.Choices[0].Message.ContentString(), nil
}

// createBackend resolves a backend name to its any-llm-go provider.
func createBackend(name string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(name) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	case "llamafile":
		return llamafile.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported backend %q; supported: openai, anthropic, gemini, ollama, deepseek, mistral, groq, llamacpp, llamafile", name)
	}
}
