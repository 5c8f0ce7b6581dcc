// Package openai provides an LLM feedback plugin backed by the OpenAI API.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/pronunciapa/pronunciapa/pkg/plugin"
)

// LLM implements plugin.LLM using the OpenAI chat completions API.
type LLM struct {
	client oai.Client
	model  string
}

// Compile-time assertion that LLM satisfies plugin.LLM.
var _ plugin.LLM = (*LLM)(nil)

// config holds optional configuration for the plugin.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for LLM.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs the OpenAI LLM plugin. A missing API key wraps
// [plugin.ErrUnavailable] so non-strict pipelines fall back to rule-based
// feedback.
func New(apiKey, model string, opts ...Option) (*LLM, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: %w: api key is empty", plugin.ErrUnavailable)
	}
	if model == "" {
		return nil, fmt.Errorf("openai: %w: model is empty", plugin.ErrUnavailable)
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &LLM{client: oai.NewClient(reqOpts...), model: model}, nil
}

// Info implements plugin.LLM.
func (l *LLM) Info() plugin.Info {
	return plugin.Info{Name: "openai", Version: "1.0.0", Category: plugin.CategoryLLM}
}

// Generate implements plugin.LLM. Network failures wrap
// [plugin.ErrTransient] so the pipeline retries once.
func (l *LLM) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := l.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: shared.ChatModel(l.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai: %w: completion: %v", plugin.ErrTransient, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}
