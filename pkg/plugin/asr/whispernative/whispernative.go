// Package whispernative provides an ASR backend using the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.
//
// Whisper emits orthographic text, not IPA, so the backend declares
// output_type=text: pipelines that require IPA reject it unless the caller
// waives the check. Tokens are a best-effort grapheme split of the text for
// callers that want something alignable anyway.
package whispernative

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/pronunciapa/pronunciapa/pkg/audio"
	"github.com/pronunciapa/pronunciapa/pkg/plugin"
	"github.com/pronunciapa/pronunciapa/pkg/types"
)

// Version of this plugin. Bump on any behavior change — pipeline cache
// fingerprints depend on it.
const Version = "1.0.0"

// ASR implements plugin.ASR backed by whisper.cpp. The model is loaded once
// at construction and shared across all pipeline invocations; each
// Transcribe call creates its own whisper context, which is the unit of
// thread confinement in the bindings.
type ASR struct {
	model    whisperlib.Model
	language string
}

// Compile-time assertion that ASR satisfies plugin.ASR.
var _ plugin.ASR = (*ASR)(nil)

// Option is a functional option for configuring the backend.
type Option func(*ASR)

// WithLanguage sets the default transcription language code used when the
// pipeline passes an empty language (e.g. "en", "es"). Defaults to "auto".
func WithLanguage(lang string) Option {
	return func(a *ASR) { a.language = lang }
}

// New loads the whisper.cpp model from modelPath. The caller must call
// Close when the backend is no longer needed. A missing or unreadable model
// wraps [plugin.ErrUnavailable] so strict_mode handling can substitute the
// stub backend.
func New(modelPath string, opts ...Option) (*ASR, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("whispernative: %w: model path is empty", plugin.ErrUnavailable)
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whispernative: %w: load model %q: %v", plugin.ErrUnavailable, modelPath, err)
	}
	a := &ASR{model: model, language: "auto"}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

// Close releases the whisper model.
func (a *ASR) Close() error {
	if a.model != nil {
		return a.model.Close()
	}
	return nil
}

// Info implements plugin.ASR.
func (a *ASR) Info() plugin.Info {
	return plugin.Info{Name: "whisper-native", Version: Version, Category: plugin.CategoryASR}
}

// OutputType implements plugin.ASR: whisper emits orthographic text.
func (a *ASR) OutputType() plugin.OutputType {
	return plugin.OutputText
}

// Languages implements plugin.ASR. Whisper is multilingual; nil means any.
func (a *ASR) Languages() []string {
	return nil
}

// Transcribe implements plugin.ASR. The buffer must be 16 kHz mono — the
// front-end guarantees it, and whisper.cpp accepts nothing else.
func (a *ASR) Transcribe(ctx context.Context, buf *audio.Buffer, lang string) (plugin.ASRResult, error) {
	if err := ctx.Err(); err != nil {
		return plugin.ASRResult{}, err
	}
	if buf.SampleRate != audio.PipelineRate || buf.Channels != 1 {
		return plugin.ASRResult{}, fmt.Errorf("whispernative: buffer must be %d Hz mono, got %d Hz/%d ch",
			audio.PipelineRate, buf.SampleRate, buf.Channels)
	}

	samples := buf.Samples()
	f32 := make([]float32, len(samples))
	for i, s := range samples {
		f32[i] = float32(s)
	}

	wctx, err := a.model.NewContext()
	if err != nil {
		return plugin.ASRResult{}, fmt.Errorf("whispernative: %w: create context: %v", plugin.ErrTransient, err)
	}

	wlang := lang
	if wlang == "" {
		wlang = a.language
	}
	if err := wctx.SetLanguage(wlang); err != nil {
		slog.Warn("whispernative: failed to set language, using model default", "language", wlang, "error", err)
	}

	if err := wctx.Process(f32, nil, nil, nil); err != nil {
		return plugin.ASRResult{}, fmt.Errorf("whispernative: %w: process audio: %v", plugin.ErrTransient, err)
	}

	var parts []string
	var timings []types.Timing
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return plugin.ASRResult{}, fmt.Errorf("whispernative: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text == "" {
			continue
		}
		parts = append(parts, text)
		timings = append(timings, types.Timing{
			StartMS: int(segment.Start.Milliseconds()),
			EndMS:   int(segment.End.Milliseconds()),
		})
	}

	text := strings.Join(parts, " ")
	return plugin.ASRResult{
		Tokens:  graphemeTokens(text),
		RawText: text,
		Timings: timings,
		Meta:    map[string]string{"backend": "whisper-native", "lang": wlang},
	}, nil
}

// graphemeTokens splits orthographic text into one token per letter,
// dropping punctuation and whitespace. A crude stand-in, only meaningful
// for pipelines that waived the IPA requirement.
func graphemeTokens(text string) types.TokenSequence {
	var out types.TokenSequence
	for _, r := range strings.ToLower(text) {
		if r == ' ' || r == '\t' || r == '\n' {
			continue
		}
		if strings.ContainsRune(".,;:!?¿¡\"'()-", r) {
			continue
		}
		out = append(out, types.NewToken(string(r)))
	}
	return out
}
