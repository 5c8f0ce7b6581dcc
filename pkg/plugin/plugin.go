// Package plugin defines the capability contracts for PronunciaPA's
// interchangeable providers.
//
// Every plugin declares an [Info] record — name, version, and category —
// and implements the interface of its category. Plugins register factories
// with the kernel at startup (see internal/config); there is no runtime
// discovery. The pipeline borrows capability instances from the kernel and
// never mutates provider-private state outside the documented methods.
//
// Implementations must be safe for concurrent use: the kernel shares one
// instance of each plugin across all pipeline invocations. All blocking
// methods take a context and must return promptly on cancellation.
package plugin

import (
	"context"
	"errors"

	"github.com/pronunciapa/pronunciapa/pkg/audio"
	"github.com/pronunciapa/pronunciapa/pkg/compare"
	"github.com/pronunciapa/pronunciapa/pkg/types"
)

var (
	// ErrUnavailable marks a provider whose initialization failed or whose
	// external dependency is missing. Subject to strict_mode handling: the
	// kernel substitutes a documented fallback unless strict mode is on.
	ErrUnavailable = errors.New("plugin: provider unavailable")

	// ErrTransient marks a retryable provider failure (timeout, I/O). The
	// pipeline retries such calls once with the same inputs.
	ErrTransient = errors.New("plugin: transient provider error")
)

// Category enumerates the capability slots a pipeline composes.
type Category string

const (
	CategoryASR          Category = "asr"
	CategoryTextRef      Category = "textref"
	CategoryComparator   Category = "comparator"
	CategoryPreprocessor Category = "preprocessor"
	CategoryLLM          Category = "llm"
)

// Info identifies a plugin. Version strings are required and must change
// whenever behavior changes — pipeline cache fingerprints are derived from
// them.
type Info struct {
	Name     string
	Version  string
	Category Category
}

// OutputType declares what an ASR backend emits.
type OutputType string

const (
	// OutputIPA: the backend emits IPA tokens directly.
	OutputIPA OutputType = "ipa"

	// OutputText: the backend emits orthographic text; tokens are a
	// best-effort grapheme split. Pipelines requiring IPA reject such
	// backends unless the caller waives the check.
	OutputText OutputType = "text"

	// OutputNone: the backend emits no symbolic output (diagnostics only).
	OutputNone OutputType = "none"
)

// ASRResult is the outcome of one transcription call.
type ASRResult struct {
	// Tokens is the raw token sequence, before inventory normalization.
	Tokens types.TokenSequence

	// RawText is the orthographic transcription, when the backend produces
	// one.
	RawText string

	// Timings optionally aligns each token to a time span.
	Timings []types.Timing

	// Confidence is the backend's self-assessment. Empty means unreported
	// and is treated as normal.
	Confidence types.Confidence

	// Meta carries backend-specific diagnostics for the report.
	Meta map[string]string
}

// ASR is the speech-to-phones capability.
type ASR interface {
	// Info returns the plugin identity.
	Info() Info

	// OutputType declares what Transcribe emits. Required; the pipeline
	// validates it against RunOptions.RequireIPA on every request.
	OutputType() OutputType

	// Languages lists supported language ids. A nil slice means the
	// backend is language-agnostic.
	Languages() []string

	// Transcribe converts a prepared 16 kHz mono buffer into tokens.
	// Implementations must honor ctx cancellation and wrap retryable
	// failures with [ErrTransient].
	Transcribe(ctx context.Context, buf *audio.Buffer, lang string) (ASRResult, error)
}

// TextRef is the grapheme-to-phoneme capability producing the reference
// sequence.
type TextRef interface {
	// Info returns the plugin identity.
	Info() Info

	// Languages lists supported language ids. A nil slice means any.
	Languages() []string

	// ToIPA converts target text to the expected IPA sequence.
	ToIPA(ctx context.Context, text, lang string) (types.TokenSequence, error)
}

// Comparator is the alignment capability. The built-in feature-weighted
// comparator satisfies it; external plugins may replace the scoring model.
type Comparator interface {
	// Info returns the plugin identity.
	Info() Info

	// Compare aligns ref against hyp under the given weights.
	Compare(ref, hyp types.TokenSequence, w compare.Weights) (types.CompareReport, error)
}

// Preprocessor optionally replaces the built-in audio front-end and/or
// token normalizer. A pipeline configured with a preprocessor calls these
// hooks in place of the built-ins; either method may be a pass-through.
type Preprocessor interface {
	// Info returns the plugin identity.
	Info() Info

	// ProcessAudio replaces [audio.Prepare].
	ProcessAudio(ctx context.Context, data []byte, contentType string, quick bool) (*audio.Buffer, types.QualityReport, error)

	// NormalizeTokens replaces inventory normalization. Returns the
	// canonicalized sequence plus warnings.
	NormalizeTokens(ctx context.Context, tokens types.TokenSequence, lang string, level types.EvaluationLevel) (types.TokenSequence, []string, error)
}

// LLM is the text-generation capability used by the feedback synthesizer.
type LLM interface {
	// Info returns the plugin identity.
	Info() Info

	// Generate returns the model's completion for prompt.
	Generate(ctx context.Context, prompt string) (string, error)
}
