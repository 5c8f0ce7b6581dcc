// Package stub provides a deterministic IPA ASR backend. It never touches a
// model: it returns a fixed token sequence for any buffer that contains
// audible signal and an empty sequence for silence.
//
// The stub serves two roles: the documented strict_mode=false fallback when
// a real ASR backend is unavailable, and a predictable backend for tests
// and pipeline smoke checks.
package stub

import (
	"context"
	"math"

	"github.com/pronunciapa/pronunciapa/pkg/audio"
	"github.com/pronunciapa/pronunciapa/pkg/plugin"
	"github.com/pronunciapa/pronunciapa/pkg/types"
)

// silenceDBFS is the RMS level below which the stub reports no tokens.
const silenceDBFS = -55.0

// ASR is the stub backend. Safe for concurrent use — all state is set at
// construction.
type ASR struct {
	tokens types.TokenSequence
}

// Compile-time assertion that ASR satisfies plugin.ASR.
var _ plugin.ASR = (*ASR)(nil)

// New creates a stub that emits tokens for any non-silent buffer. The
// sequence may be empty, in which case the stub always reports silence.
func New(tokens types.TokenSequence) *ASR {
	cp := make(types.TokenSequence, len(tokens))
	copy(cp, tokens)
	return &ASR{tokens: cp}
}

// Info implements plugin.ASR.
func (a *ASR) Info() plugin.Info {
	return plugin.Info{Name: "stub", Version: "1.0.0", Category: plugin.CategoryASR}
}

// OutputType implements plugin.ASR. The stub emits IPA directly.
func (a *ASR) OutputType() plugin.OutputType {
	return plugin.OutputIPA
}

// Languages implements plugin.ASR. The stub is language-agnostic.
func (a *ASR) Languages() []string {
	return nil
}

// Transcribe implements plugin.ASR. Silent buffers yield an empty token
// sequence with low confidence; anything audible yields the configured
// sequence.
func (a *ASR) Transcribe(ctx context.Context, buf *audio.Buffer, lang string) (plugin.ASRResult, error) {
	if err := ctx.Err(); err != nil {
		return plugin.ASRResult{}, err
	}

	samples := buf.Samples()
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	level := -120.0
	if len(samples) > 0 {
		if r := math.Sqrt(sum / float64(len(samples))); r > 0 {
			level = 20 * math.Log10(r)
		}
	}

	if level < silenceDBFS || len(a.tokens) == 0 {
		return plugin.ASRResult{
			Confidence: types.ConfidenceLow,
			Meta:       map[string]string{"backend": "stub", "lang": lang},
		}, nil
	}

	out := make(types.TokenSequence, len(a.tokens))
	copy(out, a.tokens)
	return plugin.ASRResult{
		Tokens:     out,
		Confidence: types.ConfidenceNormal,
		Meta:       map[string]string{"backend": "stub", "lang": lang},
	}, nil
}
