// Package types defines the shared data model used across all PronunciaPA
// packages.
//
// These types form the lingua franca between the audio front-end, plugin
// providers, the comparator, and the kernel. They are intentionally minimal —
// each package defines its own domain types, but cross-cutting data structures
// live here to avoid circular imports.
package types

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Token is a single IPA phone: a base letter plus optional combining
// diacritics, length mark, or stress mark. Tokens are compared after Unicode
// canonical composition (NFC); use [NewToken] to construct one from raw
// provider output. Whitespace is never a token.
type Token string

// NewToken returns s normalized to canonical composition with surrounding
// whitespace removed. The empty string is returned for whitespace-only input.
func NewToken(s string) Token {
	return Token(norm.NFC.String(strings.TrimSpace(s)))
}

// TokenSequence is an ordered sequence of IPA tokens. Sequences are immutable
// once produced by a provider: normalization and comparison always allocate
// fresh slices.
type TokenSequence []Token

// NewTokenSequence normalizes each element of raw via [NewToken] and drops
// empty results.
func NewTokenSequence(raw []string) TokenSequence {
	seq := make(TokenSequence, 0, len(raw))
	for _, s := range raw {
		if t := NewToken(s); t != "" {
			seq = append(seq, t)
		}
	}
	return seq
}

// Strings returns the sequence as a plain string slice, mainly for JSON
// responses and log output.
func (s TokenSequence) Strings() []string {
	out := make([]string, len(s))
	for i, t := range s {
		out[i] = string(t)
	}
	return out
}

// Joined returns the tokens joined by single spaces ("o l a").
func (s TokenSequence) Joined() string {
	return strings.Join(s.Strings(), " ")
}

// Equal reports whether s and other contain the same tokens in the same order.
func (s TokenSequence) Equal(other TokenSequence) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// EvaluationLevel selects how far normalization canonicalizes tokens.
type EvaluationLevel string

const (
	// LevelPhonemic collapses context-dependent variants to canonical
	// phonemes before comparison.
	LevelPhonemic EvaluationLevel = "phonemic"

	// LevelPhonetic preserves allophonic detail and applies derive rules.
	LevelPhonetic EvaluationLevel = "phonetic"
)

// IsValid reports whether l is a recognized evaluation level.
func (l EvaluationLevel) IsValid() bool {
	return l == LevelPhonemic || l == LevelPhonetic
}

// CompareMode selects the substitution/indel weight profile used by the
// comparator.
type CompareMode string

const (
	// ModeCasual uses forgiving weights and ignores diacritic differences.
	ModeCasual CompareMode = "casual"

	// ModeObjective uses the default articulatory feature weights.
	ModeObjective CompareMode = "objective"

	// ModePhonetic doubles diacritic weighting and never collapses
	// allophones, regardless of evaluation level.
	ModePhonetic CompareMode = "phonetic"
)

// IsValid reports whether m is a recognized compare mode.
func (m CompareMode) IsValid() bool {
	return m == ModeCasual || m == ModeObjective || m == ModePhonetic
}

// FeedbackLevel selects how detailed synthesized feedback is.
type FeedbackLevel string

const (
	// FeedbackCasual produces a short summary and one drill.
	FeedbackCasual FeedbackLevel = "casual"

	// FeedbackPrecise produces per-phone advice and up to three drills.
	FeedbackPrecise FeedbackLevel = "precise"
)

// RunOptions carries the per-request evaluation settings. Use
// [DefaultRunOptions] and override fields as needed; the zero value is not
// usable.
type RunOptions struct {
	// Lang is the language pack identifier (e.g. "es", "en").
	Lang string

	// EvaluationLevel selects phonemic or phonetic normalization.
	EvaluationLevel EvaluationLevel

	// CompareMode selects the comparator weight profile.
	CompareMode CompareMode

	// FeedbackLevel selects feedback verbosity.
	FeedbackLevel FeedbackLevel

	// RequireIPA rejects pipelines whose ASR backend does not emit IPA
	// tokens. Callers that accept orthographic output must clear it
	// explicitly.
	RequireIPA bool

	// Quick makes the audio quality gate advisory and skips feedback
	// synthesis.
	Quick bool

	// StrictGate turns a failed quality gate into an error instead of a
	// low-confidence report.
	StrictGate bool
}

// DefaultRunOptions returns the documented defaults: Spanish, phonemic
// evaluation, objective comparison, casual feedback, IPA required.
func DefaultRunOptions() RunOptions {
	return RunOptions{
		Lang:            "es",
		EvaluationLevel: LevelPhonemic,
		CompareMode:     ModeObjective,
		FeedbackLevel:   FeedbackCasual,
		RequireIPA:      true,
	}
}

// EditKind enumerates the edit operations produced by alignment.
type EditKind string

const (
	// EditEq marks an exact token match.
	EditEq EditKind = "eq"

	// EditSub marks a substitution (both Ref and Hyp populated).
	EditSub EditKind = "sub"

	// EditIns marks a hypothesis token with no reference counterpart.
	EditIns EditKind = "ins"

	// EditDel marks a reference token missing from the hypothesis.
	EditDel EditKind = "del"
)

// EditOp is one step of the alignment between reference and hypothesis.
// EditEq and EditSub populate both fields; EditIns leaves Ref empty; EditDel
// leaves Hyp empty.
type EditOp struct {
	Op  EditKind `json:"op"`
	Ref Token    `json:"ref,omitempty"`
	Hyp Token    `json:"hyp,omitempty"`
}

// Confidence labels how trustworthy a report is, combining audio quality,
// hypothesis length, and provider self-assessment.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceNormal Confidence = "normal"
	ConfidenceHigh   Confidence = "high"
)

// Segment is a span of detected speech within an audio buffer, in
// milliseconds from buffer start.
type Segment struct {
	StartMS int `json:"start_ms"`
	EndMS   int `json:"end_ms"`
}

// QualityReport summarizes the audio front-end's assessment of an input
// buffer. It is surfaced in the final report and drives confidence labeling.
type QualityReport struct {
	// DurationMS is the decoded buffer duration in milliseconds.
	DurationMS int `json:"duration_ms"`

	// SpeechRatio is the fraction of frames classified as speech, in [0,1].
	SpeechRatio float64 `json:"speech_ratio"`

	// DBFS is the RMS level in decibels relative to full scale (≤ 0).
	DBFS float64 `json:"dbfs"`

	// Clipped is set when more than 5% of samples sit at full scale.
	Clipped bool `json:"clipped"`

	// Segments lists the VAD-detected speech spans.
	Segments []Segment `json:"segments,omitempty"`

	// Warnings lists human-readable quality problems ("too short",
	// "mostly silence", "clipping", "noisy", "too long").
	Warnings []string `json:"warnings,omitempty"`

	// GatePassed is false when a critical quality rule failed. With
	// RunOptions.Quick the gate is advisory and GatePassed is always true.
	GatePassed bool `json:"gate_passed"`
}

// CompareReport is the comparator's output: the edit path plus derived
// scores. Score tracks (1 - PER) * 100, clamped to [0, 100].
type CompareReport struct {
	Ops             []EditOp        `json:"ops"`
	PER             float64         `json:"per"`
	Score           float64         `json:"score"`
	RefTokens       TokenSequence   `json:"ref_tokens"`
	HypTokens       TokenSequence   `json:"hyp_tokens"`
	Mode            CompareMode     `json:"mode"`
	EvaluationLevel EvaluationLevel `json:"evaluation_level"`
	Confidence      Confidence      `json:"confidence"`
	Warnings        []string        `json:"warnings,omitempty"`
}

// Timing is an optional per-token time span reported by ASR backends that
// support word or phone timestamps, in milliseconds from utterance start.
type Timing struct {
	StartMS int `json:"start_ms"`
	EndMS   int `json:"end_ms"`
}

// TranscriptionReport is the result of a transcribe-only pipeline run.
type TranscriptionReport struct {
	// IPA is the space-joined token string ("o l a").
	IPA string `json:"ipa"`

	// Tokens is the normalized token sequence.
	Tokens TokenSequence `json:"tokens"`

	// Lang is the language pack used for normalization.
	Lang string `json:"lang"`

	// RawText is the backend's orthographic output, when it produces one.
	RawText string `json:"raw_text,omitempty"`

	// Timings holds per-token time spans when the backend reports them.
	Timings []Timing `json:"timings,omitempty"`

	// Meta carries backend name, pipeline steps, and the quality report.
	Meta ReportMeta `json:"meta"`
}

// FullReport is the result of a compare pipeline run: a transcription plus
// the alignment against the reference text.
type FullReport struct {
	TranscriptionReport

	// TargetIPA is the normalized reference as a space-joined string.
	TargetIPA string `json:"target_ipa"`

	// Alignment is the edit path as [ref, hyp] pairs, with "" standing for
	// the missing side of an insertion or deletion.
	Alignment [][2]string `json:"alignment"`

	// Compare holds the alignment, PER, score, and confidence.
	Compare CompareReport `json:"compare"`
}

// AlignmentPairs flattens ops into the [ref, hyp] pair form used on request
// boundaries.
func AlignmentPairs(ops []EditOp) [][2]string {
	out := make([][2]string, len(ops))
	for i, op := range ops {
		out[i] = [2]string{string(op.Ref), string(op.Hyp)}
	}
	return out
}

// ReportMeta carries provenance and quality information attached to every
// report.
type ReportMeta struct {
	// Backend is the ASR plugin name that produced the hypothesis.
	Backend string `json:"backend"`

	// Steps lists the pipeline stages that ran, in order.
	Steps []string `json:"steps"`

	// Quality is the front-end's assessment of the input audio.
	Quality QualityReport `json:"quality"`

	// Warnings aggregates quality and normalization warnings.
	Warnings []string `json:"warnings,omitempty"`
}

// Drill is one practice suggestion produced by the feedback synthesizer.
type Drill struct {
	// Type classifies the drill ("minimal_pair", "repetition").
	Type string `json:"type"`

	// Text is the learner-facing drill instruction.
	Text string `json:"text"`
}

// Feedback is the synthesizer's output attached to a feedback request.
type Feedback struct {
	Summary     string   `json:"summary"`
	AdviceShort string   `json:"advice_short"`
	AdviceLong  string   `json:"advice_long"`
	Drills      []Drill  `json:"drills,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
}

// FeedbackReport bundles a compare run with synthesized feedback.
type FeedbackReport struct {
	Compare  FullReport `json:"compare"`
	Feedback Feedback   `json:"feedback"`
}
