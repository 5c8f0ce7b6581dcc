// Package pipeline implements the evaluation runner: the orchestrated
// audio → ASR → normalize → textref → compare → report sequence, plus the
// error taxonomy every kernel entry point maps provider failures into.
package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline error for callers and request boundaries.
type Kind string

const (
	// KindInvalidInput: unparseable audio, empty text where required,
	// out-of-range option. Never retried.
	KindInvalidInput Kind = "invalid_input"

	// KindConfig: cyclic aliases, missing plugin, unsupported language,
	// incompatible output_type. Fatal at pipeline construction and cached
	// as a negative entry until reload.
	KindConfig Kind = "config_error"

	// KindProviderUnavailable: plugin initialization failed or a
	// dependency is missing, with strict_mode on.
	KindProviderUnavailable Kind = "provider_unavailable"

	// KindProviderFailed: a provider failed twice (initial call plus the
	// one transient retry).
	KindProviderFailed Kind = "provider_failed"

	// KindQualityGate: audio failed the quality gate and the caller set
	// the strict gate flag. Without the flag, gate failures produce
	// low-confidence reports, never errors.
	KindQualityGate Kind = "quality_gate_failed"

	// KindTimeout: the request deadline elapsed; providers were cancelled.
	KindTimeout Kind = "timeout"

	// KindInternal: invariant violation. Never retried.
	KindInternal Kind = "internal"
)

// ExitCode maps the kind to the documented CLI exit code convention.
func (k Kind) ExitCode() int {
	switch k {
	case KindInvalidInput:
		return 2
	case KindConfig:
		return 3
	case KindProviderUnavailable:
		return 4
	case KindTimeout:
		return 5
	default:
		return 1
	}
}

// Error is the typed error every kernel entry point returns. It identifies
// the failing plugin and the requested language so user-visible messages can
// name both.
type Error struct {
	Kind   Kind
	Plugin string
	Lang   string
	Err    error
}

// E builds an [Error]; plugin and lang may be empty when not applicable.
func E(kind Kind, plugin, lang string, err error) *Error {
	return &Error{Kind: kind, Plugin: plugin, Lang: lang, Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("pipeline: %s", e.Kind)
	if e.Plugin != "" {
		msg += fmt.Sprintf(" (plugin %s", e.Plugin)
		if e.Lang != "" {
			msg += fmt.Sprintf(", lang %s", e.Lang)
		}
		msg += ")"
	} else if e.Lang != "" {
		msg += fmt.Sprintf(" (lang %s)", e.Lang)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Envelope is the JSON error shape used on request boundaries.
type Envelope struct {
	Type    string `json:"type"`
	Detail  string `json:"detail"`
	Backend string `json:"backend,omitempty"`
}

// Envelope converts e into its request-boundary representation.
func (e *Error) Envelope() Envelope {
	detail := ""
	if e.Err != nil {
		detail = e.Err.Error()
	}
	return Envelope{Type: string(e.Kind), Detail: detail, Backend: e.Plugin}
}

// AsError extracts the typed pipeline error from err, wrapping unknown
// errors as internal so the boundary always has a kind to report.
func AsError(err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return E(KindInternal, "", "", err)
}
