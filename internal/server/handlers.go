package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/pronunciapa/pronunciapa/internal/kernel"
	"github.com/pronunciapa/pronunciapa/internal/pipeline"
	"github.com/pronunciapa/pronunciapa/pkg/types"
)

// maxAudioBytes caps request bodies; 60 s of 48 kHz stereo PCM WAV fits
// comfortably.
const maxAudioBytes = 32 << 20

// api implements the one-shot evaluation endpoints.
type api struct {
	kernel *kernel.Kernel
}

// options parses the shared query parameters onto the defaults.
func options(r *http.Request) types.RunOptions {
	opts := types.DefaultRunOptions()
	q := r.URL.Query()
	if v := q.Get("lang"); v != "" {
		opts.Lang = v
	}
	if v := q.Get("evaluation_level"); v != "" {
		opts.EvaluationLevel = types.EvaluationLevel(v)
	}
	if v := q.Get("mode"); v != "" {
		opts.CompareMode = types.CompareMode(v)
	}
	if v := q.Get("feedback_level"); v != "" {
		opts.FeedbackLevel = types.FeedbackLevel(v)
	}
	if q.Get("require_ipa") == "false" {
		opts.RequireIPA = false
	}
	if q.Get("strict_gate") == "true" {
		opts.StrictGate = true
	}
	return opts
}

func readAudio(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxAudioBytes))
	if err != nil {
		writeError(w, pipeline.E(pipeline.KindInvalidInput, "", "", err))
		return nil, false
	}
	return data, true
}

func (a *api) transcribe(w http.ResponseWriter, r *http.Request) {
	data, ok := readAudio(w, r)
	if !ok {
		return
	}
	report, err := a.kernel.Transcribe(r.Context(), data, r.Header.Get("Content-Type"), options(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *api) compare(w http.ResponseWriter, r *http.Request) {
	data, ok := readAudio(w, r)
	if !ok {
		return
	}
	report, err := a.kernel.Compare(r.Context(), data, r.Header.Get("Content-Type"), r.URL.Query().Get("text"), options(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *api) quickCompare(w http.ResponseWriter, r *http.Request) {
	data, ok := readAudio(w, r)
	if !ok {
		return
	}
	report, err := a.kernel.QuickCompare(r.Context(), data, r.Header.Get("Content-Type"), r.URL.Query().Get("text"), options(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *api) feedback(w http.ResponseWriter, r *http.Request) {
	data, ok := readAudio(w, r)
	if !ok {
		return
	}
	report, err := a.kernel.Feedback(r.Context(), data, r.Header.Get("Content-Type"), r.URL.Query().Get("text"), options(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// writeError maps the pipeline taxonomy onto HTTP statuses and the error
// envelope.
func writeError(w http.ResponseWriter, err error) {
	pe := pipeline.AsError(err)
	status := http.StatusInternalServerError
	switch pe.Kind {
	case pipeline.KindInvalidInput, pipeline.KindQualityGate:
		status = http.StatusBadRequest
	case pipeline.KindConfig:
		status = http.StatusConflict
	case pipeline.KindProviderUnavailable:
		status = http.StatusServiceUnavailable
	case pipeline.KindTimeout:
		status = http.StatusGatewayTimeout
	}
	writeJSON(w, status, pe.Envelope())
}

// writeJSON encodes v with the given status. On encoding failure it falls
// back to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("server: response encode failed", "err", err)
	}
}
