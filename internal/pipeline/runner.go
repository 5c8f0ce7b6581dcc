package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/pronunciapa/pronunciapa/internal/observe"
	"github.com/pronunciapa/pronunciapa/internal/resilience"
	"github.com/pronunciapa/pronunciapa/pkg/audio"
	"github.com/pronunciapa/pronunciapa/pkg/compare"
	"github.com/pronunciapa/pronunciapa/pkg/inventory"
	"github.com/pronunciapa/pronunciapa/pkg/plugin"
	"github.com/pronunciapa/pronunciapa/pkg/types"
)

// Confidence thresholds from the runner contract: a PER below highPER with
// a passed gate is labeled high; a hypothesis shorter than minHypTokens is
// always low.
const (
	highPER      = 0.1
	minHypTokens = 2
)

// Runner executes the prepared pipeline for one plugin composition,
// language, and compare mode. Runners are immutable once built and safe for
// concurrent use; the kernel caches them by fingerprint.
type Runner struct {
	asr        *resilience.Chain[plugin.ASR]
	textref    *resilience.Chain[plugin.TextRef]
	comparator plugin.Comparator
	preproc    plugin.Preprocessor // nil: use the built-in front-end/normalizer
	inv        *inventory.Inventory
	weights    compare.Weights
	mode       types.CompareMode
	level      types.EvaluationLevel

	// asrName, asrOutput, and enforceIPA carry the primary backend's
	// declared output type so the require_ipa contract can be checked per
	// request: RunOptions.RequireIPA is not part of the cache fingerprint,
	// so the same prepared runner serves both strict and waived callers.
	asrName    string
	asrOutput  plugin.OutputType
	enforceIPA bool

	// workers bounds CPU-heavy stages across all runners; shared with the
	// kernel. Nil means unbounded (tests).
	workers *semaphore.Weighted

	metrics  *observe.Metrics
	warnings []string // construction-time warnings (fallback substitutions)
}

// Config holds everything a Runner needs. All plugin instances are borrowed
// from the kernel for the runner's lifetime.
type Config struct {
	ASR        *resilience.Chain[plugin.ASR]
	TextRef    *resilience.Chain[plugin.TextRef]
	Comparator plugin.Comparator
	Preproc    plugin.Preprocessor
	Inventory  *inventory.Inventory
	Weights    compare.Weights
	Mode       types.CompareMode
	Level      types.EvaluationLevel
	Workers    *semaphore.Weighted
	Metrics    *observe.Metrics
	Warnings   []string

	// ASRName and ASROutputType describe the primary backend; EnforceIPA
	// mirrors the config-level require_ipa setting. All three feed the
	// per-request output-type check.
	ASRName       string
	ASROutputType plugin.OutputType
	EnforceIPA    bool
}

// New assembles a Runner. The comparator, ASR chain, textref chain, and
// inventory are required.
func New(cfg Config) (*Runner, error) {
	if cfg.ASR == nil || cfg.TextRef == nil || cfg.Comparator == nil || cfg.Inventory == nil {
		return nil, E(KindConfig, "", "", errors.New("pipeline: incomplete runner configuration"))
	}
	m := cfg.Metrics
	if m == nil {
		m = observe.Default()
	}
	return &Runner{
		asr:        cfg.ASR,
		textref:    cfg.TextRef,
		comparator: cfg.Comparator,
		preproc:    cfg.Preproc,
		inv:        cfg.Inventory,
		weights:    cfg.Weights,
		mode:       cfg.Mode,
		level:      cfg.Level,
		workers:    cfg.Workers,
		metrics:    m,
		warnings:   cfg.Warnings,
		asrName:    cfg.ASRName,
		asrOutput:  cfg.ASROutputType,
		enforceIPA: cfg.EnforceIPA,
	}, nil
}

// checkOutputType enforces the require_ipa contract: a backend that does not
// emit IPA is rejected unless either the configuration or the request waives
// the check.
func (r *Runner) checkOutputType(opts types.RunOptions) error {
	if opts.RequireIPA && r.enforceIPA && r.asrOutput != "" && r.asrOutput != plugin.OutputIPA {
		return E(KindConfig, r.asrName, opts.Lang,
			fmt.Errorf("backend output_type %q does not satisfy require_ipa; set require_ipa: false to waive", r.asrOutput))
	}
	return nil
}

// Transcribe runs front-end → ASR → normalize and assembles a transcription
// report. Bad audio quality produces a report with warnings, not an error.
func (r *Runner) Transcribe(ctx context.Context, data []byte, contentType string, opts types.RunOptions) (types.TranscriptionReport, error) {
	start := time.Now()
	defer func() {
		r.metrics.PipelineDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("op", "transcribe")))
	}()

	if err := r.checkOutputType(opts); err != nil {
		return types.TranscriptionReport{}, err
	}

	buf, quality, err := r.prepare(ctx, data, contentType, opts)
	if err != nil {
		return types.TranscriptionReport{}, err
	}

	report := types.TranscriptionReport{
		Lang: opts.Lang,
		Meta: types.ReportMeta{
			Steps:    []string{"frontend"},
			Quality:  quality,
			Warnings: append([]string(nil), r.warnings...),
		},
	}
	report.Meta.Warnings = append(report.Meta.Warnings, quality.Warnings...)

	if !quality.GatePassed {
		if opts.StrictGate {
			return types.TranscriptionReport{}, E(KindQualityGate, "", opts.Lang,
				fmt.Errorf("audio rejected: %s", strings.Join(quality.Warnings, "; ")))
		}
		r.metrics.GateFailures.Add(ctx, 1)
		return report, nil
	}

	result, backend, err := r.transcribe(ctx, buf, opts)
	if err != nil {
		return types.TranscriptionReport{}, r.mapProviderErr(err, backend, opts.Lang)
	}

	tokens, warnings, err := r.normalize(ctx, result.Tokens, opts)
	if err != nil {
		return types.TranscriptionReport{}, E(KindConfig, backend, opts.Lang, err)
	}

	report.IPA = tokens.Joined()
	report.Tokens = tokens
	report.RawText = result.RawText
	report.Timings = result.Timings
	report.Meta.Backend = backend
	report.Meta.Steps = append(report.Meta.Steps, "asr", "normalize")
	report.Meta.Warnings = append(report.Meta.Warnings, warnings...)
	return report, nil
}

// Compare runs the full evaluation: transcription plus reference conversion
// and alignment. The reference and hypothesis branches run concurrently.
// A failed quality gate skips transcription — the hypothesis is empty, the
// alignment is all deletions, and confidence is low — but the report is
// still produced.
func (r *Runner) Compare(ctx context.Context, data []byte, contentType, targetText string, opts types.RunOptions) (types.FullReport, error) {
	start := time.Now()
	defer func() {
		r.metrics.PipelineDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("op", "compare")))
	}()

	if strings.TrimSpace(targetText) == "" {
		return types.FullReport{}, E(KindInvalidInput, "", opts.Lang, errors.New("target text is empty"))
	}
	if err := r.checkOutputType(opts); err != nil {
		return types.FullReport{}, err
	}

	buf, quality, err := r.prepare(ctx, data, contentType, opts)
	if err != nil {
		return types.FullReport{}, err
	}
	if !quality.GatePassed && opts.StrictGate {
		return types.FullReport{}, E(KindQualityGate, "", opts.Lang,
			fmt.Errorf("audio rejected: %s", strings.Join(quality.Warnings, "; ")))
	}

	var (
		hyp, ref       types.TokenSequence
		hypRes         plugin.ASRResult
		backend        string
		hypWs, refWs   []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if !quality.GatePassed {
			r.metrics.GateFailures.Add(gctx, 1)
			return nil // empty hypothesis: the alignment reports deletions
		}
		res, name, err := r.transcribe(gctx, buf, opts)
		if err != nil {
			return r.mapProviderErr(err, name, opts.Lang)
		}
		tokens, ws, err := r.normalize(gctx, res.Tokens, opts)
		if err != nil {
			return E(KindConfig, name, opts.Lang, err)
		}
		hyp, hypRes, backend, hypWs = tokens, res, name, ws
		return nil
	})
	g.Go(func() error {
		tokens, name, err := r.reference(gctx, targetText, opts)
		if err != nil {
			return r.mapProviderErr(err, name, opts.Lang)
		}
		norm, ws, err := r.normalize(gctx, tokens, opts)
		if err != nil {
			return E(KindConfig, name, opts.Lang, err)
		}
		ref, refWs = norm, ws
		return nil
	})
	if err := g.Wait(); err != nil {
		return types.FullReport{}, err
	}

	compareStart := time.Now()
	if err := r.acquireWorker(ctx); err != nil {
		return types.FullReport{}, E(KindTimeout, "", opts.Lang, err)
	}
	cmpReport, err := r.comparator.Compare(ref, hyp, r.weights)
	r.releaseWorker()
	r.metrics.CompareDuration.Record(ctx, time.Since(compareStart).Seconds())
	if err != nil {
		return types.FullReport{}, r.mapProviderErr(err, r.comparator.Info().Name, opts.Lang)
	}

	cmpReport.Mode = r.mode
	cmpReport.EvaluationLevel = opts.EvaluationLevel
	cmpReport.Confidence = r.confidence(quality, hyp, hypRes, cmpReport.PER)
	cmpReport.Warnings = mergeWarnings(r.warnings, quality.Warnings, hypWs, refWs)

	full := types.FullReport{
		TranscriptionReport: types.TranscriptionReport{
			IPA:     hyp.Joined(),
			Tokens:  hyp,
			Lang:    opts.Lang,
			RawText: hypRes.RawText,
			Timings: hypRes.Timings,
			Meta: types.ReportMeta{
				Backend:  backend,
				Steps:    []string{"frontend", "asr", "normalize", "textref", "compare"},
				Quality:  quality,
				Warnings: cmpReport.Warnings,
			},
		},
		TargetIPA: ref.Joined(),
		Alignment: types.AlignmentPairs(cmpReport.Ops),
		Compare:   cmpReport,
	}
	return full, nil
}

// prepare runs the audio front-end (or the configured preprocessor) under
// the worker pool.
func (r *Runner) prepare(ctx context.Context, data []byte, contentType string, opts types.RunOptions) (*audio.Buffer, types.QualityReport, error) {
	if len(data) == 0 {
		return nil, types.QualityReport{}, E(KindInvalidInput, "", opts.Lang, errors.New("audio payload is empty"))
	}
	if err := r.acquireWorker(ctx); err != nil {
		return nil, types.QualityReport{}, E(KindTimeout, "", opts.Lang, err)
	}
	defer r.releaseWorker()

	start := time.Now()
	defer func() {
		r.metrics.FrontendDuration.Record(ctx, time.Since(start).Seconds())
	}()

	if r.preproc != nil {
		buf, quality, err := r.preproc.ProcessAudio(ctx, data, contentType, opts.Quick)
		if err != nil {
			return nil, types.QualityReport{}, r.mapProviderErr(err, r.preproc.Info().Name, opts.Lang)
		}
		return buf, quality, nil
	}

	buf, quality, err := audio.Prepare(data, contentType, opts.Quick)
	if err != nil {
		return nil, types.QualityReport{}, E(KindInvalidInput, "", opts.Lang, err)
	}
	return buf, quality, nil
}

// transcribe calls the ASR chain under the worker pool with the retry-once
// transient policy.
func (r *Runner) transcribe(ctx context.Context, buf *audio.Buffer, opts types.RunOptions) (plugin.ASRResult, string, error) {
	if err := r.acquireWorker(ctx); err != nil {
		return plugin.ASRResult{}, "", err
	}
	defer r.releaseWorker()

	start := time.Now()
	defer func() {
		r.metrics.ASRDuration.Record(ctx, time.Since(start).Seconds())
	}()

	type asrOut struct {
		res  plugin.ASRResult
		name string
	}
	out, err := resilience.Retry(ctx, plugin.ErrTransient, func(ctx context.Context) (asrOut, error) {
		res, name, err := resilience.Execute(r.asr, func(a plugin.ASR) (plugin.ASRResult, error) {
			res, err := a.Transcribe(ctx, buf, opts.Lang)
			r.metrics.RecordPlugin(ctx, a.Info().Name, err)
			return res, err
		})
		return asrOut{res: res, name: name}, err
	})
	return out.res, out.name, err
}

// reference calls the TextRef chain with the retry-once transient policy.
func (r *Runner) reference(ctx context.Context, text string, opts types.RunOptions) (types.TokenSequence, string, error) {
	type refOut struct {
		tokens types.TokenSequence
		name   string
	}
	out, err := resilience.Retry(ctx, plugin.ErrTransient, func(ctx context.Context) (refOut, error) {
		tokens, name, err := resilience.Execute(r.textref, func(t plugin.TextRef) (types.TokenSequence, error) {
			tokens, err := t.ToIPA(ctx, text, opts.Lang)
			r.metrics.RecordPlugin(ctx, t.Info().Name, err)
			return tokens, err
		})
		return refOut{tokens: tokens, name: name}, err
	})
	return out.tokens, out.name, err
}

// normalize canonicalizes tokens via the preprocessor hook or the built-in
// inventory normalizer. The phonetic compare mode always evaluates at the
// phonetic level so collapse never runs.
func (r *Runner) normalize(ctx context.Context, tokens types.TokenSequence, opts types.RunOptions) (types.TokenSequence, []string, error) {
	level := opts.EvaluationLevel
	if r.mode == types.ModePhonetic {
		level = types.LevelPhonetic
	}
	if r.preproc != nil {
		return r.preproc.NormalizeTokens(ctx, tokens, opts.Lang, level)
	}
	return inventory.Normalize(tokens, r.inv, level)
}

// confidence implements the labeling rule: low on gate failure, a
// too-short hypothesis, or backend-reported low confidence; high on a
// passed gate with PER under the threshold; normal otherwise.
func (r *Runner) confidence(quality types.QualityReport, hyp types.TokenSequence, res plugin.ASRResult, per float64) types.Confidence {
	switch {
	case !quality.GatePassed, len(hyp) < minHypTokens, res.Confidence == types.ConfidenceLow:
		return types.ConfidenceLow
	case per < highPER:
		return types.ConfidenceHigh
	default:
		return types.ConfidenceNormal
	}
}

// mapProviderErr folds provider errors into the taxonomy.
func (r *Runner) mapProviderErr(err error, pluginName, lang string) error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return E(KindTimeout, pluginName, lang, err)
	case errors.Is(err, context.Canceled):
		return E(KindTimeout, pluginName, lang, err)
	case errors.Is(err, plugin.ErrUnavailable):
		return E(KindProviderUnavailable, pluginName, lang, err)
	case errors.Is(err, plugin.ErrTransient):
		return E(KindProviderFailed, pluginName, lang, err)
	default:
		return E(KindProviderFailed, pluginName, lang, err)
	}
}

func (r *Runner) acquireWorker(ctx context.Context) error {
	if r.workers == nil {
		return nil
	}
	return r.workers.Acquire(ctx, 1)
}

func (r *Runner) releaseWorker() {
	if r.workers != nil {
		r.workers.Release(1)
	}
}

// mergeWarnings concatenates warning lists, dropping duplicates while
// preserving first-seen order.
func mergeWarnings(lists ...[]string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, list := range lists {
		for _, w := range list {
			if _, dup := seen[w]; dup {
				continue
			}
			seen[w] = struct{}{}
			out = append(out, w)
		}
	}
	return out
}

// DefaultWorkerPool returns the shared CPU worker pool sized to the host.
func DefaultWorkerPool() *semaphore.Weighted {
	return semaphore.NewWeighted(int64(runtime.NumCPU()))
}
