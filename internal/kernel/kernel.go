// Package kernel is the composition root of the evaluation pipeline: it
// owns the plugin registry, validates plugin contracts, caches prepared
// runners by fingerprint, and exposes the request-level entry points.
package kernel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/pronunciapa/pronunciapa/internal/config"
	"github.com/pronunciapa/pronunciapa/internal/feedback"
	"github.com/pronunciapa/pronunciapa/internal/observe"
	"github.com/pronunciapa/pronunciapa/internal/pipeline"
	"github.com/pronunciapa/pronunciapa/internal/resilience"
	"github.com/pronunciapa/pronunciapa/pkg/compare"
	"github.com/pronunciapa/pronunciapa/pkg/inventory"
	"github.com/pronunciapa/pronunciapa/pkg/plugin"
	"github.com/pronunciapa/pronunciapa/pkg/plugin/asr/stub"
	"github.com/pronunciapa/pronunciapa/pkg/plugin/comparator/feature"
	"github.com/pronunciapa/pronunciapa/pkg/plugin/textref/grapheme"
	"github.com/pronunciapa/pronunciapa/pkg/types"
)

// DefaultDeadline bounds one-shot requests; streaming utterances get
// [StreamDeadline].
const (
	DefaultDeadline = 30 * time.Second
	StreamDeadline  = 60 * time.Second
)

// Kernel wires plugins into pipelines and serves requests. Construct one at
// startup with [New]; it is safe for concurrent use and owns its plugin
// instances until [Kernel.Close].
type Kernel struct {
	cfg      atomic.Pointer[config.Config]
	registry *config.Registry
	invs     atomic.Pointer[inventory.Set]
	cache    *runnerCache
	group    singleflight.Group
	workers  *semaphore.Weighted
	metrics  *observe.Metrics
	synth    *feedback.Synthesizer

	closersMu sync.Mutex
	closers   []func() error
}

// New builds a Kernel from a validated config and a populated registry.
// Language packs come from cfg.PacksDir when set, the embedded defaults
// otherwise. The LLM slot is resolved eagerly (feedback synthesis is
// kernel-wide); other plugins are resolved per fingerprint on first use.
func New(cfg config.Config, registry *config.Registry) (*Kernel, error) {
	invs, err := loadPacks(cfg)
	if err != nil {
		return nil, pipeline.E(pipeline.KindConfig, "", "", err)
	}

	k := &Kernel{
		registry: registry,
		cache:    newRunnerCache(defaultCacheSize),
		workers:  pipeline.DefaultWorkerPool(),
		metrics:  observe.Default(),
	}
	k.cfg.Store(&cfg)
	k.invs.Store(invs)

	var llm plugin.LLM
	if cfg.LLM.Name != "" {
		llm, err = registry.CreateLLM(cfg.LLM)
		if err != nil {
			if cfg.StrictMode {
				return nil, pipeline.E(pipeline.KindProviderUnavailable, cfg.LLM.Name, "", err)
			}
			slog.Warn("llm plugin unavailable; feedback will be rule-based", "plugin", cfg.LLM.Name, "err", err)
			llm = nil
		} else if c, ok := llm.(interface{ Close() error }); ok {
			k.addCloser(c.Close)
		}
	}
	k.synth = feedback.New(llm)

	return k, nil
}

func loadPacks(cfg config.Config) (*inventory.Set, error) {
	if cfg.PacksDir != "" {
		return inventory.LoadDir(os.DirFS(cfg.PacksDir), ".")
	}
	return inventory.LoadDefaults()
}

// addCloser records a plugin cleanup callback. Builds for different
// fingerprints may run concurrently, hence the lock.
func (k *Kernel) addCloser(fn func() error) {
	k.closersMu.Lock()
	defer k.closersMu.Unlock()
	k.closers = append(k.closers, fn)
}

// Close releases plugin resources in reverse construction order.
func (k *Kernel) Close() error {
	k.closersMu.Lock()
	defer k.closersMu.Unlock()
	var errs []error
	for i := len(k.closers) - 1; i >= 0; i-- {
		if err := k.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	k.cache.clear()
	return errors.Join(errs...)
}

// Languages lists the loaded language pack ids.
func (k *Kernel) Languages() []string {
	return k.invs.Load().Languages()
}

// Transcribe runs the transcription pipeline on container bytes.
func (k *Kernel) Transcribe(ctx context.Context, data []byte, contentType string, opts types.RunOptions) (types.TranscriptionReport, error) {
	ctx, cancel := k.deadline(ctx)
	defer cancel()

	r, err := k.runner(opts)
	if err != nil {
		return types.TranscriptionReport{}, err
	}
	report, err := r.Transcribe(ctx, data, contentType, opts)
	return report, k.mapDeadline(err)
}

// Compare runs the full evaluation pipeline against targetText.
func (k *Kernel) Compare(ctx context.Context, data []byte, contentType, targetText string, opts types.RunOptions) (types.FullReport, error) {
	ctx, cancel := k.deadline(ctx)
	defer cancel()

	r, err := k.runner(opts)
	if err != nil {
		return types.FullReport{}, err
	}
	report, err := r.Compare(ctx, data, contentType, targetText, opts)
	return report, k.mapDeadline(err)
}

// QuickCompare is Compare with the quality gate made advisory and feedback
// skipped; it reuses whatever pipeline is already cached.
func (k *Kernel) QuickCompare(ctx context.Context, data []byte, contentType, targetText string, opts types.RunOptions) (types.FullReport, error) {
	opts.Quick = true
	return k.Compare(ctx, data, contentType, targetText, opts)
}

// Feedback runs Compare and synthesizes learner advice from the result.
// Quick mode skips synthesis by contract.
func (k *Kernel) Feedback(ctx context.Context, data []byte, contentType, targetText string, opts types.RunOptions) (types.FeedbackReport, error) {
	full, err := k.Compare(ctx, data, contentType, targetText, opts)
	if err != nil {
		return types.FeedbackReport{}, err
	}
	report := types.FeedbackReport{Compare: full}
	if !opts.Quick {
		report.Feedback = k.synth.Synthesize(ctx, full.Compare, opts.FeedbackLevel)
	}
	return report, nil
}

// Fingerprint computes the cache key for opts under the current config.
func (k *Kernel) Fingerprint(opts types.RunOptions) Fingerprint {
	cfg := k.cfg.Load()
	slots := map[string]string{
		"asr":        slotID(cfg.Backend.Name, "stub"),
		"textref":    slotID(cfg.TextRef.Name, "grapheme"),
		"comparator": slotID(cfg.Comparator.Name, "feature"),
	}
	if cfg.Preprocessor.Name != "" {
		slots["preprocessor"] = cfg.Preprocessor.Name
	}
	return Fingerprint{
		Slots: slots,
		Lang:  opts.Lang,
		Level: opts.EvaluationLevel,
		Mode:  opts.CompareMode,
	}
}

func slotID(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}

// Reload invalidates the cached runner for one fingerprint. In-flight
// invocations complete on the runner they already hold.
func (k *Kernel) Reload(fp Fingerprint) {
	k.cache.remove(fp.Key())
	slog.Info("kernel: pipeline invalidated", "fingerprint", fp.String())
}

// ReloadAll invalidates every cached runner, including negative entries.
func (k *Kernel) ReloadAll() {
	k.cache.clear()
	slog.Info("kernel: all pipelines invalidated")
}

// ApplyConfig swaps the kernel configuration after a hot reload and
// invalidates affected pipelines.
func (k *Kernel) ApplyConfig(cfg config.Config) error {
	d := config.Diff(k.cfg.Load(), &cfg)
	if d.PacksChanged {
		invs, err := loadPacks(cfg)
		if err != nil {
			return pipeline.E(pipeline.KindConfig, "", "", err)
		}
		k.invs.Store(invs)
	}
	k.cfg.Store(&cfg)
	if d.PluginsChanged || d.PacksChanged {
		k.ReloadAll()
	}
	return nil
}

// runner resolves opts to a prepared pipeline: cache first, then a
// single-flight construction shared by concurrent first-time requests.
// Construction failures are cached negatively until reload.
func (k *Kernel) runner(opts types.RunOptions) (*pipeline.Runner, error) {
	if err := validateOptions(opts); err != nil {
		return nil, err
	}

	key := k.Fingerprint(opts).Key()
	if entry, ok := k.cache.get(key); ok {
		k.metrics.CacheHits.Add(context.Background(), 1)
		return entry.runner, entry.err
	}
	k.metrics.CacheMisses.Add(context.Background(), 1)

	v, err, _ := k.group.Do(key, func() (any, error) {
		if entry, ok := k.cache.get(key); ok {
			return entry, nil
		}
		r, buildErr := k.build(opts)
		entry := &cacheEntry{key: key, runner: r, err: buildErr}
		k.cache.put(entry)
		return entry, nil
	})
	if err != nil {
		return nil, pipeline.E(pipeline.KindInternal, "", opts.Lang, err)
	}
	entry := v.(*cacheEntry)
	return entry.runner, entry.err
}

func validateOptions(opts types.RunOptions) error {
	if opts.Lang == "" {
		return pipeline.E(pipeline.KindInvalidInput, "", "", errors.New("lang is required"))
	}
	if !opts.EvaluationLevel.IsValid() {
		return pipeline.E(pipeline.KindInvalidInput, "", opts.Lang,
			fmt.Errorf("evaluation_level %q is invalid", opts.EvaluationLevel))
	}
	if !opts.CompareMode.IsValid() {
		return pipeline.E(pipeline.KindInvalidInput, "", opts.Lang,
			fmt.Errorf("compare_mode %q is invalid", opts.CompareMode))
	}
	return nil
}

// build constructs a runner for opts, enforcing the plugin contracts:
// category resolution and language support intersection. The output_type
// versus require_ipa check lives in the runner — RequireIPA is per request
// and not part of the fingerprint, so one cached runner serves both strict
// and waived callers.
func (k *Kernel) build(opts types.RunOptions) (*pipeline.Runner, error) {
	cfg := k.cfg.Load()
	inv, err := k.invs.Load().Get(opts.Lang)
	if err != nil {
		return nil, pipeline.E(pipeline.KindConfig, "", opts.Lang, err)
	}

	var warnings []string

	asr, asrName, warn, err := k.resolveASR(cfg, opts)
	if err != nil {
		return nil, err
	}
	if warn != "" {
		warnings = append(warnings, warn)
	}

	textref, textrefName, warn, err := k.resolveTextRef(cfg, opts)
	if err != nil {
		return nil, err
	}
	if warn != "" {
		warnings = append(warnings, warn)
	}

	if err := checkLanguage(opts.Lang, asr.Languages(), textref.Languages()); err != nil {
		return nil, pipeline.E(pipeline.KindConfig, asrName, opts.Lang, err)
	}

	comparator, err := k.resolveComparator(cfg)
	if err != nil {
		return nil, err
	}

	var preproc plugin.Preprocessor
	if cfg.Preprocessor.Name != "" {
		preproc, err = k.registry.CreatePreprocessor(cfg.Preprocessor)
		if err != nil {
			if cfg.StrictMode {
				return nil, pipeline.E(pipeline.KindProviderUnavailable, cfg.Preprocessor.Name, opts.Lang, err)
			}
			slog.Warn("preprocessor unavailable; using built-in front-end", "plugin", cfg.Preprocessor.Name, "err", err)
			warnings = append(warnings, fmt.Sprintf("preprocessor %q unavailable", cfg.Preprocessor.Name))
			preproc = nil
		}
	}

	asrChain := resilience.NewChain(asrName, asr)
	if !cfg.StrictMode && asrName != "stub" {
		asrChain.Add("stub", stub.New(nil))
	}
	textrefChain := resilience.NewChain(textrefName, textref)
	if !cfg.StrictMode && textrefName != "grapheme" {
		textrefChain.Add("grapheme", grapheme.New())
	}

	return pipeline.New(pipeline.Config{
		ASR:           asrChain,
		TextRef:       textrefChain,
		Comparator:    comparator,
		Preproc:       preproc,
		Inventory:     inv,
		Weights:       weights(cfg, opts.CompareMode),
		Mode:          opts.CompareMode,
		Level:         opts.EvaluationLevel,
		Workers:       k.workers,
		Metrics:       k.metrics,
		Warnings:      warnings,
		ASRName:       asrName,
		ASROutputType: asr.OutputType(),
		EnforceIPA:    cfg.Backend.RequiresIPA(),
	})
}

// resolveASR creates the configured backend, applying the strict_mode
// fallback policy.
func (k *Kernel) resolveASR(cfg *config.Config, opts types.RunOptions) (plugin.ASR, string, string, error) {
	if cfg.Backend.Name == "" {
		return stub.New(nil), "stub", "no asr backend configured; stub substituted", nil
	}

	asr, err := k.registry.CreateASR(cfg.Backend)
	if err != nil {
		if cfg.StrictMode {
			return nil, "", "", pipeline.E(pipeline.KindProviderUnavailable, cfg.Backend.Name, opts.Lang, err)
		}
		slog.Warn("asr backend unavailable; stub substituted", "plugin", cfg.Backend.Name, "err", err)
		return stub.New(nil), "stub", fmt.Sprintf("asr backend %q unavailable; stub substituted", cfg.Backend.Name), nil
	}
	if c, ok := asr.(interface{ Close() error }); ok {
		k.addCloser(c.Close)
	}
	return asr, asr.Info().Name, "", nil
}

// resolveTextRef creates the configured provider with the grapheme
// fallback policy.
func (k *Kernel) resolveTextRef(cfg *config.Config, opts types.RunOptions) (plugin.TextRef, string, string, error) {
	if cfg.TextRef.Name == "" {
		return grapheme.New(), "grapheme", "", nil
	}
	tr, err := k.registry.CreateTextRef(cfg.TextRef)
	if err != nil {
		if cfg.StrictMode {
			return nil, "", "", pipeline.E(pipeline.KindProviderUnavailable, cfg.TextRef.Name, opts.Lang, err)
		}
		slog.Warn("textref provider unavailable; grapheme substituted", "plugin", cfg.TextRef.Name, "err", err)
		return grapheme.New(), "grapheme", fmt.Sprintf("textref %q unavailable; grapheme substituted", cfg.TextRef.Name), nil
	}
	return tr, tr.Info().Name, "", nil
}

func (k *Kernel) resolveComparator(cfg *config.Config) (plugin.Comparator, error) {
	if cfg.Comparator.Name == "" {
		return feature.New(), nil
	}
	cmp, err := k.registry.CreateComparator(cfg.Comparator)
	if err != nil {
		if cfg.StrictMode {
			return nil, pipeline.E(pipeline.KindProviderUnavailable, cfg.Comparator.Name, "", err)
		}
		slog.Warn("comparator unavailable; built-in substituted", "plugin", cfg.Comparator.Name, "err", err)
		return feature.New(), nil
	}
	return cmp, nil
}

// weights resolves the mode profile with config cost overrides.
func weights(cfg *config.Config, mode types.CompareMode) compare.Weights {
	w := compare.ModeWeights(mode)
	costs := cfg.Comparator.Costs
	if costs.Sub > 0 {
		w.SubScale = costs.Sub
	}
	if costs.Ins > 0 {
		w.Ins = costs.Ins
	}
	if costs.Del > 0 {
		w.Del = costs.Del
	}
	return w
}

// checkLanguage enforces the intersection rule: when both providers
// declare a language list, lang must appear in both.
func checkLanguage(lang string, asrLangs, textrefLangs []string) error {
	if asrLangs != nil && !slices.Contains(asrLangs, lang) {
		return fmt.Errorf("language %q is not supported by the asr backend", lang)
	}
	if textrefLangs != nil && !slices.Contains(textrefLangs, lang) {
		return fmt.Errorf("language %q is not supported by the textref provider", lang)
	}
	return nil
}

// deadline applies the default request deadline when the caller set none.
func (k *Kernel) deadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, DefaultDeadline)
}

// mapDeadline converts a context deadline error into the timeout kind.
func (k *Kernel) mapDeadline(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return pipeline.E(pipeline.KindTimeout, "", "", err)
	}
	return err
}
