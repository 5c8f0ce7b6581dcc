package kernel_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/pronunciapa/pronunciapa/internal/config"
	"github.com/pronunciapa/pronunciapa/internal/kernel"
	"github.com/pronunciapa/pronunciapa/internal/pipeline"
	"github.com/pronunciapa/pronunciapa/pkg/audio"
	"github.com/pronunciapa/pronunciapa/pkg/plugin"
	"github.com/pronunciapa/pronunciapa/pkg/plugin/asr/stub"
	"github.com/pronunciapa/pronunciapa/pkg/types"
)

// wavTone builds a PCM16 mono WAV with a 200 Hz sine.
func wavTone(t *testing.T, amp float64, durationS float64) []byte {
	t.Helper()

	const rate = 16000
	n := int(durationS * rate)
	var pcm bytes.Buffer
	for i := range n {
		s := amp * math.Sin(2*math.Pi*200*float64(i)/rate)
		binary.Write(&pcm, binary.LittleEndian, int16(math.Round(s*32767)))
	}
	buf := &audio.Buffer{PCM: pcm.Bytes(), SampleRate: rate, Channels: 1}
	return audio.WrapWAV(buf)
}

func newRegistry(tokens []string) *config.Registry {
	reg := config.NewRegistry()
	reg.RegisterASR("stub", func(config.BackendEntry) (plugin.ASR, error) {
		return stub.New(types.NewTokenSequence(tokens)), nil
	})
	return reg
}

func newKernel(t *testing.T, tokens []string) *kernel.Kernel {
	t.Helper()
	cfg := config.Config{
		Version: config.SchemaVersion,
		Backend: config.BackendEntry{Entry: config.Entry{Name: "stub"}},
	}
	k, err := kernel.New(cfg, newRegistry(tokens))
	if err != nil {
		t.Fatalf("kernel.New: %v", err)
	}
	t.Cleanup(func() { _ = k.Close() })
	return k
}

func TestKernel_CompareEndToEnd(t *testing.T) {
	t.Parallel()

	k := newKernel(t, []string{"o", "l", "a"})
	report, err := k.Compare(context.Background(), wavTone(t, 0.5, 1.0), "audio/wav", "hola", types.DefaultRunOptions())
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if report.Compare.Score != 100 {
		t.Errorf("Score = %f, want 100", report.Compare.Score)
	}
}

func TestKernel_QuickCompareBypassesGate(t *testing.T) {
	t.Parallel()

	k := newKernel(t, []string{"o", "l", "a"})
	// 100 ms clip fails the gate normally; quick mode keeps it advisory.
	report, err := k.QuickCompare(context.Background(), wavTone(t, 0.5, 0.1), "audio/wav", "hola", types.DefaultRunOptions())
	if err != nil {
		t.Fatalf("QuickCompare: %v", err)
	}
	if !report.Meta.Quality.GatePassed {
		t.Error("GatePassed = false under quick mode, want advisory gate")
	}
	if !hasWarning(report.Meta.Quality.Warnings, "too short") {
		t.Errorf("Warnings = %v, want \"too short\" retained", report.Meta.Quality.Warnings)
	}
}

func TestKernel_UnsupportedLanguage(t *testing.T) {
	t.Parallel()

	k := newKernel(t, []string{"o"})
	opts := types.DefaultRunOptions()
	opts.Lang = "xx"
	_, err := k.Compare(context.Background(), wavTone(t, 0.5, 1.0), "audio/wav", "hola", opts)
	var pe *pipeline.Error
	if !errors.As(err, &pe) || pe.Kind != pipeline.KindConfig {
		t.Errorf("err = %v, want KindConfig for unknown language", err)
	}
}

func TestKernel_InvalidOptions(t *testing.T) {
	t.Parallel()

	k := newKernel(t, []string{"o"})
	opts := types.DefaultRunOptions()
	opts.CompareMode = "fuzzy"
	_, err := k.Compare(context.Background(), wavTone(t, 0.5, 1.0), "audio/wav", "hola", opts)
	var pe *pipeline.Error
	if !errors.As(err, &pe) || pe.Kind != pipeline.KindInvalidInput {
		t.Errorf("err = %v, want KindInvalidInput for bad compare mode", err)
	}
}

func TestKernel_StrictModeMissingPlugin(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		Version:    config.SchemaVersion,
		StrictMode: true,
		Backend:    config.BackendEntry{Entry: config.Entry{Name: "missing"}},
	}
	k, err := kernel.New(cfg, config.NewRegistry())
	if err != nil {
		t.Fatalf("kernel.New: %v", err)
	}
	defer k.Close()

	_, err = k.Compare(context.Background(), wavTone(t, 0.5, 1.0), "audio/wav", "hola", types.DefaultRunOptions())
	var pe *pipeline.Error
	if !errors.As(err, &pe) || pe.Kind != pipeline.KindProviderUnavailable {
		t.Errorf("err = %v, want KindProviderUnavailable in strict mode", err)
	}
}

func TestKernel_NonStrictSubstitutesStub(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		Version: config.SchemaVersion,
		Backend: config.BackendEntry{Entry: config.Entry{Name: "missing"}},
	}
	k, err := kernel.New(cfg, config.NewRegistry())
	if err != nil {
		t.Fatalf("kernel.New: %v", err)
	}
	defer k.Close()

	report, err := k.Compare(context.Background(), wavTone(t, 0.5, 1.0), "audio/wav", "hola", types.DefaultRunOptions())
	if err != nil {
		t.Fatalf("Compare with fallback: %v", err)
	}
	if !hasWarningContaining(report.Compare.Warnings, "unavailable") {
		t.Errorf("Warnings = %v, want substitution warning", report.Compare.Warnings)
	}
}

// textASR declares orthographic output.
type textASR struct{}

func (textASR) Info() plugin.Info {
	return plugin.Info{Name: "text-only", Version: "1", Category: plugin.CategoryASR}
}
func (textASR) OutputType() plugin.OutputType { return plugin.OutputText }
func (textASR) Languages() []string           { return nil }
func (textASR) Transcribe(context.Context, *audio.Buffer, string) (plugin.ASRResult, error) {
	return plugin.ASRResult{RawText: "hola"}, nil
}

func TestKernel_RequireIPARejectsTextBackend(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	reg.RegisterASR("text-only", func(config.BackendEntry) (plugin.ASR, error) {
		return textASR{}, nil
	})
	cfg := config.Config{
		Version: config.SchemaVersion,
		Backend: config.BackendEntry{Entry: config.Entry{Name: "text-only"}},
	}
	k, err := kernel.New(cfg, reg)
	if err != nil {
		t.Fatalf("kernel.New: %v", err)
	}
	defer k.Close()

	_, err = k.Compare(context.Background(), wavTone(t, 0.5, 1.0), "audio/wav", "hola", types.DefaultRunOptions())
	var pe *pipeline.Error
	if !errors.As(err, &pe) || pe.Kind != pipeline.KindConfig {
		t.Fatalf("err = %v, want KindConfig for text backend with require_ipa", err)
	}

	// The caller can waive the check explicitly.
	opts := types.DefaultRunOptions()
	opts.RequireIPA = false
	if _, err := k.Compare(context.Background(), wavTone(t, 0.5, 1.0), "audio/wav", "hola", opts); err != nil {
		t.Errorf("Compare with waiver: %v", err)
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	t.Parallel()

	k := newKernel(t, nil)
	opts := types.DefaultRunOptions()
	a := k.Fingerprint(opts)
	b := k.Fingerprint(opts)
	if a.Key() != b.Key() {
		t.Errorf("Fingerprint keys differ for equal inputs: %s vs %s", a.Key(), b.Key())
	}

	opts.CompareMode = types.ModeCasual
	c := k.Fingerprint(opts)
	if c.Key() == a.Key() {
		t.Error("Fingerprint key unchanged after mode change")
	}
}

func TestFingerprint_StringSortsSlots(t *testing.T) {
	t.Parallel()

	fp := kernel.Fingerprint{
		Slots: map[string]string{"textref": "grapheme", "asr": "stub", "comparator": "feature"},
		Lang:  "es",
		Level: types.LevelPhonemic,
		Mode:  types.ModeObjective,
	}
	want := "asr=stub;comparator=feature;textref=grapheme;lang=es;level=phonemic;mode=objective"
	if fp.String() != want {
		t.Errorf("String() = %q, want %q", fp.String(), want)
	}
}

func TestKernel_ConcurrentCompare(t *testing.T) {
	t.Parallel()

	k := newKernel(t, []string{"o", "l", "a"})
	data := wavTone(t, 0.5, 1.0)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = k.Compare(context.Background(), data, "audio/wav", "hola", types.DefaultRunOptions())
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Errorf("goroutine %d: %v", i, err)
		}
	}
}

func TestKernel_ReloadInvalidatesNegativeEntry(t *testing.T) {
	t.Parallel()

	k := newKernel(t, []string{"o"})
	opts := types.DefaultRunOptions()
	opts.Lang = "xx"

	if _, err := k.Compare(context.Background(), wavTone(t, 0.5, 1.0), "audio/wav", "hola", opts); err == nil {
		t.Fatal("expected config error for unknown language")
	}
	// The failure is cached; the same error must return without rebuild,
	// and Reload must clear it.
	if _, err := k.Compare(context.Background(), wavTone(t, 0.5, 1.0), "audio/wav", "hola", opts); err == nil {
		t.Fatal("expected cached config error")
	}
	k.Reload(k.Fingerprint(opts))
	if _, err := k.Compare(context.Background(), wavTone(t, 0.5, 1.0), "audio/wav", "hola", opts); err == nil {
		t.Fatal("expected config error after reload (language still unknown)")
	}
}

func hasWarning(warnings []string, want string) bool {
	for _, w := range warnings {
		if w == want {
			return true
		}
	}
	return false
}

func hasWarningContaining(warnings []string, substr string) bool {
	for _, w := range warnings {
		if bytes.Contains([]byte(w), []byte(substr)) {
			return true
		}
	}
	return false
}
