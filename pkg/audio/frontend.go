package audio

import (
	"log/slog"
	"math"

	"github.com/pronunciapa/pronunciapa/pkg/types"
)

// Quality gate thresholds.
const (
	gateMinDurationMS  = 250
	gateMaxDurationMS  = 60_000
	gateMinSpeechRatio = 0.1
	gateClippingRatio  = 0.05
	gateNoiseFloorDB   = -30.0
)

// AGC targets: applied only to quiet-but-present signals, never as
// compression.
const (
	agcTargetDB    = -20.0
	agcPeakGate    = 0.1
	agcSilenceDB   = -60.0
	agcPeakCeiling = 0.99
)

// clipLevel is the absolute sample value treated as clipped.
const clipLevel = 32766.0 / 32768.0

// Prepare decodes container bytes and runs the full front-end chain:
// resample to 16 kHz, mono downmix, 80 Hz high-pass, gain normalization,
// VAD, and the quality gate. The returned buffer is always 16 kHz mono
// s16le. Quality problems are reported, not raised; only undecodable input
// returns an error.
//
// With quick=true the gate is advisory: warnings are still collected but
// GatePassed is always true.
func Prepare(data []byte, contentType string, quick bool) (*Buffer, types.QualityReport, error) {
	samples, rate, err := Decode(data, contentType)
	if err != nil {
		return nil, types.QualityReport{}, err
	}

	// Clipping is measured on the decoded signal, before any gain change.
	clipped := 0
	for _, s := range samples {
		if math.Abs(s) >= clipLevel {
			clipped++
		}
	}
	clipRatio := 0.0
	if len(samples) > 0 {
		clipRatio = float64(clipped) / float64(len(samples))
	}

	samples = Resample(samples, rate, PipelineRate)
	highPass(samples, PipelineRate)

	peak := 0.0
	for _, s := range samples {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	level := rms(samples)
	levelDB := dbfs(level)

	if peak < agcPeakGate && levelDB > agcSilenceDB {
		gain := math.Pow(10, (agcTargetDB-levelDB)/20)
		if peak*gain > agcPeakCeiling {
			gain = agcPeakCeiling / peak
		}
		for i := range samples {
			samples[i] *= gain
		}
		levelDB = dbfs(rms(samples))
		slog.Debug("front-end applied gain", "gain", gain, "level_dbfs", levelDB)
	}

	segments, speechRatio, floorDB := analyzeVAD(samples, PipelineRate)

	report := types.QualityReport{
		DurationMS:  len(samples) * 1000 / PipelineRate,
		SpeechRatio: speechRatio,
		DBFS:        levelDB,
		Clipped:     clipRatio > gateClippingRatio,
		Segments:    segments,
		GatePassed:  true,
	}

	critical := false
	if report.DurationMS < gateMinDurationMS {
		report.Warnings = append(report.Warnings, "too short")
		critical = true
	}
	if report.DurationMS > gateMaxDurationMS {
		report.Warnings = append(report.Warnings, "too long")
		critical = true
	}
	if speechRatio < gateMinSpeechRatio {
		report.Warnings = append(report.Warnings, "mostly silence")
		critical = true
	}
	if report.Clipped {
		report.Warnings = append(report.Warnings, "clipping")
	}
	if floorDB > gateNoiseFloorDB {
		report.Warnings = append(report.Warnings, "noisy")
	}
	if critical && !quick {
		report.GatePassed = false
	}

	return FromSamples(samples, PipelineRate), report, nil
}

// Extract returns the sub-buffer covering seg, clamped to the buffer
// bounds.
func Extract(buf *Buffer, seg types.Segment) *Buffer {
	bytesPerMS := buf.SampleRate * 2 * buf.Channels / 1000
	start := seg.StartMS * bytesPerMS
	end := seg.EndMS * bytesPerMS
	if start < 0 {
		start = 0
	}
	if end > len(buf.PCM) {
		end = len(buf.PCM)
	}
	if start >= end {
		return &Buffer{SampleRate: buf.SampleRate, Channels: buf.Channels}
	}
	pcm := make([]byte, end-start)
	copy(pcm, buf.PCM[start:end])
	return &Buffer{PCM: pcm, SampleRate: buf.SampleRate, Channels: buf.Channels}
}
