// Package audio implements the evaluation front-end: container decoding,
// band-limited resampling to the pipeline rate, rumble filtering, automatic
// gain, voice-activity detection, and the audio quality gate.
//
// The front-end's contract is [Prepare]: container bytes in, a cleaned
// 16 kHz mono 16-bit buffer plus a [types.QualityReport] out. Quality
// problems prefer report-with-warnings over errors — only undecodable input
// fails.
package audio

import (
	"math"
)

const (
	// PipelineRate is the sample rate of every buffer the front-end emits.
	PipelineRate = 16000

	// PipelineChannels is always mono.
	PipelineChannels = 1
)

// Buffer is a block of 16-bit signed little-endian PCM at a known sample
// rate and channel count. The front-end's output buffer is always
// [PipelineRate] Hz mono. A Buffer is owned by one pipeline invocation and
// never shared.
type Buffer struct {
	PCM        []byte
	SampleRate int
	Channels   int
}

// Samples returns the buffer's PCM decoded into float64 samples in [-1, 1].
func (b *Buffer) Samples() []float64 {
	n := len(b.PCM) / 2
	out := make([]float64, n)
	for i := range n {
		s := int16(b.PCM[i*2]) | int16(b.PCM[i*2+1])<<8
		out[i] = float64(s) / 32768
	}
	return out
}

// DurationMS returns the buffer duration in milliseconds.
func (b *Buffer) DurationMS() int {
	if b.SampleRate <= 0 || b.Channels <= 0 {
		return 0
	}
	samples := len(b.PCM) / 2 / b.Channels
	return samples * 1000 / b.SampleRate
}

// FromSamples builds a Buffer from float64 samples in [-1, 1], clamping
// out-of-range values.
func FromSamples(samples []float64, rate int) *Buffer {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := int16(math.Round(clamp(s, -1, 1) * 32767))
		pcm[i*2] = byte(v)
		pcm[i*2+1] = byte(v >> 8)
	}
	return &Buffer{PCM: pcm, SampleRate: rate, Channels: 1}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// rms returns the root-mean-square level of samples, 0 for empty input.
func rms(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// dbfs converts a linear level to decibels relative to full scale. Silence
// maps to -120 dB rather than -Inf so reports stay JSON-safe.
func dbfs(level float64) float64 {
	if level <= 0 {
		return -120
	}
	db := 20 * math.Log10(level)
	if db < -120 {
		return -120
	}
	return db
}
