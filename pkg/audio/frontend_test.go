package audio_test

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/pronunciapa/pronunciapa/pkg/audio"
)

// wavBytes builds a PCM16 WAV container around the given samples.
func wavBytes(t *testing.T, samples []float64, rate, channels int) []byte {
	t.Helper()

	var pcm bytes.Buffer
	for _, s := range samples {
		v := int16(math.Round(math.Max(-1, math.Min(1, s)) * 32767))
		if err := binary.Write(&pcm, binary.LittleEndian, v); err != nil {
			t.Fatalf("write pcm: %v", err)
		}
	}

	var buf bytes.Buffer
	dataLen := uint32(pcm.Len())
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, 36+dataLen)
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(rate))
	binary.Write(&buf, binary.LittleEndian, uint32(rate*channels*2))
	binary.Write(&buf, binary.LittleEndian, uint16(channels*2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, dataLen)
	buf.Write(pcm.Bytes())
	return buf.Bytes()
}

// tone generates a sine at freq Hz with the given amplitude and duration.
func tone(freq float64, amp float64, durationS float64, rate int) []float64 {
	n := int(durationS * float64(rate))
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
	}
	return out
}

func TestPrepare_OutputFormatAndDuration(t *testing.T) {
	t.Parallel()

	const durationS = 1.0
	data := wavBytes(t, tone(440, 0.5, durationS, 44100), 44100, 1)

	buf, _, err := audio.Prepare(data, "audio/wav", false)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if buf.SampleRate != audio.PipelineRate || buf.Channels != 1 {
		t.Errorf("output format = %dHz/%dch, want %dHz/1ch", buf.SampleRate, buf.Channels, audio.PipelineRate)
	}
	outDur := float64(len(buf.PCM)/2) / float64(audio.PipelineRate)
	if math.Abs(outDur-durationS) >= 0.01 {
		t.Errorf("output duration = %fs, want within 10ms of %fs", outDur, durationS)
	}
}

func TestPrepare_SpeechToneDetected(t *testing.T) {
	t.Parallel()

	// 200 Hz voiced-band tone for 1 s: the gate should pass and VAD should
	// find one segment covering most of the signal.
	data := wavBytes(t, tone(200, 0.5, 1.0, 16000), 16000, 1)

	_, quality, err := audio.Prepare(data, "audio/wav", false)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if !quality.GatePassed {
		t.Errorf("GatePassed = false (warnings %v), want true", quality.Warnings)
	}
	if quality.SpeechRatio < 0.5 {
		t.Errorf("SpeechRatio = %f, want >= 0.5", quality.SpeechRatio)
	}
	if len(quality.Segments) == 0 {
		t.Error("Segments empty, want at least one")
	}
}

func TestPrepare_TooShort(t *testing.T) {
	t.Parallel()

	data := wavBytes(t, tone(200, 0.5, 0.1, 16000), 16000, 1)
	_, quality, err := audio.Prepare(data, "audio/wav", false)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if quality.GatePassed {
		t.Error("GatePassed = true, want false for 100ms clip")
	}
	if !hasWarning(quality.Warnings, "too short") {
		t.Errorf("Warnings = %v, want \"too short\"", quality.Warnings)
	}
}

func TestPrepare_MostlySilence(t *testing.T) {
	t.Parallel()

	data := wavBytes(t, make([]float64, 16000), 16000, 1)
	_, quality, err := audio.Prepare(data, "audio/wav", false)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if quality.GatePassed {
		t.Error("GatePassed = true, want false for silence")
	}
	if !hasWarning(quality.Warnings, "mostly silence") {
		t.Errorf("Warnings = %v, want \"mostly silence\"", quality.Warnings)
	}
}

func TestPrepare_QuickGateAdvisory(t *testing.T) {
	t.Parallel()

	data := wavBytes(t, make([]float64, 16000), 16000, 1)
	_, quality, err := audio.Prepare(data, "audio/wav", true)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if !quality.GatePassed {
		t.Error("GatePassed = false with quick=true, want advisory gate")
	}
	if !hasWarning(quality.Warnings, "mostly silence") {
		t.Errorf("Warnings = %v, want warnings retained with quick=true", quality.Warnings)
	}
}

func TestPrepare_StereoDownmix(t *testing.T) {
	t.Parallel()

	// Identical L/R channels downmix to the same mono signal.
	mono := tone(200, 0.5, 0.5, 16000)
	stereo := make([]float64, 0, len(mono)*2)
	for _, s := range mono {
		stereo = append(stereo, s, s)
	}
	data := wavBytes(t, stereo, 16000, 2)

	buf, _, err := audio.Prepare(data, "audio/wav", false)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if buf.Channels != 1 {
		t.Errorf("Channels = %d, want 1", buf.Channels)
	}
	outDur := float64(len(buf.PCM)/2) / float64(audio.PipelineRate)
	if math.Abs(outDur-0.5) >= 0.01 {
		t.Errorf("duration = %fs, want ~0.5s", outDur)
	}
}

func TestPrepare_UnsupportedFormat(t *testing.T) {
	t.Parallel()

	_, _, err := audio.Prepare([]byte("not audio at all"), "text/plain", false)
	if err == nil {
		t.Error("Prepare: err = nil, want unsupported format error")
	}
}

func TestPrepare_OctetStreamAsWAV(t *testing.T) {
	t.Parallel()

	data := wavBytes(t, tone(200, 0.5, 0.5, 16000), 16000, 1)
	if _, _, err := audio.Prepare(data, "application/octet-stream", false); err != nil {
		t.Errorf("Prepare(octet-stream WAV): %v", err)
	}
}

func TestDetectSegments_ToneBetweenSilence(t *testing.T) {
	t.Parallel()

	// 300 ms silence, 600 ms tone, 300 ms silence: one segment roughly
	// covering the tone.
	samples := make([]float64, 0, 16000*12/10)
	samples = append(samples, make([]float64, 4800)...)
	samples = append(samples, tone(200, 0.5, 0.6, 16000)...)
	samples = append(samples, make([]float64, 4800)...)

	segments, ratio := audio.DetectSegments(samples, 16000)
	if len(segments) != 1 {
		t.Fatalf("segments = %v, want exactly one", segments)
	}
	seg := segments[0]
	if seg.StartMS > 400 || seg.EndMS < 800 {
		t.Errorf("segment = %+v, want to cover the 300–900ms tone", seg)
	}
	if ratio <= 0.3 || ratio >= 0.9 {
		t.Errorf("speech ratio = %f, want between 0.3 and 0.9", ratio)
	}

	buf := audio.FromSamples(samples, 16000)
	cut := audio.Extract(buf, seg)
	wantMS := seg.EndMS - seg.StartMS
	if got := cut.DurationMS(); got != wantMS {
		t.Errorf("extracted duration = %dms, want %dms", got, wantMS)
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
