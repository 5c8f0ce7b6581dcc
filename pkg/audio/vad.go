package audio

import (
	"math"
	"sort"

	"github.com/pronunciapa/pronunciapa/pkg/types"
)

// VAD frame geometry and decision constants. The detector is an
// energy-plus-zero-crossing classifier: loud frames are speech, quiet frames
// are not, and high zero-crossing rates demote borderline frames that are
// more likely broadband hiss than voicing.
const (
	vadFrameMS    = 30
	vadHopMS      = 10
	vadHangoverMS = 250

	// vadFloorOffsetDB is how far above the estimated noise floor a frame
	// must sit to count as speech.
	vadFloorOffsetDB = 9

	// vadAbsoluteFloorDB is the quietest level ever classified as speech.
	vadAbsoluteFloorDB = -55

	// vadHissZCR is the zero-crossing rate above which borderline frames
	// are treated as noise rather than voicing.
	vadHissZCR = 0.45

	// vadLoudSpeechDB caps the adaptive threshold: frames louder than this
	// always count as speech, even when the floor estimate is inflated by
	// a recording with no pauses.
	vadLoudSpeechDB = -35
)

// frameFeatures holds the per-frame measurements the detector classifies on.
type frameFeatures struct {
	dbfs float64
	zcr  float64
}

func measureFrame(frame []float64) frameFeatures {
	var crossings int
	for i := 1; i < len(frame); i++ {
		if (frame[i-1] < 0) != (frame[i] < 0) {
			crossings++
		}
	}
	zcr := 0.0
	if len(frame) > 1 {
		zcr = float64(crossings) / float64(len(frame)-1)
	}
	return frameFeatures{dbfs: dbfs(rms(frame)), zcr: zcr}
}

// classify applies the energy + ZCR decision given a noise-floor estimate.
func (f frameFeatures) classify(noiseFloorDB float64) bool {
	threshold := math.Max(vadAbsoluteFloorDB, math.Min(noiseFloorDB+vadFloorOffsetDB, vadLoudSpeechDB))
	if f.dbfs <= threshold {
		return false
	}
	if f.zcr > vadHissZCR && f.dbfs < threshold+12 {
		return false
	}
	return true
}

// DetectSegments runs the VAD over a complete buffer and returns the merged
// speech segments plus the speech ratio (speech frames / total frames). The
// noise floor is taken as the 10th-percentile frame level, which makes the
// threshold adaptive to the recording chain.
func DetectSegments(samples []float64, rate int) (segments []types.Segment, speechRatio float64) {
	segments, speechRatio, _ = analyzeVAD(samples, rate)
	return segments, speechRatio
}

// analyzeVAD is DetectSegments plus the estimated noise floor, which the
// quality gate needs.
func analyzeVAD(samples []float64, rate int) (segments []types.Segment, speechRatio, noiseFloorDB float64) {
	frameLen := rate * vadFrameMS / 1000
	hop := rate * vadHopMS / 1000
	if len(samples) < frameLen {
		return nil, 0, -120
	}

	var feats []frameFeatures
	for off := 0; off+frameLen <= len(samples); off += hop {
		feats = append(feats, measureFrame(samples[off:off+frameLen]))
	}

	floor := noiseFloor(feats)
	speech := make([]bool, len(feats))
	speechCount := 0
	for i, f := range feats {
		speech[i] = f.classify(floor)
		if speech[i] {
			speechCount++
		}
	}

	// Hangover: keep the detector open for a while after the last speech
	// frame so plosive gaps and short pauses stay inside one segment.
	hangFrames := vadHangoverMS / vadHopMS
	for i := len(speech) - 1; i >= 0; i-- {
		if !speech[i] {
			continue
		}
		for j := i + 1; j < len(speech) && j <= i+hangFrames; j++ {
			speech[j] = true
		}
	}

	start := -1
	for i := 0; i <= len(speech); i++ {
		active := i < len(speech) && speech[i]
		switch {
		case active && start < 0:
			start = i
		case !active && start >= 0:
			segments = append(segments, types.Segment{
				StartMS: start * vadHopMS,
				EndMS:   i*vadHopMS + (vadFrameMS - vadHopMS),
			})
			start = -1
		}
	}

	return segments, float64(speechCount) / float64(len(feats)), floor
}

// noiseFloor estimates the background level as the 10th-percentile frame
// level, clamped to the representable floor.
func noiseFloor(feats []frameFeatures) float64 {
	if len(feats) == 0 {
		return -120
	}
	levels := make([]float64, len(feats))
	for i, f := range feats {
		levels[i] = f.dbfs
	}
	sort.Float64s(levels)
	return levels[len(levels)/10]
}

// DetectorEvent is an incremental VAD transition.
type DetectorEvent int

const (
	// EventNone means no state change on this frame.
	EventNone DetectorEvent = iota

	// EventSpeechStart fires on the first speech-classified frame of an
	// utterance.
	EventSpeechStart

	// EventSpeechEnd fires once the hangover elapses after the last
	// speech-classified frame.
	EventSpeechEnd
)

// Detector is the incremental VAD used by streaming sessions. Feed it fixed
// hops of 16 kHz mono samples via [Detector.Push]; it reports utterance
// onset and offset transitions. Not safe for concurrent use — each session
// owns one detector.
type Detector struct {
	rate       int
	frameLen   int
	buf        []float64
	inSpeech   bool
	silentHops int
	floorDB    float64
}

// NewDetector creates a streaming detector for [PipelineRate] audio.
func NewDetector() *Detector {
	return &Detector{
		rate:     PipelineRate,
		frameLen: PipelineRate * vadFrameMS / 1000,
		floorDB:  -60,
	}
}

// Push appends samples and classifies any complete frames. It returns the
// most significant transition observed (start wins over end within one
// call).
func (d *Detector) Push(samples []float64) DetectorEvent {
	d.buf = append(d.buf, samples...)
	hop := d.rate * vadHopMS / 1000
	event := EventNone

	for len(d.buf) >= d.frameLen {
		f := measureFrame(d.buf[:d.frameLen])
		d.buf = d.buf[hop:]

		// Track the noise floor with a slow-rise, fast-fall follower.
		if f.dbfs < d.floorDB {
			d.floorDB = f.dbfs
		} else {
			d.floorDB += 0.1
		}

		if f.classify(d.floorDB) {
			d.silentHops = 0
			if !d.inSpeech {
				d.inSpeech = true
				event = EventSpeechStart
			}
			continue
		}
		if d.inSpeech {
			d.silentHops++
			if d.silentHops*vadHopMS >= vadHangoverMS {
				d.inSpeech = false
				d.silentHops = 0
				if event == EventNone {
					event = EventSpeechEnd
				}
			}
		}
	}
	return event
}

// InSpeech reports whether the detector currently considers the stream to be
// inside an utterance.
func (d *Detector) InSpeech() bool {
	return d.inSpeech
}

// Reset clears all detector state, as when a session buffer is flushed.
func (d *Detector) Reset() {
	d.buf = nil
	d.inSpeech = false
	d.silentHops = 0
	d.floorDB = -60
}
