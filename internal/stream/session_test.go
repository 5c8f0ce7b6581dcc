package stream_test

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/pronunciapa/pronunciapa/internal/stream"
	"github.com/pronunciapa/pronunciapa/pkg/types"
)

// fakeEval scores against the reference text without touching real audio.
type fakeEval struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeEval) Transcribe(ctx context.Context, data []byte, contentType string, opts types.RunOptions) (types.TranscriptionReport, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return types.TranscriptionReport{
		IPA:    "o l a",
		Tokens: types.NewTokenSequence([]string{"o", "l", "a"}),
		Lang:   opts.Lang,
	}, nil
}

func (f *fakeEval) Compare(ctx context.Context, data []byte, contentType, targetText string, opts types.RunOptions) (types.FullReport, error) {
	tr, _ := f.Transcribe(ctx, data, contentType, opts)
	score := 100.0
	if targetText != "hola" {
		score = 20
	}
	return types.FullReport{
		TranscriptionReport: tr,
		TargetIPA:           "o l a",
		Compare:             types.CompareReport{Score: score},
	}, nil
}

// collector gathers emitted events.
type collector struct {
	mu     sync.Mutex
	events []stream.Event
}

func (c *collector) send(ev stream.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *collector) snapshot() []stream.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]stream.Event, len(c.events))
	copy(out, c.events)
	return out
}

func (c *collector) ofType(t stream.EventType) []stream.Event {
	var out []stream.Event
	for _, ev := range c.snapshot() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// tonePCM builds 16 kHz mono s16le PCM: a 200 Hz tone at the given
// amplitude.
func tonePCM(amp float64, durationMS int) []byte {
	n := 16000 * durationMS / 1000
	out := make([]byte, n*2)
	for i := range n {
		v := int16(math.Round(amp * 32767 * math.Sin(2*math.Pi*200*float64(i)/16000)))
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// waitFor polls until cond is true or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func startSession(t *testing.T) (*stream.Session, *collector, context.CancelFunc) {
	t.Helper()
	c := &collector{}
	s := stream.NewSession(&fakeEval{}, c.send)
	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	return s, c, cancel
}

func TestSession_ReadyAndPong(t *testing.T) {
	t.Parallel()

	s, c, cancel := startSession(t)
	defer cancel()

	waitFor(t, func() bool { return len(c.ofType(stream.EventReady)) == 1 })
	s.PushControl(stream.Control{Type: "ping"})
	waitFor(t, func() bool { return len(c.ofType(stream.EventPong)) == 1 })
}

func TestSession_TwoUtterances(t *testing.T) {
	t.Parallel()

	s, c, cancel := startSession(t)
	defer cancel()

	s.PushControl(stream.Control{Type: "config", Lang: "es", ReferenceText: "hola"})

	// First utterance: 1 s of tone, then enough silence for the hangover.
	s.PushPCM(tonePCM(0.5, 1000))
	s.PushPCM(tonePCM(0, 500))
	waitFor(t, func() bool { return len(c.ofType(stream.EventComparison)) == 1 })

	// Second utterance.
	s.PushPCM(tonePCM(0.5, 1000))
	s.PushPCM(tonePCM(0, 500))
	waitFor(t, func() bool { return len(c.ofType(stream.EventComparison)) == 2 })

	transcriptions := c.ofType(stream.EventTranscription)
	if len(transcriptions) != 2 {
		t.Fatalf("transcription events = %d, want 2", len(transcriptions))
	}

	// Seq values must increase monotonically across all events.
	events := c.snapshot()
	for i := 1; i < len(events); i++ {
		if events[i].Seq <= events[i-1].Seq {
			t.Fatalf("seq not monotonic at %d: %d then %d", i, events[i-1].Seq, events[i].Seq)
		}
	}
}

func TestSession_FlushForcesFinalization(t *testing.T) {
	t.Parallel()

	s, c, cancel := startSession(t)
	defer cancel()

	s.PushControl(stream.Control{Type: "config", Lang: "es", ReferenceText: "hola"})
	// Tone with no trailing silence: only flush can finalize.
	s.PushPCM(tonePCM(0.5, 600))
	s.PushControl(stream.Control{Type: "flush"})

	waitFor(t, func() bool { return len(c.ofType(stream.EventComparison)) == 1 })
}

func TestSession_TranscriptionOnlyWithoutReference(t *testing.T) {
	t.Parallel()

	s, c, cancel := startSession(t)
	defer cancel()

	s.PushControl(stream.Control{Type: "config", Lang: "es"})
	s.PushPCM(tonePCM(0.5, 600))
	s.PushControl(stream.Control{Type: "flush"})

	waitFor(t, func() bool { return len(c.ofType(stream.EventTranscription)) == 1 })
	if got := c.ofType(stream.EventComparison); len(got) != 0 {
		t.Errorf("comparison events = %d, want 0 without a reference text", len(got))
	}
}

func TestSession_ResetReturnsToIdle(t *testing.T) {
	t.Parallel()

	s, c, cancel := startSession(t)
	defer cancel()

	s.PushControl(stream.Control{Type: "config", Lang: "es"})
	s.PushPCM(tonePCM(0.5, 300))
	s.PushControl(stream.Control{Type: "reset"})

	waitFor(t, func() bool {
		states := c.ofType(stream.EventState)
		return len(states) > 0 && states[len(states)-1].State == stream.StatusIdle
	})

	// After reset, a flush with the (now empty) buffer emits nothing new.
	before := len(c.ofType(stream.EventTranscription))
	s.PushControl(stream.Control{Type: "flush"})
	s.PushControl(stream.Control{Type: "ping"})
	waitFor(t, func() bool { return len(c.ofType(stream.EventPong)) == 1 })
	if got := len(c.ofType(stream.EventTranscription)); got != before {
		t.Errorf("transcriptions after reset+flush = %d, want %d", got, before)
	}
}

func TestSession_StateTransitions(t *testing.T) {
	t.Parallel()

	s, c, cancel := startSession(t)
	defer cancel()

	s.PushControl(stream.Control{Type: "config", Lang: "es"})
	s.PushPCM(tonePCM(0.5, 1000))
	s.PushPCM(tonePCM(0, 500))

	waitFor(t, func() bool { return len(c.ofType(stream.EventTranscription)) == 1 })

	var seen []stream.Status
	for _, ev := range c.ofType(stream.EventState) {
		seen = append(seen, ev.State)
	}
	want := []stream.Status{stream.StatusListening, stream.StatusSpeaking, stream.StatusProcessing, stream.StatusListening}
	if len(seen) < len(want) {
		t.Fatalf("state events = %v, want at least %v", seen, want)
	}
	for i, st := range want {
		if seen[i] != st {
			t.Fatalf("state[%d] = %s, want %s (all: %v)", i, seen[i], st, seen)
		}
	}
}
