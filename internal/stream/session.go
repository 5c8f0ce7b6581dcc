// Package stream implements the bidirectional streaming session: binary PCM
// frames and JSON control messages in, transcription and comparison events
// out.
//
// Each session is cooperatively single-threaded — one goroutine owns the
// buffer, the VAD state, and the pipeline invocation, so no locks guard the
// session state. Multiple sessions run in parallel and share the kernel's
// worker pool through the pipeline entry points.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/pronunciapa/pronunciapa/internal/kernel"
	"github.com/pronunciapa/pronunciapa/internal/pipeline"
	"github.com/pronunciapa/pronunciapa/pkg/audio"
	"github.com/pronunciapa/pronunciapa/pkg/types"
)

// Buffer limits: the rolling buffer caps at 30 s of audio, and a processing
// episode that falls more than 3 s behind triggers head-dropping in 100 ms
// chunks.
const (
	bufferCapMS    = 30_000
	lagThresholdMS = 3_000
	dropChunkMS    = 100

	bytesPerMS = audio.PipelineRate * 2 / 1000
)

// Status is the session state machine position.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusListening  Status = "listening"
	StatusSpeaking   Status = "speaking"
	StatusProcessing Status = "processing"
	StatusError      Status = "error"
)

// EventType enumerates server→client frames.
type EventType string

const (
	EventReady         EventType = "ready"
	EventState         EventType = "state"
	EventTranscription EventType = "transcription"
	EventComparison    EventType = "comparison"
	EventError         EventType = "error"
	EventPong          EventType = "pong"
)

// Event is one server→client JSON frame. Seq increases monotonically per
// session; events are emitted in FIFO order of utterance completion.
type Event struct {
	Type          EventType                  `json:"type"`
	Seq           int64                      `json:"seq"`
	SessionID     string                     `json:"session_id,omitempty"`
	State         Status                     `json:"state,omitempty"`
	Warning       string                     `json:"warning,omitempty"`
	Transcription *types.TranscriptionReport `json:"transcription,omitempty"`
	Comparison    *types.FullReport          `json:"comparison,omitempty"`
	Error         *pipeline.Envelope         `json:"error,omitempty"`
}

// Control is one client→server JSON frame.
type Control struct {
	// Type is "config", "flush", "reset", or "ping".
	Type string `json:"type"`

	// config fields; zero values leave the current setting unchanged.
	Lang            string                `json:"lang,omitempty"`
	ReferenceText   string                `json:"reference_text,omitempty"`
	CompareMode     types.CompareMode     `json:"compare_mode,omitempty"`
	EvaluationLevel types.EvaluationLevel `json:"evaluation_level,omitempty"`
}

// Evaluator is the slice of the kernel the session drives. Satisfied by
// [kernel.Kernel]; tests substitute fakes.
type Evaluator interface {
	Transcribe(ctx context.Context, data []byte, contentType string, opts types.RunOptions) (types.TranscriptionReport, error)
	Compare(ctx context.Context, data []byte, contentType, targetText string, opts types.RunOptions) (types.FullReport, error)
}

// inbound is one client frame: either PCM or a control message.
type inbound struct {
	pcm  []byte
	ctrl *Control
}

// Session is one streaming connection's state. Create with [NewSession],
// drive with [Session.Run]; push frames with [Session.PushPCM] and
// [Session.PushControl]. All exported Push methods are safe to call from
// the transport goroutine while Run owns everything else.
type Session struct {
	ID string

	eval Evaluator
	send func(Event)

	// Inbound frames queue without bound: PCM arriving while a pipeline
	// invocation runs must be buffered, never dropped. The documented
	// backpressure rule (head-drop after >3 s of backlog, with a lag
	// warning) is the only place audio may be discarded. inCh is a
	// one-slot wakeup signal for the Run loop.
	inMu sync.Mutex
	inQ  []inbound
	inCh chan struct{}

	// Loop-owned state below; only the Run goroutine touches it.
	status    Status
	opts      types.RunOptions
	refText   string
	buf       []byte
	detector  *audio.Detector
	seq       int64
	lagged    bool
	pendingMS int

	// backlogFrames counts inbound PCM frames that queued up while the
	// last pipeline invocation ran; only those count toward the lag rule.
	backlogFrames int
}

// NewSession creates a session that emits events through send. The send
// function must not block for long — the transport's write pump should
// buffer.
func NewSession(eval Evaluator, send func(Event)) *Session {
	return &Session{
		ID:       uuid.NewString(),
		eval:     eval,
		send:     send,
		inCh:     make(chan struct{}, 1),
		status:   StatusIdle,
		opts:     types.DefaultRunOptions(),
		detector: audio.NewDetector(),
	}
}

// PushPCM queues a binary frame of 16 kHz mono s16le samples.
func (s *Session) PushPCM(pcm []byte) {
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	s.push(inbound{pcm: cp})
}

// PushControl queues a parsed control message.
func (s *Session) PushControl(ctrl Control) {
	s.push(inbound{ctrl: &ctrl})
}

// push enqueues a frame and wakes the Run loop.
func (s *Session) push(msg inbound) {
	s.inMu.Lock()
	s.inQ = append(s.inQ, msg)
	s.inMu.Unlock()
	select {
	case s.inCh <- struct{}{}:
	default:
	}
}

// pop dequeues the oldest frame, if any.
func (s *Session) pop() (inbound, bool) {
	s.inMu.Lock()
	defer s.inMu.Unlock()
	if len(s.inQ) == 0 {
		return inbound{}, false
	}
	msg := s.inQ[0]
	s.inQ = s.inQ[1:]
	return msg, true
}

// queueLen reports how many frames are waiting.
func (s *Session) queueLen() int {
	s.inMu.Lock()
	defer s.inMu.Unlock()
	return len(s.inQ)
}

// PushRawControl parses and queues a JSON control frame.
func (s *Session) PushRawControl(data []byte) error {
	var ctrl Control
	if err := json.Unmarshal(data, &ctrl); err != nil {
		return err
	}
	s.PushControl(ctrl)
	return nil
}

// Run drives the session until ctx is cancelled. Closing the transport
// cancels in-flight pipeline work; no events are emitted afterwards.
func (s *Session) Run(ctx context.Context) {
	s.emit(Event{Type: EventReady, SessionID: s.ID, State: s.status})
	for {
		if ctx.Err() != nil {
			return
		}
		msg, ok := s.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-s.inCh:
			}
			continue
		}
		if msg.ctrl != nil {
			if done := s.handleControl(ctx, *msg.ctrl); done {
				return
			}
			continue
		}
		s.handlePCM(ctx, msg.pcm)
	}
}

// handleControl applies one control message.
func (s *Session) handleControl(ctx context.Context, ctrl Control) bool {
	switch ctrl.Type {
	case "config":
		s.applyConfig(ctrl)
		if s.status == StatusIdle {
			s.transition(StatusListening)
		}
	case "flush":
		if len(s.buf) > 0 && s.status != StatusError {
			s.process(ctx)
		}
	case "reset":
		s.buf = nil
		s.detector.Reset()
		s.lagged = false
		s.pendingMS = 0
		s.transition(StatusIdle)
	case "ping":
		s.emit(Event{Type: EventPong})
	default:
		slog.Debug("stream: unknown control type", "session", s.ID, "type", ctrl.Type)
	}
	return false
}

// applyConfig merges the recognized config fields into the run options.
func (s *Session) applyConfig(ctrl Control) {
	if ctrl.Lang != "" {
		s.opts.Lang = ctrl.Lang
	}
	if ctrl.ReferenceText != "" {
		s.refText = ctrl.ReferenceText
	}
	if ctrl.CompareMode != "" && ctrl.CompareMode.IsValid() {
		s.opts.CompareMode = ctrl.CompareMode
	}
	if ctrl.EvaluationLevel != "" && ctrl.EvaluationLevel.IsValid() {
		s.opts.EvaluationLevel = ctrl.EvaluationLevel
	}
}

// handlePCM appends a frame, updates VAD state, and finalizes the utterance
// on a speech offset. Frames arriving before the first config message are
// buffered but not segmented.
func (s *Session) handlePCM(ctx context.Context, pcm []byte) {
	if s.status == StatusError {
		return
	}

	backlog := s.backlogFrames > 0
	if backlog {
		s.backlogFrames--
	}
	s.append(pcm, backlog)
	if s.status == StatusIdle {
		return
	}

	samples := (&audio.Buffer{PCM: pcm, SampleRate: audio.PipelineRate, Channels: 1}).Samples()
	switch s.detector.Push(samples) {
	case audio.EventSpeechStart:
		if s.status == StatusListening {
			s.transition(StatusSpeaking)
		}
	case audio.EventSpeechEnd:
		if s.status == StatusSpeaking {
			s.process(ctx)
		}
	}
}

// append adds PCM to the rolling buffer, enforcing the 30 s cap and the lag
// policy: once more than 3 s of audio queues up behind a pipeline
// invocation, the buffer head is dropped in 100 ms chunks and a lag warning
// is emitted. Frames that arrive while the session keeps up reset the lag
// accounting.
func (s *Session) append(pcm []byte, backlog bool) {
	s.buf = append(s.buf, pcm...)
	if backlog {
		s.pendingMS += len(pcm) / bytesPerMS
	} else {
		s.pendingMS = 0
	}

	drop := 0
	if over := len(s.buf) - bufferCapMS*bytesPerMS; over > 0 {
		drop = over
	}
	if s.pendingMS > lagThresholdMS {
		drop = max(drop, dropChunkMS*bytesPerMS)
	}
	if drop > 0 {
		// Round the drop up to whole 100 ms chunks.
		chunks := (drop + dropChunkMS*bytesPerMS - 1) / (dropChunkMS * bytesPerMS)
		drop = min(chunks*dropChunkMS*bytesPerMS, len(s.buf))
		s.buf = s.buf[drop:]
		if !s.lagged {
			s.lagged = true
			s.emit(Event{Type: EventState, State: s.status, Warning: "lag"})
		}
	}
}

// process runs the pipeline on the buffered utterance and emits the
// transcription (and comparison, when a reference is configured) events.
func (s *Session) process(ctx context.Context) {
	s.transition(StatusProcessing)

	segment := &audio.Buffer{PCM: s.buf, SampleRate: audio.PipelineRate, Channels: 1}
	wav := audio.WrapWAV(segment)
	s.buf = nil
	s.detector.Reset()
	s.lagged = false
	s.pendingMS = 0

	runCtx, cancel := context.WithTimeout(ctx, kernel.StreamDeadline)
	defer cancel()
	defer func() {
		// Frames that queued while the pipeline ran are backlog for the
		// lag accounting.
		s.backlogFrames = s.queueLen()
	}()

	if s.refText != "" {
		report, err := s.eval.Compare(runCtx, wav, "audio/wav", s.refText, s.opts)
		if err != nil {
			s.fail(ctx, err)
			return
		}
		s.emit(Event{Type: EventTranscription, Transcription: &report.TranscriptionReport})
		s.emit(Event{Type: EventComparison, Comparison: &report})
	} else {
		report, err := s.eval.Transcribe(runCtx, wav, "audio/wav", s.opts)
		if err != nil {
			s.fail(ctx, err)
			return
		}
		s.emit(Event{Type: EventTranscription, Transcription: &report})
	}

	s.transition(StatusListening)
}

// fail moves the session to the error state. Cancellation emits nothing —
// the transport is gone.
func (s *Session) fail(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return
	}
	envelope := pipeline.AsError(err).Envelope()
	slog.Error("stream: pipeline failed", "session", s.ID, "type", envelope.Type, "detail", envelope.Detail)
	s.emit(Event{Type: EventError, Error: &envelope})
	s.transition(StatusError)
}

// transition changes status and emits a state event.
func (s *Session) transition(next Status) {
	if s.status == next {
		return
	}
	s.status = next
	s.emit(Event{Type: EventState, State: next})
}

// emit stamps the next sequence number and hands the event to the
// transport.
func (s *Session) emit(ev Event) {
	s.seq++
	ev.Seq = s.seq
	s.send(ev)
}

// Status returns the loop-owned status; only meaningful from the Run
// goroutine or after Run returns. Exposed for tests.
func (s *Session) Status() Status {
	return s.status
}
