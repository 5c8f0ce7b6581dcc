package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/pronunciapa/pronunciapa/internal/observe"
)

// eventQueueDepth buffers outbound events between the session loop and the
// websocket write pump.
const eventQueueDepth = 64

// Handler serves the bidirectional streaming transport: binary frames carry
// 16 kHz mono s16le PCM, text frames carry JSON control messages, and the
// server replies with JSON event frames.
type Handler struct {
	eval    Evaluator
	metrics *observe.Metrics
}

// NewHandler creates the websocket handler backed by eval (normally the
// kernel).
func NewHandler(eval Evaluator) *Handler {
	return &Handler{eval: eval, metrics: observe.Default()}
}

// ServeHTTP upgrades the connection and runs the session until either side
// closes. Closing the transport cancels any in-flight pipeline invocation;
// partial results are discarded.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("stream: websocket accept failed", "err", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "session terminated")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	h.metrics.ActiveSessions.Add(ctx, 1)
	defer h.metrics.ActiveSessions.Add(ctx, -1)

	events := make(chan Event, eventQueueDepth)
	session := NewSession(h.eval, func(ev Event) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	})
	slog.Info("stream: session opened", "session", session.ID, "remote", r.RemoteAddr)

	// Write pump: serialize events onto the socket.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-events:
				if err := writeEvent(ctx, conn, ev); err != nil {
					slog.Debug("stream: write failed, closing", "session", session.ID, "err", err)
					cancel()
					return
				}
			}
		}
	}()

	// Session loop.
	go session.Run(ctx)

	// Read pump: owns the connection lifetime.
	h.readLoop(ctx, conn, session)
	cancel()

	slog.Info("stream: session closed", "session", session.ID)
	conn.Close(websocket.StatusNormalClosure, "bye")
}

// readLoop forwards inbound frames until the connection drops.
func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, session *Session) {
	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || errors.Is(err, context.Canceled) {
				return
			}
			slog.Debug("stream: read failed", "session", session.ID, "err", err)
			return
		}
		switch msgType {
		case websocket.MessageBinary:
			session.PushPCM(data)
		case websocket.MessageText:
			if err := session.PushRawControl(data); err != nil {
				slog.Warn("stream: malformed control frame", "session", session.ID, "err", err)
			}
		}
	}
}

func encodeEvent(w io.Writer, ev Event) error {
	return json.NewEncoder(w).Encode(ev)
}

func writeEvent(ctx context.Context, conn *websocket.Conn, ev Event) error {
	w, err := conn.Writer(ctx, websocket.MessageText)
	if err != nil {
		return err
	}
	if err := encodeEvent(w, ev); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}
