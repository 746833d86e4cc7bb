package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hubenschmidt/maestro-buddy/gateway/internal/metrics"
	"github.com/hubenschmidt/maestro-buddy/gateway/internal/session"
	"github.com/hubenschmidt/maestro-buddy/gateway/internal/store"
)

const (
	defaultMaxConcurrent = 200
	maxFrameBytes        = 4 << 20
	writeTimeout         = 10 * time.Second
	closeTimeout         = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16384,
	WriteBufferSize: 16384,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandlerConfig holds what every coaching socket shares.
type HandlerConfig struct {
	Registry      *session.Registry
	Flusher       session.Flusher
	Store         store.Store
	MaxConcurrent int
	// FlushAfter sends a partial window after this much metric silence.
	// Zero disables it.
	FlushAfter time.Duration
}

// Handler manages coaching sockets with admission control.
type Handler struct {
	cfg HandlerConfig
	sem chan struct{}
}

// NewHandler creates a WebSocket handler with a concurrency limit.
func NewHandler(cfg HandlerConfig) *Handler {
	maxConc := cfg.MaxConcurrent
	if maxConc <= 0 {
		maxConc = defaultMaxConcurrent
	}
	return &Handler{
		cfg: cfg,
		sem: make(chan struct{}, maxConc),
	}
}

// ServeHTTP upgrades the connection and runs the session loop.
// Returns 503 if at max concurrent session capacity.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case h.sem <- struct{}{}:
		defer func() { <-h.sem }()
	default:
		metrics.SessionsRejected.Inc()
		http.Error(w, "at capacity", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxFrameBytes)

	metrics.SessionsActive.Inc()
	metrics.SessionsTotal.Inc()
	defer metrics.SessionsActive.Dec()

	h.runSession(r.Context(), conn)
}

// runSession owns the connection until the client leaves or parent ends.
// The server's base context reaches hijacked connections through parent.
func (h *Handler) runSession(parent context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	slog.Info("socket connected", "remote", conn.RemoteAddr().String())

	frames := make(chan []byte)
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		readFrames(ctx, conn, frames)
	}()

	out := newEventSender(conn)
	var st session.State
	defer func() {
		cancel()
		conn.Close()
		<-readerDone
		st.Close()
		h.markIdle(st.SessionID)
		slog.Info("socket closed", "session_id", st.SessionID)
	}()

	var idle *time.Timer
	var idleC <-chan time.Time
	if h.cfg.FlushAfter > 0 && h.cfg.Flusher != nil {
		idle = time.NewTimer(h.cfg.FlushAfter)
		idle.Stop()
		defer idle.Stop()
	}
	rearm := func() {
		if idle == nil {
			return
		}
		if len(st.Metrics) == 0 {
			idle.Stop()
			idleC = nil
			return
		}
		idle.Reset(h.cfg.FlushAfter)
		idleC = idle.C
	}

	for {
		select {
		case data, ok := <-frames:
			if !ok {
				return
			}
			buffered := len(st.Metrics)
			st = h.handleFrame(ctx, out, st, data)
			if len(st.Metrics) != buffered {
				rearm()
			}
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(closeTimeout))
			return
		case <-idleC:
			idleC = nil
			st = h.cfg.Flusher.Flush(ctx, out, st, session.TriggerIdle)
		}
	}
}

// handleFrame decodes one text frame and routes it. A handler panic drops
// the frame and leaves the previous state in place.
func (h *Handler) handleFrame(ctx context.Context, out session.Sender, st session.State, data []byte) (next session.State) {
	next = st
	defer func() {
		if r := recover(); r != nil {
			metrics.Errors.WithLabelValues("session", "panic").Inc()
			slog.Error("frame handler panic", "session_id", st.SessionID, "panic", r)
			next = st
		}
	}()

	var msg session.ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		metrics.FramesDropped.WithLabelValues("malformed").Inc()
		slog.Warn("malformed frame", "session_id", st.SessionID, "error", err)
		return st
	}
	handler, ok := h.cfg.Registry.Lookup(msg.Type)
	if !ok {
		metrics.FramesDropped.WithLabelValues("unknown_type").Inc()
		slog.Warn("unknown frame type", "session_id", st.SessionID, "type", msg.Type)
		return st
	}
	metrics.Frames.WithLabelValues(msg.Type).Inc()
	return handler.Handle(ctx, out, st, msg)
}

func (h *Handler) markIdle(sessionID string) {
	if h.cfg.Store == nil || sessionID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	err := store.UpdateQuest(ctx, h.cfg.Store, sessionID, func(q *store.QuestState) {
		q.Status = store.QuestIdle
	})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		slog.Warn("mark quest idle", "session_id", sessionID, "error", err)
	}
}

// readFrames forwards text frames until the connection fails or ctx ends.
// Binary frames are dropped.
func readFrames(ctx context.Context, conn *websocket.Conn, frames chan<- []byte) {
	defer close(frames)
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			slog.Info("connection closed", "error", err)
			return
		}
		if msgType != websocket.TextMessage {
			metrics.FramesDropped.WithLabelValues("binary").Inc()
			slog.Warn("non-text frame dropped", "message_type", msgType)
			continue
		}
		select {
		case frames <- data:
		case <-ctx.Done():
			return
		}
	}
}

// newEventSender serializes writes: the live bridge sends from its own goroutine.
func newEventSender(conn *websocket.Conn) session.Sender {
	var mu sync.Mutex
	return session.SenderFunc(func(msg session.ServerMessage) error {
		mu.Lock()
		defer mu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return conn.WriteJSON(msg)
	})
}
