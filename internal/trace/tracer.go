package trace

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hubenschmidt/maestro-buddy/gateway/internal/metrics"
)

const (
	maxIOLen     = 500
	bufferSize   = 64
	writeTimeout = 5 * time.Second
)

type traceMsg struct {
	kind string // "session_create", "session_end", "run_create", "run_update", "span"
	at   time.Time
	// run fields
	runID      string
	trigger    string
	durationMs float64
	window     string
	feedback   string
	status     string
	// span fields
	span Span
}

// Tracer writes trace data asynchronously via a buffered channel.
// All methods are nil-safe (no-op on nil receiver). When the buffer is full
// records are dropped rather than blocking the socket loop.
type Tracer struct {
	store     *Store
	sessionID string
	metadata  string
	ch        chan traceMsg
	done      chan struct{}
	closeOnce sync.Once
}

// NewTracer creates a tracer bound to a session and records the session start.
// It returns nil when store is nil. Must call Close when done.
func NewTracer(store *Store, sessionID, metadata string) *Tracer {
	if store == nil {
		return nil
	}
	t := &Tracer{
		store:     store,
		sessionID: sessionID,
		metadata:  metadata,
		ch:        make(chan traceMsg, bufferSize),
		done:      make(chan struct{}),
	}
	go t.drain()
	t.enqueue(traceMsg{kind: "session_create", at: time.Now()})
	return t
}

func (t *Tracer) drain() {
	defer close(t.done)
	for msg := range t.ch {
		t.handle(msg)
	}
}

func (t *Tracer) handle(m traceMsg) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	handlers := map[string]func() error{
		"session_create": func() error { return t.store.CreateSession(ctx, t.sessionID, t.metadata, m.at) },
		"session_end":    func() error { return t.store.EndSession(ctx, t.sessionID, m.at) },
		"run_create":     func() error { return t.store.CreateRun(ctx, m.runID, t.sessionID, m.trigger, m.at) },
		"run_update":     func() error { return t.store.UpdateRun(ctx, m.runID, m.durationMs, m.window, m.feedback, m.status) },
		"span":           func() error { return t.store.CreateSpan(ctx, m.span) },
	}
	fn, ok := handlers[m.kind]
	if !ok {
		return
	}
	if err := fn(); err != nil {
		slog.Warn("trace write failed", "kind", m.kind, "session_id", t.sessionID, "error", err)
	}
}

func (t *Tracer) enqueue(m traceMsg) {
	select {
	case t.ch <- m:
	default:
		metrics.Errors.WithLabelValues("trace", "buffer_full").Inc()
		slog.Warn("trace buffer full, dropping", "kind", m.kind, "session_id", t.sessionID)
	}
}

// SessionID returns the session the tracer is bound to.
func (t *Tracer) SessionID() string {
	if t == nil {
		return ""
	}
	return t.sessionID
}

// StartRun begins a new run for one metrics window and returns its ID.
func (t *Tracer) StartRun(trigger string) string {
	if t == nil {
		return ""
	}
	id := uuid.NewString()
	t.enqueue(traceMsg{kind: "run_create", runID: id, trigger: trigger, at: time.Now()})
	return id
}

// EndRun finalizes a run.
func (t *Tracer) EndRun(runID string, durationMs float64, window, feedback, status string) {
	if t == nil {
		return
	}
	t.enqueue(traceMsg{
		kind:       "run_update",
		runID:      runID,
		durationMs: durationMs,
		window:     truncate(window, maxIOLen),
		feedback:   truncate(feedback, maxIOLen),
		status:     status,
	})
}

// RecordSpan records a completed span.
func (t *Tracer) RecordSpan(runID, name string, startedAt time.Time, durationMs float64, input, output, status, errMsg string) {
	if t == nil {
		return
	}
	t.enqueue(traceMsg{
		kind: "span",
		span: Span{
			ID:         uuid.NewString(),
			RunID:      runID,
			Name:       name,
			StartedAt:  startedAt,
			DurationMs: durationMs,
			Input:      truncate(input, maxIOLen),
			Output:     truncate(output, maxIOLen),
			Status:     status,
			Error:      errMsg,
		},
	})
}

// Close records the session end, drains pending writes and shuts down the
// background goroutine. Safe to call more than once.
func (t *Tracer) Close() {
	if t == nil {
		return
	}
	t.closeOnce.Do(func() {
		t.enqueue(traceMsg{kind: "session_end", at: time.Now()})
		close(t.ch)
		<-t.done
	})
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
