package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/hubenschmidt/maestro-buddy/gateway/internal/coach"
	"github.com/hubenschmidt/maestro-buddy/gateway/internal/metrics"
	"github.com/hubenschmidt/maestro-buddy/gateway/internal/store"
)

// MetricsHandler buffers timing metrics and sends each full window to the coach.
type MetricsHandler struct {
	deps Deps
}

// NewMetricsHandler creates the metrics handler.
func NewMetricsHandler(d Deps) *MetricsHandler {
	return &MetricsHandler{deps: d}
}

func (h *MetricsHandler) Type() string { return TypeMetrics }

// Handle appends the metric and flushes once BatchSize metrics are buffered.
// Before auth the metric is dropped.
func (h *MetricsHandler) Handle(ctx context.Context, out Sender, st State, msg ClientMessage) State {
	if !st.Authenticated() {
		metrics.FramesDropped.WithLabelValues("unauthenticated").Inc()
		return st
	}
	if msg.Metrics != nil {
		st.Metrics = append(st.Metrics, *msg.Metrics)
	}
	if len(st.Metrics) < BatchSize {
		return st
	}
	return h.Flush(ctx, out, st, TriggerThreshold)
}

// Flush sends the whole buffer to the coach, dispatches the tool call, writes
// one feedback frame and returns the state with an empty buffer.
func (h *MetricsHandler) Flush(ctx context.Context, out Sender, st State, trigger string) State {
	if !st.Authenticated() || len(st.Metrics) == 0 {
		return st
	}
	batch := st.Metrics
	windowStart := time.Now()
	runID := st.Tracer.StartRun(trigger)
	metrics.Windows.WithLabelValues(trigger).Inc()
	slog.Info("processing metrics window", "session_id", st.SessionID, "size", len(batch), "trigger", trigger)

	window, _ := json.Marshal(batch)

	coachCtx, cancel := withTimeout(ctx, h.deps.CoachTimeout)
	coachStart := time.Now()
	fb := st.Coach.ProcessMetrics(coachCtx, batch)
	cancel()
	coachDur := time.Since(coachStart)
	metrics.StageDuration.WithLabelValues("coach").Observe(coachDur.Seconds())
	st.Tracer.RecordSpan(runID, "coach", coachStart, ms(coachDur), string(window), fb.Text, "ok", "")

	env := ServerMessage{Type: TypeFeedback, Content: fb.Text}
	if fb.ToolTrace != nil {
		tt := *fb.ToolTrace
		env.ToolTrace = &tt
		if tt.Status == coach.StatusSuccess {
			h.dispatch(ctx, st, &env, runID)
		}
		metrics.ToolCalls.WithLabelValues(toolLabel(tt.Tool), string(env.ToolTrace.Status)).Inc()
	}

	status := "ok"
	if err := out.Send(env); err != nil {
		status = "send_error"
		slog.Warn("send feedback", "session_id", st.SessionID, "error", err)
	}
	st.Tracer.EndRun(runID, ms(time.Since(windowStart)), string(window), fb.Text, status)

	st.Metrics = nil
	return st
}

// dispatch resolves a successful tool call into the envelope's side payload.
func (h *MetricsHandler) dispatch(ctx context.Context, st State, env *ServerMessage, runID string) {
	tt := env.ToolTrace
	start := time.Now()
	kind := coach.KindOf(tt.Tool)

	switch kind {
	case coach.KindRemote:
		if h.deps.Content == nil {
			tt.Status = coach.StatusError
			slog.Warn("content gateway not configured", "tool", tt.Tool)
			break
		}
		cctx, cancel := withTimeout(ctx, h.deps.ContentTimeout)
		raw, err := h.deps.Content.Execute(cctx, tt.Tool, tt.Args)
		cancel()
		if err != nil {
			tt.Status = coach.StatusError
			metrics.Errors.WithLabelValues("content", "execute").Inc()
			slog.Error("content tool failed", "session_id", st.SessionID, "tool", tt.Tool, "error", err)
			st.Tracer.RecordSpan(runID, "tool", start, ms(time.Since(start)), tt.Tool, "", string(tt.Status), err.Error())
			return
		}
		env.MCPResult = raw
		st.Tracer.RecordSpan(runID, "tool", start, ms(time.Since(start)), tt.Tool, string(raw), string(tt.Status), "")

	case coach.KindLocal:
		env.StateUpdate = &StateUpdate{Tool: tt.Tool, Args: tt.Args}
		if tt.Tool == string(coach.ToolSetMetronome) {
			h.persistBPM(ctx, st.SessionID, tt.Args)
		}
		st.Tracer.RecordSpan(runID, "tool", start, 0, tt.Tool, "stateUpdate", string(tt.Status), "")

	default:
		st.Tracer.RecordSpan(runID, "tool", start, 0, tt.Tool, kind.String(), string(tt.Status), "")
	}
}

func (h *MetricsHandler) persistBPM(ctx context.Context, sessionID string, args map[string]any) {
	if h.deps.Store == nil {
		return
	}
	bpm, ok := numberArg(args["bpm"])
	if !ok || bpm <= 0 {
		return
	}
	err := store.UpdateQuest(ctx, h.deps.Store, sessionID, func(q *store.QuestState) { q.BPM = bpm })
	if err != nil {
		slog.Debug("persist metronome bpm", "session_id", sessionID, "error", err)
	}
}

// toolLabel bounds the tool label to declared names.
func toolLabel(name string) string {
	if kind := coach.KindOf(name); kind == coach.KindUnknown {
		return kind.String()
	}
	return name
}

func numberArg(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
