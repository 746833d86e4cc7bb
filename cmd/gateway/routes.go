package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hubenschmidt/maestro-buddy/gateway/internal/coach"
	"github.com/hubenschmidt/maestro-buddy/gateway/internal/store"
	"github.com/hubenschmidt/maestro-buddy/gateway/internal/trace"
	"github.com/hubenschmidt/maestro-buddy/gateway/internal/tts"
)

const (
	// defaultTraceSessionLimit is how many trace sessions are returned
	// when the caller omits the ?limit= query parameter.
	defaultTraceSessionLimit = 20

	maxBodyBytes = 1 << 20
)

type deps struct {
	store      store.Store
	engines    *coach.Engines
	tts        *tts.Router
	wsHandler  http.Handler
	traceStore *trace.Store
	validate   *validator.Validate
}

// registerRoutes wires all HTTP endpoints to the shared mux.
func registerRoutes(mux *http.ServeMux, d deps) {
	mux.Handle("/api/session/stream", d.wsHandler)
	mux.Handle("/ws/session", d.wsHandler)
	mux.HandleFunc("GET /health", handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/models", d.handleModels)
	mux.HandleFunc("POST /api/session/start", d.handleSessionStart)
	mux.HandleFunc("POST /api/student/update", d.handleStudentUpdate)
	mux.HandleFunc("POST /api/tts", d.handleTTS)
	registerTraceRoutes(mux, d.traceStore)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (d deps) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"coach": map[string]any{
			"engines": d.engines.Names(),
			"default": d.engines.Default(),
		},
		"tts": map[string]any{
			"engines": d.tts.Engines(),
			"default": d.tts.Fallback(),
		},
	})
}

type startSessionRequest struct {
	UID string `json:"uid"`
}

type startSessionResponse struct {
	SessionID  string                `json:"sessionId"`
	UID        string                `json:"uid"`
	Student    *store.StudentProfile `json:"student"`
	QuestState store.QuestState      `json:"questState"`
}

func (d deps) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if !decodeBody(w, r, &req, true) {
		return
	}
	uid := req.UID
	if uid == "" {
		uid = "guest-" + uuid.NewString()[:8]
	}
	sessionID := uuid.NewString()

	student, err := d.store.GetStudent(r.Context(), uid)
	if err != nil {
		slog.Error("load student", "uid", uid, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to start session")
		return
	}

	quest := store.QuestState{
		SessionID: sessionID,
		UID:       uid,
		Quest:     store.DefaultQuest,
		BPM:       store.DefaultBPM,
		Status:    store.QuestIdle,
	}
	err = d.store.SaveSession(r.Context(), store.SessionData{SessionID: sessionID, UID: uid, Student: student, QuestState: quest})
	if err != nil {
		slog.Error("save session", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to start session")
		return
	}

	slog.Info("session started", "session_id", sessionID, "uid", uid)
	writeJSON(w, http.StatusOK, startSessionResponse{SessionID: sessionID, UID: uid, Student: student, QuestState: quest})
}

type updateStudentRequest struct {
	UID string `json:"uid"`
	store.StudentUpdate
}

func (d deps) handleStudentUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateStudentRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	if req.UID == "" {
		writeError(w, http.StatusBadRequest, "UID is required")
		return
	}
	if err := d.validate.Struct(req.StudentUpdate); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	student, err := d.store.UpdateStudent(r.Context(), req.UID, req.StudentUpdate)
	if err != nil {
		slog.Error("update student", "uid", req.UID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update student")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"student": student})
}

type ttsRequest struct {
	Text   string `json:"text"`
	Voice  string `json:"voice"`
	Engine string `json:"engine"`
}

func (d deps) handleTTS(w http.ResponseWriter, r *http.Request) {
	var req ttsRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "Text is required")
		return
	}

	res, err := d.tts.Synthesize(r.Context(), req.Text, req.Voice, req.Engine)
	if err != nil {
		slog.Error("tts", "engine", req.Engine, "error", err)
		writeError(w, http.StatusInternalServerError, "Voice synthesis failed")
		return
	}
	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("X-TTS-Engine", res.Engine)
	w.Header().Set("X-TTS-Latency-Ms", strconv.FormatFloat(res.LatencyMs, 'f', -1, 64))
	w.Write(res.Audio)
}

// decodeBody reads a JSON body into v. With allowEmpty an empty body leaves v zero.
func decodeBody(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || (allowEmpty && errors.Is(err, io.EOF)) {
		return true
	}
	writeError(w, http.StatusBadRequest, "invalid request body")
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func registerTraceRoutes(mux *http.ServeMux, ts *trace.Store) {
	mux.HandleFunc("GET /api/traces/sessions", func(w http.ResponseWriter, r *http.Request) {
		if ts == nil {
			http.Error(w, "tracing disabled", http.StatusNotFound)
			return
		}
		limit := queryInt(r, "limit", defaultTraceSessionLimit)
		offset := queryInt(r, "offset", 0)
		sessions, total, err := ts.ListSessions(r.Context(), limit, offset)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions, "total": total})
	})

	mux.HandleFunc("GET /api/traces/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		if ts == nil {
			http.Error(w, "tracing disabled", http.StatusNotFound)
			return
		}
		sess, runs, err := ts.GetSession(r.Context(), r.PathValue("id"))
		if err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"session": sess, "runs": runs})
	})

	mux.HandleFunc("GET /api/traces/sessions/{id}/runs/{runId}", func(w http.ResponseWriter, r *http.Request) {
		if ts == nil {
			http.Error(w, "tracing disabled", http.StatusNotFound)
			return
		}
		run, spans, err := ts.GetRun(r.Context(), r.PathValue("id"), r.PathValue("runId"))
		if err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"run": run, "spans": spans})
	})
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
