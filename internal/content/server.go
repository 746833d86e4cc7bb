package content

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
)

// Request is the body of POST /mcp/execute.
type Request struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// Server answers content tool calls from the catalog.
type Server struct {
	catalog *Catalog
	tools   map[string]func(args map[string]any) any
}

// NewServer creates a content server backed by catalog.
func NewServer(catalog *Catalog) *Server {
	s := &Server{catalog: catalog}
	s.tools = map[string]func(map[string]any) any{
		"get_rhythm_exercises": s.rhythmExercises,
		"get_music_fact":       s.musicFact,
		"get_theory_lesson":    s.theoryLesson,
	}
	return s
}

// Register mounts the content routes on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /mcp/execute", s.handleExecute)
}

// Handler returns a mux serving only the content routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"component":      "mcp-gateway",
		"exercisesCount": len(s.catalog.Exercises),
	})
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	slog.Info("content tool", "tool", req.Tool, "args", req.Args)

	fn, ok := s.tools[req.Tool]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Tool not found"})
		return
	}
	if req.Args == nil {
		req.Args = map[string]any{}
	}
	writeJSON(w, http.StatusOK, fn(req.Args))
}

func (s *Server) rhythmExercises(args map[string]any) any {
	level := intArg(args, "level", 1)
	style, _ := args["style"].(string)
	return s.catalog.ExercisesFor(level, style)
}

func (s *Server) musicFact(map[string]any) any {
	return map[string]string{"fact": s.catalog.RandomFact()}
}

func (s *Server) theoryLesson(args map[string]any) any {
	topic, _ := args["topic"].(string)
	if topic == "" {
		topic = DefaultTopic
	}
	return map[string]string{"topic": topic, "lesson": s.catalog.Lesson(topic)}
}

// intArg reads a numeric argument that a model may send as a number or a string.
func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		if v > 0 {
			return int(math.Floor(v))
		}
	case string:
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write json response", "error", err)
	}
}
