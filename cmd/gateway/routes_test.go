package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubenschmidt/maestro-buddy/gateway/internal/coach"
	"github.com/hubenschmidt/maestro-buddy/gateway/internal/store"
	"github.com/hubenschmidt/maestro-buddy/gateway/internal/trace"
	"github.com/hubenschmidt/maestro-buddy/gateway/internal/tts"
)

type testEnv struct {
	mux   *http.ServeMux
	store *store.FileStore
}

func newTestEnv(t *testing.T, traces *trace.Store) *testEnv {
	t.Helper()
	fs, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)

	speech := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("RIFF-audio"))
	}))
	t.Cleanup(speech.Close)

	mux := http.NewServeMux()
	registerRoutes(mux, deps{
		store:      fs,
		engines:    coach.NewEngines(nil, coach.EngineOffline),
		tts:        tts.NewRouter(map[string]tts.Synthesizer{tts.EnginePiper: tts.NewPiper(speech.URL, "v", speech.Client())}, tts.EnginePiper),
		wsHandler:  http.NotFoundHandler(),
		traceStore: traces,
		validate:   validator.New(),
	})
	return &testEnv{mux: mux, store: fs}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t, nil)
	rec := e.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestSessionStartGuest(t *testing.T) {
	e := newTestEnv(t, nil)
	rec := e.do(http.MethodPost, "/api/session/start", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[startSessionResponse](t, rec)
	assert.True(t, strings.HasPrefix(resp.UID, "guest-"))
	assert.Len(t, resp.UID, len("guest-")+8)
	assert.NotEmpty(t, resp.SessionID)
	require.NotNil(t, resp.Student)
	assert.Equal(t, "encouraging", resp.Student.Preferences.CoachStyle)
	assert.Equal(t, store.QuestState{
		SessionID: resp.SessionID,
		UID:       resp.UID,
		Quest:     "rhythm",
		BPM:       80,
		Status:    store.QuestIdle,
	}, resp.QuestState)

	saved, err := e.store.GetSession(context.Background(), resp.SessionID)
	require.NoError(t, err)
	assert.Equal(t, resp.QuestState, saved.QuestState)
}

func TestSessionStartKnownUID(t *testing.T) {
	e := newTestEnv(t, nil)
	rec := e.do(http.MethodPost, "/api/session/start", `{"uid":"kid-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "kid-1", decode[startSessionResponse](t, rec).UID)

	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/api/session/start", `{"uid":`).Code)
}

func TestStudentUpdate(t *testing.T) {
	e := newTestEnv(t, nil)
	rec := e.do(http.MethodPost, "/api/student/update",
		`{"uid":"kid-1","onboardingCompleted":true,"preferences":{"coach_style":"playful"},"character":{"color":"#FF0000"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[struct {
		Student store.StudentProfile `json:"student"`
	}](t, rec)
	assert.True(t, resp.Student.OnboardingCompleted)
	assert.Equal(t, "playful", resp.Student.Preferences.CoachStyle)
	assert.Equal(t, 1, resp.Student.Preferences.Difficulty)
	assert.Equal(t, "#FF0000", resp.Student.Character.Color)
	assert.Equal(t, "round", resp.Student.Character.EyeStyle)
	assert.NotNil(t, resp.Student.UpdatedAt)
}

func TestStudentUpdateRejects(t *testing.T) {
	e := newTestEnv(t, nil)
	cases := map[string]string{
		"missing uid": `{"onboardingCompleted":true}`,
		"bad style":   `{"uid":"kid","preferences":{"coach_style":"grumpy"}}`,
		"hard mode":   `{"uid":"kid","preferences":{"difficulty":9}}`,
		"broken json": `{"uid":`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := e.do(http.MethodPost, "/api/student/update", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, decode[map[string]string](t, rec), "error")
		})
	}
}

func TestTTS(t *testing.T) {
	e := newTestEnv(t, nil)

	rec := e.do(http.MethodPost, "/api/tts", `{"text":"Great job!"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/wav", rec.Header().Get("Content-Type"))
	assert.Equal(t, "RIFF-audio", rec.Body.String())

	rec = e.do(http.MethodPost, "/api/tts", `{"text":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Text is required"}`, rec.Body.String())
}

func TestTTSBackendFailure(t *testing.T) {
	e := &testEnv{}
	fs, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer down.Close()

	e.mux = http.NewServeMux()
	registerRoutes(e.mux, deps{
		store:     fs,
		engines:   coach.NewEngines(nil, coach.EngineOffline),
		tts:       tts.NewRouter(map[string]tts.Synthesizer{tts.EnginePiper: tts.NewPiper(down.URL, "v", down.Client())}, tts.EnginePiper),
		wsHandler: http.NotFoundHandler(),
		validate:  validator.New(),
	})
	rec := e.do(http.MethodPost, "/api/tts", `{"text":"hi"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Voice synthesis failed"}`, rec.Body.String())
}

func TestModels(t *testing.T) {
	e := newTestEnv(t, nil)
	rec := e.do(http.MethodGet, "/api/models", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"coach":{"engines":["offline"],"default":"offline"},
		"tts":{"engines":["piper"],"default":"piper"}
	}`, rec.Body.String())
}

func TestTraceRoutes(t *testing.T) {
	e := newTestEnv(t, nil)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/api/traces/sessions", "").Code)

	ctx := context.Background()
	ts, err := trace.Open(ctx, "sqlite", filepath.Join(t.TempDir(), "traces.db"))
	require.NoError(t, err)
	t.Cleanup(func() { ts.Close() })
	require.NoError(t, ts.CreateSession(ctx, "trace-1", "session=s1 engine=offline", time.Now()))

	e = newTestEnv(t, ts)
	rec := e.do(http.MethodGet, "/api/traces/sessions?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Sessions []trace.Session `json:"sessions"`
		Total    int             `json:"total"`
	}](t, rec)
	assert.Equal(t, 1, list.Total)
	require.Len(t, list.Sessions, 1)
	assert.Equal(t, "trace-1", list.Sessions[0].ID)

	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/api/traces/sessions/trace-1", "").Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/api/traces/sessions/nope", "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestEnv(t, nil)
	rec := e.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "coach_sessions_active")
}

func TestQueryInt(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/x?limit=7&offset=abc", nil)
	assert.Equal(t, 7, queryInt(r, "limit", 20))
	assert.Equal(t, 0, queryInt(r, "offset", 0))
	assert.Equal(t, 3, queryInt(r, "missing", 3))
}
