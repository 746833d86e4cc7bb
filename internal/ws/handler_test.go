package ws

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hubenschmidt/maestro-buddy/gateway/internal/coach"
	"github.com/hubenschmidt/maestro-buddy/gateway/internal/session"
	"github.com/hubenschmidt/maestro-buddy/gateway/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

type echoCoaches struct{}

func (echoCoaches) NewCoach(context.Context, string) (coach.Coach, string) {
	return coach.Offline{}, coach.EngineOffline
}

type panicHandler struct{}

func (panicHandler) Type() string { return "boom" }

func (panicHandler) Handle(context.Context, session.Sender, session.State, session.ClientMessage) session.State {
	panic("handler exploded")
}

func newServer(t *testing.T, cfg HandlerConfig) *httptest.Server {
	t.Helper()
	if cfg.Registry == nil {
		reg, flusher := session.Default(session.Deps{Coaches: echoCoaches{}})
		reg.Register(panicHandler{})
		cfg.Registry, cfg.Flusher = reg, flusher
	}
	srv := httptest.NewServer(NewHandler(cfg))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) session.ServerMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg session.ServerMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(v))
}

func sendMetric(t *testing.T, conn *websocket.Conn, ts float64) {
	t.Helper()
	send(t, conn, map[string]any{
		"type":    "metrics",
		"metrics": map[string]any{"timestamp": ts, "offset": 0.02, "bpm": 80},
	})
}

func TestSessionRoundTrip(t *testing.T) {
	srv := newServer(t, HandlerConfig{})
	conn := dial(t, srv)

	send(t, conn, map[string]any{"type": "auth", "sessionId": "s1"})
	ready := read(t, conn)
	assert.Equal(t, session.TypeSystem, ready.Type)
	assert.Equal(t, session.ConnectionReady, ready.Content)

	for i := 0; i < session.BatchSize; i++ {
		sendMetric(t, conn, float64(i))
	}
	fb := read(t, conn)
	assert.Equal(t, session.TypeFeedback, fb.Type)
	assert.NotEmpty(t, fb.Content)
	require.NotNil(t, fb.ToolTrace)
	assert.Equal(t, coach.StatusSuccess, fb.ToolTrace.Status)
	assert.EqualValues(t, session.BatchSize, fb.ToolTrace.Args["count"])
}

func TestBadFramesKeepConnectionOpen(t *testing.T) {
	srv := newServer(t, HandlerConfig{})
	conn := dial(t, srv)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02}))
	send(t, conn, map[string]any{"type": "dance"})
	send(t, conn, map[string]any{"type": "boom"})

	send(t, conn, map[string]any{"type": "auth", "sessionId": "s1"})
	assert.Equal(t, session.ConnectionReady, read(t, conn).Content)
}

func TestMetricsBeforeAuthProduceNothing(t *testing.T) {
	srv := newServer(t, HandlerConfig{})
	conn := dial(t, srv)

	for i := 0; i < 6; i++ {
		sendMetric(t, conn, float64(i))
	}
	send(t, conn, map[string]any{"type": "auth", "sessionId": "s1"})
	assert.Equal(t, session.TypeSystem, read(t, conn).Type)
}

func TestIdleFlush(t *testing.T) {
	srv := newServer(t, HandlerConfig{FlushAfter: 50 * time.Millisecond})
	conn := dial(t, srv)

	send(t, conn, map[string]any{"type": "auth", "sessionId": "s1"})
	read(t, conn)
	sendMetric(t, conn, 1)
	sendMetric(t, conn, 2)

	fb := read(t, conn)
	assert.Equal(t, session.TypeFeedback, fb.Type)
	require.NotNil(t, fb.ToolTrace)
	assert.EqualValues(t, 2, fb.ToolTrace.Args["count"])
}

func TestIdleFlushFiresWhileAudioStreams(t *testing.T) {
	srv := newServer(t, HandlerConfig{FlushAfter: 50 * time.Millisecond})
	conn := dial(t, srv)

	send(t, conn, map[string]any{"type": "auth", "sessionId": "s1"})
	read(t, conn)
	sendMetric(t, conn, 1)
	sendMetric(t, conn, 2)

	stop := make(chan struct{})
	streamed := make(chan struct{})
	go func() {
		defer close(streamed)
		tick := time.NewTicker(20 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-stop:
				return
			case <-tick.C:
				if conn.WriteJSON(map[string]any{"type": "audio", "audio": "AAAA"}) != nil {
					return
				}
			}
		}
	}()
	defer func() {
		close(stop)
		<-streamed
	}()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	var fb session.ServerMessage
	require.NoError(t, conn.ReadJSON(&fb))
	assert.Equal(t, session.TypeFeedback, fb.Type)
	require.NotNil(t, fb.ToolTrace)
	assert.EqualValues(t, 2, fb.ToolTrace.Args["count"])
}

func TestServerContextClosesSockets(t *testing.T) {
	reg, flusher := session.Default(session.Deps{Coaches: echoCoaches{}})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv := httptest.NewUnstartedServer(NewHandler(HandlerConfig{Registry: reg, Flusher: flusher}))
	srv.Config.BaseContext = func(net.Listener) context.Context { return ctx }
	srv.Start()
	t.Cleanup(srv.Close)

	conn := dial(t, srv)
	send(t, conn, map[string]any{"type": "auth", "sessionId": "s1"})
	read(t, conn)

	cancel()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestRejectsAtCapacity(t *testing.T) {
	srv := newServer(t, HandlerConfig{MaxConcurrent: 1})
	first := dial(t, srv)
	send(t, first, map[string]any{"type": "auth", "sessionId": "s1"})
	read(t, first)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestCloseMarksQuestIdle(t *testing.T) {
	fs, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, fs.SaveSession(ctx, store.SessionData{
		SessionID:  "s1",
		QuestState: store.QuestState{SessionID: "s1", Quest: store.DefaultQuest, BPM: store.DefaultBPM, Status: store.QuestIdle},
	}))

	reg, flusher := session.Default(session.Deps{Coaches: echoCoaches{}, Store: fs})
	srv := newServer(t, HandlerConfig{Registry: reg, Flusher: flusher, Store: fs})
	conn := dial(t, srv)

	send(t, conn, map[string]any{"type": "auth", "sessionId": "s1"})
	read(t, conn)
	data, err := fs.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, store.QuestPlaying, data.QuestState.Status)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool {
		data, err := fs.GetSession(ctx, "s1")
		return err == nil && data.QuestState.Status == store.QuestIdle
	}, 2*time.Second, 20*time.Millisecond)
}
