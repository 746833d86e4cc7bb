package content

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, *Catalog) {
	t.Helper()
	catalog, err := LoadCatalog()
	require.NoError(t, err)
	srv := httptest.NewServer(NewServer(catalog).Handler())
	t.Cleanup(srv.Close)
	return srv, catalog
}

func TestCatalogContents(t *testing.T) {
	c, err := LoadCatalog()
	require.NoError(t, err)
	assert.Len(t, c.Exercises, 14)
	assert.Len(t, c.Facts, 25)
	assert.Len(t, c.Lessons, 4)
	assert.Equal(t, []float64{1, 0.5, 1, 0}, c.Exercises[3].Pattern)
}

func TestExercisesFor(t *testing.T) {
	c, err := LoadCatalog()
	require.NoError(t, err)

	level1 := c.ExercisesFor(1, "")
	for _, ex := range level1 {
		assert.Equal(t, 1, ex.Level)
	}
	assert.Len(t, level1, 6)

	rock := c.ExercisesFor(5, "rock")
	require.Len(t, rock, 1)
	assert.Equal(t, "r3", rock[0].ID)

	assert.Empty(t, c.ExercisesFor(1, "jazz"))
	assert.Equal(t, level1, c.ExercisesFor(0, ""))
}

func TestLessonFallback(t *testing.T) {
	c, err := LoadCatalog()
	require.NoError(t, err)
	assert.Equal(t, c.Lessons["rhythm"], c.Lesson("harmony"))
	assert.Contains(t, c.Lesson("tempo"), "speed limit")
}

func TestParseCatalogRejectsIncomplete(t *testing.T) {
	_, err := ParseCatalog([]byte("facts: []\n"))
	require.Error(t, err)
	_, err = ParseCatalog([]byte("facts: [a]\nlessons: {tempo: x}\n"))
	require.Error(t, err)
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "mcp-gateway", body["component"])
	assert.EqualValues(t, 14, body["exercisesCount"])
}

func TestExecuteUnknownToolAndBadBody(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/mcp/execute", "application/json", strings.NewReader(`{"tool":"play_kazoo","args":{}}`))
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Tool not found"}`, string(raw))

	resp, err = http.Post(srv.URL+"/mcp/execute", "application/json", strings.NewReader(`{`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestClientExecute(t *testing.T) {
	srv, catalog := newTestServer(t)
	client := NewClient(srv.URL+"/mcp/execute", 2, time.Second)
	ctx := context.Background()

	raw, err := client.Execute(ctx, "get_rhythm_exercises", map[string]any{"level": 2.0, "style": "rock"})
	require.NoError(t, err)
	var exercises []Exercise
	require.NoError(t, json.Unmarshal(raw, &exercises))
	require.Len(t, exercises, 1)
	assert.Equal(t, "Backbeat Fun", exercises[0].Name)

	raw, err = client.Execute(ctx, "get_music_fact", nil)
	require.NoError(t, err)
	var fact map[string]string
	require.NoError(t, json.Unmarshal(raw, &fact))
	assert.Contains(t, catalog.Facts, fact["fact"])

	raw, err = client.Execute(ctx, "get_theory_lesson", map[string]any{"topic": "harmony"})
	require.NoError(t, err)
	var lesson map[string]string
	require.NoError(t, json.Unmarshal(raw, &lesson))
	assert.Equal(t, "harmony", lesson["topic"])
	assert.Equal(t, catalog.Lessons["rhythm"], lesson["lesson"])

	raw, err = client.Execute(ctx, "get_theory_lesson", map[string]any{})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"topic":"rhythm"`)

	_, err = client.Execute(ctx, "play_kazoo", nil)
	require.ErrorIs(t, err, ErrToolNotFound)
}

func TestClientErrors(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		io.WriteString(w, "not json")
	}))
	defer bad.Close()

	_, err := NewClient(bad.URL+"/broken", 1, time.Second).Execute(context.Background(), "get_music_fact", nil)
	require.Error(t, err)

	_, err = NewClient(bad.URL+"/text", 1, time.Second).Execute(context.Background(), "get_music_fact", nil)
	require.Error(t, err)

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer slow.Close()
	_, err = NewClient(slow.URL, 1, 20*time.Millisecond).Execute(context.Background(), "get_music_fact", nil)
	require.Error(t, err)
}

func TestIntArg(t *testing.T) {
	assert.Equal(t, 3, intArg(map[string]any{"level": 3.0}, "level", 1))
	assert.Equal(t, 2, intArg(map[string]any{"level": "2"}, "level", 1))
	assert.Equal(t, 1, intArg(map[string]any{"level": 0.0}, "level", 1))
	assert.Equal(t, 1, intArg(map[string]any{}, "level", 1))
}
