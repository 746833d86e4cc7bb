package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubenschmidt/maestro-buddy/gateway/internal/backend"
)

type captured struct {
	path    string
	headers http.Header
	body    map[string]any
}

func speechServer(t *testing.T, status int, audio []byte) (*httptest.Server, *captured) {
	t.Helper()
	got := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.path = r.URL.Path
		got.headers = r.Header.Clone()
		_ = json.NewDecoder(r.Body).Decode(&got.body)
		w.WriteHeader(status)
		w.Write(audio)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func TestPiperDefaultsVoice(t *testing.T) {
	srv, got := speechServer(t, http.StatusOK, []byte("RIFF"))
	client := backend.NewPooledHTTPClient(2, time.Second)

	r := NewRouter(map[string]Synthesizer{EnginePiper: NewPiper(srv.URL, "en_US-lessac-low", client)}, EnginePiper)
	res, err := r.Synthesize(context.Background(), "Great clapping!", "", "")
	require.NoError(t, err)

	assert.Equal(t, []byte("RIFF"), res.Audio)
	assert.Equal(t, "audio/wav", res.ContentType)
	assert.Equal(t, EnginePiper, res.Engine)
	assert.Equal(t, "/synthesize", got.path)
	assert.Equal(t, "Great clapping!", got.body["text"])
	assert.Equal(t, "en_US-lessac-low", got.body["voice"])
}

func TestOpenAISpeechOverridesVoice(t *testing.T) {
	srv, got := speechServer(t, http.StatusOK, []byte("RIFF"))
	s := NewOpenAISpeech(srv.URL, "kokoro", "af_heart", http.DefaultClient)

	audio, err := s.Synthesize(context.Background(), "hi", "bf_emma")
	require.NoError(t, err)
	assert.NotEmpty(t, audio)
	assert.Equal(t, "/v1/audio/speech", got.path)
	assert.Equal(t, "bf_emma", got.body["voice"])
	assert.Equal(t, "wav", got.body["response_format"])
}

func TestElevenLabsRequest(t *testing.T) {
	srv, got := speechServer(t, http.StatusOK, []byte("ID3"))
	s := NewElevenLabs(srv.URL, "secret", "voice-1", "eleven_turbo_v2_5", http.DefaultClient)

	audio, err := s.Synthesize(context.Background(), "hi", "")
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3"), audio)
	assert.Equal(t, "audio/mpeg", s.ContentType())
	assert.Equal(t, "/v1/text-to-speech/voice-1", got.path)
	assert.Equal(t, "secret", got.headers.Get("xi-api-key"))
	assert.Equal(t, "eleven_turbo_v2_5", got.body["model_id"])
}

func TestSynthesizeErrors(t *testing.T) {
	srv, _ := speechServer(t, http.StatusInternalServerError, nil)
	r := NewRouter(map[string]Synthesizer{EnginePiper: NewPiper(srv.URL, "v", http.DefaultClient)}, EnginePiper)

	_, err := r.Synthesize(context.Background(), "hi", "", EnginePiper)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")

	empty := NewRouter(map[string]Synthesizer{}, EnginePiper)
	_, err = empty.Synthesize(context.Background(), "hi", "", "")
	require.Error(t, err)
}
