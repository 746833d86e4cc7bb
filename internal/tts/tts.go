package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hubenschmidt/maestro-buddy/gateway/internal/backend"
	"github.com/hubenschmidt/maestro-buddy/gateway/internal/metrics"
)

// Engine names.
const (
	EnginePiper      = "piper"
	EngineKokoro     = "kokoro"
	EngineElevenLabs = "elevenlabs"
)

const (
	contentTypeWAV  = "audio/wav"
	contentTypeMPEG = "audio/mpeg"
)

// Synthesizer produces audio from text. An empty voice selects the backend default.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
	ContentType() string
}

// Result holds synthesized audio with its format and timing.
type Result struct {
	Audio       []byte
	ContentType string
	Engine      string
	LatencyMs   float64
}

// Router dispatches to a speech backend by engine name.
type Router struct {
	*backend.Router[Synthesizer]
}

// NewRouter registers backends with a fallback engine.
func NewRouter(backends map[string]Synthesizer, fallback string) *Router {
	return &Router{Router: backend.NewRouter(backends, fallback)}
}

// Synthesize routes to a backend and records latency metrics.
func (r *Router) Synthesize(ctx context.Context, text, voice, engine string) (*Result, error) {
	start := time.Now()

	synth, name, err := r.Route(engine)
	if err != nil {
		return nil, err
	}

	audio, err := synth.Synthesize(ctx, text, voice)
	if err != nil {
		metrics.Errors.WithLabelValues("tts", "synth").Inc()
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	latency := time.Since(start)
	metrics.StageDuration.WithLabelValues("tts").Observe(latency.Seconds())

	return &Result{
		Audio:       audio,
		ContentType: synth.ContentType(),
		Engine:      name,
		LatencyMs:   float64(latency.Milliseconds()),
	}, nil
}

// piper serves local neural voices as WAV.
type piper struct {
	url    string
	voice  string
	client *http.Client
}

func NewPiper(url, voice string, client *http.Client) Synthesizer {
	return &piper{url: url, voice: voice, client: client}
}

func (p *piper) ContentType() string { return contentTypeWAV }

func (p *piper) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if voice == "" {
		voice = p.voice
	}
	body, err := json.Marshal(struct {
		Text  string `json:"text"`
		Voice string `json:"voice"`
	}{Text: text, Voice: voice})
	if err != nil {
		return nil, fmt.Errorf("marshal piper request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url+"/synthesize", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create piper request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return do(p.client, req)
}

// openaiSpeech talks to any server exposing /v1/audio/speech, such as Kokoro.
type openaiSpeech struct {
	url    string
	model  string
	voice  string
	client *http.Client
}

func NewOpenAISpeech(url, model, voice string, client *http.Client) Synthesizer {
	return &openaiSpeech{url: url, model: model, voice: voice, client: client}
}

func (o *openaiSpeech) ContentType() string { return contentTypeWAV }

func (o *openaiSpeech) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if voice == "" {
		voice = o.voice
	}
	body, err := json.Marshal(struct {
		Input          string `json:"input"`
		Model          string `json:"model"`
		Voice          string `json:"voice"`
		ResponseFormat string `json:"response_format"`
	}{Input: text, Model: o.model, Voice: voice, ResponseFormat: "wav"})
	if err != nil {
		return nil, fmt.Errorf("marshal speech request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url+"/v1/audio/speech", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create speech request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return do(o.client, req)
}

// elevenLabs is the hosted voice API. It returns MP3.
type elevenLabs struct {
	baseURL string
	apiKey  string
	voiceID string
	modelID string
	client  *http.Client
}

// ElevenLabsURL is the public API root.
const ElevenLabsURL = "https://api.elevenlabs.io"

func NewElevenLabs(baseURL, apiKey, voiceID, modelID string, client *http.Client) Synthesizer {
	if baseURL == "" {
		baseURL = ElevenLabsURL
	}
	return &elevenLabs{baseURL: baseURL, apiKey: apiKey, voiceID: voiceID, modelID: modelID, client: client}
}

func (e *elevenLabs) ContentType() string { return contentTypeMPEG }

func (e *elevenLabs) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if voice == "" {
		voice = e.voiceID
	}
	body, err := json.Marshal(struct {
		Text    string `json:"text"`
		ModelID string `json:"model_id"`
	}{Text: text, ModelID: e.modelID})
	if err != nil {
		return nil, fmt.Errorf("marshal elevenlabs request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s", e.baseURL, voice)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create elevenlabs request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", e.apiKey)
	req.Header.Set("Accept", contentTypeMPEG)

	return do(e.client, req)
}

func do(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tts status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}
