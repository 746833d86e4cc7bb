package main

import (
	"time"

	"github.com/hubenschmidt/maestro-buddy/gateway/internal/coach"
	"github.com/hubenschmidt/maestro-buddy/gateway/internal/env"
	"github.com/hubenschmidt/maestro-buddy/gateway/internal/tts"
)

type config struct {
	port                  string
	contentPort           string
	contentEmbedded       bool
	mcpGatewayURL         string
	contentTimeout        time.Duration
	contentPoolSize       int
	coachEngine           string
	coachTimeout          time.Duration
	coachSystemPrompt     string
	googleProject         string
	googleLocation        string
	geminiAPIKey          string
	geminiModel           string
	geminiLiveModel       string
	liveSetupTimeout      time.Duration
	openaiAPIKey          string
	openaiBaseURL         string
	openaiModel           string
	metricsFlushAfter     time.Duration
	maxConcurrentSessions int
	storeDriver           string
	storeDSN              string
	traceDriver           string
	traceDSN              string
	ttsEngine             string
	ttsPoolSize           int
	piperURL              string
	piperVoice            string
	kokoroURL             string
	kokoroVoice           string
	elevenlabsAPIKey      string
	elevenlabsVoiceID     string
	elevenlabsModelID     string
}

func loadConfig() config {
	return config{
		port:                  env.Str("GATEWAY_PORT", "3001"),
		contentPort:           env.Str("CONTENT_PORT", "3002"),
		contentEmbedded:       env.Bool("CONTENT_EMBEDDED", false),
		mcpGatewayURL:         env.Str("MCP_GATEWAY_URL", "http://localhost:3002/mcp/execute"),
		contentTimeout:        env.Duration("CONTENT_TIMEOUT", 5*time.Second),
		contentPoolSize:       env.Int("CONTENT_POOL_SIZE", 20),
		coachEngine:           env.Str("COACH_ENGINE", coach.EngineGemini),
		coachTimeout:          env.Duration("COACH_TIMEOUT", 15*time.Second),
		coachSystemPrompt:     env.Str("COACH_SYSTEM_PROMPT", ""),
		googleProject:         env.Str("GOOGLE_CLOUD_PROJECT", ""),
		googleLocation:        env.Str("GOOGLE_CLOUD_LOCATION", "us-central1"),
		geminiAPIKey:          env.Str("GEMINI_API_KEY", ""),
		geminiModel:           env.Str("GEMINI_MODEL", "gemini-2.0-flash"),
		geminiLiveModel:       env.Str("GEMINI_LIVE_MODEL", "gemini-2.0-flash-live-001"),
		liveSetupTimeout:      env.Duration("LIVE_SETUP_TIMEOUT", 15*time.Second),
		openaiAPIKey:          env.Str("OPENAI_API_KEY", ""),
		openaiBaseURL:         env.Str("OPENAI_BASE_URL", "https://api.openai.com/v1/"),
		openaiModel:           env.Str("OPENAI_MODEL", "gpt-4o-mini"),
		metricsFlushAfter:     env.Duration("METRICS_FLUSH_AFTER", 0),
		maxConcurrentSessions: env.Int("MAX_CONCURRENT_SESSIONS", 200),
		storeDriver:           env.Str("STORE_DRIVER", "file"),
		storeDSN:              env.Str("STORE_DSN", "data"),
		traceDriver:           env.Str("TRACE_DRIVER", ""),
		traceDSN:              env.Str("TRACE_DSN", ""),
		ttsEngine:             env.Str("TTS_ENGINE", tts.EnginePiper),
		ttsPoolSize:           env.Int("TTS_POOL_SIZE", 20),
		piperURL:              env.Str("PIPER_URL", ""),
		piperVoice:            env.Str("PIPER_VOICE", "en_US-lessac-medium"),
		kokoroURL:             env.Str("KOKORO_URL", ""),
		kokoroVoice:           env.Str("KOKORO_VOICE", "af_heart"),
		elevenlabsAPIKey:      env.Str("ELEVENLABS_API_KEY", ""),
		elevenlabsVoiceID:     env.Str("ELEVENLABS_VOICE_ID", "21m00Tcm4TlvDq8ikWAM"),
		elevenlabsModelID:     env.Str("ELEVENLABS_MODEL_ID", "eleven_turbo_v2_5"),
	}
}
