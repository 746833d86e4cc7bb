package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"

	"github.com/hubenschmidt/maestro-buddy/gateway/internal/backend"
	"github.com/hubenschmidt/maestro-buddy/gateway/internal/coach"
	"github.com/hubenschmidt/maestro-buddy/gateway/internal/content"
	"github.com/hubenschmidt/maestro-buddy/gateway/internal/live"
	"github.com/hubenschmidt/maestro-buddy/gateway/internal/session"
	"github.com/hubenschmidt/maestro-buddy/gateway/internal/store"
	"github.com/hubenschmidt/maestro-buddy/gateway/internal/trace"
	"github.com/hubenschmidt/maestro-buddy/gateway/internal/tts"
	"github.com/hubenschmidt/maestro-buddy/gateway/internal/ws"
)

const shutdownTimeout = 30 * time.Second

func runServe(ctx context.Context, cfg config) error {
	st, err := store.Open(ctx, cfg.storeDriver, cfg.storeDSN)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	traces := openTraces(ctx, cfg)
	if traces != nil {
		defer traces.Close()
	}

	gc := newGenAIClient(ctx, cfg)
	engines := buildEngines(cfg, gc)

	var dialer live.Dialer
	if gc != nil {
		dialer = live.NewGeminiDialer(gc, cfg.geminiLiveModel, cfg.coachSystemPrompt)
	}

	reg, flusher := session.Default(session.Deps{
		Coaches:        engines,
		Content:        content.NewClient(cfg.mcpGatewayURL, cfg.contentPoolSize, cfg.contentTimeout),
		Store:          st,
		Dialer:         dialer,
		Traces:         traces,
		CoachTimeout:   cfg.coachTimeout,
		ContentTimeout: cfg.contentTimeout,
		LiveSetup:      cfg.liveSetupTimeout,
	})
	wsHandler := ws.NewHandler(ws.HandlerConfig{
		Registry:      reg,
		Flusher:       flusher,
		Store:         st,
		MaxConcurrent: cfg.maxConcurrentSessions,
		FlushAfter:    cfg.metricsFlushAfter,
	})

	mux := http.NewServeMux()
	registerRoutes(mux, deps{
		store:      st,
		engines:    engines,
		tts:        buildTTS(cfg),
		wsHandler:  wsHandler,
		traceStore: traces,
		validate:   validator.New(),
	})

	servers := []*http.Server{{Addr: ":" + cfg.port, Handler: mux}}
	if cfg.contentEmbedded {
		srv, err := newContentServer(cfg.contentPort)
		if err != nil {
			return err
		}
		servers = append(servers, srv)
	}

	slog.Info("gateway starting",
		"addr", servers[0].Addr,
		"coach_engines", engines.Names(),
		"default_engine", engines.Default(),
		"live", dialer != nil,
		"content_embedded", cfg.contentEmbedded,
		"max_concurrent", cfg.maxConcurrentSessions,
	)
	err = serveAll(ctx, servers...)
	slog.Info("gateway stopped")
	return err
}

func runContent(ctx context.Context, cfg config) error {
	srv, err := newContentServer(cfg.contentPort)
	if err != nil {
		return err
	}
	slog.Info("content gateway starting", "addr", srv.Addr)
	return serveAll(ctx, srv)
}

func newContentServer(port string) (*http.Server, error) {
	catalog, err := content.LoadCatalog()
	if err != nil {
		return nil, fmt.Errorf("load content catalog: %w", err)
	}
	return &http.Server{Addr: ":" + port, Handler: content.NewServer(catalog).Handler()}, nil
}

// serveAll runs servers until ctx ends or one of them fails, then shuts all down.
func serveAll(ctx context.Context, servers ...*http.Server) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		// Shutdown does not reach hijacked sockets; they watch this instead.
		srv.BaseContext = func(net.Listener) context.Context { return gctx }
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("listen %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Warn("server shutdown", "addr", srv.Addr, "error", err)
			}
		}
		return nil
	})
	return g.Wait()
}

func openTraces(ctx context.Context, cfg config) *trace.Store {
	if cfg.traceDriver == "" {
		return nil
	}
	ts, err := trace.Open(ctx, cfg.traceDriver, cfg.traceDSN)
	if err != nil {
		slog.Warn("tracing disabled", "driver", cfg.traceDriver, "error", err)
		return nil
	}
	slog.Info("tracing enabled", "driver", cfg.traceDriver)
	return ts
}

// newGenAIClient prefers Vertex AI when a project is set, then an API key.
// It returns nil when neither is configured or the client cannot be built.
func newGenAIClient(ctx context.Context, cfg config) *genai.Client {
	var cc *genai.ClientConfig
	switch {
	case cfg.googleProject != "":
		cc = &genai.ClientConfig{Project: cfg.googleProject, Location: cfg.googleLocation, Backend: genai.BackendVertexAI}
	case cfg.geminiAPIKey != "":
		cc = &genai.ClientConfig{APIKey: cfg.geminiAPIKey, Backend: genai.BackendGeminiAPI}
	default:
		slog.Warn("no Gemini credentials configured, gemini engine and live audio disabled")
		return nil
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		slog.Error("genai client", "error", err)
		return nil
	}
	return client
}

func buildEngines(cfg config, gc *genai.Client) *coach.Engines {
	factories := map[string]coach.Factory{}
	if gc != nil {
		factories[coach.EngineGemini] = coach.NewGeminiFactory(gc, cfg.geminiModel, cfg.coachSystemPrompt)
	}
	if cfg.openaiAPIKey != "" {
		factories[coach.EngineOpenAI] = coach.NewOpenAIFactory(cfg.openaiAPIKey, cfg.openaiBaseURL, cfg.openaiModel, cfg.coachSystemPrompt)
	}
	return coach.NewEngines(factories, cfg.coachEngine)
}

func buildTTS(cfg config) *tts.Router {
	client := backend.NewPooledHTTPClient(cfg.ttsPoolSize, 30*time.Second)
	backends := map[string]tts.Synthesizer{}
	if cfg.piperURL != "" {
		backends[tts.EnginePiper] = tts.NewPiper(cfg.piperURL, cfg.piperVoice, client)
	}
	if cfg.kokoroURL != "" {
		backends[tts.EngineKokoro] = tts.NewOpenAISpeech(cfg.kokoroURL, "kokoro", cfg.kokoroVoice, client)
	}
	if cfg.elevenlabsAPIKey != "" {
		backends[tts.EngineElevenLabs] = tts.NewElevenLabs(tts.ElevenLabsURL, cfg.elevenlabsAPIKey, cfg.elevenlabsVoiceID, cfg.elevenlabsModelID, client)
	}
	return tts.NewRouter(backends, cfg.ttsEngine)
}
