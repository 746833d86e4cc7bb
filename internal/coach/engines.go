package coach

import (
	"context"
	"log/slog"

	"github.com/hubenschmidt/maestro-buddy/gateway/internal/backend"
)

// Engine names.
const (
	EngineGemini  = "gemini"
	EngineOpenAI  = "openai"
	EngineOffline = "offline"
)

// Engines routes coach creation to a named engine. The offline engine is
// always registered.
type Engines struct {
	router *backend.Router[Factory]
}

// NewEngines registers factories with fallback as the default engine. If
// fallback is not registered, offline becomes the default.
func NewEngines(factories map[string]Factory, fallback string) *Engines {
	all := make(map[string]Factory, len(factories)+1)
	for name, f := range factories {
		if f != nil {
			all[name] = f
		}
	}
	if _, ok := all[EngineOffline]; !ok {
		all[EngineOffline] = OfflineFactory
	}
	if _, ok := all[fallback]; !ok {
		slog.Warn("coach engine not configured, using offline", "engine", fallback)
		fallback = EngineOffline
	}
	return &Engines{router: backend.NewRouter(all, fallback)}
}

// NewCoach creates a coach from engine, or from the default engine when
// engine is empty or unknown. The resolved engine name is returned.
func (e *Engines) NewCoach(ctx context.Context, engine string) (Coach, string) {
	f, name, err := e.router.Route(engine)
	if err != nil {
		return Offline{}, EngineOffline
	}
	return f.NewCoach(ctx), name
}

// Default returns the default engine name.
func (e *Engines) Default() string {
	return e.router.Fallback()
}

// Names returns all registered engine names.
func (e *Engines) Names() []string {
	return e.router.Engines()
}
