package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hubenschmidt/maestro-buddy/gateway/internal/coach"
	"github.com/hubenschmidt/maestro-buddy/gateway/internal/live"
	"github.com/hubenschmidt/maestro-buddy/gateway/internal/store"
	"github.com/hubenschmidt/maestro-buddy/gateway/internal/trace"
)

// BatchSize is the number of metrics in one coaching window.
const BatchSize = 5

// Window triggers, used as metric and trace labels.
const (
	TriggerThreshold = "threshold"
	TriggerIdle      = "idle"
)

// State is the per-connection context threaded through handlers. Handlers
// receive it by value and return the replacement.
type State struct {
	SessionID string
	Engine    string
	Coach     coach.Coach
	Metrics   []coach.Metric
	Bridge    *live.Bridge
	Tracer    *trace.Tracer
}

// Authenticated reports whether auth has bound a session id and a coach.
func (s State) Authenticated() bool {
	return s.SessionID != "" && s.Coach != nil
}

// Close releases per-connection resources. It never fails.
func (s State) Close() {
	if s.Bridge != nil {
		s.Bridge.Close()
	}
	s.Tracer.Close()
}

// CoachSource creates coaches by engine name.
type CoachSource interface {
	NewCoach(ctx context.Context, engine string) (coach.Coach, string)
}

// ContentExecutor runs remote content tools.
type ContentExecutor interface {
	Execute(ctx context.Context, tool string, args map[string]any) (json.RawMessage, error)
}

// Deps are the shared collaborators of the default handlers. Store, Dialer
// and Traces are optional.
type Deps struct {
	Coaches        CoachSource
	Content        ContentExecutor
	Store          store.Store
	Dialer         live.Dialer
	Traces         *trace.Store
	CoachTimeout   time.Duration
	ContentTimeout time.Duration
	LiveSetup      time.Duration
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
