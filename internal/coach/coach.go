package coach

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hubenschmidt/maestro-buddy/gateway/internal/prompts"
)

// Feedback strings used when the model cannot produce a usable answer.
const (
	FallbackNoCandidates = "I'm listening closely, keep going!"
	FallbackNoText       = "Keep it up!"
	FallbackError        = "Oops, I missed that beat! Try again."
)

// Metric is one client-reported timing sample. Offset is signed seconds from
// the nearest expected beat.
type Metric struct {
	Timestamp float64 `json:"timestamp"`
	Offset    float64 `json:"offset"`
	BPM       float64 `json:"bpm"`
}

// ToolStatus is the lifecycle status of a tool call.
type ToolStatus string

const (
	StatusSuccess ToolStatus = "success"
	StatusError   ToolStatus = "error"
	StatusPending ToolStatus = "pending"
)

// ToolTrace is the single structured tool call a coach may return per window.
type ToolTrace struct {
	Tool   string         `json:"tool"`
	Args   map[string]any `json:"args"`
	Status ToolStatus     `json:"status"`
}

// Feedback is the result of one coaching turn.
type Feedback struct {
	Text      string
	ToolTrace *ToolTrace
}

// Coach turns a window of metrics into feedback. Implementations never return
// errors: backend failures degrade to a fallback feedback string.
// A Coach is used by one connection at a time.
type Coach interface {
	ProcessMetrics(ctx context.Context, batch []Metric) Feedback
}

// Factory creates a fresh coach with no conversational history.
type Factory interface {
	NewCoach(ctx context.Context) Coach
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context) Coach

// NewCoach calls f.
func (f FactoryFunc) NewCoach(ctx context.Context) Coach {
	return f(ctx)
}

// windowMessage renders a metrics batch as the user turn of a coaching exchange.
func windowMessage(batch []Metric) (string, error) {
	if batch == nil {
		batch = []Metric{}
	}
	data, err := json.Marshal(batch)
	if err != nil {
		return "", fmt.Errorf("marshal metrics window: %w", err)
	}
	return prompts.MetricsWindow(data), nil
}

func cloneArgs(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}
