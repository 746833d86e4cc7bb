package coach

import "context"

const offlineFeedback = "Great job clapping! I'm still setting up my brain, but keep practicing."

// Offline is the coach used when no model backend is configured.
type Offline struct{}

// ProcessMetrics returns canned encouragement and a mock analysis trace.
func (Offline) ProcessMetrics(_ context.Context, batch []Metric) Feedback {
	return Feedback{
		Text: offlineFeedback,
		ToolTrace: &ToolTrace{
			Tool:   "mock_analyze",
			Args:   map[string]any{"count": len(batch)},
			Status: StatusSuccess,
		},
	}
}

// OfflineFactory hands out Offline coaches.
var OfflineFactory = FactoryFunc(func(context.Context) Coach { return Offline{} })
