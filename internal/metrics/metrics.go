package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "coach_sessions_active",
		Help: "Currently open coaching sockets",
	})

	SessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coach_sessions_total",
		Help: "Total coaching sockets accepted",
	})

	SessionsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coach_sessions_rejected_total",
		Help: "Socket upgrades refused at capacity",
	})

	Frames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coach_frames_total",
		Help: "Inbound frames by message type",
	}, []string{"type"})

	FramesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coach_frames_dropped_total",
		Help: "Inbound frames dropped before reaching a handler",
	}, []string{"reason"})

	Windows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coach_metric_windows_total",
		Help: "Metric windows sent to the coach",
	}, []string{"trigger"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coach_stage_duration_seconds",
		Help:    "Per-stage latency",
		Buckets: []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.8, 1.0, 2.0, 5.0, 10.0},
	}, []string{"stage"})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coach_errors_total",
		Help: "Error counts by stage",
	}, []string{"stage", "error_type"})

	ToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coach_tool_calls_total",
		Help: "Tool calls produced by the coach, by final status",
	}, []string{"tool", "status"})

	BridgesActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "live_bridges_active",
		Help: "Realtime audio bridges not yet closed",
	})

	AudioFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "live_audio_frames_forwarded_total",
		Help: "Audio frames forwarded to the live endpoint",
	})
)
