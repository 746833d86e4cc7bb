package session

import (
	"context"
	"encoding/base64"
	"log/slog"

	"github.com/hubenschmidt/maestro-buddy/gateway/internal/audio"
	"github.com/hubenschmidt/maestro-buddy/gateway/internal/live"
	"github.com/hubenschmidt/maestro-buddy/gateway/internal/metrics"
)

// AudioHandler forwards base64 PCM frames through the connection's live bridge.
type AudioHandler struct {
	deps Deps
}

// NewAudioHandler creates the audio handler.
func NewAudioHandler(d Deps) *AudioHandler {
	return &AudioHandler{deps: d}
}

func (h *AudioHandler) Type() string { return TypeAudio }

// Handle lazily starts a bridge and waits for its setup before forwarding.
// Failures are logged and the frame is dropped.
func (h *AudioHandler) Handle(ctx context.Context, out Sender, st State, msg ClientMessage) State {
	if !st.Authenticated() {
		metrics.FramesDropped.WithLabelValues("unauthenticated").Inc()
		return st
	}
	if h.deps.Dialer == nil {
		metrics.FramesDropped.WithLabelValues("live_disabled").Inc()
		return st
	}

	if st.Bridge == nil || st.Bridge.State() == live.StateClosed {
		var opts []live.Option
		if h.deps.LiveSetup > 0 {
			opts = append(opts, live.WithSetupTimeout(h.deps.LiveSetup))
		}
		st.Bridge = live.NewBridge(h.deps.Dialer, bridgeEmitter{out: out, sessionID: st.SessionID}, opts...)
		st.Bridge.Start(ctx)
	}

	if msg.Audio == "" {
		return st
	}
	pcm, err := base64.StdEncoding.DecodeString(msg.Audio)
	if err != nil {
		metrics.FramesDropped.WithLabelValues("bad_audio").Inc()
		slog.Warn("invalid audio frame", "session_id", st.SessionID, "error", err)
		return st
	}
	if err = st.Bridge.Send(ctx, audio.ToLive(pcm, msg.SampleRate)); err != nil {
		metrics.Errors.WithLabelValues("live", "send").Inc()
		slog.Error("audio stream", "session_id", st.SessionID, "error", err)
	}
	return st
}

// bridgeEmitter turns live replies into client frames.
type bridgeEmitter struct {
	out       Sender
	sessionID string
}

func (e bridgeEmitter) OnChunk(text string, pcm []byte) {
	msg := ServerMessage{Type: TypeFeedback, Content: text}
	if len(pcm) > 0 {
		msg.Audio = base64.StdEncoding.EncodeToString(pcm)
	}
	if err := e.out.Send(msg); err != nil {
		slog.Warn("send live feedback", "session_id", e.sessionID, "error", err)
	}
}

func (e bridgeEmitter) OnClosed(message string) {
	if err := e.out.Send(ServerMessage{Type: TypeError, Message: message}); err != nil {
		slog.Debug("send live closed", "session_id", e.sessionID, "error", err)
	}
}
