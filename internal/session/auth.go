package session

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hubenschmidt/maestro-buddy/gateway/internal/store"
	"github.com/hubenschmidt/maestro-buddy/gateway/internal/trace"
)

// AuthHandler binds a session id and a fresh coach to the connection.
type AuthHandler struct {
	deps Deps
}

// NewAuthHandler creates the auth handler.
func NewAuthHandler(d Deps) *AuthHandler {
	return &AuthHandler{deps: d}
}

func (h *AuthHandler) Type() string { return TypeAuth }

// Handle always creates a new coach, so re-auth on the same connection
// starts a conversation with no history. Buffered metrics are kept.
func (h *AuthHandler) Handle(ctx context.Context, out Sender, st State, msg ClientMessage) State {
	c, engine := h.deps.Coaches.NewCoach(ctx, msg.Engine)
	slog.Info("socket authenticated", "session_id", msg.SessionID, "engine", engine, "reauth", st.Coach != nil)

	if err := out.Send(ServerMessage{Type: TypeSystem, Content: ConnectionReady}); err != nil {
		slog.Warn("send connection ready", "session_id", msg.SessionID, "error", err)
	}

	st.Tracer.Close()
	st.Tracer = trace.NewTracer(h.deps.Traces, uuid.NewString(), "session="+msg.SessionID+" engine="+engine)

	if h.deps.Store != nil && msg.SessionID != "" {
		err := store.UpdateQuest(ctx, h.deps.Store, msg.SessionID, func(q *store.QuestState) {
			q.Status = store.QuestPlaying
		})
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			slog.Warn("mark quest playing", "session_id", msg.SessionID, "error", err)
		}
	}

	st.SessionID = msg.SessionID
	st.Coach = c
	st.Engine = engine
	return st
}
