package session

import (
	"encoding/json"

	"github.com/hubenschmidt/maestro-buddy/gateway/internal/coach"
)

// Client frame types.
const (
	TypeAuth    = "auth"
	TypeMetrics = "metrics"
	TypeAudio   = "audio"
)

// Server frame types.
const (
	TypeSystem   = "system"
	TypeFeedback = "feedback"
	TypeError    = "error"
)

// ConnectionReady is the content of the system frame sent after auth.
const ConnectionReady = "Connection ready"

// ClientMessage is any inbound JSON frame. Type selects the handler; the
// other fields are read by the handler for that type. SampleRate describes
// Audio and may be omitted for 16 kHz input.
type ClientMessage struct {
	Type       string        `json:"type"`
	SessionID  string        `json:"sessionId,omitempty"`
	Metrics    *coach.Metric `json:"metrics,omitempty"`
	Audio      string        `json:"audio,omitempty"`
	SampleRate int           `json:"sampleRate,omitempty"`
	Engine     string        `json:"engine,omitempty"`
}

// StateUpdate asks the client to apply a local tool call.
type StateUpdate struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// ServerMessage is any outbound JSON frame. MCPResult and StateUpdate are
// never both set.
type ServerMessage struct {
	Type        string           `json:"type"`
	Content     string           `json:"content,omitempty"`
	Message     string           `json:"message,omitempty"`
	ToolTrace   *coach.ToolTrace `json:"toolTrace,omitempty"`
	MCPResult   json.RawMessage  `json:"mcpResult,omitempty"`
	StateUpdate *StateUpdate     `json:"stateUpdate,omitempty"`
	Audio       string           `json:"audio,omitempty"`
}

// Sender writes frames to one client. Implementations must be safe for
// concurrent use: the live bridge writes from its own goroutine.
type Sender interface {
	Send(msg ServerMessage) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(msg ServerMessage) error

// Send calls f.
func (f SenderFunc) Send(msg ServerMessage) error {
	return f(msg)
}
