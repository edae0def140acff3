package core

import (
	"context"

	"github.com/tphan267/arqut-signal/pkg/providers"
)

// App defines the core application logic behind the status API
type App interface {
	// Session reports room, connection, call and journal state of the running session
	Session(ctx context.Context) (*SessionStatus, error)
}

// SessionStatus is a snapshot of the running session
type SessionStatus struct {
	SessionID       string                   `json:"session_id,omitempty"`
	Room            string                   `json:"room"`
	RoomState       string                   `json:"room_state"`
	ConnectionState string                   `json:"connection_state"`
	Call            *providers.CallStatus    `json:"call,omitempty"`
	Events          *providers.MetricsResult `json:"events,omitempty"`
}
