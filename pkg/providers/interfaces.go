package providers

import (
	"context"

	"github.com/tphan267/arqut-signal/pkg/models"
	"github.com/tphan267/arqut-signal/pkg/signaling"
)

// JournalProvider records signaling notifications of the running session
type JournalProvider interface {
	// Wrap returns a handler that records each notification before passing it to next
	Wrap(next signaling.Handler) signaling.Handler
	// SessionID identifies this process's session in the journal
	SessionID() string
	// Events lists recorded events, newest first
	Events(ctx context.Context, filter models.EventFilter) ([]*models.CallEvent, error)
	// GetMetrics counts recorded events by kind
	GetMetrics(ctx context.Context, query MetricsQuery) (*MetricsResult, error)
}

// MetricsQuery defines parameters for metrics retrieval
type MetricsQuery struct {
	SessionID string   `json:"session_id"`
	Room      string   `json:"room"`
	Kinds     []string `json:"kinds"`
}

// MetricsResult contains aggregated metrics
type MetricsResult struct {
	Counts map[string]int `json:"counts"`
	Total  int            `json:"total"`
}

// CallProvider drives the peer connection negotiated over signaling
type CallProvider interface {
	Status() CallStatus
	Hangup()
}

// CallStatus describes the current peer connection
type CallStatus struct {
	Role              string `json:"role"`
	ConnectionState   string `json:"connection_state"`
	SignalingState    string `json:"signaling_state"`
	DataChannel       string `json:"data_channel"`
	PendingCandidates int    `json:"pending_candidates"`
}
