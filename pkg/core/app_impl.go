package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/tphan267/arqut-signal/pkg/providers"
)

// ErrNoSession is returned when no signaling client is configured.
var ErrNoSession = errors.New("no signaling session")

// MainApp is the main application implementation
type MainApp struct {
	providers *providers.Registry
}

// NewMainApp creates a new main application instance
func NewMainApp(p *providers.Registry) *MainApp {
	return &MainApp{
		providers: p,
	}
}

// Session collects the session snapshot. Call and journal details are
// included when those services are registered.
func (a *MainApp) Session(ctx context.Context) (*SessionStatus, error) {
	client := a.providers.SignalingClient()
	if client == nil {
		return nil, ErrNoSession
	}

	status := &SessionStatus{
		Room:            client.Room(),
		RoomState:       client.State().String(),
		ConnectionState: client.ConnectionState().String(),
	}

	if call, err := a.providers.GetCall(); err == nil {
		callStatus := call.Status()
		status.Call = &callStatus
	}

	if journal, err := a.providers.GetJournal(); err == nil {
		status.SessionID = journal.SessionID()
		metrics, err := journal.GetMetrics(ctx, providers.MetricsQuery{SessionID: journal.SessionID()})
		if err != nil {
			return nil, fmt.Errorf("failed to get metrics: %w", err)
		}
		status.Events = metrics
	}

	return status, nil
}

// Verify that MainApp implements App interface
var _ App = (*MainApp)(nil)
