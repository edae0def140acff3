package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/tphan267/arqut-signal/pkg/config"
	"github.com/tphan267/arqut-signal/pkg/logger"
	"github.com/tphan267/arqut-signal/pkg/models"
	"github.com/tphan267/arqut-signal/pkg/providers/call"
	"github.com/tphan267/arqut-signal/pkg/signaling"
	"github.com/tphan267/arqut-signal/pkg/storage"
)

// stubConn is an EventConn that never reaches a relay.
type stubConn struct{}

func (stubConn) Connect(context.Context) error        { return nil }
func (stubConn) On(string, signaling.EventHandler)    {}
func (stubConn) OnStateChange(signaling.StateHandler) {}
func (stubConn) Emit(string, ...any)                  {}
func (stubConn) State() signaling.ConnectionState     { return signaling.Disconnected }
func (stubConn) Disconnect()                          {}

func TestServiceRegistryIntegration(t *testing.T) {
	testLogger := logger.New(io.Discard, "TEST", logger.ErrorLevel)

	store, err := storage.NewSQLiteStorage(storage.MemoryPath, testLogger)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	defer store.Close()

	sigClient, err := signaling.NewClient(stubConn{}, config.DefaultRoom, testLogger)
	if err != nil {
		t.Fatalf("Failed to create signaling client: %v", err)
	}

	cfg := &config.Config{STUNServers: []string{}}
	registry := createServiceRegistry(store, testLogger, cfg, sigClient)

	ctx := context.Background()
	if err := registry.InitializeAll(ctx); err != nil {
		t.Fatalf("Failed to initialize services: %v", err)
	}

	journalProvider, err := registry.GetJournal()
	if err != nil {
		t.Fatalf("Failed to get journal provider: %v", err)
	}
	if journalProvider.SessionID() == "" {
		t.Error("Expected journal session id")
	}

	callProvider, err := registry.GetCall()
	if err != nil {
		t.Fatalf("Failed to get call provider: %v", err)
	}
	if got := callProvider.Status().Role; got != call.RoleNone {
		t.Errorf("Expected idle call, got role %s", got)
	}

	// The call peer sits behind the journal, so a room-full notification
	// is recorded and ends the session.
	svc, err := registry.Get("call")
	if err != nil {
		t.Fatalf("Failed to get call service: %v", err)
	}
	peer := svc.(*call.Service).Peer()
	if peer == nil {
		t.Fatal("Expected call peer with a signaling client")
	}
	journalProvider.Wrap(peer).OnRoomFull()

	select {
	case <-peer.Done():
	case <-time.After(time.Second):
		t.Fatal("Expected room-full to end the session")
	}

	events, err := journalProvider.Events(ctx, models.EventFilter{Kind: models.KindRoomFull})
	if err != nil {
		t.Fatalf("Failed to list events: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("Expected one room_full event, got %d", len(events))
	}

	if err := registry.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestRenderEvents(t *testing.T) {
	var buf bytes.Buffer
	renderEvents(&buf, []*models.CallEvent{
		{
			SessionID: "0f6c2b1e-94a3-4c55-8f7e-1b2a3c4d5e6f",
			Room:      "OldPlace",
			Kind:      models.KindPeerLeave,
			PeerID:    "peer-42",
			CreatedAt: time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC),
		},
	})

	out := buf.String()
	for _, want := range []string{"0f6c2b1e", "OldPlace", "peer_leave", "peer-42", "2024-05-01 12:30:00"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "94a3") {
		t.Errorf("Expected session id to be shortened:\n%s", out)
	}
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := newLogger("loud"); err == nil {
		t.Error("Expected error for unknown log level")
	}
	appLogger, err := newLogger("warn")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	if appLogger.Level() != logger.WarnLevel {
		t.Errorf("Expected warn level, got %s", appLogger.Level())
	}
}
