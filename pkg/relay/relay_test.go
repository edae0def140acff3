package relay

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tphan267/arqut-signal/pkg/logger"
	"github.com/tphan267/arqut-signal/pkg/signaling"
)

// eventSink forwards notifications to a channel.
type eventSink struct {
	signaling.NopHandler
	events     chan string
	offers     chan signaling.SessionDescription
	candidates chan signaling.IceCandidate
	leaves     chan string
}

func newEventSink() *eventSink {
	return &eventSink{
		events:     make(chan string, 16),
		offers:     make(chan signaling.SessionDescription, 4),
		candidates: make(chan signaling.IceCandidate, 4),
		leaves:     make(chan string, 4),
	}
}

func (s *eventSink) OnCreateRoom() { s.events <- "create-room" }
func (s *eventSink) OnPeerJoined() { s.events <- "peer-joined" }
func (s *eventSink) OnSelfJoined() { s.events <- "self-joined" }
func (s *eventSink) OnRoomFull()   { s.events <- "room-full" }

func (s *eventSink) OnPeerLeave(peerID string) {
	s.leaves <- peerID
}

func (s *eventSink) OnOfferReceived(desc signaling.SessionDescription) {
	s.offers <- desc
}

func (s *eventSink) OnIceCandidateReceived(candidate signaling.IceCandidate) {
	s.candidates <- candidate
}

func (s *eventSink) expect(t *testing.T, want string) {
	t.Helper()
	select {
	case got := <-s.events:
		if got != want {
			t.Fatalf("Expected %s, got %s", want, got)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Timed out waiting for %s", want)
	}
}

func testLogger() *logger.Logger {
	return logger.New(io.Discard, "TEST", logger.DebugLevel)
}

func startRelay(t *testing.T) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	srv := NewServer(testLogger())
	go srv.Run(ctx)

	httpSrv := httptest.NewServer(srv)
	t.Cleanup(func() {
		cancel()
		httpSrv.Close()
	})
	return "ws" + strings.TrimPrefix(httpSrv.URL, "http")
}

func openClient(t *testing.T, url, room string, codec signaling.Codec, sink *eventSink) *signaling.Client {
	t.Helper()
	client, err := signaling.Open(context.Background(), signaling.Options{
		EndpointURL: url,
		Room:        room,
		Security:    signaling.DefaultSecurityConfig(),
		Codec:       codec,
		Handler:     sink,
		Logger:      testLogger(),
	})
	if err != nil {
		t.Fatalf("Failed to open client: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func TestTwoPeersExchangeHandshake(t *testing.T) {
	url := startRelay(t)

	first := newEventSink()
	a := openClient(t, url, "OldPlace", signaling.JSONCodec{}, first)
	first.expect(t, "create-room")

	second := newEventSink()
	b := openClient(t, url, "OldPlace", signaling.MsgpackCodec{}, second)
	second.expect(t, "self-joined")
	first.expect(t, "peer-joined")

	a.SendOffer("v=0 offer")
	select {
	case desc := <-second.offers:
		if desc.Type != signaling.SDPTypeOffer || desc.SDP != "v=0 offer" {
			t.Errorf("Unexpected offer %+v", desc)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for offer")
	}

	b.SendIceCandidate(signaling.IceCandidate{SDPMid: "0", SDPMLineIndex: 1, Candidate: "cand-str"})
	select {
	case cand := <-first.candidates:
		want := signaling.IceCandidate{SDPMid: "0", SDPMLineIndex: 1, Candidate: "cand-str"}
		if cand != want {
			t.Errorf("Expected %+v, got %+v", want, cand)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for candidate")
	}

	b.Close()
	select {
	case peerID := <-first.leaves:
		if peerID == "" {
			t.Error("Expected a peer identifier in bye")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for bye")
	}
}

func TestThirdPeerIsRefused(t *testing.T) {
	url := startRelay(t)

	first := newEventSink()
	openClient(t, url, "room-1", nil, first)
	first.expect(t, "create-room")

	second := newEventSink()
	openClient(t, url, "room-1", nil, second)
	second.expect(t, "self-joined")

	third := newEventSink()
	c := openClient(t, url, "room-1", nil, third)
	third.expect(t, "room-full")

	if c.State() != signaling.RoomFull {
		t.Errorf("Expected %s, got %s", signaling.RoomFull, c.State())
	}
}

func TestRoomsAreIsolated(t *testing.T) {
	url := startRelay(t)

	first := newEventSink()
	openClient(t, url, "alpha", nil, first)
	first.expect(t, "create-room")

	second := newEventSink()
	openClient(t, url, "beta", nil, second)
	second.expect(t, "create-room")

	select {
	case got := <-first.events:
		t.Errorf("Unexpected notification in other room: %s", got)
	case <-time.After(200 * time.Millisecond):
	}
}
