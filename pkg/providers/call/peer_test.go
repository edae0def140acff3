package call

import (
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/tphan267/arqut-signal/pkg/logger"
	"github.com/tphan267/arqut-signal/pkg/signaling"
)

type fakeSender struct {
	mu         sync.Mutex
	descs      []signaling.SessionDescription
	candidates []signaling.IceCandidate
}

func (f *fakeSender) SendSessionDescription(desc signaling.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.descs = append(f.descs, desc)
	return nil
}

func (f *fakeSender) SendIceCandidate(candidate signaling.IceCandidate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates = append(f.candidates, candidate)
}

func (f *fakeSender) lastDesc(t *testing.T) signaling.SessionDescription {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.descs) == 0 {
		t.Fatal("Expected a session description to be sent")
	}
	return f.descs[len(f.descs)-1]
}

func (f *fakeSender) descCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.descs)
}

func newTestPeer(t *testing.T, sender Sender) *Peer {
	t.Helper()
	peer, err := NewPeer([]webrtc.ICEServer{}, sender, logger.New(io.Discard, "TEST", logger.ErrorLevel))
	if err != nil {
		t.Fatalf("Failed to create peer: %v", err)
	}
	t.Cleanup(peer.Hangup)
	return peer
}

func TestNewPeerRequiresSender(t *testing.T) {
	if _, err := NewPeer(nil, nil, nil); err == nil {
		t.Error("Expected error without sender")
	}
}

func TestOfferAnswerExchange(t *testing.T) {
	offerSender := &fakeSender{}
	answerSender := &fakeSender{}
	offerer := newTestPeer(t, offerSender)
	answerer := newTestPeer(t, answerSender)

	offerer.OnPeerJoined()
	offer := offerSender.lastDesc(t)
	if offer.Type != signaling.SDPTypeOffer {
		t.Fatalf("Expected offer, got %s", offer.Type)
	}
	if !strings.Contains(offer.SDP, "m=application") {
		t.Errorf("Expected data channel section in offer SDP")
	}
	if got := offerer.Status(); got.Role != RoleOfferer || got.SignalingState != "have-local-offer" {
		t.Errorf("Unexpected offerer status %+v", got)
	}

	answerer.OnIceCandidateReceived(signaling.IceCandidate{
		SDPMid:        "0",
		SDPMLineIndex: 0,
		Candidate:     "candidate:1 1 udp 2130706431 192.0.2.1 50000 typ host",
	})
	if got := answerer.Status().PendingCandidates; got != 1 {
		t.Fatalf("Expected 1 queued candidate, got %d", got)
	}

	answerer.OnOfferReceived(offer)
	answer := answerSender.lastDesc(t)
	if answer.Type != signaling.SDPTypeAnswer {
		t.Fatalf("Expected answer, got %s", answer.Type)
	}
	status := answerer.Status()
	if status.Role != RoleAnswerer || status.SignalingState != "stable" {
		t.Errorf("Unexpected answerer status %+v", status)
	}
	if status.PendingCandidates != 0 {
		t.Errorf("Expected queued candidates to be flushed, got %d", status.PendingCandidates)
	}

	offerer.OnAnswerReceived(answer)
	if got := offerer.Status().SignalingState; got != "stable" {
		t.Errorf("Expected offerer to be stable, got %s", got)
	}

	offerer.OnPeerLeave("peer-42")
	if got := offerer.Status(); got.Role != RoleNone || got.ConnectionState != "closed" {
		t.Errorf("Expected closed call after peer leave, got %+v", got)
	}
}

func TestAnswerWithoutOfferIsIgnored(t *testing.T) {
	sender := &fakeSender{}
	peer := newTestPeer(t, sender)

	peer.OnAnswerReceived(signaling.SessionDescription{Type: signaling.SDPTypeAnswer, SDP: "v=0"})
	peer.OnConnectionLost(errors.New("gone"))
	peer.OnRoomFull()

	if sender.descCount() != 0 {
		t.Errorf("Expected nothing to be sent, got %d descriptions", sender.descCount())
	}
	if got := peer.Status().Role; got != RoleNone {
		t.Errorf("Expected no role, got %s", got)
	}
}

func TestDoneReportsFirstEnding(t *testing.T) {
	peer := newTestPeer(t, &fakeSender{})
	if peer.Err() != nil {
		t.Fatalf("Expected live session, got %v", peer.Err())
	}

	peer.OnRoomFull()
	peer.OnConnectionLost(errors.New("gone"))

	select {
	case <-peer.Done():
	default:
		t.Fatal("Expected Done to be closed")
	}
	if !errors.Is(peer.Err(), ErrRoomFull) {
		t.Errorf("Expected ErrRoomFull, got %v", peer.Err())
	}
}

func TestSendTextRequiresOpenChannel(t *testing.T) {
	peer := newTestPeer(t, &fakeSender{})
	if err := peer.SendText("hello"); !errors.Is(err, ErrNoDataChannel) {
		t.Errorf("Expected ErrNoDataChannel, got %v", err)
	}
}

func TestCandidateConversion(t *testing.T) {
	in := signaling.IceCandidate{SDPMid: "mid-1", SDPMLineIndex: 2, Candidate: "cand-str"}
	if out := FromPionCandidate(ToPionCandidate(in)); out != in {
		t.Errorf("Expected %+v, got %+v", in, out)
	}

	init := ToPionCandidate(signaling.IceCandidate{SDPMLineIndex: 1, Candidate: "c"})
	if init.SDPMid != nil {
		t.Error("Expected empty mid to stay unset")
	}

	desc := signaling.SessionDescription{Type: signaling.SDPTypeAnswer, SDP: "v=0"}
	if got := FromPion(ToPion(desc)); got != desc {
		t.Errorf("Expected %+v, got %+v", desc, got)
	}
}
