package journal

import (
	"fmt"

	"github.com/tphan267/arqut-signal/pkg/models"
	"github.com/tphan267/arqut-signal/pkg/signaling"
)

// Recorder is a signaling.Handler that journals notifications and forwards
// them unchanged to the wrapped handler.
type Recorder struct {
	journal *Service
	next    signaling.Handler
}

func (r *Recorder) record(kind, peerID, detail string) {
	if err := r.journal.Record(kind, peerID, detail); err != nil {
		r.journal.logger.Warn("[Journal] Failed to record %s: %v", kind, err)
	}
}

func (r *Recorder) OnCreateRoom() {
	r.record(models.KindCreateRoom, "", "")
	r.next.OnCreateRoom()
}

func (r *Recorder) OnPeerJoined() {
	r.record(models.KindPeerJoined, "", "")
	r.next.OnPeerJoined()
}

func (r *Recorder) OnSelfJoined() {
	r.record(models.KindSelfJoined, "", "")
	r.next.OnSelfJoined()
}

func (r *Recorder) OnPeerLeave(peerID string) {
	r.record(models.KindPeerLeave, peerID, "")
	r.next.OnPeerLeave(peerID)
}

func (r *Recorder) OnOfferReceived(desc signaling.SessionDescription) {
	r.record(models.KindOffer, "", fmt.Sprintf("%d bytes", len(desc.SDP)))
	r.next.OnOfferReceived(desc)
}

func (r *Recorder) OnAnswerReceived(desc signaling.SessionDescription) {
	r.record(models.KindAnswer, "", fmt.Sprintf("%d bytes", len(desc.SDP)))
	r.next.OnAnswerReceived(desc)
}

func (r *Recorder) OnIceCandidateReceived(candidate signaling.IceCandidate) {
	r.record(models.KindIceCandidate, "", candidate.Candidate)
	r.next.OnIceCandidateReceived(candidate)
}

func (r *Recorder) OnRoomFull() {
	r.record(models.KindRoomFull, "", "")
	r.next.OnRoomFull()
}

func (r *Recorder) OnConnectionLost(err error) {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	r.record(models.KindConnectionLost, "", detail)
	r.next.OnConnectionLost(err)
}

var _ signaling.Handler = (*Recorder)(nil)
