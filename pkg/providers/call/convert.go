package call

import (
	"github.com/pion/webrtc/v4"
	"github.com/tphan267/arqut-signal/pkg/signaling"
)

func ToPion(desc signaling.SessionDescription) webrtc.SessionDescription {
	return webrtc.SessionDescription{
		Type: webrtc.NewSDPType(string(desc.Type)),
		SDP:  desc.SDP,
	}
}

func FromPion(desc webrtc.SessionDescription) signaling.SessionDescription {
	return signaling.SessionDescription{
		Type: signaling.SDPType(desc.Type.String()),
		SDP:  desc.SDP,
	}
}

// ToPionCandidate converts a relayed candidate. An empty mid is left unset.
// Decoded candidates carry an index no larger than signaling.MaxSDPMLineIndex.
func ToPionCandidate(c signaling.IceCandidate) webrtc.ICECandidateInit {
	index := uint16(c.SDPMLineIndex)
	init := webrtc.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMLineIndex: &index,
	}
	if c.SDPMid != "" {
		mid := c.SDPMid
		init.SDPMid = &mid
	}
	return init
}

func FromPionCandidate(init webrtc.ICECandidateInit) signaling.IceCandidate {
	c := signaling.IceCandidate{Candidate: init.Candidate}
	if init.SDPMid != nil {
		c.SDPMid = *init.SDPMid
	}
	if init.SDPMLineIndex != nil {
		c.SDPMLineIndex = int(*init.SDPMLineIndex)
	}
	return c
}
