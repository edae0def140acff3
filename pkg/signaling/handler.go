package signaling

// Handler receives room-lifecycle and handshake notifications from a Client.
// Calls are made sequentially from the connection's read goroutine.
type Handler interface {
	// OnCreateRoom fires when this client created the room and is its first occupant.
	OnCreateRoom()
	// OnPeerJoined fires when a second peer joined this client's room.
	OnPeerJoined()
	// OnSelfJoined fires when this client joined an existing room as second occupant.
	OnSelfJoined()
	// OnPeerLeave fires when the relay reports that peerID left.
	OnPeerLeave(peerID string)
	OnOfferReceived(desc SessionDescription)
	OnAnswerReceived(desc SessionDescription)
	OnIceCandidateReceived(candidate IceCandidate)
	// OnRoomFull fires when the relay refused the join. The client stays unusable.
	OnRoomFull()
	// OnConnectionLost fires when the relay connection failed or dropped without Close.
	OnConnectionLost(err error)
}

// NopHandler ignores every notification. Embed it to implement only a subset.
type NopHandler struct{}

func (NopHandler) OnCreateRoom()                       {}
func (NopHandler) OnPeerJoined()                       {}
func (NopHandler) OnSelfJoined()                       {}
func (NopHandler) OnPeerLeave(string)                  {}
func (NopHandler) OnOfferReceived(SessionDescription)  {}
func (NopHandler) OnAnswerReceived(SessionDescription) {}
func (NopHandler) OnIceCandidateReceived(IceCandidate) {}
func (NopHandler) OnRoomFull()                         {}
func (NopHandler) OnConnectionLost(error)              {}

var _ Handler = NopHandler{}
