package models

import "time"

// Event kinds recorded by the journal. They mirror the Handler notifications.
const (
	KindCreateRoom     = "create_room"
	KindPeerJoined     = "peer_joined"
	KindSelfJoined     = "self_joined"
	KindPeerLeave      = "peer_leave"
	KindOffer          = "offer"
	KindAnswer         = "answer"
	KindIceCandidate   = "ice_candidate"
	KindRoomFull       = "room_full"
	KindConnectionLost = "connection_lost"
)

// CallEvent is one signaling notification observed by a session.
type CallEvent struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	SessionID string    `json:"session_id" gorm:"type:varchar(36);index"`
	Room      string    `json:"room" gorm:"type:varchar(128);index"`
	Kind      string    `json:"kind" gorm:"type:varchar(32);index"`
	PeerID    string    `json:"peer_id,omitempty" gorm:"type:varchar(64)"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName overrides the table name
func (CallEvent) TableName() string {
	return "call_events"
}

// EventFilter narrows journal queries. Zero values match everything.
type EventFilter struct {
	SessionID string
	Room      string
	Kind      string
	Limit     int
}
