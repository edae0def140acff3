package signaling

// Wire event names exchanged with the relay.
const (
	EventCreateOrJoin = "create or join"
	EventCreated      = "created"
	EventFull         = "full"
	EventJoin         = "join"
	EventJoined       = "joined"
	EventLog          = "log"
	EventBye          = "bye"
	EventMessage      = "message"
)

// ConnectionState is the lifecycle of the relay connection.
type ConnectionState int32

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// RoomState is the client's position in the room-join state machine.
type RoomState int

const (
	// Idle is the state before Join.
	Idle RoomState = iota
	// AwaitingRoomResult follows the create-or-join request.
	AwaitingRoomResult
	// RoomOpen is reached after created or joined.
	RoomOpen
	// RoomFull is terminal; the relay refused the join.
	RoomFull
)

func (s RoomState) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingRoomResult:
		return "awaiting-room-result"
	case RoomOpen:
		return "room-open"
	case RoomFull:
		return "room-full"
	default:
		return "unknown"
	}
}
