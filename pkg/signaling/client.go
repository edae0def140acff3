package signaling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tphan267/arqut-signal/pkg/logger"
	"github.com/tphan267/arqut-signal/pkg/utils"
)

// EventConn is the part of Connection the Client depends on.
type EventConn interface {
	Connect(ctx context.Context) error
	On(event string, handler EventHandler)
	OnStateChange(handler StateHandler)
	Emit(event string, args ...any)
	State() ConnectionState
	Disconnect()
}

var _ EventConn = (*Connection)(nil)

// Client joins one room over an exclusively owned connection and turns relay
// events into Handler notifications.
type Client struct {
	conn   EventConn
	room   string
	logger *logger.Logger

	state      RoomState
	closed     bool
	subscribed bool
	mutex      sync.Mutex

	handler      Handler
	handlerMutex sync.RWMutex
}

// NewClient creates a client for room on conn. The client takes ownership of conn.
func NewClient(conn EventConn, room string, log *logger.Logger) (*Client, error) {
	if conn == nil {
		return nil, errors.New("signaling client requires a connection")
	}
	if strings.TrimSpace(room) == "" {
		return nil, configErrorf("room", "empty room identifier")
	}
	if log == nil {
		log = logger.NewDefault("ARQUT")
	}
	return &Client{
		conn:   conn,
		room:   room,
		logger: log,
	}, nil
}

// Options configures Open.
type Options struct {
	EndpointURL string
	Room        string
	Security    SecurityConfig
	Codec       Codec
	Handler     Handler
	Logger      *logger.Logger
	ConnOptions []ConnOption
}

// Open validates the configuration, builds the connection and the client, and
// requests the room. Configuration errors are returned before any I/O.
func Open(ctx context.Context, opts Options) (*Client, error) {
	connOpts := make([]ConnOption, 0, len(opts.ConnOptions)+2)
	if opts.Logger != nil {
		connOpts = append(connOpts, WithLogger(opts.Logger))
	}
	if opts.Codec != nil {
		connOpts = append(connOpts, WithCodec(opts.Codec))
	}
	connOpts = append(connOpts, opts.ConnOptions...)

	conn, err := NewConnection(opts.EndpointURL, opts.Security, connOpts...)
	if err != nil {
		return nil, err
	}

	client, err := NewClient(conn, opts.Room, opts.Logger)
	if err != nil {
		return nil, err
	}
	if opts.Handler != nil {
		client.SetHandler(opts.Handler)
	}

	if err := client.Join(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

// Join subscribes to relay events, connects, and emits the create-or-join
// request. When the connection cannot be started the client returns to Idle
// and Join may be called again.
func (c *Client) Join(ctx context.Context) error {
	c.mutex.Lock()
	if c.closed {
		c.mutex.Unlock()
		return ErrClosed
	}
	if c.state != Idle {
		state := c.state
		c.mutex.Unlock()
		return fmt.Errorf("join already requested (state %s)", state)
	}
	c.state = AwaitingRoomResult
	subscribe := !c.subscribed
	c.subscribed = true
	c.mutex.Unlock()

	if subscribe {
		c.conn.On(EventCreated, c.handleCreated)
		c.conn.On(EventFull, c.handleFull)
		c.conn.On(EventJoin, c.handlePeerJoin)
		c.conn.On(EventJoined, c.handleJoined)
		c.conn.On(EventLog, c.handleLog)
		c.conn.On(EventBye, c.handleBye)
		c.conn.On(EventMessage, c.handleMessage)
		c.conn.OnStateChange(c.handleConnectionState)
	}

	if err := c.conn.Connect(ctx); err != nil {
		c.mutex.Lock()
		if c.state == AwaitingRoomResult {
			c.state = Idle
		}
		c.mutex.Unlock()
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.conn.Emit(EventCreateOrJoin, c.room)
	c.logger.Info("[Signaling] Requested room %s", c.room)
	return nil
}

// SetHandler replaces the notification sink. Notifications dispatched after
// the call go to handler; nil disables notifications.
func (c *Client) SetHandler(handler Handler) {
	c.handlerMutex.Lock()
	defer c.handlerMutex.Unlock()
	c.handler = handler
}

// Room returns the room identifier.
func (c *Client) Room() string {
	return c.room
}

// State returns the room state.
func (c *Client) State() RoomState {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.state
}

// ConnectionState returns the state of the underlying connection.
func (c *Client) ConnectionState() ConnectionState {
	return c.conn.State()
}

// SendSessionDescription relays an offer or answer to the peer.
func (c *Client) SendSessionDescription(desc SessionDescription) error {
	if desc.Type != SDPTypeOffer && desc.Type != SDPTypeAnswer {
		return fmt.Errorf("unsupported session description type %q", desc.Type)
	}
	c.logger.Debug("[Signaling] Sending %s", desc.Type)
	c.conn.Emit(EventMessage, EncodePayload(desc))
	return nil
}

// SendOffer relays an offer SDP.
func (c *Client) SendOffer(sdp string) {
	_ = c.SendSessionDescription(SessionDescription{Type: SDPTypeOffer, SDP: sdp})
}

// SendAnswer relays an answer SDP.
func (c *Client) SendAnswer(sdp string) {
	_ = c.SendSessionDescription(SessionDescription{Type: SDPTypeAnswer, SDP: sdp})
}

// SendIceCandidate relays a network-path candidate.
func (c *Client) SendIceCandidate(candidate IceCandidate) {
	c.logger.Debug("[Signaling] Sending candidate mid=%s index=%d", candidate.SDPMid, candidate.SDPMLineIndex)
	c.conn.Emit(EventMessage, EncodePayload(candidate))
}

// Close disconnects from the relay. No notifications are delivered afterwards.
func (c *Client) Close() {
	c.mutex.Lock()
	if c.closed {
		c.mutex.Unlock()
		return
	}
	c.closed = true
	c.mutex.Unlock()

	c.conn.Disconnect()
}

func (c *Client) handleCreated([]any) {
	if !c.advance(AwaitingRoomResult, RoomOpen, EventCreated) {
		return
	}
	c.logger.Info("[Signaling] Room %s created", c.room)
	c.notify(func(h Handler) { h.OnCreateRoom() })
}

func (c *Client) handleJoined([]any) {
	if !c.advance(AwaitingRoomResult, RoomOpen, EventJoined) {
		return
	}
	c.logger.Info("[Signaling] Joined room %s", c.room)
	c.notify(func(h Handler) { h.OnSelfJoined() })
}

func (c *Client) handleFull([]any) {
	if !c.advance(AwaitingRoomResult, RoomFull, EventFull) {
		return
	}
	c.logger.Warn("[Signaling] Room %s is full", c.room)
	c.notify(func(h Handler) { h.OnRoomFull() })
}

func (c *Client) handlePeerJoin([]any) {
	if !c.inRoom(EventJoin) {
		return
	}
	c.logger.Info("[Signaling] Peer joined room %s", c.room)
	c.notify(func(h Handler) { h.OnPeerJoined() })
}

func (c *Client) handleBye(args []any) {
	if !c.inRoom(EventBye) {
		return
	}
	if len(args) == 0 {
		c.logger.Warn("[Signaling] %v", &DecodeError{Event: EventBye, Reason: "missing peer identifier"})
		return
	}
	peerID, ok := args[0].(string)
	if !ok {
		c.logger.Warn("[Signaling] %v", &DecodeError{Event: EventBye, Reason: fmt.Sprintf("peer identifier is %T", args[0])})
		return
	}
	c.logger.Info("[Signaling] Peer %s left room %s", peerID, c.room)
	c.notify(func(h Handler) { h.OnPeerLeave(peerID) })
}

func (c *Client) handleMessage(args []any) {
	if !c.inRoom(EventMessage) {
		return
	}
	if len(args) == 0 {
		c.logger.Debug("[Signaling] %v", &DecodeError{Event: EventMessage, Reason: "no payload"})
		return
	}

	payload, err := DecodePayload(args[0])
	if err != nil {
		c.logger.Debug("[Signaling] Dropping message: %v", err)
		return
	}

	switch p := payload.(type) {
	case nil:
		c.logger.Debug("[Signaling] Ignoring scalar message: %v", args[0])
	case SessionDescription:
		if p.Type == SDPTypeOffer {
			c.notify(func(h Handler) { h.OnOfferReceived(p) })
		} else {
			c.notify(func(h Handler) { h.OnAnswerReceived(p) })
		}
	case IceCandidate:
		c.notify(func(h Handler) { h.OnIceCandidateReceived(p) })
	}
}

func (c *Client) handleLog(args []any) {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		parts = append(parts, utils.ToString(arg))
	}
	c.logger.Debug("[Signaling] Relay log: %s", strings.Join(parts, " "))
}

func (c *Client) handleConnectionState(state ConnectionState, err error) {
	c.logger.Debug("[Signaling] Connection %s", state)
	if state != Disconnected || err == nil {
		return
	}

	c.mutex.Lock()
	closed := c.closed
	c.mutex.Unlock()
	if closed {
		return
	}

	c.logger.Error("[Signaling] Lost relay connection: %v", err)
	c.notify(func(h Handler) { h.OnConnectionLost(err) })
}

// advance moves the state machine from one state to another.
func (c *Client) advance(from, to RoomState, event string) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.closed {
		return false
	}
	if c.state != from {
		c.logger.Warn("[Signaling] Ignoring %q in state %s", event, c.state)
		return false
	}
	c.state = to
	return true
}

func (c *Client) inRoom(event string) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.closed {
		return false
	}
	if c.state != RoomOpen {
		c.logger.Warn("[Signaling] Ignoring %q in state %s", event, c.state)
		return false
	}
	return true
}

func (c *Client) notify(fn func(Handler)) {
	c.handlerMutex.RLock()
	handler := c.handler
	c.handlerMutex.RUnlock()

	if handler == nil {
		c.logger.Debug("[Signaling] No handler registered, notification dropped")
		return
	}
	fn(handler)
}
