package signaling

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tphan267/arqut-signal/pkg/logger"
)

const (
	defaultOutboundBuffer   = 100
	defaultHandshakeTimeout = 10 * time.Second
	defaultKeepalive        = 30 * time.Second
	writeWait               = 10 * time.Second
	maxMessageSize          = 64 * 1024
)

// ErrClosed is returned by Connect after Disconnect.
var ErrClosed = errors.New("signaling connection closed")

// SecurityConfig selects how the relay's TLS certificate is checked.
type SecurityConfig struct {
	// VerifyServerCertificate disables certificate and hostname checks when
	// false. Only meant for local test relays with self-signed certificates.
	VerifyServerCertificate bool
	// CustomTrustAnchors replaces the system roots when set.
	CustomTrustAnchors *x509.CertPool
}

// DefaultSecurityConfig verifies the server certificate against system roots.
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{VerifyServerCertificate: true}
}

func (s SecurityConfig) tlsConfig() (*tls.Config, error) {
	if !s.VerifyServerCertificate && s.CustomTrustAnchors != nil {
		return nil, configErrorf("security config", "custom trust anchors require certificate verification")
	}
	return &tls.Config{
		MinVersion:         tls.VersionTLS12,
		RootCAs:            s.CustomTrustAnchors,
		InsecureSkipVerify: !s.VerifyServerCertificate, //nolint:gosec // opt-in debug mode
	}, nil
}

// EventHandler handles one occurrence of a named inbound event.
type EventHandler func(args []any)

// StateHandler observes connection state transitions. err carries the cause of
// a transition to Disconnected and is nil after Disconnect.
type StateHandler func(state ConnectionState, err error)

// ConnOption configures a Connection.
type ConnOption func(*Connection)

func WithCodec(codec Codec) ConnOption {
	return func(c *Connection) { c.codec = codec }
}

func WithLogger(log *logger.Logger) ConnOption {
	return func(c *Connection) { c.logger = log }
}

// WithHeader adds headers to the websocket handshake request.
func WithHeader(header http.Header) ConnOption {
	return func(c *Connection) { c.header = header.Clone() }
}

// WithOutboundBuffer sets how many emitted frames may queue before the writer
// drains them. Frames emitted while the queue is full are dropped.
func WithOutboundBuffer(n int) ConnOption {
	return func(c *Connection) {
		if n > 0 {
			c.outboundSize = n
		}
	}
}

func WithHandshakeTimeout(d time.Duration) ConnOption {
	return func(c *Connection) { c.handshakeTimeout = d }
}

// WithKeepalive sets the ping interval. The relay is considered gone when
// nothing, pongs included, arrives for two intervals.
func WithKeepalive(d time.Duration) ConnOption {
	return func(c *Connection) {
		if d > 0 {
			c.keepalive = d
		}
	}
}

// Connection owns one websocket to a relay endpoint. It has no room semantics:
// it dispatches named inbound events to subscribers and writes emitted events
// without acknowledgement.
type Connection struct {
	endpoint         *url.URL
	dialer           *websocket.Dialer
	header           http.Header
	codec            Codec
	logger           *logger.Logger
	handshakeTimeout time.Duration
	keepalive        time.Duration
	outboundSize     int

	state atomic.Int32

	conn       *websocket.Conn
	started    bool
	closed     bool
	ctx        context.Context
	cancel     context.CancelFunc
	mutex      sync.RWMutex
	writeMutex sync.Mutex

	handlers      map[string][]EventHandler
	stateHandlers []StateHandler
	handlerMutex  sync.RWMutex

	outbound chan Frame
}

// NewConnection validates the endpoint and security settings. It performs no
// I/O; call Connect to start dialing.
func NewConnection(endpointURL string, security SecurityConfig, opts ...ConnOption) (*Connection, error) {
	endpoint, err := parseEndpoint(endpointURL)
	if err != nil {
		return nil, err
	}

	tlsConfig, err := security.tlsConfig()
	if err != nil {
		return nil, err
	}

	c := &Connection{
		endpoint:         endpoint,
		codec:            JSONCodec{},
		handshakeTimeout: defaultHandshakeTimeout,
		keepalive:        defaultKeepalive,
		outboundSize:     defaultOutboundBuffer,
		handlers:         make(map[string][]EventHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.NewDefault("ARQUT")
	}

	c.dialer = &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.handshakeTimeout,
		TLSClientConfig:  tlsConfig,
	}
	c.outbound = make(chan Frame, c.outboundSize)

	if !security.VerifyServerCertificate {
		c.logger.Warn("[Signaling] TLS certificate verification is disabled for %s", endpoint.Host)
	}

	return c, nil
}

// parseEndpoint accepts ws, wss, http and https URLs; http(s) is rewritten to ws(s).
func parseEndpoint(raw string) (*url.URL, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, configErrorf("endpoint URL", "empty URL")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &ConfigurationError{Field: "endpoint URL", Err: err}
	}

	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return nil, configErrorf("endpoint URL", "unsupported scheme %q in %q", u.Scheme, raw)
	}
	if u.Host == "" {
		return nil, configErrorf("endpoint URL", "missing host in %q", raw)
	}
	return u, nil
}

// Endpoint returns the websocket URL the connection dials.
func (c *Connection) Endpoint() string {
	return c.endpoint.String()
}

// Codec returns the frame codec in use.
func (c *Connection) Codec() Codec {
	return c.codec
}

// State returns the current connection state.
func (c *Connection) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// Connect starts the asynchronous dial. The outcome is observable through
// OnStateChange. ctx bounds the lifetime of the whole connection: when it ends
// the socket is closed and the state becomes Disconnected with ctx's error.
func (c *Connection) Connect(ctx context.Context) error {
	c.mutex.Lock()
	if c.closed {
		c.mutex.Unlock()
		return ErrClosed
	}
	if c.started {
		c.mutex.Unlock()
		return ErrAlreadyConnected
	}
	c.started = true
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.mutex.Unlock()

	c.setState(Connecting, nil)
	go c.run()
	return nil
}

func (c *Connection) run() {
	c.logger.Info("[Signaling] Connecting to %s", c.endpoint.Redacted())

	conn, _, err := c.dialer.DialContext(c.ctx, c.endpoint.String(), c.header)
	if err != nil {
		c.logger.Error("[Signaling] Connection failed: %v", err)
		c.setState(Disconnected, fmt.Errorf("failed to connect to relay: %w", err))
		return
	}

	c.mutex.Lock()
	if c.closed {
		c.mutex.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.mutex.Unlock()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(c.pongWait()))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.pongWait()))
	})

	if !c.transition(Connecting, Connected) {
		conn.Close()
		return
	}
	c.logger.Info("[Signaling] Connected to relay (codec %s)", c.codec.Name())

	go c.processOutbound(conn)
	go c.ping(conn)
	go c.watchContext(conn)
	c.readMessages(conn)
}

func (c *Connection) pongWait() time.Duration {
	return 2 * c.keepalive
}

// watchContext drops the connection when the Connect context ends.
func (c *Connection) watchContext(conn *websocket.Conn) {
	<-c.ctx.Done()
	c.drop(conn, fmt.Errorf("relay connection cancelled: %w", c.ctx.Err()))
}

// readMessages decodes frames and dispatches them in arrival order.
func (c *Connection) readMessages(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.isClosed() || c.ctx.Err() != nil {
				return
			}
			c.logger.Warn("[Signaling] Read error: %v", err)
			c.drop(conn, fmt.Errorf("relay connection lost: %w", err))
			return
		}

		frame, err := c.codec.Decode(data)
		if err != nil {
			c.logger.Warn("[Signaling] Dropping frame: %v", err)
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(c.pongWait()))
		c.dispatch(frame)
	}
}

func (c *Connection) dispatch(frame Frame) {
	c.handlerMutex.RLock()
	handlers := append([]EventHandler(nil), c.handlers[frame.Event]...)
	c.handlerMutex.RUnlock()

	if len(handlers) == 0 {
		c.logger.Debug("[Signaling] No handler for event: %s", frame.Event)
		return
	}
	for _, handler := range handlers {
		c.invoke(frame.Event, handler, frame.Args)
	}
}

func (c *Connection) invoke(event string, handler EventHandler, args []any) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("[Signaling] Handler for %q panicked: %v", event, r)
		}
	}()
	handler(args)
}

// On subscribes handler to a named inbound event. Handlers for the same event
// run in registration order.
func (c *Connection) On(event string, handler EventHandler) {
	c.handlerMutex.Lock()
	defer c.handlerMutex.Unlock()
	c.handlers[event] = append(c.handlers[event], handler)
}

// OnStateChange subscribes to connection state transitions.
func (c *Connection) OnStateChange(handler StateHandler) {
	c.handlerMutex.Lock()
	defer c.handlerMutex.Unlock()
	c.stateHandlers = append(c.stateHandlers, handler)
}

// Emit queues an event for sending and returns immediately. Frames emitted
// before the connection is established are sent once it is.
func (c *Connection) Emit(event string, args ...any) {
	if c.isClosed() {
		c.logger.Debug("[Signaling] Skipping %q (connection closed)", event)
		return
	}
	select {
	case c.outbound <- Frame{Event: event, Args: args}:
	default:
		c.logger.Warn("[Signaling] Outbound queue full, dropping %q", event)
	}
}

func (c *Connection) processOutbound(conn *websocket.Conn) {
	for {
		select {
		case <-c.ctx.Done():
			return
		case frame := <-c.outbound:
			if err := c.write(conn, frame); err != nil {
				c.logger.Warn("[Signaling] Failed to send %q: %v", frame.Event, err)
			}
		}
	}
}

func (c *Connection) write(conn *websocket.Conn, frame Frame) error {
	data, err := c.codec.Encode(frame)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}

	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(c.codec.MessageType(), data)
}

// ping sends periodic ping messages. A failed ping drops the connection.
func (c *Connection) ping(conn *websocket.Conn) {
	ticker := time.NewTicker(c.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.writeMutex.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMutex.Unlock()
			if err != nil {
				c.logger.Warn("[Signaling] Ping failed: %v", err)
				c.drop(conn, fmt.Errorf("relay keepalive failed: %w", err))
				return
			}
		}
	}
}

// drop tears down a connection that failed underneath us. Only the first
// caller for conn reports the cause.
func (c *Connection) drop(conn *websocket.Conn, cause error) {
	c.mutex.Lock()
	if c.conn != conn {
		c.mutex.Unlock()
		return
	}
	c.conn = nil
	c.mutex.Unlock()

	c.cancel()
	conn.Close()
	c.setState(Disconnected, cause)
}

// Disconnect closes the connection. No state change is reported as an error
// afterwards. It is safe to call more than once.
func (c *Connection) Disconnect() {
	c.mutex.Lock()
	if c.closed {
		c.mutex.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	cancel := c.cancel
	c.mutex.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		c.writeMutex.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		c.writeMutex.Unlock()
		conn.Close()
	}

	c.setState(Disconnected, nil)
	c.logger.Info("[Signaling] Connection closed")
}

func (c *Connection) isClosed() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.closed
}

func (c *Connection) setState(state ConnectionState, cause error) {
	prev := ConnectionState(c.state.Swap(int32(state)))
	if prev == state {
		return
	}
	c.notifyState(state, cause)
}

// transition changes state only if it is still from, so a concurrent
// Disconnect is never overwritten.
func (c *Connection) transition(from, to ConnectionState) bool {
	if !c.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	c.notifyState(to, nil)
	return true
}

func (c *Connection) notifyState(state ConnectionState, cause error) {
	c.handlerMutex.RLock()
	handlers := append([]StateHandler(nil), c.stateHandlers...)
	c.handlerMutex.RUnlock()

	for _, handler := range handlers {
		handler(state, cause)
	}
}
