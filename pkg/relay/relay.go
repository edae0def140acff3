package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tphan267/arqut-signal/pkg/logger"
	"github.com/tphan267/arqut-signal/pkg/signaling"
)

// MaxOccupants is how many peers a room admits.
const MaxOccupants = 2

const sendBuffer = 32

// Server is a small room relay speaking the create-or-join protocol. A single
// hub goroutine owns all room state.
type Server struct {
	logger   *logger.Logger
	upgrader websocket.Upgrader

	rooms map[string][]*peer
	peers map[*peer]struct{}

	register   chan *peer
	unregister chan *peer
	inbound    chan *envelope
	done       chan struct{}
}

type envelope struct {
	from  *peer
	codec signaling.Codec
	frame signaling.Frame
}

// NewServer creates a relay. Call Run before serving connections.
func NewServer(log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewDefault("RELAY")
	}
	return &Server{
		logger: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		rooms:      make(map[string][]*peer),
		peers:      make(map[*peer]struct{}),
		register:   make(chan *peer),
		unregister: make(chan *peer),
		inbound:    make(chan *envelope),
		done:       make(chan struct{}),
	}
}

// ServeHTTP upgrades the request and attaches the socket to the hub.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("[Relay] Upgrade failed: %v", err)
		return
	}

	p := &peer{
		id:     uuid.NewString(),
		server: s,
		conn:   conn,
		send:   make(chan outbound, sendBuffer),
		codec:  signaling.JSONCodec{},
	}

	select {
	case s.register <- p:
	case <-s.done:
		conn.Close()
		return
	}

	go p.writePump()
	go p.readPump()
}

// Run processes hub events until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil

		case p := <-s.register:
			s.peers[p] = struct{}{}
			s.logger.Debug("[Relay] Peer %s connected from %s", p.id, p.conn.RemoteAddr())

		case p := <-s.unregister:
			s.leave(p)
			delete(s.peers, p)
			close(p.send)
			s.logger.Debug("[Relay] Peer %s disconnected", p.id)

		case env := <-s.inbound:
			env.from.codec = env.codec
			s.handle(env)
		}
	}
}

// ListenAndServe runs the hub and an HTTP server on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	hubErr := make(chan error, 1)
	go func() { hubErr <- s.Run(ctx) }()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("[Relay] Listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("relay server failed: %w", err)
	}
	return <-hubErr
}

func (s *Server) handle(env *envelope) {
	switch env.frame.Event {
	case signaling.EventCreateOrJoin:
		s.createOrJoin(env.from, env.frame.Args)

	case signaling.EventMessage:
		if env.from.room == "" {
			s.logger.Debug("[Relay] Dropping message from %s: not in a room", env.from.id)
			return
		}
		for _, other := range s.rooms[env.from.room] {
			if other != env.from {
				s.deliver(other, env.frame)
			}
		}

	case signaling.EventBye:
		s.leave(env.from)

	default:
		s.logger.Debug("[Relay] Unknown event %q from %s", env.frame.Event, env.from.id)
	}
}

func (s *Server) createOrJoin(p *peer, args []any) {
	if len(args) == 0 {
		s.logger.Warn("[Relay] create or join from %s without room", p.id)
		return
	}
	room, ok := args[0].(string)
	if !ok || room == "" {
		s.logger.Warn("[Relay] create or join from %s with invalid room %v", p.id, args[0])
		return
	}
	if p.room != "" {
		s.deliver(p, frame(signaling.EventLog, "Already in room", p.room))
		return
	}

	s.deliver(p, frame(signaling.EventLog, "Received request to create or join room", room))

	occupants := s.rooms[room]
	switch {
	case len(occupants) == 0:
		s.rooms[room] = []*peer{p}
		p.room = room
		s.logger.Info("[Relay] Peer %s created room %s", p.id, room)
		s.deliver(p, frame(signaling.EventCreated, room, p.id))

	case len(occupants) < MaxOccupants:
		for _, other := range occupants {
			s.deliver(other, frame(signaling.EventJoin, room))
		}
		s.rooms[room] = append(occupants, p)
		p.room = room
		s.logger.Info("[Relay] Peer %s joined room %s", p.id, room)
		s.deliver(p, frame(signaling.EventJoined, room, p.id))

	default:
		s.logger.Info("[Relay] Room %s is full, refusing %s", room, p.id)
		s.deliver(p, frame(signaling.EventFull, room))
	}
}

// leave removes p from its room and tells the remaining occupants.
func (s *Server) leave(p *peer) {
	if p.room == "" {
		return
	}
	room := p.room
	p.room = ""

	remaining := make([]*peer, 0, len(s.rooms[room]))
	for _, other := range s.rooms[room] {
		if other != p {
			remaining = append(remaining, other)
		}
	}

	if len(remaining) == 0 {
		delete(s.rooms, room)
		s.logger.Info("[Relay] Room %s deleted", room)
		return
	}
	s.rooms[room] = remaining
	for _, other := range remaining {
		s.deliver(other, frame(signaling.EventBye, p.id))
	}
}

// deliver encodes f in the recipient's codec and queues it without blocking the hub.
func (s *Server) deliver(p *peer, f signaling.Frame) {
	data, err := p.codec.Encode(f)
	if err != nil {
		s.logger.Error("[Relay] Failed to encode %q for %s: %v", f.Event, p.id, err)
		return
	}
	select {
	case p.send <- outbound{messageType: p.codec.MessageType(), data: data}:
	default:
		s.logger.Warn("[Relay] Send queue full for %s, dropping %q", p.id, f.Event)
	}
}

func (s *Server) shutdown() {
	s.logger.Info("[Relay] Shutting down")
	for p := range s.peers {
		p.room = ""
		close(p.send)
		delete(s.peers, p)
	}
	clear(s.rooms)
}

func frame(event string, args ...any) signaling.Frame {
	return signaling.Frame{Event: event, Args: args}
}
