package relay

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/tphan267/arqut-signal/pkg/signaling"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

type outbound struct {
	messageType int
	data        []byte
}

// peer is one relay connection. room and codec are owned by the hub goroutine.
type peer struct {
	id     string
	server *Server
	conn   *websocket.Conn
	send   chan outbound

	room  string
	codec signaling.Codec
}

// readPump decodes frames and hands them to the hub. The codec follows the
// websocket message type, so JSON and msgpack peers can share a room.
func (p *peer) readPump() {
	defer func() {
		select {
		case p.server.unregister <- p:
		case <-p.server.done:
		}
		p.conn.Close()
	}()

	p.conn.SetReadLimit(maxMessageSize)
	_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		mt, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				p.server.logger.Debug("[Relay] Read error from %s: %v", p.id, err)
			}
			return
		}

		var codec signaling.Codec = signaling.JSONCodec{}
		if mt == websocket.BinaryMessage {
			codec = signaling.MsgpackCodec{}
		}
		f, err := codec.Decode(data)
		if err != nil {
			p.server.logger.Warn("[Relay] Dropping frame from %s: %v", p.id, err)
			continue
		}

		select {
		case p.server.inbound <- &envelope{from: p, codec: codec, frame: f}:
		case <-p.server.done:
			return
		}
	}
}

func (p *peer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = p.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := p.conn.WriteMessage(msg.messageType, msg.data); err != nil {
				p.server.logger.Debug("[Relay] Write to %s failed: %v", p.id, err)
				return
			}

		case <-ticker.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
