package signaling

import (
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// Frame is one named event with its argument list.
type Frame struct {
	Event string
	Args  []any
}

// Codec turns frames into websocket messages and back. Both codecs lay a frame
// out as an array whose first element is the event name.
type Codec interface {
	Name() string
	MessageType() int
	Encode(f Frame) ([]byte, error)
	Decode(data []byte) (Frame, error)
}

// CodecByName resolves the codec configured for a connection.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "msgpack":
		return MsgpackCodec{}, nil
	default:
		return nil, configErrorf("codec", "unknown codec %q (supported: json, msgpack)", name)
	}
}

// JSONCodec writes text frames such as ["message",{"type":"offer","sdp":"..."}].
type JSONCodec struct{}

func (JSONCodec) Name() string     { return "json" }
func (JSONCodec) MessageType() int { return websocket.TextMessage }

func (JSONCodec) Encode(f Frame) ([]byte, error) {
	return json.Marshal(append([]any{f.Event}, f.Args...))
}

func (JSONCodec) Decode(data []byte) (Frame, error) {
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Frame{}, fmt.Errorf("failed to unmarshal frame: %w", err)
	}
	return frameFromArray(raw)
}

// MsgpackCodec writes binary frames with the same array layout.
type MsgpackCodec struct{}

func (MsgpackCodec) Name() string     { return "msgpack" }
func (MsgpackCodec) MessageType() int { return websocket.BinaryMessage }

func (MsgpackCodec) Encode(f Frame) ([]byte, error) {
	return msgpack.Marshal(append([]any{f.Event}, f.Args...))
}

func (MsgpackCodec) Decode(data []byte) (Frame, error) {
	var raw []any
	if err := msgpack.Unmarshal(data, &raw); err != nil {
		return Frame{}, fmt.Errorf("failed to unmarshal frame: %w", err)
	}
	return frameFromArray(raw)
}

func frameFromArray(raw []any) (Frame, error) {
	if len(raw) == 0 {
		return Frame{}, fmt.Errorf("empty frame")
	}
	event, ok := raw[0].(string)
	if !ok || event == "" {
		return Frame{}, fmt.Errorf("frame event name must be a non-empty string, got %T", raw[0])
	}
	return Frame{Event: event, Args: raw[1:]}, nil
}
