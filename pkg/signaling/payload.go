package signaling

import (
	"encoding/json"
	"fmt"
	"math"
)

// SDPType distinguishes the two session description variants.
type SDPType string

const (
	SDPTypeOffer  SDPType = "offer"
	SDPTypeAnswer SDPType = "answer"
)

const candidateType = "candidate"

// HandshakePayload is carried by the "message" event. It is implemented only by
// SessionDescription and IceCandidate.
type HandshakePayload interface {
	wireType() string
}

// SessionDescription is an offer or an answer.
type SessionDescription struct {
	Type SDPType
	SDP  string
}

func (d SessionDescription) wireType() string { return string(d.Type) }

// MaxSDPMLineIndex is the largest m-line index a decoded candidate may carry.
const MaxSDPMLineIndex = math.MaxUint16

// IceCandidate is a network-path candidate. On the wire SDPMid travels as "id"
// and SDPMLineIndex as "label".
type IceCandidate struct {
	SDPMid        string
	SDPMLineIndex int
	Candidate     string
}

func (IceCandidate) wireType() string { return candidateType }

// EncodePayload builds the wire object for p.
func EncodePayload(p HandshakePayload) map[string]any {
	switch v := p.(type) {
	case SessionDescription:
		return map[string]any{
			"type": string(v.Type),
			"sdp":  v.SDP,
		}
	case IceCandidate:
		return map[string]any{
			"type":      candidateType,
			"label":     v.SDPMLineIndex,
			"id":        v.SDPMid,
			"candidate": v.Candidate,
		}
	default:
		return nil
	}
}

// DecodePayload converts a decoded "message" argument into a HandshakePayload.
// A bare scalar carries no handshake and yields (nil, nil). Objects with a
// missing or unknown type, or with malformed fields, yield a *DecodeError.
func DecodePayload(arg any) (HandshakePayload, error) {
	obj, ok := asObject(arg)
	if !ok {
		if isScalar(arg) {
			return nil, nil
		}
		return nil, &DecodeError{Event: EventMessage, Reason: fmt.Sprintf("unsupported payload shape %T", arg)}
	}

	typ, _ := obj["type"].(string)
	switch typ {
	case string(SDPTypeOffer), string(SDPTypeAnswer):
		sdp, ok := obj["sdp"].(string)
		if !ok {
			return nil, &DecodeError{Event: EventMessage, Reason: typ + " without sdp"}
		}
		return SessionDescription{Type: SDPType(typ), SDP: sdp}, nil

	case candidateType:
		label, ok := toInt(obj["label"])
		if !ok {
			return nil, &DecodeError{Event: EventMessage, Reason: fmt.Sprintf("candidate label %v is not an integer", obj["label"])}
		}
		if label < 0 || label > MaxSDPMLineIndex {
			return nil, &DecodeError{Event: EventMessage, Reason: fmt.Sprintf("candidate label %d out of range", label)}
		}
		cand, ok := obj["candidate"].(string)
		if !ok {
			return nil, &DecodeError{Event: EventMessage, Reason: "candidate without candidate string"}
		}
		mid, _ := obj["id"].(string)
		return IceCandidate{SDPMid: mid, SDPMLineIndex: label, Candidate: cand}, nil

	case "":
		return nil, &DecodeError{Event: EventMessage, Reason: "missing type"}

	default:
		return nil, &DecodeError{Event: EventMessage, Reason: fmt.Sprintf("unknown type %q", typ)}
	}
}

func asObject(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			key, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[key] = val
		}
		return out, true
	default:
		return nil, false
	}
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	default:
		return false
	}
}

// toInt accepts every integer representation the JSON and msgpack codecs
// produce. Values outside the int32 range are rejected.
func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return fromInt64(int64(n))
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return fromInt64(n)
	case uint:
		return fromUint64(uint64(n))
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return fromUint64(uint64(n))
	case uint64:
		return fromUint64(n)
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return fromInt64(i)
	default:
		return 0, false
	}
}

func fromInt64(n int64) (int, bool) {
	if n > math.MaxInt32 || n < math.MinInt32 {
		return 0, false
	}
	return int(n), true
}

func fromUint64(n uint64) (int, bool) {
	if n > math.MaxInt32 {
		return 0, false
	}
	return int(n), true
}

func floatToInt(f float64) (int, bool) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return int(f), true
}
