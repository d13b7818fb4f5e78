// Package proto defines the message-type tags and payload encodings
// carried inside an established session's encrypted Data frames. The
// cleartext HELLO/ACK handshake envelope lives in wire/handshake; this
// package covers everything exchanged after a session key is
// installed: keepalive, mesh forwarding, delivery acknowledgement, and
// the announce/fetch content protocol.
package proto

import (
	"encoding/binary"
	"fmt"
)

// Type tags the first byte of a Data frame's plaintext payload.
type Type byte

const (
	TypePing            Type = 0x01
	TypePong            Type = 0x02
	TypeMesh            Type = 0x03 // forwarded mesh Message
	TypeAck             Type = 0x04 // delivery acknowledgement
	TypeContentRequest  Type = 0x05
	TypeContentResponse Type = 0x06
	TypeNameAnnounce    Type = 0x07
)

func (t Type) Valid() bool {
	switch t {
	case TypePing, TypePong, TypeMesh, TypeAck, TypeContentRequest, TypeContentResponse, TypeNameAnnounce:
		return true
	default:
		return false
	}
}

func (t Type) String() string {
	switch t {
	case TypePing:
		return "ping"
	case TypePong:
		return "pong"
	case TypeMesh:
		return "mesh"
	case TypeAck:
		return "ack"
	case TypeContentRequest:
		return "content_request"
	case TypeContentResponse:
		return "content_response"
	case TypeNameAnnounce:
		return "name_announce"
	default:
		return "unknown"
	}
}

// Envelope is the plaintext carried inside a session Data frame:
// typ(1) || payload. Encode/Decode just split/join the tag byte; each
// payload has its own codec (EncodePing, EncodeAck below; the content
// and name payloads in mesh/announce).
func Encode(typ Type, payload []byte) []byte {
	out := make([]byte, 0, 1+len(payload))
	out = append(out, byte(typ))
	return append(out, payload...)
}

func Decode(body []byte) (Type, []byte, error) {
	if len(body) < 1 {
		return 0, nil, fmt.Errorf("proto: empty envelope")
	}
	typ := Type(body[0])
	if !typ.Valid() {
		return 0, nil, fmt.Errorf("proto: unknown message type %x", body[0])
	}
	return typ, body[1:], nil
}

// EncodePing/EncodePong carry a unix-nano timestamp so RTT can be
// measured from the responder's echo.
func EncodePing(tsUnixNano int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(tsUnixNano))
	return b[:]
}

func DecodeTimestamp(payload []byte) (int64, error) {
	if len(payload) != 8 {
		return 0, fmt.Errorf("proto: malformed timestamp payload")
	}
	return int64(binary.BigEndian.Uint64(payload)), nil
}

// EncodeAck/DecodeAck carry a 16-byte message_id.
func EncodeAck(messageID [16]byte) []byte {
	out := make([]byte, 16)
	copy(out, messageID[:])
	return out
}

func DecodeAck(payload []byte) ([16]byte, error) {
	var id [16]byte
	if len(payload) != 16 {
		return id, fmt.Errorf("proto: malformed ack payload")
	}
	copy(id[:], payload)
	return id, nil
}
