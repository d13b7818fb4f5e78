// Package mesh implements the store-and-forward overlay: message
// framing, loop-avoiding next-hop selection, and the inbound/outbound
// dispatch loops that turn a set of established sessions into a
// multi-hop delivery fabric.
package mesh

import (
	"encoding/binary"

	"github.com/google/uuid"

	"github.com/elysium-mesh/elysium/identity"
	"github.com/elysium-mesh/elysium/internal/errs"
)

// MaxPathLen bounds the recorded hop path so a pathological loop
// cannot grow a Message without bound before TTL catches it.
const MaxPathLen = 64

// Message is one mesh-layer payload in flight: either addressed to a
// single target node or flagged Broadcast for all reachable nodes.
type Message struct {
	ID         uuid.UUID
	Origin     identity.NodeID
	Target     identity.NodeID
	Broadcast  bool
	Ciphertext []byte
	TTL        uint8
	Path       []identity.NodeID
	CreatedAt  int64 // unix seconds
}

// NewMessage builds an origin-stamped message with ttl hops remaining
// and an empty path, ready for its first forwarding decision.
func NewMessage(id uuid.UUID, origin identity.NodeID, target identity.NodeID, broadcast bool, ciphertext []byte, ttl uint8, createdAt int64) Message {
	return Message{
		ID:         id,
		Origin:     origin,
		Target:     target,
		Broadcast:  broadcast,
		Ciphertext: ciphertext,
		TTL:        ttl,
		CreatedAt:  createdAt,
	}
}

// WithHop returns a copy of m with hop appended to its path and TTL
// decremented, as performed by a forwarding node before re-submitting
// the message to the next set of peers.
func (m Message) WithHop(hop identity.NodeID) Message {
	path := make([]identity.NodeID, len(m.Path), len(m.Path)+1)
	copy(path, m.Path)
	path = append(path, hop)
	out := m
	out.Path = path
	if out.TTL > 0 {
		out.TTL--
	}
	return out
}

// Expired reports whether m has exhausted its hop budget.
func (m Message) Expired() bool {
	return m.TTL == 0
}

func putString(buf []byte, s string) []byte {
	buf = append(buf, byte(len(s)))
	buf = append(buf, s...)
	return buf
}

func getString(body []byte) (string, []byte, error) {
	if len(body) < 1 {
		return "", nil, errs.New(errs.KindProtocolViolation, "mesh.message", errShortBody)
	}
	n := int(body[0])
	body = body[1:]
	if len(body) < n {
		return "", nil, errs.New(errs.KindProtocolViolation, "mesh.message", errShortBody)
	}
	return string(body[:n]), body[n:], nil
}

var errShortBody = shortBodyErr{}

type shortBodyErr struct{}

func (shortBodyErr) Error() string { return "truncated message body" }

// Encode serializes m for wire transmission (as a proto.TypeMesh
// payload) or bundle export: uuid, origin/target node_ids,
// broadcast+ttl flags, created_at, the hop path, and the ciphertext,
// all length-prefixed so a Message round-trips byte for byte.
func (m Message) Encode() []byte {
	buf := make([]byte, 0, 64+len(m.Ciphertext))
	buf = append(buf, m.ID[:]...)
	buf = putString(buf, string(m.Origin))
	buf = putString(buf, string(m.Target))
	if m.Broadcast {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = append(buf, m.TTL)

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(m.CreatedAt))
	buf = append(buf, ts[:]...)

	var pathLen [2]byte
	binary.BigEndian.PutUint16(pathLen[:], uint16(len(m.Path)))
	buf = append(buf, pathLen[:]...)
	for _, hop := range m.Path {
		buf = putString(buf, string(hop))
	}

	var ctLen [4]byte
	binary.BigEndian.PutUint32(ctLen[:], uint32(len(m.Ciphertext)))
	buf = append(buf, ctLen[:]...)
	buf = append(buf, m.Ciphertext...)
	return buf
}

// Decode parses a Message previously produced by Encode.
func Decode(body []byte) (Message, error) {
	var m Message
	if len(body) < 16 {
		return m, errs.New(errs.KindProtocolViolation, "mesh.message", errShortBody)
	}
	copy(m.ID[:], body[:16])
	body = body[16:]

	origin, body, err := getString(body)
	if err != nil {
		return m, err
	}
	m.Origin = identity.NodeID(origin)

	target, body, err := getString(body)
	if err != nil {
		return m, err
	}
	m.Target = identity.NodeID(target)

	if len(body) < 1+1+8+2 {
		return m, errs.New(errs.KindProtocolViolation, "mesh.message", errShortBody)
	}
	m.Broadcast = body[0] != 0
	m.TTL = body[1]
	m.CreatedAt = int64(binary.BigEndian.Uint64(body[2:10]))
	pathLen := int(binary.BigEndian.Uint16(body[10:12]))
	body = body[12:]

	if pathLen > MaxPathLen {
		return m, errs.New(errs.KindProtocolViolation, "mesh.message", errShortBody)
	}
	m.Path = make([]identity.NodeID, 0, pathLen)
	for i := 0; i < pathLen; i++ {
		var hop string
		hop, body, err = getString(body)
		if err != nil {
			return m, err
		}
		m.Path = append(m.Path, identity.NodeID(hop))
	}

	if len(body) < 4 {
		return m, errs.New(errs.KindProtocolViolation, "mesh.message", errShortBody)
	}
	ctLen := int(binary.BigEndian.Uint32(body[:4]))
	body = body[4:]
	if len(body) < ctLen {
		return m, errs.New(errs.KindProtocolViolation, "mesh.message", errShortBody)
	}
	m.Ciphertext = append([]byte(nil), body[:ctLen]...)
	return m, nil
}
