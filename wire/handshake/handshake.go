// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package handshake

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/elysium-mesh/elysium/identity"
	"github.com/elysium-mesh/elysium/internal/errs"
	"github.com/elysium-mesh/elysium/wire/frame"
)

// Message type markers prefixing a handshake frame body, distinguishing
// HELLO from ACK on the wire before any session key exists to carry a
// richer envelope.
const (
	MsgHello byte = 0x01
	MsgAck   byte = 0x02
)

// Magic identifies the wire protocol at the very start of a HELLO body.
const Magic = "ELYS"

// Version is the only protocol version this implementation speaks on
// the classical path. A hybrid KEM path, if added, negotiates a higher
// version without breaking this contract (spec Open Question 1).
const Version = 1

// Hello is the first cleartext frame sent by either endpoint.
type Hello struct {
	NodeID    identity.NodeID
	Version   uint16
	PublicKey []byte // raw Ed25519 public key
}

// EncodeHello serializes h as a handshake frame body.
func EncodeHello(h Hello) []byte {
	var ver [2]byte
	binary.BigEndian.PutUint16(ver[:], h.Version)
	return kvEncode([][2][]byte{
		{[]byte("magic"), []byte(Magic)},
		{[]byte("node_id"), []byte(h.NodeID)},
		{[]byte("version"), ver[:]},
		{[]byte("pubkey"), h.PublicKey},
	})
}

// DecodeHello parses and validates a HELLO body, failing with a
// protocol-violation error on bad magic and a version-unsupported
// error on a version this node does not speak.
func DecodeHello(body []byte) (Hello, error) {
	fields, err := kvDecode(body)
	if err != nil {
		return Hello{}, errs.New(errs.KindProtocolViolation, "handshake.hello", err)
	}
	if string(fields["magic"]) != Magic {
		return Hello{}, errs.New(errs.KindProtocolViolation, "handshake.hello", fmt.Errorf("bad magic"))
	}
	verBytes := fields["version"]
	if len(verBytes) != 2 {
		return Hello{}, errs.New(errs.KindProtocolViolation, "handshake.hello", fmt.Errorf("malformed version field"))
	}
	ver := binary.BigEndian.Uint16(verBytes)
	if ver != Version {
		return Hello{}, errs.ErrVersionUnsupported
	}
	nodeID := fields["node_id"]
	pub := fields["pubkey"]
	if len(nodeID) == 0 || len(pub) == 0 {
		return Hello{}, errs.New(errs.KindProtocolViolation, "handshake.hello", fmt.Errorf("missing node_id or pubkey"))
	}
	return Hello{
		NodeID:    identity.NodeID(nodeID),
		Version:   ver,
		PublicKey: pub,
	}, nil
}

// Ack carries the sealed session key from the HELLO-accepting side to
// the other, per the KeyExchange -> Established transition.
type Ack struct {
	SealedSessionKey []byte // identity.SealForPeer output
	Nonce            []byte // anti-replay nonce for this handshake only
}

// EncodeAck serializes a to a handshake frame body.
func EncodeAck(a Ack) []byte {
	return kvEncode([][2][]byte{
		{[]byte("sealed_key"), a.SealedSessionKey},
		{[]byte("nonce"), a.Nonce},
	})
}

// DecodeAck parses an ACK body.
func DecodeAck(body []byte) (Ack, error) {
	fields, err := kvDecode(body)
	if err != nil {
		return Ack{}, errs.New(errs.KindProtocolViolation, "handshake.ack", err)
	}
	sealed := fields["sealed_key"]
	nonce := fields["nonce"]
	if len(sealed) == 0 || len(nonce) == 0 {
		return Ack{}, errs.New(errs.KindProtocolViolation, "handshake.ack", fmt.Errorf("missing sealed_key or nonce"))
	}
	return Ack{SealedSessionKey: sealed, Nonce: nonce}, nil
}

// WriteHello writes h as a cleartext handshake frame.
func WriteHello(w io.Writer, h Hello) error {
	body := append([]byte{MsgHello}, EncodeHello(h)...)
	return frame.Write(w, body)
}

// WriteAck writes a as a cleartext handshake frame.
func WriteAck(w io.Writer, a Ack) error {
	body := append([]byte{MsgAck}, EncodeAck(a)...)
	return frame.Write(w, body)
}

// ReadMessage reads one handshake frame and returns its message type
// marker and remaining body.
func ReadMessage(r io.Reader) (byte, []byte, error) {
	body, err := frame.Read(r)
	if err != nil {
		return 0, nil, err
	}
	if len(body) < 1 {
		return 0, nil, errs.New(errs.KindProtocolViolation, "handshake.read", fmt.Errorf("empty handshake frame"))
	}
	return body[0], body[1:], nil
}
