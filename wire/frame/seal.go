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

package frame

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/elysium-mesh/elysium/internal/errs"
)

const (
	// NonceSize is the wire size of a frame nonce (12 bytes, AES-GCM standard).
	NonceSize = 12
	tagSize   = 16
)

// Seal encrypts plaintext under key (32 bytes, AES-256) using a random
// nonce, for contexts with no session-local counter to draw from (the
// handshake layer's own ACK sealing uses identity.SealForPeer instead;
// this is for ad-hoc one-off frames outside an established session).
func Seal(key []byte, peerNodeID []byte, typ Type, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return SealWithNonce(key, peerNodeID, typ, nonce, plaintext)
}

// SealWithNonce encrypts plaintext under key using the caller-supplied
// 12-byte nonce and returns the frame body ready for Write: typ(1) ||
// nonce(12) || ciphertext+tag. AAD is peerNodeID || typ, binding the
// frame to both the remote peer identity and its declared type so a
// captured frame cannot be replayed against a different session or
// reinterpreted as a different type. Callers within an established
// session must supply a nonce derived from their strictly monotonic
// send counter (see EncodeNonce) so nonces never repeat.
func SealWithNonce(key []byte, peerNodeID []byte, typ Type, nonce []byte, plaintext []byte) ([]byte, error) {
	if !typ.valid() {
		return nil, errs.New(errs.KindProtocolViolation, "frame.seal", fmt.Errorf("invalid frame type %x", typ))
	}
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", NonceSize, len(nonce))
	}
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	aad := aad(peerNodeID, typ)
	ct := aead.Seal(nil, nonce, plaintext, aad)

	body := make([]byte, 0, 1+NonceSize+len(ct))
	body = append(body, byte(typ))
	body = append(body, nonce...)
	body = append(body, ct...)
	return body, nil
}

// Open reverses Seal. peerNodeID must be the same value the sender used
// as AAD (i.e. the receiver's own node_id, which the sender passed as
// its peer id).
func Open(key []byte, peerNodeID []byte, body []byte) (Type, []byte, error) {
	if len(body) < 1+NonceSize+tagSize {
		return 0, nil, errs.New(errs.KindProtocolViolation, "frame.open", fmt.Errorf("body too short"))
	}
	typ := Type(body[0])
	if !typ.valid() {
		return 0, nil, errs.New(errs.KindProtocolViolation, "frame.open", fmt.Errorf("invalid frame type %x", typ))
	}
	nonce := body[1 : 1+NonceSize]
	ct := body[1+NonceSize:]

	aead, err := newAEAD(key)
	if err != nil {
		return 0, nil, err
	}
	pt, err := aead.Open(nil, nonce, ct, aad(peerNodeID, typ))
	if err != nil {
		return 0, nil, errs.ErrAuthFailure
	}
	return typ, pt, nil
}

// EncodeNonce maps a strictly monotonic 64-bit send counter onto a
// 12-byte AEAD nonce: 4 zero bytes followed by the counter big-endian.
// A session's send counter never repeats for its lifetime, so a given
// (key, nonce) pair is used at most once, satisfying the invariant
// that session nonces never repeat.
func EncodeNonce(seq uint64) []byte {
	nonce := make([]byte, NonceSize)
	binary.BigEndian.PutUint64(nonce[4:], seq)
	return nonce
}

// DecodeNonce reverses EncodeNonce, for receive-window bookkeeping.
func DecodeNonce(nonce []byte) (uint64, error) {
	if len(nonce) != NonceSize {
		return 0, fmt.Errorf("nonce must be %d bytes, got %d", NonceSize, len(nonce))
	}
	return binary.BigEndian.Uint64(nonce[4:]), nil
}

func aad(peerNodeID []byte, typ Type) []byte {
	out := make([]byte, 0, len(peerNodeID)+1)
	out = append(out, peerNodeID...)
	return append(out, byte(typ))
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("session key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
