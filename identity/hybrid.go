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

package identity

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/cloudflare/circl/kem/kyber/kyber768"
	"golang.org/x/crypto/hkdf"
)

// HybridKeyPair is an additive post-quantum keypair: a kyber768
// encapsulation whose shared secret MixSecrets combines with a
// classical X25519 secret via HKDF, so a kyber768 break alone cannot
// recover the mixed key. The handshake in wire/handshake accepts only
// protocol version 1 and does not call into this file; session keys
// are sealed on the classical path alone.
type HybridKeyPair struct {
	PublicKey  *kyber768.PublicKey
	PrivateKey *kyber768.PrivateKey
}

// GenerateHybrid creates a fresh kyber768 keypair.
func GenerateHybrid() (*HybridKeyPair, error) {
	pub, priv, err := kyber768.GenerateKeyPair(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate kyber768 key: %w", err)
	}
	return &HybridKeyPair{PublicKey: pub, PrivateKey: priv}, nil
}

// MarshalPublic serializes the public key for inclusion in a HELLO frame.
func (h *HybridKeyPair) MarshalPublic() []byte {
	buf := make([]byte, kyber768.PublicKeySize)
	h.PublicKey.Pack(buf)
	return buf
}

// Encapsulate runs the sender side of the hybrid exchange against a
// peer's marshaled kyber768 public key, returning the ciphertext to
// send and the shared secret to mix in.
func Encapsulate(peerPub []byte) (ciphertext, sharedSecret []byte, err error) {
	if len(peerPub) != kyber768.PublicKeySize {
		return nil, nil, fmt.Errorf("bad kyber768 public key length: %d", len(peerPub))
	}
	var pk kyber768.PublicKey
	pk.Unpack(peerPub)

	ct := make([]byte, kyber768.CiphertextSize)
	ss := make([]byte, kyber768.SharedKeySize)
	seed := make([]byte, kyber768.EncapsulationSeedSize)
	if _, err := io.ReadFull(rand.Reader, seed); err != nil {
		return nil, nil, fmt.Errorf("kyber768 encapsulation seed: %w", err)
	}
	pk.EncapsulateTo(ct, ss, seed)
	return ct, ss, nil
}

// Decapsulate runs the receiver side: given the ciphertext sent by the
// peer, reproduces the same shared secret.
func (h *HybridKeyPair) Decapsulate(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) != kyber768.CiphertextSize {
		return nil, fmt.Errorf("bad kyber768 ciphertext length: %d", len(ciphertext))
	}
	ss := make([]byte, kyber768.SharedKeySize)
	h.PrivateKey.DecapsulateTo(ss, ciphertext)
	return ss, nil
}

// MixSecrets combines a classical ECDH secret with an optional hybrid
// KEM secret via HKDF-SHA256. When hybridSecret is nil the classical
// secret passes through HKDF alone, so the derivation is uniform
// whether or not the peer negotiated the hybrid extension.
func MixSecrets(classical, hybridSecret, transcript []byte) ([]byte, error) {
	ikm := classical
	if len(hybridSecret) > 0 {
		ikm = concat(classical, hybridSecret)
	}
	h := hkdf.New(sha256.New, ikm, transcript, []byte("elysium-hybrid-mix-v1"))
	out := make([]byte, 32)
	if _, err := io.ReadFull(h, out); err != nil {
		return nil, fmt.Errorf("hkdf: %w", err)
	}
	return out, nil
}
