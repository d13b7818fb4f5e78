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
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// Secp256k1Identity is an alternate node identity for operators who
// want to reuse key material shared with other secp256k1-based
// systems. It is never required: the mesh itself only relies on
// Ed25519 for signing and X25519 for sealing.
type Secp256k1Identity struct {
	PrivateKey *secp256k1.PrivateKey
	PublicKey  *secp256k1.PublicKey
	NodeID     NodeID
}

// GenerateSecp256k1 creates a fresh secp256k1 identity.
func GenerateSecp256k1() (*Secp256k1Identity, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate secp256k1 key: %w", err)
	}
	pub := priv.PubKey()
	return &Secp256k1Identity{
		PrivateKey: priv,
		PublicKey:  pub,
		NodeID:     DeriveNodeID(pub.SerializeCompressed()),
	}, nil
}

// Sign produces an ECDSA signature over SHA-256(message), serialized as
// fixed-width r||s (64 bytes).
func (s *Secp256k1Identity) Sign(message []byte) ([]byte, error) {
	hash := sha256.Sum256(message)
	r, sig, err := ecdsa.Sign(rand.Reader, s.PrivateKey.ToECDSA(), hash[:])
	if err != nil {
		return nil, fmt.Errorf("ecdsa sign: %w", err)
	}
	return serializeSignature(r, sig), nil
}

// VerifySecp256k1 verifies a signature made by Sign.
func VerifySecp256k1(pub *secp256k1.PublicKey, message, signature []byte) bool {
	r, s, err := deserializeSignature(signature)
	if err != nil {
		return false
	}
	hash := sha256.Sum256(message)
	return ecdsa.Verify(pub.ToECDSA(), hash[:], r, s)
}

func serializeSignature(r, s *big.Int) []byte {
	rBytes := r.Bytes()
	sBytes := s.Bytes()

	sig := make([]byte, 64)
	copy(sig[32-len(rBytes):32], rBytes)
	copy(sig[64-len(sBytes):64], sBytes)
	return sig
}

func deserializeSignature(data []byte) (*big.Int, *big.Int, error) {
	if len(data) != 64 {
		return nil, nil, fmt.Errorf("signature must be 64 bytes, got %d", len(data))
	}
	r := new(big.Int).SetBytes(data[:32])
	s := new(big.Int).SetBytes(data[32:])
	return r, s, nil
}
