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

// Package identity holds a node's long-term keypair: the Ed25519 key
// that names and signs for it, the X25519 key derived from it for
// handshake sealing, and the base58 NodeID both keys collapse to.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mr-tron/base58"
)

// KeyType names the signing algorithm an Identity carries.
type KeyType string

const (
	KeyTypeEd25519   KeyType = "ed25519"
	KeyTypeSecp256k1 KeyType = "secp256k1"
)

// NodeID is the base58 textual form of a node's identity: base58 of the
// first 20 bytes of SHA-256(public key).
type NodeID string

// DeriveNodeID computes the NodeID for a raw public key.
func DeriveNodeID(pub []byte) NodeID {
	sum := sha256.Sum256(pub)
	return NodeID(base58.Encode(sum[:20]))
}

func (id NodeID) String() string { return string(id) }

// Identity is a node's long-term Ed25519 keypair plus the NodeID it
// derives to. Sign/Verify operate on raw Ed25519; handshake sealing
// uses the X25519 conversion in x25519.go.
type Identity struct {
	Type       KeyType
	PrivateKey ed25519.PrivateKey
	PublicKey  ed25519.PublicKey
	NodeID     NodeID
}

// Generate creates a fresh Ed25519 identity.
func Generate() (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate identity: %w", err)
	}
	return &Identity{
		Type:       KeyTypeEd25519,
		PrivateKey: priv,
		PublicKey:  pub,
		NodeID:     DeriveNodeID(pub),
	}, nil
}

// Sign signs message with the identity's private key.
func (id *Identity) Sign(message []byte) []byte {
	return ed25519.Sign(id.PrivateKey, message)
}

// Verify checks a signature made by pub over message.
func Verify(pub ed25519.PublicKey, message, signature []byte) bool {
	return ed25519.Verify(pub, message, signature)
}

// ShortID returns a stable hex fingerprint, useful in log fields where
// the full NodeID would be noisy.
func (id *Identity) ShortID() string {
	h := sha256.Sum256(id.PublicKey)
	return hex.EncodeToString(h[:8])
}

// LoadFromFile reads a raw Ed25519 seed (32 bytes) from path and
// reconstructs the Identity.
func LoadFromFile(path string) (*Identity, error) {
	seed, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read identity file: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("identity file has %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return &Identity{
		Type:       KeyTypeEd25519,
		PrivateKey: priv,
		PublicKey:  pub,
		NodeID:     DeriveNodeID(pub),
	}, nil
}

// SaveToFile persists the identity's 32-byte seed to path with 0600
// permissions, creating parent directories as needed.
func (id *Identity) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create identity dir: %w", err)
	}
	seed := id.PrivateKey.Seed()
	if err := os.WriteFile(path, seed, 0o600); err != nil {
		return fmt.Errorf("write identity file: %w", err)
	}
	return nil
}

// LoadOrGenerate loads the identity at path, generating and persisting
// a new one if the file does not exist.
func LoadOrGenerate(path string) (*Identity, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		id, err := Generate()
		if err != nil {
			return nil, err
		}
		if err := id.SaveToFile(path); err != nil {
			return nil, err
		}
		return id, nil
	}
	return LoadFromFile(path)
}
