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
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"fmt"
	"io"

	"filippo.io/edwards25519"
	"golang.org/x/crypto/hkdf"
	"crypto/sha256"
)

// sealInfo labels the HKDF context so this derivation can never collide
// with an unrelated one that happens to share a transcript.
const sealInfo = "elysium-handshake-seal-v1"

// ToX25519Private converts an Ed25519 private key into the X25519
// scalar birationally equivalent to it, per RFC 8032 section 5.1.5.
func ToX25519Private(priv ed25519.PrivateKey) ([]byte, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("bad Ed25519 private key length: %d", len(priv))
	}
	seed := priv.Seed()
	h := sha512.Sum512(seed)
	h[0] &= 248
	h[31] &= 127
	h[31] |= 64
	out := make([]byte, 32)
	copy(out, h[:32])
	return out, nil
}

// ToX25519Public converts an Ed25519 public key to its X25519
// equivalent by decompressing the Edwards point and mapping it onto
// the Montgomery curve.
func ToX25519Public(pub ed25519.PublicKey) ([]byte, error) {
	if len(pub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("bad Ed25519 public key length: %d", len(pub))
	}
	p, err := new(edwards25519.Point).SetBytes(pub)
	if err != nil {
		return nil, fmt.Errorf("invalid Ed25519 point: %w", err)
	}
	return p.BytesMontgomery(), nil
}

// X25519PrivateKey returns id's X25519 handshake key, derived from its
// Ed25519 identity key.
func (id *Identity) X25519PrivateKey() (*ecdh.PrivateKey, error) {
	scalar, err := ToX25519Private(id.PrivateKey)
	if err != nil {
		return nil, err
	}
	return ecdh.X25519().NewPrivateKey(scalar)
}

// X25519PublicKey returns the X25519 form of pub.
func X25519PublicKey(pub ed25519.PublicKey) (*ecdh.PublicKey, error) {
	raw, err := ToX25519Public(pub)
	if err != nil {
		return nil, err
	}
	return ecdh.X25519().NewPublicKey(raw)
}

// SealForPeer seals plaintext (the session seed K, in the handshake
// layer) under peerPub using an ephemeral-static ECDH exchange: a fresh
// X25519 keypair is generated, its ECDH with peerPub (converted from
// Ed25519) is fed through HKDF-SHA256 to derive an AES-256-GCM key, and
// plaintext is sealed with the transcript (ephemeral pub || peer X25519
// pub) as associated data. Returns ephemeral_pub(32) || nonce(12) ||
// ciphertext+tag.
func SealForPeer(peerPub ed25519.PublicKey, plaintext []byte) ([]byte, error) {
	ephPriv, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ephemeral key: %w", err)
	}

	peerX, err := ToX25519Public(peerPub)
	if err != nil {
		return nil, err
	}
	peerXPub, err := ecdh.X25519().NewPublicKey(peerX)
	if err != nil {
		return nil, err
	}

	raw, err := ephPriv.ECDH(peerXPub)
	if err != nil {
		return nil, fmt.Errorf("ecdh: %w", err)
	}
	if err := checkNotLowOrder(raw); err != nil {
		return nil, err
	}

	ephPub := ephPriv.PublicKey().Bytes()
	transcript := concat(ephPub, peerX)
	key, err := deriveSealKey(raw, transcript)
	if err != nil {
		return nil, err
	}

	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	ct := aead.Seal(nil, nonce, plaintext, transcript)

	return concat(ephPub, nonce, ct), nil
}

// OpenFromPeer reverses SealForPeer using this identity's private key.
func (id *Identity) OpenFromPeer(sealed []byte) ([]byte, error) {
	const ephLen = 32
	if len(sealed) < ephLen+12 {
		return nil, fmt.Errorf("sealed payload too short")
	}
	ephPub := sealed[:ephLen]
	nonce := sealed[ephLen : ephLen+12]
	ct := sealed[ephLen+12:]

	ephPubKey, err := ecdh.X25519().NewPublicKey(ephPub)
	if err != nil {
		return nil, fmt.Errorf("invalid ephemeral public key: %w", err)
	}

	selfPriv, err := id.X25519PrivateKey()
	if err != nil {
		return nil, err
	}

	raw, err := selfPriv.ECDH(ephPubKey)
	if err != nil {
		return nil, fmt.Errorf("ecdh: %w", err)
	}
	if err := checkNotLowOrder(raw); err != nil {
		return nil, err
	}

	selfXPub := selfPriv.PublicKey().Bytes()
	transcript := concat(ephPub, selfXPub)
	key, err := deriveSealKey(raw, transcript)
	if err != nil {
		return nil, err
	}

	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	return aead.Open(nil, nonce, ct, transcript)
}

func deriveSealKey(raw, transcript []byte) ([]byte, error) {
	h := hkdf.New(sha256.New, raw, transcript, []byte(sealInfo))
	key := make([]byte, 32)
	if _, err := io.ReadFull(h, key); err != nil {
		return nil, fmt.Errorf("hkdf: %w", err)
	}
	return key, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func checkNotLowOrder(dh []byte) error {
	var zero [32]byte
	if subtle.ConstantTimeCompare(dh, zero[:]) == 1 {
		return fmt.Errorf("x25519: low-order or identity point")
	}
	return nil
}

func concat(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}
