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

package session

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	"sync"

	"github.com/elysium-mesh/elysium/identity"
	"github.com/elysium-mesh/elysium/internal/errs"
	"github.com/elysium-mesh/elysium/wire/handshake"
)

// Manager indexes live sessions by peer NodeID (rather than an opaque
// session id, since this node never has more than one session per
// peer) and drives the HELLO/ACK handshake that produces them.
type Manager struct {
	mu       sync.RWMutex
	sessions map[identity.NodeID]*Session

	local *identity.Identity
	cfg   Config
}

// NewManager creates a Manager bound to the node's own identity.
func NewManager(local *identity.Identity, cfg Config) *Manager {
	return &Manager{
		sessions: make(map[identity.NodeID]*Session),
		local:    local,
		cfg:      cfg,
	}
}

func (m *Manager) Get(peerID identity.NodeID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[peerID]
	return s, ok
}

func (m *Manager) put(s *Session) {
	m.mu.Lock()
	m.sessions[s.PeerID] = s
	m.mu.Unlock()
}

// Remove closes and forgets the session for peerID, if any.
func (m *Manager) Remove(peerID identity.NodeID) {
	m.mu.Lock()
	s, ok := m.sessions[peerID]
	delete(m.sessions, peerID)
	m.mu.Unlock()
	if ok {
		s.Close()
	}
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// All returns a snapshot of every live session.
func (m *Manager) All() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// Handshake drives the full Init -> ... -> Established exchange over
// rw, which the caller (the peer manager) is responsible for giving a
// cfg.HandshakeTimeout deadline via the underlying net.Conn. Both
// endpoints run this same method regardless of which one dialed: each
// writes its own HELLO, reads the other's, and then the side whose
// NodeID sorts lexicographically smaller generates the session key and
// seals it for the other in an ACK, deciding key generation
// deterministically without needing to know who initiated the TCP
// connection (an Open Question the specification left to the
// implementer, see DESIGN.md).
func (m *Manager) Handshake(rw io.ReadWriter) (*Session, error) {
	myHello := handshake.Hello{
		NodeID:    m.local.NodeID,
		Version:   handshake.Version,
		PublicKey: append([]byte(nil), m.local.PublicKey...),
	}
	// Both endpoints write their HELLO before reading the other's: over
	// a real TCP socket the kernel send buffer absorbs this, but a
	// fully synchronous transport (e.g. net.Pipe in tests) would
	// deadlock two blocking Write calls racing each other, so the write
	// runs on its own goroutine and is joined after the read below.
	helloWriteErr := make(chan error, 1)
	go func() { helloWriteErr <- handshake.WriteHello(rw, myHello) }()

	typ, body, err := handshake.ReadMessage(rw)
	if err != nil {
		return nil, errs.New(errs.KindTransientIO, "session.handshake", err)
	}
	if err := <-helloWriteErr; err != nil {
		return nil, errs.New(errs.KindTransientIO, "session.handshake", err)
	}
	if typ != handshake.MsgHello {
		return nil, errs.New(errs.KindProtocolViolation, "session.handshake", fmt.Errorf("expected HELLO, got %x", typ))
	}
	peerHello, err := handshake.DecodeHello(body)
	if err != nil {
		return nil, err
	}

	if existing, ok := m.Get(peerHello.NodeID); ok && existing.State() == StateEstablished {
		return nil, errs.ErrSessionHijack
	}

	var key []byte
	if m.local.NodeID < peerHello.NodeID {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate session key: %w", err)
		}
		sealed, err := identity.SealForPeer(ed25519.PublicKey(peerHello.PublicKey), key)
		if err != nil {
			return nil, fmt.Errorf("seal session key: %w", err)
		}
		nonce := make([]byte, 16)
		if _, err := rand.Read(nonce); err != nil {
			return nil, fmt.Errorf("generate ack nonce: %w", err)
		}
		if err := handshake.WriteAck(rw, handshake.Ack{SealedSessionKey: sealed, Nonce: nonce}); err != nil {
			return nil, errs.New(errs.KindTransientIO, "session.handshake", err)
		}
	} else {
		typ, body, err := handshake.ReadMessage(rw)
		if err != nil {
			return nil, errs.New(errs.KindTransientIO, "session.handshake", err)
		}
		if typ != handshake.MsgAck {
			return nil, errs.New(errs.KindProtocolViolation, "session.handshake", fmt.Errorf("expected ACK, got %x", typ))
		}
		ack, err := handshake.DecodeAck(body)
		if err != nil {
			return nil, err
		}
		key, err = m.local.OpenFromPeer(ack.SealedSessionKey)
		if err != nil {
			return nil, errs.New(errs.KindAuthFailure, "session.handshake", err)
		}
	}

	sess := New(m.local.NodeID, peerHello.NodeID, peerHello.Version, ed25519.PublicKey(peerHello.PublicKey), key, m.cfg)
	m.put(sess)
	return sess, nil
}

// Close tears down every live session.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		s.Close()
		delete(m.sessions, id)
	}
}
