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
	"sync"
	"sync/atomic"
	"time"

	"github.com/elysium-mesh/elysium/identity"
	"github.com/elysium-mesh/elysium/internal/errs"
	"github.com/elysium-mesh/elysium/wire/frame"
)

// Session is bound to a Peer in the Connected state (the Peer struct
// itself lives in the peer package; Session holds only the stable
// NodeID back-reference per the design notes' no-direct-cycles rule).
type Session struct {
	LocalID  identity.NodeID
	PeerID   identity.NodeID
	Version  uint16
	RemotePub ed25519.PublicKey

	cfg Config

	mu    sync.RWMutex
	state State

	key         []byte // 256-bit shared session key
	sendSeq     atomic.Uint64
	recvWindow  *replayWindow

	createdAt    time.Time
	lastActivity time.Time
	pingSentAt   time.Time
	latencyEWMA  float64
}

// New constructs a Session once KeyExchange completes. key must be 32
// bytes (AES-256).
func New(localID, peerID identity.NodeID, version uint16, remotePub ed25519.PublicKey, key []byte, cfg Config) *Session {
	now := time.Now()
	return &Session{
		LocalID:      localID,
		PeerID:       peerID,
		Version:      version,
		RemotePub:    remotePub,
		cfg:          cfg,
		state:        StateEstablished,
		key:          key,
		recvWindow:   newReplayWindow(cfg.ReplayWindow),
		createdAt:    now,
		lastActivity: now,
	}
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) SetState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) CreatedAt() time.Time { return s.createdAt }

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

// Seal encrypts plaintext for this session's peer, drawing the next
// value off the strictly monotonic send counter so the (key, nonce)
// pair is used at most once for the session's lifetime.
func (s *Session) Seal(typ frame.Type, plaintext []byte) ([]byte, error) {
	if s.State() != StateEstablished && s.State() != StatePing {
		return nil, errs.New(errs.KindProtocolViolation, "session.seal", errProtocolState(s.State()))
	}
	seq := s.sendSeq.Add(1) - 1
	nonce := frame.EncodeNonce(seq)
	body, err := frame.SealWithNonce(s.key, []byte(s.PeerID), typ, nonce, plaintext)
	if err != nil {
		return nil, err
	}
	s.touch()
	return body, nil
}

// Open decrypts an inbound frame body, enforcing the receive replay
// window: out-of-order delivery inside the window is accepted once,
// anything outside it (or already seen) is rejected as a replay.
func (s *Session) Open(body []byte) (frame.Type, []byte, error) {
	typ, pt, err := frame.Open(s.key, []byte(s.LocalID), body)
	if err != nil {
		return 0, nil, err
	}
	nonce := body[1 : 1+frame.NonceSize]
	seq, err := frame.DecodeNonce(nonce)
	if err != nil {
		return 0, nil, errs.New(errs.KindProtocolViolation, "session.open", err)
	}
	if !s.recvWindow.Accept(seq) {
		return 0, nil, errs.ErrReplay
	}
	s.touch()
	return typ, pt, nil
}

// RecordPong updates the latency EWMA from a measured round trip, per
// the Ping -> Established transition's alpha=0.3 rule.
func (s *Session) RecordPong(rtt time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sample := float64(rtt.Milliseconds())
	if s.latencyEWMA == 0 {
		s.latencyEWMA = sample
	} else {
		s.latencyEWMA = s.cfg.LatencyAlpha*sample + (1-s.cfg.LatencyAlpha)*s.latencyEWMA
	}
	s.pingSentAt = time.Time{}
}

func (s *Session) LatencyEWMA() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latencyEWMA
}

// MarkPingSent records that a PING was just dispatched, for the 10s
// no-PONG timeout to measure against.
func (s *Session) MarkPingSent(at time.Time) {
	s.mu.Lock()
	s.pingSentAt = at
	s.mu.Unlock()
}

// PingPending reports whether a PING is outstanding and, if so, since when.
func (s *Session) PingPending() (bool, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.pingSentAt.IsZero(), s.pingSentAt
}

// IdleFor reports how long the session has seen no frame activity.
func (s *Session) IdleFor(now time.Time) time.Duration {
	return now.Sub(s.LastActivity())
}

// Close zeroes the session's key material. Symmetric keys never
// outlive the connection they were negotiated for.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.key {
		s.key[i] = 0
	}
	s.state = StateBackoff
}

func errProtocolState(st State) error {
	return &stateError{st}
}

type stateError struct{ st State }

func (e *stateError) Error() string {
	return "session not established (state=" + e.st.String() + ")"
}
