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

// Package session implements the per-connection handshake state
// machine: HELLO/ACK key establishment, AES-256-GCM encrypted framing
// over the shared session key, keepalive pings, and the error-driven
// transition to Backoff on any I/O or authentication failure.
package session

import "time"

// State is a node in the handshake/established state machine. Both
// endpoints of a connection track their own State independently.
type State int

const (
	StateInit State = iota
	StateSendHello
	StateRecvHello
	StateKeyExchange
	StateEstablished
	StatePing
	StateBackoff
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateSendHello:
		return "send_hello"
	case StateRecvHello:
		return "recv_hello"
	case StateKeyExchange:
		return "key_exchange"
	case StateEstablished:
		return "established"
	case StatePing:
		return "ping"
	case StateBackoff:
		return "backoff"
	default:
		return "unknown"
	}
}

// Config holds the session state machine's timing constants.
// DefaultConfig gives the standard values; node.New takes the
// handshake timeout, ping interval and ping timeout from the node
// configuration instead.
type Config struct {
	HandshakeTimeout time.Duration
	IdlePingInterval time.Duration
	PingTimeout      time.Duration
	ReplayWindow     uint64
	LatencyAlpha     float64
}

// DefaultConfig returns the timing constants from the session state
// machine table: 10s handshake timeout, 30s idle ping interval, 10s
// ping response timeout, a 64-entry replay window, and latency EWMA
// alpha=0.3.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		IdlePingInterval: 30 * time.Second,
		PingTimeout:      10 * time.Second,
		ReplayWindow:     64,
		LatencyAlpha:     0.3,
	}
}
