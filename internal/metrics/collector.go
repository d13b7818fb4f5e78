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

// Package metrics collects and exposes node-level counters: frames,
// handshakes, forwarding outcomes, and queue depths. The in-process
// Collector is cheap to sample from hot paths; Registry/Handler expose
// the same numbers over Prometheus for operators who want scraping.
package metrics

import (
	"sync"
	"time"
)

// Collector accumulates counters for one running node.
type Collector struct {
	mu sync.RWMutex

	FramesSent      int64
	FramesReceived  int64
	AuthFailures    int64
	HandshakeOK     int64
	HandshakeFailed int64

	ForwardSuccess int64
	ForwardFailure int64
	DedupDrops     int64
	TTLDrops       int64
	LoopDrops      int64

	InboxDepth  int64
	OutboxDepth int64
	Sessions    int64

	startTime time.Time
}

// NewCollector creates an empty collector starting its uptime clock now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

func (c *Collector) RecordFrameSent()      { c.bump(&c.FramesSent) }
func (c *Collector) RecordFrameReceived()  { c.bump(&c.FramesReceived) }
func (c *Collector) RecordAuthFailure()    { c.bump(&c.AuthFailures) }
func (c *Collector) RecordHandshake(ok bool) {
	if ok {
		c.bump(&c.HandshakeOK)
	} else {
		c.bump(&c.HandshakeFailed)
	}
}

func (c *Collector) RecordForward(success bool) {
	if success {
		c.bump(&c.ForwardSuccess)
	} else {
		c.bump(&c.ForwardFailure)
	}
}

func (c *Collector) RecordDedupDrop() { c.bump(&c.DedupDrops) }
func (c *Collector) RecordTTLDrop()   { c.bump(&c.TTLDrops) }
func (c *Collector) RecordLoopDrop()  { c.bump(&c.LoopDrops) }

func (c *Collector) SetInboxDepth(n int64)  { c.set(&c.InboxDepth, n) }
func (c *Collector) SetOutboxDepth(n int64) { c.set(&c.OutboxDepth, n) }
func (c *Collector) SetSessions(n int64)    { c.set(&c.Sessions, n) }

func (c *Collector) bump(field *int64) {
	c.mu.Lock()
	*field++
	c.mu.Unlock()
}

func (c *Collector) set(field *int64, v int64) {
	c.mu.Lock()
	*field = v
	c.mu.Unlock()
}

// Snapshot is a point-in-time copy of every counter.
type Snapshot struct {
	Uptime          time.Duration
	FramesSent      int64
	FramesReceived  int64
	AuthFailures    int64
	HandshakeOK     int64
	HandshakeFailed int64
	ForwardSuccess  int64
	ForwardFailure  int64
	DedupDrops      int64
	TTLDrops        int64
	LoopDrops       int64
	InboxDepth      int64
	OutboxDepth     int64
	Sessions        int64
}

// Snapshot returns a consistent copy of the collector's state.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		Uptime:          time.Since(c.startTime),
		FramesSent:      c.FramesSent,
		FramesReceived:  c.FramesReceived,
		AuthFailures:    c.AuthFailures,
		HandshakeOK:     c.HandshakeOK,
		HandshakeFailed: c.HandshakeFailed,
		ForwardSuccess:  c.ForwardSuccess,
		ForwardFailure:  c.ForwardFailure,
		DedupDrops:      c.DedupDrops,
		TTLDrops:        c.TTLDrops,
		LoopDrops:       c.LoopDrops,
		InboxDepth:      c.InboxDepth,
		OutboxDepth:     c.OutboxDepth,
		Sessions:        c.Sessions,
	}
}

// ForwardSuccessRate returns forward successes as a fraction of all
// forwarding attempts observed so far.
func (s Snapshot) ForwardSuccessRate() float64 {
	total := s.ForwardSuccess + s.ForwardFailure
	if total == 0 {
		return 0
	}
	return float64(s.ForwardSuccess) / float64(total)
}
