// Package peer implements the registry of known remote identities: a
// Peer survives disconnect (soft-disconnected, never destroyed) and
// accumulates the rolling metrics the scorer reads, while a live
// net.Conn and *session.Session only exist while the Peer is
// Connected.
package peer

import (
	"crypto/ed25519"
	"net"
	"sync"
	"time"

	"github.com/elysium-mesh/elysium/identity"
	"github.com/elysium-mesh/elysium/session"
)

// State is a Peer's connection lifecycle stage.
type State int

const (
	StateDisconnected State = iota
	StateDialing
	StateHandshaking
	StateConnected
	StateBackoff
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateDialing:
		return "dialing"
	case StateHandshaking:
		return "handshaking"
	case StateConnected:
		return "connected"
	case StateBackoff:
		return "backoff"
	default:
		return "unknown"
	}
}

const pingWindowSize = 32

// Peer is a known remote identity, created on discovery or inbound
// connection and never destroyed: it soft-disconnects and ages out of
// the scorer's consideration, but remains a directory entry.
type Peer struct {
	NodeID  identity.NodeID
	Address string

	mu            sync.RWMutex
	state         State
	firstSeen     time.Time
	lastSeen      time.Time
	connectedAt   time.Time
	conn          net.Conn
	sess          *session.Session
	w             *writer
	remotePub     ed25519.PublicKey

	latencyEWMA     float64
	pingWindow      [pingWindowSize]bool
	pingWindowNext  int
	pingWindowCount int

	forwardSuccess int64
	forwardFailure int64

	prevScore float64
}

// New creates a directory entry for a peer first seen at address (may
// be empty for inbound-only peers discovered without a dial target).
func New(nodeID identity.NodeID, address string) *Peer {
	now := time.Now()
	return &Peer{
		NodeID:    nodeID,
		Address:   address,
		state:     StateDisconnected,
		firstSeen: now,
		lastSeen:  now,
	}
}

func (p *Peer) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *Peer) SetState(s State) {
	p.mu.Lock()
	p.state = s
	p.lastSeen = time.Now()
	if s == StateConnected {
		p.connectedAt = time.Now()
	}
	p.mu.Unlock()
}

// Connect installs the live connection and session for a peer
// reaching the Connected state, resetting its uptime clock.
func (p *Peer) Connect(conn net.Conn, sess *session.Session) {
	p.mu.Lock()
	p.conn = conn
	p.sess = sess
	p.state = StateConnected
	p.connectedAt = time.Now()
	p.lastSeen = p.connectedAt
	if sess != nil && len(sess.RemotePub) > 0 {
		p.remotePub = sess.RemotePub
	}
	p.mu.Unlock()
	p.StartWriter()
}

// RemotePub returns the Ed25519 public key this peer presented at its
// most recent handshake, retained across disconnects so content and
// name signatures can still be checked against an offline peer.
func (p *Peer) RemotePub() (ed25519.PublicKey, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.remotePub, p.remotePub != nil
}

// Disconnect clears the live connection/session, marking the peer
// Disconnected (or Backoff, at the caller's discretion via SetState
// afterward) without discarding rolling metrics.
func (p *Peer) Disconnect() {
	p.mu.Lock()
	if p.conn != nil {
		p.conn.Close()
	}
	w := p.w
	p.w = nil
	p.conn = nil
	p.sess = nil
	p.state = StateDisconnected
	p.lastSeen = time.Now()
	p.mu.Unlock()
	if w != nil {
		close(w.done)
	}
}

func (p *Peer) Session() *session.Session {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sess
}

func (p *Peer) Conn() net.Conn {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.conn
}

func (p *Peer) FirstSeen() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.firstSeen
}

func (p *Peer) LastSeen() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastSeen
}

// UptimeSeconds is the time since this peer last reached Connected,
// zero if not currently connected. The counter resets on every
// reconnect per the peer manager's uptime contract.
func (p *Peer) UptimeSeconds() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.state != StateConnected || p.connectedAt.IsZero() {
		return 0
	}
	return time.Since(p.connectedAt).Seconds()
}

// RecordLatency folds a measured round-trip sample into the latency
// EWMA with alpha=0.3, per the peer manager's metrics contract.
func (p *Peer) RecordLatency(sampleMs float64, alpha float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.latencyEWMA == 0 {
		p.latencyEWMA = sampleMs
	} else {
		p.latencyEWMA = alpha*sampleMs + (1-alpha)*p.latencyEWMA
	}
}

func (p *Peer) LatencyMs() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latencyEWMA
}

// RecordPing appends a ping outcome to the rolling 32-sample window.
func (p *Peer) RecordPing(success bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pingWindow[p.pingWindowNext] = success
	p.pingWindowNext = (p.pingWindowNext + 1) % pingWindowSize
	if p.pingWindowCount < pingWindowSize {
		p.pingWindowCount++
	}
}

// PingSuccessRatio is successes over the last min(32, samples) pings.
func (p *Peer) PingSuccessRatio() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.pingWindowCount == 0 {
		return 0
	}
	ok := 0
	for i := 0; i < p.pingWindowCount; i++ {
		if p.pingWindow[i] {
			ok++
		}
	}
	return float64(ok) / float64(p.pingWindowCount)
}

// RecordForward updates the forward success/failure counters the
// scorer's history_score reads.
func (p *Peer) RecordForward(success bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if success {
		p.forwardSuccess++
	} else {
		p.forwardFailure++
	}
}

func (p *Peer) ForwardCounts() (success, failure int64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.forwardSuccess, p.forwardFailure
}

// PrevScore/SetPrevScore persist the scorer's EWMA memory for this
// peer between routing decisions.
func (p *Peer) PrevScore() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.prevScore
}

func (p *Peer) SetPrevScore(v float64) {
	p.mu.Lock()
	p.prevScore = v
	p.mu.Unlock()
}
