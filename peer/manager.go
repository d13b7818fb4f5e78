package peer

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/elysium-mesh/elysium/identity"
)

// DialPolicy configures the peer manager's reconnection backoff.
type DialPolicy struct {
	BackoffBase  time.Duration
	BackoffCap   time.Duration
	JitterFrac   float64
	Cooldown     time.Duration
	MaxConcurrent int64
}

// DefaultDialPolicy matches the specification's dial policy: 1s base
// backoff doubling to a 60s cap with ±20% jitter, a 5s same-address
// cooldown, and up to 10 concurrent outgoing attempts.
func DefaultDialPolicy() DialPolicy {
	return DialPolicy{
		BackoffBase:   time.Second,
		BackoffCap:    60 * time.Second,
		JitterFrac:    0.2,
		Cooldown:      5 * time.Second,
		MaxConcurrent: 10,
	}
}

// Discoverer feeds candidate peer addresses from an external
// collaborator (e.g. a UDP beacon); this core names the interface and
// de-duplicates what it is given but implements no discovery
// mechanism itself, per the specification's Out-of-scope list.
type Discoverer interface {
	Discover(ctx context.Context) (<-chan Candidate, error)
}

// Candidate is one discovered dial target.
type Candidate struct {
	NodeID  identity.NodeID
	Address string
}

// Manager is the single-writer registry of every Peer this node has
// ever seen, plus the dial policy governing reconnection attempts.
type Manager struct {
	mu    sync.RWMutex
	peers map[identity.NodeID]*Peer

	policy DialPolicy
	dialSem *semaphore.Weighted

	attemptsMu sync.Mutex
	attempts   map[string]*backoffState // keyed by address
}

type backoffState struct {
	failures   int
	lastTry    time.Time
	nextEarliest time.Time
}

// NewManager creates an empty registry with the given dial policy.
func NewManager(policy DialPolicy) *Manager {
	if policy.MaxConcurrent <= 0 {
		policy.MaxConcurrent = DefaultDialPolicy().MaxConcurrent
	}
	return &Manager{
		peers:    make(map[identity.NodeID]*Peer),
		policy:   policy,
		dialSem:  semaphore.NewWeighted(policy.MaxConcurrent),
		attempts: make(map[string]*backoffState),
	}
}

// GetOrCreate returns the existing directory entry for nodeID, or
// creates one at address if this is the first time this node has been
// seen. Peers are never destroyed once created.
func (m *Manager) GetOrCreate(nodeID identity.NodeID, address string) *Peer {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.peers[nodeID]; ok {
		if address != "" {
			p.Address = address
		}
		return p
	}
	p := New(nodeID, address)
	m.peers[nodeID] = p
	return p
}

func (m *Manager) Get(nodeID identity.NodeID) (*Peer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.peers[nodeID]
	return p, ok
}

// All returns a snapshot of every known peer, connected or not.
func (m *Manager) All() []*Peer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Peer, 0, len(m.peers))
	for _, p := range m.peers {
		out = append(out, p)
	}
	return out
}

// Connected returns every peer currently in the Connected state.
func (m *Manager) Connected() []*Peer {
	var out []*Peer
	for _, p := range m.All() {
		if p.State() == StateConnected {
			out = append(out, p)
		}
	}
	return out
}

// AcquireDialSlot blocks until a concurrent-dial slot is free or ctx
// is done, bounding outgoing attempts to policy.MaxConcurrent.
func (m *Manager) AcquireDialSlot(ctx context.Context) error {
	return m.dialSem.Acquire(ctx, 1)
}

func (m *Manager) ReleaseDialSlot() {
	m.dialSem.Release(1)
}

// CooldownReady reports whether enough time has passed since the last
// failed attempt to address to try again, per the policy's per-address
// cooldown.
func (m *Manager) CooldownReady(address string) bool {
	m.attemptsMu.Lock()
	defer m.attemptsMu.Unlock()
	st, ok := m.attempts[address]
	if !ok {
		return true
	}
	return !time.Now().Before(st.nextEarliest)
}

// RecordDialFailure advances the exponential backoff for address:
// 1s base doubling to a 60s cap, jittered ±20%, plus the fixed
// per-address cooldown floor.
func (m *Manager) RecordDialFailure(address string) {
	m.attemptsMu.Lock()
	defer m.attemptsMu.Unlock()
	st, ok := m.attempts[address]
	if !ok {
		st = &backoffState{}
		m.attempts[address] = st
	}
	st.failures++
	st.lastTry = time.Now()

	backoff := m.policy.BackoffBase << uint(st.failures-1)
	if backoff > m.policy.BackoffCap || backoff <= 0 {
		backoff = m.policy.BackoffCap
	}
	jitter := 1 + (rand.Float64()*2-1)*m.policy.JitterFrac
	wait := time.Duration(float64(backoff) * jitter)
	if wait < m.policy.Cooldown {
		wait = m.policy.Cooldown
	}
	st.nextEarliest = st.lastTry.Add(wait)
}

// RecordDialSuccess clears the backoff state for address.
func (m *Manager) RecordDialSuccess(address string) {
	m.attemptsMu.Lock()
	delete(m.attempts, address)
	m.attemptsMu.Unlock()
}

// Intake merges discovery candidates into the registry, de-duplicating
// by NodeID so the same peer is never registered twice regardless of
// how many addresses it is observed at.
func (m *Manager) Intake(ctx context.Context, d Discoverer) error {
	ch, err := d.Discover(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cand, ok := <-ch:
			if !ok {
				return nil
			}
			m.GetOrCreate(cand.NodeID, cand.Address)
		}
	}
}
