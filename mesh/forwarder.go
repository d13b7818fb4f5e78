package mesh

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/elysium-mesh/elysium/identity"
	"github.com/elysium-mesh/elysium/internal/log"
	"github.com/elysium-mesh/elysium/peer"
	"github.com/elysium-mesh/elysium/router"
	"github.com/elysium-mesh/elysium/wire/frame"
	"github.com/elysium-mesh/elysium/wire/proto"
)

// DefaultTTL is the hop budget assigned to a freshly submitted
// Message.
const DefaultTTL uint8 = 8

// ForwardAckTimeout bounds how long a queued forward waits for a
// per-hop acknowledgement before it is scored as a failure.
const ForwardAckTimeout = 10 * time.Second

const ackSweepInterval = 5 * time.Second

// Inbox receives Messages addressed to, or broadcast past, this node.
type Inbox interface {
	Append(m Message, plaintext []byte) error
}

// Outbox queues Messages for targets that are not currently reachable.
type Outbox interface {
	Enqueue(target identity.NodeID, m Message) error
	Ack(target identity.NodeID, messageID uuid.UUID)
}

type pendingKey struct {
	peer identity.NodeID
	msg  uuid.UUID
}

// Forwarder is the mesh-layer dispatch engine: it assigns message_ids
// and TTLs to outbound submissions, applies dedup/loop/TTL policy to
// inbound Messages, and feeds observed forward outcomes back into the
// router's per-peer scores.
type Forwarder struct {
	self  identity.NodeID
	peers *peer.Manager
	dedup *Dedup
	log   log.Logger

	inbox  Inbox
	outbox Outbox

	k int

	pendingMu sync.Mutex
	pending   map[pendingKey]time.Time
	stop      chan struct{}
}

// NewForwarder wires the forwarder to its collaborators. k is the
// number of next hops a unicast routing decision returns (router.DefaultK
// if zero or negative), normally sourced from the node's scorer
// configuration.
func NewForwarder(self identity.NodeID, peers *peer.Manager, inbox Inbox, outbox Outbox, k int, logger log.Logger) *Forwarder {
	if logger == nil {
		logger = log.Nop{}
	}
	if k <= 0 {
		k = router.DefaultK
	}
	f := &Forwarder{
		self:    self,
		peers:   peers,
		dedup:   NewDedup(DedupWindow),
		log:     logger,
		inbox:   inbox,
		outbox:  outbox,
		k:       k,
		pending: make(map[pendingKey]time.Time),
		stop:    make(chan struct{}),
	}
	go f.ackSweepLoop()
	return f
}

func (f *Forwarder) Close() {
	close(f.stop)
	f.dedup.Close()
}

// SeenOrMark reports whether id has already passed through this
// forwarder's dedup window, marking it seen as a side effect. Bundle
// import replays messages through the same cache so a message
// delivered from a bundle is not delivered again if it later arrives
// over the wire, and vice versa.
func (f *Forwarder) SeenOrMark(id uuid.UUID) bool {
	return f.dedup.Seen(id)
}

// Submit is the outbound-submission entry point (spec steps 1-5 of
// the forwarder's outbound path): it stamps a fresh message_id, ttl,
// and creation time, delivers locally if addressed to self, and
// otherwise routes to the best next hops or spills to the outbox if
// none are reachable.
func (f *Forwarder) Submit(target identity.NodeID, broadcast bool, ciphertext []byte) (Message, error) {
	m := NewMessage(uuid.New(), f.self, target, broadcast, ciphertext, DefaultTTL, time.Now().Unix())

	if !broadcast && target == f.self {
		return m, f.inbox.Append(m, ciphertext)
	}

	selected := router.Select(f.peers.Connected(), f.self, m.Path, f.k, broadcast)
	if len(selected) == 0 {
		if !broadcast {
			return m, f.outbox.Enqueue(target, m)
		}
		return m, nil
	}

	next := m.WithHop(f.self)
	f.dispatch(next, selected)
	return m, nil
}

// HandleInbound applies the inbound dispatch policy (spec steps 1-6)
// to a Message received from peer from.
func (f *Forwarder) HandleInbound(from *peer.Peer, m Message) {
	if f.dedup.Seen(m.ID) {
		return
	}
	if m.Expired() {
		return
	}
	for _, hop := range m.Path {
		if hop == f.self {
			return
		}
	}

	if m.Target == f.self || m.Broadcast {
		if err := f.inbox.Append(m, m.Ciphertext); err != nil {
			f.log.Error("mesh: inbox append failed", log.Err(err))
		} else if !m.Broadcast {
			f.sendHopAck(from, m.ID)
		}
		if !m.Broadcast {
			return
		}
	}

	if !m.Broadcast {
		if tp, ok := f.peers.Get(m.Target); ok && tp.State() == peer.StateConnected {
			f.dispatch(m.WithHop(f.self), []*peer.Peer{tp})
			return
		}
	}

	next := m.WithHop(f.self)
	selected := router.Select(f.peers.Connected(), m.Origin, next.Path, f.k, m.Broadcast)
	if len(selected) == 0 {
		return
	}
	f.dispatch(next, selected)
}

func (f *Forwarder) dispatch(m Message, peers []*peer.Peer) {
	body := proto.Encode(proto.TypeMesh, m.Encode())
	for _, p := range peers {
		sess := p.Session()
		if sess == nil {
			p.RecordForward(false)
			continue
		}
		sealed, err := sess.Seal(frame.TypeData, body)
		if err != nil {
			p.RecordForward(false)
			continue
		}
		if err := p.Enqueue(sealed); err != nil {
			p.RecordForward(false)
			continue
		}
		f.markPending(p.NodeID, m.ID)
	}
}

func (f *Forwarder) markPending(peerID identity.NodeID, msgID uuid.UUID) {
	f.pendingMu.Lock()
	f.pending[pendingKey{peer: peerID, msg: msgID}] = time.Now()
	f.pendingMu.Unlock()
}

// sendHopAck replies to the immediate sender of a unicast Message once
// this node's inbox has accepted it, letting that sender's scorer
// credit a successful forward without waiting for a full end-to-end
// round trip.
func (f *Forwarder) sendHopAck(from *peer.Peer, messageID uuid.UUID) {
	if from == nil {
		return
	}
	sess := from.Session()
	if sess == nil {
		return
	}
	var id [16]byte
	copy(id[:], messageID[:])
	body := proto.Encode(proto.TypeAck, proto.EncodeAck(id))
	sealed, err := sess.Seal(frame.TypeData, body)
	if err != nil {
		return
	}
	_ = from.Enqueue(sealed)
}

// HandleAck processes a TypeAck payload received from peer p,
// crediting a successful forward and canceling the pending timeout.
func (f *Forwarder) HandleAck(p *peer.Peer, messageID [16]byte) {
	key := pendingKey{peer: p.NodeID, msg: uuid.UUID(messageID)}
	f.pendingMu.Lock()
	_, ok := f.pending[key]
	delete(f.pending, key)
	f.pendingMu.Unlock()
	if ok {
		p.RecordForward(true)
	}
	f.outbox.Ack(p.NodeID, uuid.UUID(messageID))
}

func (f *Forwarder) ackSweepLoop() {
	ticker := time.NewTicker(ackSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			f.sweepExpiredPending()
		case <-f.stop:
			return
		}
	}
}

func (f *Forwarder) sweepExpiredPending() {
	now := time.Now()
	var expired []pendingKey
	f.pendingMu.Lock()
	for k, t := range f.pending {
		if now.Sub(t) > ForwardAckTimeout {
			expired = append(expired, k)
			delete(f.pending, k)
		}
	}
	f.pendingMu.Unlock()

	for _, k := range expired {
		if p, ok := f.peers.Get(k.peer); ok {
			p.RecordForward(false)
		}
	}
}
