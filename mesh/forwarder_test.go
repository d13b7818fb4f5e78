package mesh

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/elysium-mesh/elysium/identity"
	"github.com/elysium-mesh/elysium/peer"
	"github.com/elysium-mesh/elysium/session"
	"github.com/elysium-mesh/elysium/wire/frame"
	"github.com/elysium-mesh/elysium/wire/handshake"
	"github.com/elysium-mesh/elysium/wire/proto"
)

// fakeInbox/fakeOutbox stand in for the durable store/inbox and
// store/outbox packages, letting the forwarder's routing decisions be
// asserted in isolation from pebble-backed persistence.
type fakeInbox struct {
	mu    sync.Mutex
	items []Message
}

func (f *fakeInbox) Append(m Message, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, m)
	return nil
}

func (f *fakeInbox) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

type fakeOutbox struct {
	mu     sync.Mutex
	queued map[identity.NodeID][]Message
	acked  []uuid.UUID
}

func newFakeOutbox() *fakeOutbox {
	return &fakeOutbox{queued: make(map[identity.NodeID][]Message)}
}

func (f *fakeOutbox) Enqueue(target identity.NodeID, m Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queued[target] = append(f.queued[target], m)
	return nil
}

func (f *fakeOutbox) Ack(target identity.NodeID, messageID uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, messageID)
}

// connectPeer installs a live net.Pipe connection and an established
// session (sharing key) onto the manager's entry for remoteID, as seen
// from selfID's side, and returns the far end so a test can decode
// whatever self's writer sends.
func connectPeer(t *testing.T, peers *peer.Manager, selfID, remoteID identity.NodeID) (*session.Session, net.Conn) {
	t.Helper()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i + 1)
	}
	selfSide, remoteSide := net.Pipe()

	selfSess := session.New(selfID, remoteID, handshake.Version, nil, append([]byte(nil), key...), session.DefaultConfig())
	remoteSess := session.New(remoteID, selfID, handshake.Version, nil, append([]byte(nil), key...), session.DefaultConfig())

	p := peers.GetOrCreate(remoteID, "addr:"+string(remoteID))
	p.Connect(selfSide, selfSess)
	p.SetState(peer.StateConnected)

	return remoteSess, remoteSide
}

func TestSubmitUnicastDispatchesToConnectedPeer(t *testing.T) {
	self := identity.NodeID("self")
	target := identity.NodeID("target")

	peers := peer.NewManager(peer.DefaultDialPolicy())
	remoteSess, remoteConn := connectPeer(t, peers, self, target)

	ib := &fakeInbox{}
	ob := newFakeOutbox()
	f := NewForwarder(self, peers, ib, ob, 0, nil)
	defer f.Close()

	_, err := f.Submit(target, false, []byte("hi"))
	require.NoError(t, err)

	body, err := frame.Read(remoteConn)
	require.NoError(t, err)
	typ, pt, err := remoteSess.Open(body)
	require.NoError(t, err)
	require.Equal(t, frame.TypeData, typ)

	envType, payload, err := proto.Decode(pt)
	require.NoError(t, err)
	require.Equal(t, proto.TypeMesh, envType)

	m, err := Decode(payload)
	require.NoError(t, err)
	require.Equal(t, target, m.Target)
	require.Equal(t, []identity.NodeID{self}, m.Path)
	require.Equal(t, DefaultTTL-1, m.TTL)
}

func TestSubmitToSelfDeliversLocally(t *testing.T) {
	self := identity.NodeID("self")
	peers := peer.NewManager(peer.DefaultDialPolicy())
	ib := &fakeInbox{}
	ob := newFakeOutbox()
	f := NewForwarder(self, peers, ib, ob, 0, nil)
	defer f.Close()

	_, err := f.Submit(self, false, []byte("local"))
	require.NoError(t, err)
	require.Equal(t, 1, ib.len())
}

func TestSubmitWithNoEligibleHopsSpillsToOutbox(t *testing.T) {
	self := identity.NodeID("self")
	target := identity.NodeID("offline-target")
	peers := peer.NewManager(peer.DefaultDialPolicy())
	ib := &fakeInbox{}
	ob := newFakeOutbox()
	f := NewForwarder(self, peers, ib, ob, 0, nil)
	defer f.Close()

	_, err := f.Submit(target, false, []byte("later"))
	require.NoError(t, err)
	require.Len(t, ob.queued[target], 1)
}

func TestHandleInboundDropsLoopedMessage(t *testing.T) {
	self := identity.NodeID("self")
	peers := peer.NewManager(peer.DefaultDialPolicy())
	ib := &fakeInbox{}
	ob := newFakeOutbox()
	f := NewForwarder(self, peers, ib, ob, 0, nil)
	defer f.Close()

	m := NewMessage(uuid.New(), "origin", "elsewhere", true, []byte("x"), 8, time.Now().Unix())
	m.Path = []identity.NodeID{"a", self, "b"}

	f.HandleInbound(nil, m)
	require.Equal(t, 0, ib.len())
}

func TestHandleInboundDropsExpiredMessage(t *testing.T) {
	self := identity.NodeID("self")
	peers := peer.NewManager(peer.DefaultDialPolicy())
	ib := &fakeInbox{}
	ob := newFakeOutbox()
	f := NewForwarder(self, peers, ib, ob, 0, nil)
	defer f.Close()

	m := NewMessage(uuid.New(), "origin", self, false, []byte("x"), 0, time.Now().Unix())
	f.HandleInbound(nil, m)
	require.Equal(t, 0, ib.len())
}

func TestHandleInboundDeliversToSelf(t *testing.T) {
	self := identity.NodeID("self")
	peers := peer.NewManager(peer.DefaultDialPolicy())
	ib := &fakeInbox{}
	ob := newFakeOutbox()
	f := NewForwarder(self, peers, ib, ob, 0, nil)
	defer f.Close()

	m := NewMessage(uuid.New(), "origin", self, false, []byte("x"), 5, time.Now().Unix())
	f.HandleInbound(nil, m)
	require.Equal(t, 1, ib.len())
}

func TestHandleInboundDedupDropsRepeat(t *testing.T) {
	self := identity.NodeID("self")
	peers := peer.NewManager(peer.DefaultDialPolicy())
	ib := &fakeInbox{}
	ob := newFakeOutbox()
	f := NewForwarder(self, peers, ib, ob, 0, nil)
	defer f.Close()

	m := NewMessage(uuid.New(), "origin", self, false, []byte("x"), 5, time.Now().Unix())
	f.HandleInbound(nil, m)
	f.HandleInbound(nil, m)
	require.Equal(t, 1, ib.len())
}
