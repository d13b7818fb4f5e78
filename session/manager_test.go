package session

import (
	"net"
	"sync"
	"testing"

	"github.com/elysium-mesh/elysium/internal/errs"
	"github.com/elysium-mesh/elysium/wire/frame"
	"github.com/stretchr/testify/require"
)

func TestManagerHandshakeEstablishesSharedKey(t *testing.T) {
	idA := mustIdentity(t)
	idB := mustIdentity(t)
	mgrA := NewManager(idA, DefaultConfig())
	mgrB := NewManager(idB, DefaultConfig())

	connA, connB := net.Pipe()
	defer connA.Close()
	defer connB.Close()

	var sessA, sessB *Session
	var errA, errB error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); sessA, errA = mgrA.Handshake(connA) }()
	go func() { defer wg.Done(); sessB, errB = mgrB.Handshake(connB) }()
	wg.Wait()

	require.NoError(t, errA)
	require.NoError(t, errB)
	require.Equal(t, idB.NodeID, sessA.PeerID)
	require.Equal(t, idA.NodeID, sessB.PeerID)

	// Both sides must have derived the identical symmetric key: a frame
	// sealed by one must open cleanly on the other.
	body, err := sessA.Seal(frame.TypeData, []byte("ping"))
	require.NoError(t, err)
	_, pt, err := sessB.Open(body)
	require.NoError(t, err)
	require.Equal(t, []byte("ping"), pt)

	s, ok := mgrA.Get(idB.NodeID)
	require.True(t, ok)
	require.Same(t, sessA, s)
}

func TestManagerRejectsDuplicateHelloOnEstablishedSession(t *testing.T) {
	idA := mustIdentity(t)
	idB := mustIdentity(t)
	mgrA := NewManager(idA, DefaultConfig())
	mgrB := NewManager(idB, DefaultConfig())

	c1a, c1b := net.Pipe()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); mgrA.Handshake(c1a) }()
	go func() { defer wg.Done(); mgrB.Handshake(c1b) }()
	wg.Wait()
	c1a.Close()
	c1b.Close()

	c2a, c2b := net.Pipe()
	defer c2a.Close()
	defer c2b.Close()

	var err2A, err2B error
	wg.Add(2)
	go func() { defer wg.Done(); _, err2A = mgrA.Handshake(c2a) }()
	go func() { defer wg.Done(); _, err2B = mgrB.Handshake(c2b) }()
	wg.Wait()

	require.Error(t, err2A)
	require.Equal(t, errs.KindProtocolViolation, errs.KindOf(err2A))
}
