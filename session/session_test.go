package session

import (
	"testing"
	"time"

	"github.com/elysium-mesh/elysium/identity"
	"github.com/elysium-mesh/elysium/wire/frame"
	"github.com/stretchr/testify/require"
)

func mustIdentity(t *testing.T) *identity.Identity {
	t.Helper()
	id, err := identity.Generate()
	require.NoError(t, err)
	return id
}

func newEstablishedPair(t *testing.T) (*Session, *Session) {
	t.Helper()
	a := mustIdentity(t)
	b := mustIdentity(t)
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	cfg := DefaultConfig()
	sa := New(a.NodeID, b.NodeID, handshakeVersion, b.PublicKey, append([]byte(nil), key...), cfg)
	sb := New(b.NodeID, a.NodeID, handshakeVersion, a.PublicKey, append([]byte(nil), key...), cfg)
	return sa, sb
}

const handshakeVersion = 1

func TestSealOpenRoundTrip(t *testing.T) {
	sa, sb := newEstablishedPair(t)
	body, err := sa.Seal(frame.TypeData, []byte("hello"))
	require.NoError(t, err)

	typ, pt, err := sb.Open(body)
	require.NoError(t, err)
	require.Equal(t, frame.TypeData, typ)
	require.Equal(t, []byte("hello"), pt)
}

func TestSendNoncesNeverRepeat(t *testing.T) {
	sa, _ := newEstablishedPair(t)
	seen := make(map[uint64]bool)
	for i := 0; i < 100; i++ {
		body, err := sa.Seal(frame.TypeData, []byte("x"))
		require.NoError(t, err)
		seq, err := frame.DecodeNonce(body[1 : 1+frame.NonceSize])
		require.NoError(t, err)
		require.False(t, seen[seq])
		seen[seq] = true
	}
}

func TestReplayRejected(t *testing.T) {
	sa, sb := newEstablishedPair(t)
	body, err := sa.Seal(frame.TypeData, []byte("hello"))
	require.NoError(t, err)

	_, _, err = sb.Open(body)
	require.NoError(t, err)

	_, _, err = sb.Open(body)
	require.Error(t, err)
}

func TestOutOfOrderWithinWindowAccepted(t *testing.T) {
	sa, sb := newEstablishedPair(t)
	var bodies [][]byte
	for i := 0; i < 5; i++ {
		b, err := sa.Seal(frame.TypeData, []byte("x"))
		require.NoError(t, err)
		bodies = append(bodies, b)
	}
	// Deliver out of order: 4, 0, 1, 2, 3.
	order := []int{4, 0, 1, 2, 3}
	for _, idx := range order {
		_, _, err := sb.Open(bodies[idx])
		require.NoError(t, err, "index %d", idx)
	}
}

func TestSealFailsBeforeEstablished(t *testing.T) {
	sa, _ := newEstablishedPair(t)
	sa.SetState(StateInit)
	_, err := sa.Seal(frame.TypeData, []byte("x"))
	require.Error(t, err)
}

func TestLatencyEWMA(t *testing.T) {
	sa, _ := newEstablishedPair(t)
	require.Equal(t, float64(0), sa.LatencyEWMA())
	sa.RecordPong(100 * time.Millisecond)
	require.InDelta(t, 100, sa.LatencyEWMA(), 0.01)
	sa.RecordPong(200 * time.Millisecond)
	require.InDelta(t, 0.3*200+0.7*100, sa.LatencyEWMA(), 0.01)
}
