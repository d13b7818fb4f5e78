package mesh

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/elysium-mesh/elysium/identity"
)

func TestMessageEncodeDecodeRoundTrip(t *testing.T) {
	m := NewMessage(uuid.New(), "origin", "target", false, []byte("ciphertext"), 5, time.Now().Unix())
	m = m.WithHop("hop1")

	encoded := m.Encode()
	decoded, err := Decode(encoded)
	require.NoError(t, err)

	require.Equal(t, m.ID, decoded.ID)
	require.Equal(t, m.Origin, decoded.Origin)
	require.Equal(t, m.Target, decoded.Target)
	require.Equal(t, m.Broadcast, decoded.Broadcast)
	require.Equal(t, m.TTL, decoded.TTL)
	require.Equal(t, m.Path, decoded.Path)
	require.Equal(t, m.Ciphertext, decoded.Ciphertext)
}

func TestWithHopDecrementsTTLAndAppendsPath(t *testing.T) {
	m := NewMessage(uuid.New(), "A", "Z", true, nil, 8, time.Now().Unix())
	m = m.WithHop("A")
	m = m.WithHop("B")
	require.Equal(t, uint8(6), m.TTL)
	require.Equal(t, []identity.NodeID{"A", "B"}, m.Path)
}

func TestWithHopNeverUnderflowsPastZero(t *testing.T) {
	m := NewMessage(uuid.New(), "A", "Z", false, nil, 0, time.Now().Unix())
	m = m.WithHop("A")
	require.Equal(t, uint8(0), m.TTL)
	require.True(t, m.Expired())
}
