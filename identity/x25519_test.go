package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTrip(t *testing.T) {
	peer, err := Generate()
	require.NoError(t, err)

	plaintext := []byte("session-seed-material-32-bytes!")
	sealed, err := SealForPeer(peer.PublicKey, plaintext)
	require.NoError(t, err)

	opened, err := peer.OpenFromPeer(sealed)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestOpenFromPeer_WrongRecipientFails(t *testing.T) {
	peer, err := Generate()
	require.NoError(t, err)
	other, err := Generate()
	require.NoError(t, err)

	sealed, err := SealForPeer(peer.PublicKey, []byte("secret"))
	require.NoError(t, err)

	_, err = other.OpenFromPeer(sealed)
	assert.Error(t, err)
}

func TestToX25519_Deterministic(t *testing.T) {
	id, err := Generate()
	require.NoError(t, err)

	priv1, err := ToX25519Private(id.PrivateKey)
	require.NoError(t, err)
	priv2, err := ToX25519Private(id.PrivateKey)
	require.NoError(t, err)
	assert.Equal(t, priv1, priv2)

	pub1, err := ToX25519Public(id.PublicKey)
	require.NoError(t, err)
	pub2, err := ToX25519Public(id.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, pub1, pub2)
}
