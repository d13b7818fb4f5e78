package handshake

import (
	"testing"

	"github.com/elysium-mesh/elysium/identity"
	"github.com/stretchr/testify/require"
)

func TestHelloRoundTrip(t *testing.T) {
	h := Hello{NodeID: identity.NodeID("abc123"), Version: Version, PublicKey: []byte{1, 2, 3, 4}}
	body := EncodeHello(h)
	got, err := DecodeHello(body)
	require.NoError(t, err)
	require.Equal(t, h, got)
}

func TestDecodeHelloBadMagic(t *testing.T) {
	body := kvEncode([][2][]byte{
		{[]byte("magic"), []byte("NOPE")},
		{[]byte("node_id"), []byte("x")},
		{[]byte("version"), []byte{0, 1}},
		{[]byte("pubkey"), []byte{1}},
	})
	_, err := DecodeHello(body)
	require.Error(t, err)
}

func TestDecodeHelloVersionMismatch(t *testing.T) {
	body := kvEncode([][2][]byte{
		{[]byte("magic"), []byte(Magic)},
		{[]byte("node_id"), []byte("x")},
		{[]byte("version"), []byte{0, 99}},
		{[]byte("pubkey"), []byte{1}},
	})
	_, err := DecodeHello(body)
	require.Error(t, err)
}

func TestAckRoundTrip(t *testing.T) {
	a := Ack{SealedSessionKey: []byte("sealed-bytes"), Nonce: []byte("nonce-bytes")}
	body := EncodeAck(a)
	got, err := DecodeAck(body)
	require.NoError(t, err)
	require.Equal(t, a, got)
}
