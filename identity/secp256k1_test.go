package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecp256k1SignVerify(t *testing.T) {
	id, err := GenerateSecp256k1()
	require.NoError(t, err)

	msg := []byte("alt identity message")
	sig, err := id.Sign(msg)
	require.NoError(t, err)

	assert.True(t, VerifySecp256k1(id.PublicKey, msg, sig))
	assert.False(t, VerifySecp256k1(id.PublicKey, []byte("other"), sig))
}
