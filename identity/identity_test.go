package identity

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndSignVerify(t *testing.T) {
	id, err := Generate()
	require.NoError(t, err)
	require.NotEmpty(t, id.NodeID)

	msg := []byte("hello mesh")
	sig := id.Sign(msg)
	assert.True(t, Verify(id.PublicKey, msg, sig))
	assert.False(t, Verify(id.PublicKey, []byte("tampered"), sig))
}

func TestSaveAndLoad(t *testing.T) {
	id, err := Generate()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "sub", "identity.key")
	require.NoError(t, id.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, id.NodeID, loaded.NodeID)
	assert.Equal(t, id.PublicKey, loaded.PublicKey)
}

func TestLoadOrGenerate_CreatesOnFirstCall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.key")

	first, err := LoadOrGenerate(path)
	require.NoError(t, err)

	second, err := LoadOrGenerate(path)
	require.NoError(t, err)

	assert.Equal(t, first.NodeID, second.NodeID)
}

func TestDeriveNodeID_Deterministic(t *testing.T) {
	id, err := Generate()
	require.NoError(t, err)
	assert.Equal(t, id.NodeID, DeriveNodeID(id.PublicKey))
}
