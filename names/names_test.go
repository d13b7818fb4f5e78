package names

import (
	"crypto/ed25519"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/elysium-mesh/elysium/identity"
	"github.com/elysium-mesh/elysium/internal/errs"
	"github.com/elysium-mesh/elysium/store/kv"
)

type testSigner struct{ priv ed25519.PrivateKey }

func (s testSigner) Sign(msg []byte) []byte { return ed25519.Sign(s.priv, msg) }

func newTestRegistry(t *testing.T) (*Registry, func(identity.NodeID) (ed25519.PublicKey, bool), func() (testSigner, identity.NodeID)) {
	t.Helper()
	db, err := kv.Open(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	keys := make(map[identity.NodeID]ed25519.PublicKey)
	lookup := func(nodeID identity.NodeID) (ed25519.PublicKey, bool) {
		pub, ok := keys[nodeID]
		return pub, ok
	}
	mint := func() (testSigner, identity.NodeID) {
		pub, priv, err := ed25519.GenerateKey(nil)
		require.NoError(t, err)
		id := identity.DeriveNodeID(pub)
		keys[id] = pub
		return testSigner{priv}, id
	}
	return NewRegistry(db.View(kv.BucketNames), lookup), lookup, mint
}

func TestRegisterResolveRoundTrip(t *testing.T) {
	reg, _, mint := newTestRegistry(t)
	signer, nodeID := mint()

	rec, err := Register(signer, "Alice", nodeID)
	require.NoError(t, err)
	require.NoError(t, reg.Store(rec))

	got, err := reg.Resolve("alice")
	require.NoError(t, err)
	require.Equal(t, nodeID, got.NodeID)
}

func TestResolveReturnsNotFoundForUnknownName(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	_, err := reg.Resolve("nobody")
	require.Error(t, err)
	require.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestResolveConflictPicksGreatestTimestamp(t *testing.T) {
	reg, _, mint := newTestRegistry(t)
	signerX, x := mint()
	signerY, y := mint()

	now := time.Now()
	recX, err := Register(signerX, "alice", x)
	require.NoError(t, err)
	recX.Timestamp = now.Add(-time.Hour)
	recX.ExpiresAt = now.Add(DefaultExpiry)
	recX.Signature = signerX.Sign(signTranscript(recX.Name, recX.NodeID, recX.Timestamp, recX.ExpiresAt))
	require.NoError(t, reg.Store(recX))

	recY, err := Register(signerY, "alice", y)
	require.NoError(t, err)
	recY.Timestamp = now
	recY.ExpiresAt = now.Add(DefaultExpiry)
	recY.Signature = signerY.Sign(signTranscript(recY.Name, recY.NodeID, recY.Timestamp, recY.ExpiresAt))
	require.NoError(t, reg.Store(recY))

	got, err := reg.Resolve("alice")
	require.NoError(t, err)
	require.Equal(t, y, got.NodeID)
}

func TestResolveFallsBackWhenWinnerExpires(t *testing.T) {
	reg, _, mint := newTestRegistry(t)
	signerX, x := mint()
	signerY, y := mint()

	now := time.Now()
	recX, err := Register(signerX, "alice", x)
	require.NoError(t, err)
	recX.Timestamp = now.Add(-time.Hour)
	recX.ExpiresAt = now.Add(DefaultExpiry)
	recX.Signature = signerX.Sign(signTranscript(recX.Name, recX.NodeID, recX.Timestamp, recX.ExpiresAt))
	require.NoError(t, reg.Store(recX))

	recY, err := Register(signerY, "alice", y)
	require.NoError(t, err)
	recY.Timestamp = now
	recY.ExpiresAt = now.Add(time.Millisecond) // already-expiring winner
	recY.Signature = signerY.Sign(signTranscript(recY.Name, recY.NodeID, recY.Timestamp, recY.ExpiresAt))
	require.NoError(t, reg.Store(recY))

	time.Sleep(5 * time.Millisecond)

	got, err := reg.Resolve("alice")
	require.NoError(t, err)
	require.Equal(t, x, got.NodeID)
}

func TestStoreRejectsBadSignature(t *testing.T) {
	reg, _, mint := newTestRegistry(t)
	signer, nodeID := mint()

	rec, err := Register(signer, "alice", nodeID)
	require.NoError(t, err)
	rec.Signature[0] ^= 0xff

	err = reg.Store(rec)
	require.Error(t, err)
	require.Equal(t, errs.KindAuthFailure, errs.KindOf(err))
}

func TestStoreRejectsAlreadyExpiredRecord(t *testing.T) {
	reg, _, mint := newTestRegistry(t)
	signer, nodeID := mint()

	rec, err := Register(signer, "alice", nodeID)
	require.NoError(t, err)
	rec.ExpiresAt = time.Now().Add(-time.Hour)
	rec.Signature = signer.Sign(signTranscript(rec.Name, rec.NodeID, rec.Timestamp, rec.ExpiresAt))

	err = reg.Store(rec)
	require.Error(t, err)
	require.Equal(t, errs.KindExpiry, errs.KindOf(err))
}
