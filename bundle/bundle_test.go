package bundle

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/elysium-mesh/elysium/identity"
	"github.com/elysium-mesh/elysium/internal/errs"
	"github.com/elysium-mesh/elysium/mesh"
)

type testSigner struct{ priv ed25519.PrivateKey }

func (s testSigner) Sign(msg []byte) []byte { return ed25519.Sign(s.priv, msg) }

func newExporter(t *testing.T) (testSigner, identity.NodeID, PubKeyLookup) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	id := identity.DeriveNodeID(pub)
	lookup := func(nodeID identity.NodeID) (ed25519.PublicKey, bool) {
		if nodeID == id {
			return pub, true
		}
		return nil, false
	}
	return testSigner{priv}, id, lookup
}

func TestExportThenParseRoundTrip(t *testing.T) {
	signer, id, lookup := newExporter(t)
	items := []mesh.Message{
		mesh.NewMessage(uuid.New(), id, "target", false, []byte("hello"), 8, time.Now().Unix()),
	}

	raw := Export(id, signer, items)
	b, err := Parse(raw, lookup)
	require.NoError(t, err)
	require.Equal(t, id, b.ExporterNodeID)
	require.Len(t, b.Items, 1)
	require.Equal(t, items[0].ID, b.Items[0].ID)
}

func TestParseRejectsBadMagic(t *testing.T) {
	_, _, lookup := newExporter(t)
	_, err := Parse([]byte("XXXXgarbage"), lookup)
	require.Error(t, err)
	require.Equal(t, errs.KindInvalidInput, errs.KindOf(err))
}

func TestParseRejectsUnknownVersion(t *testing.T) {
	signer, id, lookup := newExporter(t)
	raw := Export(id, signer, nil)
	raw[4] = Version + 1
	// Signature no longer matches the mutated body, but version check
	// happens first.
	_, err := Parse(raw, lookup)
	require.ErrorIs(t, err, errs.ErrVersionUnsupported)
}

func TestParseRejectsTamperedSignature(t *testing.T) {
	signer, id, lookup := newExporter(t)
	raw := Export(id, signer, nil)
	raw[len(raw)-1] ^= 0xff

	_, err := Parse(raw, lookup)
	require.Error(t, err)
	require.Equal(t, errs.KindAuthFailure, errs.KindOf(err))
}

func TestParseRejectsUnknownExporter(t *testing.T) {
	signer, id, _ := newExporter(t)
	raw := Export(id, signer, nil)

	_, err := Parse(raw, func(identity.NodeID) (ed25519.PublicKey, bool) { return nil, false })
	require.Error(t, err)
	require.Equal(t, errs.KindAuthFailure, errs.KindOf(err))
}

func TestParseRejectsExpiredBundle(t *testing.T) {
	signer, id, lookup := newExporter(t)
	raw := Export(id, signer, nil)

	// Push the encoded expires_at field (bytes after magic+version+exporter)
	// into the past and re-sign so the signature still checks out.
	b := Bundle{ExporterNodeID: id, CreatedAt: time.Now().Add(-8 * 24 * time.Hour), ExpiresAt: time.Now().Add(-24 * time.Hour)}
	body := encodeBody(b)
	sig := signer.Sign(body)
	raw = append(append([]byte{}, body...), appendBytes32(nil, sig)...)

	_, err := Parse(raw, lookup)
	require.Error(t, err)
	require.Equal(t, errs.KindExpiry, errs.KindOf(err))
}

func TestImportDeliversMessagesAddressedToSelf(t *testing.T) {
	self := identity.NodeID("self")
	b := Bundle{Items: []mesh.Message{
		mesh.NewMessage(uuid.New(), "origin", self, false, []byte("x"), 8, time.Now().Unix()),
	}}

	var delivered []mesh.Message
	counts, err := Import(b, self, func(m mesh.Message) (bool, error) {
		delivered = append(delivered, m)
		return true, nil
	}, func(m mesh.Message) (bool, error) {
		t.Fatal("forward should not be called for a message addressed to self")
		return false, nil
	})
	require.NoError(t, err)
	require.Equal(t, Counts{Delivered: 1}, counts)
	require.Len(t, delivered, 1)
}

func TestImportForwardsMessagesAddressedElsewhere(t *testing.T) {
	self := identity.NodeID("self")
	b := Bundle{Items: []mesh.Message{
		mesh.NewMessage(uuid.New(), "origin", "other", false, []byte("x"), 8, time.Now().Unix()),
	}}

	var forwarded []mesh.Message
	counts, err := Import(b, self, func(m mesh.Message) (bool, error) {
		t.Fatal("deliver should not be called for a message addressed elsewhere")
		return false, nil
	}, func(m mesh.Message) (bool, error) {
		forwarded = append(forwarded, m)
		return true, nil
	})
	require.NoError(t, err)
	require.Equal(t, Counts{Forwarded: 1}, counts)
	require.Len(t, forwarded, 1)
}

func TestImportBroadcastBothDeliversAndForwards(t *testing.T) {
	self := identity.NodeID("self")
	b := Bundle{Items: []mesh.Message{
		mesh.NewMessage(uuid.New(), "origin", "", true, []byte("x"), 8, time.Now().Unix()),
	}}

	counts, err := Import(b, self, func(m mesh.Message) (bool, error) {
		return true, nil
	}, func(m mesh.Message) (bool, error) {
		return true, nil
	})
	require.NoError(t, err)
	require.Equal(t, Counts{Delivered: 1, Forwarded: 1}, counts)
}

func TestImportCountsDuplicatesAndExpiredItems(t *testing.T) {
	self := identity.NodeID("self")
	stale := mesh.NewMessage(uuid.New(), "origin", self, false, []byte("old"), 8, time.Now().Add(-8*24*time.Hour).Unix())
	dup := mesh.NewMessage(uuid.New(), "origin", self, false, []byte("dup"), 8, time.Now().Unix())
	b := Bundle{Items: []mesh.Message{stale, dup}}

	counts, err := Import(b, self, func(m mesh.Message) (bool, error) {
		return false, nil // already seen
	}, func(m mesh.Message) (bool, error) {
		return false, nil
	})
	require.NoError(t, err)
	require.Equal(t, Counts{Expired: 1, Duplicates: 1}, counts)
}
