package outbox

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/elysium-mesh/elysium/identity"
	"github.com/elysium-mesh/elysium/mesh"
	"github.com/elysium-mesh/elysium/store/kv"
)

func openTestOutbox(t *testing.T) *Outbox {
	t.Helper()
	db, err := kv.Open(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ob, err := Open(db.View(kv.BucketOutbox), nil)
	require.NoError(t, err)
	t.Cleanup(ob.Close)
	return ob
}

func newMessage(target identity.NodeID) mesh.Message {
	return mesh.NewMessage(uuid.New(), "origin", target, false, []byte("payload"), 8, time.Now().Unix())
}

func TestEnqueueAndPendingInInsertionOrder(t *testing.T) {
	ob := openTestOutbox(t)
	target := identity.NodeID("D")

	m1 := newMessage(target)
	m2 := newMessage(target)
	require.NoError(t, ob.Enqueue(target, m1))
	require.NoError(t, ob.Enqueue(target, m2))

	pending, err := ob.Pending(target)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, m1.ID, pending[0].Message.ID)
	require.Equal(t, m2.ID, pending[1].Message.ID)
}

func TestAckRemovesOnlyMatchingItem(t *testing.T) {
	ob := openTestOutbox(t)
	target := identity.NodeID("D")

	m1 := newMessage(target)
	m2 := newMessage(target)
	require.NoError(t, ob.Enqueue(target, m1))
	require.NoError(t, ob.Enqueue(target, m2))

	ob.Ack(target, m1.ID)

	pending, err := ob.Pending(target)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, m2.ID, pending[0].Message.ID)
}

func TestDrainCallsSendForEveryPendingItemAndRetainsThem(t *testing.T) {
	ob := openTestOutbox(t)
	target := identity.NodeID("D")

	require.NoError(t, ob.Enqueue(target, newMessage(target)))
	require.NoError(t, ob.Enqueue(target, newMessage(target)))

	var sent int
	err := ob.Drain(target, func(m mesh.Message) error {
		sent++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, sent)

	// Items remain in place until ACKed, even after a successful drain.
	pending, err := ob.Pending(target)
	require.NoError(t, err)
	require.Len(t, pending, 2)
}

func TestAllPendingSpansEveryTarget(t *testing.T) {
	ob := openTestOutbox(t)
	require.NoError(t, ob.Enqueue("D", newMessage("D")))
	require.NoError(t, ob.Enqueue("E", newMessage("E")))

	all, err := ob.AllPending()
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestDepthCountsAcrossTargets(t *testing.T) {
	ob := openTestOutbox(t)
	require.Equal(t, 0, ob.Depth())
	require.NoError(t, ob.Enqueue("D", newMessage("D")))
	require.NoError(t, ob.Enqueue("E", newMessage("E")))
	require.Equal(t, 2, ob.Depth())
}
