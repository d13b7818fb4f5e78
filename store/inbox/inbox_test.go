package inbox

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/elysium-mesh/elysium/store/kv"
)

func openTestInbox(t *testing.T) *Inbox {
	t.Helper()
	db, err := kv.Open(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ib, err := Open(db.View(kv.BucketInbox), nil)
	require.NoError(t, err)
	return ib
}

func TestAppendAssignsAscendingSeq(t *testing.T) {
	ib := openTestInbox(t)

	first, err := ib.Append(uuid.New(), "A", false, []byte("one"))
	require.NoError(t, err)
	second, err := ib.Append(uuid.New(), "A", false, []byte("two"))
	require.NoError(t, err)

	require.Equal(t, uint64(0), first.Seq)
	require.Equal(t, uint64(1), second.Seq)
}

func TestListReturnsArrivalOrder(t *testing.T) {
	ib := openTestInbox(t)
	for i := 0; i < 5; i++ {
		_, err := ib.Append(uuid.New(), "A", false, []byte{byte(i)})
		require.NoError(t, err)
	}

	all, err := ib.List(0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i, item := range all {
		require.Equal(t, byte(i), item.Plaintext[0])
	}

	last2, err := ib.List(2)
	require.NoError(t, err)
	require.Len(t, last2, 2)
	require.Equal(t, byte(3), last2[0].Plaintext[0])
	require.Equal(t, byte(4), last2[1].Plaintext[0])
}

func TestWatchReceivesSubsequentAppends(t *testing.T) {
	ib := openTestInbox(t)
	sub := ib.Watch()
	defer sub.Unsubscribe()

	_, err := ib.Append(uuid.New(), "A", false, []byte("hi"))
	require.NoError(t, err)

	select {
	case item := <-sub.C:
		require.Equal(t, "hi", string(item.Plaintext))
	default:
		t.Fatal("expected watch subscriber to receive the new item")
	}
}

func TestWatchDoesNotReceivePriorAppends(t *testing.T) {
	ib := openTestInbox(t)
	_, err := ib.Append(uuid.New(), "A", false, []byte("before"))
	require.NoError(t, err)

	sub := ib.Watch()
	defer sub.Unsubscribe()

	select {
	case item := <-sub.C:
		t.Fatalf("unexpected item delivered to a fresh subscriber: %+v", item)
	default:
	}
}

func TestRecoversNextSeqAcrossReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	db, err := kv.Open(dir)
	require.NoError(t, err)

	ib, err := Open(db.View(kv.BucketInbox), nil)
	require.NoError(t, err)
	_, err = ib.Append(uuid.New(), "A", false, []byte("one"))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db2, err := kv.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { db2.Close() })
	ib2, err := Open(db2.View(kv.BucketInbox), nil)
	require.NoError(t, err)

	second, err := ib2.Append(uuid.New(), "A", false, []byte("two"))
	require.NoError(t, err)
	require.Equal(t, uint64(1), second.Seq)
}
