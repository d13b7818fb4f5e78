package kv

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSetGetRoundTrip(t *testing.T) {
	db := openTestDB(t)
	v := db.View(BucketInbox)

	require.NoError(t, v.Set([]byte("key"), []byte("value")))
	got, err := v.Get([]byte("key"))
	require.NoError(t, err)
	require.Equal(t, []byte("value"), got)
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	db := openTestDB(t)
	v := db.View(BucketInbox)

	_, err := v.Get([]byte("absent"))
	require.Error(t, err)
}

func TestBucketsDoNotCollide(t *testing.T) {
	db := openTestDB(t)
	inbox := db.View(BucketInbox)
	outbox := db.View(BucketOutbox)

	require.NoError(t, inbox.Set([]byte("k"), []byte("inbox-value")))
	require.NoError(t, outbox.Set([]byte("k"), []byte("outbox-value")))

	got, err := outbox.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("outbox-value"), got)

	got, err = inbox.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("inbox-value"), got)
}

func TestScanOrdersAscendingWithinPrefix(t *testing.T) {
	db := openTestDB(t)
	v := db.View(BucketNames)

	require.NoError(t, v.Set([]byte("alice\x00b"), []byte("2")))
	require.NoError(t, v.Set([]byte("alice\x00a"), []byte("1")))
	require.NoError(t, v.Set([]byte("bob\x00a"), []byte("other")))

	var vals []string
	require.NoError(t, v.Scan([]byte("alice\x00"), func(_, val []byte) error {
		vals = append(vals, string(val))
		return nil
	}))
	require.Equal(t, []string{"1", "2"}, vals)
}

func TestDeleteRemovesKey(t *testing.T) {
	db := openTestDB(t)
	v := db.View(BucketContent)

	require.NoError(t, v.Set([]byte("k"), []byte("v")))
	require.NoError(t, v.Delete([]byte("k")))
	_, err := v.Get([]byte("k"))
	require.Error(t, err)
}

func TestBatchCommitsAtomically(t *testing.T) {
	db := openTestDB(t)
	v := db.View(BucketScore)

	b := v.NewBatch()
	require.NoError(t, b.Set([]byte("a"), []byte("1")))
	require.NoError(t, b.Set([]byte("b"), []byte("2")))
	require.NoError(t, b.Commit())

	got, err := v.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), got)
	got, err = v.Get([]byte("b"))
	require.NoError(t, err)
	require.Equal(t, []byte("2"), got)
}
