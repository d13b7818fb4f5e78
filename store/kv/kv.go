// Package kv wraps a single embedded pebble.DB as the node's durable
// key-value engine, underlying the inbox, outbox, content store, name
// registry, and score table (specification section 6.6). Pebble has
// no native column families, so each logical store gets its own
// Bucket: a byte-prefixed view over the shared keyspace.
package kv

import (
	"bytes"

	"github.com/cockroachdb/pebble"

	"github.com/elysium-mesh/elysium/internal/errs"
)

// DB is the node's single embedded store, opened once at startup at
// the configured data directory; every logical store shares this one
// physical pebble.DB through its own Bucket.
type DB struct {
	pebble *pebble.DB
}

// Open creates or reopens a pebble database at dir.
func Open(dir string) (*DB, error) {
	opts := &pebble.Options{}
	p, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, err
	}
	return &DB{pebble: p}, nil
}

// Close flushes and closes the underlying database.
func (db *DB) Close() error {
	return db.pebble.Close()
}

// Bucket names the type, required so two prefixes never silently
// collide when a new store is added.
type Bucket byte

const (
	BucketInbox  Bucket = 'I'
	BucketOutbox Bucket = 'O'
	BucketContent Bucket = 'C'
	BucketNames  Bucket = 'N'
	BucketScore  Bucket = 'S'
)

// View is a prefixed handle onto db scoped to one logical store.
type View struct {
	db     *DB
	prefix byte
}

// View returns the bucketed handle for b.
func (db *DB) View(b Bucket) *View {
	return &View{db: db, prefix: byte(b)}
}

func (v *View) key(k []byte) []byte {
	out := make([]byte, 0, 1+len(k))
	out = append(out, v.prefix)
	return append(out, k...)
}

// Set writes k -> val, fsync'd per pebble's default WriteOptions (the
// inbox/outbox durability contract needs the write to survive a crash
// before the caller's Append/Enqueue returns).
func (v *View) Set(k, val []byte) error {
	return v.db.pebble.Set(v.key(k), val, pebble.Sync)
}

// Get returns the value for k, or errs.ErrNotFound if absent.
func (v *View) Get(k []byte) ([]byte, error) {
	val, closer, err := v.db.pebble.Get(v.key(k))
	if err == pebble.ErrNotFound {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	out := append([]byte(nil), val...)
	closer.Close()
	return out, nil
}

// Delete removes k, a no-op if absent.
func (v *View) Delete(k []byte) error {
	return v.db.pebble.Delete(v.key(k), pebble.Sync)
}

// Scan iterates every key with the given sub-prefix in ascending
// order, calling fn with the sub-prefix stripped off. Iteration stops
// early if fn returns an error, which Scan then returns.
func (v *View) Scan(subPrefix []byte, fn func(k, val []byte) error) error {
	lower := v.key(subPrefix)
	upper := append(append([]byte(nil), lower...), 0xff)
	it, err := v.db.pebble.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return err
	}
	defer it.Close()

	for it.First(); it.Valid(); it.Next() {
		k := bytes.TrimPrefix(it.Key(), []byte{v.prefix})
		val := append([]byte(nil), it.Value()...)
		if err := fn(k, val); err != nil {
			return err
		}
	}
	return it.Error()
}

// NewBatch starts a batch of writes committed atomically via Commit.
func (v *View) NewBatch() *Batch {
	return &Batch{view: v, batch: v.db.pebble.NewBatch()}
}

// Batch accumulates writes scoped to one View for atomic commit.
type Batch struct {
	view  *View
	batch *pebble.Batch
}

func (b *Batch) Set(k, val []byte) error {
	return b.batch.Set(b.view.key(k), val, nil)
}

func (b *Batch) Delete(k []byte) error {
	return b.batch.Delete(b.view.key(k), nil)
}

func (b *Batch) Commit() error {
	return b.batch.Commit(pebble.Sync)
}
