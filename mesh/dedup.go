package mesh

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DedupWindow is the sliding horizon over which a message_id is
// remembered for duplicate suppression.
const DedupWindow = 60 * time.Second

const dedupCleanupInterval = 15 * time.Second

// Dedup suppresses re-forwarding of a message_id already seen within
// the trailing window, independent of and in addition to the hop-path
// loop check: a message can arrive at the same node twice via two
// different paths before either path grows long enough to self-detect.
type Dedup struct {
	ttl time.Duration
	mu  sync.RWMutex
	seen map[uuid.UUID]time.Time

	stop chan struct{}
}

// NewDedup starts a cache with the given retention window and a
// background goroutine that purges expired entries every 15s.
func NewDedup(ttl time.Duration) *Dedup {
	if ttl <= 0 {
		ttl = DedupWindow
	}
	d := &Dedup{
		ttl:  ttl,
		seen: make(map[uuid.UUID]time.Time),
		stop: make(chan struct{}),
	}
	go d.cleanupLoop()
	return d
}

// Seen reports whether id was already marked within the window, and
// marks it seen for future calls if not.
func (d *Dedup) Seen(id uuid.UUID) bool {
	now := time.Now()

	d.mu.RLock()
	ts, ok := d.seen[id]
	d.mu.RUnlock()
	if ok && now.Sub(ts) <= d.ttl {
		return true
	}

	d.mu.Lock()
	d.seen[id] = now
	d.mu.Unlock()
	return false
}

// Count returns the number of ids currently tracked.
func (d *Dedup) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.seen)
}

// Close stops the cleanup goroutine.
func (d *Dedup) Close() {
	close(d.stop)
}

func (d *Dedup) cleanupLoop() {
	ticker := time.NewTicker(dedupCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.purgeExpired()
		case <-d.stop:
			return
		}
	}
}

func (d *Dedup) purgeExpired() {
	now := time.Now()
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, ts := range d.seen {
		if now.Sub(ts) > d.ttl {
			delete(d.seen, id)
		}
	}
}
