// Package outbox implements the per-recipient pending-message queue
// (specification sections 4.6 and 6.6): Messages whose target was not
// reachable at submission time are durably queued until the target
// reconnects, is ACKed, or the item's 7-day expiry passes. Items
// remain in place (not removed) until ACKed so a mid-flush disconnect
// never loses a message.
package outbox

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/elysium-mesh/elysium/identity"
	"github.com/elysium-mesh/elysium/internal/log"
	"github.com/elysium-mesh/elysium/mesh"
	"github.com/elysium-mesh/elysium/store/kv"
)

// DefaultTTL is how long an outbox item is retained after its
// Message's created_at before it is purged as expired.
const DefaultTTL = 7 * 24 * time.Hour

// AckGrace is how long an item is retained past its last forward
// attempt even without an ACK, per the delivery-ack contract.
const AckGrace = 30 * time.Second

const scanInterval = time.Minute

// Entry is the durable record: the sealed Message plus outbox-local
// bookkeeping (last attempt time, for AckGrace purposes on top of the
// Message's own 7-day not_after).
type Entry struct {
	Seq         uint64
	Target      identity.NodeID
	Message     mesh.Message
	LastAttempt time.Time
}

// Outbox is the durable per-target queue. It satisfies the
// mesh.Outbox interface consumed by the forwarder.
type Outbox struct {
	view *kv.View
	log  log.Logger

	mu      sync.Mutex
	nextSeq uint64
	stop    chan struct{}
}

// Open loads (or initializes) the outbox in view.
func Open(view *kv.View, logger log.Logger) (*Outbox, error) {
	if logger == nil {
		logger = log.Nop{}
	}
	ob := &Outbox{view: view, log: logger, stop: make(chan struct{})}
	var maxSeq uint64
	err := view.Scan(nil, func(k, _ []byte) error {
		if len(k) >= 8 {
			seq := binary.BigEndian.Uint64(k[len(k)-8:])
			if seq >= maxSeq {
				maxSeq = seq + 1
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	ob.nextSeq = maxSeq
	go ob.scanLoop()
	return ob, nil
}

func (ob *Outbox) Close() { close(ob.stop) }

func targetKey(target identity.NodeID, seq uint64) []byte {
	k := make([]byte, 0, len(target)+1+8)
	k = append(k, []byte(target)...)
	k = append(k, 0)
	var s [8]byte
	binary.BigEndian.PutUint64(s[:], seq)
	return append(k, s[:]...)
}

// Enqueue durably stores m for later delivery to target, satisfying
// mesh.Outbox.
func (ob *Outbox) Enqueue(target identity.NodeID, m mesh.Message) error {
	ob.mu.Lock()
	seq := ob.nextSeq
	ob.nextSeq++
	ob.mu.Unlock()

	it := Entry{Seq: seq, Target: target, Message: m, LastAttempt: time.Time{}}
	return ob.view.Set(targetKey(target, seq), encodeItem(it))
}

// Pending returns target's queued items in insertion order.
func (ob *Outbox) Pending(target identity.NodeID) ([]Entry, error) {
	var out []Entry
	prefix := append([]byte(target), 0)
	err := ob.view.Scan(prefix, func(k, val []byte) error {
		it, err := decodeItem(val)
		if err != nil {
			return err
		}
		it.Target = target
		out = append(out, it)
		return nil
	})
	return out, err
}

// AllPending returns every queued item across every target, for the
// bundle exporter (spec.md section 4.10's "all Outbox items whose
// not_after > now").
func (ob *Outbox) AllPending() ([]Entry, error) {
	var out []Entry
	err := ob.view.Scan(nil, func(k, val []byte) error {
		sep := -1
		for i, c := range k {
			if c == 0 {
				sep = i
				break
			}
		}
		if sep < 0 {
			return nil // malformed key, skip rather than fail the whole export
		}
		it, err := decodeItem(val)
		if err != nil {
			return nil
		}
		it.Target = identity.NodeID(k[:sep])
		out = append(out, it)
		return nil
	})
	return out, err
}

// Drain calls send for every one of target's pending items in
// insertion order, marking each attempted. Items are removed only by
// Ack or expiry, never by Drain itself, so a mid-flush disconnect
// never loses a message per the spec's delivery-ack contract.
func (ob *Outbox) Drain(target identity.NodeID, send func(mesh.Message) error) error {
	items, err := ob.Pending(target)
	if err != nil {
		return err
	}
	for _, it := range items {
		if err := send(it.Message); err != nil {
			ob.log.Warn("outbox: drain send failed", log.String("target", string(target)), log.Err(err))
			continue
		}
		it.LastAttempt = time.Now()
		if err := ob.view.Set(targetKey(target, it.Seq), encodeItem(it)); err != nil {
			return err
		}
	}
	return nil
}

// Ack removes the item messageID queued for target, satisfying
// mesh.Outbox.
func (ob *Outbox) Ack(target identity.NodeID, messageID uuid.UUID) {
	items, err := ob.Pending(target)
	if err != nil {
		return
	}
	for _, it := range items {
		if it.Message.ID == messageID {
			_ = ob.view.Delete(targetKey(target, it.Seq))
			return
		}
	}
}

// Depth returns the total number of queued items across every target,
// for the inbox/outbox depth metric.
func (ob *Outbox) Depth() int {
	n := 0
	_ = ob.view.Scan(nil, func(_, _ []byte) error {
		n++
		return nil
	})
	return n
}

func (ob *Outbox) scanLoop() {
	ticker := time.NewTicker(scanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ob.purgeExpired()
		case <-ob.stop:
			return
		}
	}
}

// purgeExpired drops items past created_at+7d, independent of whether
// they were ever attempted or ACKed, per the outbox's 7-day not_after.
func (ob *Outbox) purgeExpired() {
	now := time.Now()
	var expired [][]byte
	_ = ob.view.Scan(nil, func(k, val []byte) error {
		it, err := decodeItem(val)
		if err != nil {
			return nil
		}
		created := time.Unix(it.Message.CreatedAt, 0)
		if now.Sub(created) > DefaultTTL {
			expired = append(expired, append([]byte(nil), k...))
		}
		return nil
	})
	for _, k := range expired {
		_ = ob.view.Delete(k)
	}
	if len(expired) > 0 {
		ob.log.Info("outbox: purged expired items", log.Int("count", len(expired)))
	}
}

func encodeItem(it Entry) []byte {
	enc := it.Message.Encode()
	buf := make([]byte, 0, 8+8+len(enc))
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], it.Seq)
	buf = append(buf, seq[:]...)
	var la [8]byte
	binary.BigEndian.PutUint64(la[:], uint64(it.LastAttempt.Unix()))
	buf = append(buf, la[:]...)
	return append(buf, enc...)
}

func decodeItem(buf []byte) (Entry, error) {
	var it Entry
	if len(buf) < 16 {
		return it, errTruncated{}
	}
	it.Seq = binary.BigEndian.Uint64(buf[:8])
	it.LastAttempt = time.Unix(int64(binary.BigEndian.Uint64(buf[8:16])), 0)
	m, err := mesh.Decode(buf[16:])
	if err != nil {
		return it, err
	}
	it.Message = m
	return it, nil
}

type errTruncated struct{}

func (errTruncated) Error() string { return "truncated outbox record" }
