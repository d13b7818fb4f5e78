// Package inbox implements the node's append-only delivered-message
// journal (specification section 4.6 / 6.6): messages addressed to
// this node (or broadcast) are appended in arrival order, never
// mutated, and fanned out to any number of independent watch()
// subscribers without ever blocking the writer.
package inbox

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/elysium-mesh/elysium/identity"
	"github.com/elysium-mesh/elysium/internal/errs"
	"github.com/elysium-mesh/elysium/internal/log"
	"github.com/elysium-mesh/elysium/store/kv"
)

// SubscriberCapacity bounds each watch() subscriber's buffered
// channel; a slow subscriber that falls behind is dropped with a
// Lagged notification rather than stalling Append.
const SubscriberCapacity = 256

// Item is one delivered message, immutable once stored.
type Item struct {
	Seq        uint64
	MessageID  uuid.UUID
	From       identity.NodeID
	Broadcast  bool
	Plaintext  []byte
	ArrivedAt  time.Time
}

// Inbox is a single-writer append-only journal backed by a kv.View,
// indexed by a monotonically increasing arrival sequence.
type Inbox struct {
	view *kv.View
	log  log.Logger

	mu      sync.Mutex // serializes Append; single-writer per spec.md section 5
	nextSeq uint64

	subMu sync.Mutex
	subs  map[*Subscriber]struct{}
}

// Open loads (or initializes) the inbox journal in view, recovering
// its next sequence number from the highest stored entry.
func Open(view *kv.View, logger log.Logger) (*Inbox, error) {
	if logger == nil {
		logger = log.Nop{}
	}
	ib := &Inbox{
		view: view,
		log:  logger,
		subs: make(map[*Subscriber]struct{}),
	}
	var maxSeq uint64
	err := view.Scan(nil, func(k, _ []byte) error {
		if len(k) == 8 {
			if s := binary.BigEndian.Uint64(k); s >= maxSeq {
				maxSeq = s + 1
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	ib.nextSeq = maxSeq
	return ib, nil
}

func seqKey(seq uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], seq)
	return k[:]
}

// Append durably records item, assigns it the next arrival sequence,
// and notifies every live subscriber. Never blocks on a subscriber:
// offers are non-blocking and a full subscriber buffer gets a Lagged
// drop instead.
func (ib *Inbox) Append(messageID uuid.UUID, from identity.NodeID, broadcast bool, plaintext []byte) (Item, error) {
	ib.mu.Lock()
	defer ib.mu.Unlock()

	item := Item{
		Seq:       ib.nextSeq,
		MessageID: messageID,
		From:      from,
		Broadcast: broadcast,
		Plaintext: plaintext,
		ArrivedAt: time.Now(),
	}
	if err := ib.view.Set(seqKey(item.Seq), encodeItem(item)); err != nil {
		return Item{}, err
	}
	ib.nextSeq++
	ib.broadcast(item)
	return item, nil
}

// List returns the last n items in arrival order (oldest first among
// the returned slice), or every item if n <= 0.
func (ib *Inbox) List(n int) ([]Item, error) {
	var all []Item
	err := ib.view.Scan(nil, func(k, val []byte) error {
		item, err := decodeItem(val)
		if err != nil {
			return err
		}
		if len(k) == 8 {
			item.Seq = binary.BigEndian.Uint64(k)
		}
		all = append(all, item)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if n <= 0 || n >= len(all) {
		return all, nil
	}
	return all[len(all)-n:], nil
}

// Subscriber is one watch() consumer: a bounded channel of new items
// plus a Lagged signal, sent when an item is dropped because C is full.
// Unsubscribe only detaches the subscriber; it sends on neither channel.
type Subscriber struct {
	C      chan Item
	Lagged chan struct{}

	ib     *Inbox
	closed bool
}

// Watch opens a new subscription for items appended after this call.
// Each subscriber is independent and cooperative: it never blocks the
// writer or any other subscriber.
func (ib *Inbox) Watch() *Subscriber {
	sub := &Subscriber{
		C:      make(chan Item, SubscriberCapacity),
		Lagged: make(chan struct{}, 1),
		ib:     ib,
	}
	ib.subMu.Lock()
	ib.subs[sub] = struct{}{}
	ib.subMu.Unlock()
	return sub
}

// Unsubscribe detaches sub from future notifications.
func (sub *Subscriber) Unsubscribe() {
	sub.ib.subMu.Lock()
	delete(sub.ib.subs, sub)
	sub.ib.subMu.Unlock()
}

func (ib *Inbox) broadcast(item Item) {
	ib.subMu.Lock()
	defer ib.subMu.Unlock()
	for sub := range ib.subs {
		select {
		case sub.C <- item:
		default:
			select {
			case sub.Lagged <- struct{}{}:
			default:
			}
			ib.log.Warn("inbox: subscriber lagged, dropping", log.Any("seq", item.Seq))
		}
	}
}

func encodeItem(item Item) []byte {
	buf := make([]byte, 0, 64+len(item.Plaintext))
	buf = append(buf, item.MessageID[:]...)
	buf = append(buf, []byte(item.From)...)
	buf = append(buf, 0) // separator: NodeID is base58, never contains NUL
	if item.Broadcast {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(item.ArrivedAt.UnixNano()))
	buf = append(buf, ts[:]...)
	buf = append(buf, item.Plaintext...)
	return buf
}

func decodeItem(buf []byte) (Item, error) {
	if len(buf) < 16 {
		return Item{}, errs.New(errs.KindCorruptLocal, "inbox.decode", errTruncated)
	}
	var item Item
	copy(item.MessageID[:], buf[:16])
	buf = buf[16:]

	sep := indexByte(buf, 0)
	if sep < 0 {
		return Item{}, errs.New(errs.KindCorruptLocal, "inbox.decode", errTruncated)
	}
	item.From = identity.NodeID(buf[:sep])
	buf = buf[sep+1:]

	if len(buf) < 1+8 {
		return Item{}, errs.New(errs.KindCorruptLocal, "inbox.decode", errTruncated)
	}
	item.Broadcast = buf[0] != 0
	item.ArrivedAt = time.Unix(0, int64(binary.BigEndian.Uint64(buf[1:9])))
	item.Plaintext = append([]byte(nil), buf[9:]...)
	return item, nil
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

var errTruncated = truncatedErr{}

type truncatedErr struct{}

func (truncatedErr) Error() string { return "truncated inbox record" }
