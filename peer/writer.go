package peer

import (
	"errors"
	"sync"

	"github.com/elysium-mesh/elysium/internal/errs"
	"github.com/elysium-mesh/elysium/wire/frame"
)

// QueueCapacity is the bounded size of each peer's outbound frame
// queue (default 1024 frames per the concurrency model's backpressure
// policy).
const QueueCapacity = 1024

type writer struct {
	mu    sync.Mutex
	queue chan []byte
	done  chan struct{}
}

// StartWriter launches the per-peer writer goroutine that drains the
// bounded outbound queue onto the live connection in FIFO order,
// giving every session exactly one reader and one writer task per the
// concurrency model. Safe to call once per Connect.
func (p *Peer) StartWriter() {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil {
		return
	}

	w := &writer{
		queue: make(chan []byte, QueueCapacity),
		done:  make(chan struct{}),
	}
	p.mu.Lock()
	p.w = w
	p.mu.Unlock()

	go func() {
		for {
			select {
			case body, ok := <-w.queue:
				if !ok {
					return
				}
				if err := frame.Write(conn, body); err != nil {
					return
				}
			case <-w.done:
				return
			}
		}
	}()
}

// StopWriter signals the writer goroutine to exit without draining
// remaining frames. Call after the 2s shutdown grace window expires.
func (p *Peer) StopWriter() {
	p.mu.Lock()
	w := p.w
	p.w = nil
	p.mu.Unlock()
	if w != nil {
		close(w.done)
	}
}

// Enqueue offers body to this peer's bounded outbound queue,
// non-blocking: on overflow it returns a Capacity error instead of
// blocking the caller, so a slow or wedged peer never stalls forwarding
// to other hops.
func (p *Peer) Enqueue(body []byte) error {
	p.mu.RLock()
	w := p.w
	p.mu.RUnlock()
	if w == nil {
		return errs.New(errs.KindTransientIO, "peer.enqueue", errNotConnected)
	}
	select {
	case w.queue <- body:
		return nil
	default:
		return errs.ErrCapacity
	}
}

var errNotConnected = errors.New("peer not connected")
