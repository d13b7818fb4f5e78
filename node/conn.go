package node

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/elysium-mesh/elysium/internal/log"
	"github.com/elysium-mesh/elysium/mesh"
	"github.com/elysium-mesh/elysium/mesh/announce"
	"github.com/elysium-mesh/elysium/peer"
	"github.com/elysium-mesh/elysium/wire/frame"
	"github.com/elysium-mesh/elysium/wire/proto"
)

var errPeerNotConnected = errors.New("peer has no live session")

func (n *Node) acceptLoop(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = n.ln.Close()
	}()
	for {
		conn, err := n.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go n.handleInbound(conn)
	}
}

func (n *Node) handleInbound(conn net.Conn) {
	_ = conn.SetDeadline(time.Now().Add(n.cfg.Session.HandshakeTimeout))
	sess, err := n.sessions.Handshake(conn)
	if err != nil {
		n.metrics.RecordHandshake(false)
		n.log.Warn("node: inbound handshake failed", log.Err(err))
		conn.Close()
		return
	}
	_ = conn.SetDeadline(time.Time{})
	n.metrics.RecordHandshake(true)

	p := n.peers.GetOrCreate(sess.PeerID, "")
	p.Connect(conn, sess)
	n.log.Info("node: peer connected", log.String("peer", string(sess.PeerID)))
	go n.drainOutboxFor(p)
	n.readLoop(p)
}

// Dial opens an outbound connection to address, completing the
// handshake and installing the resulting peer/session pair. No
// discovery mechanism selects addresses to dial; this is the seam a
// caller (the CLI, or the reconnect loop for a previously known
// address) uses to form the mesh.
func (n *Node) Dial(ctx context.Context, address string) error {
	if err := n.peers.AcquireDialSlot(ctx); err != nil {
		return err
	}
	defer n.peers.ReleaseDialSlot()

	dialer := net.Dialer{Timeout: n.cfg.Session.HandshakeTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		n.peers.RecordDialFailure(address)
		return err
	}

	_ = conn.SetDeadline(time.Now().Add(n.cfg.Session.HandshakeTimeout))
	sess, err := n.sessions.Handshake(conn)
	if err != nil {
		n.metrics.RecordHandshake(false)
		n.peers.RecordDialFailure(address)
		conn.Close()
		return err
	}
	_ = conn.SetDeadline(time.Time{})
	n.metrics.RecordHandshake(true)
	n.peers.RecordDialSuccess(address)

	p := n.peers.GetOrCreate(sess.PeerID, address)
	p.Connect(conn, sess)
	n.log.Info("node: dialed peer", log.String("peer", string(sess.PeerID)), log.String("address", address))
	go n.drainOutboxFor(p)
	go n.readLoop(p)
	return nil
}

// reconnectLoop redials every known peer with a dial address that is
// not currently connecting or connected, once its backoff cooldown has
// elapsed, so a previously seen peer is not lost just because its
// session dropped.
func (n *Node) reconnectLoop(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, p := range n.peers.All() {
				if p.Address == "" {
					continue
				}
				switch p.State() {
				case peer.StateConnected, peer.StateDialing, peer.StateHandshaking:
					continue
				}
				if !n.peers.CooldownReady(p.Address) {
					continue
				}
				address := p.Address
				go func() {
					dctx, cancel := context.WithTimeout(ctx, n.cfg.Session.HandshakeTimeout)
					defer cancel()
					if err := n.Dial(dctx, address); err != nil {
						n.log.Debug("node: reconnect attempt failed", log.String("address", address), log.Err(err))
					}
				}()
			}
		}
	}
}

// keepaliveLoop pings idle sessions and tears down any session that
// fails to answer a ping within the configured timeout.
func (n *Node) keepaliveLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			for _, p := range n.peers.Connected() {
				sess := p.Session()
				if sess == nil {
					continue
				}
				if pending, sentAt := sess.PingPending(); pending {
					if now.Sub(sentAt) > n.cfg.Session.PingTimeout {
						p.RecordPing(false)
						n.disconnectPeer(p)
					}
					continue
				}
				if sess.IdleFor(now) < n.cfg.Session.PingInterval {
					continue
				}
				body := proto.Encode(proto.TypePing, proto.EncodePing(now.UnixNano()))
				sealed, err := sess.Seal(frame.TypeData, body)
				if err != nil {
					continue
				}
				sess.MarkPingSent(now)
				if err := p.Enqueue(sealed); err == nil {
					n.metrics.RecordFrameSent()
				}
			}
		}
	}
}

func (n *Node) disconnectPeer(p *peer.Peer) {
	n.sessions.Remove(p.NodeID)
	p.Disconnect()
	p.SetState(peer.StateBackoff)
}

// drainOutboxFor flushes any messages queued for p while it was
// unreachable, now that it has (re)connected.
func (n *Node) drainOutboxFor(p *peer.Peer) {
	err := n.outboxStore.Drain(p.NodeID, func(m mesh.Message) error {
		sess := p.Session()
		if sess == nil {
			return errPeerNotConnected
		}
		body := proto.Encode(proto.TypeMesh, m.Encode())
		sealed, err := sess.Seal(frame.TypeData, body)
		if err != nil {
			return err
		}
		return p.Enqueue(sealed)
	})
	if err != nil {
		n.log.Warn("node: outbox drain failed", log.String("peer", string(p.NodeID)), log.Err(err))
	}
}

func (n *Node) readLoop(p *peer.Peer) {
	conn := p.Conn()
	for {
		body, err := frame.Read(conn)
		if err != nil {
			break
		}
		n.metrics.RecordFrameReceived()

		sess := p.Session()
		if sess == nil {
			break
		}
		typ, payload, err := sess.Open(body)
		if err != nil {
			n.metrics.RecordAuthFailure()
			n.log.Warn("node: frame auth failed, closing session", log.String("peer", string(p.NodeID)), log.Err(err))
			break
		}
		if typ != frame.TypeData {
			continue
		}
		n.dispatch(p, payload)
	}
	n.disconnectPeer(p)
	n.log.Info("node: peer disconnected", log.String("peer", string(p.NodeID)))
}

func (n *Node) dispatch(p *peer.Peer, payload []byte) {
	mtype, body, err := proto.Decode(payload)
	if err != nil {
		return
	}
	switch mtype {
	case proto.TypePing:
		n.handlePing(p, body)
	case proto.TypePong:
		n.handlePong(p, body)
	case proto.TypeMesh:
		m, err := mesh.Decode(body)
		if err != nil {
			return
		}
		n.forwarder.HandleInbound(p, m)
	case proto.TypeAck:
		id, err := proto.DecodeAck(body)
		if err != nil {
			return
		}
		n.forwarder.HandleAck(p, id)
	case proto.TypeContentRequest:
		req, err := announce.DecodeContentRequest(body)
		if err != nil {
			return
		}
		n.announce.HandleContentRequest(p, req, n.pubKeyFor)
	case proto.TypeContentResponse:
		resp, err := announce.DecodeContentResponse(body)
		if err != nil {
			return
		}
		n.announce.HandleContentResponse(resp)
	case proto.TypeNameAnnounce:
		ann, err := announce.DecodeNameAnnounce(body)
		if err != nil {
			return
		}
		_ = n.announce.HandleNameAnnounce(ann)
	}
}

func (n *Node) handlePing(p *peer.Peer, body []byte) {
	ts, err := proto.DecodeTimestamp(body)
	if err != nil {
		return
	}
	sess := p.Session()
	if sess == nil {
		return
	}
	resp := proto.Encode(proto.TypePong, proto.EncodePing(ts))
	sealed, err := sess.Seal(frame.TypeData, resp)
	if err != nil {
		return
	}
	if err := p.Enqueue(sealed); err == nil {
		n.metrics.RecordFrameSent()
	}
}

func (n *Node) handlePong(p *peer.Peer, body []byte) {
	ts, err := proto.DecodeTimestamp(body)
	if err != nil {
		return
	}
	rtt := time.Since(time.Unix(0, ts))
	if sess := p.Session(); sess != nil {
		sess.RecordPong(rtt)
	}
	p.RecordLatency(float64(rtt.Milliseconds()), latencyAlpha)
	p.RecordPing(true)
	n.resolvePingWaiter(p.NodeID, rtt)
}
