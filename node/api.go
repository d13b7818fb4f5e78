package node

import (
	"context"
	"os"
	"time"

	"github.com/elysium-mesh/elysium/api"
	"github.com/elysium-mesh/elysium/bundle"
	"github.com/elysium-mesh/elysium/content"
	"github.com/elysium-mesh/elysium/identity"
	"github.com/elysium-mesh/elysium/internal/errs"
	"github.com/elysium-mesh/elysium/mesh"
	"github.com/elysium-mesh/elysium/names"
	"github.com/elysium-mesh/elysium/peer"
	"github.com/elysium-mesh/elysium/store/inbox"
	"github.com/elysium-mesh/elysium/wire/frame"
	"github.com/elysium-mesh/elysium/wire/proto"
)

// latencyAlpha is the EWMA smoothing factor applied to per-peer ping
// round-trips, matching the default session.Config.LatencyAlpha.
const latencyAlpha = 0.3

var _ api.Node = (*Node)(nil)

// inboxAdapter lets the forwarder deliver to the durable inbox without
// importing store/inbox's Item type into mesh.
type inboxAdapter struct {
	inbox *inbox.Inbox
	id    *identity.Identity
}

func (a *inboxAdapter) Append(m mesh.Message, plaintext []byte) error {
	_, err := a.inbox.Append(m.ID, m.Origin, m.Broadcast, plaintext)
	return err
}

// Status reports the node's current identity, peer count, and queue
// depths for the local management API's status operation.
func (n *Node) Status() api.StatusInfo {
	snap := n.metrics.Snapshot()
	items, _ := n.inboxStore.List(0)
	uptime := time.Duration(0)
	if !n.startedAt.IsZero() {
		uptime = time.Since(n.startedAt)
	}
	return api.StatusInfo{
		NodeID:      string(n.id.NodeID),
		Uptime:      uptime,
		PeerCount:   len(n.peers.Connected()),
		Sessions:    snap.Sessions,
		InboxDepth:  int64(len(items)),
		OutboxDepth: snap.OutboxDepth,
	}
}

// Peers reports every known peer, connected or not, with its live
// scoring inputs.
func (n *Node) Peers() []api.PeerInfo {
	all := n.peers.All()
	out := make([]api.PeerInfo, 0, len(all))
	for _, p := range all {
		success, failure := p.ForwardCounts()
		out = append(out, api.PeerInfo{
			NodeID:         string(p.NodeID),
			Address:        p.Address,
			State:          p.State().String(),
			LatencyMs:      p.LatencyMs(),
			UptimeSeconds:  p.UptimeSeconds(),
			ForwardSuccess: success,
			ForwardFailure: failure,
		})
	}
	return out
}

// Send submits plaintext into the mesh addressed to target (or
// broadcasts it), returning the assigned message_id.
func (n *Node) Send(target string, broadcast bool, plaintext []byte) (string, error) {
	m, err := n.forwarder.Submit(identity.NodeID(target), broadcast, plaintext)
	if err != nil {
		return "", err
	}
	return m.ID.String(), nil
}

// Inbox returns the last lastN delivered items, oldest first (all of
// them if lastN is 0).
func (n *Node) Inbox(lastN int) ([]api.InboxEntry, error) {
	items, err := n.inboxStore.List(lastN)
	if err != nil {
		return nil, err
	}
	out := make([]api.InboxEntry, 0, len(items))
	for _, it := range items {
		out = append(out, api.InboxEntry{
			Seq:       it.Seq,
			MessageID: it.MessageID.String(),
			From:      string(it.From),
			Broadcast: it.Broadcast,
			Plaintext: it.Plaintext,
			ArrivedAt: it.ArrivedAt,
		})
	}
	return out, nil
}

// Watch hands back a live subscription to newly arriving inbox items.
func (n *Node) Watch() *inbox.Subscriber {
	return n.inboxStore.Watch()
}

// Publish signs and stores data at path under this node's own
// content-addressed namespace, returning its ely:// address.
func (n *Node) Publish(path string, data []byte) (string, error) {
	return n.content.Publish(n.id, path, data)
}

// Fetch resolves an ely:// address, serving it from the local store or
// cache when possible and otherwise querying the mesh for it.
func (n *Node) Fetch(ctx context.Context, elyURL string) ([]byte, error) {
	addr, err := content.ParseAddress(elyURL)
	if err != nil {
		return nil, err
	}
	if addr.Owner == n.id.NodeID {
		obj, err := n.content.ReadLocal(addr.Path, n.id.PublicKey)
		if err != nil {
			return nil, err
		}
		return obj.Bytes, nil
	}
	ownerPub, ok := n.pubKeyFor(addr.Owner)
	if !ok {
		return nil, errs.ErrNotFound
	}
	return n.announce.Fetch(ctx, addr, ownerPub)
}

// NameRegister signs and stores a record binding name to this node.
func (n *Node) NameRegister(name string) (names.Record, error) {
	rec, err := names.Register(n.id, name, n.id.NodeID)
	if err != nil {
		return names.Record{}, err
	}
	if err := n.names.Store(rec); err != nil {
		return names.Record{}, err
	}
	return rec, nil
}

// NameResolve returns the node_id currently bound to name.
func (n *Node) NameResolve(name string) (string, error) {
	rec, err := n.names.Resolve(name)
	if err != nil {
		return "", err
	}
	return string(rec.NodeID), nil
}

// BundleExport writes every currently queued outbox message, signed as
// a bundle, to path.
func (n *Node) BundleExport(path string) error {
	pending, err := n.outboxStore.AllPending()
	if err != nil {
		return err
	}
	items := make([]mesh.Message, 0, len(pending))
	for _, e := range pending {
		items = append(items, e.Message)
	}
	data := bundle.Export(n.id.NodeID, n.id, items)
	return os.WriteFile(path, data, 0o644)
}

// BundleImport replays a bundle read from path, delivering items
// addressed here and enqueuing the rest for onward forwarding.
func (n *Node) BundleImport(path string) (bundle.Counts, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return bundle.Counts{}, err
	}
	b, err := bundle.Parse(raw, n.pubKeyFor)
	if err != nil {
		return bundle.Counts{}, err
	}

	deliver := func(m mesh.Message) (bool, error) {
		if n.forwarder.SeenOrMark(m.ID) {
			return false, nil
		}
		if err := n.inAdapter.Append(m, m.Ciphertext); err != nil {
			return false, err
		}
		return true, nil
	}
	forward := func(m mesh.Message) (bool, error) {
		if n.forwarder.SeenOrMark(m.ID) {
			return false, nil
		}
		if err := n.outboxStore.Enqueue(m.Target, m); err != nil {
			return false, err
		}
		return true, nil
	}
	return bundle.Import(b, n.id.NodeID, deliver, forward)
}

// BundleInfo reads a bundle's header without importing its items.
func (n *Node) BundleInfo(path string) (api.BundleMetadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return api.BundleMetadata{}, err
	}
	b, err := bundle.Parse(raw, n.pubKeyFor)
	if err != nil {
		return api.BundleMetadata{}, err
	}
	return api.BundleMetadata{
		ExporterNodeID: string(b.ExporterNodeID),
		CreatedAt:      b.CreatedAt,
		ExpiresAt:      b.ExpiresAt,
		ItemCount:      len(b.Items),
	}, nil
}

// Ping round-trips a ping frame over nodeID's live session and reports
// the observed latency, timing out after timeout.
func (n *Node) Ping(ctx context.Context, nodeID string, timeout time.Duration) (int64, error) {
	p, ok := n.peers.Get(identity.NodeID(nodeID))
	if !ok || p.State() != peer.StateConnected {
		return 0, errs.ErrNotFound
	}
	sess := p.Session()
	if sess == nil {
		return 0, errs.ErrNotFound
	}

	ch := make(chan time.Duration, 1)
	n.pingMu.Lock()
	n.pingWaiters[p.NodeID] = ch
	n.pingMu.Unlock()
	defer func() {
		n.pingMu.Lock()
		delete(n.pingWaiters, p.NodeID)
		n.pingMu.Unlock()
	}()

	now := time.Now()
	body := proto.Encode(proto.TypePing, proto.EncodePing(now.UnixNano()))
	sealed, err := sess.Seal(frame.TypeData, body)
	if err != nil {
		return 0, err
	}
	sess.MarkPingSent(now)
	if err := p.Enqueue(sealed); err != nil {
		return 0, err
	}

	select {
	case rtt := <-ch:
		return rtt.Milliseconds(), nil
	case <-time.After(timeout):
		return 0, errs.ErrTimeout
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// resolvePingWaiter delivers an observed pong round-trip to a pending
// Ping call for peerID, if one is still waiting.
func (n *Node) resolvePingWaiter(peerID identity.NodeID, rtt time.Duration) {
	n.pingMu.Lock()
	ch, ok := n.pingWaiters[peerID]
	n.pingMu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- rtt:
	default:
	}
}
