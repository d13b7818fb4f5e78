// Package node wires every collaborator package (identity, session,
// peer, router, mesh, store, content, names, announce, api) into a
// single running process: the TCP listener and handshake dispatch, the
// supervised background loops, and the api.Node implementation the
// local management API calls into.
package node

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/elysium-mesh/elysium/api"
	"github.com/elysium-mesh/elysium/content"
	"github.com/elysium-mesh/elysium/identity"
	"github.com/elysium-mesh/elysium/internal/config"
	"github.com/elysium-mesh/elysium/internal/log"
	"github.com/elysium-mesh/elysium/internal/metrics"
	"github.com/elysium-mesh/elysium/mesh"
	"github.com/elysium-mesh/elysium/mesh/announce"
	"github.com/elysium-mesh/elysium/names"
	"github.com/elysium-mesh/elysium/peer"
	"github.com/elysium-mesh/elysium/session"
	"github.com/elysium-mesh/elysium/store/inbox"
	"github.com/elysium-mesh/elysium/store/kv"
	"github.com/elysium-mesh/elysium/store/outbox"
)

// Node is a single running mesh node: every subsystem the specification
// names, supervised by one errgroup and exposed to the local management
// API through this type's method set.
type Node struct {
	cfg *config.Config
	log log.Logger
	id  *identity.Identity

	db          *kv.DB
	inboxStore  *inbox.Inbox
	outboxStore *outbox.Outbox
	content     *content.Store
	names       *names.Registry

	peers     *peer.Manager
	sessions  *session.Manager
	forwarder *mesh.Forwarder
	announce  *announce.Service
	inAdapter *inboxAdapter
	metrics   *metrics.Collector

	api *api.Server

	ln        net.Listener
	startedAt time.Time

	pingMu      sync.Mutex
	pingWaiters map[identity.NodeID]chan time.Duration
}

// New assembles a Node from cfg, loading or generating its identity and
// opening its durable stores, but does not yet listen or dial anything
// (that happens in Start).
func New(cfg *config.Config, logger log.Logger) (*Node, error) {
	if logger == nil {
		logger = log.Default()
	}

	id, err := identity.LoadOrGenerate(cfg.Node.IdentityPath)
	if err != nil {
		return nil, fmt.Errorf("load identity: %w", err)
	}
	nodeLog := logger.WithFields(log.String("node_id", string(id.NodeID)))

	db, err := kv.Open(cfg.Store.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	inboxStore, err := inbox.Open(db.View(kv.BucketInbox), nodeLog)
	if err != nil {
		return nil, fmt.Errorf("open inbox: %w", err)
	}
	outboxStore, err := outbox.Open(db.View(kv.BucketOutbox), nodeLog)
	if err != nil {
		return nil, fmt.Errorf("open outbox: %w", err)
	}

	dialPolicy := peer.DialPolicy{
		BackoffBase:   cfg.Dial.BackoffBase,
		BackoffCap:    cfg.Dial.BackoffCap,
		JitterFrac:    cfg.Dial.BackoffJitter,
		Cooldown:      cfg.Dial.CooldownDuration,
		MaxConcurrent: cfg.Dial.MaxConcurrent,
	}
	sessCfg := session.Config{
		HandshakeTimeout: cfg.Session.HandshakeTimeout,
		IdlePingInterval: cfg.Session.PingInterval,
		PingTimeout:      cfg.Session.PingTimeout,
		ReplayWindow:     session.DefaultConfig().ReplayWindow,
		LatencyAlpha:     session.DefaultConfig().LatencyAlpha,
	}

	n := &Node{
		cfg:         cfg,
		log:         nodeLog,
		id:          id,
		db:          db,
		inboxStore:  inboxStore,
		outboxStore: outboxStore,
		peers:       peer.NewManager(dialPolicy),
		sessions:    session.NewManager(id, sessCfg),
		metrics:     metrics.NewCollector(),
		pingWaiters: make(map[identity.NodeID]chan time.Duration),
	}

	n.content = content.NewStore(id.NodeID, db.View(kv.BucketContent), n.pubKeyFor)
	n.names = names.NewRegistry(db.View(kv.BucketNames), n.pubKeyFor)
	n.inAdapter = &inboxAdapter{inbox: inboxStore, id: id}
	n.forwarder = mesh.NewForwarder(id.NodeID, n.peers, n.inAdapter, outboxStore, cfg.Scorer.TopK, nodeLog)
	n.announce = announce.NewService(id.NodeID, n.peers, n.content, n.names, id, cfg.Scorer.TopK, nodeLog)

	apiServer, err := api.NewServer(cfg.API.BindAddr, cfg.API.TokenPath, n, nodeLog)
	if err != nil {
		return nil, fmt.Errorf("build api server: %w", err)
	}
	n.api = apiServer

	return n, nil
}

// ID returns the node's own identity.
func (n *Node) ID() *identity.Identity { return n.id }

// APIToken returns the bearer token minted for this node's local
// management API.
func (n *Node) APIToken() string { return n.api.Token() }

// pubKeyFor resolves the Ed25519 public key believed to belong to
// nodeID: the node's own key, or a peer's key retained from its most
// recent handshake even if that peer is now offline.
func (n *Node) pubKeyFor(nodeID identity.NodeID) (ed25519.PublicKey, bool) {
	if nodeID == n.id.NodeID {
		return n.id.PublicKey, true
	}
	if p, ok := n.peers.Get(nodeID); ok {
		return p.RemotePub()
	}
	return nil, false
}

// Start listens on the node's configured address and runs every
// supervised background loop until ctx is cancelled, then shuts down
// with a bounded grace window (specification section 9's concurrency
// and resource model).
func (n *Node) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", n.cfg.Node.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", n.cfg.Node.ListenAddress, err)
	}
	n.ln = ln
	n.startedAt = time.Now()
	n.log.Info("node: listening", log.String("address", n.cfg.Node.ListenAddress))

	if n.cfg.Metrics.Enabled {
		go func() {
			if err := metrics.StartServer(n.cfg.Metrics.BindAddr); err != nil {
				n.log.Warn("node: metrics server stopped", log.Err(err))
			}
		}()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return n.acceptLoop(gctx) })
	g.Go(func() error { n.reconnectLoop(gctx); return nil })
	g.Go(func() error { n.keepaliveLoop(gctx); return nil })
	g.Go(func() error { n.statsLoop(gctx); return nil })
	if n.cfg.API.Enabled {
		g.Go(func() error { return n.api.Start(gctx) })
	}

	err = g.Wait()
	n.shutdown()
	return err
}

// shutdown tears down every collaborator after the supervised loops
// have returned, giving live connections a 2s grace window to flush
// queued frames before the writers are stopped outright.
func (n *Node) shutdown() {
	_ = n.ln.Close()

	grace := time.NewTimer(2 * time.Second)
	<-grace.C

	for _, p := range n.peers.All() {
		p.Disconnect()
	}
	n.sessions.Close()
	n.forwarder.Close()
	n.announce.Close()
	n.outboxStore.Close()
	if err := n.db.Close(); err != nil {
		n.log.Warn("node: store close failed", log.Err(err))
	}
}

func (n *Node) statsLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			items, err := n.inboxStore.List(0)
			if err == nil {
				n.metrics.SetInboxDepth(int64(len(items)))
			}
			n.metrics.SetOutboxDepth(int64(n.outboxStore.Depth()))
			n.metrics.SetSessions(int64(n.sessions.Count()))
		}
	}
}
