package announce

import (
	"context"
	"crypto/ed25519"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/elysium-mesh/elysium/content"
	"github.com/elysium-mesh/elysium/identity"
	"github.com/elysium-mesh/elysium/internal/errs"
	"github.com/elysium-mesh/elysium/internal/log"
	"github.com/elysium-mesh/elysium/mesh"
	"github.com/elysium-mesh/elysium/names"
	"github.com/elysium-mesh/elysium/peer"
	"github.com/elysium-mesh/elysium/router"
	"github.com/elysium-mesh/elysium/wire/frame"
	"github.com/elysium-mesh/elysium/wire/proto"
)

// DefaultFetchTimeout bounds how long Fetch waits for a first
// verifying ContentResponse, matching spec.md section 4.7 step 3's
// default content-fetch timeout.
const DefaultFetchTimeout = 10 * time.Second

const requestDedupWindow = 30 * time.Second

// Signer is the minimal identity capability the Service needs to seal
// and sign outbound protocol messages.
type Signer interface {
	Sign(message []byte) []byte
}

// Service implements the announce/fetch protocol on top of an
// established peer set: it dispatches and answers ContentRequest/
// ContentResponse pairs and verifies+stores inbound NameAnnounce
// records, per spec.md section 4.9.
type Service struct {
	self    identity.NodeID
	peers   *peer.Manager
	content *content.Store
	names   *names.Registry
	signer  Signer
	log     log.Logger
	k       int

	seenRequests *mesh.Dedup

	pendingMu sync.Mutex
	pending   map[[16]byte]chan ContentResponse

	relayMu sync.Mutex
	relay   map[[16]byte]relayRoute
}

// relayRoute is the reverse path a relay remembers for a ContentRequest
// it forwarded but does not own: the peer to send the matching
// ContentResponse back to, and when that memory expires.
type relayRoute struct {
	from    *peer.Peer
	expires time.Time
}

// NewService wires a Service to its collaborators. k is the number of
// next hops an opportunistic fetch or relay fans out to (router.DefaultK
// if zero or negative), normally sourced from the node's scorer
// configuration.
func NewService(self identity.NodeID, peers *peer.Manager, store *content.Store, registry *names.Registry, signer Signer, k int, logger log.Logger) *Service {
	if logger == nil {
		logger = log.Nop{}
	}
	if k <= 0 {
		k = router.DefaultK
	}
	return &Service{
		self:         self,
		peers:        peers,
		content:      store,
		names:        registry,
		signer:       signer,
		log:          logger,
		k:            k,
		seenRequests: mesh.NewDedup(requestDedupWindow),
		pending:      make(map[[16]byte]chan ContentResponse),
		relay:        make(map[[16]byte]relayRoute),
	}
}

func (s *Service) Close() { s.seenRequests.Close() }

func (s *Service) sendTo(p *peer.Peer, typ proto.Type, payload []byte) error {
	sess := p.Session()
	if sess == nil {
		return errs.New(errs.KindTransientIO, "announce.send", errNotConnected{})
	}
	body := proto.Encode(typ, payload)
	sealed, err := sess.Seal(frame.TypeData, body)
	if err != nil {
		return err
	}
	return p.Enqueue(sealed)
}

type errNotConnected struct{}

func (errNotConnected) Error() string { return "peer has no established session" }

// Fetch resolves addr to bytes: a local hit is verified and returned
// directly, a cache hit is returned directly, a directly connected
// owner is asked over its session, and otherwise the request
// opportunistically fans out to the top-K routed peers bounded by
// DefaultHopTTL, with the first verifying response winning per
// spec.md section 4.7 step 5.
func (s *Service) Fetch(ctx context.Context, addr content.Address, ownerPub ed25519.PublicKey) ([]byte, error) {
	if addr.Owner == s.self {
		obj, err := s.content.ReadLocal(addr.Path, ownerPub)
		if err != nil {
			return nil, err
		}
		return obj.Bytes, nil
	}

	if obj, ok := s.content.CacheGet(addr); ok {
		return obj.Bytes, nil
	}

	req := ContentRequest{
		RequestID: uuid.New(),
		Owner:     addr.Owner,
		Path:      addr.Path,
		HopTTL:    DefaultHopTTL,
	}

	ch := make(chan ContentResponse, 1)
	s.pendingMu.Lock()
	s.pending[req.RequestID] = ch
	s.pendingMu.Unlock()
	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, req.RequestID)
		s.pendingMu.Unlock()
	}()

	var targets []*peer.Peer
	if owner, ok := s.peers.Get(addr.Owner); ok && owner.State() == peer.StateConnected {
		targets = []*peer.Peer{owner}
	} else {
		targets = router.Select(s.peers.Connected(), s.self, nil, s.k, false)
	}
	if len(targets) == 0 {
		return nil, errs.ErrNotFound
	}
	for _, p := range targets {
		_ = s.sendTo(p, proto.TypeContentRequest, EncodeContentRequest(req))
	}

	timeout := time.After(DefaultFetchTimeout)
	var lastErr error = errs.ErrTimeout
	for {
		select {
		case resp := <-ch:
			if !resp.Found {
				return nil, errs.ErrNotFound
			}
			obj := responseToObject(resp)
			if err := s.content.VerifyRemote(obj); err != nil {
				s.log.Warn("announce: content response failed verification",
					log.String("owner", string(addr.Owner)), log.String("path", addr.Path), log.Err(err))
				lastErr = err
				continue
			}
			s.content.CachePut(obj)
			return obj.Bytes, nil
		case <-timeout:
			return nil, lastErr
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// HandleContentRequest answers or relays an inbound ContentRequest,
// per spec.md section 4.9: if this node owns the requested path it
// answers directly (Found true/false), otherwise it decrements
// hop_ttl and relays through the top-K routed peers, excluding any
// request already seen within the dedup window.
func (s *Service) HandleContentRequest(from *peer.Peer, req ContentRequest, ownerPubFor func(identity.NodeID) (ed25519.PublicKey, bool)) {
	if s.seenRequests.Seen(uuid.UUID(req.RequestID)) {
		return
	}

	if req.Owner == s.self {
		pub, _ := ownerPubFor(s.self)
		obj, err := s.content.ReadLocal(req.Path, pub)
		var resp ContentResponse
		if err != nil {
			resp = ContentResponse{RequestID: req.RequestID, Owner: req.Owner, Path: req.Path, Found: false}
		} else {
			resp = objectToResponse(req.RequestID, obj)
		}
		if from != nil {
			_ = s.sendTo(from, proto.TypeContentResponse, EncodeContentResponse(resp))
		}
		return
	}

	if req.HopTTL == 0 {
		return
	}
	next := req
	next.HopTTL--

	var exclude []identity.NodeID
	if from != nil {
		exclude = []identity.NodeID{from.NodeID}
	}
	targets := router.Select(s.peers.Connected(), s.self, exclude, s.k, false)
	if len(targets) == 0 {
		return
	}
	if from != nil {
		s.rememberRelay(req.RequestID, from)
	}
	for _, p := range targets {
		_ = s.sendTo(p, proto.TypeContentRequest, EncodeContentRequest(next))
	}
}

// rememberRelay records that a ContentResponse matching requestID
// should be forwarded back to from rather than delivered locally,
// pruning any reverse-path entries that have aged out of the request
// dedup window along the way.
func (s *Service) rememberRelay(requestID [16]byte, from *peer.Peer) {
	now := time.Now()
	s.relayMu.Lock()
	defer s.relayMu.Unlock()
	for id, route := range s.relay {
		if now.After(route.expires) {
			delete(s.relay, id)
		}
	}
	s.relay[requestID] = relayRoute{from: from, expires: now.Add(requestDedupWindow)}
}

// HandleContentResponse routes an inbound ContentResponse to the
// waiting Fetch call if this node originated the request, or else
// relays it back along the reverse path a prior HandleContentRequest
// remembered, per spec.md section 4.9's hop_ttl relay machinery;
// responses for unknown or already resolved request ids are discarded
// as late duplicates.
func (s *Service) HandleContentResponse(resp ContentResponse) {
	s.pendingMu.Lock()
	ch, ok := s.pending[resp.RequestID]
	s.pendingMu.Unlock()
	if ok {
		select {
		case ch <- resp:
		default:
		}
		return
	}

	s.relayMu.Lock()
	route, ok := s.relay[resp.RequestID]
	if ok {
		delete(s.relay, resp.RequestID)
	}
	s.relayMu.Unlock()
	if !ok || time.Now().After(route.expires) {
		return
	}
	_ = s.sendTo(route.from, proto.TypeContentResponse, EncodeContentResponse(resp))
}

// HandleNameAnnounce verifies ann's record against its claimed
// owner's public key and stores it, regardless of origin, per
// spec.md section 4.8's mandatory re-verification-on-receipt rule.
func (s *Service) HandleNameAnnounce(ann NameAnnounce) error {
	if err := s.names.Store(ann.Record); err != nil {
		s.log.Warn("announce: rejected name record", log.String("name", ann.Record.Name), log.Err(err))
		return err
	}
	return nil
}
