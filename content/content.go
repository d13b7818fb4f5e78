// Package content implements the content-addressed store
// (specification section 4.7): local objects are hash- and
// signature-verified on every read; foreign objects fetched over the
// wire are cached under a bounded LRU with the same verification
// applied before they are ever served.
package content

import (
	"container/list"
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/elysium-mesh/elysium/identity"
	"github.com/elysium-mesh/elysium/internal/errs"
	"github.com/elysium-mesh/elysium/store/kv"
)

// MaxPathLen is the maximum length of the opaque path segment of an
// ely:// address.
const MaxPathLen = 1024

// DefaultCacheSize bounds the number of foreign objects cached in
// memory at once.
const DefaultCacheSize = 256

// Object is one content-addressed payload.
type Object struct {
	Owner       identity.NodeID
	Path        string
	Bytes       []byte
	ContentHash [32]byte
	Signature   []byte
	PublishedAt time.Time
}

// Address is a parsed ely:// URL.
type Address struct {
	Owner identity.NodeID
	Path  string
}

// String renders a back the canonical ely:// form.
func (a Address) String() string {
	return "ely://" + string(a.Owner) + "/" + a.Path
}

// ParseAddress parses and validates an ely:// URL, rejecting malformed
// forms with InvalidAddress per the spec's content address scheme.
func ParseAddress(url string) (Address, error) {
	const scheme = "ely://"
	if !strings.HasPrefix(url, scheme) {
		return Address{}, errs.ErrInvalidAddress
	}
	rest := url[len(scheme):]
	slash := strings.IndexByte(rest, '/')
	if slash <= 0 || slash == len(rest)-1 {
		return Address{}, errs.ErrInvalidAddress
	}
	owner := rest[:slash]
	path := rest[slash+1:]
	if len(path) == 0 || len(path) > MaxPathLen {
		return Address{}, errs.ErrInvalidAddress
	}
	for _, r := range path {
		if r < 0x20 || r == 0x7f {
			return Address{}, errs.ErrInvalidAddress
		}
	}
	return Address{Owner: identity.NodeID(owner), Path: path}, nil
}

func hashBytes(b []byte) [32]byte {
	return sha256.Sum256(b)
}

// Hash is the exported form of the content hash function, used by
// callers (e.g. the announce protocol) that verify a remote object
// before it ever reaches the Store.
func Hash(b []byte) [32]byte { return hashBytes(b) }

// signPayload is the canonical transcript signed over (owner, path,
// content_hash, published_at), per spec.md section 4.7.
func signPayload(owner identity.NodeID, path string, hash [32]byte, publishedAt time.Time) []byte {
	buf := make([]byte, 0, len(owner)+len(path)+32+8)
	buf = append(buf, []byte(owner)...)
	buf = append(buf, []byte(path)...)
	buf = append(buf, hash[:]...)
	var ts [8]byte
	for i := 0; i < 8; i++ {
		ts[7-i] = byte(publishedAt.Unix() >> (8 * i))
	}
	return append(buf, ts[:]...)
}

// PubKeyLookup resolves the Ed25519 public key believed to belong to a
// node_id, so a remote Object's signature can be verified without
// trusting whatever key the response claims.
type PubKeyLookup func(owner identity.NodeID) (ed25519.PublicKey, bool)

// Store is the local content-addressed store plus a bounded cache of
// verified foreign objects.
type Store struct {
	self   identity.NodeID
	view   *kv.View
	lookup PubKeyLookup

	cacheMu sync.Mutex
	cache   map[Address]*list.Element
	order   *list.List
	cacheN  int
}

// NewStore opens a content store backed by view, scoped to self as
// the locally-owned node_id.
func NewStore(self identity.NodeID, view *kv.View, lookup PubKeyLookup) *Store {
	return &Store{
		self:   self,
		view:   view,
		lookup: lookup,
		cache:  make(map[Address]*list.Element),
		order:  list.New(),
		cacheN: DefaultCacheSize,
	}
}

func localKey(path string) []byte { return []byte(path) }

// Publish hashes and signs bytes under self/path, persists the Object,
// and returns its ely:// address, per spec.md section 4.7.
func (s *Store) Publish(signer interface{ Sign([]byte) []byte }, path string, data []byte) (string, error) {
	if len(path) == 0 || len(path) > MaxPathLen {
		return "", errs.ErrInvalidAddress
	}
	hash := hashBytes(data)
	publishedAt := time.Now()
	sig := signer.Sign(signPayload(s.self, path, hash, publishedAt))

	obj := Object{
		Owner:       s.self,
		Path:        path,
		Bytes:       data,
		ContentHash: hash,
		Signature:   sig,
		PublishedAt: publishedAt,
	}
	if err := s.view.Set(localKey(path), encodeObject(obj)); err != nil {
		return "", err
	}
	return Address{Owner: s.self, Path: path}.String(), nil
}

// ReadLocal returns the locally-published object at path, verifying
// its hash and signature before returning it (CorruptLocal on
// mismatch), per spec.md section 4.7 step 2.
func (s *Store) ReadLocal(path string, ownerPub ed25519.PublicKey) (Object, error) {
	raw, err := s.view.Get(localKey(path))
	if err != nil {
		return Object{}, err
	}
	obj, err := decodeObject(raw)
	if err != nil {
		return Object{}, err
	}
	if err := s.verify(obj, ownerPub); err != nil {
		return Object{}, errs.ErrCorruptLocal
	}
	return obj, nil
}

func (s *Store) verify(obj Object, ownerPub ed25519.PublicKey) error {
	if hashBytes(obj.Bytes) != obj.ContentHash {
		return errs.ErrCorruptLocal
	}
	if ownerPub != nil {
		transcript := signPayload(obj.Owner, obj.Path, obj.ContentHash, obj.PublishedAt)
		if !ed25519.Verify(ownerPub, transcript, obj.Signature) {
			return errs.ErrSignatureInvalid
		}
	}
	return nil
}

// VerifyRemote checks a candidate Object received from the wire
// (spec.md section 4.7 step 4) against its claimed owner's known
// public key, resolved via the Store's PubKeyLookup.
func (s *Store) VerifyRemote(obj Object) error {
	pub, ok := s.lookup(obj.Owner)
	if !ok {
		return errs.ErrSignatureInvalid
	}
	return s.verify(obj, pub)
}

// CacheGet returns a previously cached and verified foreign Object.
func (s *Store) CacheGet(addr Address) (Object, bool) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	el, ok := s.cache[addr]
	if !ok {
		return Object{}, false
	}
	s.order.MoveToFront(el)
	return el.Value.(Object), true
}

// CachePut stores a verified foreign Object in the bounded LRU cache,
// evicting the least recently used entry if at capacity.
func (s *Store) CachePut(obj Object) {
	addr := Address{Owner: obj.Owner, Path: obj.Path}
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if el, ok := s.cache[addr]; ok {
		el.Value = obj
		s.order.MoveToFront(el)
		return
	}
	el := s.order.PushFront(obj)
	s.cache[addr] = el
	if s.order.Len() > s.cacheN {
		oldest := s.order.Back()
		if oldest != nil {
			o := oldest.Value.(Object)
			delete(s.cache, Address{Owner: o.Owner, Path: o.Path})
			s.order.Remove(oldest)
		}
	}
}

// ClearCache drops every cached foreign object (used by tests
// exercising the "cache clear, refetch" scenario in spec.md section 8).
func (s *Store) ClearCache() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.cache = make(map[Address]*list.Element)
	s.order = list.New()
}

func encodeObject(o Object) []byte {
	buf := make([]byte, 0, 64+len(o.Bytes)+len(o.Signature))
	buf = appendStr(buf, string(o.Owner))
	buf = appendStr(buf, o.Path)
	buf = append(buf, o.ContentHash[:]...)
	var ts [8]byte
	u := uint64(o.PublishedAt.Unix())
	for i := 0; i < 8; i++ {
		ts[7-i] = byte(u >> (8 * i))
	}
	buf = append(buf, ts[:]...)
	buf = appendBytes(buf, o.Signature)
	buf = appendBytes(buf, o.Bytes)
	return buf
}

func decodeObject(buf []byte) (Object, error) {
	var o Object
	owner, buf, err := readStr(buf)
	if err != nil {
		return o, err
	}
	o.Owner = identity.NodeID(owner)
	path, buf, err := readStr(buf)
	if err != nil {
		return o, err
	}
	o.Path = path
	if len(buf) < 32+8 {
		return o, fmt.Errorf("content: truncated object header")
	}
	copy(o.ContentHash[:], buf[:32])
	buf = buf[32:]
	var u uint64
	for i := 0; i < 8; i++ {
		u = u<<8 | uint64(buf[i])
	}
	o.PublishedAt = time.Unix(int64(u), 0)
	buf = buf[8:]
	sig, buf, err := readBytes(buf)
	if err != nil {
		return o, err
	}
	o.Signature = sig
	data, _, err := readBytes(buf)
	if err != nil {
		return o, err
	}
	o.Bytes = data
	return o, nil
}

func appendStr(buf []byte, s string) []byte {
	buf = append(buf, byte(len(s)>>8), byte(len(s)))
	return append(buf, s...)
}

func readStr(buf []byte) (string, []byte, error) {
	if len(buf) < 2 {
		return "", nil, fmt.Errorf("content: truncated string length")
	}
	n := int(buf[0])<<8 | int(buf[1])
	buf = buf[2:]
	if len(buf) < n {
		return "", nil, fmt.Errorf("content: truncated string")
	}
	return string(buf[:n]), buf[n:], nil
}

func appendBytes(buf, b []byte) []byte {
	n := len(b)
	buf = append(buf, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
	return append(buf, b...)
}

func readBytes(buf []byte) ([]byte, []byte, error) {
	if len(buf) < 4 {
		return nil, nil, fmt.Errorf("content: truncated bytes length")
	}
	n := int(buf[0])<<24 | int(buf[1])<<16 | int(buf[2])<<8 | int(buf[3])
	buf = buf[4:]
	if len(buf) < n {
		return nil, nil, fmt.Errorf("content: truncated bytes")
	}
	return append([]byte(nil), buf[:n]...), buf[n:], nil
}
