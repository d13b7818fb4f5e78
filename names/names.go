// Package names implements the local signed name registry
// (specification section 4.8): lowercase name -> node_id bindings with
// a 30-day expiry, timestamp-wins conflict resolution, and mandatory
// re-verification of every inbound record regardless of origin. Per
// the spec's explicit Open Question, propagation is opportunistic and
// out of scope; this package only registers, resolves, and verifies.
package names

import (
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/elysium-mesh/elysium/identity"
	"github.com/elysium-mesh/elysium/internal/errs"
	"github.com/elysium-mesh/elysium/store/kv"
)

// MaxNameLen is the maximum length of a registered name, in bytes.
const MaxNameLen = 63

// DefaultExpiry is how long a freshly registered record is valid.
const DefaultExpiry = 30 * 24 * time.Hour

// Record is one signed name -> node_id binding.
type Record struct {
	Name      string
	NodeID    identity.NodeID
	Timestamp time.Time
	ExpiresAt time.Time
	Signature []byte
}

func normalize(name string) (string, error) {
	if len(name) == 0 || len(name) > MaxNameLen {
		return "", errs.New(errs.KindInvalidInput, "names.normalize", fmt.Errorf("name length out of range"))
	}
	lower := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		lower[i] = c
	}
	return string(lower), nil
}

// signTranscript is the canonical bytes signed over a record.
func signTranscript(name string, nodeID identity.NodeID, ts, exp time.Time) []byte {
	buf := make([]byte, 0, len(name)+len(nodeID)+16)
	buf = append(buf, []byte(name)...)
	buf = append(buf, 0)
	buf = append(buf, []byte(nodeID)...)
	buf = appendI64(buf, ts.Unix())
	buf = appendI64(buf, exp.Unix())
	return buf
}

func appendI64(buf []byte, v int64) []byte {
	u := uint64(v)
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[7-i] = byte(u >> (8 * i))
	}
	return append(buf, b[:]...)
}

func readI64(buf []byte) int64 {
	var u uint64
	for i := 0; i < 8; i++ {
		u = u<<8 | uint64(buf[i])
	}
	return int64(u)
}

// Register produces a freshly signed Record for name -> nodeID, signed
// by signer (the Identity owning nodeID).
func Register(signer interface{ Sign([]byte) []byte }, name string, nodeID identity.NodeID) (Record, error) {
	norm, err := normalize(name)
	if err != nil {
		return Record{}, err
	}
	now := time.Now()
	exp := now.Add(DefaultExpiry)
	rec := Record{
		Name:      norm,
		NodeID:    nodeID,
		Timestamp: now,
		ExpiresAt: exp,
		Signature: signer.Sign(signTranscript(norm, nodeID, now, exp)),
	}
	return rec, nil
}

// Verify checks rec's signature against pub, the public key believed
// to belong to rec.NodeID.
func Verify(rec Record, pub ed25519.PublicKey) bool {
	return ed25519.Verify(pub, signTranscript(rec.Name, rec.NodeID, rec.Timestamp, rec.ExpiresAt), rec.Signature)
}

// PubKeyLookup resolves the Ed25519 public key believed to belong to a
// node_id, for verifying records at registration and on receipt.
type PubKeyLookup func(nodeID identity.NodeID) (ed25519.PublicKey, bool)

// Registry is the local store of signed name records. Every
// non-expired record ever accepted for a name is retained (not just
// the current winner), since an expired winner must fall back to a
// still-valid older record rather than resolving to nothing, per
// spec.md section 8's name-conflict scenario.
type Registry struct {
	view   *kv.View
	lookup PubKeyLookup
}

// NewRegistry opens a name registry backed by view.
func NewRegistry(view *kv.View, lookup PubKeyLookup) *Registry {
	return &Registry{view: view, lookup: lookup}
}

// recordKey orders records for a name by timestamp so Scan returns
// them ascending; node_id is appended to keep same-timestamp records
// from distinct nodes from colliding.
func recordKey(name string, rec Record) []byte {
	k := make([]byte, 0, len(name)+1+8+len(rec.NodeID))
	k = append(k, name...)
	k = append(k, 0)
	k = appendI64(k, rec.Timestamp.Unix())
	return append(k, []byte(rec.NodeID)...)
}

// Store verifies rec against its claimed owner's public key and
// retains it (rejecting it outright only if already expired or badly
// signed); conflict resolution and expiry happen at Resolve time, not
// at write time, so an older still-valid record remains available
// after a newer one expires.
func (r *Registry) Store(rec Record) error {
	norm, err := normalize(rec.Name)
	if err != nil {
		return err
	}
	rec.Name = norm

	if time.Now().After(rec.ExpiresAt) {
		return errs.New(errs.KindExpiry, "names.store", fmt.Errorf("record already expired"))
	}
	pub, ok := r.lookup(rec.NodeID)
	if !ok || !Verify(rec, pub) {
		return errs.ErrSignatureInvalid
	}
	return r.view.Set(recordKey(norm, rec), encodeRecord(rec))
}

// Resolve returns the unexpired record for name with the maximum
// timestamp (ties broken by lexicographically smaller node_id, the
// same direction the session handshake tie-break uses), or
// ErrNotFound if none exists or all have expired.
func (r *Registry) Resolve(name string) (Record, error) {
	norm, err := normalize(name)
	if err != nil {
		return Record{}, err
	}
	now := time.Now()

	var best *Record
	prefix := append([]byte(norm), 0)
	err = r.view.Scan(prefix, func(_, val []byte) error {
		rec, err := decodeRecord(val)
		if err != nil {
			return nil // skip a corrupt record rather than fail the whole scan
		}
		if now.After(rec.ExpiresAt) {
			return nil
		}
		if best == nil || rec.Timestamp.After(best.Timestamp) ||
			(rec.Timestamp.Equal(best.Timestamp) && rec.NodeID < best.NodeID) {
			r := rec
			best = &r
		}
		return nil
	})
	if err != nil {
		return Record{}, err
	}
	if best == nil {
		return Record{}, errs.ErrNotFound
	}
	return *best, nil
}

func encodeRecord(rec Record) []byte {
	buf := make([]byte, 0, 128)
	buf = appendLenStr(buf, rec.Name)
	buf = appendLenStr(buf, string(rec.NodeID))
	buf = appendI64(buf, rec.Timestamp.Unix())
	buf = appendI64(buf, rec.ExpiresAt.Unix())
	buf = appendLenBytes(buf, rec.Signature)
	return buf
}

func decodeRecord(buf []byte) (Record, error) {
	var rec Record
	name, buf, err := readLenStr(buf)
	if err != nil {
		return rec, err
	}
	rec.Name = name
	nodeID, buf, err := readLenStr(buf)
	if err != nil {
		return rec, err
	}
	rec.NodeID = identity.NodeID(nodeID)
	if len(buf) < 16 {
		return rec, fmt.Errorf("names: truncated record")
	}
	rec.Timestamp = time.Unix(readI64(buf[:8]), 0)
	rec.ExpiresAt = time.Unix(readI64(buf[8:16]), 0)
	buf = buf[16:]
	sig, _, err := readLenBytes(buf)
	if err != nil {
		return rec, err
	}
	rec.Signature = sig
	return rec, nil
}

func appendLenStr(buf []byte, s string) []byte {
	buf = append(buf, byte(len(s)))
	return append(buf, s...)
}

func readLenStr(buf []byte) (string, []byte, error) {
	if len(buf) < 1 {
		return "", nil, fmt.Errorf("names: truncated string length")
	}
	n := int(buf[0])
	buf = buf[1:]
	if len(buf) < n {
		return "", nil, fmt.Errorf("names: truncated string")
	}
	return string(buf[:n]), buf[n:], nil
}

func appendLenBytes(buf, b []byte) []byte {
	n := len(b)
	buf = append(buf, byte(n>>8), byte(n))
	return append(buf, b...)
}

func readLenBytes(buf []byte) ([]byte, []byte, error) {
	if len(buf) < 2 {
		return nil, nil, fmt.Errorf("names: truncated bytes length")
	}
	n := int(buf[0])<<8 | int(buf[1])
	buf = buf[2:]
	if len(buf) < n {
		return nil, nil, fmt.Errorf("names: truncated bytes")
	}
	return append([]byte(nil), buf[:n]...), buf[n:], nil
}
