// Package bundle implements the portable export/import format for
// pending outbox messages (specification sections 4.10 and 6, "Bundle
// file format"): a signed, expirable, self-contained file carrying a
// batch of mesh Messages for out-of-band ("sneakernet") transfer
// between nodes that never directly connect.
package bundle

import (
	"crypto/ed25519"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/elysium-mesh/elysium/identity"
	"github.com/elysium-mesh/elysium/internal/errs"
	"github.com/elysium-mesh/elysium/mesh"
)

// Magic identifies the bundle file format at its first 4 bytes.
const Magic = "ELY1"

// Version is the only bundle format version this implementation
// produces or accepts.
const Version byte = 1

// Expiry is how long after creation an exported bundle remains
// importable.
const Expiry = 7 * 24 * time.Hour

// Bundle is the decoded form of a bundle file: an exporter-signed
// batch of Messages with its own expiry independent of any individual
// item's outbox not_after.
type Bundle struct {
	ExporterNodeID identity.NodeID
	CreatedAt      time.Time
	ExpiresAt      time.Time
	Items          []mesh.Message
	Signature      []byte
}

// Signer is the minimal identity capability Export needs.
type Signer interface {
	Sign(message []byte) []byte
}

// Export serializes items as a signed bundle authored by exporter,
// per the wire layout in spec.md section 6.
func Export(exporter identity.NodeID, signer Signer, items []mesh.Message) []byte {
	now := time.Now()
	b := Bundle{
		ExporterNodeID: exporter,
		CreatedAt:      now,
		ExpiresAt:      now.Add(Expiry),
		Items:          items,
	}
	body := encodeBody(b)
	b.Signature = signer.Sign(body)

	out := make([]byte, 0, len(body)+4+len(b.Signature))
	out = append(out, body...)
	out = appendBytes32(out, b.Signature)
	return out
}

// encodeBody serializes everything the signature covers: magic,
// version, exporter id, created_at, expires_at, item_count, items[].
func encodeBody(b Bundle) []byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, Magic...)
	buf = append(buf, Version)
	buf = appendStr8(buf, string(b.ExporterNodeID))
	buf = appendI64(buf, b.CreatedAt.Unix())
	buf = appendI64(buf, b.ExpiresAt.Unix())
	var count [4]byte
	binary.BigEndian.PutUint32(count[:], uint32(len(b.Items)))
	buf = append(buf, count[:]...)
	for _, m := range b.Items {
		buf = appendBytes32(buf, m.Encode())
	}
	return buf
}

// PubKeyLookup resolves the Ed25519 public key believed to belong to a
// node_id, used to check a bundle's signature against its claimed
// exporter.
type PubKeyLookup func(nodeID identity.NodeID) (ed25519.PublicKey, bool)

// Parse decodes raw into a Bundle, verifying its magic, version, and
// signature against the exporter's known public key, and rejecting it
// outright if already expired, per spec.md section 4.10's import
// steps 1-2.
func Parse(raw []byte, lookup PubKeyLookup) (Bundle, error) {
	if len(raw) < 4+1 || string(raw[:4]) != Magic {
		return Bundle{}, errs.New(errs.KindInvalidInput, "bundle.parse", fmt.Errorf("bad magic"))
	}
	if raw[4] != Version {
		return Bundle{}, errs.ErrVersionUnsupported
	}

	bodyEnd, b, err := decodeBody(raw)
	if err != nil {
		return Bundle{}, err
	}
	sig, _, err := readBytes32(raw[bodyEnd:])
	if err != nil {
		return Bundle{}, errs.New(errs.KindInvalidInput, "bundle.parse", err)
	}
	b.Signature = sig

	pub, ok := lookup(b.ExporterNodeID)
	if !ok || !ed25519.Verify(pub, raw[:bodyEnd], sig) {
		return Bundle{}, errs.ErrSignatureInvalid
	}
	if time.Now().After(b.ExpiresAt) {
		return Bundle{}, errs.New(errs.KindExpiry, "bundle.parse", fmt.Errorf("bundle expired"))
	}
	return b, nil
}

func decodeBody(raw []byte) (int, Bundle, error) {
	var b Bundle
	off := 5
	exporter, off2, err := readStr8(raw, off)
	if err != nil {
		return 0, b, err
	}
	b.ExporterNodeID = identity.NodeID(exporter)
	off = off2

	if len(raw) < off+16 {
		return 0, b, fmt.Errorf("bundle: truncated header")
	}
	b.CreatedAt = time.Unix(readI64(raw[off:off+8]), 0)
	b.ExpiresAt = time.Unix(readI64(raw[off+8:off+16]), 0)
	off += 16

	if len(raw) < off+4 {
		return 0, b, fmt.Errorf("bundle: truncated item count")
	}
	count := int(binary.BigEndian.Uint32(raw[off : off+4]))
	off += 4

	b.Items = make([]mesh.Message, 0, count)
	for i := 0; i < count; i++ {
		item, next, err := readBytes32At(raw, off)
		if err != nil {
			return 0, b, err
		}
		m, err := mesh.Decode(item)
		if err != nil {
			return 0, b, err
		}
		b.Items = append(b.Items, m)
		off = next
	}
	return off, b, nil
}

// Counts reports the outcome of Import per spec.md section 4.10.
type Counts struct {
	Delivered int
	Forwarded int
	Duplicates int
	Expired    int
}

// DeliverFunc delivers a Message addressed to this node to the local
// inbox; it must itself be dedup-aware (return (delivered=false,
// nil) for an already-seen message_id).
type DeliverFunc func(m mesh.Message) (delivered bool, err error)

// ForwardFunc enqueues a Message addressed elsewhere into the local
// outbox; it must itself be dedup-aware the same way.
type ForwardFunc func(m mesh.Message) (forwarded bool, err error)

// Import replays every item in b: messages addressed to self are
// delivered to the inbox, everything else is enqueued in the local
// outbox, both subject to normal dedup; items already expired by
// their own 7-day not_after are dropped and counted separately, per
// spec.md section 4.10 step 3-4.
func Import(b Bundle, self identity.NodeID, deliver DeliverFunc, forward ForwardFunc) (Counts, error) {
	var c Counts
	now := time.Now()
	for _, m := range b.Items {
		if now.After(time.Unix(m.CreatedAt, 0).Add(7 * 24 * time.Hour)) {
			c.Expired++
			continue
		}
		if m.Target == self || m.Broadcast {
			ok, err := deliver(m)
			if err != nil {
				return c, err
			}
			if ok {
				c.Delivered++
			} else {
				c.Duplicates++
			}
			if !m.Broadcast {
				continue
			}
		}
		if m.Target != self {
			ok, err := forward(m)
			if err != nil {
				return c, err
			}
			if ok {
				c.Forwarded++
			} else {
				c.Duplicates++
			}
		}
	}
	return c, nil
}

func appendStr8(buf []byte, s string) []byte {
	buf = append(buf, byte(len(s)))
	return append(buf, s...)
}

func readStr8(raw []byte, off int) (string, int, error) {
	if len(raw) < off+1 {
		return "", 0, fmt.Errorf("bundle: truncated exporter id length")
	}
	n := int(raw[off])
	off++
	if len(raw) < off+n {
		return "", 0, fmt.Errorf("bundle: truncated exporter id")
	}
	return string(raw[off : off+n]), off + n, nil
}

func appendI64(buf []byte, v int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	return append(buf, b[:]...)
}

func readI64(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}

func appendBytes32(buf, b []byte) []byte {
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(b)))
	buf = append(buf, l[:]...)
	return append(buf, b...)
}

func readBytes32(buf []byte) ([]byte, []byte, error) {
	if len(buf) < 4 {
		return nil, nil, fmt.Errorf("bundle: truncated length")
	}
	n := int(binary.BigEndian.Uint32(buf[:4]))
	buf = buf[4:]
	if len(buf) < n {
		return nil, nil, fmt.Errorf("bundle: truncated bytes")
	}
	return buf[:n], buf[n:], nil
}

func readBytes32At(raw []byte, off int) ([]byte, int, error) {
	b, _, err := readBytes32(raw[off:])
	if err != nil {
		return nil, 0, err
	}
	return b, off + 4 + len(b), nil
}
