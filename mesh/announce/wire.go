// Package announce implements the announce/fetch protocol
// (specification section 4.9): ContentRequest/ContentResponse for
// pulling a remote ely:// object over an established session, and
// NameAnnounce for opportunistically gossiping a signed name record.
// hop_ttl here is unrelated to the mesh Message TTL in package mesh,
// kept deliberately small and separate to bound content-fetch fan-out.
package announce

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/elysium-mesh/elysium/content"
	"github.com/elysium-mesh/elysium/identity"
	"github.com/elysium-mesh/elysium/names"
)

// DefaultHopTTL bounds opportunistic content-fetch fan-out, per
// spec.md section 4.7 step 5.
const DefaultHopTTL uint8 = 4

// ContentRequest asks a peer (or a relay, while hop_ttl > 0) for the
// object at path.
type ContentRequest struct {
	RequestID [16]byte
	Owner     identity.NodeID
	Path      string
	HopTTL    uint8
}

// ContentResponse carries the requested object back; when the owner has
// no matching verified object it answers with Found false and no bytes.
type ContentResponse struct {
	RequestID   [16]byte
	Owner       identity.NodeID
	Path        string
	Bytes       []byte
	Signature   []byte
	PublishedAt time.Time
	Found       bool
}

// NameAnnounce gossips a single signed name record.
type NameAnnounce struct {
	Record names.Record
}

func putStr(buf []byte, s string) []byte {
	buf = append(buf, byte(len(s)>>8), byte(len(s)))
	return append(buf, s...)
}

func getStr(buf []byte) (string, []byte, error) {
	if len(buf) < 2 {
		return "", nil, fmt.Errorf("announce: truncated string length")
	}
	n := int(buf[0])<<8 | int(buf[1])
	buf = buf[2:]
	if len(buf) < n {
		return "", nil, fmt.Errorf("announce: truncated string")
	}
	return string(buf[:n]), buf[n:], nil
}

func putBytes(buf, b []byte) []byte {
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(b)))
	buf = append(buf, l[:]...)
	return append(buf, b...)
}

func getBytes(buf []byte) ([]byte, []byte, error) {
	if len(buf) < 4 {
		return nil, nil, fmt.Errorf("announce: truncated bytes length")
	}
	n := int(binary.BigEndian.Uint32(buf[:4]))
	buf = buf[4:]
	if len(buf) < n {
		return nil, nil, fmt.Errorf("announce: truncated bytes")
	}
	return append([]byte(nil), buf[:n]...), buf[n:], nil
}

// EncodeContentRequest serializes r for transmission inside a
// proto.TypeContentRequest frame.
func EncodeContentRequest(r ContentRequest) []byte {
	buf := make([]byte, 0, 32+len(r.Path))
	buf = append(buf, r.RequestID[:]...)
	buf = putStr(buf, string(r.Owner))
	buf = putStr(buf, r.Path)
	buf = append(buf, r.HopTTL)
	return buf
}

func DecodeContentRequest(buf []byte) (ContentRequest, error) {
	var r ContentRequest
	if len(buf) < 16 {
		return r, fmt.Errorf("announce: truncated content request")
	}
	copy(r.RequestID[:], buf[:16])
	buf = buf[16:]
	owner, buf, err := getStr(buf)
	if err != nil {
		return r, err
	}
	r.Owner = identity.NodeID(owner)
	path, buf, err := getStr(buf)
	if err != nil {
		return r, err
	}
	r.Path = path
	if len(buf) < 1 {
		return r, fmt.Errorf("announce: truncated hop_ttl")
	}
	r.HopTTL = buf[0]
	return r, nil
}

// EncodeContentResponse serializes resp for a proto.TypeContentResponse
// frame.
func EncodeContentResponse(resp ContentResponse) []byte {
	buf := make([]byte, 0, 64+len(resp.Bytes)+len(resp.Signature))
	buf = append(buf, resp.RequestID[:]...)
	if resp.Found {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = putStr(buf, string(resp.Owner))
	buf = putStr(buf, resp.Path)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(resp.PublishedAt.Unix()))
	buf = append(buf, ts[:]...)
	buf = putBytes(buf, resp.Signature)
	buf = putBytes(buf, resp.Bytes)
	return buf
}

func DecodeContentResponse(buf []byte) (ContentResponse, error) {
	var r ContentResponse
	if len(buf) < 17 {
		return r, fmt.Errorf("announce: truncated content response")
	}
	copy(r.RequestID[:], buf[:16])
	r.Found = buf[16] != 0
	buf = buf[17:]

	owner, buf, err := getStr(buf)
	if err != nil {
		return r, err
	}
	r.Owner = identity.NodeID(owner)
	path, buf, err := getStr(buf)
	if err != nil {
		return r, err
	}
	r.Path = path
	if len(buf) < 8 {
		return r, fmt.Errorf("announce: truncated published_at")
	}
	r.PublishedAt = time.Unix(int64(binary.BigEndian.Uint64(buf[:8])), 0)
	buf = buf[8:]
	sig, buf, err := getBytes(buf)
	if err != nil {
		return r, err
	}
	r.Signature = sig
	data, _, err := getBytes(buf)
	if err != nil {
		return r, err
	}
	r.Bytes = data
	return r, nil
}

// EncodeNameAnnounce/DecodeNameAnnounce carry a single names.Record.
func EncodeNameAnnounce(n NameAnnounce) []byte {
	rec := n.Record
	buf := make([]byte, 0, 96)
	buf = putStr(buf, rec.Name)
	buf = putStr(buf, string(rec.NodeID))
	var ts, exp [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(rec.Timestamp.Unix()))
	binary.BigEndian.PutUint64(exp[:], uint64(rec.ExpiresAt.Unix()))
	buf = append(buf, ts[:]...)
	buf = append(buf, exp[:]...)
	buf = putBytes(buf, rec.Signature)
	return buf
}

func DecodeNameAnnounce(buf []byte) (NameAnnounce, error) {
	var n NameAnnounce
	name, buf, err := getStr(buf)
	if err != nil {
		return n, err
	}
	nodeID, buf, err := getStr(buf)
	if err != nil {
		return n, err
	}
	if len(buf) < 16 {
		return n, fmt.Errorf("announce: truncated name announce")
	}
	ts := time.Unix(int64(binary.BigEndian.Uint64(buf[:8])), 0)
	exp := time.Unix(int64(binary.BigEndian.Uint64(buf[8:16])), 0)
	buf = buf[16:]
	sig, _, err := getBytes(buf)
	if err != nil {
		return n, err
	}
	n.Record = names.Record{
		Name:      name,
		NodeID:    identity.NodeID(nodeID),
		Timestamp: ts,
		ExpiresAt: exp,
		Signature: sig,
	}
	return n, nil
}

// objectToResponse/responseToObject convert between the wire envelope
// and content.Object, so Service never has to duplicate field lists.
func objectToResponse(requestID [16]byte, obj content.Object) ContentResponse {
	return ContentResponse{
		RequestID:   requestID,
		Owner:       obj.Owner,
		Path:        obj.Path,
		Bytes:       obj.Bytes,
		Signature:   obj.Signature,
		PublishedAt: obj.PublishedAt,
		Found:       true,
	}
}

func responseToObject(resp ContentResponse) content.Object {
	return content.Object{
		Owner:       resp.Owner,
		Path:        resp.Path,
		Bytes:       resp.Bytes,
		ContentHash: content.Hash(resp.Bytes),
		Signature:   resp.Signature,
		PublishedAt: resp.PublishedAt,
	}
}
