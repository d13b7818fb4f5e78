package announce

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/elysium-mesh/elysium/identity"
	"github.com/elysium-mesh/elysium/names"
)

func TestContentRequestRoundTrip(t *testing.T) {
	req := ContentRequest{
		RequestID: [16]byte{1, 2, 3},
		Owner:     identity.NodeID("nodeA"),
		Path:      "site/index",
		HopTTL:    DefaultHopTTL,
	}
	got, err := DecodeContentRequest(EncodeContentRequest(req))
	require.NoError(t, err)
	require.Equal(t, req, got)
}

func TestDecodeContentRequestRejectsTruncatedInput(t *testing.T) {
	_, err := DecodeContentRequest([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestContentResponseRoundTripFound(t *testing.T) {
	resp := ContentResponse{
		RequestID:   [16]byte{9, 8, 7},
		Owner:       identity.NodeID("nodeB"),
		Path:        "site/index",
		Bytes:       []byte("<h1>hi</h1>"),
		Signature:   []byte("sig-bytes"),
		PublishedAt: time.Unix(1700000000, 0),
		Found:       true,
	}
	got, err := DecodeContentResponse(EncodeContentResponse(resp))
	require.NoError(t, err)
	require.Equal(t, resp, got)
}

func TestContentResponseRoundTripNotFound(t *testing.T) {
	resp := ContentResponse{RequestID: [16]byte{1}, Owner: "nodeB", Path: "missing", Found: false}
	got, err := DecodeContentResponse(EncodeContentResponse(resp))
	require.NoError(t, err)
	require.False(t, got.Found)
	require.Equal(t, resp.Owner, got.Owner)
}

func TestDecodeContentResponseRejectsTruncatedInput(t *testing.T) {
	_, err := DecodeContentResponse([]byte{1, 2})
	require.Error(t, err)
}

func TestNameAnnounceRoundTrip(t *testing.T) {
	rec := names.Record{
		Name:      "alice",
		NodeID:    identity.NodeID("nodeA"),
		Timestamp: time.Unix(1700000000, 0),
		ExpiresAt: time.Unix(1700000000+3600, 0),
		Signature: []byte("sig-bytes"),
	}
	got, err := DecodeNameAnnounce(EncodeNameAnnounce(NameAnnounce{Record: rec}))
	require.NoError(t, err)
	require.Equal(t, rec, got.Record)
}

func TestDecodeNameAnnounceRejectsTruncatedInput(t *testing.T) {
	_, err := DecodeNameAnnounce([]byte{0, 1, 'a'})
	require.Error(t, err)
}

func TestObjectResponseConversionRoundTrip(t *testing.T) {
	resp := ContentResponse{
		RequestID:   [16]byte{5},
		Owner:       "nodeA",
		Path:        "p",
		Bytes:       []byte("data"),
		Signature:   []byte("sig"),
		PublishedAt: time.Unix(1700000000, 0),
		Found:       true,
	}
	obj := responseToObject(resp)
	back := objectToResponse(resp.RequestID, obj)
	require.Equal(t, resp, back)
}
