package proto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeEnvelopeRoundTrip(t *testing.T) {
	body := Encode(TypeMesh, []byte("payload"))
	typ, payload, err := Decode(body)
	require.NoError(t, err)
	require.Equal(t, TypeMesh, typ)
	require.Equal(t, []byte("payload"), payload)
}

func TestDecodeRejectsEmptyEnvelope(t *testing.T) {
	_, _, err := Decode(nil)
	require.Error(t, err)
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	_, _, err := Decode([]byte{0xff, 1, 2, 3})
	require.Error(t, err)
}

func TestTypeValidCoversAllDefinedTags(t *testing.T) {
	for _, typ := range []Type{TypePing, TypePong, TypeMesh, TypeAck, TypeContentRequest, TypeContentResponse, TypeNameAnnounce} {
		require.True(t, typ.Valid(), typ.String())
	}
	require.False(t, Type(0x99).Valid())
}

func TestTypeStringNamesEveryTag(t *testing.T) {
	require.Equal(t, "ping", TypePing.String())
	require.Equal(t, "pong", TypePong.String())
	require.Equal(t, "mesh", TypeMesh.String())
	require.Equal(t, "ack", TypeAck.String())
	require.Equal(t, "content_request", TypeContentRequest.String())
	require.Equal(t, "content_response", TypeContentResponse.String())
	require.Equal(t, "name_announce", TypeNameAnnounce.String())
	require.Equal(t, "unknown", Type(0x99).String())
}

func TestPingTimestampRoundTrip(t *testing.T) {
	now := time.Now().UnixNano()
	payload := EncodePing(now)
	got, err := DecodeTimestamp(payload)
	require.NoError(t, err)
	require.Equal(t, now, got)
}

func TestDecodeTimestampRejectsWrongLength(t *testing.T) {
	_, err := DecodeTimestamp([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestAckRoundTrip(t *testing.T) {
	var id [16]byte
	for i := range id {
		id[i] = byte(i)
	}
	payload := EncodeAck(id)
	got, err := DecodeAck(payload)
	require.NoError(t, err)
	require.Equal(t, id, got)
}

func TestDecodeAckRejectsWrongLength(t *testing.T) {
	_, err := DecodeAck([]byte{1, 2, 3})
	require.Error(t, err)
}
