package frame

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, []byte("hello")))
	got, err := Read(&buf)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)
}

func TestWriteRejectsOversize(t *testing.T) {
	var buf bytes.Buffer
	err := Write(&buf, make([]byte, MaxSize+1))
	require.Error(t, err)
}

func TestReadRejectsOversizeHeader(t *testing.T) {
	var buf bytes.Buffer
	// Hand-craft a length header bigger than MaxSize with no body.
	require.NoError(t, Write(&buf, []byte("x")))
	buf.Reset()
	big := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	buf.Write(big)
	_, err := Read(&buf)
	require.Error(t, err)
}

func TestSealOpenRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)
	peer := []byte("node-a")
	body, err := Seal(key, peer, TypeData, []byte("payload"))
	require.NoError(t, err)

	typ, pt, err := Open(key, peer, body)
	require.NoError(t, err)
	require.Equal(t, TypeData, typ)
	require.Equal(t, []byte("payload"), pt)
}

func TestOpenRejectsWrongAAD(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)
	body, err := Seal(key, []byte("node-a"), TypeData, []byte("payload"))
	require.NoError(t, err)

	_, _, err = Open(key, []byte("node-b"), body)
	require.Error(t, err)
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)
	peer := []byte("node-a")
	body, err := Seal(key, peer, TypeData, []byte("payload"))
	require.NoError(t, err)

	body[len(body)-1] ^= 0xFF
	_, _, err = Open(key, peer, body)
	require.Error(t, err)
}
