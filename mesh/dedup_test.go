package mesh

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestDedupSuppressesSecondSighting(t *testing.T) {
	d := NewDedup(60 * time.Second)
	defer d.Close()

	id := uuid.New()
	require.False(t, d.Seen(id))
	require.True(t, d.Seen(id))
}

func TestDedupForgetsAfterWindow(t *testing.T) {
	d := NewDedup(20 * time.Millisecond)
	defer d.Close()

	id := uuid.New()
	require.False(t, d.Seen(id))
	time.Sleep(30 * time.Millisecond)
	require.False(t, d.Seen(id))
}

func TestDedupDistinctIDsIndependent(t *testing.T) {
	d := NewDedup(60 * time.Second)
	defer d.Close()

	require.False(t, d.Seen(uuid.New()))
	require.False(t, d.Seen(uuid.New()))
	require.Equal(t, 2, d.Count())
}
