package router

import (
	"testing"

	"github.com/elysium-mesh/elysium/identity"
	"github.com/elysium-mesh/elysium/peer"
	"github.com/stretchr/testify/require"
)

func connectedPeer(id string) *peer.Peer {
	p := peer.New(identity.NodeID(id), "addr:"+id)
	p.SetState(peer.StateConnected)
	return p
}

func TestScoreBlendsMetrics(t *testing.T) {
	p := connectedPeer("a")
	p.RecordLatency(0, 0.3)    // perfect latency
	for i := 0; i < 32; i++ {
		p.RecordPing(true)
	}
	p.RecordForward(true)
	p.RecordForward(true)

	s := Score(p)
	require.Greater(t, s, 0.0)
	require.LessOrEqual(t, s, 1.0)
}

func TestEligibleExcludesOriginPathAndDisconnected(t *testing.T) {
	origin := identity.NodeID("origin")
	path := []identity.NodeID{"hop1", "hop2"}

	inPath := connectedPeer("hop1")
	require.False(t, Eligible(inPath, origin, path))

	isOrigin := connectedPeer(string(origin))
	require.False(t, Eligible(isOrigin, origin, path))

	disconnected := peer.New("fresh", "addr")
	require.False(t, Eligible(disconnected, origin, path))

	ok := connectedPeer("fresh-connected")
	require.True(t, Eligible(ok, origin, path))
}

func TestSelectTopKOrdersByScoreThenTieBreaks(t *testing.T) {
	origin := identity.NodeID("origin")
	var path []identity.NodeID

	low := connectedPeer("low")
	mid := connectedPeer("mid")
	high := connectedPeer("high")

	high.RecordLatency(0, 0.3)
	for i := 0; i < 32; i++ {
		high.RecordPing(true)
	}
	high.RecordForward(true)

	mid.RecordLatency(500, 0.3)
	for i := 0; i < 16; i++ {
		mid.RecordPing(true)
	}

	selected := Select([]*peer.Peer{low, mid, high}, origin, path, 2, false)
	require.Len(t, selected, 2)
	require.Equal(t, identity.NodeID("high"), selected[0].NodeID)
}

func TestSelectTieBreaksLexicographically(t *testing.T) {
	origin := identity.NodeID("origin")
	a := connectedPeer("aaa")
	b := connectedPeer("bbb")
	// Identical metrics -> identical score and uptime_score; tie-break
	// falls to lexicographic node_id.
	selected := Select([]*peer.Peer{b, a}, origin, nil, 2, false)
	require.Len(t, selected, 2)
	require.Equal(t, identity.NodeID("aaa"), selected[0].NodeID)
	require.Equal(t, identity.NodeID("bbb"), selected[1].NodeID)
}

func TestSelectBroadcastReturnsAllWhenFewerThanKPlusOne(t *testing.T) {
	origin := identity.NodeID("origin")
	a := connectedPeer("a")
	b := connectedPeer("b")
	selected := Select([]*peer.Peer{a, b}, origin, nil, 3, true)
	require.Len(t, selected, 2)
}

func TestSelectExcludesPredecessorHop(t *testing.T) {
	origin := identity.NodeID("origin")
	predecessor := connectedPeer("pred")
	other := connectedPeer("other")
	path := []identity.NodeID{"pred"}

	selected := Select([]*peer.Peer{predecessor, other}, origin, path, 3, false)
	require.Len(t, selected, 1)
	require.Equal(t, identity.NodeID("other"), selected[0].NodeID)
}
