// Package router computes per-peer forwarding scores and selects next
// hops for the mesh forwarder: a blend of measured latency, uptime,
// ping reliability, and forwarding history, EWMA-smoothed across
// routing decisions and persisted per peer between calls.
package router

import (
	"sort"

	"github.com/elysium-mesh/elysium/identity"
	"github.com/elysium-mesh/elysium/peer"
)

// DefaultK is the default number of next hops a unicast routing
// decision returns.
const DefaultK = 3

const (
	weightLatency     = 0.30
	weightUptime      = 0.15
	weightReliability = 0.30
	weightHistory     = 0.25

	ewmaPrev = 0.70
	ewmaNew  = 0.30

	latencyCapMs  = 1000
	uptimeCapSecs = 3600
)

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func latencyScore(latMs float64) float64 {
	capped := latMs
	if capped > latencyCapMs {
		capped = latencyCapMs
	}
	return clamp01(1 - capped/latencyCapMs)
}

func uptimeScore(uptimeSecs float64) float64 {
	return clamp01(uptimeSecs / uptimeCapSecs)
}

func historyScore(success, failure int64) float64 {
	return float64(success) / float64(success+failure+1)
}

// Score computes p's current forwarding score, folding it into the
// EWMA memory persisted on the Peer (prev_score_for_peer in the
// specification) and returning the new value.
func Score(p *peer.Peer) float64 {
	base := weightLatency*latencyScore(p.LatencyMs()) +
		weightUptime*uptimeScore(p.UptimeSeconds()) +
		weightReliability*p.PingSuccessRatio() +
		weightHistory*historyScore(p.ForwardCounts())

	score := ewmaPrev*p.PrevScore() + ewmaNew*base
	p.SetPrevScore(score)
	return score
}

// Eligible reports whether p may be selected as a next hop for a
// Message originated by origin and already carrying path: the origin
// itself, any node_id already in path, a non-Connected peer, and the
// immediate predecessor hop (path's last entry) are all excluded.
func Eligible(p *peer.Peer, origin identity.NodeID, path []identity.NodeID) bool {
	if p.State() != peer.StateConnected {
		return false
	}
	if p.NodeID == origin {
		return false
	}
	for _, hop := range path {
		if hop == p.NodeID {
			return false
		}
	}
	return true
}

// Select scores every eligible candidate and returns the top k,
// breaking ties by greater uptime_score then lexicographic node_id.
// Broadcast callers pass broadcast=true: if fewer than k+1 candidates
// are eligible, every eligible peer is returned instead of just k.
func Select(candidates []*peer.Peer, origin identity.NodeID, path []identity.NodeID, k int, broadcast bool) []*peer.Peer {
	if k <= 0 {
		k = DefaultK
	}

	type scored struct {
		p     *peer.Peer
		score float64
		up    float64
	}

	var eligible []scored
	for _, p := range candidates {
		if !Eligible(p, origin, path) {
			continue
		}
		eligible = append(eligible, scored{
			p:     p,
			score: Score(p),
			up:    uptimeScore(p.UptimeSeconds()),
		})
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].score != eligible[j].score {
			return eligible[i].score > eligible[j].score
		}
		if eligible[i].up != eligible[j].up {
			return eligible[i].up > eligible[j].up
		}
		return eligible[i].p.NodeID < eligible[j].p.NodeID
	})

	limit := k
	if broadcast && len(eligible) < k+1 {
		limit = len(eligible)
	}
	if limit > len(eligible) {
		limit = len(eligible)
	}

	out := make([]*peer.Peer, 0, limit)
	for i := 0; i < limit; i++ {
		out = append(out, eligible[i].p)
	}
	return out
}
