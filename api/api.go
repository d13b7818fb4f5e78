// Package api implements the one concrete transport binding this repo
// ships for the in-process local management API (specification section
// 6): a JSON-RPC-ish HTTP+WebSocket server exposing exactly the
// status/peers/send/inbox/watch/publish/fetch/name.*/bundle.*/ping
// operation set. Nothing in mesh, session, store, content, names, or
// bundle imports this package; it is purely a consumer of their public
// surfaces, wired together by the node package.
package api

import (
	"context"
	"time"

	"github.com/elysium-mesh/elysium/bundle"
	"github.com/elysium-mesh/elysium/names"
	"github.com/elysium-mesh/elysium/store/inbox"
)

// StatusInfo answers the status operation.
type StatusInfo struct {
	NodeID      string        `json:"node_id"`
	Uptime      time.Duration `json:"uptime_ns"`
	PeerCount   int           `json:"peer_count"`
	Sessions    int64         `json:"sessions"`
	InboxDepth  int64         `json:"inbox_depth"`
	OutboxDepth int64         `json:"outbox_depth"`
}

// PeerInfo answers one entry of the peers operation.
type PeerInfo struct {
	NodeID         string  `json:"node_id"`
	Address        string  `json:"address"`
	State          string  `json:"state"`
	LatencyMs      float64 `json:"latency_ms"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
	ForwardSuccess int64   `json:"forward_success"`
	ForwardFailure int64   `json:"forward_failure"`
}

// InboxEntry answers one entry of the inbox operation.
type InboxEntry struct {
	Seq       uint64    `json:"seq"`
	MessageID string    `json:"message_id"`
	From      string    `json:"from"`
	Broadcast bool      `json:"broadcast"`
	Plaintext []byte    `json:"plaintext"`
	ArrivedAt time.Time `json:"arrived_at"`
}

// BundleMetadata answers the bundle.info operation without importing
// the bundle's items.
type BundleMetadata struct {
	ExporterNodeID string    `json:"exporter_node_id"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	ItemCount      int       `json:"item_count"`
}

// Node is the subset of node.Node the API server depends on, kept as
// an interface so api never imports node (node wires api, not the
// other way around).
type Node interface {
	Status() StatusInfo
	Peers() []PeerInfo
	Send(target string, broadcast bool, plaintext []byte) (messageID string, err error)
	Inbox(lastN int) ([]InboxEntry, error)
	Watch() *inbox.Subscriber
	Publish(path string, data []byte) (elyURL string, err error)
	Fetch(ctx context.Context, elyURL string) ([]byte, error)
	NameRegister(name string) (names.Record, error)
	NameResolve(name string) (nodeID string, err error)
	BundleExport(path string) error
	BundleImport(path string) (bundle.Counts, error)
	BundleInfo(path string) (BundleMetadata, error)
	Ping(ctx context.Context, nodeID string, timeout time.Duration) (rttMs int64, err error)
}
