// Package gossip defines the directory nodes use to find each other and to
// exchange their latest ledger and mempool. A directory keeps the latest
// payload per path; subscribers see the latest value and every later one.
package gossip

import (
	"context"
	"fmt"
)

// SignalingPath is where nodes announce their presence.
const SignalingPath = "signaling"

// Handler receives a payload published on a path.
type Handler func(payload []byte)

// PeerHandler receives the identity of an announced node.
type PeerHandler func(identity string)

// Directory is the behavior required of a gossip transport.
type Directory interface {

	// Publish replaces the latest payload on the path and notifies its
	// subscribers.
	Publish(ctx context.Context, path string, payload []byte) error

	// Subscribe calls fn with the latest payload on the path, if any, and
	// with every later payload. It blocks until the context is done.
	Subscribe(ctx context.Context, path string, fn Handler) error

	// Announce records the identity as present.
	Announce(ctx context.Context, identity string) error

	// EnumeratePeers calls fn for every announced identity and every later
	// announcement. It blocks until the context is done.
	EnumeratePeers(ctx context.Context, fn PeerHandler) error
}

// BlockchainPath is where the node with the identity publishes its ledger.
func BlockchainPath(identity string) string {
	return fmt.Sprintf("node/%s/blockchain", identity)
}

// MempoolPath is where the node with the identity publishes its mempool.
func MempoolPath(identity string) string {
	return fmt.Sprintf("node/%s/mempool", identity)
}
