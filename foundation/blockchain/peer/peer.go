// Package peer maintains the peer related information such as the set
// of known peers and their status.
package peer

import (
	"slices"
	"strings"
	"sync"
)

// Peer represents a node announced on the gossip directory.
type Peer struct {
	Identity string `json:"identity"`
}

// New contructs a new peer value.
func New(identity string) Peer {
	return Peer{
		Identity: identity,
	}
}

// Match validates if the specified identity matches this peer.
func (p Peer) Match(identity string) bool {
	return p.Identity == identity
}

// =============================================================================

// Status represents information about the status of a node.
type Status struct {
	Identity        string `json:"identity"`
	LatestBlockHash string `json:"latest_block_hash"`
	LatestBlock     uint64 `json:"latest_block_number"`
	Length          uint64 `json:"length"`
	TotalWork       string `json:"total_work"`
	Mempool         int    `json:"mempool"`
	KnownPeers      []Peer `json:"known_peers"`
}

// =============================================================================

// PeerSet represents the data representation to maintain a set of known peers.
type PeerSet struct {
	mu  sync.RWMutex
	set map[Peer]struct{}
}

// NewPeerSet constructs a new set to manage node peer information.
func NewPeerSet() *PeerSet {
	return &PeerSet{
		set: make(map[Peer]struct{}),
	}
}

// Add adds a new node to the set. It reports whether the node was new.
func (ps *PeerSet) Add(peer Peer) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	_, exists := ps.set[peer]
	if !exists {
		ps.set[peer] = struct{}{}
		return true
	}

	return false
}

// Remove removes a node from the set.
func (ps *PeerSet) Remove(peer Peer) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	delete(ps.set, peer)
}

// Count returns the number of known peers.
func (ps *PeerSet) Count() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	return len(ps.set)
}

// Copy returns the known peers other than the identity, ordered by
// identity.
func (ps *PeerSet) Copy(identity string) []Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	var peers []Peer
	for peer := range ps.set {
		if !peer.Match(identity) {
			peers = append(peers, peer)
		}
	}

	slices.SortFunc(peers, func(a, b Peer) int {
		return strings.Compare(a.Identity, b.Identity)
	})

	return peers
}
