// Package memory implements a gossip directory shared by nodes running in
// the same process.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/pocketcoin/node/foundation/blockchain/gossip"
)

// subscriber holds the latest undelivered payload for one subscription.
// Intermediate payloads are replaced, never queued.
type subscriber struct {
	mu      sync.Mutex
	pending []byte
	has     bool
	notify  chan struct{}
}

func newSubscriber() *subscriber {
	return &subscriber{notify: make(chan struct{}, 1)}
}

func (s *subscriber) offer(payload []byte) {
	s.mu.Lock()
	s.pending = payload
	s.has = true
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *subscriber) take() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, has := s.pending, s.has
	s.pending, s.has = nil, false
	return p, has
}

// =============================================================================

// Memory represents the directory implementation for exchanging payloads in
// memory. This implements the gossip.Directory interface.
type Memory struct {
	mu     sync.Mutex
	values map[string][]byte
	subs   map[string][]*subscriber
	peers  []string
}

// New constructs a Memory value for use.
func New() *Memory {
	return &Memory{
		values: make(map[string][]byte),
		subs:   make(map[string][]*subscriber),
	}
}

// Publish replaces the latest payload on the path and notifies its
// subscribers.
func (m *Memory) Publish(ctx context.Context, path string, payload []byte) error {
	payload = slices.Clone(payload)

	m.mu.Lock()
	m.values[path] = payload
	subs := slices.Clone(m.subs[path])
	m.mu.Unlock()

	for _, s := range subs {
		s.offer(payload)
	}

	return nil
}

// Subscribe calls fn with the latest payload on the path and every later
// one until the context is done.
func (m *Memory) Subscribe(ctx context.Context, path string, fn gossip.Handler) error {
	s := newSubscriber()

	m.mu.Lock()
	m.subs[path] = append(m.subs[path], s)
	if v, exists := m.values[path]; exists {
		s.offer(v)
	}
	m.mu.Unlock()

	defer m.unsubscribe(path, s)

	for {
		select {
		case <-s.notify:
			if p, has := s.take(); has {
				fn(p)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Announce records the identity as present.
func (m *Memory) Announce(ctx context.Context, identity string) error {
	m.mu.Lock()
	exists := slices.Contains(m.peers, identity)
	if !exists {
		m.peers = append(m.peers, identity)
	}
	subs := slices.Clone(m.subs[gossip.SignalingPath])
	m.mu.Unlock()

	if exists {
		return nil
	}

	for _, s := range subs {
		s.offer([]byte(identity))
	}

	return nil
}

// EnumeratePeers calls fn for every announced identity and every later
// announcement until the context is done.
func (m *Memory) EnumeratePeers(ctx context.Context, fn gossip.PeerHandler) error {
	s := newSubscriber()

	m.mu.Lock()
	peers := slices.Clone(m.peers)
	m.subs[gossip.SignalingPath] = append(m.subs[gossip.SignalingPath], s)
	m.mu.Unlock()

	defer m.unsubscribe(gossip.SignalingPath, s)

	for _, p := range peers {
		fn(p)
	}

	// Announcements are not coalesced, so every new identity is re-read
	// from the peer list rather than the pending slot.
	seen := make(map[string]struct{}, len(peers))
	for _, p := range peers {
		seen[p] = struct{}{}
	}

	for {
		select {
		case <-s.notify:
			s.take()

			m.mu.Lock()
			peers := slices.Clone(m.peers)
			m.mu.Unlock()

			for _, p := range peers {
				if _, exists := seen[p]; !exists {
					seen[p] = struct{}{}
					fn(p)
				}
			}

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (m *Memory) unsubscribe(path string, s *subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.subs[path] = slices.DeleteFunc(m.subs[path], func(o *subscriber) bool {
		return o == s
	})
}
