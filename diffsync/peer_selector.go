package diffsync

import (
	"math/rand"
	"sync"
)

// PeerSelector abstracts the choice of which peer to diff-sync against
// next: random selection that avoids immediately repeating the last
// peer.
type PeerSelector interface {
	Peers() []string
	UpdateLast(peer string)
	Next() (string, bool)
}

// RandomPeerSelector picks a uniformly random connected peer, avoiding
// the immediately preceding pick when more than one peer is available
// (§4.5 "periodically against a uniformly random connected peer").
type RandomPeerSelector struct {
	mu    sync.Mutex
	peers []string
	last  string
}

// NewRandomPeerSelector returns a selector over peers, excluding self
// if present.
func NewRandomPeerSelector(peers []string, self string) *RandomPeerSelector {
	selectable := make([]string, 0, len(peers))
	for _, p := range peers {
		if p != self {
			selectable = append(selectable, p)
		}
	}
	return &RandomPeerSelector{peers: selectable}
}

// Peers returns the full selectable peer set.
func (s *RandomPeerSelector) Peers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.peers...)
}

// SetPeers replaces the selectable peer set, e.g. after a gossip
// "contact" update.
func (s *RandomPeerSelector) SetPeers(peers []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers = append([]string(nil), peers...)
}

// UpdateLast records the most recently contacted peer so Next avoids
// repeating it when alternatives exist.
func (s *RandomPeerSelector) UpdateLast(peer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = peer
}

// Next returns a random selectable peer, or ok=false if none exist.
func (s *RandomPeerSelector) Next() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := s.peers
	if len(candidates) > 1 {
		filtered := make([]string, 0, len(candidates)-1)
		for _, p := range candidates {
			if p != s.last {
				filtered = append(filtered, p)
			}
		}
		candidates = filtered
	}
	if len(candidates) == 0 {
		return "", false
	}
	return candidates[rand.Intn(len(candidates))], true
}
