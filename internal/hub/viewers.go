package hub

import "sync"

// ViewerSet is the set of dashboards receiving broadcasts.
type ViewerSet struct {
	mu      sync.RWMutex
	members map[string]Peer
}

func NewViewerSet() *ViewerSet {
	return &ViewerSet{members: make(map[string]Peer)}
}

// Add inserts peer. Adding a peer that is already a member is a no-op and returns false.
func (s *ViewerSet) Add(peer Peer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[peer.ID()]; ok {
		return false
	}
	s.members[peer.ID()] = peer
	return true
}

// Remove drops peer if it is the member stored under its id.
func (s *ViewerSet) Remove(peer Peer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.members[peer.ID()]
	if !ok || current != peer {
		return false
	}
	delete(s.members, peer.ID())
	return true
}

func (s *ViewerSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.members)
}

func (s *ViewerSet) Snapshot() []Peer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	peers := make([]Peer, 0, len(s.members))
	for _, peer := range s.members {
		peers = append(peers, peer)
	}
	return peers
}

// Broadcast offers payload to every member of a snapshot of the set. Members that fail
// are removed and closed; the rest are unaffected. It returns the number of members that
// accepted the message and the members that were pruned.
func (s *ViewerSet) Broadcast(payload []byte) (int, []Peer) {
	delivered := 0
	var pruned []Peer
	for _, peer := range s.Snapshot() {
		if Offer(peer, payload) {
			delivered++
			continue
		}
		if s.Remove(peer) {
			pruned = append(pruned, peer)
		}
		_ = peer.Close()
	}
	return delivered, pruned
}
