// Package peer maintains the peer related information such as the set
// of known peers and their status.
package peer

import (
	"net"
	"sort"
	"sync"
	"time"
)

// Peer represents the listen address of a node in the network.
type Peer struct {
	Host string
}

// New constructs a new peer value.
func New(host string) Peer {
	return Peer{
		Host: host,
	}
}

// Match validates if the specified host matches this node.
func (p Peer) Match(host string) bool {
	return p.Host == host
}

// IsValid reports whether the host is a dialable host:port pair.
func (p Peer) IsValid() bool {
	host, port, err := net.SplitHostPort(p.Host)
	return err == nil && host != "" && port != "" && port != "0"
}

// =============================================================================

// Status represents information about a live connection to a peer.
type Status struct {
	ID       string    `json:"id"`
	Host     string    `json:"host"`
	Inbound  bool      `json:"inbound"`
	Height   uint64    `json:"height"`
	LastSeen time.Time `json:"last_seen"`
}

// =============================================================================

// PeerSet represents the address book of peers this node knows about,
// connected or not. It is bounded so a flood of announcements can't grow it
// without limit.
type PeerSet struct {
	mu    sync.RWMutex
	set   map[Peer]struct{}
	limit int
}

// NewPeerSet constructs a new set holding at most limit peers. A limit of
// zero or less leaves the set unbounded.
func NewPeerSet(limit int) *PeerSet {
	return &PeerSet{
		set:   make(map[Peer]struct{}),
		limit: limit,
	}
}

// Add adds a new node to the set. It returns false when the peer is
// already known, invalid or the set is full.
func (ps *PeerSet) Add(peer Peer) bool {
	if !peer.IsValid() {
		return false
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	if _, exists := ps.set[peer]; exists {
		return false
	}

	if ps.limit > 0 && len(ps.set) >= ps.limit {
		return false
	}

	ps.set[peer] = struct{}{}
	return true
}

// Remove removes a node from the set.
func (ps *PeerSet) Remove(peer Peer) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	delete(ps.set, peer)
}

// Contains reports whether the peer is known.
func (ps *PeerSet) Contains(peer Peer) bool {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	_, exists := ps.set[peer]
	return exists
}

// Len returns the number of known peers.
func (ps *PeerSet) Len() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	return len(ps.set)
}

// Copy returns a list of the known peers excluding the specified host,
// sorted by host.
func (ps *PeerSet) Copy(host string) []Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	var peers []Peer
	for peer := range ps.set {
		if !peer.Match(host) {
			peers = append(peers, peer)
		}
	}

	sort.Slice(peers, func(i, j int) bool {
		return peers[i].Host < peers[j].Host
	})

	return peers
}
