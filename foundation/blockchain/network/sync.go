package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/arthachain/ledger/foundation/blockchain/peer"
)

// Bootstrap dials the bootstrap peers and asks for their chains once any
// connection succeeds. It returns the number of peers reached; zero means
// the node runs standalone until the next maintenance cycle.
func (n *Node) Bootstrap(ctx context.Context) int {
	n.evHandler("network: Bootstrap: started")
	defer n.evHandler("network: Bootstrap: completed")

	var connected int
	for _, addr := range n.bootstrapAddrs(ctx) {
		if n.isSelf(addr) {
			continue
		}
		n.known.Add(peer.New(addr))

		err := n.Connect(ctx, addr)
		switch {
		case err == nil, errors.Is(err, ErrAlreadyConnected):
			connected++

		default:
			n.evHandler("network: Bootstrap: host[%s]: WARNING: %s", addr, err)
		}
	}

	if connected == 0 {
		n.evHandler("network: Bootstrap: no peer reachable, running standalone")
		return 0
	}

	n.RequestChain()

	return connected
}

// Maintain is the periodic reconnection cycle. With no live connection the
// bootstrap procedure runs again; otherwise known peers that are not
// connected are dialed and the unreachable ones are forgotten.
func (n *Node) Maintain(ctx context.Context) {
	if n.PeerCount() == 0 {
		n.Bootstrap(ctx)
		return
	}

	self := n.Addr()
	for _, p := range n.known.Copy(self) {
		if n.PeerCount() >= n.maxPeers {
			return
		}

		if n.connectedTo(p.Host) {
			continue
		}

		err := n.Connect(ctx, p.Host)
		switch {
		case err == nil, errors.Is(err, ErrAlreadyConnected):

		case errors.Is(err, ErrPeerLimit):
			return

		default:
			n.evHandler("network: Maintain: host[%s]: removed: %s", p.Host, err)
			n.known.Remove(p)
		}
	}
}

// Heartbeat pings every connection and evicts the ones that stayed silent
// past the liveness timeout.
func (n *Node) Heartbeat() {
	for _, c := range n.snapshot() {
		if idle := c.idle(); idle > n.idleTimeout {
			n.evict(c, fmt.Errorf("idle for %v", idle))
			continue
		}

		n.send(c, Ping{})
	}
}

// =============================================================================

// bootstrapAddrs returns the addresses served by the bootstrap URL followed
// by the static list. A failing URL only leaves the static list.
func (n *Node) bootstrapAddrs(ctx context.Context) []string {
	var addrs []string

	if n.bootstrapURL != "" {
		fetched, err := n.fetchBootstrap(ctx)
		if err != nil {
			n.evHandler("network: bootstrapAddrs: WARNING: %s: falling back to static peers", err)
		}
		addrs = append(addrs, fetched...)
	}

	addrs = append(addrs, n.bootstrapPeers...)

	unique := make([]string, 0, len(addrs))
	seen := make(map[string]struct{}, len(addrs))
	for _, addr := range addrs {
		if _, exists := seen[addr]; exists || addr == "" {
			continue
		}
		seen[addr] = struct{}{}
		unique = append(unique, addr)
	}

	return unique
}

// fetchBootstrap retrieves {"bootstrap_peers": [...]} from the bootstrap URL.
func (n *Node) fetchBootstrap(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.bootstrapURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bootstrap url %s: status %d", n.bootstrapURL, resp.StatusCode)
	}

	var body struct {
		BootstrapPeers []string `json:"bootstrap_peers"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return nil, fmt.Errorf("bootstrap url %s: %w", n.bootstrapURL, err)
	}

	return body.BootstrapPeers, nil
}
