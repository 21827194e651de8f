// Package network implements the peer to peer overlay. Nodes hold persistent
// TCP connections and exchange newline delimited JSON messages to gossip
// transactions and blocks and to resync full chains.
package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/arthachain/ledger/foundation/blockchain/database"
	"github.com/arthachain/ledger/foundation/blockchain/peer"
	"github.com/arthachain/ledger/foundation/blockchain/state"
)

// Set of errors returned by the network API.
var (
	ErrAlreadyConnected = errors.New("peer already connected")
	ErrSelfConnect      = errors.New("can't connect to self")
	ErrPeerNotFound     = errors.New("peer not found")
	ErrPeerLimit        = errors.New("peer limit reached")
)

// Defaults applied when a Config value is left at zero.
const (
	DefaultMaxPeers     = 32
	DefaultIdleTimeout  = 120 * time.Second
	DefaultDialTimeout  = 10 * time.Second
	DefaultWriteTimeout = 10 * time.Second
)

const (
	// maxLineSize is the largest message accepted, a full chain included.
	maxLineSize = 32 << 20

	// maxMalformed consecutive unreadable messages evict the peer.
	maxMalformed = 3
)

// EventHandler defines a function that is called when events
// occur in the processing of network traffic.
type EventHandler func(v string, args ...any)

// Config represents the configuration required to start the overlay.
type Config struct {
	Host           string
	Advertise      string
	State          *state.State
	KnownPeers     *peer.PeerSet
	BootstrapURL   string
	BootstrapPeers []string
	MaxPeers       int
	IdleTimeout    time.Duration
	DialTimeout    time.Duration
	WriteTimeout   time.Duration
	EvHandler      EventHandler
}

// Node manages the connections to peers. The connection table is owned
// by the node and only mutated under its lock.
type Node struct {
	host           string
	advertise      string
	state          *state.State
	known          *peer.PeerSet
	bootstrapURL   string
	bootstrapPeers []string
	maxPeers       int
	idleTimeout    time.Duration
	dialTimeout    time.Duration
	writeTimeout   time.Duration
	evHandler      EventHandler
	client         http.Client
	seen           *seenSet

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.RWMutex
	listener net.Listener
	conns    map[string]*conn
	closed   bool
}

// New constructs a node for the overlay. Call Start to begin listening.
func New(cfg Config) (*Node, error) {
	if cfg.State == nil {
		return nil, errors.New("state is required")
	}

	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	if cfg.KnownPeers == nil {
		cfg.KnownPeers = peer.NewPeerSet(0)
	}
	if cfg.MaxPeers <= 0 {
		cfg.MaxPeers = DefaultMaxPeers
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())

	n := Node{
		host:           cfg.Host,
		advertise:      cfg.Advertise,
		state:          cfg.State,
		known:          cfg.KnownPeers,
		bootstrapURL:   cfg.BootstrapURL,
		bootstrapPeers: cfg.BootstrapPeers,
		maxPeers:       cfg.MaxPeers,
		idleTimeout:    cfg.IdleTimeout,
		dialTimeout:    cfg.DialTimeout,
		writeTimeout:   cfg.WriteTimeout,
		evHandler:      ev,
		client:         http.Client{Timeout: cfg.DialTimeout},
		seen:           newSeenSet(seenLimit),
		ctx:            ctx,
		cancel:         cancel,
		conns:          make(map[string]*conn),
	}

	return &n, nil
}

// Start binds the listener and starts accepting peers. A bind failure is
// the only fatal network error.
func (n *Node) Start() error {
	listener, err := net.Listen("tcp", n.host)
	if err != nil {
		return fmt.Errorf("listen %s: %w", n.host, err)
	}

	n.mu.Lock()
	n.listener = listener
	if n.advertise == "" {
		n.advertise = advertiseAddr(n.host, listener.Addr())
	}
	n.wg.Add(1)
	n.mu.Unlock()

	n.evHandler("network: Start: listening: host[%s]: advertise[%s]", listener.Addr(), n.advertise)

	go n.acceptLoop(listener)

	return nil
}

// Addr returns the address announced to peers.
func (n *Node) Addr() string {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return n.advertise
}

// Shutdown closes the listener and every connection and waits for the
// goroutines of the node to terminate.
func (n *Node) Shutdown() {
	n.evHandler("network: Shutdown: started")
	defer n.evHandler("network: Shutdown: completed")

	n.mu.Lock()
	n.closed = true
	if n.listener != nil {
		n.listener.Close()
	}
	for id, c := range n.conns {
		delete(n.conns, id)
		c.netConn.Close()
	}
	n.mu.Unlock()

	n.cancel()
	n.wg.Wait()
}

// Connect dials the listen address of a peer and establishes the
// connection.
func (n *Node) Connect(ctx context.Context, addr string) error {
	if n.isSelf(addr) {
		return ErrSelfConnect
	}

	if n.connectedTo(addr) {
		return ErrAlreadyConnected
	}

	if n.PeerCount() >= n.maxPeers {
		return ErrPeerLimit
	}

	d := net.Dialer{Timeout: n.dialTimeout}
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}

	c := newConn(nc, false, addr)
	if err := n.register(c); err != nil {
		nc.Close()
		return err
	}

	n.known.Add(peer.New(addr))

	go n.serve(c)

	if err := n.sendHello(c); err != nil {
		n.evict(c, err)
		return err
	}

	n.evHandler("viewer: peer: connected: outbound: host[%s]", addr)

	return nil
}

// Send delivers the payload to the specified connection.
func (n *Node) Send(id string, payload Payload) error {
	n.mu.RLock()
	c, exists := n.conns[id]
	n.mu.RUnlock()

	if !exists {
		return ErrPeerNotFound
	}

	return n.send(c, payload)
}

// Broadcast delivers the payload to every connection except the one with
// the excluded id and returns how many peers it reached.
func (n *Node) Broadcast(payload Payload, exclude string) int {
	msg, err := NewMessage(payload)
	if err != nil {
		n.evHandler("network: Broadcast: ERROR: %s", err)
		return 0
	}

	var sent int
	for _, c := range n.snapshot() {
		if c.id == exclude {
			continue
		}

		if err := c.write(msg, n.writeTimeout); err != nil {
			n.evict(c, err)
			continue
		}
		sent++
	}

	return sent
}

// BroadcastTransaction gossips a transaction accepted locally.
func (n *Node) BroadcastTransaction(tx database.Tx) int {
	n.seen.Add("tx:" + tx.ID())

	return n.Broadcast(NewTransaction{Transaction: tx, PublicKey: tx.PublicKey}, "")
}

// BroadcastBlock gossips a block produced locally.
func (n *Node) BroadcastBlock(block database.Block) int {
	n.seen.Add("block:" + block.Hash())

	return n.Broadcast(NewBlock{Block: block}, "")
}

// RequestChain asks every connected peer for its full chain. Longer valid
// chains are adopted as the answers arrive.
func (n *Node) RequestChain() int {
	n.evHandler("network: RequestChain: resync requested")

	return n.Broadcast(RequestChain{}, "")
}

// Peers returns the status of every live connection.
func (n *Node) Peers() []peer.Status {
	conns := n.snapshot()

	list := make([]peer.Status, 0, len(conns))
	for _, c := range conns {
		list = append(list, c.status())
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].Host < list[j].Host
	})

	return list
}

// PeerCount returns the number of live connections.
func (n *Node) PeerCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return len(n.conns)
}

// KnownPeers returns the address book, connected or not.
func (n *Node) KnownPeers() []peer.Peer {
	return n.known.Copy(n.Addr())
}

// =============================================================================

// acceptLoop accepts inbound connections until the listener is closed.
func (n *Node) acceptLoop(listener net.Listener) {
	n.evHandler("network: acceptLoop: G started")
	defer n.evHandler("network: acceptLoop: G completed")
	defer n.wg.Done()

	for {
		nc, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			n.evHandler("network: acceptLoop: ERROR: %s", err)
			continue
		}

		c := newConn(nc, true, "")
		if err := n.register(c); err != nil {
			n.evHandler("network: acceptLoop: refused: remote[%s]: %s", nc.RemoteAddr(), err)
			nc.Close()
			continue
		}

		go n.serve(c)

		if err := n.sendHello(c); err != nil {
			n.evict(c, err)
			continue
		}

		n.evHandler("viewer: peer: connected: inbound: remote[%s]", nc.RemoteAddr())
	}
}

// register adds the connection to the table. The caller must start serve
// for the connection once register succeeds.
func (n *Node) register(c *conn) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return errors.New("node is shutting down")
	}

	if len(n.conns) >= n.maxPeers {
		return ErrPeerLimit
	}

	if listen := c.listenAddr(); listen != "" {
		for _, other := range n.conns {
			if other.listenAddr() == listen {
				return ErrAlreadyConnected
			}
		}
	}

	n.conns[c.id] = c
	n.wg.Add(1)

	return nil
}

// evict closes the connection and removes it from the table. The address
// stays in the address book so the maintenance cycle can reconnect.
func (n *Node) evict(c *conn, reason error) {
	n.mu.Lock()
	_, exists := n.conns[c.id]
	delete(n.conns, c.id)
	n.mu.Unlock()

	c.netConn.Close()

	if exists {
		n.evHandler("viewer: peer: disconnected: host[%s]: %v", c.status().Host, reason)
	}
}

// connectedTo reports whether a live connection reaches the listen address.
func (n *Node) connectedTo(addr string) bool {
	for _, c := range n.snapshot() {
		if c.listenAddr() == addr {
			return true
		}
	}

	return false
}

// isSelf reports whether dialing the address reaches this node's own
// listener. On the listening port a wildcard or loopback host counts as self
// when this node is bound to a wildcard or loopback host as well.
func (n *Node) isSelf(addr string) bool {
	n.mu.RLock()
	own := []string{n.advertise}
	if n.listener != nil {
		own = append(own, n.listener.Addr().String())
	}
	n.mu.RUnlock()

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr == own[0]
	}

	for _, o := range own {
		ownHost, ownPort, err := net.SplitHostPort(o)
		if err != nil || ownPort != port {
			continue
		}

		if host == ownHost || (isLocalHost(host) && isLocalHost(ownHost)) {
			return true
		}
	}

	return false
}

// snapshot returns the live connections.
func (n *Node) snapshot() []*conn {
	n.mu.RLock()
	defer n.mu.RUnlock()

	conns := make([]*conn, 0, len(n.conns))
	for _, c := range n.conns {
		conns = append(conns, c)
	}

	return conns
}

// send writes the payload to one connection, evicting it on failure.
func (n *Node) send(c *conn, payload Payload) error {
	msg, err := NewMessage(payload)
	if err != nil {
		return err
	}

	if err := c.write(msg, n.writeTimeout); err != nil {
		n.evict(c, err)
		return err
	}

	return nil
}

func (n *Node) sendHello(c *conn) error {
	return n.send(c, Hello{Address: n.Addr(), Height: n.state.Height()})
}

// goTracked runs the function in a goroutine the shutdown waits for. Nothing
// is started once the node is shutting down.
func (n *Node) goTracked(fn func()) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.wg.Add(1)
	n.mu.Unlock()

	go func() {
		defer n.wg.Done()
		fn()
	}()
}

// =============================================================================

// advertiseAddr is the address announced when none is configured. The
// configured host is kept as written when it names a port, so it matches
// the way peer lists spell it; otherwise the bound address is used.
func advertiseAddr(host string, bound net.Addr) string {
	h, port, err := net.SplitHostPort(host)
	if err != nil || h == "" || port == "0" {
		return bound.String()
	}

	return host
}

// isLocalHost reports whether the host names this machine without naming
// a specific interface.
func isLocalHost(host string) bool {
	if host == "" || host == "localhost" {
		return true
	}

	ip := net.ParseIP(host)
	return ip != nil && (ip.IsUnspecified() || ip.IsLoopback())
}
