package network

import (
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/arthachain/ledger/foundation/blockchain/peer"
	"github.com/google/uuid"
)

// conn is one live connection to a peer. Dialed and accepted connections
// behave the same once established.
type conn struct {
	id      string
	netConn net.Conn
	inbound bool

	// Serializes writes so two messages never interleave on the wire.
	wmu sync.Mutex

	mu       sync.Mutex
	listen   string
	height   uint64
	lastSeen time.Time
}

func newConn(nc net.Conn, inbound bool, listen string) *conn {
	return &conn{
		id:       uuid.NewString(),
		netConn:  nc,
		inbound:  inbound,
		listen:   listen,
		lastSeen: time.Now(),
	}
}

// write sends the message followed by the newline delimiter.
func (c *conn) write(msg Message, timeout time.Duration) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	c.wmu.Lock()
	defer c.wmu.Unlock()

	if timeout > 0 {
		c.netConn.SetWriteDeadline(time.Now().Add(timeout))
	}

	_, err = c.netConn.Write(data)
	return err
}

func (c *conn) touch() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastSeen = time.Now()
}

func (c *conn) idle() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	return time.Since(c.lastSeen)
}

func (c *conn) listenAddr() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.listen
}

func (c *conn) setListen(addr string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.listen = addr
}

// setHeight records the peer's height, which only moves forward.
func (c *conn) setHeight(height uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if height > c.height {
		c.height = height
	}
}

func (c *conn) status() peer.Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	host := c.listen
	if host == "" {
		host = c.netConn.RemoteAddr().String()
	}

	return peer.Status{
		ID:       c.id,
		Host:     host,
		Inbound:  c.inbound,
		Height:   c.height,
		LastSeen: c.lastSeen,
	}
}
