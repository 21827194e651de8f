package network

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/arthachain/ledger/foundation/blockchain/peer"
	"github.com/arthachain/ledger/foundation/blockchain/state"
)

// serve reads messages from the connection until it fails, goes idle
// past the liveness timeout or sends too many malformed messages.
func (n *Node) serve(c *conn) {
	defer n.wg.Done()

	scanner := bufio.NewScanner(c.netConn)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	var malformed int
	for {
		c.netConn.SetReadDeadline(time.Now().Add(n.idleTimeout))

		if !scanner.Scan() {
			err := scanner.Err()
			if err == nil {
				err = errors.New("connection closed")
			}
			n.evict(c, err)
			return
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		c.touch()

		payload, err := decodeLine(line)
		if err != nil {
			malformed++
			n.evHandler("network: serve: host[%s]: malformed[%d]: %s", c.status().Host, malformed, err)

			if malformed >= maxMalformed {
				n.evict(c, fmt.Errorf("%d malformed messages", malformed))
				return
			}
			continue
		}
		malformed = 0

		n.process(c, payload)
	}
}

// decodeLine parses one wire line into its typed payload.
func decodeLine(line []byte) (Payload, error) {
	var msg Message
	if err := json.Unmarshal(line, &msg); err != nil {
		return nil, err
	}

	return msg.Decode()
}

// process applies the effect of a message.
func (n *Node) process(c *conn, payload Payload) {
	switch p := payload.(type) {
	case Hello:
		n.processHello(c, p)

	case NewTransaction:
		n.processTransaction(c, p)

	case NewBlock:
		n.processBlock(c, p)

	case RequestChain:
		if err := n.send(c, RespondChain{Chain: n.state.Chain()}); err != nil {
			n.evHandler("network: process: RESPOND_CHAIN: host[%s]: ERROR: %s", c.status().Host, err)
		}

	case RespondChain:
		n.processChain(c, p)

	case Ping:
		n.send(c, Pong{})

	case Pong:

	case NewPeer:
		n.processNewPeer(c, p)
	}
}

// processHello learns the listen address and height of the peer. An inbound
// peer whose address is new is announced to the rest of the mesh.
func (n *Node) processHello(c *conn, p Hello) {
	if p.Address == n.Addr() {
		n.evict(c, ErrSelfConnect)
		return
	}

	c.setHeight(p.Height)

	if c.inbound && p.Address != "" {
		c.setListen(p.Address)

		if n.known.Add(peer.New(p.Address)) {
			n.seen.Add("peer:" + p.Address)
			n.Broadcast(NewPeer{Address: p.Address}, c.id)
		}
	}

	if p.Height > n.state.Height() {
		n.evHandler("network: processHello: host[%s]: peer ahead: height[%d]", c.status().Host, p.Height)
		n.send(c, RequestChain{})
	}
}

// processTransaction admits a gossiped transaction and relays it when it
// was accepted.
func (n *Node) processTransaction(c *conn, p NewTransaction) {
	tx := p.Transaction
	key := "tx:" + tx.ID()

	if !n.seen.Add(key) {
		return
	}

	if _, err := n.state.UpsertNodeTransaction(tx); err != nil {
		n.evHandler("network: processTransaction: host[%s]: REJECTED: %s", c.status().Host, err)

		// Forgotten so the transaction can be admitted once our chain
		// catches up with the peer's.
		n.seen.Forget(key)
		return
	}

	n.Broadcast(NewTransaction{Transaction: tx, PublicKey: tx.PublicKey}, c.id)
}

// processBlock appends a gossiped block and relays it. A block that does
// not extend our tip triggers a resync since our view may be behind.
func (n *Node) processBlock(c *conn, p NewBlock) {
	block := p.Block
	key := "block:" + block.Hash()

	c.setHeight(block.Index)

	if !n.seen.Add(key) {
		return
	}

	err := n.state.ProcessProposedBlock(block)
	switch {
	case err == nil:
		n.Broadcast(NewBlock{Block: block}, c.id)

	case errors.Is(err, state.ErrBlockKnown):
		n.evHandler("network: processBlock: host[%s]: blk[%d]: already on chain", c.status().Host, block.Index)

	default:
		n.evHandler("network: processBlock: host[%s]: blk[%d]: not an extension, resync: %s", c.status().Host, block.Index, err)
		n.seen.Forget(key)
		n.RequestChain()
	}
}

// processChain runs the fork choice rule on a chain sent by a peer.
func (n *Node) processChain(c *conn, p RespondChain) {
	if len(p.Chain) > 0 {
		c.setHeight(p.Chain[len(p.Chain)-1].Index)
	}

	err := n.state.ReplaceChain(p.Chain)
	switch {
	case err == nil:
		n.evHandler("network: processChain: host[%s]: adopted: height[%d]", c.status().Host, len(p.Chain)-1)

	case errors.Is(err, state.ErrChainNotLonger):

	default:
		n.evHandler("network: processChain: host[%s]: REJECTED: %s", c.status().Host, err)
	}
}

// processNewPeer records an announced address, dials it when not already
// connected and relays the announcement.
func (n *Node) processNewPeer(c *conn, p NewPeer) {
	if p.Address == "" || p.Address == n.Addr() {
		return
	}

	if !n.seen.Add("peer:" + p.Address) {
		return
	}

	n.known.Add(peer.New(p.Address))
	n.Broadcast(p, c.id)

	if n.connectedTo(p.Address) {
		return
	}

	n.goTracked(func() {
		if err := n.Connect(n.ctx, p.Address); err != nil {
			n.evHandler("network: processNewPeer: host[%s]: %s", p.Address, err)
		}
	})
}
