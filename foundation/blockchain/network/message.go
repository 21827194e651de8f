package network

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/arthachain/ledger/foundation/blockchain/database"
)

// ErrUnknownMessage is returned when a message carries a type this node
// does not speak.
var ErrUnknownMessage = errors.New("unknown message type")

// Set of message types exchanged between peers.
const (
	TypeHello          = "HELLO"
	TypeNewTransaction = "NEW_TRANSACTION"
	TypeNewBlock       = "NEW_BLOCK"
	TypeRequestChain   = "REQUEST_CHAIN"
	TypeRespondChain   = "RESPOND_CHAIN"
	TypePing           = "PING"
	TypePong           = "PONG"
	TypeNewPeer        = "NEW_PEER"
)

// Message is the envelope written to the wire, one JSON object per line.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Payload is implemented by the data of every message type.
type Payload interface {
	messageType() string
}

// Hello is sent by both ends right after connecting.
type Hello struct {
	Address string `json:"address"`
	Height  uint64 `json:"height"`
}

// NewTransaction gossips a pending transaction.
type NewTransaction struct {
	Transaction database.Tx `json:"transaction"`
	PublicKey   string      `json:"public_key"`
}

// NewBlock gossips a produced block.
type NewBlock struct {
	Block database.Block `json:"block"`
}

// RequestChain asks the peer for its full chain.
type RequestChain struct{}

// RespondChain carries a full chain.
type RespondChain struct {
	Chain []database.Block `json:"chain"`
}

// Ping asks the peer to prove it is alive.
type Ping struct{}

// Pong answers a Ping.
type Pong struct{}

// NewPeer announces a reachable listen address.
type NewPeer struct {
	Address string `json:"address"`
}

func (Hello) messageType() string          { return TypeHello }
func (NewTransaction) messageType() string { return TypeNewTransaction }
func (NewBlock) messageType() string       { return TypeNewBlock }
func (RequestChain) messageType() string   { return TypeRequestChain }
func (RespondChain) messageType() string   { return TypeRespondChain }
func (Ping) messageType() string           { return TypePing }
func (Pong) messageType() string           { return TypePong }
func (NewPeer) messageType() string        { return TypeNewPeer }

// =============================================================================

// NewMessage wraps the payload in its envelope.
func NewMessage(payload Payload) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s: %w", payload.messageType(), err)
	}

	return Message{Type: payload.messageType(), Data: data}, nil
}

// Decode returns the typed payload carried by the message.
func (m Message) Decode() (Payload, error) {
	switch m.Type {
	case TypeHello:
		var p Hello
		if err := json.Unmarshal(orEmpty(m.Data), &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", m.Type, err)
		}
		return p, nil

	case TypeNewTransaction:
		var p NewTransaction
		if err := json.Unmarshal(orEmpty(m.Data), &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", m.Type, err)
		}
		if p.Transaction.PublicKey == "" {
			p.Transaction.PublicKey = p.PublicKey
		}
		return p, nil

	case TypeNewBlock:
		var p NewBlock
		if err := json.Unmarshal(orEmpty(m.Data), &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", m.Type, err)
		}
		return p, nil

	case TypeRespondChain:
		var p RespondChain
		if err := json.Unmarshal(orEmpty(m.Data), &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", m.Type, err)
		}
		return p, nil

	case TypeNewPeer:
		var p NewPeer
		if err := json.Unmarshal(orEmpty(m.Data), &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", m.Type, err)
		}
		return p, nil

	case TypeRequestChain:
		return RequestChain{}, nil

	case TypePing:
		return Ping{}, nil

	case TypePong:
		return Pong{}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, m.Type)
}

// orEmpty treats a missing data field as an empty object.
func orEmpty(data json.RawMessage) json.RawMessage {
	if len(data) == 0 {
		return json.RawMessage("{}")
	}
	return data
}
