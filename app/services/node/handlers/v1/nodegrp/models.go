package nodegrp

import (
	"fmt"

	"github.com/arthachain/ledger/foundation/blockchain/database"
	"github.com/arthachain/ledger/foundation/blockchain/peer"
)

// submitTx is the wire form of a signed transaction posted by a wallet.
type submitTx struct {
	Sender    string `json:"sender" validate:"required"`
	Recipient string `json:"recipient" validate:"required"`
	Amount    string `json:"amount" validate:"required"`
	Timestamp int64  `json:"timestamp" validate:"gt=0"`
	Signature string `json:"signature" validate:"required"`
	PublicKey string `json:"public_key" validate:"required"`
}

// toDatabaseTx converts the posted model into a transaction value.
func toDatabaseTx(stx submitTx) (database.Tx, error) {
	sender, err := database.ToAccountID(stx.Sender)
	if err != nil {
		return database.Tx{}, fmt.Errorf("sender: %w", err)
	}

	recipient, err := database.ToAccountID(stx.Recipient)
	if err != nil {
		return database.Tx{}, fmt.Errorf("recipient: %w", err)
	}

	amount, err := database.ParseAmount(stx.Amount)
	if err != nil {
		return database.Tx{}, fmt.Errorf("amount: %w", err)
	}

	tx := database.Tx{
		Sender:    sender,
		Recipient: recipient,
		Amount:    amount,
		Timestamp: stx.Timestamp,
		Signature: stx.Signature,
		PublicKey: stx.PublicKey,
	}

	return tx, nil
}

type tx struct {
	ID            string             `json:"id"`
	Sender        database.AccountID `json:"sender"`
	SenderName    string             `json:"sender_name,omitempty"`
	Recipient     database.AccountID `json:"recipient"`
	RecipientName string             `json:"recipient_name,omitempty"`
	Amount        string             `json:"amount"`
	Timestamp     int64              `json:"timestamp"`
	Signature     string             `json:"signature,omitempty"`
}

type block struct {
	Index              uint64             `json:"index"`
	Hash               string             `json:"hash"`
	PreviousHash       string             `json:"previous_hash"`
	Timestamp          int64              `json:"timestamp"`
	Producer           database.AccountID `json:"producer_address"`
	ProducerName       string             `json:"producer_name,omitempty"`
	Nonce              uint64             `json:"nonce"`
	Difficulty         uint64             `json:"difficulty"`
	ValidatorPublicKey string             `json:"validator_public_key,omitempty"`
	Signature          string             `json:"block_signature,omitempty"`
	Transactions       []tx               `json:"transactions"`
}

type balance struct {
	Address database.AccountID `json:"address"`
	Name    string             `json:"name,omitempty"`
	Balance string             `json:"balance"`
}

type balances struct {
	LatestBlock string    `json:"latest_block"`
	Height      uint64    `json:"height"`
	Uncommitted int       `json:"uncommitted"`
	Balances    []balance `json:"balances"`
}

type status struct {
	Height      uint64             `json:"height"`
	LatestBlock string             `json:"latest_block"`
	GenesisHash string             `json:"genesis_hash"`
	Consensus   string             `json:"consensus"`
	Beneficiary database.AccountID `json:"beneficiary"`
	Uncommitted int                `json:"uncommitted"`
	Peers       int                `json:"peers"`
	KnownPeers  []peer.Peer        `json:"known_peers"`
}
