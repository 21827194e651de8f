package database

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"time"

	"github.com/arthachain/ledger/foundation/blockchain/signature"
	"github.com/shopspring/decimal"
)

// Set of errors returned by transaction validation.
var (
	ErrInvalidSignature = errors.New("invalid transaction signature")
	ErrSenderMismatch   = errors.New("sender does not match public key")
)

// =============================================================================

// Tx is a value transfer between two accounts. Once signed a transaction is
// never modified; its identity is the hash of its canonical fields.
type Tx struct {
	Sender    AccountID       `json:"sender"`
	Recipient AccountID       `json:"recipient"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp int64           `json:"timestamp"` // Unix milliseconds.
	Signature string          `json:"signature"`
	PublicKey string          `json:"public_key,omitempty"`
}

// NewTx constructs an unsigned transaction stamped with the current time.
func NewTx(sender AccountID, recipient AccountID, amount decimal.Decimal) (Tx, error) {
	if !recipient.IsAccountID() {
		return Tx{}, fmt.Errorf("recipient account is not properly formatted")
	}

	if !amount.IsPositive() || !HasValidPrecision(amount) {
		return Tx{}, ErrInvalidAmount
	}

	tx := Tx{
		Sender:    sender,
		Recipient: recipient,
		Amount:    amount,
		Timestamp: time.Now().UTC().UnixMilli(),
	}

	return tx, nil
}

// NewCoinbaseTx constructs the reward transaction paid to a block producer.
func NewCoinbaseTx(recipient AccountID, reward decimal.Decimal, timestamp int64) Tx {
	return Tx{
		Sender:    CoinbaseID,
		Recipient: recipient,
		Amount:    reward,
		Timestamp: timestamp,
	}
}

// Sign uses the specified private key to sign the transaction. The sender
// and public key are taken from the private key.
func (tx Tx) Sign(privateKey *ecdsa.PrivateKey) (Tx, error) {
	tx.PublicKey = signature.PublicKeyString(&privateKey.PublicKey)
	tx.Sender = PublicKeyToAccountID(&privateKey.PublicKey)

	sig, err := signature.Sign(tx.signingPayload(), privateKey)
	if err != nil {
		return Tx{}, err
	}
	tx.Signature = sig

	return tx, nil
}

// IsCoinbase reports whether this is a block reward transaction.
func (tx Tx) IsCoinbase() bool {
	return tx.Sender == CoinbaseID
}

// ID returns the transaction identity used for deduplication.
func (tx Tx) ID() string {
	return signature.Hash(map[string]any{
		"sender":    tx.Sender,
		"recipient": tx.Recipient,
		"amount":    FormatAmount(tx.Amount),
		"timestamp": tx.Timestamp,
		"signature": tx.Signature,
	})
}

// Validate checks the transaction is well formed and carries a signature
// from the owner of the sender account. Coinbase transactions carry no
// signature and are checked by block validation instead.
func (tx Tx) Validate() error {
	if !tx.Amount.IsPositive() || !HasValidPrecision(tx.Amount) {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, tx.Amount)
	}

	if !tx.Recipient.IsAccountID() {
		return errors.New("invalid account for recipient")
	}

	if tx.IsCoinbase() {
		return nil
	}

	addr, err := signature.PublicAddress(tx.PublicKey)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidSignature, err)
	}

	if AccountID(addr) != tx.Sender {
		return ErrSenderMismatch
	}

	if err := signature.Verify(tx.signingPayload(), tx.PublicKey, tx.Signature); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidSignature, err)
	}

	return nil
}

// String implements the fmt.Stringer interface for logging.
func (tx Tx) String() string {
	return fmt.Sprintf("%s->%s:%s", tx.Sender, tx.Recipient, FormatAmount(tx.Amount))
}

// signingPayload is the canonical field set covered by the sender's signature.
func (tx Tx) signingPayload() map[string]any {
	return map[string]any{
		"sender":    tx.Sender,
		"recipient": tx.Recipient,
		"amount":    FormatAmount(tx.Amount),
		"timestamp": tx.Timestamp,
	}
}

// hashable returns the canonical form of the transaction inside a block.
func (tx Tx) hashable() map[string]any {
	return map[string]any{
		"sender":     tx.Sender,
		"recipient":  tx.Recipient,
		"amount":     FormatAmount(tx.Amount),
		"timestamp":  tx.Timestamp,
		"signature":  tx.Signature,
		"public_key": tx.PublicKey,
	}
}
