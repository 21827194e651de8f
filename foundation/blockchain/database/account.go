package database

import (
	"crypto/ecdsa"
	"errors"

	"github.com/arthachain/ledger/foundation/blockchain/signature"
)

// CoinbaseID is the sender of every block reward transaction.
const CoinbaseID AccountID = "0"

// AccountID represents an account address. It is the sha256 hash of the
// owner's public key and is what transactions name as sender and recipient.
type AccountID string

// ToAccountID converts a hex-encoded string to an account and validates the
// hex-encoded string is formatted correctly.
func ToAccountID(hex string) (AccountID, error) {
	a := AccountID(hex)
	if !a.IsAccountID() {
		return "", errors.New("invalid account format")
	}

	return a, nil
}

// PublicKeyToAccountID converts the public key to an account value.
func PublicKeyToAccountID(pk *ecdsa.PublicKey) AccountID {
	addr, err := signature.PublicAddress(signature.PublicKeyString(pk))
	if err != nil {
		return ""
	}

	return AccountID(addr)
}

// IsAccountID verifies whether the underlying data represents a valid
// account: a 0x prefix followed by 64 lowercase hex digits. Only one
// spelling of an address is accepted so every account has one balance key.
func (a AccountID) IsAccountID() bool {
	const addressLength = 32

	if !has0xPrefix(a) {
		return false
	}
	a = a[2:]

	return len(a) == 2*addressLength && isHex(a)
}

// =============================================================================

// has0xPrefix validates the account starts with a 0x.
func has0xPrefix(a AccountID) bool {
	return len(a) >= 2 && a[0] == '0' && a[1] == 'x'
}

// isHex validates whether each byte is a lowercase hexadecimal character.
func isHex(a AccountID) bool {
	for _, c := range []byte(a) {
		if !('0' <= c && c <= '9') && !('a' <= c && c <= 'f') {
			return false
		}
	}

	return true
}
