// Package signature provides helper functions for handling the blockchain
// signature needs: canonical encoding, hashing, signing and verification.
package signature

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ZeroHash represents a hash code of zeros.
const ZeroHash string = "0x0000000000000000000000000000000000000000000000000000000000000000"

// arthaID is an arbitrary number added to the recovery id of every signature.
// It makes it clear the signature was produced for the Artha ledger.
const arthaID = 29

// Set of errors returned by Verify.
var (
	ErrInvalidPublicKey = errors.New("invalid public key")
	ErrInvalidSignature = errors.New("invalid signature")
)

// =============================================================================

// Canonical returns the deterministic encoding of the value used for hashing
// and signing. Objects are re-encoded with sorted keys so the field order of
// the source type never changes the result. Numbers keep their exact text.
func Canonical(value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}

	return json.Marshal(generic)
}

// Hash returns a unique string for the value.
func Hash(value any) string {
	data, err := Canonical(value)
	if err != nil {
		return ZeroHash
	}

	hash := sha256.Sum256(data)
	return hexutil.Encode(hash[:])
}

// Sign uses the specified private key to sign the canonical encoding of
// the value. The signature is returned hex encoded.
func Sign(value any, privateKey *ecdsa.PrivateKey) (string, error) {

	// Prepare the data for signing.
	data, err := stamp(value)
	if err != nil {
		return "", err
	}

	// Sign the hash with the private key to produce a signature.
	sig, err := crypto.Sign(data, privateKey)
	if err != nil {
		return "", err
	}

	// Check the signature verifies with the public key of the signer.
	rs := sig[:crypto.RecoveryIDOffset]
	if !crypto.VerifySignature(crypto.FromECDSAPub(&privateKey.PublicKey), data, rs) {
		return "", ErrInvalidSignature
	}

	sig[crypto.RecoveryIDOffset] += arthaID

	return hexutil.Encode(sig), nil
}

// Verify checks the signature was produced over the value by the owner of
// the specified hex encoded public key. Both values must be in the lowercase
// encoding Sign and PublicKeyString produce, and the recovery id must recover
// the same key, so a signature has exactly one accepted form.
func Verify(value any, publicKey string, sig string) error {
	pub, err := hexutil.Decode(publicKey)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidPublicKey, err)
	}

	if hexutil.Encode(pub) != publicKey {
		return fmt.Errorf("%w: not canonical hex", ErrInvalidPublicKey)
	}

	if _, err := crypto.UnmarshalPubkey(pub); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidPublicKey, err)
	}

	raw, err := hexutil.Decode(sig)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidSignature, err)
	}

	if hexutil.Encode(raw) != sig {
		return fmt.Errorf("%w: not canonical hex", ErrInvalidSignature)
	}

	if len(raw) != crypto.SignatureLength {
		return fmt.Errorf("%w: length %d", ErrInvalidSignature, len(raw))
	}

	// Check the recovery id is either 0 or 1.
	v := raw[crypto.RecoveryIDOffset] - arthaID
	if v != 0 && v != 1 {
		return fmt.Errorf("%w: recovery id", ErrInvalidSignature)
	}

	data, err := stamp(value)
	if err != nil {
		return err
	}

	// VerifySignature rejects the high S form of the signature.
	if !crypto.VerifySignature(pub, data, raw[:crypto.RecoveryIDOffset]) {
		return ErrInvalidSignature
	}

	// The recovery id is part of the encoded signature so it has to
	// point back at the signing key as well.
	rsv := make([]byte, crypto.SignatureLength)
	copy(rsv, raw)
	rsv[crypto.RecoveryIDOffset] = v

	recovered, err := crypto.Ecrecover(data, rsv)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidSignature, err)
	}

	if !bytes.Equal(recovered, pub) {
		return fmt.Errorf("%w: recovery id", ErrInvalidSignature)
	}

	return nil
}

// PublicKeyString returns the hex encoding of the uncompressed public key.
func PublicKeyString(publicKey *ecdsa.PublicKey) string {
	return hexutil.Encode(crypto.FromECDSAPub(publicKey))
}

// PublicAddress derives the account address from a hex encoded public key.
// The address is the sha256 hash of the public key encoding.
func PublicAddress(publicKey string) (string, error) {
	pub, err := hexutil.Decode(publicKey)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidPublicKey, err)
	}

	if _, err := crypto.UnmarshalPubkey(pub); err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidPublicKey, err)
	}

	hash := sha256.Sum256(pub)
	return hexutil.Encode(hash[:]), nil
}

// AddressOf returns the account address for the private key's public key.
func AddressOf(privateKey *ecdsa.PrivateKey) string {
	hash := sha256.Sum256(crypto.FromECDSAPub(&privateKey.PublicKey))
	return hexutil.Encode(hash[:])
}

// =============================================================================

// stamp returns a hash of 32 bytes that represents this data with
// the Artha stamp embedded into the final hash.
func stamp(value any) ([]byte, error) {

	// Produce the canonical encoding of the data.
	v, err := Canonical(value)
	if err != nil {
		return nil, err
	}

	// Hash the data into a 32 byte array. This will provide
	// a data length consistency with all data.
	txHash := crypto.Keccak256(v)

	// This stamp is used so signatures we produce when signing data
	// are always unique to the Artha ledger.
	stamp := []byte("\x19Artha Signed Message:\n32")

	// Hash the stamp and txHash together in a final 32 byte array
	// that represents the data.
	return crypto.Keccak256(stamp, txHash), nil
}
