// Package pos implements the proof of stake consensus strategy: a fixed,
// ordered validator list where the producer of height h is validator h mod k.
package pos

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/arthachain/ledger/foundation/blockchain/consensus"
	"github.com/arthachain/ledger/foundation/blockchain/database"
	"github.com/arthachain/ledger/foundation/blockchain/signature"
)

// Name is the name of this strategy in the genesis file.
const Name = "pos"

// Config represents the parameters the strategy needs. The private key is
// only set on nodes that are themselves validators.
type Config struct {
	Validators []string
	PrivateKey *ecdsa.PrivateKey
	EvHandler  consensus.EventHandler
}

// POS represents the proof of stake strategy.
type POS struct {
	validators []string
	privateKey *ecdsa.PrivateKey
	publicKey  string
	evHandler  consensus.EventHandler
}

// New constructs a proof of stake strategy.
func New(cfg Config) (*POS, error) {
	if len(cfg.Validators) == 0 {
		return nil, errors.New("no validators configured")
	}

	for i, v := range cfg.Validators {
		if _, err := signature.PublicAddress(v); err != nil {
			return nil, fmt.Errorf("validator %d: %w", i, err)
		}
		if v != strings.ToLower(v) {
			return nil, fmt.Errorf("validator %d: %w: use lowercase hex", i, signature.ErrInvalidPublicKey)
		}
	}

	ev := func(v string, args ...any) {}
	if cfg.EvHandler != nil {
		ev = cfg.EvHandler
	}

	p := POS{
		validators: append([]string(nil), cfg.Validators...),
		privateKey: cfg.PrivateKey,
		evHandler:  ev,
	}

	if cfg.PrivateKey != nil {
		p.publicKey = signature.PublicKeyString(&cfg.PrivateKey.PublicKey)
	}

	return &p, nil
}

// Name implements the consensus.Strategy interface.
func (p *POS) Name() string {
	return Name
}

// SelectProducer returns the public key of the validator owning the height.
func (p *POS) SelectProducer(height uint64) string {
	return p.validators[height%uint64(len(p.validators))]
}

// IsProducer reports whether this node owns the slot for the height.
func (p *POS) IsProducer(height uint64) bool {
	return p.publicKey != "" && p.SelectProducer(height) == p.publicKey
}

// Validators returns a copy of the ordered validator list.
func (p *POS) Validators() []string {
	return append([]string(nil), p.validators...)
}

// ProposeBlock signs the candidate when this node owns its slot.
func (p *POS) ProposeBlock(ctx context.Context, prop consensus.Proposal) (database.Block, error) {
	block := prop.Candidate

	if !p.IsProducer(block.Index) {
		return database.Block{}, fmt.Errorf("%w: height %d", consensus.ErrWrongSlot, block.Index)
	}

	if ctx.Err() != nil {
		return database.Block{}, ctx.Err()
	}

	if exp := database.PublicKeyToAccountID(&p.privateKey.PublicKey); block.Producer != exp {
		return database.Block{}, fmt.Errorf("producer %s is not the validator address %s", block.Producer, exp)
	}

	block.ValidatorPublicKey = p.publicKey
	block.Nonce = 0
	block.Difficulty = 0

	sig, err := signature.Sign(block.Hashable(), p.privateKey)
	if err != nil {
		return database.Block{}, fmt.Errorf("signing block: %w", err)
	}
	block.Signature = sig

	p.evHandler("pos: ProposeBlock: SIGNED: blk[%d]: validator[%s]", block.Index, block.Producer)

	return block, nil
}

// ValidateProof checks the block was signed by the validator owning its
// slot and that the producer address belongs to that validator.
func (p *POS) ValidateProof(prior []database.Block, block database.Block) error {
	exp := p.SelectProducer(block.Index)
	if block.ValidatorPublicKey != exp {
		return fmt.Errorf("%w: height %d", consensus.ErrWrongSlot, block.Index)
	}

	addr, err := signature.PublicAddress(block.ValidatorPublicKey)
	if err != nil {
		return fmt.Errorf("%w: %s", consensus.ErrBadProof, err)
	}

	if database.AccountID(addr) != block.Producer {
		return fmt.Errorf("%w: producer %s does not match validator", consensus.ErrWrongSlot, block.Producer)
	}

	if err := signature.Verify(block.Hashable(), block.ValidatorPublicKey, block.Signature); err != nil {
		return fmt.Errorf("%w: %s", consensus.ErrBadProof, err)
	}

	return nil
}
