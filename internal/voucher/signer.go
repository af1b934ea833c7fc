package voucher

import (
	"context"
	"fmt"
	"math/big"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
)

// Verifier is the handle to the contract that checks a family's vouchers.
type Verifier interface {
	Address() common.Address
	// ChainID may perform a network round trip.
	ChainID(ctx context.Context) (*big.Int, error)
}

// Key produces recoverable secp256k1 signatures over 32-byte digests.
type Key interface {
	Address() common.Address
	SignDigest(digest common.Hash) ([]byte, error)
}

// Signer builds and signs vouchers of a single family for a single verifier.
type Signer struct {
	family   Family
	verifier Verifier
	key      Key

	// Resolved on first use and never invalidated. Concurrent first calls
	// may each query the chain id; they store the same value.
	domain atomic.Pointer[Domain]
}

func NewSigner(family Family, verifier Verifier, key Key) *Signer {
	return &Signer{
		family:   family.WithDomain("", ""),
		verifier: verifier,
		key:      key,
	}
}

func (s *Signer) Family() Family { return s.family.WithDomain("", "") }

// VerifyingContract returns the verifier's address.
func (s *Signer) VerifyingContract() common.Address { return s.verifier.Address() }

// SignerAddress returns the address the verifier must trust.
func (s *Signer) SignerAddress() common.Address {
	if s.key == nil {
		return common.Address{}
	}
	return s.key.Address()
}

// Domain resolves the signing domain, querying the verifier's chain id on
// first use.
func (s *Signer) Domain(ctx context.Context) (Domain, error) {
	if d := s.domain.Load(); d != nil {
		return d.copy(), nil
	}
	chainID, err := s.verifier.ChainID(ctx)
	if err != nil {
		return Domain{}, fmt.Errorf("%w: chain id: %w", ErrSigningUnavailable, err)
	}
	if chainID == nil || chainID.Sign() <= 0 {
		return Domain{}, fmt.Errorf("%w: chain id: verifier returned %v", ErrSigningUnavailable, chainID)
	}
	d := &Domain{
		Name:              s.family.DomainName,
		Version:           s.family.DomainVersion,
		ChainID:           new(big.Int).Set(chainID),
		VerifyingContract: s.verifier.Address(),
	}
	s.domain.Store(d)
	return d.copy(), nil
}

// CreateVoucher signs values given in schema order. Values are coerced to
// their declared Solidity types before any network access; a value that
// cannot be coerced fails with ErrSchemaMismatch.
func (s *Signer) CreateVoucher(ctx context.Context, values ...any) (*Voucher, error) {
	words, norm, err := s.family.Schema.encode(values)
	if err != nil {
		return nil, err
	}
	if s.key == nil {
		return nil, fmt.Errorf("%w: no signing key", ErrSigningUnavailable)
	}
	d, err := s.Domain(ctx)
	if err != nil {
		return nil, err
	}

	digest := s.family.digest(d, words)
	sig, err := s.key.SignDigest(digest)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigningUnavailable, err)
	}
	if len(sig) != 65 {
		return nil, fmt.Errorf("%w: key returned %d-byte signature", ErrSigningUnavailable, len(sig))
	}
	sig = append([]byte(nil), sig...)
	// Solidity ecrecover expects V in {27, 28}
	if sig[64] < 27 {
		sig[64] += 27
	}

	return &Voucher{
		family:       s.family.ID,
		schema:       s.family.Schema.clone(),
		accountField: s.family.AccountField,
		values:       norm,
		digest:       digest,
		signature:    sig,
	}, nil
}

// Sign is CreateVoucher for a field object keyed by field name. The object
// must name every schema field and nothing else.
func (s *Signer) Sign(ctx context.Context, fields map[string]any) (*Voucher, error) {
	values, err := s.family.Schema.Order(fields)
	if err != nil {
		return nil, err
	}
	return s.CreateVoucher(ctx, values...)
}
