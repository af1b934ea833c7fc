package voucher

import "errors"

var (
	// ErrSigningUnavailable is returned when the signing key or the verifier's
	// chain-id query could not produce a signature. It is never retried here.
	ErrSigningUnavailable = errors.New("signing unavailable")

	// ErrSchemaMismatch is returned when a field value cannot be coerced to the
	// Solidity type its schema declares, or the field set does not match.
	ErrSchemaMismatch = errors.New("schema mismatch")

	ErrUnknownFamily    = errors.New("unknown voucher family")
	ErrInvalidSignature = errors.New("invalid voucher signature")
)
