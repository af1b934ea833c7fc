package voucher

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Recover returns the address that signed v, recomputing the digest from
// v's fields under family f and domain d the way the verifier does.
func Recover(f Family, d Domain, v *Voucher) (common.Address, error) {
	words, _, err := f.Schema.encode(v.values)
	if err != nil {
		return common.Address{}, err
	}
	digest := f.digest(d, words)

	if len(v.signature) != 65 {
		return common.Address{}, fmt.Errorf("%w: signature is %d bytes", ErrInvalidSignature, len(v.signature))
	}
	sig := make([]byte, 65)
	copy(sig, v.signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := crypto.SigToPub(digest[:], sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Verify checks that v was signed by expected.
func Verify(f Family, d Domain, v *Voucher, expected common.Address) error {
	got, err := Recover(f, d, v)
	if err != nil {
		return err
	}
	if got != expected {
		return fmt.Errorf("%w: recovered %s, want %s", ErrInvalidSignature, got.Hex(), expected.Hex())
	}
	return nil
}
