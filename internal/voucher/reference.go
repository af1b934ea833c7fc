package voucher

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// ReferenceDigest computes the digest of values (in schema order) with
// go-ethereum's generic EIP-712 implementation instead of this package's
// encoder. Used to cross-check schemas; it rejects values the strict
// reference encoder refuses, such as negative unsigned integers.
func ReferenceDigest(f Family, d Domain, values ...any) (common.Hash, error) {
	_, norm, err := f.Schema.encode(values)
	if err != nil {
		return common.Hash{}, err
	}
	msg := make(apitypes.TypedDataMessage, len(norm))
	for i, field := range f.Schema.Fields {
		switch x := norm[i].(type) {
		case common.Address:
			msg[field.Name] = x.Hex()
		default:
			msg[field.Name] = x
		}
	}

	td := apitypes.TypedData{
		Types: apitypes.Types{
			domainSchema.PrimaryType: domainSchema.Fields,
			f.Schema.PrimaryType:     f.Schema.Fields,
		},
		PrimaryType: f.Schema.PrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              d.Name,
			Version:           d.Version,
			ChainId:           (*math.HexOrDecimal256)(d.ChainID),
			VerifyingContract: d.VerifyingContract.Hex(),
		},
		Message: msg,
	}
	hash, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(hash), nil
}
