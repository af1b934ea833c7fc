package voucher

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
)

// Domain is the EIP-712 signing domain. All four fields must equal what the
// verifying contract reconstructs or recovery yields a different address.
type Domain struct {
	Name              string         `json:"name"`
	Version           string         `json:"version"`
	ChainID           *big.Int       `json:"chainId"`
	VerifyingContract common.Address `json:"verifyingContract"`
}

var domainTypeHash = domainSchema.TypeHash()

// Separator computes the EIP-712 domain separator.
func (d Domain) Separator() common.Hash {
	nameHash := crypto.Keccak256Hash([]byte(d.Name))
	versionHash := crypto.Keccak256Hash([]byte(d.Version))

	// abi.encode(bytes32, bytes32, bytes32, uint256, address)
	encoded := make([]byte, 5*32)
	copy(encoded[0:32], domainTypeHash[:])
	copy(encoded[32:64], nameHash[:])
	copy(encoded[64:96], versionHash[:])
	if d.ChainID != nil {
		copy(encoded[96:128], math.U256Bytes(new(big.Int).Set(d.ChainID)))
	}
	copy(encoded[140:160], d.VerifyingContract.Bytes()) // right-aligned in its slot

	return crypto.Keccak256Hash(encoded)
}

func (d Domain) copy() Domain {
	if d.ChainID != nil {
		d.ChainID = new(big.Int).Set(d.ChainID)
	}
	return d
}

// TypedDigest is keccak256(0x19 0x01 || domainSeparator || structHash).
func TypedDigest(domainSeparator, structHash common.Hash) common.Hash {
	msg := make([]byte, 2+32+32)
	msg[0] = 0x19
	msg[1] = 0x01
	copy(msg[2:34], domainSeparator[:])
	copy(msg[34:66], structHash[:])
	return crypto.Keccak256Hash(msg)
}
