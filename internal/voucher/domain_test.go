package voucher

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ── Domain separator ──────────────────────────────────────────────────────────

func TestDomainTypeHash(t *testing.T) {
	want := crypto.Keccak256Hash([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
	if domainTypeHash != want {
		t.Errorf("domainTypeHash = %s, want %s", domainTypeHash.Hex(), want.Hex())
	}
}

// The hand-packed separator must agree with the generic struct encoder.
func TestSeparator_MatchesHashStruct(t *testing.T) {
	d := testDomain(mustFamily(t, FamilyContent))
	words, _, err := domainSchema.encode([]any{d.Name, d.Version, d.ChainID, d.VerifyingContract})
	if err != nil {
		t.Fatal(err)
	}
	if got, want := d.Separator(), domainSchema.hashStruct(words); got != want {
		t.Errorf("Separator = %s, hashStruct = %s", got.Hex(), want.Hex())
	}
}

func TestSeparator_FieldSensitivity(t *testing.T) {
	base := testDomain(mustFamily(t, FamilyContent))
	sep := base.Separator()

	variants := map[string]Domain{
		"name":     {Name: "UDAOCertificate", Version: base.Version, ChainID: base.ChainID, VerifyingContract: base.VerifyingContract},
		"version":  {Name: base.Name, Version: "2", ChainID: base.ChainID, VerifyingContract: base.VerifyingContract},
		"chainId":  {Name: base.Name, Version: base.Version, ChainID: big.NewInt(1), VerifyingContract: base.VerifyingContract},
		"contract": {Name: base.Name, Version: base.Version, ChainID: base.ChainID, VerifyingContract: common.Address{1}},
	}
	for name, d := range variants {
		if d.Separator() == sep {
			t.Errorf("changing %s did not change the separator", name)
		}
	}
}

func TestSeparator_NegativeChainIDDistinct(t *testing.T) {
	pos := testDomain(mustFamily(t, FamilyContent))
	neg := pos.copy()
	neg.ChainID.Neg(neg.ChainID)
	if pos.Separator() == neg.Separator() {
		t.Errorf("chain ids %s and %s share a separator", pos.ChainID, neg.ChainID)
	}
}

func TestDomainCopy(t *testing.T) {
	d := testDomain(mustFamily(t, FamilyContent))
	c := d.copy()
	c.ChainID.SetInt64(5)
	if d.ChainID.Int64() != 31337 {
		t.Error("copy shares the chain id")
	}
}

func TestTypedDigest(t *testing.T) {
	sep := common.HexToHash("0x01")
	st := common.HexToHash("0x02")
	want := crypto.Keccak256Hash([]byte{0x19, 0x01}, sep[:], st[:])
	if got := TypedDigest(sep, st); got != want {
		t.Errorf("TypedDigest = %s, want %s", got.Hex(), want.Hex())
	}
}
