package voucher

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ── helpers ───────────────────────────────────────────────────────────────────

var (
	// Fixed deterministic test key (Anvil account #0, not used outside tests)
	testPrivKeyHex  = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testSignerHex   = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	testChainID     = big.NewInt(31337)
	testContractHex = "0xAbc0000000000000000000000000000000000123"
	testRedeemerHex = "0x1111111111111111111111111111111111111111"
)

type ecdsaKey struct {
	priv *ecdsa.PrivateKey
}

func (k ecdsaKey) Address() common.Address { return crypto.PubkeyToAddress(k.priv.PublicKey) }

func (k ecdsaKey) SignDigest(d common.Hash) ([]byte, error) {
	return crypto.Sign(d[:], k.priv)
}

type failingKey struct{}

func (failingKey) Address() common.Address { return common.Address{} }
func (failingKey) SignDigest(common.Hash) ([]byte, error) {
	return nil, errors.New("account locked")
}

// fakeVerifier counts chain-id queries.
type fakeVerifier struct {
	addr    common.Address
	chainID *big.Int
	err     error
	calls   atomic.Int32
}

func (f *fakeVerifier) Address() common.Address { return f.addr }

func (f *fakeVerifier) ChainID(_ context.Context) (*big.Int, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return new(big.Int).Set(f.chainID), nil
}

func newTestKey(t *testing.T) ecdsaKey {
	t.Helper()
	priv, err := crypto.HexToECDSA(testPrivKeyHex)
	if err != nil {
		t.Fatalf("load test private key: %v", err)
	}
	return ecdsaKey{priv: priv}
}

func newTestVerifier() *fakeVerifier {
	return &fakeVerifier{
		addr:    common.HexToAddress(testContractHex),
		chainID: new(big.Int).Set(testChainID),
	}
}

func mustFamily(t *testing.T, id string) Family {
	t.Helper()
	f, err := Lookup(id)
	if err != nil {
		t.Fatalf("Lookup(%q): %v", id, err)
	}
	return f
}

func newContentSigner(t *testing.T) (*Signer, *fakeVerifier) {
	t.Helper()
	v := newTestVerifier()
	return NewSigner(mustFamily(t, FamilyContent), v, newTestKey(t)), v
}

func contentValues(tokenID int64) []any {
	return []any{big.NewInt(tokenID), "ipfs://x", testRedeemerHex, true, "N", "D"}
}

func testDomain(f Family) Domain {
	return Domain{
		Name:              f.DomainName,
		Version:           f.DomainVersion,
		ChainID:           new(big.Int).Set(testChainID),
		VerifyingContract: common.HexToAddress(testContractHex),
	}
}

// sampleValues returns schema-conforming values for any built-in family.
func sampleValues(f Family) []any {
	out := make([]any, len(f.Schema.Fields))
	for i, field := range f.Schema.Fields {
		switch field.Type {
		case "uint256":
			out[i] = big.NewInt(int64(i + 1))
		case "string":
			out[i] = "value-" + field.Name
		case "address":
			out[i] = testRedeemerHex
		case "bool":
			out[i] = true
		}
	}
	return out
}
