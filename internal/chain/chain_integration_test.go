package chain_test

// Integration test: deploys a minimal verifier on an in-process simulated EVM
// and signs vouchers against the chain id it reports. The contract answers
// every call with CHAINID, which is all getChainID() needs.
//
// No external process (Anvil, geth) is required.

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"

	"github.com/udao-org/udao-voucher/internal/chain"
	"github.com/udao-org/udao-voucher/internal/config"
	"github.com/udao-org/udao-voucher/internal/keys"
	"github.com/udao-org/udao-voucher/internal/voucher"
)

// ── test keys (Anvil default accounts) ────────────────────────────────────────

var (
	deployerKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	// The go-ethereum simulated backend always uses chainID 1337.
	simChainID = big.NewInt(1337)

	// init: CODECOPY the 9-byte runtime and return it.
	// runtime: CHAINID PUSH1 0 MSTORE PUSH1 32 PUSH1 0 RETURN
	chainIDVerifierCode = hexutil.MustDecode("0x6009600c60003960096000f3" + "4660005260206000f3")
)

// ── helpers ───────────────────────────────────────────────────────────────────

// deployFixture deploys the chain-id verifier on a fresh simulated chain and
// returns the backend, the verifier address and the deployer's key.
func deployFixture(t *testing.T) (*simulated.Backend, common.Address, *keys.PrivateKey) {
	t.Helper()

	deployerKey, err := crypto.HexToECDSA(deployerKeyHex)
	if err != nil {
		t.Fatalf("parse deployer key: %v", err)
	}
	deployerAddr := crypto.PubkeyToAddress(deployerKey.PublicKey)

	balance, _ := new(big.Int).SetString("1000000000000000000000", 10)
	alloc := types.GenesisAlloc{deployerAddr: {Balance: balance}}
	backend := simulated.NewBackend(alloc, simulated.WithBlockGasLimit(30_000_000))
	t.Cleanup(func() { _ = backend.Close() })

	auth, err := bind.NewKeyedTransactorWithChainID(deployerKey, simChainID)
	if err != nil {
		t.Fatalf("deployer transactor: %v", err)
	}
	parsed, err := abi.JSON(strings.NewReader(chain.VerifierABI))
	if err != nil {
		t.Fatalf("parse verifier ABI: %v", err)
	}

	auth.GasLimit = 1_000_000
	addr, _, _, err := bind.DeployContract(auth, parsed, chainIDVerifierCode, backend.Client())
	if err != nil {
		t.Fatalf("deploy verifier: %v", err)
	}
	backend.Commit()

	return backend, addr, keys.FromECDSA(deployerKey)
}

// ecrecover runs the ecrecover precompile on the simulated chain, the same
// primitive the Solidity verifiers use.
func ecrecover(t *testing.T, backend *simulated.Backend, digest common.Hash, sig []byte) common.Address {
	t.Helper()
	input := make([]byte, 128)
	copy(input[0:32], digest[:])
	input[63] = sig[64]
	copy(input[64:96], sig[0:32])
	copy(input[96:128], sig[32:64])

	precompile := common.BytesToAddress([]byte{1})
	out, err := backend.Client().CallContract(context.Background(), ethereum.CallMsg{To: &precompile, Data: input}, nil)
	if err != nil {
		t.Fatalf("ecrecover call: %v", err)
	}
	if len(out) != 32 {
		t.Fatalf("ecrecover returned %d bytes", len(out))
	}
	return common.BytesToAddress(out[12:])
}

// ── verifier handles ──────────────────────────────────────────────────────────

func TestContractVerifier_ChainID(t *testing.T) {
	backend, addr, _ := deployFixture(t)

	v := chain.NewContractVerifier(addr, backend.Client())
	id, err := v.ChainID(context.Background())
	if err != nil {
		t.Fatalf("ChainID: %v", err)
	}
	if id.Cmp(simChainID) != 0 {
		t.Errorf("chain id = %s, want %s", id, simChainID)
	}
	if v.Address() != addr {
		t.Errorf("address = %s", v.Address().Hex())
	}
}

func TestContractVerifier_NoCode(t *testing.T) {
	backend, _, _ := deployFixture(t)

	v := chain.NewContractVerifier(common.HexToAddress("0x000000000000000000000000000000000000dEaD"), backend.Client())
	if _, err := v.ChainID(context.Background()); err == nil {
		t.Fatal("expected error calling an address without code")
	}
}

func TestClient_Verifier(t *testing.T) {
	backend, addr, _ := deployFixture(t)
	c := chain.NewClient(backend.Client())
	defer c.Close()

	for _, src := range []string{config.ChainIDFromContract, config.ChainIDFromNetwork} {
		v, err := c.Verifier(addr, src)
		if err != nil {
			t.Fatalf("Verifier(%s): %v", src, err)
		}
		id, err := v.ChainID(context.Background())
		if err != nil {
			t.Fatalf("%s ChainID: %v", src, err)
		}
		if id.Cmp(simChainID) != 0 {
			t.Errorf("%s chain id = %s", src, id)
		}
	}

	if _, err := c.Verifier(addr, "oracle"); err == nil {
		t.Error("expected error for unknown source")
	}
}

func TestStaticVerifier(t *testing.T) {
	v := chain.NewStaticVerifier(common.Address{1}, big.NewInt(31337))
	id, _ := v.ChainID(context.Background())
	id.SetInt64(0)
	again, _ := v.ChainID(context.Background())
	if again.Int64() != 31337 {
		t.Errorf("static chain id mutated: %s", again)
	}
}

// ── signing against the simulated chain ───────────────────────────────────────

func TestSigner_OnChainRecovery(t *testing.T) {
	backend, addr, key := deployFixture(t)
	ctx := context.Background()

	f, err := voucher.Lookup(voucher.FamilyContent)
	if err != nil {
		t.Fatal(err)
	}
	s := voucher.NewSigner(f, chain.NewContractVerifier(addr, backend.Client()), key)

	v, err := s.CreateVoucher(ctx, 1, "ipfs://x", "0x1111111111111111111111111111111111111111", true, "N", "D")
	if err != nil {
		t.Fatalf("CreateVoucher: %v", err)
	}
	d, err := s.Domain(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if d.ChainID.Cmp(simChainID) != 0 {
		t.Errorf("domain chain id = %s", d.ChainID)
	}

	if got := ecrecover(t, backend, v.Digest(), v.Signature()); got != key.Address() {
		t.Errorf("ecrecover = %s, want %s", got.Hex(), key.Address().Hex())
	}
}

func TestSigner_UnreachableVerifier(t *testing.T) {
	backend, _, key := deployFixture(t)

	f, _ := voucher.Lookup(voucher.FamilyRole)
	missing := common.HexToAddress("0x000000000000000000000000000000000000dEaD")
	s := voucher.NewSigner(f, chain.NewContractVerifier(missing, backend.Client()), key)

	_, err := s.CreateVoucher(context.Background(), "0x1111111111111111111111111111111111111111", 100, 1)
	if !errors.Is(err, voucher.ErrSigningUnavailable) {
		t.Fatalf("expected ErrSigningUnavailable, got %v", err)
	}
}
