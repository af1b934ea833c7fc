package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/udao-org/udao-voucher/internal/config"
	"github.com/udao-org/udao-voucher/internal/voucher"
)

// VerifierABI is the one view function every voucher verifier exposes.
const VerifierABI = `[{"type":"function","name":"getChainID","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"}]`

var verifierABI = mustParseABI(VerifierABI)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Backend is the subset of an RPC client the verifier handles need.
// *ethclient.Client and the simulated backend's client both satisfy it.
type Backend interface {
	bind.ContractCaller
	ChainID(ctx context.Context) (*big.Int, error)
}

// ContractVerifier asks the verifying contract itself for its chain id.
type ContractVerifier struct {
	addr     common.Address
	contract *bind.BoundContract
}

func NewContractVerifier(addr common.Address, caller bind.ContractCaller) *ContractVerifier {
	return &ContractVerifier{
		addr:     addr,
		contract: bind.NewBoundContract(addr, verifierABI, caller, nil, nil),
	}
}

func (v *ContractVerifier) Address() common.Address { return v.addr }

// ChainID calls getChainID() on the verifier.
func (v *ContractVerifier) ChainID(ctx context.Context) (*big.Int, error) {
	var out []interface{}
	if err := v.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getChainID"); err != nil {
		return nil, fmt.Errorf("getChainID: %w", err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("getChainID: %d return values", len(out))
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// NetworkVerifier reports the RPC node's eth_chainId, for verifiers that do
// not expose getChainID().
type NetworkVerifier struct {
	addr    common.Address
	backend Backend
}

func NewNetworkVerifier(addr common.Address, backend Backend) *NetworkVerifier {
	return &NetworkVerifier{addr: addr, backend: backend}
}

func (v *NetworkVerifier) Address() common.Address { return v.addr }

func (v *NetworkVerifier) ChainID(ctx context.Context) (*big.Int, error) {
	id, err := v.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("eth_chainId: %w", err)
	}
	return id, nil
}

// StaticVerifier has a fixed chain id and never touches the network.
type StaticVerifier struct {
	addr    common.Address
	chainID *big.Int
}

func NewStaticVerifier(addr common.Address, chainID *big.Int) *StaticVerifier {
	return &StaticVerifier{addr: addr, chainID: new(big.Int).Set(chainID)}
}

func (v *StaticVerifier) Address() common.Address { return v.addr }

func (v *StaticVerifier) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).Set(v.chainID), nil
}

// Client hands out verifier handles backed by one RPC connection.
type Client struct {
	backend Backend
	close   func()
}

// Dial connects to an Ethereum JSON-RPC endpoint.
func Dial(ctx context.Context, rpcURL string) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	return &Client{backend: eth, close: eth.Close}, nil
}

// NewClient wraps an existing backend. Close is a no-op.
func NewClient(backend Backend) *Client {
	return &Client{backend: backend, close: func() {}}
}

func (c *Client) Close() { c.close() }

// Verifier returns a handle for the contract at addr. source selects how the
// chain id is obtained: config.ChainIDFromContract or config.ChainIDFromNetwork.
func (c *Client) Verifier(addr common.Address, source string) (voucher.Verifier, error) {
	switch source {
	case config.ChainIDFromContract, "":
		return NewContractVerifier(addr, c.backend), nil
	case config.ChainIDFromNetwork:
		return NewNetworkVerifier(addr, c.backend), nil
	}
	return nil, fmt.Errorf("unknown chain id source %q", source)
}
