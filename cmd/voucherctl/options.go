package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/udao-org/udao-voucher/internal/chain"
	"github.com/udao-org/udao-voucher/internal/config"
	"github.com/udao-org/udao-voucher/internal/voucher"
)

// rootOptions are available to every subcommand.
type rootOptions struct {
	Verbose bool
	Timeout time.Duration
}

func (o *rootOptions) AddFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().BoolVarP(&o.Verbose, "verbose", "v", false, "log chain queries to stderr")
	cmd.PersistentFlags().DurationVar(&o.Timeout, "timeout", 30*time.Second, "timeout for RPC calls")
}

func (o *rootOptions) logger() *zap.Logger {
	if !o.Verbose {
		return zap.NewNop()
	}
	log, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

// domainOptions select a family and the domain it is signed under.
type domainOptions struct {
	Family        string
	ChainID       int64
	Contract      string
	DomainName    string
	DomainVersion string
	RPCURL        string
	ChainIDSource string
}

func (o *domainOptions) AddFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.Family, "family", "", "voucher family (see 'voucherctl families')")
	cmd.Flags().Int64Var(&o.ChainID, "chain-id", 0, "chain id of the verifier; queried over --rpc-url when zero")
	cmd.Flags().StringVar(&o.Contract, "contract", "", "verifying contract address")
	cmd.Flags().StringVar(&o.DomainName, "domain-name", "", "override the family's domain name")
	cmd.Flags().StringVar(&o.DomainVersion, "domain-version", "", "override the family's domain version")
	cmd.Flags().StringVar(&o.RPCURL, "rpc-url", "", "JSON-RPC endpoint used to discover the chain id")
	cmd.Flags().StringVar(&o.ChainIDSource, "chain-id-source", config.ChainIDFromContract,
		"where to read the chain id: contract or network")
	_ = cmd.MarkFlagRequired("family")
	_ = cmd.MarkFlagRequired("contract")
}

func (o *domainOptions) family() (voucher.Family, error) {
	f, err := voucher.Lookup(o.Family)
	if err != nil {
		return voucher.Family{}, err
	}
	return f.WithDomain(o.DomainName, o.DomainVersion), nil
}

// verifier returns a handle for --contract and a cleanup func.
func (o *domainOptions) verifier(ctx context.Context, log *zap.Logger) (voucher.Verifier, func(), error) {
	if !common.IsHexAddress(o.Contract) {
		return nil, nil, fmt.Errorf("invalid --contract %q", o.Contract)
	}
	addr := common.HexToAddress(o.Contract)
	if o.ChainID < 0 {
		return nil, nil, fmt.Errorf("invalid --chain-id %d: must be positive", o.ChainID)
	}
	if o.ChainID != 0 {
		return chain.NewStaticVerifier(addr, big.NewInt(o.ChainID)), func() {}, nil
	}
	if o.RPCURL == "" {
		return nil, nil, fmt.Errorf("one of --chain-id or --rpc-url is required")
	}
	client, err := chain.Dial(ctx, o.RPCURL)
	if err != nil {
		return nil, nil, err
	}
	v, err := client.Verifier(addr, o.ChainIDSource)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	log.Debug("chain id will be queried",
		zap.String("rpc", o.RPCURL),
		zap.String("source", o.ChainIDSource),
		zap.String("contract", addr.Hex()))
	return v, client.Close, nil
}

// domain resolves the signing domain for the selected family.
func (o *domainOptions) domain(ctx context.Context, f voucher.Family, log *zap.Logger) (voucher.Domain, error) {
	ver, done, err := o.verifier(ctx, log)
	if err != nil {
		return voucher.Domain{}, err
	}
	defer done()
	return voucher.NewSigner(f, ver, nil).Domain(ctx)
}

// readInput reads a file argument, or stdin for "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

// decodeFields parses a JSON field object, keeping numbers exact.
func decodeFields(raw []byte) (map[string]any, error) {
	var fields map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	return fields, nil
}
