package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/udao-org/udao-voucher/internal/config"
	"github.com/udao-org/udao-voucher/internal/keys"
	"github.com/udao-org/udao-voucher/internal/voucher"
)

func newRootCmd() *cobra.Command {
	ro := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "voucherctl",
		Short:         "Sign and verify UDAO EIP-712 vouchers.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	ro.AddFlags(cmd)

	cmd.AddCommand(newFamiliesCmd())
	cmd.AddCommand(newSignCmd(ro))
	cmd.AddCommand(newVerifyCmd(ro))
	cmd.AddCommand(newDigestCmd(ro))
	return cmd
}

func (o *rootOptions) withTimeout(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), o.Timeout)
}

// ── families ──────────────────────────────────────────────────────────────────

func newFamiliesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "families",
		Short: "List voucher families with their domain and type string.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "FAMILY\tDOMAIN\tACCOUNT\tTYPE")
			for _, f := range voucher.Families() {
				fmt.Fprintf(w, "%s\t%s/%s\t%s\t%s\n",
					f.ID, f.DomainName, f.DomainVersion, f.AccountField, f.Schema.EncodeType())
			}
			return w.Flush()
		},
	}
}

// ── sign ──────────────────────────────────────────────────────────────────────

type signOptions struct {
	domainOptions
	Key                string
	KeystoreDir        string
	KeystoreAddress    string
	KeystorePassphrase string
}

func (o *signOptions) AddFlags(cmd *cobra.Command) {
	o.domainOptions.AddFlags(cmd)
	cmd.Flags().StringVar(&o.Key, "key", "", "hex private key of the signer")
	cmd.Flags().StringVar(&o.KeystoreDir, "keystore", "", "keystore directory holding the signer")
	cmd.Flags().StringVar(&o.KeystoreAddress, "address", "", "signer address inside --keystore")
	cmd.Flags().StringVar(&o.KeystorePassphrase, "passphrase", "", "passphrase unlocking --address")
}

func newSignCmd(ro *rootOptions) *cobra.Command {
	o := &signOptions{}
	cmd := &cobra.Command{
		Use:   "sign --family F --contract ADDR (--chain-id N | --rpc-url URL) FIELDS.json",
		Short: "Sign a field object and print the voucher.",
		Long: `Sign reads a JSON field object (or stdin for "-"), signs it for the
selected family and prints the voucher with its signature appended.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := ro.logger()
			ctx, cancel := ro.withTimeout(cmd)
			defer cancel()

			f, err := o.family()
			if err != nil {
				return err
			}
			raw, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			fields, err := decodeFields(raw)
			if err != nil {
				return err
			}
			key, err := keys.Load(config.SignerConfig{
				PrivateKey:         o.Key,
				KeystoreDir:        o.KeystoreDir,
				KeystoreAddress:    o.KeystoreAddress,
				KeystorePassphrase: o.KeystorePassphrase,
			})
			if err != nil {
				return err
			}
			ver, done, err := o.verifier(ctx, log)
			if err != nil {
				return err
			}
			defer done()

			v, err := voucher.NewSigner(f, ver, key).Sign(ctx, fields)
			if err != nil {
				return err
			}
			log.Debug("voucher signed",
				zap.String("family", f.ID),
				zap.String("digest", v.Digest().Hex()),
				zap.String("signer", key.Address().Hex()))

			out, err := json.MarshalIndent(v, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
	o.AddFlags(cmd)
	return cmd
}

// ── verify ────────────────────────────────────────────────────────────────────

type verifyOptions struct {
	domainOptions
	Signer string
}

func (o *verifyOptions) AddFlags(cmd *cobra.Command) {
	o.domainOptions.AddFlags(cmd)
	cmd.Flags().StringVar(&o.Signer, "signer", "", "expected signer address; only print the recovered one when empty")
}

func newVerifyCmd(ro *rootOptions) *cobra.Command {
	o := &verifyOptions{}
	cmd := &cobra.Command{
		Use:   "verify --family F --contract ADDR (--chain-id N | --rpc-url URL) VOUCHER.json",
		Short: "Recover a voucher's signer the way the verifying contract does.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := ro.logger()
			ctx, cancel := ro.withTimeout(cmd)
			defer cancel()

			if o.Signer != "" && !common.IsHexAddress(o.Signer) {
				return fmt.Errorf("invalid --signer %q", o.Signer)
			}
			f, err := o.family()
			if err != nil {
				return err
			}
			raw, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			d, err := o.domain(ctx, f, log)
			if err != nil {
				return err
			}
			v, err := voucher.ParseVoucher(f, d, raw)
			if err != nil {
				return err
			}
			got, err := voucher.Recover(f, d, v)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "digest: %s\nsigner: %s\n", v.Digest().Hex(), got.Hex())
			if o.Signer != "" {
				return voucher.Verify(f, d, v, common.HexToAddress(o.Signer))
			}
			return nil
		},
	}
	o.AddFlags(cmd)
	return cmd
}

// ── digest ────────────────────────────────────────────────────────────────────

func newDigestCmd(ro *rootOptions) *cobra.Command {
	o := &domainOptions{}
	cmd := &cobra.Command{
		Use:   "digest --family F --contract ADDR (--chain-id N | --rpc-url URL) FIELDS.json",
		Short: "Print the typed-data digest of a field object, cross-checked against go-ethereum.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := ro.logger()
			ctx, cancel := ro.withTimeout(cmd)
			defer cancel()

			f, err := o.family()
			if err != nil {
				return err
			}
			raw, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			fields, err := decodeFields(raw)
			if err != nil {
				return err
			}
			// A voucher file carries its signature; it is not a field.
			delete(fields, "signature")

			values, err := f.Schema.Order(fields)
			if err != nil {
				return err
			}
			d, err := o.domain(ctx, f, log)
			if err != nil {
				return err
			}
			ours, err := f.Digest(d, values...)
			if err != nil {
				return err
			}
			ref, err := voucher.ReferenceDigest(f, d, values...)
			if err != nil {
				return fmt.Errorf("reference digest: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "type:      %s\n", f.Schema.EncodeType())
			fmt.Fprintf(out, "typehash:  %s\n", f.Schema.TypeHash().Hex())
			fmt.Fprintf(out, "separator: %s\n", d.Separator().Hex())
			fmt.Fprintf(out, "digest:    %s\n", ours.Hex())
			if ref != ours {
				return fmt.Errorf("digest mismatch: go-ethereum computes %s", ref.Hex())
			}
			return nil
		},
	}
	o.AddFlags(cmd)
	return cmd
}
