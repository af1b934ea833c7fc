package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// ── helpers ───────────────────────────────────────────────────────────────────

const (
	// Anvil account #0
	testPrivKeyHex  = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testSignerHex   = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	testContractHex = "0xAbc0000000000000000000000000000000000123"
	contentFields   = `{"tokenId":1,"uri":"ipfs://x","redeemer":"0x1111111111111111111111111111111111111111","isCoachingEnabled":true,"name":"N","description":"D"}`
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func domainArgs(family string) []string {
	return []string{"--family", family, "--contract", testContractHex, "--chain-id", "31337"}
}

func signContent(t *testing.T, fields string) string {
	t.Helper()
	args := append([]string{"sign"}, domainArgs("content")...)
	args = append(args, "--key", testPrivKeyHex, "-")
	out, err := run(t, fields, args...)
	if err != nil {
		t.Fatalf("sign: %v\n%s", err, out)
	}
	return out
}

// ── families ──────────────────────────────────────────────────────────────────

func TestFamilies(t *testing.T) {
	out, err := run(t, "", "families")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"UDAOCMinter/1",
		"RoleVoucher(address redeemer,uint256 validUntil,uint256 roleId)",
		"transfer",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("families output missing %q:\n%s", want, out)
		}
	}
}

// ── sign / verify ─────────────────────────────────────────────────────────────

func TestSignThenVerify(t *testing.T) {
	signed := signContent(t, contentFields)
	if !strings.Contains(signed, `"signature": "0x`) {
		t.Fatalf("no signature in output:\n%s", signed)
	}
	path := writeFile(t, "voucher.json", signed)

	args := append([]string{"verify"}, domainArgs("content")...)
	args = append(args, "--signer", testSignerHex, path)
	out, err := run(t, "", args...)
	if err != nil {
		t.Fatalf("verify: %v\n%s", err, out)
	}
	if !strings.Contains(out, "signer: "+testSignerHex) {
		t.Errorf("verify output:\n%s", out)
	}
}

func TestSign_Deterministic(t *testing.T) {
	if signContent(t, contentFields) != signContent(t, contentFields) {
		t.Error("same fields produced different vouchers")
	}
}

func TestVerify_WrongSigner(t *testing.T) {
	path := writeFile(t, "voucher.json", signContent(t, contentFields))

	args := append([]string{"verify"}, domainArgs("content")...)
	args = append(args, "--signer", "0x1111111111111111111111111111111111111111", path)
	if _, err := run(t, "", args...); err == nil {
		t.Fatal("expected verification failure")
	}
}

func TestVerify_OtherChain(t *testing.T) {
	path := writeFile(t, "voucher.json", signContent(t, contentFields))

	args := []string{"verify", "--family", "content", "--contract", testContractHex,
		"--chain-id", "1", "--signer", testSignerHex, path}
	if _, err := run(t, "", args...); err == nil {
		t.Fatal("voucher for chain 31337 verified on chain 1")
	}
}

func TestSign_SchemaMismatch(t *testing.T) {
	args := append([]string{"sign"}, domainArgs("content")...)
	args = append(args, "--key", testPrivKeyHex, "-")
	_, err := run(t, `{"tokenId":"abc"}`, args...)
	if err == nil || !strings.Contains(err.Error(), "schema mismatch") {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}

func TestSign_RequiresChain(t *testing.T) {
	_, err := run(t, contentFields, "sign", "--family", "content", "--contract", testContractHex, "--key", testPrivKeyHex, "-")
	if err == nil || !strings.Contains(err.Error(), "--chain-id") {
		t.Fatalf("expected missing chain error, got %v", err)
	}
}

func TestSign_NegativeChainID(t *testing.T) {
	_, err := run(t, contentFields, "sign", "--family", "content", "--contract", testContractHex,
		"--chain-id", "-31337", "--key", testPrivKeyHex, "-")
	if err == nil || !strings.Contains(err.Error(), "--chain-id") {
		t.Fatalf("expected bad chain id error, got %v", err)
	}
}

func TestSign_UnknownFamily(t *testing.T) {
	args := append([]string{"sign"}, domainArgs("airdrop")...)
	args = append(args, "--key", testPrivKeyHex, "-")
	_, err := run(t, contentFields, args...)
	if err == nil || !strings.Contains(err.Error(), "unknown voucher family") {
		t.Fatalf("expected unknown family, got %v", err)
	}
}

// ── digest ────────────────────────────────────────────────────────────────────

func TestDigest_MatchesReference(t *testing.T) {
	path := writeFile(t, "fields.json", contentFields)
	args := append([]string{"digest"}, domainArgs("content")...)
	out, err := run(t, "", append(args, path)...)
	if err != nil {
		t.Fatalf("digest: %v\n%s", err, out)
	}
	for _, want := range []string{"typehash:", "separator:", "digest:"} {
		if !strings.Contains(out, want) {
			t.Errorf("digest output missing %q:\n%s", want, out)
		}
	}
}

func TestDigest_AcceptsSignedVoucher(t *testing.T) {
	signed := signContent(t, contentFields)
	args := append([]string{"digest"}, domainArgs("content")...)
	out, err := run(t, signed, append(args, "-")...)
	if err != nil {
		t.Fatalf("digest: %v\n%s", err, out)
	}
}
