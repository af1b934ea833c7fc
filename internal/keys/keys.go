// Package keys loads the secp256k1 key that signs vouchers.
//
// Two sources are supported: a raw hex private key (development, CI) and an
// encrypted go-ethereum JSON keystore. When both are configured the raw key
// wins.
package keys

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/udao-org/udao-voucher/internal/config"
	"github.com/udao-org/udao-voucher/internal/voucher"
)

// PrivateKey signs with an in-memory key.
type PrivateKey struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

// FromHex parses a 32-byte hex private key, with or without "0x".
func FromHex(s string) (*PrivateKey, error) {
	keyHex := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(keyHex) != 64 {
		return nil, fmt.Errorf("keys: private key must be a 32-byte hex string (got %d chars)", len(keyHex))
	}
	k, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("keys: parse private key: %w", err)
	}
	return FromECDSA(k), nil
}

func FromECDSA(k *ecdsa.PrivateKey) *PrivateKey {
	return &PrivateKey{key: k, addr: crypto.PubkeyToAddress(k.PublicKey)}
}

func (p *PrivateKey) Address() common.Address { return p.addr }

// SignDigest returns r||s||v with v in {27, 28}.
func (p *PrivateKey) SignDigest(digest common.Hash) ([]byte, error) {
	sig, err := crypto.Sign(digest[:], p.key)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}

// Keystore signs with an account held in an encrypted keystore directory.
// A locked account refuses to sign.
type Keystore struct {
	ks      *keystore.KeyStore
	account accounts.Account
}

// OpenKeystore finds addr in dir and, when passphrase is non-empty,
// unlocks it for the lifetime of the process.
func OpenKeystore(dir string, addr common.Address, passphrase string) (*Keystore, error) {
	ks := keystore.NewKeyStore(dir, keystore.StandardScryptN, keystore.StandardScryptP)
	acct, err := ks.Find(accounts.Account{Address: addr})
	if err != nil {
		return nil, fmt.Errorf("keys: find %s in %s: %w", addr.Hex(), dir, err)
	}
	k := &Keystore{ks: ks, account: acct}
	if passphrase != "" {
		if err := k.Unlock(passphrase); err != nil {
			return nil, err
		}
	}
	return k, nil
}

func (k *Keystore) Address() common.Address { return k.account.Address }

func (k *Keystore) Unlock(passphrase string) error {
	if err := k.ks.Unlock(k.account, passphrase); err != nil {
		return fmt.Errorf("keys: unlock %s: %w", k.account.Address.Hex(), err)
	}
	return nil
}

func (k *Keystore) Lock() error {
	return k.ks.Lock(k.account.Address)
}

// SignDigest returns r||s||v with v in {27, 28}. It fails with
// keystore.ErrLocked while the account is locked.
func (k *Keystore) SignDigest(digest common.Hash) ([]byte, error) {
	sig, err := k.ks.SignHash(k.account, digest[:])
	if err != nil {
		if errors.Is(err, keystore.ErrLocked) {
			return nil, fmt.Errorf("keys: %s: %w", k.account.Address.Hex(), err)
		}
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}

// Load returns the key configured in cfg.
func Load(cfg config.SignerConfig) (voucher.Key, error) {
	switch {
	case cfg.PrivateKey != "":
		k, err := FromHex(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		return k, nil
	case cfg.KeystoreDir != "" && cfg.KeystoreAddress != "":
		k, err := OpenKeystore(cfg.KeystoreDir, common.HexToAddress(cfg.KeystoreAddress), cfg.KeystorePassphrase)
		if err != nil {
			return nil, err
		}
		return k, nil
	}
	return nil, fmt.Errorf("keys: no signing key configured")
}
