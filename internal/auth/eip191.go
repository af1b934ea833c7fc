package auth

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Header names carrying a wallet-signed request.
const (
	HeaderWallet    = "X-Wallet-Address"
	HeaderMessage   = "X-Signed-Message"
	HeaderSignature = "X-Wallet-Signature"
)

var ErrSignatureLength = errors.New("invalid signature length")

// HashMessage constructs the EIP-191 personal_sign hash:
// keccak256("\x19Ethereum Signed Message:\n" + len(msg) + msg)
func HashMessage(msg []byte) common.Hash {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(msg))
	return crypto.Keccak256Hash([]byte(prefix), msg)
}

// Recover extracts the signer address from an EIP-191 signature.
// sig must be 65 bytes (R || S || V), with V in {0,1} or {27,28}.
func Recover(msg []byte, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, ErrSignatureLength
	}
	hash := HashMessage(msg)

	sigCopy := make([]byte, 65)
	copy(sigCopy, sig)
	if sigCopy[64] >= 27 {
		sigCopy[64] -= 27
	}

	pub, err := crypto.SigToPub(hash[:], sigCopy)
	if err != nil {
		return common.Address{}, fmt.Errorf("ecrecover: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// DigestSigner signs a 32-byte hash, returning R || S || V.
type DigestSigner interface {
	Address() common.Address
	SignDigest(digest common.Hash) ([]byte, error)
}

// SignRequest personal_signs req with key and sets the three auth headers on h.
func SignRequest(h http.Header, key DigestSigner, req SignedRequest) error {
	msg, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal signed request: %w", err)
	}
	sig, err := key.SignDigest(HashMessage(msg))
	if err != nil {
		return fmt.Errorf("sign request: %w", err)
	}
	h.Set(HeaderWallet, key.Address().Hex())
	h.Set(HeaderMessage, base64.StdEncoding.EncodeToString(msg))
	h.Set(HeaderSignature, hexutil.Encode(sig))
	return nil
}
