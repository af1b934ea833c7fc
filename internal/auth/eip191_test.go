package auth

import (
	"errors"
	"net/http"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

func TestHashMessage_Deterministic(t *testing.T) {
	msg := []byte("hello UDAO")
	if HashMessage(msg) != HashMessage(msg) {
		t.Fatal("HashMessage is not deterministic")
	}
	if HashMessage([]byte("foo")) == HashMessage([]byte("bar")) {
		t.Fatal("different messages produced the same hash")
	}
}

func TestHashMessage_KnownVector(t *testing.T) {
	msg := []byte("hello")
	want := crypto.Keccak256Hash([]byte("\x19Ethereum Signed Message:\n5hello"))
	if got := HashMessage(msg); got != want {
		t.Errorf("HashMessage = %s, want %s", got.Hex(), want.Hex())
	}
}

// TestRecover_ValidSignature signs a message with a known key, recovers the
// address, and checks it matches.
func TestRecover_ValidSignature(t *testing.T) {
	privKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	expected := crypto.PubkeyToAddress(privKey.PublicKey)

	msg := []byte(`{"action":"voucher.issue","nonce":"abc"}`)
	hash := HashMessage(msg)
	sig, err := crypto.Sign(hash[:], privKey)
	if err != nil {
		t.Fatal(err)
	}

	// V in {0,1}
	got, err := Recover(msg, sig)
	if err != nil {
		t.Fatalf("Recover error: %v", err)
	}
	if got != expected {
		t.Errorf("got %s, want %s", got.Hex(), expected.Hex())
	}

	// V in {27,28}
	sig[64] += 27
	got, err = Recover(msg, sig)
	if err != nil {
		t.Fatalf("Recover error: %v", err)
	}
	if got != expected {
		t.Errorf("got %s, want %s", got.Hex(), expected.Hex())
	}
}

func TestRecover_WrongMessage(t *testing.T) {
	privKey, _ := crypto.GenerateKey()
	expected := crypto.PubkeyToAddress(privKey.PublicKey)

	hash := HashMessage([]byte("original message"))
	sig, _ := crypto.Sign(hash[:], privKey)

	wrong, err := Recover([]byte("tampered message"), sig)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wrong == expected {
		t.Error("tampered message should not recover the original signer")
	}
}

func TestRecover_InvalidSigLength(t *testing.T) {
	_, err := Recover([]byte("msg"), []byte("tooshort"))
	if !errors.Is(err, ErrSignatureLength) {
		t.Fatalf("expected ErrSignatureLength, got %v", err)
	}
}

func TestSignRequest_SetsHeaders(t *testing.T) {
	key := newTestKey(t)
	h := http.Header{}
	if err := SignRequest(h, key, SignedRequest{Action: "a", ExpiresAt: 1, Nonce: "n"}); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{HeaderWallet, HeaderMessage, HeaderSignature} {
		if h.Get(name) == "" {
			t.Errorf("%s not set", name)
		}
	}
	if h.Get(HeaderWallet) != key.Address().Hex() {
		t.Errorf("wallet header = %s", h.Get(HeaderWallet))
	}
}
