package schnorr

import (
	"crypto/sha256"
	"testing"

	"github.com/corechain/chatproto/internal/crypto/curve"
)

func TestSignVerify(t *testing.T) {
	x, X, err := curve.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	msgHash := sha256.Sum256([]byte("chat message bytes"))

	sig, err := Sign(x.Fr, X, msgHash)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !sig.Verify(X, msgHash) {
		t.Fatal("Verify failed for valid signature")
	}
}

func TestVerifyRejectsWrongMessage(t *testing.T) {
	x, X, err := curve.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	msgHash := sha256.Sum256([]byte("message a"))
	otherHash := sha256.Sum256([]byte("message b"))

	sig, err := Sign(x.Fr, X, msgHash)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if sig.Verify(X, otherHash) {
		t.Fatal("Verify passed against a different message")
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	x, _, err := curve.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	_, otherX, err := curve.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	msgHash := sha256.Sum256([]byte("chat message bytes"))

	sig, err := Sign(x.Fr, otherX, msgHash)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if sig.Verify(otherX, msgHash) {
		t.Fatal("Verify passed for a signature keyed to a different public point")
	}
}
