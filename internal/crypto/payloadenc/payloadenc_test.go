package payloadenc

import (
	"bytes"
	"testing"

	"github.com/corechain/chatproto/internal/crypto/keyderiv"
)

func TestSealOpenRoundTrip(t *testing.T) {
	var key keyderiv.EncryptionKey
	for i := range key {
		key[i] = byte(i)
	}
	aad := []byte("canonical envelope bytes")
	plaintext := []byte("hello group")

	ct, err := Seal(key, 7, 2, aad, plaintext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	pt, err := Open(key, 7, 2, aad, ct)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(pt, plaintext) {
		t.Fatal("round-tripped plaintext does not match original")
	}
}

func TestOpenRejectsWrongSequence(t *testing.T) {
	var key keyderiv.EncryptionKey
	aad := []byte("aad")
	ct, err := Seal(key, 1, 0, aad, []byte("payload"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := Open(key, 2, 0, aad, ct); err == nil {
		t.Fatal("Open succeeded with the wrong sequence number")
	}
}

func TestOpenRejectsTamperedAAD(t *testing.T) {
	var key keyderiv.EncryptionKey
	ct, err := Seal(key, 1, 0, []byte("aad-a"), []byte("payload"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := Open(key, 1, 0, []byte("aad-b"), ct); err == nil {
		t.Fatal("Open succeeded after the AAD was swapped")
	}
}
