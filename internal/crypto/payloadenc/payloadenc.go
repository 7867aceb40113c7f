// Package payloadenc encrypts and decrypts EncryptedMessage payload
// bodies. The AEAD primitive is ChaCha20-Poly1305, keyed by SHA-256 of
// the key-derivation kernel's shared encryption key, with a nonce
// derived deterministically from the message's own (sequence, msg_nbr)
// fields rather than transmitted alongside the ciphertext.
package payloadenc

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/corechain/chatproto/internal/crypto/keyderiv"
)

var ErrOpenFailed = errors.New("payloadenc: authentication failed")

// Seal encrypts plaintext under key, additionally authenticating aad
// (the canonical bytes of everything in the output except the payload
// itself, so a ciphertext can never be replayed onto a different
// envelope). sequence and msgNbr fix the nonce; the caller must never
// reuse the same (key, sequence, msgNbr) triple for two different
// plaintexts.
func Seal(key keyderiv.EncryptionKey, sequence uint64, msgNbr uint32, aad, plaintext []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	nonce := deriveNonce(sequence, msgNbr)
	return aead.Seal(nil, nonce, plaintext, aad), nil
}

// Open decrypts and authenticates a ciphertext produced by Seal.
func Open(key keyderiv.EncryptionKey, sequence uint64, msgNbr uint32, aad, ciphertext []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	nonce := deriveNonce(sequence, msgNbr)
	out, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrOpenFailed
	}
	return out, nil
}

func newAEAD(key keyderiv.EncryptionKey) (chacha20poly1305.AEAD, error) {
	k := sha256.Sum256(key[:])
	return chacha20poly1305.New(k[:])
}

func deriveNonce(sequence uint64, msgNbr uint32) []byte {
	nonce := make([]byte, chacha20poly1305.NonceSize)
	binary.BigEndian.PutUint64(nonce[0:8], sequence)
	binary.BigEndian.PutUint32(nonce[8:12], msgNbr)
	return nonce
}
