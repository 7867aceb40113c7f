// Package identity onboards a participant's long-term chat keypair from
// a BIP-39 recovery phrase: NewIdentity generates one, IdentityFromMnemonic
// recovers one. Derivation follows the SLIP-10-style HMAC-SHA512
// expansion the wider codebase already uses for HD wallets, reduced into
// the chat protocol's own scalar field rather than ed25519's.
package identity

import (
	"crypto/hmac"
	"crypto/sha512"
	"fmt"

	"github.com/sirupsen/logrus"
	bip39 "github.com/tyler-smith/go-bip39"

	"github.com/corechain/chatproto/internal/crypto/curve"
)

const masterHMACKey = "chatproto seed"

func SetIdentityLogger(l *logrus.Logger) { globalLogger = l }

var globalLogger = logrus.New()

// Identity is a participant's long-term chat keypair, derived from a
// recoverable mnemonic rather than drawn fresh.
type Identity struct {
	Mnemonic  string
	SecretKey curve.SecretKey
	PublicKey curve.PublicKey
}

// NewIdentity generates a fresh 128-bit-entropy mnemonic and derives an
// identity from it. The caller must record the mnemonic somewhere safe;
// losing it loses the identity.
func NewIdentity() (*Identity, error) {
	entropy, err := bip39.NewEntropy(128)
	if err != nil {
		return nil, fmt.Errorf("identity: entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, fmt.Errorf("identity: mnemonic: %w", err)
	}
	return IdentityFromMnemonic(mnemonic)
}

// IdentityFromMnemonic recovers an identity deterministically from a
// previously generated mnemonic.
func IdentityFromMnemonic(mnemonic string) (*Identity, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("identity: invalid mnemonic")
	}
	seed := bip39.NewSeed(mnemonic, "")

	mac := hmac.New(sha512.New, []byte(masterHMACKey))
	mac.Write(seed)
	expanded := mac.Sum(nil)

	var h [32]byte
	copy(h[:], expanded[:32])
	sk := curve.SecretKey{Fr: curve.ScalarFromHash(h)}
	pk := curve.PublicKeyOf(sk)

	globalLogger.WithField("pubkey", fmt.Sprintf("%x", pk.Bytes())).Debug("identity: derived chat keypair from mnemonic")

	return &Identity{Mnemonic: mnemonic, SecretKey: sk, PublicKey: pk}, nil
}
