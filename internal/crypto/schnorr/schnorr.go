// Package schnorr implements Schnorr proof-of-knowledge signatures over
// the curve package's Fr/Pt types, grounded on the same construction the
// teacher corpus uses for its keygen proofs of knowledge (commit to a
// nonce, hash-challenge, respond).
package schnorr

import (
	"crypto/sha256"
	"errors"

	"github.com/corechain/chatproto/internal/crypto/curve"
)

// Signature is a Schnorr signature (R, s) over a public point X,
// proving knowledge of x such that X = x*G.
type Signature struct {
	R curve.Pt
	S curve.Fr
}

var ErrVerifyFailed = errors.New("schnorr: signature verification failed")

// Sign produces a signature binding secret x (whose public point is X =
// x*G) to msgHash. msgHash is the canonical hash of whatever wire object
// is being authenticated — the caller is responsible for canonical
// encoding (see internal/chat.canonicalBytes).
func Sign(x curve.Fr, X curve.PublicKey, msgHash [32]byte) (Signature, error) {
	k, err := curve.RandomFr()
	if err != nil {
		return Signature{}, err
	}
	R := curve.BaseMul(k)
	e := challenge(X.Pt, R, msgHash)
	s := k.Add(e.Mul(x))
	return Signature{R: R, S: s}, nil
}

// Verify checks sig against public point X and the same canonical
// msgHash used at signing time. Verification depends only on X, sig and
// msgHash — exactly the invariant the wire format requires: a verifier
// recovers everything it needs from the output itself.
func (sig Signature) Verify(X curve.PublicKey, msgHash [32]byte) bool {
	e := challenge(X.Pt, sig.R, msgHash)
	lhs := curve.BaseMul(sig.S)
	rhs := sig.R.Add(X.Pt.Mul(e))
	return lhs.Equal(rhs)
}

// challenge computes e = H(X || R || msgHash) reduced into Fr.
func challenge(X, R curve.Pt, msgHash [32]byte) curve.Fr {
	h := sha256.New()
	h.Write(X.Bytes())
	h.Write(R.Bytes())
	h.Write(msgHash[:])
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return curve.ScalarFromHash(sum)
}
