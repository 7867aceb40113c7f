// Package curve is the primitives facade: a thin contract over the
// scalar field Fr and group point Pt used throughout the chat protocol.
// Everything above this package treats Fr/Pt as opaque algebraic values
// and never reaches for secp256k1 internals directly.
package curve

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// Fr is a scalar in the curve's scalar field (mod the group order N).
type Fr struct {
	s secp256k1.ModNScalar
}

// Pt is a point in the curve's additive group.
type Pt struct {
	p secp256k1.JacobianPoint
}

var ErrInvalidEncoding = errors.New("curve: invalid encoding")

// ZeroFr is the additive identity of the scalar field.
func ZeroFr() Fr {
	var z Fr
	z.s.SetInt(0)
	return z
}

// OneFr is the multiplicative identity of the scalar field.
func OneFr() Fr {
	var o Fr
	o.s.SetInt(1)
	return o
}

// RandomFr draws a scalar from a cryptographically strong source.
// Use this, never ScalarFromHash, whenever the spec calls for fresh
// per-message randomness (r_sender, r_owner, chain-rotation seeds).
func RandomFr() (Fr, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return Fr{}, err
	}
	var f Fr
	f.s.SetByteSlice(buf[:])
	return f, nil
}

// ScalarFromHash reduces a SHA-256 digest into a scalar. Deterministic:
// identical input always yields identical output, which is exactly the
// property detrand() and chain-rotation hashing depend on.
func ScalarFromHash(h [32]byte) Fr {
	var f Fr
	f.s.SetByteSlice(h[:])
	return f
}

// ScalarFromBytes decodes a canonical 32-byte big-endian scalar encoding.
func ScalarFromBytes(b []byte) (Fr, error) {
	if len(b) != 32 {
		return Fr{}, ErrInvalidEncoding
	}
	var f Fr
	if overflow := f.s.SetByteSlice(b); overflow {
		return Fr{}, ErrInvalidEncoding
	}
	return f, nil
}

// Bytes returns the canonical 32-byte encoding of the scalar.
func (a Fr) Bytes() [32]byte {
	return a.s.Bytes()
}

func (a Fr) Add(b Fr) Fr {
	var r Fr
	r.s.Add2(&a.s, &b.s)
	return r
}

func (a Fr) Sub(b Fr) Fr {
	var neg secp256k1.ModNScalar
	neg.Set(&b.s).Negate()
	var r Fr
	r.s.Add2(&a.s, &neg)
	return r
}

func (a Fr) Mul(b Fr) Fr {
	var r Fr
	r.s.Mul2(&a.s, &b.s)
	return r
}

// Invert returns 1/a mod N. Panics if a is zero: a chain code or
// cloaking hint is never legitimately zero, so a zero scalar here means
// a caller already violated an upstream invariant.
func (a Fr) Invert() Fr {
	if a.s.IsZero() {
		panic("curve: inversion of zero scalar")
	}
	var r Fr
	r.s.Set(&a.s).InverseNonConst()
	return r
}

func (a Fr) IsZero() bool {
	return a.s.IsZero()
}

func (a Fr) Equal(b Fr) bool {
	return a.s.Equals(&b.s)
}

// BasePoint returns the curve generator G.
func BasePoint() Pt {
	var one secp256k1.ModNScalar
	one.SetInt(1)
	var r secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&one, &r)
	return Pt{p: r}
}

// BaseMul computes s*G.
func BaseMul(s Fr) Pt {
	var r secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&s.s, &r)
	return Pt{p: r}
}

// Mul computes s*P.
func (p Pt) Mul(s Fr) Pt {
	var r secp256k1.JacobianPoint
	secp256k1.ScalarMultNonConst(&s.s, &p.p, &r)
	return Pt{p: r}
}

func (p Pt) Add(q Pt) Pt {
	var r secp256k1.JacobianPoint
	secp256k1.AddNonConst(&p.p, &q.p, &r)
	return Pt{p: r}
}

// Equal compares two points by their affine coordinates.
func (p Pt) Equal(q Pt) bool {
	a, b := p.p, q.p
	a.ToAffine()
	b.ToAffine()
	return a.X.Equals(&b.X) && a.Y.Equals(&b.Y)
}

// Bytes returns the 33-byte compressed encoding of the point.
func (p Pt) Bytes() []byte {
	a := p.p
	a.ToAffine()
	pub := secp256k1.NewPublicKey(&a.X, &a.Y)
	return pub.SerializeCompressed()
}

// PtFromBytes decodes a compressed point encoding.
func PtFromBytes(b []byte) (Pt, error) {
	pub, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return Pt{}, ErrInvalidEncoding
	}
	var j secp256k1.JacobianPoint
	pub.AsJacobian(&j)
	return Pt{p: j}, nil
}

// SecretKey is a participant's long-term chat secret, a scalar in Fr.
type SecretKey struct{ Fr }

// PublicKey is a participant's long-term chat identity, a point in Pt.
type PublicKey struct{ Pt }

// GenerateKeyPair draws a fresh random identity keypair.
func GenerateKeyPair() (SecretKey, PublicKey, error) {
	sk, err := RandomFr()
	if err != nil {
		return SecretKey{}, PublicKey{}, err
	}
	return SecretKey{sk}, PublicKey{BaseMul(sk)}, nil
}

// PublicKeyOf derives the public identity for a secret key.
func PublicKeyOf(sk SecretKey) PublicKey {
	return PublicKey{BaseMul(sk.Fr)}
}

// HashToScalar hashes an arbitrary byte string down to a scalar, with a
// domain-separation tag so the same bytes hashed for two different
// purposes never collide in Fr.
func HashToScalar(domain string, parts ...[]byte) Fr {
	h := sha256.New()
	h.Write([]byte(domain))
	for _, p := range parts {
		h.Write(p)
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return ScalarFromHash(sum)
}

// Detrand returns a scalar that two correspondents can agree on without
// exchange: a domain-separated hash of the public key and chain code.
// Identical (pk, chain) always yields the identical scalar. Never use
// this where the spec calls for fresh per-message randomness (RandomFr);
// it is only for the handful of call sites where both parties must land
// on the same value independently.
func Detrand(pk PublicKey, chain Fr) Fr {
	pkb := pk.Bytes()
	chb := chain.Bytes()
	return HashToScalar("chat/detrand", pkb, chb[:])
}
