// Package keyderiv is the key-derivation kernel: per-message encryption
// keys, sender/recipient cloaking, and chain-code rotation. Every
// function here is pure and CPU-bound; none of it ever blocks or needs
// a goroutine of its own.
package keyderiv

import (
	"crypto/sha256"

	"github.com/corechain/chatproto/internal/crypto/curve"
)

// EncryptionKey is the shared symmetric seed both correspondents of a
// message derive independently; it is never transmitted.
type EncryptionKey [32]byte

// ComputeEncryptionKey implements
//
//	K = H( recipient_cloaking_hint · ownerChain · peerPkey ,
//	       sender_cloaking_hint    · peerChain  · ownerPkey )
//
// ownerPkey/ownerChain is one endpoint's identity (the group/channel
// owner for a group message, or the same owner on both sides for a
// channel's self-addressed broadcast); peerPkey/peerChain is the other
// endpoint's identity as found by roster lookup. Both endpoints land on
// the same K by passing the same role assignment: the owner always fills
// the owner slots and the peer the peer slots, whichever side computes.
func ComputeEncryptionKey(
	recipientCloakingHint curve.Fr,
	ownerChain curve.Fr,
	peerPkey curve.PublicKey,
	senderCloakingHint curve.Fr,
	peerChain curve.Fr,
	ownerPkey curve.PublicKey,
) EncryptionKey {
	left := peerPkey.Mul(recipientCloakingHint.Mul(ownerChain))
	right := ownerPkey.Mul(senderCloakingHint.Mul(peerChain))

	h := sha256.New()
	h.Write(left.Bytes())
	h.Write(right.Bytes())
	var out EncryptionKey
	copy(out[:], h.Sum(nil))
	return out
}

// CloakedRecipient is the output of cloaking a group/channel owner's
// identity for one message, using fresh randomness rOwner, the sender's
// chain code, and the owner's own current chain ownerChain:
//
//	recipient             = rOwner · senderChain · ownerPkey
//	recipientCloakingHint = rOwner · senderChain
//	recipientKeyingHint   = recipientCloakingHint · ownerPkey · ownerChain⁻¹
//
// recipientKeyingHint is built from the identity point ownerPkey, not G:
// that is what makes recipient == recipientKeyingHint · ownerChain hold,
// which is the equation every recipient-recognition probe in this package
// tests. Cloaking by G instead would require ownerPkey == ownerChain · G,
// i.e. a chain code equal to a secret key — never true.
type CloakedRecipient struct {
	Recipient             curve.Pt
	RecipientKeyingHint   curve.Pt
	RecipientCloakingHint curve.Fr
}

// CloakRecipient cloaks ownerPkey using fresh randomness rOwner, the
// sender's chain code, and ownerChain — the owner's own current chain,
// which is what a recipient-recognition probe will multiply the keying
// hint by.
func CloakRecipient(ownerPkey curve.PublicKey, ownerChain, rOwner, senderChain curve.Fr) CloakedRecipient {
	factor := rOwner.Mul(senderChain)
	return CloakedRecipient{
		Recipient:             ownerPkey.Mul(factor),
		RecipientKeyingHint:   ownerPkey.Mul(factor.Mul(ownerChain.Invert())),
		RecipientCloakingHint: factor,
	}
}

// CloakedSender is the output of cloaking a sender's identity for one
// message, using fresh randomness rSender, the owner's (recipient's)
// chain code, and the sender's own current chain senderChain:
//
//	sender             = rSender · ownerChain · senderPkey
//	senderCloakingHint = rSender · ownerChain
//	senderKeyingHint   = senderCloakingHint · senderPkey · senderChain⁻¹
//
// As with CloakRecipient, senderKeyingHint cloaks the identity point
// senderPkey, not G, so that sender == senderKeyingHint · senderChain
// holds — the equation Roster.FindSenderChain and every other
// sender-recognition probe tests.
type CloakedSender struct {
	Sender             curve.Pt
	SenderKeyingHint   curve.Pt
	SenderCloakingHint curve.Fr
}

// CloakSender cloaks senderPkey using fresh randomness rSender, the
// owner's chain code, and senderChain — the sender's own current chain.
func CloakSender(senderPkey curve.PublicKey, senderChain, rSender, ownerChain curve.Fr) CloakedSender {
	factor := rSender.Mul(ownerChain)
	return CloakedSender{
		Sender:             senderPkey.Mul(factor),
		SenderKeyingHint:   senderPkey.Mul(factor.Mul(senderChain.Invert())),
		SenderCloakingHint: factor,
	}
}

// NewChainCode derives a party's own next chain code from its own public
// key and the previous chain: seed is fresh per-call randomness, and
//
//	next = H(seed · pk || prev)
//
// Use this for self-derived chains only (owner_chain, owner_rekeying_chain,
// a member's initial chain at roster-join time) — the caller holds both
// pk and seed, so there is no recipient-side recovery step.
func NewChainCode(pk curve.PublicKey, prev curve.Fr) (seed curve.Fr, next curve.Fr, err error) {
	seed, err = curve.RandomFr()
	if err != nil {
		return curve.Fr{}, curve.Fr{}, err
	}
	cg := pk.Mul(seed)
	prevBytes := prev.Bytes()
	next = curve.HashToScalar("chat/chain-rotate", cg.Bytes(), prevBytes[:])
	return seed, next, nil
}

// NewSharedChainSeed derives a chain-rotation seed meant to be handed to
// an entire roster at once via cloaked points seed · member_pk (see
// Roster.GenerateRekeyingMessages), rather than to a single self-derived
// identity:
//
//	next = H(seed · G || prev)
//
// Unlike NewChainCode, next here does not depend on any one party's
// pubkey: a member holding seed·member_pk recovers seed·G as
// (seed·member_pk) · member_skey⁻¹ and so can reproduce next on its own,
// via RecoverSharedChain, without ever learning seed itself.
func NewSharedChainSeed(prev curve.Fr) (seed curve.Fr, next curve.Fr, err error) {
	seed, err = curve.RandomFr()
	if err != nil {
		return curve.Fr{}, curve.Fr{}, err
	}
	next = RecoverSharedChain(curve.BaseMul(seed), prev)
	return seed, next, nil
}

// RecoverSharedChain reproduces the chain NewSharedChainSeed derived for
// a broadcaster, given the seed·G point recovered from one of the
// cloaked per-member points and the previous chain.
func RecoverSharedChain(seedG curve.Pt, prev curve.Fr) curve.Fr {
	prevBytes := prev.Bytes()
	return curve.HashToScalar("chat/chain-rotate-shared", seedG.Bytes(), prevBytes[:])
}

