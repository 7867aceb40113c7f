// Package chat implements the group and channel messaging core: the
// wire codec, roster, state machines, and aggregator that sit on top of
// the crypto primitives in internal/crypto.
package chat

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/corechain/chatproto/internal/crypto/curve"
	"github.com/corechain/chatproto/internal/crypto/keyderiv"
	"github.com/corechain/chatproto/internal/crypto/payloadenc"
	"github.com/corechain/chatproto/internal/crypto/schnorr"
)

// DecodeError marks a malformed wire object: unknown payload tag, a
// length mismatch, or non-UTF8 bytes where text was expected.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string { return "chat: decode: " + e.Reason }

var (
	ErrSignatureInvalid = errors.New("chat: signature verification failed")
	ErrMsgNbrOutOfRange = errors.New("chat: msg_nbr must be less than msg_tot")
)

// payloadTag identifies which MessagePayload variant follows on the wire.
type payloadTag byte

const (
	tagEncryptedMessage    payloadTag = 1
	tagEncryptedChainCodes payloadTag = 2
)

// MessagePayload is the on-wire body of a ChatMessageOutput. Most
// payloads (every IncomingChatPayload variant) travel as an opaque AEAD
// ciphertext, EncryptedMessage. EncryptedChainCodes is the one exception:
// a chain-rotation broadcast carries its cloaked points in the clear,
// since each point must be usable by every recipient's own secret key
// without any of them sharing a common decryption key first.
type MessagePayload interface {
	tag() payloadTag
	encode() []byte
}

// EncryptedMessage carries an AEAD-sealed IncomingChatPayload.
type EncryptedMessage struct {
	Ciphertext []byte
}

func (EncryptedMessage) tag() payloadTag { return tagEncryptedMessage }

func (p EncryptedMessage) encode() []byte {
	buf := make([]byte, 4+len(p.Ciphertext))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(p.Ciphertext)))
	copy(buf[4:], p.Ciphertext)
	return buf
}

// EncryptedChainCodes carries the cloaked points of a rekeying broadcast
// (see Roster.GenerateRekeyingMessages): one seed·member_pk per surviving
// member of the chunk this output covers. Despite the name it is never
// AEAD-sealed — the points themselves are the payload.
type EncryptedChainCodes struct {
	Points []curve.Pt
}

func (EncryptedChainCodes) tag() payloadTag { return tagEncryptedChainCodes }

func (p EncryptedChainCodes) encode() []byte {
	buf := make([]byte, 4, 4+33*len(p.Points))
	binary.LittleEndian.PutUint32(buf, uint32(len(p.Points)))
	for _, pt := range p.Points {
		buf = append(buf, pt.Bytes()...)
	}
	return buf
}

// ChatMessageOutput is the canonical on-chain wire entity. Field order
// here is the field order of the signature hash and of on-chain
// serialization; the two must never diverge.
type ChatMessageOutput struct {
	Recipient             curve.Pt
	RecipientKeyingHint   curve.Pt
	RecipientCloakingHint curve.Fr
	Sender                curve.Pt
	SenderKeyingHint      curve.Pt
	SenderCloakingHint    curve.Fr
	Sequence              uint64
	MsgNbr                uint32
	MsgTot                uint32
	Created               time.Time
	Payload               MessagePayload
	Signature             schnorr.Signature
}

// CloakRecipient fills in the recipient-side fields using the kernel's
// recipient cloaking, given fresh randomness rOwner, the sender's chain
// code, and ownerChain — the recipient's own current chain, which a
// recognition probe elsewhere will multiply the resulting keying hint by.
func (m *ChatMessageOutput) CloakRecipient(ownerPkey curve.PublicKey, ownerChain, rOwner, senderChain curve.Fr) {
	c := keyderiv.CloakRecipient(ownerPkey, ownerChain, rOwner, senderChain)
	m.Recipient = c.Recipient
	m.RecipientKeyingHint = c.RecipientKeyingHint
	m.RecipientCloakingHint = c.RecipientCloakingHint
}

// CloakSender fills in the sender-side fields using the kernel's sender
// cloaking, given fresh randomness rSender, the recipient's (owner's)
// chain code, and senderChain — the sender's own current chain.
func (m *ChatMessageOutput) CloakSender(senderPkey curve.PublicKey, senderChain, rSender, ownerChain curve.Fr) {
	c := keyderiv.CloakSender(senderPkey, senderChain, rSender, ownerChain)
	m.Sender = c.Sender
	m.SenderKeyingHint = c.SenderKeyingHint
	m.SenderCloakingHint = c.SenderCloakingHint
}

// Sign signs the output with the sender's secret key twisted by its own
// sender_cloaking_hint, so that Verify needs nothing beyond the output's
// own cloaked sender field. senderSkey must be the secret key underlying
// whichever public key CloakSender was called with.
func (m *ChatMessageOutput) Sign(senderSkey curve.SecretKey) error {
	if m.MsgNbr >= m.MsgTot {
		return ErrMsgNbrOutOfRange
	}
	x := senderSkey.Fr.Mul(m.SenderCloakingHint)
	X := curve.PublicKey{Pt: m.Sender}
	sig, err := schnorr.Sign(x, X, m.canonicalHash())
	if err != nil {
		return fmt.Errorf("chat: sign output: %w", err)
	}
	m.Signature = sig
	return nil
}

// Verify checks the signature against the output's own cloaked sender.
func (m *ChatMessageOutput) Verify() bool {
	X := curve.PublicKey{Pt: m.Sender}
	return m.Signature.Verify(X, m.canonicalHash())
}

// headerBytes serializes every field up to but excluding the payload,
// in wire order. This is what AEAD sealing authenticates as associated
// data: it cannot include the payload itself, since for EncryptedMessage
// the payload *is* the ciphertext being produced.
func (m *ChatMessageOutput) headerBytes() []byte {
	var buf []byte
	buf = append(buf, m.Recipient.Bytes()...)
	buf = append(buf, m.RecipientKeyingHint.Bytes()...)
	rch := m.RecipientCloakingHint.Bytes()
	buf = append(buf, rch[:]...)
	buf = append(buf, m.Sender.Bytes()...)
	buf = append(buf, m.SenderKeyingHint.Bytes()...)
	sch := m.SenderCloakingHint.Bytes()
	buf = append(buf, sch[:]...)

	var seqBuf [8]byte
	binary.LittleEndian.PutUint64(seqBuf[:], m.Sequence)
	buf = append(buf, seqBuf[:]...)

	var nbrBuf, totBuf [4]byte
	binary.LittleEndian.PutUint32(nbrBuf[:], m.MsgNbr)
	binary.LittleEndian.PutUint32(totBuf[:], m.MsgTot)
	buf = append(buf, nbrBuf[:]...)
	buf = append(buf, totBuf[:]...)

	var createdBuf [8]byte
	binary.LittleEndian.PutUint64(createdBuf[:], uint64(m.Created.UTC().UnixNano()))
	buf = append(buf, createdBuf[:]...)

	return buf
}

// canonicalBytes serializes the full output preceding the signature —
// header plus payload tag and body — for both hashing and on-chain
// transport.
func (m *ChatMessageOutput) canonicalBytes() []byte {
	buf := m.headerBytes()
	buf = append(buf, byte(m.Payload.tag()))
	buf = append(buf, m.Payload.encode()...)
	return buf
}

func (m *ChatMessageOutput) canonicalHash() [32]byte {
	return sha256.Sum256(m.canonicalBytes())
}

// Hash is the content hash used to identify an output, e.g. as
// UtxoInfo.ID — a hash of the canonical bytes plus the signature, so two
// outputs that differ only by signature get different IDs (Sign draws a
// fresh nonce, so signing the same body twice yields two IDs).
func (m *ChatMessageOutput) Hash() [32]byte {
	h := sha256.New()
	h.Write(m.canonicalBytes())
	h.Write(m.Signature.R.Bytes())
	sBytes := m.Signature.S.Bytes()
	h.Write(sBytes[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// SetEncryptedPayload seals plaintext under key and installs the result
// as this output's EncryptedMessage payload. Must be called before Sign
// (the signature covers the sealed ciphertext, not the plaintext).
func (m *ChatMessageOutput) SetEncryptedPayload(key keyderiv.EncryptionKey, plaintext []byte) error {
	aad := m.headerBytes()
	ct, err := payloadenc.Seal(key, m.Sequence, m.MsgNbr, aad, plaintext)
	if err != nil {
		return fmt.Errorf("chat: seal payload: %w", err)
	}
	m.Payload = EncryptedMessage{Ciphertext: ct}
	return nil
}

// Decrypt opens an EncryptedMessage payload under key and decodes the
// resulting plaintext into an IncomingChatPayload. It is a decode error
// for m.Payload to be anything other than EncryptedMessage.
func (m *ChatMessageOutput) Decrypt(key keyderiv.EncryptionKey) (IncomingChatPayload, error) {
	em, ok := m.Payload.(EncryptedMessage)
	if !ok {
		return nil, &DecodeError{Reason: "Decrypt called on a non-EncryptedMessage payload"}
	}
	aad := m.headerBytes()
	plaintext, err := payloadenc.Open(key, m.Sequence, m.MsgNbr, aad, em.Ciphertext)
	if err != nil {
		return nil, err
	}
	return decodeIncomingChatPayload(plaintext)
}
