package chat

import (
	"encoding/base64"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/corechain/chatproto/internal/crypto/curve"
	"github.com/corechain/chatproto/internal/crypto/keyderiv"
	chatpkg "github.com/corechain/chatproto/pkg/chat"
)

const inviteDataSize = 33 + 32 // compressed point + scalar

// ChannelInvite is the out-of-band handoff a channel owner gives a
// prospective subscriber: just enough to derive the shared encryption
// key, base64-framed for copy/paste delivery.
type ChannelInvite struct {
	OwnerPkey  curve.PublicKey
	OwnerChain curve.Fr
}

// ToBase64 concatenates owner_pkey || owner_chain and base64-encodes it.
func (inv ChannelInvite) ToBase64() string {
	buf := make([]byte, 0, inviteDataSize)
	buf = append(buf, inv.OwnerPkey.Bytes()...)
	chain := inv.OwnerChain.Bytes()
	buf = append(buf, chain[:]...)
	return base64.StdEncoding.EncodeToString(buf)
}

// ChannelInviteFromBase64 decodes an invite produced by ToBase64.
func ChannelInviteFromBase64(s string) (ChannelInvite, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return ChannelInvite{}, chatpkg.ErrInviteEncoding
	}
	if len(raw) != inviteDataSize {
		return ChannelInvite{}, chatpkg.ErrInviteLength
	}
	pt, err := curve.PtFromBytes(raw[:33])
	if err != nil {
		return ChannelInvite{}, chatpkg.ErrInviteEncoding
	}
	chain, err := curve.ScalarFromBytes(raw[33:])
	if err != nil {
		return ChannelInvite{}, chatpkg.ErrInviteEncoding
	}
	return ChannelInvite{OwnerPkey: curve.PublicKey{Pt: pt}, OwnerChain: chain}, nil
}

// ChannelOwnerInfo is the owner's side of a single-writer broadcast
// channel: no roster, no rekeying, every message self-addressed.
type ChannelOwnerInfo struct {
	ChannelID  string
	OwnerSkey  curve.SecretKey
	OwnerPkey  curve.PublicKey
	OwnerChain curve.Fr
}

func NewChannelOwnerInfo(channelID string, ownerSkey curve.SecretKey, ownerPkey curve.PublicKey) *ChannelOwnerInfo {
	unique := curve.HashToScalar("chat/channel-id", []byte(channelID))
	return &ChannelOwnerInfo{
		ChannelID:  channelID,
		OwnerSkey:  ownerSkey,
		OwnerPkey:  ownerPkey,
		OwnerChain: unique,
	}
}

func (c *ChannelOwnerInfo) Invite() ChannelInvite {
	return ChannelInvite{OwnerPkey: c.OwnerPkey, OwnerChain: c.OwnerChain}
}

// NewMessage builds and signs a PlainText broadcast, cloaked with the
// owner filling both endpoints of the key-derivation kernel.
func (c *ChannelOwnerInfo) NewMessage(body []byte) (*ChatMessageOutput, error) {
	rOwner, err := curve.RandomFr()
	if err != nil {
		return nil, err
	}
	rSender, err := curve.RandomFr()
	if err != nil {
		return nil, err
	}
	sequence, err := randomSequence()
	if err != nil {
		return nil, err
	}

	out := &ChatMessageOutput{Sequence: sequence, MsgNbr: 0, MsgTot: 1, Created: time.Now()}
	out.CloakRecipient(c.OwnerPkey, c.OwnerChain, rOwner, c.OwnerChain)
	out.CloakSender(c.OwnerPkey, c.OwnerChain, rSender, c.OwnerChain)

	key := keyderiv.ComputeEncryptionKey(
		out.RecipientCloakingHint, c.OwnerChain, c.OwnerPkey,
		out.SenderCloakingHint, c.OwnerChain, c.OwnerPkey,
	)
	if err := out.SetEncryptedPayload(key, encodePlainText(body)); err != nil {
		return nil, err
	}
	if err := out.Sign(c.OwnerSkey); err != nil {
		return nil, err
	}
	return out, nil
}

// ReceiveOwn is called when an owner recognizes its own output on the
// recognition probe. It never surfaces a message to the wallet — a
// channel owner already has its own plaintext — but it does verify
// self-authorship and, on success, returns the UtxoInfo to record.
func (c *ChannelOwnerInfo) ReceiveOwn(output *ChatMessageOutput) (chatpkg.UtxoInfo, bool) {
	expectedSender := c.OwnerPkey.Pt.Mul(output.SenderCloakingHint)
	if !expectedSender.Equal(output.Sender) {
		logrus.WithField("channel", c.ChannelID).Warn("chat: channel output matched recipient but failed self-authorship check, dropping")
		return chatpkg.UtxoInfo{}, false
	}
	keying := output.RecipientCloakingHint.Mul(c.OwnerSkey.Fr)
	info := chatpkg.UtxoInfo{
		ID:      output.Hash(),
		Created: output.Created,
		Keying:  keyingBytes(keying),
	}
	return info, true
}

// ChannelSession is a subscriber's view of a channel, derived entirely
// from an invite.
type ChannelSession struct {
	ChannelID  string
	OwnerPkey  curve.PublicKey
	OwnerChain curve.Fr
	Log        []PlainText
}

func NewChannelSession(channelID string, invite ChannelInvite) *ChannelSession {
	return &ChannelSession{ChannelID: channelID, OwnerPkey: invite.OwnerPkey, OwnerChain: invite.OwnerChain}
}

// GetMessage decrypts an incoming channel output. Channels have no
// roster to rekey, so a rotation broadcast arriving here is a protocol
// violation — reject it rather than attempting to decrypt a payload that
// was never encrypted in the first place.
func (s *ChannelSession) GetMessage(output *ChatMessageOutput) (PlainText, bool) {
	if _, ok := output.Payload.(EncryptedChainCodes); ok {
		logrus.WithField("channel", s.ChannelID).Warn("chat: dropping EncryptedChainCodes payload on a channel")
		return PlainText{}, false
	}
	key := keyderiv.ComputeEncryptionKey(
		output.RecipientCloakingHint, s.OwnerChain, s.OwnerPkey,
		output.SenderCloakingHint, s.OwnerChain, s.OwnerPkey,
	)
	payload, err := output.Decrypt(key)
	if err != nil {
		return PlainText{}, false
	}

	switch p := payload.(type) {
	case PlainText:
		s.Log = append(s.Log, p)
		return p, true
	default:
		logrus.WithField("channel", s.ChannelID).Debug("chat: ignoring non-PlainText channel payload")
		return PlainText{}, false
	}
}

func keyingBytes(f curve.Fr) []byte {
	b := f.Bytes()
	out := make([]byte, len(b))
	copy(out, b[:])
	return out
}
