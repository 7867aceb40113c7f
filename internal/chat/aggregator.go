package chat

import (
	"github.com/sirupsen/logrus"

	"github.com/corechain/chatproto/internal/crypto/curve"
	chatpkg "github.com/corechain/chatproto/pkg/chat"
)

// IncomingMessage is what Chat.ProcessIncoming surfaces to the host for
// a message worth showing the wallet.
type IncomingMessage struct {
	ChatID     string
	SenderPkey curve.PublicKey
	Body       []byte
}

// Chat is the aggregator: it owns every group/channel a participant
// holds, classifies each inbound output against them in the documented
// order, and presents a uniform send/receive API. Chat ids are unique
// across all four collections.
type Chat struct {
	ownedGroups       map[string]*GroupOwnerInfo
	ownedChannels     map[string]*ChannelOwnerInfo
	subscribedGroups  map[string]*GroupSession
	subscribedChannels map[string]*ChannelSession

	store    chatpkg.AccountStore
	notifier chatpkg.WalletNotifier
}

func NewChat(store chatpkg.AccountStore, notifier chatpkg.WalletNotifier) *Chat {
	return &Chat{
		ownedGroups:        make(map[string]*GroupOwnerInfo),
		ownedChannels:      make(map[string]*ChannelOwnerInfo),
		subscribedGroups:   make(map[string]*GroupSession),
		subscribedChannels: make(map[string]*ChannelSession),
		store:              store,
		notifier:           notifier,
	}
}

func (c *Chat) isUniqueID(id string) bool {
	if _, ok := c.ownedGroups[id]; ok {
		return false
	}
	if _, ok := c.ownedChannels[id]; ok {
		return false
	}
	if _, ok := c.subscribedGroups[id]; ok {
		return false
	}
	if _, ok := c.subscribedChannels[id]; ok {
		return false
	}
	return true
}

func (c *Chat) AddOwnedGroup(info *GroupOwnerInfo) error {
	if !c.isUniqueID(info.GroupID) {
		return chatpkg.ErrDuplicateID
	}
	c.ownedGroups[info.GroupID] = info
	return nil
}

func (c *Chat) AddSubscribedGroup(session *GroupSession) error {
	if !c.isUniqueID(session.GroupID) {
		return chatpkg.ErrDuplicateID
	}
	c.subscribedGroups[session.GroupID] = session
	return nil
}

func (c *Chat) RemoveOwnedGroup(id string)      { delete(c.ownedGroups, id) }
func (c *Chat) RemoveSubscribedGroup(id string) { delete(c.subscribedGroups, id) }

// CreateChannel creates a new owned channel and returns its invite.
func (c *Chat) CreateChannel(id string, ownerSkey curve.SecretKey, ownerPkey curve.PublicKey) (ChannelInvite, error) {
	if !c.isUniqueID(id) {
		return ChannelInvite{}, chatpkg.ErrDuplicateID
	}
	owner := NewChannelOwnerInfo(id, ownerSkey, ownerPkey)
	c.ownedChannels[id] = owner
	return owner.Invite(), nil
}

// JoinChannel registers a subscribed channel from an invite.
func (c *Chat) JoinChannel(id string, invite ChannelInvite) error {
	if !c.isUniqueID(id) {
		return chatpkg.ErrDuplicateID
	}
	c.subscribedChannels[id] = NewChannelSession(id, invite)
	return nil
}

func (c *Chat) RemoveOwnedChannel(id string)      { delete(c.ownedChannels, id) }
func (c *Chat) RemoveSubscribedChannel(id string) { delete(c.subscribedChannels, id) }

// AddIgnoredMember silences a member's PlainText messages without
// evicting them from the roster; it applies to either role a caller
// might hold for that group.
func (c *Chat) AddIgnoredMember(groupID string, pkey curve.PublicKey) {
	if g, ok := c.ownedGroups[groupID]; ok {
		g.AddIgnoredMember(pkey)
	}
	if s, ok := c.subscribedGroups[groupID]; ok {
		s.AddIgnoredMember(pkey)
	}
}

func (c *Chat) RemoveIgnoredMember(groupID string, pkey curve.PublicKey) {
	if g, ok := c.ownedGroups[groupID]; ok {
		g.RemoveIgnoredMember(pkey)
	}
	if s, ok := c.subscribedGroups[groupID]; ok {
		s.RemoveIgnoredMember(pkey)
	}
}

// NewMessage dispatches an outbound send to the unique owner of id:
// an owned channel, an owned group, or a subscribed group. Subscribed
// channels can never send.
func (c *Chat) NewMessage(id string, body []byte) (*ChatMessageOutput, error) {
	if g, ok := c.ownedGroups[id]; ok {
		return g.NewMessage(body)
	}
	if ch, ok := c.ownedChannels[id]; ok {
		return ch.NewMessage(body)
	}
	if s, ok := c.subscribedGroups[id]; ok {
		return s.NewMessage(body)
	}
	if _, ok := c.subscribedChannels[id]; ok {
		return nil, chatpkg.ErrChannelSendForbidden
	}
	return nil, chatpkg.ErrInvalidGroup
}

// ProcessIncoming classifies output against owned groups, then
// subscribed groups, then subscribed channels, then owned channels —
// first match wins, matching the recognition order the probe cost
// analysis depends on. It returns a message worth surfacing to the
// wallet, if any.
func (c *Chat) ProcessIncoming(output *ChatMessageOutput) (IncomingMessage, bool) {
	for id, g := range c.ownedGroups {
		chain, isRekeying, ok := matchOwnerChain(output.Recipient, output.RecipientKeyingHint, g.OwnerChain, g.OwnerRekeyingChain)
		if !ok {
			continue
		}
		_ = chain
		var sender curve.PublicKey
		var body []byte
		var surfaced bool
		_, isChainCodes := output.Payload.(EncryptedChainCodes)
		switch {
		case isRekeying:
			// Onboarding broadcasts addressed to an owner are only ever
			// self-authored; the owner's roster already holds the
			// onboarded members, so there is nothing to surface or apply.
			surfaced = false
		case isChainCodes:
			// Eviction/rekey broadcasts are likewise only ever
			// self-authored; the owner doesn't need to recover its own
			// rotation, it already holds the new chain directly.
			surfaced = false
		default:
			sender, body, surfaced = g.ProcessIncoming(output)
		}
		if surfaced {
			c.notifier.NotifyIncomingMessage(id, sender.Bytes(), body)
			return IncomingMessage{ChatID: id, SenderPkey: sender, Body: body}, true
		}
		return IncomingMessage{}, false
	}

	for id, s := range c.subscribedGroups {
		chain, isRekeying, ok := matchOwnerChain(output.Recipient, output.RecipientKeyingHint, s.OwnerChain, s.OwnerRekeyingChain)
		if !ok {
			continue
		}
		_ = chain
		if isRekeying {
			s.ProcessOnRekeyingChain(output)
			return IncomingMessage{}, false
		}
		if newChain, ok := s.ProcessRekeyingBroadcast(output); ok {
			s.OwnerChain = newChain
			chainBytes := newChain.Bytes()
			c.notifier.NotifyRekeying(id, chainBytes[:])
			return IncomingMessage{}, false
		}
		sender, body, surfaced := s.ProcessOnOwnerChain(output)
		if surfaced {
			c.notifier.NotifyIncomingMessage(id, sender.Bytes(), body)
			return IncomingMessage{ChatID: id, SenderPkey: sender, Body: body}, true
		}
		return IncomingMessage{}, false
	}

	for id, s := range c.subscribedChannels {
		candidate := output.RecipientKeyingHint.Mul(s.OwnerChain)
		if !candidate.Equal(output.Recipient) {
			continue
		}
		pt, ok := s.GetMessage(output)
		if !ok {
			return IncomingMessage{}, false
		}
		c.notifier.NotifyIncomingMessage(id, s.OwnerPkey.Bytes(), pt.Bytes)
		return IncomingMessage{ChatID: id, SenderPkey: s.OwnerPkey, Body: pt.Bytes}, true
	}

	for id, ch := range c.ownedChannels {
		candidate := output.RecipientKeyingHint.Mul(ch.OwnerChain)
		if !candidate.Equal(output.Recipient) {
			continue
		}
		info, ok := ch.ReceiveOwn(output)
		if !ok {
			return IncomingMessage{}, false
		}
		if err := c.store.RecordUTXO(id, info); err != nil {
			logrus.WithError(err).WithField("channel", id).Warn("chat: failed to record channel UTXO")
		}
		return IncomingMessage{}, false
	}

	return IncomingMessage{}, false
}

// matchOwnerChain resolves the Open Question left unspecified by the
// original design: which of a group's two standing chains
// (owner_chain for ordinary traffic, owner_rekeying_chain for
// onboarding) a given output's recipient_keying_hint was cloaked
// against. Both endpoints only ever use one of exactly two values, so
// trying both and keeping whichever matches is equivalent to — and
// needs no extra wire bit beyond — a discriminator derived from the
// hint itself.
func matchOwnerChain(recipient, recipientKeyingHint curve.Pt, ownerChain, ownerRekeyingChain curve.Fr) (chain curve.Fr, isRekeying bool, ok bool) {
	if recipient.Equal(recipientKeyingHint.Mul(ownerChain)) {
		return ownerChain, false, true
	}
	if recipient.Equal(recipientKeyingHint.Mul(ownerRekeyingChain)) {
		return ownerRekeyingChain, true, true
	}
	return curve.Fr{}, false, false
}
