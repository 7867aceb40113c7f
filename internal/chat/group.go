package chat

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/corechain/chatproto/internal/crypto/curve"
	"github.com/corechain/chatproto/internal/crypto/keyderiv"
	chatpkg "github.com/corechain/chatproto/pkg/chat"
)

// GroupInvite is the out-of-band handoff a group owner gives a
// prospective member before it has a roster entry: enough to recognize
// and decrypt the onboarding broadcast that will assign it a chain.
type GroupInvite struct {
	OwnerPkey          curve.PublicKey
	OwnerRekeyingChain curve.Fr
}

// GroupOwnerInfo is the owning side of a group: it holds the roster,
// drives eviction/rekeying and onboarding, and is the sole point that
// can author NewMembers, Evictions, and Rekeying payloads.
type GroupOwnerInfo struct {
	GroupID            string
	OwnerSkey          curve.SecretKey
	OwnerPkey          curve.PublicKey
	OwnerChain         curve.Fr
	OwnerRekeyingChain curve.Fr
	Members            *Roster
	IgnoredMembers     map[string]bool
	Log                []loggedMessage
}

type loggedMessage struct {
	SenderPkey curve.PublicKey
	Body       []byte
}

func NewGroupOwnerInfo(groupID string, ownerSkey curve.SecretKey, ownerPkey curve.PublicKey) (*GroupOwnerInfo, error) {
	_, ownerChain, err := keyderiv.NewChainCode(ownerPkey, curve.ZeroFr())
	if err != nil {
		return nil, err
	}
	_, rekeyingChain, err := keyderiv.NewChainCode(ownerPkey, ownerChain)
	if err != nil {
		return nil, err
	}
	return &GroupOwnerInfo{
		GroupID:            groupID,
		OwnerSkey:          ownerSkey,
		OwnerPkey:          ownerPkey,
		OwnerChain:         ownerChain,
		OwnerRekeyingChain: rekeyingChain,
		Members:            NewRoster(),
		IgnoredMembers:     make(map[string]bool),
	}, nil
}

func (g *GroupOwnerInfo) Invite() GroupInvite {
	return GroupInvite{OwnerPkey: g.OwnerPkey, OwnerRekeyingChain: g.OwnerRekeyingChain}
}

func (g *GroupOwnerInfo) AddIgnoredMember(pkey curve.PublicKey) {
	g.IgnoredMembers[string(pkey.Bytes())] = true
}

func (g *GroupOwnerInfo) RemoveIgnoredMember(pkey curve.PublicKey) {
	delete(g.IgnoredMembers, string(pkey.Bytes()))
}

// OnboardMembers assigns each new member a fresh chain and broadcasts
// the resulting roster addition on the owner's rekeying chain, self-
// addressed exactly like a channel broadcast so that any current or
// prospective member holding (OwnerPkey, OwnerRekeyingChain) can read
// it. my_initial_chain in the first chunk is the chain of the first
// newly onboarded member — the common case is onboarding one member at
// a time; a joining member that doesn't find its own pkey in the
// flattened member list falls back to that field (see applyNewMembers).
func (g *GroupOwnerInfo) OnboardMembers(newMembers []curve.PublicKey) ([]*ChatMessageOutput, error) {
	pairs := make([]MemberPair, 0, len(newMembers))
	var myInitialChain curve.Fr
	for i, pk := range newMembers {
		_, chain, err := keyderiv.NewChainCode(pk, g.OwnerChain)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			myInitialChain = chain
		}
		pairs = append(pairs, MemberPair{Pkey: pk, Chain: chain})
	}
	g.Members.AddMembers(pairs, time.Now())

	full := append(pairs[:0:0], pairs...)
	for _, m := range g.Members.Members() {
		if !containsPkey(pairs, m.Pkey) {
			full = append(full, MemberPair{Pkey: m.Pkey, Chain: m.Chain})
		}
	}

	chunks := encodeNewMemberChunks(g.OwnerChain, g.OwnerRekeyingChain, myInitialChain, full)
	sequence, err := randomSequence()
	if err != nil {
		return nil, err
	}
	outs := make([]*ChatMessageOutput, len(chunks))
	for i, body := range chunks {
		out, err := g.sealSelfAddressedOnRekeyingChain(sequence, uint32(i), uint32(len(chunks)), body)
		if err != nil {
			return nil, err
		}
		outs[i] = out
	}
	return outs, nil
}

func containsPkey(pairs []MemberPair, pkey curve.PublicKey) bool {
	for _, p := range pairs {
		if p.Pkey.Equal(pkey.Pt) {
			return true
		}
	}
	return false
}

// EvictAndRekey removes members from the roster and rotates the group's
// shared owner_chain, announcing both as self-addressed broadcasts on
// the old owner_chain: first an Evictions notice (so survivors mirror
// the removal and keep their local roster order in sync with the
// owner's), then one or more EncryptedChainCodes broadcasts carrying the
// new chain's cloaked points in that now-synced order. Callers must
// deliver the Evictions output before the chain-codes outputs — a
// survivor that applies them out of order will compute the wrong offset
// for its own point.
func (g *GroupOwnerInfo) EvictAndRekey(pkeys []curve.PublicKey) ([]*ChatMessageOutput, error) {
	evictOut, err := g.sealEvictions(pkeys)
	if err != nil {
		return nil, err
	}
	g.Members.Evict(pkeys)

	seed, newChain, err := keyderiv.NewSharedChainSeed(g.OwnerChain)
	if err != nil {
		return nil, err
	}
	rekeyOuts, err := g.Members.GenerateRekeyingMessages(g.OwnerSkey, g.OwnerPkey, g.OwnerChain, seed)
	if err != nil {
		return nil, err
	}
	g.OwnerChain = newChain

	outs := make([]*ChatMessageOutput, 0, 1+len(rekeyOuts))
	outs = append(outs, evictOut)
	outs = append(outs, rekeyOuts...)
	return outs, nil
}

// sealEvictions builds the owner's self-addressed Evictions broadcast,
// cloaked on the (still current) owner_chain exactly like a PlainText
// broadcast.
func (g *GroupOwnerInfo) sealEvictions(pkeys []curve.PublicKey) (*ChatMessageOutput, error) {
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
	out.CloakRecipient(g.OwnerPkey, g.OwnerChain, rOwner, g.OwnerChain)
	out.CloakSender(g.OwnerPkey, g.OwnerChain, rSender, g.OwnerChain)

	key := keyderiv.ComputeEncryptionKey(
		out.RecipientCloakingHint, g.OwnerChain, g.OwnerPkey,
		out.SenderCloakingHint, g.OwnerChain, g.OwnerPkey,
	)
	if err := out.SetEncryptedPayload(key, encodeEvictions(pkeys)); err != nil {
		return nil, err
	}
	if err := out.Sign(g.OwnerSkey); err != nil {
		return nil, err
	}
	return out, nil
}

// NewMessage builds a PlainText broadcast from the owner to the group,
// cloaked with the owner filling both endpoints (the same construction
// a channel uses): any member holding (OwnerPkey, OwnerChain) computes
// the same encryption key regardless of which member ends up reading it.
func (g *GroupOwnerInfo) NewMessage(body []byte) (*ChatMessageOutput, error) {
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
	out.CloakRecipient(g.OwnerPkey, g.OwnerChain, rOwner, g.OwnerChain)
	out.CloakSender(g.OwnerPkey, g.OwnerChain, rSender, g.OwnerChain)

	key := keyderiv.ComputeEncryptionKey(
		out.RecipientCloakingHint, g.OwnerChain, g.OwnerPkey,
		out.SenderCloakingHint, g.OwnerChain, g.OwnerPkey,
	)
	if err := out.SetEncryptedPayload(key, encodePlainText(body)); err != nil {
		return nil, err
	}
	if err := out.Sign(g.OwnerSkey); err != nil {
		return nil, err
	}
	return out, nil
}

// ProcessIncoming handles an output already recognized as addressed to
// this owned group. It returns the sender and body for a PlainText
// worth surfacing to the wallet, or ok=false for everything else
// (self-authored, ignored sender, or a payload members never
// legitimately author). EncryptedChainCodes broadcasts are always
// self-authored and are drained by the aggregator before ever reaching
// this method — see Chat.ProcessIncoming.
func (g *GroupOwnerInfo) ProcessIncoming(output *ChatMessageOutput) (curve.PublicKey, []byte, bool) {
	senderPkey, payload, ok := g.decryptFromSelfOrMember(output)
	if !ok {
		return curve.PublicKey{}, nil, false
	}

	switch p := payload.(type) {
	case PlainText:
		if senderPkey.Equal(g.OwnerPkey.Pt) {
			return curve.PublicKey{}, nil, false
		}
		if g.IgnoredMembers[string(senderPkey.Bytes())] {
			return curve.PublicKey{}, nil, false
		}
		g.Log = append(g.Log, loggedMessage{SenderPkey: senderPkey, Body: p.Bytes})
		return senderPkey, p.Bytes, true
	case Evictions:
		if senderPkey.Equal(g.OwnerPkey.Pt) {
			return curve.PublicKey{}, nil, false
		}
		panic("chat: owner received an Evictions payload from a member, invariant violated")
	default:
		logrus.WithField("group", g.GroupID).Debug("chat: owner ignoring unexpected payload type")
		return curve.PublicKey{}, nil, false
	}
}

func (g *GroupOwnerInfo) decryptFromSelfOrMember(output *ChatMessageOutput) (curve.PublicKey, IncomingChatPayload, bool) {
	selfSender := output.SenderKeyingHint.Mul(g.OwnerChain)
	if selfSender.Equal(output.Sender) {
		key := keyderiv.ComputeEncryptionKey(
			output.RecipientCloakingHint, g.OwnerChain, g.OwnerPkey,
			output.SenderCloakingHint, g.OwnerChain, g.OwnerPkey,
		)
		payload, err := output.Decrypt(key)
		if err != nil {
			return curve.PublicKey{}, nil, false
		}
		return g.OwnerPkey, payload, true
	}
	return g.Members.DecryptChatMessage(g.OwnerPkey, g.OwnerChain, output)
}

func (g *GroupOwnerInfo) sealSelfAddressedOnRekeyingChain(sequence uint64, msgNbr, msgTot uint32, body []byte) (*ChatMessageOutput, error) {
	rOwner, err := curve.RandomFr()
	if err != nil {
		return nil, err
	}
	rSender, err := curve.RandomFr()
	if err != nil {
		return nil, err
	}
	out := &ChatMessageOutput{Sequence: sequence, MsgNbr: msgNbr, MsgTot: msgTot, Created: time.Now()}
	out.CloakRecipient(g.OwnerPkey, g.OwnerRekeyingChain, rOwner, g.OwnerRekeyingChain)
	out.CloakSender(g.OwnerPkey, g.OwnerRekeyingChain, rSender, g.OwnerRekeyingChain)

	key := keyderiv.ComputeEncryptionKey(
		out.RecipientCloakingHint, g.OwnerRekeyingChain, g.OwnerPkey,
		out.SenderCloakingHint, g.OwnerRekeyingChain, g.OwnerPkey,
	)
	if err := out.SetEncryptedPayload(key, body); err != nil {
		return nil, err
	}
	if err := out.Sign(g.OwnerSkey); err != nil {
		return nil, err
	}
	return out, nil
}

// GroupSession is a subscriber's view of a group.
type GroupSession struct {
	GroupID            string
	OwnerPkey          curve.PublicKey
	OwnerChain         curve.Fr
	OwnerRekeyingChain curve.Fr
	MySkey             curve.SecretKey
	MyPkey             curve.PublicKey
	MyChain            curve.Fr
	Members            *Roster
	IgnoredMembers     map[string]bool
	Log                []loggedMessage
	reassembler        *chunkReassembler
}

func NewGroupSession(groupID string, mySkey curve.SecretKey, myPkey curve.PublicKey, invite GroupInvite) *GroupSession {
	return &GroupSession{
		GroupID:            groupID,
		OwnerPkey:          invite.OwnerPkey,
		OwnerRekeyingChain: invite.OwnerRekeyingChain,
		MySkey:             mySkey,
		MyPkey:             myPkey,
		Members:            NewRoster(),
		IgnoredMembers:     make(map[string]bool),
		reassembler:        newChunkReassembler(),
	}
}

func (s *GroupSession) AddIgnoredMember(pkey curve.PublicKey) {
	s.IgnoredMembers[string(pkey.Bytes())] = true
}

func (s *GroupSession) RemoveIgnoredMember(pkey curve.PublicKey) {
	delete(s.IgnoredMembers, string(pkey.Bytes()))
}

// NewMessage sends a PlainText to the group owner, cloaked under this
// member's own roster chain.
func (s *GroupSession) NewMessage(body []byte) (*ChatMessageOutput, error) {
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
	out.CloakRecipient(s.OwnerPkey, s.OwnerChain, rOwner, s.MyChain)
	out.CloakSender(s.MyPkey, s.MyChain, rSender, s.OwnerChain)

	key := keyderiv.ComputeEncryptionKey(
		out.RecipientCloakingHint, s.OwnerChain, s.MyPkey,
		out.SenderCloakingHint, s.MyChain, s.OwnerPkey,
	)
	if err := out.SetEncryptedPayload(key, encodePlainText(body)); err != nil {
		return nil, err
	}
	if err := out.Sign(s.MySkey); err != nil {
		return nil, err
	}
	return out, nil
}

// ProcessRekeyingBroadcast recognizes an EncryptedChainCodes output on
// OwnerChain and, if one of its points is this member's own, recovers
// and returns the new owner_chain it carries. ok is false for any other
// payload type, or if this output's chunk doesn't cover this member's
// roster position — in either case the caller should fall through to
// ProcessOnOwnerChain instead. On success, the stale-rekey defense
// (Roster.ProcessRekeyingMessage) has already gated acceptance: a
// replayed or out-of-order broadcast older than what this member's
// roster entry has already recorded is rejected here, not applied.
func (s *GroupSession) ProcessRekeyingBroadcast(output *ChatMessageOutput) (curve.Fr, bool) {
	cc, ok := output.Payload.(EncryptedChainCodes)
	if !ok {
		return curve.Fr{}, false
	}
	chunkOffset := int(output.MsgNbr) * chatpkg.PtsPerChainList
	seedG, ok := s.Members.FindSenderNewchain(s.MyPkey, s.MySkey, chunkOffset, cc.Points)
	if !ok {
		logrus.WithField("group", s.GroupID).Debug("chat: chain-codes broadcast did not cover my roster position")
		return curve.Fr{}, false
	}
	newChain := keyderiv.RecoverSharedChain(seedG, s.OwnerChain)
	if !s.Members.ProcessRekeyingMessage(s.MyPkey, newChain, output.Created) {
		logrus.WithField("group", s.GroupID).Debug("chat: rejecting stale or replayed chain-codes broadcast")
		return curve.Fr{}, false
	}
	return newChain, true
}

// ProcessOnRekeyingChain handles an output recognized against
// OwnerRekeyingChain: onboarding broadcasts, self-addressed exactly like
// a channel message.
func (s *GroupSession) ProcessOnRekeyingChain(output *ChatMessageOutput) bool {
	key := keyderiv.ComputeEncryptionKey(
		output.RecipientCloakingHint, s.OwnerRekeyingChain, s.OwnerPkey,
		output.SenderCloakingHint, s.OwnerRekeyingChain, s.OwnerPkey,
	)
	payload, err := output.Decrypt(key)
	if err != nil {
		logrus.WithField("group", s.GroupID).Debug("chat: onboarding chunk did not decrypt")
		return false
	}
	chunk, ok := payload.(newMemberChunk)
	if !ok {
		logrus.WithField("group", s.GroupID).Debug("chat: ignoring non-onboarding payload on rekeying chain")
		return false
	}
	nm, complete := s.reassembler.Add(output.Sequence, output.MsgNbr, output.MsgTot, chunk)
	if !complete {
		return false
	}
	return s.applyNewMembers(nm)
}

func (s *GroupSession) applyNewMembers(nm NewMembers) bool {
	s.OwnerChain = nm.OwnerChain
	s.OwnerRekeyingChain = nm.RekeyingChain
	s.Members.AddMembers(nm.Members, time.Now())

	for _, m := range nm.Members {
		if m.Pkey.Equal(s.MyPkey.Pt) {
			s.MyChain = m.Chain
			return true
		}
	}
	if s.MyChain.IsZero() {
		s.MyChain = nm.MyInitialChain
	}
	return true
}

// ProcessOnOwnerChain handles an output recognized against OwnerChain
// whose payload is not EncryptedChainCodes (see ProcessRekeyingBroadcast,
// which the aggregator tries first): PlainText from the owner or another
// member, surfaced to the wallet, or an owner-authored Evictions notice,
// applied silently to the local roster.
func (s *GroupSession) ProcessOnOwnerChain(output *ChatMessageOutput) (curve.PublicKey, []byte, bool) {
	senderPkey, payload, ok := s.decryptFromSelfOwnerOrMember(output)
	if !ok {
		return curve.PublicKey{}, nil, false
	}

	switch p := payload.(type) {
	case PlainText:
		if senderPkey.Equal(s.MyPkey.Pt) {
			return curve.PublicKey{}, nil, false
		}
		if s.IgnoredMembers[string(senderPkey.Bytes())] {
			return curve.PublicKey{}, nil, false
		}
		s.Log = append(s.Log, loggedMessage{SenderPkey: senderPkey, Body: p.Bytes})
		return senderPkey, p.Bytes, true
	case Evictions:
		if !senderPkey.Equal(s.OwnerPkey.Pt) {
			logrus.WithField("group", s.GroupID).Warn("chat: ignoring Evictions payload from a non-owner sender")
			return curve.PublicKey{}, nil, false
		}
		s.Members.Evict(p.Pkeys)
		return curve.PublicKey{}, nil, false
	default:
		return curve.PublicKey{}, nil, false
	}
}

func (s *GroupSession) decryptFromSelfOwnerOrMember(output *ChatMessageOutput) (curve.PublicKey, IncomingChatPayload, bool) {
	ownerSender := output.SenderKeyingHint.Mul(s.OwnerChain)
	if ownerSender.Equal(output.Sender) {
		key := keyderiv.ComputeEncryptionKey(
			output.RecipientCloakingHint, s.OwnerChain, s.OwnerPkey,
			output.SenderCloakingHint, s.OwnerChain, s.OwnerPkey,
		)
		payload, err := output.Decrypt(key)
		if err != nil {
			return curve.PublicKey{}, nil, false
		}
		return s.OwnerPkey, payload, true
	}
	return s.Members.DecryptChatMessage(s.OwnerPkey, s.OwnerChain, output)
}
