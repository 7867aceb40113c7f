package chat

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/corechain/chatproto/internal/crypto/curve"
	"github.com/corechain/chatproto/internal/crypto/keyderiv"
	chatpkg "github.com/corechain/chatproto/pkg/chat"
)

// GroupMember is one roster entry: a member's identity, the chain code
// currently used to derive its encryption keys, and the epoch (the time
// its current chain was adopted: the epoch passed to AddMembers, or the
// created timestamp of the rekeying that last replaced it).
type GroupMember struct {
	Pkey  curve.PublicKey
	Chain curve.Fr
	Epoch time.Time
}

// Roster is the ordered, pkey-unique member set of a group. Lookups are
// linear by design — group sizes are small enough that an index buys
// nothing and the cloaking scheme prevents building one anyway (see
// FindSenderChain).
type Roster struct {
	members []GroupMember
}

func NewRoster() *Roster {
	return &Roster{}
}

func (r *Roster) Members() []GroupMember {
	out := make([]GroupMember, len(r.members))
	copy(out, r.members)
	return out
}

func (r *Roster) indexOf(pkey curve.PublicKey) int {
	for i, m := range r.members {
		if m.Pkey.Equal(pkey.Pt) {
			return i
		}
	}
	return -1
}

// AddMembers absorbs an owner-authored onboarding list: pairs not yet
// present are appended, pairs already present are overwritten — the
// owner's suggestion always wins over whatever was locally held.
func (r *Roster) AddMembers(pairs []MemberPair, epoch time.Time) {
	for _, p := range pairs {
		if i := r.indexOf(p.Pkey); i >= 0 {
			r.members[i].Chain = p.Chain
			r.members[i].Epoch = epoch
			continue
		}
		r.members = append(r.members, GroupMember{Pkey: p.Pkey, Chain: p.Chain, Epoch: epoch})
	}
}

// Evict removes members by public key, preserving the relative order of
// those that remain.
func (r *Roster) Evict(pkeys []curve.PublicKey) {
	evict := make(map[string]bool, len(pkeys))
	for _, pk := range pkeys {
		evict[string(pk.Bytes())] = true
	}
	kept := r.members[:0:0]
	for _, m := range r.members {
		if !evict[string(m.Pkey.Bytes())] {
			kept = append(kept, m)
		}
	}
	r.members = kept
}

// FindSenderChain locates the unique member whose chain satisfies
// output.sender == output.sender_keying_hint · chain. It returns
// ok=false if no member matches — the output is either not addressed to
// this group or its sender has since been evicted.
func (r *Roster) FindSenderChain(output *ChatMessageOutput) (GroupMember, bool) {
	for _, m := range r.members {
		candidate := output.SenderKeyingHint.Mul(m.Chain)
		if candidate.Equal(output.Sender) {
			return m, true
		}
	}
	return GroupMember{}, false
}

// DecryptChatMessage combines FindSenderChain with the key-derivation
// kernel to recover both the sender's identity and the decoded payload.
func (r *Roster) DecryptChatMessage(ownerPkey curve.PublicKey, ownerChain curve.Fr, output *ChatMessageOutput) (curve.PublicKey, IncomingChatPayload, bool) {
	member, ok := r.FindSenderChain(output)
	if !ok {
		return curve.PublicKey{}, nil, false
	}
	key := keyderiv.ComputeEncryptionKey(
		output.RecipientCloakingHint, ownerChain, member.Pkey,
		output.SenderCloakingHint, member.Chain, ownerPkey,
	)
	payload, err := output.Decrypt(key)
	if err != nil {
		logrus.WithError(err).Debug("chat: decode failed for a message that matched roster recognition")
		return curve.PublicKey{}, nil, false
	}
	return member.Pkey, payload, true
}

// GenerateRekeyingMessages hands the roster a fresh chain in
// ceil(n/PtsPerChainList) self-addressed broadcasts, each carrying up to
// PtsPerChainList cloaked points seed · member.Pkey in roster order. Every
// output is cloaked and signed exactly like an ordinary owner broadcast
// on ownerChain, so it is recognized by the same probe any PlainText
// broadcast is — nothing extra needs to be learned to read it.
func (r *Roster) GenerateRekeyingMessages(ownerSkey curve.SecretKey, ownerPkey curve.PublicKey, ownerChain curve.Fr, seed curve.Fr) ([]*ChatMessageOutput, error) {
	if len(r.members) == 0 {
		return nil, nil
	}
	msgTot := (len(r.members) + chatpkg.PtsPerChainList - 1) / chatpkg.PtsPerChainList
	sequence, err := randomSequence()
	if err != nil {
		return nil, err
	}

	outs := make([]*ChatMessageOutput, 0, msgTot)
	for start := 0; start < len(r.members); start += chatpkg.PtsPerChainList {
		end := start + chatpkg.PtsPerChainList
		if end > len(r.members) {
			end = len(r.members)
		}
		points := make([]curve.Pt, 0, end-start)
		for _, m := range r.members[start:end] {
			points = append(points, m.Pkey.Pt.Mul(seed))
		}
		out, err := sealChainCodesBroadcast(ownerSkey, ownerPkey, ownerChain, sequence, uint32(len(outs)), uint32(msgTot), points)
		if err != nil {
			return nil, err
		}
		outs = append(outs, out)
	}
	return outs, nil
}

// FindSenderNewchain recovers the seed·G point this member's own cloaked
// entry carries within an EncryptedChainCodes broadcast. Points are
// assigned to surviving members in roster order (see
// GenerateRekeyingMessages); chunkOffset locates this output's slice
// within that full order — msg_nbr * PtsPerChainList, since chunks are
// fixed-size. It is the caller's job to keep its own roster in sync (via
// Evict) with whatever evictions preceded this broadcast, or the offsets
// will no longer line up.
func (r *Roster) FindSenderNewchain(myPkey curve.PublicKey, mySkey curve.SecretKey, chunkOffset int, points []curve.Pt) (curve.Pt, bool) {
	idx := r.indexOf(myPkey)
	if idx < chunkOffset || idx >= chunkOffset+len(points) {
		return curve.Pt{}, false
	}
	cpt := points[idx-chunkOffset]
	return cpt.Mul(mySkey.Fr.Invert()), true
}

// ProcessRekeyingMessage accepts a new chain for member pkey only if
// output.Created is strictly after the member's stored epoch — the
// stale-rekey defense — and otherwise leaves the roster untouched. It
// reports whether the roster actually advanced.
func (r *Roster) ProcessRekeyingMessage(pkey curve.PublicKey, newChain curve.Fr, created time.Time) bool {
	i := r.indexOf(pkey)
	if i < 0 {
		return false
	}
	if !created.After(r.members[i].Epoch) {
		return false
	}
	r.members[i].Chain = newChain
	r.members[i].Epoch = created
	return true
}

// sealChainCodesBroadcast builds one self-addressed EncryptedChainCodes
// output: cloaked exactly like a PlainText broadcast from the owner to
// itself, so recognition needs no special casing, but carrying points in
// the clear instead of an AEAD ciphertext.
func sealChainCodesBroadcast(ownerSkey curve.SecretKey, ownerPkey curve.PublicKey, ownerChain curve.Fr, sequence uint64, msgNbr, msgTot uint32, points []curve.Pt) (*ChatMessageOutput, error) {
	rOwner, err := curve.RandomFr()
	if err != nil {
		return nil, err
	}
	rSender, err := curve.RandomFr()
	if err != nil {
		return nil, err
	}
	out := &ChatMessageOutput{
		Sequence: sequence,
		MsgNbr:   msgNbr,
		MsgTot:   msgTot,
		Created:  time.Now(),
		Payload:  EncryptedChainCodes{Points: points},
	}
	out.CloakRecipient(ownerPkey, ownerChain, rOwner, ownerChain)
	out.CloakSender(ownerPkey, ownerChain, rSender, ownerChain)
	if err := out.Sign(ownerSkey); err != nil {
		return nil, err
	}
	return out, nil
}
