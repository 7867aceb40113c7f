package chat

import (
	"testing"
	"time"

	"github.com/corechain/chatproto/internal/crypto/curve"
	chatpkg "github.com/corechain/chatproto/pkg/chat"
)

func newRosterIdentity(t *testing.T) curve.PublicKey {
	t.Helper()
	_, pk, err := curve.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	return pk
}

func newRosterKeyPair(t *testing.T) (curve.SecretKey, curve.PublicKey) {
	t.Helper()
	sk, pk, err := curve.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	return sk, pk
}

func TestAddMembersOverwritesExistingPkey(t *testing.T) {
	r := NewRoster()
	pk := newRosterIdentity(t)
	chain1, err := curve.RandomFr()
	if err != nil {
		t.Fatalf("RandomFr: %v", err)
	}
	chain2, err := curve.RandomFr()
	if err != nil {
		t.Fatalf("RandomFr: %v", err)
	}

	r.AddMembers([]MemberPair{{Pkey: pk, Chain: chain1}}, time.Now())
	r.AddMembers([]MemberPair{{Pkey: pk, Chain: chain2}}, time.Now())

	members := r.Members()
	if len(members) != 1 {
		t.Fatalf("got %d members, want 1", len(members))
	}
	if !members[0].Chain.Equal(chain2) {
		t.Fatal("second AddMembers call did not overwrite the stored chain")
	}
}

func TestEvictRemovesOnlyNamedMembers(t *testing.T) {
	r := NewRoster()
	pkA := newRosterIdentity(t)
	pkB := newRosterIdentity(t)
	chain, _ := curve.RandomFr()

	r.AddMembers([]MemberPair{{Pkey: pkA, Chain: chain}, {Pkey: pkB, Chain: chain}}, time.Now())
	r.Evict([]curve.PublicKey{pkA})

	members := r.Members()
	if len(members) != 1 {
		t.Fatalf("got %d members after evict, want 1", len(members))
	}
	if !members[0].Pkey.Equal(pkB.Pt) {
		t.Fatal("evict removed the wrong member")
	}
}

func TestProcessRekeyingMessageRejectsStaleEpoch(t *testing.T) {
	r := NewRoster()
	pk := newRosterIdentity(t)
	chain, _ := curve.RandomFr()
	epoch := time.Now()
	r.AddMembers([]MemberPair{{Pkey: pk, Chain: chain}}, epoch)

	staleChain, _ := curve.RandomFr()
	if r.ProcessRekeyingMessage(pk, staleChain, epoch.Add(-time.Minute)) {
		t.Fatal("accepted a rekeying message older than the stored epoch")
	}
	if r.ProcessRekeyingMessage(pk, staleChain, epoch) {
		t.Fatal("accepted a rekeying message at exactly the stored epoch")
	}

	members := r.Members()
	if !members[0].Chain.Equal(chain) {
		t.Fatal("roster chain changed despite a rejected stale rekey")
	}
}

func TestProcessRekeyingMessageAcceptsNewerEpoch(t *testing.T) {
	r := NewRoster()
	pk := newRosterIdentity(t)
	chain, _ := curve.RandomFr()
	epoch := time.Now()
	r.AddMembers([]MemberPair{{Pkey: pk, Chain: chain}}, epoch)

	newChain, _ := curve.RandomFr()
	if !r.ProcessRekeyingMessage(pk, newChain, epoch.Add(time.Minute)) {
		t.Fatal("rejected a rekeying message newer than the stored epoch")
	}

	members := r.Members()
	if !members[0].Chain.Equal(newChain) {
		t.Fatal("roster chain did not advance after an accepted rekey")
	}
}

func TestProcessRekeyingMessageUnknownMember(t *testing.T) {
	r := NewRoster()
	pk := newRosterIdentity(t)
	newChain, _ := curve.RandomFr()
	if r.ProcessRekeyingMessage(pk, newChain, time.Now()) {
		t.Fatal("accepted a rekeying message for a pkey never added to the roster")
	}
}

// Every surviving member must be able to recover the same seed·G point
// GenerateRekeyingMessages encoded for it, purely from its own secret key
// and its own position in its locally-synced roster.
func TestGenerateRekeyingMessagesRoundTripsThroughFindSenderNewchain(t *testing.T) {
	ownerSk, ownerPk := newRosterKeyPair(t)
	ownerChain, _ := curve.RandomFr()

	type member struct {
		sk curve.SecretKey
		pk curve.PublicKey
	}
	members := make([]member, 3)
	r := NewRoster()
	for i := range members {
		sk, pk := newRosterKeyPair(t)
		chain, _ := curve.RandomFr()
		members[i] = member{sk: sk, pk: pk}
		r.AddMembers([]MemberPair{{Pkey: pk, Chain: chain}}, time.Now())
	}

	seed, err := curve.RandomFr()
	if err != nil {
		t.Fatalf("RandomFr: %v", err)
	}
	wantSeedG := curve.BaseMul(seed)

	outs, err := r.GenerateRekeyingMessages(ownerSk, ownerPk, ownerChain, seed)
	if err != nil {
		t.Fatalf("GenerateRekeyingMessages: %v", err)
	}
	if len(outs) != 1 {
		t.Fatalf("got %d broadcasts for %d members under PtsPerChainList=%d, want 1", len(outs), len(members), chatpkg.PtsPerChainList)
	}

	cc, ok := outs[0].Payload.(EncryptedChainCodes)
	if !ok {
		t.Fatalf("got payload %T, want EncryptedChainCodes", outs[0].Payload)
	}
	if len(cc.Points) != len(members) {
		t.Fatalf("got %d points, want %d", len(cc.Points), len(members))
	}

	chunkOffset := int(outs[0].MsgNbr) * chatpkg.PtsPerChainList
	for _, m := range members {
		seedG, ok := r.FindSenderNewchain(m.pk, m.sk, chunkOffset, cc.Points)
		if !ok {
			t.Fatalf("member %x failed to find its point in the chain-codes broadcast", m.pk.Bytes())
		}
		if !seedG.Equal(wantSeedG) {
			t.Fatalf("member %x recovered the wrong seed·G point", m.pk.Bytes())
		}
	}
}

func TestFindSenderNewchainRejectsMemberOutsideChunk(t *testing.T) {
	r := NewRoster()
	sk, pk := newRosterKeyPair(t)
	chain, _ := curve.RandomFr()
	r.AddMembers([]MemberPair{{Pkey: pk, Chain: chain}}, time.Now())

	points := []curve.Pt{curve.BaseMul(chain)}
	if _, ok := r.FindSenderNewchain(pk, sk, 5, points); ok {
		t.Fatal("matched a member whose roster index falls outside the chunk's offset range")
	}
}

func TestGenerateRekeyingMessagesEmptyRosterProducesNoBroadcasts(t *testing.T) {
	r := NewRoster()
	ownerSk, ownerPk := newRosterKeyPair(t)
	ownerChain, _ := curve.RandomFr()
	seed, _ := curve.RandomFr()

	outs, err := r.GenerateRekeyingMessages(ownerSk, ownerPk, ownerChain, seed)
	if err != nil {
		t.Fatalf("GenerateRekeyingMessages: %v", err)
	}
	if len(outs) != 0 {
		t.Fatalf("got %d broadcasts for an empty roster, want 0", len(outs))
	}
}
