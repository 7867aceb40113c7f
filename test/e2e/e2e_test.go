package e2e

import (
	"testing"
	"time"

	"github.com/corechain/chatproto/internal/chat"
	"github.com/corechain/chatproto/internal/crypto/curve"
	chatpkg "github.com/corechain/chatproto/pkg/chat"
)

type captureNotifier struct {
	messages []chat.IncomingMessage
}

func (c *captureNotifier) NotifyIncomingMessage(chatID string, senderPkey, body []byte) {
	var pk curve.PublicKey
	pt, err := curve.PtFromBytes(senderPkey)
	if err == nil {
		pk = curve.PublicKey{Pt: pt}
	}
	c.messages = append(c.messages, chat.IncomingMessage{ChatID: chatID, SenderPkey: pk, Body: append([]byte(nil), body...)})
}

func (c *captureNotifier) NotifyRekeying(chatID string, newChainHint []byte) {}

type captureStore struct {
	recorded []chatpkg.UtxoInfo
}

func (s *captureStore) RecordUTXO(chatID string, info chatpkg.UtxoInfo) error {
	s.recorded = append(s.recorded, info)
	return nil
}

func newIdentity(t *testing.T) (curve.SecretKey, curve.PublicKey) {
	t.Helper()
	sk, pk, err := curve.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	return sk, pk
}

// S1: channel happy path — owner broadcasts, the subscriber reads it,
// and the owner recognizes its own output for UTXO bookkeeping.
func TestChannelHappyPath(t *testing.T) {
	ownerSk, ownerPk := newIdentity(t)

	ownerNotifier := &captureNotifier{}
	ownerStore := &captureStore{}
	ownerChat := chat.NewChat(ownerStore, ownerNotifier)

	subNotifier := &captureNotifier{}
	subChat := chat.NewChat(&captureStore{}, subNotifier)

	invite, err := ownerChat.CreateChannel("town-square", ownerSk, ownerPk)
	if err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}

	decoded, err := chat.ChannelInviteFromBase64(invite.ToBase64())
	if err != nil {
		t.Fatalf("ChannelInviteFromBase64: %v", err)
	}
	if err := subChat.JoinChannel("town-square", decoded); err != nil {
		t.Fatalf("JoinChannel: %v", err)
	}

	out, err := ownerChat.NewMessage("town-square", []byte("hello town"))
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	if !out.Verify() {
		t.Fatal("owner-authored output failed signature verification")
	}

	if _, ok := subChat.ProcessIncoming(out); !ok {
		t.Fatal("subscriber failed to read the channel broadcast")
	}
	if len(subNotifier.messages) != 1 || string(subNotifier.messages[0].Body) != "hello town" {
		t.Fatalf("unexpected subscriber notifications: %+v", subNotifier.messages)
	}

	if _, ok := ownerChat.ProcessIncoming(out); ok {
		t.Fatal("owner's own broadcast should not resurface as an incoming message")
	}
	if len(ownerStore.recorded) != 1 {
		t.Fatalf("expected owner to record exactly one utxo, got %d", len(ownerStore.recorded))
	}
}

// S2: group broadcast among three parties — two members onboard, one
// sends to the owner, the owner broadcasts to both.
func TestGroupBroadcastAmongThree(t *testing.T) {
	ownerSk, ownerPk := newIdentity(t)
	aliceSk, alicePk := newIdentity(t)
	bobSk, bobPk := newIdentity(t)

	ownerNotifier := &captureNotifier{}
	ownerChat := chat.NewChat(&captureStore{}, ownerNotifier)
	aliceNotifier := &captureNotifier{}
	aliceChat := chat.NewChat(&captureStore{}, aliceNotifier)
	bobNotifier := &captureNotifier{}
	bobChat := chat.NewChat(&captureStore{}, bobNotifier)

	groupOwner, err := chat.NewGroupOwnerInfo("council", ownerSk, ownerPk)
	if err != nil {
		t.Fatalf("NewGroupOwnerInfo: %v", err)
	}
	if err := ownerChat.AddOwnedGroup(groupOwner); err != nil {
		t.Fatalf("AddOwnedGroup: %v", err)
	}
	invite := groupOwner.Invite()

	if err := aliceChat.AddSubscribedGroup(chat.NewGroupSession("council", aliceSk, alicePk, invite)); err != nil {
		t.Fatalf("AddSubscribedGroup alice: %v", err)
	}
	if err := bobChat.AddSubscribedGroup(chat.NewGroupSession("council", bobSk, bobPk, invite)); err != nil {
		t.Fatalf("AddSubscribedGroup bob: %v", err)
	}

	for _, newcomer := range []curve.PublicKey{alicePk, bobPk} {
		outs, err := groupOwner.OnboardMembers([]curve.PublicKey{newcomer})
		if err != nil {
			t.Fatalf("OnboardMembers: %v", err)
		}
		for _, out := range outs {
			aliceChat.ProcessIncoming(out)
			bobChat.ProcessIncoming(out)
		}
	}

	aliceSend, err := aliceChat.NewMessage("council", []byte("motion to adjourn"))
	if err != nil {
		t.Fatalf("alice NewMessage: %v", err)
	}
	if _, ok := ownerChat.ProcessIncoming(aliceSend); !ok {
		t.Fatal("owner failed to read alice's pairwise send")
	}
	if len(ownerNotifier.messages) != 1 || string(ownerNotifier.messages[0].Body) != "motion to adjourn" {
		t.Fatalf("unexpected owner notifications: %+v", ownerNotifier.messages)
	}

	broadcast, err := groupOwner.NewMessage([]byte("motion carries"))
	if err != nil {
		t.Fatalf("owner NewMessage: %v", err)
	}
	if _, ok := aliceChat.ProcessIncoming(broadcast); !ok {
		t.Fatal("alice failed to read the owner's broadcast")
	}
	if _, ok := bobChat.ProcessIncoming(broadcast); !ok {
		t.Fatal("bob failed to read the owner's broadcast")
	}
}

// S3: eviction and rekey — an evicted member can no longer read traffic
// the owner sends after rotation, while survivors still can.
func TestEvictionAndRekey(t *testing.T) {
	ownerSk, ownerPk := newIdentity(t)
	aliceSk, alicePk := newIdentity(t)
	bobSk, bobPk := newIdentity(t)

	groupOwner, err := chat.NewGroupOwnerInfo("squad", ownerSk, ownerPk)
	if err != nil {
		t.Fatalf("NewGroupOwnerInfo: %v", err)
	}
	invite := groupOwner.Invite()

	aliceSession := chat.NewGroupSession("squad", aliceSk, alicePk, invite)
	bobSession := chat.NewGroupSession("squad", bobSk, bobPk, invite)
	aliceChat := chat.NewChat(&captureStore{}, &captureNotifier{})
	bobChat := chat.NewChat(&captureStore{}, &captureNotifier{})
	if err := aliceChat.AddSubscribedGroup(aliceSession); err != nil {
		t.Fatalf("add alice: %v", err)
	}
	if err := bobChat.AddSubscribedGroup(bobSession); err != nil {
		t.Fatalf("add bob: %v", err)
	}

	for _, newcomer := range []curve.PublicKey{alicePk, bobPk} {
		outs, err := groupOwner.OnboardMembers([]curve.PublicKey{newcomer})
		if err != nil {
			t.Fatalf("OnboardMembers: %v", err)
		}
		for _, out := range outs {
			aliceChat.ProcessIncoming(out)
			bobChat.ProcessIncoming(out)
		}
	}

	rekeyOuts, err := groupOwner.EvictAndRekey([]curve.PublicKey{bobPk})
	if err != nil {
		t.Fatalf("EvictAndRekey: %v", err)
	}
	for _, out := range rekeyOuts {
		aliceChat.ProcessIncoming(out)
		bobChat.ProcessIncoming(out)
	}

	postEviction, err := groupOwner.NewMessage([]byte("bob is out"))
	if err != nil {
		t.Fatalf("owner NewMessage: %v", err)
	}
	if _, ok := aliceChat.ProcessIncoming(postEviction); !ok {
		t.Fatal("alice should still read post-eviction traffic")
	}
	if _, ok := bobChat.ProcessIncoming(postEviction); ok {
		t.Fatal("bob should no longer be able to read post-eviction traffic")
	}
}

// S4: a rekeying broadcast older than a member's stored epoch must be
// rejected — the stale-rekey defense.
func TestStaleRekeyRejected(t *testing.T) {
	roster := chat.NewRoster()
	_, pk, err := curve.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	chain := curve.HashToScalar("test/initial-chain", []byte("seed"))
	epoch := time.Unix(100, 0)
	roster.AddMembers([]chat.MemberPair{{Pkey: pk, Chain: chain}}, epoch)

	staleChain := curve.HashToScalar("test/stale-chain", []byte("seed2"))
	if roster.ProcessRekeyingMessage(pk, staleChain, time.Unix(50, 0)) {
		t.Fatal("a rekey older than the stored epoch must be rejected")
	}

	freshChain := curve.HashToScalar("test/fresh-chain", []byte("seed3"))
	if !roster.ProcessRekeyingMessage(pk, freshChain, time.Unix(200, 0)) {
		t.Fatal("a rekey newer than the stored epoch must be accepted")
	}
}

// S5: an ignored sender's messages are dropped before they reach the
// wallet, without disturbing the roster.
func TestIgnoredSenderIsSilenced(t *testing.T) {
	ownerSk, ownerPk := newIdentity(t)
	aliceSk, alicePk := newIdentity(t)

	groupOwner, err := chat.NewGroupOwnerInfo("quiet-room", ownerSk, ownerPk)
	if err != nil {
		t.Fatalf("NewGroupOwnerInfo: %v", err)
	}
	ownerChat := chat.NewChat(&captureStore{}, &captureNotifier{})
	if err := ownerChat.AddOwnedGroup(groupOwner); err != nil {
		t.Fatalf("AddOwnedGroup: %v", err)
	}
	invite := groupOwner.Invite()

	aliceChat := chat.NewChat(&captureStore{}, &captureNotifier{})
	if err := aliceChat.AddSubscribedGroup(chat.NewGroupSession("quiet-room", aliceSk, alicePk, invite)); err != nil {
		t.Fatalf("AddSubscribedGroup: %v", err)
	}

	outs, err := groupOwner.OnboardMembers([]curve.PublicKey{alicePk})
	if err != nil {
		t.Fatalf("OnboardMembers: %v", err)
	}
	for _, out := range outs {
		aliceChat.ProcessIncoming(out)
	}

	groupOwner.AddIgnoredMember(alicePk)

	aliceSend, err := aliceChat.NewMessage("quiet-room", []byte("can anyone hear me"))
	if err != nil {
		t.Fatalf("alice NewMessage: %v", err)
	}
	if _, ok := ownerChat.ProcessIncoming(aliceSend); ok {
		t.Fatal("an ignored member's message should not surface")
	}
}

// S6: a tampered channel invite must be rejected rather than silently
// producing a garbage owner identity.
func TestTamperedInviteRejected(t *testing.T) {
	sk, pk, err := curve.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	info := chat.NewChannelOwnerInfo("tamper-test", sk, pk)
	encoded := info.Invite().ToBase64()

	if _, err := chat.ChannelInviteFromBase64(encoded[:len(encoded)-4]); err == nil {
		t.Fatal("truncated invite should fail to decode")
	}
	if _, err := chat.ChannelInviteFromBase64("not-valid-base64!!"); err == nil {
		t.Fatal("non-base64 invite should fail to decode")
	}
}

