package chat

import (
	"testing"

	"github.com/corechain/chatproto/internal/crypto/curve"
)

func TestEncodeDecodePlainTextRoundTrips(t *testing.T) {
	body := []byte("hello group")
	encoded := encodePlainText(body)

	decoded, err := decodeIncomingChatPayload(encoded)
	if err != nil {
		t.Fatalf("decodeIncomingChatPayload: %v", err)
	}
	pt, ok := decoded.(PlainText)
	if !ok {
		t.Fatalf("got %T, want PlainText", decoded)
	}
	if string(pt.Bytes) != string(body) {
		t.Fatalf("got body %q, want %q", pt.Bytes, body)
	}
}

func TestEncodeDecodeEvictionsRoundTrips(t *testing.T) {
	_, pkA, err := curve.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	_, pkB, err := curve.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}

	encoded := encodeEvictions([]curve.PublicKey{pkA, pkB})
	decoded, err := decodeIncomingChatPayload(encoded)
	if err != nil {
		t.Fatalf("decodeIncomingChatPayload: %v", err)
	}
	ev, ok := decoded.(Evictions)
	if !ok {
		t.Fatalf("got %T, want Evictions", decoded)
	}
	if len(ev.Pkeys) != 2 || !ev.Pkeys[0].Equal(pkA.Pt) || !ev.Pkeys[1].Equal(pkB.Pt) {
		t.Fatal("decoded pkeys don't match what was encoded")
	}
}

func TestEncodeDecodeNewMemberChunksRoundTrip(t *testing.T) {
	ownerChain, _ := curve.RandomFr()
	rekeyingChain, _ := curve.RandomFr()
	myInitialChain, _ := curve.RandomFr()

	members := make([]MemberPair, 0, 25)
	for i := 0; i < 25; i++ {
		_, pk, err := curve.GenerateKeyPair()
		if err != nil {
			t.Fatalf("GenerateKeyPair: %v", err)
		}
		chain, _ := curve.RandomFr()
		members = append(members, MemberPair{Pkey: pk, Chain: chain})
	}

	chunks := encodeNewMemberChunks(ownerChain, rekeyingChain, myInitialChain, members)
	if len(chunks) < 2 {
		t.Fatalf("expected onboarding to split into multiple chunks for %d members, got %d chunk(s)", len(members), len(chunks))
	}

	var reassembled []MemberPair
	for i, raw := range chunks {
		decoded, err := decodeIncomingChatPayload(raw)
		if err != nil {
			t.Fatalf("decodeIncomingChatPayload chunk %d: %v", i, err)
		}
		chunk, ok := decoded.(newMemberChunk)
		if !ok {
			t.Fatalf("chunk %d: got %T, want newMemberChunk", i, decoded)
		}
		if i == 0 {
			if !chunk.IsFirst {
				t.Fatal("first chunk not marked IsFirst")
			}
			if !chunk.OwnerChain.Equal(ownerChain) || !chunk.RekeyingChain.Equal(rekeyingChain) || !chunk.MyInitialChain.Equal(myInitialChain) {
				t.Fatal("first chunk header fields don't match what was encoded")
			}
			if int(chunk.NumMembers) != len(members) {
				t.Fatalf("got NumMembers %d, want %d", chunk.NumMembers, len(members))
			}
		} else if chunk.IsFirst {
			t.Fatalf("chunk %d unexpectedly marked IsFirst", i)
		}
		reassembled = append(reassembled, chunk.Members...)
	}

	if len(reassembled) != len(members) {
		t.Fatalf("reassembled %d members, want %d", len(reassembled), len(members))
	}
	for i, m := range members {
		if !reassembled[i].Pkey.Equal(m.Pkey.Pt) || !reassembled[i].Chain.Equal(m.Chain) {
			t.Fatalf("member %d mismatched after reassembly", i)
		}
	}
}

func TestDecodeIncomingChatPayloadRejectsUnknownTag(t *testing.T) {
	if _, err := decodeIncomingChatPayload([]byte{0xFF}); err == nil {
		t.Fatal("expected an error for an unknown payload tag")
	}
}

func TestDecodeIncomingChatPayloadRejectsEmpty(t *testing.T) {
	if _, err := decodeIncomingChatPayload(nil); err == nil {
		t.Fatal("expected an error for an empty plaintext")
	}
}
