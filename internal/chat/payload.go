package chat

import (
	"encoding/binary"
	"fmt"

	"github.com/corechain/chatproto/internal/crypto/curve"
	chatpkg "github.com/corechain/chatproto/pkg/chat"
)

// incomingTag identifies which IncomingChatPayload variant a decrypted
// plaintext decodes to.
type incomingTag byte

const (
	tagPlainText      incomingTag = 1
	tagNewMemberChunk incomingTag = 2
	tagEvictions      incomingTag = 3
)

// IncomingChatPayload is the decrypted, decoded content of a
// ChatMessageOutput. Handling is exhaustive by construction: the only
// way to obtain one is decodeIncomingChatPayload, which rejects unknown
// tags as a DecodeError rather than ever returning a zero value.
type IncomingChatPayload interface {
	incomingTag() incomingTag
}

// PlainText is a user-authored message.
type PlainText struct {
	Bytes []byte
}

func (PlainText) incomingTag() incomingTag { return tagPlainText }

// Evictions is an owner notice removing members from the roster.
type Evictions struct {
	Pkeys []curve.PublicKey
}

func (Evictions) incomingTag() incomingTag { return tagEvictions }

// Rekeying names the per-member result of processing an
// EncryptedChainCodes broadcast: the chain this member should now adopt
// in place of its current owner_chain. It is not an IncomingChatPayload
// variant and is never AEAD-sealed or decoded from ciphertext.
// GroupSession.ProcessRekeyingBroadcast returns the recovered chain as a
// bare curve.Fr, and Chat.ProcessIncoming reports it to the host through
// WalletNotifier.NotifyRekeying, not as an incoming message.
type Rekeying struct {
	NewChain curve.Fr
}

// MemberPair is one roster entry as carried in an onboarding payload.
type MemberPair struct {
	Pkey  curve.PublicKey
	Chain curve.Fr
}

// NewMembers is the fully reassembled onboarding payload: every chunk
// of a NewMemberInfo/NewMemberInfoCont run, stitched together and
// checked only for completeness (a first chunk is present and the member
// count matches NumMembers). No owner signature over the reassembled run
// is carried or checked.
type NewMembers struct {
	OwnerChain     curve.Fr
	RekeyingChain  curve.Fr
	MyInitialChain curve.Fr
	Members        []MemberPair
}

func (NewMembers) incomingTag() incomingTag { return tagNewMemberChunk }

// newMemberChunk is the wire shape of a single NewMemberInfo /
// NewMemberInfoCont output. It is never surfaced to a state machine
// directly — only the fully reassembled NewMembers is. The first chunk
// (IsFirst true) carries the three chain codes and the member count;
// continuations carry only their member slice and MemberIndex, the
// offset of their first member within the logical list.
type newMemberChunk struct {
	IsFirst        bool
	OwnerChain     curve.Fr
	RekeyingChain  curve.Fr
	MyInitialChain curve.Fr
	NumMembers     uint32
	MemberIndex    uint32
	Members        []MemberPair
}

func (newMemberChunk) incomingTag() incomingTag { return tagNewMemberChunk }

func encodePlainText(bytes []byte) []byte {
	buf := make([]byte, 1+4+len(bytes))
	buf[0] = byte(tagPlainText)
	binary.LittleEndian.PutUint32(buf[1:5], uint32(len(bytes)))
	copy(buf[5:], bytes)
	return buf
}

func encodeEvictions(pkeys []curve.PublicKey) []byte {
	buf := []byte{byte(tagEvictions)}
	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(pkeys)))
	buf = append(buf, countBuf[:]...)
	for _, pk := range pkeys {
		buf = append(buf, pk.Bytes()...)
	}
	return buf
}

// encodeNewMemberChunks splits a full member list into the wire chunks
// an owner broadcasts for one onboarding run, sharing the fields
// required for reassembly on the other side.
func encodeNewMemberChunks(ownerChain, rekeyingChain, myInitialChain curve.Fr, members []MemberPair) [][]byte {
	var chunks [][]byte

	first := members
	if len(first) > chatpkg.PairsPerMemberList {
		first = first[:chatpkg.PairsPerMemberList]
	}
	chunks = append(chunks, encodeNewMemberFirst(ownerChain, rekeyingChain, myInitialChain, uint32(len(members)), first))

	rest := members[len(first):]
	idx := uint32(len(first))
	for len(rest) > 0 {
		n := chatpkg.PairsPerContChunk
		if n > len(rest) {
			n = len(rest)
		}
		chunks = append(chunks, encodeNewMemberCont(idx, rest[:n]))
		rest = rest[n:]
		idx += uint32(n)
	}
	return chunks
}

func encodeNewMemberFirst(ownerChain, rekeyingChain, myInitialChain curve.Fr, numMembers uint32, members []MemberPair) []byte {
	buf := []byte{byte(tagNewMemberChunk), 1}
	oc := ownerChain.Bytes()
	rc := rekeyingChain.Bytes()
	mc := myInitialChain.Bytes()
	buf = append(buf, oc[:]...)
	buf = append(buf, rc[:]...)
	buf = append(buf, mc[:]...)
	var numBuf [4]byte
	binary.LittleEndian.PutUint32(numBuf[:], numMembers)
	buf = append(buf, numBuf[:]...)
	buf = append(buf, encodeMemberPairs(members)...)
	return buf
}

func encodeNewMemberCont(memberIndex uint32, members []MemberPair) []byte {
	buf := []byte{byte(tagNewMemberChunk), 0}
	var idxBuf [4]byte
	binary.LittleEndian.PutUint32(idxBuf[:], memberIndex)
	buf = append(buf, idxBuf[:]...)
	buf = append(buf, encodeMemberPairs(members)...)
	return buf
}

func encodeMemberPairs(members []MemberPair) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(len(members)))
	for _, m := range members {
		buf = append(buf, m.Pkey.Bytes()...)
		chain := m.Chain.Bytes()
		buf = append(buf, chain[:]...)
	}
	return buf
}

// decodeIncomingChatPayload decodes a decrypted plaintext into its
// IncomingChatPayload variant. Unknown tags, truncated bodies, and
// length mismatches are all DecodeErrors — there is no partial-trust
// fallback.
func decodeIncomingChatPayload(plaintext []byte) (IncomingChatPayload, error) {
	if len(plaintext) < 1 {
		return nil, &DecodeError{Reason: "empty plaintext"}
	}
	switch incomingTag(plaintext[0]) {
	case tagPlainText:
		if len(plaintext) < 5 {
			return nil, &DecodeError{Reason: "truncated PlainText header"}
		}
		n := binary.LittleEndian.Uint32(plaintext[1:5])
		body := plaintext[5:]
		if uint32(len(body)) != n {
			return nil, &DecodeError{Reason: "PlainText length mismatch"}
		}
		return PlainText{Bytes: body}, nil

	case tagEvictions:
		if len(plaintext) < 5 {
			return nil, &DecodeError{Reason: "truncated Evictions header"}
		}
		n := binary.LittleEndian.Uint32(plaintext[1:5])
		rest := plaintext[5:]
		pkeys := make([]curve.PublicKey, 0, n)
		for i := uint32(0); i < n; i++ {
			pk, consumed, err := decodePublicKey(rest)
			if err != nil {
				return nil, err
			}
			pkeys = append(pkeys, pk)
			rest = rest[consumed:]
		}
		if len(rest) != 0 {
			return nil, &DecodeError{Reason: "Evictions length mismatch"}
		}
		return Evictions{Pkeys: pkeys}, nil

	case tagNewMemberChunk:
		return decodeNewMemberChunk(plaintext[1:])

	default:
		return nil, &DecodeError{Reason: fmt.Sprintf("unknown payload tag %d", plaintext[0])}
	}
}

func decodeNewMemberChunk(body []byte) (newMemberChunk, error) {
	if len(body) < 1 {
		return newMemberChunk{}, &DecodeError{Reason: "truncated NewMemberChunk flag"}
	}
	isFirst := body[0] == 1
	body = body[1:]

	var chunk newMemberChunk
	chunk.IsFirst = isFirst

	if isFirst {
		if len(body) < 32+32+32+4 {
			return newMemberChunk{}, &DecodeError{Reason: "truncated NewMemberInfo header"}
		}
		var err error
		chunk.OwnerChain, err = curve.ScalarFromBytes(body[0:32])
		if err != nil {
			return newMemberChunk{}, &DecodeError{Reason: "invalid owner chain scalar"}
		}
		chunk.RekeyingChain, err = curve.ScalarFromBytes(body[32:64])
		if err != nil {
			return newMemberChunk{}, &DecodeError{Reason: "invalid rekeying chain scalar"}
		}
		chunk.MyInitialChain, err = curve.ScalarFromBytes(body[64:96])
		if err != nil {
			return newMemberChunk{}, &DecodeError{Reason: "invalid initial chain scalar"}
		}
		chunk.NumMembers = binary.LittleEndian.Uint32(body[96:100])
		members, consumed, err := decodeMemberPairs(body[100:])
		if err != nil {
			return newMemberChunk{}, err
		}
		if consumed != len(body[100:]) {
			return newMemberChunk{}, &DecodeError{Reason: "NewMemberInfo length mismatch"}
		}
		chunk.Members = members
		return chunk, nil
	}

	if len(body) < 4 {
		return newMemberChunk{}, &DecodeError{Reason: "truncated NewMemberInfoCont header"}
	}
	chunk.MemberIndex = binary.LittleEndian.Uint32(body[0:4])
	members, consumed, err := decodeMemberPairs(body[4:])
	if err != nil {
		return newMemberChunk{}, err
	}
	if consumed != len(body[4:]) {
		return newMemberChunk{}, &DecodeError{Reason: "NewMemberInfoCont length mismatch"}
	}
	chunk.Members = members
	return chunk, nil
}

func decodeMemberPairs(body []byte) ([]MemberPair, int, error) {
	if len(body) < 4 {
		return nil, 0, &DecodeError{Reason: "truncated member-pair count"}
	}
	n := binary.LittleEndian.Uint32(body[0:4])
	rest := body[4:]
	consumed := 4
	pairs := make([]MemberPair, 0, n)
	for i := uint32(0); i < n; i++ {
		pk, used, err := decodePublicKey(rest)
		if err != nil {
			return nil, 0, err
		}
		rest = rest[used:]
		consumed += used
		if len(rest) < 32 {
			return nil, 0, &DecodeError{Reason: "truncated member chain scalar"}
		}
		chain, err := curve.ScalarFromBytes(rest[:32])
		if err != nil {
			return nil, 0, &DecodeError{Reason: "invalid member chain scalar"}
		}
		rest = rest[32:]
		consumed += 32
		pairs = append(pairs, MemberPair{Pkey: pk, Chain: chain})
	}
	return pairs, consumed, nil
}

// decodePublicKey reads one compressed point and reports how many bytes
// it consumed, since the curve backend's compressed encoding is not a
// fixed-width constant known to this package.
func decodePublicKey(b []byte) (curve.PublicKey, int, error) {
	if len(b) < 33 {
		return curve.PublicKey{}, 0, &DecodeError{Reason: "truncated public key"}
	}
	pt, err := curve.PtFromBytes(b[:33])
	if err != nil {
		return curve.PublicKey{}, 0, &DecodeError{Reason: "invalid public key encoding"}
	}
	return curve.PublicKey{Pt: pt}, 33, nil
}
