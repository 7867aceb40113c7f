package chat

import (
	"crypto/rand"
	"encoding/binary"
)

// randomSequence draws a fresh sequence number for a new outbound run
// (a single PlainText, or a multi-chunk onboarding/rekeying broadcast).
// Collisions across independent runs are immaterial: sequence only
// needs to disambiguate concurrent multi-part reassembly on the
// receiving end, not to be globally unique.
func randomSequence() (uint64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}
