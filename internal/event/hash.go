package event

import (
	"crypto/sha256"
	"encoding/hex"
)

// ComputeID returns the content-addressed id of an event: the lowercase hex
// SHA-256 of its Commitment serialization.
//
// No domain prefix is mixed in; the id must match what every other client
// computes for the same commitment bytes.
func ComputeID(ev Event) string {
	sum := sha256.Sum256(Commitment(ev))
	return hex.EncodeToString(sum[:])
}

// IDBytes returns the raw 32 id bytes, the message that is signed.
func IDBytes(ev Event) [32]byte {
	return sha256.Sum256(Commitment(ev))
}
