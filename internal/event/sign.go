package event

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// Sign sets PubKey from key, computes ID, and signs it.
// Any previous ID, PubKey or Sig is overwritten.
func Sign(ev *Event, key *btcec.PrivateKey) error {
	if ev.Tags == nil {
		ev.Tags = Tags{}
	}
	ev.PubKey = hex.EncodeToString(schnorr.SerializePubKey(key.PubKey()))
	id := IDBytes(*ev)
	ev.ID = hex.EncodeToString(id[:])

	sig, err := schnorr.Sign(key, id[:])
	if err != nil {
		return fmt.Errorf("sign event: %w", err)
	}
	ev.Sig = hex.EncodeToString(sig.Serialize())
	return nil
}

// ParsePrivateKey decodes a 32-byte hex secret key.
func ParsePrivateKey(s string) (*btcec.PrivateKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("parse private key: expected 32 bytes, got %d", len(b))
	}
	key, _ := btcec.PrivKeyFromBytes(b)
	return key, nil
}
