// Package testutil holds deterministic helpers shared by tests and the
// scenario harness.
package testutil

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// keyDomain separates derived secrets from any other use of the name.
const keyDomain = "packrelay/testutil/key:"

// NamedKey derives a secret key from name. The same name always yields the
// same key, so scenarios can refer to publishers by name.
func NamedKey(name string) *btcec.PrivateKey {
	seed := sha256.Sum256([]byte(keyDomain + name))
	key, _ := btcec.PrivKeyFromBytes(seed[:])
	return key
}

// PubKeyHex returns the x-only public key of key as lowercase hex.
func PubKeyHex(key *btcec.PrivateKey) string {
	return hex.EncodeToString(schnorr.SerializePubKey(key.PubKey()))
}

// Keyring caches named keys and remembers which name owns which public key.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Keyring struct {
	mu     sync.Mutex
	keys   map[string]*btcec.PrivateKey
	owners map[string]string
}

// NewKeyring creates an empty keyring.
func NewKeyring() *Keyring {
	return &Keyring{
		keys:   make(map[string]*btcec.PrivateKey),
		owners: make(map[string]string),
	}
}

// Key returns the key for name, deriving it on first use.
func (k *Keyring) Key(name string) *btcec.PrivateKey {
	k.mu.Lock()
	defer k.mu.Unlock()

	if key, ok := k.keys[name]; ok {
		return key
	}
	key := NamedKey(name)
	k.keys[name] = key
	k.owners[PubKeyHex(key)] = name
	return key
}

// PubKey returns the hex public key for name.
func (k *Keyring) PubKey(name string) string {
	return PubKeyHex(k.Key(name))
}

// Owner returns the name whose key has the given public key, if any key
// with that name was handed out.
func (k *Keyring) Owner(pubkey string) (string, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	name, ok := k.owners[pubkey]
	return name, ok
}
