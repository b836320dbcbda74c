package event

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// ValidationError reports why a candidate event was rejected.
// Every rejection is an authentication failure from the caller's point of
// view: the event is never compressed or persisted.
type ValidationError struct {
	// Field names the offending field ("id", "pubkey", "sig").
	Field string

	// Reason is a short human-readable description.
	Reason string

	// Err is the underlying parse error, if any.
	Err error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsValidationError returns true if err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Validate authenticates a candidate event.
//
// It checks, in order: hex shape of id, pubkey and sig; that the declared id
// equals ComputeID; that sig is a valid BIP-340 signature of the id bytes
// under pubkey. Validate has no side effects.
func Validate(ev Event) error {
	if _, err := decodeHex("id", ev.ID, 32); err != nil {
		return err
	}
	pubKeyBytes, err := decodeHex("pubkey", ev.PubKey, 32)
	if err != nil {
		return err
	}
	sigBytes, err := decodeHex("sig", ev.Sig, 64)
	if err != nil {
		return err
	}

	id := IDBytes(ev)
	if hex.EncodeToString(id[:]) != ev.ID {
		return &ValidationError{Field: "id", Reason: "does not match event hash"}
	}

	pubKey, err := schnorr.ParsePubKey(pubKeyBytes)
	if err != nil {
		return &ValidationError{Field: "pubkey", Reason: "not a valid public key", Err: err}
	}
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return &ValidationError{Field: "sig", Reason: "malformed signature", Err: err}
	}
	if !sig.Verify(id[:], pubKey) {
		return &ValidationError{Field: "sig", Reason: "signature verification failed"}
	}
	return nil
}

// decodeHex requires lowercase hex of exactly size bytes. Uppercase is
// rejected because ids are compared as strings everywhere else.
func decodeHex(field, s string, size int) ([]byte, error) {
	if len(s) != size*2 {
		return nil, &ValidationError{
			Field:  field,
			Reason: fmt.Sprintf("expected %d hex characters, got %d", size*2, len(s)),
		}
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9') && !(c >= 'a' && c <= 'f') {
			return nil, &ValidationError{Field: field, Reason: "not lowercase hex"}
		}
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, &ValidationError{Field: field, Reason: "not lowercase hex", Err: err}
	}
	return b, nil
}
