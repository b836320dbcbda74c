// Package event defines the signed, immutable record this relay stores and
// the two deterministic renderings derived from it.
//
// # Renderings
//
//   - Commitment: [0,pubkey,created_at,kind,tags,content], the hash input
//     for the content-addressed id.
//   - Canonical: a fixed-key-order object carrying every field, the form
//     that is compressed, persisted and served.
//
// Both use the same string escaping: only '"', '\\' and C0 control
// characters are escaped, HTML-significant characters and U+2028/U+2029
// are written literally. Two renderings of the same Event are always
// byte-identical.
//
// # Validation
//
// Validate must succeed before an event reaches compression or storage.
// It re-derives the id from the commitment and checks the BIP-340 Schnorr
// signature over the id bytes against the x-only public key.
//
// event imports nothing internal.
package event
