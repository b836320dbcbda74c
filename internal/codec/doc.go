// Package codec compresses events for storage and response bodies for
// delivery.
//
// Two independent steps live here:
//
//   - Per-event storage compression (Encode/Decode): the canonical
//     serialization of an event, compressed once at acceptance with zstd at
//     its highest level. The payload is never recompressed; Decode must
//     reproduce the canonical bytes exactly.
//   - Envelope compression (CompressEnvelope): an optional whole-body zstd
//     pass over an HTTP response for clients whose Accept-Encoding admits
//     it. It knows nothing about whether the members were stored compressed.
package codec
