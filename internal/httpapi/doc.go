// Package httpapi serves the relay over plain HTTP.
//
// Routes:
//
//	GET  /             health, or a subscription session on WebSocket upgrade
//	GET  /health       health
//	GET  /event/{id}   one event; zstd clients get the stored bytes unmodified
//	GET  /events       filter from query parameters
//	POST /events       filter from a JSON body
//	GET  /metrics      Prometheus exposition
//
// Bulk responses are a JSON array spliced from the stored canonical
// serializations. Compressing that array for transport is a separate step
// from the per-event storage compression: the envelope is negotiated from
// Accept-Encoding (zstd, then gzip, then identity) on every request.
//
// Every response carries permissive CORS headers; OPTIONS is answered with
// 204 and never routed.
package httpapi
