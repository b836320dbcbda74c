// Package relay implements the subscription transport: a WebSocket
// protocol of JSON array frames.
//
//	client → relay   ["EVENT", <event>]
//	                 ["REQ", <name>, <filter>, <filter>…]
//	                 ["CLOSE", <name>]
//	relay → client   ["OK", <id>, <accepted>, <reason>]
//	                 ["EVENT", <name>, <event>]
//	                 ["EOSE", <name>]
//
// Each connection is one Session that owns its named subscriptions. A REQ
// backfills every filter once, in order, and ends with EOSE; events
// accepted later are not pushed to existing subscriptions.
//
// Malformed frames are logged and dropped. They never close the
// connection and get no reply.
package relay
