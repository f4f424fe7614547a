// Package hub implements the in-process broadcast core: a registry of open
// WebSocket connections keyed by subscribed stream name, one reader loop per
// connection, and a dispatcher that fans a payload out to every subscriber
// of a stream.
//
// Hub.ServeHTTP upgrades the request (internal/wire) and runs the reader
// loop until the connection dies: close frame, end-of-stream, decode error
// or read-deadline expiry all take the same teardown path, which removes the
// connection from every registry entry before closing the socket.
//
// Clients speak a small JSON envelope over text frames:
//
//	{"type":"subscribe","stream":"counter"}   -> ack {"type":"subscribed","stream":"counter"}
//	{"type":"unsubscribe","stream":"counter"}
//	{"type":"pong"}
//
// Anything else a client sends is ignored. Broadcasts are delivered as
//
//	{"type":"message","stream":"counter","data":<payload>}
//
// where data is forwarded verbatim — an HTML fragment string or any JSON
// value. Delivery is best-effort and at-most-once: a failed write is logged,
// counted and forgotten; the dead connection is reaped by its own reader
// loop, not by the dispatcher.
//
// The hub is embeddable: in-process producers may call Broadcast (or the
// BroadcastHTML/BroadcastJSON helpers) directly, without going through the
// HTTP trigger in internal/api.
package hub
