// Package wire implements the server side of the RFC 6455 WebSocket wire
// protocol: the upgrade handshake and the frame codec. It deliberately
// depends on nothing above the byte stream — the hub package layers
// connection and subscription state on top of it.
//
// Reader decodes one frame at a time from a client byte stream. Client
// frames must be masked and must fit in a single frame (FIN set); streamcast
// does not assemble fragmented messages, since everything a client is
// allowed to send is a small JSON control envelope.
//
// EncodeFrame builds a complete server-to-client frame: FIN always set,
// payload never masked.
//
// Upgrade validates the handshake headers, hijacks the HTTP connection and
// writes the 101 Switching Protocols response itself. From that point the
// caller owns the net.Conn.
package wire
