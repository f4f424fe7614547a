package wire

import "errors"

// Opcode is the frame type discriminator from RFC 6455 Section 5.2.
type Opcode byte

const (
	OpContinuation Opcode = 0x0
	OpText         Opcode = 0x1
	OpBinary       Opcode = 0x2
	OpClose        Opcode = 0x8
	OpPing         Opcode = 0x9
	OpPong         Opcode = 0xA
)

// IsControl reports whether the opcode is a control frame opcode.
func (o Opcode) IsControl() bool {
	return o == OpClose || o == OpPing || o == OpPong
}

// String returns a short name for logging.
func (o Opcode) String() string {
	switch o {
	case OpContinuation:
		return "continuation"
	case OpText:
		return "text"
	case OpBinary:
		return "binary"
	case OpClose:
		return "close"
	case OpPing:
		return "ping"
	case OpPong:
		return "pong"
	default:
		return "unknown"
	}
}

// Frame is one decoded wire-protocol unit. Payload is always unmasked by the
// time a Frame is returned from Reader.ReadFrame.
type Frame struct {
	Fin     bool
	Opcode  Opcode
	Payload []byte
}

// Protocol errors. Any of these from the codec means the connection must be
// torn down — there is no way to resynchronize a WebSocket byte stream after
// a malformed frame.
var (
	ErrTruncatedFrame = errors.New("wire: truncated frame")
	ErrFrameTooLarge  = errors.New("wire: frame payload exceeds limit")
	ErrInvalidOpcode  = errors.New("wire: invalid opcode")
	ErrUnmaskedFrame  = errors.New("wire: client frame without mask")
	ErrFragmented     = errors.New("wire: fragmented messages not supported")
	ErrControlTooLong = errors.New("wire: control frame payload exceeds 125 bytes")
)
