package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// DefaultMaxPayload bounds inbound frame payloads. Clients only ever send
// small JSON control envelopes, so 1 MiB is already generous.
const DefaultMaxPayload = 1 << 20

// Reader decodes frames from a client byte stream.
type Reader struct {
	r          io.Reader
	maxPayload int64
}

// NewReader creates a Reader. maxPayload <= 0 selects DefaultMaxPayload.
func NewReader(r io.Reader, maxPayload int64) *Reader {
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayload
	}
	return &Reader{r: r, maxPayload: maxPayload}
}

// ReadFrame decodes the next frame from the stream. A clean end-of-stream at
// a frame boundary returns (nil, nil); end-of-stream anywhere inside a frame
// is ErrTruncatedFrame. The returned payload is already unmasked.
func (rd *Reader) ReadFrame() (*Frame, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(rd.r, hdr[:]); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, truncated(err)
	}

	f := &Frame{
		Fin:    hdr[0]&0x80 != 0,
		Opcode: Opcode(hdr[0] & 0x0F),
	}
	masked := hdr[1]&0x80 != 0
	length := uint64(hdr[1] & 0x7F)

	switch {
	case f.Opcode.IsControl():
		// Control frames carry their literal length and may not be fragmented.
		if !f.Fin {
			return nil, ErrFragmented
		}
		if length > 125 {
			return nil, ErrControlTooLong
		}
	case f.Opcode == OpText || f.Opcode == OpBinary:
		if !f.Fin {
			return nil, ErrFragmented
		}
	case f.Opcode == OpContinuation:
		// Single-frame messages only; a continuation can never be valid here.
		return nil, ErrFragmented
	default:
		return nil, fmt.Errorf("%w: 0x%x", ErrInvalidOpcode, byte(f.Opcode))
	}

	switch length {
	case 126:
		var ext [2]byte
		if _, err := io.ReadFull(rd.r, ext[:]); err != nil {
			return nil, truncated(err)
		}
		length = uint64(binary.BigEndian.Uint16(ext[:]))
	case 127:
		var ext [8]byte
		if _, err := io.ReadFull(rd.r, ext[:]); err != nil {
			return nil, truncated(err)
		}
		length = binary.BigEndian.Uint64(ext[:])
	}

	if length > uint64(rd.maxPayload) {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, length, rd.maxPayload)
	}

	// RFC 6455 Section 5.1: every client-to-server frame must be masked.
	if !masked {
		return nil, ErrUnmaskedFrame
	}
	var key [4]byte
	if _, err := io.ReadFull(rd.r, key[:]); err != nil {
		return nil, truncated(err)
	}

	if length > 0 {
		f.Payload = make([]byte, length)
		if _, err := io.ReadFull(rd.r, f.Payload); err != nil {
			return nil, truncated(err)
		}
		for i := range f.Payload {
			f.Payload[i] ^= key[i%4]
		}
	}

	return f, nil
}

// truncated maps a short read inside a frame to ErrTruncatedFrame, keeping
// the underlying error in the chain.
func truncated(err error) error {
	if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %v", ErrTruncatedFrame, err)
	}
	return err
}

// EncodeFrame builds one complete server-to-client frame: FIN set, payload
// unmasked. The length field uses the smallest of the 7/16/64-bit encodings
// that fits.
func EncodeFrame(op Opcode, payload []byte) []byte {
	n := len(payload)

	header := 2
	switch {
	case n > 0xFFFF:
		header += 8
	case n > 125:
		header += 2
	}

	buf := make([]byte, header+n)
	buf[0] = 0x80 | byte(op)

	switch {
	case n > 0xFFFF:
		buf[1] = 127
		binary.BigEndian.PutUint64(buf[2:10], uint64(n))
	case n > 125:
		buf[1] = 126
		binary.BigEndian.PutUint16(buf[2:4], uint16(n))
	default:
		buf[1] = byte(n)
	}

	copy(buf[header:], payload)
	return buf
}
