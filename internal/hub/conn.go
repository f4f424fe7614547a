package hub

import (
	"bufio"
	"net"
	"sync"
	"time"

	"github.com/streamcast/streamcast/internal/wire"
)

// writeTimeout is the deadline for a single write to a client. A peer that
// cannot drain a frame in this window is treated as dead for that write.
const writeTimeout = 10 * time.Second

// Conn is one accepted, upgraded connection. Its reader loop (Hub.readLoop)
// exclusively owns the read side; the write side is shared between the loop
// (pong and ack replies) and the dispatcher, serialized by wmu.
type Conn struct {
	nc net.Conn
	rd *wire.Reader

	wmu sync.Mutex
}

func newConn(nc net.Conn, br *bufio.Reader, maxPayload int64) *Conn {
	return &Conn{
		nc: nc,
		rd: wire.NewReader(br, maxPayload),
	}
}

// RemoteAddr returns the peer address, for logging.
func (c *Conn) RemoteAddr() net.Addr {
	return c.nc.RemoteAddr()
}

// writeFrame encodes and writes a single frame under the write lock.
func (c *Conn) writeFrame(op wire.Opcode, payload []byte) error {
	return c.writeRaw(wire.EncodeFrame(op, payload))
}

// writeRaw writes pre-encoded frame bytes under the write lock. The
// dispatcher uses it to share one encoding across all subscribers.
func (c *Conn) writeRaw(frame []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	c.nc.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
	_, err := c.nc.Write(frame)
	return err
}
