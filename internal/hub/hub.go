package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/streamcast/streamcast/internal/metrics"
	"github.com/streamcast/streamcast/internal/wire"
)

// DefaultReadDeadline bounds every frame read. A peer that sends nothing at
// all for this long — no frames, no pings — is treated exactly like one
// that closed cleanly. This is the sole mechanism for reclaiming
// connections whose remote end vanished without a close frame.
const DefaultReadDeadline = 60 * time.Second

// clientEnvelope is what clients may send over text frames.
type clientEnvelope struct {
	Type   string `json:"type"`
	Stream string `json:"stream"`
}

// serverEnvelope is the subscribe acknowledgement.
type serverEnvelope struct {
	Type   string `json:"type"`
	Stream string `json:"stream"`
}

// messageEnvelope wraps a broadcast payload. Data is opaque cargo: an HTML
// fragment string or any JSON value, forwarded verbatim.
type messageEnvelope struct {
	Type   string          `json:"type"`
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// Options configures a Hub. Zero values select defaults.
type Options struct {
	// ReadDeadline bounds each frame read (default DefaultReadDeadline).
	ReadDeadline time.Duration

	// MaxPayload caps inbound frame payloads (default wire.DefaultMaxPayload).
	MaxPayload int64

	// Metrics receives hub counters. When nil the hub records into a
	// private throwaway registry, so embedders without Prometheus wiring
	// pay no nil checks.
	Metrics *metrics.Metrics
}

// Hub owns the subscription registry and fans broadcasts out to
// subscribers. It is safe for concurrent use: one reader loop runs per
// connection and any number of goroutines may call Broadcast.
type Hub struct {
	reg *Registry
	m   *metrics.Metrics

	readDeadline atomic.Int64 // nanoseconds
	maxPayload   atomic.Int64
}

// New creates a Hub.
func New(opts Options) *Hub {
	if opts.ReadDeadline <= 0 {
		opts.ReadDeadline = DefaultReadDeadline
	}
	if opts.MaxPayload <= 0 {
		opts.MaxPayload = wire.DefaultMaxPayload
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(prometheus.NewRegistry())
	}

	h := &Hub{
		reg: NewRegistry(),
		m:   opts.Metrics,
	}
	h.readDeadline.Store(int64(opts.ReadDeadline))
	h.maxPayload.Store(opts.MaxPayload)
	return h
}

// SetReadDeadline changes the per-read deadline. Takes effect on each
// connection's next read.
func (h *Hub) SetReadDeadline(d time.Duration) {
	if d > 0 {
		h.readDeadline.Store(int64(d))
	}
}

// SetMaxPayload changes the inbound payload cap for connections accepted
// after the call.
func (h *Hub) SetMaxPayload(n int64) {
	if n > 0 {
		h.maxPayload.Store(n)
	}
}

// Count returns the number of currently open connections.
func (h *Hub) Count() int {
	return h.reg.Conns()
}

// Streams returns the number of stream entries with at least one subscriber.
func (h *Hub) Streams() int {
	return h.reg.Streams()
}

// Run blocks until ctx is cancelled, then closes every open connection.
// Each reader loop notices its closed socket and performs its own registry
// cleanup.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	for _, c := range h.reg.All() {
		c.nc.Close()
	}
}

// ServeHTTP upgrades the request and serves the connection until it closes.
// Non-upgrade requests get a 400 from the handshake layer.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	nc, br, err := wire.Upgrade(w, r)
	if err != nil {
		h.m.HandshakeFailures.Inc()
		slog.Debug("hub: handshake failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	c := newConn(nc, br, h.maxPayload.Load())
	h.reg.Track(c)
	h.m.ConnectionsActive.Inc()
	slog.Debug("hub: client connected", "remote", c.RemoteAddr())

	h.readLoop(c) // blocks until the connection dies
}

// readLoop decodes frames from c until a terminal condition: close frame,
// clean end-of-stream, decode error or deadline expiry. Teardown is a
// single deferred path, so registry membership can never outlive the
// socket.
func (h *Hub) readLoop(c *Conn) {
	defer func() {
		removed := h.reg.Drop(c)
		c.nc.Close()
		h.m.SubscriptionsActive.Sub(float64(removed))
		h.m.ConnectionsActive.Dec()
		slog.Debug("hub: client disconnected", "remote", c.RemoteAddr(), "subscriptions", removed)
	}()

	for {
		c.nc.SetReadDeadline(time.Now().Add(time.Duration(h.readDeadline.Load()))) //nolint:errcheck
		f, err := c.rd.ReadFrame()
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				slog.Debug("hub: read deadline expired", "remote", c.RemoteAddr())
			} else {
				slog.Debug("hub: read failed", "remote", c.RemoteAddr(), "err", err)
			}
			return
		}
		if f == nil {
			// Clean end-of-stream.
			return
		}

		switch f.Opcode {
		case wire.OpPing:
			// Reply before reading anything else, echoing the payload.
			if err := c.writeFrame(wire.OpPong, f.Payload); err != nil {
				return
			}
		case wire.OpClose:
			c.writeFrame(wire.OpClose, nil) //nolint:errcheck
			return
		case wire.OpText:
			h.handleEnvelope(c, f.Payload)
		default:
			// Binary and unsolicited pong frames carry no meaning here.
		}
	}
}

// handleEnvelope interprets one client text frame. Malformed JSON and
// unknown types are ignored — they are not protocol errors and must not
// kill the connection.
func (h *Hub) handleEnvelope(c *Conn, payload []byte) {
	var env clientEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		slog.Debug("hub: ignoring malformed envelope", "remote", c.RemoteAddr(), "err", err)
		return
	}

	switch env.Type {
	case "subscribe":
		if env.Stream == "" {
			return
		}
		if h.reg.Subscribe(c, env.Stream) {
			h.m.SubscriptionsActive.Inc()
		}
		ack, err := json.Marshal(serverEnvelope{Type: "subscribed", Stream: env.Stream})
		if err == nil {
			c.writeFrame(wire.OpText, ack) //nolint:errcheck
		}
	case "unsubscribe":
		if h.reg.Unsubscribe(c, env.Stream) {
			h.m.SubscriptionsActive.Dec()
		}
	case "pong":
		// Acknowledges a liveness probe; nothing to do.
	default:
		slog.Debug("hub: ignoring envelope", "remote", c.RemoteAddr(), "type", env.Type)
	}
}

// Broadcast fans data out to every connection subscribed to stream at
// snapshot time. The envelope is encoded once and written to each
// subscriber sequentially, outside the registry lock. A failed write is
// logged and swallowed; the dead connection is reaped lazily by its own
// reader loop. Connections that subscribe after the snapshot do not receive
// this broadcast.
func (h *Hub) Broadcast(stream string, data json.RawMessage) error {
	payload, err := json.Marshal(messageEnvelope{Type: "message", Stream: stream, Data: data})
	if err != nil {
		return fmt.Errorf("hub: encode envelope: %w", err)
	}
	frame := wire.EncodeFrame(wire.OpText, payload)

	h.m.BroadcastsTotal.Inc()
	targets := h.reg.Snapshot(stream)
	for _, c := range targets {
		if err := c.writeRaw(frame); err != nil {
			h.m.DeliveryErrors.Inc()
			slog.Warn("hub: dropped delivery", "stream", stream, "remote", c.RemoteAddr(), "err", err)
			continue
		}
		h.m.DeliveriesTotal.Inc()
	}
	slog.Debug("hub: broadcast dispatched", "stream", stream, "subscribers", len(targets))
	return nil
}

// BroadcastHTML broadcasts an HTML fragment; subscribers receive data as a
// JSON string.
func (h *Hub) BroadcastHTML(stream, html string) error {
	data, err := json.Marshal(html)
	if err != nil {
		return fmt.Errorf("hub: encode html payload: %w", err)
	}
	return h.Broadcast(stream, data)
}

// BroadcastJSON broadcasts any JSON-serializable value; subscribers receive
// data as the structured value, not a string.
func (h *Hub) BroadcastJSON(stream string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("hub: encode json payload: %w", err)
	}
	return h.Broadcast(stream, data)
}
