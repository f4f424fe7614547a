package hub_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/streamcast/streamcast/internal/hub"
)

// envelope mirrors the server's wire envelope from the client's side.
type envelope struct {
	Type   string          `json:"type"`
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// --- helpers ----------------------------------------------------------------

// startHub starts a test HTTP server fronting a fresh hub.
// Returns the ws:// URL and the hub.
func startHub(t *testing.T, opts hub.Options) (string, *hub.Hub) {
	t.Helper()

	h := hub.New(opts)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(h.ServeHTTP))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	return "ws" + strings.TrimPrefix(srv.URL, "http"), h
}

// dial connects a WebSocket client using an independent RFC 6455
// implementation, which doubles as an interop check of the handshake and
// frame layer.
func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readEnvelope reads one text message from conn with a short deadline.
func readEnvelope(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	return env
}

// subscribe sends a subscribe envelope and waits for the ack, which also
// guarantees the server has registered the subscription.
func subscribe(t *testing.T, conn *websocket.Conn, stream string) {
	t.Helper()
	if err := conn.WriteJSON(map[string]string{"type": "subscribe", "stream": stream}); err != nil {
		t.Fatalf("subscribe %s: %v", stream, err)
	}
	env := readEnvelope(t, conn)
	if env.Type != "subscribed" || env.Stream != stream {
		t.Fatalf("ack: got %+v, want subscribed %s", env, stream)
	}
}

// expectSilence asserts that no message arrives on conn within d.
func expectSilence(t *testing.T, conn *websocket.Conn, d time.Duration) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(d))
	if _, msg, err := conn.ReadMessage(); err == nil {
		t.Fatalf("unexpected message: %s", msg)
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

// --- tests ------------------------------------------------------------------

func TestHub_SubscribeAcknowledged(t *testing.T) {
	wsURL, _ := startHub(t, hub.Options{})
	conn := dial(t, wsURL)
	subscribe(t, conn, "counter")
}

func TestHub_BroadcastDeliveredToSubscriber(t *testing.T) {
	wsURL, h := startHub(t, hub.Options{})
	conn := dial(t, wsURL)
	subscribe(t, conn, "counter")

	if err := h.BroadcastHTML("counter", "<turbo-stream>...</turbo-stream>"); err != nil {
		t.Fatalf("BroadcastHTML: %v", err)
	}

	env := readEnvelope(t, conn)
	if env.Type != "message" || env.Stream != "counter" {
		t.Fatalf("envelope: got %+v", env)
	}
	var html string
	if err := json.Unmarshal(env.Data, &html); err != nil {
		t.Fatalf("data: %v", err)
	}
	if html != "<turbo-stream>...</turbo-stream>" {
		t.Errorf("data: got %q", html)
	}

	// Exactly one delivery per broadcast.
	expectSilence(t, conn, 150*time.Millisecond)
}

func TestHub_StructuredPayloadStaysStructured(t *testing.T) {
	wsURL, h := startHub(t, hub.Options{})
	conn := dial(t, wsURL)
	subscribe(t, conn, "progress")

	if err := h.BroadcastJSON("progress", map[string]int{"progress": 50}); err != nil {
		t.Fatalf("BroadcastJSON: %v", err)
	}

	env := readEnvelope(t, conn)
	var data map[string]int
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("data is not a nested object: %v (%s)", err, env.Data)
	}
	if data["progress"] != 50 {
		t.Errorf("progress: got %d, want 50", data["progress"])
	}
}

func TestHub_UnsubscribeStopsDelivery(t *testing.T) {
	wsURL, h := startHub(t, hub.Options{})
	conn := dial(t, wsURL)
	subscribe(t, conn, "counter")

	if err := conn.WriteJSON(map[string]string{"type": "unsubscribe", "stream": "counter"}); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	// Subscribing to a second stream and waiting for its ack proves the
	// server has already processed the unsubscribe.
	subscribe(t, conn, "other")

	h.BroadcastHTML("counter", "lost") //nolint:errcheck
	h.BroadcastHTML("other", "kept")   //nolint:errcheck

	env := readEnvelope(t, conn)
	if env.Stream != "other" {
		t.Errorf("first delivery after unsubscribe: got stream %q, want other", env.Stream)
	}
}

func TestHub_FanoutReachesAllSubscribersOfStream(t *testing.T) {
	wsURL, h := startHub(t, hub.Options{})

	a := dial(t, wsURL)
	b := dial(t, wsURL)
	c := dial(t, wsURL)
	subscribe(t, a, "s")
	subscribe(t, b, "s")
	subscribe(t, c, "t")

	h.BroadcastHTML("s", "for-s") //nolint:errcheck

	for name, conn := range map[string]*websocket.Conn{"a": a, "b": b} {
		env := readEnvelope(t, conn)
		if env.Stream != "s" {
			t.Errorf("%s: got stream %q, want s", name, env.Stream)
		}
	}

	// c is subscribed only to t and must see nothing from the s broadcast.
	h.BroadcastHTML("t", "for-t") //nolint:errcheck
	env := readEnvelope(t, c)
	if env.Stream != "t" {
		t.Errorf("c: first delivery was for stream %q, want t", env.Stream)
	}
}

func TestHub_PingAnsweredWithSamePayload(t *testing.T) {
	wsURL, _ := startHub(t, hub.Options{})
	conn := dial(t, wsURL)

	pongs := make(chan string, 1)
	conn.SetPongHandler(func(payload string) error {
		pongs <- payload
		return nil
	})

	if err := conn.WriteControl(websocket.PingMessage, []byte("are-you-there"), time.Now().Add(time.Second)); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	// The pong must come back before the subscribe ack: the server replies
	// to a ping before reading the next frame. Reading the ack pumps the
	// pong through the handler.
	subscribe(t, conn, "counter")

	select {
	case payload := <-pongs:
		if payload != "are-you-there" {
			t.Errorf("pong payload: got %q, want are-you-there", payload)
		}
	default:
		t.Error("no pong received before the subscribe ack")
	}
}

func TestHub_MalformedEnvelopesIgnored(t *testing.T) {
	wsURL, _ := startHub(t, hub.Options{})
	conn := dial(t, wsURL)

	for _, raw := range []string{"not json", `{"type":42}`, `{"type":"push","stream":"s"}`, `{"stream":"s"}`} {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
			t.Fatalf("write %q: %v", raw, err)
		}
	}

	// The connection must still be alive and functional.
	subscribe(t, conn, "counter")
}

func TestHub_CountTracksConnections(t *testing.T) {
	wsURL, h := startHub(t, hub.Options{})

	conns := make([]*websocket.Conn, 3)
	for i := range conns {
		conns[i] = dial(t, wsURL)
	}
	waitFor(t, 2*time.Second, func() bool { return h.Count() == 3 }, "Count never reached 3")

	conns[0].Close()
	waitFor(t, 2*time.Second, func() bool { return h.Count() == 2 }, "Count never dropped to 2")
}

func TestHub_DisconnectPrunesRegistry(t *testing.T) {
	wsURL, h := startHub(t, hub.Options{})

	for i := 0; i < 3; i++ {
		conn := dial(t, wsURL)
		subscribe(t, conn, "shared")
		conn.Close()
	}

	waitFor(t, 2*time.Second, func() bool { return h.Count() == 0 && h.Streams() == 0 },
		"registry kept entries after all subscribers disconnected")
}

func TestHub_ReadDeadlineReapsSilentConnection(t *testing.T) {
	wsURL, h := startHub(t, hub.Options{ReadDeadline: 250 * time.Millisecond})

	conn := dial(t, wsURL)
	subscribe(t, conn, "counter")
	waitFor(t, 2*time.Second, func() bool { return h.Count() == 1 }, "connection never tracked")

	// Send nothing. The deadline must tear the connection down and sweep
	// its subscriptions.
	waitFor(t, 2*time.Second, func() bool { return h.Count() == 0 && h.Streams() == 0 },
		"silent connection not reaped by read deadline")
}

func TestHub_BroadcastToDeadSocketIsSwallowed(t *testing.T) {
	wsURL, h := startHub(t, hub.Options{})

	conn := dial(t, wsURL)
	subscribe(t, conn, "counter")
	conn.UnderlyingConn().Close()

	// Best-effort delivery: the write may fail but Broadcast must not.
	if err := h.BroadcastHTML("counter", "into the void"); err != nil {
		t.Errorf("BroadcastHTML: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return h.Count() == 0 },
		"dead connection never reaped")
}

func TestHub_BroadcastWithNoSubscribers(t *testing.T) {
	_, h := startHub(t, hub.Options{})
	if err := h.BroadcastHTML("nobody-home", "hello"); err != nil {
		t.Errorf("BroadcastHTML: %v", err)
	}
}

func TestHub_RunCancelClosesConnections(t *testing.T) {
	h := hub.New(hub.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(h.ServeHTTP))
	defer srv.Close()

	conn := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http"))
	subscribe(t, conn, "counter")

	cancel()
	waitFor(t, 2*time.Second, func() bool { return h.Count() == 0 },
		"connections survived hub shutdown")
}

func TestHub_NonWebSocketRequest_Returns400(t *testing.T) {
	h := hub.New(hub.Options{})
	srv := httptest.NewServer(http.HandlerFunc(h.ServeHTTP))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
}
