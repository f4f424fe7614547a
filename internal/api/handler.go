package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/streamcast/streamcast/internal/hub"
	"github.com/streamcast/streamcast/internal/metrics"
)

// BroadcastRequest is the body of POST /v1/broadcast. Data is either an
// HTML-fragment string or an arbitrary JSON value; the server never
// interprets it.
type BroadcastRequest struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// HealthResponse is the payload for GET /v1/healthz.
type HealthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	Streams     int    `json:"streams"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}

// Handler routes all HTTP traffic: the WebSocket endpoint, the
// loopback-only broadcast trigger, health and metrics.
type Handler struct {
	hub     *hub.Hub
	metrics *metrics.Metrics
	router  chi.Router
	tracer  trace.Tracer
}

// New creates a Handler wired to the given hub and registers all routes.
// gatherer serves /metrics; pass the same registry the collectors were
// registered with.
func New(h *hub.Hub, m *metrics.Metrics, gatherer prometheus.Gatherer) http.Handler {
	hd := &Handler{
		hub:     h,
		metrics: m,
		router:  chi.NewRouter(),
		tracer:  otel.Tracer("streamcast/api"),
	}

	hd.router.Get("/ws", h.ServeHTTP)
	hd.router.Post("/v1/broadcast", hd.requireLoopback(hd.broadcast))
	hd.router.Get("/v1/healthz", hd.healthz)
	hd.router.Method(http.MethodGet, "/metrics",
		promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return hd
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// broadcast handles POST /v1/broadcast. The loopback guard has already run.
func (h *Handler) broadcast(w http.ResponseWriter, r *http.Request) {
	var req BroadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Stream == "" {
		jsonErr(w, http.StatusBadRequest, "missing stream")
		return
	}
	if len(req.Data) == 0 {
		jsonErr(w, http.StatusBadRequest, "missing data")
		return
	}

	_, span := h.tracer.Start(r.Context(), "streamcast.broadcast",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("streamcast.stream", req.Stream)),
	)
	defer span.End()

	if err := h.hub.Broadcast(req.Stream, req.Data); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("api: broadcast failed", "stream", req.Stream, "err", err)
		jsonErr(w, http.StatusBadRequest, "invalid data payload")
		return
	}
	span.SetStatus(codes.Ok, "")

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK")) //nolint:errcheck
}

// healthz returns GET /v1/healthz.
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, http.StatusOK, HealthResponse{
		Status:      "ok",
		Connections: h.hub.Count(),
		Streams:     h.hub.Streams(),
	})
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
