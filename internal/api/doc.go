// Package api is the HTTP surface of streamcast.
//
// Routes:
//
//	GET  /ws            — WebSocket upgrade, served by the hub
//	POST /v1/broadcast  — broadcast trigger, loopback callers only
//	GET  /v1/healthz    — liveness probe with connection counts
//	GET  /metrics       — Prometheus exposition
//
// The broadcast trigger accepts {"stream": string, "data": string|object}
// and answers 200 "OK" once the fan-out has been attempted. It carries raw,
// unescaped payload content that is forwarded to browsers verbatim, so it
// is gated on the caller's remote address being loopback (127.0.0.0/8 or
// ::1): anything else gets a 403 before the body is read. Do not mount this
// behind a proxy that rewrites RemoteAddr.
package api
