package api

import (
	"net"
	"net/http"
)

// requireLoopback rejects any request whose transport peer is not a loopback
// address, before the body is touched. The check uses RemoteAddr only:
// Forwarded/X-Forwarded-For headers are attacker-controlled and must not
// widen this boundary.
func (h *Handler) requireLoopback(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !isLoopback(r.RemoteAddr) {
			h.metrics.IngressRejected.Inc()
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

// isLoopback reports whether remoteAddr ("host:port" or a bare host) is in
// 127.0.0.0/8 or equal to ::1.
func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
