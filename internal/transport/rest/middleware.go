package rest

import (
	"net"
	"net/http"
	"strings"

	"github.com/sitebeacon/stats-service/internal/domain"
)

// clientIP resolves the caller address: CDN-injected client IP first, then
// the first X-Forwarded-For entry, then the connection address. The result
// may be "" when nothing is usable; the core maps that to Unknown.
//
// X-Forwarded-For is spoofable by clients that do not sit behind the
// trusted proxy; for a public beacon endpoint that only feeds coarse geo
// stats this is an accepted tradeoff.
func clientIP(r *http.Request) string {
	if cf := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); cf != "" {
		return cf
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first := strings.TrimSpace(strings.SplitN(xff, ",", 2)[0]); first != "" {
			return first
		}
	}
	if host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr)); err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}

// clientMeta gathers the request-scoped state ingestion needs, so the
// service layer never touches the *http.Request.
func clientMeta(r *http.Request) domain.ClientMeta {
	return domain.ClientMeta{
		Origin:    r.Header.Get("Origin"),
		Referer:   r.Header.Get("Referer"),
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	}
}

func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}
