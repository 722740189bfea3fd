package httpx

import (
	"net"
	"net/http"
	"strings"
)

// KeyExtractor is a function that extracts a unique key from the request
// for rate limiting purposes (e.g., IP address, account id).
type KeyExtractor func(*http.Request) string

// ClientIP returns the caller's network address.
//
// The first entry of X-Forwarded-For wins, then X-Real-IP, then the direct
// connection's RemoteAddr. This trusts whatever sits in front of the service:
// it is only correct behind a reverse proxy that overwrites these headers.
// Deployments exposed directly to clients must strip them at the edge.
func ClientIP(r *http.Request) string {
	// Check X-Forwarded-For header (comma-separated list)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// PrefixedIP returns a KeyExtractor producing "{prefix}:{client ip}".
func PrefixedIP(prefix string) KeyExtractor {
	return func(r *http.Request) string {
		ip := ClientIP(r)
		if ip == "" {
			return ""
		}
		return prefix + ":" + ip
	}
}
