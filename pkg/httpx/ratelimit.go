package httpx

import (
	"net/http"
	"strconv"
	"time"

	"github.com/aussiebroadwan/folio/pkg/ratelimit"
	"github.com/aussiebroadwan/folio/pkg/slogx"
)

// RateLimit consults l for every request, keyed by key, and answers 429 with
// a Retry-After hint once the key is over its allowance.
func RateLimit(l ratelimit.Limiter, key KeyExtractor) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if Allow(w, r, l, key) {
				next.ServeHTTP(w, r)
			}
		})
	}
}

// Allow records one attempt for r against l. It sets the X-RateLimit headers
// and reports true when the request may proceed; otherwise the 429 reply has
// already been written. Limiter failures are logged and the request is let
// through.
func Allow(w http.ResponseWriter, r *http.Request, l ratelimit.Limiter, key KeyExtractor) bool {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	k := key(r)
	if k == "" {
		// If we can't extract a key, allow the request but log it
		log.Warn("rate limit: unable to extract key, allowing request")
		return true
	}

	d, err := l.Check(ctx, k)
	if err != nil {
		log.Error("rate limit: limiter unavailable, allowing request", "key", k, "err", err)
		return true
	}

	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

	if d.Allowed {
		return true
	}

	retryAfter := max(d.RetryAfter, time.Second)
	w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter/time.Second)))

	log.Warn("rate limit exceeded",
		"key", k,
		"endpoint", r.URL.Path,
		"retry_after", retryAfter.String(),
	)

	WriteError(w, http.StatusTooManyRequests, "rate_limited", "Too many attempts. Please try again later.")
	return false
}
