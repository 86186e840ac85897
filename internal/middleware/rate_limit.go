package middleware

import (
	"net"
	"net/http"
	"strconv"

	"medivault/internal/observability"
	"medivault/internal/ratelimit"
)

// RateLimit enforces the category's limit against the store-backed
// checker. Authenticated requests are limited per user, anonymous ones
// per client IP. Limit headers are set on every response; a denial gets
// 429 with Retry-After.
func RateLimit(checker ratelimit.Checker, category string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identifier := identify(r, category)

			res, err := checker.Check(r.Context(), identifier)
			if err != nil {
				// checkers fail open internally; an error here is a bug,
				// but blocking traffic on it would be worse
				observability.FromContext(r.Context()).Error("rate limit check failed, admitting request",
					"identifier", identifier,
					"error", err.Error())
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

			if !res.Allowed {
				observability.RateLimitDecisions.WithLabelValues(category, "denied").Inc()
				retryAfter := int(res.RetryAfter.Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				writeJSONError(w, http.StatusTooManyRequests, "Rate limit exceeded")
				return
			}

			observability.RateLimitDecisions.WithLabelValues(category, "allowed").Inc()
			next.ServeHTTP(w, r)
		})
	}
}

// identify scopes the limit to the authenticated user when present,
// otherwise to the client IP. Category is part of the identifier so each
// endpoint class counts independently.
func identify(r *http.Request, category string) string {
	if userID, ok := GetUserID(r.Context()); ok {
		return "user:" + userID + ":" + category
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RealIP middleware may have already stripped the port
		host = r.RemoteAddr
	}
	return "ip:" + host + ":" + category
}
