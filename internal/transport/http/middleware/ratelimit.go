package middleware

import (
	"errors"
	"net"
	"net/http"
	"strconv"

	"github.com/go-signup-api/internal/config"
	"github.com/go-signup-api/internal/domain"
	"github.com/go-signup-api/internal/ratelimit"
)

// MachineIDHeader carries the client's long-lived device identifier.
const MachineIDHeader = "X-Machine-Id"

// ResolveIdentity picks the rate-limit identity for a request: the machine id
// header when present, otherwise the remote IP.
func ResolveIdentity(r *http.Request) ratelimit.Identity {
	if id := r.Header.Get(MachineIDHeader); id != "" {
		return ratelimit.Identity{Kind: ratelimit.IdentityMachine, Value: id}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return ratelimit.Identity{Kind: ratelimit.IdentityIP, Value: host}
}

// RateLimit enforces the route's fixed-window budget before the handler runs.
func RateLimit(limiter *ratelimit.Limiter, route string, tier config.RateTier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			err := limiter.Allow(r.Context(), ResolveIdentity(r), route, tier)
			if err == nil {
				next.ServeHTTP(w, r)
				return
			}

			var rle *domain.RateLimitError
			switch {
			case errors.As(err, &rle):
				w.Header().Set("Retry-After", strconv.Itoa(rle.RetryAfter))
				writeJSONError(w, http.StatusTooManyRequests, err.Error())
			case errors.Is(err, domain.ErrMissingIdentity):
				writeJSONError(w, http.StatusBadRequest, err.Error())
			default:
				writeJSONError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
			}
		})
	}
}
