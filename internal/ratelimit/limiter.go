package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-signup-api/internal/config"
	"github.com/go-signup-api/internal/domain"
	redisstore "github.com/go-signup-api/internal/infrastructure/redis"
)

const keyPrefix = "rate_limit"

// IdentityKind tells which client identity keys the counter.
type IdentityKind string

const (
	IdentityMachine IdentityKind = "machineId"
	IdentityIP      IdentityKind = "ip"
)

// Identity is the resolved client identity for one request.
type Identity struct {
	Kind  IdentityKind
	Value string
}

// Limiter enforces a distributed fixed-window counter per (identity, route).
// Store failures honor the tier's fail-open/fail-closed policy; fail-open is
// the default so a Redis outage degrades limiting, not availability.
type Limiter struct {
	store *redisstore.Client
}

func NewLimiter(store *redisstore.Client) *Limiter {
	return &Limiter{store: store}
}

// Allow checks and consumes one slot of the tier's window. A nil return means
// the request may proceed. Over-limit requests fail with a
// domain.RateLimitError carrying the retry-after hint; a missing required
// identity is rejected before any store round trip.
func (l *Limiter) Allow(ctx context.Context, id Identity, route string, tier config.RateTier) error {
	if tier.RequireMachineID && (id.Kind != IdentityMachine || id.Value == "") {
		return fmt.Errorf("x-machine-id header required: %w", domain.ErrMissingIdentity)
	}
	if id.Value == "" {
		return fmt.Errorf("no client identity resolved: %w", domain.ErrMissingIdentity)
	}

	key := fmt.Sprintf("%s:%s:%s:%s", keyPrefix, id.Kind, id.Value, route)
	count, err := l.store.IncrWindow(ctx, key, tier.Window)
	if err != nil {
		if tier.FailClosed {
			return fmt.Errorf("rate limiter unavailable: %w", domain.ErrStoreUnavailable)
		}
		slog.Warn("rate limiter store error, failing open", "route", route, "err", err)
		return nil
	}

	if count > int64(tier.Limit) {
		slog.Warn("rate limit exceeded",
			"kind", string(id.Kind),
			"route", route,
			"limit", tier.Limit,
			"current", count,
		)
		return &domain.RateLimitError{
			RetryAfter: int(tier.Window / time.Second),
			Limit:      tier.Limit,
		}
	}
	return nil
}
