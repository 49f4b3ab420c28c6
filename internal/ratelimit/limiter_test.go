package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-signup-api/internal/config"
	"github.com/go-signup-api/internal/domain"
	redisstore "github.com/go-signup-api/internal/infrastructure/redis"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewLimiter(redisstore.NewClientWith(rdb, time.Second)), mr
}

func machineID(v string) Identity {
	return Identity{Kind: IdentityMachine, Value: v}
}

func TestAllow_UnderLimit(t *testing.T) {
	l, _ := newTestLimiter(t)
	tier := config.RateTier{Limit: 3, Window: time.Minute, RequireMachineID: true}

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Allow(context.Background(), machineID("m1"), "register", tier))
	}
}

func TestAllow_OverLimit(t *testing.T) {
	l, _ := newTestLimiter(t)
	tier := config.RateTier{Limit: 2, Window: time.Minute, RequireMachineID: true}

	require.NoError(t, l.Allow(context.Background(), machineID("m1"), "register", tier))
	require.NoError(t, l.Allow(context.Background(), machineID("m1"), "register", tier))

	err := l.Allow(context.Background(), machineID("m1"), "register", tier)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRateLimited)

	var rle *domain.RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, 2, rle.Limit)
	assert.Equal(t, 60, rle.RetryAfter)
}

func TestAllow_WindowResets(t *testing.T) {
	l, mr := newTestLimiter(t)
	tier := config.RateTier{Limit: 1, Window: time.Minute, RequireMachineID: true}

	require.NoError(t, l.Allow(context.Background(), machineID("m1"), "verify", tier))
	require.Error(t, l.Allow(context.Background(), machineID("m1"), "verify", tier))

	mr.FastForward(61 * time.Second)
	require.NoError(t, l.Allow(context.Background(), machineID("m1"), "verify", tier))
}

func TestAllow_IdentitiesAndRoutesAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(t)
	tier := config.RateTier{Limit: 1, Window: time.Minute, RequireMachineID: true}

	require.NoError(t, l.Allow(context.Background(), machineID("m1"), "register", tier))
	require.Error(t, l.Allow(context.Background(), machineID("m1"), "register", tier))

	// Different machine, same route.
	require.NoError(t, l.Allow(context.Background(), machineID("m2"), "register", tier))
	// Same machine, different route.
	require.NoError(t, l.Allow(context.Background(), machineID("m1"), "resend", tier))
}

func TestAllow_MissingRequiredMachineID(t *testing.T) {
	l, _ := newTestLimiter(t)
	tier := config.RateTier{Limit: 5, Window: time.Minute, RequireMachineID: true}

	err := l.Allow(context.Background(), Identity{Kind: IdentityIP, Value: "1.2.3.4"}, "register", tier)
	assert.ErrorIs(t, err, domain.ErrMissingIdentity)

	err = l.Allow(context.Background(), Identity{Kind: IdentityMachine}, "register", tier)
	assert.ErrorIs(t, err, domain.ErrMissingIdentity)
}

func TestAllow_IPIdentityWhenNotRequired(t *testing.T) {
	l, _ := newTestLimiter(t)
	tier := config.RateTier{Limit: 1, Window: time.Minute}

	require.NoError(t, l.Allow(context.Background(), Identity{Kind: IdentityIP, Value: "1.2.3.4"}, "machine-id", tier))
	assert.ErrorIs(t, l.Allow(context.Background(), Identity{Kind: IdentityIP, Value: "1.2.3.4"}, "machine-id", tier), domain.ErrRateLimited)
}

func TestAllow_FailOpenOnStoreOutage(t *testing.T) {
	l, mr := newTestLimiter(t)
	mr.Close()
	tier := config.RateTier{Limit: 1, Window: time.Minute, RequireMachineID: true}

	assert.NoError(t, l.Allow(context.Background(), machineID("m1"), "register", tier))
}

func TestAllow_FailClosedOnStoreOutage(t *testing.T) {
	l, mr := newTestLimiter(t)
	mr.Close()
	tier := config.RateTier{Limit: 1, Window: time.Minute, RequireMachineID: true, FailClosed: true}

	err := l.Allow(context.Background(), machineID("m1"), "register", tier)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}
