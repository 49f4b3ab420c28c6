package machine

import (
	"context"
	"testing"
	"time"

	redisstore "github.com/go-signup-api/internal/infrastructure/redis"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, ttl time.Duration) (Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewService(redisstore.NewClientWith(rdb, time.Second), ttl), mr
}

func TestEnsure_MintsNewID(t *testing.T) {
	svc, _ := newTestService(t, time.Hour)

	id, created, err := svc.Ensure(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, id)

	known, err := svc.Exists(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, known)
}

func TestEnsure_RecognizesKnownID(t *testing.T) {
	svc, _ := newTestService(t, time.Hour)
	ctx := context.Background()

	id, _, err := svc.Ensure(ctx, "")
	require.NoError(t, err)

	same, created, err := svc.Ensure(ctx, id)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id, same)
}

func TestEnsure_ReplacesUnknownID(t *testing.T) {
	svc, _ := newTestService(t, time.Hour)

	id, created, err := svc.Ensure(context.Background(), "forged-or-expired")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, "forged-or-expired", id)
}

func TestEnsure_ExpiredIDIsReplaced(t *testing.T) {
	svc, mr := newTestService(t, time.Minute)
	ctx := context.Background()

	id, _, err := svc.Ensure(ctx, "")
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	fresh, created, err := svc.Ensure(ctx, id)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, id, fresh)
}
