package otp

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-signup-api/internal/domain"
	redisstore "github.com/go-signup-api/internal/infrastructure/redis"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, ttl time.Duration) (Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewService(redisstore.NewClientWith(rdb, time.Second), 6, ttl), mr
}

func TestGenerate_LengthAndCharset(t *testing.T) {
	for _, length := range []int{4, 6, 8} {
		code, err := Generate(length)
		require.NoError(t, err)
		require.Len(t, code, length)
		for _, r := range code {
			assert.True(t, r >= '0' && r <= '9', "code %q must be numeric", code)
		}
	}
}

func TestIssueAndValidate(t *testing.T) {
	svc, _ := newTestService(t, time.Minute)
	ctx := context.Background()

	code, err := svc.Issue(ctx, domain.ChannelEmail, "User@Example.com")
	require.NoError(t, err)
	require.Len(t, code, 6)

	// Identifier matching is case-insensitive.
	assert.NoError(t, svc.Validate(ctx, domain.ChannelEmail, "user@example.com", code))
}

func TestValidate_WrongCode(t *testing.T) {
	svc, _ := newTestService(t, time.Minute)
	ctx := context.Background()

	code, err := svc.Issue(ctx, domain.ChannelMobile, "+15550001111")
	require.NoError(t, err)

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	err = svc.Validate(ctx, domain.ChannelMobile, "+15550001111", wrong)
	assert.ErrorIs(t, err, domain.ErrInvalidCode)

	// A failed validation must not consume the live code.
	assert.NoError(t, svc.Validate(ctx, domain.ChannelMobile, "+15550001111", code))
}

func TestValidate_ExpiredOrAbsent(t *testing.T) {
	svc, mr := newTestService(t, time.Minute)
	ctx := context.Background()

	err := svc.Validate(ctx, domain.ChannelEmail, "a@b.com", "123456")
	assert.ErrorIs(t, err, domain.ErrCodeExpired)

	code, err := svc.Issue(ctx, domain.ChannelEmail, "a@b.com")
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)

	err = svc.Validate(ctx, domain.ChannelEmail, "a@b.com", code)
	assert.ErrorIs(t, err, domain.ErrCodeExpired)
}

func TestIssue_OverwritesPriorCode(t *testing.T) {
	svc, _ := newTestService(t, time.Minute)
	ctx := context.Background()

	first, err := svc.Issue(ctx, domain.ChannelEmail, "a@b.com")
	require.NoError(t, err)
	second, err := svc.Issue(ctx, domain.ChannelEmail, "a@b.com")
	require.NoError(t, err)

	if first != second {
		assert.ErrorIs(t, svc.Validate(ctx, domain.ChannelEmail, "a@b.com", first), domain.ErrInvalidCode)
	}
	assert.NoError(t, svc.Validate(ctx, domain.ChannelEmail, "a@b.com", second))
}

func TestIssueBatch_FillsCodesAndStoresAll(t *testing.T) {
	svc, _ := newTestService(t, time.Minute)
	ctx := context.Background()

	pairs := []Issued{
		{Channel: domain.ChannelEmail, Identifier: "a@b.com"},
		{Channel: domain.ChannelMobile, Identifier: "+15550001111"},
	}
	require.NoError(t, svc.IssueBatch(ctx, pairs))

	for _, p := range pairs {
		require.Len(t, p.Code, 6)
		assert.NoError(t, svc.Validate(ctx, p.Channel, p.Identifier, p.Code))
	}
}

func TestInvalidate(t *testing.T) {
	svc, _ := newTestService(t, time.Minute)
	ctx := context.Background()

	code, err := svc.Issue(ctx, domain.ChannelEmail, "a@b.com")
	require.NoError(t, err)

	require.NoError(t, svc.Invalidate(ctx, domain.ChannelEmail, "a@b.com"))
	assert.ErrorIs(t, svc.Validate(ctx, domain.ChannelEmail, "a@b.com", code), domain.ErrCodeExpired)
}
