package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-signup-api/internal/config"
	redisstore "github.com/go-signup-api/internal/infrastructure/redis"
	"github.com/go-signup-api/internal/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMiddleware(t *testing.T, tier config.RateTier) (func(http.Handler) http.Handler, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	limiter := ratelimit.NewLimiter(redisstore.NewClientWith(rdb, time.Second))
	return RateLimit(limiter, "register", tier), mr
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(mw func(http.Handler) http.Handler, machineID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/register", nil)
	req.RemoteAddr = "10.0.0.1:54321"
	if machineID != "" {
		req.Header.Set(MachineIDHeader, machineID)
	}
	w := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(w, req)
	return w
}

func TestRateLimit_AllowsUnderBudget(t *testing.T) {
	mw, _ := newTestMiddleware(t, config.RateTier{Limit: 2, Window: time.Minute, RequireMachineID: true})

	assert.Equal(t, http.StatusOK, doRequest(mw, "m1").Code)
	assert.Equal(t, http.StatusOK, doRequest(mw, "m1").Code)
}

func TestRateLimit_BlocksOverBudgetWithRetryAfter(t *testing.T) {
	mw, _ := newTestMiddleware(t, config.RateTier{Limit: 1, Window: time.Minute, RequireMachineID: true})

	require.Equal(t, http.StatusOK, doRequest(mw, "m1").Code)

	w := doRequest(mw, "m1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
}

func TestRateLimit_MissingMachineID(t *testing.T) {
	mw, _ := newTestMiddleware(t, config.RateTier{Limit: 5, Window: time.Minute, RequireMachineID: true})

	w := doRequest(mw, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRateLimit_IPFallbackWhenMachineIDOptional(t *testing.T) {
	mw, _ := newTestMiddleware(t, config.RateTier{Limit: 1, Window: time.Minute})

	assert.Equal(t, http.StatusOK, doRequest(mw, "").Code)
	assert.Equal(t, http.StatusTooManyRequests, doRequest(mw, "").Code)
}

func TestRateLimit_WindowResets(t *testing.T) {
	mw, mr := newTestMiddleware(t, config.RateTier{Limit: 1, Window: time.Minute, RequireMachineID: true})

	require.Equal(t, http.StatusOK, doRequest(mw, "m1").Code)
	require.Equal(t, http.StatusTooManyRequests, doRequest(mw, "m1").Code)

	mr.FastForward(61 * time.Second)
	assert.Equal(t, http.StatusOK, doRequest(mw, "m1").Code)
}

func TestResolveIdentity(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:54321"

	id := ResolveIdentity(req)
	assert.Equal(t, ratelimit.IdentityIP, id.Kind)
	assert.Equal(t, "10.0.0.1", id.Value)

	req.Header.Set(MachineIDHeader, "m1")
	id = ResolveIdentity(req)
	assert.Equal(t, ratelimit.IdentityMachine, id.Kind)
	assert.Equal(t, "m1", id.Value)
}
