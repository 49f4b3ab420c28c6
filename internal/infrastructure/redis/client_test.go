package redisstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-signup-api/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewClientWith(rdb, time.Second), mr
}

func TestGet_MissingKey(t *testing.T) {
	c, _ := newTestClient(t)

	v, found, err := c.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, v)
}

func TestSetWithTTL_RoundTrip(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.SetWithTTL(ctx, "k", "v", time.Minute))

	v, found, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v", v)

	mr.FastForward(2 * time.Minute)
	_, found, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestIncrWindow_ExpiresOnlyOnFirstIncrement(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	n, err := c.IncrWindow(ctx, "w", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// Second increment must not push the window's expiry out.
	mr.FastForward(30 * time.Second)
	n, err = c.IncrWindow(ctx, "w", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	mr.FastForward(31 * time.Second)
	n, err = c.IncrWindow(ctx, "w", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "window should have reset")
}

func TestBatch_SetAndDelete(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.SetWithTTL(ctx, "old", "x", time.Minute))
	require.NoError(t, c.Batch(ctx, []Op{
		{Kind: OpSet, Key: "a", Value: "1", TTL: time.Minute},
		{Kind: OpSet, Key: "b", Value: "2", TTL: time.Minute},
		{Kind: OpDel, Key: "old"},
	}))

	v, found, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "1", v)

	_, found, err = c.Get(ctx, "old")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestUpdate_WritesMutation(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.SetWithTTL(ctx, "k", "1", time.Minute))
	err := c.Update(ctx, "k", func(current string, exists bool) (*Mutation, error) {
		require.True(t, exists)
		require.Equal(t, "1", current)
		return &Mutation{Value: "2", TTL: time.Minute}, nil
	})
	require.NoError(t, err)

	v, _, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "2", v)
}

func TestUpdate_ApplyErrorPassesThrough(t *testing.T) {
	c, _ := newTestClient(t)

	sentinel := errors.New("business rule")
	err := c.Update(context.Background(), "k", func(current string, exists bool) (*Mutation, error) {
		assert.False(t, exists)
		return nil, sentinel
	})
	assert.ErrorIs(t, err, sentinel)
}

func TestUpdate_NilMutationWritesNothing(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	err := c.Update(ctx, "k", func(current string, exists bool) (*Mutation, error) {
		return nil, nil
	})
	require.NoError(t, err)

	_, found, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestUpdate_ExtraOpsCommitTogether(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.SetWithTTL(ctx, "main", "old", time.Minute))
	require.NoError(t, c.SetWithTTL(ctx, "side", "x", time.Minute))

	err := c.Update(ctx, "main", func(current string, exists bool) (*Mutation, error) {
		return &Mutation{
			Value: "new",
			TTL:   time.Minute,
			Extra: []Op{{Kind: OpDel, Key: "side"}},
		}, nil
	})
	require.NoError(t, err)

	v, _, err := c.Get(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, "new", v)

	_, found, err := c.Get(ctx, "side")
	require.NoError(t, err)
	assert.False(t, found, "side key must be deleted in the same transaction")
}

func TestUpdate_DeleteMutation(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.SetWithTTL(ctx, "k", "v", time.Minute))
	err := c.Update(ctx, "k", func(current string, exists bool) (*Mutation, error) {
		return &Mutation{Delete: true}, nil
	})
	require.NoError(t, err)

	_, found, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStoreErrors_WrapUnavailable(t *testing.T) {
	c, mr := newTestClient(t)
	mr.Close()

	_, _, err := c.Get(context.Background(), "k")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)

	err = c.SetWithTTL(context.Background(), "k", "v", time.Minute)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}
