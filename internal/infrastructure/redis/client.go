package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-signup-api/internal/config"
	"github.com/go-signup-api/internal/domain"
	"github.com/redis/go-redis/v9"
)

// maxCASRetries bounds the optimistic retry loop in Update.
const maxCASRetries = 4

// Client wraps a Redis connection with the small operation set the engine
// needs: get, set-with-TTL, atomic increments, delete, pipelined batches and
// an optimistic check-and-set. Every call carries a bounded timeout; a store
// failure surfaces as domain.ErrStoreUnavailable so callers treat it as
// "unknown state", never as "false".
type Client struct {
	rdb     *redis.Client
	timeout time.Duration
}

// NewClient dials Redis using the application config.
func NewClient(cfg *config.Config) *Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return &Client{rdb: rdb, timeout: cfg.RedisTimeout}
}

// NewClientWith wraps an existing connection. Used by tests (miniredis).
func NewClientWith(rdb *redis.Client, timeout time.Duration) *Client {
	return &Client{rdb: rdb, timeout: timeout}
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func (c *Client) Close() error { return c.rdb.Close() }

// Get returns the value at key and whether the key exists.
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	v, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return v, true, nil
}

// SetWithTTL stores value under key with the given expiry.
func (c *Client) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// Incr atomically increments key, creating it at 1 when absent.
func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	n, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return n, nil
}

// IncrWindow increments key and sets the expiry only when this increment
// created the key, so an existing window is never extended.
func (c *Client) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	n, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	if n == 1 {
		if err := c.rdb.Expire(ctx, key, window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
		}
	}
	return n, nil
}

// Del removes the given keys. Deleting absent keys is not an error.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// OpKind selects the operation carried by an Op.
type OpKind int

const (
	OpSet OpKind = iota
	OpDel
)

// Op is one entry of a pipelined batch.
type Op struct {
	Kind  OpKind
	Key   string
	Value string
	TTL   time.Duration
}

// Batch executes multiple set/delete operations as a single MULTI/EXEC
// round trip.
func (c *Client) Batch(ctx context.Context, ops []Op) error {
	if len(ops) == 0 {
		return nil
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		applyOps(ctx, pipe, ops)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func applyOps(ctx context.Context, pipe redis.Pipeliner, ops []Op) {
	for _, op := range ops {
		switch op.Kind {
		case OpSet:
			pipe.Set(ctx, op.Key, op.Value, op.TTL)
		case OpDel:
			pipe.Del(ctx, op.Key)
		}
	}
}

// Mutation is the write an Update callback wants committed. Extra operations
// are applied in the same transaction as the key write, so a sibling delete
// (e.g. a consumed OTP) cannot be lost to a crash between two writes.
type Mutation struct {
	Value  string
	TTL    time.Duration
	Delete bool // delete the watched key instead of writing Value
	Extra  []Op
}

// Update runs an optimistic check-and-set on key: the current value is read
// under WATCH, apply decides the mutation, and the commit fails (and is
// retried with a fresh read) when any concurrent writer touched the key in
// between. Errors returned by apply pass through unchanged so business
// rules keep their identity.
func (c *Client) Update(ctx context.Context, key string, apply func(current string, exists bool) (*Mutation, error)) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	for i := 0; i < maxCASRetries; i++ {
		err := c.rdb.Watch(ctx, func(tx *redis.Tx) error {
			current, err := tx.Get(ctx, key).Result()
			exists := true
			if errors.Is(err, redis.Nil) {
				current, exists = "", false
			} else if err != nil {
				return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
			}

			m, err := apply(current, exists)
			if err != nil {
				return err
			}
			if m == nil {
				return nil
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if m.Delete {
					pipe.Del(ctx, key)
				} else {
					pipe.Set(ctx, key, m.Value, m.TTL)
				}
				applyOps(ctx, pipe, m.Extra)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("%w: check-and-set contention on %s", domain.ErrStoreUnavailable, key)
}
