package machine

import (
	"context"
	"log/slog"
	"time"

	redisstore "github.com/go-signup-api/internal/infrastructure/redis"
	"github.com/google/uuid"
)

const keyPrefix = "x-machine-id:"

// sentinel stored under the machine key; presence is the only meaningful bit.
const sentinel = "1"

// Service issues and recognizes long-lived per-device identifiers. The id is
// the primary rate-limit key for traffic that has no account yet.
type Service interface {
	Ensure(ctx context.Context, presented string) (id string, created bool, err error)
	Exists(ctx context.Context, id string) (bool, error)
}

type service struct {
	store *redisstore.Client
	ttl   time.Duration
}

func NewService(store *redisstore.Client, ttl time.Duration) Service {
	return &service{store: store, ttl: ttl}
}

// Ensure returns the presented identifier unchanged when the store still
// knows it, otherwise mints a fresh one and records it with the long TTL.
func (s *service) Ensure(ctx context.Context, presented string) (string, bool, error) {
	if presented != "" {
		known, err := s.Exists(ctx, presented)
		if err != nil {
			return "", false, err
		}
		if known {
			slog.Info("existing machine id validated", "machine_id", presented)
			return presented, false, nil
		}
	}

	id := uuid.NewString()
	if err := s.store.SetWithTTL(ctx, keyPrefix+id, sentinel, s.ttl); err != nil {
		return "", false, err
	}
	slog.Info("new machine id created", "machine_id", id)
	return id, true, nil
}

// Exists reports whether the identifier is present in the store.
func (s *service) Exists(ctx context.Context, id string) (bool, error) {
	_, found, err := s.store.Get(ctx, keyPrefix+id)
	return found, err
}
