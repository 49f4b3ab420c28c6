package otp

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/go-signup-api/internal/domain"
	redisstore "github.com/go-signup-api/internal/infrastructure/redis"
)

// Issued pairs a channel/identifier with its freshly generated code, ready
// for storage and dispatch.
type Issued struct {
	Channel    domain.Channel
	Identifier string
	Code       string
}

// Service generates, stores, retrieves and invalidates one-time codes per
// (channel, identifier). Attempt ceilings are the caller's concern: they
// depend on registration-level state, not OTP state.
type Service interface {
	Issue(ctx context.Context, channel domain.Channel, identifier string) (string, error)
	IssueBatch(ctx context.Context, pairs []Issued) error
	Validate(ctx context.Context, channel domain.Channel, identifier, submitted string) error
	Invalidate(ctx context.Context, channel domain.Channel, identifier string) error
}

type service struct {
	store  *redisstore.Client
	length int
	ttl    time.Duration
}

func NewService(store *redisstore.Client, length int, ttl time.Duration) Service {
	return &service{store: store, length: length, ttl: ttl}
}

func key(channel domain.Channel, identifier string) string {
	return fmt.Sprintf("otp:%s:%s", channel, strings.ToLower(strings.TrimSpace(identifier)))
}

// Issue generates a code and stores it under the channel/identifier key,
// overwriting any prior live code. The code is returned for dispatch and is
// never logged in cleartext.
func (s *service) Issue(ctx context.Context, channel domain.Channel, identifier string) (string, error) {
	code, err := Generate(s.length)
	if err != nil {
		return "", err
	}
	if err := s.store.SetWithTTL(ctx, key(channel, identifier), code, s.ttl); err != nil {
		return "", err
	}
	return code, nil
}

// IssueBatch generates codes for every pair (filling each entry's Code) and
// persists them in a single pipelined round trip.
func (s *service) IssueBatch(ctx context.Context, pairs []Issued) error {
	ops := make([]redisstore.Op, 0, len(pairs))
	for i := range pairs {
		code, err := Generate(s.length)
		if err != nil {
			return err
		}
		pairs[i].Code = code
		ops = append(ops, redisstore.Op{
			Kind:  redisstore.OpSet,
			Key:   key(pairs[i].Channel, pairs[i].Identifier),
			Value: code,
			TTL:   s.ttl,
		})
	}
	return s.store.Batch(ctx, ops)
}

// Validate compares the submitted code against the stored one. An absent key
// yields ErrCodeExpired, a mismatch ErrInvalidCode. The stored code is NOT
// deleted here: the caller removes it only once all side effects of
// acceptance have been committed, so proof of validation survives a
// downstream failure.
func (s *service) Validate(ctx context.Context, channel domain.Channel, identifier, submitted string) error {
	stored, found, err := s.store.Get(ctx, key(channel, identifier))
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no live code for %s: %w", channel, domain.ErrCodeExpired)
	}
	if strings.TrimSpace(stored) != strings.TrimSpace(submitted) {
		return fmt.Errorf("submitted code does not match: %w", domain.ErrInvalidCode)
	}
	return nil
}

// Invalidate removes the live code, used on conflict cleanup or completion.
func (s *service) Invalidate(ctx context.Context, channel domain.Channel, identifier string) error {
	return s.store.Del(ctx, key(channel, identifier))
}

// Key exposes the storage key for a channel/identifier pair so the
// registration engine can delete a consumed code inside its own transaction.
func Key(channel domain.Channel, identifier string) string {
	return key(channel, identifier)
}

// Generate returns a cryptographically random numeric code of the given
// length, zero-padded.
func Generate(length int) (string, error) {
	max := big.NewInt(1)
	for i := 0; i < length; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", length, n), nil
}
