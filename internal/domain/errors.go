package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrConflict         = errors.New("conflict")
	ErrSessionNotFound  = errors.New("registration session not found")
	ErrMobileMismatch   = errors.New("email and mobile number do not match")
	ErrAlreadyVerified  = errors.New("already verified")
	ErrAttemptsExceeded = errors.New("maximum attempts exceeded")
	ErrInvalidCode      = errors.New("invalid code")
	ErrCodeExpired      = errors.New("code expired or not found")
	ErrCooldownActive   = errors.New("resend cooldown active")
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrMissingIdentity  = errors.New("missing machine identity")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrDeliveryFailed   = errors.New("notification delivery failed")
	ErrBadRequest       = errors.New("bad request")
	ErrNotFound         = errors.New("not found")
)

// ConflictError reports which identity field collides with an existing user.
type ConflictError struct {
	Field string // "email" | "mobile"
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("user already registered with this %s", e.Field)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// CooldownError carries the seconds remaining before a resend is allowed.
type CooldownError struct {
	Remaining int
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("please wait %d seconds before resending OTP", e.Remaining)
}

func (e *CooldownError) Unwrap() error { return ErrCooldownActive }

// RateLimitError carries the retry-after hint for a rejected request.
type RateLimitError struct {
	RetryAfter int // seconds
	Limit      int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit of %d exceeded, retry after %d seconds", e.Limit, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }
