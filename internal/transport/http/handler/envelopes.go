package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-signup-api/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// DataEnvelope wraps a successful response body with its human message.
type DataEnvelope struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}

// httpError maps a domain error onto its HTTP status and machine code.
// Retry-capable rejections carry a Retry-After header.
func httpError(w http.ResponseWriter, err error) {
	var (
		cooldown  *domain.CooldownError
		rateLimit *domain.RateLimitError
	)
	switch {
	case errors.As(err, &cooldown):
		w.Header().Set("Retry-After", strconv.Itoa(cooldown.Remaining))
		writeCoded(w, http.StatusTooManyRequests, err, "COOLDOWN_ACTIVE")
	case errors.As(err, &rateLimit):
		w.Header().Set("Retry-After", strconv.Itoa(rateLimit.RetryAfter))
		writeCoded(w, http.StatusTooManyRequests, err, "RATE_LIMITED")
	case errors.Is(err, domain.ErrConflict):
		writeCoded(w, http.StatusConflict, err, "USER_EXISTS")
	case errors.Is(err, domain.ErrSessionNotFound):
		writeCoded(w, http.StatusNotFound, err, "SESSION_NOT_FOUND")
	case errors.Is(err, domain.ErrNotFound):
		writeCoded(w, http.StatusNotFound, err, "NOT_FOUND")
	case errors.Is(err, domain.ErrMobileMismatch):
		writeCoded(w, http.StatusBadRequest, err, "MOBILE_MISMATCH")
	case errors.Is(err, domain.ErrAlreadyVerified):
		writeCoded(w, http.StatusConflict, err, "ALREADY_VERIFIED")
	case errors.Is(err, domain.ErrAttemptsExceeded):
		writeCoded(w, http.StatusTooManyRequests, err, "MAX_ATTEMPTS_EXCEEDED")
	case errors.Is(err, domain.ErrInvalidCode):
		writeCoded(w, http.StatusBadRequest, err, "INVALID_OTP")
	case errors.Is(err, domain.ErrCodeExpired):
		writeCoded(w, http.StatusBadRequest, err, "OTP_EXPIRED")
	case errors.Is(err, domain.ErrMissingIdentity):
		writeCoded(w, http.StatusBadRequest, err, "MACHINE_ID_REQUIRED")
	case errors.Is(err, domain.ErrBadRequest):
		writeCoded(w, http.StatusBadRequest, err, "BAD_REQUEST")
	case errors.Is(err, domain.ErrStoreUnavailable):
		// Never leak store details to clients.
		writeJSON(w, http.StatusServiceUnavailable, MessageEnvelope{
			Error: "service temporarily unavailable", Code: "STORE_UNAVAILABLE",
		})
	default:
		writeJSON(w, http.StatusInternalServerError, MessageEnvelope{
			Error: "internal server error", Code: "INTERNAL",
		})
	}
}

func writeCoded(w http.ResponseWriter, status int, err error, code string) {
	writeJSON(w, status, MessageEnvelope{Error: err.Error(), Code: code})
}
