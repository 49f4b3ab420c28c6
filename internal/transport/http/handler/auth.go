package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-signup-api/internal/application/machine"
	"github.com/go-signup-api/internal/application/registration"
	"github.com/go-signup-api/internal/domain"
	"github.com/go-signup-api/internal/pkg/validate"
	"github.com/go-signup-api/internal/transport/http/middleware"
)

// AuthHandler handles the registration and verification endpoints.
type AuthHandler struct {
	svc      registration.Service
	machines machine.Service
}

func NewAuthHandler(svc registration.Service, machines machine.Service) *AuthHandler {
	return &AuthHandler{svc: svc, machines: machines}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := h.svc.Register(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, DataEnvelope{
		Message: "registration initiated, please verify your email and mobile number",
		Data:    result,
	})
}

func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req domain.VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !req.Type.Valid() {
		writeError(w, http.StatusBadRequest, "type must be email or mobile")
		return
	}
	result, err := h.svc.Verify(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	msg := fmt.Sprintf("%s verified successfully", result.VerifiedType)
	if result.IsComplete {
		msg = "registration completed successfully"
	}
	writeJSON(w, http.StatusOK, DataEnvelope{Message: msg, Data: result})
}

func (h *AuthHandler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req domain.ResendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := h.svc.Resend(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DataEnvelope{
		Message: "verification codes resent",
		Data:    result,
	})
}

// MachineID validates a presented device identifier or mints a fresh one.
// The id is echoed in the response header so clients can persist it.
func (h *AuthHandler) MachineID(w http.ResponseWriter, r *http.Request) {
	presented := r.Header.Get(middleware.MachineIDHeader)
	id, created, err := h.machines.Ensure(r.Context(), presented)
	if err != nil {
		httpError(w, err)
		return
	}
	w.Header().Set(middleware.MachineIDHeader, id)
	writeJSON(w, http.StatusOK, DataEnvelope{
		Message: "machine id ready",
		Data: map[string]interface{}{
			"machine_id": id,
			"created":    created,
		},
	})
}
