package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/IvanTran0101/ibanking-tuition/internal/otp/app"
)

// Handlers exposes the synchronous verification endpoint. Everything else
// about the OTP lifecycle is event-driven.
type Handlers struct {
	verifier *app.Verifier
}

func NewHandlers(verifier *app.Verifier) *Handlers {
	return &Handlers{verifier: verifier}
}

// Routes wires the verify and health endpoints.
func Routes(h *Handlers) http.Handler {
	r := chi.NewRouter()
	r.Post("/otp/verify", h.Verify)
	r.Get("/health", h.Health)
	return r
}

type verifyRequest struct {
	PaymentID string `json:"payment_id"`
	OTPCode   string `json:"otp_code"`
}

func (h *Handlers) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PaymentID == "" || req.OTPCode == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"ok": false, "error": "INVALID_REQUEST",
		})
		return
	}

	res, err := h.verifier.Verify(r.Context(), req.PaymentID, req.OTPCode)
	if err != nil {
		log.Printf("level=error component=otp_api msg=\"verification failed\" payment_id=%s err=%v", req.PaymentID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": "INTERNAL"})
		return
	}

	switch res.Outcome {
	case app.VerifySucceeded:
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "payment_id": req.PaymentID})
	case app.VerifyNotFound:
		writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "error": "OTP_NOT_FOUND"})
	case app.VerifyMaxAttempts:
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "MAX_ATTEMPTS_EXCEEDED"})
	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"ok": false, "error": "INVALID_OTP", "attempts_remaining": res.AttemptsRemaining,
		})
	}
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "healthy", "service": "otp-service"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("level=error component=otp_api msg=\"response encode failed\" err=%v", err)
	}
}
