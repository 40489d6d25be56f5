package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/IvanTran0101/ibanking-tuition/internal/account/store"
)

// Handlers exposes the read-only internal account lookup used by the
// notification service to resolve recipients.
type Handlers struct {
	repo store.Repository
}

func NewHandlers(repo store.Repository) *Handlers {
	return &Handlers{repo: repo}
}

// Routes wires the internal lookup and health endpoints.
func Routes(h *Handlers) http.Handler {
	r := chi.NewRouter()
	r.Get("/internal/accounts/{userID}", h.GetAccount)
	r.Get("/health", h.Health)
	return r
}

func (h *Handlers) GetAccount(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	account, err := h.repo.FindAccount(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]any{"ok": false})
			return
		}
		log.Printf("level=error component=account_api msg=\"lookup failed\" user_id=%s err=%v", userID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"user_id": account.UserID,
		"email":   account.Email,
		"balance": account.Balance,
	})
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "healthy", "service": "account-service"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("level=error component=account_api msg=\"response encode failed\" err=%v", err)
	}
}
