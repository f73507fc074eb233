package user

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-turkey-coin/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-turkey-coin/pkg/database"
)

// Handler exposes HTTP endpoints for user operations (onboard / admin list).
type Handler struct {
	svc    *UserService
	logger *zap.SugaredLogger
}

func NewHandler(svc *UserService, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// OnboardRequest request body for onboard endpoint.
type OnboardRequest struct {
	WalletAddress string `json:"walletAddress"`
	Handle        string `json:"handle"`
}

func (h *Handler) Onboard(w http.ResponseWriter, r *http.Request) {
	var req OnboardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid onboard payload", "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "Invalid JSON body"})
		return
	}
	if _, err := h.svc.Onboard(r.Context(), req.WalletAddress, req.Handle); err != nil {
		ae := apperr.As(err)
		if ae.HTTPStatus() >= http.StatusInternalServerError {
			h.logger.Warnw("onboard failed", "err", err)
		}
		h.writeJSON(w, ae.HTTPStatus(), map[string]any{"ok": false, "error": ae.Message})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// List is admin-gated by the router.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	users, state := h.svc.List(r.Context())
	w.Header().Set(database.StoreStateHeader, string(state))
	h.writeJSON(w, http.StatusOK, users)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
