package mint

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-turkey-coin/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-turkey-coin/internal/auth"
	"github.com/ovaphlow/pitchfork/service-turkey-coin/pkg/database"
)

// Handler exposes the admin mint endpoints. Routes are expected to be wrapped
// with auth.Gate.RequireAdmin.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// MintRequest request body for POST /api/admin/mint.
type MintRequest struct {
	WalletAddress  string      `json:"walletAddress"`
	Amount         json.Number `json:"amount"`
	Reason         string      `json:"reason"`
	IdempotencyKey string      `json:"idempotencyKey"`
}

// MintResponse is returned once the event is queued. TxHash is always null
// here; the signer worker fills it in later.
type MintResponse struct {
	OK      bool    `json:"ok"`
	EventID string  `json:"eventId"`
	TxHash  *string `json:"txHash"`
}

// TransitionRequest request body for PATCH /api/admin/mint-events.
type TransitionRequest struct {
	EventID        string `json:"eventId"`
	Status         string `json:"status"`
	TxHash         string `json:"txHash"`
	FailureReason  string `json:"failureReason"`
	ManualOverride bool   `json:"manualOverride"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req MintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid mint payload", "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "Invalid JSON body"})
		return
	}
	var who auth.Identity
	if d, ok := auth.FromContext(r.Context()); ok {
		who = d.Identity
	}
	ev, err := h.svc.Create(r.Context(), CreateInput{
		WalletAddress:  req.WalletAddress,
		Amount:         req.Amount.String(),
		Reason:         req.Reason,
		IdempotencyKey: req.IdempotencyKey,
	}, who)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, MintResponse{OK: true, EventID: ev.ID})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	events, state, err := h.svc.List(r.Context(), ListInput{
		Status:         q.Get("status"),
		ToWallet:       q.Get("to_wallet"),
		IdempotencyKey: q.Get("idempotency_key"),
		Limit:          limit,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set(database.StoreStateHeader, string(state))
	h.writeJSON(w, http.StatusOK, events)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ev, err := h.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ev)
}

func (h *Handler) Transition(w http.ResponseWriter, r *http.Request) {
	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid transition payload", "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "Invalid JSON body"})
		return
	}
	if _, err := h.svc.Transition(r.Context(), TransitionInput(req)); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	ae := apperr.As(err)
	status := ae.HTTPStatus()
	if status >= http.StatusInternalServerError {
		h.logger.Warnw("mint request failed", "kind", ae.Kind.String(), "err", err)
	} else {
		h.logger.Debugw("mint request rejected", "kind", ae.Kind.String(), "err", err)
	}
	h.writeJSON(w, status, map[string]any{"ok": false, "error": ae.Message})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
