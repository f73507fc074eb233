package leaderboard

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

// NoDBHeader tells the dashboard whether an empty board means "no datastore".
const NoDBHeader = "X-No-DB"

type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	entries, hasDB := h.svc.Top(r.Context())
	w.Header().Set(NoDBHeader, strconv.FormatBool(!hasDB))
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(entries)
}
