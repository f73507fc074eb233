package router

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-turkey-coin/internal/auth"
	"github.com/ovaphlow/pitchfork/service-turkey-coin/internal/config"
	"github.com/ovaphlow/pitchfork/service-turkey-coin/internal/leaderboard"
	"github.com/ovaphlow/pitchfork/service-turkey-coin/internal/mint"
	"github.com/ovaphlow/pitchfork/service-turkey-coin/internal/user"
	"github.com/ovaphlow/pitchfork/service-turkey-coin/pkg/utilities"
)

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	OK    bool   `json:"ok"`
	HasDB bool   `json:"hasDb"`
	Chain string `json:"chain"`
	Now   string `json:"now"`
}

// RegisterRoutes mounts HTTP handlers using the standard library's http.ServeMux.
// db may be nil, in which case every store-backed route degrades or reports
// Unavailable.
func RegisterRoutes(cfg *config.Config, db *sqlx.DB, gate *auth.Gate, logger *zap.SugaredLogger) (http.Handler, error) {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(StatusResponse{
			OK:    true,
			HasDB: db != nil,
			Chain: cfg.Chain.Slug,
			Now:   time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	mux.Handle("GET /metrics", promhttp.Handler())

	// public
	boardHandler := leaderboard.NewHandler(leaderboard.NewService(db, logger), logger)
	mux.HandleFunc("GET /api/leaderboard", boardHandler.Get)

	userHandler := user.NewHandler(user.NewUserService(db, logger), logger)
	onboard := userHandler.Onboard
	if cfg.OnboardRateLimit > 0 {
		rl, err := NewRateLimiter("onboard", cfg.OnboardRateLimit, cfg.TrustForwardedFor, logger)
		if err != nil {
			return nil, err
		}
		onboard = rl.Wrap(onboard)
	}
	mux.HandleFunc("POST /api/onboard", onboard)

	// admin
	mux.HandleFunc("GET /api/users", gate.RequireAdmin(logger, userHandler.List))

	mintHandler := mint.NewHandler(mint.NewService(db, cfg.Chain.ID, logger), logger)
	mux.HandleFunc("POST /api/admin/mint", gate.RequireAdmin(logger, mintHandler.Create))
	mux.HandleFunc("GET /api/admin/mint-events", gate.RequireAdmin(logger, mintHandler.List))
	mux.HandleFunc("GET /api/admin/mint-events/{id}", gate.RequireAdmin(logger, mintHandler.Get))
	mux.HandleFunc("PATCH /api/admin/mint-events", gate.RequireAdmin(logger, mintHandler.Transition))

	ids := utilities.NewRequestIDs(cfg.SnowflakeNode)
	handler := RequestIDMiddleware(ids)(
		LoggingMiddleware(logger)(
			SecurityHeadersMiddleware()(
				gzhttp.GzipHandler(mux))))
	return handler, nil
}
