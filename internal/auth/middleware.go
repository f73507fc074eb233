package auth

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-turkey-coin/internal/apperr"
)

// WarningHeader carries non-fatal authorization warnings on responses.
const WarningHeader = "X-Auth-Warning"

type ctxKey struct{}

// WithDecision stores an authorization decision on the context.
func WithDecision(ctx context.Context, d *Decision) context.Context {
	return context.WithValue(ctx, ctxKey{}, d)
}

// FromContext returns the decision stored by RequireAdmin.
func FromContext(ctx context.Context) (*Decision, bool) {
	d, ok := ctx.Value(ctxKey{}).(*Decision)
	return d, ok
}

// RequireAdmin wraps next so it only runs for authorized admin requests.
func (g *Gate) RequireAdmin(logger *zap.SugaredLogger, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := g.Authorize(r.Context(), r.Header)
		if err != nil {
			ae := apperr.As(err)
			logger.Infow("admin request rejected",
				"path", r.URL.Path,
				"kind", ae.Kind.String(),
				"err", err,
			)
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(ae.HTTPStatus())
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": ae.Message})
			return
		}
		if warning := d.Warning(); warning != "" {
			w.Header().Set(WarningHeader, warning)
		}
		next(w, r.WithContext(WithDecision(r.Context(), d)))
	}
}
