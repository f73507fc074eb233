package router

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-limiter"
	"github.com/sethvargo/go-limiter/memorystore"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-turkey-coin/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-turkey-coin/pkg/utilities"
)

// RequestIDHeader carries the per-request id, echoed back on responses.
const RequestIDHeader = "X-Request-ID"

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

// RequestIDMiddleware keeps an inbound X-Request-ID or assigns a snowflake id.
func RequestIDMiddleware(ids *utilities.RequestIDs) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" || len(id) > 128 {
				id = ids.Next()
				r.Header.Set(RequestIDHeader, id)
			}
			w.Header().Set(RequestIDHeader, id)
			next.ServeHTTP(w, r)
		})
	}
}

// LoggingMiddleware logs requests at debug level and counts them by status code.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			dur := time.Since(start)
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			metrics.HTTPRequests.WithLabelValues(r.Method, strconv.Itoa(status)).Inc()
			logger.Debugw("http request",
				"request_id", r.Header.Get(RequestIDHeader),
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(dur.Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

// SecurityHeadersMiddleware returns a middleware that sets common HTTP security headers.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer")
			w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			// JSON API only; nothing here should ever be framed or execute script
			w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			// admin responses carry unmasked identities
			w.Header().Set("Cache-Control", "no-store")
			if r.TLS != nil {
				w.Header().Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimiter throttles a route per client IP using a token bucket store.
type RateLimiter struct {
	name   string
	store  limiter.Store
	logger *zap.SugaredLogger

	// trustForwardedFor honours X-Forwarded-For; only safe behind a proxy
	// that appends the connecting address.
	trustForwardedFor bool
}

// NewRateLimiter allows perMinute requests per client IP on the named route.
func NewRateLimiter(name string, perMinute int, trustForwardedFor bool, logger *zap.SugaredLogger) (*RateLimiter, error) {
	store, err := memorystore.New(&memorystore.Config{
		Tokens:   uint64(perMinute),
		Interval: time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("rate limit store: %w", err)
	}
	return &RateLimiter{name: name, store: store, logger: logger, trustForwardedFor: trustForwardedFor}, nil
}

func (rl *RateLimiter) Wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := "rl:" + rl.name + ":" + clientIP(r, rl.trustForwardedFor)
		_, _, reset, ok, err := rl.store.Take(r.Context(), key)
		if err != nil {
			rl.logger.Warnw("rate limit store failed", "err", err)
			next(w, r)
			return
		}
		if !ok {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter(reset)))
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "rate limit exceeded"})
			return
		}
		next(w, r)
	}
}

// retryAfter converts a reset time in unix nanoseconds into whole seconds from now.
func retryAfter(reset uint64) int {
	secs := int(time.Until(time.Unix(0, int64(reset))).Seconds()) + 1
	if secs < 1 {
		return 1
	}
	return secs
}

// clientIP keys the caller by the Cloudflare edge header, then the socket
// peer. X-Forwarded-For is read only when trusted, and then its last hop,
// which is the one our own proxy appended.
func clientIP(r *http.Request, trustForwardedFor bool) string {
	if ip := strings.TrimSpace(r.Header.Get("Cf-Connecting-Ip")); ip != "" {
		return ip
	}
	if trustForwardedFor {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			hops := strings.Split(xff, ",")
			if ip := strings.TrimSpace(hops[len(hops)-1]); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
