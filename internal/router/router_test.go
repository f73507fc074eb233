package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-turkey-coin/internal/auth"
	"github.com/ovaphlow/pitchfork/service-turkey-coin/internal/config"
	"github.com/ovaphlow/pitchfork/service-turkey-coin/internal/leaderboard"
	"github.com/ovaphlow/pitchfork/service-turkey-coin/pkg/database"
)

const adminToken = "Bearer local-dev"

func testConfig() *config.Config {
	return &config.Config{
		Auth:             config.AuthConfig{BypassLocal: true},
		Chain:            config.ChainConfig{ID: 11155111, Slug: "sepolia"},
		OnboardRateLimit: 3,
		SnowflakeNode:    1,
	}
}

func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := database.Connect(database.Config{DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, EnsureSchema(context.Background(), db))
	return db
}

func newServer(t *testing.T, cfg *config.Config, db *sqlx.DB) http.Handler {
	t.Helper()
	h, err := RegisterRoutes(cfg, db, auth.NewGate(cfg.Auth, nil), zap.NewNop().Sugar())
	require.NoError(t, err)
	return h
}

func do(t *testing.T, h http.Handler, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "192.0.2.10:4321"
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func adminHeader() http.Header {
	return http.Header{"Authorization": []string{adminToken}}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthAndStatus(t *testing.T) {
	h := newServer(t, testConfig(), nil)

	rec := do(t, h, http.MethodGet, "/api/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = do(t, h, http.MethodGet, "/api/status", nil, nil)
	out := decode(t, rec)
	assert.Equal(t, true, out["ok"])
	assert.Equal(t, false, out["hasDb"])
	assert.Equal(t, "sepolia", out["chain"])
	assert.NotEmpty(t, out["now"])
}

func TestRequestIDPreserved(t *testing.T) {
	h := newServer(t, testConfig(), nil)
	rec := do(t, h, http.MethodGet, "/api/health", nil, http.Header{RequestIDHeader: []string{"trace-1"}})
	assert.Equal(t, "trace-1", rec.Header().Get(RequestIDHeader))
}

func TestMintFlow(t *testing.T) {
	h := newServer(t, testConfig(), setupTestDB(t))
	body := map[string]any{
		"walletAddress":  "0x" + strings.Repeat("A", 40),
		"amount":         50,
		"idempotencyKey": "abc12345",
	}

	rec := do(t, h, http.MethodPost, "/api/admin/mint", body, adminHeader())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, auth.WarnBypass, rec.Header().Get(auth.WarningHeader))
	out := decode(t, rec)
	assert.Equal(t, true, out["ok"])
	assert.Nil(t, out["txHash"])
	eventID, _ := out["eventId"].(string)
	require.NotEmpty(t, eventID)

	rec = do(t, h, http.MethodPost, "/api/admin/mint", body, adminHeader())
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, false, decode(t, rec)["ok"])

	rec = do(t, h, http.MethodGet, "/api/admin/mint-events?idempotency_key=abc12345", nil, adminHeader())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(database.StateOK), rec.Header().Get(database.StoreStateHeader))
	var events []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.Equal(t, eventID, events[0]["id"])
	assert.Equal(t, "queued", events[0]["status"])
	assert.Equal(t, "0x"+strings.Repeat("a", 40), events[0]["toWallet"])

	txHash := "0x" + strings.Repeat("ab", 32)
	rec = do(t, h, http.MethodPatch, "/api/admin/mint-events",
		map[string]any{"eventId": eventID, "status": "submitted", "txHash": txHash}, adminHeader())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPatch, "/api/admin/mint-events",
		map[string]any{"eventId": eventID, "status": "queued"}, adminHeader())
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/admin/mint-events/"+eventID, nil, adminHeader())
	require.Equal(t, http.StatusOK, rec.Code)
	ev := decode(t, rec)
	assert.Equal(t, "submitted", ev["status"])
	assert.Equal(t, txHash, ev["txHash"])

	rec = do(t, h, http.MethodGet, "/api/admin/mint-events/missing", nil, adminHeader())
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMint_InvalidBodies(t *testing.T) {
	h := newServer(t, testConfig(), setupTestDB(t))
	wallet := "0x" + strings.Repeat("a", 40)

	for name, body := range map[string]any{
		"fractional": map[string]any{"walletAddress": wallet, "amount": 1.5, "idempotencyKey": "abc12345"},
		"too large":  map[string]any{"walletAddress": wallet, "amount": 1001, "idempotencyKey": "abc12345"},
		"bad wallet": map[string]any{"walletAddress": "0x12", "amount": 5, "idempotencyKey": "abc12345"},
		"short key":  map[string]any{"walletAddress": wallet, "amount": 5, "idempotencyKey": "short"},
		"not object": "nope",
	} {
		t.Run(name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/admin/mint", body, adminHeader())
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, false, decode(t, rec)["ok"])
		})
	}
}

func TestAdminRoutesRequireAuth(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.BypassLocal = false
	h := newServer(t, cfg, setupTestDB(t))

	for _, rt := range []struct{ method, path string }{
		{http.MethodGet, "/api/users"},
		{http.MethodPost, "/api/admin/mint"},
		{http.MethodGet, "/api/admin/mint-events"},
		{http.MethodGet, "/api/admin/mint-events/x"},
		{http.MethodPatch, "/api/admin/mint-events"},
	} {
		rec := do(t, h, rt.method, rt.path, nil, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, rt.path)

		rec = do(t, h, rt.method, rt.path, nil, adminHeader())
		assert.Equal(t, http.StatusUnauthorized, rec.Code, rt.path)
		assert.Contains(t, decode(t, rec)["error"], "not configured")
	}
}

func TestNoStore(t *testing.T) {
	h := newServer(t, testConfig(), nil)

	rec := do(t, h, http.MethodGet, "/api/leaderboard", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "true", rec.Header().Get(leaderboard.NoDBHeader))
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/admin/mint-events", nil, adminHeader())
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(database.StateUnconfigured), rec.Header().Get(database.StoreStateHeader))
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/api/admin/mint",
		map[string]any{"walletAddress": "0x" + strings.Repeat("a", 40), "amount": 5, "idempotencyKey": "abc12345"},
		adminHeader())
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestOnboardAndUsers(t *testing.T) {
	h := newServer(t, testConfig(), setupTestDB(t))
	wallet := "0x" + strings.Repeat("c", 40)

	rec := do(t, h, http.MethodPost, "/api/onboard", map[string]any{"walletAddress": wallet, "handle": "gobbler"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/api/onboard",
		map[string]any{"walletAddress": "0x" + strings.Repeat("d", 40), "handle": "gobbler"}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/users", nil, adminHeader())
	require.Equal(t, http.StatusOK, rec.Code)
	var users []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
	require.Len(t, users, 1)
	assert.Equal(t, "gobbler", users[0]["handle"])
	assert.Equal(t, wallet, users[0]["walletAddress"])

	rec = do(t, h, http.MethodGet, "/api/leaderboard", nil, nil)
	assert.Equal(t, "false", rec.Header().Get(leaderboard.NoDBHeader))
	var board []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &board))
	require.Len(t, board, 1)
	assert.Equal(t, "0", board[0]["balance"])
}

func TestOnboardRateLimit(t *testing.T) {
	h := newServer(t, testConfig(), nil)
	body := map[string]any{"walletAddress": "0x12", "handle": "x"}

	for i := 0; i < 3; i++ {
		rec := do(t, h, http.MethodPost, "/api/onboard", body, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}
	rec := do(t, h, http.MethodPost, "/api/onboard", body, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// a different edge-reported client has its own bucket
	rec = do(t, h, http.MethodPost, "/api/onboard", body, http.Header{"Cf-Connecting-Ip": []string{"198.51.100.7"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOnboardRateLimit_IgnoresForwardedFor(t *testing.T) {
	h := newServer(t, testConfig(), nil)
	body := map[string]any{"walletAddress": "0x12", "handle": "x"}

	codes := make([]int, 0, 6)
	for i := 0; i < 6; i++ {
		hdr := http.Header{"X-Forwarded-For": []string{fmt.Sprintf("10.0.0.%d", i)}}
		codes = append(codes, do(t, h, http.MethodPost, "/api/onboard", body, hdr).Code)
	}
	assert.Equal(t, []int{400, 400, 400, 429, 429, 429}, codes)
}

func TestOnboardRateLimit_TrustedForwardedFor(t *testing.T) {
	cfg := testConfig()
	cfg.TrustForwardedFor = true
	h := newServer(t, cfg, nil)
	body := map[string]any{"walletAddress": "0x12", "handle": "x"}

	// the proxy-appended last hop is the key; a spoofed first hop is not
	for i := 0; i < 3; i++ {
		hdr := http.Header{"X-Forwarded-For": []string{fmt.Sprintf("10.0.0.%d, 203.0.113.5", i)}}
		assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/onboard", body, hdr).Code)
	}
	hdr := http.Header{"X-Forwarded-For": []string{"10.9.9.9, 203.0.113.5"}}
	assert.Equal(t, http.StatusTooManyRequests, do(t, h, http.MethodPost, "/api/onboard", body, hdr).Code)

	hdr = http.Header{"X-Forwarded-For": []string{"203.0.113.6"}}
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/onboard", body, hdr).Code)
}

func TestGzip(t *testing.T) {
	db := setupTestDB(t)
	h := newServer(t, testConfig(), db)
	for i := 0; i < 30; i++ {
		rec := do(t, h, http.MethodPost, "/api/admin/mint", map[string]any{
			"walletAddress":  "0x" + strings.Repeat("e", 40),
			"amount":         1,
			"idempotencyKey": "gzip-key-" + strings.Repeat("x", i+1),
		}, adminHeader())
		require.Equal(t, http.StatusOK, rec.Code)
	}
	hdr := adminHeader()
	hdr.Set("Accept-Encoding", "gzip")
	rec := do(t, h, http.MethodGet, "/api/admin/mint-events", nil, hdr)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
}
