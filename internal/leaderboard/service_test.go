package leaderboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-turkey-coin/internal/leaderboard/entity"
	"github.com/ovaphlow/pitchfork/service-turkey-coin/internal/leaderboard/repo"
	userentity "github.com/ovaphlow/pitchfork/service-turkey-coin/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-turkey-coin/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-turkey-coin/pkg/database"
)

func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := database.Connect(database.Config{DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()
	require.NoError(t, userrepo.NewUserRepo(db).EnsureTable(ctx))
	require.NoError(t, repo.NewLeaderboardRepo(db).EnsureTable(ctx))
	return db
}

func addUser(t *testing.T, db *sqlx.DB, hex, handle string, at time.Time) string {
	t.Helper()
	wallet := "0x" + strings.Repeat(hex, 40)
	_, err := userrepo.NewUserRepo(db).Upsert(context.Background(), &userentity.User{
		ID: handle, WalletAddress: wallet, Handle: handle, CreatedAt: at, UpdatedAt: at,
	})
	require.NoError(t, err)
	return wallet
}

func setBalance(t *testing.T, db *sqlx.DB, wallet, balance string, at time.Time) {
	t.Helper()
	_, err := db.Exec(db.Rebind(`INSERT INTO balance_cache (wallet_address, balance, updated_at) VALUES (?, ?, ?)`),
		wallet, balance, at)
	require.NoError(t, err)
}

func get(t *testing.T, svc *Service) (*httptest.ResponseRecorder, []entity.Entry) {
	t.Helper()
	rec := httptest.NewRecorder()
	NewHandler(svc, zap.NewNop().Sugar()).Get(rec, httptest.NewRequest(http.MethodGet, "/api/leaderboard", nil))
	var out []entity.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return rec, out
}

func TestLeaderboard_NoDB(t *testing.T) {
	rec, out := get(t, NewService(nil, zap.NewNop().Sugar()))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "true", rec.Header().Get(NoDBHeader))
	assert.Empty(t, out)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestLeaderboard_EmptyStore(t *testing.T) {
	rec, out := get(t, NewService(setupTestDB(t), zap.NewNop().Sugar()))
	assert.Equal(t, "false", rec.Header().Get(NoDBHeader))
	assert.Empty(t, out)
}

func TestLeaderboard_Ordering(t *testing.T) {
	db := setupTestDB(t)
	userAt := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	balAt := time.Date(2026, 11, 20, 0, 0, 0, 0, time.UTC)

	a := addUser(t, db, "a", "zed", userAt)
	b := addUser(t, db, "b", "amy", userAt)
	addUser(t, db, "c", "bob", userAt)
	addUser(t, db, "d", "ann", userAt)
	// numeric, not lexical: 9 < 100
	setBalance(t, db, a, "9", balAt)
	setBalance(t, db, b, "100", balAt)

	rec, out := get(t, NewService(db, zap.NewNop().Sugar()))
	assert.Equal(t, "false", rec.Header().Get(NoDBHeader))
	require.Len(t, out, 4)
	handles := []string{out[0].Handle, out[1].Handle, out[2].Handle, out[3].Handle}
	assert.Equal(t, []string{"amy", "zed", "ann", "bob"}, handles)
	assert.Equal(t, "100", out[0].Balance)
	assert.Equal(t, "0", out[2].Balance)
	assert.True(t, balAt.Equal(out[0].UpdatedAt))
	assert.True(t, userAt.Equal(out[2].UpdatedAt))
}

func TestLeaderboard_ReadFailureDegrades(t *testing.T) {
	db := setupTestDB(t)
	_, err := db.Exec(`DROP TABLE balance_cache`)
	require.NoError(t, err)

	rec, out := get(t, NewService(db, zap.NewNop().Sugar()))
	assert.Equal(t, "false", rec.Header().Get(NoDBHeader))
	assert.Empty(t, out)
}
