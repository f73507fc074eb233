package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-turkey-coin/internal/leaderboard/entity"
	"github.com/ovaphlow/pitchfork/service-turkey-coin/pkg/database"
)

// LeaderboardRepo reads users joined with the balance cache.
type LeaderboardRepo struct {
	db *sqlx.DB
}

func NewLeaderboardRepo(db *sqlx.DB) *LeaderboardRepo { return &LeaderboardRepo{db: db} }

// EnsureTable creates balance_cache if not exists. Rows are written by the
// balance indexer; this service only reads them.
func (r *LeaderboardRepo) EnsureTable(ctx context.Context) error {
	ts := "TIMESTAMPTZ"
	if database.DialectOf(r.db) == database.SQLite {
		ts = "TIMESTAMP"
	}
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS balance_cache (
  wallet_address TEXT PRIMARY KEY,
  balance TEXT NOT NULL DEFAULT '0',
  updated_at %s NOT NULL
);
`, ts)
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

type row struct {
	Handle        string     `db:"handle"`
	WalletAddress string     `db:"wallet_address"`
	Balance       string     `db:"balance"`
	BalanceAt     *time.Time `db:"balance_updated_at"`
	UserUpdatedAt time.Time  `db:"user_updated_at"`
}

// Top returns up to limit users ordered by numeric balance desc, then handle.
func (r *LeaderboardRepo) Top(ctx context.Context, limit int) ([]entity.Entry, error) {
	const q = `
SELECT u.handle AS handle,
       u.wallet_address AS wallet_address,
       COALESCE(b.balance, '0') AS balance,
       b.updated_at AS balance_updated_at,
       u.updated_at AS user_updated_at
FROM users u
LEFT JOIN balance_cache b ON b.wallet_address = u.wallet_address
ORDER BY CAST(COALESCE(b.balance, '0') AS NUMERIC) DESC, u.handle ASC
LIMIT ?`
	var rows []row
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(q), limit); err != nil {
		return nil, err
	}
	out := make([]entity.Entry, 0, len(rows))
	for _, rw := range rows {
		e := entity.Entry{
			Handle:        rw.Handle,
			WalletAddress: rw.WalletAddress,
			Balance:       rw.Balance,
			UpdatedAt:     rw.UserUpdatedAt,
		}
		if rw.BalanceAt != nil {
			e.UpdatedAt = *rw.BalanceAt
		}
		out = append(out, e)
	}
	return out, nil
}
