package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-turkey-coin/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-turkey-coin/pkg/database"
)

// ErrHandleTaken is returned when the handle belongs to a different wallet.
var ErrHandleTaken = errors.New("handle already taken")

// errWalletRace marks an insert that lost to a concurrent first onboard of
// the same wallet; the row now exists and the update path applies.
var errWalletRace = errors.New("wallet inserted concurrently")

// UserRepo provides data access for users table using sqlx.
type UserRepo struct {
	db *sqlx.DB

	// beforeInsert runs inside the upsert transaction just before the insert.
	beforeInsert func(ctx context.Context, tx *sqlx.Tx) error
}

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

// EnsureTable creates the users table if not exists (idempotent).
// This is a convenience for early development; prefer migrations in production.
func (r *UserRepo) EnsureTable(ctx context.Context) error {
	ts := "TIMESTAMPTZ"
	if database.DialectOf(r.db) == database.SQLite {
		ts = "TIMESTAMP"
	}
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  wallet_address TEXT NOT NULL UNIQUE,
  handle TEXT NOT NULL UNIQUE,
  created_at %[1]s NOT NULL,
  updated_at %[1]s NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_users_created_at ON users(created_at);
`, ts)
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// Upsert stores handle for wallet in one transaction. An existing row for the
// wallet gets its handle replaced; otherwise u is inserted. created reports
// which happened. An insert that races another first onboard of the same
// wallet is retried once as an update.
func (r *UserRepo) Upsert(ctx context.Context, u *entity.User) (created bool, err error) {
	created, err = r.upsert(ctx, u)
	if errors.Is(err, errWalletRace) {
		created, err = r.upsert(ctx, u)
	}
	if errors.Is(err, errWalletRace) {
		return false, fmt.Errorf("upsert user: %w", err)
	}
	return created, err
}

func (r *UserRepo) upsert(ctx context.Context, u *entity.User) (created bool, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var owner string
	err = tx.GetContext(ctx, &owner, tx.Rebind(`SELECT wallet_address FROM users WHERE handle = ?`), u.Handle)
	switch {
	case database.IsNoRows(err):
	case err != nil:
		return false, err
	case owner != u.WalletAddress:
		return false, ErrHandleTaken
	}

	res, err := tx.ExecContext(ctx,
		tx.Rebind(`UPDATE users SET handle = ?, updated_at = ? WHERE wallet_address = ?`),
		u.Handle, u.UpdatedAt, u.WalletAddress)
	if err != nil {
		return false, mapUnique(err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows == 0 {
		if r.beforeInsert != nil {
			if err := r.beforeInsert(ctx, tx); err != nil {
				return false, err
			}
		}
		const q = `INSERT INTO users (id, wallet_address, handle, created_at, updated_at)
			VALUES (:id, :wallet_address, :handle, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, q, u); err != nil {
			return false, mapUnique(err)
		}
		created = true
	}
	if err := tx.Commit(); err != nil {
		return false, mapUnique(fmt.Errorf("commit: %w", err))
	}
	return created, nil
}

// List returns the most recently onboarded users first.
func (r *UserRepo) List(ctx context.Context, limit int) ([]entity.ListView, error) {
	out := []entity.ListView{}
	q := `SELECT handle, wallet_address, created_at FROM users ORDER BY created_at DESC, handle ASC LIMIT ?`
	if err := r.db.SelectContext(ctx, &out, r.db.Rebind(q), limit); err != nil {
		return nil, err
	}
	return out, nil
}

// mapUnique sorts uniqueness races: a clash on the handle means another
// wallet took it, a clash on the wallet means this wallet was inserted
// concurrently.
func mapUnique(err error) error {
	switch {
	case database.IsUniqueViolationOn(err, "wallet_address"):
		return fmt.Errorf("%w: %v", errWalletRace, err)
	case database.IsUniqueViolation(err):
		return fmt.Errorf("%w: %v", ErrHandleTaken, err)
	}
	return err
}
