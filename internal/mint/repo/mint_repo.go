package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-turkey-coin/internal/mint/entity"
	"github.com/ovaphlow/pitchfork/service-turkey-coin/pkg/database"
)

// ErrNotFound is returned when no mint event has the requested id.
var ErrNotFound = errors.New("mint event not found")

// ErrStaleStatus is returned when the row's status changed between the read
// and the compare-and-set update of a transition.
var ErrStaleStatus = errors.New("mint event status changed concurrently")

const columns = `id, to_wallet, amount_raw, chain_id, status, reason, idempotency_key, tx_hash,
	requested_by_sub, requested_by_email, created_at, submitted_at, confirmed_at, failed_at, failure_reason`

// MintRepo provides data access for the mint_events table using sqlx.
type MintRepo struct {
	db *sqlx.DB
}

func NewMintRepo(db *sqlx.DB) *MintRepo { return &MintRepo{db: db} }

// EnsureTable creates the mint_events table if not exists (idempotent).
// This is a convenience for early development; prefer migrations in production.
func (r *MintRepo) EnsureTable(ctx context.Context) error {
	ts, bigint := "TIMESTAMPTZ", "BIGINT"
	if database.DialectOf(r.db) == database.SQLite {
		ts, bigint = "TIMESTAMP", "INTEGER"
	}
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS mint_events (
  id TEXT PRIMARY KEY,
  to_wallet TEXT NOT NULL,
  amount_raw TEXT NOT NULL,
  chain_id %[2]s NOT NULL,
  status TEXT NOT NULL CHECK (status IN ('queued', 'submitted', 'confirmed', 'failed')),
  reason TEXT NOT NULL DEFAULT '',
  idempotency_key TEXT NOT NULL UNIQUE,
  tx_hash TEXT,
  requested_by_sub TEXT,
  requested_by_email TEXT,
  created_at %[1]s NOT NULL,
  submitted_at %[1]s,
  confirmed_at %[1]s,
  failed_at %[1]s,
  failure_reason TEXT
);
CREATE INDEX IF NOT EXISTS idx_mint_events_created_at ON mint_events(created_at);
CREATE INDEX IF NOT EXISTS idx_mint_events_status ON mint_events(status);
CREATE INDEX IF NOT EXISTS idx_mint_events_to_wallet ON mint_events(to_wallet);
`, ts, bigint)
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// Create inserts a new mint event row. A duplicate idempotency key surfaces
// as the driver's unique violation; callers classify it.
func (r *MintRepo) Create(ctx context.Context, ev *entity.MintEvent) error {
	const q = `INSERT INTO mint_events (` + columns + `)
		VALUES (:id, :to_wallet, :amount_raw, :chain_id, :status, :reason, :idempotency_key, :tx_hash,
			:requested_by_sub, :requested_by_email, :created_at, :submitted_at, :confirmed_at, :failed_at, :failure_reason)`
	_, err := r.db.NamedExecContext(ctx, q, ev)
	return err
}

// GetByID fetches a mint event or returns ErrNotFound.
func (r *MintRepo) GetByID(ctx context.Context, id string) (*entity.MintEvent, error) {
	var ev entity.MintEvent
	err := r.db.GetContext(ctx, &ev, r.db.Rebind(`SELECT `+columns+` FROM mint_events WHERE id = ?`), id)
	if database.IsNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// List returns mint events matching f, newest first.
func (r *MintRepo) List(ctx context.Context, f entity.Filter) ([]entity.MintEvent, error) {
	var where []string
	var args []any
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.ToWallet != "" {
		where = append(where, "to_wallet = ?")
		args = append(args, f.ToWallet)
	}
	if f.IdempotencyKey != "" {
		where = append(where, "idempotency_key = ?")
		args = append(args, f.IdempotencyKey)
	}
	q := `SELECT ` + columns + ` FROM mint_events`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, f.Limit)

	out := []entity.MintEvent{}
	if err := r.db.SelectContext(ctx, &out, r.db.Rebind(q), args...); err != nil {
		return nil, err
	}
	return out, nil
}

// ApplyTransition loads the event, lets apply mutate it and writes the result
// back with a compare-and-set on the status that was read, all in one
// transaction. An error from apply aborts without writing.
func (r *MintRepo) ApplyTransition(ctx context.Context, id string, apply func(ev *entity.MintEvent) error) (*entity.MintEvent, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var ev entity.MintEvent
	err = tx.GetContext(ctx, &ev, tx.Rebind(`SELECT `+columns+` FROM mint_events WHERE id = ?`), id)
	if database.IsNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	from := ev.Status
	if err := apply(&ev); err != nil {
		return nil, err
	}

	const q = `UPDATE mint_events
		SET status = ?, tx_hash = ?, submitted_at = ?, confirmed_at = ?, failed_at = ?, failure_reason = ?
		WHERE id = ? AND status = ?`
	res, err := tx.ExecContext(ctx, tx.Rebind(q),
		ev.Status, ev.TxHash, ev.SubmittedAt, ev.ConfirmedAt, ev.FailedAt, ev.FailureReason, id, from)
	if err != nil {
		return nil, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, ErrStaleStatus
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &ev, nil
}
