package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Dialect names the SQL flavour behind a connection. DDL differs between
// them; queries are written with ? placeholders and rebound by sqlx.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite3"
)

type Config struct {
	DSN      string
	MaxConns int
	Timeout  time.Duration
	TimeZone string
}

// ParseDSN picks the driver for a DATABASE_URL. sqlite3:// and file: URLs and
// :memory: select SQLite; everything else is handed to lib/pq.
func ParseDSN(dsn string) (Dialect, string) {
	switch {
	case strings.HasPrefix(dsn, "sqlite3://"):
		return SQLite, strings.TrimPrefix(dsn, "sqlite3://")
	case strings.HasPrefix(dsn, "file:"), dsn == ":memory:":
		return SQLite, dsn
	default:
		return Postgres, dsn
	}
}

// Connect opens a *sqlx.DB and verifies connectivity with a ping
func Connect(cfg Config) (*sqlx.DB, error) {
	dialect, dsn := ParseDSN(cfg.DSN)
	db, err := sqlx.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	pool := poolFor(dialect, cfg.MaxConns)
	db.SetMaxOpenConns(pool.maxOpen)
	db.SetMaxIdleConns(pool.maxIdle)
	db.SetConnMaxLifetime(pool.maxLifetime)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if dialect == Postgres && cfg.TimeZone != "" {
		if _, err := db.ExecContext(ctx, "SET TIME ZONE "+quoteLiteral(cfg.TimeZone)); err != nil {
			db.Close()
			return nil, fmt.Errorf("set time zone: %w", err)
		}
	}
	return db, nil
}

type poolSettings struct {
	maxOpen     int
	maxIdle     int
	maxLifetime time.Duration
}

// poolFor sizes the connection pool. SQLite gets a single connection that is
// never recycled: a :memory: database lives and dies with its connection.
func poolFor(dialect Dialect, maxConns int) poolSettings {
	if dialect == SQLite {
		return poolSettings{maxOpen: 1, maxIdle: 1, maxLifetime: 0}
	}
	if maxConns <= 0 {
		maxConns = 5
	}
	return poolSettings{maxOpen: maxConns, maxIdle: maxConns, maxLifetime: 30 * time.Minute}
}

// DialectOf reports the dialect of an open handle.
func DialectOf(db *sqlx.DB) Dialect {
	if db.DriverName() == string(SQLite) {
		return SQLite
	}
	return Postgres
}

// IsUniqueViolation reports whether err is a unique or primary key
// constraint failure from either supported driver.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// IsUniqueViolationOn reports whether err is a unique violation on column.
// Postgres names default constraints <table>_<column>_key and repeats the
// column in the detail; SQLite reports it as <table>.<column>.
func IsUniqueViolationOn(err error, column string) bool {
	if !IsUniqueViolation(err) {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return strings.Contains(pqErr.Constraint, "_"+column+"_") ||
			strings.Contains(pqErr.Detail, "("+column+")")
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return strings.Contains(liteErr.Error(), "."+column)
	}
	return false
}

// IsNoRows reports whether err means the row lookup came back empty.
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// quoteLiteral escapes single quotes and wraps the value in single quotes
// so it can be used safely in SET ... statements which don't accept
// parameter placeholders for the right-hand side.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
