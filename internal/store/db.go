package store

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB wraps sql.DB for Postgres using pgx.
type DB struct {
	Client *sql.DB
}

// NewDB creates a Postgres connection with sane defaults.
func NewDB(connString string) (*DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	return &DB{Client: db}, db.PingContext(context.Background())
}

// EnsureSchema creates the sessions table and its indexes. The partial
// unique index over the identity columns enforces at most one open session
// per identity at the database, closing the check-then-insert race.
func (d *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id                 TEXT PRIMARY KEY,
			user_type          TEXT NOT NULL,
			role               TEXT NOT NULL,
			name               TEXT NOT NULL,
			purpose            TEXT NOT NULL,
			email              TEXT,
			reg_no             TEXT,
			phone              TEXT,
			department         TEXT,
			year               TEXT,
			organization       TEXT,
			check_in_time      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			check_in_photo_url TEXT NOT NULL,
			check_out_time     TIMESTAMPTZ,
			duration_minutes   INTEGER,
			status             TEXT NOT NULL DEFAULT 'open',
			device_info        TEXT
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS sessions_one_open_per_identity
			ON sessions (COALESCE(reg_no, phone)) WHERE status = 'open'`,
		`CREATE INDEX IF NOT EXISTS sessions_check_in_time ON sessions (check_in_time)`,
	}
	for _, stmt := range stmts {
		if _, err := d.Client.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}
