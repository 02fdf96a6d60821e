// Package sqlite implements a SQLite-backed tokenstore.Repository using
// database/sql. Inserts run inside one transaction; SQLite has no bulk-load
// API like Postgres COPY, but a transaction keeps performance acceptable for
// the volumes a single run produces.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	// SQLite driver; replace with your preferred driver if desired.
	_ "modernc.org/sqlite" // alternative: github.com/mattn/go-sqlite3

	"hitchload/internal/tokenstore"
)

// Config holds SQLite repository configuration.
type Config struct {
	// DSN is passed directly to database/sql, e.g. "tokens.db" or
	// "file:tokens.db?cache=shared".
	DSN string
	// Table is the mapping table name.
	Table string
}

// Repository is a SQLite-backed implementation of tokenstore.Repository.
type Repository struct {
	db  *sql.DB
	cfg Config
}

// NewRepository opens a SQLite connection and returns a Repository plus a
// close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	if strings.TrimSpace(cfg.Table) == "" {
		return nil, nil, fmt.Errorf("sqlite: table must not be empty")
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: open: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	closeFn := func() { db.Close() }
	return &Repository{db: db, cfg: cfg}, closeFn, nil
}

// EnsureTable creates the mapping table when absent.
func (r *Repository) EnsureTable(ctx context.Context) error {
	ddl := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (personid TEXT NOT NULL, token TEXT NOT NULL)",
		r.cfg.Table,
	)
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("sqlite: create table: %w", err)
	}
	return nil
}

// SaveTokens inserts the mappings inside a single transaction.
func (r *Repository) SaveTokens(ctx context.Context, tokens []tokenstore.Token) error {
	if len(tokens) == 0 {
		return nil
	}

	stmtSQL := fmt.Sprintf("INSERT INTO %s (personid, token) VALUES (?, ?)", r.cfg.Table)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, stmtSQL)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range tokens {
		if _, err := stmt.ExecContext(ctx, t.PersonID, t.Token); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("sqlite: insert token: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}
