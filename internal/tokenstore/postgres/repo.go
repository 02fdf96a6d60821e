// Package postgres implements a Postgres tokenstore.Repository using pgx v5.
// Mappings are bulk-loaded with COPY, which keeps large runs fast.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hitchload/internal/tokenstore"
)

// Config holds Postgres repository configuration.
type Config struct {
	// DSN is the connection string for pgxpool (e.g. postgresql://...).
	DSN string
	// Table is the (optionally schema-qualified) mapping table name.
	Table string
}

// Repository is a Postgres-backed implementation of tokenstore.Repository.
type Repository struct {
	pool *pgxpool.Pool
	cfg  Config
}

// NewRepository constructs a Repository and returns a close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if strings.TrimSpace(cfg.Table) == "" {
		return nil, nil, fmt.Errorf("postgres: table must not be empty")
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool: %w", err)
	}
	closeFn := func() { pool.Close() }
	return &Repository{pool: pool, cfg: cfg}, closeFn, nil
}

// EnsureTable creates the mapping table when absent.
func (r *Repository) EnsureTable(ctx context.Context) error {
	ddl := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (personid text NOT NULL, token text NOT NULL)",
		pgFQN(r.cfg.Table),
	)
	if _, err := r.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("postgres: create table: %w", err)
	}
	return nil
}

// SaveTokens COPYs the mappings into the configured table.
func (r *Repository) SaveTokens(ctx context.Context, tokens []tokenstore.Token) error {
	if len(tokens) == 0 {
		return nil
	}
	rows := make([][]any, len(tokens))
	for i, t := range tokens {
		rows[i] = []any{t.PersonID, t.Token}
	}
	n, err := r.pool.CopyFrom(ctx, splitFQN(r.cfg.Table),
		[]string{"personid", "token"}, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("postgres: copy tokens: %w", err)
	}
	if n != int64(len(tokens)) {
		return fmt.Errorf("postgres: copied %d of %d tokens", n, len(tokens))
	}
	return nil
}

// pgIdent safely quotes a single identifier segment for Postgres.
func pgIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

// pgFQN quotes a possibly schema-qualified name like "public.tokens" to
// "public"."tokens".
func pgFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pgIdent(p)
	}
	return strings.Join(parts, ".")
}

// splitFQN converts "schema.table" into a pgx.Identifier {"schema","table"}.
func splitFQN(fqn string) pgx.Identifier {
	parts := strings.Split(fqn, ".")
	id := make(pgx.Identifier, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			id = append(id, p)
		}
	}
	return id
}
