package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS runs (
	id          TEXT        PRIMARY KEY,
	source      TEXT        NOT NULL,
	status      TEXT        NOT NULL,
	options     JSONB       NULL,
	stats       JSONB       NULL,
	archive_url TEXT        NULL,
	error       TEXT        NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
)`

// pgUniqueViolation is SQLSTATE unique_violation.
const pgUniqueViolation = "23505"

// OpenPostgres opens a pool through the pgx database/sql driver and checks connectivity.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return db, nil
}

// NewPostgresRepo ensures the schema and prepares all statements up front.
func NewPostgresRepo(ctx context.Context, db *sql.DB) (*SQLRepo, error) {
	return newSQLRepo(ctx, db, dialect{
		name:     "postgres",
		schema:   postgresSchema,
		numbered: true,
		isDuplicate: func(err error) bool {
			var pe *pgconn.PgError
			return errors.As(err, &pe) && pe.Code == pgUniqueViolation
		},
	})
}
