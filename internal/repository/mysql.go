package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

const mysqlSchema = `CREATE TABLE IF NOT EXISTS runs (
	id          VARCHAR(36)  NOT NULL PRIMARY KEY,
	source      VARCHAR(512) NOT NULL,
	status      VARCHAR(32)  NOT NULL,
	options     JSON         NULL,
	stats       JSON         NULL,
	archive_url TEXT         NULL,
	error       TEXT         NULL,
	created_at  DATETIME(6)  NOT NULL,
	updated_at  DATETIME(6)  NOT NULL,
	INDEX idx_runs_created_at (created_at)
)`

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// OpenMySQL opens a pool for dsn with the options the repository relies on:
// DATETIME columns scan into time.Time and UPDATE reports matched rows.
func OpenMySQL(dsn string) (*sql.DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql: parse dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.ClientFoundRows = true

	conn, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql: connector: %w", err)
	}
	return sql.OpenDB(conn), nil
}

// NewMySQLRepo ensures the schema and prepares all statements up front.
func NewMySQLRepo(ctx context.Context, db *sql.DB) (*SQLRepo, error) {
	return newSQLRepo(ctx, db, dialect{
		name:   "mysql",
		schema: mysqlSchema,
		isDuplicate: func(err error) bool {
			var me *mysql.MySQLError
			return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
		},
	})
}
