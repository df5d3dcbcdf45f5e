package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const dbTimeout = 2 * time.Second

// dialect captures what differs between the SQL backends.
type dialect struct {
	name        string
	schema      string
	numbered    bool // $1, $2 placeholders instead of ?
	isDuplicate func(error) bool
}

// SQLRepo implements Repository using prepared statements and context timeouts.
// The caller owns the *sql.DB lifetime.
type SQLRepo struct {
	db      *sql.DB
	dialect dialect

	stmtCreate   *sql.Stmt
	stmtGetByID  *sql.Stmt
	stmtList     *sql.Stmt
	stmtUpdStat  *sql.Stmt
	stmtComplete *sql.Stmt
}

const runColumns = "id, source, status, options, stats, archive_url, error, created_at, updated_at"

func newSQLRepo(ctx context.Context, db *sql.DB, d dialect) (*SQLRepo, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*dbTimeout)
	defer cancel()
	if _, err := db.ExecContext(ctx, d.schema); err != nil {
		return nil, fmt.Errorf("%s: ensure schema: %w", d.name, err)
	}

	r := &SQLRepo{db: db, dialect: d}
	prepare := []struct {
		dst   **sql.Stmt
		name  string
		query string
	}{
		{&r.stmtCreate, "create", "INSERT INTO runs (" + runColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)"},
		{&r.stmtGetByID, "getByID", "SELECT " + runColumns + " FROM runs WHERE id = ?"},
		{&r.stmtList, "list", "SELECT " + runColumns + " FROM runs ORDER BY created_at DESC LIMIT ?"},
		{&r.stmtUpdStat, "updateStatus", "UPDATE runs SET status = ?, error = ?, updated_at = ? WHERE id = ?"},
		{&r.stmtComplete, "complete", "UPDATE runs SET status = ?, stats = ?, archive_url = ?, updated_at = ? WHERE id = ?"},
	}
	for _, p := range prepare {
		stmt, err := db.PrepareContext(ctx, rebind(p.query, d.numbered))
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("prepare %s: %w", p.name, err)
		}
		*p.dst = stmt
	}
	return r, nil
}

// rebind rewrites ? placeholders to $n when the driver needs numbered ones.
func rebind(query string, numbered bool) string {
	if !numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

// Create inserts a new run.
func (r *SQLRepo) Create(ctx context.Context, run *Run) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now

	_, err := r.stmtCreate.ExecContext(ctx,
		run.ID, run.Source, run.Status, nullJSON(run.Options), nullJSON(run.Stats),
		nullString(run.ArchiveURL), nullString(run.Error), run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		if r.dialect.isDuplicate(err) {
			return fmt.Errorf("%w: %s", ErrDuplicate, run.ID)
		}
		return fmt.Errorf("repo create: %w", err)
	}
	return nil
}

// GetByID retrieves a run by UUID.
func (r *SQLRepo) GetByID(ctx context.Context, id string) (*Run, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	run, err := scanRun(r.stmtGetByID.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("repo getByID: %w", err)
	}
	return run, nil
}

// ListAll retrieves runs ordered by most recent first.
func (r *SQLRepo) ListAll(ctx context.Context, limit int) ([]*Run, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.stmtList.QueryContext(ctx, listLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("repo listAll: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("repo listAll scan: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// UpdateStatus sets the status of a run.
func (r *SQLRepo) UpdateStatus(ctx context.Context, id, status, errMsg string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	res, err := r.stmtUpdStat.ExecContext(ctx, status, nullString(errMsg), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("repo updateStatus: %w", err)
	}
	return affected(res, id)
}

// Complete stores the final stats of a run.
func (r *SQLRepo) Complete(ctx context.Context, id string, stats json.RawMessage, archiveURL string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	res, err := r.stmtComplete.ExecContext(ctx, StatusCompleted, nullJSON(stats), nullString(archiveURL), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("repo complete: %w", err)
	}
	return affected(res, id)
}

func (r *SQLRepo) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()
	return r.db.PingContext(ctx)
}

// Close releases all prepared statements.
func (r *SQLRepo) Close() error {
	for _, s := range []*sql.Stmt{r.stmtCreate, r.stmtGetByID, r.stmtList, r.stmtUpdStat, r.stmtComplete} {
		if s != nil {
			s.Close()
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	run := &Run{}
	var options, stats []byte
	var archiveURL, errMsg sql.NullString
	if err := s.Scan(&run.ID, &run.Source, &run.Status, &options, &stats, &archiveURL, &errMsg,
		&run.CreatedAt, &run.UpdatedAt); err != nil {
		return nil, err
	}
	if len(options) > 0 {
		run.Options = json.RawMessage(options)
	}
	if len(stats) > 0 {
		run.Stats = json.RawMessage(stats)
	}
	run.ArchiveURL = archiveURL.String
	run.Error = errMsg.String
	return run, nil
}

func affected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullJSON(b json.RawMessage) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
