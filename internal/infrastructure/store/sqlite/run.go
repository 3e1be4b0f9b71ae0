package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"copywriter/internal/domain/entity"
	"copywriter/internal/domain/repository"
	"copywriter/internal/infrastructure/metrics"
)

// timestamps are stored as fixed-width text so ORDER BY is chronological.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	request TEXT NOT NULL,
	state TEXT,
	error TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	completed_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_status_created ON runs(status, created_at);
`

const selectColumns = `SELECT id, status, request, state, error, created_at, updated_at, completed_at FROM runs`

// RunRepo persists runs in a single SQLite file.
type RunRepo struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewRunRepo(ctx context.Context, dbPath string, logger *slog.Logger) (*RunRepo, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// single writer
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	r := &RunRepo{db: db, logger: logger}
	if err := r.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *RunRepo) initSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (r *RunRepo) Close() error {
	return r.db.Close()
}

func (r *RunRepo) Create(ctx context.Context, run *entity.Run) error {
	metrics.IncStoreOp("sqlite", "insert")

	now := time.Now().UTC()

	request, err := json.Marshal(run.Request)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	state, err := encodeState(run.State)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, request, state, error, created_at, updated_at, completed_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Status), string(request), state, run.Error,
		formatTime(now), formatTime(now), formatTimePtr(run.CompletedAt),
	)
	if err != nil {
		metrics.IncError("sqlite", "insert")
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	run.CreatedAt = now
	run.UpdatedAt = now
	return nil
}

func (r *RunRepo) GetByID(ctx context.Context, id string) (*entity.Run, error) {
	metrics.IncStoreOp("sqlite", "get")
	run, err := scanRun(r.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}

func (r *RunRepo) List(ctx context.Context) ([]*entity.Run, error) {
	metrics.IncStoreOp("sqlite", "list")
	return r.query(ctx, selectColumns+` ORDER BY created_at, id`)
}

func (r *RunRepo) ListByStatus(ctx context.Context, status entity.RunStatus) ([]*entity.Run, error) {
	metrics.IncStoreOp("sqlite", "list")
	return r.query(ctx, selectColumns+` WHERE status = ? ORDER BY created_at, id`, string(status))
}

func (r *RunRepo) query(ctx context.Context, q string, args ...any) ([]*entity.Run, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []*entity.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			metrics.IncError("sqlite", "decode")
			return nil, err
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

func (r *RunRepo) UpdateStatus(ctx context.Context, id string, status entity.RunStatus) error {
	metrics.IncStoreOp("sqlite", "update")
	return r.exec(ctx, id,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), formatTime(time.Now().UTC()), id)
}

func (r *RunRepo) SaveResult(ctx context.Context, id string, state *entity.WorkflowState) error {
	metrics.IncStoreOp("sqlite", "update")
	encoded, err := encodeState(state)
	if err != nil {
		return err
	}
	now := formatTime(time.Now().UTC())
	return r.exec(ctx, id,
		`UPDATE runs SET status = ?, state = ?, error = '', updated_at = ?, completed_at = ? WHERE id = ?`,
		string(entity.RunStatusCompleted), encoded, now, now, id)
}

func (r *RunRepo) MarkFailed(ctx context.Context, id, reason string, state *entity.WorkflowState) error {
	metrics.IncStoreOp("sqlite", "update")
	now := formatTime(time.Now().UTC())
	if state == nil {
		return r.exec(ctx, id,
			`UPDATE runs SET status = ?, error = ?, updated_at = ?, completed_at = ? WHERE id = ?`,
			string(entity.RunStatusFailed), reason, now, now, id)
	}
	encoded, err := encodeState(state)
	if err != nil {
		return err
	}
	return r.exec(ctx, id,
		`UPDATE runs SET status = ?, error = ?, state = ?, updated_at = ?, completed_at = ? WHERE id = ?`,
		string(entity.RunStatusFailed), reason, encoded, now, now, id)
}

func (r *RunRepo) Delete(ctx context.Context, id string) error {
	metrics.IncStoreOp("sqlite", "delete")
	return r.exec(ctx, id, `DELETE FROM runs WHERE id = ?`, id)
}

func (r *RunRepo) CountByStatus(ctx context.Context, status entity.RunStatus) (int, error) {
	metrics.IncStoreOp("sqlite", "count")
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE status = ?`, string(status)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count runs: %w", err)
	}
	return n, nil
}

// exec runs a single-row statement and reports ErrNotFound when nothing matched.
func (r *RunRepo) exec(ctx context.Context, id, q string, args ...any) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		metrics.IncError("sqlite", "exec")
		return fmt.Errorf("update run %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update run %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("run %s: %w", id, repository.ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*entity.Run, error) {
	var (
		run                  entity.Run
		status, request      string
		state, completedAt   sql.NullString
		createdAt, updatedAt string
	)
	if err := s.Scan(&run.ID, &status, &request, &state, &run.Error, &createdAt, &updatedAt, &completedAt); err != nil {
		return nil, err
	}
	run.Status = entity.RunStatus(status)

	if err := json.Unmarshal([]byte(request), &run.Request); err != nil {
		return nil, fmt.Errorf("decode request of %s: %w", run.ID, err)
	}
	if state.Valid && state.String != "" {
		var st entity.WorkflowState
		if err := json.Unmarshal([]byte(state.String), &st); err != nil {
			return nil, fmt.Errorf("decode state of %s: %w", run.ID, err)
		}
		run.State = &st
	}

	var err error
	if run.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("decode created_at of %s: %w", run.ID, err)
	}
	if run.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("decode updated_at of %s: %w", run.ID, err)
	}
	if completedAt.Valid && completedAt.String != "" {
		t, err := time.Parse(timeLayout, completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("decode completed_at of %s: %w", run.ID, err)
		}
		run.CompletedAt = &t
	}
	return &run, nil
}

func encodeState(st *entity.WorkflowState) (sql.NullString, error) {
	if st == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(st)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode state: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}
