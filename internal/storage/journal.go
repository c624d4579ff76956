// Package storage keeps a local SQLite journal of receipt ingestion
// attempts. The ledger itself lives in the backend; the journal only records
// what the frontend asked for and how it went.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

var ErrAttemptNotFound = errors.New("ingestion attempt not found")

// Attempt statuses as stored.
const (
	StatusUploading  = "uploading"
	StatusProcessing = "processing"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
	StatusCanceled   = "canceled"
)

// Attempt is one journaled ingestion attempt.
type Attempt struct {
	ID              string
	UserID          int64
	FileName        string
	FileSize        int
	Status          string
	Stage           string
	Message         string
	ProcessAttempts int
	StartedAt       time.Time
	UpdatedAt       time.Time
}

// Journal is the SQLite backed attempt journal.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

// OpenJournal opens (creating if needed) the journal at dbPath and migrates
// it.
func OpenJournal(dbPath string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Journal{db: db, now: time.Now}, nil
}

func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (j *Journal) Ping(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

// Start records a new attempt in the uploading state. Starting an id twice
// is a no-op.
func (j *Journal) Start(ctx context.Context, a Attempt) error {
	now := j.now()
	if a.StartedAt.IsZero() {
		a.StartedAt = now
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO ingestion_attempts
			(id, user_id, file_name, file_size, status, started_at_ms, updated_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		a.ID, a.UserID, a.FileName, a.FileSize, StatusUploading,
		a.StartedAt.UnixMilli(), a.StartedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("start attempt %s: %w", a.ID, err)
	}

	slog.DebugContext(ctx, "Ingestion attempt journaled",
		"attempt_id", a.ID,
		"user_id", a.UserID,
		"file_name", a.FileName)
	return nil
}

// Transition moves attempt id to status. stage and message are only
// meaningful for failures and are cleared otherwise.
func (j *Journal) Transition(ctx context.Context, id, status, stage, message string) error {
	if status != StatusFailed {
		stage, message = "", ""
	}
	bump := 0
	if status == StatusProcessing {
		bump = 1
	}
	res, err := j.db.ExecContext(ctx, `
		UPDATE ingestion_attempts
		SET status = ?, stage = ?, message = ?,
		    process_attempts = process_attempts + ?,
		    updated_at_ms = ?
		WHERE id = ?`,
		status, stage, message, bump, j.now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("transition attempt %s to %s: %w", id, status, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition attempt %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("transition attempt %s: %w", id, ErrAttemptNotFound)
	}
	return nil
}

// Get returns attempt id.
func (j *Journal) Get(ctx context.Context, id string) (Attempt, error) {
	row := j.db.QueryRowContext(ctx, selectAttempt+` WHERE id = ?`, id)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, fmt.Errorf("get attempt %s: %w", id, ErrAttemptNotFound)
	}
	if err != nil {
		return Attempt{}, fmt.Errorf("get attempt %s: %w", id, err)
	}
	return a, nil
}

// ListRecent returns the newest attempts of userID, newest first.
func (j *Journal) ListRecent(ctx context.Context, userID int64, limit int) ([]Attempt, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx,
		selectAttempt+` WHERE user_id = ? ORDER BY started_at_ms DESC, id LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list attempts for user %d: %w", userID, err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CountByStatus returns how many attempts of userID are in each status.
func (j *Journal) CountByStatus(ctx context.Context, userID int64) (map[string]int, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM ingestion_attempts WHERE user_id = ? GROUP BY status`, userID)
	if err != nil {
		return nil, fmt.Errorf("count attempts for user %d: %w", userID, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

const selectAttempt = `
	SELECT id, user_id, file_name, file_size, status, stage, message,
	       process_attempts, started_at_ms, updated_at_ms
	FROM ingestion_attempts`

type scanner interface {
	Scan(dest ...any) error
}

func scanAttempt(s scanner) (Attempt, error) {
	var a Attempt
	var started, updated int64
	err := s.Scan(&a.ID, &a.UserID, &a.FileName, &a.FileSize, &a.Status, &a.Stage, &a.Message,
		&a.ProcessAttempts, &started, &updated)
	if err != nil {
		return Attempt{}, err
	}
	a.StartedAt = time.UnixMilli(started)
	a.UpdatedAt = time.UnixMilli(updated)
	return a, nil
}
