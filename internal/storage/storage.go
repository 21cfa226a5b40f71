package storage

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

var ErrNotFound = errors.New("not found")

// Storage is the batch run journal
type Storage struct {
	db *sql.DB
}

// New creates a new Storage instance and initializes the database
func New(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	s := &Storage{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS batch_runs (
			id TEXT PRIMARY KEY,
			operation TEXT NOT NULL,
			user_id INTEGER NOT NULL,
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			total INTEGER NOT NULL,
			success INTEGER NOT NULL,
			skipped INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			total_collected TEXT NOT NULL DEFAULT '0',
			reward TEXT NOT NULL DEFAULT '0',
			reward_tx TEXT,
			error TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_batch_runs_started_at ON batch_runs(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_batch_runs_operation ON batch_runs(operation)`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}

	return nil
}

// RecordRun stores a finished run. An empty ID is assigned a new UUID.
func (s *Storage) RecordRun(r *Run) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.TotalCollected == "" {
		r.TotalCollected = "0"
	}
	if r.Reward == "" {
		r.Reward = "0"
	}

	_, err := s.db.Exec(
		`INSERT INTO batch_runs (id, operation, user_id, started_at, finished_at,
			total, success, skipped, failed, total_collected, reward, reward_tx, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Operation, r.UserID, r.StartedAt.UnixMilli(), r.FinishedAt.UnixMilli(),
		r.Total, r.Success, r.Skipped, r.Failed, r.TotalCollected, r.Reward,
		nullString(r.RewardTx), nullString(r.Error),
	)
	return err
}

// ListRuns returns the most recent runs, newest first
func (s *Storage) ListRuns(limit int) ([]Run, error) {
	rows, err := s.db.Query(
		`SELECT id, operation, user_id, started_at, finished_at, total, success, skipped,
			failed, total_collected, reward, reward_tx, error
		 FROM batch_runs ORDER BY started_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}

	return runs, rows.Err()
}

// GetRun returns a run by ID
func (s *Storage) GetRun(id string) (*Run, error) {
	row := s.db.QueryRow(
		`SELECT id, operation, user_id, started_at, finished_at, total, success, skipped,
			failed, total_collected, reward, reward_tx, error
		 FROM batch_runs WHERE id = ?`,
		id,
	)

	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var r Run
	var startedAt, finishedAt int64
	var rewardTx, runErr sql.NullString

	err := sc.Scan(&r.ID, &r.Operation, &r.UserID, &startedAt, &finishedAt,
		&r.Total, &r.Success, &r.Skipped, &r.Failed, &r.TotalCollected, &r.Reward,
		&rewardTx, &runErr)
	if err != nil {
		return nil, err
	}

	r.StartedAt = time.UnixMilli(startedAt)
	r.FinishedAt = time.UnixMilli(finishedAt)
	r.RewardTx = rewardTx.String
	r.Error = runErr.String
	return &r, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
