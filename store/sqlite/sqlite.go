// Package sqlite persists job records across process restarts. The memory
// store is the default; this one is selected when a database path is
// configured.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"shortgen/store"
	"shortgen/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
    id TEXT PRIMARY KEY,
    topic TEXT NOT NULL,
    target_duration_sec INTEGER NOT NULL,
    add_captions INTEGER NOT NULL,
    voice_preference TEXT,
    status TEXT NOT NULL,
    progress INTEGER NOT NULL,
    artifacts TEXT NOT NULL,
    error_stage TEXT,
    error_message TEXT,
    created_at DATETIME NOT NULL,
    completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);
`

const (
	insertQuery = `
        INSERT INTO jobs (
            id, topic, target_duration_sec, add_captions, voice_preference,
            status, progress, artifacts, error_stage, error_message,
            created_at, completed_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `

	updateQuery = `
        UPDATE jobs SET
            status = ?,
            progress = ?,
            artifacts = ?,
            error_stage = ?,
            error_message = ?,
            completed_at = ?
        WHERE id = ?
    `

	getQuery = `
        SELECT id, topic, target_duration_sec, add_captions, voice_preference,
               status, progress, artifacts, error_stage, error_message,
               created_at, completed_at
        FROM jobs WHERE id = ?
    `

	listQuery = `
        SELECT id, topic, target_duration_sec, add_captions, voice_preference,
               status, progress, artifacts, error_stage, error_message,
               created_at, completed_at
        FROM jobs ORDER BY created_at DESC, id DESC
    `
)

// Store implements store.Store backed by sqlite. Update serializes
// read-modify-write cycles with a process-local mutex; there is one writer
// per job anyway, the mutex only guards cross-job statement interleaving.
type Store struct {
	db    *sql.DB
	mu    sync.Mutex
	stmts struct {
		insert *sql.Stmt
		update *sql.Stmt
		get    *sql.Stmt
		list   *sql.Stmt
	}
}

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrap(err, "create database directory")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "set pragma %s", pragma)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "apply schema")
	}

	s := &Store{db: db}
	if err := s.prepare(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) prepare() error {
	var err error
	if s.stmts.insert, err = s.db.Prepare(insertQuery); err != nil {
		return errors.Wrap(err, "prepare insert")
	}
	if s.stmts.update, err = s.db.Prepare(updateQuery); err != nil {
		return errors.Wrap(err, "prepare update")
	}
	if s.stmts.get, err = s.db.Prepare(getQuery); err != nil {
		return errors.Wrap(err, "prepare get")
	}
	if s.stmts.list, err = s.db.Prepare(listQuery); err != nil {
		return errors.Wrap(err, "prepare list")
	}
	return nil
}

func (s *Store) Close() error {
	for _, stmt := range []*sql.Stmt{s.stmts.insert, s.stmts.update, s.stmts.get, s.stmts.list} {
		if stmt != nil {
			stmt.Close()
		}
	}
	return s.db.Close()
}

func (s *Store) Create(ctx context.Context, job *types.Job) error {
	artifacts, err := json.Marshal(job.Artifacts)
	if err != nil {
		return errors.Wrap(err, "encode artifacts")
	}

	var errStage, errMessage sql.NullString
	if job.Error != nil {
		errStage = sql.NullString{String: string(job.Error.Stage), Valid: true}
		errMessage = sql.NullString{String: job.Error.Message, Valid: true}
	}
	var completedAt sql.NullTime
	if job.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *job.CompletedAt, Valid: true}
	}

	_, err = s.stmts.insert.ExecContext(ctx,
		job.ID, job.Topic, job.TargetDurationSec, job.AddCaptions, job.VoicePreference,
		string(job.Status), job.Progress, string(artifacts), errStage, errMessage,
		job.CreatedAt, completedAt,
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint") {
		return store.ErrDuplicate
	}
	return errors.Wrap(err, "insert job")
}

func (s *Store) Get(ctx context.Context, id string) (*types.Job, error) {
	return scanJob(s.stmts.get.QueryRowContext(ctx, id))
}

func (s *Store) Update(ctx context.Context, id string, fn func(*types.Job) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := fn(job); err != nil {
		return err
	}
	return s.save(ctx, job)
}

func (s *Store) save(ctx context.Context, job *types.Job) error {
	artifacts, err := json.Marshal(job.Artifacts)
	if err != nil {
		return errors.Wrap(err, "encode artifacts")
	}

	var errStage, errMessage sql.NullString
	if job.Error != nil {
		errStage = sql.NullString{String: string(job.Error.Stage), Valid: true}
		errMessage = sql.NullString{String: job.Error.Message, Valid: true}
	}
	var completedAt sql.NullTime
	if job.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *job.CompletedAt, Valid: true}
	}

	// Retry on transient lock contention.
	for attempt := 0; attempt < 3; attempt++ {
		_, err = s.stmts.update.ExecContext(ctx,
			string(job.Status), job.Progress, string(artifacts),
			errStage, errMessage, completedAt, job.ID,
		)
		if err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "database is locked") {
			break
		}
		time.Sleep(time.Duration(attempt+1) * 100 * time.Millisecond)
	}
	return errors.Wrap(err, "update job")
}

func (s *Store) List(ctx context.Context) ([]*types.Job, error) {
	rows, err := s.stmts.list.QueryContext(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list jobs")
	}
	defer rows.Close()

	var out []*types.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanJob(row scannable) (*types.Job, error) {
	var (
		job         types.Job
		status      string
		artifacts   string
		errStage    sql.NullString
		errMessage  sql.NullString
		completedAt sql.NullTime
	)
	err := row.Scan(
		&job.ID, &job.Topic, &job.TargetDurationSec, &job.AddCaptions, &job.VoicePreference,
		&status, &job.Progress, &artifacts, &errStage, &errMessage,
		&job.CreatedAt, &completedAt,
	)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "scan job")
	}

	job.Status = types.Status(status)
	if err := json.Unmarshal([]byte(artifacts), &job.Artifacts); err != nil {
		return nil, errors.Wrap(err, "decode artifacts")
	}
	if errStage.Valid || errMessage.Valid {
		job.Error = &types.JobError{
			Stage:   types.Stage(errStage.String),
			Message: errMessage.String,
		}
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	return &job, nil
}
