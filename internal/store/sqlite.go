package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/floorcast/pkg/models"
	_ "modernc.org/sqlite"
)

// SQLiteStore is a single-file implementation of Store used by the
// command-line renderer, where running Postgres is not worth it.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the SQLite database at dbPath and creates
// the jobs table.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	if _, err = db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err = s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS jobs (
			id             TEXT PRIMARY KEY,
			status         TEXT NOT NULL,
			floor_id       TEXT NOT NULL,
			source         TEXT NOT NULL,
			prompt_version TEXT NOT NULL,
			items          TEXT NOT NULL DEFAULT '[]',
			error_message  TEXT,
			started_at     DATETIME,
			completed_at   DATETIME,
			created_at     DATETIME NOT NULL,
			updated_at     DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
	`)
	return err
}

// Ping checks database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateJob(ctx context.Context, job *models.Job) error {
	items, err := json.Marshal(job.Items)
	if err != nil {
		return fmt.Errorf("encode items: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs
			(id, status, floor_id, source, prompt_version, items, error_message,
			 started_at, completed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		job.ID.String(), string(job.Status), job.FloorID, string(job.Source), job.PromptVersion,
		string(items), nullableString(job.Error), nullableTime(job.StartedAt), nullableTime(job.CompletedAt),
		job.CreatedAt.UTC(), job.UpdatedAt.UTC(),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("create job %s: %w", job.ID, ErrDuplicateKey)
	}
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, status, floor_id, source, prompt_version, items, error_message,
		       started_at, completed_at, created_at, updated_at
		FROM jobs WHERE id = ?
	`, id.String())

	var (
		j                      models.Job
		rawID, status, source  string
		items                  string
		errMsg                 sql.NullString
		startedAt, completedAt sql.NullTime
	)
	err := row.Scan(&rawID, &status, &j.FloorID, &source, &j.PromptVersion, &items, &errMsg,
		&startedAt, &completedAt, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}

	if j.ID, err = uuid.Parse(rawID); err != nil {
		return nil, fmt.Errorf("parse job id %q: %w", rawID, err)
	}
	j.Status = models.JobStatus(status)
	j.Source = models.Source(source)
	if err := json.Unmarshal([]byte(items), &j.Items); err != nil {
		return nil, fmt.Errorf("decode items of job %s: %w", id, err)
	}
	if errMsg.Valid {
		msg := errMsg.String
		j.Error = &msg
	}
	if startedAt.Valid {
		t := startedAt.Time
		j.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		j.CompletedAt = &t
	}
	return &j, nil
}

func (s *SQLiteStore) UpdateJob(ctx context.Context, job *models.Job) error {
	return s.replace(ctx, job, allowedFrom(job.Status))
}

func (s *SQLiteStore) ClaimJob(ctx context.Context, job *models.Job) error {
	from, err := claimFrom(job)
	if err != nil {
		return err
	}
	return s.replace(ctx, job, from)
}

func (s *SQLiteStore) replace(ctx context.Context, job *models.Job, from []string) error {
	items, err := json.Marshal(job.Items)
	if err != nil {
		return fmt.Errorf("encode items: %w", err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(from)), ",")
	args := []any{
		string(job.Status), job.PromptVersion, string(items), nullableString(job.Error),
		nullableTime(job.StartedAt), nullableTime(job.CompletedAt), job.UpdatedAt.UTC(),
		job.ID.String(),
	}
	for _, f := range from {
		args = append(args, f)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, prompt_version = ?, items = ?, error_message = ?,
		                started_at = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND status IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	var current string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = ?`, job.ID.String()).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get job status: %w", err)
	}
	return fmt.Errorf("%w: %s -> %s", ErrConflict, current, job.Status)
}

func (s *SQLiteStore) ListJobIDsByStatus(ctx context.Context, status models.JobStatus) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM jobs WHERE status = ? ORDER BY created_at`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list jobs by status: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan job id: %w", err)
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse job id %q: %w", raw, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

var _ Store = (*SQLiteStore)(nil)
