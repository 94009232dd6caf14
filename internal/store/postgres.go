package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/floorcast/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Jobs ---

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	items, err := json.Marshal(job.Items)
	if err != nil {
		return fmt.Errorf("encode items: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO jobs (id, status, floor_id, source, prompt_version, items, error_message,
		                   started_at, completed_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		job.ID, string(job.Status), job.FloorID, string(job.Source), job.PromptVersion, items,
		job.Error, job.StartedAt, job.CompletedAt, job.CreatedAt, job.UpdatedAt)
	if isDuplicateKeyError(err) {
		return fmt.Errorf("create job %s: %w", job.ID, ErrDuplicateKey)
	}
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	var (
		j              models.Job
		status, source string
		items          []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, status, floor_id, source, prompt_version, items, error_message,
		        started_at, completed_at, created_at, updated_at
		 FROM jobs WHERE id = $1`, id,
	).Scan(&j.ID, &status, &j.FloorID, &source, &j.PromptVersion, &items, &j.Error,
		&j.StartedAt, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}

	j.Status = models.JobStatus(status)
	j.Source = models.Source(source)
	if err := json.Unmarshal(items, &j.Items); err != nil {
		return nil, fmt.Errorf("decode items of job %s: %w", id, err)
	}
	return &j, nil
}

// UpdateJob replaces every mutable column in one statement. The WHERE clause
// only matches rows whose current status may move to job.Status.
func (s *PostgresStore) UpdateJob(ctx context.Context, job *models.Job) error {
	return s.replace(ctx, job, allowedFrom(job.Status))
}

func (s *PostgresStore) ClaimJob(ctx context.Context, job *models.Job) error {
	from, err := claimFrom(job)
	if err != nil {
		return err
	}
	return s.replace(ctx, job, from)
}

// replace overwrites the record only while its stored status is one of from.
func (s *PostgresStore) replace(ctx context.Context, job *models.Job, from []string) error {
	items, err := json.Marshal(job.Items)
	if err != nil {
		return fmt.Errorf("encode items: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $2, prompt_version = $3, items = $4, error_message = $5,
		                 started_at = $6, completed_at = $7, updated_at = $8
		 WHERE id = $1 AND status = ANY($9)`,
		job.ID, string(job.Status), job.PromptVersion, items, job.Error,
		job.StartedAt, job.CompletedAt, job.UpdatedAt, from)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var current string
	err = s.pool.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1`, job.ID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get job status: %w", err)
	}
	return fmt.Errorf("%w: %s -> %s", ErrConflict, current, job.Status)
}

func (s *PostgresStore) ListJobIDsByStatus(ctx context.Context, status models.JobStatus) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM jobs WHERE status = $1 ORDER BY created_at`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list jobs by status: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan job id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

var _ Store = (*PostgresStore)(nil)
