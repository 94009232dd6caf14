package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/floorcast/pkg/models"
)

var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicateKey = errors.New("duplicate key violation")
	// ErrConflict is returned when an update would leave a terminal job or
	// make a status transition the job lifecycle does not allow.
	ErrConflict = errors.New("job update conflicts with current status")
)

// Store is the job persistence interface. All job reads and writes go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	// UpdateJob atomically replaces the stored record with job. Readers see
	// either the previous snapshot or this one, never a mix.
	UpdateJob(ctx context.Context, job *models.Job) error
	// ClaimJob replaces the record with job, which must be RUNNING, only while
	// the stored status is still PENDING. Of two concurrent claims exactly one
	// wins; the other gets ErrConflict.
	ClaimJob(ctx context.Context, job *models.Job) error
	ListJobIDsByStatus(ctx context.Context, status models.JobStatus) ([]uuid.UUID, error)
}

var allStatuses = []models.JobStatus{
	models.JobStatusPending,
	models.JobStatusRunning,
	models.JobStatusDone,
	models.JobStatusError,
}

// allowedFrom lists the stored statuses an update to status `to` may replace:
// the same non-terminal status, or any status that can transition to it.
func allowedFrom(to models.JobStatus) []string {
	var from []string
	for _, s := range allStatuses {
		if (s == to && !s.IsTerminal()) || models.CanTransition(s, to) {
			from = append(from, string(s))
		}
	}
	return from
}

// claimFrom checks that job can be claimed and returns the only status a
// claim may replace.
func claimFrom(job *models.Job) ([]string, error) {
	if job.Status != models.JobStatusRunning {
		return nil, fmt.Errorf("%w: claim must set %s, got %s", ErrConflict, models.JobStatusRunning, job.Status)
	}
	return []string{string(models.JobStatusPending)}, nil
}
