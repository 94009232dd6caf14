// Package orchestrator owns the job lifecycle: it validates and persists new
// jobs, schedules them, and drives each job's items through the generator.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/floorcast/internal/cache"
	"github.com/kiranshivaraju/floorcast/internal/prompt"
	"github.com/kiranshivaraju/floorcast/internal/resolver"
	"github.com/kiranshivaraju/floorcast/internal/store"
	"github.com/kiranshivaraju/floorcast/pkg/models"
)

var (
	// ErrNotFound is returned by GetJob for an unknown id.
	ErrNotFound = store.ErrNotFound
	// ErrHintsMismatch is returned when hints are given but not one per input.
	ErrHintsMismatch = errors.New("hints must be empty or match input_refs one to one")
	// ErrRequestInFlight is returned when an idempotency key is claimed by a
	// request whose job is not yet stored.
	ErrRequestInFlight = errors.New("a request with this idempotency key is in progress")
)

// Job-level error messages.
const (
	msgInterrupted = "interrupted by restart"
	msgAllFailed   = "no item could be processed"
)

// Resolver validates job inputs and reads room images.
type Resolver interface {
	Resolve(source models.Source, ids []string, floorID string) ([]resolver.Input, error)
	Read(source models.Source, in resolver.Input) (models.ImageData, error)
}

// Catalog provides products and their reference images.
type Catalog interface {
	LookupProduct(id string) (models.Product, error)
	ReadImage(path string) (models.ImageData, error)
}

// Composer builds the per-item prompt.
type Composer interface {
	Compose(fragment, hint string) prompt.Prompt
	Version() string
}

// OutputWriter persists a generated image and returns its public reference.
type OutputWriter interface {
	Save(img models.ImageData, room, floorID string) (string, error)
}

// Enqueuer schedules a stored job for background execution.
type Enqueuer interface {
	Enqueue(jobID uuid.UUID) error
}

// Dependencies holds everything the Service needs. Cache may be nil, which
// disables idempotency keys.
type Dependencies struct {
	Store          store.Store
	Cache          cache.Cache
	Resolver       Resolver
	Catalog        Catalog
	Composer       Composer
	Generator      models.ImageGenerator
	Outputs        OutputWriter
	Queue          Enqueuer
	IdempotencyTTL time.Duration
}

// CreateParams is a validated-shape job request.
type CreateParams struct {
	FloorID        string
	Source         models.Source
	InputRefs      []string
	Hints          []string
	IdempotencyKey string
}

// Service orchestrates job creation and execution.
type Service struct {
	deps Dependencies
	now  func() time.Time
}

// New creates a new Service.
func New(deps Dependencies) *Service {
	return &Service{
		deps: deps,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// CreateJob validates the request, persists a PENDING job and schedules it.
// It returns as soon as the job is stored; processing happens in the
// background. Validation errors come from the resolver and nothing is stored.
func (s *Service) CreateJob(ctx context.Context, p CreateParams) (*models.Job, error) {
	if len(p.Hints) != 0 && len(p.Hints) != len(p.InputRefs) {
		return nil, ErrHintsMismatch
	}
	inputs, err := s.deps.Resolver.Resolve(p.Source, p.InputRefs, p.FloorID)
	if err != nil {
		return nil, err
	}

	jobID := uuid.New()
	claimed := false
	if p.IdempotencyKey != "" && s.deps.Cache != nil {
		existing, ok, err := s.claimIdempotencyKey(ctx, p.IdempotencyKey, jobID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
		claimed = ok
	}

	now := s.now()
	job := &models.Job{
		ID:            jobID,
		Status:        models.JobStatusPending,
		FloorID:       p.FloorID,
		Source:        p.Source,
		PromptVersion: s.deps.Composer.Version(),
		Items:         make([]models.Item, len(inputs)),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for i, in := range inputs {
		job.Items[i] = models.Item{
			InputID:  in.ID,
			InputRef: in.Ref,
			Status:   models.ItemStatusPending,
		}
		if len(p.Hints) > 0 {
			job.Items[i].Hint = p.Hints[i]
		}
	}

	if err := s.deps.Store.CreateJob(ctx, job); err != nil {
		if claimed {
			_ = s.deps.Cache.Delete(ctx, cache.IdempotencyKey(p.IdempotencyKey))
		}
		return nil, fmt.Errorf("creating job: %w", err)
	}

	slog.Info("job created", "job_id", job.ID, "floor_id", job.FloorID,
		"source", job.Source, "items", len(job.Items))

	if err := s.deps.Queue.Enqueue(job.ID); err != nil {
		slog.Error("scheduling job failed", "job_id", job.ID, "error", err)
		return s.failJob(ctx, job, fmt.Sprintf("scheduling failed: %v", err)), nil
	}

	return job, nil
}

// claimIdempotencyKey reserves key for jobID. When another request already
// holds the key it returns that request's job instead. Cache failures are
// logged and the request proceeds without idempotency.
func (s *Service) claimIdempotencyKey(ctx context.Context, key string, jobID uuid.UUID) (*models.Job, bool, error) {
	ck := cache.IdempotencyKey(key)
	ok, err := s.deps.Cache.SetNX(ctx, ck, []byte(jobID.String()), s.deps.IdempotencyTTL)
	if err != nil {
		slog.Warn("idempotency cache unavailable", "error", err)
		return nil, false, nil
	}
	if ok {
		return nil, true, nil
	}

	raw, found, err := s.deps.Cache.Get(ctx, ck)
	if err != nil || !found {
		slog.Warn("idempotency key vanished", "found", found, "error", err)
		return nil, false, nil
	}
	existingID, err := uuid.ParseBytes(raw)
	if err != nil {
		slog.Warn("idempotency key holds invalid job id", "value", string(raw))
		return nil, false, nil
	}

	job, err := s.deps.Store.GetJob(ctx, existingID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, ErrRequestInFlight
	}
	if err != nil {
		return nil, false, fmt.Errorf("loading job for idempotency key: %w", err)
	}
	slog.Info("idempotent replay", "job_id", job.ID)
	return job, false, nil
}

// GetJob returns the latest persisted job record. It always reads the store.
func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	job, err := s.deps.Store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Recover runs at startup. PENDING jobs are rescheduled; RUNNING jobs were
// cut off mid-iteration and are closed as ERROR, keeping finished items.
func (s *Service) Recover(ctx context.Context) error {
	running, err := s.deps.Store.ListJobIDsByStatus(ctx, models.JobStatusRunning)
	if err != nil {
		return fmt.Errorf("listing running jobs: %w", err)
	}
	for _, id := range running {
		job, err := s.deps.Store.GetJob(ctx, id)
		if err != nil {
			slog.Error("recovery: loading job", "job_id", id, "error", err)
			continue
		}
		s.failJob(ctx, job, msgInterrupted)
	}

	pending, err := s.deps.Store.ListJobIDsByStatus(ctx, models.JobStatusPending)
	if err != nil {
		return fmt.Errorf("listing pending jobs: %w", err)
	}
	for _, id := range pending {
		if err := s.deps.Queue.Enqueue(id); err != nil {
			slog.Error("recovery: rescheduling job", "job_id", id, "error", err)
			if job, gerr := s.deps.Store.GetJob(ctx, id); gerr == nil {
				s.failJob(ctx, job, fmt.Sprintf("scheduling failed: %v", err))
			}
		}
	}

	slog.Info("recovery complete", "interrupted", len(running), "rescheduled", len(pending))
	return nil
}

// failJob moves job to ERROR with a job-level message and persists it,
// best effort. It returns the snapshot it tried to write.
func (s *Service) failJob(ctx context.Context, job *models.Job, msg string) *models.Job {
	failed := job.Clone()
	now := s.now()
	failed.Status = models.JobStatusError
	failed.Error = &msg
	failed.CompletedAt = &now
	failed.UpdatedAt = now

	if err := s.deps.Store.UpdateJob(ctx, failed); err != nil {
		slog.Error("marking job failed", "job_id", job.ID, "reason", msg, "error", err)
	} else {
		slog.Warn("job failed", "job_id", job.ID, "reason", msg)
	}
	return failed
}
