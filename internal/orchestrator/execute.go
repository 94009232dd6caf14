package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/floorcast/internal/resolver"
	"github.com/kiranshivaraju/floorcast/internal/store"
	"github.com/kiranshivaraju/floorcast/pkg/models"
)

// productInputs are the per-job images shared by every item.
type productInputs struct {
	product    models.Product
	references []models.ImageData
	mask       *models.ImageData
}

// Execute processes one job. It is the queue handler and runs at most once
// per job: the PENDING -> RUNNING write is a conditional claim, so a job that
// another executor already took is left untouched.
//
// Items are processed strictly in order. After every item the whole job
// snapshot is persisted so pollers see partial progress. An item failure is
// recorded on the item and the loop continues; a store failure or panic ends
// the job as ERROR with a job-level message.
func (s *Service) Execute(ctx context.Context, jobID uuid.UUID) {
	var current *models.Job

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in job execution", "job_id", jobID, "error", r)
			if current != nil {
				s.failJob(ctx, current, fmt.Sprintf("panic: %v", r))
			}
		}
	}()

	job, err := s.deps.Store.GetJob(ctx, jobID)
	if err != nil {
		slog.Error("loading job", "job_id", jobID, "error", err)
		return
	}
	current = job
	if job.Status != models.JobStatusPending {
		slog.Warn("skipping job that is not pending", "job_id", jobID, "status", job.Status)
		return
	}

	inputs, err := s.loadProduct(job.FloorID)
	if err != nil {
		s.failJob(ctx, job, err.Error())
		return
	}

	running := job.Clone()
	now := s.now()
	running.Status = models.JobStatusRunning
	running.StartedAt = &now
	running.UpdatedAt = now
	if err := s.deps.Store.ClaimJob(ctx, running); err != nil {
		if errors.Is(err, store.ErrConflict) {
			slog.Warn("job claimed by another executor", "job_id", jobID, "error", err)
			return
		}
		slog.Error("marking job running", "job_id", jobID, "error", err)
		s.failJob(ctx, job, fmt.Sprintf("persisting job: %v", err))
		return
	}
	current = running
	slog.Info("job running", "job_id", jobID, "items", len(running.Items))

	for i := range current.Items {
		next := current.Clone()
		s.processItem(ctx, next, i, inputs)
		next.UpdatedAt = s.now()

		if err := s.deps.Store.UpdateJob(ctx, next); err != nil {
			slog.Error("persisting item result", "job_id", jobID, "item", i, "error", err)
			s.failJob(ctx, next, fmt.Sprintf("persisting job: %v", err))
			return
		}
		current = next
	}

	final := current.Clone()
	now = s.now()
	final.Status = final.AggregateStatus()
	final.CompletedAt = &now
	final.UpdatedAt = now
	done, failed := final.Counts()
	if done == 0 {
		msg := msgAllFailed
		final.Error = &msg
	}
	if err := s.deps.Store.UpdateJob(ctx, final); err != nil {
		slog.Error("persisting final status", "job_id", jobID, "error", err)
		s.failJob(ctx, current, fmt.Sprintf("persisting job: %v", err))
		return
	}

	slog.Info("job finished", "job_id", jobID, "status", final.Status, "done", done, "failed", failed)
}

// loadProduct reads the product and its reference images. A product whose
// images cannot be read fails the whole job, not individual items.
func (s *Service) loadProduct(floorID string) (productInputs, error) {
	product, err := s.deps.Catalog.LookupProduct(floorID)
	if err != nil {
		return productInputs{}, fmt.Errorf("loading product: %w", err)
	}

	in := productInputs{product: product}
	for _, path := range product.ReferenceImages {
		img, err := s.deps.Catalog.ReadImage(path)
		if err != nil {
			return productInputs{}, fmt.Errorf("reading reference image: %w", err)
		}
		in.references = append(in.references, img)
	}
	if product.MaskImage != "" {
		mask, err := s.deps.Catalog.ReadImage(product.MaskImage)
		if err != nil {
			return productInputs{}, fmt.Errorf("reading mask image: %w", err)
		}
		in.mask = &mask
	}
	return in, nil
}

// processItem runs one item and records its outcome on job.Items[i].
func (s *Service) processItem(ctx context.Context, job *models.Job, i int, in productInputs) {
	item := &job.Items[i]
	log := slog.With("job_id", job.ID, "item", i, "input_id", item.InputID)

	room, err := s.deps.Resolver.Read(job.Source, resolver.Input{ID: item.InputID, Ref: item.InputRef})
	if err != nil {
		failItem(item, models.ItemErrorInputUnreadable, err)
		log.Warn("item failed", "kind", item.ErrorKind, "error", err)
		return
	}

	p := s.deps.Composer.Compose(in.product.PromptFragment, item.Hint)
	item.PromptVersion = p.Version

	images, err := s.deps.Generator.Generate(ctx, models.GenerationRequest{
		Room:       room,
		References: in.references,
		Mask:       in.mask,
		Prompt:     p.Text,
	})
	if err == nil && len(images) == 0 {
		err = models.ErrNoImage
	}
	if err != nil {
		failItem(item, models.ItemErrorInvokerFailure, err)
		log.Warn("item failed", "kind", item.ErrorKind, "generator", s.deps.Generator.Name(), "error", err)
		return
	}

	ref, err := s.deps.Outputs.Save(images[0], item.InputRef, job.FloorID)
	if err != nil {
		failItem(item, models.ItemErrorOutputUnwritable, err)
		log.Warn("item failed", "kind", item.ErrorKind, "error", err)
		return
	}

	item.Status = models.ItemStatusDone
	item.OutputRef = ref
	log.Info("item done", "output_ref", ref)
}

func failItem(item *models.Item, kind string, err error) {
	item.Status = models.ItemStatusError
	item.ErrorKind = kind
	item.Error = err.Error()
}
