package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/floorcast/internal/api/response"
	"github.com/kiranshivaraju/floorcast/internal/orchestrator"
	"github.com/kiranshivaraju/floorcast/internal/resolver"
	"github.com/kiranshivaraju/floorcast/pkg/models"
)

// IdempotencyKeyHeader lets clients retry POST /api/v1/jobs safely.
const IdempotencyKeyHeader = "Idempotency-Key"

const maxJobRequestBytes = 1 << 20

// JobService defines the interface the job handlers depend on.
type JobService interface {
	CreateJob(ctx context.Context, p orchestrator.CreateParams) (*models.Job, error)
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
}

type createJobRequest struct {
	FloorID   string   `json:"floor_id"   validate:"required,max=128"`
	Source    string   `json:"source"     validate:"required,oneof=sample upload"`
	InputRefs []string `json:"input_refs" validate:"max=20,dive,required,max=256"`
	Hints     []string `json:"hints"      validate:"omitempty,max=20,dive,max=1000"`
}

// NewCreateJobHandler returns an http.HandlerFunc for POST /api/v1/jobs.
// The job is accepted once stored; clients poll GET /api/v1/jobs/{jobID}.
func NewCreateJobHandler(svc JobService, v *Validator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createJobRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJobRequestBytes))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if errs := v.Struct(req); len(errs) > 0 {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request", errs)
			return
		}

		key := r.Header.Get(IdempotencyKeyHeader)
		if len(key) > 255 {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request",
				[]ValidationError{{Field: IdempotencyKeyHeader, Message: "must be at most 255 long"}})
			return
		}

		job, err := svc.CreateJob(r.Context(), orchestrator.CreateParams{
			FloorID:        req.FloorID,
			Source:         models.Source(req.Source),
			InputRefs:      req.InputRefs,
			Hints:          req.Hints,
			IdempotencyKey: key,
		})
		if err != nil {
			writeCreateError(w, err)
			return
		}

		response.Accepted(w, job)
	}
}

func writeCreateError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, resolver.ErrUnknownProduct):
		response.Error(w, http.StatusUnprocessableEntity, "UNKNOWN_FLOOR", err.Error(), nil)
	case errors.Is(err, resolver.ErrUnknownSample):
		response.Error(w, http.StatusUnprocessableEntity, "UNKNOWN_SAMPLE", err.Error(), nil)
	case errors.Is(err, resolver.ErrUnknownUpload):
		response.Error(w, http.StatusUnprocessableEntity, "UNKNOWN_UPLOAD", err.Error(), nil)
	case errors.Is(err, resolver.ErrEmptyInput):
		response.Error(w, http.StatusBadRequest, "EMPTY_INPUT", "At least one input is required", nil)
	case errors.Is(err, resolver.ErrInvalidSource):
		response.Error(w, http.StatusBadRequest, "INVALID_SOURCE", err.Error(), nil)
	case errors.Is(err, orchestrator.ErrHintsMismatch):
		response.Error(w, http.StatusBadRequest, "HINTS_MISMATCH", err.Error(), nil)
	case errors.Is(err, orchestrator.ErrRequestInFlight):
		response.Error(w, http.StatusConflict, "REQUEST_IN_FLIGHT", err.Error(), nil)
	default:
		slog.Error("creating job", "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}

// NewGetJobHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
func NewGetJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_JOB_ID", "Job id must be a UUID", nil)
			return
		}

		job, err := svc.GetJob(r.Context(), id)
		if err != nil {
			if errors.Is(err, orchestrator.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found", nil)
				return
			}
			slog.Error("loading job", "job_id", id, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.JSON(w, job)
	}
}
