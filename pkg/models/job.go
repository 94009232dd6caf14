package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the aggregate state of a generation job.
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusDone    JobStatus = "DONE"
	JobStatusError   JobStatus = "ERROR"
)

// IsTerminal reports whether no further transition is allowed out of s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusError
}

// PENDING -> ERROR covers job-scoped failures that happen before iteration
// starts (scheduling failure, restart recovery).
var validJobTransitions = map[JobStatus][]JobStatus{
	JobStatusPending: {JobStatusRunning, JobStatusError},
	JobStatusRunning: {JobStatusDone, JobStatusError},
}

// CanTransition reports whether a job may move from one status to another.
func CanTransition(from, to JobStatus) bool {
	for _, allowed := range validJobTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ItemStatus is the state of a single image within a job.
type ItemStatus string

const (
	ItemStatusPending ItemStatus = "PENDING"
	ItemStatusDone    ItemStatus = "DONE"
	ItemStatusError   ItemStatus = "ERROR"
)

// Item error kinds recorded on failed items.
const (
	ItemErrorInvokerFailure   = "INVOKER_FAILURE"
	ItemErrorInputUnreadable  = "INPUT_UNREADABLE"
	ItemErrorOutputUnwritable = "OUTPUT_UNWRITABLE"
)

// Source says where a job's room images come from.
type Source string

const (
	SourceSample Source = "sample"
	SourceUpload Source = "upload"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	return s == SourceSample || s == SourceUpload
}

// Job is one floor-replacement request over one or more room images.
// The API returns it on POST /api/v1/jobs; the client polls
// GET /api/v1/jobs/{job_id} until status is DONE or ERROR.
type Job struct {
	ID            uuid.UUID  `db:"id"             json:"id"`
	Status        JobStatus  `db:"status"         json:"status"`
	FloorID       string     `db:"floor_id"       json:"floor_id"`
	Source        Source     `db:"source"         json:"source"`
	PromptVersion string     `db:"prompt_version" json:"prompt_version"`
	Items         []Item     `db:"items"          json:"items"`
	Error         *string    `db:"error_message"  json:"error,omitempty"`
	StartedAt     *time.Time `db:"started_at"     json:"started_at,omitempty"`
	CompletedAt   *time.Time `db:"completed_at"   json:"completed_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at"     json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"     json:"updated_at"`
}

// Item is the per-image unit of work inside a job. OutputRef is set only
// when Status is DONE; Error and ErrorKind only when Status is ERROR.
type Item struct {
	InputID       string     `json:"input_id"`
	InputRef      string     `json:"input_ref"`
	Hint          string     `json:"hint,omitempty"`
	Status        ItemStatus `json:"status"`
	OutputRef     string     `json:"output_ref,omitempty"`
	Error         string     `json:"error,omitempty"`
	ErrorKind     string     `json:"error_kind,omitempty"`
	PromptVersion string     `json:"prompt_version,omitempty"`
}

// Clone returns a deep copy so a new snapshot can be built without touching
// one that readers may already hold.
func (j *Job) Clone() *Job {
	c := *j
	c.Items = make([]Item, len(j.Items))
	copy(c.Items, j.Items)
	if j.Error != nil {
		msg := *j.Error
		c.Error = &msg
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// AggregateStatus computes the final job status from its items: DONE only if
// every item is DONE, ERROR otherwise.
func (j *Job) AggregateStatus() JobStatus {
	if len(j.Items) == 0 {
		return JobStatusError
	}
	for _, it := range j.Items {
		if it.Status != ItemStatusDone {
			return JobStatusError
		}
	}
	return JobStatusDone
}

// Counts returns how many items are done and how many failed.
func (j *Job) Counts() (done, failed int) {
	for _, it := range j.Items {
		switch it.Status {
		case ItemStatusDone:
			done++
		case ItemStatusError:
			failed++
		}
	}
	return done, failed
}
