// Package queue runs background job execution on a fixed pool of workers fed
// by a bounded channel.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// ErrQueueFull is returned by Enqueue when the buffer has no free slot.
var ErrQueueFull = errors.New("queue full")

// Handler processes one job. It runs with a context that is not cancelled on
// shutdown, so a started job always runs to completion.
type Handler func(ctx context.Context, jobID uuid.UUID)

// Queue manages the job channel and its workers.
type Queue struct {
	jobs chan uuid.UUID
	wg   sync.WaitGroup
}

// New creates a Queue holding up to size pending job ids.
func New(size int) *Queue {
	return &Queue{jobs: make(chan uuid.UUID, size)}
}

// Enqueue adds a job id to the queue. Returns ErrQueueFull if it cannot.
func (q *Queue) Enqueue(jobID uuid.UUID) error {
	select {
	case q.jobs <- jobID:
		return nil
	default:
		return fmt.Errorf("%w: cannot enqueue job %s", ErrQueueFull, jobID)
	}
}

// Len returns the number of job ids waiting for a worker.
func (q *Queue) Len() int {
	return len(q.jobs)
}

// Start launches n workers. Workers stop taking new jobs once ctx is done.
func (q *Queue) Start(ctx context.Context, n int, handle Handler) {
	for i := range n {
		q.wg.Add(1)
		go q.runWorker(ctx, i, handle)
	}
}

// Wait blocks until every worker has exited or ctx expires.
func (q *Queue) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runWorker is a worker loop: dequeues jobs and processes them.
func (q *Queue) runWorker(ctx context.Context, worker int, handle Handler) {
	defer q.wg.Done()
	jobCtx := context.WithoutCancel(ctx)

	for {
		// Prefer stopping over picking up more work once shutdown has begun.
		select {
		case <-ctx.Done():
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case jobID := <-q.jobs:
			q.process(jobCtx, worker, jobID, handle)
		}
	}
}

func (q *Queue) process(ctx context.Context, worker int, jobID uuid.UUID, handle Handler) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in queue worker", "worker", worker, "job_id", jobID, "error", r)
		}
	}()
	handle(ctx, jobID)
}
