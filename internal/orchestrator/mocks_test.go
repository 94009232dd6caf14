package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/floorcast/internal/resolver"
	"github.com/kiranshivaraju/floorcast/internal/store"
	"github.com/kiranshivaraju/floorcast/pkg/models"
)

// --- store ---

type mockStore struct {
	mu        sync.Mutex
	jobs      map[uuid.UUID]*models.Job
	snapshots []*models.Job
	creates   int

	createErr error
	// failUpdateAt makes the n-th UpdateJob call (1-based) fail.
	failUpdateAt int
	updates      int
}

func newMockStore() *mockStore {
	return &mockStore{jobs: make(map[uuid.UUID]*models.Job)}
}

func (s *mockStore) Ping(context.Context) error { return nil }

func (s *mockStore) CreateJob(_ context.Context, job *models.Job) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return store.ErrDuplicateKey
	}
	s.creates++
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *mockStore) GetJob(_ context.Context, id uuid.UUID) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return j.Clone(), nil
}

func (s *mockStore) UpdateJob(_ context.Context, job *models.Job) error {
	return s.write(job, func(cur models.JobStatus) bool {
		same := cur == job.Status && !cur.IsTerminal()
		return same || models.CanTransition(cur, job.Status)
	})
}

func (s *mockStore) ClaimJob(_ context.Context, job *models.Job) error {
	return s.write(job, func(cur models.JobStatus) bool {
		return cur == models.JobStatusPending && job.Status == models.JobStatusRunning
	})
}

// write counts every attempt against failUpdateAt and stores job when allowed
// accepts the current status.
func (s *mockStore) write(job *models.Job, allowed func(cur models.JobStatus) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates++
	if s.failUpdateAt > 0 && s.updates == s.failUpdateAt {
		return errors.New("connection reset by peer")
	}
	cur, ok := s.jobs[job.ID]
	if !ok {
		return store.ErrNotFound
	}
	if !allowed(cur.Status) {
		return fmt.Errorf("%w: %s -> %s", store.ErrConflict, cur.Status, job.Status)
	}
	s.jobs[job.ID] = job.Clone()
	s.snapshots = append(s.snapshots, job.Clone())
	return nil
}

// racingStore holds every GetJob until n callers have read, so concurrent
// executors all load the same PENDING record before any of them writes.
type racingStore struct {
	*mockStore
	arrived sync.WaitGroup
}

func newRacingStore(s *mockStore, n int) *racingStore {
	r := &racingStore{mockStore: s}
	r.arrived.Add(n)
	return r
}

func (r *racingStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	job, err := r.mockStore.GetJob(ctx, id)
	r.arrived.Done()
	r.arrived.Wait()
	return job, err
}

func (s *mockStore) ListJobIDsByStatus(_ context.Context, status models.JobStatus) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uuid.UUID
	for id, j := range s.jobs {
		if j.Status == status {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *mockStore) put(job *models.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job.Clone()
}

func (s *mockStore) history() []*models.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Job, len(s.snapshots))
	copy(out, s.snapshots)
	return out
}

// --- cache ---

type mockCache struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
}

func newMockCache() *mockCache {
	return &mockCache{data: make(map[string][]byte)}
}

func (c *mockCache) SetNX(_ context.Context, key string, value []byte, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return false, c.err
	}
	if _, ok := c.data[key]; ok {
		return false, nil
	}
	c.data[key] = value
	return true, nil
}

func (c *mockCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, false, c.err
	}
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *mockCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return c.err
}

func (c *mockCache) Ping(context.Context) error { return c.err }

// --- catalog and resolver ---

type fakeCatalog struct {
	products   map[string]models.Product
	unreadable map[string]bool
}

func (c *fakeCatalog) LookupProduct(id string) (models.Product, error) {
	p, ok := c.products[id]
	if !ok {
		return models.Product{}, errors.New("product not found")
	}
	return p, nil
}

func (c *fakeCatalog) ReadImage(path string) (models.ImageData, error) {
	if c.unreadable[path] {
		return models.ImageData{}, fmt.Errorf("reading image %s: permission denied", path)
	}
	return models.ImageData{MIMEType: "image/png", Data: []byte(path)}, nil
}

type fakeResolver struct {
	samples    map[string]string
	unreadable map[string]bool
}

func (r *fakeResolver) Resolve(source models.Source, ids []string, floorID string) ([]resolver.Input, error) {
	if floorID != "oak-wide-matte" {
		return nil, fmt.Errorf("%w: %s", resolver.ErrUnknownProduct, floorID)
	}
	if len(ids) == 0 {
		return nil, resolver.ErrEmptyInput
	}
	var out []resolver.Input
	for _, id := range ids {
		ref, ok := r.samples[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", resolver.ErrUnknownSample, id)
		}
		out = append(out, resolver.Input{ID: id, Ref: ref})
	}
	return out, nil
}

func (r *fakeResolver) Read(_ models.Source, in resolver.Input) (models.ImageData, error) {
	if r.unreadable[in.ID] {
		return models.ImageData{}, fmt.Errorf("reading image %s: no such file", in.Ref)
	}
	return models.ImageData{MIMEType: "image/jpeg", Data: []byte(in.ID)}, nil
}

// --- outputs ---

type fakeOutputs struct {
	mu    sync.Mutex
	saved []string
	err   error
}

func (o *fakeOutputs) Save(img models.ImageData, room, floorID string) (string, error) {
	if o.err != nil {
		return "", o.err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	ref := fmt.Sprintf("/outputs/%s__%s_%d.png", room, floorID, len(o.saved))
	o.saved = append(o.saved, ref)
	return ref, nil
}

// --- queue ---

type fakeQueue struct {
	mu  sync.Mutex
	ids []uuid.UUID
	err error
}

func (q *fakeQueue) Enqueue(id uuid.UUID) error {
	if q.err != nil {
		return q.err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, id)
	return nil
}

func (q *fakeQueue) enqueued() []uuid.UUID {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]uuid.UUID, len(q.ids))
	copy(out, q.ids)
	return out
}
