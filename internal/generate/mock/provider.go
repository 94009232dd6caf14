package mock

import (
	"context"
	"sync"

	"github.com/kiranshivaraju/floorcast/pkg/models"
)

// MockGenerator satisfies models.ImageGenerator for testing. It records every
// request it receives.
type MockGenerator struct {
	Name_        string
	GenerateFunc func(ctx context.Context, req models.GenerationRequest) ([]models.ImageData, error)

	mu       sync.Mutex
	requests []models.GenerationRequest
}

func (m *MockGenerator) Name() string { return m.Name_ }

func (m *MockGenerator) Generate(ctx context.Context, req models.GenerationRequest) ([]models.ImageData, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return []models.ImageData{}, nil
}

// Requests returns a copy of the requests received so far, in call order.
func (m *MockGenerator) Requests() []models.GenerationRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.GenerationRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// NewMockGenerator returns a MockGenerator that yields one PNG per call.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{
		Name_: "mock",
		GenerateFunc: func(_ context.Context, req models.GenerationRequest) ([]models.ImageData, error) {
			return []models.ImageData{{MIMEType: "image/png", Data: []byte("generated:" + string(req.Room.Data))}}, nil
		},
	}
}

// NewFailingGenerator returns a MockGenerator that always returns the given error.
func NewFailingGenerator(err error) *MockGenerator {
	return &MockGenerator{
		Name_: "mock-failing",
		GenerateFunc: func(_ context.Context, _ models.GenerationRequest) ([]models.ImageData, error) {
			return nil, err
		},
	}
}

// NewTimeoutGenerator returns a MockGenerator that blocks until context is cancelled.
func NewTimeoutGenerator() *MockGenerator {
	return &MockGenerator{
		Name_: "mock-timeout",
		GenerateFunc: func(ctx context.Context, _ models.GenerationRequest) ([]models.ImageData, error) {
			<-ctx.Done()
			return nil, models.ErrInferenceTimeout
		},
	}
}

var _ models.ImageGenerator = (*MockGenerator)(nil)
