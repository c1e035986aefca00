package mock

import (
	"context"
	"sync/atomic"

	"github.com/kiranshivaraju/creatorgen/internal/ai"
	"github.com/kiranshivaraju/creatorgen/pkg/models"
)

// DefaultPosts is what NewMockProvider generates.
const DefaultPosts = `{"twitter":"Mock tweet","linkedin":"Mock LinkedIn post","instagram":"Mock Instagram caption"}`

// MockProvider satisfies models.Generator for testing.
type MockProvider struct {
	Name_        string
	Model_       string
	GenerateFunc func(ctx context.Context, req models.GenerateRequest) ([]byte, error)

	calls atomic.Int32
}

func (m *MockProvider) Name() string  { return m.Name_ }
func (m *MockProvider) Model() string { return m.Model_ }

func (m *MockProvider) Generate(ctx context.Context, req models.GenerateRequest) ([]byte, error) {
	m.calls.Add(1)
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return []byte(DefaultPosts), nil
}

// Calls reports how many times Generate was invoked.
func (m *MockProvider) Calls() int {
	return int(m.calls.Load())
}

// NewMockProvider returns a MockProvider that generates DefaultPosts.
func NewMockProvider() *MockProvider {
	return NewStaticProvider([]byte(DefaultPosts))
}

// NewStaticProvider returns a MockProvider that always generates out.
func NewStaticProvider(out []byte) *MockProvider {
	return &MockProvider{
		Name_:  "mock",
		Model_: "mock-v1",
		GenerateFunc: func(_ context.Context, _ models.GenerateRequest) ([]byte, error) {
			return out, nil
		},
	}
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_:  "mock-failing",
		Model_: "mock-v1",
		GenerateFunc: func(_ context.Context, _ models.GenerateRequest) ([]byte, error) {
			return nil, err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until context is cancelled.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_:  "mock-timeout",
		Model_: "mock-v1",
		GenerateFunc: func(ctx context.Context, _ models.GenerateRequest) ([]byte, error) {
			<-ctx.Done()
			return nil, ai.ErrInferenceTimeout
		},
	}
}

// Compile-time check that MockProvider implements Generator.
var _ models.Generator = (*MockProvider)(nil)
