package engines

import (
	"context"
	"sync"

	"github.com/ekaya-inc/ekaya-visibility/pkg/models"
)

// MockQuerier is a configurable Querier for tests.
type MockQuerier struct {
	EngineName models.Engine

	// QueryFunc is called when Query is invoked.
	// If nil, returns an observation with Presence=false.
	QueryFunc func(ctx context.Context, req QueryRequest) (*models.Observation, error)

	mu    sync.Mutex
	calls []QueryRequest
}

var _ Querier = (*MockQuerier)(nil)

// Engine implements Querier.
func (m *MockQuerier) Engine() models.Engine {
	return m.EngineName
}

// Query implements Querier.
func (m *MockQuerier) Query(ctx context.Context, req QueryRequest) (*models.Observation, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()

	if m.QueryFunc != nil {
		return m.QueryFunc(ctx, req)
	}
	return &models.Observation{}, nil
}

// Calls returns the requests received so far.
func (m *MockQuerier) Calls() []QueryRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]QueryRequest(nil), m.calls...)
}

// MockClient is a configurable provider Client for tests.
type MockClient struct {
	ModelName string

	// AskFunc is called when Ask is invoked.
	// If nil, returns an empty answer.
	AskFunc func(ctx context.Context, prompt string) (*Answer, error)
}

var _ Client = (*MockClient)(nil)

// Ask implements Client.
func (m *MockClient) Ask(ctx context.Context, prompt string) (*Answer, error) {
	if m.AskFunc != nil {
		return m.AskFunc(ctx, prompt)
	}
	return &Answer{}, nil
}

// Model implements Client.
func (m *MockClient) Model() string {
	if m.ModelName == "" {
		return "mock-model"
	}
	return m.ModelName
}
