package provider

import (
	"context"
	"sync"
)

// MockProvider is a scripted LLM provider for testing
type MockProvider struct {
	name string

	// Responses to return for each request, in order
	Responses []*CompletionResponse
	Errors    []error

	// Track calls
	Calls []CompletionRequest

	mu           sync.Mutex
	currentIndex int
}

// NewMockProvider creates a new mock provider
func NewMockProvider(name string) *MockProvider {
	return &MockProvider{
		name:      name,
		Responses: []*CompletionResponse{},
		Errors:    []error{},
		Calls:     []CompletionRequest{},
	}
}

// CreateCompletion implements Provider
func (m *MockProvider) CreateCompletion(ctx context.Context, request CompletionRequest) (*CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, request)

	// Check for errors first
	if m.currentIndex < len(m.Errors) && m.Errors[m.currentIndex] != nil {
		err := m.Errors[m.currentIndex]
		m.currentIndex++
		return nil, err
	}

	// Return scripted response
	if m.currentIndex < len(m.Responses) {
		response := m.Responses[m.currentIndex]
		m.currentIndex++
		return response, nil
	}

	// Default response
	return &CompletionResponse{
		Content:      "Mock response",
		FinishReason: "stop",
		Usage: Usage{
			PromptTokens:     10,
			CompletionTokens: 5,
			TotalTokens:      15,
		},
	}, nil
}

// LastCall returns the most recent request, or nil if none were made.
func (m *MockProvider) LastCall() *CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.Calls) == 0 {
		return nil
	}
	req := m.Calls[len(m.Calls)-1]
	return &req
}

// Name implements Provider
func (m *MockProvider) Name() string {
	return m.name
}

// Close implements Provider
func (m *MockProvider) Close() error {
	return nil
}
