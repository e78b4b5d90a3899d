package llm

import (
	"context"
	"sync"
)

// MockTextGenerator is a test double for TextGenerator. It records
// prompts and returns a canned response or error.
type MockTextGenerator struct {
	mu       sync.Mutex
	Response string
	Err      error
	Calls    []string
}

// Complete records the prompt and returns the canned response.
func (m *MockTextGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, prompt)
	m.mu.Unlock()
	return m.Response, m.Err
}

// GetModel returns a fixed model name.
func (m *MockTextGenerator) GetModel() string {
	return "mock"
}

// CallCount returns how many completions were requested.
func (m *MockTextGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// MockCollaborator is a test double implementing Understander,
// Compressor, Reasoner, and ImportanceRater with canned results.
type MockCollaborator struct {
	mu sync.Mutex

	UnderstandResult *UnderstandResult
	UnderstandErr    error
	CompressResult   string
	CompressErr      error
	ReasonResult     []ProposedInference
	ReasonErr        error
	RateResult       *RateResult
	RateErr          error

	UnderstandCalls int
	CompressCalls   int
	ReasonCalls     int
	RateCalls       int
}

func (m *MockCollaborator) Understand(ctx context.Context, req UnderstandRequest) (*UnderstandResult, error) {
	m.mu.Lock()
	m.UnderstandCalls++
	m.mu.Unlock()
	if m.UnderstandErr != nil {
		return nil, m.UnderstandErr
	}
	if m.UnderstandResult == nil {
		return &UnderstandResult{}, nil
	}
	return m.UnderstandResult, nil
}

func (m *MockCollaborator) Compress(ctx context.Context, req CompressRequest) (string, error) {
	m.mu.Lock()
	m.CompressCalls++
	m.mu.Unlock()
	return m.CompressResult, m.CompressErr
}

func (m *MockCollaborator) Reason(ctx context.Context, req ReasonRequest) ([]ProposedInference, error) {
	m.mu.Lock()
	m.ReasonCalls++
	m.mu.Unlock()
	return m.ReasonResult, m.ReasonErr
}

func (m *MockCollaborator) RateImportance(ctx context.Context, req RateRequest) (*RateResult, error) {
	m.mu.Lock()
	m.RateCalls++
	m.mu.Unlock()
	if m.RateErr != nil {
		return nil, m.RateErr
	}
	return m.RateResult, nil
}
