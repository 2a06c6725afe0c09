package mock

import (
	"context"
	"sync"

	"github.com/scrivano/scrivano/ai"
)

// MockExtractor is a test double for ai.Extractor.
// It allows custom behavior injection via function fields and is safe for
// concurrent use, since the orchestrator fans extraction calls out.
type MockExtractor struct {
	// ExtractFunc is called by Extract if set.
	// If nil, every call reports the field absent.
	ExtractFunc func(ctx context.Context, content string, subSchema []byte) (*ai.Extraction, error)

	mu        sync.Mutex
	callCount int
	calls     []ExtractCall
}

// ExtractCall records the arguments of one Extract invocation.
type ExtractCall struct {
	Content   string
	SubSchema string
}

// NewMockExtractor creates a mock extractor with default behavior.
// Note: Returns concrete type to allow test assertions via GetMockExtractor().
func NewMockExtractor() *MockExtractor {
	return &MockExtractor{}
}

// Extract records the call and delegates to ExtractFunc when set.
// Default behavior reports the field absent, the common case on real chunks.
func (m *MockExtractor) Extract(ctx context.Context, content string, subSchema []byte) (*ai.Extraction, error) {
	m.mu.Lock()
	m.callCount++
	m.calls = append(m.calls, ExtractCall{Content: content, SubSchema: string(subSchema)})
	m.mu.Unlock()

	if m.ExtractFunc != nil {
		return m.ExtractFunc(ctx, content, subSchema)
	}

	return &ai.Extraction{Absent: true, Confidence: -1}, nil
}

// CallCount returns the number of times Extract was called.
func (m *MockExtractor) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Calls returns a copy of the recorded invocations.
func (m *MockExtractor) Calls() []ExtractCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ExtractCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// Reset clears the call log and injected behavior.
func (m *MockExtractor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.calls = nil
	m.ExtractFunc = nil
}
