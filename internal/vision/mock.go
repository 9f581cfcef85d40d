package vision

import (
	"context"
	"sync"
)

// MockService is a test double for Service.
// Each method can be overridden with a custom function.
// Thread-safe for use in concurrent tests.
type MockService struct {
	DetectItemFunc      func(ctx context.Context, imageRef string) (*DetectionResult, error)
	GenerateListingFunc func(ctx context.Context, itemName, imageRef string) (*GeneratedListing, error)

	mu sync.Mutex

	// Calls tracks all method invocations for assertions
	Calls []MockCall
}

// MockCall records a method call for test assertions.
type MockCall struct {
	Method string
	Args   []any
}

var _ Service = (*MockService)(nil)

func (m *MockService) DetectItem(ctx context.Context, imageRef string) (*DetectionResult, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "DetectItem", Args: []any{imageRef}})
	fn := m.DetectItemFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, imageRef)
	}
	return &DetectionResult{DetectedItem: "Mock Item", Confidence: 80}, nil
}

func (m *MockService) GenerateListing(ctx context.Context, itemName, imageRef string) (*GeneratedListing, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "GenerateListing", Args: []any{itemName, imageRef}})
	fn := m.GenerateListingFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, itemName, imageRef)
	}
	return &GeneratedListing{
		Title:          "Mock Title",
		Description:    "Mock description",
		SuggestedPrice: 10,
		DetectedItem:   itemName,
	}, nil
}

// CallCount returns how many times method was called.
func (m *MockService) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.Calls {
		if c.Method == method {
			n++
		}
	}
	return n
}
