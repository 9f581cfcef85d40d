package backend

import (
	"context"
	"sync"
	"time"

	"github.com/raine/hotpotato/internal/model"
)

// MockService is a test double for Service.
// Each method can be overridden with a custom function.
// If not overridden, methods return sensible defaults.
// Thread-safe for use in concurrent tests.
type MockService struct {
	SignUpFunc         func(ctx context.Context, email, password string) (*model.Identity, error)
	SignInFunc         func(ctx context.Context, email, password string) (*model.Identity, error)
	SignOutFunc        func(ctx context.Context) error
	GetCurrentUserFunc func(ctx context.Context) (*model.Identity, error)
	UploadImageFunc    func(ctx context.Context, imageRef, bucket string) (string, error)
	CreateListingFunc  func(ctx context.Context, draft model.NewListing) (*model.Listing, error)
	GetListingsFunc    func(ctx context.Context, userID string) ([]model.Listing, error)
	DeleteListingFunc  func(ctx context.Context, listingID string) error

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

func (m *MockService) record(method string, args ...any) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: method, Args: args})
	m.mu.Unlock()
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

var mockIdentity = model.Identity{ID: "mock-user-id", Email: "mock@example.com"}

func (m *MockService) SignUp(ctx context.Context, email, password string) (*model.Identity, error) {
	m.record("SignUp", email)
	if m.SignUpFunc != nil {
		return m.SignUpFunc(ctx, email, password)
	}
	user := mockIdentity
	user.Email = email
	return &user, nil
}

func (m *MockService) SignIn(ctx context.Context, email, password string) (*model.Identity, error) {
	m.record("SignIn", email)
	if m.SignInFunc != nil {
		return m.SignInFunc(ctx, email, password)
	}
	user := mockIdentity
	user.Email = email
	return &user, nil
}

func (m *MockService) SignOut(ctx context.Context) error {
	m.record("SignOut")
	if m.SignOutFunc != nil {
		return m.SignOutFunc(ctx)
	}
	return nil
}

func (m *MockService) GetCurrentUser(ctx context.Context) (*model.Identity, error) {
	m.record("GetCurrentUser")
	if m.GetCurrentUserFunc != nil {
		return m.GetCurrentUserFunc(ctx)
	}
	user := mockIdentity
	return &user, nil
}

func (m *MockService) UploadImage(ctx context.Context, imageRef, bucket string) (string, error) {
	m.record("UploadImage", imageRef, bucket)
	if m.UploadImageFunc != nil {
		return m.UploadImageFunc(ctx, imageRef, bucket)
	}
	return "https://mock.supabase.co/storage/v1/object/public/listings/mock.jpg", nil
}

func (m *MockService) CreateListing(ctx context.Context, draft model.NewListing) (*model.Listing, error) {
	m.record("CreateListing", draft)
	if m.CreateListingFunc != nil {
		return m.CreateListingFunc(ctx, draft)
	}
	return &model.Listing{
		ID:           "mock-listing-id",
		UserID:       draft.UserID,
		Title:        draft.Title,
		Description:  draft.Description,
		Price:        draft.Price,
		ImageURL:     draft.ImageURL,
		DetectedItem: draft.DetectedItem,
		Confidence:   draft.Confidence,
		CreatedAt:    time.Now(),
	}, nil
}

func (m *MockService) GetListings(ctx context.Context, userID string) ([]model.Listing, error) {
	m.record("GetListings", userID)
	if m.GetListingsFunc != nil {
		return m.GetListingsFunc(ctx, userID)
	}
	return []model.Listing{}, nil
}

func (m *MockService) DeleteListing(ctx context.Context, listingID string) error {
	m.record("DeleteListing", listingID)
	if m.DeleteListingFunc != nil {
		return m.DeleteListingFunc(ctx, listingID)
	}
	return nil
}
