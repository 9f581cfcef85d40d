package backend

import (
	"context"

	"github.com/raine/hotpotato/internal/model"
)

// Auth is the credential half of the backend.
type Auth interface {
	SignUp(ctx context.Context, email, password string) (*model.Identity, error)
	SignIn(ctx context.Context, email, password string) (*model.Identity, error)
	SignOut(ctx context.Context) error
	GetCurrentUser(ctx context.Context) (*model.Identity, error)
}

// ListingStore is row-level CRUD on the listings table.
type ListingStore interface {
	CreateListing(ctx context.Context, draft model.NewListing) (*model.Listing, error)
	GetListings(ctx context.Context, userID string) ([]model.Listing, error)
	DeleteListing(ctx context.Context, listingID string) error
}

// ImageUploader stores listing photos.
type ImageUploader interface {
	UploadImage(ctx context.Context, imageRef, bucket string) (string, error)
}

// Service is the whole backend surface.
type Service interface {
	Auth
	ListingStore
	ImageUploader
}
