package state

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raine/hotpotato/internal/apperr"
	"github.com/raine/hotpotato/internal/backend"
	"github.com/raine/hotpotato/internal/model"
)

func validDraft() model.NewListing {
	return model.NewListing{UserID: "u1", Title: "Chair", Description: "Solid oak", Price: 150}
}

func seeded(t *testing.T, mock *backend.MockService, items ...model.Listing) *Listings {
	t.Helper()
	mock.GetListingsFunc = func(ctx context.Context, userID string) ([]model.Listing, error) {
		return items, nil
	}
	l := NewListings(mock)
	require.NoError(t, l.Fetch(context.Background(), "u1"))
	return l
}

func TestListingsFetch(t *testing.T) {
	mock := &backend.MockService{}
	l := seeded(t, mock, model.Listing{ID: "L2"}, model.Listing{ID: "L1"})

	snap := l.Snapshot()
	require.Len(t, snap.Items, 2)
	assert.Equal(t, "L2", snap.Items[0].ID)
	assert.False(t, snap.IsLoading)
	assert.Empty(t, snap.Error)
}

func TestListingsAddPrepends(t *testing.T) {
	mock := &backend.MockService{}
	l := seeded(t, mock, model.Listing{ID: "L1"})
	mock.CreateListingFunc = func(ctx context.Context, draft model.NewListing) (*model.Listing, error) {
		return &model.Listing{ID: "L9", Title: draft.Title, Price: draft.Price}, nil
	}

	created, err := l.Add(context.Background(), validDraft())
	require.NoError(t, err)
	assert.Equal(t, "L9", created.ID)

	snap := l.Snapshot()
	require.Len(t, snap.Items, 2)
	assert.Equal(t, "L9", snap.Items[0].ID)
	assert.Equal(t, "L1", snap.Items[1].ID)
}

func TestListingsAddRejectsInvalidLocally(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.NewListing)
		msg    string
	}{
		{"zero price", func(d *model.NewListing) { d.Price = 0 }, model.MsgEnterValidPrice},
		{"negative price", func(d *model.NewListing) { d.Price = -5 }, model.MsgEnterValidPrice},
		{"blank title", func(d *model.NewListing) { d.Title = "   " }, model.MsgEnterTitle},
		{"empty description", func(d *model.NewListing) { d.Description = "" }, model.MsgEnterDescription},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &backend.MockService{}
			l := NewListings(mock)
			draft := validDraft()
			tt.mutate(&draft)

			_, err := l.Add(context.Background(), draft)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
			assert.Equal(t, tt.msg, apperr.Message(err))
			assert.Equal(t, 0, mock.CallCount("CreateListing"))
			assert.Equal(t, tt.msg, l.Snapshot().Error)
		})
	}
}

func TestListingsAddRemoteFailure(t *testing.T) {
	mock := &backend.MockService{
		CreateListingFunc: func(ctx context.Context, draft model.NewListing) (*model.Listing, error) {
			return nil, apperr.Remote("permission denied")
		},
	}
	l := NewListings(mock)

	_, err := l.Add(context.Background(), validDraft())
	assert.Error(t, err)
	snap := l.Snapshot()
	assert.Empty(t, snap.Items)
	assert.Equal(t, "permission denied", snap.Error)
	assert.False(t, snap.IsLoading)
}

func TestListingsDeleteRemovesOnlyThatID(t *testing.T) {
	mock := &backend.MockService{}
	l := seeded(t, mock,
		model.Listing{ID: "L3", Title: "three"},
		model.Listing{ID: "L2", Title: "two"},
		model.Listing{ID: "L1", Title: "one"},
	)

	require.NoError(t, l.Delete(context.Background(), "L2"))

	snap := l.Snapshot()
	assert.Equal(t, []model.Listing{{ID: "L3", Title: "three"}, {ID: "L1", Title: "one"}}, snap.Items)
}

func TestListingsDeleteFailureKeepsItems(t *testing.T) {
	mock := &backend.MockService{}
	l := seeded(t, mock, model.Listing{ID: "L1"})
	mock.DeleteListingFunc = func(ctx context.Context, id string) error {
		return apperr.Network(errors.New("connection refused"))
	}

	err := l.Delete(context.Background(), "L1")
	assert.Error(t, err)
	snap := l.Snapshot()
	assert.Len(t, snap.Items, 1)
	assert.Equal(t, "connection refused", snap.Error)
}

func TestListingsStaleFetchIsDiscarded(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	mock := &backend.MockService{
		GetListingsFunc: func(ctx context.Context, userID string) ([]model.Listing, error) {
			close(started)
			<-release
			return []model.Listing{{ID: "OLD"}}, nil
		},
		CreateListingFunc: func(ctx context.Context, draft model.NewListing) (*model.Listing, error) {
			return &model.Listing{ID: "NEW"}, nil
		},
	}
	l := NewListings(mock)

	done := make(chan error)
	go func() { done <- l.Fetch(context.Background(), "u1") }()
	<-started

	_, err := l.Add(context.Background(), validDraft())
	require.NoError(t, err)
	assert.True(t, l.Snapshot().IsLoading, "fetch still in flight")

	close(release)
	require.NoError(t, <-done)

	snap := l.Snapshot()
	require.Len(t, snap.Items, 1)
	assert.Equal(t, "NEW", snap.Items[0].ID)
	assert.False(t, snap.IsLoading)
}

func TestListingsFetchSurvivesFailedDelete(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	mock := &backend.MockService{
		GetListingsFunc: func(ctx context.Context, userID string) ([]model.Listing, error) {
			close(started)
			<-release
			return []model.Listing{{ID: "L2"}, {ID: "L1"}}, nil
		},
		DeleteListingFunc: func(ctx context.Context, id string) error {
			return apperr.Network(errors.New("connection refused"))
		},
	}
	l := NewListings(mock)

	done := make(chan error)
	go func() { done <- l.Fetch(context.Background(), "u1") }()
	<-started

	require.Error(t, l.Delete(context.Background(), "L1"))

	close(release)
	require.NoError(t, <-done)

	snap := l.Snapshot()
	require.Len(t, snap.Items, 2)
	assert.Equal(t, "L2", snap.Items[0].ID)
	assert.False(t, snap.IsLoading)
}

func TestListingsStaleFetchErrorIsDiscarded(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	mock := &backend.MockService{
		GetListingsFunc: func(ctx context.Context, userID string) ([]model.Listing, error) {
			close(started)
			<-release
			return nil, apperr.Network(errors.New("timeout"))
		},
		CreateListingFunc: func(ctx context.Context, draft model.NewListing) (*model.Listing, error) {
			return &model.Listing{ID: "NEW"}, nil
		},
	}
	l := NewListings(mock)

	done := make(chan error)
	go func() { done <- l.Fetch(context.Background(), "u1") }()
	<-started

	_, err := l.Add(context.Background(), validDraft())
	require.NoError(t, err)

	close(release)
	assert.Error(t, <-done, "the caller still sees its own failure")

	snap := l.Snapshot()
	require.Len(t, snap.Items, 1)
	assert.Equal(t, "NEW", snap.Items[0].ID)
	assert.Empty(t, snap.Error)
}

func TestListingsResetDiscardsInFlight(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	mock := &backend.MockService{
		GetListingsFunc: func(ctx context.Context, userID string) ([]model.Listing, error) {
			close(started)
			<-release
			return []model.Listing{{ID: "L1"}}, nil
		},
	}
	l := NewListings(mock)

	done := make(chan error)
	go func() { done <- l.Fetch(context.Background(), "u1") }()
	<-started

	l.Reset()
	close(release)
	<-done

	snap := l.Snapshot()
	assert.Empty(t, snap.Items)
	assert.False(t, snap.IsLoading)
}

func TestListingsSubscribe(t *testing.T) {
	mock := &backend.MockService{}
	l := NewListings(mock)

	var seen []ListingsSnapshot
	unsubscribe := l.Subscribe(func(s ListingsSnapshot) { seen = append(seen, s) })

	require.NoError(t, l.Fetch(context.Background(), "u1"))
	require.Len(t, seen, 2)
	assert.True(t, seen[0].IsLoading)
	assert.False(t, seen[1].IsLoading)

	unsubscribe()
	l.ClearError()
	assert.Len(t, seen, 2)
}

func TestListingsSnapshotIsACopy(t *testing.T) {
	mock := &backend.MockService{}
	l := seeded(t, mock, model.Listing{ID: "L1", Title: "original"})

	snap := l.Snapshot()
	snap.Items[0].Title = "mutated"

	assert.Equal(t, "original", l.Snapshot().Items[0].Title)
}

func TestListingsConcurrentOperations(t *testing.T) {
	mock := &backend.MockService{
		CreateListingFunc: func(ctx context.Context, draft model.NewListing) (*model.Listing, error) {
			time.Sleep(time.Millisecond)
			return &model.Listing{ID: draft.Title}, nil
		},
	}
	l := NewListings(mock)

	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		go func(i int) {
			d := validDraft()
			d.Title = string(rune('a' + i))
			_, err := l.Add(context.Background(), d)
			errs <- err
		}(i)
	}
	for i := 0; i < 10; i++ {
		require.NoError(t, <-errs)
	}

	snap := l.Snapshot()
	assert.Len(t, snap.Items, 10)
	assert.False(t, snap.IsLoading)
}
