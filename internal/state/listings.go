package state

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/raine/hotpotato/internal/apperr"
	"github.com/raine/hotpotato/internal/backend"
	"github.com/raine/hotpotato/internal/model"
)

// ListingsSnapshot is an immutable view of Listings. Items are newest first.
type ListingsSnapshot struct {
	Items     []model.Listing
	IsLoading bool
	Error     string
}

// Listings is the in-memory collection of the user's listings.
//
// Operations may overlap. A Fetch takes a sequence number when it starts
// and a successful add or delete bumps it, so a Fetch result (list or
// error) is applied only if no newer fetch started and no mutation
// succeeded meanwhile. Failed mutations leave the sequence alone. Reset
// bumps the epoch and every result from an earlier epoch is dropped.
type Listings struct {
	store backend.ListingStore

	mu       sync.Mutex
	items    []model.Listing
	errMsg   string
	inFlight int
	seq      uint64
	epoch    uint64

	subs Observers[ListingsSnapshot]
}

func NewListings(store backend.ListingStore) *Listings {
	return &Listings{store: store, items: []model.Listing{}}
}

// ticket identifies one started operation.
type ticket struct {
	seq   uint64
	epoch uint64
}

func (l *Listings) Snapshot() ListingsSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

func (l *Listings) snapshotLocked() ListingsSnapshot {
	items := make([]model.Listing, len(l.items))
	copy(items, l.items)
	return ListingsSnapshot{Items: items, IsLoading: l.inFlight > 0, Error: l.errMsg}
}

// Subscribe registers fn to be called after every change. The returned
// function unsubscribes.
func (l *Listings) Subscribe(fn func(ListingsSnapshot)) func() {
	return l.subs.Subscribe(fn)
}

// start marks an operation in flight. A fetch supersedes earlier fetches.
func (l *Listings) start(fetch bool) ticket {
	l.mu.Lock()
	if fetch {
		l.seq++
	}
	l.inFlight++
	l.errMsg = ""
	t := ticket{seq: l.seq, epoch: l.epoch}
	snap := l.snapshotLocked()
	l.mu.Unlock()
	l.subs.Notify(snap)
	return t
}

// finish applies fn if t is still current and reports whether it was.
func (l *Listings) finish(t ticket, fn func()) bool {
	l.mu.Lock()
	if t.epoch != l.epoch {
		l.mu.Unlock()
		return false
	}
	l.inFlight--
	fn()
	snap := l.snapshotLocked()
	l.mu.Unlock()
	l.subs.Notify(snap)
	return true
}

// Fetch replaces the collection with userID's listings from the backend.
func (l *Listings) Fetch(ctx context.Context, userID string) error {
	t := l.start(true)

	items, err := l.store.GetListings(ctx, userID)

	applied := l.finish(t, func() {
		if t.seq != l.seq {
			log.Debug().Uint64("seq", t.seq).Uint64("latest", l.seq).Msg("discarding stale listings fetch")
			return
		}
		if err != nil {
			l.errMsg = apperr.Message(err)
			return
		}
		l.items = items
	})
	if !applied {
		log.Debug().Msg("listings fetch finished after reset")
	}
	return err
}

// Add validates draft locally, creates it remotely and prepends the stored
// row. Invalid drafts never reach the backend.
func (l *Listings) Add(ctx context.Context, draft model.NewListing) (*model.Listing, error) {
	draft = draft.Normalized()
	if err := draft.Validate(); err != nil {
		l.mu.Lock()
		l.errMsg = apperr.Message(err)
		snap := l.snapshotLocked()
		l.mu.Unlock()
		l.subs.Notify(snap)
		return nil, err
	}

	t := l.start(false)

	created, err := l.store.CreateListing(ctx, draft)

	l.finish(t, func() {
		if err != nil {
			l.errMsg = apperr.Message(err)
			return
		}
		l.seq++
		l.items = append([]model.Listing{*created}, l.items...)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Delete removes listingID remotely and then locally. Other items are left
// untouched.
func (l *Listings) Delete(ctx context.Context, listingID string) error {
	t := l.start(false)

	err := l.store.DeleteListing(ctx, listingID)

	l.finish(t, func() {
		if err != nil {
			l.errMsg = apperr.Message(err)
			return
		}
		l.seq++
		kept := l.items[:0:0]
		for _, item := range l.items {
			if item.ID != listingID {
				kept = append(kept, item)
			}
		}
		l.items = kept
	})
	return err
}

// ClearError drops the last error message.
func (l *Listings) ClearError() {
	l.mu.Lock()
	l.errMsg = ""
	snap := l.snapshotLocked()
	l.mu.Unlock()
	l.subs.Notify(snap)
}

// Reset empties the store, e.g. on sign-out. Results of operations still in
// flight are discarded.
func (l *Listings) Reset() {
	l.mu.Lock()
	l.epoch++
	l.items = []model.Listing{}
	l.errMsg = ""
	l.inFlight = 0
	snap := l.snapshotLocked()
	l.mu.Unlock()
	l.subs.Notify(snap)
}
