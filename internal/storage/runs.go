package storage

import (
	"fmt"
	"time"
)

// Run is one pass of the listing pipeline, from capture to save or reset.
type Run struct {
	ID           string
	UserID       string
	ImageRef     string
	DetectedItem string
	ListingID    string
	Stage        string
	Error        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SaveRun inserts or updates a run by ID. CreatedAt is kept from the first
// insert.
func (s *SQLiteStore) SaveRun(run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now

	_, err := s.db.Exec(`
		INSERT INTO runs (id, user_id, image_ref, detected_item, listing_id, stage, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			detected_item = excluded.detected_item,
			listing_id = excluded.listing_id,
			stage = excluded.stage,
			error = excluded.error,
			updated_at = excluded.updated_at
	`, run.ID, run.UserID, run.ImageRef, run.DetectedItem, run.ListingID, run.Stage, run.Error, run.CreatedAt, run.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// GetRecentRuns returns up to limit runs, newest first.
func (s *SQLiteStore) GetRecentRuns(limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, user_id, image_ref, detected_item, listing_id, stage, error, created_at, updated_at
		FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.UserID, &r.ImageRef, &r.DetectedItem, &r.ListingID, &r.Stage, &r.Error, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// DeleteRunsBefore prunes history older than cutoff and reports how many
// runs were removed.
func (s *SQLiteStore) DeleteRunsBefore(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`DELETE FROM runs WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
