// Package dedupe keeps a ledger of detection job submissions so repeated
// deliveries of the same image can be reported to callers.
package dedupe

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tendant/simple-detection-pipeline/internal/platform/logger"
)

// Tracker tracks duplicate job submissions
type Tracker struct {
	db *sql.DB
}

// NewTracker creates a new dedupe tracker on a postgres database
func NewTracker(ctx context.Context, db *sql.DB) (*Tracker, error) {
	tracker := &Tracker{db: db}

	if err := tracker.ensureTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure dedupe table: %w", err)
	}

	return tracker, nil
}

func (t *Tracker) ensureTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS detect_dedupe (
			image_id TEXT PRIMARY KEY,
			job TEXT NOT NULL,
			job_version INTEGER NOT NULL,
			first_seen_at TIMESTAMPTZ DEFAULT NOW(),
			last_seen_at TIMESTAMPTZ DEFAULT NOW(),
			seen_count INTEGER DEFAULT 1
		)
	`

	if _, err := t.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create detect_dedupe table: %w", err)
	}

	logger.Named("dedupe").Debug().Msg("detect_dedupe table ready")
	return nil
}

// Record records a submission for imageID and returns how often it was seen
func (t *Tracker) Record(ctx context.Context, imageID string, job string, jobVersion int) (int, error) {
	query := `
		INSERT INTO detect_dedupe (image_id, job, job_version, first_seen_at, last_seen_at, seen_count)
		VALUES ($1, $2, $3, NOW(), NOW(), 1)
		ON CONFLICT (image_id) DO UPDATE
		SET last_seen_at = NOW(),
		    seen_count = detect_dedupe.seen_count + 1,
		    job = EXCLUDED.job,
		    job_version = EXCLUDED.job_version
		RETURNING seen_count
	`

	var seenCount int
	err := t.db.QueryRowContext(ctx, query, imageID, job, jobVersion).Scan(&seenCount)
	if err != nil {
		return 0, fmt.Errorf("failed to record dedupe: %w", err)
	}

	return seenCount, nil
}

// GetSeenCount returns how often imageID was submitted, 0 if never
func (t *Tracker) GetSeenCount(ctx context.Context, imageID string) (int, error) {
	query := `SELECT seen_count FROM detect_dedupe WHERE image_id = $1`

	var seenCount int
	err := t.db.QueryRowContext(ctx, query, imageID).Scan(&seenCount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get seen count: %w", err)
	}

	return seenCount, nil
}
