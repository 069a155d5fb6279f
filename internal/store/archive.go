package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tendant/simple-detection-pipeline/internal/detection"
)

// ArchivedContentID returns the archive content holding id's raw image,
// or "" when it has not been archived
func (s *Store) ArchivedContentID(ctx context.Context, id detection.ImageID) (string, error) {
	var contentID sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT archive_content_id FROM images WHERE image_id = ?`, id.String()).Scan(&contentID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get archive content id: %w", err)
	}
	return contentID.String, nil
}

// SetArchivedContentID records where id's raw image was archived
func (s *Store) SetArchivedContentID(ctx context.Context, id detection.ImageID, contentID string) error {
	if err := upsertImage(ctx, s.db, id, nil); err != nil {
		return fmt.Errorf("failed to upsert image: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE images SET archive_content_id = ? WHERE image_id = ?`, contentID, id.String()); err != nil {
		return fmt.Errorf("failed to set archive content id: %w", err)
	}
	return nil
}
