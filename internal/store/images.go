package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tendant/simple-detection-pipeline/internal/detection"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const upsertImageSQL = `
	INSERT INTO images (image_id, channel, timestamp, file_format, raw_image_path, drawn_image_path)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT (image_id) DO UPDATE SET
		raw_image_path   = COALESCE(excluded.raw_image_path, images.raw_image_path),
		drawn_image_path = COALESCE(excluded.drawn_image_path, images.drawn_image_path)
`

func upsertImage(ctx context.Context, db execer, id detection.ImageID, meta map[string]string) error {
	_, err := db.ExecContext(ctx, upsertImageSQL, id.String(), id.Channel, id.Timestamp, id.Format,
		nullable(meta[detection.MetaRawImagePath]), nullable(meta[detection.MetaDrawnImagePath]))
	return err
}

// RegisterImage records id with its metadata. Registering the same id
// again updates the paths instead of adding a row.
func (s *Store) RegisterImage(ctx context.Context, id detection.ImageID, meta map[string]string) error {
	if err := upsertImage(ctx, s.db, id, meta); err != nil {
		return fmt.Errorf("failed to register image %s: %w", id, err)
	}
	return nil
}

// WriteResult stores the result's boxes, replacing any earlier boxes for
// the same image so a re-processed job leaves exactly one copy.
func (s *Store) WriteResult(ctx context.Context, res *detection.Result) error {
	return s.replaceBoxes(ctx, "bboxes", res)
}

// RecordDetections stores the detector's unfiltered boxes for res. The
// feedback filter reads its history from these, so boxes it suppresses
// still count as seen.
func (s *Store) RecordDetections(ctx context.Context, res *detection.Result) error {
	return s.replaceBoxes(ctx, "detections", res)
}

// replaceBoxes upserts the image row and swaps its rows in table for
// res.Objects inside one transaction
func (s *Store) replaceBoxes(ctx context.Context, table string, res *detection.Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	id := res.ImageID
	if err := upsertImage(ctx, tx, id, res.Meta); err != nil {
		return fmt.Errorf("failed to upsert image: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE image_id = ?`, id.String()); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO `+table+` (image_id, label, confidence, x_min, y_min, x_max, y_max)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, o := range res.Objects {
		if _, err := stmt.ExecContext(ctx, id.String(), o.Label, o.Confidence, o.Box.XMin, o.Box.YMin, o.Box.XMax, o.Box.YMax); err != nil {
			return fmt.Errorf("failed to insert into %s: %w", table, err)
		}
	}

	return tx.Commit()
}

// ImageRecord is a registered image row
type ImageRecord struct {
	ID             detection.ImageID
	RawImagePath   string
	DrawnImagePath string
}

// GetImage returns the row for id, or nil when it is not registered
func (s *Store) GetImage(ctx context.Context, id detection.ImageID) (*ImageRecord, error) {
	var raw, drawn sql.NullString
	rec := &ImageRecord{}
	err := s.db.QueryRowContext(ctx, `
		SELECT channel, timestamp, file_format, raw_image_path, drawn_image_path
		FROM images WHERE image_id = ?
	`, id.String()).Scan(&rec.ID.Channel, &rec.ID.Timestamp, &rec.ID.Format, &raw, &drawn)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get image: %w", err)
	}
	rec.RawImagePath = raw.String
	rec.DrawnImagePath = drawn.String
	return rec, nil
}

// CountImages returns the number of registered images
func (s *Store) CountImages(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM images`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count images: %w", err)
	}
	return n, nil
}

// Boxes returns the stored objects of one image
func (s *Store) Boxes(ctx context.Context, id detection.ImageID) ([]detection.Object, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT label, confidence, x_min, y_min, x_max, y_max
		FROM bboxes WHERE image_id = ? ORDER BY id
	`, id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query boxes: %w", err)
	}
	defer rows.Close()

	var out []detection.Object
	for rows.Next() {
		var o detection.Object
		if err := rows.Scan(&o.Label, &o.Confidence, &o.Box.XMin, &o.Box.YMin, &o.Box.XMax, &o.Box.YMax); err != nil {
			return nil, fmt.Errorf("failed to scan box: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
