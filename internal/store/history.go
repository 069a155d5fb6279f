package store

import (
	"context"
	"fmt"

	"github.com/tendant/simple-detection-pipeline/internal/detection"
)

// Snapshot is one earlier image of a channel with its unfiltered detections
type Snapshot struct {
	ImageID detection.ImageID
	Objects []detection.Object
}

// RecentSnapshots returns up to limit images of channel taken in
// [since, before), newest first. Images without boxes are included.
func (s *Store) RecentSnapshots(ctx context.Context, channel string, since, before int64, limit int) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.image_id, i.timestamp, i.file_format,
		       b.label, b.confidence, b.x_min, b.y_min, b.x_max, b.y_max
		FROM (
			SELECT image_id, timestamp, file_format FROM images
			WHERE channel = ? AND timestamp >= ? AND timestamp < ?
			ORDER BY timestamp DESC
			LIMIT ?
		) i
		LEFT JOIN detections b ON b.image_id = i.image_id
		ORDER BY i.timestamp DESC, b.id
	`, channel, since, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	var imageIDs []string
	for rows.Next() {
		var (
			key, format string
			ts          int64
			label       *string
			conf        *float64
			x1, y1      *int
			x2, y2      *int
		)
		if err := rows.Scan(&key, &ts, &format, &label, &conf, &x1, &y1, &x2, &y2); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		if len(imageIDs) == 0 || imageIDs[len(imageIDs)-1] != key {
			imageIDs = append(imageIDs, key)
			out = append(out, Snapshot{ImageID: detection.NewImageID(channel, ts, format)})
		}
		if label == nil {
			continue
		}
		last := &out[len(out)-1]
		last.Objects = append(last.Objects, detection.Object{
			Label:      *label,
			Confidence: *conf,
			Box:        detection.BoundingBox{XMin: *x1, YMin: *y1, XMax: *x2, YMax: *y2},
		})
	}
	return out, rows.Err()
}

// FalseAlert is a box a reviewer marked as not a real detection
type FalseAlert struct {
	Channel    string
	Label      string
	Box        detection.BoundingBox
	ReportedAt int64
}

// RecordFalseAlert stores reviewer feedback
func (s *Store) RecordFalseAlert(ctx context.Context, fa FalseAlert) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO false_alerts (channel, label, x_min, y_min, x_max, y_max, reported_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, fa.Channel, fa.Label, fa.Box.XMin, fa.Box.YMin, fa.Box.XMax, fa.Box.YMax, fa.ReportedAt)
	if err != nil {
		return fmt.Errorf("failed to record false alert: %w", err)
	}
	return nil
}

// FalseAlerts returns feedback for channel reported at or after since
func (s *Store) FalseAlerts(ctx context.Context, channel string, since int64) ([]FalseAlert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT channel, label, x_min, y_min, x_max, y_max, reported_at
		FROM false_alerts WHERE channel = ? AND reported_at >= ?
		ORDER BY reported_at DESC
	`, channel, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query false alerts: %w", err)
	}
	defer rows.Close()

	var out []FalseAlert
	for rows.Next() {
		var fa FalseAlert
		if err := rows.Scan(&fa.Channel, &fa.Label, &fa.Box.XMin, &fa.Box.YMin, &fa.Box.XMax, &fa.Box.YMax, &fa.ReportedAt); err != nil {
			return nil, fmt.Errorf("failed to scan false alert: %w", err)
		}
		out = append(out, fa)
	}
	return out, rows.Err()
}
