package store

import (
	"context"

	"github.com/tendant/simple-detection-pipeline/internal/detection"
)

// ResultWriter is the persistence result handler
type ResultWriter struct {
	store *Store
}

// NewResultWriter wraps s as a result handler
func NewResultWriter(s *Store) *ResultWriter {
	return &ResultWriter{store: s}
}

// Name identifies the handler in logs and metrics
func (w *ResultWriter) Name() string { return "sqlite" }

// Handle persists res
func (w *ResultWriter) Handle(ctx context.Context, res *detection.Result) error {
	return w.store.WriteResult(ctx, res)
}
