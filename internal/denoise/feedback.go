package denoise

import (
	"context"
	"fmt"
	"time"

	"github.com/tendant/simple-detection-pipeline/internal/detection"
	"github.com/tendant/simple-detection-pipeline/internal/store"
)

// History is the slice of the detection store the feedback filter reads
type History interface {
	RecentSnapshots(ctx context.Context, channel string, since, before int64, limit int) ([]store.Snapshot, error)
	FalseAlerts(ctx context.Context, channel string, since int64) ([]store.FalseAlert, error)
}

// FeedbackOptions tunes FeedbackFilter
type FeedbackOptions struct {
	Window          time.Duration
	HistorySize     int
	RepetitionRatio float64
	Overlap         float64
}

// FeedbackFilter suppresses boxes that keep reappearing at the same place
// on a channel (static objects, reflections) and boxes that overlap a
// reported false alert.
type FeedbackFilter struct {
	history History
	opts    FeedbackOptions
}

// NewFeedbackFilter creates a FeedbackFilter reading from history
func NewFeedbackFilter(history History, opts FeedbackOptions) *FeedbackFilter {
	if opts.HistorySize <= 0 {
		opts.HistorySize = 20
	}
	if opts.Window <= 0 {
		opts.Window = time.Hour
	}
	if opts.RepetitionRatio <= 0 {
		opts.RepetitionRatio = 0.8
	}
	if opts.Overlap <= 0 {
		opts.Overlap = 0.5
	}
	return &FeedbackFilter{history: history, opts: opts}
}

func (f *FeedbackFilter) Name() string { return "feedback" }

// Apply drops repeated and reported objects from res
func (f *FeedbackFilter) Apply(ctx context.Context, res *detection.Result) (*detection.Result, error) {
	if len(res.Objects) == 0 {
		return res, nil
	}

	id := res.ImageID
	since := id.Timestamp - int64(f.opts.Window/time.Second)
	snaps, err := f.history.RecentSnapshots(ctx, id.Channel, since, id.Timestamp, f.opts.HistorySize)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	alerts, err := f.history.FalseAlerts(ctx, id.Channel, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load false alerts: %w", err)
	}

	kept := res.Objects[:0:0]
	for _, obj := range res.Objects {
		if f.reported(obj, alerts) || f.repeated(obj, snaps) {
			continue
		}
		kept = append(kept, obj)
	}
	res.Objects = kept
	return res, nil
}

func (f *FeedbackFilter) repeated(obj detection.Object, snaps []store.Snapshot) bool {
	if len(snaps) == 0 {
		return false
	}
	hits := 0
	for _, s := range snaps {
		for _, prev := range s.Objects {
			if prev.Label == obj.Label && prev.Box.IoU(obj.Box) >= f.opts.Overlap {
				hits++
				break
			}
		}
	}
	return float64(hits)/float64(len(snaps)) >= f.opts.RepetitionRatio
}

func (f *FeedbackFilter) reported(obj detection.Object, alerts []store.FalseAlert) bool {
	for _, fa := range alerts {
		if fa.Label == obj.Label && fa.Box.IoU(obj.Box) >= f.opts.Overlap {
			return true
		}
	}
	return false
}
