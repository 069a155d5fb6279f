// Package detector adapts detection engines to the pipeline's Detector
// contract: threshold and label allow-list are enforced here, once, for
// every engine.
package detector

import (
	"context"
	"fmt"
	"time"

	"github.com/tendant/simple-detection-pipeline/internal/detection"
	"github.com/tendant/simple-detection-pipeline/internal/metrics"
	"github.com/tendant/simple-detection-pipeline/internal/platform/logger"
)

// Detector produces a Result for an image
type Detector interface {
	Detect(ctx context.Context, img *detection.Image) (*detection.Result, error)
}

// Engine is a raw inference backend. It may return objects of any
// confidence; raw is kept on the Result for handlers that want it.
type Engine interface {
	Infer(ctx context.Context, img *detection.Image) (objects []detection.Object, raw any, err error)
}

// Options configure the filtering applied to engine output
type Options struct {
	Threshold   float64
	ValidLabels []string // empty means every label is kept
}

// Filtered wraps an Engine with threshold and allow-list filtering
type Filtered struct {
	engine    Engine
	threshold float64
	allow     map[string]bool
}

// New creates a Filtered detector
func New(engine Engine, opts Options) *Filtered {
	var allow map[string]bool
	if len(opts.ValidLabels) > 0 {
		allow = make(map[string]bool, len(opts.ValidLabels))
		for _, l := range opts.ValidLabels {
			allow[l] = true
		}
	}
	return &Filtered{engine: engine, threshold: opts.Threshold, allow: allow}
}

// Detect runs the engine and drops objects below threshold or outside the allow-list
func (d *Filtered) Detect(ctx context.Context, img *detection.Image) (*detection.Result, error) {
	start := time.Now()
	objects, raw, err := d.engine.Infer(ctx, img)
	elapsed := time.Since(start)
	metrics.Inference.Observe(elapsed.Seconds())
	if err != nil {
		return nil, fmt.Errorf("inference on %s failed: %w", img.RawPath, err)
	}

	res := detection.NewResult(img.ID)
	res.Raw = raw
	for _, o := range objects {
		if o.Confidence < d.threshold {
			continue
		}
		if d.allow != nil && !d.allow[o.Label] {
			continue
		}
		res.Objects = append(res.Objects, o)
	}

	logger.C(ctx).Info().
		Str("image_id", img.ID.String()).
		Dur("elapsed", elapsed).
		Int("raw", len(objects)).
		Int("kept", len(res.Objects)).
		Msg("inference finished")

	return res, nil
}
