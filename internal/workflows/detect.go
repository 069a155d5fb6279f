package workflows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tendant/simple-detection-pipeline/internal/annotate"
	"github.com/tendant/simple-detection-pipeline/internal/denoise"
	"github.com/tendant/simple-detection-pipeline/internal/detection"
	"github.com/tendant/simple-detection-pipeline/internal/detector"
	"github.com/tendant/simple-detection-pipeline/internal/dispatch"
	"github.com/tendant/simple-detection-pipeline/internal/metrics"
	"github.com/tendant/simple-detection-pipeline/internal/platform/logger"
	"github.com/tendant/simple-detection-pipeline/pkg/pipeline"
)

// ImageSource provides the image of a job
type ImageSource interface {
	Acquire(ctx context.Context, channel string, timestamp int64, rawPath string) (*detection.Image, error)
}

// Annotator draws detections onto a copy of the image
type Annotator interface {
	Annotate(ctx context.Context, img *detection.Image, objects []detection.Object) (*annotate.Rendered, error)
}

// Registry records every acquired image
type Registry interface {
	RegisterImage(ctx context.Context, id detection.ImageID, meta map[string]string) error
}

// Recorder keeps the detector's unfiltered output, the history the
// feedback filter learns from
type Recorder interface {
	RecordDetections(ctx context.Context, res *detection.Result) error
}

// PipelineConfig is built once at process start and shared by every job.
// Annotator, Registry, Recorder, Filters and Handlers are optional.
type PipelineConfig struct {
	Source    ImageSource
	Detector  detector.Detector
	Annotator Annotator
	Registry  Registry
	Recorder  Recorder
	Filters   *denoise.Chain
	Handlers  *dispatch.Fanout
}

// DetectWorkflow runs one detection job:
// acquire, register, detect, annotate, denoise, dispatch.
type DetectWorkflow struct {
	cfg PipelineConfig
	now func() time.Time
}

// NewDetectWorkflow validates cfg and creates the workflow
func NewDetectWorkflow(cfg PipelineConfig) (*DetectWorkflow, error) {
	if cfg.Source == nil {
		return nil, errors.New("pipeline: image source is required")
	}
	if cfg.Detector == nil {
		return nil, errors.New("pipeline: detector is required")
	}
	return &DetectWorkflow{cfg: cfg, now: time.Now}, nil
}

// Name returns the workflow name
func (w *DetectWorkflow) Name() string {
	return "DetectWorkflow"
}

// Execute runs the job. Only acquisition and detection failures are
// returned; every later failure is logged and counted in the result.
func (w *DetectWorkflow) Execute(wctx *WorkflowContext) (*WorkflowResult, error) {
	req := wctx.Request.WithDefaults(w.now())
	ctx := logger.WithRun(wctx.Ctx, wctx.RunID)
	log := logger.C(ctx).With().Str("channel", req.Channel).Int64("timestamp", req.Timestamp).Logger()

	if err := validateRequest(req); err != nil {
		metrics.Jobs.WithLabelValues("invalid_request").Inc()
		log.Error().Err(err).Msg("job rejected")
		return &WorkflowResult{Error: err.Error()}, err
	}

	// Step 1: acquire
	img, err := w.cfg.Source.Acquire(ctx, req.Channel, req.Timestamp, req.RawImagePath)
	if err != nil {
		return w.abort(ctx, StageAcquire, "acquisition_failed", err)
	}
	log = log.With().Str("image_id", img.ID.String()).Logger()

	guard, failures := w.guard(ctx, img.ID)

	if w.cfg.Registry != nil {
		guard(StageRegister, "registry", func() error {
			return w.cfg.Registry.RegisterImage(ctx, img.ID, map[string]string{
				detection.MetaRawImagePath: img.RawPath,
			})
		})
	}

	// Step 2: detect
	res, err := w.cfg.Detector.Detect(ctx, img)
	if err != nil {
		return w.abort(ctx, StageDetect, "detection_failed", err)
	}
	if res.Meta == nil {
		res.Meta = make(map[string]string)
	}
	res.Meta[detection.MetaRawImagePath] = img.RawPath
	log.Info().Int("objects", len(res.Objects)).Strs("labels", res.Labels()).Msg("detection finished")

	if w.cfg.Recorder != nil {
		guard(StageRegister, "detections", func() error {
			return w.cfg.Recorder.RecordDetections(ctx, res)
		})
	}

	// Step 3: annotate
	if w.cfg.Annotator != nil && req.StoreDetectedImage() && len(res.Objects) > 0 {
		guard(StageAnnotate, "annotator", func() error {
			rendered, err := w.cfg.Annotator.Annotate(ctx, img, res.Objects)
			if err != nil {
				return err
			}
			res.Meta[detection.MetaDrawnImagePath] = rendered.Path
			res.Meta[detection.MetaDrawnImageFile] = rendered.File
			return nil
		})
	}

	// Step 4: denoise
	w.cfg.Filters.Run(ctx, res, guard)

	for _, obj := range res.Objects {
		metrics.Objects.WithLabelValues(obj.Label).Inc()
	}

	// Step 5: dispatch
	w.cfg.Handlers.Dispatch(ctx, res, guard)

	metrics.Jobs.WithLabelValues("completed").Inc()
	log.Info().Int("objects", len(res.Objects)).Int("contained_failures", *failures).Msg("job completed")

	return &WorkflowResult{
		Success:        true,
		ImageID:        img.ID.String(),
		Objects:        res.Objects,
		DrawnImagePath: res.Meta[detection.MetaDrawnImagePath],
		Failures:       *failures,
	}, nil
}

// validateRequest rejects jobs whose channel cannot name an image file
func validateRequest(req pipeline.DetectRequest) error {
	if err := detection.NewImageID(req.Channel, req.Timestamp, "").Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return nil
}

func (w *DetectWorkflow) abort(ctx context.Context, stage, outcome string, err error) (*WorkflowResult, error) {
	se := &StageError{Stage: stage, Err: err}
	metrics.Jobs.WithLabelValues(outcome).Inc()
	logger.C(ctx).Error().Err(err).Str("stage", stage).Msg("job aborted")
	return &WorkflowResult{Error: se.Error()}, se
}

// guard returns the containment policy shared by every best-effort stage:
// failures and panics are logged, counted and swallowed by the caller.
func (w *DetectWorkflow) guard(ctx context.Context, id detection.ImageID) (detection.Guard, *int) {
	failures := new(int)
	g := func(stage, name string, fn func() error) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
			if err == nil {
				return
			}
			err = &StageError{Stage: stage, Name: name, Err: err}
			*failures++
			metrics.StageFailures.WithLabelValues(stage, name).Inc()
			logger.C(ctx).Warn().Err(err).
				Str("image_id", id.String()).
				Str("stage", stage).
				Str("name", name).
				Msg("stage failed, continuing")
		}()
		return fn()
	}
	return g, failures
}
