package workflows

import (
	"context"
	"errors"
	"path"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-detection-pipeline/internal/annotate"
	"github.com/tendant/simple-detection-pipeline/internal/denoise"
	"github.com/tendant/simple-detection-pipeline/internal/detection"
	"github.com/tendant/simple-detection-pipeline/internal/dispatch"
	"github.com/tendant/simple-detection-pipeline/pkg/pipeline"
)

type fakeSource struct {
	err error
}

func (s *fakeSource) Acquire(_ context.Context, channel string, ts int64, rawPath string) (*detection.Image, error) {
	if s.err != nil {
		return nil, s.err
	}
	id := detection.NewImageID(channel, ts, "jpg")
	if rawPath == "" {
		rawPath = path.Join("raw_image", id.FileName())
	}
	return detection.NewImage(id, rawPath), nil
}

type fakeDetector struct {
	objects []detection.Object
	err     error
	calls   int
}

func (d *fakeDetector) Detect(_ context.Context, img *detection.Image) (*detection.Result, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	res := detection.NewResult(img.ID)
	res.Objects = append(res.Objects, d.objects...)
	return res, nil
}

type fakeAnnotator struct {
	err   error
	calls int
}

func (a *fakeAnnotator) Annotate(_ context.Context, img *detection.Image, _ []detection.Object) (*annotate.Rendered, error) {
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	return &annotate.Rendered{Path: "detected_image/" + img.ID.FileName(), File: "/tmp/" + img.ID.FileName()}, nil
}

type fakeRegistry struct {
	ids  []detection.ImageID
	meta []map[string]string
	err  error
}

func (r *fakeRegistry) RegisterImage(_ context.Context, id detection.ImageID, meta map[string]string) error {
	r.ids = append(r.ids, id)
	r.meta = append(r.meta, meta)
	return r.err
}

type fakeRecorder struct {
	objs [][]detection.Object
}

func (r *fakeRecorder) RecordDetections(_ context.Context, res *detection.Result) error {
	r.objs = append(r.objs, append([]detection.Object(nil), res.Objects...))
	return nil
}

type dropAllFilter struct{}

func (dropAllFilter) Name() string { return "drop-all" }

func (dropAllFilter) Apply(_ context.Context, res *detection.Result) (*detection.Result, error) {
	res.Objects = nil
	return res, nil
}

type captureHandler struct {
	name  string
	err   error
	panic bool
	calls int
	meta  map[string]string
	objs  []detection.Object
}

func (h *captureHandler) Name() string { return h.name }

func (h *captureHandler) Handle(_ context.Context, res *detection.Result) error {
	h.calls++
	h.meta = res.Meta
	h.objs = res.Objects
	if h.panic {
		panic("handler exploded")
	}
	return h.err
}

type failingFilter struct{}

func (failingFilter) Name() string { return "failing" }

func (failingFilter) Apply(context.Context, *detection.Result) (*detection.Result, error) {
	return nil, errors.New("history unavailable")
}

var person = detection.Object{Label: "person", Confidence: 0.9, Box: detection.BoundingBox{XMin: 1, YMin: 1, XMax: 20, YMax: 40}}

type harness struct {
	source    *fakeSource
	detector  *fakeDetector
	annotator *fakeAnnotator
	registry  *fakeRegistry
	recorder  Recorder
	handlers  []*captureHandler
	filters   []denoise.Filter
}

func newHarness(objects ...detection.Object) *harness {
	return &harness{
		source:    &fakeSource{},
		detector:  &fakeDetector{objects: objects},
		annotator: &fakeAnnotator{},
		registry:  &fakeRegistry{},
		handlers:  []*captureHandler{{name: "first"}, {name: "second"}},
	}
}

func (h *harness) run(t *testing.T, req pipeline.DetectRequest) (*WorkflowResult, error) {
	t.Helper()
	fanout := dispatch.New()
	for _, ch := range h.handlers {
		fanout.Add(ch)
	}
	wf, err := NewDetectWorkflow(PipelineConfig{
		Source:    h.source,
		Detector:  h.detector,
		Annotator: h.annotator,
		Registry:  h.registry,
		Recorder:  h.recorder,
		Filters:   denoise.New(h.filters...),
		Handlers:  fanout,
	})
	require.NoError(t, err)
	wf.now = func() time.Time { return time.Unix(1700000000, 0) }
	return wf.Execute(&WorkflowContext{Ctx: context.Background(), Request: req, RunID: "run-1"})
}

func TestDetectWorkflow_DemoJob(t *testing.T) {
	h := newHarness(person)

	res, err := h.run(t, pipeline.DetectRequest{Channel: "demo", Timestamp: 1700000000, IsStoreDetectedImage: pipeline.Bool(true)})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "demo_1700000000", res.ImageID)
	assert.Equal(t, "detected_image/demo_1700000000.jpg", res.DrawnImagePath)
	assert.Zero(t, res.Failures)

	require.Len(t, h.registry.ids, 1)
	assert.Equal(t, "raw_image/demo_1700000000.jpg", h.registry.meta[0][detection.MetaRawImagePath])

	for _, ch := range h.handlers {
		assert.Equal(t, 1, ch.calls)
		assert.Equal(t, "detected_image/demo_1700000000.jpg", ch.meta[detection.MetaDrawnImagePath])
		assert.Equal(t, "raw_image/demo_1700000000.jpg", ch.meta[detection.MetaRawImagePath])
	}
}

func TestDetectWorkflow_RecordsUnfilteredDetections(t *testing.T) {
	h := newHarness(person)
	rec := &fakeRecorder{}
	h.recorder = rec
	h.filters = []denoise.Filter{dropAllFilter{}}

	res, err := h.run(t, pipeline.DetectRequest{Channel: "demo", Timestamp: 1})
	require.NoError(t, err)
	assert.Empty(t, res.Objects)

	require.Len(t, rec.objs, 1)
	assert.Equal(t, []detection.Object{person}, rec.objs[0])
	assert.Empty(t, h.handlers[0].objs)
}

func TestDetectWorkflow_RejectsUnsafeChannel(t *testing.T) {
	for _, channel := range []string{"../../escaped", "a/b", `a\b`} {
		h := newHarness(person)

		res, err := h.run(t, pipeline.DetectRequest{Channel: channel, Timestamp: 1, RawImagePath: "/tmp/x.jpg"})
		require.ErrorIs(t, err, ErrInvalidRequest, channel)
		assert.False(t, res.Success)
		assert.Zero(t, h.detector.calls)
		assert.Empty(t, h.registry.ids)
		assert.Zero(t, h.annotator.calls)
		assert.Zero(t, h.handlers[0].calls)
	}
}

func TestWorkflowRunner_RunAsyncRejectsUnsafeChannel(t *testing.T) {
	r := NewWorkflowRunner(nil)
	_, err := r.RunAsync(context.Background(), pipeline.DetectRequest{Channel: "../x"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestDetectWorkflow_DefaultsChannelAndTimestamp(t *testing.T) {
	h := newHarness()
	res, err := h.run(t, pipeline.DetectRequest{})
	require.NoError(t, err)
	assert.Equal(t, "demo_1700000000", res.ImageID)
}

func TestDetectWorkflow_NoObjectsSkipsAnnotation(t *testing.T) {
	h := newHarness()

	res, err := h.run(t, pipeline.DetectRequest{Channel: "demo", Timestamp: 1})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Zero(t, h.annotator.calls)
	for _, ch := range h.handlers {
		assert.Equal(t, 1, ch.calls)
		assert.NotContains(t, ch.meta, detection.MetaDrawnImagePath)
	}
}

func TestDetectWorkflow_StoreDisabledSkipsAnnotation(t *testing.T) {
	h := newHarness(person)

	_, err := h.run(t, pipeline.DetectRequest{Channel: "demo", Timestamp: 1, IsStoreDetectedImage: pipeline.Bool(false)})
	require.NoError(t, err)
	assert.Zero(t, h.annotator.calls)
	assert.NotContains(t, h.handlers[0].meta, detection.MetaDrawnImagePath)
	assert.Equal(t, []detection.Object{person}, h.handlers[0].objs)
}

func TestDetectWorkflow_AcquisitionIsFatal(t *testing.T) {
	h := newHarness(person)
	h.source.err = errors.New("connection refused")

	res, err := h.run(t, pipeline.DetectRequest{Channel: "demo", Timestamp: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAcquisition)
	assert.False(t, res.Success)
	assert.Zero(t, h.detector.calls)
	assert.Empty(t, h.registry.ids)
	assert.Zero(t, h.handlers[0].calls)
}

func TestDetectWorkflow_DetectionIsFatal(t *testing.T) {
	h := newHarness()
	cause := errors.New("engine crashed")
	h.detector.err = cause

	_, err := h.run(t, pipeline.DetectRequest{Channel: "demo", Timestamp: 1})
	assert.ErrorIs(t, err, ErrDetection)
	assert.ErrorIs(t, err, cause)
	assert.Len(t, h.registry.ids, 1)
	assert.Zero(t, h.handlers[0].calls)
	assert.Zero(t, h.handlers[1].calls)
}

func TestDetectWorkflow_ContainedFailures(t *testing.T) {
	h := newHarness(person)
	h.registry.err = errors.New("database is locked")
	h.annotator.err = errors.New("disk full")
	h.filters = []denoise.Filter{failingFilter{}}
	h.handlers = []*captureHandler{
		{name: "panics", panic: true},
		{name: "errors", err: errors.New("503")},
		{name: "ok"},
	}

	res, err := h.run(t, pipeline.DetectRequest{Channel: "demo", Timestamp: 1})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 5, res.Failures)
	assert.Empty(t, res.DrawnImagePath)

	for _, ch := range h.handlers {
		assert.Equal(t, 1, ch.calls, ch.name)
		assert.Equal(t, []detection.Object{person}, ch.objs, ch.name)
	}
}

func TestStageError(t *testing.T) {
	cause := errors.New("boom")
	err := error(&StageError{Stage: StageHandler, Name: "notify:ops", Err: cause})

	assert.ErrorIs(t, err, ErrHandler)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrFilter)
	assert.Equal(t, "handler notify:ops: boom", err.Error())
}

func TestNewDetectWorkflow_RequiresCollaborators(t *testing.T) {
	_, err := NewDetectWorkflow(PipelineConfig{})
	assert.Error(t, err)
	_, err = NewDetectWorkflow(PipelineConfig{Source: &fakeSource{}})
	assert.Error(t, err)
}

func TestWorkflowRunner_Run(t *testing.T) {
	h := newHarness(person)
	wf, err := NewDetectWorkflow(PipelineConfig{Source: h.source, Detector: h.detector})
	require.NoError(t, err)

	r := NewWorkflowRunner(nil)
	r.Register(pipeline.JobDetectImage, wf)

	res, err := r.Run(&WorkflowContext{Ctx: context.Background(), Request: pipeline.DetectRequest{Channel: "gate", Timestamp: 5}})
	require.NoError(t, err)
	assert.Equal(t, "gate_5", res.ImageID)

	_, err = r.Run(&WorkflowContext{Ctx: context.Background(), Request: pipeline.DetectRequest{Job: "ocr"}})
	assert.ErrorIs(t, err, ErrWorkflowNotFound)

	_, err = r.RunAsync(context.Background(), pipeline.DetectRequest{})
	assert.Error(t, err)
	_, err = r.GetStatus(context.Background(), "x")
	assert.ErrorIs(t, err, ErrStatusUnavailable)
}
