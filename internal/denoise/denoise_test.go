package denoise

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-detection-pipeline/internal/detection"
	"github.com/tendant/simple-detection-pipeline/internal/store"
)

type funcFilter struct {
	name string
	fn   func(*detection.Result) (*detection.Result, error)
	seen []*detection.Result
}

func (f *funcFilter) Name() string { return f.name }

func (f *funcFilter) Apply(_ context.Context, res *detection.Result) (*detection.Result, error) {
	f.seen = append(f.seen, res.Clone())
	return f.fn(res)
}

func person(x int) detection.Object {
	return detection.Object{Label: "person", Confidence: 0.9, Box: detection.BoundingBox{XMin: x, YMin: 0, XMax: x + 10, YMax: 10}}
}

func newResult(objs ...detection.Object) *detection.Result {
	res := detection.NewResult(detection.NewImageID("demo", 1000, "jpg"))
	res.Objects = objs
	return res
}

func TestChain_FailedFilterIsIdentity(t *testing.T) {
	res := newResult(person(0), person(100))

	broken := &funcFilter{name: "broken", fn: func(r *detection.Result) (*detection.Result, error) {
		r.Objects = nil
		r.Meta["tampered"] = "yes"
		return nil, errors.New("boom")
	}}
	next := &funcFilter{name: "next", fn: func(r *detection.Result) (*detection.Result, error) {
		return r, nil
	}}

	failed := New(broken, next).Run(context.Background(), res, nil)
	assert.Equal(t, 1, failed)

	require.Len(t, next.seen, 1)
	assert.Equal(t, broken.seen[0].Objects, next.seen[0].Objects)
	assert.NotContains(t, next.seen[0].Meta, "tampered")
	assert.Len(t, res.Objects, 2)
}

func TestChain_NilResultCountsAsFailure(t *testing.T) {
	res := newResult(person(0))
	f := &funcFilter{name: "nil", fn: func(*detection.Result) (*detection.Result, error) { return nil, nil }}
	assert.Equal(t, 1, New(f).Run(context.Background(), res, nil))
	assert.Len(t, res.Objects, 1)
}

func TestChain_CommitsOntoSameInstance(t *testing.T) {
	res := newResult(person(0), person(100))
	drop := &funcFilter{name: "drop-first", fn: func(r *detection.Result) (*detection.Result, error) {
		r.Objects = r.Objects[1:]
		return r, nil
	}}
	before := res

	assert.Zero(t, New(drop).Run(context.Background(), res, nil))
	assert.Same(t, before, res)
	assert.Equal(t, []detection.Object{person(100)}, res.Objects)
}

func TestChain_UsesGuard(t *testing.T) {
	var calls []string
	guard := func(stage, name string, fn func() error) error {
		calls = append(calls, stage+":"+name)
		return fn()
	}
	ok := &funcFilter{name: "ok", fn: func(r *detection.Result) (*detection.Result, error) { return r, nil }}

	c := New(ok, nil, NewMinAreaFilter(0))
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, []string{"ok"}, c.Names())

	c.Run(context.Background(), newResult(), guard)
	assert.Equal(t, []string{"filter:ok"}, calls)
}

func TestMinAreaFilter(t *testing.T) {
	small := detection.Object{Label: "cat", Box: detection.BoundingBox{XMax: 2, YMax: 2}}
	res := newResult(small, person(0))

	New(NewMinAreaFilter(50)).Run(context.Background(), res, nil)
	assert.Equal(t, []detection.Object{person(0)}, res.Objects)
}

type fakeHistory struct {
	snaps  []store.Snapshot
	alerts []store.FalseAlert
	err    error

	since, before int64
	limit         int
}

func (h *fakeHistory) RecentSnapshots(_ context.Context, _ string, since, before int64, limit int) ([]store.Snapshot, error) {
	h.since, h.before, h.limit = since, before, limit
	return h.snaps, h.err
}

func (h *fakeHistory) FalseAlerts(context.Context, string, int64) ([]store.FalseAlert, error) {
	return h.alerts, nil
}

func TestFeedbackFilter_SuppressesRepeatedBoxes(t *testing.T) {
	h := &fakeHistory{snaps: []store.Snapshot{
		{Objects: []detection.Object{person(0)}},
		{Objects: []detection.Object{person(1)}},
		{Objects: []detection.Object{person(0), person(100)}},
		{Objects: []detection.Object{person(0)}},
		{},
	}}
	f := NewFeedbackFilter(h, FeedbackOptions{Window: 10 * time.Minute, HistorySize: 5, RepetitionRatio: 0.8, Overlap: 0.5})

	res := newResult(person(0), person(100), person(300))
	New(f).Run(context.Background(), res, nil)

	assert.Equal(t, []detection.Object{person(100), person(300)}, res.Objects)
	assert.EqualValues(t, 400, h.since)
	assert.EqualValues(t, 1000, h.before)
	assert.Equal(t, 5, h.limit)
}

func TestFeedbackFilter_FalseAlerts(t *testing.T) {
	h := &fakeHistory{alerts: []store.FalseAlert{{Channel: "demo", Label: "person", Box: person(100).Box}}}
	res := newResult(person(0), person(100))

	New(NewFeedbackFilter(h, FeedbackOptions{})).Run(context.Background(), res, nil)
	assert.Equal(t, []detection.Object{person(0)}, res.Objects)
}

func TestFeedbackFilter_HistoryErrorKeepsResult(t *testing.T) {
	h := &fakeHistory{err: errors.New("db locked")}
	res := newResult(person(0))

	failed := New(NewFeedbackFilter(h, FeedbackOptions{})).Run(context.Background(), res, nil)
	assert.Equal(t, 1, failed)
	assert.Len(t, res.Objects, 1)
}

func TestFeedbackFilter_StaticObjectStaysSuppressed(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer st.Close()

	chain := New(NewFeedbackFilter(st, FeedbackOptions{
		Window:          time.Hour,
		HistorySize:     20,
		RepetitionRatio: 0.8,
		Overlap:         0.5,
	}))
	writer := store.NewResultWriter(st)
	static := detection.Object{Label: "person", Confidence: 0.9, Box: detection.BoundingBox{XMin: 10, YMin: 10, XMax: 50, YMax: 50}}

	var emitted []int
	for frame := 0; frame < 60; frame++ {
		id := detection.NewImageID("cam", 1000+int64(frame)*10, "jpg")
		require.NoError(t, st.RegisterImage(ctx, id, nil))

		res := detection.NewResult(id)
		res.Objects = []detection.Object{static}
		require.NoError(t, st.RecordDetections(ctx, res))

		assert.Zero(t, chain.Run(ctx, res, nil))
		require.NoError(t, writer.Handle(ctx, res))
		if len(res.Objects) > 0 {
			emitted = append(emitted, frame)
		}
	}

	// only the first sighting has no history to compare against
	assert.Equal(t, []int{0}, emitted)
}
