package detector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-detection-pipeline/internal/detection"
)

type stubEngine struct {
	objects []detection.Object
	err     error
}

func (s stubEngine) Infer(ctx context.Context, img *detection.Image) ([]detection.Object, any, error) {
	return s.objects, "raw-output", s.err
}

var img = detection.NewImage(detection.NewImageID("demo", 1, ""), "demo_1.jpg")

func TestFiltered_Threshold(t *testing.T) {
	d := New(stubEngine{objects: []detection.Object{
		{Label: "person", Confidence: 0.9},
		{Label: "person", Confidence: 0.1},
		{Label: "dog", Confidence: 0.14},
	}}, Options{Threshold: 0.14})

	res, err := d.Detect(context.Background(), img)
	require.NoError(t, err)

	require.Len(t, res.Objects, 2)
	for _, o := range res.Objects {
		assert.GreaterOrEqual(t, o.Confidence, 0.14)
	}
	assert.Equal(t, "raw-output", res.Raw)
	assert.Equal(t, img.ID, res.ImageID)
}

func TestFiltered_AllowList(t *testing.T) {
	d := New(stubEngine{objects: []detection.Object{
		{Label: "person", Confidence: 0.9},
		{Label: "car", Confidence: 0.9},
	}}, Options{ValidLabels: []string{"car"}})

	res, err := d.Detect(context.Background(), img)
	require.NoError(t, err)
	require.Len(t, res.Objects, 1)
	assert.Equal(t, "car", res.Objects[0].Label)
}

func TestFiltered_EmptyIsNotAnError(t *testing.T) {
	res, err := New(stubEngine{}, Options{Threshold: 0.5}).Detect(context.Background(), img)
	require.NoError(t, err)
	assert.Empty(t, res.Objects)
	assert.NotNil(t, res.Meta)
}

func TestFiltered_EngineError(t *testing.T) {
	boom := errors.New("engine down")
	_, err := New(stubEngine{err: boom}, Options{}).Detect(context.Background(), img)
	assert.ErrorIs(t, err, boom)
}
