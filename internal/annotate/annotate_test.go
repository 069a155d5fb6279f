package annotate

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-detection-pipeline/internal/detection"
)

func writeGray(t *testing.T, path string) {
	t.Helper()
	img := imaging.New(100, 100, color.NRGBA{128, 128, 128, 255})
	require.NoError(t, imaging.Save(img, path))
}

func TestAnnotate(t *testing.T) {
	dir := t.TempDir()
	rawPath := filepath.Join(dir, "demo_1700000000.jpg")
	writeGray(t, rawPath)
	before, err := os.ReadFile(rawPath)
	require.NoError(t, err)

	a, err := New(filepath.Join(dir, "out"), "detected_image")
	require.NoError(t, err)

	img := detection.NewImage(detection.NewImageID("demo", 1700000000, "jpg"), rawPath)
	objs := []detection.Object{{Label: "person", Confidence: 0.9, Box: detection.BoundingBox{XMin: 10, YMin: 10, XMax: 50, YMax: 50}}}

	r, err := a.Annotate(context.Background(), img, objs)
	require.NoError(t, err)

	assert.Equal(t, "detected_image/demo_1700000000.jpg", r.Path)
	assert.Equal(t, filepath.Join(dir, "out", "demo_1700000000.jpg"), r.File)
	_, err = os.Stat(r.File)
	assert.NoError(t, err)

	after, err := os.ReadFile(rawPath)
	require.NoError(t, err)
	assert.Equal(t, before, after, "source image must not change")
}

func TestAnnotate_DecodeFailure(t *testing.T) {
	dir := t.TempDir()
	a, err := New(dir, "detected_image")
	require.NoError(t, err)

	img := detection.NewImage(detection.NewImageID("demo", 1, "jpg"), filepath.Join(dir, "missing.jpg"))
	_, err = a.Annotate(context.Background(), img, []detection.Object{{Label: "x"}})
	assert.Error(t, err)
}

func TestAnnotate_StaysInFolder(t *testing.T) {
	dir := t.TempDir()
	rawPath := filepath.Join(dir, "raw.jpg")
	writeGray(t, rawPath)

	out := filepath.Join(dir, "out", "detected")
	a, err := New(out, "detected_image")
	require.NoError(t, err)

	img := detection.NewImage(detection.NewImageID("../../escaped", 1, "jpg"), rawPath)
	objs := []detection.Object{{Label: "person", Box: detection.BoundingBox{XMin: 1, YMin: 1, XMax: 9, YMax: 9}}}

	_, err = a.Annotate(context.Background(), img, objs)
	assert.ErrorIs(t, err, detection.ErrInvalidImageID)

	_, err = os.Stat(filepath.Join(dir, "escaped_1.jpg"))
	assert.True(t, os.IsNotExist(err))
}

func TestAnnotator_Target(t *testing.T) {
	a := &Annotator{dir: "detected"}

	file, err := a.target("demo_1.jpg")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("detected", "demo_1.jpg"), file)

	_, err = a.target("../demo_1.jpg")
	assert.Error(t, err)

	a = &Annotator{dir: "."}
	file, err = a.target("demo_1.jpg")
	require.NoError(t, err)
	assert.Equal(t, "demo_1.jpg", file)
}

func TestDrawBox_ClipsToCanvas(t *testing.T) {
	dst := image.NewNRGBA(image.Rect(0, 0, 20, 20))
	red := color.NRGBA{255, 0, 0, 255}

	drawBox(dst, image.Rect(-5, -5, 10, 10), red, 1)
	assert.Equal(t, red, dst.NRGBAAt(0, 5))
	assert.Equal(t, red, dst.NRGBAAt(9, 5))
	assert.Equal(t, color.NRGBA{}, dst.NRGBAAt(5, 5))

	drawBox(dst, image.Rect(30, 30, 40, 40), red, 1)
}

func TestLabelColor_Stable(t *testing.T) {
	assert.Equal(t, LabelColor("person"), LabelColor("person"))
}
