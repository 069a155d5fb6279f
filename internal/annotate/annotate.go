// Package annotate renders detected boxes onto a copy of the source image
package annotate

import (
	"context"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/tendant/simple-detection-pipeline/internal/detection"
)

// Rendered describes the saved annotated copy
type Rendered struct {
	Path string // public relative path, e.g. detected_image/demo_1700000000.jpg
	File string // local file that was written
}

// Annotator draws boxes and writes one JPEG per call
type Annotator struct {
	dir       string
	urlPrefix string
	thickness int
	quality   int
}

// New creates an annotator that writes into dir and reports paths under urlPrefix
func New(dir, urlPrefix string) (*Annotator, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create detected image folder: %w", err)
	}
	return &Annotator{dir: dir, urlPrefix: urlPrefix, thickness: 3, quality: 85}, nil
}

// Annotate draws objects onto a copy of img and saves it as <id>.<format>.
// The source file is never modified.
func (a *Annotator) Annotate(ctx context.Context, img *detection.Image, objects []detection.Object) (*Rendered, error) {
	if err := img.ID.Validate(); err != nil {
		return nil, err
	}
	name := img.ID.FileName()
	file, err := a.target(name)
	if err != nil {
		return nil, err
	}

	src, err := img.Pixels()
	if err != nil {
		return nil, err
	}

	canvas := imaging.Clone(src)
	for _, o := range objects {
		drawBox(canvas, o.Box.Rect(), LabelColor(o.Label), a.thickness)
	}

	if err := imaging.Save(canvas, file, imaging.JPEGQuality(a.quality)); err != nil {
		return nil, fmt.Errorf("failed to save %s: %w", file, err)
	}

	return &Rendered{Path: path.Join(a.urlPrefix, name), File: file}, nil
}

// target resolves name inside the output folder
func (a *Annotator) target(name string) (string, error) {
	file := filepath.Join(a.dir, name)
	rel, err := filepath.Rel(a.dir, file)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid file name %q: outside %s", name, a.dir)
	}
	return file, nil
}

// LabelColor gives every label a stable, saturated colour
func LabelColor(label string) color.Color {
	h := fnv.New32a()
	h.Write([]byte(label))
	hue := float64(h.Sum32()%360)
	return colorful.Hsv(hue, 0.85, 0.95).Clamped()
}

// drawBox strokes r with thickness pixels, clipped to the canvas
func drawBox(dst *image.NRGBA, r image.Rectangle, c color.Color, thickness int) {
	r = r.Canon().Intersect(dst.Bounds())
	if r.Empty() {
		return
	}
	for t := 0; t < thickness; t++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			dst.Set(x, r.Min.Y+t, c)
			dst.Set(x, r.Max.Y-1-t, c)
		}
		for y := r.Min.Y; y < r.Max.Y; y++ {
			dst.Set(r.Min.X+t, y, c)
			dst.Set(r.Max.X-1-t, y, c)
		}
	}
}
