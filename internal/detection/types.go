// Package detection holds the value types shared by every pipeline stage.
package detection

import (
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
)

// Metadata keys recorded on a Result
const (
	MetaRawImagePath   = "raw_image_path"
	MetaDrawnImagePath = "drawn_image_path"
	MetaDrawnImageFile = "drawn_image_file" // local path of the annotated copy
)

// ImageID names one job's image within a run
type ImageID struct {
	Channel   string `json:"channel"`
	Timestamp int64  `json:"timestamp"`
	Format    string `json:"format"`
}

// NewImageID builds an ImageID, defaulting the format to jpg
func NewImageID(channel string, timestamp int64, format string) ImageID {
	if format == "" {
		format = "jpg"
	}
	return ImageID{Channel: channel, Timestamp: timestamp, Format: format}
}

// String returns the stable key used for registry rows and file names
func (id ImageID) String() string {
	return fmt.Sprintf("%s_%d", id.Channel, id.Timestamp)
}

// ErrInvalidImageID is returned for ids that cannot name a file
var ErrInvalidImageID = errors.New("invalid image id")

// Validate rejects ids whose file name would leave its folder
func (id ImageID) Validate() error {
	switch {
	case id.Channel == "":
		return fmt.Errorf("%w: empty channel", ErrInvalidImageID)
	case strings.ContainsAny(id.Channel, `/\`+"\x00"), strings.Contains(id.Channel, ".."):
		return fmt.Errorf("%w: channel %q must be a plain name", ErrInvalidImageID, id.Channel)
	case strings.ContainsAny(id.Format, `/\.`):
		return fmt.Errorf("%w: format %q", ErrInvalidImageID, id.Format)
	}
	return nil
}

// FileName is the on-disk name of the image
func (id ImageID) FileName() string {
	return id.String() + "." + id.Format
}

// Image is a job's source image. Pixels are decoded on first use.
type Image struct {
	ID      ImageID
	RawPath string

	once   sync.Once
	pixels image.Image
	err    error
}

// NewImage creates an Image backed by the file at rawPath
func NewImage(id ImageID, rawPath string) *Image {
	return &Image{ID: id, RawPath: rawPath}
}

// NewImageFromPixels creates an Image whose pixel buffer is already decoded
func NewImageFromPixels(id ImageID, rawPath string, px image.Image) *Image {
	img := &Image{ID: id, RawPath: rawPath, pixels: px}
	img.once.Do(func() {})
	return img
}

// Pixels decodes the raw file once and returns the shared buffer.
// Callers that draw must work on a copy.
func (i *Image) Pixels() (image.Image, error) {
	i.once.Do(func() {
		i.pixels, i.err = imaging.Open(i.RawPath, imaging.AutoOrientation(true))
		if i.err != nil {
			i.err = fmt.Errorf("failed to decode %s: %w", i.RawPath, i.err)
		}
	})
	return i.pixels, i.err
}

// BoundingBox is an axis-aligned box in pixel coordinates
type BoundingBox struct {
	XMin int `json:"x_min"`
	YMin int `json:"y_min"`
	XMax int `json:"x_max"`
	YMax int `json:"y_max"`
}

// Rect converts the box to an image.Rectangle
func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(b.XMin, b.YMin, b.XMax, b.YMax)
}

// Area returns the box area in pixels
func (b BoundingBox) Area() int {
	r := b.Rect()
	return r.Dx() * r.Dy()
}

// IoU returns intersection over union of two boxes
func (b BoundingBox) IoU(o BoundingBox) float64 {
	inter := b.Rect().Intersect(o.Rect())
	if inter.Empty() {
		return 0
	}
	ia := inter.Dx() * inter.Dy()
	union := b.Area() + o.Area() - ia
	if union <= 0 {
		return 0
	}
	return float64(ia) / float64(union)
}

// Object is one labelled detection
type Object struct {
	Label      string      `json:"label"`
	Confidence float64     `json:"confidence"`
	Box        BoundingBox `json:"box"`
}

// Result is the output of one detection run. It is owned by the pipeline
// while filters run and shared read-only with handlers afterwards.
type Result struct {
	ImageID ImageID           `json:"image_id"`
	Objects []Object          `json:"objects"`
	Meta    map[string]string `json:"meta,omitempty"`
	Raw     any               `json:"-"`
}

// NewResult creates an empty result for id
func NewResult(id ImageID) *Result {
	return &Result{ImageID: id, Meta: make(map[string]string)}
}

// Clone returns a copy whose object list and metadata can be edited
// without touching r.
func (r *Result) Clone() *Result {
	c := &Result{
		ImageID: r.ImageID,
		Objects: append([]Object(nil), r.Objects...),
		Meta:    make(map[string]string, len(r.Meta)),
		Raw:     r.Raw,
	}
	for k, v := range r.Meta {
		c.Meta[k] = v
	}
	return c
}

// Commit copies the objects and metadata of edited onto r, keeping r's
// identity. Keys removed from edited.Meta are removed from r.Meta.
func (r *Result) Commit(edited *Result) {
	r.Objects = edited.Objects
	if r.Meta == nil {
		r.Meta = make(map[string]string, len(edited.Meta))
	}
	for k := range r.Meta {
		if _, ok := edited.Meta[k]; !ok {
			delete(r.Meta, k)
		}
	}
	for k, v := range edited.Meta {
		r.Meta[k] = v
	}
}

// Labels returns the distinct labels in detection order
func (r *Result) Labels() []string {
	seen := make(map[string]bool, len(r.Objects))
	var out []string
	for _, o := range r.Objects {
		if !seen[o.Label] {
			seen[o.Label] = true
			out = append(out, o.Label)
		}
	}
	return out
}

// HasLabel reports whether any object carries label
func (r *Result) HasLabel(label string) bool {
	for _, o := range r.Objects {
		if o.Label == label {
			return true
		}
	}
	return false
}

// Guard runs fn for the named stage member and applies the caller's
// failure policy. A non-nil return means fn failed and was contained.
type Guard func(stage, name string, fn func() error) error
