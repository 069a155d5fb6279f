// Package remote calls an inference server over HTTP. The image is
// resized to the inference shape before upload and the server answers
// with boxes in normalised coordinates.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/disintegration/imaging"

	"github.com/tendant/simple-detection-pipeline/internal/detection"
)

// Prediction is one entry of the server response
type Prediction struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	XMin       float64 `json:"x_min"`
	YMin       float64 `json:"y_min"`
	XMax       float64 `json:"x_max"`
	YMax       float64 `json:"y_max"`
}

// Response is the server's JSON body
type Response struct {
	Predictions []Prediction `json:"predictions"`
}

// Engine posts JPEG bytes to baseURL/v1/detect
type Engine struct {
	baseURL       string
	width, height int
	httpClient    *http.Client
}

// New creates a remote engine
func New(baseURL string, width, height int, timeout time.Duration) *Engine {
	return &Engine{
		baseURL:    baseURL,
		width:      width,
		height:     height,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Infer uploads the resized image and maps predictions back to source pixels
func (e *Engine) Infer(ctx context.Context, img *detection.Image) ([]detection.Object, any, error) {
	src, err := img.Pixels()
	if err != nil {
		return nil, nil, err
	}
	bounds := src.Bounds()

	resized := imaging.Fit(src, e.width, e.height, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return nil, nil, fmt.Errorf("failed to encode inference input: %w", err)
	}

	url := fmt.Sprintf("%s/v1/detect", e.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("inference request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, nil, fmt.Errorf("inference failed with status %d: %s", resp.StatusCode, string(body))
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, nil, fmt.Errorf("failed to decode response: %w", err)
	}

	w, h := float64(bounds.Dx()), float64(bounds.Dy())
	objects := make([]detection.Object, 0, len(out.Predictions))
	for _, p := range out.Predictions {
		objects = append(objects, detection.Object{
			Label:      p.Label,
			Confidence: p.Confidence,
			Box: detection.BoundingBox{
				XMin: bounds.Min.X + int(p.XMin*w),
				YMin: bounds.Min.Y + int(p.YMin*h),
				XMax: bounds.Min.X + int(p.XMax*w),
				YMax: bounds.Min.Y + int(p.YMax*h),
			},
		})
	}

	return objects, out, nil
}
