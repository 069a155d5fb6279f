// Package opencv runs SSD-style detection networks through OpenCV's DNN
// module. It needs OpenCV at build time, so only the worker binaries
// import it.
package opencv

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/tendant/simple-detection-pipeline/internal/config"
	"github.com/tendant/simple-detection-pipeline/internal/detection"
	"github.com/tendant/simple-detection-pipeline/internal/detector"
)

// Engine wraps a gocv.Net. The network is not safe for concurrent
// Forward calls, so inference is serialised.
type Engine struct {
	mu    sync.Mutex
	net   gocv.Net
	shape image.Point
}

// New loads the model/config pair and prepares a CPU backend
func New(modelPath, configPath string, width, height int) (*Engine, error) {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", modelPath)
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}

	net := gocv.ReadNet(modelPath, configPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load network from %s", modelPath)
	}
	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return nil, fmt.Errorf("failed to set preferable backend or target")
	}

	return &Engine{net: net, shape: image.Pt(width, height)}, nil
}

// Close releases the network
func (e *Engine) Close() error {
	return e.net.Close()
}

// Infer runs the network on the image file. Every candidate row is
// returned; thresholding happens in detector.Filtered.
func (e *Engine) Infer(ctx context.Context, img *detection.Image) ([]detection.Object, any, error) {
	mat := gocv.IMRead(img.RawPath, gocv.IMReadColor)
	defer mat.Close()
	if mat.Empty() {
		return nil, nil, fmt.Errorf("failed to read image %s", img.RawPath)
	}

	blob := gocv.BlobFromImage(mat, 1.0/127.5, e.shape, gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	e.mu.Lock()
	e.net.SetInput(blob, "")
	output := e.net.Forward("")
	e.mu.Unlock()
	defer output.Close()

	// rows are [batch_id, class_id, confidence, x1, y1, x2, y2], coordinates normalised
	rows := output.Reshape(1, output.Total()/7)
	defer rows.Close()

	cols, height := float32(mat.Cols()), float32(mat.Rows())
	objects := make([]detection.Object, 0, rows.Rows())
	for i := 0; i < rows.Rows(); i++ {
		classID := int(rows.GetFloatAt(i, 1))
		objects = append(objects, detection.Object{
			Label:      detector.ClassLabel(classID),
			Confidence: float64(rows.GetFloatAt(i, 2)),
			Box: detection.BoundingBox{
				XMin: int(rows.GetFloatAt(i, 3) * cols),
				YMin: int(rows.GetFloatAt(i, 4) * height),
				XMax: int(rows.GetFloatAt(i, 5) * cols),
				YMax: int(rows.GetFloatAt(i, 6) * height),
			},
		})
	}

	return objects, nil, nil
}

// FromConfig loads the engine named by ENGINE_FILE/ENGINE_CONFIG
func FromConfig(cfg *config.Config) (detector.Engine, func(), error) {
	e, err := New(cfg.EngineFile, cfg.EngineConfig, cfg.InferenceWidth, cfg.InferenceHeight)
	if err != nil {
		return nil, nil, err
	}
	return e, func() { e.Close() }, nil
}
