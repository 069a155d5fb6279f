package remote

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-detection-pipeline/internal/detection"
)

func TestInfer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/detect", r.URL.Path)
		assert.Equal(t, "image/jpeg", r.Header.Get("Content-Type"))

		in, err := imaging.Decode(r.Body)
		if !assert.NoError(t, err) {
			return
		}
		assert.LessOrEqual(t, in.Bounds().Dx(), 50)

		json.NewEncoder(w).Encode(Response{Predictions: []Prediction{
			{Label: "person", Confidence: 0.9, XMin: 0.1, YMin: 0.1, XMax: 0.5, YMax: 0.5},
		}})
	}))
	defer srv.Close()

	px := imaging.New(100, 100, color.NRGBA{0, 0, 0, 255})
	img := detection.NewImageFromPixels(detection.NewImageID("demo", 1, ""), "", px)

	objs, raw, err := New(srv.URL, 50, 50, time.Second).Infer(context.Background(), img)
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Equal(t, detection.BoundingBox{XMin: 10, YMin: 10, XMax: 50, YMax: 50}, objs[0].Box)
	assert.IsType(t, Response{}, raw)
}

func TestInfer_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	img := detection.NewImageFromPixels(detection.NewImageID("demo", 1, ""), "", image.NewNRGBA(image.Rect(0, 0, 10, 10)))
	_, _, err := New(srv.URL, 10, 10, time.Second).Infer(context.Background(), img)
	assert.ErrorContains(t, err, "503")
}
