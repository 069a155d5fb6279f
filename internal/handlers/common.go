// Package handlers exposes the pipeline over HTTP
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tendant/simple-detection-pipeline/internal/detection"
	"github.com/tendant/simple-detection-pipeline/internal/workflows"
	"github.com/tendant/simple-detection-pipeline/pkg/pipeline"
)

// maxBodyBytes bounds request bodies
const maxBodyBytes = 1 << 20

// HandleHealth returns health status
func HandleHealth(mode string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"mode":   mode,
		})
	}
}

// decodeDetectRequest parses, defaults and validates a job. On failure
// the response has already been written.
func decodeDetectRequest(w http.ResponseWriter, r *http.Request) (pipeline.DetectRequest, bool) {
	var req pipeline.DetectRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return req, false
	}
	req = req.WithDefaults(time.Now())
	if err := validateDetectRequest(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return req, false
	}
	return req, true
}

func validateDetectRequest(req pipeline.DetectRequest) error {
	if err := validateStruct(req); err != nil {
		return err
	}
	if strings.Contains(req.Channel, "..") {
		return fmt.Errorf("%w: channel must be a plain name", workflows.ErrInvalidRequest)
	}
	return nil
}

func imageKey(req pipeline.DetectRequest) string {
	return detection.NewImageID(req.Channel, req.Timestamp, "").String()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
