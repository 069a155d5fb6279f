package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tendant/simple-detection-pipeline/internal/detection"
	"github.com/tendant/simple-detection-pipeline/internal/platform/logger"
	"github.com/tendant/simple-detection-pipeline/internal/store"
	"github.com/tendant/simple-detection-pipeline/pkg/pipeline"
)

// FeedbackRecorder stores reviewer feedback
type FeedbackRecorder interface {
	RecordFalseAlert(ctx context.Context, fa store.FalseAlert) error
}

// FeedbackHandler accepts false-alert reports consulted by the denoise chain
type FeedbackHandler struct {
	recorder FeedbackRecorder
}

// NewFeedbackHandler creates a FeedbackHandler
func NewFeedbackHandler(recorder FeedbackRecorder) *FeedbackHandler {
	return &FeedbackHandler{recorder: recorder}
}

// HandleFeedback handles POST /v1/feedback
func (h *FeedbackHandler) HandleFeedback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req pipeline.FeedbackRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if err := validateStruct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	box := detection.BoundingBox{XMin: req.XMin, YMin: req.YMin, XMax: req.XMax, YMax: req.YMax}
	if req.ReportedAt == 0 {
		req.ReportedAt = time.Now().Unix()
	}

	fa := store.FalseAlert{Channel: req.Channel, Label: req.Label, Box: box, ReportedAt: req.ReportedAt}
	if err := h.recorder.RecordFalseAlert(r.Context(), fa); err != nil {
		logger.C(r.Context()).Error().Err(err).Msg("failed to record feedback")
		writeError(w, http.StatusInternalServerError, "failed to record feedback")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"status": "recorded"})
}
