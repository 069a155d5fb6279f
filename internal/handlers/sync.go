package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/tendant/simple-detection-pipeline/internal/platform/logger"
	"github.com/tendant/simple-detection-pipeline/internal/workflows"
	"github.com/tendant/simple-detection-pipeline/pkg/pipeline"
)

// SyncRunner executes a job in the calling goroutine
type SyncRunner interface {
	Run(wctx *workflows.WorkflowContext) (*workflows.WorkflowResult, error)
}

// SyncResponse is returned by the standalone endpoint
type SyncResponse struct {
	pipeline.DetectResponse
	Result *workflows.WorkflowResult `json:"result"`
}

// SyncHandler runs detection jobs inline, for standalone deployments
type SyncHandler struct {
	runner SyncRunner
}

// NewSyncHandler creates a SyncHandler
func NewSyncHandler(runner SyncRunner) *SyncHandler {
	return &SyncHandler{runner: runner}
}

// HandleDetect handles POST /v1/detect by running the job to completion
func (h *SyncHandler) HandleDetect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, ok := decodeDetectRequest(w, r)
	if !ok {
		return
	}

	runID := uuid.New().String()
	ctx := logger.WithRun(r.Context(), runID)

	result, err := h.runner.Run(&workflows.WorkflowContext{Ctx: ctx, Request: req, RunID: runID})
	if err != nil {
		logger.C(ctx).Error().Err(err).Msg("job failed")
		writeJSON(w, http.StatusBadGateway, SyncResponse{
			DetectResponse: pipeline.DetectResponse{RunID: runID},
			Result:         result,
		})
		return
	}

	writeJSON(w, http.StatusOK, SyncResponse{
		DetectResponse: pipeline.DetectResponse{RunID: runID},
		Result:         result,
	})
}
