package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tendant/simple-detection-pipeline/internal/dbosruntime"
	"github.com/tendant/simple-detection-pipeline/internal/platform/logger"
	"github.com/tendant/simple-detection-pipeline/internal/workflows"
	"github.com/tendant/simple-detection-pipeline/pkg/pipeline"
)

// AsyncRunner enqueues jobs and reports their status
type AsyncRunner interface {
	RunAsync(ctx context.Context, req pipeline.DetectRequest) (string, error)
	GetStatus(ctx context.Context, runID string) (*workflows.WorkflowStatus, error)
}

// Ledger counts repeated submissions of an image
type Ledger interface {
	Record(ctx context.Context, imageID string, job string, jobVersion int) (int, error)
}

// JobVersion is recorded in the dedupe ledger
const JobVersion = 1

// AsyncHandler handles asynchronous detection requests
type AsyncHandler struct {
	runner AsyncRunner
	ledger Ledger
}

// NewAsyncHandler creates a new async handler. ledger may be nil.
func NewAsyncHandler(runner AsyncRunner, ledger Ledger) *AsyncHandler {
	return &AsyncHandler{runner: runner, ledger: ledger}
}

// HandleDetectAsync handles POST /v1/detect - enqueues the job and returns immediately
func (h *AsyncHandler) HandleDetectAsync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, ok := decodeDetectRequest(w, r)
	if !ok {
		return
	}
	log := logger.C(r.Context())

	seen := 0
	if h.ledger != nil {
		n, err := h.ledger.Record(r.Context(), imageKey(req), req.Job, JobVersion)
		if err != nil {
			// the ledger is informational, a failure must not block the job
			log.Warn().Err(err).Msg("dedupe ledger unavailable")
		}
		seen = n
	}

	runID, err := h.runner.RunAsync(r.Context(), req)
	if err != nil {
		log.Error().Err(err).Str("channel", req.Channel).Msg("failed to enqueue job")
		writeError(w, http.StatusInternalServerError, "failed to enqueue job")
		return
	}

	log.Info().Str("run_id", runID).Str("channel", req.Channel).Int64("timestamp", req.Timestamp).
		Int("dedupe_seen_count", seen).Msg("job enqueued")

	writeJSON(w, http.StatusAccepted, pipeline.DetectResponse{
		RunID:           runID,
		DedupeSeenCount: seen,
	})
}

// HandleStatus handles GET /v1/runs/{runID}
func (h *AsyncHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	runID := chi.URLParam(r, "runID")
	if runID == "" {
		runID = strings.TrimPrefix(r.URL.Path, "/v1/runs/")
	}
	if runID == "" || strings.Contains(runID, "/") {
		writeError(w, http.StatusBadRequest, "run_id is required")
		return
	}

	status, err := h.runner.GetStatus(r.Context(), runID)
	switch {
	case errors.Is(err, dbosruntime.ErrRunNotFound):
		writeError(w, http.StatusNotFound, "run not found")
		return
	case errors.Is(err, workflows.ErrStatusUnavailable):
		writeError(w, http.StatusNotImplemented, err.Error())
		return
	case err != nil:
		logger.C(r.Context()).Error().Err(err).Str("run_id", runID).Msg("failed to get run status")
		writeError(w, http.StatusInternalServerError, "failed to get run status")
		return
	}

	writeJSON(w, http.StatusOK, status)
}
