package workflows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dbos-inc/dbos-transact-golang/dbos"

	"github.com/tendant/simple-detection-pipeline/internal/dbosruntime"
	"github.com/tendant/simple-detection-pipeline/internal/detection"
	"github.com/tendant/simple-detection-pipeline/internal/platform/logger"
	"github.com/tendant/simple-detection-pipeline/pkg/pipeline"
)

// WorkflowContext contains context for workflow execution
type WorkflowContext struct {
	Ctx     context.Context
	Request pipeline.DetectRequest
	RunID   string
}

// WorkflowResult contains the result of workflow execution. It is
// persisted by DBOS, so it only carries serialisable fields.
type WorkflowResult struct {
	Success        bool               `json:"success"`
	Error          string             `json:"error,omitempty"`
	ImageID        string             `json:"image_id,omitempty"`
	Objects        []detection.Object `json:"objects,omitempty"`
	DrawnImagePath string             `json:"drawn_image_path,omitempty"`
	Failures       int                `json:"contained_failures"`
}

// Workflow defines the interface for processing workflows
type Workflow interface {
	// Execute runs the workflow
	Execute(wctx *WorkflowContext) (*WorkflowResult, error)

	// Name returns the workflow name
	Name() string
}

// WorkflowRunner executes workflows
type WorkflowRunner struct {
	workflows   map[string]Workflow
	dbosRuntime *dbosruntime.Runtime
}

// NewWorkflowRunner creates a workflow runner. With a nil runtime only
// synchronous Run is available.
func NewWorkflowRunner(dbosRuntime *dbosruntime.Runtime) *WorkflowRunner {
	runner := &WorkflowRunner{
		workflows:   make(map[string]Workflow),
		dbosRuntime: dbosRuntime,
	}

	if dbosRuntime != nil {
		dbos.RegisterWorkflow(dbosRuntime.Context(), runner.executeWorkflowDBOS)
	}

	return runner
}

// Register registers a workflow
func (r *WorkflowRunner) Register(job string, workflow Workflow) {
	r.workflows[job] = workflow
}

// Run executes a workflow synchronously
func (r *WorkflowRunner) Run(wctx *WorkflowContext) (*WorkflowResult, error) {
	wctx.Request = wctx.Request.WithDefaults(time.Now())
	workflow, ok := r.workflows[wctx.Request.Job]
	if !ok {
		return &WorkflowResult{Error: ErrWorkflowNotFound.Error()}, ErrWorkflowNotFound
	}
	return workflow.Execute(wctx)
}

// RunAsync enqueues a job on the DBOS queue and returns its run ID
func (r *WorkflowRunner) RunAsync(ctx context.Context, req pipeline.DetectRequest) (string, error) {
	// defaults are fixed at enqueue time so a redelivered job keeps its timestamp
	req = req.WithDefaults(time.Now())
	if err := validateRequest(req); err != nil {
		return "", err
	}
	if r.dbosRuntime == nil {
		return "", errors.New("DBOS runtime not initialized")
	}
	id := detection.NewImageID(req.Channel, req.Timestamp, "")
	workflowID := fmt.Sprintf("%s-%s-%d", req.Job, id, time.Now().UnixNano())

	handle, err := dbos.RunWorkflow[pipeline.DetectRequest, *WorkflowResult](
		r.dbosRuntime.Context(),
		r.executeWorkflowDBOS,
		req,
		dbos.WithWorkflowID(workflowID),
		dbos.WithQueue(r.dbosRuntime.QueueName()),
	)
	if err != nil {
		return "", err
	}

	return handle.GetWorkflowID(), nil
}

// executeWorkflowDBOS is the DBOS workflow function that wraps registered workflows
func (r *WorkflowRunner) executeWorkflowDBOS(dbosCtx dbos.DBOSContext, req pipeline.DetectRequest) (*WorkflowResult, error) {
	workflow, ok := r.workflows[req.Job]
	if !ok {
		return &WorkflowResult{Error: ErrWorkflowNotFound.Error()}, ErrWorkflowNotFound
	}

	workflowID, err := dbosCtx.GetWorkflowID()
	if err != nil {
		return &WorkflowResult{Error: err.Error()}, err
	}

	return workflow.Execute(&WorkflowContext{
		Ctx:     dbosCtx,
		Request: req,
		RunID:   workflowID,
	})
}

// WorkflowStatus represents the status of a workflow execution
type WorkflowStatus struct {
	RunID     string    `json:"run_id"`
	State     string    `json:"state"`
	Workflow  string    `json:"workflow,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GetStatus retrieves the status of a queued run
func (r *WorkflowRunner) GetStatus(ctx context.Context, runID string) (*WorkflowStatus, error) {
	if r.dbosRuntime == nil {
		return nil, ErrStatusUnavailable
	}

	info, err := r.dbosRuntime.GetWorkflowStatus(ctx, runID)
	if err != nil {
		return nil, err
	}

	logger.C(ctx).Debug().Str("run_id", runID).Str("state", info.Status).Msg("status lookup")
	return &WorkflowStatus{
		RunID:     info.WorkflowUUID,
		State:     info.Status,
		Workflow:  info.Name,
		Error:     info.Error,
		CreatedAt: info.CreatedAt,
		UpdatedAt: info.UpdatedAt,
	}, nil
}
