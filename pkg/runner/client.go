package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/tendant/simple-detection-pipeline/internal/dbosruntime"
	"github.com/tendant/simple-detection-pipeline/internal/workflows"
	"github.com/tendant/simple-detection-pipeline/pkg/pipeline"
)

// Client enqueues detection jobs without executing them.
// Workers must be running separately to execute the enqueued jobs.
type Client struct {
	runtime *dbosruntime.Runtime
	runner  *workflows.WorkflowRunner
}

// NewClient creates an enqueue-only client
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	dbosRuntime, err := dbosruntime.NewRuntime(ctx, dbosruntime.Config{
		DatabaseURL:        cfg.DatabaseURL,
		AppName:            cfg.AppName,
		QueueName:          cfg.QueueName,
		ApplicationVersion: cfg.ApplicationVersion,
		Concurrency:        0,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize DBOS: %w", err)
	}

	// registers the workflow function so RunAsync can reference it, but no
	// job is bound, so nothing executes here
	workflowRunner := workflows.NewWorkflowRunner(dbosRuntime)

	if err := dbosRuntime.Launch(); err != nil {
		return nil, fmt.Errorf("failed to launch DBOS: %w", err)
	}

	return &Client{
		runtime: dbosRuntime,
		runner:  workflowRunner,
	}, nil
}

// Detect enqueues a detection job for workers to execute
func (c *Client) Detect(ctx context.Context, channel string, timestamp int64) (string, error) {
	return c.runner.RunAsync(ctx, pipeline.DetectRequest{
		Channel:   channel,
		Timestamp: timestamp,
	})
}

// DetectRequest enqueues a fully specified job
func (c *Client) DetectRequest(ctx context.Context, req pipeline.DetectRequest) (string, error) {
	return c.runner.RunAsync(ctx, req)
}

// Status reports the state of a run
func (c *Client) Status(ctx context.Context, runID string) (*workflows.WorkflowStatus, error) {
	return c.runner.GetStatus(ctx, runID)
}

// Shutdown gracefully shuts down the client
func (c *Client) Shutdown(timeout time.Duration) {
	if c.runtime != nil {
		c.runtime.Shutdown(timeout)
	}
}
