// Package runner embeds the detection pipeline in another Go program,
// either executing jobs (Runner) or only enqueueing them (Client).
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/tendant/simple-detection-pipeline/internal/config"
	"github.com/tendant/simple-detection-pipeline/internal/dbosruntime"
	"github.com/tendant/simple-detection-pipeline/internal/wiring"
	"github.com/tendant/simple-detection-pipeline/internal/workflows"
	"github.com/tendant/simple-detection-pipeline/pkg/pipeline"
)

// Config holds the configuration for initializing the pipeline runner
type Config struct {
	DatabaseURL        string // DBOS PostgreSQL connection string
	AppName            string // Application name for DBOS
	QueueName          string // DBOS queue name
	Concurrency        int    // Number of concurrent workers
	ApplicationVersion string // Optional: Override binary hash for version matching

	// Pipeline is the detection configuration, usually from config.Load
	Pipeline *config.Config
	// LocalEngine builds the in-process engine when Pipeline.DetectorURL is empty
	LocalEngine wiring.EngineFactory
}

// Runner executes detection jobs from the DBOS queue
type Runner struct {
	runtime  *dbosruntime.Runtime
	runner   *workflows.WorkflowRunner
	pipeline *wiring.Pipeline
}

// New assembles the pipeline, registers it with DBOS and launches workers
func New(ctx context.Context, cfg Config) (*Runner, error) {
	if cfg.Pipeline == nil {
		return nil, fmt.Errorf("%w: pipeline configuration is required", workflows.ErrInvalidRequest)
	}

	dbosRuntime, err := dbosruntime.NewRuntime(ctx, dbosruntime.Config{
		DatabaseURL:        cfg.DatabaseURL,
		AppName:            cfg.AppName,
		QueueName:          cfg.QueueName,
		Concurrency:        cfg.Concurrency,
		ApplicationVersion: cfg.ApplicationVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize DBOS: %w", err)
	}

	p, err := wiring.BuildOrRelease(cfg.Pipeline, wiring.Options{LocalEngine: cfg.LocalEngine}, dbosRuntime)
	if err != nil {
		return nil, err
	}

	workflowRunner := workflows.NewWorkflowRunner(dbosRuntime)
	workflowRunner.Register(pipeline.JobDetectImage, p.Workflow)

	// Launch DBOS (must be after workflow registration)
	if err := dbosRuntime.Launch(); err != nil {
		p.Close()
		dbosRuntime.Shutdown(time.Second)
		return nil, fmt.Errorf("failed to launch DBOS: %w", err)
	}
	p.Start(ctx)

	return &Runner{
		runtime:  dbosRuntime,
		runner:   workflowRunner,
		pipeline: p,
	}, nil
}

// Detect enqueues a detection job
func (r *Runner) Detect(ctx context.Context, req pipeline.DetectRequest) (string, error) {
	return r.runner.RunAsync(ctx, req)
}

// Status reports the state of a run
func (r *Runner) Status(ctx context.Context, runID string) (*workflows.WorkflowStatus, error) {
	return r.runner.GetStatus(ctx, runID)
}

// Shutdown gracefully shuts down the pipeline runner
func (r *Runner) Shutdown(timeout time.Duration) {
	if r.runtime != nil {
		r.runtime.Shutdown(timeout)
	}
	if r.pipeline != nil {
		r.pipeline.Close()
	}
}
