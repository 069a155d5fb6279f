package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tendant/simple-detection-pipeline/internal/config"
	"github.com/tendant/simple-detection-pipeline/internal/dbosruntime"
	"github.com/tendant/simple-detection-pipeline/internal/dedupe"
	"github.com/tendant/simple-detection-pipeline/internal/detector/opencv"
	"github.com/tendant/simple-detection-pipeline/internal/handlers"
	"github.com/tendant/simple-detection-pipeline/internal/metrics"
	"github.com/tendant/simple-detection-pipeline/internal/platform/logger"
	"github.com/tendant/simple-detection-pipeline/internal/wiring"
	"github.com/tendant/simple-detection-pipeline/internal/workflows"
	"github.com/tendant/simple-detection-pipeline/pkg/pipeline"
)

func main() {
	cfg, err := config.Load()
	logger.Init(logger.FromEnv())
	log := logger.Named("pipeline-worker")
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DBOS is required for the worker
	dbosRuntime, err := dbosruntime.NewRuntime(ctx, dbosruntime.Config{
		DatabaseURL: cfg.DBOSDatabaseURL,
		AppName:     "pipeline-worker",
		QueueName:   cfg.DBOSQueueName,
		Concurrency: cfg.DBOSConcurrency,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize DBOS")
	}

	p, err := wiring.BuildOrRelease(cfg, wiring.Options{LocalEngine: opencv.FromConfig}, dbosRuntime)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to assemble pipeline")
	}
	defer p.Close()
	p.Start(ctx)

	// workflows must be registered before Launch
	workflowRunner := workflows.NewWorkflowRunner(dbosRuntime)
	workflowRunner.Register(pipeline.JobDetectImage, p.Workflow)
	log.Info().Str("workflow", p.Workflow.Name()).Str("job", pipeline.JobDetectImage).Msg("registered workflow")

	if err := dbosRuntime.Launch(); err != nil {
		p.Close()
		dbosRuntime.Shutdown(time.Second)
		log.Fatal().Err(err).Msg("failed to launch DBOS")
	}
	defer dbosRuntime.Shutdown(10 * time.Second)

	log.Info().
		Str("queue", dbosRuntime.QueueName()).
		Int("concurrency", dbosRuntime.Concurrency()).
		Msg("DBOS runtime initialized")

	var ledger handlers.Ledger
	if tracker, err := dedupe.NewTracker(ctx, dbosRuntime.DB()); err != nil {
		log.Warn().Err(err).Msg("dedupe ledger disabled")
	} else {
		ledger = tracker
	}

	asyncHandler := handlers.NewAsyncHandler(workflowRunner, ledger)
	routes := handlers.Routes{
		Mode:    "worker",
		Detect:  asyncHandler.HandleDetectAsync,
		Status:  asyncHandler.HandleStatus,
		Metrics: metrics.Handler(),
	}
	if p.Store != nil {
		routes.Feedback = handlers.NewFeedbackHandler(p.Store).HandleFeedback
	}

	server := &http.Server{
		Addr:              cfg.WorkerHTTPAddr,
		Handler:           handlers.NewRouter(routes),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.WorkerHTTPAddr).Msg("pipeline worker starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}
	log.Info().Msg("server stopped")
}
