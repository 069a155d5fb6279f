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
	"github.com/tendant/simple-detection-pipeline/internal/detector/opencv"
	"github.com/tendant/simple-detection-pipeline/internal/handlers"
	"github.com/tendant/simple-detection-pipeline/internal/metrics"
	"github.com/tendant/simple-detection-pipeline/internal/platform/logger"
	"github.com/tendant/simple-detection-pipeline/internal/wiring"
	"github.com/tendant/simple-detection-pipeline/internal/workflows"
	"github.com/tendant/simple-detection-pipeline/pkg/pipeline"
)

// Standalone detection server for local runs: jobs execute inline on the
// request goroutine, no DBOS or postgres needed.
func main() {
	cfg, err := config.Load()
	logger.Init(logger.FromEnv())
	log := logger.Named("pipeline-standalone")
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := wiring.Build(cfg, wiring.Options{LocalEngine: opencv.FromConfig})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to assemble pipeline")
	}
	defer p.Close()
	p.Start(ctx)

	workflowRunner := workflows.NewWorkflowRunner(nil)
	workflowRunner.Register(pipeline.JobDetectImage, p.Workflow)

	routes := handlers.Routes{
		Mode:    "standalone",
		Detect:  handlers.NewSyncHandler(workflowRunner).HandleDetect,
		Metrics: metrics.Handler(),
	}
	if p.Store != nil {
		routes.Feedback = handlers.NewFeedbackHandler(p.Store).HandleFeedback
	}

	server := &http.Server{
		Addr:              cfg.PipelineHTTPAddr,
		Handler:           handlers.NewRouter(routes),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", cfg.PipelineHTTPAddr).
			Str("raw_image_folder", cfg.RawImageFolder).
			Str("detected_image_folder", cfg.DetectedImageFolder).
			Bool("store", p.Store != nil).
			Msg("standalone pipeline ready")
		log.Info().Msg(`quick test: curl -X POST localhost` + cfg.PipelineHTTPAddr + `/v1/detect -d '{"channel":"demo"}'`)
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
