// Package wiring assembles the detection pipeline from configuration.
package wiring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tendant/simple-content/pkg/simplecontent"
	"github.com/tendant/simple-content/pkg/simplecontent/presets"

	"github.com/tendant/simple-detection-pipeline/internal/annotate"
	"github.com/tendant/simple-detection-pipeline/internal/config"
	"github.com/tendant/simple-detection-pipeline/internal/denoise"
	"github.com/tendant/simple-detection-pipeline/internal/detector"
	"github.com/tendant/simple-detection-pipeline/internal/detector/remote"
	"github.com/tendant/simple-detection-pipeline/internal/dispatch"
	"github.com/tendant/simple-detection-pipeline/internal/imagesource"
	"github.com/tendant/simple-detection-pipeline/internal/notify"
	"github.com/tendant/simple-detection-pipeline/internal/platform/logger"
	"github.com/tendant/simple-detection-pipeline/internal/storage"
	"github.com/tendant/simple-detection-pipeline/internal/store"
	"github.com/tendant/simple-detection-pipeline/internal/workflows"
)

// DetectedImagePrefix is the public path prefix of annotated images
const DetectedImagePrefix = "detected_image"

// EngineFactory builds the in-process detection engine. The returned
// func releases it.
type EngineFactory func(cfg *config.Config) (detector.Engine, func(), error)

// Options carries collaborators that cannot be built from config alone
type Options struct {
	// LocalEngine is used when no DETECTOR_URL is configured
	LocalEngine EngineFactory

	// ContentService overrides the archive built from CONTENT_ARCHIVE_DIR
	ContentService simplecontent.Service
}

// Pipeline is the assembled, process-wide pipeline
type Pipeline struct {
	Config   workflows.PipelineConfig
	Workflow *workflows.DetectWorkflow
	Store    *store.Store // nil without DB_PATH

	audiences []*notify.Audience
	cleanups  []func()
}

// Build constructs every collaborator named by cfg
func Build(cfg *config.Config, opts Options) (_ *Pipeline, err error) {
	log := logger.Named("wiring")
	p := &Pipeline{}
	defer func() {
		if err != nil {
			p.Close()
		}
	}()

	// image source
	raw, err := storage.NewFilesystemStorage(cfg.RawImageFolder)
	if err != nil {
		return nil, err
	}
	source := imagesource.New(storage.NewHTTPFetcher(cfg.FetchTimeout), raw, cfg.ChannelImageURL)

	// detector
	var engine detector.Engine
	switch {
	case cfg.DetectorURL != "":
		engine = remote.New(cfg.DetectorURL, cfg.InferenceWidth, cfg.InferenceHeight, cfg.FetchTimeout)
		log.Info().Str("url", cfg.DetectorURL).Msg("using remote detector")
	case opts.LocalEngine != nil:
		e, release, err := opts.LocalEngine(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to load detection engine: %w", err)
		}
		engine = e
		p.cleanups = append(p.cleanups, release)
		log.Info().Str("model", cfg.EngineFile).Msg("using local detector")
	default:
		return nil, errors.New("no detection engine: set DETECTOR_URL or provide a local engine")
	}
	det := detector.New(engine, detector.Options{Threshold: cfg.Threshold, ValidLabels: cfg.ValidLabels})

	annotator, err := annotate.New(cfg.DetectedImageFolder, DetectedImagePrefix)
	if err != nil {
		return nil, err
	}

	// store-backed stages
	var (
		registry workflows.Registry
		recorder workflows.Recorder
		filters  []denoise.Filter
		fanout   = dispatch.New()
	)
	if cfg.DBPath != "" {
		st, err := store.Open(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		p.Store = st
		p.cleanups = append(p.cleanups, func() { st.Close() })

		registry = st
		recorder = st
		fanout.Add(store.NewResultWriter(st))
		if cfg.Denoise.Enabled {
			filters = append(filters, denoise.NewFeedbackFilter(st, denoise.FeedbackOptions{
				Window:          cfg.Denoise.Window,
				HistorySize:     cfg.Denoise.HistorySize,
				RepetitionRatio: cfg.Denoise.RepetitionRatio,
				Overlap:         cfg.Denoise.Overlap,
			}))
		}
	}
	filters = append(filters, denoise.NewMinAreaFilter(cfg.Denoise.MinBoxArea))

	// notification channels
	urls := notify.URLMapper{SiteDomain: cfg.SiteDomain}
	for _, ch := range cfg.Notify {
		var src notify.AudienceSource
		if p.Store != nil {
			src = notify.StoreSource(p.Store, ch.Name)
		}
		aud := notify.NewAudience(src, ch.Refresh, ch.Audience...)
		h, err := notify.New(notify.Options{
			Name:      ch.Name,
			Sender:    notify.NewWebhookSender(ch.URL, ch.Token, cfg.FetchTimeout),
			URLs:      urls,
			Predicate: notify.AnyLabel(ch.Labels...),
			Audience:  aud,
		})
		if err != nil {
			return nil, err
		}
		p.audiences = append(p.audiences, aud)
		fanout.Add(h)
	}

	// content archive
	svc := opts.ContentService
	if svc == nil && cfg.ContentArchiveDir != "" {
		s, cleanup, err := presets.NewDevelopment(presets.WithDevStorage(cfg.ContentArchiveDir))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize content archive: %w", err)
		}
		svc = s
		p.cleanups = append(p.cleanups, cleanup)
	}
	if svc != nil {
		var index storage.ArchiveIndex
		if p.Store != nil {
			index = p.Store
		}
		archiver, err := storage.NewArchiver(svc, index, cfg.ContentOwnerID, cfg.ContentTenantID)
		if err != nil {
			return nil, err
		}
		fanout.Add(archiver)
	}

	p.Config = workflows.PipelineConfig{
		Source:    source,
		Detector:  det,
		Annotator: annotator,
		Registry:  registry,
		Recorder:  recorder,
		Filters:   denoise.New(filters...),
		Handlers:  fanout,
	}
	p.Workflow, err = workflows.NewDetectWorkflow(p.Config)
	if err != nil {
		return nil, err
	}

	log.Info().
		Strs("filters", p.Config.Filters.Names()).
		Strs("handlers", fanout.Names()).
		Bool("store", p.Store != nil).
		Msg("pipeline assembled")
	return p, nil
}

// Runtime is the part of the queue runtime Build's callers release on failure
type Runtime interface {
	Shutdown(timeout time.Duration)
}

// BuildOrRelease is Build, shutting rt down when assembly fails
func BuildOrRelease(cfg *config.Config, opts Options, rt Runtime) (*Pipeline, error) {
	p, err := Build(cfg, opts)
	if err != nil {
		rt.Shutdown(time.Second)
		return nil, err
	}
	return p, nil
}

// Start launches background audience refreshers
func (p *Pipeline) Start(ctx context.Context) {
	for _, a := range p.audiences {
		a.Start(ctx)
	}
}

// Close stops background work and releases resources in reverse order
func (p *Pipeline) Close() {
	for _, a := range p.audiences {
		a.Stop()
	}
	for i := len(p.cleanups) - 1; i >= 0; i-- {
		if p.cleanups[i] != nil {
			p.cleanups[i]()
		}
	}
	p.cleanups = nil
}
