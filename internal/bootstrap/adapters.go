package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/briefcast/briefcast-go/config"
	"github.com/briefcast/briefcast-go/internal/adapters/extractor"
	"github.com/briefcast/briefcast-go/internal/adapters/reaper"
	"github.com/briefcast/briefcast-go/internal/adapters/slacknotify"
	"github.com/briefcast/briefcast-go/internal/adapters/speech"
	"github.com/briefcast/briefcast-go/internal/adapters/storage"
	"github.com/briefcast/briefcast-go/internal/adapters/summarizer"
	"github.com/briefcast/briefcast-go/internal/adapters/worker"
	"github.com/briefcast/briefcast-go/internal/core"
	"github.com/briefcast/briefcast-go/internal/observability/statsd"
	"github.com/briefcast/briefcast-go/internal/service"
)

// pipelineStages bundles the adapters behind the five pipeline stages.
type pipelineStages struct {
	Extractor  core.ContentExtractor
	Summarizer core.Summarizer
	Speech     core.SpeechRenderer
	Store      core.BlobStore
	Notifier   core.BriefNotifier

	// AudioDir and AudioURLPrefix are populated for the local storage driver.
	AudioDir       string
	AudioURLPrefix string
}

// buildPipelineStages constructs the external-service adapters the pipeline
// depends on. It fails when a required credential is missing.
func buildPipelineStages(cfg *config.AppConfig, logger *slog.Logger) (*pipelineStages, error) {
	if cfg == nil {
		return nil, errors.New("app config is required")
	}

	extract, err := extractor.New(extractor.Options{
		Config: cfg.Extraction,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create extractor: %w", err)
	}

	summarize, err := summarizer.New(summarizer.Options{
		Config: cfg.Summarize,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create summarizer: %w", err)
	}

	// Speech reuses the summarization credential; both stages talk to the
	// same upstream account.
	render, err := speech.New(speech.Options{
		Config: cfg.Speech,
		APIKey: cfg.Summarize.APIKey,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create speech renderer: %w", err)
	}

	stages := &pipelineStages{
		Extractor:  extract,
		Summarizer: summarize,
		Speech:     render,
	}

	if err := buildBlobStore(cfg, logger, stages); err != nil {
		return nil, err
	}

	notifier, err := slacknotify.New(slacknotify.Options{
		Config: cfg.Notify,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create notifier: %w", err)
	}
	stages.Notifier = notifier

	return stages, nil
}

func buildBlobStore(cfg *config.AppConfig, logger *slog.Logger, stages *pipelineStages) error {
	switch cfg.Storage.Driver {
	case config.StorageDriverS3:
		store, err := storage.NewS3Store(storage.S3StoreOptions{
			Config: cfg.Storage,
			Logger: logger,
			Secure: !cfg.IsDev,
		})
		if err != nil {
			return fmt.Errorf("create s3 store: %w", err)
		}
		stages.Store = store
	default:
		store, err := storage.NewLocalStore(storage.LocalStoreOptions{
			Dir:       cfg.Storage.LocalDir,
			URLPrefix: cfg.Storage.LocalURLPrefix,
			Logger:    logger,
		})
		if err != nil {
			return fmt.Errorf("create local store: %w", err)
		}
		stages.Store = store
		stages.AudioDir = store.Dir()
		stages.AudioURLPrefix = store.URLPrefix()
	}
	return nil
}

// WorkerRunConfig contains configuration for the link worker loop.
type WorkerRunConfig struct {
	Queue       *service.QueueService
	Pipeline    *service.PipelineService
	Logger      *slog.Logger
	Metrics     statsd.Sink
	Lease       time.Duration
	Concurrency int
	JobTimeout  time.Duration
}

// RunWorker runs the link job worker until the context is cancelled.
func RunWorker(ctx context.Context, cfg WorkerRunConfig) error {
	runner, err := worker.NewRunner(worker.RunnerOptions{
		Queue:       cfg.Queue,
		Pipeline:    cfg.Pipeline,
		Logger:      cfg.Logger,
		Metrics:     cfg.Metrics,
		Lease:       cfg.Lease,
		Concurrency: cfg.Concurrency,
		JobTimeout:  cfg.JobTimeout,
	})
	if err != nil {
		return fmt.Errorf("wire worker: %w", err)
	}
	return runner.Run(ctx)
}

// ReaperRunConfig contains configuration for the reaper loop.
type ReaperRunConfig struct {
	DB      *sql.DB
	Logger  *slog.Logger
	Config  config.ReaperConfig
	Metrics statsd.Sink
}

// RunReaper runs the job reaper until the context is cancelled.
func RunReaper(ctx context.Context, cfg ReaperRunConfig) error {
	runner, err := reaper.NewRunner(reaper.RunnerOptions{
		DB:      cfg.DB,
		Config:  cfg.Config,
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("wire reaper: %w", err)
	}
	return runner.Run(ctx)
}

func newWorkerBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeWorker,
		name: "link worker",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil {
				return nil
			}
			if deps.cfg.Services.Pipeline == nil {
				return errors.New("link worker requires the pipeline stages")
			}
			workerCfg := config.WorkerConfig{}
			if deps.cfg.Config != nil {
				workerCfg = deps.cfg.Config.Worker
			}
			return RunWorker(ctx, WorkerRunConfig{
				Queue:       deps.cfg.Services.Queue,
				Pipeline:    deps.cfg.Services.Pipeline,
				Logger:      deps.logger,
				Metrics:     deps.cfg.Services.Observability.MetricsSink,
				Lease:       workerCfg.JobLease,
				Concurrency: workerCfg.Concurrency,
				JobTimeout:  workerCfg.JobTimeout,
			})
		},
	}
}

func newReaperBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeReaper,
		name: "reaper",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil {
				return nil
			}
			var reaperCfg config.ReaperConfig
			if deps.cfg.Config != nil {
				reaperCfg = deps.cfg.Config.Reaper
			}
			return RunReaper(ctx, ReaperRunConfig{
				DB:      deps.cfg.DB,
				Logger:  deps.logger,
				Config:  reaperCfg,
				Metrics: deps.cfg.Services.Observability.MetricsSink,
			})
		},
	}
}
