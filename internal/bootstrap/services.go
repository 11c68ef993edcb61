// Package bootstrap wires configuration, storage, adapters and services into
// runnable processes. It owns startup order and graceful shutdown; business
// rules live in the service and domain packages.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/briefcast/briefcast-go/config"
	"github.com/briefcast/briefcast-go/internal/core"
	"github.com/briefcast/briefcast-go/internal/data"
	"github.com/briefcast/briefcast-go/internal/observability/notify/pagerduty"
	"github.com/briefcast/briefcast-go/internal/observability/notify/slack"
	"github.com/briefcast/briefcast-go/internal/observability/statsd"
	"github.com/briefcast/briefcast-go/internal/service"
	"github.com/briefcast/briefcast-go/internal/service/failurenotifier"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Queue         *service.QueueService
	Pipeline      *service.PipelineService
	Fallback      *service.FallbackService
	Observability ObservabilityContainer

	// AudioDir and AudioURLPrefix are set when the local storage driver is
	// active so the HTTP server can serve rendered audio directly.
	AudioDir       string
	AudioURLPrefix string
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink     *statsd.Client
	MetricsConfig   config.ObservabilityMetricsConfig
	FailureNotifier *failurenotifier.Service
	NotifierConfig  config.ObservabilityNotificationsConfig
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// serviceRepositories groups data adapters backing service ports.
type serviceRepositories struct {
	DB          *sql.DB
	Redis       redis.UniversalClient
	JobRepo     *data.JobRepo
	RecordRepo  *data.RecordRepo
	ChannelRepo *data.ChannelRepo
	CacheRepo   *data.RedisCacheRepo
}

// buildObservability configures metrics and notification adapters.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var metricsSink *statsd.Client
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  "briefcast",
			Logger:  obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	failureNotifier := buildFailureNotifier(obsLogger, cfg.Notifications)

	return ObservabilityContainer{
		MetricsSink:     metricsSink,
		MetricsConfig:   cfg.Metrics,
		FailureNotifier: failureNotifier,
		NotifierConfig:  cfg.Notifications,
	}
}

func buildFailureNotifier(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) *failurenotifier.Service {
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = slog.Default()
	}

	if !cfg.Enabled {
		return failurenotifier.NewService(failurenotifier.Options{
			Logger: baseLogger.With("component", "failure_notifier"),
		})
	}

	sinks := make([]failurenotifier.SinkRegistration, 0, 2)

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL:      cfg.Slack.WebhookURL,
			Channel:         cfg.Slack.Channel,
			Username:        cfg.Slack.Username,
			Timeout:         cfg.Timeout,
			RetryLimit:      cfg.RetryLimit,
			RecordURLPrefix: cfg.Slack.RecordURLPrefix,
		})
		if err != nil {
			baseLogger.Warn("disabling slack failure notifications", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{
				Name: "slack",
				Sink: client,
			})
		}
	}

	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			baseLogger.Warn("disabling pagerduty failure notifications", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{
				Name: "pagerduty",
				Sink: client,
			})
		}
	}

	return failurenotifier.NewService(failurenotifier.Options{
		Logger: baseLogger.With("component", "failure_notifier"),
		Sinks:  sinks,
	})
}

// buildRepositories builds repositories backing service ports; no business rules here.
func buildRepositories(deps ServiceDeps) *serviceRepositories {
	repoCfg := data.RepoConfig{Logger: deps.Logger}
	if deps.Config != nil {
		repoCfg.RetryBackoffBaseSeconds = int(deps.Config.Worker.RetryBackoffBase / time.Second)
	}

	repos := &serviceRepositories{
		DB:          deps.DB,
		Redis:       deps.RedisClient,
		JobRepo:     data.NewJobRepo(deps.DB, repoCfg),
		RecordRepo:  data.NewRecordRepo(deps.DB),
		ChannelRepo: data.NewChannelRepo(deps.DB),
	}
	if deps.RedisClient != nil {
		repos.CacheRepo = data.NewRedisCacheRepo(deps.RedisClient)
	}
	return repos
}

func newExtractionCacheService(repos *serviceRepositories, cfg config.CacheConfig) *core.ExtractionCacheService {
	if repos.CacheRepo == nil || !cfg.Enabled {
		return nil
	}
	cacheCfg := core.DefaultExtractionCacheConfig()
	if cfg.ExtractionTTL > 0 {
		cacheCfg.TTL = cfg.ExtractionTTL
	}
	return core.NewExtractionCacheService(core.ExtractionCacheServiceOptions{
		Cache:  repos.CacheRepo,
		Config: cacheCfg,
	})
}

func newQueueService(deps ServiceDeps, repos *serviceRepositories, observability ObservabilityContainer) (*service.QueueService, error) {
	workerCfg := config.WorkerConfig{}
	reaperCfg := config.ReaperConfig{}
	if deps.Config != nil {
		workerCfg = deps.Config.Worker
		reaperCfg = deps.Config.Reaper
	}

	lease := workerCfg.JobLease
	if lease <= 0 {
		lease = 90 * time.Second
	}

	var cache core.CacheRepository
	if repos.CacheRepo != nil {
		cache = repos.CacheRepo
	}

	return service.NewQueueService(service.QueueServiceOptions{
		Repo:            repos.JobRepo,
		DefaultLease:    lease,
		Cache:           cache,
		Reaper:          repos.JobRepo,
		KeepCompleted:   reaperCfg.KeepCompleted,
		KeepFailed:      reaperCfg.KeepFailed,
		Logger:          deps.Logger,
		Metrics:         observability.MetricsSink,
		FailureNotifier: observability.FailureNotifier,
		MaxRetries:      workerCfg.MaxAttempts,
	})
}

func newPipelineService(
	deps ServiceDeps,
	repos *serviceRepositories,
	stages *pipelineStages,
	observability ObservabilityContainer,
) (*service.PipelineService, error) {
	maxWords := 0
	cacheCfg := config.CacheConfig{}
	if deps.Config != nil {
		maxWords = deps.Config.Summarize.MaxWords
		cacheCfg = deps.Config.Cache
	}

	return service.NewPipelineService(service.PipelineServiceOptions{
		Records:         repos.RecordRepo,
		Channels:        repos.ChannelRepo,
		Extractor:       stages.Extractor,
		Summarizer:      stages.Summarizer,
		Speech:          stages.Speech,
		Store:           stages.Store,
		Notifier:        stages.Notifier,
		ExtractionCache: newExtractionCacheService(repos, cacheCfg),
		Logger:          deps.Logger,
		Metrics:         observability.MetricsSink,
		MaxSummaryWords: maxWords,
	})
}

// NewServices initializes all application services.
//
// The pipeline and fallback executor need stage adapter credentials
// (extraction, summarization, speech, notification). When the worker service
// is disabled and those credentials are missing, the process still starts;
// the HTTP API then has no direct execution path and enqueue failures
// surface to callers instead of degrading.
func NewServices(deps ServiceDeps) (ServiceContainer, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if deps.DB == nil {
		return ServiceContainer{}, errors.New("database connection is required")
	}

	var obsCfg config.ObservabilityConfig
	workerEnabled := false
	if deps.Config != nil {
		obsCfg = deps.Config.Observability
		if enabled, err := deps.Config.GetEnabledServices(); err == nil {
			workerEnabled = enabled[config.ServiceModeWorker]
		}
	}

	observability := buildObservability(logger, obsCfg)
	repos := buildRepositories(deps)

	queue, err := newQueueService(deps, repos, observability)
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create queue service: %w", err)
	}

	container := ServiceContainer{
		Queue:         queue,
		Observability: observability,
	}

	stages, err := buildPipelineStages(deps.Config, logger)
	if err != nil {
		if workerEnabled {
			return ServiceContainer{}, fmt.Errorf("build pipeline stages: %w", err)
		}
		logger.Warn("direct pipeline execution disabled", "error", err)
		return container, nil
	}

	pipeline, err := newPipelineService(deps, repos, stages, observability)
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create pipeline service: %w", err)
	}

	var delays []time.Duration
	if deps.Config != nil {
		delays = deps.Config.Fallback.Delays
	}
	fallback, err := service.NewFallbackService(service.FallbackServiceOptions{
		Pipeline: pipeline,
		Logger:   logger,
		Delays:   delays,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create fallback service: %w", err)
	}

	container.Pipeline = pipeline
	container.Fallback = fallback
	container.AudioDir = stages.AudioDir
	container.AudioURLPrefix = stages.AudioURLPrefix
	return container, nil
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second
)

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

// startHTTPServerIfEnabled starts the HTTP server if enabled.
func startHTTPServerIfEnabled(deps *serviceStartupDeps) *http.Server {
	if deps == nil || deps.cfg == nil || !deps.enabledServices[config.ServiceModeHTTP] {
		return nil
	}
	return StartHTTPServer(&HTTPServerConfig{
		Config:   deps.cfg.Config,
		Services: deps.cfg.Services,
		Logger:   deps.logger,
	})
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				if deps.logger != nil {
					deps.logger.WarnContext(
						ctx,
						"dropping background service error",
						"service",
						descriptor.name,
						"error",
						errMsg,
					)
				} else {
					slog.Default().WarnContext(ctx, "dropping background service error", "service", descriptor.name, "error", errMsg)
				}
			}
		}
	}()

	if deps.logger != nil {
		deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	} else {
		slog.Default().InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	}

	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}

		handles = append(handles, backgroundServiceHandle{
			mode: svc.mode,
			name: svc.name,
			done: done,
		})
	}

	return handles
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil {
		return nil
	}
	return []backgroundService{
		newWorkerBackgroundService(deps),
		newReaperBackgroundService(deps),
	}
}

// ServiceStartupResult holds the results of starting all services.
type ServiceStartupResult struct {
	HTTPServer *http.Server
	Background []backgroundServiceHandle
}

// startServices starts all enabled services and returns their completion channels.
func startServices(deps *serviceStartupDeps) ServiceStartupResult {
	return ServiceStartupResult{
		HTTPServer: startHTTPServerIfEnabled(deps),
		Background: startBackgroundServices(deps, buildBackgroundServices(deps)),
	}
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	ctx := context.Background()
	serviceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}

	// Determine which services are enabled
	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	// Start all enabled services
	result := startServices(&serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	})

	// Wait for shutdown signal or error
	return waitForShutdown(shutdownConfig{
		ctx:         serviceCtx,
		cancel:      cancel,
		errCh:       errCh,
		httpServer:  result.HTTPServer,
		queue:       cfg.Services.Queue,
		logger:      logger,
		backgrounds: result.Background,
	})
}

func errorChannelCapacity(enabled map[config.ServiceMode]bool) int {
	modes := []config.ServiceMode{
		config.ServiceModeHTTP,
		config.ServiceModeWorker,
		config.ServiceModeReaper,
	}

	count := 0
	for _, mode := range modes {
		if enabled[mode] {
			count++
		}
	}
	return count
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	size := errorChannelCapacity(enabled) + 1
	if size < 1 {
		return 1
	}
	return size
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx         context.Context
	cancel      context.CancelFunc
	errCh       <-chan error
	httpServer  *http.Server
	queue       *service.QueueService
	logger      *slog.Logger
	backgrounds []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel() // Cancel service context before waiting
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel() // Cancel service context before waiting
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop attempts to gracefully stop all services.
func gracefulStop(cfg shutdownConfig) error {
	// Gracefully stop HTTP server if running
	if cfg.httpServer != nil {
		// Create a timeout context for HTTP shutdown
		shutdownCtx, cancel := context.WithTimeout(cfg.ctx, shutdownWaitTimeout)
		defer cancel()

		if err := ShutdownHTTPServer(ShutdownConfig{
			Context: shutdownCtx,
			Server:  cfg.httpServer,
			Queue:   cfg.queue,
			Logger:  cfg.logger,
		}); err != nil {
			return err
		}
	}

	// Wait for background services to finish
	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	return nil
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
