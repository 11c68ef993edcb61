package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the ops/API HTTP server.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeWorker runs the link processing worker.
	ServiceModeWorker ServiceMode = "worker"
	// ServiceModeReaper runs the job reaper for stall recovery and cleanup.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeWorker,
		ServiceModeReaper,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	parts := strings.Split(servicesStr, ",")
	for _, part := range parts {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeWorker, ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, worker, reaper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// WorkerConfig contains link worker service configuration.
type WorkerConfig struct {
	// Concurrency is the number of worker goroutines.
	Concurrency int `env:"WORKER_CONCURRENCY" envDefault:"2"`

	// JobLease is the duration to lease a link job. The lease is extended by
	// heartbeats while the pipeline runs; an expired lease marks the job stalled.
	JobLease time.Duration `env:"WORKER_JOB_LEASE" envDefault:"90s"`

	// JobTimeout is the hard wall-clock limit for one pipeline run.
	// A job exceeding it takes the normal failure/retry path.
	JobTimeout time.Duration `env:"WORKER_JOB_TIMEOUT" envDefault:"4m"`

	// MaxAttempts is the default number of attempts before a job is terminally failed.
	MaxAttempts int `env:"WORKER_MAX_ATTEMPTS" envDefault:"3"`

	// RetryBackoffBase is the delay before the first retry; it doubles per attempt.
	RetryBackoffBase time.Duration `env:"WORKER_RETRY_BACKOFF_BASE" envDefault:"2s"`
}

// Sanitize applies guardrails to worker configuration values.
func (w *WorkerConfig) Sanitize() {
	if w.Concurrency < 1 {
		w.Concurrency = 1
	}
	if w.JobLease < 5*time.Second {
		w.JobLease = 5 * time.Second
	}
	if w.JobTimeout < 30*time.Second {
		w.JobTimeout = 30 * time.Second
	}
	if w.MaxAttempts < 1 {
		w.MaxAttempts = 1
	}
	if w.RetryBackoffBase < time.Second {
		w.RetryBackoffBase = time.Second
	}
}

// FallbackConfig contains direct-execution fallback configuration.
type FallbackConfig struct {
	// Delays is the layered retry schedule for direct execution when the
	// broker is unreachable: one attempt per entry, first entry should be 0.
	Delays []time.Duration `env:"FALLBACK_DELAYS" envDefault:"0s,5s,30s"`
}

// Sanitize applies guardrails to fallback configuration values.
func (f *FallbackConfig) Sanitize() {
	if len(f.Delays) == 0 {
		f.Delays = []time.Duration{0, 5 * time.Second, 30 * time.Second}
	}
}

// ReaperConfig contains job reaper service configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval. Each tick requeues stalled jobs
	// and evicts old terminal jobs.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"60s"`

	// PendingMaxAge is the maximum age for pending jobs before they are marked as failed.
	PendingMaxAge time.Duration `env:"REAPER_PENDING_MAX_AGE" envDefault:"1h"`

	// CompletedMaxAge is the maximum age for completed jobs before deletion.
	CompletedMaxAge time.Duration `env:"REAPER_COMPLETED_MAX_AGE" envDefault:"1h"`

	// FailedMaxAge is the maximum age for failed jobs before deletion.
	// Kept longer than completed jobs to aid diagnosis.
	FailedMaxAge time.Duration `env:"REAPER_FAILED_MAX_AGE" envDefault:"72h"`

	// KeepCompleted is the number of most recent completed jobs retained by Clean.
	KeepCompleted int `env:"REAPER_KEEP_COMPLETED" envDefault:"5"`

	// KeepFailed is the number of most recent failed jobs retained by Clean.
	KeepFailed int `env:"REAPER_KEEP_FAILED" envDefault:"50"`

	// BatchSize is the maximum number of rows to process per operation.
	// Batching prevents long locks and I/O spikes on large tables.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"1000"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	if r.Interval < 10*time.Second {
		r.Interval = 10 * time.Second
	}
	if r.PendingMaxAge < 5*time.Minute {
		r.PendingMaxAge = 5 * time.Minute
	}
	if r.CompletedMaxAge < 10*time.Minute {
		r.CompletedMaxAge = 10 * time.Minute
	}
	if r.FailedMaxAge < 1*time.Hour {
		r.FailedMaxAge = 1 * time.Hour
	}
	if r.KeepCompleted < 0 {
		r.KeepCompleted = 0
	}
	if r.KeepFailed < 0 {
		r.KeepFailed = 0
	}
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
}
