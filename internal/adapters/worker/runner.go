// Package worker pulls link jobs off the queue and drives them through the
// processing pipeline.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/briefcast/briefcast-go/internal/domain/model"
	obserrors "github.com/briefcast/briefcast-go/internal/observability/errors"
	"github.com/briefcast/briefcast-go/internal/observability/metrics"
	"github.com/briefcast/briefcast-go/internal/observability/statsd"
	"github.com/briefcast/briefcast-go/internal/service"
)

// pipelineRunner is the slice of PipelineService the runner needs.
type pipelineRunner interface {
	Run(ctx context.Context, payload *model.LinkJobPayload, onProgress func(int)) error
}

// jobQueue is the slice of QueueService the runner needs.
type jobQueue interface {
	ReserveNext(ctx context.Context, lease time.Duration) (*model.Job, error)
	Subscribe() (func(), <-chan struct{})
	Heartbeat(ctx context.Context, id string, extend time.Duration) (bool, error)
	Complete(ctx context.Context, id string) (bool, error)
	FailWithDetails(ctx context.Context, id, errMsg string, details service.JobFailureDetails) (bool, error)
}

// RunnerOptions configures the link job runner.
type RunnerOptions struct {
	Queue    jobQueue
	Pipeline pipelineRunner
	Logger   *slog.Logger
	Metrics  statsd.Sink

	// Lease is the per-job lease duration; defaults to 90s. The lease is
	// extended by heartbeats while the pipeline runs.
	Lease time.Duration

	// Concurrency is the number of worker goroutines; defaults to 2.
	Concurrency int

	// JobTimeout bounds one pipeline run; defaults to 4m.
	JobTimeout time.Duration

	// PollInterval bounds how long a worker waits for a notification before
	// checking the queue again. Resuming a paused queue and retry backoffs
	// coming due do not produce notifications, so workers must poll.
	PollInterval time.Duration
}

// Runner pulls link jobs and executes them through the pipeline.
type Runner struct {
	queue        jobQueue
	pipeline     pipelineRunner
	logger       *slog.Logger
	metrics      statsd.Sink
	lease        time.Duration
	workers      int
	jobTimeout   time.Duration
	pollInterval time.Duration
}

func resolveLogger(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}

// NewRunner constructs a link job runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Queue == nil {
		return nil, errors.New("queue is required")
	}
	if opts.Pipeline == nil {
		return nil, errors.New("pipeline is required")
	}

	lease := opts.Lease
	if lease <= 0 {
		lease = 90 * time.Second
	}
	workers := opts.Concurrency
	if workers <= 0 {
		workers = 2
	}
	jobTimeout := opts.JobTimeout
	if jobTimeout <= 0 {
		jobTimeout = 4 * time.Minute
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}

	return &Runner{
		queue:        opts.Queue,
		pipeline:     opts.Pipeline,
		logger:       resolveLogger(opts.Logger).With("component", "link_runner"),
		metrics:      opts.Metrics,
		lease:        lease,
		workers:      workers,
		jobTimeout:   jobTimeout,
		pollInterval: pollInterval,
	}, nil
}

// Run starts worker goroutines and processes jobs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting link runner",
		"workers", r.workers,
		"lease", r.lease,
		"job_timeout", r.jobTimeout,
	)

	unsub, ch := r.queue.Subscribe()
	defer unsub()

	// The first worker error cancels the group context and stops the rest.
	group, gctx := errgroup.WithContext(ctx)
	for range r.workers {
		group.Go(func() error {
			return r.workerLoop(gctx, ch)
		})
	}

	if err := group.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (r *Runner) workerLoop(ctx context.Context, notify <-chan struct{}) error {
	for ctx.Err() == nil {
		job, err := r.queue.ReserveNext(ctx, r.lease)
		switch {
		case err == nil:
			if job != nil {
				r.processJob(ctx, job)
				continue
			}
			// Paused queue. Resume does not notify, so wait and re-check.
			if !r.waitForWork(ctx, notify) {
				return nil
			}
		case errors.Is(err, model.ErrNoJobsAvailable):
			if !r.waitForWork(ctx, notify) {
				return nil
			}
		default:
			return fmt.Errorf("reserve next: %w", err)
		}
	}
	return ctx.Err()
}

// waitForWork blocks until a new-job notification, the poll interval, or
// cancellation. Scheduled retries become due without a notification, so the
// timer bound matters.
func (r *Runner) waitForWork(ctx context.Context, notify <-chan struct{}) bool {
	timer := time.NewTimer(r.pollInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-notify:
		return true
	case <-timer.C:
		return true
	}
}

func (r *Runner) processJob(ctx context.Context, job *model.Job) {
	start := time.Now()
	emit := func(transition, result string, err error) {
		metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
			JobType:    string(job.Type),
			Transition: transition,
			Result:     result,
			Duration:   time.Since(start),
			Err:        err,
		})
	}

	payload, err := job.LinkPayload()
	if err != nil {
		r.fail(ctx, job.ID, err)
		emit("failed", metrics.ResultError, err)
		return
	}

	jobCtx, cancelJob := context.WithTimeout(ctx, r.jobTimeout)
	defer cancelJob()

	stopHeartbeat := r.startHeartbeat(jobCtx, job.ID)
	err = r.pipeline.Run(jobCtx, payload, func(progress int) {
		r.logger.DebugContext(jobCtx, "job progress", "job_id", job.ID, "progress", progress)
	})
	stopHeartbeat()

	if err != nil {
		if jobCtx.Err() != nil && ctx.Err() == nil {
			err = fmt.Errorf("pipeline timed out after %s: %w", r.jobTimeout, err)
		}
		r.fail(ctx, job.ID, err)
		emit("failed", metrics.ResultError, err)
		return
	}

	if completed, cerr := r.queue.Complete(ctx, job.ID); cerr != nil {
		r.logger.ErrorContext(ctx, "complete job error", "job_id", job.ID, "error", cerr)
		emit("completed", metrics.ResultError, cerr)
	} else {
		result := metrics.ResultNoop
		if completed {
			result = metrics.ResultSuccess
		}
		emit("completed", result, nil)
	}
}

// startHeartbeat extends the job lease on a fixed cadence until the returned
// stop function is called or the context ends. A lost lease means another
// worker may pick the job up, so processing stops mattering at that point;
// the heartbeat loop only logs it.
func (r *Runner) startHeartbeat(ctx context.Context, jobID string) func() {
	interval := r.lease / 3
	if interval < time.Second {
		interval = time.Second
	}

	done := make(chan struct{})
	var once sync.Once
	stop := func() { once.Do(func() { close(done) }) }

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				extended, err := r.queue.Heartbeat(ctx, jobID, r.lease)
				if err != nil {
					r.logger.WarnContext(ctx, "heartbeat error", "job_id", jobID, "error", err)
				} else if !extended {
					r.logger.WarnContext(ctx, "lease no longer held", "job_id", jobID)
				}
			}
		}
	}()
	return stop
}

func (r *Runner) fail(ctx context.Context, jobID string, cause error) {
	_, err := r.queue.FailWithDetails(ctx, jobID, cause.Error(), service.JobFailureDetails{
		ErrorClass: obserrors.Classify(cause),
		Metadata: map[string]string{
			"component": "link_runner",
		},
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "fail job error", "job_id", jobID, "error", err, "original_error", cause)
	}
}
