package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/briefcast/briefcast-go/internal/core"
	domainjob "github.com/briefcast/briefcast-go/internal/domain/job"
	"github.com/briefcast/briefcast-go/internal/domain/model"
	apperrors "github.com/briefcast/briefcast-go/internal/errors"
	"github.com/briefcast/briefcast-go/internal/observability/metrics"
	"github.com/briefcast/briefcast-go/internal/observability/notify"
	"github.com/briefcast/briefcast-go/internal/observability/statsd"
	"github.com/briefcast/briefcast-go/internal/service/failurenotifier"
)

// pauseKey gates job reservation across all processes sharing the cache.
const pauseKey = "queue:paused:link"

// defaultEnqueueRetryDelay spaces the single retry after a transient broker error.
const defaultEnqueueRetryDelay = 250 * time.Millisecond

// QueueServiceOptions groups dependencies for QueueService.
type QueueServiceOptions struct {
	Repo              core.JobRepository        // Required: job repository
	DefaultLease      time.Duration             // Required: default lease duration for jobs
	Cache             core.CacheRepository      // Optional: shared pause state; pause is process-local without it
	Reaper            core.ReaperRepository     // Optional: enables Clean
	KeepCompleted     int                       // Optional: completed jobs retained by Clean (default 5)
	KeepFailed        int                       // Optional: failed jobs retained by Clean (default 50)
	Logger            *slog.Logger              // Optional: structured logger
	Metrics           statsd.Sink               // Optional: lifecycle metric sink
	FailureNotifier   *failurenotifier.Service  // Optional: failure notification fan-out
	LeasePolicy       *domainjob.LeasePolicy    // Optional: override default lease policy
	Notifier          domainjob.Notifier        // Optional: custom job availability notifier
	NotifierOptions   domainjob.NotifierOptions // Optional: configure default notifier behaviour
	MaxRetries        int                       // Optional: default attempts per job (default 3)
	EnqueueRetryDelay time.Duration             // Optional: wait before the single transient retry
	DefaultPriority   int                       // Optional: caller-scale priority when the caller passes zero
}

// QueueService is the queue manager for link jobs.
//
// This service manages:
// - Enqueueing link payloads with priority and delay
// - Job reservation and lease management
// - Pub/sub notification for job availability
// - Queue-level pause/resume shared via the cache
// - Stats, health and bounded retention of terminal jobs.
type QueueService struct {
	repo              core.JobRepository
	cache             core.CacheRepository
	reaper            core.ReaperRepository
	keepCompleted     int
	keepFailed        int
	leasePolicy       *domainjob.LeasePolicy
	notifier          domainjob.Notifier
	logger            *slog.Logger
	metrics           statsd.Sink
	failureNotifier   *failurenotifier.Service
	maxRetries        int
	enqueueRetryDelay time.Duration
	defaultPriority   int

	// pausedLocal backs IsPaused when the cache is absent or failing. HTTP
	// pause handlers and worker reserve loops touch it concurrently.
	pausedLocal atomic.Bool
}

// NewQueueService constructs a new QueueService.
func NewQueueService(opts QueueServiceOptions) (*QueueService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}

	var leasePolicy *domainjob.LeasePolicy
	switch {
	case opts.LeasePolicy != nil:
		leasePolicy = opts.LeasePolicy
	case opts.DefaultLease > 0:
		var err error
		leasePolicy, err = domainjob.NewLeasePolicy(opts.DefaultLease)
		if err != nil {
			return nil, fmt.Errorf("create lease policy: %w", err)
		}
	default:
		return nil, errors.New("DefaultLease must be positive")
	}

	notifier := opts.Notifier
	if notifier == nil {
		options := opts.NotifierOptions
		if options.Waiter == nil {
			options.Waiter = opts.Repo
		}
		var err error
		notifier, err = domainjob.NewNotifier(options)
		if err != nil {
			return nil, fmt.Errorf("create job notifier: %w", err)
		}
	}

	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	retryDelay := opts.EnqueueRetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultEnqueueRetryDelay
	}

	defaultPriority := opts.DefaultPriority
	if defaultPriority < model.CallerPriorityMin || defaultPriority > model.CallerPriorityMax {
		defaultPriority = 5
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "queue_service")
		logger.Debug("QueueService initialized",
			"default_lease", leasePolicy.Default(),
			"max_retries", maxRetries,
		)
	}

	keepCompleted := opts.KeepCompleted
	if keepCompleted <= 0 {
		keepCompleted = 5
	}
	keepFailed := opts.KeepFailed
	if keepFailed <= 0 {
		keepFailed = 50
	}

	return &QueueService{
		repo:              opts.Repo,
		cache:             opts.Cache,
		reaper:            opts.Reaper,
		keepCompleted:     keepCompleted,
		keepFailed:        keepFailed,
		leasePolicy:       leasePolicy,
		notifier:          notifier,
		logger:            logger,
		metrics:           opts.Metrics,
		failureNotifier:   opts.FailureNotifier,
		maxRetries:        maxRetries,
		enqueueRetryDelay: retryDelay,
		defaultPriority:   defaultPriority,
	}, nil
}

// MustNewQueueService constructs a new QueueService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewQueueService(opts QueueServiceOptions) *QueueService {
	svc, err := NewQueueService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create QueueService: %v", err))
	}
	return svc
}

// Enqueue validates the payload and inserts a link job. The caller priority
// scale (1 lowest, 10 highest) is inverted onto the broker's ascending scale
// before submission. A transient broker error is retried once after a short
// delay; permanent errors surface immediately.
func (s *QueueService) Enqueue(
	ctx context.Context,
	payload *model.LinkJobPayload,
	opts model.EnqueueOptions,
) (string, error) {
	if payload == nil {
		return "", apperrors.Validation("payload is required")
	}
	if err := payload.Validate(); err != nil {
		return "", fmt.Errorf("validate link payload: %w", err)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode link payload: %w", err)
	}

	priority := opts.Priority
	if priority == 0 {
		priority = s.defaultPriority
	}

	req := &model.CreateJobRequest{
		Type:       model.JobTypeLink,
		Payload:    raw,
		Priority:   model.InvertCallerPriority(priority),
		MaxRetries: s.maxRetries,
	}
	if opts.Delay > 0 {
		at := time.Now().Add(opts.Delay)
		req.ScheduledAt = &at
	}

	job, err := s.repo.Create(ctx, req)
	if err != nil && apperrors.IsTransientDB(err) {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "transient broker error on enqueue, retrying once",
				"url", payload.URL,
				"error", err,
			)
		}
		select {
		case <-time.After(s.enqueueRetryDelay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		job, err = s.repo.Create(ctx, req)
	}
	if err != nil {
		s.emitLifecycle("enqueue", metrics.ResultError, 0, err)
		return "", fmt.Errorf("enqueue link job: %w", err)
	}

	s.emitLifecycle("enqueue", metrics.ResultSuccess, 0, nil)
	if s.logger != nil {
		s.logger.InfoContext(ctx, "link job enqueued",
			"id", job.ID,
			"priority", job.Priority,
			"scheduled_at", job.ScheduledAt,
			"url", payload.URL,
		)
	}

	return job.ID, nil
}

// GetStatus returns the status information for a specific job, or nil when
// the job does not exist.
func (s *QueueService) GetStatus(ctx context.Context, id string) (*model.JobStatusResponse, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}

	// retry_count counts finished attempts; a job out of the pending state is
	// on (or has finished) one more.
	attempts := job.RetryCount
	if job.Status != model.JobStatusPending {
		attempts++
	}

	return &model.JobStatusResponse{
		Status:       job.Status,
		AttemptsMade: attempts,
		CompletedAt:  job.CompletedAt,
		LastError:    job.LastError,
	}, nil
}

// GetByID returns a job by its ID.
func (s *QueueService) GetByID(ctx context.Context, id string) (*model.Job, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get job by id %s: %w", id, err)
	}
	return job, nil
}

// Stats returns queue depth counters for link jobs.
func (s *QueueService) Stats(ctx context.Context) (*model.JobStats, error) {
	stats, err := s.repo.Stats(ctx, model.JobTypeLink)
	if err != nil {
		return nil, fmt.Errorf("get queue stats: %w", err)
	}
	return stats, nil
}

// Pause stops workers from reserving jobs. Already-running jobs finish.
func (s *QueueService) Pause(ctx context.Context) error {
	s.pausedLocal.Store(true)
	if s.cache != nil {
		if err := s.cache.Set(ctx, pauseKey, []byte("1"), 0); err != nil {
			return fmt.Errorf("set queue pause flag: %w", err)
		}
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "queue paused")
	}
	return nil
}

// Resume re-enables job reservation.
func (s *QueueService) Resume(ctx context.Context) error {
	s.pausedLocal.Store(false)
	if s.cache != nil {
		if _, err := s.cache.Delete(ctx, pauseKey); err != nil {
			return fmt.Errorf("clear queue pause flag: %w", err)
		}
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "queue resumed")
	}
	return nil
}

// IsPaused reports whether the queue is paused. Cache errors are treated as
// not paused so a cache outage cannot wedge the workers.
func (s *QueueService) IsPaused(ctx context.Context) bool {
	if s.cache == nil {
		return s.pausedLocal.Load()
	}
	paused, err := s.cache.Exists(ctx, pauseKey)
	if err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "pause flag check failed, assuming not paused", "error", err)
		}
		return s.pausedLocal.Load()
	}
	return paused
}

// Health reports the operational state of the queue manager.
func (s *QueueService) Health(ctx context.Context) *model.QueueHealth {
	connected := s.repo.Ping(ctx) == nil
	return &model.QueueHealth{
		Healthy:         connected,
		Paused:          s.IsPaused(ctx),
		BrokerConnected: connected,
	}
}

// ReserveNext reserves the next available link job for processing. Returns
// nil without error when the queue is paused; an empty queue surfaces
// model.ErrNoJobsAvailable.
func (s *QueueService) ReserveNext(ctx context.Context, lease time.Duration) (*model.Job, error) {
	if s.IsPaused(ctx) {
		return nil, nil
	}

	decision := s.leasePolicy.Resolve(lease)
	if decision.Clamped() && s.logger != nil {
		s.logger.DebugContext(ctx, "clamped sub-second lease duration to 1 second",
			"requested_duration", decision.Requested)
	}

	job, err := s.repo.ReserveNext(ctx, model.JobTypeLink, decision.Seconds)
	if err != nil {
		return nil, fmt.Errorf("reserve next job: %w", err)
	}

	if s.logger != nil && job != nil {
		s.logger.DebugContext(
			ctx,
			"job reserved",
			"id",
			job.ID,
			"lease_seconds",
			decision.Seconds,
		)
	}

	return job, nil
}

// Subscribe creates a subscription for link job notifications.
// Returns an unsubscribe function and a channel that receives notifications.
func (s *QueueService) Subscribe() (func(), <-chan struct{}) {
	if s.notifier == nil {
		ch := make(chan struct{})
		close(ch)
		return func() {}, ch
	}
	return s.notifier.Subscribe(model.JobTypeLink)
}

// WaitForNotification waits for a notification indicating new jobs are available.
func (s *QueueService) WaitForNotification(ctx context.Context) error {
	return s.repo.WaitForNotification(ctx, model.JobTypeLink)
}

// Heartbeat extends the lease on a job to indicate it's still being processed.
func (s *QueueService) Heartbeat(ctx context.Context, id string, extend time.Duration) (bool, error) {
	decision := s.leasePolicy.Resolve(extend)
	if decision.Clamped() && s.logger != nil {
		s.logger.DebugContext(ctx, "clamped sub-second heartbeat duration to 1 second",
			"requested_duration", decision.Requested,
			"job_id", id)
	}

	updated, err := s.repo.Heartbeat(ctx, id, decision.Seconds)
	if err != nil {
		return false, fmt.Errorf("heartbeat job %s: %w", id, err)
	}

	if s.logger != nil && updated {
		s.logger.DebugContext(ctx, "job heartbeat updated", "id", id, "extend_seconds", decision.Seconds)
	}

	return updated, nil
}

// Complete marks a job as completed successfully.
func (s *QueueService) Complete(ctx context.Context, id string) (bool, error) {
	completed, err := s.repo.Complete(ctx, id)
	if err != nil {
		s.emitLifecycle("complete", metrics.ResultError, 0, err)
		return false, fmt.Errorf("complete job %s: %w", id, err)
	}

	if completed {
		s.emitLifecycle("complete", metrics.ResultSuccess, 0, nil)
		if s.logger != nil {
			s.logger.InfoContext(ctx, "job completed", "id", id)
		}
	}

	return completed, nil
}

// Fail marks a job as failed with the given error message.
func (s *QueueService) Fail(ctx context.Context, id, errMsg string) (bool, error) {
	return s.FailWithDetails(ctx, id, errMsg, JobFailureDetails{})
}

// JobFailureDetails captures optional context for failure notifications.
type JobFailureDetails struct {
	ErrorClass string
	Metadata   map[string]string
	Severity   string
	OccurredAt time.Time
}

// FailWithDetails marks a job as failed and propagates optional metadata to
// the failure notifier. The notifier only fires on terminal failures; a
// failure that will be retried is logged but not alerted.
func (s *QueueService) FailWithDetails(
	ctx context.Context,
	id, errMsg string,
	details JobFailureDetails,
) (bool, error) {
	if errMsg == "" {
		return false, errors.New("error message required")
	}

	var job *model.Job
	if s.failureNotifier != nil {
		var err error
		job, err = s.repo.GetByID(ctx, id)
		if err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "failed to load job for failure notification", "job_id", id, "error", err)
		}
	}

	failed, err := s.repo.Fail(ctx, id, errMsg)
	if err != nil {
		s.emitLifecycle("fail", metrics.ResultError, 0, err)
		return false, fmt.Errorf("fail job %s: %w", id, err)
	}

	if failed {
		s.emitLifecycle("fail", metrics.ResultSuccess, 0, nil)
		if s.logger != nil {
			s.logger.WarnContext(ctx, "job failed", "id", id, "error", errMsg)
		}
	}

	if failed && s.failureNotifier != nil && isTerminalFailure(job) {
		payload := buildJobFailurePayload(jobFailurePayloadInput{
			ID:      id,
			Job:     job,
			ErrMsg:  errMsg,
			Details: details,
		})
		s.failureNotifier.NotifyJobFailure(ctx, payload)
	}

	return failed, nil
}

// Clean applies bounded retention to terminal jobs: the most recent
// keepCompleted completed and keepFailed failed jobs are retained, everything
// older is deleted. Returns the number of jobs removed.
func (s *QueueService) Clean(ctx context.Context) (int64, error) {
	if s.reaper == nil {
		return 0, errors.New("clean requires a reaper repository")
	}

	var total int64
	for _, target := range []struct {
		status model.JobStatus
		keep   int
	}{
		{model.JobStatusCompleted, s.keepCompleted},
		{model.JobStatusFailed, s.keepFailed},
	} {
		count, err := s.reaper.CleanTerminalJobs(ctx, core.CleanTerminalJobsParams{
			JobType: model.JobTypeLink,
			Status:  target.status,
			Keep:    target.keep,
		})
		if err != nil {
			return total, fmt.Errorf("clean %s jobs: %w", target.status, err)
		}
		total += count
	}

	if total > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "cleaned terminal jobs", "count", total)
	}
	return total, nil
}

// Delete safely deletes a job by ID with state machine safety checks.
// Only jobs in pending status without an active lease can be deleted.
func (s *QueueService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("job id is required")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "job deleted", "id", id)
	}

	return nil
}

// StopAllListeners stops all active job notification listeners.
// This should be called during graceful shutdown to clean up goroutines.
func (s *QueueService) StopAllListeners() {
	if s.logger != nil {
		s.logger.Info("stopping all job listeners")
	}

	if s.notifier != nil {
		s.notifier.StopAll()
	}
}

func (s *QueueService) emitLifecycle(transition, result string, duration time.Duration, err error) {
	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
		JobType:    string(model.JobTypeLink),
		Transition: transition,
		Result:     result,
		Duration:   duration,
		Err:        err,
	})
}

// isTerminalFailure reports whether this failure exhausts the job's retries.
// When the job could not be loaded we err on the side of alerting.
func isTerminalFailure(job *model.Job) bool {
	if job == nil {
		return true
	}
	if job.MaxRetries == 0 {
		return true
	}
	return job.RetryCount+1 >= job.MaxRetries
}

type jobFailurePayloadInput struct {
	ID      string
	Job     *model.Job
	ErrMsg  string
	Details JobFailureDetails
}

func buildJobFailurePayload(input jobFailurePayloadInput) notify.JobFailurePayload {
	payload := baseFailurePayload(input.ID, input.ErrMsg, input.Details)
	if input.Job != nil {
		applyJobContext(&payload, input.Job)
	}
	if payload.ErrorClass != "" {
		payload.Metadata = mergeMetadata(payload.Metadata, map[string]string{
			"error_class": payload.ErrorClass,
		})
	}

	if len(payload.Metadata) == 0 {
		payload.Metadata = nil
	}

	return payload
}

func baseFailurePayload(id, errMsg string, details JobFailureDetails) notify.JobFailurePayload {
	payload := notify.JobFailurePayload{
		JobID:      id,
		Error:      errMsg,
		ErrorClass: details.ErrorClass,
		Severity:   details.Severity,
		OccurredAt: details.OccurredAt,
		Metadata:   copyMetadata(details.Metadata),
	}

	if payload.Severity == "" {
		payload.Severity = notify.SeverityCritical
	}
	if payload.OccurredAt.IsZero() {
		payload.OccurredAt = time.Now()
	}

	return payload
}

func applyJobContext(payload *notify.JobFailurePayload, job *model.Job) {
	payload.JobType = string(job.Type)
	if link, err := job.LinkPayload(); err == nil {
		payload.LinkURL = link.URL
	}

	newRetryCount := job.RetryCount + 1
	if newRetryCount < 0 {
		newRetryCount = 0
	}

	finalStatus := model.JobStatusPending
	switch {
	case job.MaxRetries == 0:
		finalStatus = model.JobStatusFailed
	case newRetryCount >= job.MaxRetries:
		finalStatus = model.JobStatusFailed
	}

	metadata := map[string]string{
		"retry_count": strconv.Itoa(newRetryCount),
		"max_retries": strconv.Itoa(job.MaxRetries),
		"priority":    strconv.Itoa(job.Priority),
		"status":      string(finalStatus),
	}
	payload.Metadata = mergeMetadata(payload.Metadata, metadata)
}

func copyMetadata(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		if strings.TrimSpace(k) == "" {
			continue
		}
		if strings.TrimSpace(v) == "" {
			continue
		}
		dst[k] = v
	}
	return dst
}

func mergeMetadata(base, extra map[string]string) map[string]string {
	out := copyMetadata(base)
	if out == nil && len(extra) == 0 {
		return nil
	}
	if out == nil {
		out = make(map[string]string, len(extra))
	}
	for k, v := range extra {
		key := strings.TrimSpace(k)
		val := strings.TrimSpace(v)
		if key == "" || val == "" {
			continue
		}
		out[key] = val
	}
	return out
}
