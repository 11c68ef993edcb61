package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/briefcast/briefcast-go/internal/domain/model"
	apperrors "github.com/briefcast/briefcast-go/internal/errors"
)

// FallbackServiceOptions groups dependencies for FallbackService.
type FallbackServiceOptions struct {
	Pipeline *PipelineService // Required: the same orchestrator the workers run
	Logger   *slog.Logger     // Optional: structured logger
	// Delays is the layered retry schedule: one attempt per entry, each entry
	// waited before its attempt. Defaults to immediate, +5s, +30s.
	Delays []time.Duration
}

// FallbackService runs the pipeline directly, in process, when the durable
// queue is unreachable. It owns its own retry schedule, independent of the
// queue's backoff, and never escalates past the final attempt.
type FallbackService struct {
	pipeline *PipelineService
	logger   *slog.Logger
	delays   []time.Duration
}

// NewFallbackService constructs a new FallbackService.
func NewFallbackService(opts FallbackServiceOptions) (*FallbackService, error) {
	if opts.Pipeline == nil {
		return nil, errors.New("PipelineService is required")
	}

	delays := opts.Delays
	if len(delays) == 0 {
		delays = []time.Duration{0, 5 * time.Second, 30 * time.Second}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "fallback_service")
	}

	return &FallbackService{
		pipeline: opts.Pipeline,
		logger:   logger,
		delays:   delays,
	}, nil
}

// RunDirect processes the payload through the pipeline with the layered retry
// schedule. Errors are contained: after the final attempt the failure is
// logged and dropped, since the ProcessingRecord already carries the outcome.
// Blocks until done; callers wanting fire-and-forget run it in a goroutine.
func (s *FallbackService) RunDirect(ctx context.Context, payload *model.LinkJobPayload) {
	if payload == nil {
		return
	}

	var lastErr error
	for attempt, delay := range s.delays {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				if s.logger != nil {
					s.logger.WarnContext(ctx, "direct execution abandoned",
						"url", payload.URL,
						"attempt", attempt+1,
						"error", ctx.Err(),
					)
				}
				return
			}
		}

		lastErr = s.pipeline.Run(ctx, payload, nil)
		if lastErr == nil {
			if s.logger != nil {
				s.logger.InfoContext(ctx, "direct execution succeeded",
					"url", payload.URL,
					"attempt", attempt+1,
				)
			}
			return
		}

		if s.logger != nil {
			s.logger.WarnContext(ctx, "direct execution attempt failed",
				"url", payload.URL,
				"attempt", attempt+1,
				"attempts_total", len(s.delays),
				"error", lastErr,
			)
		}
	}

	if s.logger != nil {
		s.logger.ErrorContext(ctx, "direct execution exhausted all attempts",
			"url", payload.URL,
			"attempts", len(s.delays),
			"error", lastErr,
		)
	}
}

// EnqueueOrRun tries the durable queue first and falls back to direct
// execution when the broker rejects the job. The returned job ID is empty on
// the fallback path; the error reports what happened to the enqueue attempt
// without failing the caller's request.
func EnqueueOrRun(
	ctx context.Context,
	queue *QueueService,
	fallback *FallbackService,
	payload *model.LinkJobPayload,
	opts model.EnqueueOptions,
) (string, error) {
	if payload == nil {
		return "", apperrors.Validation("payload is required")
	}
	if err := payload.Validate(); err != nil {
		// A bad payload fails identically on the direct path; surface it.
		return "", fmt.Errorf("validate link payload: %w", err)
	}

	jobID, err := queue.Enqueue(ctx, payload, opts)
	if err == nil {
		return jobID, nil
	}

	if fallback == nil {
		return "", fmt.Errorf("enqueue failed and no fallback configured: %w", err)
	}

	// Detach from the request context so an HTTP response does not cancel
	// the in-flight pipeline run.
	go fallback.RunDirect(context.WithoutCancel(ctx), payload)
	return "", nil
}
