package data

import (
	"database/sql"
	"log/slog"
	"time"

	domainjob "github.com/briefcast/briefcast-go/internal/domain/job"
	apperrors "github.com/briefcast/briefcast-go/internal/errors"
)

var (
	// ErrJobNotFound is returned when a job is not found.
	ErrJobNotFound = apperrors.NotFound("Job not found")
	// ErrJobNotDeletable is returned when attempting to delete a job that is not in a deletable state.
	ErrJobNotDeletable = apperrors.Conflict(
		"Job cannot be deleted (must be in pending, completed, or failed status)",
	)
	// ErrJobReserved is returned when attempting to delete a job that has an active lease.
	ErrJobReserved = apperrors.Conflict("Job is reserved and cannot be deleted")
)

// stallErrorMessage is recorded on jobs whose lease lapsed with no retries left.
const stallErrorMessage = "job stalled"

// RepoConfig holds configuration options for the job repository.
type RepoConfig struct {
	// RetryBackoffBaseSeconds is the delay before the first retry. Each
	// subsequent retry doubles it.
	RetryBackoffBaseSeconds int
	Logger                  *slog.Logger
	TimeProvider            TimeProvider
}

// JobRepo provides database operations for job management.
type JobRepo struct {
	DB           *sql.DB
	cfg          RepoConfig
	backoff      *domainjob.BackoffPolicy
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRepo creates a new JobRepo instance with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}

	base := time.Duration(cfg.RetryBackoffBaseSeconds) * time.Second
	if base <= 0 {
		base = defaultRetryBackoffBase
	}

	return &JobRepo{
		DB:           db,
		cfg:          cfg,
		backoff:      domainjob.NewBackoffPolicy(base),
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

const jobColumns = `
  id,
  type,
  status,
  priority,
  payload,
  scheduled_at,
  started_at,
  completed_at,
  retry_count,
  max_retries,
  last_error,
  lease_expires_at,
  created_at,
  updated_at
`
