package core

import (
	"context"
	"database/sql"
	"time"

	"github.com/briefcast/briefcast-go/internal/domain/model"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// These interfaces define the contracts between the service layer and data layer.
// Service implementations should depend on these interfaces, not concrete implementations.

// JobRepository defines the interface for job data operations.
type JobRepository interface {
	Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error)
	GetByID(ctx context.Context, id string) (*model.Job, error)
	ReserveNext(ctx context.Context, jobType model.JobType, leaseSeconds int) (*model.Job, error)
	WaitForNotification(ctx context.Context, jobType model.JobType) error
	Heartbeat(ctx context.Context, jobID string, leaseSeconds int) (bool, error)
	Complete(ctx context.Context, id string) (bool, error)
	Fail(ctx context.Context, id, errMsg string) (bool, error)
	Stats(ctx context.Context, jobType model.JobType) (*model.JobStats, error)
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

// JobRepositoryTx defines optional transactional job creation support.
type JobRepositoryTx interface {
	CreateInTx(ctx context.Context, tx *sql.Tx, req *model.CreateJobRequest) (*model.Job, error)
}

// RecordRepository defines the interface for processing record data operations.
type RecordRepository interface {
	// Upsert creates or returns the record for the given natural key. The
	// returned record reflects the row after the upsert.
	Upsert(ctx context.Context, params UpsertRecordParams) (*model.ProcessingRecord, error)
	GetByID(ctx context.Context, id string) (*model.ProcessingRecord, error)
	GetByKey(ctx context.Context, key model.RecordKey) (*model.ProcessingRecord, error)
	// UpdateProgress moves the record's progress forward. Progress never
	// regresses; updates below the stored value are ignored.
	UpdateProgress(ctx context.Context, id string, progress int) error
	SetStatus(ctx context.Context, params SetRecordStatusParams) error
	SetContent(ctx context.Context, params SetRecordContentParams) error
	SetAudio(ctx context.Context, params SetRecordAudioParams) error
}

// UpsertRecordParams groups parameters for RecordRepository.Upsert.
type UpsertRecordParams struct {
	Key    model.RecordKey
	TeamID string
}

// SetRecordStatusParams groups parameters for RecordRepository.SetStatus.
type SetRecordStatusParams struct {
	ID           string
	Status       model.RecordStatus
	ErrorMessage *string
}

// SetRecordContentParams groups parameters for RecordRepository.SetContent.
type SetRecordContentParams struct {
	ID            string
	Title         *string
	Summary       *string
	CoverImageURL *string
}

// SetRecordAudioParams groups parameters for RecordRepository.SetAudio.
type SetRecordAudioParams struct {
	ID               string
	AudioURL         string
	StorageKey       *string
	SpokenTranscript *string
}

// ChannelRepository defines the interface for channel data operations.
type ChannelRepository interface {
	// Upsert creates the channel row if it does not exist and returns it.
	Upsert(ctx context.Context, externalID, teamID string) (*model.Channel, error)
	GetByExternalID(ctx context.Context, externalID string) (*model.Channel, error)
}

// PutObjectParams groups parameters for BlobStore.Put.
type PutObjectParams struct {
	Name        string
	ContentType string
	Data        []byte
}

// BlobStore defines the interface for storing rendered audio artifacts.
// Put returns a URL path or absolute URL that clients can fetch the object at.
type BlobStore interface {
	Put(ctx context.Context, params PutObjectParams) (string, error)
}

// DeleteOldJobsParams groups parameters for DeleteOldJobs.
type DeleteOldJobsParams struct {
	Status    model.JobStatus
	MaxAge    time.Duration
	BatchSize int
}

// CleanTerminalJobsParams groups parameters for CleanTerminalJobs. Keep is the
// number of most recent jobs in the given terminal status to retain.
type CleanTerminalJobsParams struct {
	JobType model.JobType
	Status  model.JobStatus
	Keep    int
}

// ReaperRepository defines the interface for job cleanup operations.
type ReaperRepository interface {
	// FailStalePendingJobs marks pending jobs older than maxAge as failed.
	// Processes up to batchSize jobs per call to prevent long locks.
	// Returns the number of jobs marked as failed.
	FailStalePendingJobs(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)

	// DeleteOldJobs deletes jobs with the given status older than maxAge.
	// Processes up to batchSize jobs per call to prevent long locks.
	// Returns the number of jobs deleted.
	DeleteOldJobs(ctx context.Context, params DeleteOldJobsParams) (int64, error)

	// CleanTerminalJobs removes all but the most recent Keep jobs in the
	// given terminal status for the job type. Returns the number removed.
	CleanTerminalJobs(ctx context.Context, params CleanTerminalJobsParams) (int64, error)

	// RequeueExpiredLeases returns running jobs whose lease has lapsed to the
	// pending state, or fails them when retries are exhausted. Returns the
	// number of jobs transitioned.
	RequeueExpiredLeases(ctx context.Context, jobType model.JobType) (int64, error)
}
