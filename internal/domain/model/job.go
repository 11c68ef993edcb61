// Package model defines the core data types and structures used throughout the briefcast job system.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/briefcast/briefcast-go/internal/errors"
)

// JobType represents the type of job to be executed.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobType string

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobTypeLink represents a link-to-audio processing job type.
	JobTypeLink JobType = "link"

	// JobStatusPending indicates a job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates a job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates a job has finished successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates a job has failed to complete.
	JobStatusFailed JobStatus = "failed"
)

// UnmarshalText implements encoding.TextUnmarshaler for JobType to allow env parsing.
func (t *JobType) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	jt := JobType(v)
	if jt.Valid() {
		*t = jt
		return nil
	}
	return fmt.Errorf("invalid JobType: %q", v)
}

// ErrNoJobsAvailable is returned when no jobs are available for reservation.
var ErrNoJobsAvailable = errors.New("no jobs available")

// Valid returns true if the JobType is valid.
func (t JobType) Valid() bool {
	return t == JobTypeLink
}

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	return s == JobStatusPending || s == JobStatusRunning || s == JobStatusCompleted ||
		s == JobStatusFailed
}

// Caller-facing priority bounds. Larger caller values win; the broker orders
// ascending, so enqueue inverts the scale before submission.
const (
	CallerPriorityMin = 1
	CallerPriorityMax = 10
)

// InvertCallerPriority maps the caller scale (1 = lowest, 10 = highest) onto
// the broker's ascending scale where smaller values are reserved first.
// Out-of-range values are clamped.
func InvertCallerPriority(p int) int {
	if p < CallerPriorityMin {
		p = CallerPriorityMin
	}
	if p > CallerPriorityMax {
		p = CallerPriorityMax
	}
	return CallerPriorityMax + 1 - p
}

// Job represents a job in the system with all its metadata and status information.
type Job struct {
	ID             string          `json:"id"                         db:"id"`
	Type           JobType         `json:"type"                       db:"type"`
	Status         JobStatus       `json:"status"                     db:"status"`
	Priority       int             `json:"priority"                   db:"priority"`
	Payload        json.RawMessage `json:"payload"                    db:"payload"`
	ScheduledAt    time.Time       `json:"scheduled_at"               db:"scheduled_at"`
	StartedAt      *time.Time      `json:"started_at,omitempty"       db:"started_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"     db:"completed_at"`
	RetryCount     int             `json:"retry_count"                db:"retry_count"`
	MaxRetries     int             `json:"max_retries"                db:"max_retries"`
	LastError      *string         `json:"last_error,omitempty"       db:"last_error"`
	LeaseExpiresAt *time.Time      `json:"lease_expires_at,omitempty" db:"lease_expires_at"`
	CreatedAt      time.Time       `json:"created_at"                 db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"                 db:"updated_at"`
}

// LinkPayload decodes the job payload as a LinkJobPayload.
func (j *Job) LinkPayload() (*LinkJobPayload, error) {
	var p LinkJobPayload
	if err := json.Unmarshal(j.Payload, &p); err != nil {
		return nil, fmt.Errorf("decode link payload: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// LinkJobPayload is the payload of a link processing job. The queue treats it
// as opaque JSON; the pipeline orchestrator owns its semantics.
type LinkJobPayload struct {
	URL            string `json:"url"`
	ThreadID       string `json:"thread_id"`
	ChannelID      string `json:"channel_id"`
	TeamID         string `json:"team_id"`
	ExternalTeamID string `json:"external_team_id,omitempty"`
}

// Validate validates the LinkJobPayload fields. Failures carry the
// validation error code so transports can map them to client errors.
func (p *LinkJobPayload) Validate() error {
	u := strings.TrimSpace(p.URL)
	if u == "" {
		return apperrors.ValidationField("url", "url is required")
	}
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return apperrors.ValidationField("url", fmt.Sprintf("invalid url: %q", p.URL))
	}
	if strings.TrimSpace(p.ThreadID) == "" {
		return apperrors.ValidationField("thread_id", "thread id is required")
	}
	if strings.TrimSpace(p.ChannelID) == "" {
		return apperrors.ValidationField("channel_id", "channel id is required")
	}
	if strings.TrimSpace(p.TeamID) == "" {
		return apperrors.ValidationField("team_id", "team id is required")
	}
	return nil
}

// NaturalKey returns the (url, threadId, channelId) tuple identifying the
// ProcessingRecord this payload maps onto.
func (p *LinkJobPayload) NaturalKey() RecordKey {
	return RecordKey{
		URL:       strings.TrimSpace(p.URL),
		ThreadID:  strings.TrimSpace(p.ThreadID),
		ChannelID: strings.TrimSpace(p.ChannelID),
	}
}

// CreateJobRequest represents a request to create a new job.
type CreateJobRequest struct {
	Type        JobType         `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Priority    int             `json:"priority,omitempty"` // broker scale, ascending
	ScheduledAt *time.Time      `json:"scheduled_at,omitempty"`
	MaxRetries  int             `json:"max_retries"`
}

// Validate validates the CreateJobRequest fields.
func (r *CreateJobRequest) Validate() error {
	if !r.Type.Valid() {
		return errors.New("invalid job type")
	}
	if len(r.Payload) == 0 {
		return errors.New("payload is required")
	}
	if r.Priority < 0 || r.Priority > 100 {
		return errors.New("priority must be between 0 and 100")
	}
	if r.MaxRetries < 0 {
		return errors.New("max retries must be >= 0")
	}
	return nil
}

// EnqueueOptions carries caller-facing enqueue parameters.
type EnqueueOptions struct {
	// Priority is on the caller scale: 1 (lowest) to 10 (highest).
	// Zero means the default priority.
	Priority int
	// Delay postpones the first attempt.
	Delay time.Duration
}

// JobStats represents statistics about jobs in different states.
// Waiting counts pending jobs that are due; Delayed counts pending jobs
// scheduled in the future.
type JobStats struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Delayed   int `json:"delayed"`
}

// JobStatusResponse represents the status information for a specific job.
type JobStatusResponse struct {
	Status       JobStatus  `json:"status"`
	AttemptsMade int        `json:"attempts_made"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	LastError    *string    `json:"last_error,omitempty"`
}

// QueueHealth reports the queue manager's operational state.
type QueueHealth struct {
	Healthy         bool `json:"healthy"`
	Paused          bool `json:"paused"`
	BrokerConnected bool `json:"broker_connected"`
}
