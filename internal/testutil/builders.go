// Package testutil provides testing utilities and helpers for the briefcast job system.
package testutil

import (
	"encoding/json"
	"time"

	"github.com/briefcast/briefcast-go/internal/domain/model"
)

// JobRequestBuilder provides a fluent interface for building CreateJobRequest objects for testing.
type JobRequestBuilder struct {
	req *model.CreateJobRequest
}

// NewJobRequest creates a new JobRequestBuilder with sensible defaults.
func NewJobRequest() *JobRequestBuilder {
	return &JobRequestBuilder{
		req: &model.CreateJobRequest{
			Type:       model.JobTypeLink,
			Priority:   5,
			Payload:    LinkPayloadJSON("https://example.com/article"),
			MaxRetries: 3,
		},
	}
}

// WithType sets the job type.
func (b *JobRequestBuilder) WithType(jobType model.JobType) *JobRequestBuilder {
	b.req.Type = jobType
	return b
}

// WithPriority sets the job priority on the broker scale.
func (b *JobRequestBuilder) WithPriority(priority int) *JobRequestBuilder {
	b.req.Priority = priority
	return b
}

// WithPayload sets the job payload.
func (b *JobRequestBuilder) WithPayload(payload json.RawMessage) *JobRequestBuilder {
	b.req.Payload = payload
	return b
}

// WithPayloadString sets the job payload from a string.
func (b *JobRequestBuilder) WithPayloadString(payload string) *JobRequestBuilder {
	b.req.Payload = json.RawMessage(payload)
	return b
}

// WithURL sets a link payload for the given URL with fixed thread and channel identifiers.
func (b *JobRequestBuilder) WithURL(url string) *JobRequestBuilder {
	b.req.Payload = LinkPayloadJSON(url)
	return b
}

// WithScheduledAt sets the scheduled time.
func (b *JobRequestBuilder) WithScheduledAt(scheduledAt time.Time) *JobRequestBuilder {
	b.req.ScheduledAt = &scheduledAt
	return b
}

// WithMaxRetries sets the maximum number of retries.
func (b *JobRequestBuilder) WithMaxRetries(maxRetries int) *JobRequestBuilder {
	b.req.MaxRetries = maxRetries
	return b
}

// Build returns the constructed CreateJobRequest.
func (b *JobRequestBuilder) Build() *model.CreateJobRequest {
	return b.req
}

// LinkPayloadJSON builds a valid link job payload for the given URL.
func LinkPayloadJSON(url string) json.RawMessage {
	raw, err := json.Marshal(model.LinkJobPayload{
		URL:       url,
		ThreadID:  "1725000000.000100",
		ChannelID: "C0TESTCHAN1",
		TeamID:    "T0TESTTEAM1",
	})
	if err != nil {
		panic(err)
	}
	return raw
}

// LinkPayload builds a valid LinkJobPayload value for the given URL.
func LinkPayload(url string) model.LinkJobPayload {
	return model.LinkJobPayload{
		URL:       url,
		ThreadID:  "1725000000.000100",
		ChannelID: "C0TESTCHAN1",
		TeamID:    "T0TESTTEAM1",
	}
}

// Common test job request presets

// LinkJobRequest creates a link job request with default values.
func LinkJobRequest() *model.CreateJobRequest {
	return NewJobRequest().Build()
}

// HighPriorityJobRequest creates a job request that should be served first
// under ascending broker priority order.
func HighPriorityJobRequest() *model.CreateJobRequest {
	return NewJobRequest().
		WithPriority(1).
		WithURL("https://example.com/urgent").
		Build()
}

// LowPriorityJobRequest creates a job request that should be served last.
func LowPriorityJobRequest() *model.CreateJobRequest {
	return NewJobRequest().
		WithPriority(10).
		WithURL("https://example.com/background").
		Build()
}

// ScheduledJobRequest creates a job request scheduled for the future.
func ScheduledJobRequest(scheduledAt time.Time) *model.CreateJobRequest {
	return NewJobRequest().
		WithScheduledAt(scheduledAt).
		WithURL("https://example.com/scheduled").
		Build()
}

// RetryableJobRequest creates a job request with custom retry settings.
func RetryableJobRequest(maxRetries int) *model.CreateJobRequest {
	return NewJobRequest().
		WithMaxRetries(maxRetries).
		WithURL("https://example.com/retryable").
		Build()
}
