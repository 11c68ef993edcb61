package model

import (
	"strings"
	"time"
)

// RecordStatus represents the lifecycle state of a ProcessingRecord.
type RecordStatus string

const (
	// RecordStatusPending indicates the record exists but processing has not started.
	RecordStatusPending RecordStatus = "PENDING"
	// RecordStatusProcessing indicates the pipeline is actively working the record.
	RecordStatusProcessing RecordStatus = "PROCESSING"
	// RecordStatusCompleted indicates all stages finished and the artifact is stored.
	RecordStatusCompleted RecordStatus = "COMPLETED"
	// RecordStatusFailed indicates a stage failed terminally.
	RecordStatusFailed RecordStatus = "FAILED"
)

// Valid returns true if the RecordStatus is valid.
func (s RecordStatus) Valid() bool {
	return s == RecordStatusPending || s == RecordStatusProcessing ||
		s == RecordStatusCompleted || s == RecordStatusFailed
}

// RecordKey is the natural key of a ProcessingRecord. A link shared twice in
// the same thread maps onto a single record.
type RecordKey struct {
	URL       string `json:"url"        db:"url"`
	ThreadID  string `json:"thread_id"  db:"thread_id"`
	ChannelID string `json:"channel_id" db:"channel_id"`
}

// Valid returns true when every component of the key is present.
func (k RecordKey) Valid() bool {
	return strings.TrimSpace(k.URL) != "" &&
		strings.TrimSpace(k.ThreadID) != "" &&
		strings.TrimSpace(k.ChannelID) != ""
}

// ProcessingRecord tracks one link through the pipeline. Progress moves
// monotonically from 0 to 100 as stages complete.
type ProcessingRecord struct {
	ID               string       `json:"id"                          db:"id"`
	URL              string       `json:"url"                         db:"url"`
	ThreadID         string       `json:"thread_id"                   db:"thread_id"`
	ChannelID        string       `json:"channel_id"                  db:"channel_id"`
	TeamID           string       `json:"team_id"                     db:"team_id"`
	Status           RecordStatus `json:"status"                      db:"status"`
	Progress         int          `json:"progress"                    db:"progress"`
	Title            *string      `json:"title,omitempty"             db:"title"`
	Summary          *string      `json:"summary,omitempty"           db:"summary"`
	AudioURL         *string      `json:"audio_url,omitempty"         db:"audio_url"`
	AudioStorageKey  *string      `json:"audio_storage_key,omitempty" db:"audio_storage_key"`
	SpokenTranscript *string      `json:"spoken_transcript,omitempty" db:"spoken_transcript"`
	CoverImageURL    *string      `json:"cover_image_url,omitempty"   db:"cover_image_url"`
	ErrorMessage     *string      `json:"error_message,omitempty"     db:"error_message"`
	CreatedAt        time.Time    `json:"created_at"                  db:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"                  db:"updated_at"`
}

// Key returns the record's natural key.
func (r *ProcessingRecord) Key() RecordKey {
	return RecordKey{URL: r.URL, ThreadID: r.ThreadID, ChannelID: r.ChannelID}
}

// Channel is a workspace channel the pipeline has seen. Upserted lazily the
// first time a link arrives from it.
type Channel struct {
	ID         string    `json:"id"          db:"id"`
	ExternalID string    `json:"external_id" db:"external_id"`
	TeamID     string    `json:"team_id"     db:"team_id"`
	CreatedAt  time.Time `json:"created_at"  db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"  db:"updated_at"`
}
