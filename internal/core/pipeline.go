package core

import (
	"context"

	"github.com/briefcast/briefcast-go/internal/domain/model"
)

// Pipeline stage ports. Adapters under internal/adapters implement these; the
// orchestrator in internal/service depends only on the interfaces.

// ContentExtractor fetches a URL and extracts readable article content.
// Implementations must not return an error for unreachable or unparseable
// pages; they degrade to stub content instead. Errors are reserved for
// conditions the caller should retry or reject (rate limits, bad requests,
// context cancellation).
type ContentExtractor interface {
	Extract(ctx context.Context, url string) (*model.ExtractedContent, error)
}

// SummarizeRequest groups the inputs of a summarization call.
type SummarizeRequest struct {
	Content  *model.ExtractedContent
	MaxWords int
}

// Summarizer condenses extracted content into a spoken-word friendly summary.
type Summarizer interface {
	Summarize(ctx context.Context, req SummarizeRequest) (string, error)
}

// RenderSpeechRequest groups the inputs of a text-to-speech call.
type RenderSpeechRequest struct {
	Title    string
	Summary  string
	RecordID string
}

// SpeechRenderer converts a summary into an audio artifact.
type SpeechRenderer interface {
	Render(ctx context.Context, req RenderSpeechRequest) (*model.AudioArtifact, error)
}

// BriefDelivery groups everything needed to announce a finished brief.
type BriefDelivery struct {
	Record    *model.ProcessingRecord
	AudioURL  string
	ChannelID string
	ThreadID  string
}

// BriefNotifier announces pipeline outcomes back to the originating thread.
// Send failures must not fail the pipeline; callers log and continue.
type BriefNotifier interface {
	SendBrief(ctx context.Context, delivery BriefDelivery) error
	SendFailure(ctx context.Context, delivery BriefDelivery, reason string) error
}
