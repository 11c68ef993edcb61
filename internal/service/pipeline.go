package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/briefcast/briefcast-go/internal/core"
	"github.com/briefcast/briefcast-go/internal/domain/model"
	obserrors "github.com/briefcast/briefcast-go/internal/observability/errors"
	"github.com/briefcast/briefcast-go/internal/observability/metrics"
	"github.com/briefcast/briefcast-go/internal/observability/statsd"
)

// Progress milestones reported through the optional onProgress sink.
const (
	progressRecordReady   = 20
	progressExtracting    = 30
	progressExtracted     = 50
	progressSummarized    = 60
	progressAudioRendered = 80
	progressUploaded      = 90
	progressDone          = 100
)

// PipelineServiceOptions groups dependencies for PipelineService.
type PipelineServiceOptions struct {
	Records         core.RecordRepository        // Required: processing record persistence
	Channels        core.ChannelRepository       // Required: channel upserts
	Extractor       core.ContentExtractor        // Required: extraction stage
	Summarizer      core.Summarizer              // Required: summarization stage
	Speech          core.SpeechRenderer          // Required: audio rendering stage
	Store           core.BlobStore               // Required: artifact storage
	Notifier        core.BriefNotifier           // Optional: thread notification, best-effort
	ExtractionCache *core.ExtractionCacheService // Optional: URL-keyed extraction cache
	Logger          *slog.Logger                 // Optional: structured logger
	Metrics         statsd.Sink                  // Optional: per-stage metric sink
	MaxSummaryWords int                          // Optional: narration word budget (default 150)
}

// PipelineService sequences the five stages that turn a shared link into a
// narrated audio brief: extraction, summarization, audio rendering, storage
// upload, and notification. Stage failures are caught once at the top level;
// the ProcessingRecord is the durable account of what happened.
type PipelineService struct {
	records         core.RecordRepository
	channels        core.ChannelRepository
	extractor       core.ContentExtractor
	summarizer      core.Summarizer
	speech          core.SpeechRenderer
	store           core.BlobStore
	notifier        core.BriefNotifier
	extractionCache *core.ExtractionCacheService
	logger          *slog.Logger
	metrics         statsd.Sink
	maxSummaryWords int
}

// NewPipelineService constructs a new PipelineService.
func NewPipelineService(opts PipelineServiceOptions) (*PipelineService, error) {
	if opts.Records == nil {
		return nil, errors.New("RecordRepository is required")
	}
	if opts.Channels == nil {
		return nil, errors.New("ChannelRepository is required")
	}
	if opts.Extractor == nil {
		return nil, errors.New("ContentExtractor is required")
	}
	if opts.Summarizer == nil {
		return nil, errors.New("Summarizer is required")
	}
	if opts.Speech == nil {
		return nil, errors.New("SpeechRenderer is required")
	}
	if opts.Store == nil {
		return nil, errors.New("BlobStore is required")
	}

	maxWords := opts.MaxSummaryWords
	if maxWords <= 0 {
		maxWords = 150
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "pipeline_service")
	}

	return &PipelineService{
		records:         opts.Records,
		channels:        opts.Channels,
		extractor:       opts.Extractor,
		summarizer:      opts.Summarizer,
		speech:          opts.Speech,
		store:           opts.Store,
		notifier:        opts.Notifier,
		extractionCache: opts.ExtractionCache,
		logger:          logger,
		metrics:         opts.Metrics,
		maxSummaryWords: maxWords,
	}, nil
}

// Run processes one link payload through every stage. onProgress may be nil.
// An error return means the record was set to FAILED and the caller (worker
// or fallback executor) decides whether another attempt happens.
func (s *PipelineService) Run(
	ctx context.Context,
	payload *model.LinkJobPayload,
	onProgress func(int),
) error {
	if payload == nil {
		return errors.New("payload is required")
	}
	if err := payload.Validate(); err != nil {
		return fmt.Errorf("validate link payload: %w", err)
	}

	start := time.Now()
	record, err := s.setupRecord(ctx, payload)
	if err != nil {
		return fmt.Errorf("pipeline setup for %s: %w", payload.URL, err)
	}
	report(onProgress, progressRecordReady)

	if err := s.runStages(ctx, payload, record, onProgress); err != nil {
		s.markFailed(ctx, record, payload, err)
		s.emitStageMetric("pipeline", metrics.ResultError, time.Since(start), err)
		return fmt.Errorf("process link %s: %w", payload.URL, err)
	}

	s.emitStageMetric("pipeline", metrics.ResultSuccess, time.Since(start), nil)
	return nil
}

// setupRecord upserts the channel reference and the ProcessingRecord by its
// natural key, then transitions it to PROCESSING. Reuses the existing record
// when the same input is processed twice.
func (s *PipelineService) setupRecord(
	ctx context.Context,
	payload *model.LinkJobPayload,
) (*model.ProcessingRecord, error) {
	if _, err := s.channels.Upsert(ctx, payload.ChannelID, payload.TeamID); err != nil {
		return nil, fmt.Errorf("upsert channel %s: %w", payload.ChannelID, err)
	}

	record, err := s.records.Upsert(ctx, core.UpsertRecordParams{
		Key:    payload.NaturalKey(),
		TeamID: payload.TeamID,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert processing record: %w", err)
	}

	if err := s.records.SetStatus(ctx, core.SetRecordStatusParams{
		ID:     record.ID,
		Status: model.RecordStatusProcessing,
	}); err != nil {
		return nil, fmt.Errorf("mark record processing: %w", err)
	}
	record.Status = model.RecordStatusProcessing

	if s.logger != nil {
		s.logger.InfoContext(ctx, "pipeline started",
			"record_id", record.ID,
			"url", payload.URL,
			"channel_id", payload.ChannelID,
		)
	}
	return record, nil
}

func (s *PipelineService) runStages(
	ctx context.Context,
	payload *model.LinkJobPayload,
	record *model.ProcessingRecord,
	onProgress func(int),
) error {
	report(onProgress, progressExtracting)
	s.checkpoint(ctx, record.ID, progressExtracting)

	content, err := s.extract(ctx, payload.URL)
	if err != nil {
		return err
	}
	report(onProgress, progressExtracted)
	s.checkpoint(ctx, record.ID, progressExtracted)

	if err := s.records.SetContent(ctx, core.SetRecordContentParams{
		ID:            record.ID,
		Title:         &content.Title,
		CoverImageURL: optionalString(content.CoverImageURL),
	}); err != nil {
		return fmt.Errorf("store extracted content: %w", err)
	}

	summary, err := s.summarize(ctx, content)
	if err != nil {
		return err
	}
	report(onProgress, progressSummarized)
	s.checkpoint(ctx, record.ID, progressSummarized)

	if err := s.records.SetContent(ctx, core.SetRecordContentParams{
		ID:      record.ID,
		Summary: &summary,
	}); err != nil {
		return fmt.Errorf("store summary: %w", err)
	}

	artifact, err := s.renderAudio(ctx, record.ID, content.Title, summary)
	if err != nil {
		return err
	}
	report(onProgress, progressAudioRendered)
	s.checkpoint(ctx, record.ID, progressAudioRendered)

	audioURL, err := s.upload(ctx, artifact)
	if err != nil {
		return err
	}
	report(onProgress, progressUploaded)
	s.checkpoint(ctx, record.ID, progressUploaded)

	if err := s.records.SetAudio(ctx, core.SetRecordAudioParams{
		ID:               record.ID,
		AudioURL:         audioURL,
		StorageKey:       &artifact.FileName,
		SpokenTranscript: &artifact.SpokenTranscript,
	}); err != nil {
		return fmt.Errorf("store audio url: %w", err)
	}

	if err := s.records.SetStatus(ctx, core.SetRecordStatusParams{
		ID:     record.ID,
		Status: model.RecordStatusCompleted,
	}); err != nil {
		return fmt.Errorf("mark record completed: %w", err)
	}
	record.Status = model.RecordStatusCompleted
	record.Title = &content.Title
	record.Summary = &summary
	record.AudioURL = &audioURL

	s.notifySuccess(ctx, payload, record, audioURL)
	report(onProgress, progressDone)

	if s.logger != nil {
		s.logger.InfoContext(ctx, "pipeline completed",
			"record_id", record.ID,
			"url", payload.URL,
			"audio_url", audioURL,
			"stub_content", content.Stub,
		)
	}
	return nil
}

// extract runs the extraction stage, consulting the cache first and storing
// non-stub results after a real fetch. Cache trouble degrades to a fetch.
func (s *PipelineService) extract(ctx context.Context, url string) (*model.ExtractedContent, error) {
	if cached, err := s.extractionCache.Get(ctx, url); err == nil && cached != nil {
		if s.logger != nil {
			s.logger.DebugContext(ctx, "extraction cache hit", "url", url)
		}
		return cached, nil
	} else if err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "extraction cache read failed", "url", url, "error", err)
	}

	start := time.Now()
	content, err := s.extractor.Extract(ctx, url)
	if err != nil {
		s.emitStageMetric("extract", metrics.ResultError, time.Since(start), err)
		return nil, fmt.Errorf("extract %s: %w", url, err)
	}
	s.emitStageMetric("extract", metrics.ResultSuccess, time.Since(start), nil)

	if err := s.extractionCache.Put(ctx, content); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "extraction cache write failed", "url", url, "error", err)
	}
	return content, nil
}

func (s *PipelineService) summarize(ctx context.Context, content *model.ExtractedContent) (string, error) {
	start := time.Now()
	summary, err := s.summarizer.Summarize(ctx, core.SummarizeRequest{
		Content:  content,
		MaxWords: s.maxSummaryWords,
	})
	if err != nil {
		s.emitStageMetric("summarize", metrics.ResultError, time.Since(start), err)
		return "", fmt.Errorf("summarize %s: %w", content.URL, err)
	}
	s.emitStageMetric("summarize", metrics.ResultSuccess, time.Since(start), nil)
	return summary, nil
}

func (s *PipelineService) renderAudio(
	ctx context.Context,
	recordID, title, summary string,
) (*model.AudioArtifact, error) {
	start := time.Now()
	artifact, err := s.speech.Render(ctx, core.RenderSpeechRequest{
		Title:    title,
		Summary:  summary,
		RecordID: recordID,
	})
	if err != nil {
		s.emitStageMetric("render_audio", metrics.ResultError, time.Since(start), err)
		return nil, fmt.Errorf("render audio: %w", err)
	}
	s.emitStageMetric("render_audio", metrics.ResultSuccess, time.Since(start), nil)
	return artifact, nil
}

func (s *PipelineService) upload(ctx context.Context, artifact *model.AudioArtifact) (string, error) {
	start := time.Now()
	audioURL, err := s.store.Put(ctx, core.PutObjectParams{
		Name:        artifact.FileName,
		ContentType: artifact.ContentType,
		Data:        artifact.Data,
	})
	if err != nil {
		s.emitStageMetric("upload", metrics.ResultError, time.Since(start), err)
		return "", fmt.Errorf("store audio %s: %w", artifact.FileName, err)
	}
	s.emitStageMetric("upload", metrics.ResultSuccess, time.Since(start), nil)
	return audioURL, nil
}

// notifySuccess posts the brief into the originating thread. Failures are
// logged and swallowed: the audio already exists, so the COMPLETED status
// stands regardless of delivery.
func (s *PipelineService) notifySuccess(
	ctx context.Context,
	payload *model.LinkJobPayload,
	record *model.ProcessingRecord,
	audioURL string,
) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.SendBrief(ctx, core.BriefDelivery{
		Record:    record,
		AudioURL:  audioURL,
		ChannelID: payload.ChannelID,
		ThreadID:  payload.ThreadID,
	})
	if err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "brief notification failed",
			"record_id", record.ID,
			"channel_id", payload.ChannelID,
			"error", err,
		)
	}
}

// markFailed records the terminal failure and attempts a best-effort failure
// notice in the originating thread.
func (s *PipelineService) markFailed(
	ctx context.Context,
	record *model.ProcessingRecord,
	payload *model.LinkJobPayload,
	cause error,
) {
	msg := cause.Error()
	if err := s.records.SetStatus(ctx, core.SetRecordStatusParams{
		ID:           record.ID,
		Status:       model.RecordStatusFailed,
		ErrorMessage: &msg,
	}); err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "failed to mark record failed",
			"record_id", record.ID,
			"error", err,
		)
	}
	record.Status = model.RecordStatusFailed

	if s.logger != nil {
		s.logger.ErrorContext(ctx, "pipeline failed",
			"record_id", record.ID,
			"url", payload.URL,
			"error_class", obserrors.Classify(cause),
			"error", cause,
		)
	}

	if s.notifier == nil {
		return
	}
	err := s.notifier.SendFailure(ctx, core.BriefDelivery{
		Record:    record,
		ChannelID: payload.ChannelID,
		ThreadID:  payload.ThreadID,
	}, msg)
	if err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failure notification failed",
			"record_id", record.ID,
			"error", err,
		)
	}
}

func (s *PipelineService) checkpoint(ctx context.Context, recordID string, progress int) {
	if err := s.records.UpdateProgress(ctx, recordID, progress); err != nil && s.logger != nil {
		// Progress is advisory; a missed checkpoint never fails the run.
		s.logger.WarnContext(ctx, "progress checkpoint failed",
			"record_id", recordID,
			"progress", progress,
			"error", err,
		)
	}
}

func (s *PipelineService) emitStageMetric(stage, result string, duration time.Duration, err error) {
	if s.metrics == nil {
		return
	}

	tags := map[string]string{
		"stage":  stage,
		"result": result,
	}
	if err != nil && result == metrics.ResultError {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}

	s.metrics.Count("pipeline.stage", 1, tags)
	if duration > 0 {
		s.metrics.Timing("pipeline.stage_duration", duration, metrics.CloneTags(tags))
	}
}

func report(onProgress func(int), percent int) {
	if onProgress != nil {
		onProgress(percent)
	}
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
