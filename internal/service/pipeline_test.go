package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/briefcast/briefcast-go/internal/core"
	"github.com/briefcast/briefcast-go/internal/domain/model"
	"github.com/briefcast/briefcast-go/internal/mocks"
)

type stubExtractor struct {
	content *model.ExtractedContent
	err     error
	calls   int
}

func (s *stubExtractor) Extract(_ context.Context, url string) (*model.ExtractedContent, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if s.content != nil {
		return s.content, nil
	}
	return &model.ExtractedContent{
		URL:       url,
		Title:     "Extracted Title",
		Text:      "Extracted body text.",
		WordCount: 3,
	}, nil
}

type stubSummarizer struct {
	summary     string
	err         error
	gotMaxWords int
}

func (s *stubSummarizer) Summarize(_ context.Context, req core.SummarizeRequest) (string, error) {
	s.gotMaxWords = req.MaxWords
	if s.err != nil {
		return "", s.err
	}
	if s.summary != "" {
		return s.summary, nil
	}
	return "A short spoken summary.", nil
}

type stubSpeech struct {
	artifact *model.AudioArtifact
	err      error
}

func (s *stubSpeech) Render(_ context.Context, req core.RenderSpeechRequest) (*model.AudioArtifact, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.artifact != nil {
		return s.artifact, nil
	}
	return &model.AudioArtifact{
		Data:             []byte("mp3-bytes"),
		FileName:         req.RecordID + ".mp3",
		ContentType:      "audio/mpeg",
		SpokenTranscript: "Here's your audio brief of " + req.Title + ". " + req.Summary,
	}, nil
}

type stubBlobStore struct {
	url string
	err error
	put core.PutObjectParams
}

func (s *stubBlobStore) Put(_ context.Context, params core.PutObjectParams) (string, error) {
	s.put = params
	if s.err != nil {
		return "", s.err
	}
	if s.url != "" {
		return s.url, nil
	}
	return "/uploads/" + params.Name, nil
}

type stubBriefNotifier struct {
	briefs     []core.BriefDelivery
	failures   []core.BriefDelivery
	reasons    []string
	sendErr    error
	failureErr error
}

func (s *stubBriefNotifier) SendBrief(_ context.Context, delivery core.BriefDelivery) error {
	s.briefs = append(s.briefs, delivery)
	return s.sendErr
}

func (s *stubBriefNotifier) SendFailure(
	_ context.Context,
	delivery core.BriefDelivery,
	reason string,
) error {
	s.failures = append(s.failures, delivery)
	s.reasons = append(s.reasons, reason)
	return s.failureErr
}

var (
	_ core.ContentExtractor = (*stubExtractor)(nil)
	_ core.Summarizer       = (*stubSummarizer)(nil)
	_ core.SpeechRenderer   = (*stubSpeech)(nil)
	_ core.BlobStore        = (*stubBlobStore)(nil)
	_ core.BriefNotifier    = (*stubBriefNotifier)(nil)
)

type pipelineFixture struct {
	records    *mocks.MockRecordRepository
	channels   *mocks.MockChannelRepository
	extractor  *stubExtractor
	summarizer *stubSummarizer
	speech     *stubSpeech
	store      *stubBlobStore
	notifier   *stubBriefNotifier
}

func newPipelineFixture(ctrl *gomock.Controller) *pipelineFixture {
	return &pipelineFixture{
		records:    mocks.NewMockRecordRepository(ctrl),
		channels:   mocks.NewMockChannelRepository(ctrl),
		extractor:  &stubExtractor{},
		summarizer: &stubSummarizer{},
		speech:     &stubSpeech{},
		store:      &stubBlobStore{},
		notifier:   &stubBriefNotifier{},
	}
}

func (f *pipelineFixture) options() PipelineServiceOptions {
	return PipelineServiceOptions{
		Records:    f.records,
		Channels:   f.channels,
		Extractor:  f.extractor,
		Summarizer: f.summarizer,
		Speech:     f.speech,
		Store:      f.store,
		Notifier:   f.notifier,
	}
}

func (f *pipelineFixture) service(t *testing.T) *PipelineService {
	t.Helper()
	svc, err := NewPipelineService(f.options())
	require.NoError(t, err)
	return svc
}

// expectSetup wires the record setup calls every successful run performs.
func (f *pipelineFixture) expectSetup(payload *model.LinkJobPayload, recordID string) {
	f.channels.EXPECT().
		Upsert(gomock.Any(), payload.ChannelID, payload.TeamID).
		Return(&model.Channel{ID: "ch-1", ExternalID: payload.ChannelID}, nil)
	f.records.EXPECT().
		Upsert(gomock.Any(), core.UpsertRecordParams{
			Key:    payload.NaturalKey(),
			TeamID: payload.TeamID,
		}).
		Return(&model.ProcessingRecord{ID: recordID, Status: model.RecordStatusPending}, nil)
	f.records.EXPECT().
		SetStatus(gomock.Any(), core.SetRecordStatusParams{
			ID:     recordID,
			Status: model.RecordStatusProcessing,
		}).
		Return(nil)
	f.records.EXPECT().
		UpdateProgress(gomock.Any(), recordID, gomock.Any()).
		Return(nil).
		AnyTimes()
}

func TestNewPipelineService(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	fixture := newPipelineFixture(ctrl)

	t.Run("success", func(t *testing.T) {
		svc, err := NewPipelineService(fixture.options())
		require.NoError(t, err)
		assert.NotNil(t, svc)
		assert.Equal(t, 150, svc.maxSummaryWords)
	})

	t.Run("missing required dependencies", func(t *testing.T) {
		cases := []struct {
			name   string
			mutate func(*PipelineServiceOptions)
			want   string
		}{
			{"records", func(o *PipelineServiceOptions) { o.Records = nil }, "RecordRepository is required"},
			{"channels", func(o *PipelineServiceOptions) { o.Channels = nil }, "ChannelRepository is required"},
			{"extractor", func(o *PipelineServiceOptions) { o.Extractor = nil }, "ContentExtractor is required"},
			{"summarizer", func(o *PipelineServiceOptions) { o.Summarizer = nil }, "Summarizer is required"},
			{"speech", func(o *PipelineServiceOptions) { o.Speech = nil }, "SpeechRenderer is required"},
			{"store", func(o *PipelineServiceOptions) { o.Store = nil }, "BlobStore is required"},
		}

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				opts := fixture.options()
				tc.mutate(&opts)
				svc, err := NewPipelineService(opts)
				require.Error(t, err)
				assert.Nil(t, svc)
				assert.Contains(t, err.Error(), tc.want)
			})
		}
	})
}

func TestPipelineService_Run_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	fixture := newPipelineFixture(ctrl)
	payload := validLinkPayload()
	const recordID = "rec-1"

	fixture.expectSetup(payload, recordID)

	fixture.records.EXPECT().
		SetContent(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, params core.SetRecordContentParams) error {
			assert.Equal(t, recordID, params.ID)
			require.NotNil(t, params.Title)
			assert.Equal(t, "Extracted Title", *params.Title)
			assert.Nil(t, params.Summary)
			return nil
		})
	fixture.records.EXPECT().
		SetContent(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, params core.SetRecordContentParams) error {
			require.NotNil(t, params.Summary)
			assert.Equal(t, "A short spoken summary.", *params.Summary)
			return nil
		})
	fixture.records.EXPECT().
		SetAudio(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, params core.SetRecordAudioParams) error {
			assert.Equal(t, recordID, params.ID)
			assert.Equal(t, "/uploads/rec-1.mp3", params.AudioURL)
			require.NotNil(t, params.StorageKey)
			assert.Equal(t, "rec-1.mp3", *params.StorageKey)
			require.NotNil(t, params.SpokenTranscript)
			assert.Contains(t, *params.SpokenTranscript, "Here's your audio brief of")
			return nil
		})
	fixture.records.EXPECT().
		SetStatus(gomock.Any(), core.SetRecordStatusParams{
			ID:     recordID,
			Status: model.RecordStatusCompleted,
		}).
		Return(nil)

	var milestones []int
	svc := fixture.service(t)
	err := svc.Run(context.Background(), payload, func(p int) {
		milestones = append(milestones, p)
	})
	require.NoError(t, err)

	assert.Equal(t, []int{20, 30, 50, 60, 80, 90, 100}, milestones)
	assert.Equal(t, 150, fixture.summarizer.gotMaxWords)
	assert.Equal(t, "audio/mpeg", fixture.store.put.ContentType)

	require.Len(t, fixture.notifier.briefs, 1)
	delivery := fixture.notifier.briefs[0]
	assert.Equal(t, payload.ChannelID, delivery.ChannelID)
	assert.Equal(t, payload.ThreadID, delivery.ThreadID)
	assert.Equal(t, "/uploads/rec-1.mp3", delivery.AudioURL)
	require.NotNil(t, delivery.Record)
	assert.Equal(t, model.RecordStatusCompleted, delivery.Record.Status)
	assert.Empty(t, fixture.notifier.failures)
}

func TestPipelineService_Run_ExtractionFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	fixture := newPipelineFixture(ctrl)
	fixture.extractor.err = errors.New("rate limited by provider")
	payload := validLinkPayload()
	const recordID = "rec-2"

	fixture.expectSetup(payload, recordID)

	fixture.records.EXPECT().
		SetStatus(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, params core.SetRecordStatusParams) error {
			assert.Equal(t, recordID, params.ID)
			assert.Equal(t, model.RecordStatusFailed, params.Status)
			require.NotNil(t, params.ErrorMessage)
			assert.Contains(t, *params.ErrorMessage, "rate limited by provider")
			return nil
		})

	svc := fixture.service(t)
	err := svc.Run(context.Background(), payload, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited by provider")

	require.Len(t, fixture.notifier.failures, 1)
	assert.Contains(t, fixture.notifier.reasons[0], "rate limited by provider")
	assert.Empty(t, fixture.notifier.briefs)
}

func TestPipelineService_Run_NotifyFailureDoesNotFailRun(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	fixture := newPipelineFixture(ctrl)
	fixture.notifier.sendErr = errors.New("channel archived")
	payload := validLinkPayload()
	const recordID = "rec-3"

	fixture.expectSetup(payload, recordID)
	fixture.records.EXPECT().SetContent(gomock.Any(), gomock.Any()).Return(nil).Times(2)
	fixture.records.EXPECT().SetAudio(gomock.Any(), gomock.Any()).Return(nil)
	fixture.records.EXPECT().
		SetStatus(gomock.Any(), core.SetRecordStatusParams{
			ID:     recordID,
			Status: model.RecordStatusCompleted,
		}).
		Return(nil)

	svc := fixture.service(t)
	err := svc.Run(context.Background(), payload, nil)
	require.NoError(t, err)
	require.Len(t, fixture.notifier.briefs, 1)
}

func TestPipelineService_Run_CacheHitSkipsExtractor(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	fixture := newPipelineFixture(ctrl)
	payload := validLinkPayload()
	const recordID = "rec-4"

	cache := core.NewExtractionCacheService(core.ExtractionCacheServiceOptions{
		Cache: newStubCache(),
	})
	cached := &model.ExtractedContent{
		URL:       payload.URL,
		Title:     "Cached Title",
		Text:      "Cached body.",
		WordCount: 2,
	}
	require.NoError(t, cache.Put(context.Background(), cached))

	fixture.expectSetup(payload, recordID)
	fixture.records.EXPECT().
		SetContent(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, params core.SetRecordContentParams) error {
			if params.Title != nil {
				assert.Equal(t, "Cached Title", *params.Title)
			}
			return nil
		}).
		Times(2)
	fixture.records.EXPECT().SetAudio(gomock.Any(), gomock.Any()).Return(nil)
	fixture.records.EXPECT().
		SetStatus(gomock.Any(), core.SetRecordStatusParams{
			ID:     recordID,
			Status: model.RecordStatusCompleted,
		}).
		Return(nil)

	opts := fixture.options()
	opts.ExtractionCache = cache
	svc, err := NewPipelineService(opts)
	require.NoError(t, err)

	require.NoError(t, svc.Run(context.Background(), payload, nil))
	assert.Zero(t, fixture.extractor.calls, "cache hit should skip the fetch")
}

func TestPipelineService_Run_StubContentIsNotCached(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	fixture := newPipelineFixture(ctrl)
	payload := validLinkPayload()
	const recordID = "rec-5"

	fixture.extractor.content = &model.ExtractedContent{
		URL:   payload.URL,
		Title: payload.URL,
		Text:  "Content could not be retrieved.",
		Stub:  true,
	}

	backing := newStubCache()
	cache := core.NewExtractionCacheService(core.ExtractionCacheServiceOptions{Cache: backing})

	fixture.expectSetup(payload, recordID)
	fixture.records.EXPECT().SetContent(gomock.Any(), gomock.Any()).Return(nil).Times(2)
	fixture.records.EXPECT().SetAudio(gomock.Any(), gomock.Any()).Return(nil)
	fixture.records.EXPECT().
		SetStatus(gomock.Any(), core.SetRecordStatusParams{
			ID:     recordID,
			Status: model.RecordStatusCompleted,
		}).
		Return(nil)

	opts := fixture.options()
	opts.ExtractionCache = cache
	svc, err := NewPipelineService(opts)
	require.NoError(t, err)

	require.NoError(t, svc.Run(context.Background(), payload, nil))
	assert.Equal(t, 1, fixture.extractor.calls)
	assert.Empty(t, backing.data, "stub content must not be cached")
}

func TestPipelineService_Run_InvalidPayload(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	fixture := newPipelineFixture(ctrl)
	svc := fixture.service(t)

	t.Run("nil payload", func(t *testing.T) {
		err := svc.Run(context.Background(), nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "payload is required")
	})

	t.Run("missing thread id", func(t *testing.T) {
		payload := validLinkPayload()
		payload.ThreadID = ""
		err := svc.Run(context.Background(), payload, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "thread id is required")
	})
}

func TestPipelineService_Run_ChannelUpsertFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	fixture := newPipelineFixture(ctrl)
	payload := validLinkPayload()

	fixture.channels.EXPECT().
		Upsert(gomock.Any(), payload.ChannelID, payload.TeamID).
		Return(nil, errors.New("connection refused"))

	svc := fixture.service(t)
	err := svc.Run(context.Background(), payload, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert channel")
	assert.Zero(t, fixture.extractor.calls)
}

func TestPipelineService_Run_WithoutNotifier(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	fixture := newPipelineFixture(ctrl)
	payload := validLinkPayload()
	const recordID = "rec-6"

	fixture.expectSetup(payload, recordID)
	fixture.records.EXPECT().SetContent(gomock.Any(), gomock.Any()).Return(nil).Times(2)
	fixture.records.EXPECT().SetAudio(gomock.Any(), gomock.Any()).Return(nil)
	fixture.records.EXPECT().
		SetStatus(gomock.Any(), core.SetRecordStatusParams{
			ID:     recordID,
			Status: model.RecordStatusCompleted,
		}).
		Return(nil)

	opts := fixture.options()
	opts.Notifier = nil
	svc, err := NewPipelineService(opts)
	require.NoError(t, err)

	require.NoError(t, svc.Run(context.Background(), payload, nil))
}
