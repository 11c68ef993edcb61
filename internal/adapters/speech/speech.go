// Package speech renders narration scripts into MP3 audio through a
// text-to-speech model.
package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"github.com/briefcast/briefcast-go/config"
	"github.com/briefcast/briefcast-go/internal/core"
	"github.com/briefcast/briefcast-go/internal/domain/model"
	apperrors "github.com/briefcast/briefcast-go/internal/errors"
)

// maxAudioBytes caps one synthesized file. A one-minute brief at speech
// bitrates stays well under this.
const maxAudioBytes = 32 << 20

// Options groups dependencies for the Renderer.
type Options struct {
	Config     config.SpeechConfig
	APIKey     string
	HTTPClient *http.Client // Optional
	Logger     *slog.Logger // Optional
	BaseURL    string       // Optional: overrides the upstream API URL
}

// Renderer implements core.SpeechRenderer against a text-to-speech API.
type Renderer struct {
	cfg    config.SpeechConfig
	client *openai.Client
	logger *slog.Logger
}

// New constructs a Renderer.
func New(opts Options) (*Renderer, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("speech: api key is required")
	}
	cfg := opts.Config
	cfg.Sanitize()

	clientCfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		clientCfg.BaseURL = opts.BaseURL
	}
	if opts.HTTPClient != nil {
		clientCfg.HTTPClient = opts.HTTPClient
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "speech")
	}

	return &Renderer{
		cfg:    cfg,
		client: openai.NewClientWithConfig(clientCfg),
		logger: logger,
	}, nil
}

var _ core.SpeechRenderer = (*Renderer)(nil)

// Render synthesizes the spoken transcript for a brief. The transcript opens
// with a short intro naming the article before the narration script.
func (r *Renderer) Render(ctx context.Context, req core.RenderSpeechRequest) (*model.AudioArtifact, error) {
	summary := strings.TrimSpace(req.Summary)
	if summary == "" {
		return nil, apperrors.BadRequest("render speech: summary is required")
	}

	transcript := BuildTranscript(req.Title, summary)

	resp, err := r.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(r.cfg.Model),
		Input:          transcript,
		Voice:          openai.SpeechVoice(r.cfg.Voice),
		Speed:          r.cfg.Speed,
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, classifyUpstreamError(err)
	}
	defer func() { _ = resp.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp, maxAudioBytes))
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeUnavailable, "read synthesized audio")
	}
	if len(data) == 0 {
		return nil, apperrors.Unavailable("speech synthesis returned no audio")
	}

	fileName := uuid.NewString() + ".mp3"
	if r.logger != nil {
		r.logger.DebugContext(ctx, "audio rendered",
			"record_id", req.RecordID,
			"file", fileName,
			"bytes", len(data),
		)
	}

	return &model.AudioArtifact{
		Data:             data,
		FileName:         fileName,
		ContentType:      "audio/mpeg",
		SpokenTranscript: transcript,
	}, nil
}

// BuildTranscript composes the exact text handed to the voice model.
func BuildTranscript(title, summary string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return summary
	}
	return fmt.Sprintf("Here's your audio brief of %s. %s", title, summary)
}

func classifyUpstreamError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return apperrors.RateLimited("Rate limit exceeded during speech synthesis")
		case apiErr.HTTPStatusCode >= 400 && apiErr.HTTPStatusCode < 500:
			return apperrors.BadRequest(fmt.Sprintf("speech synthesis rejected with status %d: %s",
				apiErr.HTTPStatusCode, apiErr.Message))
		}
	}
	return apperrors.Wrapf(err, apperrors.ErrCodeUnavailable, "speech synthesis failed")
}
