// Package summarizer compresses extracted article text into a short
// narration script through a chat completion model.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/briefcast/briefcast-go/config"
	"github.com/briefcast/briefcast-go/internal/core"
	"github.com/briefcast/briefcast-go/internal/domain/model"
	apperrors "github.com/briefcast/briefcast-go/internal/errors"
)

const systemPrompt = "You write concise spoken-word scripts for short audio briefs. " +
	"Summarize the article for a listener in plain conversational prose. " +
	"No headings, no bullet points, no markdown. Do not mention that you are summarizing."

// Options groups dependencies for the Summarizer.
type Options struct {
	Config     config.SummarizeConfig
	HTTPClient *http.Client // Optional
	Logger     *slog.Logger // Optional
	BaseURL    string       // Optional: overrides the upstream API URL
}

// Summarizer implements core.Summarizer against a chat completion API.
type Summarizer struct {
	cfg    config.SummarizeConfig
	client *openai.Client
	logger *slog.Logger
}

// New constructs a Summarizer.
func New(opts Options) (*Summarizer, error) {
	cfg := opts.Config
	cfg.Sanitize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("summarize config: %w", err)
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if opts.BaseURL != "" {
		clientCfg.BaseURL = opts.BaseURL
	}
	if opts.HTTPClient != nil {
		clientCfg.HTTPClient = opts.HTTPClient
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "summarizer")
	}

	return &Summarizer{
		cfg:    cfg,
		client: openai.NewClientWithConfig(clientCfg),
		logger: logger,
	}, nil
}

var _ core.Summarizer = (*Summarizer)(nil)

// Summarize produces a narration script no longer than the requested word
// count. Oversized source text is truncated before the upstream call.
func (s *Summarizer) Summarize(ctx context.Context, req core.SummarizeRequest) (string, error) {
	content := req.Content
	if content == nil {
		return "", apperrors.BadRequest("summarize: content is required")
	}
	text := strings.TrimSpace(content.Text)
	if text == "" {
		return "", apperrors.BadRequest("summarize: content text is empty")
	}

	maxWords := req.MaxWords
	if maxWords <= 0 {
		maxWords = s.cfg.MaxWords
	}

	source := model.TruncateWords(text, s.cfg.MaxSourceWords)

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.cfg.Model,
		Temperature: s.cfg.Temperature,
		MaxTokens:   maxOutputTokens(maxWords),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildUserPrompt(content.Title, source, maxWords)},
		},
	})
	if err != nil {
		return "", classifyUpstreamError(err, "chat completion")
	}
	if len(resp.Choices) == 0 {
		return "", apperrors.Unavailable("chat completion returned no choices")
	}

	summary := strings.TrimSpace(resp.Choices[0].Message.Content)
	if summary == "" {
		return "", apperrors.Unavailable("chat completion returned an empty script")
	}

	if s.logger != nil {
		s.logger.DebugContext(ctx, "narration script generated",
			"source_words", content.WordCount,
			"script_words", model.CountWords(summary),
		)
	}
	return summary, nil
}

// maxOutputTokens bounds the completion length. English prose averages well
// under two tokens per word; the headroom keeps the model from being cut
// mid-sentence while still capping runaway output.
func maxOutputTokens(maxWords int) int {
	return maxWords * 2
}

func buildUserPrompt(title, source string, maxWords int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Summarize the following article in at most %d words.\n\n", maxWords)
	if strings.TrimSpace(title) != "" {
		fmt.Fprintf(&b, "Title: %s\n\n", title)
	}
	b.WriteString("Article:\n")
	b.WriteString(source)
	return b.String()
}

// classifyUpstreamError maps upstream API failures onto application error
// codes so the queue can distinguish retryable load problems from rejected
// inputs.
func classifyUpstreamError(err error, op string) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return apperrors.RateLimited(fmt.Sprintf("Rate limit exceeded during %s", op))
		case apiErr.HTTPStatusCode >= 400 && apiErr.HTTPStatusCode < 500:
			return apperrors.BadRequest(fmt.Sprintf("%s rejected with status %d: %s",
				op, apiErr.HTTPStatusCode, apiErr.Message))
		}
	}
	return apperrors.Wrapf(err, apperrors.ErrCodeUnavailable, "%s failed", op)
}
