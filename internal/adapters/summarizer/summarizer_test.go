package summarizer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briefcast/briefcast-go/config"
	"github.com/briefcast/briefcast-go/internal/core"
	"github.com/briefcast/briefcast-go/internal/domain/model"
	apperrors "github.com/briefcast/briefcast-go/internal/errors"
)

type chatRequest struct {
	Model       string  `json:"model"`
	Temperature float32 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func testConfig() config.SummarizeConfig {
	return config.SummarizeConfig{
		APIKey:         "test-key",
		Model:          "gpt-4o-mini",
		MaxWords:       150,
		MaxSourceWords: 2500,
		Temperature:    0.3,
	}
}

func testContent() *model.ExtractedContent {
	text := strings.Repeat("Rivers carry trade and water through every city along their banks. ", 20)
	return &model.ExtractedContent{
		URL:       "https://example.com/posts/rivers",
		Title:     "How Rivers Shape Cities",
		Text:      strings.TrimSpace(text),
		WordCount: model.CountWords(text),
	}
}

func chatHandler(t *testing.T, reply string, capture *chatRequest) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if capture != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(capture))
		}
		fmt.Fprintf(w, `{"choices":[{"message":{"role":"assistant","content":%q}}]}`, reply)
	}
}

func newSummarizer(t *testing.T, baseURL string) *Summarizer {
	t.Helper()
	s, err := New(Options{Config: testConfig(), BaseURL: baseURL})
	require.NoError(t, err)
	return s
}

func TestNew(t *testing.T) {
	t.Run("returns error when api key missing", func(t *testing.T) {
		cfg := testConfig()
		cfg.APIKey = ""
		_, err := New(Options{Config: cfg})
		assert.ErrorContains(t, err, "OPENAI_API_KEY")
	})
}

func TestSummarize(t *testing.T) {
	t.Run("sends model, temperature, and prompts", func(t *testing.T) {
		var got chatRequest
		server := httptest.NewServer(chatHandler(t, "A short narration script.", &got))
		defer server.Close()

		s := newSummarizer(t, server.URL)
		summary, err := s.Summarize(context.Background(), core.SummarizeRequest{
			Content:  testContent(),
			MaxWords: 120,
		})
		require.NoError(t, err)
		assert.Equal(t, "A short narration script.", summary)

		assert.Equal(t, "gpt-4o-mini", got.Model)
		assert.InDelta(t, 0.3, got.Temperature, 0.001)
		assert.Equal(t, 240, got.MaxTokens)
		require.Len(t, got.Messages, 2)
		assert.Equal(t, "system", got.Messages[0].Role)
		assert.Contains(t, got.Messages[0].Content, "spoken-word")
		assert.Equal(t, "user", got.Messages[1].Role)
		assert.Contains(t, got.Messages[1].Content, "at most 120 words")
		assert.Contains(t, got.Messages[1].Content, "How Rivers Shape Cities")
	})

	t.Run("truncates oversized source before the call", func(t *testing.T) {
		var got chatRequest
		server := httptest.NewServer(chatHandler(t, "Short script.", &got))
		defer server.Close()

		cfg := testConfig()
		cfg.MaxSourceWords = 50
		s, err := New(Options{Config: cfg, BaseURL: server.URL})
		require.NoError(t, err)

		_, err = s.Summarize(context.Background(), core.SummarizeRequest{Content: testContent()})
		require.NoError(t, err)

		require.Len(t, got.Messages, 2)
		sent := got.Messages[1].Content
		assert.LessOrEqual(t, model.CountWords(sent), 50+20) // prompt framing plus source
	})

	t.Run("caps a fifty-thousand-word source at the configured bound", func(t *testing.T) {
		var got chatRequest
		server := httptest.NewServer(chatHandler(t, "Short script.", &got))
		defer server.Close()

		words := make([]string, 50000)
		for i := range words {
			words[i] = fmt.Sprintf("w%d", i)
		}
		content := &model.ExtractedContent{
			URL:       "https://example.com/posts/megadump",
			Title:     "A Very Long Read",
			Text:      strings.Join(words, " "),
			WordCount: len(words),
		}

		s := newSummarizer(t, server.URL)
		_, err := s.Summarize(context.Background(), core.SummarizeRequest{Content: content})
		require.NoError(t, err)

		require.Len(t, got.Messages, 2)
		_, article, found := strings.Cut(got.Messages[1].Content, "Article:\n")
		require.True(t, found)
		sent := strings.Fields(article)
		require.Len(t, sent, 2500)
		assert.Equal(t, "w0", sent[0])
		assert.Equal(t, "w2499", sent[len(sent)-1])
		assert.Equal(t, 300, got.MaxTokens)
	})

	t.Run("falls back to configured max words", func(t *testing.T) {
		var got chatRequest
		server := httptest.NewServer(chatHandler(t, "Short script.", &got))
		defer server.Close()

		s := newSummarizer(t, server.URL)
		_, err := s.Summarize(context.Background(), core.SummarizeRequest{Content: testContent()})
		require.NoError(t, err)
		assert.Contains(t, got.Messages[1].Content, "at most 150 words")
	})

	t.Run("returns the reply without reshaping it", func(t *testing.T) {
		var got chatRequest
		server := httptest.NewServer(chatHandler(t, "  Exactly what the model said.  ", &got))
		defer server.Close()

		s := newSummarizer(t, server.URL)
		summary, err := s.Summarize(context.Background(), core.SummarizeRequest{
			Content:  testContent(),
			MaxWords: 100,
		})
		require.NoError(t, err)
		assert.Equal(t, "Exactly what the model said.", summary)
		assert.Equal(t, 200, got.MaxTokens)
	})

	t.Run("returns bad request for nil content", func(t *testing.T) {
		s := newSummarizer(t, "http://unused.invalid")
		_, err := s.Summarize(context.Background(), core.SummarizeRequest{})
		assert.True(t, apperrors.IsBadRequest(err))
	})

	t.Run("returns bad request for empty text", func(t *testing.T) {
		s := newSummarizer(t, "http://unused.invalid")
		_, err := s.Summarize(context.Background(), core.SummarizeRequest{
			Content: &model.ExtractedContent{Text: "   "},
		})
		assert.True(t, apperrors.IsBadRequest(err))
	})

	t.Run("classifies rate limiting", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error":{"message":"slow down","type":"rate_limit_error"}}`)
		}))
		defer server.Close()

		s := newSummarizer(t, server.URL)
		_, err := s.Summarize(context.Background(), core.SummarizeRequest{Content: testContent()})
		require.Error(t, err)
		assert.True(t, apperrors.IsRateLimited(err))
		assert.Contains(t, err.Error(), "Rate limit")
	})

	t.Run("classifies invalid input as bad request", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":{"message":"bad prompt","type":"invalid_request_error"}}`)
		}))
		defer server.Close()

		s := newSummarizer(t, server.URL)
		_, err := s.Summarize(context.Background(), core.SummarizeRequest{Content: testContent()})
		require.Error(t, err)
		assert.True(t, apperrors.IsBadRequest(err))
	})

	t.Run("classifies server failures as unavailable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		s := newSummarizer(t, server.URL)
		_, err := s.Summarize(context.Background(), core.SummarizeRequest{Content: testContent()})
		require.Error(t, err)
		assert.True(t, apperrors.IsUnavailable(err))
	})

	t.Run("empty reply is unavailable", func(t *testing.T) {
		server := httptest.NewServer(chatHandler(t, "   ", nil))
		defer server.Close()

		s := newSummarizer(t, server.URL)
		_, err := s.Summarize(context.Background(), core.SummarizeRequest{Content: testContent()})
		require.Error(t, err)
		assert.True(t, apperrors.IsUnavailable(err))
	})
}
