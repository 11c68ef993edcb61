// Package extractor fetches shared links through a remote fetch/render
// service and distills them into readable article content.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	readability "github.com/go-shiori/go-readability"

	"github.com/briefcast/briefcast-go/config"
	"github.com/briefcast/briefcast-go/internal/core"
	"github.com/briefcast/briefcast-go/internal/domain/model"
	apperrors "github.com/briefcast/briefcast-go/internal/errors"
)

// maxResponseBytes caps how much rendered HTML one fetch may return.
const maxResponseBytes = 4 << 20

// Options groups dependencies for the Extractor.
type Options struct {
	Config     config.ExtractionConfig
	HTTPClient *http.Client // Optional: per-attempt timeouts come from the context
	Logger     *slog.Logger // Optional: structured logger
}

// Extractor implements core.ContentExtractor against a remote fetch/render
// service. The primary attempt renders JavaScript and waits for dynamic
// content; transient failures degrade to a cheaper static fetch, and a total
// failure degrades to stub content rather than an error.
type Extractor struct {
	cfg    config.ExtractionConfig
	http   *http.Client
	logger *slog.Logger
}

// attemptParams tune one fetch attempt.
type attemptParams struct {
	render   bool
	minChars int
	timeout  timeoutSetting
}

type timeoutSetting int

const (
	primaryTimeout timeoutSetting = iota
	fallbackTimeout
)

// New constructs an Extractor.
func New(opts Options) (*Extractor, error) {
	cfg := opts.Config
	cfg.Sanitize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("extraction config: %w", err)
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "extractor")
	}

	return &Extractor{
		cfg:    cfg,
		http:   hc,
		logger: logger,
	}, nil
}

var _ core.ContentExtractor = (*Extractor)(nil)

// Extract fetches and parses the target URL. It returns an error only for
// conditions a retry or rejection should handle (rate limits, bad requests,
// context cancellation); everything else degrades to stub content.
func (e *Extractor) Extract(ctx context.Context, target string) (*model.ExtractedContent, error) {
	content, err := e.attempt(ctx, target, attemptParams{
		render:   true,
		minChars: e.cfg.MinContentChars,
		timeout:  primaryTimeout,
	})
	if err == nil {
		return content, nil
	}
	if !shouldFallBack(err) {
		return nil, err
	}

	if e.logger != nil {
		e.logger.WarnContext(ctx, "primary extraction failed, trying static fetch",
			"url", target,
			"error", err,
		)
	}

	content, ferr := e.attempt(ctx, target, attemptParams{
		render:   false,
		minChars: e.cfg.FallbackMinContentChars,
		timeout:  fallbackTimeout,
	})
	if ferr == nil {
		return content, nil
	}
	if !shouldFallBack(ferr) {
		return nil, ferr
	}

	if e.logger != nil {
		e.logger.WarnContext(ctx, "extraction exhausted all fetch strategies, using stub content",
			"url", target,
			"error", ferr,
		)
	}
	return StubContent(target), nil
}

// shouldFallBack reports whether an attempt error permits trying a cheaper
// strategy. Rate limits hit the same upstream on every strategy, invalid
// requests fail identically, and a cancelled caller is done waiting.
func shouldFallBack(err error) bool {
	if apperrors.IsRateLimited(err) || apperrors.IsBadRequest(err) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

func (e *Extractor) attempt(
	ctx context.Context,
	target string,
	params attemptParams,
) (*model.ExtractedContent, error) {
	timeout := e.cfg.PrimaryTimeout
	if params.timeout == fallbackTimeout {
		timeout = e.cfg.FallbackTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	html, err := e.fetch(ctx, target, params.render)
	if err != nil {
		return nil, err
	}
	return e.parse(target, html, params.minChars)
}

func (e *Extractor) fetch(ctx context.Context, target string, render bool) (string, error) {
	reqURL, err := e.buildRequestURL(target, render)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("build fetch request: %w", err)
	}

	resp, err := e.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", context.Canceled
		}
		return "", apperrors.Wrapf(err, apperrors.ErrCodeUnavailable, "fetch %s", target)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", apperrors.RateLimited(
			fmt.Sprintf("Rate limit exceeded while fetching %s", target))
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return "", apperrors.BadRequest(
			fmt.Sprintf("fetch service rejected %s with status %d", target, resp.StatusCode))
	default:
		return "", apperrors.Unavailable(
			fmt.Sprintf("fetch service returned status %d for %s", resp.StatusCode, target))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", context.Canceled
		}
		return "", apperrors.Wrapf(err, apperrors.ErrCodeUnavailable, "read fetch response for %s", target)
	}
	return string(body), nil
}

func (e *Extractor) buildRequestURL(target string, render bool) (string, error) {
	base, err := url.Parse(e.cfg.Endpoint)
	if err != nil {
		return "", fmt.Errorf("parse extraction endpoint: %w", err)
	}

	q := base.Query()
	q.Set("api_key", e.cfg.APIKey)
	q.Set("url", target)
	q.Set("render_js", strconv.FormatBool(render))
	if render {
		q.Set("wait", strconv.FormatInt(e.cfg.RenderWait.Milliseconds(), 10))
	}
	base.RawQuery = q.Encode()
	return base.String(), nil
}

func (e *Extractor) parse(target, html string, minChars int) (*model.ExtractedContent, error) {
	pageURL, err := url.Parse(target)
	if err != nil {
		return nil, apperrors.BadRequest(fmt.Sprintf("invalid target url %q", target))
	}

	article, err := readability.FromReader(strings.NewReader(html), pageURL)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeUnavailable, "parse article at %s", target)
	}

	text := strings.TrimSpace(article.TextContent)
	if len(text) < minChars {
		return nil, apperrors.Unavailable(
			fmt.Sprintf("insufficient content at %s: %d chars, need %d", target, len(text), minChars))
	}

	title := CleanTitle(article.Title)
	if title == "" {
		title = TitleFromURL(target)
	}

	return &model.ExtractedContent{
		URL:           target,
		Title:         title,
		Text:          text,
		WordCount:     model.CountWords(text),
		CoverImageURL: coverImageURL(html, pageURL),
	}, nil
}

// StubContent synthesizes a placeholder extraction result. The pipeline
// prefers a degraded but playable brief over aborting the job on a bad fetch.
func StubContent(target string) *model.ExtractedContent {
	text := fmt.Sprintf(
		"We couldn't retrieve the full content of this article. "+
			"Visit the original link to read it: %s", target)
	return &model.ExtractedContent{
		URL:       target,
		Title:     TitleFromURL(target),
		Text:      text,
		WordCount: model.CountWords(text),
		Stub:      true,
	}
}

// CleanTitle strips common site-name suffixes and collapses whitespace.
func CleanTitle(title string) string {
	title = strings.Join(strings.Fields(title), " ")
	for _, sep := range []string{" - ", " | ", " — "} {
		if idx := strings.LastIndex(title, sep); idx > 0 {
			// Only treat it as a suffix when the main part carries the weight.
			if idx >= len(title)/2 {
				title = title[:idx]
			}
		}
	}
	return strings.TrimSpace(title)
}

// TitleFromURL derives a human-readable title from the URL path, falling back
// to the hostname.
func TitleFromURL(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}

	segment := ""
	for _, part := range strings.Split(u.Path, "/") {
		if strings.TrimSpace(part) != "" {
			segment = part
		}
	}
	if segment != "" {
		if idx := strings.LastIndex(segment, "."); idx > 0 {
			segment = segment[:idx]
		}
		segment = strings.NewReplacer("-", " ", "_", " ").Replace(segment)
		segment = strings.Join(strings.Fields(segment), " ")
		if segment != "" {
			return segment
		}
	}
	if u.Hostname() != "" {
		return u.Hostname()
	}
	return target
}
