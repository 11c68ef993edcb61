// Package slacknotify posts pipeline outcomes back to the originating
// workspace thread.
package slacknotify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"github.com/briefcast/briefcast-go/config"
	"github.com/briefcast/briefcast-go/internal/core"
	apperrors "github.com/briefcast/briefcast-go/internal/errors"
)

// Options groups dependencies for the Notifier.
type Options struct {
	Config     config.NotifyConfig
	HTTPClient *http.Client // Optional
	Logger     *slog.Logger // Optional
	APIURL     string       // Optional: overrides the Slack API URL
}

// Notifier implements core.BriefNotifier over the Slack Web API. Replies are
// threaded on the message that shared the link.
type Notifier struct {
	client       *slack.Client
	dashboardURL string
	timeout      time.Duration
	logger       *slog.Logger
}

// New constructs a Notifier.
func New(opts Options) (*Notifier, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("notify config: %w", err)
	}

	clientOpts := []slack.Option{}
	if opts.APIURL != "" {
		clientOpts = append(clientOpts, slack.OptionAPIURL(opts.APIURL))
	}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, slack.OptionHTTPClient(opts.HTTPClient))
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "slack_notifier")
	}

	return &Notifier{
		client:       slack.New(cfg.BotToken, clientOpts...),
		dashboardURL: strings.TrimRight(cfg.DashboardBaseURL, "/"),
		timeout:      cfg.Timeout,
		logger:       logger,
	}, nil
}

var _ core.BriefNotifier = (*Notifier)(nil)

// SendBrief announces a completed brief in the originating thread. A rich
// block message is attempted first; if the API rejects it, a plain-text reply
// is retried so the listener still gets the audio link.
func (n *Notifier) SendBrief(ctx context.Context, delivery core.BriefDelivery) error {
	if delivery.ChannelID == "" || delivery.ThreadID == "" {
		return apperrors.BadRequest("send brief: channel and thread ids are required")
	}

	ctx, cancel := n.withTimeout(ctx)
	defer cancel()

	title := "your link"
	if delivery.Record != nil && delivery.Record.Title != nil && *delivery.Record.Title != "" {
		title = *delivery.Record.Title
	}
	fallbackText := fmt.Sprintf("Your audio brief of %s is ready: %s", title, delivery.AudioURL)

	_, _, err := n.client.PostMessageContext(ctx, delivery.ChannelID,
		slack.MsgOptionTS(delivery.ThreadID),
		slack.MsgOptionBlocks(n.briefBlocks(delivery, title)...),
		slack.MsgOptionText(fallbackText, false),
	)
	if err == nil {
		return nil
	}
	if ctxDone(ctx, err) {
		return err
	}

	if n.logger != nil {
		n.logger.WarnContext(ctx, "rich brief message failed, retrying as plain text",
			"channel_id", delivery.ChannelID,
			"error", err,
		)
	}

	_, _, retryErr := n.client.PostMessageContext(ctx, delivery.ChannelID,
		slack.MsgOptionTS(delivery.ThreadID),
		slack.MsgOptionText(fallbackText, false),
	)
	if retryErr != nil {
		return apperrors.Wrapf(retryErr, apperrors.ErrCodeUnavailable,
			"post brief to channel %s", delivery.ChannelID)
	}
	return nil
}

// SendFailure posts a short notice that the brief could not be produced.
func (n *Notifier) SendFailure(ctx context.Context, delivery core.BriefDelivery, reason string) error {
	if delivery.ChannelID == "" || delivery.ThreadID == "" {
		return apperrors.BadRequest("send failure: channel and thread ids are required")
	}

	ctx, cancel := n.withTimeout(ctx)
	defer cancel()

	text := "Sorry, we couldn't produce an audio brief for that link."
	if strings.TrimSpace(reason) != "" {
		text += " Reason: " + reason
	}

	_, _, err := n.client.PostMessageContext(ctx, delivery.ChannelID,
		slack.MsgOptionTS(delivery.ThreadID),
		slack.MsgOptionText(text, false),
	)
	if err != nil {
		return apperrors.Wrapf(err, apperrors.ErrCodeUnavailable,
			"post failure notice to channel %s", delivery.ChannelID)
	}
	return nil
}

func (n *Notifier) briefBlocks(delivery core.BriefDelivery, title string) []slack.Block {
	headline := slack.NewTextBlockObject(slack.MarkdownType,
		fmt.Sprintf(":headphones: *Your audio brief of %s is ready.*", title), false, false)

	blocks := []slack.Block{slack.NewSectionBlock(headline, nil, nil)}

	if delivery.Record != nil && delivery.Record.Summary != nil && *delivery.Record.Summary != "" {
		summary := slack.NewTextBlockObject(slack.MarkdownType, *delivery.Record.Summary, false, false)
		blocks = append(blocks, slack.NewSectionBlock(summary, nil, nil))
	}

	links := fmt.Sprintf("<%s|Listen now>", delivery.AudioURL)
	if n.dashboardURL != "" && delivery.Record != nil && delivery.Record.ID != "" {
		links += fmt.Sprintf("  |  <%s/briefs/%s|Open in dashboard>", n.dashboardURL, delivery.Record.ID)
	}
	linkText := slack.NewTextBlockObject(slack.MarkdownType, links, false, false)
	blocks = append(blocks, slack.NewSectionBlock(linkText, nil, nil))

	return blocks
}

func (n *Notifier) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if n.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, n.timeout)
}

func ctxDone(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
