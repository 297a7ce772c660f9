// Package slackbot posts run summaries to a Slack channel.
package slackbot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"triagebot/internal/domain"
	"triagebot/internal/proposal"
)

var ErrNotConfigured = errors.New("slack bot token or channel not set")

type Notifier struct {
	API       *slack.Client
	ChannelID string
	Logger    *zap.Logger
}

func NewNotifier(token, channelID string, logger *zap.Logger, opts ...slack.Option) (*Notifier, error) {
	if strings.TrimSpace(token) == "" || strings.TrimSpace(channelID) == "" {
		return nil, ErrNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		API:       slack.New(token, opts...),
		ChannelID: channelID,
		Logger:    logger,
	}, nil
}

// Post sends text as a single mrkdwn section with a plain-text fallback.
func (n *Notifier) Post(ctx context.Context, text string) error {
	block := slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil)
	_, ts, err := n.API.PostMessageContext(ctx, n.ChannelID,
		slack.MsgOptionText(text, false),
		slack.MsgOptionBlocks(block),
	)
	if err != nil {
		return fmt.Errorf("post slack summary: %w", err)
	}
	n.Logger.Debug("slack summary posted", zap.String("channel", n.ChannelID), zap.String("ts", ts))
	return nil
}

func (n *Notifier) NotifyCategorization(ctx context.Context, runID string, stats domain.RunStats, outputPath string) error {
	return n.Post(ctx, FormatCategorizationSummary(runID, stats, outputPath))
}

func (n *Notifier) NotifyProposals(ctx context.Context, runID string, rep proposal.Report) error {
	return n.Post(ctx, FormatProposalSummary(runID, rep))
}

func FormatCategorizationSummary(runID string, stats domain.RunStats, outputPath string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Categorization complete* (run `%s`)\n", runID)
	fmt.Fprintf(&b, "Wrote %d tickets: %d matched, %d unmatched, %d with runbook", stats.Written(), stats.Matched, stats.Unmatched, stats.RunbookTrue)
	var extra []string
	if stats.Skipped > 0 {
		extra = append(extra, fmt.Sprintf("%d already categorized", stats.Skipped))
	}
	if stats.Failed > 0 {
		extra = append(extra, fmt.Sprintf("%d failed to load", stats.Failed))
	}
	if len(extra) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(extra, ", "))
	}
	if outputPath != "" {
		fmt.Fprintf(&b, "\nOutput: `%s`", outputPath)
	}
	return b.String()
}

func FormatProposalSummary(runID string, rep proposal.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Rule proposals* (run `%s`)\n", runID)
	fmt.Fprintf(&b, "Scanned %d feedback rows, %d needed review. ", rep.RowsScanned, rep.ReviewRows)
	if rep.RulesAdded() == 0 {
		fmt.Fprintf(&b, "No rules added (%s).", rep.NoProposalsReason())
		return b.String()
	}
	fmt.Fprintf(&b, "Added %d of %d proposed rules to `%s`:", rep.RulesAdded(), rep.ProposalsReceived, rep.OutputTable)
	for _, r := range rep.Added {
		fmt.Fprintf(&b, "\n• %s `%s` → %s / %s", r.RuleID, r.Pattern, r.FailureCategory, r.Category)
	}
	return b.String()
}
