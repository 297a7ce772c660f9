package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"triagebot/internal/domain"
	"triagebot/internal/proposal"
)

const (
	DefaultModel = "claude-sonnet-4-5"
	systemPrompt = "You review audited ticket categorizations and propose regex rules " +
		"for a priority-ordered rule engine. Follow the response format exactly."
	previewChars = 1000
)

type callFunc func(ctx context.Context, system, user string) (string, error)

// AnthropicSource asks the Anthropic Messages API for rule proposals.
type AnthropicSource struct {
	APIKey     string
	BaseURL    string
	Model      string
	Prompt     string
	Timeout    time.Duration
	Heartbeat  time.Duration
	Logger     *zap.Logger
	HTTPClient *http.Client

	call callFunc
}

func (s *AnthropicSource) Name() string { return "anthropic" }

func (s *AnthropicSource) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *AnthropicSource) Propose(ctx context.Context, rows []domain.FeedbackRow) ([]domain.Proposal, error) {
	if len(rows) == 0 {
		return nil, proposal.Fail(proposal.ReasonNoReviewRows, nil)
	}
	log := s.logger()
	req, err := BuildRequest(s.Prompt, rows)
	if err != nil {
		return nil, proposal.Fail(proposal.ReasonExecutionFailed, err)
	}

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	call := s.call
	if call == nil {
		call = s.callAnthropic
	}

	started := time.Now()
	stop := proposal.Heartbeat(log, s.Name(), s.Heartbeat)
	text, err := call(ctx, systemPrompt, req)
	stop()
	log.Info("anthropic call finished", zap.Duration("elapsed", time.Since(started)))

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, proposal.Fail(proposal.ReasonTimeout, err)
		}
		return nil, proposal.Fail(proposal.ReasonExecutionFailed, err)
	}
	props, err := ExtractProposals(text)
	if err != nil && proposal.ReasonOf(err) == proposal.ReasonInvalidJSON {
		log.Warn("anthropic returned invalid JSON", zap.String("preview", Preview(text, previewChars)))
	}
	return props, err
}

func (s *AnthropicSource) callAnthropic(ctx context.Context, system, user string) (string, error) {
	model := s.Model
	if model == "" {
		model = DefaultModel
	}
	opts := []option.RequestOption{option.WithAPIKey(s.APIKey), option.WithMaxRetries(0)}
	if s.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(s.BaseURL))
	}
	if s.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(s.HTTPClient))
	}
	client := anthropic.NewClient(opts...)

	message, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: 4096,
		System: []anthropic.TextBlockParam{
			{Text: system, CacheControl: anthropic.NewCacheControlEphemeralParam()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API error: %w", err)
	}
	for _, block := range message.Content {
		if block.Type == "text" {
			s.logger().Debug("anthropic response",
				zap.Int("size", len(block.Text)),
				zap.Int64("tokens_in", message.Usage.InputTokens),
				zap.Int64("tokens_out", message.Usage.OutputTokens))
			return block.Text, nil
		}
	}
	return "", errors.New("no text content in anthropic response")
}
