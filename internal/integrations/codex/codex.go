// Package codex runs the codex CLI as a rule-proposal source.
package codex

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"triagebot/internal/domain"
	"triagebot/internal/integrations/llm"
	"triagebot/internal/proposal"
)

const (
	DefaultBin            = "codex"
	DefaultTimeout        = 120 * time.Second
	DefaultHeartbeat      = 10 * time.Second
	previewChars          = 1000
	waitDelayAfterTimeout = 2 * time.Second
)

// DefaultArgs runs codex non-interactively in plan mode.
var DefaultArgs = []string{"-a", "on-failure", "exec", "-p", "plan", "--sandbox", "workspace-write"}

// Source pipes a request into codex on stdin and reads proposals from its
// stdout. Each Propose call is one codex run.
type Source struct {
	Bin  string
	Args []string
	// Dir is the working directory codex runs in.
	Dir    string
	Prompt string
	// Timeout bounds one run; zero means no limit.
	Timeout   time.Duration
	Heartbeat time.Duration
	Logger    *zap.Logger
}

func (s *Source) Name() string { return "codex" }

func (s *Source) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *Source) command() (string, []string) {
	bin := s.Bin
	if bin == "" {
		bin = DefaultBin
	}
	args := s.Args
	if args == nil {
		args = append([]string(nil), DefaultArgs...)
		if s.Dir != "" {
			args = append(args, "-C", s.Dir)
		}
	}
	return bin, args
}

func (s *Source) Propose(ctx context.Context, rows []domain.FeedbackRow) ([]domain.Proposal, error) {
	if len(rows) == 0 {
		return nil, proposal.Fail(proposal.ReasonNoReviewRows, nil)
	}
	log := s.logger()
	req, err := llm.BuildRequest(s.Prompt, rows)
	if err != nil {
		return nil, proposal.Fail(proposal.ReasonExecutionFailed, err)
	}

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	bin, args := s.command()
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = s.Dir
	cmd.Stdin = strings.NewReader(req)
	cmd.WaitDelay = waitDelayAfterTimeout
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	log.Info("codex run started", zap.String("command", bin+" "+strings.Join(args, " ")), zap.Int("rows", len(rows)))
	stop := proposal.Heartbeat(log, s.Name(), s.Heartbeat)
	err = cmd.Run()
	stop()
	log.Info("codex run ended", zap.Duration("elapsed", time.Since(started).Round(10*time.Millisecond)))

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		log.Warn("codex timed out; raise the codex timeout", zap.Duration("timeout", s.Timeout))
		return nil, proposal.Fail(proposal.ReasonTimeout, ctx.Err())
	}
	if err != nil {
		log.Warn("codex execution failed", zap.Error(err), zap.String("stderr", llm.Preview(stderr.String(), previewChars)))
		return nil, proposal.Fail(proposal.ReasonExecutionFailed, fmt.Errorf("codex: %w", err))
	}

	props, err := llm.ExtractProposals(stdout.String())
	if err != nil && proposal.ReasonOf(err) == proposal.ReasonInvalidJSON {
		log.Warn("codex did not return valid JSON",
			zap.String("stdout", llm.Preview(stdout.String(), previewChars)),
			zap.String("stderr", llm.Preview(stderr.String(), previewChars)))
	}
	return props, err
}
