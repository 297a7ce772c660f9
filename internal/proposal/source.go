package proposal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"triagebot/internal/domain"
)

// Reason codes explain why a run or a source call produced no rules.
const (
	ReasonNoReviewRows    = "no_review_rows"
	ReasonTimeout         = "timeout"
	ReasonExecutionFailed = "execution_failed"
	ReasonInvalidJSON     = "invalid_json"
	ReasonInvalidShape    = "invalid_proposals_shape"
	ReasonNoProposals     = "no_proposals"
	ReasonMLNoProposals   = "ml_no_proposals"
	ReasonAllRejected     = "all_proposals_rejected"
)

// Source produces raw rule proposals for a batch of feedback rows.
type Source interface {
	Name() string
	Propose(ctx context.Context, rows []domain.FeedbackRow) ([]domain.Proposal, error)
}

// SourceError is a source failure classified by reason code.
type SourceError struct {
	Reason string
	Err    error
}

func (e *SourceError) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// Fail wraps err with a reason code.
func Fail(reason string, err error) error {
	return &SourceError{Reason: reason, Err: err}
}

// ReasonOf classifies a source error. Unclassified errors count as
// execution failures, deadline errors as timeouts.
func ReasonOf(err error) string {
	var se *SourceError
	if errors.As(err, &se) {
		return se.Reason
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	return ReasonExecutionFailed
}

// Heartbeat logs elapsed time every interval until the returned stop func is
// called. interval <= 0 disables it.
func Heartbeat(log *zap.Logger, name string, interval time.Duration) (stop func()) {
	if interval <= 0 {
		return func() {}
	}
	started := time.Now()
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				log.Info("heartbeat: still running",
					zap.String("source", name),
					zap.Duration("elapsed", time.Since(started).Round(time.Second)))
			}
		}
	}()
	return func() {
		ticker.Stop()
		close(done)
	}
}

// EstimateRuntime guesses how long a batched reasoning-tool run takes.
// worst is zero when calls have no timeout.
func EstimateRuntime(rows, batchSize int, timeout time.Duration) (estimate, worst time.Duration, batches int) {
	const typicalCall = 45 * time.Second
	if rows <= 0 {
		return 0, 0, 0
	}
	if batchSize <= 0 {
		batchSize = rows
	}
	batches = (rows + batchSize - 1) / batchSize
	per := typicalCall
	if timeout > 0 {
		worst = time.Duration(batches) * timeout
		per = min(per, timeout)
	}
	return time.Duration(batches) * per, worst, batches
}
