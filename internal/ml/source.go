package ml

import (
	"context"
	"errors"
	"math"
	"strings"

	"go.uber.org/zap"

	"triagebot/internal/domain"
	"triagebot/internal/proposal"
	"triagebot/internal/rules"
	"triagebot/internal/tickets"
)

const (
	proposalPriority  = 70
	proposalCreatedBy = "ml-generated"
	topTermCount      = 5
	patternTermCount  = 3
)

// Source proposes one rule per feedback row the model classifies with enough
// confidence. The pattern comes from the ticket's most distinctive terms.
type Source struct {
	Model      *Model
	TicketsDir string
	Logger     *zap.Logger
}

func (s *Source) Name() string { return "ml" }

func (s *Source) Propose(ctx context.Context, rows []domain.FeedbackRow) ([]domain.Proposal, error) {
	log := s.Logger
	if log == nil {
		log = zap.NewNop()
	}
	keys := make(map[string]bool, len(rows))
	for _, r := range rows {
		keys[r.Ticket] = true
	}
	loaded, failed := tickets.LoadKeys(s.TicketsDir, keys)
	for key, err := range failed {
		log.Warn("ml: unreadable ticket", zap.String("ticket", key), zap.Error(err))
	}
	if len(loaded) == 0 {
		return nil, proposal.Fail(proposal.ReasonMLNoProposals, errors.New("no ticket JSONs found"))
	}

	var out []domain.Proposal
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		t, ok := loaded[row.Ticket]
		if !ok {
			log.Info("ml: skipping ticket without JSON", zap.String("ticket", row.Ticket))
			continue
		}
		p, ok := s.propose(t, row, log)
		if ok {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, proposal.Fail(proposal.ReasonMLNoProposals, nil)
	}
	return out, nil
}

func (s *Source) propose(t domain.Ticket, row domain.FeedbackRow, log *zap.Logger) (domain.Proposal, bool) {
	log = log.With(zap.String("ticket", row.Ticket))
	text := FeatureText(t)
	if strings.TrimSpace(text) == "" {
		log.Info("ml: skipping empty feature text")
		return nil, false
	}
	coi, confidence := s.Model.Predict(text)
	if confidence < ConfidenceThreshold {
		log.Info("ml: skipping low confidence", zap.Float64("confidence", confidence))
		return nil, false
	}
	top := s.Model.TopTerms(text, topTermCount)
	pattern := PatternFromTerms(top, t.Summary())
	if pattern == "" {
		log.Info("ml: skipping, no distinctive terms")
		return nil, false
	}
	category := s.Model.Category(coi)
	log.Info("ml: proposal",
		zap.String("failure_category", coi),
		zap.String("category", category),
		zap.Float64("confidence", confidence),
		zap.String("pattern", pattern))
	return domain.Proposal{
		"Rule Pattern":     pattern,
		"Match Field":      domain.DefaultMatchField,
		"Failure Category": coi,
		"Category":         category,
		"Priority":         proposalPriority,
		"Confidence":       math.Round(confidence*100) / 100,
		"Created By":       proposalCreatedBy,
		"Project Key":      row.ProjectKey,
		"Ticket":           row.Ticket,
	}, true
}

// PatternFromTerms picks up to three terms, preferring those that occur in
// the summary, and builds an ordered-match pattern from them.
func PatternFromTerms(top []Term, summary string) string {
	lower := strings.ToLower(summary)
	var picked []string
	for _, t := range top {
		if strings.Contains(lower, strings.ToLower(t.Term)) {
			picked = append(picked, t.Term)
		}
	}
	if len(picked) == 0 {
		for _, t := range top {
			picked = append(picked, t.Term)
		}
	}
	if len(picked) > patternTermCount {
		picked = picked[:patternTermCount]
	}
	return rules.PatternFromTerms(picked)
}
