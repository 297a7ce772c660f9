package proposal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"triagebot/internal/domain"
	"triagebot/internal/feedback"
	"triagebot/internal/rules"
)

var ErrNoSources = errors.New("no proposal sources configured")

type SourceSpec struct {
	Source Source
	// BatchSize bounds rows per Propose call; 0 sends all rows at once.
	BatchSize int
	// AllowAuto lets the source see every non-rule-matched row when the run
	// is in auto-rules mode.
	AllowAuto bool
}

type Options struct {
	SourceTable   string
	OutputTable   string
	FeedbackTable string
	// Cap limits review rows per run; 0 means no limit.
	Cap       int
	AutoRules bool
	Sources   []SourceSpec
}

type Report struct {
	RowsScanned               int
	ReviewRows                int
	MissingCommentsConsidered int
	MissingCommentsTotal      int
	ProposalsReceived         int
	Added                     []domain.Rule
	// Reasons counts why sources or batches produced nothing.
	Reasons     map[string]int
	OutputTable string
}

func (r Report) RulesAdded() int { return len(r.Added) }

// NoProposalsReason summarizes why no rules were added, or "" when some were.
func (r Report) NoProposalsReason() string {
	if len(r.Added) > 0 {
		return ""
	}
	if r.ProposalsReceived > 0 {
		return ReasonAllRejected
	}
	if len(r.Reasons) == 0 {
		return "unknown"
	}
	keys := make([]string, 0, len(r.Reasons))
	for k := range r.Reasons {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, r.Reasons[k]))
	}
	return strings.Join(parts, ", ")
}

type Pipeline struct {
	Logger *zap.Logger
}

func (p *Pipeline) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

// Run copies the source rule table to the working output table, asks every
// source for proposals from the feedback table, and appends the accepted
// rules to the working table in one write. Source failures only add reason
// codes; they never abort the run.
func (p *Pipeline) Run(ctx context.Context, opts Options) (Report, error) {
	log := p.logger()
	rep := Report{OutputTable: opts.OutputTable, Reasons: map[string]int{}}
	if len(opts.Sources) == 0 {
		return rep, ErrNoSources
	}

	if err := rules.CopyTable(opts.SourceTable, opts.OutputTable); err != nil {
		return rep, fmt.Errorf("copy rule table: %w", err)
	}
	fb, err := feedback.Load(opts.FeedbackTable)
	if err != nil {
		return rep, err
	}
	review, missing := fb.Cap(opts.Cap)
	rep.RowsScanned = len(fb.All)
	rep.ReviewRows = len(review)
	rep.MissingCommentsConsidered = missing
	rep.MissingCommentsTotal = fb.MissingComments

	existing, err := rules.ReadTable(opts.OutputTable)
	if err != nil {
		return rep, err
	}
	failureMap := rules.BuildFailureCategoryMap(existing)
	nextID := rules.NextRuleID(existing)

	var auto []domain.FeedbackRow
	if opts.AutoRules {
		auto = feedback.AutoRows(fb.All, opts.Cap)
		log.Info("auto-rules",
			zap.Int("non_rule_rows", len(auto)),
			zap.Int("rule_matched_skipped", rep.RowsScanned-len(auto)))
	}

	var proposals []domain.Proposal
	for _, spec := range opts.Sources {
		rows := review
		if opts.AutoRules && spec.AllowAuto {
			rows = auto
		}
		if len(rows) == 0 {
			continue
		}
		got := p.runSource(ctx, spec, rows, rep.Reasons)
		log.Info("source finished", zap.String("source", spec.Source.Name()), zap.Int("proposals", len(got)))
		proposals = append(proposals, got...)
	}
	if len(review) == 0 {
		rep.Reasons[ReasonNoReviewRows]++
	}
	rep.ProposalsReceived = len(proposals)

	projectByTicket := feedback.ProjectByTicket(fb.All)
	for _, prop := range proposals {
		project := ResolveProjectKey(prop, projectByTicket)
		r, ok := Normalize(prop, project, rules.FormatRuleID(nextID), failureMap, log)
		if !ok {
			continue
		}
		rep.Added = append(rep.Added, r)
		nextID++
	}

	if err := rules.AppendRules(opts.OutputTable, rep.Added); err != nil {
		return rep, fmt.Errorf("append rules: %w", err)
	}
	for _, r := range rep.Added {
		log.Info("rule appended",
			zap.String("rule_id", r.RuleID),
			zap.String("project", r.ProjectKey),
			zap.String("field", r.MatchField),
			zap.String("failure", r.FailureCategory),
			zap.String("category", r.Category),
			zap.String("pattern", r.Pattern))
	}
	if reason := rep.NoProposalsReason(); reason != "" {
		log.Info("no rules added", zap.String("reason", reason))
	}
	log.Info("proposal run done",
		zap.Int("rows_scanned", rep.RowsScanned),
		zap.Int("review_rows", rep.ReviewRows),
		zap.String("missing_comments", fmt.Sprintf("%d/%d", rep.MissingCommentsConsidered, rep.MissingCommentsTotal)),
		zap.Int("proposals", rep.ProposalsReceived),
		zap.Int("rules_added", rep.RulesAdded()),
		zap.String("output", rep.OutputTable))
	return rep, nil
}

// runSource calls one source batch by batch. Each batch fails on its own.
func (p *Pipeline) runSource(ctx context.Context, spec SourceSpec, rows []domain.FeedbackRow, reasons map[string]int) []domain.Proposal {
	log := p.logger().With(zap.String("source", spec.Source.Name()))
	size := spec.BatchSize
	if size <= 0 || size > len(rows) {
		size = len(rows)
	}
	total := (len(rows) + size - 1) / size

	var out []domain.Proposal
	for i, start := 0, 0; start < len(rows); i, start = i+1, start+size {
		end := min(start+size, len(rows))
		log.Info("batch", zap.Int("batch", i+1), zap.Int("batches", total), zap.Int("rows", end-start))

		got, err := spec.Source.Propose(ctx, rows[start:end])
		if err != nil {
			reason := ReasonOf(err)
			reasons[reason]++
			log.Warn("batch produced no proposals", zap.String("reason", reason), zap.Error(err))
			continue
		}
		if len(got) == 0 {
			reasons[ReasonNoProposals]++
			continue
		}
		out = append(out, got...)
	}
	return out
}
