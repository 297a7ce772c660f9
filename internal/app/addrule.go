package app

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"triagebot/internal/domain"
	"triagebot/internal/rules"
	"triagebot/internal/tickets"
)

const (
	addRulePriority   = 85
	addRuleConfidence = 1.0
)

var ticketKeyRE = regexp.MustCompile(`^[A-Z]+-\d+$`)

type addRuleOptions struct {
	Ticket          string
	Reason          string
	FailureCategory string
	Category        string
	MatchField      string
	Pattern         string
	Priority        int
	Confidence      float64
	CreatedBy       string
	HitCount        int
	RulesEngine     string
	TicketsRoot     string
	Yes             bool
}

func (a *App) addRuleCmd() *cobra.Command {
	var opts addRuleOptions
	cmd := &cobra.Command{
		Use:   "add-rule",
		Short: "Create one rule from a single ticket",
		Long: `Build a rule from one ticket and a short reason, then append it to the
working rule table.

The pattern defaults to the first two distinctive words of the reason and
the ticket summary. The project comes from the ticket, or its key prefix.

Example:
  triagebot add-rule --ticket DFBUGS-123 --reason "fan failure on node" \
      --failure-category "Fan Failure" --category Hardware`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := a.runAddRule(opts)
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.Ticket, "ticket", "", "Ticket key, e.g. HPC-123456")
	f.StringVar(&opts.Reason, "reason", "", "Why the rule should exist; seeds the pattern")
	f.StringVar(&opts.FailureCategory, "failure-category", "", "Category of Issue the rule assigns")
	f.StringVar(&opts.Category, "category", "", "Category the rule assigns")
	f.StringVar(&opts.MatchField, "match-field", domain.DefaultMatchField, "Ticket fields the pattern is matched against")
	f.StringVar(&opts.Pattern, "pattern", "", "Rule pattern (default: derived from reason and summary)")
	f.IntVar(&opts.Priority, "priority", addRulePriority, "Rule priority")
	f.Float64Var(&opts.Confidence, "confidence", addRuleConfidence, "Rule confidence")
	f.StringVar(&opts.CreatedBy, "created-by", domain.DefaultCreatedBy, "Created By value")
	f.IntVar(&opts.HitCount, "hit-count", 0, "Initial Hit Count")
	f.StringVar(&opts.RulesEngine, "rules-engine", "", "Rule table to append to (default: proposal.output_rule_engine)")
	f.StringVar(&opts.TicketsRoot, "tickets-root", "", "Root of dated normalized-ticket folders (default: tickets_root)")
	f.BoolVarP(&opts.Yes, "yes", "y", false, "Append without asking")
	for _, name := range []string{"ticket", "reason", "failure-category", "category"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func (a *App) runAddRule(opts addRuleOptions) (domain.Rule, error) {
	log := a.logger()

	key := strings.ToUpper(strings.TrimSpace(opts.Ticket))
	if !ticketKeyRE.MatchString(key) {
		return domain.Rule{}, fmt.Errorf("invalid ticket key: %s", opts.Ticket)
	}
	reason := strings.TrimSpace(opts.Reason)
	failure := strings.TrimSpace(opts.FailureCategory)
	category := strings.TrimSpace(opts.Category)
	if reason == "" || failure == "" || category == "" {
		return domain.Rule{}, fmt.Errorf("reason, failure category and category are required")
	}

	root := firstNonEmpty(opts.TicketsRoot, a.Config.TicketsRoot)
	path, err := tickets.Find(root, key)
	if err != nil {
		return domain.Rule{}, err
	}
	t, err := tickets.Load(path)
	if err != nil {
		return domain.Rule{}, err
	}
	project := t.ProjectKey()
	if project == "" {
		project = domain.ProjectFromKey(key)
	}

	pattern := strings.TrimSpace(opts.Pattern)
	if pattern == "" {
		pattern = rules.PatternFromText(t.Summary(), reason, key)
	}
	if _, err := rules.Compile(pattern); err != nil {
		return domain.Rule{}, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	tablePath := firstNonEmpty(opts.RulesEngine, a.Config.Proposal.OutputRuleEngine)
	rows, err := rules.ReadTable(tablePath)
	if err != nil {
		return domain.Rule{}, err
	}
	r := domain.Rule{
		ProjectKey:      project,
		RuleID:          rules.FormatRuleID(rules.NextRuleID(rows)),
		Pattern:         pattern,
		MatchField:      firstNonEmpty(strings.TrimSpace(opts.MatchField), domain.DefaultMatchField),
		FailureCategory: failure,
		Category:        category,
		Priority:        opts.Priority,
		Confidence:      opts.Confidence,
		CreatedBy:       firstNonEmpty(opts.CreatedBy, domain.DefaultCreatedBy),
		HitCount:        opts.HitCount,
	}

	a.printf("Proposed rule:\n")
	row := rules.Row(r)
	for i, col := range domain.RuleColumns {
		a.printf("  %s: %s\n", col, row[i])
	}
	if !opts.Yes && !a.confirm(fmt.Sprintf("\nAppend rule %s to %s? [y/N]: ", r.RuleID, tablePath)) {
		a.printf("Aborted: rule was not saved.\n")
		return r, errAborted
	}
	if err := rules.AppendRules(tablePath, []domain.Rule{r}); err != nil {
		return r, err
	}
	log.Info("rule appended", zap.String("rule_id", r.RuleID), zap.String("pattern", r.Pattern), zap.String("path", tablePath))
	a.printf("Rule %s appended to %s\n", r.RuleID, tablePath)
	return r, nil
}
