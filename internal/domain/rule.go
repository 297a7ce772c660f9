package domain

import "regexp"

// MetaRuleFailure marks a rule that only flags "runbook present" and
// contributes no category.
const MetaRuleFailure = "Runbook Present = TRUE"

const (
	UnknownCategory        = "unknown"
	UncategorizedIssue     = "uncategorized"
	DefaultMatchField      = "summary+description"
	DefaultFailureCategory = "Unknown Failure"
	DefaultCreatedBy       = "human-feedback"
	DefaultPriority        = 80
	DefaultConfidence      = 1.0
)

type Rule struct {
	ProjectKey      string
	RuleID          string
	Pattern         string
	MatchField      string
	FailureCategory string
	Category        string
	Priority        int
	Confidence      float64
	CreatedBy       string
	HitCount        int

	// Re is the compiled case-insensitive pattern; nil means the rule is
	// disabled and never matches.
	Re *regexp.Regexp
}

func (r Rule) IsMeta() bool  { return r.FailureCategory == MetaRuleFailure }
func (r Rule) Enabled() bool { return r.Re != nil }

// AppliesTo reports whether the rule is in scope for a ticket of the given
// project. Rules without a project key are universal.
func (r Rule) AppliesTo(projectKey string) bool {
	return projectKey == "" || r.ProjectKey == "" || r.ProjectKey == projectKey
}

// Proposal is an unvalidated rule candidate from a proposal source. Keys are
// loosely typed and may use any of the accepted aliases.
type Proposal map[string]any
