// Package categorize applies the rule engine to normalized tickets and writes
// the categorized-results table humans audit.
package categorize

import (
	"math"
	"regexp"
	"strings"
	"time"

	"triagebot/internal/domain"
	"triagebot/internal/rules"
)

const (
	categoryTRS          = "TRS"
	categoryPrescriptive = "PRESCRIPTIVE"
	unknownTicket        = "UNKNOWN"
)

var (
	trsCodeRe      = regexp.MustCompile(`(?i)TRS_\w+`)
	prescriptiveRe = regexp.MustCompile(`(?i)Serial:\s*\S+,\s*\S+\s+(\S+)`)
	createdLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05.000-0700",
		"2006-01-02T15:04:05-0700",
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
)

type Categorizer struct {
	// BrowseBaseURL prefixes ticket keys to build the Ticket URL column.
	BrowseBaseURL string
	AuditGuidance string
	Now           func() time.Time
}

func (c *Categorizer) now() time.Time {
	if c.Now != nil {
		return c.Now().UTC()
	}
	return time.Now().UTC()
}

// Categorize produces the record for one ticket. rs must be priority-sorted.
func (c *Categorizer) Categorize(t domain.Ticket, rs []domain.Rule, projectKey string) domain.CategorizationRecord {
	key := t.Key()
	rec := domain.CategorizationRecord{
		ProjectKey:         t.ProjectKey(),
		Ticket:             key,
		TicketDescription:  t.Summary(),
		Status:             t.Status.Current,
		Created:            dateOnly(t.Status.Created),
		AgeDays:            c.ageDays(t.Status.Created),
		HumanAuditGuidance: c.AuditGuidance,
	}
	if rec.Ticket == "" {
		rec.Ticket = unknownTicket
	}
	if rec.TicketDescription == "" {
		rec.TicketDescription = t.Description
	}
	if rec.HumanAuditGuidance == "" {
		rec.HumanAuditGuidance = domain.DefaultAuditGuidance
	}
	if key != "" && c.BrowseBaseURL != "" {
		rec.TicketURL = strings.TrimRight(c.BrowseBaseURL, "/") + "/" + key
	}

	matches, meta := rules.Evaluate(t, rs, projectKey)
	rec.RunbookPresent = len(meta) > 0

	if len(matches) == 0 {
		rec.CategoryOfIssue = domain.UncategorizedIssue
		rec.Category = domain.UnknownCategory
		rec.CategorizationSource = domain.SourceNone
		rec.HumanAudit = domain.VerdictNeedsReview
		return rec
	}

	top := matches[0]
	rec.CategoryOfIssue = top.FailureCategory
	rec.Category = refineCategory(top.Category, t.Summary())
	rec.CategorizationSource = domain.SourceRule

	confidence := math.Inf(-1)
	for _, r := range matches {
		rec.RulesUsed = append(rec.RulesUsed, r.RuleID)
		confidence = math.Max(confidence, r.Confidence)
	}
	rec.Confidence = &confidence
	if confidence < domain.ReviewConfidenceThreshold {
		rec.HumanAudit = domain.VerdictNeedsReview
	} else {
		rec.HumanAudit = domain.VerdictPendingReview
	}
	return rec
}

// refineCategory specializes the generic TRS and PRESCRIPTIVE categories
// from the ticket summary. Any other category is returned unchanged.
func refineCategory(category, summary string) string {
	switch category {
	case categoryTRS:
		if m := trsCodeRe.FindString(summary); m != "" {
			return m
		}
	case categoryPrescriptive:
		if m := prescriptiveRe.FindStringSubmatch(summary); m != nil {
			return strings.ToUpper(m[1])
		}
	}
	return category
}

func (c *Categorizer) ageDays(created string) *int {
	ts, ok := parseCreated(created)
	if !ok {
		return nil
	}
	days := int(math.Floor(c.now().Sub(ts).Hours() / 24))
	if days < 0 {
		days = 0
	}
	return &days
}

func parseCreated(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range createdLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func dateOnly(s string) string {
	if len(s) > 10 {
		return s[:10]
	}
	return s
}
