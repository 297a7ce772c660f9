package feedback

import (
	"fmt"
	"os"

	"triagebot/internal/domain"
	"triagebot/internal/table"
)

// Label is one training example for the classifier.
type Label struct {
	Ticket          string
	CategoryOfIssue string
	Category        string
}

var trainingColumns = []string{domain.ColTicket, domain.ColCategoryOfIssue, domain.ColCategory}

// LoadLabels reads a human-labeled training table. Rows without a Category
// of Issue are skipped.
func LoadLabels(path string) ([]Label, error) {
	t, err := table.Read(path)
	if err != nil {
		return nil, err
	}
	if len(t.Header) == 0 {
		return nil, fmt.Errorf("%w: training table %s is empty", ErrSchema, path)
	}
	if err := t.Require(trainingColumns); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSchema, path, err)
	}
	var out []Label
	for _, row := range t.Rows {
		l := Label{
			Ticket:          row.Get(domain.ColTicket),
			CategoryOfIssue: row.Get(domain.ColCategoryOfIssue),
			Category:        row.Get(domain.ColCategory),
		}
		if l.CategoryOfIssue == "" {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

// HarvestLabels collects labels from a categorized-results table: rows a rule
// matched whose audit is correct or still pending-review. A missing or
// malformed table yields no labels.
func HarvestLabels(path string) []Label {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	t, err := table.Read(path)
	if err != nil || t.Require(domain.FeedbackColumns) != nil {
		return nil
	}
	var out []Label
	for _, row := range t.Rows {
		if row.Get(domain.ColCategorizationSource) != domain.SourceRule {
			continue
		}
		audit := row.Get(domain.ColHumanAudit)
		if audit != domain.VerdictCorrect && audit != domain.VerdictPendingReview {
			continue
		}
		coi := row.Get(domain.ColCategoryOfIssue)
		if coi == "" || coi == domain.UncategorizedIssue {
			continue
		}
		out = append(out, Label{
			Ticket:          row.Get(domain.ColTicket),
			CategoryOfIssue: coi,
			Category:        row.Get(domain.ColCategory),
		})
	}
	return out
}

// MergeLabels concatenates label sets keeping the first label seen for each
// ticket, so earlier (human) sets win.
func MergeLabels(sets ...[]Label) []Label {
	seen := make(map[string]bool)
	var out []Label
	for _, set := range sets {
		for _, l := range set {
			if seen[l.Ticket] {
				continue
			}
			seen[l.Ticket] = true
			out = append(out, l)
		}
	}
	return out
}

// CategoryMap maps Category of Issue to Category. Later labels override.
func CategoryMap(labels []Label) map[string]string {
	m := make(map[string]string)
	for _, l := range labels {
		if l.CategoryOfIssue != "" && l.Category != "" {
			m[l.CategoryOfIssue] = l.Category
		}
	}
	return m
}
