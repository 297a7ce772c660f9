// Package feedback reads audited categorized-results tables and selects the
// rows proposal sources learn from.
package feedback

import (
	"errors"
	"fmt"
	"strings"

	"triagebot/internal/domain"
	"triagebot/internal/table"
)

var ErrSchema = errors.New("feedback table schema")

// reviewVerdicts are the audit verdicts that ask for a new or better rule.
var reviewVerdicts = map[string]bool{
	domain.VerdictIncorrect:   true,
	domain.VerdictNeedsReview: true,
}

type Result struct {
	All    []domain.FeedbackRow
	Review []domain.FeedbackRow
	// MissingComments counts review rows with an empty Human Comments cell.
	MissingComments int
}

// Load reads a categorized-results table. Any missing required column fails
// the whole load.
func Load(path string) (Result, error) {
	t, err := table.Read(path)
	if err != nil {
		return Result{}, err
	}
	if err := t.Require(domain.FeedbackColumns); err != nil {
		return Result{}, fmt.Errorf("%w: %s: %v", ErrSchema, path, err)
	}

	var res Result
	for _, row := range t.Rows {
		fr := fromRow(row)
		res.All = append(res.All, fr)
		if !IsReview(fr) {
			continue
		}
		if fr.HumanComments == "" {
			res.MissingComments++
		}
		res.Review = append(res.Review, fr)
	}
	return res, nil
}

func fromRow(row table.Row) domain.FeedbackRow {
	return domain.FeedbackRow{
		Ticket:               row.Get(domain.ColTicket),
		ProjectKey:           row.Get(domain.ColProjectKey),
		TicketDescription:    row.Get(domain.ColTicketDescription),
		CategoryOfIssue:      row.Get(domain.ColCategoryOfIssue),
		Category:             row.Get(domain.ColCategory),
		CategorizationSource: row.Get(domain.ColCategorizationSource),
		HumanAudit:           row.Get(domain.ColHumanAudit),
		HumanComments:        row.Get(domain.ColHumanComments),
	}
}

// IsReview reports whether a human flagged the row for a rule change.
func IsReview(r domain.FeedbackRow) bool {
	return reviewVerdicts[strings.ToLower(strings.TrimSpace(r.HumanAudit))]
}

// Cap keeps at most n review rows in file order and returns them with the
// number of kept rows lacking comments. n <= 0 keeps everything.
func (r Result) Cap(n int) ([]domain.FeedbackRow, int) {
	rows := r.Review
	if n > 0 && len(rows) > n {
		rows = rows[:n]
	}
	missing := 0
	for _, fr := range rows {
		if fr.HumanComments == "" {
			missing++
		}
	}
	return rows, missing
}

// AutoRows selects rows no rule matched, regardless of audit state. It is
// used to bootstrap rules before any human review. n <= 0 means no cap.
func AutoRows(all []domain.FeedbackRow, n int) []domain.FeedbackRow {
	var out []domain.FeedbackRow
	for _, fr := range all {
		if strings.EqualFold(fr.CategorizationSource, domain.SourceRule) {
			continue
		}
		out = append(out, fr)
		if n > 0 && len(out) == n {
			break
		}
	}
	return out
}

// ProjectByTicket maps every ticket in rows to its project key.
func ProjectByTicket(rows []domain.FeedbackRow) map[string]string {
	m := make(map[string]string, len(rows))
	for _, fr := range rows {
		if fr.Ticket != "" && fr.ProjectKey != "" {
			m[fr.Ticket] = fr.ProjectKey
		}
	}
	return m
}
