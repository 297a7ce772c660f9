package categorize

import (
	"strconv"
	"strings"

	"triagebot/internal/domain"
	"triagebot/internal/table"
)

// Row renders a record in categorized-results column order.
func Row(rec domain.CategorizationRecord) []string {
	age := ""
	if rec.AgeDays != nil {
		age = strconv.Itoa(*rec.AgeDays)
	}
	confidence := ""
	if rec.Confidence != nil {
		confidence = strconv.FormatFloat(*rec.Confidence, 'f', -1, 64)
	}
	runbook := "FALSE"
	if rec.RunbookPresent {
		runbook = "TRUE"
	}
	return []string{
		rec.ProjectKey,
		rec.Ticket,
		rec.TicketURL,
		rec.TicketDescription,
		rec.Status,
		rec.Created,
		age,
		runbook,
		rec.CategoryOfIssue,
		rec.Category,
		strings.Join(rec.RulesUsed, ","),
		rec.CategorizationSource,
		confidence,
		rec.HumanAudit,
		rec.HumanAuditGuidance,
		rec.HumanComments,
	}
}

// ExistingKeys returns the ticket keys already present in a results table.
// A missing table yields an empty set.
func ExistingKeys(path string) (map[string]bool, error) {
	keys := make(map[string]bool)
	if !table.HasRows(path) {
		return keys, nil
	}
	t, err := table.Read(path)
	if err != nil {
		return nil, err
	}
	for _, row := range t.Rows {
		if k := row.Get(domain.ColTicket); k != "" {
			keys[k] = true
		}
	}
	return keys, nil
}
