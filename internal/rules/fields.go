package rules

import (
	"strings"

	"triagebot/internal/domain"
)

// FieldText builds the text a rule pattern is matched against. matchField is a
// "+"-joined list of summary, description, labels and comments; parts are
// newline-joined in the order listed and each comment body is its own part.
// Unknown field names contribute nothing.
func FieldText(t domain.Ticket, matchField string) string {
	var parts []string
	for _, field := range strings.Split(matchField, "+") {
		switch strings.TrimSpace(field) {
		case "summary":
			parts = append(parts, t.Summary())
		case "description":
			parts = append(parts, t.Description)
		case "labels":
			parts = append(parts, strings.Join(t.Labels, " "))
		case "comments":
			for _, c := range t.Comments {
				parts = append(parts, c.Body)
			}
		}
	}
	return strings.Join(parts, "\n")
}
