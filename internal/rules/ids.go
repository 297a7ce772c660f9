package rules

import (
	"fmt"
	"regexp"
	"strconv"

	"triagebot/internal/domain"
	"triagebot/internal/table"
)

var ruleIDRe = regexp.MustCompile(`^R(\d+)$`)

// NextRuleID returns one past the highest numeric RuleID suffix in rows,
// regardless of project. Malformed ids are ignored.
func NextRuleID(rows []table.Row) int {
	maxID := 0
	for _, row := range rows {
		m := ruleIDRe.FindStringSubmatch(row.Get(domain.ColRuleID))
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > maxID {
			maxID = n
		}
	}
	return maxID + 1
}

func FormatRuleID(n int) string {
	return fmt.Sprintf("R%03d", n)
}
