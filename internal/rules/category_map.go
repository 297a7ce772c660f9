package rules

import (
	"strings"

	"triagebot/internal/domain"
	"triagebot/internal/table"
)

type failureKey struct {
	project string
	failure string
}

// FailureCategoryMap remembers which category existing rules assign to a
// failure category, per project.
type FailureCategoryMap map[failureKey]string

// BuildFailureCategoryMap indexes rows by lower-cased (project, failure).
// Rows with an empty or "unknown" category are skipped and the first row
// seen for a key wins.
func BuildFailureCategoryMap(rows []table.Row) FailureCategoryMap {
	m := make(FailureCategoryMap)
	for _, row := range rows {
		failure := row.Get(domain.ColFailureCategory)
		category := row.Get(domain.ColCategory)
		if failure == "" || category == "" || strings.EqualFold(category, domain.UnknownCategory) {
			continue
		}
		key := failureKey{
			project: strings.ToLower(row.Get(domain.ColProjectKey)),
			failure: strings.ToLower(failure),
		}
		if _, ok := m[key]; !ok {
			m[key] = category
		}
	}
	return m
}

// Infer looks up the project-specific mapping first, then the universal one.
func (m FailureCategoryMap) Infer(projectKey, failureCategory string) (string, bool) {
	failure := strings.ToLower(strings.TrimSpace(failureCategory))
	if failure == "" || m == nil {
		return "", false
	}
	project := strings.ToLower(strings.TrimSpace(projectKey))
	if c, ok := m[failureKey{project, failure}]; ok {
		return c, true
	}
	c, ok := m[failureKey{"", failure}]
	return c, ok
}
