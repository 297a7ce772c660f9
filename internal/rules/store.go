// Package rules holds the rule store: loading the priority-ordered rule
// table, evaluating it against tickets, and appending new rules.
package rules

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"triagebot/internal/domain"
	"triagebot/internal/table"
)

var ErrSchema = errors.New("rule table schema")

// ReadTable reads the raw rows of a rule table, failing when any rule column
// is missing.
func ReadTable(path string) ([]table.Row, error) {
	t, err := table.Read(path)
	if err != nil {
		return nil, err
	}
	if len(t.Header) == 0 {
		return nil, fmt.Errorf("%w: %s is empty or missing headers", ErrSchema, path)
	}
	if err := t.Require(domain.RuleColumns); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSchema, path, err)
	}
	return t.Rows, nil
}

// Load returns the rules of path sorted by priority, highest first. Rules
// with equal priority keep table order. When projectFilter is set only rules
// for that project or for no project are kept.
//
// A rule whose pattern does not compile is kept disabled and logged; one bad
// rule never fails the load.
func Load(path, projectFilter string, logger *zap.Logger) ([]domain.Rule, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rows, err := ReadTable(path)
	if err != nil {
		return nil, err
	}

	var out []domain.Rule
	for _, row := range rows {
		rule, err := ParseRow(row)
		if projectFilter != "" && rule.ProjectKey != "" && rule.ProjectKey != projectFilter {
			continue
		}
		if err != nil {
			logger.Warn("rule disabled", zap.String("rule_id", rule.RuleID), zap.Error(err))
		}
		out = append(out, rule)
	}
	SortByPriority(out)
	return out, nil
}

// ParseRow converts a raw row into a compiled rule. On error the returned
// rule is still populated but disabled.
func ParseRow(row table.Row) (domain.Rule, error) {
	rule := domain.Rule{
		ProjectKey:      row.Get(domain.ColProjectKey),
		RuleID:          row.Get(domain.ColRuleID),
		Pattern:         row[domain.ColRulePattern],
		MatchField:      row.Get(domain.ColMatchField),
		FailureCategory: row.Get(domain.ColFailureCategory),
		Category:        row.Get(domain.ColCategory),
		CreatedBy:       row.Get(domain.ColCreatedBy),
	}

	var err error
	if rule.Priority, err = strconv.Atoi(row.Get(domain.ColPriority)); err != nil {
		return rule, fmt.Errorf("bad priority %q: %w", row.Get(domain.ColPriority), err)
	}
	if rule.Confidence, err = strconv.ParseFloat(row.Get(domain.ColConfidence), 64); err != nil {
		return rule, fmt.Errorf("bad confidence %q: %w", row.Get(domain.ColConfidence), err)
	}
	if hc := row.Get(domain.ColHitCount); hc != "" {
		if rule.HitCount, err = strconv.Atoi(hc); err != nil {
			return rule, fmt.Errorf("bad hit count %q: %w", hc, err)
		}
	}
	re, err := Compile(rule.Pattern)
	if err != nil {
		return rule, fmt.Errorf("bad regex: %w", err)
	}
	rule.Re = re
	return rule, nil
}

// Compile compiles a rule pattern with case-insensitive semantics.
func Compile(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile("(?i)" + pattern)
}

// SortByPriority orders rules by descending priority. The sort is stable so
// ties resolve to table order, which keeps categorization deterministic.
func SortByPriority(rs []domain.Rule) {
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].Priority > rs[j].Priority })
}

// Row renders a rule in rule-table column order.
func Row(r domain.Rule) []string {
	return []string{
		r.ProjectKey,
		r.RuleID,
		r.Pattern,
		r.MatchField,
		r.FailureCategory,
		r.Category,
		strconv.Itoa(r.Priority),
		strconv.FormatFloat(r.Confidence, 'f', -1, 64),
		r.CreatedBy,
		strconv.Itoa(r.HitCount),
	}
}

// AppendRules appends rules to an existing rule table in one write.
func AppendRules(path string, rs []domain.Rule) error {
	if len(rs) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(rs))
	for _, r := range rs {
		rows = append(rows, Row(r))
	}
	return table.Append(path, rows)
}

// CopyTable copies src to dst so new rules land on a working copy. Copying a
// file onto itself is a no-op.
func CopyTable(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if samePath(src, dst) {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA == nil && errB == nil && absA == absB {
		return true
	}
	ia, errA := os.Stat(a)
	ib, errB := os.Stat(b)
	return errA == nil && errB == nil && os.SameFile(ia, ib)
}
